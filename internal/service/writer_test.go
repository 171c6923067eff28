package service

import (
	"context"
	"errors"
	"io"
	"net/http"
	"testing"
	"time"

	"tallybook/internal/database"
	"tallybook/internal/models"
	"tallybook/internal/remote"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func validPayload() models.Transaction {
	return models.Transaction{
		Amount:   decimal.RequireFromString("50.00"),
		Type:     models.TransactionExpense,
		Category: "fuel",
		Date:     time.Date(2025, 5, 10, 0, 0, 0, 0, time.UTC),
		OwnerID:  "owner-1",
	}
}

func newTestWriter(q *mockQueue, r *mockRemote, online bool, tr *mockTrigger) *OfflineWriter {
	logger := zerolog.New(io.Discard)
	return NewOfflineWriter(q, r, mockConn{online: online}, tr, time.Second, &logger)
}

func TestOfflineWriter_OnlineSuccess(t *testing.T) {
	q, r, tr := new(mockQueue), new(mockRemote), new(mockTrigger)
	w := newTestWriter(q, r, true, tr)
	ctx := context.Background()
	payload := validPayload()

	r.On("Create", mock.Anything, mock.AnythingOfType("string"), payload).Return("srv-1", nil).Once()

	res, err := w.Write(ctx, payload)
	require.NoError(t, err)
	assert.Equal(t, models.PersistedRemote, res.Persisted)
	assert.True(t, res.Record.Synced)
	require.NotNil(t, res.Record.ServerID)
	assert.Equal(t, "srv-1", *res.Record.ServerID)
	assert.NotEmpty(t, res.Record.LocalID)

	r.AssertExpectations(t)
	q.AssertNotCalled(t, "Enqueue", mock.Anything, mock.Anything)
	q.AssertNotCalled(t, "EnqueueWithID", mock.Anything, mock.Anything, mock.Anything)
	tr.AssertNotCalled(t, "Trigger", mock.Anything)
}

func TestOfflineWriter_NetworkFallback(t *testing.T) {
	q, r, tr := new(mockQueue), new(mockRemote), new(mockTrigger)
	w := newTestWriter(q, r, true, tr)
	ctx := context.Background()
	payload := validPayload()

	var usedKey string
	r.On("Create", mock.Anything, mock.AnythingOfType("string"), payload).
		Run(func(args mock.Arguments) { usedKey = args.String(1) }).
		Return("", &remote.NetworkError{Op: "create transaction", Err: errors.New("dial tcp: refused")}).Once()

	q.On("EnqueueWithID", mock.Anything, mock.AnythingOfType("string"), payload).
		Return(func(_ context.Context, id string, p models.Transaction) *models.QueueEntry {
			return &models.QueueEntry{LocalID: id, Payload: p, CreatedAt: time.Now()}
		}, nil).Once()
	tr.On("Trigger", models.TriggerFallback).Once()

	res, err := w.Write(ctx, payload)
	require.NoError(t, err)
	assert.Equal(t, models.PersistedLocal, res.Persisted)
	assert.False(t, res.Record.Synced)
	assert.Nil(t, res.Record.ServerID)
	assert.Equal(t, usedKey, res.Record.LocalID, "queued retry must reuse the idempotency key")

	q.AssertExpectations(t)
	tr.AssertExpectations(t)
}

func TestOfflineWriter_FallbackSurvivesCallerDeadline(t *testing.T) {
	logger := zerolog.New(io.Discard)
	db, err := database.NewDB(":memory:", &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	r, tr := new(mockRemote), new(mockTrigger)
	payload := validPayload()

	// The remote hangs until the caller's deadline expires.
	r.On("Create", mock.Anything, mock.AnythingOfType("string"), payload).
		Run(func(args mock.Arguments) { <-args.Get(0).(context.Context).Done() }).
		Return("", &remote.NetworkError{Op: "create transaction", Err: context.DeadlineExceeded}).Once()
	tr.On("Trigger", models.TriggerFallback).Once()

	w := NewOfflineWriter(db, r, mockConn{online: true}, tr, time.Second, &logger)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	res, err := w.Write(ctx, payload)
	require.NoError(t, err)
	assert.Equal(t, models.PersistedLocal, res.Persisted)

	pending, err := db.ListUnsynced(context.Background())
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, res.Record.LocalID, pending[0].LocalID)
	tr.AssertExpectations(t)
}

func TestOfflineWriter_ApplicationErrorPropagates(t *testing.T) {
	q, r, tr := new(mockQueue), new(mockRemote), new(mockTrigger)
	w := newTestWriter(q, r, true, tr)
	payload := validPayload()

	apiErr := &remote.APIError{Op: "create transaction", StatusCode: http.StatusConflict, Message: "duplicate"}
	r.On("Create", mock.Anything, mock.Anything, payload).Return("", apiErr).Once()

	res, err := w.Write(context.Background(), payload)
	assert.Nil(t, res)
	assert.ErrorIs(t, err, apiErr)
	q.AssertNotCalled(t, "EnqueueWithID", mock.Anything, mock.Anything, mock.Anything)
	tr.AssertNotCalled(t, "Trigger", mock.Anything)
}

func TestOfflineWriter_Offline(t *testing.T) {
	q, r, tr := new(mockQueue), new(mockRemote), new(mockTrigger)
	w := newTestWriter(q, r, false, tr)
	ctx := context.Background()
	payload := validPayload()

	entry := &models.QueueEntry{LocalID: "local-1", Payload: payload, CreatedAt: time.Now()}
	q.On("Enqueue", ctx, payload).Return(entry, nil).Once()

	res, err := w.Write(ctx, payload)
	require.NoError(t, err)
	assert.Equal(t, models.PersistedLocal, res.Persisted)
	assert.Equal(t, "local-1", res.Record.LocalID)
	r.AssertNotCalled(t, "Create", mock.Anything, mock.Anything, mock.Anything)
}

func TestOfflineWriter_StorageErrorPropagates(t *testing.T) {
	q, r, tr := new(mockQueue), new(mockRemote), new(mockTrigger)
	w := newTestWriter(q, r, false, tr)
	ctx := context.Background()
	payload := validPayload()

	diskErr := errors.New("disk full")
	q.On("Enqueue", ctx, payload).Return(nil, diskErr).Once()

	_, err := w.Write(ctx, payload)
	assert.ErrorIs(t, err, diskErr)
}

func TestOfflineWriter_RejectsInvalidPayload(t *testing.T) {
	q, r, tr := new(mockQueue), new(mockRemote), new(mockTrigger)
	w := newTestWriter(q, r, true, tr)

	payload := validPayload()
	payload.Amount = decimal.Zero

	_, err := w.Write(context.Background(), payload)
	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Contains(t, vErr.Fields(), "amount")

	r.AssertNotCalled(t, "Create", mock.Anything, mock.Anything, mock.Anything)
}

func TestValidatePayload(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*models.Transaction)
		field  string
	}{
		{"Valid", func(*models.Transaction) {}, ""},
		{"NegativeAmount", func(p *models.Transaction) { p.Amount = decimal.NewFromInt(-1) }, "amount"},
		{"UnknownType", func(p *models.Transaction) { p.Type = "transfer" }, "type"},
		{"MissingCategory", func(p *models.Transaction) { p.Category = "" }, "category"},
		{"MissingDate", func(p *models.Transaction) { p.Date = time.Time{} }, "date"},
		{"MissingOwner", func(p *models.Transaction) { p.OwnerID = "" }, "owner_id"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := validPayload()
			tt.mutate(&p)

			err := ValidatePayload(p)
			if tt.field == "" {
				assert.NoError(t, err)
				return
			}
			var vErr *ValidationError
			require.ErrorAs(t, err, &vErr)
			assert.Contains(t, vErr.Fields(), tt.field)
		})
	}
}
