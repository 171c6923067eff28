package service

import (
	"context"
	"time"

	"tallybook/internal/models"

	"github.com/stretchr/testify/mock"
)

type mockQueue struct {
	mock.Mock
}

func (m *mockQueue) Enqueue(ctx context.Context, p models.Transaction) (*models.QueueEntry, error) {
	args := m.Called(ctx, p)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.QueueEntry), args.Error(1)
}
func (m *mockQueue) EnqueueWithID(ctx context.Context, id string, p models.Transaction) (*models.QueueEntry, error) {
	args := m.Called(ctx, id, p)
	if fn, ok := args.Get(0).(func(context.Context, string, models.Transaction) *models.QueueEntry); ok {
		return fn(ctx, id, p), args.Error(1)
	}
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.QueueEntry), args.Error(1)
}
func (m *mockQueue) ListUnsynced(ctx context.Context) ([]models.QueueEntry, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.QueueEntry), args.Error(1)
}
func (m *mockQueue) ListAll(ctx context.Context) ([]models.QueueEntry, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.QueueEntry), args.Error(1)
}
func (m *mockQueue) GetEntry(ctx context.Context, id string) (*models.QueueEntry, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.QueueEntry), args.Error(1)
}
func (m *mockQueue) CountUnsynced(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}
func (m *mockQueue) MarkSynced(ctx context.Context, id, serverID string) error {
	return m.Called(ctx, id, serverID).Error(0)
}
func (m *mockQueue) Delete(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}
func (m *mockQueue) DiscardEntry(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}
func (m *mockQueue) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	args := m.Called(ctx, cutoff)
	return args.Get(0).(int64), args.Error(1)
}

type mockRemote struct {
	mock.Mock
}

func (m *mockRemote) Create(ctx context.Context, key string, p models.Transaction) (string, error) {
	args := m.Called(ctx, key, p)
	return args.String(0), args.Error(1)
}
func (m *mockRemote) List(ctx context.Context) ([]models.RemoteTransaction, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.RemoteTransaction), args.Error(1)
}

type mockConn struct {
	online bool
}

func (m mockConn) Online() bool { return m.online }
func (m mockConn) State() models.ConnectivityState {
	return models.ConnectivityState{Online: m.online, Supported: true}
}

type mockTrigger struct {
	mock.Mock
}

func (m *mockTrigger) Trigger(reason string) {
	m.Called(reason)
}
