package database

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"tallybook/internal/models"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) *DB {
	logger := zerolog.Nop()
	db, err := NewDB(":memory:", &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func testTransaction(amount int64, txType models.TransactionType) models.Transaction {
	return models.Transaction{
		Amount:      decimal.NewFromInt(amount),
		Type:        txType,
		Category:    "supplies",
		Description: "test",
		Date:        time.Date(2025, 5, 10, 0, 0, 0, 0, time.UTC),
		OwnerID:     "owner-1",
	}
}

func assertSamePayload(t *testing.T, want, got models.Transaction) {
	t.Helper()
	assert.True(t, want.Amount.Equal(got.Amount), "amount: want %s got %s", want.Amount, got.Amount)
	assert.Equal(t, want.Type, got.Type)
	assert.Equal(t, want.Category, got.Category)
	assert.Equal(t, want.Description, got.Description)
	assert.True(t, want.Date.Equal(got.Date))
	assert.Equal(t, want.OwnerID, got.OwnerID)
}

func TestEnqueue(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	payload := testTransaction(50, models.TransactionExpense)
	entry, err := db.Enqueue(ctx, payload)
	require.NoError(t, err)

	assert.NotEmpty(t, entry.LocalID)
	assert.False(t, entry.Synced)
	assert.Nil(t, entry.ServerID)
	assert.Nil(t, entry.SyncedAt)
	assert.False(t, entry.CreatedAt.IsZero())

	stored, err := db.GetEntry(ctx, entry.LocalID)
	require.NoError(t, err)
	assertSamePayload(t, payload, stored.Payload)
	assert.False(t, stored.Synced)
}

func TestEnqueue_UniqueLocalIDs(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	seen := make(map[string]bool)
	for i := 0; i < 20; i++ {
		entry, err := db.Enqueue(ctx, testTransaction(int64(i+1), models.TransactionIncome))
		require.NoError(t, err)
		assert.False(t, seen[entry.LocalID], "local id reused: %s", entry.LocalID)
		seen[entry.LocalID] = true
	}
}

func TestEnqueueWithID(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	_, err := db.EnqueueWithID(ctx, "fixed-id", testTransaction(10, models.TransactionExpense))
	require.NoError(t, err)

	_, err = db.EnqueueWithID(ctx, "fixed-id", testTransaction(20, models.TransactionExpense))
	assert.ErrorIs(t, err, ErrDuplicateLocalID)

	_, err = db.EnqueueWithID(ctx, "", testTransaction(20, models.TransactionExpense))
	assert.ErrorIs(t, err, ErrEmptyLocalID)

	entries, err := db.ListAll(ctx)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestListUnsynced_InsertionOrder(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	var ids []string
	for _, amount := range []int64{50, 200, 10} {
		entry, err := db.Enqueue(ctx, testTransaction(amount, models.TransactionExpense))
		require.NoError(t, err)
		ids = append(ids, entry.LocalID)
	}

	require.NoError(t, db.MarkSynced(ctx, ids[1], "srv-2"))

	unsynced, err := db.ListUnsynced(ctx)
	require.NoError(t, err)
	require.Len(t, unsynced, 2)
	assert.Equal(t, ids[0], unsynced[0].LocalID)
	assert.Equal(t, ids[2], unsynced[1].LocalID)
}

func TestListAll_NewestFirst(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	first, err := db.Enqueue(ctx, testTransaction(1, models.TransactionIncome))
	require.NoError(t, err)
	second, err := db.Enqueue(ctx, testTransaction(2, models.TransactionIncome))
	require.NoError(t, err)
	require.NoError(t, db.MarkSynced(ctx, first.LocalID, "srv-1"))

	all, err := db.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, second.LocalID, all[0].LocalID)
	assert.Equal(t, first.LocalID, all[1].LocalID)
	assert.True(t, all[1].Synced)
}

func TestListUnsynced_Empty(t *testing.T) {
	db := setupTestDB(t)

	entries, err := db.ListUnsynced(context.Background())
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestMarkSynced(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	entry, err := db.Enqueue(ctx, testTransaction(50, models.TransactionExpense))
	require.NoError(t, err)

	require.NoError(t, db.MarkSynced(ctx, entry.LocalID, "srv-1"))

	first, err := db.GetEntry(ctx, entry.LocalID)
	require.NoError(t, err)
	assert.True(t, first.Synced)
	require.NotNil(t, first.ServerID)
	assert.Equal(t, "srv-1", *first.ServerID)
	require.NotNil(t, first.SyncedAt)

	t.Run("Idempotent", func(t *testing.T) {
		require.NoError(t, db.MarkSynced(ctx, entry.LocalID, "srv-1"))

		second, err := db.GetEntry(ctx, entry.LocalID)
		require.NoError(t, err)
		assert.Equal(t, first.Synced, second.Synced)
		assert.Equal(t, *first.ServerID, *second.ServerID)
		assert.True(t, first.SyncedAt.Equal(*second.SyncedAt))
	})

	t.Run("DifferentServerIDKeepsFirst", func(t *testing.T) {
		require.NoError(t, db.MarkSynced(ctx, entry.LocalID, "srv-other"))

		got, err := db.GetEntry(ctx, entry.LocalID)
		require.NoError(t, err)
		assert.Equal(t, "srv-1", *got.ServerID)
	})

	t.Run("UnknownEntry", func(t *testing.T) {
		err := db.MarkSynced(ctx, "missing", "srv-9")
		assert.ErrorIs(t, err, ErrEntryNotFound)
	})

	t.Run("EmptyServerID", func(t *testing.T) {
		err := db.MarkSynced(ctx, entry.LocalID, "")
		assert.ErrorIs(t, err, ErrEmptyServerID)
	})
}

func TestDelete(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	pending, err := db.Enqueue(ctx, testTransaction(10, models.TransactionExpense))
	require.NoError(t, err)
	done, err := db.Enqueue(ctx, testTransaction(20, models.TransactionIncome))
	require.NoError(t, err)
	require.NoError(t, db.MarkSynced(ctx, done.LocalID, "srv-1"))

	t.Run("RefusesUnsynced", func(t *testing.T) {
		err := db.Delete(ctx, pending.LocalID)
		assert.ErrorIs(t, err, ErrEntryUnsynced)

		_, err = db.GetEntry(ctx, pending.LocalID)
		assert.NoError(t, err)
	})

	t.Run("DeletesSynced", func(t *testing.T) {
		require.NoError(t, db.Delete(ctx, done.LocalID))
		_, err := db.GetEntry(ctx, done.LocalID)
		assert.ErrorIs(t, err, ErrEntryNotFound)
	})

	t.Run("Missing", func(t *testing.T) {
		assert.ErrorIs(t, db.Delete(ctx, "missing"), ErrEntryNotFound)
	})

	t.Run("ExplicitDiscard", func(t *testing.T) {
		require.NoError(t, db.DiscardEntry(ctx, pending.LocalID))
		_, err := db.GetEntry(ctx, pending.LocalID)
		assert.ErrorIs(t, err, ErrEntryNotFound)
		assert.ErrorIs(t, db.DiscardEntry(ctx, pending.LocalID), ErrEntryNotFound)
	})
}

func TestPrune_KeepsUnsynced(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	pending, err := db.Enqueue(ctx, testTransaction(10, models.TransactionExpense))
	require.NoError(t, err)
	done, err := db.Enqueue(ctx, testTransaction(20, models.TransactionIncome))
	require.NoError(t, err)
	require.NoError(t, db.MarkSynced(ctx, done.LocalID, "srv-1"))

	n, err := db.Prune(ctx, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	n, err = db.Prune(ctx, time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	all, err := db.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, pending.LocalID, all[0].LocalID)
}

func TestCountUnsynced(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := db.Enqueue(ctx, testTransaction(int64(i+1), models.TransactionIncome))
		require.NoError(t, err)
	}

	count, err := db.CountUnsynced(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestDurabilityAcrossRestart(t *testing.T) {
	logger := zerolog.Nop()
	dbPath := filepath.Join(t.TempDir(), "queue.db")
	ctx := context.Background()

	db, err := NewDB(dbPath, &logger)
	require.NoError(t, err)

	payload := testTransaction(50, models.TransactionExpense)
	entry, err := db.Enqueue(ctx, payload)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	reopened, err := NewDB(dbPath, &logger)
	require.NoError(t, err)
	defer reopened.Close()

	unsynced, err := reopened.ListUnsynced(ctx)
	require.NoError(t, err)
	require.Len(t, unsynced, 1)
	assert.Equal(t, entry.LocalID, unsynced[0].LocalID)
	assertSamePayload(t, payload, unsynced[0].Payload)
}

func TestConcurrentEnqueue(t *testing.T) {
	logger := zerolog.Nop()
	db, err := NewDB(filepath.Join(t.TempDir(), "concurrency.db"), &logger)
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()
	const numGoroutines = 10

	var wg sync.WaitGroup
	wg.Add(numGoroutines)
	errs := make(chan error, numGoroutines)

	for i := 0; i < numGoroutines; i++ {
		go func(i int) {
			defer wg.Done()
			_, err := db.Enqueue(ctx, testTransaction(int64(i+1), models.TransactionIncome))
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}

	count, err := db.CountUnsynced(ctx)
	require.NoError(t, err)
	assert.Equal(t, numGoroutines, count)
}

func TestDB_ErrorPaths(t *testing.T) {
	logger := zerolog.Nop()
	db, err := NewDB(":memory:", &logger)
	require.NoError(t, err)
	db.Close()

	ctx := context.Background()

	t.Run("Enqueue", func(t *testing.T) {
		_, err := db.Enqueue(ctx, testTransaction(1, models.TransactionIncome))
		assert.Error(t, err)
	})

	t.Run("ListUnsynced", func(t *testing.T) {
		_, err := db.ListUnsynced(ctx)
		assert.Error(t, err)
	})

	t.Run("MarkSynced", func(t *testing.T) {
		assert.Error(t, db.MarkSynced(ctx, "id", "srv"))
	})

	t.Run("Prune", func(t *testing.T) {
		_, err := db.Prune(ctx, time.Now())
		assert.Error(t, err)
	})
}
