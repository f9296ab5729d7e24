// Package deadletter 死信归档存储测试（SQLite in-memory）
package deadletter

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

// TestStore_ArchiveAndGet 归档后可按 ID 取回
func TestStore_ArchiveAndGet(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	rec := &Record{
		Queue:      "vector-worker.events",
		EventID:    "evt-1",
		EventType:  "DraftIngested",
		RoutingKey: "DraftIngested",
		Body:       []byte(`{"eventId":"evt-1"}`),
		Reason:     ReasonMaxAttempts,
		Attempts:   3,
		Error:      "rag service unavailable",
	}
	require.NoError(t, store.Archive(ctx, rec))
	require.NotZero(t, rec.ID)

	got, err := store.Get(ctx, rec.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "evt-1", got.EventID)
	assert.Equal(t, ReasonMaxAttempts, got.Reason)
	assert.Equal(t, 3, got.Attempts)
	assert.Equal(t, rec.Body, got.Body)
	assert.WithinDuration(t, time.Now(), got.ArchivedAt, time.Minute)
}

// TestStore_GetMissing 不存在的记录返回 (nil, nil)
func TestStore_GetMissing(t *testing.T) {
	store := newTestStore(t)

	got, err := store.Get(context.Background(), 9999)
	require.NoError(t, err)
	assert.Nil(t, got)
}

// TestStore_ListByQueue 按队列过滤并分页
func TestStore_ListByQueue(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, store.Archive(ctx, &Record{
			Queue:   "queue-a",
			EventID: fmt.Sprintf("evt-a-%d", i),
			Reason:  ReasonPoison,
		}))
	}
	require.NoError(t, store.Archive(ctx, &Record{
		Queue:   "queue-b",
		EventID: "evt-b-0",
		Reason:  ReasonPoison,
	}))

	records, err := store.List(ctx, "queue-a", 3, 0)
	require.NoError(t, err)
	assert.Len(t, records, 3)

	all, err := store.List(ctx, "", 100, 0)
	require.NoError(t, err)
	assert.Len(t, all, 6)

	count, err := store.Count(ctx, "queue-a")
	require.NoError(t, err)
	assert.Equal(t, int64(5), count)
}

// TestStore_Delete 删除后不可再取回
func TestStore_Delete(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	rec := &Record{Queue: "q", EventID: "evt-1", Reason: ReasonPoison}
	require.NoError(t, store.Archive(ctx, rec))
	require.NoError(t, store.Delete(ctx, rec.ID))

	got, err := store.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Nil(t, got)
}
