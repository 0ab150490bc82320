package distributed

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutbox_EnqueueDequeueComplete(t *testing.T) {
	client := setupRedisClient(t)
	defer client.Close()

	outbox := NewOutbox(client, "test")
	ctx := context.Background()

	payload, _ := json.Marshal(map[string]string{"matchId": "m1"})
	item := &OutboxItem{
		ID:         "m1",
		Type:       "match_created",
		Payload:    payload,
		MaxRetries: 3,
	}

	require.NoError(t, outbox.Enqueue(ctx, item))

	size, err := outbox.Size(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), size)

	// Dequeue는 processing으로 옮긴다
	got, err := outbox.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, "m1", got.ID)
	assert.Equal(t, "match_created", got.Type)

	size, err = outbox.Size(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), size)

	// Complete 후에는 더 이상 없음
	require.NoError(t, outbox.Complete(ctx, got.ID))

	_, err = outbox.Dequeue(ctx)
	assert.Equal(t, ErrOutboxEmpty, err)
}

func TestOutbox_FIFOOrder(t *testing.T) {
	client := setupRedisClient(t)
	defer client.Close()

	outbox := NewOutbox(client, "test-fifo")
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, outbox.Enqueue(ctx, &OutboxItem{ID: id, Type: "match_created", MaxRetries: 3}))
	}

	for _, want := range []string{"a", "b", "c"} {
		got, err := outbox.Dequeue(ctx)
		require.NoError(t, err)
		assert.Equal(t, want, got.ID)
		require.NoError(t, outbox.Complete(ctx, got.ID))
	}
}

func TestOutbox_RetryMovesToDLQ(t *testing.T) {
	client := setupRedisClient(t)
	defer client.Close()

	outbox := NewOutbox(client, "test-dlq")
	ctx := context.Background()

	item := &OutboxItem{ID: "x", Type: "match_created", MaxRetries: 2}
	require.NoError(t, outbox.Enqueue(ctx, item))

	got, err := outbox.Dequeue(ctx)
	require.NoError(t, err)

	// 1번째 재시도: 다시 큐로
	require.NoError(t, outbox.Retry(ctx, got))
	got, err = outbox.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Retries)

	// 2번째 재시도: MaxRetries 도달 → DLQ
	require.NoError(t, outbox.Retry(ctx, got))

	_, err = outbox.Dequeue(ctx)
	assert.Equal(t, ErrOutboxEmpty, err)

	dlqSize, err := outbox.DLQSize(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), dlqSize)
}

func TestOutbox_RecoverStale(t *testing.T) {
	client := setupRedisClient(t)
	defer client.Close()

	outbox := NewOutbox(client, "test-stale")
	ctx := context.Background()

	require.NoError(t, outbox.Enqueue(ctx, &OutboxItem{ID: "s1", Type: "match_created", MaxRetries: 3}))

	// Dequeue 후 Complete 없이 방치 (소비자 사망 시뮬레이션)
	_, err := outbox.Dequeue(ctx)
	require.NoError(t, err)

	time.Sleep(1100 * time.Millisecond)

	recovered, err := outbox.RecoverStale(ctx, 500*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, 1, recovered)

	// 복구된 아이템을 다시 꺼낼 수 있음
	got, err := outbox.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, "s1", got.ID)
}
