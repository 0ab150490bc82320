package distributed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	ErrOutboxEmpty = errors.New("outbox is empty")
)

// OutboxItem 아웃박스 아이템. Payload는 소비자가 해석한다.
type OutboxItem struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	Payload    json.RawMessage `json:"payload"`
	Retries    int             `json:"retries"`
	MaxRetries int             `json:"max_retries"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
}

// Outbox Redis 기반 커밋 후 이벤트 아웃박스.
// 발행은 fire-and-forget, 소비 실패는 재시도 후 DLQ로 이동한다.
type Outbox struct {
	client        *redis.Client
	queueKey      string // 대기 아이템 (List, FIFO)
	processingKey string // 처리 중 아이템 (Hash)
	dlqKey        string // Dead Letter Queue (List)
}

// NewOutbox 아웃박스 생성
func NewOutbox(client *redis.Client, name string) *Outbox {
	return &Outbox{
		client:        client,
		queueKey:      fmt.Sprintf("outbox:%s", name),
		processingKey: fmt.Sprintf("outbox:%s:processing", name),
		dlqKey:        fmt.Sprintf("outbox:%s:dlq", name),
	}
}

// Enqueue 아이템 추가 (FIFO)
func (o *Outbox) Enqueue(ctx context.Context, item *OutboxItem) error {
	if item.EnqueuedAt.IsZero() {
		item.EnqueuedAt = time.Now()
	}

	data, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("failed to marshal item: %w", err)
	}

	if err := o.client.RPush(ctx, o.queueKey, data).Err(); err != nil {
		return fmt.Errorf("failed to enqueue: %w", err)
	}

	return nil
}

// Dequeue 아이템 가져오기. 원자적으로 processing 해시로 이동한다.
func (o *Outbox) Dequeue(ctx context.Context) (*OutboxItem, error) {
	script := redis.NewScript(`
		local queue_key = KEYS[1]
		local processing_key = KEYS[2]
		local timestamp = ARGV[1]

		local item_data = redis.call('LPOP', queue_key)
		if not item_data then
			return nil
		end

		local item_id = cjson.decode(item_data).id
		redis.call('HSET', processing_key, item_id, item_data)
		redis.call('HSET', processing_key, item_id .. ':timestamp', timestamp)

		return item_data
	`)

	result, err := script.Run(ctx, o.client, []string{o.queueKey, o.processingKey}, time.Now().Unix()).Result()
	if err == redis.Nil || result == nil {
		return nil, ErrOutboxEmpty
	}
	if err != nil {
		return nil, fmt.Errorf("failed to dequeue: %w", err)
	}

	var item OutboxItem
	if err := json.Unmarshal([]byte(result.(string)), &item); err != nil {
		return nil, fmt.Errorf("failed to unmarshal item: %w", err)
	}

	return &item, nil
}

// Complete 아이템 처리 완료 (processing에서 제거)
func (o *Outbox) Complete(ctx context.Context, itemID string) error {
	pipe := o.client.Pipeline()
	pipe.HDel(ctx, o.processingKey, itemID)
	pipe.HDel(ctx, o.processingKey, itemID+":timestamp")
	_, err := pipe.Exec(ctx)

	if err != nil {
		return fmt.Errorf("failed to complete item: %w", err)
	}

	return nil
}

// Retry 아이템 재시도. 최대 재시도 초과 시 DLQ로 이동한다.
func (o *Outbox) Retry(ctx context.Context, item *OutboxItem) error {
	item.Retries++

	if item.Retries >= item.MaxRetries {
		return o.MoveToDLQ(ctx, item, "max retries exceeded")
	}

	if err := o.Complete(ctx, item.ID); err != nil {
		return err
	}

	return o.Enqueue(ctx, item)
}

// MoveToDLQ Dead Letter Queue로 이동
func (o *Outbox) MoveToDLQ(ctx context.Context, item *OutboxItem, reason string) error {
	dlqItem := map[string]interface{}{
		"item":        item,
		"reason":      reason,
		"moved_at":    time.Now(),
		"final_retry": item.Retries,
	}

	data, err := json.Marshal(dlqItem)
	if err != nil {
		return fmt.Errorf("failed to marshal DLQ item: %w", err)
	}

	if err := o.client.LPush(ctx, o.dlqKey, data).Err(); err != nil {
		return fmt.Errorf("failed to move to DLQ: %w", err)
	}

	return o.Complete(ctx, item.ID)
}

// RecoverStale 일정 시간 이상 처리 중인 아이템을 다시 큐에 넣는다.
// 소비자가 Complete 전에 죽어도 이벤트가 유실되지 않는다.
func (o *Outbox) RecoverStale(ctx context.Context, staleTimeout time.Duration) (int, error) {
	items, err := o.client.HGetAll(ctx, o.processingKey).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to get processing items: %w", err)
	}

	recovered := 0
	now := time.Now().Unix()

	for key, value := range items {
		// Timestamp 키는 스킵
		if len(key) > 10 && key[len(key)-10:] == ":timestamp" {
			continue
		}

		timestampStr, exists := items[key+":timestamp"]
		if !exists {
			continue
		}

		var timestamp int64
		if _, err := fmt.Sscanf(timestampStr, "%d", &timestamp); err != nil {
			continue
		}

		if now-timestamp > int64(staleTimeout.Seconds()) {
			var item OutboxItem
			if err := json.Unmarshal([]byte(value), &item); err != nil {
				continue
			}

			if err := o.Retry(ctx, &item); err != nil {
				continue
			}

			recovered++
		}
	}

	return recovered, nil
}

// Size 대기 아이템 개수
func (o *Outbox) Size(ctx context.Context) (int64, error) {
	return o.client.LLen(ctx, o.queueKey).Result()
}

// DLQSize DLQ 크기
func (o *Outbox) DLQSize(ctx context.Context) (int64, error) {
	return o.client.LLen(ctx, o.dlqKey).Result()
}
