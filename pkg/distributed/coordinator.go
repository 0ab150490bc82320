package distributed

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	EventEntryEnqueued  = "entry_enqueued"
	EventCycleRequested = "cycle_requested"
)

// QueueEvent 큐 이벤트
type QueueEvent struct {
	Type      string    `json:"type"` // "entry_enqueued", "cycle_requested"
	GameMode  string    `json:"game_mode"`
	UserID    string    `json:"user_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Coordinator Redis Pub/Sub 기반 분산 사이클 조정자.
// 큐 정합성은 행 단위 버전 가드가 보장하고, 여기의 게임모드별 락은
// 여러 인스턴스가 같은 배치를 두고 클레임 경쟁으로 낭비하는 것을 줄이는 용도다.
type Coordinator struct {
	client      *redis.Client
	lockManager *RedisLockManager
	logger      *zap.Logger
	instanceID  string

	eventChannel    string
	stopChan        chan struct{}
	subscriptionCtx context.Context
	cancelSub       context.CancelFunc
}

// NewCoordinator 분산 조정자 생성
func NewCoordinator(client *redis.Client, logger *zap.Logger) *Coordinator {
	return &Coordinator{
		client:       client,
		lockManager:  NewRedisLockManager(client),
		logger:       logger,
		instanceID:   uuid.New().String(),
		eventChannel: "queue:events",
		stopChan:     make(chan struct{}),
	}
}

// Start 이벤트 수신 시작
func (c *Coordinator) Start(ctx context.Context, handler func(event QueueEvent) error) error {
	c.subscriptionCtx, c.cancelSub = context.WithCancel(ctx)

	// Redis Pub/Sub 구독
	pubsub := c.client.Subscribe(c.subscriptionCtx, c.eventChannel)
	defer pubsub.Close()

	// 구독 확인
	_, err := pubsub.Receive(c.subscriptionCtx)
	if err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}

	c.logger.Info("Queue coordinator started",
		zap.String("instance_id", c.instanceID),
		zap.String("channel", c.eventChannel))

	// 메시지 수신 루프
	ch := pubsub.Channel()
	for {
		select {
		case msg := <-ch:
			if msg == nil {
				continue
			}

			var event QueueEvent
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				c.logger.Error("Failed to unmarshal event", zap.Error(err))
				continue
			}

			c.logger.Debug("Received queue event",
				zap.String("type", event.Type),
				zap.String("gameMode", event.GameMode))

			// 이벤트 처리 (게임모드별 락 사용)
			if err := c.handleEventWithLock(event, handler); err != nil {
				c.logger.Error("Failed to handle event", zap.Error(err))
			}

		case <-c.stopChan:
			c.logger.Info("Queue coordinator stopped")
			return nil

		case <-c.subscriptionCtx.Done():
			return c.subscriptionCtx.Err()
		}
	}
}

// Stop 이벤트 수신 중지
func (c *Coordinator) Stop() {
	close(c.stopChan)
	if c.cancelSub != nil {
		c.cancelSub()
	}
}

// publish 큐 이벤트 발행
func (c *Coordinator) publish(ctx context.Context, event QueueEvent) error {
	event.Timestamp = time.Now()

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if err := c.client.Publish(ctx, c.eventChannel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	c.logger.Debug("Published queue event",
		zap.String("type", event.Type),
		zap.String("gameMode", event.GameMode))

	return nil
}

// handleEventWithLock 게임모드별 락을 사용한 이벤트 처리
func (c *Coordinator) handleEventWithLock(event QueueEvent, handler func(event QueueEvent) error) error {
	lockKey := fmt.Sprintf("queue:cycle:%s", event.GameMode)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	lock, err := c.lockManager.AcquireWithRetry(
		ctx,
		lockKey,
		5*time.Second,        // Lock TTL
		3,                    // Max retries
		500*time.Millisecond, // Retry interval
	)

	if err == ErrLockNotAcquired {
		// 다른 인스턴스가 이미 사이클 진행 중
		c.logger.Debug("Cycle lock held by another instance",
			zap.String("gameMode", event.GameMode))
		return nil
	}

	if err != nil {
		return fmt.Errorf("failed to acquire lock: %w", err)
	}

	defer func() {
		if err := lock.Release(context.Background()); err != nil {
			c.logger.Error("Failed to release cycle lock", zap.Error(err))
		}
	}()

	return handler(event)
}

// NotifyEntryEnqueued 새 큐 엔트리가 추가됨을 알림 (즉시 사이클 트리거용)
func (c *Coordinator) NotifyEntryEnqueued(ctx context.Context, gameMode, userID string) error {
	return c.publish(ctx, QueueEvent{
		Type:     EventEntryEnqueued,
		GameMode: gameMode,
		UserID:   userID,
	})
}

// RequestCycle 처리 사이클 요청 알림
func (c *Coordinator) RequestCycle(ctx context.Context, gameMode string) error {
	return c.publish(ctx, QueueEvent{
		Type:     EventCycleRequested,
		GameMode: gameMode,
	})
}
