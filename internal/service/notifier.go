package service

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/pointlock/pointlock-backend/internal/models"
	"github.com/pointlock/pointlock-backend/pkg/distributed"
)

type MatchCreatedEvent struct {
	MatchID        string    `json:"matchId"`
	GameMode       string    `json:"gameMode"`
	StakeAmount    int64     `json:"stakeAmount"`
	ParticipantAID string    `json:"participantAId"`
	ParticipantBID string    `json:"participantBId"`
	CreatedAt      time.Time `json:"createdAt"`
}

// OutboxNotifier 매치 생성 이벤트를 Redis 아웃박스에 적재한다.
// 알림 실패가 매치 생성을 되돌리지 않도록 에러는 로그만 남긴다.
type OutboxNotifier struct {
	outbox *distributed.Outbox
	logger *zap.Logger
}

func NewOutboxNotifier(outbox *distributed.Outbox, logger *zap.Logger) *OutboxNotifier {
	return &OutboxNotifier{outbox: outbox, logger: logger}
}

func (n *OutboxNotifier) BroadcastCreated(match *models.Match) {
	event := MatchCreatedEvent{
		MatchID:        match.ID,
		GameMode:       match.GameMode,
		StakeAmount:    match.StakeAmount,
		ParticipantAID: match.ParticipantAID,
		ParticipantBID: match.ParticipantBID,
		CreatedAt:      match.CreatedAt,
	}

	payload, err := json.Marshal(event)
	if err != nil {
		n.logger.Error("failed to marshal match event", zap.Error(err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	item := &distributed.OutboxItem{
		ID:         match.ID,
		Type:       "match_created",
		Payload:    payload,
		MaxRetries: 5,
	}

	if err := n.outbox.Enqueue(ctx, item); err != nil {
		n.logger.Error("failed to enqueue match event",
			zap.String("matchId", match.ID), zap.Error(err))
	}
}

// MatchPusher 실시간 채널로 사용자에게 푸시하는 쪽 (websocket hub)
type MatchPusher interface {
	SendToUser(userID, msgType string, payload interface{})
}

// NotificationDispatcher 아웃박스를 소비해서 매치 참가자에게 푸시한다.
type NotificationDispatcher struct {
	outbox   *distributed.Outbox
	hub      MatchPusher
	interval time.Duration
	logger   *zap.Logger

	stopChan chan struct{}
	wg       sync.WaitGroup
	running  bool
	mu       sync.Mutex
}

func NewNotificationDispatcher(outbox *distributed.Outbox, hub MatchPusher, interval time.Duration, logger *zap.Logger) *NotificationDispatcher {
	return &NotificationDispatcher{
		outbox:   outbox,
		hub:      hub,
		interval: interval,
		logger:   logger,
		stopChan: make(chan struct{}),
	}
}

// Start 디스패치 루프 시작
func (d *NotificationDispatcher) Start() {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return
	}
	d.running = true
	d.stopChan = make(chan struct{})
	d.mu.Unlock()

	d.wg.Add(1)
	go d.loop()

	d.logger.Info("notification dispatcher started")
}

// Stop 디스패치 루프 정지
func (d *NotificationDispatcher) Stop() {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return
	}
	d.running = false
	close(d.stopChan)
	d.mu.Unlock()

	d.wg.Wait()
	d.logger.Info("notification dispatcher stopped")
}

func (d *NotificationDispatcher) loop() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	staleTicker := time.NewTicker(d.interval * 10)
	defer staleTicker.Stop()

	for {
		select {
		case <-d.stopChan:
			return
		case <-ticker.C:
			d.drain()
		case <-staleTicker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			recovered, err := d.outbox.RecoverStale(ctx, time.Minute)
			cancel()
			if err != nil {
				d.logger.Warn("failed to recover stale notifications", zap.Error(err))
			} else if recovered > 0 {
				d.logger.Info("recovered stale notifications", zap.Int("count", recovered))
			}
		}
	}
}

func (d *NotificationDispatcher) drain() {
	for {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		item, err := d.outbox.Dequeue(ctx)
		cancel()
		if err == distributed.ErrOutboxEmpty {
			return
		}
		if err != nil {
			d.logger.Error("failed to dequeue notification", zap.Error(err))
			return
		}

		d.dispatch(item)
	}
}

func (d *NotificationDispatcher) dispatch(item *distributed.OutboxItem) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var event MatchCreatedEvent
	if err := json.Unmarshal(item.Payload, &event); err != nil {
		d.logger.Error("failed to unmarshal match event",
			zap.String("itemId", item.ID), zap.Error(err))
		d.outbox.MoveToDLQ(ctx, item, "malformed payload")
		return
	}

	// 접속 중이 아닌 사용자는 놓쳐도 매치 히스토리 API로 확인할 수 있다
	d.hub.SendToUser(event.ParticipantAID, "match_found", event)
	d.hub.SendToUser(event.ParticipantBID, "match_found", event)

	if err := d.outbox.Complete(ctx, item.ID); err != nil {
		d.logger.Warn("failed to complete notification",
			zap.String("itemId", item.ID), zap.Error(err))
	}
}
