package service

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pointlock/pointlock-backend/internal/models"
	"github.com/pointlock/pointlock-backend/internal/repository"
)

// In-memory stores mirroring the repository CAS semantics.

type fakeQueueStore struct {
	mu         sync.Mutex
	entries    map[string]*models.QueueEntry
	failInsert bool
}

func newFakeQueueStore() *fakeQueueStore {
	return &fakeQueueStore{entries: make(map[string]*models.QueueEntry)}
}

func copyEntry(e *models.QueueEntry) *models.QueueEntry {
	c := *e
	return &c
}

func (s *fakeQueueStore) Insert(entry *models.QueueEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failInsert {
		return fmt.Errorf("simulated insert failure")
	}
	s.entries[entry.ID] = copyEntry(entry)
	return nil
}

func (s *fakeQueueStore) FindByID(id string) (*models.QueueEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[id]; ok {
		return copyEntry(e), nil
	}
	return nil, nil
}

func (s *fakeQueueStore) FindWaiting(userID, gameMode string) (*models.QueueEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.entries {
		if e.UserID == userID && e.GameMode == gameMode && e.Status == models.EntryStatusWaiting {
			return copyEntry(e), nil
		}
	}
	return nil, nil
}

func (s *fakeQueueStore) ClaimCandidates(limit int) ([]*models.QueueEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	var out []*models.QueueEntry
	for _, e := range s.entries {
		if e.Status != models.EntryStatusWaiting || !e.ExpiresAt.After(now) {
			continue
		}
		if e.ClaimExpiresAt != nil && e.ClaimExpiresAt.After(now) {
			continue
		}
		out = append(out, copyEntry(e))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EnqueuedAt.Before(out[j].EnqueuedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *fakeQueueStore) Claim(id string, version int64, workerID string, lockTimeout time.Duration) (*models.QueueEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok || e.Status != models.EntryStatusWaiting || e.Version != version {
		return nil, nil
	}
	expires := time.Now().Add(lockTimeout)
	e.ClaimedByWorker = &workerID
	e.ClaimExpiresAt = &expires
	e.Version++
	return copyEntry(e), nil
}

func (s *fakeQueueStore) ReleaseClaim(id, workerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok || e.Status != models.EntryStatusWaiting {
		return nil
	}
	if e.ClaimedByWorker == nil || *e.ClaimedByWorker != workerID {
		return nil
	}
	e.ClaimedByWorker = nil
	e.ClaimExpiresAt = nil
	e.Version++
	return nil
}

func (s *fakeQueueStore) TransitionStatus(id string, version int64, status models.QueueEntryStatus) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok || e.Status != models.EntryStatusWaiting || e.Version != version {
		return false, nil
	}
	e.Status = status
	e.ClaimedByWorker = nil
	e.ClaimExpiresAt = nil
	e.Version++
	return true, nil
}

func (s *fakeQueueStore) ExpiredCandidates(limit int) ([]*models.QueueEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	var out []*models.QueueEntry
	for _, e := range s.entries {
		if e.Status == models.EntryStatusWaiting && !e.ExpiresAt.After(now) {
			out = append(out, copyEntry(e))
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *fakeQueueStore) UnrefundedTerminal(limit int) ([]*models.QueueEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.QueueEntry
	for _, e := range s.entries {
		if (e.Status == models.EntryStatusExpired || e.Status == models.EntryStatusCancelled) && !e.Refunded {
			out = append(out, copyEntry(e))
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *fakeQueueStore) MarkRefunded(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[id]; ok {
		e.Refunded = true
	}
	return nil
}

func (s *fakeQueueStore) CountWaitingAhead(gameMode string, enqueuedAt time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, e := range s.entries {
		if e.GameMode == gameMode && e.Status == models.EntryStatusWaiting && e.EnqueuedAt.Before(enqueuedAt) {
			count++
		}
	}
	return count, nil
}

type fakeMatchStore struct {
	mu      sync.Mutex
	queue   *fakeQueueStore
	matches map[string]*models.Match
	recent  map[string]map[string]bool
}

func newFakeMatchStore(queue *fakeQueueStore) *fakeMatchStore {
	return &fakeMatchStore{
		queue:   queue,
		matches: make(map[string]*models.Match),
		recent:  make(map[string]map[string]bool),
	}
}

func (s *fakeMatchStore) addRecent(a, b string) {
	if s.recent[a] == nil {
		s.recent[a] = make(map[string]bool)
	}
	if s.recent[b] == nil {
		s.recent[b] = make(map[string]bool)
	}
	s.recent[a][b] = true
	s.recent[b][a] = true
}

func (s *fakeMatchStore) CreateFromEntries(match *models.Match, a, b *models.QueueEntry, workerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue.mu.Lock()
	defer s.queue.mu.Unlock()

	for _, entry := range []*models.QueueEntry{a, b} {
		stored, ok := s.queue.entries[entry.ID]
		if !ok || stored.Status != models.EntryStatusWaiting || stored.Version != entry.Version {
			return repository.ErrVersionConflict
		}
		if stored.ClaimedByWorker == nil || *stored.ClaimedByWorker != workerID {
			return repository.ErrVersionConflict
		}
	}

	s.matches[match.ID] = match
	for _, entry := range []*models.QueueEntry{a, b} {
		stored := s.queue.entries[entry.ID]
		stored.Status = models.EntryStatusMatched
		stored.MatchID = &match.ID
		stored.ClaimedByWorker = nil
		stored.ClaimExpiresAt = nil
		stored.Version++
	}
	return nil
}

func (s *fakeMatchStore) FindByID(id string) (*models.Match, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m, ok := s.matches[id]; ok {
		c := *m
		return &c, nil
	}
	return nil, nil
}

func (s *fakeMatchStore) FindByUserID(userID string, limit, offset int) ([]*models.Match, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Match
	for _, m := range s.matches {
		if m.ParticipantAID == userID || m.ParticipantBID == userID {
			c := *m
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *fakeMatchStore) RecentOpponents(userIDs []string, since time.Time) (map[string]map[string]bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]map[string]bool)
	for u, opps := range s.recent {
		out[u] = make(map[string]bool)
		for o := range opps {
			out[u][o] = true
		}
	}
	return out, nil
}

type fakeLedger struct {
	mu           sync.Mutex
	balances     map[string]int64
	transactions map[string]*models.WalletTransaction // by idempotency key
	failRefunds  bool
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		balances:     make(map[string]int64),
		transactions: make(map[string]*models.WalletTransaction),
	}
}

func (l *fakeLedger) Debit(userID string, amount int64, idempotencyKey, description string) (*models.WalletTransaction, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if existing, ok := l.transactions[idempotencyKey]; ok {
		return existing, nil
	}
	if l.balances[userID] < amount {
		return nil, repository.ErrInsufficientBalance
	}
	l.balances[userID] -= amount
	tx := &models.WalletTransaction{
		ID:             uuid.New().String(),
		UserID:         userID,
		Amount:         amount,
		Kind:           models.WalletTxDebit,
		IdempotencyKey: idempotencyKey,
		CreatedAt:      time.Now(),
	}
	l.transactions[idempotencyKey] = tx
	return tx, nil
}

func (l *fakeLedger) Refund(userID string, amount int64, idempotencyKey, refTxID, description string) (*models.WalletTransaction, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if existing, ok := l.transactions[idempotencyKey]; ok {
		return existing, nil
	}
	if l.failRefunds {
		return nil, fmt.Errorf("simulated refund failure")
	}
	l.balances[userID] += amount
	tx := &models.WalletTransaction{
		ID:             uuid.New().String(),
		UserID:         userID,
		Amount:         amount,
		Kind:           models.WalletTxRefund,
		IdempotencyKey: idempotencyKey,
		RefTxID:        &refTxID,
		CreatedAt:      time.Now(),
	}
	l.transactions[idempotencyKey] = tx
	return tx, nil
}

func (l *fakeLedger) balance(userID string) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[userID]
}

func (l *fakeLedger) refundCount(userID string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	count := 0
	for _, tx := range l.transactions {
		if tx.UserID == userID && tx.Kind == models.WalletTxRefund {
			count++
		}
	}
	return count
}

type fakeEntrySetStore struct {
	mu   sync.Mutex
	sets map[string]*models.EntrySet
}

func newFakeEntrySetStore() *fakeEntrySetStore {
	return &fakeEntrySetStore{sets: make(map[string]*models.EntrySet)}
}

func (s *fakeEntrySetStore) FindByID(id string) (*models.EntrySet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if set, ok := s.sets[id]; ok {
		c := *set
		return &c, nil
	}
	return nil, nil
}

func (s *fakeEntrySetStore) Lock(id, userID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.sets[id]
	if !ok || set.UserID != userID || set.Status != models.EntrySetStatusOpen {
		return false, nil
	}
	set.Status = models.EntrySetStatusLocked
	return true, nil
}

func (s *fakeEntrySetStore) Unlock(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if set, ok := s.sets[id]; ok && set.Status == models.EntrySetStatusLocked {
		set.Status = models.EntrySetStatusOpen
	}
	return nil
}

func (s *fakeEntrySetStore) status(id string) models.EntrySetStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sets[id].Status
}

type fakeUserStore struct {
	mu    sync.Mutex
	users map[string]*models.User
}

func newFakeUserStore() *fakeUserStore {
	return &fakeUserStore{users: make(map[string]*models.User)}
}

func (s *fakeUserStore) Create(user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[user.ID] = user
	return nil
}

func (s *fakeUserStore) FindByID(id string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[id]; ok {
		c := *u
		return &c, nil
	}
	return nil, nil
}

func (s *fakeUserStore) FindByEmail(email string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Email == email {
			c := *u
			return &c, nil
		}
	}
	return nil, nil
}

func (s *fakeUserStore) FindByUsername(username string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Username == username {
			c := *u
			return &c, nil
		}
	}
	return nil, nil
}

type recordingNotifier struct {
	mu      sync.Mutex
	matches []*models.Match
}

func (n *recordingNotifier) BroadcastCreated(match *models.Match) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.matches = append(n.matches, match)
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.matches)
}
