package store

import (
	"context"
	"sync"

	"github.com/go-go-golems/graphwatch/pkg/model"
)

// SessionStore persists the session-scoped subscription list. Load and
// Save operate on the full snapshot; callers serialize access. Load never
// fails: a corrupt or unreadable backing entry degrades to an empty list.
type SessionStore interface {
	Load(ctx context.Context) []model.SubscriptionRecord
	Save(ctx context.Context, records []model.SubscriptionRecord) error
}

// MemoryStore keeps the snapshot in process memory. Used in tests and as a
// fallback when no store path is configured.
type MemoryStore struct {
	mu      sync.Mutex
	records []model.SubscriptionRecord
}

var _ SessionStore = &MemoryStore{}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Load(_ context.Context) []model.SubscriptionRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.SubscriptionRecord, len(s.records))
	copy(out, s.records)
	return out
}

func (s *MemoryStore) Save(_ context.Context, records []model.SubscriptionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = make([]model.SubscriptionRecord, len(records))
	copy(s.records, records)
	return nil
}
