package management

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lightbasehq/corehub/internal/domain"
)

// DevDirectory is the development stand-in for a real messaging
// platform: every AllowedUserID check is pre-seeded, and delivery just
// records the link instead of calling out anywhere.
type DevDirectory struct {
	mu        sync.Mutex
	allowed   map[string]bool
	delivered map[string]string // threadID -> link
}

func NewDevDirectory(allowedUserIDs ...string) *DevDirectory {
	set := make(map[string]bool, len(allowedUserIDs))
	for _, id := range allowedUserIDs {
		set[id] = true
	}
	return &DevDirectory{allowed: set, delivered: make(map[string]string)}
}

func (d *DevDirectory) IsKnownOperator(ctx context.Context, userID string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.allowed[userID], nil
}

func (d *DevDirectory) DeliverMagicLink(ctx context.Context, userID, link string) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	threadID := uuid.NewString()
	d.delivered[threadID] = link
	return threadID, nil
}

func (d *DevDirectory) PurgeThread(ctx context.Context, threadID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.delivered, threadID)
	return nil
}

// MemoryStore is an in-process Store for development and tests.
type MemoryStore struct {
	mu        sync.Mutex
	links     map[string]Link
	transient map[string]TransientUser // keyed by userID
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{links: make(map[string]Link), transient: make(map[string]TransientUser)}
}

func (s *MemoryStore) CreateLink(ctx context.Context, l Link) (Link, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.links[l.Token] = l
	return l, nil
}

func (s *MemoryStore) GetLink(ctx context.Context, token string) (Link, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.links[token]
	if !ok {
		return Link{}, domain.ErrNotFound
	}
	return l, nil
}

func (s *MemoryStore) ConsumeLink(ctx context.Context, token string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.links[token]
	if !ok {
		return domain.ErrNotFound
	}
	l.ConsumedAt = &at
	s.links[token] = l
	return nil
}

func (s *MemoryStore) RecordTransientUser(ctx context.Context, userID, threadID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transient[userID] = TransientUser{UserID: userID, ThreadID: threadID}
	return nil
}

// ListExpiredTransientUsers has no real age signal to check in-memory
// (no creation timestamp is tracked on TransientUser); development
// treats every recorded transient user as eligible, since the daily
// cleanup job only ever runs against the Postgres-backed Store in
// deployed environments.
func (s *MemoryStore) ListExpiredTransientUsers(ctx context.Context, olderThan time.Time) ([]TransientUser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]TransientUser, 0, len(s.transient))
	for _, t := range s.transient {
		out = append(out, t)
	}
	return out, nil
}

func (s *MemoryStore) DeleteTransientUser(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.transient, userID)
	return nil
}
