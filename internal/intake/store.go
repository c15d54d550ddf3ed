package intake

import (
	"context"
	"sync"
	"time"

	"github.com/goccy/go-json"
)

const (
	DefaultSessionTTL = time.Hour
	DefaultArchiveTTL = 24 * time.Hour
)

// Store keeps serialized session state. Get never reports absence: an unknown id yields a
// fresh GREETING-stage session. Writes replace the whole value and reset the TTL.
type Store interface {
	Get(ctx context.Context, id string) (*Session, error)
	Put(ctx context.Context, s *Session, ttl time.Duration) error
	Delete(ctx context.Context, id string) error
	Archive(ctx context.Context, s *Session, ttl time.Duration) error
}

// MemoryStore is an in-process Store for tests and single-node development.
type MemoryStore struct {
	mu      sync.Mutex
	live    map[string]memEntry
	archive map[string]memEntry
	now     func() time.Time
}

type memEntry struct {
	data    []byte
	expires time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		live:    make(map[string]memEntry),
		archive: make(map[string]memEntry),
		now:     time.Now,
	}
}

func (m *MemoryStore) Get(_ context.Context, id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, slot := range []map[string]memEntry{m.live, m.archive} {
		e, ok := slot[id]
		if !ok {
			continue
		}
		if m.now().After(e.expires) {
			delete(slot, id)
			continue
		}
		var s Session
		if err := json.Unmarshal(e.data, &s); err != nil {
			return nil, err
		}
		return &s, nil
	}
	return NewSession(id, m.now()), nil
}

func (m *MemoryStore) Put(_ context.Context, s *Session, ttl time.Duration) error {
	return m.write(m.live, s, ttl)
}

func (m *MemoryStore) Archive(_ context.Context, s *Session, ttl time.Duration) error {
	return m.write(m.archive, s, ttl)
}

func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.live, id)
	return nil
}

func (m *MemoryStore) write(slot map[string]memEntry, s *Session, ttl time.Duration) error {
	b, err := json.Marshal(s)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	slot[s.ID] = memEntry{data: b, expires: m.now().Add(ttl)}
	return nil
}

// Live reports whether id has an unexpired live entry.
func (m *MemoryStore) Live(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.live[id]
	return ok && !m.now().After(e.expires)
}
