package storage

import (
	"context"
	"sort"
	"sync"

	"github.com/thehypeloop/dialmate/backend/internal/types"
)

// MemoryStore is a mutex-guarded in-memory Store. It backs tests and the
// single-process deployment mode, and is the only store with Watch support.
type MemoryStore struct {
	mu            sync.Mutex
	contacts      map[string]types.Contact
	queues        map[string][]types.QueueEntry
	activeSession string
	watchers      []chan types.Contact
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		contacts: make(map[string]types.Contact),
		queues:   make(map[string][]types.QueueEntry),
	}
}

func (s *MemoryStore) ReadContact(_ context.Context, phone string) (*types.Contact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	contact, ok := s.contacts[phone]
	if !ok {
		return nil, nil
	}
	clone := contact.Clone()
	return &clone, nil
}

func (s *MemoryStore) WriteContact(_ context.Context, contact types.Contact) error {
	s.mu.Lock()
	s.contacts[contact.PhoneNumber] = contact.Clone()
	watchers := make([]chan types.Contact, len(s.watchers))
	copy(watchers, s.watchers)
	s.mu.Unlock()

	for _, ch := range watchers {
		select {
		case ch <- contact.Clone():
		default:
			// Slow watcher; drop rather than block the writer.
		}
	}
	return nil
}

func (s *MemoryStore) ListContacts(_ context.Context) ([]types.Contact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	contacts := make([]types.Contact, 0, len(s.contacts))
	for _, contact := range s.contacts {
		contacts = append(contacts, contact.Clone())
	}
	sort.Slice(contacts, func(i, j int) bool {
		return contacts[i].PhoneNumber < contacts[j].PhoneNumber
	})
	return contacts, nil
}

func (s *MemoryStore) ReadActiveSession(_ context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeSession, nil
}

func (s *MemoryStore) ClearActiveSession(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activeSession = ""
	return nil
}

// SetActiveSession seeds the web-session marker; in production this is
// written by the web frontend, not this process.
func (s *MemoryStore) SetActiveSession(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activeSession = sessionID
}

func (s *MemoryStore) FetchDialQueue(_ context.Context, sessionID string) ([]types.QueueEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := make([]types.QueueEntry, len(s.queues[sessionID]))
	copy(entries, s.queues[sessionID])
	return entries, nil
}

func (s *MemoryStore) ClearDialQueue(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.queues, sessionID)
	return nil
}

// SetDialQueue seeds a pending queue for a session.
func (s *MemoryStore) SetDialQueue(sessionID string, entries []types.QueueEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	queue := make([]types.QueueEntry, len(entries))
	copy(queue, entries)
	s.queues[sessionID] = queue
}

func (s *MemoryStore) Watch(ctx context.Context) (<-chan types.Contact, error) {
	ch := make(chan types.Contact, 16)

	s.mu.Lock()
	s.watchers = append(s.watchers, ch)
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		for i, w := range s.watchers {
			if w == ch {
				s.watchers = append(s.watchers[:i], s.watchers[i+1:]...)
				break
			}
		}
		s.mu.Unlock()
		close(ch)
	}()

	return ch, nil
}
