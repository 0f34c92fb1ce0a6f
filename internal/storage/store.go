package storage

import (
	"context"
	"errors"

	"github.com/thehypeloop/dialmate/backend/internal/types"
)

// ErrWatchUnsupported is returned by stores that cannot push external
// change notifications.
var ErrWatchUnsupported = errors.New("storage: watch not supported")

// Store is the persistence boundary of the core. Contacts are written with
// full-document overwrite semantics; the in-memory directory stays
// authoritative and never blocks on these calls.
//
// The dial queue is an externally populated pending list consumed at most
// once: callers must fetch first and clear only after a successful fetch.
type Store interface {
	ReadContact(ctx context.Context, phone string) (*types.Contact, error)
	WriteContact(ctx context.Context, contact types.Contact) error
	ListContacts(ctx context.Context) ([]types.Contact, error)

	// ReadActiveSession returns the session id of the web user that built
	// the pending dial queue, or "" when none exists.
	ReadActiveSession(ctx context.Context) (string, error)
	ClearActiveSession(ctx context.Context) error

	FetchDialQueue(ctx context.Context, sessionID string) ([]types.QueueEntry, error)
	ClearDialQueue(ctx context.Context, sessionID string) error

	// Watch pushes contacts changed outside this process. Stores without
	// push support return ErrWatchUnsupported.
	Watch(ctx context.Context) (<-chan types.Contact, error)
}

// NoopStore is used when persistence is disabled; the directory then lives
// purely in memory.
type NoopStore struct{}

func NewNoopStore() *NoopStore { return &NoopStore{} }

func (s *NoopStore) ReadContact(_ context.Context, _ string) (*types.Contact, error) {
	return nil, nil
}
func (s *NoopStore) WriteContact(_ context.Context, _ types.Contact) error { return nil }
func (s *NoopStore) ListContacts(_ context.Context) ([]types.Contact, error) {
	return nil, nil
}
func (s *NoopStore) ReadActiveSession(_ context.Context) (string, error) { return "", nil }
func (s *NoopStore) ClearActiveSession(_ context.Context) error          { return nil }
func (s *NoopStore) FetchDialQueue(_ context.Context, _ string) ([]types.QueueEntry, error) {
	return nil, nil
}
func (s *NoopStore) ClearDialQueue(_ context.Context, _ string) error { return nil }
func (s *NoopStore) Watch(_ context.Context) (<-chan types.Contact, error) {
	return nil, ErrWatchUnsupported
}
