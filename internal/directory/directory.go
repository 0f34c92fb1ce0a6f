package directory

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/thehypeloop/dialmate/backend/internal/metrics"
	"github.com/thehypeloop/dialmate/backend/internal/storage"
	"github.com/thehypeloop/dialmate/backend/internal/types"
)

// Directory maintains the in-memory contact book keyed by normalized phone
// number. It is the authoritative copy while the process runs; the store is
// written behind it asynchronously and never blocks a caller.
type Directory struct {
	contacts map[string]types.Contact
	store    storage.Store
	mu       sync.RWMutex
	logger   zerolog.Logger
}

// New creates a directory backed by the given store.
func New(store storage.Store, logger zerolog.Logger) *Directory {
	return &Directory{
		contacts: make(map[string]types.Contact),
		store:    store,
		logger:   logger,
	}
}

// Load hydrates the directory from the store. Called once at startup.
func (d *Directory) Load(ctx context.Context) error {
	contacts, err := d.store.ListContacts(ctx)
	if err != nil {
		return err
	}

	d.mu.Lock()
	for _, contact := range contacts {
		phone := types.NormalizePhone(contact.PhoneNumber)
		if phone == "" {
			continue
		}
		contact.PhoneNumber = phone
		d.contacts[phone] = contact
	}
	count := len(d.contacts)
	d.mu.Unlock()

	d.logger.Info().Int("contacts", count).Msg("directory hydrated from store")
	return nil
}

// WatchStore consumes external contact changes pushed by the store, merging
// them into the in-memory state. Returns quietly when the store has no push
// support. Blocks until ctx is cancelled; run in its own goroutine.
func (d *Directory) WatchStore(ctx context.Context) {
	ch, err := d.store.Watch(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrWatchUnsupported) {
			d.logger.Debug().Msg("store has no change feed, skipping watch")
			return
		}
		d.logger.Error().Err(err).Msg("failed to start store watch")
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case contact, ok := <-ch:
			if !ok {
				return
			}
			d.absorb(contact)
		}
	}
}

// absorb merges an externally changed contact without writing it back.
func (d *Directory) absorb(incoming types.Contact) {
	phone := types.NormalizePhone(incoming.PhoneNumber)
	if phone == "" {
		return
	}
	incoming.PhoneNumber = phone

	d.mu.Lock()
	if existing, ok := d.contacts[phone]; ok {
		d.contacts[phone] = existing.Merge(incoming)
	} else {
		d.contacts[phone] = incoming.Clone()
	}
	d.mu.Unlock()
}

// Get returns a copy of the contact for a phone number, or false when the
// number is unknown. The input is normalized before lookup.
func (d *Directory) Get(phone string) (types.Contact, bool) {
	key := types.NormalizePhone(phone)

	d.mu.RLock()
	defer d.mu.RUnlock()

	contact, ok := d.contacts[key]
	if !ok {
		return types.Contact{}, false
	}
	return contact.Clone(), true
}

// All returns copies of every contact, ordered by phone number.
func (d *Directory) All() []types.Contact {
	d.mu.RLock()
	defer d.mu.RUnlock()

	contacts := make([]types.Contact, 0, len(d.contacts))
	for _, contact := range d.contacts {
		contacts = append(contacts, contact.Clone())
	}
	sort.Slice(contacts, func(i, j int) bool {
		return contacts[i].PhoneNumber < contacts[j].PhoneNumber
	})
	return contacts
}

// Count returns the number of known contacts.
func (d *Directory) Count() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.contacts)
}

// Upsert merges an imported contact into the directory and persists the
// result. Returns the merged contact. Numbers that normalize to empty are
// rejected so junk rows never become directory keys.
func (d *Directory) Upsert(incoming types.Contact) (types.Contact, bool) {
	phone := types.NormalizePhone(incoming.PhoneNumber)
	if phone == "" {
		return types.Contact{}, false
	}
	incoming.PhoneNumber = phone

	d.mu.Lock()
	var merged types.Contact
	if existing, ok := d.contacts[phone]; ok {
		merged = existing.Merge(incoming)
	} else {
		merged = incoming.Clone()
		if merged.CallHistory == nil {
			merged.CallHistory = make(map[string]types.CallRecord)
		}
	}
	d.contacts[phone] = merged
	d.mu.Unlock()

	d.persist(merged)
	return merged.Clone(), true
}

// AppendRecord adds a call record to a contact's history and persists. The
// contact is created on the fly for numbers dialed manually that were never
// imported.
func (d *Directory) AppendRecord(phone, name string, record types.CallRecord) types.Contact {
	key := types.NormalizePhone(phone)

	d.mu.Lock()
	contact, ok := d.contacts[key]
	if !ok {
		contact = types.NewContact(name, key)
	}
	if contact.Name == "" && name != "" {
		contact.Name = name
	}
	contact.CallHistory[record.RecordID] = record
	d.contacts[key] = contact
	d.mu.Unlock()

	d.persist(contact)
	return contact.Clone()
}

// IncrementCallCount bumps a contact's dial counter and persists. Counting
// happens when the call is placed, not when feedback arrives, so abandoned
// sessions still reflect the attempt. Unknown numbers are created on the
// spot; dialing is what introduces them to the book.
func (d *Directory) IncrementCallCount(phone, name string) {
	key := types.NormalizePhone(phone)
	if key == "" {
		return
	}

	d.mu.Lock()
	contact, ok := d.contacts[key]
	if !ok {
		contact = types.NewContact(name, key)
	}
	contact.CallCount++
	d.contacts[key] = contact
	d.mu.Unlock()

	d.persist(contact)
}

// persist writes a contact to the store asynchronously.
func (d *Directory) persist(contact types.Contact) {
	snapshot := contact.Clone()
	go func() {
		if err := d.store.WriteContact(context.Background(), snapshot); err != nil {
			metrics.Get().IncrementPersistenceFailures()
			d.logger.Error().Err(err).Str("phone", snapshot.PhoneNumber).Msg("failed to persist contact")
		}
	}()
}
