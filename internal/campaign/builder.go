package campaign

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/thehypeloop/dialmate/backend/internal/directory"
	"github.com/thehypeloop/dialmate/backend/internal/storage"
	"github.com/thehypeloop/dialmate/backend/internal/types"
)

// ErrNoQueue is returned when no externally prepared dial queue is pending.
var ErrNoQueue = errors.New("campaign: no pending dial queue")

// ErrEmptyQueue is returned when a build produces no callable contacts.
var ErrEmptyQueue = errors.New("campaign: queue is empty")

// ImportRow is one row of an uploaded contact list.
type ImportRow struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

// FilterCriteria selects contacts by the feedback of their most recent call.
// From and To bound the latest record's timestamp in the canonical layout;
// either may be empty for an open end.
type FilterCriteria struct {
	Feedback string `json:"feedback"`
	From     string `json:"from,omitempty"`
	To       string `json:"to,omitempty"`
}

// Builder constructs dial queues from the three campaign sources: fresh
// imports, history filters, and the remote queue prepared by a web user.
type Builder struct {
	directory *directory.Directory
	store     storage.Store
	logger    zerolog.Logger
}

func NewBuilder(dir *directory.Directory, store storage.Store, logger zerolog.Logger) *Builder {
	return &Builder{
		directory: dir,
		store:     store,
		logger:    logger,
	}
}

// FromImport merges uploaded rows into the directory and returns them as a
// queue in upload order. Rows without a usable phone number are skipped;
// duplicate numbers keep their first position.
func (b *Builder) FromImport(rows []ImportRow) ([]types.Contact, error) {
	queue := make([]types.Contact, 0, len(rows))
	seen := make(map[string]bool, len(rows))
	skipped := 0

	for _, row := range rows {
		phone := types.NormalizePhone(row.Phone)
		if phone == "" {
			skipped++
			continue
		}
		if seen[phone] {
			continue
		}
		seen[phone] = true

		merged, ok := b.directory.Upsert(types.NewContact(row.Name, phone))
		if !ok {
			skipped++
			continue
		}
		queue = append(queue, merged)
	}

	b.logger.Info().
		Int("imported", len(queue)).
		Int("skipped", skipped).
		Msg("import queue built")

	if len(queue) == 0 {
		return nil, ErrEmptyQueue
	}
	return queue, nil
}

// FromFilter builds a queue of contacts whose latest call record matches the
// criteria. Matching is case-insensitive on feedback. When a date bound is
// set, records with timestamps outside the canonical layout are excluded
// rather than guessed at.
func (b *Builder) FromFilter(criteria FilterCriteria) ([]types.Contact, error) {
	feedback, err := types.ParseFeedback(criteria.Feedback)
	if err != nil {
		return nil, err
	}

	from, to, err := parseRange(criteria.From, criteria.To)
	if err != nil {
		return nil, err
	}
	bounded := criteria.From != "" || criteria.To != ""

	var queue []types.Contact
	for _, contact := range b.directory.All() {
		latest, ok := contact.LatestRecord()
		if !ok {
			continue
		}
		if !feedback.Equals(latest.Feedback) {
			continue
		}
		if bounded {
			ts, ok := latest.ParsedTimestamp()
			if !ok {
				continue
			}
			if !from.IsZero() && ts.Before(from) {
				continue
			}
			if !to.IsZero() && ts.After(to) {
				continue
			}
		}
		queue = append(queue, contact)
	}

	b.logger.Info().
		Str("feedback", string(feedback)).
		Int("matched", len(queue)).
		Msg("filter queue built")

	if len(queue) == 0 {
		return nil, ErrEmptyQueue
	}
	return queue, nil
}

// FromRemoteQueue consumes the dial queue prepared by the active web user.
// The queue is fetched first and cleared only after a successful fetch, so a
// failed fetch leaves it intact for retry while a successful one consumes it
// at most once.
func (b *Builder) FromRemoteQueue(ctx context.Context) ([]types.Contact, error) {
	sessionID, err := b.store.ReadActiveSession(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve active session: %w", err)
	}
	if sessionID == "" {
		return nil, ErrNoQueue
	}

	entries, err := b.store.FetchDialQueue(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch dial queue: %w", err)
	}
	if len(entries) == 0 {
		return nil, ErrNoQueue
	}

	if err := b.store.ClearDialQueue(ctx, sessionID); err != nil {
		b.logger.Error().Err(err).Str("session_id", sessionID).Msg("failed to clear consumed dial queue")
	}
	if err := b.store.ClearActiveSession(ctx); err != nil {
		b.logger.Error().Err(err).Msg("failed to clear active session marker")
	}

	queue := make([]types.Contact, 0, len(entries))
	seen := make(map[string]bool, len(entries))
	for _, entry := range entries {
		phone := types.NormalizePhone(entry.Phone)
		if phone == "" || seen[phone] {
			continue
		}
		seen[phone] = true

		if contact, ok := b.directory.Get(phone); ok {
			queue = append(queue, contact)
			continue
		}
		merged, ok := b.directory.Upsert(types.NewContact(entry.Name, phone))
		if !ok {
			continue
		}
		queue = append(queue, merged)
	}

	b.logger.Info().
		Str("session_id", sessionID).
		Int("contacts", len(queue)).
		Msg("remote queue consumed")

	if len(queue) == 0 {
		return nil, ErrNoQueue
	}
	return queue, nil
}

const dateOnlyLayout = "2006-01-02"

// parseRange parses optional bounds given either in the canonical layout or
// as bare dates. A bare-date From starts at midnight and a bare-date To
// covers its whole day, so a date range is inclusive on both ends.
func parseRange(fromRaw, toRaw string) (from, to time.Time, err error) {
	if fromRaw != "" {
		from, _, err = parseBound(fromRaw)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid from bound %q: %w", fromRaw, err)
		}
	}
	if toRaw != "" {
		var dateOnly bool
		to, dateOnly, err = parseBound(toRaw)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid to bound %q: %w", toRaw, err)
		}
		if dateOnly {
			to = to.Add(24*time.Hour - time.Second)
		}
	}
	return from, to, nil
}

func parseBound(raw string) (time.Time, bool, error) {
	if t, err := time.ParseInLocation(types.TimestampLayout, raw, time.Local); err == nil {
		return t, false, nil
	}
	t, err := time.ParseInLocation(dateOnlyLayout, raw, time.Local)
	if err != nil {
		return time.Time{}, false, err
	}
	return t, true, nil
}
