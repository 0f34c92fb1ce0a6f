package directory

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/thehypeloop/dialmate/backend/internal/storage"
	"github.com/thehypeloop/dialmate/backend/internal/types"
)

func newTestDirectory() (*Directory, *storage.MemoryStore) {
	store := storage.NewMemoryStore()
	return New(store, zerolog.Nop()), store
}

// waitPersisted polls the store until the contact satisfies the condition;
// directory writes are asynchronous.
func waitPersisted(t *testing.T, store *storage.MemoryStore, phone string, cond func(*types.Contact) bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		contact, err := store.ReadContact(context.Background(), phone)
		if err == nil && contact != nil && cond(contact) {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("contact %s never reached expected persisted state", phone)
}

func TestUpsertNormalizesKey(t *testing.T) {
	dir, _ := newTestDirectory()

	merged, ok := dir.Upsert(types.NewContact("Alice", "+1 (999) 111-2222"))
	if !ok {
		t.Fatal("upsert rejected a valid number")
	}
	if merged.PhoneNumber != "19991112222" {
		t.Errorf("expected normalized key, got %s", merged.PhoneNumber)
	}

	if _, ok := dir.Get("1-999-111-2222"); !ok {
		t.Error("lookup with differently formatted number failed")
	}
}

func TestUpsertRejectsJunkNumber(t *testing.T) {
	dir, _ := newTestDirectory()
	if _, ok := dir.Upsert(types.NewContact("Junk", "---")); ok {
		t.Error("expected junk number to be rejected")
	}
}

func TestUpsertMergePreservesHistory(t *testing.T) {
	dir, _ := newTestDirectory()

	first := types.NewContact("Alice", "111")
	first.CallCount = 2
	first.CallHistory["r1"] = types.CallRecord{RecordID: "r1", Feedback: "Interested", Timestamp: "2024-01-01 10:00:00"}
	dir.Upsert(first)

	merged, _ := dir.Upsert(types.NewContact("Alice Renamed", "111"))
	if merged.Name != "Alice Renamed" {
		t.Errorf("expected new name, got %s", merged.Name)
	}
	if merged.CallCount != 2 || len(merged.CallHistory) != 1 {
		t.Errorf("reimport must not lose history: %+v", merged)
	}
}

func TestAppendRecordCreatesUnknownContact(t *testing.T) {
	dir, store := newTestDirectory()

	record := types.CallRecord{RecordID: "r1", Feedback: "Interested", Timestamp: "2024-01-01 10:00:00"}
	contact := dir.AppendRecord("555 0101", "Walk In", record)

	if contact.PhoneNumber != "5550101" || len(contact.CallHistory) != 1 {
		t.Errorf("unexpected contact: %+v", contact)
	}

	waitPersisted(t, store, "5550101", func(c *types.Contact) bool {
		return len(c.CallHistory) == 1
	})
}

func TestIncrementCallCount(t *testing.T) {
	dir, store := newTestDirectory()
	dir.Upsert(types.NewContact("Alice", "111"))

	dir.IncrementCallCount("111", "Alice")
	dir.IncrementCallCount("111", "Alice")

	contact, _ := dir.Get("111")
	if contact.CallCount != 2 {
		t.Errorf("expected call count 2, got %d", contact.CallCount)
	}

	// Unknown numbers are created at dial time.
	dir.IncrementCallCount("999", "Cold Call")
	contact, ok := dir.Get("999")
	if !ok || contact.CallCount != 1 || contact.Name != "Cold Call" {
		t.Errorf("expected created contact with count 1, got %+v", contact)
	}

	waitPersisted(t, store, "111", func(c *types.Contact) bool {
		return c.CallCount == 2
	})
}

func TestLoadHydratesFromStore(t *testing.T) {
	store := storage.NewMemoryStore()
	seeded := types.NewContact("Stored", "123 456")
	seeded.PhoneNumber = "123 456" // stores may hold unnormalized legacy keys
	if err := store.WriteContact(context.Background(), seeded); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	dir := New(store, zerolog.Nop())
	if err := dir.Load(context.Background()); err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if contact, ok := dir.Get("123456"); !ok || contact.Name != "Stored" {
		t.Errorf("expected hydrated contact under normalized key, got %+v ok=%v", contact, ok)
	}
}

func TestWatchStoreAbsorbsExternalChanges(t *testing.T) {
	dir, store := newTestDirectory()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go dir.WatchStore(ctx)

	// Simulate another process writing a contact directly to the store. The
	// write is repeated because the watcher subscribes asynchronously.
	external := types.NewContact("External", "777")
	external.CallCount = 5

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if err := store.WriteContact(context.Background(), external); err != nil {
			t.Fatalf("external write failed: %v", err)
		}
		if contact, ok := dir.Get("777"); ok && contact.CallCount == 5 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("external change never absorbed into directory")
}

func TestAllSortedByPhone(t *testing.T) {
	dir, _ := newTestDirectory()
	dir.Upsert(types.NewContact("B", "222"))
	dir.Upsert(types.NewContact("A", "111"))

	all := dir.All()
	if len(all) != 2 || all[0].PhoneNumber != "111" || all[1].PhoneNumber != "222" {
		t.Errorf("expected sorted contacts, got %+v", all)
	}
}
