package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/thehypeloop/dialmate/backend/internal/campaign"
	"github.com/thehypeloop/dialmate/backend/internal/dialer"
	"github.com/thehypeloop/dialmate/backend/internal/directory"
	"github.com/thehypeloop/dialmate/backend/internal/feedback"
	"github.com/thehypeloop/dialmate/backend/internal/publisher"
	"github.com/thehypeloop/dialmate/backend/internal/sequencer"
	"github.com/thehypeloop/dialmate/backend/internal/storage"
	"github.com/thehypeloop/dialmate/backend/internal/types"
)

type testServer struct {
	router *chi.Mux
	engine *sequencer.Engine
	dir    *directory.Directory
	store  *storage.MemoryStore
}

func newTestServer(t *testing.T) (*testServer, context.CancelFunc) {
	t.Helper()
	logger := zerolog.Nop()

	store := storage.NewMemoryStore()
	dir := directory.New(store, logger)
	recorder := feedback.NewRecorder(dir, nil, logger)
	engine := sequencer.NewEngine(sequencer.Config{
		CallDelay:     30 * time.Millisecond,
		CountdownTick: 10 * time.Millisecond,
		DialGrace:     10 * time.Millisecond,
	}, dir, dialer.NewNoopDialer(logger), recorder, publisher.NopPublisher{}, logger)

	ctx, cancel := context.WithCancel(context.Background())
	go engine.Run(ctx)

	builder := campaign.NewBuilder(dir, store, logger)
	campaignHandler := NewCampaignHandler(engine, builder, logger)
	contactsHandler := NewContactsHandler(dir, logger)

	r := chi.NewRouter()
	r.Route("/api/campaign", func(r chi.Router) {
		r.Post("/import", campaignHandler.Import)
		r.Post("/filter", campaignHandler.Filter)
		r.Post("/remote", campaignHandler.Remote)
		r.Post("/start", campaignHandler.Start)
		r.Post("/pause", campaignHandler.Pause)
		r.Post("/resume", campaignHandler.Resume)
		r.Post("/feedback", campaignHandler.Feedback)
		r.Post("/manual-dial", campaignHandler.ManualDial)
		r.Get("/status", campaignHandler.Status)
	})
	r.Route("/api/contacts", func(r chi.Router) {
		r.Get("/", contactsHandler.List)
		r.Get("/{phone}", contactsHandler.Get)
	})

	return &testServer{router: r, engine: engine, dir: dir, store: store}, cancel
}

func (s *testServer) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) waitForCall(t *testing.T) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if s.engine.Snapshot().CallInProgress {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("timed out waiting for a call to be placed")
}

func TestImportStartFeedbackFlow(t *testing.T) {
	srv, cancel := newTestServer(t)
	defer cancel()

	rec := srv.do(t, http.MethodPost, "/api/campaign/import", map[string]interface{}{
		"contacts": []map[string]string{
			{"name": "Alice", "phone": "999 111 2222"},
		},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("import: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = srv.do(t, http.MethodPost, "/api/campaign/start", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("start: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	srv.waitForCall(t)

	rec = srv.do(t, http.MethodPost, "/api/campaign/feedback", map[string]string{
		"feedback": "Interested",
		"message":  "send brochure",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("feedback: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	// Single-contact queue completes after the one call
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if srv.engine.Snapshot().AllCallsCompleted {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	rec = srv.do(t, http.MethodGet, "/api/campaign/status", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status: expected 200, got %d", rec.Code)
	}
	var snap types.SessionSnapshot
	if err := json.Unmarshal(rec.Body.Bytes(), &snap); err != nil {
		t.Fatalf("failed to parse snapshot: %v", err)
	}
	if !snap.AllCallsCompleted {
		t.Errorf("expected completed campaign, got %+v", snap)
	}
}

func TestImportRejectsEmptyBody(t *testing.T) {
	srv, cancel := newTestServer(t)
	defer cancel()

	rec := srv.do(t, http.MethodPost, "/api/campaign/import", map[string]interface{}{
		"contacts": []map[string]string{},
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for empty import, got %d", rec.Code)
	}
}

func TestStartWithoutQueue(t *testing.T) {
	srv, cancel := newTestServer(t)
	defer cancel()

	rec := srv.do(t, http.MethodPost, "/api/campaign/start", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 without a queue, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestFeedbackWithoutCallConflicts(t *testing.T) {
	srv, cancel := newTestServer(t)
	defer cancel()

	rec := srv.do(t, http.MethodPost, "/api/campaign/feedback", map[string]string{"feedback": "Interested"})
	if rec.Code != http.StatusConflict {
		t.Errorf("expected 409 without a call, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestInvalidFeedbackLabel(t *testing.T) {
	srv, cancel := newTestServer(t)
	defer cancel()

	rec := srv.do(t, http.MethodPost, "/api/campaign/manual-dial", map[string]string{
		"name":  "Walk In",
		"phone": "555 0101",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("manual dial: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	srv.waitForCall(t)

	rec = srv.do(t, http.MethodPost, "/api/campaign/feedback", map[string]string{"feedback": "Maybe Later"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for unknown label, got %d: %s", rec.Code, rec.Body.String())
	}

	// Callback without reminder time is also a client error
	rec = srv.do(t, http.MethodPost, "/api/campaign/feedback", map[string]string{"feedback": "Callback"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for missing reminder, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestRemoteWithoutPendingQueue(t *testing.T) {
	srv, cancel := newTestServer(t)
	defer cancel()

	rec := srv.do(t, http.MethodPost, "/api/campaign/remote", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 without pending queue, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestRemoteQueueFlow(t *testing.T) {
	srv, cancel := newTestServer(t)
	defer cancel()

	srv.store.SetActiveSession("web-1")
	srv.store.SetDialQueue("web-1", []types.QueueEntry{{Name: "A", Phone: "111"}})

	rec := srv.do(t, http.MethodPost, "/api/campaign/remote", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("remote: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	// Queue was consumed; a second fetch finds nothing
	rec = srv.do(t, http.MethodPost, "/api/campaign/remote", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 on re-fetch, got %d", rec.Code)
	}
}

func TestPauseResumeEndpoints(t *testing.T) {
	srv, cancel := newTestServer(t)
	defer cancel()

	rec := srv.do(t, http.MethodPost, "/api/campaign/pause", nil)
	if rec.Code != http.StatusConflict {
		t.Errorf("pause without campaign: expected 409, got %d", rec.Code)
	}

	srv.do(t, http.MethodPost, "/api/campaign/import", map[string]interface{}{
		"contacts": []map[string]string{{"name": "A", "phone": "111"}},
	})
	if rec := srv.do(t, http.MethodPost, "/api/campaign/start", nil); rec.Code != http.StatusOK {
		t.Fatalf("start failed: %d", rec.Code)
	}

	if rec := srv.do(t, http.MethodPost, "/api/campaign/pause", nil); rec.Code != http.StatusOK {
		t.Errorf("pause: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if rec := srv.do(t, http.MethodPost, "/api/campaign/resume", nil); rec.Code != http.StatusOK {
		t.Errorf("resume: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestContactsEndpoints(t *testing.T) {
	srv, cancel := newTestServer(t)
	defer cancel()

	seeded := types.NewContact("Alice", "9991112222")
	seeded.CallHistory["r1"] = types.CallRecord{
		RecordID:  "r1",
		Feedback:  "Interested",
		Timestamp: "2024-03-01 10:00:00",
	}
	srv.dir.Upsert(seeded)

	rec := srv.do(t, http.MethodGet, "/api/contacts/", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list: expected 200, got %d", rec.Code)
	}
	var list struct {
		Contacts []contactView `json:"contacts"`
		Total    int           `json:"total"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatalf("failed to parse list: %v", err)
	}
	if list.Total != 1 || list.Contacts[0].LatestFeedback != "Interested" {
		t.Errorf("unexpected list payload: %+v", list)
	}

	rec = srv.do(t, http.MethodGet, "/api/contacts/9991112222", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get: expected 200, got %d", rec.Code)
	}
	var view contactView
	if err := json.Unmarshal(rec.Body.Bytes(), &view); err != nil {
		t.Fatalf("failed to parse contact: %v", err)
	}
	if view.Name != "Alice" || view.LastCalledAt != "2024-03-01 10:00:00" {
		t.Errorf("unexpected contact payload: %+v", view)
	}

	rec = srv.do(t, http.MethodGet, "/api/contacts/0000000", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown contact, got %d", rec.Code)
	}
}
