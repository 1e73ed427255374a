package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"market-voice-ledger/internal/queue"
)

type fakeSource struct {
	stats  queue.Stats
	active int
	uptime time.Duration
}

func (f fakeSource) QueueStats() queue.Stats  { return f.stats }
func (f fakeSource) ActiveConversations() int { return f.active }
func (f fakeSource) Uptime() time.Duration    { return f.uptime }

func TestRouter_Health(t *testing.T) {
	r := NewRouter(fakeSource{})
	for _, path := range []string{"/v1/liveness", "/v1/readiness"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Errorf("%s returned %d, want 200", path, w.Code)
		}
	}
}

func TestRouter_Status(t *testing.T) {
	src := fakeSource{
		stats: queue.Stats{
			Pending:   2,
			Failed:    1,
			OldestAge: 90 * time.Second,
			Online:    false,
		},
		active: 3,
		uptime: time.Minute,
	}
	r := NewRouter(src)

	req := httptest.NewRequest(http.MethodGet, "/v1/status", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status endpoint returned %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("content type = %q", ct)
	}

	var resp statusResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.UptimeSeconds != 60 {
		t.Errorf("uptime = %f, want 60", resp.UptimeSeconds)
	}
	if resp.ActiveConversations != 3 {
		t.Errorf("active conversations = %d, want 3", resp.ActiveConversations)
	}
	if !resp.PendingSync {
		t.Error("pending sync not reported with queued work")
	}
	if resp.Queue.Pending != 2 || resp.Queue.Failed != 1 {
		t.Errorf("queue counts = %+v", resp.Queue)
	}
	if resp.Queue.OldestAgeSeconds != 90 {
		t.Errorf("oldest age = %f, want 90", resp.Queue.OldestAgeSeconds)
	}
	if resp.Queue.Online {
		t.Error("queue reported online while offline")
	}
}
