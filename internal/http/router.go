// Package http exposes the read-only status surface consumed by dashboards.
package http

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"market-voice-ledger/internal/queue"
)

// StatusSource provides the live figures the status endpoint reports.
type StatusSource interface {
	QueueStats() queue.Stats
	ActiveConversations() int
	Uptime() time.Duration
}

// statusResponse is the /v1/status payload.
type statusResponse struct {
	UptimeSeconds       float64     `json:"uptimeSeconds"`
	ActiveConversations int         `json:"activeConversations"`
	PendingSync         bool        `json:"pendingSync"`
	Queue               queueStatus `json:"queue"`
}

type queueStatus struct {
	Pending          int     `json:"pending"`
	Failed           int     `json:"failed"`
	InFlight         int     `json:"inFlight"`
	OldestAgeSeconds float64 `json:"oldestAgeSeconds"`
	Online           bool    `json:"online"`
}

// NewRouter constructs the HTTP router for the service.
func NewRouter(src StatusSource) http.Handler {
	r := chi.NewRouter()

	// Basic middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	// Health endpoints
	r.Get("/v1/liveness", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/v1/readiness", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	r.Get("/v1/status", func(w http.ResponseWriter, _ *http.Request) {
		stats := src.QueueStats()
		resp := statusResponse{
			UptimeSeconds:       src.Uptime().Seconds(),
			ActiveConversations: src.ActiveConversations(),
			PendingSync:         stats.PendingSync(),
			Queue: queueStatus{
				Pending:          stats.Pending,
				Failed:           stats.Failed,
				InFlight:         stats.InFlight,
				OldestAgeSeconds: stats.OldestAge.Seconds(),
				Online:           stats.Online,
			},
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(resp)
	})

	return r
}
