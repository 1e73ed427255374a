// Package connectivity reports whether the remote sink is reachable and
// notifies the queue when the state flips.
package connectivity

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"market-voice-ledger/internal/observability/logging"
)

// Monitor reports the current link state. Changes delivers transitions
// (true = came online) so the queue can sweep immediately on reconnect.
type Monitor interface {
	IsOnline() bool
	Changes() <-chan bool
}

// Static is a manually toggled monitor, for tests and wired deployments
// without a probe target.
type Static struct {
	mu      sync.Mutex
	online  bool
	changes chan bool
}

// NewStatic creates a monitor fixed at the given initial state.
func NewStatic(online bool) *Static {
	return &Static{online: online, changes: make(chan bool, 4)}
}

// IsOnline reports the current state.
func (s *Static) IsOnline() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.online
}

// Changes returns the transition stream.
func (s *Static) Changes() <-chan bool { return s.changes }

// SetOnline flips the state, notifying on actual transitions only.
func (s *Static) SetOnline(online bool) {
	s.mu.Lock()
	changed := s.online != online
	s.online = online
	s.mu.Unlock()
	if changed {
		select {
		case s.changes <- online:
		default:
		}
	}
}

// Probe polls an HTTP endpoint to decide reachability. A HEAD request that
// returns any response counts as online; only transport errors count as
// offline.
type Probe struct {
	url      string
	interval time.Duration
	client   *http.Client
	state    *Static
	log      zerolog.Logger
}

// NewProbe creates a probe monitor. It reports offline until the first
// successful check.
func NewProbe(url string, interval time.Duration) *Probe {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Probe{
		url:      url,
		interval: interval,
		client:   &http.Client{Timeout: 5 * time.Second},
		state:    NewStatic(false),
		log:      logging.WithComponent("connectivity"),
	}
}

// IsOnline reports the last probed state.
func (p *Probe) IsOnline() bool { return p.state.IsOnline() }

// Changes returns the transition stream.
func (p *Probe) Changes() <-chan bool { return p.state.Changes() }

// Run probes until the context is cancelled.
func (p *Probe) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.check(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.check(ctx)
		}
	}
}

func (p *Probe) check(ctx context.Context) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, p.url, nil)
	if err != nil {
		p.state.SetOnline(false)
		return
	}
	resp, err := p.client.Do(req)
	if err != nil {
		if p.IsOnline() {
			p.log.Info().Str("url", p.url).Msg("connectivity lost")
		}
		p.state.SetOnline(false)
		return
	}
	resp.Body.Close()
	if !p.IsOnline() {
		p.log.Info().Str("url", p.url).Msg("connectivity regained")
	}
	p.state.SetOnline(true)
}
