package conversation

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"market-voice-ledger/internal/config"
	"market-voice-ledger/internal/models"
	"market-voice-ledger/internal/observability/logging"
	"market-voice-ledger/internal/observability/metrics"
)

// OutcomeKind classifies what an event (or a sweep) did to a conversation.
type OutcomeKind int

const (
	// OutcomeNoChange - Event consumed, phase unchanged.
	OutcomeNoChange OutcomeKind = iota
	// OutcomeTransitioned - Conversation advanced to a new phase.
	OutcomeTransitioned
	// OutcomeCompleted - A transaction was materialized; context destroyed.
	OutcomeCompleted
	// OutcomeTimedOut - Context discarded after the inactivity window.
	// No partial transaction is ever emitted.
	OutcomeTimedOut
)

// Outcome reports the effect of one event or sweep step.
type Outcome struct {
	Kind           OutcomeKind
	ConversationID string
	Phase          Phase
	Transaction    *models.Transaction
}

// Completion errors. A conversation missing required fields never completes;
// it silently times out instead.
var (
	errNoProduct = errors.New("no product identified")
	errNoAmount  = errors.New("no price or total amount")
)

// Machine drives per-conversation sale lifecycles. Contexts live in an arena
// keyed by conversation ID with explicit creation and eviction, so timeout
// and memory bounds stay deterministic. All mutation happens under one lock:
// events arrive from the single pipeline dispatcher, sweeps from a timer.
type Machine struct {
	mu       sync.Mutex
	cfg      config.ConversationConfig
	rules    []rule
	contexts map[string]*Context
	m        *metrics.Metrics
	log      zerolog.Logger

	now func() time.Time // test hook
}

// New creates a machine with the default transition table.
func New(cfg config.ConversationConfig) *Machine {
	if cfg.MaxLive <= 0 {
		cfg.MaxLive = 32
	}
	return &Machine{
		cfg:      cfg,
		rules:    defaultRules(),
		contexts: make(map[string]*Context),
		m:        metrics.DefaultMetrics,
		log:      logging.WithComponent("conversation"),
		now:      time.Now,
	}
}

// Active returns the number of live conversation contexts.
func (m *Machine) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.contexts)
}

// OnEvent consumes one speech event and reports what it did. Events for the
// same conversation must arrive in temporal order; the pipeline guarantees
// this.
func (m *Machine) OnEvent(ev *models.SpeechEvent) Outcome {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	cx, ok := m.contexts[ev.ConversationID]
	if !ok {
		m.evictForRoom(now)
		cx = newContext(ev.ConversationID, now)
		m.contexts[ev.ConversationID] = cx
		m.m.ConversationsStarted.Inc()
		m.m.ConversationsActive.Set(float64(len(m.contexts)))
	}

	cx.observe(ev, now)
	text := normalize(ev.Transcript)
	captureEntities(cx, text)

	for _, r := range m.rules {
		if !r.when(cx, ev, text) {
			continue
		}
		next := r.then(cx, ev, text)
		m.log.Debug().
			Str("conversationId", cx.ID).
			Str("rule", r.name).
			Str("from", cx.Phase.String()).
			Str("to", next.String()).
			Msg("rule fired")

		if next == PhaseComplete {
			tx, err := m.materialize(cx, ev.Timestamp)
			if err != nil {
				// Missing fields: stay put and let the timeout
				// discard the conversation.
				m.log.Debug().
					Str("conversationId", cx.ID).
					Err(err).
					Msg("completion trigger without required fields")
				return Outcome{Kind: OutcomeNoChange, ConversationID: cx.ID, Phase: cx.Phase}
			}
			m.destroy(cx.ID)
			return Outcome{Kind: OutcomeCompleted, ConversationID: cx.ID, Phase: PhaseComplete, Transaction: tx}
		}
		if next != cx.Phase {
			cx.Phase = next
			m.m.PhaseTransitions.WithLabelValues(next.String()).Inc()
			return Outcome{Kind: OutcomeTransitioned, ConversationID: cx.ID, Phase: next}
		}
		return Outcome{Kind: OutcomeNoChange, ConversationID: cx.ID, Phase: cx.Phase}
	}
	return Outcome{Kind: OutcomeNoChange, ConversationID: cx.ID, Phase: cx.Phase}
}

// Sweep expires conversations idle past the inactivity window. A conversation
// parked in PAYMENT with all required fields completes on the fixed delay;
// everything else is discarded silently.
func (m *Machine) Sweep(now time.Time) []Outcome {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Outcome
	for id, cx := range m.contexts {
		if now.Sub(cx.LastActivity) < m.cfg.InactivityTimeout {
			continue
		}
		if cx.Phase == PhasePayment {
			if tx, err := m.materialize(cx, cx.LastActivity); err == nil {
				m.destroy(id)
				out = append(out, Outcome{Kind: OutcomeCompleted, ConversationID: id, Phase: PhaseComplete, Transaction: tx})
				continue
			}
		}
		m.destroy(id)
		m.m.ConversationsTimedOut.Inc()
		m.log.Info().
			Str("conversationId", id).
			Str("phase", cx.Phase.String()).
			Msg("conversation timed out")
		out = append(out, Outcome{Kind: OutcomeTimedOut, ConversationID: id, Phase: PhaseIdle})
	}
	return out
}

// materialize builds the immutable transaction, or reports why it cannot.
// Quantity defaults to 1; the total falls back to unit price x quantity.
func (m *Machine) materialize(cx *Context, ts time.Time) (*models.Transaction, error) {
	if cx.Product == "" {
		return nil, errNoProduct
	}
	qty := cx.quantityOrDefault()
	total := cx.TotalAmount
	unit := cx.UnitPrice
	if total == 0 {
		if unit == 0 {
			return nil, errNoAmount
		}
		total = unit * float64(qty)
	}
	if unit == 0 {
		unit = total / float64(qty)
	}

	tx := &models.Transaction{
		ID:             uuid.NewString(),
		ConversationID: cx.ID,
		Product:        cx.Product,
		Quantity:       qty,
		UnitPrice:      unit,
		TotalAmount:    total,
		Currency:       m.cfg.Currency,
		CustomerRef:    cx.CustomerRef,
		Confidence:     cx.MinConfidence,
		NeedsReview:    cx.MinConfidence < m.cfg.ReviewThreshold || cx.UnknownRole,
		EventIDs:       append([]string(nil), cx.EventIDs...),
		Timestamp:      ts.UTC(),
	}

	m.m.TransactionsCompleted.Inc()
	if tx.NeedsReview {
		m.m.TransactionsForReview.Inc()
	}
	m.log.Info().
		Str("conversationId", cx.ID).
		Str("product", tx.Product).
		Float64("total", tx.TotalAmount).
		Bool("needsReview", tx.NeedsReview).
		Msg("transaction completed")
	return tx, nil
}

// evictForRoom drops the stalest context when the arena is full, counting it
// as a timeout.
func (m *Machine) evictForRoom(now time.Time) {
	if len(m.contexts) < m.cfg.MaxLive {
		return
	}
	var oldest *Context
	for _, cx := range m.contexts {
		if oldest == nil || cx.LastActivity.Before(oldest.LastActivity) {
			oldest = cx
		}
	}
	if oldest != nil {
		m.destroy(oldest.ID)
		m.m.ConversationsTimedOut.Inc()
		m.log.Warn().
			Str("conversationId", oldest.ID).
			Msg("arena full, evicting stalest conversation")
	}
}

func (m *Machine) destroy(id string) {
	delete(m.contexts, id)
	m.m.ConversationsActive.Set(float64(len(m.contexts)))
}
