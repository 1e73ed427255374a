package conversation

import (
	"time"

	"market-voice-ledger/internal/models"
)

// Context is the mutable in-progress record of one seller/customer exchange.
// Owned exclusively by the machine; destroyed on completion or timeout.
type Context struct {
	ID            string
	Phase         Phase
	Product       string
	Quantity      int     // 0 until stated; defaults to 1 at completion
	UnitPrice     float64 // last price quoted wins
	TotalAmount   float64 // set no earlier than AGREEMENT
	CustomerRef   string
	EventIDs      []string
	MinConfidence float64
	UnknownRole   bool // any contributing event had an unknown speaker
	StartedAt     time.Time
	LastActivity  time.Time
}

func newContext(id string, now time.Time) *Context {
	return &Context{
		ID:            id,
		Phase:         PhaseIdle,
		MinConfidence: 1.0,
		StartedAt:     now,
		LastActivity:  now,
	}
}

// observe folds an event's bookkeeping into the context: contributing event
// IDs, the running minimum confidence, and the unknown-speaker flag.
func (c *Context) observe(ev *models.SpeechEvent, now time.Time) {
	c.EventIDs = append(c.EventIDs, ev.UtteranceID)
	if ev.Confidence < c.MinConfidence {
		c.MinConfidence = ev.Confidence
	}
	if ev.Role == models.RoleUnknown {
		c.UnknownRole = true
	}
	c.LastActivity = now
}

// quantityOrDefault returns the stated quantity, defaulting to a single unit.
func (c *Context) quantityOrDefault() int {
	if c.Quantity <= 0 {
		return 1
	}
	return c.Quantity
}
