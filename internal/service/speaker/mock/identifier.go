// Package mock provides a scripted speaker identifier for tests and the
// simulator, where no voice-print model is available.
package mock

import (
	"context"
	"sync"

	"market-voice-ledger/internal/models"
	"market-voice-ledger/internal/service/speaker"
)

// Identifier returns roles from a fixed script, cycling when exhausted.
// The zero value alternates customer/seller, which matches how a two-party
// haggle usually runs.
type Identifier struct {
	mu     sync.Mutex
	Script []speaker.Result
	next   int
}

// New creates an identifier that alternates customer and seller at 0.95
// confidence.
func New() *Identifier {
	return &Identifier{
		Script: []speaker.Result{
			{Role: models.RoleCustomer, Confidence: 0.95},
			{Role: models.RoleSeller, Confidence: 0.95},
		},
	}
}

// Identify returns the next scripted result.
func (i *Identifier) Identify(_ context.Context, _ *models.Utterance) (speaker.Result, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if len(i.Script) == 0 {
		return speaker.Result{Role: models.RoleUnknown}, nil
	}
	r := i.Script[i.next%len(i.Script)]
	i.next++
	return r, nil
}
