// Package speaker defines the speaker-identification contract consumed by the
// pipeline coordinator.
package speaker

import (
	"context"

	"market-voice-ledger/internal/models"
)

// Result is the outcome of identifying who produced an utterance.
type Result struct {
	Role       models.SpeakerRole
	Confidence float64
}

// Identifier assigns a speaker role to utterance audio. Implementations wrap
// a voice-print model or a remote service; a failed identification degrades
// to RoleUnknown with zero confidence rather than failing the pipeline.
type Identifier interface {
	Identify(ctx context.Context, u *models.Utterance) (Result, error)
}
