// Package vad defines the voice-activity detection contract consumed by the
// segmenter, plus a self-contained energy-based fallback detector.
package vad

import (
	"context"

	"market-voice-ledger/internal/models"
)

// Result is a per-frame speech/silence decision.
type Result struct {
	IsSpeech   bool
	Confidence float64
}

// Detector classifies a single audio frame. Implementations may call out to a
// model server; the segmenter treats any error as silence.
type Detector interface {
	Classify(ctx context.Context, frame models.AudioFrame) (Result, error)
}
