// Package stt defines the speech-recognition contract consumed by the
// pipeline coordinator.
package stt

import (
	"context"

	"market-voice-ledger/internal/models"
)

// Result is a recognized transcript with its confidence score.
type Result struct {
	Transcript string
	Confidence float64
}

// Recognizer transcribes a sealed utterance. One request per utterance;
// streaming recognition is a provider concern hidden behind this interface.
type Recognizer interface {
	Recognize(ctx context.Context, u *models.Utterance, language string) (Result, error)
}
