// Package mock provides a scripted recognizer for tests and the simulator,
// so the full chain can run without cloud credentials.
package mock

import (
	"context"
	"sync"

	"market-voice-ledger/internal/models"
	"market-voice-ledger/internal/service/stt"
)

// DefaultScript is a typical market haggle. Paired with the alternating mock
// identifier, it drives a conversation all the way to a completed sale.
var DefaultScript = []stt.Result{
	{Transcript: "How much is the tilapia?", Confidence: 0.94},
	{Transcript: "15 cedis per kilo", Confidence: 0.96},
	{Transcript: "Reduce small", Confidence: 0.91},
	{Transcript: "Okay 13 cedis final", Confidence: 0.95},
	{Transcript: "Here is 50 cedis", Confidence: 0.93},
	{Transcript: "Thank you, medaase", Confidence: 0.97},
}

// Adapter implements stt.Recognizer with scripted transcripts, one per
// utterance, cycling when the script runs out.
type Adapter struct {
	mu     sync.Mutex
	Script []stt.Result
	next   int
}

// New creates a recognizer that replays DefaultScript.
func New() *Adapter {
	return &Adapter{Script: DefaultScript}
}

// Recognize returns the next scripted transcript.
func (a *Adapter) Recognize(_ context.Context, _ *models.Utterance, _ string) (stt.Result, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.Script) == 0 {
		return stt.Result{}, nil
	}
	r := a.Script[a.next%len(a.Script)]
	a.next++
	return r, nil
}
