package vad

import (
	"context"
	"math"

	"market-voice-ledger/internal/models"
)

// EnergyDetector is a fallback detector that thresholds the RMS energy of a
// frame. It needs no model and never fails, which makes it the default when
// no external detector is wired.
type EnergyDetector struct {
	// Threshold is the normalized RMS level ([0,1]) above which a frame
	// counts as speech.
	Threshold float64
}

// NewEnergyDetector returns a detector with the given normalized threshold.
func NewEnergyDetector(threshold float64) *EnergyDetector {
	if threshold <= 0 {
		threshold = 0.02
	}
	return &EnergyDetector{Threshold: threshold}
}

// Classify thresholds the frame's RMS energy.
func (d *EnergyDetector) Classify(_ context.Context, frame models.AudioFrame) (Result, error) {
	rms := RMS(frame.Samples)
	conf := rms / d.Threshold
	if conf > 1 {
		conf = 1
	}
	return Result{
		IsSpeech:   rms >= d.Threshold,
		Confidence: conf,
	}, nil
}

// RMS returns the root-mean-square level of the samples, normalized to [0,1].
func RMS(samples []int16) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		v := float64(s) / math.MaxInt16
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(samples)))
}
