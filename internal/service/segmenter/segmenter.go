// Package segmenter slices the continuous capture stream into discrete
// utterances bounded by silence.
package segmenter

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"market-voice-ledger/internal/config"
	"market-voice-ledger/internal/models"
	"market-voice-ledger/internal/observability/logging"
	"market-voice-ledger/internal/observability/metrics"
	"market-voice-ledger/internal/service/vad"
)

// Generator produces monotonically increasing utterance IDs for a conversation.
type Generator struct {
	counter uint64
}

// NewGenerator creates an utterance ID generator.
func NewGenerator() *Generator {
	return &Generator{}
}

// Next returns the next utterance ID for the given conversation.
func (g *Generator) Next(conversationId string) string {
	n := atomic.AddUint64(&g.counter, 1)
	return fmt.Sprintf("%s-utt-%d", conversationId, n)
}

// Segmenter accumulates speech-classified frames into utterances.
//
// PushFrame runs on the audio producer path and must complete well within one
// frame period: classification is bounded by a deadline and any detector
// failure is treated as silence, never as buffering.
type Segmenter struct {
	detector vad.Detector
	cfg      config.SegmenterConfig
	gen      *Generator
	convId   string
	m        *metrics.Metrics
	log      zerolog.Logger

	// open utterance state; owned exclusively by the caller's goroutine
	open     bool
	samples  []int16
	start    time.Time
	lastSeen time.Time
	rate     int
	silence  time.Duration
}

// New creates a segmenter for one conversation pairing.
func New(detector vad.Detector, cfg config.SegmenterConfig, conversationId string) *Segmenter {
	return &Segmenter{
		detector: detector,
		cfg:      cfg,
		gen:      NewGenerator(),
		convId:   conversationId,
		m:        metrics.DefaultMetrics,
		log:      logging.WithComponent("segmenter"),
	}
}

// PushFrame classifies one frame and returns a sealed utterance when the
// silence-carry window or the hard duration cap closes the current one.
// Returns nil for frames that seal nothing. Pure silence allocates nothing.
func (s *Segmenter) PushFrame(ctx context.Context, frame models.AudioFrame) *models.Utterance {
	s.m.FramesReceived.Inc()

	cctx, cancel := context.WithTimeout(ctx, s.cfg.ClassifyBudget)
	res, err := s.detector.Classify(cctx, frame)
	cancel()
	if err != nil {
		// Fail open toward not-recording: a broken detector must never
		// grow the buffer.
		s.m.VADErrors.Inc()
		res = vad.Result{IsSpeech: false}
	}

	// A frame counts as speech only when the detector is confident enough.
	isSpeech := res.IsSpeech && res.Confidence >= s.cfg.VADThreshold

	// Seal ahead of an append that would push past the hard cap, so no
	// utterance ever exceeds MaxDuration.
	var capped *models.Utterance
	if s.open && s.lastSeen.Add(frame.Duration()).Sub(s.start) > s.cfg.MaxDuration {
		capped = s.seal(models.SealMaxDuration)
	}

	if isSpeech {
		if !s.open {
			s.begin(frame)
		}
		s.append(frame)
		s.silence = 0
	} else if s.open {
		// Keep trailing silence inside the utterance so word endings
		// are not clipped.
		s.append(frame)
		s.silence += frame.Duration()
		if s.silence >= s.cfg.SilenceCarry {
			return s.seal(models.SealSilence)
		}
	}
	return capped
}

// Flush seals any open utterance, for pipeline shutdown.
func (s *Segmenter) Flush() *models.Utterance {
	if !s.open {
		return nil
	}
	return s.seal(models.SealFlush)
}

func (s *Segmenter) begin(frame models.AudioFrame) {
	s.open = true
	s.samples = s.samples[:0]
	s.start = frame.Timestamp
	s.rate = frame.SampleRate
	s.silence = 0
}

func (s *Segmenter) append(frame models.AudioFrame) {
	s.samples = append(s.samples, frame.Samples...)
	s.lastSeen = frame.Timestamp.Add(frame.Duration())
}

func (s *Segmenter) seal(reason models.SealReason) *models.Utterance {
	s.open = false

	speech := time.Duration(0)
	if s.rate > 0 {
		speech = time.Duration(len(s.samples)) * time.Second / time.Duration(s.rate)
	}
	if speech-s.silence < s.cfg.MinSpeech {
		s.m.UtterancesTooShort.Inc()
		s.samples = nil
		return nil
	}

	u := &models.Utterance{
		ID:             s.gen.Next(s.convId),
		ConversationID: s.convId,
		Samples:        append([]int16(nil), s.samples...),
		SampleRate:     s.rate,
		Start:          s.start,
		End:            s.lastSeen,
		Sealed:         reason,
	}
	// Ownership transfers downstream with the copy above.
	s.samples = nil

	s.m.UtterancesSealed.WithLabelValues(string(reason)).Inc()
	s.m.UtteranceDuration.Observe(u.Duration().Seconds())
	s.log.Debug().
		Str("utteranceId", u.ID).
		Str("reason", string(reason)).
		Dur("duration", u.Duration()).
		Msg("utterance sealed")
	return u
}
