package segmenter

import (
	"context"
	"errors"
	"testing"
	"time"

	"market-voice-ledger/internal/config"
	"market-voice-ledger/internal/models"
	"market-voice-ledger/internal/service/vad"
)

const testRate = 16000

func testConfig() config.SegmenterConfig {
	return config.SegmenterConfig{
		SilenceCarry:   400 * time.Millisecond,
		MaxDuration:    2 * time.Second,
		MinSpeech:      300 * time.Millisecond,
		ClassifyBudget: 10 * time.Millisecond,
		VADThreshold:   0.5,
	}
}

// markerDetector classifies a frame as speech when its first sample is
// nonzero, so tests control the verdict through frame content.
type markerDetector struct{}

func (markerDetector) Classify(_ context.Context, f models.AudioFrame) (vad.Result, error) {
	if len(f.Samples) > 0 && f.Samples[0] != 0 {
		return vad.Result{IsSpeech: true, Confidence: 1}, nil
	}
	return vad.Result{}, nil
}

// scriptedDetector replays a fixed sequence of classifications.
type scriptedDetector struct {
	steps []scriptedStep
	n     int
}

type scriptedStep struct {
	res vad.Result
	err error
}

func (d *scriptedDetector) Classify(_ context.Context, _ models.AudioFrame) (vad.Result, error) {
	s := d.steps[len(d.steps)-1]
	if d.n < len(d.steps) {
		s = d.steps[d.n]
	}
	d.n++
	return s.res, s.err
}

// feed pushes count frames of the given kind, returning any sealed utterances.
type feed struct {
	s     *Segmenter
	clock time.Time
	seq   uint64
}

func newFeed(s *Segmenter) *feed {
	return &feed{s: s, clock: time.Unix(1000, 0).UTC()}
}

func (f *feed) push(t *testing.T, count int, loud bool) []*models.Utterance {
	t.Helper()
	var sealed []*models.Utterance
	samples := make([]int16, testRate/10) // 100ms
	if loud {
		for i := range samples {
			samples[i] = 8000
		}
	}
	for i := 0; i < count; i++ {
		f.seq++
		u := f.s.PushFrame(context.Background(), models.AudioFrame{
			Samples:    samples,
			SampleRate: testRate,
			Seq:        f.seq,
			Timestamp:  f.clock,
		})
		f.clock = f.clock.Add(100 * time.Millisecond)
		if u != nil {
			sealed = append(sealed, u)
		}
	}
	return sealed
}

func TestPushFrame_SealsOnSilenceCarry(t *testing.T) {
	s := New(markerDetector{}, testConfig(), "conv-a")
	f := newFeed(s)

	if got := f.push(t, 6, true); len(got) != 0 {
		t.Fatalf("speech frames sealed %d utterances, want 0", len(got))
	}
	sealed := f.push(t, 4, false)
	if len(sealed) != 1 {
		t.Fatalf("got %d sealed utterances, want 1", len(sealed))
	}

	u := sealed[0]
	if u.Sealed != models.SealSilence {
		t.Errorf("seal reason = %s, want %s", u.Sealed, models.SealSilence)
	}
	if u.ConversationID != "conv-a" {
		t.Errorf("conversation id = %s, want conv-a", u.ConversationID)
	}
	// Speech plus the carried trailing silence.
	if want := time.Second; u.Duration() != want {
		t.Errorf("duration = %s, want %s", u.Duration(), want)
	}
	if u.End.Sub(u.Start) != time.Second {
		t.Errorf("timestamp span = %s, want 1s", u.End.Sub(u.Start))
	}
}

func TestPushFrame_NeverExceedsMaxDuration(t *testing.T) {
	cfg := testConfig()
	cfg.MaxDuration = time.Second
	s := New(markerDetector{}, cfg, "conv-a")
	f := newFeed(s)

	sealed := f.push(t, 25, true)
	if len(sealed) != 2 {
		t.Fatalf("got %d sealed utterances, want 2", len(sealed))
	}
	for _, u := range sealed {
		if u.Sealed != models.SealMaxDuration {
			t.Errorf("seal reason = %s, want %s", u.Sealed, models.SealMaxDuration)
		}
		if u.Duration() > cfg.MaxDuration {
			t.Errorf("utterance duration %s exceeds cap %s", u.Duration(), cfg.MaxDuration)
		}
	}
}

func TestPushFrame_PureSilenceAllocatesNothing(t *testing.T) {
	s := New(markerDetector{}, testConfig(), "conv-a")
	f := newFeed(s)
	if got := f.push(t, 50, false); len(got) != 0 {
		t.Fatalf("silence sealed %d utterances, want 0", len(got))
	}
	if u := s.Flush(); u != nil {
		t.Errorf("flush after pure silence returned %v, want nil", u)
	}
}

func TestPushFrame_ShortBurstDiscarded(t *testing.T) {
	s := New(markerDetector{}, testConfig(), "conv-a")
	f := newFeed(s)

	// 200ms of speech is below the 300ms floor.
	f.push(t, 2, true)
	if got := f.push(t, 5, false); len(got) != 0 {
		t.Fatalf("short burst sealed %d utterances, want 0", len(got))
	}
}

func TestPushFrame_DetectorErrorIsSilence(t *testing.T) {
	steps := make([]scriptedStep, 0, 10)
	for i := 0; i < 6; i++ {
		steps = append(steps, scriptedStep{res: vad.Result{IsSpeech: true, Confidence: 1}})
	}
	steps = append(steps, scriptedStep{err: errors.New("model crashed")})
	det := &scriptedDetector{steps: steps}

	s := New(det, testConfig(), "conv-a")
	f := newFeed(s)

	f.push(t, 6, true)
	// Every classification now errors; the frames must count as silence
	// and close the utterance instead of growing it.
	sealed := f.push(t, 4, true)
	if len(sealed) != 1 {
		t.Fatalf("got %d sealed utterances, want 1", len(sealed))
	}
	if sealed[0].Sealed != models.SealSilence {
		t.Errorf("seal reason = %s, want %s", sealed[0].Sealed, models.SealSilence)
	}
}

func TestPushFrame_LowConfidenceIsSilence(t *testing.T) {
	det := &scriptedDetector{steps: []scriptedStep{
		{res: vad.Result{IsSpeech: true, Confidence: 0.3}},
	}}
	s := New(det, testConfig(), "conv-a")
	f := newFeed(s)

	if got := f.push(t, 10, true); len(got) != 0 {
		t.Fatalf("low-confidence frames sealed %d utterances, want 0", len(got))
	}
	if u := s.Flush(); u != nil {
		t.Error("low-confidence frames opened an utterance")
	}
}

func TestFlush_SealsOpenUtterance(t *testing.T) {
	s := New(markerDetector{}, testConfig(), "conv-a")
	f := newFeed(s)

	f.push(t, 5, true)
	u := s.Flush()
	if u == nil {
		t.Fatal("flush returned nil for an open utterance")
	}
	if u.Sealed != models.SealFlush {
		t.Errorf("seal reason = %s, want %s", u.Sealed, models.SealFlush)
	}
	if want := 500 * time.Millisecond; u.Duration() != want {
		t.Errorf("duration = %s, want %s", u.Duration(), want)
	}
	if s.Flush() != nil {
		t.Error("second flush returned an utterance")
	}
}

func TestGenerator_MonotonicIDs(t *testing.T) {
	g := NewGenerator()
	first := g.Next("conv-a")
	second := g.Next("conv-a")
	if first != "conv-a-utt-1" {
		t.Errorf("first id = %s, want conv-a-utt-1", first)
	}
	if second != "conv-a-utt-2" {
		t.Errorf("second id = %s, want conv-a-utt-2", second)
	}
}
