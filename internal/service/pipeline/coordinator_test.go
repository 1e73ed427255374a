package pipeline

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"market-voice-ledger/internal/config"
	"market-voice-ledger/internal/models"
	"market-voice-ledger/internal/service/speaker"
	"market-voice-ledger/internal/service/stt"
)

type funcIdentifier func(ctx context.Context, u *models.Utterance) (speaker.Result, error)

func (f funcIdentifier) Identify(ctx context.Context, u *models.Utterance) (speaker.Result, error) {
	return f(ctx, u)
}

type funcRecognizer func(ctx context.Context, u *models.Utterance, language string) (stt.Result, error)

func (f funcRecognizer) Recognize(ctx context.Context, u *models.Utterance, language string) (stt.Result, error) {
	return f(ctx, u, language)
}

func staticIdentifier(role models.SpeakerRole, conf float64) funcIdentifier {
	return func(context.Context, *models.Utterance) (speaker.Result, error) {
		return speaker.Result{Role: role, Confidence: conf}, nil
	}
}

func echoRecognizer(conf float64) funcRecognizer {
	return func(_ context.Context, u *models.Utterance, _ string) (stt.Result, error) {
		return stt.Result{Transcript: u.ID, Confidence: conf}, nil
	}
}

func testPipelineConfig() config.PipelineConfig {
	return config.PipelineConfig{Workers: 2, QueueSize: 8, CallTimeout: time.Second}
}

func utt(id, conv string) *models.Utterance {
	return &models.Utterance{
		ID:             id,
		ConversationID: conv,
		SampleRate:     16000,
		End:            time.Unix(2000, 0).UTC(),
	}
}

func TestProcess_CombinesMinimumConfidence(t *testing.T) {
	c := New(staticIdentifier(models.RoleSeller, 0.9), echoRecognizer(0.8), testPipelineConfig(), "en-GH", nil)

	u := utt("u1", "conv")
	ev, err := c.Process(context.Background(), u)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ev.Role != models.RoleSeller {
		t.Errorf("role = %s, want seller", ev.Role)
	}
	if ev.Confidence != 0.8 {
		t.Errorf("confidence = %f, want 0.8 (minimum of the pair)", ev.Confidence)
	}
	if !ev.Timestamp.Equal(u.End) {
		t.Errorf("timestamp = %v, want utterance end %v", ev.Timestamp, u.End)
	}
}

func TestProcess_EmptyTranscriptDropped(t *testing.T) {
	rec := funcRecognizer(func(context.Context, *models.Utterance, string) (stt.Result, error) {
		return stt.Result{Transcript: "   ", Confidence: 0.9}, nil
	})
	c := New(staticIdentifier(models.RoleSeller, 0.9), rec, testPipelineConfig(), "en-GH", nil)

	ev, err := c.Process(context.Background(), utt("u1", "conv"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ev != nil {
		t.Errorf("expected empty transcript to drop the event, got %+v", ev)
	}
}

func TestProcess_RecognizerRetriesOnce(t *testing.T) {
	var calls int32
	rec := funcRecognizer(func(_ context.Context, u *models.Utterance, _ string) (stt.Result, error) {
		if atomic.AddInt32(&calls, 1) == 1 {
			return stt.Result{}, errors.New("transient")
		}
		return stt.Result{Transcript: "ok", Confidence: 0.9}, nil
	})
	c := New(staticIdentifier(models.RoleSeller, 0.9), rec, testPipelineConfig(), "en-GH", nil)

	ev, err := c.Process(context.Background(), utt("u1", "conv"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ev == nil || ev.Transcript != "ok" {
		t.Fatalf("expected event after one retry, got %+v", ev)
	}
	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Errorf("recognizer called %d times, want 2", got)
	}
}

func TestProcess_RecognizerFailureDropsUtterance(t *testing.T) {
	var calls int32
	rec := funcRecognizer(func(context.Context, *models.Utterance, string) (stt.Result, error) {
		atomic.AddInt32(&calls, 1)
		return stt.Result{}, errors.New("service down")
	})
	c := New(staticIdentifier(models.RoleSeller, 0.9), rec, testPipelineConfig(), "en-GH", nil)

	ev, err := c.Process(context.Background(), utt("u1", "conv"))
	if ev != nil {
		t.Fatalf("expected no event, got %+v", ev)
	}
	var perr *Error
	if !errors.As(err, &perr) {
		t.Fatalf("error type = %T, want *pipeline.Error", err)
	}
	if perr.Stage != "recognize" {
		t.Errorf("stage = %s, want recognize", perr.Stage)
	}
	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Errorf("recognizer called %d times, want 2 (one retry, no backoff)", got)
	}
}

func TestProcess_IdentifierFailureDegradesToUnknown(t *testing.T) {
	id := funcIdentifier(func(context.Context, *models.Utterance) (speaker.Result, error) {
		return speaker.Result{}, errors.New("no voiceprint")
	})
	c := New(id, echoRecognizer(0.9), testPipelineConfig(), "en-GH", nil)

	ev, err := c.Process(context.Background(), utt("u1", "conv"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ev.Role != models.RoleUnknown {
		t.Errorf("role = %s, want unknown", ev.Role)
	}
	if ev.Confidence != 0 {
		t.Errorf("confidence = %f, want 0 after identification failure", ev.Confidence)
	}
}

func TestCoordinator_DeliversInSealOrder(t *testing.T) {
	// The first utterance is slow, so workers finish out of order and the
	// sequencer must reorder before the handler sees anything.
	delays := map[string]time.Duration{"u1": 150 * time.Millisecond}
	rec := funcRecognizer(func(_ context.Context, u *models.Utterance, _ string) (stt.Result, error) {
		time.Sleep(delays[u.ID])
		return stt.Result{Transcript: u.ID, Confidence: 0.9}, nil
	})

	var mu sync.Mutex
	var got []string
	handler := func(ev *models.SpeechEvent) {
		mu.Lock()
		got = append(got, ev.Transcript)
		mu.Unlock()
	}

	c := New(staticIdentifier(models.RoleSeller, 0.9), rec, testPipelineConfig(), "en-GH", handler)
	c.Start(context.Background())
	for _, id := range []string{"u1", "u2", "u3", "u4"} {
		if !c.Submit(utt(id, "conv")) {
			t.Fatalf("submit %s rejected", id)
		}
	}
	c.Stop()

	want := []string{"u1", "u2", "u3", "u4"}
	if len(got) != len(want) {
		t.Fatalf("handler saw %d events, want %d: %v", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("event order = %v, want %v", got, want)
		}
	}
}

func TestCoordinator_DroppedUtteranceDoesNotStallSequence(t *testing.T) {
	// u2's recognition fails both attempts; u3 must still reach the handler.
	rec := funcRecognizer(func(_ context.Context, u *models.Utterance, _ string) (stt.Result, error) {
		if u.ID == "u2" {
			return stt.Result{}, errors.New("garbled")
		}
		return stt.Result{Transcript: u.ID, Confidence: 0.9}, nil
	})

	var mu sync.Mutex
	var got []string
	handler := func(ev *models.SpeechEvent) {
		mu.Lock()
		got = append(got, ev.Transcript)
		mu.Unlock()
	}

	c := New(staticIdentifier(models.RoleSeller, 0.9), rec, testPipelineConfig(), "en-GH", handler)
	c.Start(context.Background())
	for _, id := range []string{"u1", "u2", "u3"} {
		c.Submit(utt(id, "conv"))
	}
	c.Stop()

	want := []string{"u1", "u3"}
	if len(got) != 2 || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("event order = %v, want %v", got, want)
	}
}

func TestSubmit_BackpressureDropsInsteadOfBlocking(t *testing.T) {
	cfg := config.PipelineConfig{Workers: 1, QueueSize: 1, CallTimeout: time.Second}

	var mu sync.Mutex
	var got []string
	handler := func(ev *models.SpeechEvent) {
		mu.Lock()
		got = append(got, ev.Transcript)
		mu.Unlock()
	}

	// Not started yet: the queue holds one task, the second must be refused
	// immediately.
	c := New(staticIdentifier(models.RoleSeller, 0.9), echoRecognizer(0.9), cfg, "en-GH", handler)
	if !c.Submit(utt("u1", "conv")) {
		t.Fatal("first submit rejected with empty queue")
	}
	if c.Submit(utt("u2", "conv")) {
		t.Fatal("second submit accepted past the queue bound")
	}

	c.Start(context.Background())
	c.Stop()

	if len(got) != 1 || got[0] != "u1" {
		t.Fatalf("handler saw %v, want just u1", got)
	}
}
