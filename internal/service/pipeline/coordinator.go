// Package pipeline enriches sealed utterances into speech events by
// coordinating the speaker-identification and speech-recognition
// collaborators.
package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"market-voice-ledger/internal/config"
	"market-voice-ledger/internal/models"
	"market-voice-ledger/internal/observability/logging"
	"market-voice-ledger/internal/observability/metrics"
	"market-voice-ledger/internal/service/speaker"
	"market-voice-ledger/internal/service/stt"
)

// Error reports an utterance dropped after collaborator failures. Dropped
// utterances are acceptable; a pipeline error must never block the next one.
type Error struct {
	Stage       string
	UtteranceID string
	Err         error
}

func (e *Error) Error() string {
	return fmt.Sprintf("pipeline %s failed for utterance %s: %v", e.Stage, e.UtteranceID, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Handler consumes speech events in per-conversation order. There is exactly
// one logical consumer: the transaction state machine.
type Handler func(ev *models.SpeechEvent)

type task struct {
	u   *models.Utterance
	seq uint64
}

type result struct {
	conv string
	seq  uint64
	ev   *models.SpeechEvent // nil when the utterance was dropped
}

// Coordinator processes utterances on a small bounded worker pool. Utterances
// from different conversations interleave freely, but events for the same
// conversation reach the handler in seal order: a sequencer holds completed
// results until their predecessors finish, and dropped utterances still
// advance the sequence.
type Coordinator struct {
	identifier speaker.Identifier
	recognizer stt.Recognizer
	cfg        config.PipelineConfig
	language   string
	handler    Handler
	m          *metrics.Metrics
	log        zerolog.Logger

	mu      sync.Mutex
	nextSeq map[string]uint64

	tasks   chan task
	results chan result
	workers sync.WaitGroup
	dispat  sync.WaitGroup
}

// New creates a coordinator. The handler is invoked from a single dispatcher
// goroutine.
func New(identifier speaker.Identifier, recognizer stt.Recognizer, cfg config.PipelineConfig, language string, handler Handler) *Coordinator {
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 16
	}
	return &Coordinator{
		identifier: identifier,
		recognizer: recognizer,
		cfg:        cfg,
		language:   language,
		handler:    handler,
		m:          metrics.DefaultMetrics,
		log:        logging.WithComponent("pipeline"),
		nextSeq:    make(map[string]uint64),
		tasks:      make(chan task, cfg.QueueSize),
		results:    make(chan result, cfg.QueueSize+cfg.Workers),
	}
}

// Start launches the worker pool and the ordering dispatcher.
func (c *Coordinator) Start(ctx context.Context) {
	for i := 0; i < c.cfg.Workers; i++ {
		c.workers.Add(1)
		go c.worker(ctx)
	}
	c.dispat.Add(1)
	go c.dispatch()
}

// Submit hands a sealed utterance to the pool without blocking. Returns false
// when the queue is full; the utterance is dropped so the audio path is never
// stalled by slow collaborators.
func (c *Coordinator) Submit(u *models.Utterance) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	seq := c.nextSeq[u.ConversationID]
	select {
	case c.tasks <- task{u: u, seq: seq}:
		c.nextSeq[u.ConversationID] = seq + 1
		return true
	default:
		c.m.PipelineErrors.WithLabelValues("backpressure").Inc()
		c.log.Warn().
			Str("utteranceId", u.ID).
			Msg("pipeline queue full, utterance dropped")
		return false
	}
}

// Stop drains in-flight utterances and stops the pool. Submitted utterances
// are completed, not abandoned.
func (c *Coordinator) Stop() {
	close(c.tasks)
	c.workers.Wait()
	close(c.results)
	c.dispat.Wait()
}

func (c *Coordinator) worker(ctx context.Context) {
	defer c.workers.Done()
	for t := range c.tasks {
		ev, err := c.Process(ctx, t.u)
		if err != nil {
			c.log.Warn().
				Str("utteranceId", t.u.ID).
				Err(err).
				Msg("utterance dropped")
		}
		// Dropped utterances report a nil event so the sequencer can
		// advance past them.
		c.results <- result{conv: t.u.ConversationID, seq: t.seq, ev: ev}
	}
}

// dispatch releases events to the handler in per-conversation seal order.
func (c *Coordinator) dispatch() {
	defer c.dispat.Done()

	type cursor struct {
		next uint64
		held map[uint64]*models.SpeechEvent
	}
	conv := make(map[string]*cursor)

	for r := range c.results {
		cur, ok := conv[r.conv]
		if !ok {
			cur = &cursor{held: make(map[uint64]*models.SpeechEvent)}
			conv[r.conv] = cur
		}
		cur.held[r.seq] = r.ev
		for {
			ev, ok := cur.held[cur.next]
			if !ok {
				break
			}
			delete(cur.held, cur.next)
			cur.next++
			if ev != nil {
				c.handler(ev)
			}
		}
	}
}

// Process enriches one utterance. The speaker-ID and recognition calls run
// concurrently; the combined confidence is the minimum of the two, biasing
// toward caution. Empty transcripts return (nil, nil).
func (c *Coordinator) Process(ctx context.Context, u *models.Utterance) (*models.SpeechEvent, error) {
	start := time.Now()

	var (
		wg     sync.WaitGroup
		idRes  speaker.Result
		recRes stt.Result
		recErr error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		idRes = c.identify(ctx, u)
	}()
	go func() {
		defer wg.Done()
		recRes, recErr = c.recognize(ctx, u)
	}()
	wg.Wait()

	if recErr != nil {
		c.m.PipelineErrors.WithLabelValues("recognize").Inc()
		return nil, &Error{Stage: "recognize", UtteranceID: u.ID, Err: recErr}
	}

	ev := &models.SpeechEvent{
		UtteranceID:    u.ID,
		ConversationID: u.ConversationID,
		Role:           idRes.Role,
		Transcript:     recRes.Transcript,
		Confidence:     min(idRes.Confidence, recRes.Confidence),
		Timestamp:      u.End,
	}
	if ev.Empty() {
		c.m.EmptyTranscripts.Inc()
		return nil, nil
	}

	c.m.SpeechEvents.Inc()
	c.m.PipelineLatency.Observe(time.Since(start).Seconds())
	return ev, nil
}

// identify calls the speaker identifier with one local retry. A second
// failure degrades to RoleUnknown with zero confidence instead of dropping
// the utterance.
func (c *Coordinator) identify(ctx context.Context, u *models.Utterance) speaker.Result {
	res, err := c.callIdentify(ctx, u)
	if err != nil {
		c.m.CollaboratorRetries.WithLabelValues("identify").Inc()
		if res, err = c.callIdentify(ctx, u); err != nil {
			c.log.Debug().Str("utteranceId", u.ID).Err(err).Msg("speaker identification failed")
			return speaker.Result{Role: models.RoleUnknown, Confidence: 0}
		}
	}
	return res
}

func (c *Coordinator) callIdentify(ctx context.Context, u *models.Utterance) (speaker.Result, error) {
	cctx, cancel := context.WithTimeout(ctx, c.cfg.CallTimeout)
	defer cancel()
	return c.identifier.Identify(cctx, u)
}

// recognize calls the recognizer with one local retry, no backoff.
func (c *Coordinator) recognize(ctx context.Context, u *models.Utterance) (stt.Result, error) {
	res, err := c.callRecognize(ctx, u)
	if err != nil {
		c.m.CollaboratorRetries.WithLabelValues("recognize").Inc()
		res, err = c.callRecognize(ctx, u)
	}
	return res, err
}

func (c *Coordinator) callRecognize(ctx context.Context, u *models.Utterance) (stt.Result, error) {
	cctx, cancel := context.WithTimeout(ctx, c.cfg.CallTimeout)
	defer cancel()
	return c.recognizer.Recognize(cctx, u, c.language)
}
