// Package app wires the ledger core together: segmenter, pipeline,
// conversation machine, offline queue and the observability surfaces.
package app

import (
	"context"
	"fmt"
	nethttp "net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"market-voice-ledger/internal/config"
	"market-voice-ledger/internal/connectivity"
	ledgerhttp "market-voice-ledger/internal/http"
	"market-voice-ledger/internal/models"
	"market-voice-ledger/internal/observability"
	"market-voice-ledger/internal/observability/logging"
	"market-voice-ledger/internal/queue"
	"market-voice-ledger/internal/service/conversation"
	"market-voice-ledger/internal/service/pipeline"
	"market-voice-ledger/internal/service/segmenter"
	"market-voice-ledger/internal/service/speaker"
	speakermock "market-voice-ledger/internal/service/speaker/mock"
	"market-voice-ledger/internal/service/stt"
	sttgoogle "market-voice-ledger/internal/service/stt/google"
	sttmock "market-voice-ledger/internal/service/stt/mock"
	"market-voice-ledger/internal/service/vad"
	"market-voice-ledger/internal/sink"
)

// Options override the default collaborators, mainly for tests and the
// simulator.
type Options struct {
	Detector   vad.Detector
	Identifier speaker.Identifier
	Recognizer stt.Recognizer
	Monitor    connectivity.Monitor
	Sink       sink.Sink
}

// Application holds process-wide state for the ledger core.
type Application struct {
	StartupTime time.Time
	Cfg         *config.Configuration
	Logger      zerolog.Logger

	segmenter   *segmenter.Segmenter
	coordinator *pipeline.Coordinator
	machine     *conversation.Machine
	queue       *queue.Queue
	store       *queue.Store
	kafka       *sink.Kafka
	probe       *connectivity.Probe

	obs        *observability.Server
	httpServer *nethttp.Server

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New constructs the application from configuration, filling in any
// collaborator not supplied through opts.
func New(cfg *config.Configuration, opts Options) (*Application, error) {
	logging.Init(logging.Config{
		Level:   cfg.Observability.LogLevel,
		Env:     cfg.Service.Env,
		Service: cfg.Service.Principal,
	})

	a := &Application{
		Cfg:    cfg,
		Logger: logging.WithComponent("application"),
	}

	detector := opts.Detector
	if detector == nil {
		detector = vad.NewEnergyDetector(0)
	}

	identifier := opts.Identifier
	if identifier == nil {
		identifier = speakermock.New()
	}

	recognizer := opts.Recognizer
	if recognizer == nil {
		switch cfg.Pipeline.Provider {
		case "google":
			g, err := sttgoogle.New(context.Background())
			if err != nil {
				return nil, fmt.Errorf("google recognizer: %w", err)
			}
			recognizer = g
		default:
			recognizer = sttmock.New()
		}
	}

	monitor := opts.Monitor
	if monitor == nil {
		if cfg.Queue.ProbeURL != "" {
			a.probe = connectivity.NewProbe(cfg.Queue.ProbeURL, cfg.Queue.ProbeInterval)
			monitor = a.probe
		} else {
			monitor = connectivity.NewStatic(true)
		}
	}

	deliverySink := opts.Sink
	if deliverySink == nil {
		a.kafka = sink.NewKafka(cfg.Kafka)
		deliverySink = a.kafka
	}

	store, err := queue.OpenStore(cfg.Queue.DataDir)
	if err != nil {
		return nil, err
	}
	a.store = store

	q, err := queue.New(store, deliverySink, monitor, cfg.Queue)
	if err != nil {
		store.Close()
		return nil, err
	}
	a.queue = q

	a.machine = conversation.New(cfg.Conversation)
	a.coordinator = pipeline.New(identifier, recognizer, cfg.Pipeline, cfg.Audio.LanguageCode, a.handleEvent)

	conversationId := "conv-" + uuid.NewString()
	a.segmenter = segmenter.New(detector, cfg.Segmenter, conversationId)

	a.obs = observability.NewServer(":" + cfg.Observability.MetricsPort)
	a.httpServer = &nethttp.Server{
		Addr:         ":" + cfg.Service.HTTPPort,
		Handler:      ledgerhttp.NewRouter(a),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	a.Logger.Info().Str("conversationId", conversationId).Msg("market voice ledger application created")
	return a, nil
}

// Start launches background work: the pipeline pool, queue sweeps, the
// conversation sweep timer and both HTTP servers.
func (a *Application) Start(ctx context.Context) {
	a.StartupTime = time.Now().UTC()
	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	a.obs.Start()
	go func() {
		a.Logger.Info().Str("addr", a.httpServer.Addr).Msg("starting status HTTP server")
		if err := a.httpServer.ListenAndServe(); err != nil && err != nethttp.ErrServerClosed {
			a.Logger.Error().Err(err).Msg("status HTTP server error")
		}
	}()

	a.coordinator.Start(runCtx)

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.queue.Run(runCtx)
	}()

	if a.probe != nil {
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			a.probe.Run(runCtx)
		}()
	}

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		ticker := time.NewTicker(a.Cfg.Conversation.SweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				for _, o := range a.machine.Sweep(time.Now()) {
					if o.Kind == conversation.OutcomeCompleted {
						a.enqueueTransaction(o.Transaction)
					}
				}
			}
		}
	}()

	a.Logger.Info().Time("startupTime", a.StartupTime).Msg("market voice ledger started")
}

// PushFrame feeds one capture frame through the segmenter, handing any sealed
// utterance to the pipeline. Called from the audio producer; never blocks.
func (a *Application) PushFrame(ctx context.Context, frame models.AudioFrame) {
	if u := a.segmenter.PushFrame(ctx, frame); u != nil {
		a.coordinator.Submit(u)
	}
}

// handleEvent is the single consumer of the ordered speech-event stream.
func (a *Application) handleEvent(ev *models.SpeechEvent) {
	outcome := a.machine.OnEvent(ev)
	if outcome.Kind == conversation.OutcomeCompleted {
		a.enqueueTransaction(outcome.Transaction)
	}
}

// enqueueTransaction is the one-way handoff from the state machine to the
// offline queue.
func (a *Application) enqueueTransaction(tx *models.Transaction) {
	op, err := models.NewSyncOperation(tx)
	if err != nil {
		a.Logger.Error().Err(err).Str("transactionId", tx.ID).Msg("failed to wrap transaction")
		return
	}
	if err := a.queue.Enqueue(context.Background(), op); err != nil {
		a.Logger.Error().Err(err).Str("transactionId", tx.ID).Msg("failed to enqueue transaction")
	}
}

// Shutdown flushes in-flight work and releases resources. In-flight queue
// deliveries are never cancelled mid-attempt; incomplete conversations are
// discarded without emitting anything.
func (a *Application) Shutdown() {
	a.Logger.Info().Msg("market voice ledger shutting down")

	// Flush the open utterance, then drain the pipeline so submitted
	// utterances complete rather than being abandoned.
	if u := a.segmenter.Flush(); u != nil {
		a.coordinator.Submit(u)
	}
	a.coordinator.Stop()

	if a.cancel != nil {
		a.cancel()
	}
	a.wg.Wait()

	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.httpServer.Shutdown(sctx); err != nil {
		a.Logger.Warn().Err(err).Msg("status HTTP server shutdown")
	}
	if err := a.obs.Shutdown(sctx); err != nil {
		a.Logger.Warn().Err(err).Msg("observability server shutdown")
	}

	if a.kafka != nil {
		if err := a.kafka.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("kafka sink close")
		}
	}
	if err := a.store.Close(); err != nil {
		a.Logger.Warn().Err(err).Msg("queue store close")
	}
}

// QueueStats implements http.StatusSource.
func (a *Application) QueueStats() queue.Stats { return a.queue.Stats() }

// ActiveConversations implements http.StatusSource.
func (a *Application) ActiveConversations() int { return a.machine.Active() }

// Uptime implements http.StatusSource.
func (a *Application) Uptime() time.Duration { return time.Since(a.StartupTime) }

// Queue exposes the offline queue for callers that enqueue non-transaction
// operations or force a sweep.
func (a *Application) Queue() *queue.Queue { return a.queue }
