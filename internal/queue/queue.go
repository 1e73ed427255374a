package queue

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"market-voice-ledger/internal/config"
	"market-voice-ledger/internal/connectivity"
	"market-voice-ledger/internal/models"
	"market-voice-ledger/internal/observability/logging"
	"market-voice-ledger/internal/observability/metrics"
	"market-voice-ledger/internal/schema"
	"market-voice-ledger/internal/sink"
)

// Stats is the read-only queue state surfaced to the status API.
type Stats struct {
	Pending   int           `json:"pending"`
	Failed    int           `json:"failed"`
	InFlight  int           `json:"inFlight"`
	OldestAge time.Duration `json:"oldestAge"`
	Online    bool          `json:"online"`
}

// PendingSync reports whether any operation is still awaiting delivery.
func (s Stats) PendingSync() bool {
	return s.Pending+s.Failed+s.InFlight > 0
}

// Queue owns every offline operation from creation to deletion. Enqueue is
// safe to call concurrently with a running sweep; the sweep iterates a
// snapshot and per-record state is guarded by the queue lock.
type Queue struct {
	store     *Store
	sink      sink.Sink
	monitor   connectivity.Monitor
	cfg       config.QueueConfig
	validator *schema.Validator
	m         *metrics.Metrics
	log       zerolog.Logger

	mu   sync.Mutex
	ops  map[string]*models.OfflineOperation
	wake chan struct{}

	now func() time.Time // test hook
}

// New opens the queue over an existing store. All non-done operations from
// previous process lifetimes are loaded before the queue accepts new ones;
// records stuck in_flight by a crash are demoted to pending, since their
// outcome is unknown and the sink is idempotent.
func New(store *Store, snk sink.Sink, monitor connectivity.Monitor, cfg config.QueueConfig) (*Queue, error) {
	q := &Queue{
		store:     store,
		sink:      snk,
		monitor:   monitor,
		cfg:       cfg,
		validator: schema.New(),
		m:         metrics.DefaultMetrics,
		log:       logging.WithComponent("queue"),
		ops:       make(map[string]*models.OfflineOperation),
		wake:      make(chan struct{}, 1),
		now:       time.Now,
	}

	stored, err := store.List()
	if err != nil {
		return nil, fmt.Errorf("queue startup load: %w", err)
	}
	for _, op := range stored {
		switch op.Status {
		case models.StatusDone:
			// Delivered but not cleaned up before the process died.
			if err := store.Delete(op.ID); err != nil {
				q.log.Warn().Str("operationId", op.ID).Err(err).Msg("failed to prune done operation")
			}
			continue
		case models.StatusInFlight:
			op.Status = models.StatusPending
			if err := store.Put(op); err != nil {
				return nil, fmt.Errorf("queue startup demote %s: %w", op.ID, err)
			}
		}
		q.ops[op.ID] = op
	}
	q.updateGauges()
	q.log.Info().Int("loaded", len(q.ops)).Msg("offline queue opened")
	return q, nil
}

// Enqueue validates and durably persists the operation with status pending
// before returning. A storage failure is returned to the caller and the
// operation is not accepted.
func (q *Queue) Enqueue(ctx context.Context, op *models.OfflineOperation) error {
	if err := q.validator.ValidateOperation(op); err != nil {
		return fmt.Errorf("invalid operation: %w", err)
	}
	op.Status = models.StatusPending
	if err := q.store.Put(op); err != nil {
		return fmt.Errorf("enqueue persist: %w", err)
	}

	q.mu.Lock()
	q.ops[op.ID] = op
	q.updateGauges()
	q.mu.Unlock()

	q.m.QueueEnqueued.Inc()
	opLog := logging.WithOperation(op.ID, string(op.Type))
	opLog.Debug().Msg("operation enqueued")

	select {
	case q.wake <- struct{}{}:
	default:
	}
	return nil
}

// ProcessPending attempts delivery of every eligible operation, high priority
// first, oldest first within a priority. While offline it only refreshes
// bookkeeping and returns.
func (q *Queue) ProcessPending(ctx context.Context) {
	if !q.monitor.IsOnline() {
		q.mu.Lock()
		q.updateGauges()
		q.mu.Unlock()
		return
	}

	now := q.now()
	q.mu.Lock()
	eligible := make([]*models.OfflineOperation, 0, len(q.ops))
	for _, op := range q.ops {
		switch op.Status {
		case models.StatusPending:
			eligible = append(eligible, op)
		case models.StatusFailed:
			if !op.NextAttempt.After(now) {
				eligible = append(eligible, op)
			}
		}
	}
	q.mu.Unlock()

	sort.Slice(eligible, func(i, j int) bool {
		if eligible[i].Priority != eligible[j].Priority {
			return eligible[i].Priority > eligible[j].Priority
		}
		return eligible[i].CreatedAt.Before(eligible[j].CreatedAt)
	})

	for _, op := range eligible {
		if ctx.Err() != nil {
			break
		}
		q.attempt(op)
	}

	q.mu.Lock()
	q.updateGauges()
	q.mu.Unlock()
}

// attempt delivers one operation. The delivery context is detached from the
// sweep context deliberately: once an operation is in_flight, shutdown must
// not cancel it without a known outcome, so the attempt finishes or hits its
// own timeout.
func (q *Queue) attempt(op *models.OfflineOperation) {
	oplog := logging.WithOperation(op.ID, string(op.Type))

	q.mu.Lock()
	op.Status = models.StatusInFlight
	op.LastAttempt = q.now().UTC()
	op.AttemptCount++
	attempts := op.AttemptCount
	q.mu.Unlock()

	if err := q.store.Put(op); err != nil {
		// Cannot record the attempt durably; leave the record pending
		// rather than risk a silent loss.
		q.mu.Lock()
		op.Status = models.StatusPending
		op.AttemptCount--
		q.mu.Unlock()
		oplog.Error().Err(err).Msg("failed to persist in_flight status, skipping attempt")
		return
	}

	dctx, cancel := context.WithTimeout(context.Background(), q.cfg.DeliveryTimeout)
	start := time.Now()
	err := q.sink.Deliver(dctx, op.ID, op.Payload)
	cancel()
	q.m.RecordDelivery(err, time.Since(start).Seconds())

	if err == nil {
		q.mu.Lock()
		op.Status = models.StatusDone
		delete(q.ops, op.ID)
		q.mu.Unlock()
		if derr := q.store.Delete(op.ID); derr != nil {
			// The persisted record still says in_flight, so the next
			// startup demotes it to pending and redelivers; the sink
			// dedupes on the operation ID.
			oplog.Warn().Err(derr).Msg("delivered but failed to delete record")
		}
		oplog.Info().Int("attempts", attempts).Msg("operation delivered")
		return
	}

	delay := q.retryDelay(attempts)
	q.mu.Lock()
	op.Status = models.StatusFailed
	op.ErrorMessage = err.Error()
	op.NextAttempt = q.now().UTC().Add(delay)
	q.mu.Unlock()
	if perr := q.store.Put(op); perr != nil {
		oplog.Error().Err(perr).Msg("failed to persist failure state")
	}
	oplog.Warn().
		Err(err).
		Int("attempts", attempts).
		Dur("retryIn", delay).
		Msg("delivery failed, scheduled for retry")
}

// retryDelay computes the capped exponential backoff for the given attempt
// count.
func (q *Queue) retryDelay(attempts int) time.Duration {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = q.cfg.RetryInitial
	bo.MaxInterval = q.cfg.RetryMax
	bo.MaxElapsedTime = 0 // retry forever; the cap bounds the interval
	bo.Reset()

	delay := bo.NextBackOff()
	for i := 1; i < attempts; i++ {
		delay = bo.NextBackOff()
	}
	return delay
}

// Run sweeps on a fixed interval and whenever connectivity returns or a new
// operation arrives.
func (q *Queue) Run(ctx context.Context) {
	ticker := time.NewTicker(q.cfg.SweepInterval)
	defer ticker.Stop()

	changes := q.monitor.Changes()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			q.ProcessPending(ctx)
		case online := <-changes:
			if online {
				q.log.Info().Msg("connectivity regained, sweeping queue")
				q.ProcessPending(ctx)
			}
		case <-q.wake:
			q.ProcessPending(ctx)
		}
	}
}

// Stats returns a snapshot of queue state.
func (q *Queue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()

	s := Stats{Online: q.monitor.IsOnline()}
	now := q.now()
	for _, op := range q.ops {
		switch op.Status {
		case models.StatusPending:
			s.Pending++
		case models.StatusFailed:
			s.Failed++
		case models.StatusInFlight:
			s.InFlight++
		}
		if age := now.Sub(op.CreatedAt); age > s.OldestAge {
			s.OldestAge = age
		}
	}
	return s
}

// updateGauges refreshes the depth and staleness metrics. Caller holds q.mu.
func (q *Queue) updateGauges() {
	q.m.QueueDepth.Set(float64(len(q.ops)))
	var oldest time.Duration
	now := q.now()
	for _, op := range q.ops {
		if age := now.Sub(op.CreatedAt); age > oldest {
			oldest = age
		}
	}
	q.m.QueueOldestAge.Set(oldest.Seconds())
}
