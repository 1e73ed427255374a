// Command simulate drives the full ledger chain end to end with synthesized
// audio: sine-burst "speech" frames are segmented, transcribed by the mock
// recognizer and folded into a transaction that lands in the offline queue.
package main

import (
	"context"
	"fmt"
	"math"
	"os"
	"time"

	"github.com/rs/zerolog/log"

	"market-voice-ledger/internal/app"
	"market-voice-ledger/internal/config"
	"market-voice-ledger/internal/connectivity"
	"market-voice-ledger/internal/models"
)

// printSink prints delivered payloads instead of shipping them anywhere.
type printSink struct{}

func (printSink) Deliver(_ context.Context, operationId string, payload []byte) error {
	fmt.Printf("delivered %s: %s\n", operationId, payload)
	return nil
}

func main() {
	cfg := config.Load()

	dataDir, err := os.MkdirTemp("", "ledger-sim-*")
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create temp dir")
	}
	defer os.RemoveAll(dataDir)
	cfg.Queue.DataDir = dataDir
	cfg.Service.HTTPPort = "18080"
	cfg.Observability.MetricsPort = "19090"
	// One worker keeps the scripted transcripts aligned with the scripted
	// speaker roles.
	cfg.Pipeline.Workers = 1

	application, err := app.New(cfg, app.Options{
		Monitor: connectivity.NewStatic(true),
		Sink:    printSink{},
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create application")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	application.Start(ctx)

	// Six spoken turns, matching the mock recognizer's haggling script.
	feed := newFeeder(application, cfg)
	for i := 0; i < 6; i++ {
		feed.speech(600 * time.Millisecond)
		feed.silence(cfg.Segmenter.SilenceCarry + 2*cfg.Audio.FramePeriod)
	}

	// Give the pipeline a moment, then force a sweep so the delivery is
	// visible before shutdown.
	time.Sleep(time.Second)
	application.Queue().ProcessPending(ctx)

	stats := application.QueueStats()
	fmt.Printf("queue after sweep: pending=%d failed=%d inFlight=%d\n",
		stats.Pending, stats.Failed, stats.InFlight)

	application.Shutdown()
}

// feeder pushes synthesized frames with a consistent timeline.
type feeder struct {
	app   *app.Application
	cfg   *config.Configuration
	seq   uint64
	clock time.Time
}

func newFeeder(a *app.Application, cfg *config.Configuration) *feeder {
	return &feeder{app: a, cfg: cfg, clock: time.Now().UTC()}
}

func (f *feeder) speech(d time.Duration) { f.push(d, true) }

func (f *feeder) silence(d time.Duration) { f.push(d, false) }

func (f *feeder) push(d time.Duration, loud bool) {
	period := f.cfg.Audio.FramePeriod
	perFrame := int(float64(f.cfg.Audio.SampleRateHz) * period.Seconds())
	for elapsed := time.Duration(0); elapsed < d; elapsed += period {
		samples := make([]int16, perFrame)
		if loud {
			for i := range samples {
				samples[i] = int16(8000 * math.Sin(2*math.Pi*440*float64(i)/float64(f.cfg.Audio.SampleRateHz)))
			}
		}
		f.seq++
		f.app.PushFrame(context.Background(), models.AudioFrame{
			Samples:    samples,
			SampleRate: f.cfg.Audio.SampleRateHz,
			Seq:        f.seq,
			Timestamp:  f.clock,
		})
		f.clock = f.clock.Add(period)
	}
}
