// Package config loads service configuration from the environment.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Configuration holds all tunables for the ledger core.
type Configuration struct {
	Service       ServiceConfig
	Audio         AudioConfig
	Segmenter     SegmenterConfig
	Pipeline      PipelineConfig
	Conversation  ConversationConfig
	Queue         QueueConfig
	Kafka         KafkaConfig
	Observability ObservabilityConfig
}

// ServiceConfig identifies the running instance.
type ServiceConfig struct {
	Principal string
	HTTPPort  string
	Env       string
}

// AudioConfig describes the capture stream feeding the segmenter.
type AudioConfig struct {
	SampleRateHz int
	FramePeriod  time.Duration
	LanguageCode string
}

// SegmenterConfig bounds utterance assembly.
type SegmenterConfig struct {
	SilenceCarry   time.Duration // trailing-silence window kept inside an utterance
	MaxDuration    time.Duration // hard cap per utterance
	MinSpeech      time.Duration // utterances shorter than this are discarded
	ClassifyBudget time.Duration // per-frame VAD deadline
	VADThreshold   float64
}

// PipelineConfig bounds utterance enrichment.
type PipelineConfig struct {
	Workers     int
	QueueSize   int
	CallTimeout time.Duration // per speaker-ID / recognition call
	Provider    string        // recognizer provider: mock | google
}

// ConversationConfig tunes the transaction state machine.
type ConversationConfig struct {
	InactivityTimeout time.Duration
	SweepInterval     time.Duration
	ReviewThreshold   float64
	MaxLive           int
	Currency          string
}

// QueueConfig tunes the offline operation queue.
type QueueConfig struct {
	DataDir         string
	SweepInterval   time.Duration
	RetryInitial    time.Duration
	RetryMax        time.Duration
	DeliveryTimeout time.Duration
	ProbeURL        string // empty disables the connectivity probe
	ProbeInterval   time.Duration
}

// KafkaConfig configures the durable sink. Disabled means log-only delivery.
type KafkaConfig struct {
	Enabled   bool
	Brokers   []string
	Topic     string
	Principal string
}

// ObservabilityConfig configures logging and the metrics server.
type ObservabilityConfig struct {
	LogLevel    string
	MetricsPort string
}

// Load reads configuration from the environment, consulting a local .env
// file first when present.
func Load() *Configuration {
	_ = godotenv.Load()

	principal := envOrDefault("SERVICE_PRINCIPAL", "voice-ledger-core")

	return &Configuration{
		Service: ServiceConfig{
			Principal: principal,
			HTTPPort:  envOrDefault("HTTP_PORT", "8080"),
			Env:       envOrDefault("ENV", "prod"),
		},
		Audio: AudioConfig{
			SampleRateHz: envOrDefaultInt("AUDIO_SAMPLE_RATE_HZ", 16000),
			FramePeriod:  envOrDefaultDuration("AUDIO_FRAME_PERIOD", 30*time.Millisecond),
			LanguageCode: envOrDefault("AUDIO_LANGUAGE_CODE", "en-GH"),
		},
		Segmenter: SegmenterConfig{
			SilenceCarry:   envOrDefaultDuration("SEGMENTER_SILENCE_CARRY", 400*time.Millisecond),
			MaxDuration:    envOrDefaultDuration("SEGMENTER_MAX_DURATION", 30*time.Second),
			MinSpeech:      envOrDefaultDuration("SEGMENTER_MIN_SPEECH", 300*time.Millisecond),
			ClassifyBudget: envOrDefaultDuration("SEGMENTER_CLASSIFY_BUDGET", 10*time.Millisecond),
			VADThreshold:   envOrDefaultFloat("SEGMENTER_VAD_THRESHOLD", 0.5),
		},
		Pipeline: PipelineConfig{
			Workers:     envOrDefaultInt("PIPELINE_WORKERS", 2),
			QueueSize:   envOrDefaultInt("PIPELINE_QUEUE_SIZE", 16),
			CallTimeout: envOrDefaultDuration("PIPELINE_CALL_TIMEOUT", 10*time.Second),
			Provider:    envOrDefault("STT_PROVIDER", "mock"),
		},
		Conversation: ConversationConfig{
			InactivityTimeout: envOrDefaultDuration("CONVERSATION_TIMEOUT", 2*time.Minute),
			SweepInterval:     envOrDefaultDuration("CONVERSATION_SWEEP_INTERVAL", 15*time.Second),
			ReviewThreshold:   envOrDefaultFloat("CONVERSATION_REVIEW_THRESHOLD", 0.7),
			MaxLive:           envOrDefaultInt("CONVERSATION_MAX_LIVE", 32),
			Currency:          envOrDefault("CONVERSATION_CURRENCY", "GHS"),
		},
		Queue: QueueConfig{
			DataDir:         envOrDefault("QUEUE_DATA_DIR", "data/queue"),
			SweepInterval:   envOrDefaultDuration("QUEUE_SWEEP_INTERVAL", 30*time.Second),
			RetryInitial:    envOrDefaultDuration("QUEUE_RETRY_INITIAL", 1*time.Second),
			RetryMax:        envOrDefaultDuration("QUEUE_RETRY_MAX", 5*time.Minute),
			DeliveryTimeout: envOrDefaultDuration("QUEUE_DELIVERY_TIMEOUT", 15*time.Second),
			ProbeURL:        envOrDefault("QUEUE_PROBE_URL", ""),
			ProbeInterval:   envOrDefaultDuration("QUEUE_PROBE_INTERVAL", 30*time.Second),
		},
		Kafka: KafkaConfig{
			Enabled:   envOrDefaultBool("KAFKA_ENABLED", false),
			Brokers:   envOrDefaultList("KAFKA_BROKERS", nil),
			Topic:     envOrDefault("KAFKA_TOPIC", "ledger.transactions"),
			Principal: envOrDefault("KAFKA_PRINCIPAL", principal),
		},
		Observability: ObservabilityConfig{
			LogLevel:    envOrDefault("LOG_LEVEL", "info"),
			MetricsPort: envOrDefault("METRICS_PORT", "9090"),
		},
	}
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envOrDefaultInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envOrDefaultFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func envOrDefaultBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(strings.ToLower(v)); err == nil {
			return b
		}
	}
	return def
}

func envOrDefaultDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func envOrDefaultList(key string, def []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}
