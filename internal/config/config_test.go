package config

import (
	"os"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	envVars := []string{
		"SERVICE_PRINCIPAL", "HTTP_PORT", "LOG_LEVEL", "ENV",
		"AUDIO_SAMPLE_RATE_HZ", "AUDIO_FRAME_PERIOD", "AUDIO_LANGUAGE_CODE",
		"SEGMENTER_SILENCE_CARRY", "SEGMENTER_MAX_DURATION", "SEGMENTER_VAD_THRESHOLD",
		"PIPELINE_WORKERS", "STT_PROVIDER",
		"CONVERSATION_TIMEOUT", "CONVERSATION_REVIEW_THRESHOLD",
		"QUEUE_DATA_DIR", "QUEUE_RETRY_INITIAL", "QUEUE_RETRY_MAX",
		"KAFKA_ENABLED", "KAFKA_BROKERS", "KAFKA_PRINCIPAL",
	}
	for _, v := range envVars {
		os.Unsetenv(v)
	}

	cfg := Load()

	if cfg.Service.Principal != "voice-ledger-core" {
		t.Errorf("expected default principal 'voice-ledger-core', got %s", cfg.Service.Principal)
	}
	if cfg.Audio.SampleRateHz != 16000 {
		t.Errorf("expected default sample rate 16000, got %d", cfg.Audio.SampleRateHz)
	}
	if cfg.Audio.FramePeriod != 30*time.Millisecond {
		t.Errorf("expected default frame period 30ms, got %v", cfg.Audio.FramePeriod)
	}
	if cfg.Segmenter.SilenceCarry != 400*time.Millisecond {
		t.Errorf("expected default silence carry 400ms, got %v", cfg.Segmenter.SilenceCarry)
	}
	if cfg.Segmenter.MaxDuration != 30*time.Second {
		t.Errorf("expected default max duration 30s, got %v", cfg.Segmenter.MaxDuration)
	}
	if cfg.Pipeline.Workers != 2 {
		t.Errorf("expected default pipeline workers 2, got %d", cfg.Pipeline.Workers)
	}
	if cfg.Pipeline.Provider != "mock" {
		t.Errorf("expected default provider 'mock', got %s", cfg.Pipeline.Provider)
	}
	if cfg.Conversation.InactivityTimeout != 2*time.Minute {
		t.Errorf("expected default conversation timeout 2m, got %v", cfg.Conversation.InactivityTimeout)
	}
	if cfg.Conversation.ReviewThreshold != 0.7 {
		t.Errorf("expected default review threshold 0.7, got %v", cfg.Conversation.ReviewThreshold)
	}
	if cfg.Queue.RetryInitial != time.Second {
		t.Errorf("expected default retry initial 1s, got %v", cfg.Queue.RetryInitial)
	}
	if cfg.Queue.RetryMax != 5*time.Minute {
		t.Errorf("expected default retry max 5m, got %v", cfg.Queue.RetryMax)
	}
	if cfg.Kafka.Enabled {
		t.Error("expected Kafka disabled by default")
	}
	if cfg.Observability.LogLevel != "info" {
		t.Errorf("expected default log level 'info', got %s", cfg.Observability.LogLevel)
	}
}

func TestLoad_CustomValues(t *testing.T) {
	set := map[string]string{
		"SERVICE_PRINCIPAL":             "market-stall-7",
		"AUDIO_SAMPLE_RATE_HZ":          "8000",
		"SEGMENTER_SILENCE_CARRY":       "500ms",
		"SEGMENTER_MAX_DURATION":        "45s",
		"PIPELINE_WORKERS":              "4",
		"STT_PROVIDER":                  "google",
		"CONVERSATION_TIMEOUT":          "90s",
		"CONVERSATION_REVIEW_THRESHOLD": "0.85",
		"QUEUE_RETRY_MAX":               "10m",
		"KAFKA_ENABLED":                 "true",
		"KAFKA_BROKERS":                 "broker-1:9092, broker-2:9092",
	}
	for k, v := range set {
		os.Setenv(k, v)
	}
	defer func() {
		for k := range set {
			os.Unsetenv(k)
		}
	}()

	cfg := Load()

	if cfg.Service.Principal != "market-stall-7" {
		t.Errorf("expected principal 'market-stall-7', got %s", cfg.Service.Principal)
	}
	if cfg.Audio.SampleRateHz != 8000 {
		t.Errorf("expected sample rate 8000, got %d", cfg.Audio.SampleRateHz)
	}
	if cfg.Segmenter.SilenceCarry != 500*time.Millisecond {
		t.Errorf("expected silence carry 500ms, got %v", cfg.Segmenter.SilenceCarry)
	}
	if cfg.Segmenter.MaxDuration != 45*time.Second {
		t.Errorf("expected max duration 45s, got %v", cfg.Segmenter.MaxDuration)
	}
	if cfg.Pipeline.Workers != 4 {
		t.Errorf("expected 4 workers, got %d", cfg.Pipeline.Workers)
	}
	if cfg.Pipeline.Provider != "google" {
		t.Errorf("expected provider 'google', got %s", cfg.Pipeline.Provider)
	}
	if cfg.Conversation.InactivityTimeout != 90*time.Second {
		t.Errorf("expected timeout 90s, got %v", cfg.Conversation.InactivityTimeout)
	}
	if cfg.Conversation.ReviewThreshold != 0.85 {
		t.Errorf("expected review threshold 0.85, got %v", cfg.Conversation.ReviewThreshold)
	}
	if cfg.Queue.RetryMax != 10*time.Minute {
		t.Errorf("expected retry max 10m, got %v", cfg.Queue.RetryMax)
	}
	if !cfg.Kafka.Enabled {
		t.Error("expected Kafka enabled")
	}
	if len(cfg.Kafka.Brokers) != 2 || cfg.Kafka.Brokers[0] != "broker-1:9092" || cfg.Kafka.Brokers[1] != "broker-2:9092" {
		t.Errorf("expected two trimmed brokers, got %v", cfg.Kafka.Brokers)
	}
}

func TestLoad_InvalidValues_FallbackToDefaults(t *testing.T) {
	set := map[string]string{
		"AUDIO_SAMPLE_RATE_HZ":          "not-a-number",
		"SEGMENTER_MAX_DURATION":        "invalid",
		"CONVERSATION_REVIEW_THRESHOLD": "invalid",
		"KAFKA_ENABLED":                 "invalid",
	}
	for k, v := range set {
		os.Setenv(k, v)
	}
	defer func() {
		for k := range set {
			os.Unsetenv(k)
		}
	}()

	cfg := Load()

	if cfg.Audio.SampleRateHz != 16000 {
		t.Errorf("expected default sample rate on invalid input, got %d", cfg.Audio.SampleRateHz)
	}
	if cfg.Segmenter.MaxDuration != 30*time.Second {
		t.Errorf("expected default max duration on invalid input, got %v", cfg.Segmenter.MaxDuration)
	}
	if cfg.Conversation.ReviewThreshold != 0.7 {
		t.Errorf("expected default review threshold on invalid input, got %v", cfg.Conversation.ReviewThreshold)
	}
	if cfg.Kafka.Enabled {
		t.Error("expected Kafka disabled on invalid input")
	}
}

func TestLoad_KafkaPrincipal_FallsBackToServicePrincipal(t *testing.T) {
	os.Setenv("SERVICE_PRINCIPAL", "my-stall")
	os.Unsetenv("KAFKA_PRINCIPAL")
	defer os.Unsetenv("SERVICE_PRINCIPAL")

	cfg := Load()

	if cfg.Kafka.Principal != "my-stall" {
		t.Errorf("expected Kafka principal to fall back to service principal, got %s", cfg.Kafka.Principal)
	}
}

func TestEnvOrDefaultBool(t *testing.T) {
	tests := []struct {
		name     string
		envValue string
		def      bool
		expected bool
	}{
		{"true string", "true", false, true},
		{"false string", "false", true, false},
		{"1", "1", false, true},
		{"0", "0", true, false},
		{"TRUE uppercase", "TRUE", false, true},
		{"invalid", "invalid", true, true},
		{"empty", "", true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key := "TEST_BOOL_VAR"
			if tt.envValue != "" {
				os.Setenv(key, tt.envValue)
			} else {
				os.Unsetenv(key)
			}
			defer os.Unsetenv(key)

			got := envOrDefaultBool(key, tt.def)
			if got != tt.expected {
				t.Errorf("envOrDefaultBool(%s, %v) = %v, want %v", tt.envValue, tt.def, got, tt.expected)
			}
		})
	}
}
