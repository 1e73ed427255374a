// Package logging provides structured logging with zerolog.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Config holds logging configuration.
type Config struct {
	Level   string // debug, info, warn, error
	Env     string // "dev" enables the console writer
	Service string
}

// Init initializes the global zerolog logger.
func Init(cfg Config) {
	zerolog.TimeFieldFormat = time.RFC3339

	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	var output io.Writer = os.Stdout
	if cfg.Env == "dev" {
		output = zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.Kitchen,
		}
	}

	log.Logger = zerolog.New(output).
		With().
		Timestamp().
		Str("service", cfg.Service).
		Logger()
}

// WithComponent returns a logger tagged with a component name.
func WithComponent(component string) zerolog.Logger {
	return log.With().
		Str("component", component).
		Logger()
}

// WithConversation returns a logger with conversation context.
func WithConversation(conversationId string) zerolog.Logger {
	return log.With().
		Str("conversationId", conversationId).
		Logger()
}

// WithUtterance returns a logger with utterance context.
func WithUtterance(conversationId, utteranceId string) zerolog.Logger {
	return log.With().
		Str("conversationId", conversationId).
		Str("utteranceId", utteranceId).
		Logger()
}

// WithOperation returns a logger with offline-operation context.
func WithOperation(operationId string, opType string) zerolog.Logger {
	return log.With().
		Str("operationId", operationId).
		Str("operationType", opType).
		Logger()
}
