// Package models defines the data structures that flow through the ledger core:
// audio frames, utterances, speech events, transactions and offline operations.
package models

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
)

// SpeakerRole identifies which side of the exchange produced an utterance.
type SpeakerRole string

const (
	RoleSeller   SpeakerRole = "seller"
	RoleCustomer SpeakerRole = "customer"
	RoleUnknown  SpeakerRole = "unknown"
)

// AudioFrame is one fixed-duration slice of the capture stream.
// Frames are ephemeral: the segmenter owns them until consumed and
// nothing downstream ever sees an individual frame.
type AudioFrame struct {
	Samples    []int16
	SampleRate int
	Seq        uint64
	Timestamp  time.Time
}

// Duration returns the wall-clock span covered by the frame's samples.
func (f AudioFrame) Duration() time.Duration {
	if f.SampleRate <= 0 {
		return 0
	}
	return time.Duration(len(f.Samples)) * time.Second / time.Duration(f.SampleRate)
}

// SealReason records why the segmenter closed an utterance.
type SealReason string

const (
	SealSilence     SealReason = "silence"
	SealMaxDuration SealReason = "max_duration"
	SealFlush       SealReason = "flush"
)

// Utterance is a contiguous burst of detected speech, bounded by silence.
// Ownership transfers to the pipeline once sealed; the segmenter keeps
// no reference afterwards.
type Utterance struct {
	ID             string
	ConversationID string
	Samples        []int16
	SampleRate     int
	Start          time.Time
	End            time.Time
	Sealed         SealReason
}

// Duration returns the utterance length derived from its sample count.
func (u *Utterance) Duration() time.Duration {
	if u.SampleRate <= 0 {
		return 0
	}
	return time.Duration(len(u.Samples)) * time.Second / time.Duration(u.SampleRate)
}

// SpeechEvent is the enriched, immutable output of recognizing one utterance.
type SpeechEvent struct {
	UtteranceID    string      `json:"utteranceId"`
	ConversationID string      `json:"conversationId"`
	Role           SpeakerRole `json:"speakerRole"`
	Transcript     string      `json:"transcript"`
	Confidence     float64     `json:"confidence"`
	Timestamp      time.Time   `json:"timestamp"`
}

// Empty reports whether the transcript carries no usable text.
func (e *SpeechEvent) Empty() bool {
	return strings.TrimSpace(e.Transcript) == ""
}

// Transaction is a completed sale materialized by the conversation state
// machine. Never mutated after creation; review workflows happen downstream.
type Transaction struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversationId"`
	Product        string    `json:"product"`
	Quantity       int       `json:"quantity"`
	UnitPrice      float64   `json:"unitPrice"`
	TotalAmount    float64   `json:"totalAmount"`
	Currency       string    `json:"currency"`
	CustomerRef    string    `json:"customerRef,omitempty"`
	Confidence     float64   `json:"confidence"`
	NeedsReview    bool      `json:"needsReview"`
	EventIDs       []string  `json:"eventIds"`
	Timestamp      time.Time `json:"timestamp"`
}

// OperationType names the side effect an offline operation performs.
type OperationType string

const (
	// OpSyncTransaction persists a completed transaction to the remote sink.
	OpSyncTransaction OperationType = "sync_transaction"
)

// OperationStatus is the queue-controlled lifecycle state of an operation.
type OperationStatus string

const (
	StatusPending  OperationStatus = "pending"
	StatusInFlight OperationStatus = "in_flight"
	StatusFailed   OperationStatus = "failed"
	StatusDone     OperationStatus = "done"
)

// Operation priorities. Higher values drain first.
const (
	PriorityNormal = 0
	PriorityHigh   = 10
)

// OfflineOperation is a durable, retryable unit of pending synchronization
// work. The queue owns each record from creation until deletion after done.
type OfflineOperation struct {
	ID           string          `json:"id"`
	Type         OperationType   `json:"type"`
	Schema       int             `json:"schema"`
	Payload      json.RawMessage `json:"payload"`
	Priority     int             `json:"priority"`
	Status       OperationStatus `json:"status"`
	AttemptCount int             `json:"attemptCount"`
	LastAttempt  time.Time       `json:"lastAttempt,omitzero"`
	NextAttempt  time.Time       `json:"nextAttempt,omitzero"`
	ErrorMessage string          `json:"errorMessage,omitempty"`
	CreatedAt    time.Time       `json:"createdAt"`
}

// PayloadSchema is the current serialization version for operation payloads.
// A record written by one process version must remain readable after restart.
const PayloadSchema = 1

// NewSyncOperation wraps a completed transaction in a pending offline
// operation. The operation ID doubles as the idempotency key the sink uses
// to ignore duplicate deliveries.
func NewSyncOperation(tx *Transaction) (*OfflineOperation, error) {
	payload, err := json.Marshal(tx)
	if err != nil {
		return nil, err
	}
	return &OfflineOperation{
		ID:        uuid.NewString(),
		Type:      OpSyncTransaction,
		Schema:    PayloadSchema,
		Payload:   payload,
		Priority:  PriorityNormal,
		Status:    StatusPending,
		CreatedAt: time.Now().UTC(),
	}, nil
}
