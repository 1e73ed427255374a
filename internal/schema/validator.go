// Package schema validates offline operations before they are accepted into
// the durable queue.
package schema

import (
	"encoding/json"
	"fmt"

	"market-voice-ledger/internal/models"
)

// Validator checks that an operation is well-formed enough to survive a
// round-trip through storage and delivery.
type Validator struct{}

// New creates a validator.
func New() *Validator {
	return &Validator{}
}

// ValidateOperation rejects operations that could not be replayed after a
// restart: missing IDs, unknown types, unreadable payloads.
func (v *Validator) ValidateOperation(op *models.OfflineOperation) error {
	if op == nil {
		return fmt.Errorf("nil operation")
	}
	if op.ID == "" {
		return fmt.Errorf("operation has no id")
	}
	switch op.Type {
	case models.OpSyncTransaction:
	default:
		return fmt.Errorf("unknown operation type %q", op.Type)
	}
	if op.Schema <= 0 || op.Schema > models.PayloadSchema {
		return fmt.Errorf("unsupported payload schema %d", op.Schema)
	}
	if !json.Valid(op.Payload) {
		return fmt.Errorf("operation payload is not valid JSON")
	}
	return nil
}
