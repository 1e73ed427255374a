// Package queue guarantees eventual at-least-once delivery of completed
// transactions to a durable sink, despite restarts and connectivity loss.
package queue

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dgraph-io/badger/v3"

	"market-voice-ledger/internal/models"
)

// ErrOperationNotFound is returned for lookups of unknown operation IDs.
var ErrOperationNotFound = fmt.Errorf("operation not found")

var keyPrefix = []byte("op/")

// Store persists offline operations in an embedded Badger database, so a
// record written by one process lifetime survives into the next.
type Store struct {
	db *badger.DB
}

// OpenStore opens (or creates) the store under dir.
func OpenStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create queue directory: %w", err)
	}

	opts := badger.DefaultOptions(filepath.Join(dir, "badger"))
	opts.Logger = nil // Disable badger logging

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger database: %w", err)
	}
	return &Store{db: db}, nil
}

// Put writes an operation record. The write is synced before Put returns;
// durability precedes any in-memory acknowledgment.
func (s *Store) Put(op *models.OfflineOperation) error {
	data, err := json.Marshal(op)
	if err != nil {
		return fmt.Errorf("failed to marshal operation: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key(op.ID), data)
	})
}

// Get reads one operation record.
func (s *Store) Get(id string) (*models.OfflineOperation, error) {
	var op models.OfflineOperation
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key(id))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &op)
		})
	})
	if err == badger.ErrKeyNotFound {
		return nil, ErrOperationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get operation: %w", err)
	}
	return &op, nil
}

// Delete removes a delivered operation record.
func (s *Store) Delete(id string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(key(id))
	})
}

// List returns every stored operation, in no particular order.
func (s *Store) List() ([]*models.OfflineOperation, error) {
	var ops []*models.OfflineOperation
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(keyPrefix); it.ValidForPrefix(keyPrefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var op models.OfflineOperation
				if err := json.Unmarshal(val, &op); err != nil {
					return err
				}
				ops = append(ops, &op)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list operations: %w", err)
	}
	return ops, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func key(id string) []byte {
	return append(append([]byte(nil), keyPrefix...), id...)
}
