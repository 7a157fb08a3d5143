// Package statestore checkpoints ledger state to a local Badger KV store
// so a restarted serving process resumes the paper ledger instead of
// resetting it to unit equity.
package statestore

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/rustyeddy/btcpaper/ledger"
)

type Store struct {
	db *badger.DB
}

func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("statestore: path is required")
	}
	db, err := badger.Open(badger.DefaultOptions(path).WithLogger(nil))
	if err != nil {
		return nil, fmt.Errorf("statestore: open %s: %w", path, err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func key(symbol string) []byte {
	return []byte("ledger/" + symbol)
}

// Save persists the ledger state for one symbol.
func (s *Store) Save(symbol string, st ledger.State) error {
	buf, err := json.Marshal(st)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key(symbol), buf)
	})
}

// Load returns the persisted state for symbol. The second return is false
// when no checkpoint exists, which is not an error.
func (s *Store) Load(symbol string) (ledger.State, bool, error) {
	var st ledger.State
	found := false

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key(symbol))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return nil
			}
			return err
		}
		found = true
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &st)
		})
	})
	if err != nil {
		return ledger.State{}, false, err
	}
	return st, found, nil
}
