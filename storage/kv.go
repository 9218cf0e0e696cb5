package storage

import (
	"errors"
	"sync"

	"github.com/ethereum/go-ethereum/rlp"
)

// KVStore layers an RLP object codec and append-only lists over a raw
// Database. It satisfies the storage interface the order ledger consumes.
type KVStore struct {
	mu sync.Mutex
	db Database
}

// NewKVStore wraps the database in the typed codec.
func NewKVStore(db Database) *KVStore {
	return &KVStore{db: db}
}

// KVPut stores the RLP encoding of value under key.
func (s *KVStore) KVPut(key []byte, value interface{}) error {
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Put(key, encoded)
}

// KVGet decodes the stored value into out. The boolean reports presence; a
// missing key is not an error. A nil out only checks existence.
func (s *KVStore) KVGet(key []byte, out interface{}) (bool, error) {
	s.mu.Lock()
	encoded, err := s.db.Get(key)
	s.mu.Unlock()
	if errors.Is(err, ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if out == nil {
		return true, nil
	}
	if err := rlp.DecodeBytes(encoded, out); err != nil {
		return false, err
	}
	return true, nil
}

// KVDelete removes the key. Deleting an absent key is a no-op.
func (s *KVStore) KVDelete(key []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Delete(key)
}

// KVAppend appends the raw value to the RLP-encoded list stored under key.
// The read-modify-write cycle runs under the store mutex.
func (s *KVStore) KVAppend(key []byte, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var list [][]byte
	encoded, err := s.db.Get(key)
	switch {
	case errors.Is(err, ErrKeyNotFound):
	case err != nil:
		return err
	default:
		if err := rlp.DecodeBytes(encoded, &list); err != nil {
			return err
		}
	}
	list = append(list, append([]byte(nil), value...))
	updated, err := rlp.EncodeToBytes(list)
	if err != nil {
		return err
	}
	return s.db.Put(key, updated)
}

// KVGetList decodes the stored list into out. A missing key decodes to an
// empty list.
func (s *KVStore) KVGetList(key []byte, out interface{}) error {
	s.mu.Lock()
	encoded, err := s.db.Get(key)
	s.mu.Unlock()
	if errors.Is(err, ErrKeyNotFound) {
		empty, encErr := rlp.EncodeToBytes([][]byte{})
		if encErr != nil {
			return encErr
		}
		return rlp.DecodeBytes(empty, out)
	}
	if err != nil {
		return err
	}
	return rlp.DecodeBytes(encoded, out)
}
