// Package docstore is the content-addressed document store: immutable byte
// blobs keyed by the hex sha256 of their content, backed by Badger. Put is
// idempotent, so a retried commit re-sends the same hash without error.
package docstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"

	cmtlog "github.com/cometbft/cometbft/libs/log"
	"github.com/dgraph-io/badger/v4"

	"github.com/jconnelly/loadblock-sub002/internal/bolerr"
)

// Store is the document-store client contract consumed by the version
// chain builder.
type Store interface {
	// Put stores blob and returns its content hash. Storing the same
	// content twice is a no-op returning the same hash.
	Put(ctx context.Context, blob []byte) (string, error)
	// Get returns the blob for a content hash.
	Get(ctx context.Context, hash string) ([]byte, error)
	// Has reports whether a blob is already stored for hash.
	Has(ctx context.Context, hash string) (bool, error)
}

// Hash computes the content address of a blob.
func Hash(blob []byte) string {
	sum := sha256.Sum256(blob)
	return hex.EncodeToString(sum[:])
}

var keyPrefix = []byte("doc:")

// BadgerStore implements Store on a Badger database.
type BadgerStore struct {
	db     *badger.DB
	logger cmtlog.Logger
}

func NewBadgerStore(db *badger.DB, logger cmtlog.Logger) *BadgerStore {
	return &BadgerStore{db: db, logger: logger}
}

func (s *BadgerStore) Put(ctx context.Context, blob []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", &bolerr.StorageFailure{Store: "document", Op: "put", Err: err}
	}
	hash := Hash(blob)
	key := append(keyPrefix, []byte(hash)...)

	err := s.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(key)
		if err == nil {
			// already stored, content addressing makes this a no-op
			return nil
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		return txn.Set(key, blob)
	})
	if err != nil {
		return "", &bolerr.StorageFailure{Store: "document", Op: "put", Err: err}
	}
	return hash, nil
}

func (s *BadgerStore) Get(ctx context.Context, hash string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, &bolerr.StorageFailure{Store: "document", Op: "get", Err: err}
	}
	key := append(keyPrefix, []byte(hash)...)
	var blob []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		blob, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, &bolerr.NotFoundError{Kind: "document", ID: hash}
	}
	if err != nil {
		return nil, &bolerr.StorageFailure{Store: "document", Op: "get", Err: err}
	}
	return blob, nil
}

func (s *BadgerStore) Has(ctx context.Context, hash string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, &bolerr.StorageFailure{Store: "document", Op: "has", Err: err}
	}
	key := append(keyPrefix, []byte(hash)...)
	err := s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(key)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, &bolerr.StorageFailure{Store: "document", Op: "has", Err: err}
	}
	return true, nil
}
