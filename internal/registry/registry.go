// Package registry owns generated-artifact lifetime: artifacts are stored
// under (owner, content hash) and deleted on first retrieval.
package registry

import (
	"errors"
	"fmt"
	"time"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/dddanielliu/emotion-light-sound/internal/logger"
	"github.com/dddanielliu/emotion-light-sound/pkg/types"
)

// ErrNotFound is returned when an artifact was already consumed or never
// existed.
var ErrNotFound = errors.New("registry: artifact not found")

const keySep = byte(0x00)

// Options configures the registry store.
type Options struct {
	// Dir is the BadgerDB directory. Required unless InMemory is set.
	Dir string

	// InMemory runs the store without disk persistence. Artifacts are
	// short-lived by design, so this is the default deployment mode.
	InMemory bool
}

// Registry is a one-shot artifact store backed by BadgerDB.
type Registry struct {
	db *badger.DB
}

// New opens the registry store.
func New(opts Options) (*Registry, error) {
	if !opts.InMemory && opts.Dir == "" {
		return nil, errors.New("registry: Dir is required for on-disk mode")
	}
	dbOpts := badger.DefaultOptions(opts.Dir).
		WithInMemory(opts.InMemory).
		WithLogger(badgerLogger{})
	db, err := badger.Open(dbOpts)
	if err != nil {
		return nil, fmt.Errorf("open artifact store: %w", err)
	}
	return &Registry{db: db}, nil
}

func encodeKey(ownerKey, hash string) []byte {
	key := make([]byte, 0, len(ownerKey)+1+len(hash))
	key = append(key, ownerKey...)
	key = append(key, keySep)
	key = append(key, hash...)
	return key
}

// Put stores an artifact under (owner, hash), overwriting any previous
// entry with the same identity.
func (r *Registry) Put(artifact types.GeneratedArtifact) error {
	key := encodeKey(artifact.OwnerKey, artifact.ContentHash)
	err := r.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, artifact.Bytes)
	})
	if err != nil {
		return fmt.Errorf("store artifact %s: %w", artifact.ContentHash, err)
	}
	return nil
}

// Get retrieves an artifact's bytes and deletes the entry in the same
// transaction. A second Get with the same hash returns ErrNotFound.
func (r *Registry) Get(ownerKey, hash string) ([]byte, error) {
	key := encodeKey(ownerKey, hash)
	var data []byte
	err := r.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		if err != nil {
			return err
		}
		return txn.Delete(key)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("fetch artifact %s: %w", hash, err)
	}
	return data, nil
}

// ListAvailable returns the hashes stored for an owner without consuming
// them.
func (r *Registry) ListAvailable(ownerKey string) ([]string, error) {
	prefix := append([]byte(ownerKey), keySep)
	hashes := []string{}
	err := r.db.View(func(txn *badger.Txn) error {
		iterOpts := badger.DefaultIteratorOptions
		iterOpts.PrefetchValues = false
		iterOpts.Prefix = prefix
		it := txn.NewIterator(iterOpts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			key := it.Item().Key()
			hashes = append(hashes, string(key[len(prefix):]))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list artifacts for %s: %w", ownerKey, err)
	}
	return hashes, nil
}

// EvictAll clears every stored artifact. Called at process start so nothing
// from a prior run is ever served.
func (r *Registry) EvictAll() error {
	return r.db.DropAll()
}

// Close releases the underlying store.
func (r *Registry) Close() error {
	return r.db.Close()
}

// badgerLogger routes badger output through the application logger,
// suppressing debug and info noise.
type badgerLogger struct{}

func (badgerLogger) Errorf(f string, v ...interface{})   { logger.Error("Registry", f, v...) }
func (badgerLogger) Warningf(f string, v ...interface{}) { logger.Warn("Registry", f, v...) }
func (badgerLogger) Infof(string, ...interface{})        {}
func (badgerLogger) Debugf(string, ...interface{})       {}

// NewArtifact builds an artifact record with its creation timestamp.
func NewArtifact(ownerKey, hash string, data []byte) types.GeneratedArtifact {
	return types.GeneratedArtifact{
		OwnerKey:    ownerKey,
		ContentHash: hash,
		Bytes:       data,
		CreatedAt:   time.Now(),
	}
}
