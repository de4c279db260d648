// Package registry keeps a persistent index of the caches and datasets
// written to disk, so stale epochs can be found and removed without
// scanning the dump directories.
package registry

import (
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/fxamacker/cbor/v2"
	"github.com/sirupsen/logrus"

	"github.com/chronodrachma/dagpow/pkg/core/consensus/dagash"
	"github.com/chronodrachma/dagpow/pkg/core/types"
)

var (
	ErrArtifactNotFound = errors.New("artifact not found in registry")
)

// Artifact describes one cache or dataset file.
type Artifact struct {
	Kind      dagash.Kind `cbor:"kind"`
	Epoch     uint64      `cbor:"epoch"`
	Seed      types.Hash  `cbor:"seed"`
	Path      string      `cbor:"path"`
	Size      uint64      `cbor:"size"`
	CreatedAt time.Time   `cbor:"created_at"`
}

// ArtifactStore defines the interface for the artifact index.
type ArtifactStore interface {
	SaveArtifact(a *Artifact) error
	GetArtifact(kind dagash.Kind, epoch uint64) (*Artifact, error)
	ListArtifacts(kind dagash.Kind) ([]*Artifact, error)
	DeleteArtifact(kind dagash.Kind, epoch uint64) error
	Close() error
}

// BadgerStore implements ArtifactStore using BadgerDB.
type BadgerStore struct {
	db *badger.DB
}

var _ ArtifactStore = (*BadgerStore)(nil)

var encMode = mustEncMode()

func mustEncMode() cbor.EncMode {
	opts := cbor.CoreDetEncOptions()
	opts.Time = cbor.TimeRFC3339Nano
	em, err := opts.EncMode()
	if err != nil {
		panic(err)
	}
	return em
}

// NewBadgerStore creates or opens a BadgerDB store at the given path.
// If path is empty, it opens an in-memory store (for testing). Badger's own
// messages go to logger, or nowhere when logger is nil.
func NewBadgerStore(path string, logger *logrus.Entry) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path)
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	if logger != nil {
		opts = opts.WithLogger(logger.WithField("component", "badger"))
	} else {
		opts.Logger = nil
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening registry at %q: %w", path, err)
	}
	return &BadgerStore{db: db}, nil
}

func (s *BadgerStore) Close() error {
	return s.db.Close()
}

// Keys:
// Artifact: "artifact:<kind>:<epoch>" -> cbor encoded Artifact
//
// Epochs are zero padded so a prefix scan returns them in order.

func artifactKey(kind dagash.Kind, epoch uint64) []byte {
	return []byte(fmt.Sprintf("artifact:%s:%010d", kind, epoch))
}

func kindPrefix(kind dagash.Kind) []byte {
	return []byte(fmt.Sprintf("artifact:%s:", kind))
}

func (s *BadgerStore) SaveArtifact(a *Artifact) error {
	val, err := encMode.Marshal(a)
	if err != nil {
		return fmt.Errorf("encoding artifact: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(artifactKey(a.Kind, a.Epoch), val)
	})
}

func (s *BadgerStore) GetArtifact(kind dagash.Kind, epoch uint64) (*Artifact, error) {
	var a Artifact
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(artifactKey(kind, epoch))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return fmt.Errorf("%s epoch %d: %w", kind, epoch, ErrArtifactNotFound)
			}
			return err
		}
		return item.Value(func(val []byte) error {
			return cbor.Unmarshal(val, &a)
		})
	})
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// ListArtifacts returns every artifact of kind, oldest epoch first.
func (s *BadgerStore) ListArtifacts(kind dagash.Kind) ([]*Artifact, error) {
	var out []*Artifact
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = kindPrefix(kind)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var a Artifact
			err := it.Item().Value(func(val []byte) error {
				return cbor.Unmarshal(val, &a)
			})
			if err != nil {
				return fmt.Errorf("decoding %s: %w", it.Item().Key(), err)
			}
			out = append(out, &a)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *BadgerStore) DeleteArtifact(kind dagash.Kind, epoch uint64) error {
	return s.db.Update(func(txn *badger.Txn) error {
		key := artifactKey(kind, epoch)
		if _, err := txn.Get(key); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return fmt.Errorf("%s epoch %d: %w", kind, epoch, ErrArtifactNotFound)
			}
			return err
		}
		return txn.Delete(key)
	})
}
