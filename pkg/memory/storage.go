package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/ristretto/v2"
)

// Store is the persistence interface the engine, ledger and retry manager
// operate through. It is the single source of truth for stability,
// embedding status and correction rows.
type Store interface {
	// NextID allocates a new record identity.
	NextID() (int64, error)

	PutRecord(ctx context.Context, rec *MemoryRecord) error
	GetRecord(ctx context.Context, id int64) (*MemoryRecord, error)
	DeleteRecord(ctx context.Context, id int64) error
	ListRecords(ctx context.Context) ([]*MemoryRecord, error)

	GetCorrection(ctx context.Context, id string) (*Correction, error)
	ListCorrections(ctx context.Context) ([]*Correction, error)

	// CorrectionsFor returns corrections touching the id on either side,
	// newest first.
	CorrectionsFor(ctx context.Context, id int64) ([]*Correction, error)

	// PutEdge records a best-effort causal edge.
	PutEdge(ctx context.Context, edge *CausalEdge) error

	// Transact runs fn inside one atomic storage transaction: either every
	// write in fn commits, or none do.
	Transact(ctx context.Context, fn func(tx Tx) error) error

	Close() error
}

// Tx is the write surface available inside a Transact call.
type Tx interface {
	PutRecord(rec *MemoryRecord) error
	PutCorrection(cor *Correction) error
}

const (
	recordKeyPrefix     = "mem:"
	correctionKeyPrefix = "cor:"
	edgeKeyPrefix       = "edge:"
	recordSeqKey        = "seq:mem"
)

func recordKey(id int64) []byte {
	return []byte(fmt.Sprintf("%s%016d", recordKeyPrefix, id))
}

func correctionKey(id string) []byte {
	return []byte(correctionKeyPrefix + id)
}

func edgeKey(edge *CausalEdge) []byte {
	return []byte(fmt.Sprintf("%s%d:%d:%s", edgeKeyPrefix, edge.From, edge.To, edge.Relation))
}

// BadgerStore persists records, corrections and edges in Badger, with a
// ristretto read cache in front of record lookups.
type BadgerStore struct {
	db    *badger.DB
	seq   *badger.Sequence
	cache *ristretto.Cache[int64, *MemoryRecord]

	// ownsDB marks whether Close should close the underlying DB.
	ownsDB bool
}

// StoreOptions configures a BadgerStore.
type StoreOptions struct {
	// CacheSize is the maximum number of records held in the read cache.
	CacheSize int64
}

// OpenStore opens (or creates) a Badger-backed store at dir.
func OpenStore(dir string, opts StoreOptions) (*BadgerStore, error) {
	badgerOpts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, fmt.Errorf("memory: open store: %w", err)
	}
	store, err := NewBadgerStore(db, opts)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	store.ownsDB = true
	return store, nil
}

// NewBadgerStore wraps an existing Badger DB whose lifecycle is managed by
// the caller.
func NewBadgerStore(db *badger.DB, opts StoreOptions) (*BadgerStore, error) {
	if opts.CacheSize <= 0 {
		opts.CacheSize = 4096
	}

	seq, err := db.GetSequence([]byte(recordSeqKey), 64)
	if err != nil {
		return nil, fmt.Errorf("memory: record sequence: %w", err)
	}

	cache, err := ristretto.NewCache(&ristretto.Config[int64, *MemoryRecord]{
		NumCounters: opts.CacheSize * 10,
		MaxCost:     opts.CacheSize,
		BufferItems: 64,
	})
	if err != nil {
		_ = seq.Release()
		return nil, fmt.Errorf("memory: record cache: %w", err)
	}

	return &BadgerStore{db: db, seq: seq, cache: cache}, nil
}

// NextID allocates a new record identity from the badger sequence.
// IDs start at 1; 0 is reserved as "no correction target".
func (s *BadgerStore) NextID() (int64, error) {
	n, err := s.seq.Next()
	if err != nil {
		return 0, fmt.Errorf("memory: next id: %w", err)
	}
	return int64(n) + 1, nil
}

// PutRecord persists a record. Stability is clamped on every write.
func (s *BadgerStore) PutRecord(ctx context.Context, rec *MemoryRecord) error {
	rec.Stability = clampStability(rec.Stability)
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("memory: marshal record: %w", err)
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(recordKey(rec.ID), data)
	})
	if err != nil {
		return fmt.Errorf("memory: put record %d: %w", rec.ID, err)
	}
	s.cache.Set(rec.ID, cloneRecord(rec), 1)
	return nil
}

// GetRecord retrieves a record by id, from cache when possible.
func (s *BadgerStore) GetRecord(ctx context.Context, id int64) (*MemoryRecord, error) {
	if rec, ok := s.cache.Get(id); ok {
		return cloneRecord(rec), nil
	}

	var rec MemoryRecord
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(recordKey(id))
		if err == badger.ErrKeyNotFound {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &rec)
		})
	})
	if err != nil {
		return nil, err
	}
	s.cache.Set(id, cloneRecord(&rec), 1)
	return &rec, nil
}

// DeleteRecord removes a record. Deleting a missing record is not an error.
func (s *BadgerStore) DeleteRecord(ctx context.Context, id int64) error {
	s.cache.Del(id)
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(recordKey(id))
	})
}

// ListRecords returns all records ordered by id.
func (s *BadgerStore) ListRecords(ctx context.Context) ([]*MemoryRecord, error) {
	var records []*MemoryRecord
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(recordKeyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var rec MemoryRecord
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			}); err != nil {
				return err
			}
			records = append(records, &rec)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("memory: list records: %w", err)
	}
	return records, nil
}

// GetCorrection retrieves a ledger row by id.
func (s *BadgerStore) GetCorrection(ctx context.Context, id string) (*Correction, error) {
	var cor Correction
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(correctionKey(id))
		if err == badger.ErrKeyNotFound {
			return ErrCorrectionNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &cor)
		})
	})
	if err != nil {
		return nil, err
	}
	return &cor, nil
}

// ListCorrections returns every ledger row.
func (s *BadgerStore) ListCorrections(ctx context.Context) ([]*Correction, error) {
	var corrections []*Correction
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(correctionKeyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var cor Correction
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &cor)
			}); err != nil {
				return err
			}
			corrections = append(corrections, &cor)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("memory: list corrections: %w", err)
	}
	return corrections, nil
}

// CorrectionsFor returns corrections touching the id on either side,
// newest first.
func (s *BadgerStore) CorrectionsFor(ctx context.Context, id int64) ([]*Correction, error) {
	all, err := s.ListCorrections(ctx)
	if err != nil {
		return nil, err
	}
	var matched []*Correction
	for _, cor := range all {
		if cor.OriginalID == id || cor.CorrectionID == id {
			matched = append(matched, cor)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return strings.Compare(matched[i].ID, matched[j].ID) < 0
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})
	return matched, nil
}

// PutEdge persists a causal edge.
func (s *BadgerStore) PutEdge(ctx context.Context, edge *CausalEdge) error {
	data, err := json.Marshal(edge)
	if err != nil {
		return fmt.Errorf("memory: marshal edge: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(edgeKey(edge), data)
	})
}

// badgerTx implements Tx on top of one badger transaction.
type badgerTx struct {
	txn     *badger.Txn
	touched []int64
}

func (t *badgerTx) PutRecord(rec *MemoryRecord) error {
	rec.Stability = clampStability(rec.Stability)
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("memory: marshal record: %w", err)
	}
	if err := t.txn.Set(recordKey(rec.ID), data); err != nil {
		return err
	}
	t.touched = append(t.touched, rec.ID)
	return nil
}

func (t *badgerTx) PutCorrection(cor *Correction) error {
	data, err := json.Marshal(cor)
	if err != nil {
		return fmt.Errorf("memory: marshal correction: %w", err)
	}
	return t.txn.Set(correctionKey(cor.ID), data)
}

// Transact runs fn inside one badger update. Cached records touched by fn
// are invalidated only after commit, so a failed transaction leaves the
// cache consistent with storage.
func (s *BadgerStore) Transact(ctx context.Context, fn func(tx Tx) error) error {
	var touched []int64
	err := s.db.Update(func(txn *badger.Txn) error {
		tx := &badgerTx{txn: txn}
		if err := fn(tx); err != nil {
			return err
		}
		touched = tx.touched
		return nil
	})
	if err != nil {
		return err
	}
	for _, id := range touched {
		s.cache.Del(id)
	}
	return nil
}

// Close releases the sequence and cache, and the DB if this store opened it.
func (s *BadgerStore) Close() error {
	if err := s.seq.Release(); err != nil {
		return fmt.Errorf("memory: release sequence: %w", err)
	}
	s.cache.Close()
	if s.ownsDB {
		return s.db.Close()
	}
	return nil
}
