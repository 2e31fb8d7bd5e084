package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"

	badger "github.com/dgraph-io/badger/v4"
)

// ErrKeyNotFound is returned by GetKey when the key is absent.
var ErrKeyNotFound = badger.ErrKeyNotFound

type Config struct {
	Path     string
	InMemory bool
}

type Sequence interface {
	Next() (uint64, error)
	Release() error
}

type Storage interface {
	Close() error

	GetSequence(prefix []byte, inflightItem uint64) (Sequence, error)

	Exist(key []byte) (bool, error)
	GetKey(key []byte) ([]byte, error)
	GetByPrefix(prefix []byte) ([]*KeyValueItem, error)
	FirstKVHasPrefix(prefix []byte) ([]byte, []byte, error)

	// A key only counting keys that has a prefix, very efficient because only operating on lsm tree
	CountKeysByPrefix(prefix []byte) (int64, error)

	BatchWrite(updates map[string][]byte) error
	Move(src, dest []byte) error
	Set(key, value []byte) error
	SetIfAbsent(key, value []byte) (bool, error)
	Delete(key []byte) error
	DeleteByPrefix(prefix []byte) (int, error)

	GetCounter(key []byte, defaultValue ...uint64) (uint64, error)
	IncCounter(key []byte, defaultValue ...uint64) (uint64, error)
	// Vacuum reclaims value log space. It is a no-op when nothing can be rewritten.
	Vacuum() error

	Backup(ctx context.Context, w io.Writer, since uint64) (uint64, error)
	Load(ctx context.Context, r io.Reader) error
}

type KeyValueItem struct {
	Key   []byte
	Value []byte
}

type BadgerStorage struct {
	db   *badger.DB
	seqs []*badger.Sequence
}

// Create storage pool at the particular path
func NewWithPath(path string) (Storage, error) {
	return New(&Config{
		Path: path,
	})
}

// Create storage pool with the given config
func New(c *Config) (Storage, error) {
	opts := badger.DefaultOptions(c.Path)
	if c.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	// badger logs compaction chatter to stderr on info
	opts = opts.WithLoggingLevel(badger.WARNING)

	db, err := badger.Open(
		opts.WithSyncWrites(!c.InMemory),
	)

	if err != nil {
		return nil, err
	}

	return &BadgerStorage{
		db: db,

		seqs: make([]*badger.Sequence, 0),
	}, nil
}

func (s *BadgerStorage) Close() error {
	for _, seq := range s.seqs {
		if err := seq.Release(); err != nil {
			return err
		}
	}
	return s.db.Close()
}

func (s *BadgerStorage) BatchWrite(updates map[string][]byte) error {
	wb := s.db.NewWriteBatch()
	defer wb.Cancel()

	for k, v := range updates {
		if err := wb.Set([]byte(k), v); err != nil {
			return err
		}
	}

	return wb.Flush()
}

func (s *BadgerStorage) Set(key, value []byte) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, value)
	})
}

// SetIfAbsent writes value only when key does not exist yet. It reports
// whether the write happened.
func (s *BadgerStorage) SetIfAbsent(key, value []byte) (bool, error) {
	written := false
	err := s.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(key)
		if err == nil {
			return nil
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		written = true
		return txn.Set(key, value)
	})
	return written, err
}

func (s *BadgerStorage) Delete(key []byte) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(key)
	})
}

// DeleteByPrefix removes every key under prefix and returns how many went.
func (s *BadgerStorage) DeleteByPrefix(prefix []byte) (int, error) {
	if len(prefix) == 0 {
		return 0, fmt.Errorf("refusing to delete with an empty prefix")
	}

	var keys [][]byte
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	wb := s.db.NewWriteBatch()
	defer wb.Cancel()
	for _, k := range keys {
		if err := wb.Delete(k); err != nil {
			return 0, err
		}
	}

	return len(keys), wb.Flush()
}

// GetByPrefix return a list of key/value item whoser key prefix matches
func (s *BadgerStorage) GetByPrefix(prefix []byte) ([]*KeyValueItem, error) {
	var result []*KeyValueItem

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchSize = 30
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()

			k := item.KeyCopy(nil)
			v, e := item.ValueCopy(nil)
			if e != nil {
				return e
			}

			result = append(result, &KeyValueItem{
				Key:   k,
				Value: v,
			})
		}
		return nil
	})

	if err != nil {
		return result, err
	}

	return result, nil
}

// CountKeysByPrefix return total key under a specfic prefix
func (s *BadgerStorage) CountKeysByPrefix(prefix []byte) (int64, error) {
	total := int64(0)

	if len(prefix) == 0 {
		return 0, fmt.Errorf("cannot count prefix with length 0")
	}

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			total += 1
		}
		return nil
	})

	if err != nil {
		return 0, err
	}

	return total, nil
}

func (s *BadgerStorage) Exist(key []byte) (bool, error) {
	found := false
	err := s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(key)
		if err != nil {
			return err
		}

		found = true
		return nil
	})

	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}

	return found, err
}

func (s *BadgerStorage) GetKey(key []byte) ([]byte, error) {
	var value []byte

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}

		err = item.Value(func(val []byte) error {
			value = append([]byte{}, val...)
			return nil
		})

		return err
	})

	return value, err
}

// Wrap badgerdb sequence
func (s *BadgerStorage) GetSequence(prefix []byte, inflightItem uint64) (Sequence, error) {
	seq, e := s.db.GetSequence(prefix, inflightItem)
	if e != nil {
		return nil, e
	}

	s.seqs = append(s.seqs, seq)
	return seq, nil
}

func (s *BadgerStorage) FirstKVHasPrefix(prefix []byte) ([]byte, []byte, error) {
	var k []byte
	var v []byte

	err := s.db.View(func(txn *badger.Txn) error {
		itOpts := badger.DefaultIteratorOptions
		itOpts.PrefetchValues = true
		itOpts.PrefetchSize = 1
		it := txn.NewIterator(itOpts)

		// go to smallest key after prefix
		it.Seek(prefix)
		defer it.Close()
		// iteration done, no item found
		if !it.ValidForPrefix(prefix) {
			return nil
		}

		item := it.Item()

		k = item.KeyCopy(nil)

		var err error
		v, err = item.ValueCopy(nil)
		return err
	})

	if err == nil {
		return k, v, nil
	}

	return nil, nil, err
}

func (s *BadgerStorage) Move(src []byte, dest []byte) error {
	return s.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(src)
		if err != nil {
			return err
		}

		b, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}

		// key is found, we will delete from source, then set on target
		err = txn.Delete(src)
		if err != nil {
			return err
		}

		return txn.Set(dest, b)
	})
}

func (s *BadgerStorage) Vacuum() error {
	err := s.db.RunValueLogGC(0.7)
	if errors.Is(err, badger.ErrNoRewrite) || errors.Is(err, badger.ErrGCInMemoryMode) {
		return nil
	}
	return err
}

// GetCounter retrieves a counter value for a given key.
// If the key doesn't exist and defaultValue is provided, it returns the defaultValue.
func (s *BadgerStorage) GetCounter(key []byte, defaultValue ...uint64) (uint64, error) {
	var counter uint64

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err == badger.ErrKeyNotFound {
			if len(defaultValue) > 0 {
				counter = defaultValue[0]
				return nil
			}
			return err
		}
		if err != nil {
			return err
		}

		return item.Value(func(val []byte) error {
			parsedCounter, err := strconv.ParseUint(string(val), 10, 64)
			if err != nil {
				return fmt.Errorf("invalid counter format: %w", err)
			}
			counter = parsedCounter
			return nil
		})
	})

	if err != nil {
		return 0, err
	}

	return counter, nil
}

// IncCounter increments a counter value for a given key by 1.
// If the key doesn't exist it starts from defaultValue, or 0.
func (s *BadgerStorage) IncCounter(key []byte, defaultValue ...uint64) (uint64, error) {
	var newValue uint64

	err := s.db.Update(func(txn *badger.Txn) error {
		var startValue uint64 = 0
		if len(defaultValue) > 0 {
			startValue = defaultValue[0]
		}

		item, err := txn.Get(key)
		if err == badger.ErrKeyNotFound {
			newValue = startValue + 1
		} else if err != nil {
			return err
		} else {
			err = item.Value(func(val []byte) error {
				currentValue, err := strconv.ParseUint(string(val), 10, 64)
				if err != nil {
					return fmt.Errorf("invalid counter format: %w", err)
				}
				newValue = currentValue + 1
				return nil
			})
			if err != nil {
				return err
			}
		}

		// Store the new value as a string so we can inspect them easiser in console
		return txn.Set(key, []byte(strconv.FormatUint(newValue, 10)))
	})

	if err != nil {
		return 0, err
	}

	return newValue, nil
}

func (s *BadgerStorage) Backup(ctx context.Context, w io.Writer, since uint64) (uint64, error) {
	return s.db.Backup(w, since)
}

func (s *BadgerStorage) Load(ctx context.Context, r io.Reader) error {
	return s.db.Load(r, 16) // 16 is a good default for the number of concurrent threads
}
