// Package history keeps recent dictation results on disk so text can be
// recovered when a paste goes to the wrong window.
package history

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"go.aimuz.me/localflow/internal/types"
)

// DefaultTTL is how long an entry is kept.
const DefaultTTL = 7 * 24 * time.Hour

var keyPrefix = []byte("entry/")

// ErrClosed is returned after Close.
var ErrClosed = errors.New("history: store closed")

// Entry is one stored dictation result.
type Entry struct {
	ID         string        `json:"id"`
	Text       string        `json:"text"`
	Mode       types.Mode    `json:"mode"`
	WordCount  int           `json:"wordCount"`
	Processing time.Duration `json:"processing"`
	Pasted     bool          `json:"pasted"`
	CreatedAt  time.Time     `json:"createdAt"`
}

// Options configures a Store.
type Options struct {
	// Dir is the database directory. Empty means in-memory.
	Dir string
	TTL time.Duration
}

// Store is a badger-backed, time-ordered log of entries.
type Store struct {
	db  *badger.DB
	ttl time.Duration
	now func() time.Time
}

// Open opens or creates the store.
func Open(opts Options) (*Store, error) {
	bopts := badger.DefaultOptions(opts.Dir).WithLogger(badgerLogger{})
	if opts.Dir == "" {
		bopts = bopts.WithInMemory(true)
	}
	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("open history: %w", err)
	}

	ttl := opts.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{db: db, ttl: ttl, now: time.Now}, nil
}

// Add stores e, filling in ID and CreatedAt when unset.
func (s *Store) Add(e Entry) (Entry, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.now()
	}
	id, err := uuid.Parse(e.ID)
	if err != nil {
		return Entry{}, fmt.Errorf("history: entry id: %w", err)
	}

	val, err := json.Marshal(e)
	if err != nil {
		return Entry{}, fmt.Errorf("marshal entry: %w", err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.SetEntry(badger.NewEntry(entryKey(e.CreatedAt, id), val).WithTTL(s.ttl))
	})
	if err != nil {
		return Entry{}, s.wrap("add entry", err)
	}
	return e, nil
}

// Recent returns up to limit entries, newest first.
func (s *Store) Recent(limit int) ([]Entry, error) {
	var out []Entry
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = keyPrefix
		it := txn.NewIterator(opts)
		defer it.Close()

		// Seek past the largest possible key under the prefix.
		seek := append(append([]byte{}, keyPrefix...), 0xff)
		for it.Seek(seek); it.ValidForPrefix(keyPrefix); it.Next() {
			if limit > 0 && len(out) >= limit {
				break
			}
			var e Entry
			err := it.Item().Value(func(v []byte) error {
				return json.Unmarshal(v, &e)
			})
			if err != nil {
				return fmt.Errorf("decode entry %x: %w", it.Item().Key(), err)
			}
			out = append(out, e)
		}
		return nil
	})
	if err != nil {
		return nil, s.wrap("list entries", err)
	}
	return out, nil
}

// Count returns the number of live entries.
func (s *Store) Count() (int, error) {
	n := 0
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = keyPrefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.ValidForPrefix(keyPrefix); it.Next() {
			n++
		}
		return nil
	})
	if err != nil {
		return 0, s.wrap("count entries", err)
	}
	return n, nil
}

// Close flushes and closes the database.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close history: %w", err)
	}
	return nil
}

func (s *Store) wrap(op string, err error) error {
	if errors.Is(err, badger.ErrDBClosed) {
		return ErrClosed
	}
	return fmt.Errorf("%s: %w", op, err)
}

// entryKey orders entries by creation time; the id breaks ties.
func entryKey(at time.Time, id uuid.UUID) []byte {
	key := make([]byte, 0, len(keyPrefix)+8+len(id))
	key = append(key, keyPrefix...)
	key = binary.BigEndian.AppendUint64(key, uint64(at.UnixNano()))
	return append(key, id[:]...)
}

// badgerLogger routes badger's logging into slog.
type badgerLogger struct{}

func (badgerLogger) Errorf(f string, args ...any) {
	slog.Error(fmt.Sprintf(f, args...), "component", "history")
}

func (badgerLogger) Warningf(f string, args ...any) {
	slog.Warn(fmt.Sprintf(f, args...), "component", "history")
}

func (badgerLogger) Infof(f string, args ...any) {
	slog.Debug(fmt.Sprintf(f, args...), "component", "history")
}

func (badgerLogger) Debugf(f string, args ...any) {
	slog.Debug(fmt.Sprintf(f, args...), "component", "history")
}
