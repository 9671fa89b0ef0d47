package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"
)

const (
	processedPrefix = "processed:"
)

func boxPrefix(box Box) string { return "mail:" + string(box) + ":" }

func mailKey(box Box, id string) []byte { return []byte(boxPrefix(box) + id) }

// BadgerMailStore persists mail in Badger so unprocessed lessons survive
// restarts. ULID ids keep prefix iteration in send order.
type BadgerMailStore struct {
	db     *badger.DB
	ownsDB bool
	logger *zap.Logger
}

// OpenBadgerMailStore opens a dedicated database at path.
func OpenBadgerMailStore(path string, logger *zap.Logger) (*BadgerMailStore, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger mailbox: %w", err)
	}
	s, _ := NewBadgerMailStore(db, logger)
	s.ownsDB = true
	return s, nil
}

// NewBadgerMailStore uses an already open database.
func NewBadgerMailStore(db *badger.DB, logger *zap.Logger) (*BadgerMailStore, error) {
	if db == nil {
		return nil, fmt.Errorf("badger db cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BadgerMailStore{db: db, logger: logger}, nil
}

func (s *BadgerMailStore) Append(ctx context.Context, box Box, m Mail) error {
	data, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		return txn.Set(mailKey(box, m.ID), data)
	})
}

func (s *BadgerMailStore) List(ctx context.Context, box Box) ([]Mail, error) {
	out := make([]Mail, 0)
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(boxPrefix(box))
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var m Mail
			if err := it.Item().Value(func(v []byte) error { return json.Unmarshal(v, &m) }); err != nil {
				// One bad entry must not hide the rest of the box.
				mailCorrupt.WithLabelValues(string(box)).Inc()
				s.logger.Warn("skipping undecodable mail",
					zap.String("box", string(box)),
					zap.ByteString("key", it.Item().KeyCopy(nil)),
					zap.Error(err))
				continue
			}
			out = append(out, m)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *BadgerMailStore) MarkProcessed(ctx context.Context, id string) (bool, error) {
	marked := false
	err := s.db.Update(func(txn *badger.Txn) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		key := []byte(processedPrefix + id)
		if _, err := txn.Get(key); err == nil {
			return nil
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		if _, err := txn.Get(mailKey(Inbox, id)); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return nil
			}
			return err
		}
		if err := txn.Set(key, []byte{}); err != nil {
			return err
		}
		marked = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return marked, nil
}

func (s *BadgerMailStore) IsProcessed(ctx context.Context, id string) (bool, error) {
	found := false
	err := s.db.View(func(txn *badger.Txn) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		_, err := txn.Get([]byte(processedPrefix + id))
		switch {
		case err == nil:
			found = true
			return nil
		case errors.Is(err, badger.ErrKeyNotFound):
			return nil
		default:
			return err
		}
	})
	return found, err
}

func (s *BadgerMailStore) ProcessedCount(ctx context.Context) (int, error) {
	n := 0
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(processedPrefix)
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			n++
		}
		return nil
	})
	return n, err
}

// Close closes the database if this store opened it.
func (s *BadgerMailStore) Close() error {
	if s.ownsDB {
		return s.db.Close()
	}
	return nil
}
