package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/dgraph-io/badger/v4"
)

// Key prefixes for the two partitions.
var (
	puzzlePrefix   = []byte("c/")
	unsolvedPrefix = []byte("u/")
)

// BadgerStore persists registry state in an embedded BadgerDB.
type BadgerStore struct {
	db *badger.DB
}

// OpenBadgerStore opens (or creates) a BadgerDB at path. An empty path opens
// an in-memory database.
func OpenBadgerStore(path string, logger *slog.Logger) (*BadgerStore, error) {
	var opts badger.Options
	if path == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(path, 0750); err != nil {
			return nil, fmt.Errorf("create database directory %s: %w", path, err)
		}
		opts = badger.DefaultOptions(path).WithSyncWrites(true)
	}
	opts = opts.WithNumVersionsToKeep(1)
	if logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

func (s *BadgerStore) View(ctx context.Context, fn func(StateReader) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.View(func(txn *badger.Txn) error {
		return fn(&badgerState{txn: txn})
	})
}

func (s *BadgerStore) Update(ctx context.Context, fn func(State) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return fn(&badgerState{txn: txn})
	})
}

func (s *BadgerStore) Close() error {
	return s.db.Close()
}

type badgerState struct {
	txn *badger.Txn
}

func puzzleKey(hash string) []byte   { return append(append([]byte{}, puzzlePrefix...), hash...) }
func unsolvedKey(hash string) []byte { return append(append([]byte{}, unsolvedPrefix...), hash...) }

func (b *badgerState) Puzzle(hash string) (Puzzle, bool, error) {
	item, err := b.txn.Get(puzzleKey(hash))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return Puzzle{}, false, nil
	}
	if err != nil {
		return Puzzle{}, false, fmt.Errorf("get puzzle %s: %w", hash, err)
	}

	var p Puzzle
	if err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &p)
	}); err != nil {
		return Puzzle{}, false, fmt.Errorf("decode puzzle %s: %w", hash, err)
	}
	return p, true, nil
}

func (b *badgerState) UnsolvedHashes() ([]string, error) {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	opts.Prefix = unsolvedPrefix
	it := b.txn.NewIterator(opts)
	defer it.Close()

	var hashes []string
	for it.Rewind(); it.ValidForPrefix(unsolvedPrefix); it.Next() {
		key := it.Item().KeyCopy(nil)
		hashes = append(hashes, string(key[len(unsolvedPrefix):]))
	}
	return hashes, nil
}

func (b *badgerState) PutPuzzle(hash string, p Puzzle) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode puzzle %s: %w", hash, err)
	}
	return b.txn.Set(puzzleKey(hash), data)
}

func (b *badgerState) AddUnsolved(hash string) error {
	return b.txn.Set(unsolvedKey(hash), nil)
}

func (b *badgerState) RemoveUnsolved(hash string) error {
	return b.txn.Delete(unsolvedKey(hash))
}

// badgerLogger adapts slog.Logger to BadgerDB's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...any) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...any) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...any) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...any) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}
