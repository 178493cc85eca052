// Package badger provides an embedded store.JobStore backed by BadgerDB
// through badgerhold. It suits single-node deployments and local development
// where running PostgreSQL is not wanted.
package badger

import (
	"fmt"
	"log/slog"
	"os"

	dgbadger "github.com/dgraph-io/badger/v4"
	"github.com/timshannon/badgerhold/v4"
)

// BadgerDB manages the Badger database connection
type BadgerDB struct {
	store  *badgerhold.Store
	logger *slog.Logger
}

// Open creates or opens the database at path.
func Open(path string, logger *slog.Logger) (*BadgerDB, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "badger", "path", path)

	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	options := badgerhold.DefaultOptions
	options.Dir = path
	options.ValueDir = path
	options.Logger = &slogBadgerLogger{logger: logger}

	store, err := badgerhold.Open(options)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger database: %w", err)
	}

	logger.Debug("badger database initialized")
	return &BadgerDB{store: store, logger: logger}, nil
}

// Store returns the underlying badgerhold store
func (b *BadgerDB) Store() *badgerhold.Store {
	return b.store
}

// Close closes the database connection
func (b *BadgerDB) Close() error {
	if b.store != nil {
		return b.store.Close()
	}
	return nil
}

// slogBadgerLogger routes badger's internal logging through slog. Info and
// debug chatter is demoted to debug.
type slogBadgerLogger struct {
	logger *slog.Logger
}

var _ dgbadger.Logger = (*slogBadgerLogger)(nil)

func (l *slogBadgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *slogBadgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *slogBadgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l *slogBadgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}
