package uploads

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/badger/v3"
)

// Index errors.
var (
	ErrRecordNotFound = errors.New("uploads: record not found")
	ErrIndexClosed    = errors.New("uploads: index closed")
)

// DefaultGCInterval is how often the value log is compacted.
const DefaultGCInterval = 10 * time.Minute

var (
	recordPrefix     = []byte("upload/")
	submissionPrefix = []byte("submission/")
)

// Index stores upload and submission records in Badger.
type Index struct {
	db       *badger.DB
	logger   *slog.Logger
	inMemory bool
	closed   atomic.Bool

	stopCh chan struct{}
	doneCh chan struct{}
}

// OpenIndex opens the index in dir. An empty dir keeps it in memory.
func OpenIndex(dir string, logger *slog.Logger) (*Index, error) {
	if logger == nil {
		logger = slog.Default()
	}

	opts := badger.DefaultOptions(dir)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	opts.Logger = &badgerLogger{logger: logger}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("uploads: open index: %w", err)
	}

	idx := &Index{
		db:       db,
		logger:   logger,
		inMemory: dir == "",
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
	go idx.gcLoop(DefaultGCInterval)

	logger.Info("upload index opened",
		"dir", dir,
		"in_memory", idx.inMemory)
	return idx, nil
}

func recordKey(prefix []byte, id string) []byte {
	return append(append([]byte(nil), prefix...), id...)
}

// Put stores or replaces an upload record.
func (i *Index) Put(ctx context.Context, r *Record) error {
	return i.put(ctx, recordPrefix, r.ID, r)
}

// Get returns the upload record with the given id.
func (i *Index) Get(ctx context.Context, id string) (*Record, error) {
	return get[Record](ctx, i, recordPrefix, id)
}

// Recent returns up to limit upload records, newest first. A limit <= 0
// returns every record.
func (i *Index) Recent(ctx context.Context, limit int) ([]*Record, error) {
	return recent[Record](ctx, i, recordPrefix, limit)
}

// Count returns the number of upload records.
func (i *Index) Count(ctx context.Context) (int, error) {
	return i.count(ctx, recordPrefix)
}

// PutSubmission stores or replaces a submission record.
func (i *Index) PutSubmission(ctx context.Context, r *SubmissionRecord) error {
	return i.put(ctx, submissionPrefix, r.ID, r)
}

// GetSubmission returns the submission record with the given id.
func (i *Index) GetSubmission(ctx context.Context, id string) (*SubmissionRecord, error) {
	return get[SubmissionRecord](ctx, i, submissionPrefix, id)
}

// CountSubmissions returns the number of submission records.
func (i *Index) CountSubmissions(ctx context.Context) (int, error) {
	return i.count(ctx, submissionPrefix)
}

func (i *Index) put(ctx context.Context, prefix []byte, id string, v any) error {
	if i.closed.Load() {
		return ErrIndexClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("uploads: encode record: %w", err)
	}
	return i.db.Update(func(txn *badger.Txn) error {
		return txn.Set(recordKey(prefix, id), data)
	})
}

func get[T any](ctx context.Context, i *Index, prefix []byte, id string) (*T, error) {
	if i.closed.Load() {
		return nil, ErrIndexClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var rec *T
	err := i.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(recordKey(prefix, id))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return ErrRecordNotFound
			}
			return err
		}
		return item.Value(func(val []byte) error {
			rec, err = decode[T](val)
			return err
		})
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// recent walks prefix backwards. ULID keys sort by creation time.
func recent[T any](ctx context.Context, i *Index, prefix []byte, limit int) ([]*T, error) {
	if i.closed.Load() {
		return nil, ErrIndexClosed
	}

	var out []*T
	err := i.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		opts.Reverse = true
		it := txn.NewIterator(opts)
		defer it.Close()

		seek := append(append([]byte(nil), prefix...), 0xFF)
		for it.Seek(seek); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			val, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			rec, err := decode[T](val)
			if err != nil {
				return fmt.Errorf("uploads: decode %s: %w", it.Item().Key(), err)
			}
			out = append(out, rec)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (i *Index) count(ctx context.Context, prefix []byte) (int, error) {
	if i.closed.Load() {
		return 0, ErrIndexClosed
	}

	n := 0
	err := i.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
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

// Close stops background GC and closes the database.
func (i *Index) Close() error {
	if !i.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(i.stopCh)
	<-i.doneCh

	if err := i.db.Close(); err != nil {
		return fmt.Errorf("uploads: close index: %w", err)
	}
	i.logger.Info("upload index closed")
	return nil
}

// gcLoop compacts the value log. In-memory indexes have no value log.
func (i *Index) gcLoop(interval time.Duration) {
	defer close(i.doneCh)
	if i.inMemory {
		<-i.stopCh
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			for {
				err := i.db.RunValueLogGC(0.5)
				if err == nil {
					continue
				}
				if !errors.Is(err, badger.ErrNoRewrite) {
					i.logger.Error("upload index gc failed", "error", err)
				}
				break
			}
		case <-i.stopCh:
			return
		}
	}
}

// badgerLogger adapts slog.Logger to Badger's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...), "component", "badger")
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...), "component", "badger")
}

// Infof demotes Badger's informational output to debug.
func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...), "component", "badger")
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...), "component", "badger")
}
