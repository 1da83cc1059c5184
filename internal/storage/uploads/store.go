package uploads

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/oklog/ulid/v2"
	"golang.org/x/crypto/blake2b"

	"github.com/yndnr/sockhttpd/internal/core/domain"
)

// Config configures a Store.
type Config struct {
	// Dir receives the uploaded files. It is created when missing.
	Dir string

	// IndexDir holds the Badger index. Empty keeps the index in memory.
	IndexDir string

	Logger *slog.Logger
}

// Store writes uploaded files and indexes them together with the
// submissions they arrived with.
type Store struct {
	dir    string
	index  *Index
	logger *slog.Logger
	now    func() time.Time
	newID  func(time.Time) ulid.ULID
}

// NewStore prepares the upload directory and opens the index.
func NewStore(cfg Config) (*Store, error) {
	if cfg.Dir == "" {
		return nil, errors.New("uploads: dir is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("uploads: create dir: %w", err)
	}
	index, err := OpenIndex(cfg.IndexDir, logger)
	if err != nil {
		return nil, err
	}

	return &Store{
		dir:    cfg.Dir,
		index:  index,
		logger: logger,
		now:    time.Now,
		newID: func(t time.Time) ulid.ULID {
			return ulid.MustNew(ulid.Timestamp(t), ulid.DefaultEntropy())
		},
	}, nil
}

// Dir returns the directory uploads are written to.
func (s *Store) Dir() string {
	return s.dir
}

// Index returns the record index.
func (s *Store) Index() *Index {
	return s.index
}

// Save writes one upload and records it. The file is written under a
// temporary name and renamed into place, so readers never see a partial
// file.
func (s *Store) Save(ctx context.Context, up Upload) (*Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	now := s.now()
	id := s.newID(now).String()
	base := BaseName(up.FileName)
	stored := id + "_" + base
	target := filepath.Join(s.dir, stored)

	digest := blake2b.Sum256(up.Content)

	tmp, err := os.CreateTemp(s.dir, ".upload-*")
	if err != nil {
		return nil, fmt.Errorf("uploads: create temp file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { os.Remove(tmpName) }

	if _, err := tmp.Write(up.Content); err != nil {
		tmp.Close()
		cleanup()
		return nil, fmt.Errorf("uploads: write %s: %w", stored, err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return nil, fmt.Errorf("uploads: close %s: %w", stored, err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		cleanup()
		return nil, fmt.Errorf("uploads: chmod %s: %w", stored, err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		cleanup()
		return nil, fmt.Errorf("uploads: rename %s: %w", stored, err)
	}

	contentType := up.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	rec := &Record{
		ID:          id,
		Field:       up.Field,
		FileName:    base,
		StoredName:  stored,
		ContentType: contentType,
		Size:        int64(len(up.Content)),
		Digest:      hex.EncodeToString(digest[:]),
		ClientAddr:  up.ClientAddr,
		RequestID:   up.RequestID,
		CreatedAt:   now.UTC(),
	}
	if err := s.index.Put(ctx, rec); err != nil {
		os.Remove(target)
		return nil, fmt.Errorf("uploads: index %s: %w", stored, err)
	}

	s.logger.Info("upload stored",
		"id", id,
		"file", stored,
		"size", rec.Size,
		"digest", rec.Digest[:16],
		"request_id", up.RequestID)
	return rec, nil
}

// SaveSubmission records one submission under a new id.
func (s *Store) SaveSubmission(ctx context.Context, sub Submission) (*SubmissionRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	now := s.now()
	rec := &SubmissionRecord{
		ID:         s.newID(now).String(),
		Fields:     sub.Fields,
		JSON:       sub.JSON,
		Uploads:    sub.Uploads,
		ClientAddr: sub.ClientAddr,
		RequestID:  sub.RequestID,
		CreatedAt:  now.UTC(),
	}
	if err := s.index.PutSubmission(ctx, rec); err != nil {
		return nil, fmt.Errorf("uploads: index submission: %w", err)
	}
	s.logger.Debug("submission stored",
		"id", rec.ID,
		"fields", len(rec.Fields),
		"uploads", len(rec.Uploads),
		"request_id", sub.RequestID)
	return rec, nil
}

// Activity reports the number of stored uploads and submissions together
// with the newest limit uploads.
func (s *Store) Activity(ctx context.Context, limit int) (*domain.UploadActivity, error) {
	files, err := s.index.Count(ctx)
	if err != nil {
		return nil, err
	}
	subs, err := s.index.CountSubmissions(ctx)
	if err != nil {
		return nil, err
	}
	recs, err := s.index.Recent(ctx, limit)
	if err != nil {
		return nil, err
	}

	act := &domain.UploadActivity{
		Files:       files,
		Submissions: subs,
		Recent:      make([]domain.UploadSummary, 0, len(recs)),
	}
	for _, r := range recs {
		act.Recent = append(act.Recent, domain.UploadSummary{
			ID:          r.ID,
			FileName:    r.FileName,
			ContentType: r.ContentType,
			Size:        r.Size,
			Digest:      r.Digest,
			CreatedAt:   r.CreatedAt,
		})
	}
	return act, nil
}

// Close closes the index.
func (s *Store) Close() error {
	return s.index.Close()
}
