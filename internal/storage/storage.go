// Package storage writes generated tests to disk and reads existing ones back.
package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kamilpajak/testpilot/internal/testcode"
	"github.com/kamilpajak/testpilot/pkg/models"
)

// Record describes a saved test for an index.
type Record struct {
	TestName string
	FilePath string
	SHA256   string
	Bytes    int
	SavedAt  time.Time
}

// Recorder indexes saved tests. Recording is best effort: a failure is
// logged and never fails the save itself.
type Recorder interface {
	RecordSave(ctx context.Context, rec Record) error
}

// FS saves tests as files under their output directory.
type FS struct {
	recorder Recorder
	logger   *zap.Logger
	now      func() time.Time
}

// Option configures an FS.
type Option func(*FS)

// WithRecorder indexes every successful save.
func WithRecorder(r Recorder) Option {
	return func(s *FS) { s.recorder = r }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *FS) { s.logger = l.Named("storage") }
}

// WithClock overrides the time source used for records.
func WithClock(now func() time.Time) Option {
	return func(s *FS) { s.now = now }
}

// NewFS creates a file-system store.
func NewFS(opts ...Option) *FS {
	s := &FS{logger: zap.NewNop(), now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Save writes req.Code to <output dir>/<slug>.spec.ts, creating the directory
// when needed. An existing file with the same name is overwritten.
func (s *FS) Save(ctx context.Context, req models.SaveRequest) *models.SaveOutcome {
	dir := req.Dir()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return &models.SaveOutcome{Success: false, Error: fmt.Sprintf("Failed to save test: %v", err)}
	}

	path := filepath.Join(dir, testcode.FileName(req.TestName))
	if err := os.WriteFile(path, []byte(req.Code), 0644); err != nil {
		return &models.SaveOutcome{Success: false, Error: fmt.Sprintf("Failed to save test: %v", err)}
	}

	s.logger.Debug("Saved test", zap.String("path", path), zap.Int("bytes", len(req.Code)))

	if s.recorder != nil {
		sum := sha256.Sum256([]byte(req.Code))
		rec := Record{
			TestName: req.TestName,
			FilePath: path,
			SHA256:   hex.EncodeToString(sum[:]),
			Bytes:    len(req.Code),
			SavedAt:  s.now().UTC(),
		}
		if err := s.recorder.RecordSave(ctx, rec); err != nil {
			s.logger.Warn("Failed to index saved test", zap.String("path", path), zap.Error(err))
		}
	}

	return &models.SaveOutcome{Success: true, FilePath: path}
}

// ErrOutsideRoot is returned when a requested output directory escapes the
// storage root.
var ErrOutsideRoot = errors.New("output directory is outside the storage root")

// Confine resolves dir under root. An empty dir is root itself and a relative
// dir is joined onto it; the result must not leave root.
func Confine(root, dir string) (string, error) {
	if root == "" {
		root = models.DefaultOutputDir
	}
	root = filepath.Clean(root)
	if dir == "" {
		return root, nil
	}

	target := filepath.Clean(dir)
	if !filepath.IsAbs(target) {
		target = filepath.Join(root, target)
	}

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("failed to resolve storage root: %w", err)
	}
	absTarget, err := filepath.Abs(target)
	if err != nil {
		return "", fmt.Errorf("failed to resolve output directory: %w", err)
	}
	rel, err := filepath.Rel(absRoot, absTarget)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrOutsideRoot, dir)
	}
	return target, nil
}

// Read returns the content of an existing test file.
func (s *FS) Read(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read file %s: %w", path, err)
	}
	return string(data), nil
}
