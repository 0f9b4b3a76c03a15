package report

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"lead-dashboard/internal/domain"
)

// ErrMissing is returned by FileStore.Load when the table file does not exist
// or is empty.
var ErrMissing = errors.New("report: table file not found or empty")

const contentTypeCSV = "text/csv; charset=utf-8"

// Mirror copies an encoded table to object storage and reads it back. A
// missing object must yield an error matching fs.ErrNotExist.
type Mirror interface {
	Upload(ctx context.Context, name string, data []byte, contentType string) (string, error)
	Download(ctx context.Context, name string) ([]byte, error)
}

// UploadError wraps an upload failure that happened after the local file was
// written successfully.
type UploadError struct {
	Err error
}

func (e *UploadError) Error() string { return "report: upload: " + e.Err.Error() }
func (e *UploadError) Unwrap() error { return e.Err }

// FileStore keeps the flat table at a filesystem path and optionally mirrors
// it to object storage.
type FileStore struct {
	path   string
	mirror Mirror
}

// NewFileStore creates a FileStore. mirror may be nil.
func NewFileStore(path string, mirror Mirror) (*FileStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("report: path must not be empty")
	}
	return &FileStore{path: path, mirror: mirror}, nil
}

// Path returns the table location on disk.
func (s *FileStore) Path() string { return s.path }

// Save replaces the table with rows. The file is written to a temporary
// sibling and renamed into place. When a mirror is configured the same
// bytes are uploaded afterwards; an upload failure is returned as
// *UploadError.
func (s *FileStore) Save(ctx context.Context, rows []domain.AnalysisRow) error {
	var buf bytes.Buffer
	if err := Write(&buf, rows); err != nil {
		return err
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("report: create dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".report-*.csv")
	if err != nil {
		return fmt.Errorf("report: create temp file: %w", err)
	}
	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("report: write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("report: close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("report: replace table: %w", err)
	}

	if s.mirror == nil {
		return nil
	}
	if _, err := s.mirror.Upload(ctx, filepath.Base(s.path), buf.Bytes(), contentTypeCSV); err != nil {
		return &UploadError{Err: err}
	}
	return nil
}

// Load reads the table back. When the local file is missing or empty and a
// mirror is configured, the mirrored copy is read instead; the local file is
// left untouched. A table found nowhere yields ErrMissing.
func (s *FileStore) Load(ctx context.Context) ([]domain.AnalysisRow, error) {
	data, err := os.ReadFile(s.path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("report: read table: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		if data, err = s.download(ctx); err != nil {
			return nil, err
		}
	}
	return Read(bytes.NewReader(data))
}

func (s *FileStore) download(ctx context.Context) ([]byte, error) {
	if s.mirror == nil {
		return nil, ErrMissing
	}
	data, err := s.mirror.Download(ctx, filepath.Base(s.path))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrMissing
	}
	if err != nil {
		return nil, fmt.Errorf("report: download table: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, ErrMissing
	}
	return data, nil
}
