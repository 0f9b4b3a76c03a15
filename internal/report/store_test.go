package report

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeMirror struct {
	err         error
	name        string
	data        []byte
	contentType string
	calls       int

	objects   map[string][]byte
	getErr    error
	downloads int
}

func (f *fakeMirror) Upload(_ context.Context, name string, data []byte, contentType string) (string, error) {
	f.calls++
	f.name = name
	f.data = data
	f.contentType = contentType
	if f.err == nil {
		if f.objects == nil {
			f.objects = map[string][]byte{}
		}
		f.objects[name] = data
	}
	return "reports/" + name, f.err
}

func (f *fakeMirror) Download(_ context.Context, name string) ([]byte, error) {
	f.downloads++
	if f.getErr != nil {
		return nil, f.getErr
	}
	data, ok := f.objects[name]
	if !ok {
		return nil, fs.ErrNotExist
	}
	return data, nil
}

func TestNewFileStore_EmptyPath(t *testing.T) {
	_, err := NewFileStore(" ", nil)
	require.ErrorContains(t, err, "path must not be empty")
}

func TestFileStore_SaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "relatorios_conversas.csv")
	s, err := NewFileStore(path, nil)
	require.NoError(t, err)
	require.Equal(t, path, s.Path())

	require.NoError(t, s.Save(context.Background(), sampleRows()))
	got, err := s.Load(context.Background())
	require.NoError(t, err)
	require.Equal(t, sampleRows(), got)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestFileStore_SaveUploads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "relatorios_conversas.csv")
	up := &fakeMirror{}
	s, err := NewFileStore(path, up)
	require.NoError(t, err)

	require.NoError(t, s.Save(context.Background(), sampleRows()))
	require.Equal(t, 1, up.calls)
	require.Equal(t, "relatorios_conversas.csv", up.name)
	require.Equal(t, contentTypeCSV, up.contentType)

	onDisk, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, onDisk, up.data)
}

func TestFileStore_UploadFailureKeepsLocalFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "relatorios_conversas.csv")
	s, err := NewFileStore(path, &fakeMirror{err: errors.New("access denied")})
	require.NoError(t, err)

	err = s.Save(context.Background(), sampleRows())
	var ue *UploadError
	require.True(t, errors.As(err, &ue))
	require.ErrorContains(t, err, "access denied")

	_, statErr := os.Stat(path)
	require.NoError(t, statErr)
}

func TestFileStore_LoadMissingOrEmpty(t *testing.T) {
	dir := t.TempDir()

	s, err := NewFileStore(filepath.Join(dir, "absent.csv"), nil)
	require.NoError(t, err)
	_, err = s.Load(context.Background())
	require.ErrorIs(t, err, ErrMissing)

	empty := filepath.Join(dir, "empty.csv")
	require.NoError(t, os.WriteFile(empty, nil, 0o600))
	s, err = NewFileStore(empty, nil)
	require.NoError(t, err)
	_, err = s.Load(context.Background())
	require.ErrorIs(t, err, ErrMissing)
}

func TestFileStore_LoadFallsBackToMirror(t *testing.T) {
	mirror := &fakeMirror{}
	warm, err := NewFileStore(filepath.Join(t.TempDir(), "relatorios_conversas.csv"), mirror)
	require.NoError(t, err)
	require.NoError(t, warm.Save(context.Background(), sampleRows()))

	coldPath := filepath.Join(t.TempDir(), "relatorios_conversas.csv")
	cold, err := NewFileStore(coldPath, mirror)
	require.NoError(t, err)

	got, err := cold.Load(context.Background())
	require.NoError(t, err)
	require.Equal(t, sampleRows(), got)
	require.Equal(t, 1, mirror.downloads)

	_, statErr := os.Stat(coldPath)
	require.ErrorIs(t, statErr, fs.ErrNotExist)
}

func TestFileStore_LocalFilePreferredOverMirror(t *testing.T) {
	mirror := &fakeMirror{}
	s, err := NewFileStore(filepath.Join(t.TempDir(), "relatorios_conversas.csv"), mirror)
	require.NoError(t, err)
	require.NoError(t, s.Save(context.Background(), sampleRows()))

	_, err = s.Load(context.Background())
	require.NoError(t, err)
	require.Zero(t, mirror.downloads)
}

func TestFileStore_MirrorMissOrFailure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "relatorios_conversas.csv")

	s, err := NewFileStore(path, &fakeMirror{})
	require.NoError(t, err)
	_, err = s.Load(context.Background())
	require.ErrorIs(t, err, ErrMissing)

	s, err = NewFileStore(path, &fakeMirror{objects: map[string][]byte{"relatorios_conversas.csv": []byte("  \n")}})
	require.NoError(t, err)
	_, err = s.Load(context.Background())
	require.ErrorIs(t, err, ErrMissing)

	s, err = NewFileStore(path, &fakeMirror{getErr: errors.New("AccessDenied")})
	require.NoError(t, err)
	_, err = s.Load(context.Background())
	require.ErrorContains(t, err, "AccessDenied")
	require.NotErrorIs(t, err, ErrMissing)
}
