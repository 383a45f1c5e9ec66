package source

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/G-Research/loganalyzer/internal/common/apperrors"
	"github.com/G-Research/loganalyzer/internal/loganalyzer/model"
	"github.com/G-Research/loganalyzer/internal/loganalyzer/repository"
)

const content = "line one\nline two\n"

func newSource(t *testing.T) (*FileSource, repository.LogRepository, string) {
	db, err := repository.NewMemoryDb()
	require.NoError(t, err)
	logs := repository.NewMemoryLogRepository(db)
	root := t.TempDir()
	return NewFileSource(root, logs), logs, root
}

func register(t *testing.T, logs repository.LogRepository, logId string, key string) {
	require.NoError(t, logs.Register(context.Background(), &model.LogFile{Id: logId, StorageKey: key}))
}

func read(t *testing.T, s *FileSource, logId string) string {
	reader, err := s.Open(context.Background(), logId)
	require.NoError(t, err)
	data, err := io.ReadAll(reader)
	require.NoError(t, err)
	require.NoError(t, reader.Close())
	return string(data)
}

func TestFileSource_SaveAndOpen(t *testing.T) {
	s, logs, root := newSource(t)

	stored, err := s.Save(context.Background(), StorageKey("log-1"), strings.NewReader(content))
	require.NoError(t, err)

	digest := sha256.Sum256([]byte(content))
	assert.Equal(t, &Stored{Key: "logs/log-1.log", Size: int64(len(content)), Sha256: hex.EncodeToString(digest[:])}, stored)
	assert.FileExists(t, filepath.Join(root, "logs", "log-1.log"))

	register(t, logs, "log-1", stored.Key)
	assert.Equal(t, content, read(t, s, "log-1"))

	size, err := s.Stat(context.Background(), stored.Key)
	require.NoError(t, err)
	assert.Equal(t, int64(len(content)), size)

	entries, err := os.ReadDir(filepath.Join(root, "logs"))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestFileSource_OpenGzip(t *testing.T) {
	s, logs, _ := newSource(t)
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	_, err := w.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	_, err = s.Save(context.Background(), "logs/archive.log.gz", &buf)
	require.NoError(t, err)
	register(t, logs, "log-1", "logs/archive.log.gz")

	assert.Equal(t, content, read(t, s, "log-1"))
}

func TestFileSource_OpenUnregistered(t *testing.T) {
	s, _, _ := newSource(t)
	_, err := s.Open(context.Background(), "log-1")
	var notFound *apperrors.ErrNotFound
	assert.True(t, errors.As(err, &notFound))
}

func TestFileSource_OpenMissingFile(t *testing.T) {
	s, logs, _ := newSource(t)
	register(t, logs, "log-1", "logs/missing.log")
	_, err := s.Open(context.Background(), "log-1")
	assert.Error(t, err)
}

func TestFileSource_KeysStayInsideRoot(t *testing.T) {
	s, _, root := newSource(t)
	stored, err := s.Save(context.Background(), "../../escape.log", strings.NewReader(content))
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(root, "escape.log"))

	_, err = s.Stat(context.Background(), stored.Key)
	assert.NoError(t, err)
}

func TestFileSource_Delete(t *testing.T) {
	s, _, _ := newSource(t)
	_, err := s.Save(context.Background(), "logs/log-1.log", strings.NewReader(content))
	require.NoError(t, err)

	require.NoError(t, s.Delete(context.Background(), "logs/log-1.log"))
	_, err = s.Stat(context.Background(), "logs/log-1.log")
	var notFound *apperrors.ErrNotFound
	assert.True(t, errors.As(err, &notFound))

	assert.NoError(t, s.Delete(context.Background(), "logs/log-1.log"))
}
