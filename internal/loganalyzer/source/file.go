// Package source stores uploaded log files on local disk and streams them back to the ingestion pipeline.
package source

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"path"
	"path/filepath"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/G-Research/loganalyzer/internal/common/apperrors"
	"github.com/G-Research/loganalyzer/internal/common/compress"
	"github.com/G-Research/loganalyzer/internal/loganalyzer/repository"
)

// StorageKey returns the key uploaded files of logId are stored under.
func StorageKey(logId string) string {
	return "logs/" + logId + ".log"
}

// Stored describes a file written by Save.
type Stored struct {
	Key    string
	Size   int64
	Sha256 string
}

// FileSource keeps log files under a root directory, addressed by storage key. Keys are slash separated and can not
// escape the root.
type FileSource struct {
	root string
	logs repository.LogRepository
}

// NewFileSource returns a source rooted at root. logs resolves log ids to storage keys when opening a file.
func NewFileSource(root string, logs repository.LogRepository) *FileSource {
	return &FileSource{root: root, logs: logs}
}

// Open streams the content of a registered log file. Gzip and zstd compressed files are decompressed.
func (s *FileSource) Open(ctx context.Context, logId string) (io.ReadCloser, error) {
	logFile, err := s.logs.Get(ctx, logId)
	if err != nil {
		return nil, err
	}
	if logFile == nil {
		return nil, errors.WithStack(&apperrors.ErrNotFound{Type: "log", Value: logId})
	}
	f, err := os.Open(s.path(logFile.StorageKey))
	if err != nil {
		return nil, errors.WithStack(err)
	}
	reader, err := compress.NewReader(f)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return &fileReader{ReadCloser: reader, file: f}, nil
}

// Save writes content under key, replacing any existing file, and returns its size and SHA-256 digest. Content is
// written to a temporary file first so a failed upload never leaves a truncated file behind.
func (s *FileSource) Save(_ context.Context, key string, content io.Reader) (*Stored, error) {
	target := s.path(key)
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return nil, errors.WithStack(err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(target), ".upload-*")
	if err != nil {
		return nil, errors.WithStack(err)
	}
	defer func() {
		if err := os.Remove(tmp.Name()); err != nil && !os.IsNotExist(err) {
			log.WithError(err).Warnf("could not remove %s", tmp.Name())
		}
	}()

	hasher := sha256.New()
	size, err := io.Copy(io.MultiWriter(tmp, hasher), content)
	if err != nil {
		_ = tmp.Close()
		return nil, errors.WithStack(err)
	}
	if err := tmp.Close(); err != nil {
		return nil, errors.WithStack(err)
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		return nil, errors.WithStack(err)
	}
	return &Stored{Key: key, Size: size, Sha256: hex.EncodeToString(hasher.Sum(nil))}, nil
}

// Stat returns the size of the file stored under key, or an ErrNotFound if there is none.
func (s *FileSource) Stat(_ context.Context, key string) (int64, error) {
	info, err := os.Stat(s.path(key))
	if os.IsNotExist(err) {
		return 0, errors.WithStack(&apperrors.ErrNotFound{Type: "object", Value: key})
	}
	if err != nil {
		return 0, errors.WithStack(err)
	}
	return info.Size(), nil
}

// Delete removes the file stored under key. Deleting a missing file is not an error.
func (s *FileSource) Delete(_ context.Context, key string) error {
	if err := os.Remove(s.path(key)); err != nil && !os.IsNotExist(err) {
		return errors.WithStack(err)
	}
	return nil
}

func (s *FileSource) path(key string) string {
	return filepath.Join(s.root, filepath.FromSlash(path.Clean("/"+key)))
}

type fileReader struct {
	io.ReadCloser
	file *os.File
}

func (r *fileReader) Close() error {
	err := r.ReadCloser.Close()
	if fileErr := r.file.Close(); err == nil {
		err = fileErr
	}
	return errors.WithStack(err)
}
