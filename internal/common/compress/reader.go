package compress

import (
	"bufio"
	"bytes"
	"io"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pkg/errors"
)

var (
	gzipMagic = []byte{0x1f, 0x8b}
	zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}
)

// NewReader returns a reader over the decompressed content of r. Gzip and zstd streams are recognised by their magic
// bytes; anything else is passed through unchanged. Closing the returned reader does not close r.
func NewReader(r io.Reader) (io.ReadCloser, error) {
	buffered := bufio.NewReader(r)
	magic, err := buffered.Peek(len(zstdMagic))
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, errors.WithStack(err)
	}
	switch {
	case bytes.HasPrefix(magic, gzipMagic):
		reader, err := gzip.NewReader(buffered)
		if err != nil {
			return nil, errors.WithStack(err)
		}
		return reader, nil
	case bytes.HasPrefix(magic, zstdMagic):
		decoder, err := zstd.NewReader(buffered)
		if err != nil {
			return nil, errors.WithStack(err)
		}
		return decoder.IOReadCloser(), nil
	default:
		return io.NopCloser(buffered), nil
	}
}
