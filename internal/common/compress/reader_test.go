package compress

import (
	"bytes"
	"io"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const content = "1.1.1.1 - - [10/Oct/2023:13:55:36 +0000] \"GET / HTTP/1.1\" 200 10 \"-\" \"x\"\n"

func readAll(t *testing.T, compressed []byte) string {
	reader, err := NewReader(bytes.NewReader(compressed))
	require.NoError(t, err)
	defer reader.Close()
	data, err := io.ReadAll(reader)
	require.NoError(t, err)
	return string(data)
}

func TestNewReader_Plain(t *testing.T) {
	assert.Equal(t, content, readAll(t, []byte(content)))
}

func TestNewReader_Empty(t *testing.T) {
	assert.Equal(t, "", readAll(t, nil))
}

func TestNewReader_ShorterThanMagic(t *testing.T) {
	assert.Equal(t, "a", readAll(t, []byte("a")))
}

func TestNewReader_Gzip(t *testing.T) {
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	_, err := w.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	assert.Equal(t, content, readAll(t, buf.Bytes()))
}

func TestNewReader_Zstd(t *testing.T) {
	encoder, err := zstd.NewWriter(nil)
	require.NoError(t, err)
	compressed := encoder.EncodeAll([]byte(content), nil)
	require.NoError(t, encoder.Close())

	assert.Equal(t, content, readAll(t, compressed))
}

func TestNewReader_CorruptGzip(t *testing.T) {
	_, err := NewReader(bytes.NewReader([]byte{0x1f, 0x8b, 0x00}))
	assert.Error(t, err)
}
