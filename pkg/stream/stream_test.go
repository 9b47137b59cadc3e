package stream

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func concatOf(t *testing.T, parts ...string) *Concat {
	t.Helper()
	segments := make([]io.ReaderAt, 0, len(parts))
	sizes := make([]int64, 0, len(parts))
	for _, part := range parts {
		segments = append(segments, strings.NewReader(part))
		sizes = append(sizes, int64(len(part)))
	}
	c, err := NewConcat(segments, sizes)
	require.NoError(t, err)
	return c
}

func TestConcatReadAll(t *testing.T) {
	c := concatOf(t, "Hello ", "World", "!")
	require.Equal(t, int64(12), c.Size())

	data, err := io.ReadAll(c)
	require.NoError(t, err)
	require.Equal(t, "Hello World!", string(data))
}

func TestConcatReadAcrossBoundary(t *testing.T) {
	c := concatOf(t, "abc", "def", "ghi")

	buf := make([]byte, 4)
	n, err := c.ReadAt(buf, 2)
	require.NoError(t, err)
	require.Equal(t, 4, n)
	require.Equal(t, "cdef", string(buf))
}

func TestConcatSeek(t *testing.T) {
	c := concatOf(t, "abc", "def")

	pos, err := c.Seek(4, io.SeekStart)
	require.NoError(t, err)
	require.Equal(t, int64(4), pos)

	data, err := io.ReadAll(c)
	require.NoError(t, err)
	require.Equal(t, "ef", string(data))

	pos, err = c.Seek(-2, io.SeekEnd)
	require.NoError(t, err)
	require.Equal(t, int64(4), pos)

	data, err = io.ReadAll(c)
	require.NoError(t, err)
	require.Equal(t, "ef", string(data))
}

func TestConcatReadPastEnd(t *testing.T) {
	c := concatOf(t, "abc")

	buf := make([]byte, 8)
	n, err := c.ReadAt(buf, 0)
	require.Equal(t, io.EOF, err)
	require.Equal(t, 3, n)

	_, err = c.ReadAt(buf, 99)
	require.Equal(t, io.EOF, err)
}

func TestConcatEmpty(t *testing.T) {
	c := concatOf(t)
	require.Equal(t, int64(0), c.Size())

	data, err := io.ReadAll(c)
	require.NoError(t, err)
	require.Empty(t, data)
}

func TestConcatMismatchedSizes(t *testing.T) {
	_, err := NewConcat([]io.ReaderAt{bytes.NewReader(nil)}, nil)
	require.Error(t, err)
}
