package backup

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/aleksaelezovic/quadra/internal/storage"
	"github.com/aleksaelezovic/quadra/pkg/rdf"
	"github.com/aleksaelezovic/quadra/pkg/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) *store.Store {
	t.Helper()
	backend, err := storage.NewInMemoryStorage()
	require.NoError(t, err)
	s, err := store.New(backend)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func populated(t *testing.T, n int) *store.Store {
	t.Helper()
	s := newStore(t)
	quads := make([]*rdf.Quad, n)
	for i := range quads {
		quads[i] = rdf.NewQuad(
			rdf.NewNamedNode(fmt.Sprintf("http://example.org/p%d", i)),
			rdf.NewNamedNode("http://example.org/knows"),
			rdf.NewNamedNode("http://example.org/hub"),
			nil,
		)
	}
	_, err := s.BulkLoad(context.Background(), store.NewSliceSource(quads))
	require.NoError(t, err)
	return s
}

func TestRoundTripEveryCodec(t *testing.T) {
	src := populated(t, 200)
	for _, c := range []Compression{CompressionNone, CompressionLZ4, CompressionZSTD} {
		t.Run(c.String(), func(t *testing.T) {
			var buf bytes.Buffer
			stats, err := Write(&buf, src, c)
			require.NoError(t, err)
			assert.Equal(t, int64(buf.Len()), stats.Bytes)
			assert.Equal(t, Magic, buf.String()[:4])

			dst := newStore(t)
			h, err := Read(context.Background(), &buf, dst)
			require.NoError(t, err)
			assert.Equal(t, c, h.Compression)
			assert.Equal(t, FormatVersion, h.Version)

			n, err := dst.Count()
			require.NoError(t, err)
			assert.Equal(t, 200, n)
		})
	}
}

func TestCompressionShrinksDump(t *testing.T) {
	src := populated(t, 500)
	var plain, packed bytes.Buffer
	_, err := Write(&plain, src, CompressionNone)
	require.NoError(t, err)
	_, err = Write(&packed, src, CompressionZSTD)
	require.NoError(t, err)
	assert.Less(t, packed.Len(), plain.Len())
}

func TestReadHeaderRejects(t *testing.T) {
	_, err := ReadHeader(bytes.NewReader(nil))
	assert.ErrorIs(t, err, ErrNotArchive)

	_, err = ReadHeader(bytes.NewReader([]byte("NOPE\x01\x00")))
	assert.ErrorIs(t, err, ErrNotArchive)

	_, err = ReadHeader(bytes.NewReader([]byte("QDRB\x09\x00")))
	assert.ErrorIs(t, err, ErrUnsupportedVersion)

	_, err = ReadHeader(bytes.NewReader([]byte("QDRB\x01\x07")))
	assert.ErrorIs(t, err, ErrUnknownCompression)
}

func TestParseCompression(t *testing.T) {
	for in, want := range map[string]Compression{"": CompressionZSTD, "ZSTD": CompressionZSTD, "lz4": CompressionLZ4, "none": CompressionNone} {
		got, err := ParseCompression(in)
		require.NoError(t, err)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseCompression("gzip")
	assert.ErrorIs(t, err, ErrUnknownCompression)
}

type failingDumper struct{}

func (failingDumper) Backup(w io.Writer) (uint64, error) {
	_, _ = w.Write([]byte("partial"))
	return 0, errors.New("disk on fire")
}

func TestFileTarget(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	target := FileTarget{Dir: dir}
	src := populated(t, 20)

	stats, err := Save(ctx, target, "nightly/store.qdrb", src, CompressionLZ4)
	require.NoError(t, err)
	info, err := os.Stat(filepath.Join(dir, "nightly", "store.qdrb"))
	require.NoError(t, err)
	assert.Equal(t, stats.Bytes, info.Size())

	dst := newStore(t)
	h, err := Load(ctx, target, "nightly/store.qdrb", dst)
	require.NoError(t, err)
	assert.Equal(t, CompressionLZ4, h.Compression)
	n, err := dst.Count()
	require.NoError(t, err)
	assert.Equal(t, 20, n)

	_, err = Load(ctx, target, "missing.qdrb", dst)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFailedSaveLeavesNoArchive(t *testing.T) {
	dir := t.TempDir()
	_, err := Save(context.Background(), FileTarget{Dir: dir}, "broken.qdrb", failingDumper{}, CompressionNone)
	require.Error(t, err)
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
