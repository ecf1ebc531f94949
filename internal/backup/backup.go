// Package backup wraps store dumps in a small self-describing archive.
//
// An archive is a six byte header followed by the dump, compressed with
// the codec named in the header:
//
//	[magic "QDRB"][format version][codec]
//
// Readers detect the codec from the header, so restoring needs no flags.
package backup

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Magic opens every archive.
const Magic = "QDRB"

// FormatVersion is the archive layout written by this package.
const FormatVersion uint8 = 1

const headerSize = len(Magic) + 2

var (
	// ErrNotArchive is returned when the input does not start with Magic.
	ErrNotArchive = errors.New("backup: not a quadra archive")

	// ErrUnsupportedVersion is returned for archives of a newer layout.
	ErrUnsupportedVersion = errors.New("backup: unsupported archive version")

	// ErrUnknownCompression is returned for an unknown codec byte or name.
	ErrUnknownCompression = errors.New("backup: unknown compression")
)

// Compression identifies the codec of the archive body.
type Compression uint8

const (
	// CompressionNone stores the dump as is.
	CompressionNone Compression = 0
	// CompressionLZ4 is fast with a moderate ratio.
	CompressionLZ4 Compression = 1
	// CompressionZSTD has the better ratio.
	CompressionZSTD Compression = 2
)

func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionLZ4:
		return "lz4"
	case CompressionZSTD:
		return "zstd"
	}
	return fmt.Sprintf("compression(%d)", uint8(c))
}

// ParseCompression parses a codec name as accepted on the command line.
func ParseCompression(s string) (Compression, error) {
	switch strings.ToLower(s) {
	case "", "zstd":
		return CompressionZSTD, nil
	case "lz4":
		return CompressionLZ4, nil
	case "none":
		return CompressionNone, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownCompression, s)
}

// Header is the decoded archive header.
type Header struct {
	Version     uint8
	Compression Compression
}

// Dumper writes a full dump of its content. *store.Store implements it.
type Dumper interface {
	Backup(w io.Writer) (uint64, error)
}

// Restorer replaces its content with a dump. *store.Store implements it.
type Restorer interface {
	Restore(ctx context.Context, r io.Reader) error
}

// Stats describes a written archive.
type Stats struct {
	// Version is the store version the dump was taken at.
	Version     uint64
	Compression Compression
	// Bytes is the archive size, header included.
	Bytes int64
}

// Write dumps src into w as an archive compressed with c.
func Write(w io.Writer, src Dumper, c Compression) (Stats, error) {
	cw := &countingWriter{w: w}
	header := append([]byte(Magic), FormatVersion, byte(c))
	if _, err := cw.Write(header); err != nil {
		return Stats{}, fmt.Errorf("write header: %w", err)
	}
	body, err := compressor(cw, c)
	if err != nil {
		return Stats{}, err
	}
	version, err := src.Backup(body)
	if err != nil {
		_ = body.Close() // #nosec G104 - the dump error is reported
		return Stats{}, fmt.Errorf("dump: %w", err)
	}
	if err := body.Close(); err != nil {
		return Stats{}, fmt.Errorf("flush %s stream: %w", c, err)
	}
	return Stats{Version: version, Compression: c, Bytes: cw.n}, nil
}

// Read restores the archive in r into dst.
func Read(ctx context.Context, r io.Reader, dst Restorer) (Header, error) {
	h, err := ReadHeader(r)
	if err != nil {
		return h, err
	}
	body, err := decompressor(r, h.Compression)
	if err != nil {
		return h, err
	}
	defer body.Close() // #nosec G104 - decompressors hold no external resources
	if err := dst.Restore(ctx, body); err != nil {
		return h, fmt.Errorf("restore: %w", err)
	}
	return h, nil
}

// ReadHeader consumes and validates the archive header.
func ReadHeader(r io.Reader) (Header, error) {
	var buf [headerSize]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return Header{}, ErrNotArchive
		}
		return Header{}, fmt.Errorf("read header: %w", err)
	}
	if string(buf[:len(Magic)]) != Magic {
		return Header{}, ErrNotArchive
	}
	h := Header{Version: buf[len(Magic)], Compression: Compression(buf[len(Magic)+1])}
	if h.Version == 0 || h.Version > FormatVersion {
		return h, fmt.Errorf("%w: %d", ErrUnsupportedVersion, h.Version)
	}
	if h.Compression > CompressionZSTD {
		return h, fmt.Errorf("%w: %d", ErrUnknownCompression, uint8(h.Compression))
	}
	return h, nil
}

func compressor(w io.Writer, c Compression) (io.WriteCloser, error) {
	switch c {
	case CompressionNone:
		return nopWriteCloser{w}, nil
	case CompressionLZ4:
		return lz4.NewWriter(w), nil
	case CompressionZSTD:
		enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			return nil, fmt.Errorf("create zstd encoder: %w", err)
		}
		return enc, nil
	}
	return nil, fmt.Errorf("%w: %d", ErrUnknownCompression, uint8(c))
}

func decompressor(r io.Reader, c Compression) (io.ReadCloser, error) {
	switch c {
	case CompressionNone:
		return io.NopCloser(r), nil
	case CompressionLZ4:
		return io.NopCloser(lz4.NewReader(r)), nil
	case CompressionZSTD:
		dec, err := zstd.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("create zstd decoder: %w", err)
		}
		return dec.IOReadCloser(), nil
	}
	return nil, fmt.Errorf("%w: %d", ErrUnknownCompression, uint8(c))
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }
