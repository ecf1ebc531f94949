package backup

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sync/atomic"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ErrNotFound is returned when a target has no archive of that name.
var ErrNotFound = errors.New("backup: archive not found")

// Target is where archives are kept.
type Target interface {
	// Create opens a new archive for writing. The archive is complete
	// once Close returns nil.
	Create(ctx context.Context, name string) (io.WriteCloser, error)

	// Open opens an archive for reading.
	Open(ctx context.Context, name string) (io.ReadCloser, error)
}

// FileTarget keeps archives in a local directory.
type FileTarget struct {
	Dir string
}

func (t FileTarget) path(name string) string {
	return filepath.Join(t.Dir, filepath.Clean("/"+name))
}

// Create writes to a temporary file renamed into place on Close.
func (t FileTarget) Create(_ context.Context, name string) (io.WriteCloser, error) {
	final := t.path(name)
	if err := os.MkdirAll(filepath.Dir(final), 0o750); err != nil {
		return nil, err
	}
	f, err := os.CreateTemp(filepath.Dir(final), ".backup-*")
	if err != nil {
		return nil, err
	}
	return &fileWriter{File: f, final: final}, nil
}

// Open opens the archive file.
func (t FileTarget) Open(_ context.Context, name string) (io.ReadCloser, error) {
	f, err := os.Open(t.path(name))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return f, err
}

// aborter is implemented by archive writers that can discard a partial
// archive.
type aborter interface {
	Abort(cause error)
}

type fileWriter struct {
	*os.File
	final string
}

func (w *fileWriter) Close() error {
	if err := w.File.Sync(); err != nil {
		_ = w.File.Close()           // #nosec G104 - sync error is reported
		_ = os.Remove(w.File.Name()) // #nosec G104 - best-effort cleanup
		return err
	}
	if err := w.File.Close(); err != nil {
		_ = os.Remove(w.File.Name()) // #nosec G104 - best-effort cleanup
		return err
	}
	return os.Rename(w.File.Name(), w.final)
}

func (w *fileWriter) Abort(error) {
	_ = w.File.Close()           // #nosec G104 - discarded
	_ = os.Remove(w.File.Name()) // #nosec G104 - discarded
}

// MinioConfig locates an S3-compatible bucket.
type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Prefix    string
	Secure    bool
}

// MinioTarget keeps archives in an S3-compatible bucket.
type MinioTarget struct {
	client *minio.Client
	bucket string
	prefix string
}

// NewMinioTarget connects to the bucket described by cfg.
func NewMinioTarget(cfg MinioConfig) (*MinioTarget, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.Secure,
	})
	if err != nil {
		return nil, fmt.Errorf("minio client: %w", err)
	}
	return &MinioTarget{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix}, nil
}

func (t *MinioTarget) key(name string) string {
	return path.Join(t.prefix, name)
}

// Create streams the archive to the bucket as it is written.
func (t *MinioTarget) Create(ctx context.Context, name string) (io.WriteCloser, error) {
	pr, pw := io.Pipe()
	w := &minioWriter{pw: pw, done: make(chan error, 1)}
	go func() {
		_, err := t.client.PutObject(ctx, t.bucket, t.key(name), pr, -1, minio.PutObjectOptions{
			ContentType: "application/octet-stream",
		})
		_ = pr.CloseWithError(err) // #nosec G104 - unblocks the writer
		w.done <- err
	}()
	return w, nil
}

// Open reads the archive from the bucket.
func (t *MinioTarget) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	key := t.key(name)
	if _, err := t.client.StatObject(ctx, t.bucket, key, minio.StatObjectOptions{}); err != nil {
		resp := minio.ToErrorResponse(err)
		if resp.Code == "NoSuchKey" || resp.Code == "NotFound" {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return nil, err
	}
	return t.client.GetObject(ctx, t.bucket, key, minio.GetObjectOptions{})
}

type minioWriter struct {
	pw       *io.PipeWriter
	done     chan error
	finished atomic.Bool
}

func (w *minioWriter) Write(p []byte) (int, error) {
	return w.pw.Write(p)
}

func (w *minioWriter) Close() error {
	if !w.finished.CompareAndSwap(false, true) {
		return errors.New("backup: archive already closed")
	}
	if err := w.pw.Close(); err != nil {
		return err
	}
	return <-w.done
}

func (w *minioWriter) Abort(cause error) {
	if !w.finished.CompareAndSwap(false, true) {
		return
	}
	_ = w.pw.CloseWithError(cause) // #nosec G104 - fails the upload
	<-w.done
}

// Save writes an archive of src to target under name.
func Save(ctx context.Context, target Target, name string, src Dumper, c Compression) (Stats, error) {
	w, err := target.Create(ctx, name)
	if err != nil {
		return Stats{}, fmt.Errorf("create %s: %w", name, err)
	}
	stats, err := Write(w, src, c)
	if err != nil {
		if a, ok := w.(aborter); ok {
			a.Abort(err)
		} else {
			_ = w.Close() // #nosec G104 - the write error is reported
		}
		return stats, err
	}
	return stats, w.Close()
}

// Load restores the archive name from target into dst.
func Load(ctx context.Context, target Target, name string, dst Restorer) (Header, error) {
	r, err := target.Open(ctx, name)
	if err != nil {
		return Header{}, err
	}
	defer r.Close() // #nosec G104 - read-only
	return Read(ctx, r, dst)
}
