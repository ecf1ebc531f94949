// Package config loads the quadra configuration file.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/aleksaelezovic/quadra/internal/backup"
	"github.com/aleksaelezovic/quadra/internal/storage"
	"github.com/aleksaelezovic/quadra/pkg/engine"
	"github.com/aleksaelezovic/quadra/pkg/store"
	"gopkg.in/yaml.v3"
)

// Config is the content of a configuration file. Zero fields take the
// values of Default.
type Config struct {
	DataDir    string `yaml:"data_dir"`
	InMemory   bool   `yaml:"in_memory"`
	SyncWrites bool   `yaml:"sync_writes"`
	// MemTableMB sizes Badger's memtable, which bounds one write
	// transaction at 15% of it. Zero keeps Badger's 64MB.
	MemTableMB int `yaml:"memtable_mb"`

	DictionaryCacheMB int `yaml:"dictionary_cache_mb"`
	BulkChunkSize     int `yaml:"bulk_chunk_size"`
	// BulkWorkers defaults to GOMAXPROCS when zero.
	BulkWorkers int `yaml:"bulk_workers"`
	// VacuumRate limits reclaimed terms per second; zero is unlimited.
	VacuumRate float64 `yaml:"vacuum_rate"`

	MaxConcurrentQueries int64 `yaml:"max_concurrent_queries"`

	Backup Backup `yaml:"backup"`
	Log    Log    `yaml:"log"`
}

// Backup configures the backup and restore commands.
type Backup struct {
	Compression string `yaml:"compression"`
	Dir         string `yaml:"dir"`
	S3          *S3    `yaml:"s3,omitempty"`
}

// S3 locates an S3-compatible bucket for archives.
type S3 struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	Prefix    string `yaml:"prefix"`
	Secure    bool   `yaml:"secure"`
}

// Log configures the process logger.
type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		DataDir:              "./data",
		DictionaryCacheMB:    64,
		BulkChunkSize:        10000,
		MaxConcurrentQueries: engine.DefaultMaxConcurrentQueries,
		Backup:               Backup{Compression: "zstd", Dir: "./backups"},
		Log:                  Log{Level: "info", Format: "text"},
	}
}

// Load reads the file at path over the defaults. An empty path returns
// the defaults. Unknown keys are an error.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path) // #nosec G304 - path comes from the operator
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := cfg.decode(bytes.NewReader(data)); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) decode(r io.Reader) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Validate checks values the store would otherwise silently replace.
func (c *Config) Validate() error {
	var errs []error
	if !c.InMemory && c.DataDir == "" {
		errs = append(errs, errors.New("data_dir is required unless in_memory is set"))
	}
	if c.MemTableMB < 0 {
		errs = append(errs, errors.New("memtable_mb must not be negative"))
	}
	if c.DictionaryCacheMB < 0 {
		errs = append(errs, errors.New("dictionary_cache_mb must not be negative"))
	}
	if c.BulkChunkSize < 0 || c.BulkWorkers < 0 {
		errs = append(errs, errors.New("bulk settings must not be negative"))
	}
	if c.VacuumRate < 0 {
		errs = append(errs, errors.New("vacuum_rate must not be negative"))
	}
	if c.MaxConcurrentQueries < 0 {
		errs = append(errs, errors.New("max_concurrent_queries must not be negative"))
	}
	if _, err := backup.ParseCompression(c.Backup.Compression); err != nil {
		errs = append(errs, err)
	}
	if _, err := ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	switch c.Log.Format {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format must be text or json, got %q", c.Log.Format))
	}
	if c.Backup.S3 != nil && (c.Backup.S3.Endpoint == "" || c.Backup.S3.Bucket == "") {
		errs = append(errs, errors.New("backup.s3 needs an endpoint and a bucket"))
	}
	return errors.Join(errs...)
}

// ParseLevel parses a log level name.
func ParseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.ToUpper(s))); err != nil {
		return 0, fmt.Errorf("unknown log level %q", s)
	}
	return l, nil
}

// Logger builds the process logger writing to w.
func (c *Config) Logger(w io.Writer) *store.Logger {
	level, err := ParseLevel(c.Log.Level)
	if err != nil {
		level = slog.LevelInfo
	}
	if c.Log.Format == "json" {
		return store.NewJSONLogger(w, level)
	}
	return store.NewTextLogger(w, level)
}

// StorageOptions configures the Badger backend.
func (c *Config) StorageOptions(log *store.Logger) storage.Options {
	o := storage.Options{
		Path:         c.DataDir,
		InMemory:     c.InMemory,
		SyncWrites:   c.SyncWrites,
		MemTableSize: int64(c.MemTableMB) << 20,
	}
	if log != nil {
		o.Logger = log.Logger
	}
	return o
}

// StoreOptions configures the quad store.
func (c *Config) StoreOptions(log *store.Logger) []store.Option {
	return []store.Option{
		store.WithLogger(log),
		store.WithDictionaryCache(int64(c.DictionaryCacheMB) << 20),
		store.WithBulkChunkSize(c.BulkChunkSize),
		store.WithBulkWorkers(c.BulkWorkers),
		store.WithVacuumRate(c.VacuumRate),
	}
}

// EngineOptions configures the query engine.
func (c *Config) EngineOptions() []engine.Option {
	return []engine.Option{engine.WithMaxConcurrentQueries(c.MaxConcurrentQueries)}
}

// Compression returns the configured backup codec.
func (c *Config) Compression() backup.Compression {
	comp, err := backup.ParseCompression(c.Backup.Compression)
	if err != nil {
		return backup.CompressionZSTD
	}
	return comp
}

// BackupTarget returns the S3 target when one is configured and the
// backup directory otherwise.
func (c *Config) BackupTarget() (backup.Target, error) {
	if s3 := c.Backup.S3; s3 != nil {
		return backup.NewMinioTarget(backup.MinioConfig{
			Endpoint:  s3.Endpoint,
			AccessKey: s3.AccessKey,
			SecretKey: s3.SecretKey,
			Bucket:    s3.Bucket,
			Prefix:    s3.Prefix,
			Secure:    s3.Secure,
		})
	}
	return backup.FileTarget{Dir: c.Backup.Dir}, nil
}

// OpenStore opens the backend and the store described by c.
func (c *Config) OpenStore(log *store.Logger) (*store.Store, error) {
	backend, err := storage.Open(c.StorageOptions(log))
	if err != nil {
		return nil, err
	}
	s, err := store.New(backend, c.StoreOptions(log)...)
	if err != nil {
		_ = backend.Close() // #nosec G104 - the open error is reported
		return nil, err
	}
	return s, nil
}
