package cli

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/aleksaelezovic/quadra/internal/backup"
	"github.com/spf13/cobra"
)

// NewStatsCommand creates the stats command.
func NewStatsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print store statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, _, err := rootOpts.open(cmd)
			if err != nil {
				return err
			}
			defer s.Close() // #nosec G104 - read-only command

			st, err := s.Stats()
			if err != nil {
				return err
			}
			graphs, err := s.NamedGraphs()
			if err != nil {
				return err
			}
			rows := [][]string{
				{"quads", strconv.Itoa(st.Quads)},
				{"terms", strconv.Itoa(st.Terms)},
				{"named graphs", strconv.Itoa(len(graphs))},
				{"commits", strconv.FormatUint(st.Commits, 10)},
				{"generation", strconv.FormatUint(st.Generation, 10)},
				{"version", strconv.FormatUint(st.Version, 10)},
			}
			indexes := make([]string, 0, len(st.IndexCounts))
			for name := range st.IndexCounts {
				indexes = append(indexes, name)
			}
			sort.Strings(indexes)
			for _, name := range indexes {
				rows = append(rows, []string{"index " + name, strconv.Itoa(st.IndexCounts[name])})
			}
			return renderTable(cmd.OutOrStdout(), []string{"metric", "value"}, rows)
		},
	}
}

// NewVacuumCommand creates the vacuum command.
func NewVacuumCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "vacuum",
		Short: "Reclaim dictionary entries no quad refers to",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, _, err := rootOpts.open(cmd)
			if err != nil {
				return err
			}
			defer s.Close() // #nosec G104 - vacuum commits its own transactions

			st, err := s.Vacuum(commandContext(cmd))
			if err != nil {
				return err
			}
			return renderTable(cmd.OutOrStdout(), []string{"metric", "value"}, [][]string{
				{"scanned terms", strconv.FormatUint(st.ScannedTerms, 10)},
				{"live terms", strconv.FormatUint(st.LiveTerms, 10)},
				{"reclaimed terms", strconv.FormatUint(st.ReclaimedTerms, 10)},
				{"duration", st.Duration.Round(time.Millisecond).String()},
			})
		},
	}
}

// BackupOptions holds flags shared by backup and restore.
type BackupOptions struct {
	*RootOptions
	Name        string
	Compression string
	S3Endpoint  string
	S3Bucket    string
	S3Prefix    string
	S3AccessKey string
	S3SecretKey string
	S3Secure    bool
}

func (o *BackupOptions) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&o.S3Endpoint, "s3-endpoint", "", "S3-compatible endpoint (overrides backup.s3)")
	cmd.Flags().StringVar(&o.S3Bucket, "s3-bucket", "", "bucket name")
	cmd.Flags().StringVar(&o.S3Prefix, "s3-prefix", "", "object key prefix")
	cmd.Flags().StringVar(&o.S3AccessKey, "s3-access-key", "", "access key")
	cmd.Flags().StringVar(&o.S3SecretKey, "s3-secret-key", "", "secret key")
	cmd.Flags().BoolVar(&o.S3Secure, "s3-secure", true, "use TLS")
}

func (o *BackupOptions) target() (backup.Target, error) {
	if o.S3Endpoint != "" {
		return backup.NewMinioTarget(backup.MinioConfig{
			Endpoint:  o.S3Endpoint,
			AccessKey: o.S3AccessKey,
			SecretKey: o.S3SecretKey,
			Bucket:    o.S3Bucket,
			Prefix:    o.S3Prefix,
			Secure:    o.S3Secure,
		})
	}
	cfg, err := o.config()
	if err != nil {
		return nil, err
	}
	return cfg.BackupTarget()
}

// NewBackupCommand creates the backup command.
func NewBackupCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &BackupOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Write a compressed archive of the store",
		Long: `Write an archive of the whole store to the backup directory, or to an
S3-compatible bucket when one is configured.

Example:
  quadra backup --out nightly.qdrb
  quadra backup --out nightly.qdrb --compression lz4 --s3-endpoint minio:9000 --s3-bucket archives`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, cfg, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer s.Close() // #nosec G104 - backup reads only

			comp := cfg.Compression()
			if opts.Compression != "" {
				if comp, err = backup.ParseCompression(opts.Compression); err != nil {
					return err
				}
			}
			target, err := opts.target()
			if err != nil {
				return err
			}
			st, err := backup.Save(commandContext(cmd), target, opts.Name, s, comp)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s: %d bytes, %s, version %d\n", opts.Name, st.Bytes, st.Compression, st.Version)
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.Name, "out", "", "archive name (required)")
	cmd.Flags().StringVar(&opts.Compression, "compression", "", "zstd|lz4|none (overrides backup.compression)")
	_ = cmd.MarkFlagRequired("out")
	opts.bind(cmd)

	return cmd
}

// NewRestoreCommand creates the restore command.
func NewRestoreCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &BackupOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "restore",
		Short: "Replace the store content with an archive",
		Long: `Replace the whole store content with an archive written by backup.
The compression is read from the archive header.

Example:
  quadra restore --in nightly.qdrb`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, _, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer s.Close() // #nosec G104 - restore syncs before returning

			target, err := opts.target()
			if err != nil {
				return err
			}
			h, err := backup.Load(commandContext(cmd), target, opts.Name, s)
			if err != nil {
				return err
			}
			if err := s.Sync(); err != nil {
				return err
			}
			n, err := s.Count()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "restored %s (%s): %d quads\n", opts.Name, h.Compression, n)
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.Name, "in", "", "archive name (required)")
	_ = cmd.MarkFlagRequired("in")
	opts.bind(cmd)

	return cmd
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
