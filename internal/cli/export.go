package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/idrecon/internal/snapshot"
)

// ExportOptions holds flags for the export command.
type ExportOptions struct {
	*RootOptions
	Dir         string
	S3Bucket    string
	S3Prefix    string
	S3Region    string
	S3Endpoint  string
	S3PathStyle bool
}

type exportView struct {
	Key      string `json:"key"`
	Location string `json:"location"`
	Count    int    `json:"count"`
}

func (v exportView) RenderText(w io.Writer) error {
	_, err := fmt.Fprintf(w, "Exported %d contact(s) to %s\n", v.Count, v.Location)
	return err
}

// NewExportCommand creates the export command.
func NewExportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ExportOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write a JSON snapshot of every contact",
		Long: `Export writes the full contact table, soft-deleted rows included, as one
JSON document named contacts-<UTC timestamp>.json.

The target is a local directory (--dir) or an S3 bucket (--s3-bucket).
Flags default to the snapshot.* config keys. A directory wins when both
are set.

Examples:
  idrecon export --dir ./backups
  idrecon export --s3-bucket idrecon-snapshots --s3-prefix nightly
  idrecon export --s3-bucket snaps --s3-endpoint http://localhost:9000 --s3-path-style`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Dir, "dir", "", "write the snapshot to this directory")
	cmd.Flags().StringVar(&opts.S3Bucket, "s3-bucket", "", "upload the snapshot to this bucket")
	cmd.Flags().StringVar(&opts.S3Prefix, "s3-prefix", "", "object key prefix")
	cmd.Flags().StringVar(&opts.S3Region, "s3-region", "", "bucket region")
	cmd.Flags().StringVar(&opts.S3Endpoint, "s3-endpoint", "", "S3-compatible endpoint URL")
	cmd.Flags().BoolVar(&opts.S3PathStyle, "s3-path-style", false, "use path-style bucket addressing")

	return cmd
}

func runExport(cmd *cobra.Command, opts *ExportOptions) error {
	cfg, err := loadConfig(opts.RootOptions)
	if err != nil {
		return err
	}

	sc := cfg.Snapshot
	if opts.Dir != "" {
		sc.Dir = opts.Dir
	}
	if opts.S3Bucket != "" {
		sc.S3Bucket = opts.S3Bucket
	}
	if opts.S3Prefix != "" {
		sc.S3Prefix = opts.S3Prefix
	}
	if opts.S3Region != "" {
		sc.S3Region = opts.S3Region
	}
	if opts.S3Endpoint != "" {
		sc.S3Endpoint = opts.S3Endpoint
	}
	if opts.S3PathStyle {
		sc.S3PathStyle = true
	}
	if sc.Dir == "" && sc.S3Bucket == "" {
		return NewExitError(ExitCommandError, "no export target: set --dir or --s3-bucket")
	}

	ctx := commandContext(cmd)
	var sink snapshot.Sink
	if sc.Dir != "" {
		sink = snapshot.FileSink{Dir: sc.Dir}
	} else {
		s3Sink, err := snapshot.NewS3Sink(ctx, snapshot.S3Config{
			Bucket:          sc.S3Bucket,
			Prefix:          sc.S3Prefix,
			Region:          sc.S3Region,
			Endpoint:        sc.S3Endpoint,
			PathStyle:       sc.S3PathStyle,
			AccessKeyID:     sc.S3AccessKey,
			SecretAccessKey: sc.S3SecretKey,
			SessionToken:    sc.S3SessionKey,
		})
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to configure s3", err)
		}
		sink = s3Sink
	}

	e, err := newEnv(cmd, cfg)
	if err != nil {
		return err
	}
	defer e.Close()

	out := opts.formatter(cmd)
	res, err := (&snapshot.Exporter{Store: e.store, Sink: sink}).Export(ctx)
	if err != nil {
		return out.Fail(err)
	}
	e.logger.Info().Str("location", res.Location).Int("count", res.Count).Msg("snapshot exported")
	return out.Success(exportView{Key: res.Key, Location: res.Location, Count: res.Count})
}
