package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jjhmonolith/yurichatbot-localserver/internal/backup"
	"github.com/jjhmonolith/yurichatbot-localserver/internal/migrate"
	"github.com/jjhmonolith/yurichatbot-localserver/internal/source"
)

// MigrateOptions holds flags for the migrate command.
type MigrateOptions struct {
	*RootOptions
	SourceURI string
	DBPath    string
	NoBackup  bool
	Checksums bool

	// Dial allows overriding the source dialer (for testing).
	// If nil, the source is dialed from the configured URI.
	Dial migrate.SourceDialer
}

// NewMigrateCommand creates the migrate command.
func NewMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	return newMigrateCommand(&MigrateOptions{RootOptions: rootOpts})
}

func newMigrateCommand(opts *MigrateOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Migrate content from the document store into SQLite",
		Long: `Migrate textbooks, passage sets, questions and system prompts from the
legacy document store into the local SQLite database.

A safety backup of the target database is taken before the first write and
restored automatically if the run fails. Record counts are reconciled after
the import; --checksums additionally compares content digests.

Example:
  yurictl migrate
  yurictl migrate --source-uri mongodb://localhost:27017/yurichatbot --checksums`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.SourceURI, "source-uri", "", "document store URI (overrides config)")
	cmd.Flags().StringVar(&opts.DBPath, "db", "", "path to target SQLite database (overrides config)")
	cmd.Flags().BoolVar(&opts.NoBackup, "no-backup", false, "skip the pre-migration safety backup and rollback")
	cmd.Flags().BoolVar(&opts.Checksums, "checksums", false, "verify content checksums after record counts")

	return cmd
}

func runMigrate(opts *MigrateOptions, cmd *cobra.Command) error {
	cfg, err := loadConfig(opts.RootOptions)
	if err != nil {
		return err
	}
	if opts.SourceURI != "" {
		cfg.Source.URI = opts.SourceURI
	}
	if opts.DBPath != "" {
		cfg.Target.DBPath = opts.DBPath
	}

	log := commandLogger(cmd, opts.RootOptions)

	dial := opts.Dial
	if dial == nil {
		uri, database := cfg.Source.URI, cfg.Source.Database
		dial = func(ctx context.Context) (source.Connector, error) {
			return source.DialMongo(uri, database)
		}
	}

	mopts := []migrate.Option{
		migrate.WithLogger(log),
		migrate.WithChecksums(opts.Checksums),
	}
	if !opts.NoBackup {
		snapshots := backup.NewManager(cfg.Target.DBPath, cfg.Backup.Dir, cfg.Backup.FilesDir, backup.WithLogger(log))
		mopts = append(mopts, migrate.WithSnapshots(snapshots))
	}

	// Ctrl-C cancels the run at a record boundary; the rollback still runs.
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	report, runErr := migrate.New(dial, cfg.Target.DBPath, mopts...).Run(ctx)

	if opts.Format == "json" {
		formatter := newFormatter(opts.RootOptions, cmd)
		if runErr != nil {
			_ = formatter.Error(ErrCodeMigration, runErr.Error(), report)
			return WrapExitError(ExitFailure, "migration failed", runErr)
		}
		return formatter.Success(report)
	}

	report.RenderText(cmd.OutOrStdout())
	if runErr != nil {
		return WrapExitError(ExitFailure, "migration failed", runErr)
	}
	return nil
}
