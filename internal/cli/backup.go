package cli

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/jjhmonolith/yurichatbot-localserver/internal/backup"
	"github.com/jjhmonolith/yurichatbot-localserver/internal/store"
)

// BackupOptions holds flags for the backup command.
type BackupOptions struct {
	*RootOptions
	Scope  string
	Upload bool
}

// NewBackupCommand creates the backup command.
func NewBackupCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &BackupOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Create a backup of the database, uploaded files, or both",
		Long: `Create a backup under the configured backup directory.

Scopes:
  full   database snapshot + uploaded files + checksummed manifest (default)
  db     consistent snapshot of the live SQLite database
  files  tar.gz archive of the uploads directory

Database snapshots go through SQLite itself, so backing up while the server
is running is safe. --upload additionally pushes the artifact to the
configured cloud bucket.

Example:
  yurictl backup
  yurictl backup --scope db
  yurictl backup --scope files --upload`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBackup(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Scope, "scope", "full", "what to back up: full|db|files")
	cmd.Flags().BoolVar(&opts.Upload, "upload", false, "upload the artifact to the configured cloud bucket")

	return cmd
}

func runBackup(opts *BackupOptions, cmd *cobra.Command) error {
	switch opts.Scope {
	case "full", "db", "files":
	default:
		return NewExitError(ExitCommandError, fmt.Sprintf("invalid scope %q: must be one of full, db, files", opts.Scope))
	}

	cfg, err := loadConfig(opts.RootOptions)
	if err != nil {
		return err
	}
	log := commandLogger(cmd, opts.RootOptions)
	ctx := cmd.Context()

	mgrOpts := []backup.ManagerOption{backup.WithLogger(log)}
	if opts.Upload {
		if !cfg.Cloud.Enabled || cfg.Cloud.Bucket == "" {
			return NewExitError(ExitCommandError, "cloud uploads are not configured: set cloud.enabled and cloud.bucket")
		}
		gcs, dialErr := backup.DialGCS(ctx, cfg.Cloud.Bucket, cfg.Cloud.Prefix)
		if dialErr != nil {
			return WrapExitError(ExitCommandError, "cloud upload unavailable", dialErr)
		}
		defer func() { _ = gcs.Close() }()
		mgrOpts = append(mgrOpts, backup.WithUploader(gcs))
	}
	m := backup.NewManager(cfg.Target.DBPath, cfg.Backup.Dir, cfg.Backup.FilesDir, mgrOpts...)

	var rec *backup.Record
	var backupErr error
	if opts.Scope == "files" {
		rec, backupErr = m.CreateFiles(ctx)
	} else {
		if err := requireDatabase(cfg.Target.DBPath); err != nil {
			return err
		}
		st, openErr := store.Open(cfg.Target.DBPath)
		if openErr != nil {
			return WrapExitError(ExitCommandError, "failed to open database", openErr)
		}
		defer func() {
			if closeErr := st.Close(); closeErr != nil {
				log.Error("error closing database", "error", closeErr)
			}
		}()

		if opts.Scope == "db" {
			rec, backupErr = m.CreateDatabase(ctx, st)
		} else {
			rec, backupErr = m.CreateFull(ctx, st)
		}
	}

	if backupErr != nil {
		if opts.Format == "json" {
			_ = newFormatter(opts.RootOptions, cmd).Error(ErrCodeBackup, backupErr.Error(), nil)
		}
		return WrapExitError(ExitFailure, "backup failed", backupErr)
	}

	if opts.Format == "json" {
		return newFormatter(opts.RootOptions, cmd).Success(rec)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Backup created: %s (%s)\n", rec.Name, humanize.Bytes(uint64(rec.Size)))
	return nil
}
