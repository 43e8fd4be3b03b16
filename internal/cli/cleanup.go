package cli

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/jjhmonolith/yurichatbot-localserver/internal/backup"
)

// CleanupOptions holds flags for the cleanup command.
type CleanupOptions struct {
	*RootOptions
	Keep   int
	DryRun bool
}

// NewCleanupCommand creates the cleanup command.
func NewCleanupCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CleanupOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Prune old backups beyond the retention count",
		Long: `Delete the oldest backups of each category (database, files, full)
beyond the retention count, oldest first. Pre-restore safety copies are
never pruned.

Example:
  yurictl cleanup --dry-run
  yurictl cleanup --keep 5`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCleanup(opts, cmd)
		},
	}

	cmd.Flags().IntVar(&opts.Keep, "keep", 0, "backups to keep per category (0 = use config)")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "report what would be deleted without deleting")

	return cmd
}

func runCleanup(opts *CleanupOptions, cmd *cobra.Command) error {
	cfg, err := loadConfig(opts.RootOptions)
	if err != nil {
		return err
	}
	keep := opts.Keep
	if keep == 0 {
		keep = cfg.Backup.Keep
	}

	log := commandLogger(cmd, opts.RootOptions)
	m := backup.NewManager(cfg.Target.DBPath, cfg.Backup.Dir, cfg.Backup.FilesDir, backup.WithLogger(log))

	res, err := m.Cleanup(keep, opts.DryRun)
	if err != nil {
		if opts.Format == "json" {
			_ = newFormatter(opts.RootOptions, cmd).Error(ErrCodeCleanup, err.Error(), nil)
		}
		return WrapExitError(ExitCommandError, "cleanup failed", err)
	}

	if opts.Format == "json" {
		return newFormatter(opts.RootOptions, cmd).Success(res)
	}

	out := cmd.OutOrStdout()
	if len(res.Deleted) == 0 {
		fmt.Fprintln(out, "Nothing to delete.")
		return nil
	}

	if res.DryRun {
		fmt.Fprintf(out, "Would delete %d backups:\n", len(res.Deleted))
	} else {
		fmt.Fprintf(out, "Deleted %d backups:\n", len(res.Deleted))
	}
	for _, rec := range res.Deleted {
		fmt.Fprintf(out, "  %s (%s)\n", rec.Name, humanize.Bytes(uint64(rec.Size)))
	}
	return nil
}
