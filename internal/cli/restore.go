package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jjhmonolith/yurichatbot-localserver/internal/backup"
)

// RestoreOptions holds flags for the restore command.
type RestoreOptions struct {
	*RootOptions
	Name string
	Yes  bool
}

// RestoreSummary is the restore command's result payload.
type RestoreSummary struct {
	Name             string `json:"name"`
	DatabaseRestored bool   `json:"database_restored"`
	FilesRestored    int    `json:"files_restored,omitempty"`
	SafetyCopy       string `json:"safety_copy,omitempty"`
	RolledBack       bool   `json:"rolled_back,omitempty"`
}

// NewRestoreCommand creates the restore command.
func NewRestoreCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RestoreOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "restore",
		Short: "Restore a backup over the live data",
		Long: `Restore the named backup.

Database backups replace the live SQLite database; a safety copy of the
current database is taken first, and put back if the restore fails its
integrity check. Files backups unpack over the uploads directory. Full
bundles restore both, verifying the bundled database against its manifest
checksum before anything is touched.

Use "yurictl status" to list restorable backup names.

Example:
  yurictl restore --name db-20240501-093000.db
  yurictl restore --name full-20240501-093000 --yes`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRestore(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Name, "name", "", "backup name to restore (required)")
	cmd.Flags().BoolVar(&opts.Yes, "yes", false, "skip the confirmation prompt")
	_ = cmd.MarkFlagRequired("name")

	return cmd
}

func runRestore(opts *RestoreOptions, cmd *cobra.Command) error {
	cfg, err := loadConfig(opts.RootOptions)
	if err != nil {
		return err
	}
	log := commandLogger(cmd, opts.RootOptions)
	m := backup.NewManager(cfg.Target.DBPath, cfg.Backup.Dir, cfg.Backup.FilesDir, backup.WithLogger(log))

	rec, err := findBackup(m, opts.Name)
	if err != nil {
		return err
	}

	if !opts.Yes {
		ok, promptErr := confirm(cmd, fmt.Sprintf("Restore %s over the live data? [y/N]: ", rec.Name))
		if promptErr != nil {
			return WrapExitError(ExitCommandError, "failed to read confirmation", promptErr)
		}
		if !ok {
			fmt.Fprintln(cmd.OutOrStdout(), "Aborted.")
			return nil
		}
	}

	ctx := cmd.Context()
	summary := &RestoreSummary{Name: rec.Name}
	var restoreErr error

	switch rec.Category {
	case backup.CategoryFiles:
		summary.FilesRestored, restoreErr = m.RestoreFiles(rec.Name)

	case backup.CategoryFull:
		res, dbErr := m.Restore(ctx, rec.Name)
		if res != nil {
			summary.SafetyCopy = res.SafetyCopy
			summary.RolledBack = res.RolledBack
		}
		if dbErr != nil {
			restoreErr = dbErr
			break
		}
		summary.DatabaseRestored = true

		n, filesErr := m.RestoreFiles(rec.Name)
		if filesErr != nil && !errors.Is(filesErr, backup.ErrNoFilesArchive) {
			restoreErr = filesErr
			break
		}
		summary.FilesRestored = n

	default: // database snapshots and pre-restore safety copies
		res, dbErr := m.Restore(ctx, rec.Name)
		if res != nil {
			summary.SafetyCopy = res.SafetyCopy
			summary.RolledBack = res.RolledBack
		}
		if dbErr != nil {
			restoreErr = dbErr
			break
		}
		summary.DatabaseRestored = true
	}

	if restoreErr != nil {
		if opts.Format == "json" {
			_ = newFormatter(opts.RootOptions, cmd).Error(ErrCodeRestore, restoreErr.Error(), summary)
		}
		return WrapExitError(ExitFailure, "restore failed", restoreErr)
	}

	if opts.Format == "json" {
		return newFormatter(opts.RootOptions, cmd).Success(summary)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Restored %s.\n", summary.Name)
	if summary.SafetyCopy != "" {
		fmt.Fprintf(out, "Previous database saved as %s.\n", summary.SafetyCopy)
	}
	if summary.FilesRestored > 0 {
		fmt.Fprintf(out, "Restored %d uploaded files.\n", summary.FilesRestored)
	}
	return nil
}

// findBackup resolves a backup name against the backup directory listing.
func findBackup(m *backup.Manager, name string) (*backup.Record, error) {
	records, err := m.List()
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to list backups", err)
	}
	for i := range records {
		if records[i].Name == name {
			return &records[i], nil
		}
	}
	return nil, NewExitError(ExitCommandError, fmt.Sprintf("no backup named %q", name))
}

// confirm prompts on stdout and reads one line from stdin. Only an explicit
// "y" or "yes" counts as consent.
func confirm(cmd *cobra.Command, prompt string) (bool, error) {
	fmt.Fprint(cmd.OutOrStdout(), prompt)

	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && err != io.EOF {
		return false, err
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes", nil
}
