package cli

import (
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/jjhmonolith/yurichatbot-localserver/internal/backup"
	"github.com/jjhmonolith/yurichatbot-localserver/internal/entity"
	"github.com/jjhmonolith/yurichatbot-localserver/internal/store"
)

// StatusReport is the status command's result payload.
type StatusReport struct {
	Backups  []backup.Record `json:"backups"`
	Database DatabaseStatus  `json:"database"`
}

// DatabaseStatus summarizes the target store.
type DatabaseStatus struct {
	Path     string      `json:"path"`
	Exists   bool        `json:"exists"`
	Counts   []KindCount `json:"counts,omitempty"`
	LinkRows int64       `json:"link_rows"`
}

// KindCount is one table's row count.
type KindCount struct {
	Kind entity.Kind `json:"kind"`
	Rows int64       `json:"rows"`
}

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show backup inventory and target database counts",
		Long: `Show every backup under the backup directory (name, category, size, age)
and per-table row counts of the target database.

Example:
  yurictl status
  yurictl status --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(rootOpts, cmd)
		},
	}
	return cmd
}

func runStatus(opts *RootOptions, cmd *cobra.Command) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	log := commandLogger(cmd, opts)
	m := backup.NewManager(cfg.Target.DBPath, cfg.Backup.Dir, cfg.Backup.FilesDir, backup.WithLogger(log))

	records, err := m.List()
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to list backups", err)
	}

	status := &StatusReport{
		Backups:  records,
		Database: DatabaseStatus{Path: cfg.Target.DBPath},
	}

	if _, statErr := os.Stat(cfg.Target.DBPath); statErr == nil {
		status.Database.Exists = true

		st, openErr := store.Open(cfg.Target.DBPath)
		if openErr != nil {
			return WrapExitError(ExitCommandError, "failed to open database", openErr)
		}
		defer func() {
			if closeErr := st.Close(); closeErr != nil {
				log.Error("error closing database", "error", closeErr)
			}
		}()

		ctx := cmd.Context()
		for _, kind := range entity.ImportOrder {
			n, countErr := st.Count(ctx, kind)
			if countErr != nil {
				return WrapExitError(ExitCommandError, fmt.Sprintf("failed to count %s", kind), countErr)
			}
			status.Database.Counts = append(status.Database.Counts, KindCount{Kind: kind, Rows: n})
		}
		links, linkErr := st.LinkCount(ctx)
		if linkErr != nil {
			return WrapExitError(ExitCommandError, "failed to count links", linkErr)
		}
		status.Database.LinkRows = links
	}

	if opts.Format == "json" {
		return newFormatter(opts, cmd).Success(status)
	}

	out := cmd.OutOrStdout()
	if len(status.Backups) == 0 {
		fmt.Fprintln(out, "Backups: none")
	} else {
		fmt.Fprintf(out, "Backups (%d):\n", len(status.Backups))
		for _, rec := range status.Backups {
			fmt.Fprintf(out, "  %-28s %-12s %-10s %s\n",
				rec.Name, rec.Category, humanize.Bytes(uint64(rec.Size)), humanize.Time(rec.CreatedAt))
		}
	}

	fmt.Fprintln(out)
	if !status.Database.Exists {
		fmt.Fprintf(out, "Target database: %s (missing)\n", status.Database.Path)
		return nil
	}
	fmt.Fprintf(out, "Target database: %s\n", status.Database.Path)
	for _, kc := range status.Database.Counts {
		fmt.Fprintf(out, "  %-24s %d\n", kc.Kind, kc.Rows)
	}
	fmt.Fprintf(out, "  %-24s %d\n", "textbook_passage_sets", status.Database.LinkRows)
	return nil
}
