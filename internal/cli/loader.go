package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/jjhmonolith/yurichatbot-localserver/internal/config"
)

// defaultConfigFile is consulted when --config is not given. A missing
// default file is fine (built-in defaults apply); a missing explicit file is
// a command error.
const defaultConfigFile = "yurictl.yaml"

// loadConfig resolves the effective configuration for one command
// invocation. Commands apply their own flag overrides afterwards.
func loadConfig(opts *RootOptions) (*config.Config, error) {
	path := opts.Config
	if path == "" {
		if _, err := os.Stat(defaultConfigFile); err == nil {
			path = defaultConfigFile
		}
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	return cfg, nil
}

// commandLogger builds the logger commands hand to the migration and backup
// layers. Progress and warnings go to stderr so JSON output on stdout stays
// parseable; --verbose lowers the level to debug.
func commandLogger(cmd *cobra.Command, opts *RootOptions) *slog.Logger {
	level := slog.LevelInfo
	if opts.Verbose {
		level = slog.LevelDebug
	}
	handler := slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level})
	return slog.New(handler)
}

// newFormatter builds the output formatter for one command invocation.
func newFormatter(opts *RootOptions, cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:  opts.Format,
		Writer:  cmd.OutOrStdout(),
		Verbose: opts.Verbose,
	}
}

// requireDatabase verifies the target database exists before a command that
// reads it. Commands never create the database implicitly; only a migration
// run does that.
func requireDatabase(path string) error {
	if _, err := os.Stat(path); err != nil {
		return WrapExitError(ExitCommandError, fmt.Sprintf("no database at %s", path), err)
	}
	return nil
}

// Error codes carried in the JSON envelope. One table for every command so
// scripted callers can switch on the code.
const (
	ErrCodeGeneric   = "E001" // Generic/unknown error
	ErrCodeConfig    = "E002" // Config file missing or invalid
	ErrCodeStore     = "E003" // Target database missing or unreadable
	ErrCodeMigration = "E004" // Migration run failed
	ErrCodeBackup    = "E005" // Backup creation failed
	ErrCodeRestore   = "E006" // Restore failed
	ErrCodeCleanup   = "E007" // Retention cleanup failed
	ErrCodeCloud     = "E008" // Cloud upload not configured or unavailable
)
