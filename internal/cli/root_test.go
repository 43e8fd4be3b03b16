package cli

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "yurictl", cmd.Use)
	assert.Contains(t, cmd.Long, "SQLite")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := []string{"migrate", "backup", "restore", "cleanup", "status"}

	for _, cmdName := range commands {
		t.Run(cmdName, func(t *testing.T) {
			subCmd, _, err := cmd.Find([]string{cmdName})
			require.NoError(t, err, "Command %s should exist", cmdName)
			require.NotNil(t, subCmd)
			assert.Equal(t, cmdName, subCmd.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	configFlag := cmd.PersistentFlags().Lookup("config")
	require.NotNil(t, configFlag)
	assert.Equal(t, "", configFlag.DefValue)

	verboseFlag := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "v", verboseFlag.Shorthand)
	assert.Equal(t, "false", verboseFlag.DefValue)

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)
}

func TestInvalidFormatRejected(t *testing.T) {
	cmd := NewRootCommand()
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	cmd.SetArgs([]string{"--format", "xml", "status"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `invalid format "xml"`)
}

func TestMigrateCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	migrateCmd, _, err := cmd.Find([]string{"migrate"})
	require.NoError(t, err)

	for _, name := range []string{"source-uri", "db", "no-backup", "checksums"} {
		assert.NotNil(t, migrateCmd.Flags().Lookup(name), "flag --%s", name)
	}
}

func TestBackupCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	backupCmd, _, err := cmd.Find([]string{"backup"})
	require.NoError(t, err)

	scopeFlag := backupCmd.Flags().Lookup("scope")
	require.NotNil(t, scopeFlag)
	assert.Equal(t, "full", scopeFlag.DefValue)

	uploadFlag := backupCmd.Flags().Lookup("upload")
	require.NotNil(t, uploadFlag)
	assert.Equal(t, "false", uploadFlag.DefValue)
}

func TestRestoreRequiresName(t *testing.T) {
	cmd := NewRootCommand()
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	cmd.SetArgs([]string{"restore"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "required flag")
	assert.Contains(t, err.Error(), "name")
}

func TestCleanupCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	cleanupCmd, _, err := cmd.Find([]string{"cleanup"})
	require.NoError(t, err)

	keepFlag := cleanupCmd.Flags().Lookup("keep")
	require.NotNil(t, keepFlag)
	assert.Equal(t, "0", keepFlag.DefValue)

	dryRunFlag := cleanupCmd.Flags().Lookup("dry-run")
	require.NotNil(t, dryRunFlag)
	assert.Equal(t, "false", dryRunFlag.DefValue)
}
