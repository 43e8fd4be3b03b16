package cli

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackupScopeDatabase(t *testing.T) {
	env := newCLIEnv(t)
	seedDatabase(t, env.dbPath, "tb-1", "tb-2")

	buf := &bytes.Buffer{}
	cmd := NewBackupCommand(env.rootOptions("text"))
	cmd.SetOut(buf)
	cmd.SetErr(io.Discard)
	cmd.SetArgs([]string{"--scope", "db"})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, buf.String(), "Backup created: db-")

	matches, err := filepath.Glob(filepath.Join(env.backupDir, "db-*.db"))
	require.NoError(t, err)
	require.Len(t, matches, 1)

	// The snapshot is a working database with the same content.
	assert.Equal(t, int64(2), countTextbookRows(t, matches[0]))
}

func TestBackupScopeFiles(t *testing.T) {
	env := newCLIEnv(t)
	require.NoError(t, os.MkdirAll(env.filesDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(env.filesDir, "passage.png"), []byte("png bytes"), 0o644))

	buf := &bytes.Buffer{}
	cmd := NewBackupCommand(env.rootOptions("text"))
	cmd.SetOut(buf)
	cmd.SetErr(io.Discard)
	cmd.SetArgs([]string{"--scope", "files"})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, buf.String(), "Backup created: files-")

	matches, err := filepath.Glob(filepath.Join(env.backupDir, "files-*.tar.gz"))
	require.NoError(t, err)
	assert.Len(t, matches, 1)
}

func TestBackupDefaultScopeIsFullBundle(t *testing.T) {
	env := newCLIEnv(t)
	seedDatabase(t, env.dbPath, "tb-1")
	require.NoError(t, os.MkdirAll(env.filesDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(env.filesDir, "passage.png"), []byte("png bytes"), 0o644))

	buf := &bytes.Buffer{}
	cmd := NewBackupCommand(env.rootOptions("json"))
	cmd.SetOut(buf)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(nil)

	require.NoError(t, cmd.Execute())

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)

	matches, err := filepath.Glob(filepath.Join(env.backupDir, "full-*"))
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.FileExists(t, filepath.Join(matches[0], "backup.json"))
	assert.FileExists(t, filepath.Join(matches[0], "database.db"))
	assert.FileExists(t, filepath.Join(matches[0], "files.tar.gz"))
}

func TestBackupInvalidScope(t *testing.T) {
	env := newCLIEnv(t)

	cmd := NewBackupCommand(env.rootOptions("text"))
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	cmd.SetArgs([]string{"--scope", "everything"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), `invalid scope "everything"`)
}

func TestBackupMissingDatabase(t *testing.T) {
	env := newCLIEnv(t)

	cmd := NewBackupCommand(env.rootOptions("text"))
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	cmd.SetArgs([]string{"--scope", "db"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "no database at")
}

func TestBackupUploadWithoutCloudConfig(t *testing.T) {
	env := newCLIEnv(t)
	seedDatabase(t, env.dbPath, "tb-1")

	cmd := NewBackupCommand(env.rootOptions("text"))
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	cmd.SetArgs([]string{"--scope", "db", "--upload"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "cloud uploads are not configured")
}
