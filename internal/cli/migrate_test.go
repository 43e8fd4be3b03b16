package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jjhmonolith/yurichatbot-localserver/internal/source"
)

func TestMigrateCommandEndToEnd(t *testing.T) {
	env := newCLIEnv(t)

	buf := &bytes.Buffer{}
	opts := &MigrateOptions{RootOptions: env.rootOptions("text"), Dial: memoryDial(cliSource())}
	cmd := newMigrateCommand(opts)
	cmd.SetOut(buf)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(nil)

	require.NoError(t, cmd.Execute())

	out := buf.String()
	assert.Contains(t, out, "Migration: succeeded")
	assert.Contains(t, out, "read=2 imported=2 skipped=0")
	assert.Contains(t, out, "Pre-migration backup: db-")

	assert.Equal(t, int64(2), countTextbookRows(t, env.dbPath))

	// The safety backup landed in the configured directory.
	entries, err := os.ReadDir(env.backupDir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, strings.HasPrefix(entries[0].Name(), "db-"))
}

func TestMigrateCommandJSON(t *testing.T) {
	env := newCLIEnv(t)

	buf := &bytes.Buffer{}
	opts := &MigrateOptions{RootOptions: env.rootOptions("json"), Dial: memoryDial(cliSource())}
	cmd := newMigrateCommand(opts)
	cmd.SetOut(buf)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(nil)

	require.NoError(t, cmd.Execute())

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)

	data, err := json.Marshal(resp.Data)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"state":"succeeded"`)
	assert.Contains(t, string(data), `"links_created":1`)
}

func TestMigrateCommandFailureExitsWithOperationFailure(t *testing.T) {
	env := newCLIEnv(t)

	dial := func(ctx context.Context) (source.Connector, error) {
		return nil, errors.New("no route to host")
	}
	buf := &bytes.Buffer{}
	opts := &MigrateOptions{RootOptions: env.rootOptions("text"), Dial: dial}
	cmd := newMigrateCommand(opts)
	cmd.SetOut(buf)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(nil)

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), "migration failed")

	// The report still renders, showing where the run stopped.
	assert.Contains(t, buf.String(), "Migration: failed")
}

func TestMigrateCommandJSONFailureEnvelope(t *testing.T) {
	env := newCLIEnv(t)

	dial := func(ctx context.Context) (source.Connector, error) {
		return nil, errors.New("no route to host")
	}
	buf := &bytes.Buffer{}
	opts := &MigrateOptions{RootOptions: env.rootOptions("json"), Dial: dial}
	cmd := newMigrateCommand(opts)
	cmd.SetOut(buf)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(nil)

	err := cmd.Execute()
	require.Error(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeMigration, resp.Error.Code)
	assert.Contains(t, resp.Error.Message, "no route to host")
}

func TestMigrateCommandNoBackup(t *testing.T) {
	env := newCLIEnv(t)

	opts := &MigrateOptions{RootOptions: env.rootOptions("text"), Dial: memoryDial(cliSource())}
	cmd := newMigrateCommand(opts)
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	cmd.SetArgs([]string{"--no-backup"})

	require.NoError(t, cmd.Execute())

	// No snapshotter was wired, so the backup directory was never created.
	_, statErr := os.Stat(env.backupDir)
	assert.True(t, os.IsNotExist(statErr))
}

func TestMigrateCommandDBFlagOverridesConfig(t *testing.T) {
	env := newCLIEnv(t)
	altDB := filepath.Join(env.root, "alt.db")

	opts := &MigrateOptions{RootOptions: env.rootOptions("text"), Dial: memoryDial(cliSource())}
	cmd := newMigrateCommand(opts)
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	cmd.SetArgs([]string{"--db", altDB, "--no-backup"})

	require.NoError(t, cmd.Execute())

	assert.Equal(t, int64(2), countTextbookRows(t, altDB))
	_, statErr := os.Stat(env.dbPath)
	assert.True(t, os.IsNotExist(statErr))
}

func TestMigrateCommandMissingConfig(t *testing.T) {
	opts := &MigrateOptions{RootOptions: &RootOptions{Config: "/nonexistent/yurictl.yaml", Format: "text"}}
	cmd := newMigrateCommand(opts)
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(nil)

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "failed to load config")
}
