package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/ampere-erp/ampere-erp/internal/backup"
	"github.com/ampere-erp/ampere-erp/internal/shared"
)

type stubBackupService struct {
	doc        backup.Document
	counts     backup.Counts
	restoreErr error
	restored   []byte
	actor      shared.Actor
}

func (s *stubBackupService) Export(ctx context.Context) (backup.Document, error) {
	return s.doc, nil
}

func (s *stubBackupService) RestoreJSON(ctx context.Context, actor shared.Actor, raw []byte) (backup.Counts, error) {
	s.actor = actor
	s.restored = raw
	return s.counts, s.restoreErr
}

func writeBackupFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "backup.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"clients":[{"id":"x"}],"quotes":[]}`), 0o600))
	return path
}

func TestExportCommandWritesFile(t *testing.T) {
	svc := &stubBackupService{doc: backup.Document{
		Clients: []backup.Client{{ID: uuid.New(), Name: "Maria"}},
	}}
	cli, err := NewBackupCLI(svc)
	require.NoError(t, err)

	out := filepath.Join(t.TempDir(), "out.json")
	stderr := new(bytes.Buffer)
	code := cli.ExportCommand(context.Background(), BackupExportOptions{Out: out, Stderr: stderr})
	require.Zero(t, code)
	require.Contains(t, stderr.String(), "1 clients")

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	var decoded map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.Contains(t, decoded, "clients")
}

func TestExportCommandToStdout(t *testing.T) {
	cli, err := NewBackupCLI(&stubBackupService{})
	require.NoError(t, err)
	stdout := new(bytes.Buffer)
	require.Zero(t, cli.ExportCommand(context.Background(), BackupExportOptions{Out: "-", Stdout: stdout}))
	require.True(t, json.Valid(stdout.Bytes()))
}

func TestDefaultExportName(t *testing.T) {
	cli, err := NewBackupCLI(&stubBackupService{})
	require.NoError(t, err)
	cli.now = func() time.Time { return time.Date(2024, 6, 30, 14, 5, 9, 0, time.UTC) }
	require.Equal(t, "backup-20240630-140509.json", cli.DefaultExportName())
}

func TestRestoreCommandRequiresConfirmation(t *testing.T) {
	svc := &stubBackupService{}
	cli, err := NewBackupCLI(svc)
	require.NoError(t, err)

	stderr := new(bytes.Buffer)
	code := cli.RestoreCommand(context.Background(), BackupRestoreOptions{
		In:     writeBackupFile(t),
		Stdin:  strings.NewReader("no\n"),
		Stdout: new(bytes.Buffer),
		Stderr: stderr,
	})
	require.Equal(t, 2, code)
	require.Nil(t, svc.restored)
	require.Contains(t, stderr.String(), "aborted")
}

func TestRestoreCommandConfirmedInteractively(t *testing.T) {
	svc := &stubBackupService{counts: backup.Counts{Clients: 1}}
	cli, err := NewBackupCLI(svc)
	require.NoError(t, err)

	stdout := new(bytes.Buffer)
	code := cli.RestoreCommand(context.Background(), BackupRestoreOptions{
		In:      writeBackupFile(t),
		ActorID: 2,
		Stdin:   strings.NewReader("restore\n"),
		Stdout:  stdout,
		Stderr:  new(bytes.Buffer),
	})
	require.Zero(t, code)
	require.NotNil(t, svc.restored)
	require.Equal(t, int64(2), svc.actor.UserID)
	require.Contains(t, stdout.String(), "restored 1 clients")
}

func TestRestoreCommandJSONOutput(t *testing.T) {
	svc := &stubBackupService{counts: backup.Counts{Clients: 3, Quotes: 2}}
	cli, err := NewBackupCLI(svc)
	require.NoError(t, err)

	stdout := new(bytes.Buffer)
	code := cli.RestoreCommand(context.Background(), BackupRestoreOptions{
		In: writeBackupFile(t), Yes: true, JSONOutput: true, Stdout: stdout, Stderr: new(bytes.Buffer),
	})
	require.Zero(t, code)
	var payload struct {
		Restored backup.Counts `json:"restored"`
	}
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &payload))
	require.Equal(t, int64(3), payload.Restored.Clients)
	require.Equal(t, int64(2), payload.Restored.Quotes)
}

func TestRestoreCommandExitCodes(t *testing.T) {
	cases := []struct {
		name string
		err  error
		code int
	}{
		{name: "empty backup", err: backup.ErrEmptyBackup, code: 3},
		{name: "locked", err: backup.ErrRestoreInProgress, code: 4},
		{name: "step failure", err: &backup.StepError{Step: "insert payments", Err: errors.New("boom")}, code: 1},
		{name: "wrapped format", err: fmt.Errorf("read: %w", backup.ErrInvalidFormat), code: 3},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cli, err := NewBackupCLI(&stubBackupService{restoreErr: tc.err})
			require.NoError(t, err)
			code := cli.RestoreCommand(context.Background(), BackupRestoreOptions{
				In: writeBackupFile(t), Yes: true, Stdout: new(bytes.Buffer), Stderr: new(bytes.Buffer),
			})
			require.Equal(t, tc.code, code)
		})
	}
}

func TestRestoreCommandMissingInput(t *testing.T) {
	cli, err := NewBackupCLI(&stubBackupService{})
	require.NoError(t, err)
	stderr := new(bytes.Buffer)
	require.Equal(t, 1, cli.RestoreCommand(context.Background(), BackupRestoreOptions{Stderr: stderr}))
	require.Contains(t, stderr.String(), "--in is required")
}

func TestBuildTask(t *testing.T) {
	task, err := BuildTask("delinquency:warmup")
	require.NoError(t, err)
	require.Equal(t, "delinquency:warmup", task.Type())

	_, err = BuildTask("unknown")
	require.Error(t, err)
}
