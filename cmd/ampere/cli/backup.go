package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/ampere-erp/ampere-erp/internal/backup"
	"github.com/ampere-erp/ampere-erp/internal/platform/httpx"
	"github.com/ampere-erp/ampere-erp/internal/shared"
)

// BackupService is the slice of backup.Service the commands need.
type BackupService interface {
	Export(ctx context.Context) (backup.Document, error)
	RestoreJSON(ctx context.Context, actor shared.Actor, raw []byte) (backup.Counts, error)
}

// BackupCLI runs export and restore outside the HTTP server.
type BackupCLI struct {
	service BackupService
	now     func() time.Time
}

// NewBackupCLI wraps a backup service.
func NewBackupCLI(service BackupService) (*BackupCLI, error) {
	if service == nil {
		return nil, errors.New("backup cli: service required")
	}
	return &BackupCLI{service: service, now: time.Now}, nil
}

// BackupExportOptions defines the flags of backup-export.
type BackupExportOptions struct {
	// Out is the destination file; "-" or empty writes to Stdout.
	Out    string
	Stdout io.Writer
	Stderr io.Writer
}

// ExportCommand writes the firm backup document and returns the exit code.
func (c *BackupCLI) ExportCommand(ctx context.Context, opts BackupExportOptions) int {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	doc, err := c.service.Export(ctx)
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "backup export: %v\n", err)
		return 1
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "backup export: encode: %v\n", err)
		return 1
	}
	data = append(data, '\n')
	if opts.Out == "" || opts.Out == "-" {
		_, _ = opts.Stdout.Write(data)
		return 0
	}
	if err := os.WriteFile(opts.Out, data, 0o600); err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "backup export: %v\n", err)
		return 1
	}
	_, _ = fmt.Fprintf(opts.Stderr, "backup written to %s (%d clients, %d quotes)\n", opts.Out, len(doc.Clients), len(doc.Quotes))
	return 0
}

// DefaultExportName mirrors the download filename of the HTTP export.
func (c *BackupCLI) DefaultExportName() string {
	return "backup-" + c.now().UTC().Format("20060102-150405") + ".json"
}

// BackupRestoreOptions defines the flags of backup-restore.
type BackupRestoreOptions struct {
	In string
	// ActorID is recorded on the audit entry and receives foreign-owned rows.
	ActorID int64
	// Yes skips the interactive confirmation.
	Yes        bool
	JSONOutput bool
	Stdin      io.Reader
	Stdout     io.Writer
	Stderr     io.Writer
}

// RestoreCommand replaces the firm dataset with a backup file. Exit codes: 0
// restored, 1 usage or I/O error, 2 aborted by the operator, 3 rejected by
// validation, 4 another restore holds the lock.
func (c *BackupCLI) RestoreCommand(ctx context.Context, opts BackupRestoreOptions) int {
	if opts.Stdin == nil {
		opts.Stdin = os.Stdin
	}
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	if strings.TrimSpace(opts.In) == "" {
		_, _ = fmt.Fprintln(opts.Stderr, "backup restore: --in is required")
		return 1
	}
	raw, err := os.ReadFile(opts.In)
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "backup restore: %v\n", err)
		return 1
	}
	if !opts.Yes {
		ok, err := confirm(opts.Stdin, opts.Stdout, opts.In)
		if err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "backup restore: %v\n", err)
			return 1
		}
		if !ok {
			_, _ = fmt.Fprintln(opts.Stderr, "backup restore: aborted")
			return 2
		}
	}

	counts, err := c.service.RestoreJSON(ctx, shared.Actor{UserID: opts.ActorID, UserAgent: "ampere-cli"}, raw)
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "backup restore: %v\n", err)
		switch {
		case errors.Is(err, backup.ErrRestoreInProgress):
			return 4
		case errors.Is(err, httpx.ErrValidation):
			return 3
		default:
			return 1
		}
	}
	if opts.JSONOutput {
		enc := json.NewEncoder(opts.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(map[string]any{"restored": counts})
		return 0
	}
	_, _ = fmt.Fprintf(opts.Stdout, "restored %d clients, %d quotes (%d service items, %d material items), %d payments, %d expenses, %d employees, %d catalog entries, %d closings\n",
		counts.Clients, counts.Quotes, counts.ServiceItems, counts.MaterialItems, counts.Payments, counts.Expenses, counts.Employees, counts.Services, counts.CashClosings)
	return 0
}

func confirm(r io.Reader, w io.Writer, path string) (bool, error) {
	fmt.Fprintf(w, "Restoring %s replaces the current dataset. Type %q to continue: ", path, backup.ConfirmValue)
	reader := bufio.NewReader(r)
	line, err := reader.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return false, err
	}
	return strings.TrimSpace(line) == backup.ConfirmValue, nil
}
