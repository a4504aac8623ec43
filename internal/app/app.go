// Package app is the application layer between the CLI and the capture
// pipeline. It constructs all dependencies from config, exposes the
// high-level operations the CLI commands call, and manages the ledger
// lifecycle on Close.
package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"inkwell/internal/archive"
	"inkwell/internal/backup"
	"inkwell/internal/config"
	"inkwell/internal/database"
	"inkwell/internal/metrics"
	"inkwell/internal/model"
	"inkwell/internal/pipeline"
	"inkwell/internal/transcribe"
	"inkwell/internal/vault"
)

// archiveCursor is the sync_state cursor tracking the last audit row
// mirrored to the archive.
const archiveCursor = "archive"

// App wires the pipeline together for one CLI invocation.
type App struct {
	cfg      *config.Config
	ledger   *database.SQLiteLedger
	vault    pipeline.Vault
	archiver archive.Archiver
	service  *pipeline.Service
	recorder *metrics.Recorder
	logger   pipeline.Logger
	logFile  *os.File
}

// NewApp creates a fully wired App from the given config. operation
// identifies the CLI command being run (it tags every log line of this
// invocation). The caller must call Close when done.
func NewApp(ctx context.Context, cfg *config.Config, operation string) (*App, error) {
	clock := pipeline.RealClock{}

	runID := operation + "-" + clock.Now().UTC().Format("20060102T150405Z")
	slogger, logFile, err := newLogger(cfg.LogDir, runID)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	logger := &slogAdapter{l: slogger}

	fail := func(err error) (*App, error) {
		logFile.Close()
		return nil, err
	}

	ledger, err := database.NewLedgerFromConfig(cfg.Ledger, cfg.InstanceID, clock)
	if err != nil {
		return fail(fmt.Errorf("creating ledger: %w", err))
	}

	v, err := vault.NewVaultFromConfig(cfg.Vault)
	if err != nil {
		ledger.Close()
		return fail(fmt.Errorf("creating vault: %w", err))
	}
	if err := v.EnsureLayout(); err != nil {
		ledger.Close()
		return fail(fmt.Errorf("preparing vault: %w", err))
	}

	transcriber, err := transcribe.NewTranscriberFromConfig(cfg.Transcriber)
	if err != nil {
		ledger.Close()
		return fail(fmt.Errorf("creating transcriber: %w", err))
	}

	archiver, err := archive.NewArchiverFromConfig(ctx, cfg.Archive)
	if err != nil {
		ledger.Close()
		return fail(fmt.Errorf("creating archiver: %w", err))
	}

	recorder := metrics.NewRecorder()
	exporter := pipeline.NewExporter(ledger, v, logger, clock, recorder)
	failures := pipeline.NewFailureHandler(ledger, exporter, logger, clock, recorder)
	worker := pipeline.NewWorker(ledger, transcriber, failures, logger, clock, recorder,
		cfg.Worker.QueueCeiling, time.Duration(cfg.Worker.AttemptTimeout)*time.Second)
	service := pipeline.NewService(ledger, v, worker, exporter, logger, clock, pipeline.ULIDGenerator{})

	return &App{
		cfg:      cfg,
		ledger:   ledger,
		vault:    v,
		archiver: archiver,
		service:  service,
		recorder: recorder,
		logger:   logger,
		logFile:  logFile,
	}, nil
}

// AddVoiceCapture registers an audio file for transcription and export.
func (a *App) AddVoiceCapture(rawPath string) (*model.Capture, error) {
	absPath, err := filepath.Abs(rawPath)
	if err != nil {
		return nil, fmt.Errorf("resolving path: %w", err)
	}
	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("reading audio file: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory, not an audio file", absPath)
	}
	return a.service.DiscoverVoice(absPath, absPath, info.Size(), info.ModTime())
}

// AddEmailCapture registers a forwarded email by message ID and body.
func (a *App) AddEmailCapture(messageID, content string) (*model.Capture, error) {
	if messageID == "" {
		return nil, fmt.Errorf("message ID must not be empty")
	}
	return a.service.DiscoverEmail(messageID, content)
}

// RunResult summarizes one pipeline run.
type RunResult struct {
	Processed int
	Exported  int
	Mirrored  int
}

// Run executes one full pipeline pass: recover from any prior crash,
// drain the transcription queue, export everything eligible, then
// mirror new exports to the archive. Archive failures are logged, not
// returned; the vault is the system of record.
func (a *App) Run(ctx context.Context) (*RunResult, error) {
	if err := a.service.Recover(); err != nil {
		return nil, fmt.Errorf("recovering: %w", err)
	}

	processed, err := a.service.ProcessQueue(ctx)
	if err != nil {
		return nil, fmt.Errorf("processing queue: %w", err)
	}

	exported, err := a.service.ExportEligible()
	if err != nil {
		return nil, fmt.Errorf("exporting: %w", err)
	}

	mirrored := a.mirrorArchive(ctx)

	return &RunResult{Processed: processed, Exported: exported, Mirrored: mirrored}, nil
}

// mirrorArchive uploads exports the archive has not seen yet, resuming
// from the persisted audit cursor. Best-effort: the first failure stops
// the pass and the cursor stays put, so the next run retries.
func (a *App) mirrorArchive(ctx context.Context) int {
	if a.archiver == nil {
		return 0
	}

	cursor, err := a.ledger.GetSyncState(archiveCursor)
	if err != nil {
		a.logger.Warn("reading archive cursor", "error", err)
		return 0
	}
	afterID := int64(0)
	if cursor != "" {
		afterID, err = strconv.ParseInt(cursor, 10, 64)
		if err != nil {
			a.logger.Warn("corrupt archive cursor, restarting from zero", "cursor", cursor)
			afterID = 0
		}
	}

	audits, err := a.ledger.ListAuditsSince(afterID)
	if err != nil {
		a.logger.Warn("listing audits for archive", "error", err)
		return 0
	}

	mirrored := 0
	last := afterID
	for _, audit := range audits {
		// Duplicate skips reference the original's file, which was
		// already mirrored when its own audit row was processed.
		if audit.Mode != model.AuditDuplicateSkip {
			data, err := a.vault.Read(audit.VaultPath)
			if err != nil {
				a.logger.Warn("reading export for archive", "path", audit.VaultPath, "error", err)
				break
			}
			if err := a.archiver.Store(ctx, audit.VaultPath, data); err != nil {
				a.logger.Warn("mirroring export to archive", "path", audit.VaultPath, "error", err)
				break
			}
			mirrored++
		}
		last = audit.ID
	}

	if last != afterID {
		if err := a.ledger.SetSyncState(archiveCursor, strconv.FormatInt(last, 10)); err != nil {
			a.logger.Warn("saving archive cursor", "error", err)
		}
	}
	return mirrored
}

// Status returns worker counters and capture counts by status.
func (a *App) Status() (*pipeline.StatusSnapshot, error) {
	return a.service.GetStatus()
}

// List returns captures in the given status, oldest first.
func (a *App) List(rawStatus string) ([]*model.Capture, error) {
	status, err := model.ParseStatus(rawStatus)
	if err != nil {
		return nil, err
	}
	return a.service.CapturesByStatus(status)
}

// Show returns a single capture by ID.
func (a *App) Show(id string) (*model.Capture, error) {
	return a.service.Capture(id)
}

// Errors returns the error log rows for a capture, oldest first.
func (a *App) Errors(captureID string) ([]*model.ErrorLog, error) {
	return a.service.Errors(captureID)
}

// Backup writes an encrypted snapshot of the ledger and returns its path.
func (a *App) Backup() (string, error) {
	encryptor := backup.NewAgeEncryptor(a.cfg.Backup)
	snapshotter := backup.NewSnapshotter(a.ledger, encryptor, a.cfg.Backup.Dir, pipeline.RealClock{})
	return snapshotter.Snapshot()
}

// Metrics returns the in-process metrics recorder for this invocation.
func (a *App) Metrics() *metrics.Recorder {
	return a.recorder
}

// Close releases the ledger and log file.
func (a *App) Close() error {
	var firstErr error
	if err := a.ledger.Close(); err != nil {
		firstErr = err
	}
	if err := a.logFile.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
