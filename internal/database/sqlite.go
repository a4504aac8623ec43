package database

import (
	"database/sql"
	"errors"
	"fmt"

	"inkwell/internal/database/migrations"
	"inkwell/internal/hash"
	"inkwell/internal/model"
	"inkwell/internal/pipeline"

	sqlite3 "github.com/mattn/go-sqlite3"
)

// SQLiteLedger implements the pipeline.Ledger interface using SQLite.
// Every mutation is a single statement so a crash can never leave
// content and status inconsistent.
type SQLiteLedger struct {
	db    *sql.DB
	clock pipeline.Clock
	path  string
}

// NewSQLiteLedger creates a new SQLite ledger connection.
// path can be a file path or ":memory:" for an in-memory ledger.
func NewSQLiteLedger(path string, clock pipeline.Clock) (*SQLiteLedger, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}

	return &SQLiteLedger{db: db, clock: clock, path: path}, nil
}

// NewSQLiteLedgerFromDB wraps an existing database connection.
// The caller is responsible for ensuring the connection is properly configured.
func NewSQLiteLedgerFromDB(db *sql.DB, clock pipeline.Clock) *SQLiteLedger {
	return &SQLiteLedger{db: db, clock: clock, path: ""}
}

// OpenConnection opens and configures a SQLite connection with the
// PRAGMAs the ledger depends on. Exported for tools and tests that need
// a properly configured connection.
func OpenConnection(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable foreign key constraints (SQLite default is OFF for backward compatibility)
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	// Crash durability is the whole point of this ledger: WAL keeps
	// commits atomic across process death, busy_timeout rides out the
	// occasional reader.
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	return db, nil
}

// isUniqueViolation reports whether err is a SQLite unique-constraint error.
func isUniqueViolation(err error) bool {
	var serr sqlite3.Error
	return errors.As(err, &serr) && serr.ExtendedCode == sqlite3.ErrConstraintUnique
}

// Capture operations

func (s *SQLiteLedger) InsertCapture(c *model.Capture) error {
	_, err := s.db.Exec(
		`INSERT INTO captures (id, source, channel_native_id, raw_content, content_hash, status, meta_json, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, string(c.Source), c.ChannelNativeID, c.RawContent, c.ContentHash,
		string(c.Status), c.MetaJSON, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			// A structural collision: the artifact (or its content) is
			// already tracked. Never overwritten, never retried.
			return fmt.Errorf("inserting capture %s: %w: %v", c.ID, pipeline.ErrIntegrity, err)
		}
		return fmt.Errorf("inserting capture %s: %w", c.ID, err)
	}
	return nil
}

const captureColumns = "id, source, channel_native_id, raw_content, content_hash, status, meta_json, created_at, updated_at"

func scanCapture(row interface{ Scan(...any) error }) (*model.Capture, error) {
	var c model.Capture
	var source, status string
	err := row.Scan(&c.ID, &source, &c.ChannelNativeID, &c.RawContent, &c.ContentHash,
		&status, &c.MetaJSON, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	c.Source = model.Source(source)
	c.Status = model.Status(status)
	return &c, nil
}

func (s *SQLiteLedger) GetCapture(id string) (*model.Capture, error) {
	row := s.db.QueryRow("SELECT "+captureColumns+" FROM captures WHERE id = ?", id)
	c, err := scanCapture(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("capture %s: %w", id, pipeline.ErrNotFound)
		}
		return nil, fmt.Errorf("getting capture %s: %w", id, err)
	}
	return c, nil
}

func (s *SQLiteLedger) queryCaptures(query string, args ...any) ([]*model.Capture, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var captures []*model.Capture
	for rows.Next() {
		c, err := scanCapture(rows)
		if err != nil {
			return nil, err
		}
		captures = append(captures, c)
	}
	return captures, rows.Err()
}

func (s *SQLiteLedger) ListCapturesByStatus(status model.Status) ([]*model.Capture, error) {
	captures, err := s.queryCaptures(
		"SELECT "+captureColumns+" FROM captures WHERE status = ? ORDER BY created_at, id",
		string(status),
	)
	if err != nil {
		return nil, fmt.Errorf("listing %s captures: %w", status, err)
	}
	return captures, nil
}

func (s *SQLiteLedger) ListExportEligible() ([]*model.Capture, error) {
	captures, err := s.queryCaptures(
		`SELECT ` + captureColumns + ` FROM captures
		 WHERE status = 'transcribed' OR (status = 'staged' AND source = 'email')
		 ORDER BY created_at, id`,
	)
	if err != nil {
		return nil, fmt.Errorf("listing export-eligible captures: %w", err)
	}
	return captures, nil
}

func (s *SQLiteLedger) FindByContentHash(fp hash.Fingerprint) (*model.Capture, error) {
	row := s.db.QueryRow("SELECT "+captureColumns+" FROM captures WHERE content_hash = ?", fp.String())
	c, err := scanCapture(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("capture with hash %s: %w", fp, pipeline.ErrNotFound)
		}
		return nil, fmt.Errorf("finding capture by hash: %w", err)
	}
	return c, nil
}

// Status transitions

func (s *SQLiteLedger) UpdateStatus(id string, from, to model.Status) error {
	if !model.CanTransition(from, to) {
		return fmt.Errorf("capture %s: %s -> %s: %w", id, from, to, pipeline.ErrInvalidTransition)
	}

	res, err := s.db.Exec(
		"UPDATE captures SET status = ?, updated_at = ? WHERE id = ? AND status = ?",
		string(to), s.clock.Now(), id, string(from),
	)
	if err != nil {
		return fmt.Errorf("updating status of capture %s: %w", id, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating status of capture %s: %w", id, err)
	}
	if affected == 0 {
		return s.explainStaleWrite(id, fmt.Sprintf("expected status %s", from))
	}
	return nil
}

func (s *SQLiteLedger) CommitTranscript(id string, text string, fp hash.Fingerprint) error {
	// One write: content, hash, and status move together. A crash can
	// never be observed as "transcribed but no content".
	res, err := s.db.Exec(
		`UPDATE captures SET raw_content = ?, content_hash = ?, status = 'transcribed', updated_at = ?
		 WHERE id = ? AND status = 'staged' AND content_hash IS NULL`,
		text, fp.String(), s.clock.Now(), id,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("committing transcript for capture %s: %w", id, pipeline.ErrDuplicateContent)
		}
		return fmt.Errorf("committing transcript for capture %s: %w", id, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("committing transcript for capture %s: %w", id, err)
	}
	if affected == 0 {
		return s.explainStaleCommit(id)
	}
	return nil
}

func (s *SQLiteLedger) BindContentHash(id string, fp hash.Fingerprint) error {
	res, err := s.db.Exec(
		`UPDATE captures SET content_hash = ?, updated_at = ?
		 WHERE id = ? AND content_hash IS NULL`,
		fp.String(), s.clock.Now(), id,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("binding content hash for capture %s: %w", id, pipeline.ErrDuplicateContent)
		}
		return fmt.Errorf("binding content hash for capture %s: %w", id, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("binding content hash for capture %s: %w", id, err)
	}
	if affected == 0 {
		c, err := s.GetCapture(id)
		if err != nil {
			return err
		}
		if c.ContentHash != nil && *c.ContentHash == fp.String() {
			// Already bound to this content, e.g. by an export attempt
			// that crashed before the write.
			return nil
		}
		return fmt.Errorf("capture %s: %w", id, pipeline.ErrHashImmutable)
	}
	return nil
}

func (s *SQLiteLedger) MarkDuplicate(id string, text string, fp hash.Fingerprint, originalID string) error {
	// The duplicate keeps its transcript and records the hash in
	// meta_json; content_hash stays NULL so the unique index keeps a
	// single owner per hash.
	res, err := s.db.Exec(
		`UPDATE captures
		 SET raw_content = ?,
		     meta_json = json_set(meta_json, '$.duplicate_of', ?, '$.content_hash', ?),
		     status = 'exported_duplicate',
		     updated_at = ?
		 WHERE id = ? AND status = 'staged' AND content_hash IS NULL`,
		text, originalID, fp.String(), s.clock.Now(), id,
	)
	if err != nil {
		return fmt.Errorf("marking capture %s duplicate: %w", id, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("marking capture %s duplicate: %w", id, err)
	}
	if affected == 0 {
		return s.explainStaleCommit(id)
	}
	return nil
}

// explainStaleWrite turns a zero-row UPDATE into the precise contract error.
func (s *SQLiteLedger) explainStaleWrite(id, expectation string) error {
	if _, err := s.GetCapture(id); err != nil {
		return err
	}
	return fmt.Errorf("capture %s: %s: %w", id, expectation, pipeline.ErrInvalidTransition)
}

func (s *SQLiteLedger) explainStaleCommit(id string) error {
	c, err := s.GetCapture(id)
	if err != nil {
		return err
	}
	if c.ContentHash != nil {
		return fmt.Errorf("capture %s: %w", id, pipeline.ErrHashImmutable)
	}
	return fmt.Errorf("capture %s: status %s: %w", id, c.Status, pipeline.ErrInvalidTransition)
}

// Dedup

func (s *SQLiteLedger) CheckDuplicate(fp hash.Fingerprint) (*pipeline.DuplicateInfo, error) {
	row := s.db.QueryRow(
		`SELECT c.id, COALESCE(a.vault_path, '')
		 FROM captures c
		 LEFT JOIN export_audits a ON a.capture_id = c.id AND a.mode IN ('initial', 'placeholder')
		 WHERE c.content_hash = ? AND c.status = 'exported'`,
		fp.String(),
	)

	var info pipeline.DuplicateInfo
	if err := row.Scan(&info.CaptureID, &info.ExportPath); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("checking duplicate: %w", err)
	}
	if info.ExportPath == "" {
		info.ExportPath = pipeline.InboxPath(info.CaptureID)
	}
	return &info, nil
}

// Export audit operations

func (s *SQLiteLedger) RecordAudit(a *model.ExportAudit) error {
	res, err := s.db.Exec(
		`INSERT INTO export_audits (capture_id, vault_path, hash_at_export, mode, error_flag, exported_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		a.CaptureID, a.VaultPath, a.HashAtExport, string(a.Mode), a.ErrorFlag, a.ExportedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			// The exclusive index caught a second initial/placeholder
			// export; the exactly-once invariant held.
			return fmt.Errorf("recording %s audit for capture %s: %w: %v", a.Mode, a.CaptureID, pipeline.ErrIntegrity, err)
		}
		return fmt.Errorf("recording audit for capture %s: %w", a.CaptureID, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("recording audit for capture %s: %w", a.CaptureID, err)
	}
	a.ID = id
	return nil
}

const auditColumns = "id, capture_id, vault_path, hash_at_export, mode, error_flag, exported_at"

func scanAudit(row interface{ Scan(...any) error }) (*model.ExportAudit, error) {
	var a model.ExportAudit
	var mode string
	err := row.Scan(&a.ID, &a.CaptureID, &a.VaultPath, &a.HashAtExport, &mode, &a.ErrorFlag, &a.ExportedAt)
	if err != nil {
		return nil, err
	}
	a.Mode = model.AuditMode(mode)
	return &a, nil
}

func (s *SQLiteLedger) FindExclusiveAudit(captureID string) (*model.ExportAudit, error) {
	row := s.db.QueryRow(
		"SELECT "+auditColumns+" FROM export_audits WHERE capture_id = ? AND mode IN ('initial', 'placeholder')",
		captureID,
	)
	a, err := scanAudit(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("finding exclusive audit for capture %s: %w", captureID, err)
	}
	return a, nil
}

func (s *SQLiteLedger) ListAuditsSince(afterID int64) ([]*model.ExportAudit, error) {
	rows, err := s.db.Query(
		"SELECT "+auditColumns+" FROM export_audits WHERE id > ? ORDER BY id",
		afterID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing audits after %d: %w", afterID, err)
	}
	defer rows.Close()

	var audits []*model.ExportAudit
	for rows.Next() {
		a, err := scanAudit(rows)
		if err != nil {
			return nil, fmt.Errorf("listing audits after %d: %w", afterID, err)
		}
		audits = append(audits, a)
	}
	return audits, rows.Err()
}

// AuditsForCapture returns every audit row for a capture, oldest first.
func (s *SQLiteLedger) AuditsForCapture(captureID string) ([]*model.ExportAudit, error) {
	rows, err := s.db.Query(
		"SELECT "+auditColumns+" FROM export_audits WHERE capture_id = ? ORDER BY id",
		captureID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing audits for capture %s: %w", captureID, err)
	}
	defer rows.Close()

	var audits []*model.ExportAudit
	for rows.Next() {
		a, err := scanAudit(rows)
		if err != nil {
			return nil, fmt.Errorf("listing audits for capture %s: %w", captureID, err)
		}
		audits = append(audits, a)
	}
	return audits, rows.Err()
}

// Error log operations

func (s *SQLiteLedger) RecordError(e *model.ErrorLog) error {
	res, err := s.db.Exec(
		`INSERT INTO error_logs (capture_id, operation, error_type, message, stack, context_json, attempt_count, escalation_action, dlq, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.CaptureID, e.Operation, e.ErrorType, e.Message, e.Stack, e.ContextJSON,
		e.AttemptCount, e.EscalationAction, e.DLQ, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("recording error for capture %s: %w", e.CaptureID, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("recording error for capture %s: %w", e.CaptureID, err)
	}
	e.ID = id
	return nil
}

func (s *SQLiteLedger) ErrorsForCapture(captureID string) ([]*model.ErrorLog, error) {
	rows, err := s.db.Query(
		`SELECT id, capture_id, operation, error_type, message, stack, context_json, attempt_count, escalation_action, dlq, created_at
		 FROM error_logs WHERE capture_id = ? ORDER BY id`,
		captureID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing errors for capture %s: %w", captureID, err)
	}
	defer rows.Close()

	var logs []*model.ErrorLog
	for rows.Next() {
		var e model.ErrorLog
		err := rows.Scan(&e.ID, &e.CaptureID, &e.Operation, &e.ErrorType, &e.Message, &e.Stack,
			&e.ContextJSON, &e.AttemptCount, &e.EscalationAction, &e.DLQ, &e.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("listing errors for capture %s: %w", captureID, err)
		}
		logs = append(logs, &e)
	}
	return logs, rows.Err()
}

// Observability

func (s *SQLiteLedger) CountByStatus() (map[model.Status]int, error) {
	rows, err := s.db.Query("SELECT status, COUNT(*) FROM captures GROUP BY status")
	if err != nil {
		return nil, fmt.Errorf("counting captures: %w", err)
	}
	defer rows.Close()

	counts := make(map[model.Status]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("counting captures: %w", err)
		}
		counts[model.Status(status)] = n
	}
	return counts, rows.Err()
}

// Sync state (named cursor bookkeeping)

func (s *SQLiteLedger) GetSyncState(name string) (string, error) {
	var cursor string
	err := s.db.QueryRow("SELECT cursor FROM sync_state WHERE name = ?", name).Scan(&cursor)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("getting sync state %s: %w", name, err)
	}
	return cursor, nil
}

func (s *SQLiteLedger) SetSyncState(name string, cursor string) error {
	_, err := s.db.Exec(
		`INSERT INTO sync_state (name, cursor, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT (name) DO UPDATE SET cursor = excluded.cursor, updated_at = excluded.updated_at`,
		name, cursor, s.clock.Now(),
	)
	if err != nil {
		return fmt.Errorf("setting sync state %s: %w", name, err)
	}
	return nil
}

// Path returns the ledger file path (or ":memory:" for in-memory ledgers).
func (s *SQLiteLedger) Path() string {
	return s.path
}

// CheckMigrations verifies the ledger schema is up-to-date.
func (s *SQLiteLedger) CheckMigrations() error {
	return migrations.CheckDBMigrationStatus(s.db)
}

// BackupTo creates a complete copy of the ledger at destPath using VACUUM INTO.
func (s *SQLiteLedger) BackupTo(destPath string) error {
	_, err := s.db.Exec("VACUUM INTO ?", destPath)
	if err != nil {
		return fmt.Errorf("backing up ledger: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteLedger) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Compile-time check that SQLiteLedger implements pipeline.Ledger
var _ pipeline.Ledger = (*SQLiteLedger)(nil)
