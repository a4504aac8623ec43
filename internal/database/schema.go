package database

// Schema is the full ledger DDL at the latest migration version. It
// must stay in sync with internal/database/migrations/files; tests
// apply it directly to in-memory databases instead of running the
// migration machinery.
const Schema = `
CREATE TABLE captures (
    id TEXT PRIMARY KEY,
    source TEXT NOT NULL CHECK (source IN ('voice', 'email')),
    channel_native_id TEXT NOT NULL,
    raw_content TEXT,
    content_hash TEXT,
    status TEXT NOT NULL CHECK (status IN (
        'discovered', 'staged', 'transcribed', 'failed_transcription',
        'exported', 'exported_duplicate', 'exported_placeholder'
    )),
    meta_json TEXT NOT NULL DEFAULT '{}',
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    UNIQUE (source, channel_native_id)
);

CREATE UNIQUE INDEX idx_captures_content_hash
    ON captures (content_hash) WHERE content_hash IS NOT NULL;

CREATE INDEX idx_captures_status ON captures (status);

CREATE TABLE export_audits (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    capture_id TEXT NOT NULL REFERENCES captures (id),
    vault_path TEXT NOT NULL,
    hash_at_export TEXT,
    mode TEXT NOT NULL CHECK (mode IN ('initial', 'duplicate_skip', 'placeholder')),
    error_flag INTEGER NOT NULL DEFAULT 0,
    exported_at TIMESTAMP NOT NULL
);

CREATE UNIQUE INDEX idx_export_audits_exclusive
    ON export_audits (capture_id) WHERE mode IN ('initial', 'placeholder');

CREATE TABLE error_logs (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    capture_id TEXT NOT NULL REFERENCES captures (id),
    operation TEXT NOT NULL,
    error_type TEXT NOT NULL,
    message TEXT NOT NULL,
    stack TEXT NOT NULL DEFAULT '',
    context_json TEXT NOT NULL DEFAULT '{}',
    attempt_count INTEGER NOT NULL DEFAULT 0,
    escalation_action TEXT,
    dlq INTEGER NOT NULL DEFAULT 0,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX idx_error_logs_capture ON error_logs (capture_id);

CREATE TABLE sync_state (
    name TEXT PRIMARY KEY,
    cursor TEXT NOT NULL,
    updated_at TIMESTAMP NOT NULL
);
`
