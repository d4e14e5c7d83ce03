package observability

import "database/sql"

// Schema is the DDL for the invocation log. Apply with Init(db) or embed it
// in your own schema management.
const Schema = `
CREATE TABLE IF NOT EXISTS tool_invocations (
    invocation_id TEXT PRIMARY KEY,
    timestamp INTEGER NOT NULL,
    tool_name TEXT NOT NULL,
    profile TEXT,
    transport TEXT,
    parameters TEXT NOT NULL DEFAULT '{}',
    status TEXT NOT NULL,
    error_message TEXT,
    duration_ms INTEGER,
    created_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
);
CREATE INDEX IF NOT EXISTS idx_invocations_time
    ON tool_invocations(timestamp DESC);
CREATE INDEX IF NOT EXISTS idx_invocations_tool
    ON tool_invocations(tool_name, timestamp DESC);
CREATE INDEX IF NOT EXISTS idx_invocations_status
    ON tool_invocations(status);
`

// Init applies the schema.
func Init(db *sql.DB) error {
	_, err := db.Exec(Schema)
	return err
}
