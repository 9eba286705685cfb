package sqlite

// migrations run in order inside a single transaction per statement
// group. SQLite DDL is idempotent via IF NOT EXISTS.
var migrations = []string{
	`
CREATE TABLE IF NOT EXISTS lease_leases (
    id           TEXT PRIMARY KEY,
    tenant_id    TEXT NOT NULL DEFAULT '',
    name         TEXT NOT NULL DEFAULT '',
    cpu_cores    INTEGER NOT NULL DEFAULT 0,
    ram_mb       INTEGER NOT NULL DEFAULT 0,
    storage_gb   INTEGER NOT NULL DEFAULT 0,
    bandwidth_gb INTEGER NOT NULL DEFAULT 0,
    status       TEXT NOT NULL DEFAULT 'stopped',
    rate_amount  INTEGER NOT NULL DEFAULT 0,
    rate_currency TEXT NOT NULL DEFAULT '',
    container_id TEXT NOT NULL DEFAULT '',
    ip_address   TEXT NOT NULL DEFAULT '',
    started_at   TEXT,
    stopped_at   TEXT,
    last_error   TEXT NOT NULL DEFAULT '',
    metadata     TEXT NOT NULL DEFAULT '{}',
    created_at   TEXT NOT NULL DEFAULT (datetime('now')),
    updated_at   TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_lease_leases_tenant ON lease_leases (tenant_id);
CREATE INDEX IF NOT EXISTS idx_lease_leases_status ON lease_leases (status);
`,
	`
CREATE TABLE IF NOT EXISTS lease_usage_records (
    id                TEXT PRIMARY KEY,
    lease_id          TEXT NOT NULL,
    tenant_id         TEXT NOT NULL DEFAULT '',
    cpu_percent       REAL NOT NULL DEFAULT 0,
    ram_used_mb       REAL NOT NULL DEFAULT 0,
    storage_used_gb   REAL NOT NULL DEFAULT 0,
    bandwidth_used_mb REAL NOT NULL DEFAULT 0,
    duration_minutes  INTEGER NOT NULL DEFAULT 0,
    cost_amount       INTEGER NOT NULL DEFAULT 0,
    cost_currency     TEXT NOT NULL DEFAULT '',
    timestamp         TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_lease_usage_lease_ts ON lease_usage_records (lease_id, timestamp);
CREATE INDEX IF NOT EXISTS idx_lease_usage_tenant ON lease_usage_records (tenant_id);
`,
}
