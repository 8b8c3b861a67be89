package sqlite

const schema = `
-- Workflow runs table
CREATE TABLE IF NOT EXISTS workflow_runs (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    content_hash TEXT NOT NULL,
    state TEXT NOT NULL,
    stage_attempts TEXT NOT NULL DEFAULT '{}',
    started_at DATETIME NOT NULL,
    completed_at DATETIME,
    result TEXT,
    error TEXT
);

CREATE INDEX IF NOT EXISTS idx_runs_tenant ON workflow_runs(tenant_id);
CREATE INDEX IF NOT EXISTS idx_runs_state ON workflow_runs(state);
CREATE INDEX IF NOT EXISTS idx_runs_fingerprint ON workflow_runs(tenant_id, content_hash);
CREATE INDEX IF NOT EXISTS idx_runs_started_at ON workflow_runs(started_at);

-- Analysis results table (one row per completed run; the dedup cache
-- queries by (tenant_id, content_hash))
CREATE TABLE IF NOT EXISTS analysis_results (
    run_id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    content_hash TEXT NOT NULL,
    summary TEXT NOT NULL DEFAULT '',
    findings TEXT NOT NULL DEFAULT '[]',
    provider_id TEXT NOT NULL,
    cost_units REAL NOT NULL DEFAULT 0,
    completed_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_results_fingerprint ON analysis_results(tenant_id, content_hash);

-- Provider call records (append-only audit trail)
CREATE TABLE IF NOT EXISTS provider_call_records (
    id TEXT PRIMARY KEY,
    run_id TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    provider_id TEXT NOT NULL,
    request_digest TEXT NOT NULL DEFAULT '',
    outcome TEXT NOT NULL,
    latency_ns INTEGER NOT NULL DEFAULT 0,
    cost_units REAL NOT NULL DEFAULT 0,
    created_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_call_records_run ON provider_call_records(run_id);
CREATE INDEX IF NOT EXISTS idx_call_records_tenant_time ON provider_call_records(tenant_id, created_at);

-- Workflow events (durable observability stream)
CREATE TABLE IF NOT EXISTS workflow_events (
    id TEXT PRIMARY KEY,
    type TEXT NOT NULL,
    timestamp DATETIME NOT NULL,
    run_id TEXT,
    tenant_id TEXT,
    component TEXT NOT NULL DEFAULT '',
    severity TEXT NOT NULL DEFAULT 'info',
    message TEXT NOT NULL DEFAULT '',
    data TEXT NOT NULL DEFAULT '{}'
);

CREATE INDEX IF NOT EXISTS idx_events_run ON workflow_events(run_id);
CREATE INDEX IF NOT EXISTS idx_events_timestamp ON workflow_events(timestamp);
CREATE INDEX IF NOT EXISTS idx_events_severity ON workflow_events(severity);
CREATE INDEX IF NOT EXISTS idx_events_type ON workflow_events(type);
`
