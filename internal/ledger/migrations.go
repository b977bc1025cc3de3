package ledger

const schema = `
CREATE TABLE IF NOT EXISTS decisions (
    id TEXT PRIMARY KEY,
    timestamp TEXT NOT NULL,
    source TEXT NOT NULL,
    plan TEXT NOT NULL,
    trust_score REAL NOT NULL,
    cohesion_score REAL NOT NULL,
    cost_efficiency REAL NOT NULL,
    status TEXT NOT NULL,
    reason TEXT,
    build_id TEXT,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_decisions_source ON decisions(source);
CREATE INDEX IF NOT EXISTS idx_decisions_status ON decisions(status);
CREATE INDEX IF NOT EXISTS idx_decisions_timestamp ON decisions(timestamp);

CREATE TABLE IF NOT EXISTS ai_weights (
    agent_id TEXT PRIMARY KEY,
    weight REAL NOT NULL,
    updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS ai_weights_history (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    timestamp TEXT NOT NULL,
    agent_id TEXT NOT NULL,
    old_weight REAL,
    new_weight REAL,
    reason TEXT
);

CREATE INDEX IF NOT EXISTS idx_weights_history_agent ON ai_weights_history(agent_id);

CREATE TABLE IF NOT EXISTS telemetry (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    timestamp TEXT NOT NULL,
    decision_id TEXT,
    build_status TEXT NOT NULL,
    latency_ms REAL DEFAULT 0,
    token_usage INTEGER DEFAULT 0,
    cost_usd REAL DEFAULT 0,
    error_count INTEGER DEFAULT 0,
    metadata TEXT,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    FOREIGN KEY (decision_id) REFERENCES decisions(id)
);

CREATE INDEX IF NOT EXISTS idx_telemetry_timestamp ON telemetry(timestamp);
CREATE INDEX IF NOT EXISTS idx_telemetry_decision ON telemetry(decision_id);
CREATE INDEX IF NOT EXISTS idx_telemetry_status ON telemetry(build_status);

CREATE TABLE IF NOT EXISTS daily_metrics (
    date TEXT PRIMARY KEY,
    total_builds INTEGER DEFAULT 0,
    successful_builds INTEGER DEFAULT 0,
    failed_builds INTEGER DEFAULT 0,
    avg_latency_ms REAL DEFAULT 0,
    total_cost_usd REAL DEFAULT 0,
    total_errors INTEGER DEFAULT 0
);

CREATE TABLE IF NOT EXISTS production_cycles (
    id TEXT PRIMARY KEY,
    started_at TEXT NOT NULL,
    ended_at TEXT,
    state TEXT NOT NULL,
    build_count INTEGER DEFAULT 0,
    success_count INTEGER DEFAULT 0,
    failure_count INTEGER DEFAULT 0,
    last_error TEXT
);

CREATE INDEX IF NOT EXISTS idx_cycles_started ON production_cycles(started_at);
`
