package sqlite

// Schema defines the SQLite database schema for the memory layer.
// Embeddings live inline on the unit row as little-endian float64 BLOBs;
// similarity ranking happens in Go after loading candidates.
const Schema = `
CREATE TABLE IF NOT EXISTS memory_units (
    id TEXT PRIMARY KEY,
    owner_id TEXT NOT NULL,
    content TEXT NOT NULL,
    role TEXT NOT NULL,
    embedding BLOB,
    dimension INTEGER NOT NULL DEFAULT 0,
    embedding_valid INTEGER NOT NULL DEFAULT 1,
    category TEXT NOT NULL DEFAULT 'general',
    importance TEXT NOT NULL DEFAULT 'normal',
    topics TEXT,
    confidence REAL NOT NULL DEFAULT 0.5,
    access_count INTEGER NOT NULL DEFAULT 0,
    created_at TIMESTAMP NOT NULL,
    last_accessed_at TIMESTAMP,
    rt_score REAL,
    ht_score REAL,
    final_score REAL,
    evaluated_at TIMESTAMP,
    feedback_at TIMESTAMP,
    finalized_at TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_units_owner_created
    ON memory_units(owner_id, created_at DESC);

CREATE INDEX IF NOT EXISTS idx_units_owner_accessed
    ON memory_units(owner_id, last_accessed_at);

CREATE INDEX IF NOT EXISTS idx_units_owner_role
    ON memory_units(owner_id, role);

-- Undirected edges stored in canonical order (unit_a < unit_b) so each
-- pair has exactly one row.
CREATE TABLE IF NOT EXISTS association_edges (
    owner_id TEXT NOT NULL,
    unit_a TEXT NOT NULL,
    unit_b TEXT NOT NULL,
    strength REAL NOT NULL,
    type TEXT NOT NULL,
    shared_topics INTEGER NOT NULL DEFAULT 0,
    created_at TIMESTAMP NOT NULL,
    last_strengthened_at TIMESTAMP,
    PRIMARY KEY (owner_id, unit_a, unit_b)
);

CREATE INDEX IF NOT EXISTS idx_edges_owner_b
    ON association_edges(owner_id, unit_b);

-- Evaluator results keyed by content hash so identical response text is
-- scored at most once, across restarts.
CREATE TABLE IF NOT EXISTS response_score_cache (
    content_hash TEXT PRIMARY KEY,
    score REAL NOT NULL,
    created_at TIMESTAMP NOT NULL
);
`
