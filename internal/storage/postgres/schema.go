// Package postgres provides PostgreSQL implementations of the storage
// interfaces, with optional pgvector acceleration for similarity search.
package postgres

// Schema contains the SQL statements to create the database schema.
// All statements are idempotent (IF NOT EXISTS) so the schema can be applied
// on every startup.
const Schema = `
CREATE TABLE IF NOT EXISTS memory_units (
    id TEXT PRIMARY KEY,
    owner_id TEXT NOT NULL,
    content TEXT NOT NULL,
    role TEXT NOT NULL,

    -- Embedding stored as little-endian float64 BYTEA. When pgvector is
    -- available a parallel embedding_vec column is added by the migration
    -- below and used for accelerated search.
    embedding BYTEA,
    dimension INTEGER NOT NULL DEFAULT 0,
    embedding_valid BOOLEAN NOT NULL DEFAULT TRUE,

    category TEXT NOT NULL DEFAULT 'general',
    importance TEXT NOT NULL DEFAULT 'normal',
    topics JSONB,

    confidence REAL NOT NULL DEFAULT 0.5,
    access_count INTEGER NOT NULL DEFAULT 0,

    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    last_accessed_at TIMESTAMP,

    -- Quality refinement scores (assistant units only)
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

-- Undirected association graph. Edges are stored in canonical order
-- (unit_a < unit_b) so each pair has exactly one row.
CREATE TABLE IF NOT EXISTS association_edges (
    owner_id TEXT NOT NULL,
    unit_a TEXT NOT NULL,
    unit_b TEXT NOT NULL,
    strength REAL NOT NULL,
    type TEXT NOT NULL,
    shared_topics INTEGER NOT NULL DEFAULT 0,
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    last_strengthened_at TIMESTAMP,
    PRIMARY KEY (owner_id, unit_a, unit_b)
);

CREATE INDEX IF NOT EXISTS idx_edges_owner_b
    ON association_edges(owner_id, unit_b);

-- Evaluator result cache keyed by content hash.
CREATE TABLE IF NOT EXISTS response_score_cache (
    content_hash TEXT PRIMARY KEY,
    score REAL NOT NULL,
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

// MigrationPgvector adds the pgvector column and index to memory_units.
// Applied only when the vector extension is available.
const MigrationPgvector = `
DO $$
BEGIN
    IF NOT EXISTS (
        SELECT 1 FROM information_schema.columns
        WHERE table_name = 'memory_units' AND column_name = 'embedding_vec'
    ) THEN
        ALTER TABLE memory_units ADD COLUMN embedding_vec vector;
    END IF;
END $$;

-- ivfflat requires at least one row to exist, so guard with a DO block.
DO $$
BEGIN
    IF (SELECT COUNT(*) FROM memory_units) > 0
       AND NOT EXISTS (SELECT 1 FROM pg_indexes WHERE indexname = 'idx_units_vec_cosine')
    THEN
        EXECUTE 'CREATE INDEX idx_units_vec_cosine ON memory_units USING ivfflat (embedding_vec vector_cosine_ops) WITH (lists = 100)';
    END IF;
END $$;
`
