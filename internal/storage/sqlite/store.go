// Package sqlite implements the storage contracts on a single SQLite file.
// It is the default backend: zero external services, WAL mode for read
// concurrency, and in-Go cosine ranking for vector search.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/scrypster/mnemo/internal/storage"
	"github.com/scrypster/mnemo/pkg/types"
)

// Store implements storage.Store using SQLite.
type Store struct {
	db *sql.DB
}

var _ storage.Store = (*Store)(nil)

// New opens a SQLite database, configures WAL mode, and creates the schema.
func New(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to open database: %w", err)
	}

	// SQLite only supports one concurrent writer. A single open connection
	// serialises writes and avoids SQLITE_BUSY errors under concurrent load.
	// WAL mode allows readers to proceed without blocking the writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: failed to enable WAL mode: %w", err)
	}

	// Wait instead of getting an immediate SQLITE_BUSY when the connection
	// is held by another goroutine.
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: failed to set busy timeout: %w", err)
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: failed to create schema: %w", err)
	}

	return &Store{db: db}, nil
}

const unitColumns = `
	id, owner_id, content, role,
	embedding, dimension, embedding_valid,
	category, importance, topics,
	confidence, access_count,
	created_at, last_accessed_at,
	rt_score, ht_score, final_score,
	evaluated_at, feedback_at, finalized_at
`

// Store persists a new memory unit.
func (s *Store) Store(ctx context.Context, unit *types.MemoryUnit) error {
	if unit == nil {
		return storage.ErrInvalidInput
	}
	if unit.ID == "" {
		return fmt.Errorf("%w: unit ID is required", storage.ErrInvalidInput)
	}
	if unit.OwnerID == "" {
		return fmt.Errorf("%w: owner ID is required", storage.ErrInvalidInput)
	}
	if unit.Content == "" {
		return fmt.Errorf("%w: unit content is required", storage.ErrInvalidInput)
	}

	embeddingBytes := serializeEmbedding(unit.Embedding)
	valid := 0
	if !isZeroVector(unit.Embedding) {
		valid = 1
	}

	var topicsJSON []byte
	if len(unit.Topics) > 0 {
		var err error
		topicsJSON, err = json.Marshal(unit.Topics)
		if err != nil {
			return fmt.Errorf("sqlite: failed to marshal topics: %w", err)
		}
	}

	if unit.CreatedAt.IsZero() {
		unit.CreatedAt = time.Now().UTC()
	}
	if unit.Category == "" {
		unit.Category = types.CategoryGeneral
	}
	if unit.Importance == "" {
		unit.Importance = types.ImportanceNormal
	}

	query := `
		INSERT INTO memory_units (
			id, owner_id, content, role,
			embedding, dimension, embedding_valid,
			category, importance, topics,
			confidence, access_count,
			created_at, last_accessed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		unit.ID,
		unit.OwnerID,
		unit.Content,
		string(unit.Role),
		nullableBytes(embeddingBytes),
		len(unit.Embedding),
		valid,
		string(unit.Category),
		string(unit.Importance),
		nullableBytes(topicsJSON),
		unit.Confidence,
		unit.AccessCount,
		unit.CreatedAt,
		nullableTime(unit.LastAccessedAt),
	)
	if err != nil {
		return fmt.Errorf("sqlite: failed to store unit: %w", err)
	}

	return nil
}

// Get retrieves a unit by ID within the owner's scope.
func (s *Store) Get(ctx context.Context, ownerID, id string) (*types.MemoryUnit, error) {
	if ownerID == "" || id == "" {
		return nil, fmt.Errorf("%w: owner ID and unit ID are required", storage.ErrInvalidInput)
	}

	query := "SELECT " + unitColumns + " FROM memory_units WHERE id = ? AND owner_id = ?"

	unit, err := scanUnit(s.db.QueryRowContext(ctx, query, id, ownerID))
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to get unit: %w", err)
	}

	return unit, nil
}

// ListByOwner returns all units for an owner, newest first.
func (s *Store) ListByOwner(ctx context.Context, ownerID string) ([]*types.MemoryUnit, error) {
	if ownerID == "" {
		return nil, fmt.Errorf("%w: owner ID is required", storage.ErrInvalidInput)
	}

	query := "SELECT " + unitColumns + " FROM memory_units WHERE owner_id = ? ORDER BY created_at DESC, id"

	return s.queryUnits(ctx, query, ownerID)
}

// ListOwners returns every owner ID with at least one stored unit.
func (s *Store) ListOwners(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT DISTINCT owner_id FROM memory_units ORDER BY owner_id")
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to list owners: %w", err)
	}
	defer rows.Close()

	var owners []string
	for rows.Next() {
		var owner string
		if err := rows.Scan(&owner); err != nil {
			return nil, fmt.Errorf("sqlite: failed to scan owner: %w", err)
		}
		owners = append(owners, owner)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: error iterating owners: %w", err)
	}

	return owners, nil
}

// IncrementAccess bumps the access counter and last-accessed timestamp.
func (s *Store) IncrementAccess(ctx context.Context, ownerID, id string, now time.Time) error {
	if ownerID == "" || id == "" {
		return fmt.Errorf("%w: owner ID and unit ID are required", storage.ErrInvalidInput)
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE memory_units
		SET access_count = access_count + 1, last_accessed_at = ?
		WHERE id = ? AND owner_id = ?
	`, now.UTC(), id, ownerID)
	if err != nil {
		return fmt.Errorf("sqlite: failed to increment access count: %w", err)
	}

	return checkAffected(result)
}

// UpdateConfidence sets a unit's confidence score.
func (s *Store) UpdateConfidence(ctx context.Context, ownerID, id string, confidence float64) error {
	if confidence < 0 || confidence > 1 {
		return fmt.Errorf("%w: confidence must be in [0,1], got %v", storage.ErrInvalidInput, confidence)
	}

	result, err := s.db.ExecContext(ctx,
		"UPDATE memory_units SET confidence = ? WHERE id = ? AND owner_id = ?",
		confidence, id, ownerID)
	if err != nil {
		return fmt.Errorf("sqlite: failed to update confidence: %w", err)
	}

	return checkAffected(result)
}

// UpdateImportance sets a unit's importance tag.
func (s *Store) UpdateImportance(ctx context.Context, ownerID, id string, importance types.Importance) error {
	result, err := s.db.ExecContext(ctx,
		"UPDATE memory_units SET importance = ? WHERE id = ? AND owner_id = ?",
		string(importance), id, ownerID)
	if err != nil {
		return fmt.Errorf("sqlite: failed to update importance: %w", err)
	}

	return checkAffected(result)
}

// ListAccessedSince returns units last accessed at or after the given
// instant, ordered by last access time ascending.
func (s *Store) ListAccessedSince(ctx context.Context, ownerID string, since time.Time) ([]*types.MemoryUnit, error) {
	query := "SELECT " + unitColumns + `
		FROM memory_units
		WHERE owner_id = ? AND last_accessed_at IS NOT NULL AND last_accessed_at >= ?
		ORDER BY last_accessed_at ASC`

	return s.queryUnits(ctx, query, ownerID, since.UTC())
}

// Prune deletes units matching all criteria, never touching high-importance
// units, and returns the deleted IDs.
func (s *Store) Prune(ctx context.Context, ownerID string, criteria storage.PruneCriteria) ([]string, error) {
	if ownerID == "" {
		return nil, fmt.Errorf("%w: owner ID is required", storage.ErrInvalidInput)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id FROM memory_units
		WHERE owner_id = ?
		  AND COALESCE(last_accessed_at, created_at) < ?
		  AND access_count < ?
		  AND confidence < ?
		  AND importance != ?
	`, ownerID, criteria.NotAccessedSince.UTC(), criteria.MaxAccessCount, criteria.MaxConfidence, string(types.ImportanceHigh))
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to select prunable units: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("sqlite: failed to scan prunable unit: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: error iterating prunable units: %w", err)
	}

	for _, id := range ids {
		if _, err := s.db.ExecContext(ctx,
			"DELETE FROM memory_units WHERE id = ? AND owner_id = ?", id, ownerID); err != nil {
			return nil, fmt.Errorf("sqlite: failed to prune unit %s: %w", id, err)
		}
	}

	return ids, nil
}

// PurgeInvalidEmbeddings deletes units carrying the zero-vector sentinel.
func (s *Store) PurgeInvalidEmbeddings(ctx context.Context, ownerID string) (int, error) {
	result, err := s.db.ExecContext(ctx,
		"DELETE FROM memory_units WHERE owner_id = ? AND embedding_valid = 0", ownerID)
	if err != nil {
		return 0, fmt.Errorf("sqlite: failed to purge invalid embeddings: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sqlite: failed to check rows affected: %w", err)
	}

	return int(n), nil
}

// ListUnscoredResponses returns assistant units with no automated quality
// score yet, oldest first.
func (s *Store) ListUnscoredResponses(ctx context.Context, ownerID string, limit int) ([]*types.MemoryUnit, error) {
	if limit <= 0 {
		return nil, nil
	}

	query := "SELECT " + unitColumns + `
		FROM memory_units
		WHERE owner_id = ? AND role = ? AND rt_score IS NULL
		ORDER BY created_at ASC
		LIMIT ?`

	return s.queryUnits(ctx, query, ownerID, string(types.RoleAssistant), limit)
}

// Delete removes a unit.
func (s *Store) Delete(ctx context.Context, ownerID, id string) error {
	if ownerID == "" || id == "" {
		return fmt.Errorf("%w: owner ID and unit ID are required", storage.ErrInvalidInput)
	}

	result, err := s.db.ExecContext(ctx,
		"DELETE FROM memory_units WHERE id = ? AND owner_id = ?", id, ownerID)
	if err != nil {
		return fmt.Errorf("sqlite: failed to delete unit: %w", err)
	}

	return checkAffected(result)
}

// OwnerStats computes the per-owner aggregate counters in a single scan.
func (s *Store) OwnerStats(ctx context.Context, ownerID string) (*types.OwnerStats, error) {
	stats := &types.OwnerStats{UpdatedAt: time.Now().UTC()}

	err := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN importance = ? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN access_count > 5 THEN 1 ELSE 0 END), 0),
			COALESCE(AVG(confidence), 0),
			COALESCE(AVG(access_count), 0),
			COALESCE(SUM(access_count), 0)
		FROM memory_units WHERE owner_id = ?
	`, string(types.ImportanceHigh), ownerID).Scan(
		&stats.TotalUnits,
		&stats.HighImportanceUnits,
		&stats.FrequentlyAccessed,
		&stats.AvgConfidence,
		&stats.AvgAccessCount,
		&stats.TotalAccesses,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to compute owner stats: %w", err)
	}

	err = s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(CASE WHEN strength > 0.7 THEN 1 ELSE 0 END), 0)
		FROM association_edges WHERE owner_id = ?
	`, ownerID).Scan(&stats.TotalEdges, &stats.StrongEdges)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to compute edge stats: %w", err)
	}

	return stats, nil
}

// Close flushes the WAL into the main database file and releases resources.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}

	if _, err := s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		log.Printf("sqlite: WAL checkpoint on close failed (non-fatal): %v", err)
	}

	return s.db.Close()
}

// queryUnits runs a SELECT using unitColumns and scans the result set.
func (s *Store) queryUnits(ctx context.Context, query string, args ...interface{}) ([]*types.MemoryUnit, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to query units: %w", err)
	}
	defer rows.Close()

	var units []*types.MemoryUnit
	for rows.Next() {
		unit, err := scanUnit(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: failed to scan unit: %w", err)
		}
		units = append(units, unit)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: error iterating units: %w", err)
	}

	return units, nil
}

// rowScanner abstracts *sql.Row and *sql.Rows for scanUnit.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanUnit(row rowScanner) (*types.MemoryUnit, error) {
	var (
		unit           types.MemoryUnit
		role, category string
		importance     string
		embedding      []byte
		dimension      int
		embeddingValid int
		topicsJSON     sql.NullString
		lastAccessedAt sql.NullTime
		rtScore        sql.NullFloat64
		htScore        sql.NullFloat64
		finalScore     sql.NullFloat64
		evaluatedAt    sql.NullTime
		feedbackAt     sql.NullTime
		finalizedAt    sql.NullTime
	)

	err := row.Scan(
		&unit.ID, &unit.OwnerID, &unit.Content, &role,
		&embedding, &dimension, &embeddingValid,
		&category, &importance, &topicsJSON,
		&unit.Confidence, &unit.AccessCount,
		&unit.CreatedAt, &lastAccessedAt,
		&rtScore, &htScore, &finalScore,
		&evaluatedAt, &feedbackAt, &finalizedAt,
	)
	if err != nil {
		return nil, err
	}

	unit.Role = types.Role(role)
	unit.Category = types.Category(category)
	unit.Importance = types.Importance(importance)
	unit.Embedding = deserializeEmbedding(embedding, dimension)

	if topicsJSON.Valid && topicsJSON.String != "" {
		if err := json.Unmarshal([]byte(topicsJSON.String), &unit.Topics); err != nil {
			return nil, fmt.Errorf("failed to unmarshal topics: %w", err)
		}
	}
	if lastAccessedAt.Valid {
		t := lastAccessedAt.Time
		unit.LastAccessedAt = &t
	}

	if rtScore.Valid || htScore.Valid || finalScore.Valid {
		q := &types.QualityScore{}
		if rtScore.Valid {
			v := rtScore.Float64
			q.RTScore = &v
		}
		if htScore.Valid {
			v := htScore.Float64
			q.HTScore = &v
		}
		if finalScore.Valid {
			v := finalScore.Float64
			q.FinalScore = &v
		}
		if evaluatedAt.Valid {
			t := evaluatedAt.Time
			q.EvaluatedAt = &t
		}
		if feedbackAt.Valid {
			t := feedbackAt.Time
			q.FeedbackAt = &t
		}
		if finalizedAt.Valid {
			t := finalizedAt.Time
			q.FinalizedAt = &t
		}
		unit.Quality = q
	}

	return &unit, nil
}

// checkAffected translates a zero-row UPDATE/DELETE into ErrNotFound.
func checkAffected(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: failed to check rows affected: %w", err)
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// nullableTime converts a time pointer to sql.NullTime.
func nullableTime(t *time.Time) sql.NullTime {
	if t == nil || t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

// nullableBytes converts a byte slice to sql.NullString.
func nullableBytes(b []byte) sql.NullString {
	if len(b) == 0 {
		return sql.NullString{}
	}
	return sql.NullString{String: string(b), Valid: true}
}
