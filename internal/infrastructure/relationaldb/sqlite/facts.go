package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/ersonp/lore-memory/internal/domain/entities"
)

const factColumns = `id, type, predicate, subject_ids, object_ids, canonical_fact, raw_content,
	confidence, valid_from, valid_to, embedding, status, supersedes_id, created_at, updated_at`

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// InsertFact persists a new fact.
func (r *Repository) InsertFact(ctx context.Context, fact *entities.Fact) error {
	return insertFact(ctx, r.db, fact)
}

// SupersedeFact closes the old fact at validTo and inserts its replacement
// in a single transaction.
func (r *Repository) SupersedeFact(ctx context.Context, oldID string, validTo int, newFact *entities.Fact) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	res, err := tx.ExecContext(ctx,
		`UPDATE facts SET valid_to = ?, status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		validTo, string(entities.StatusSuperseded), newFact.CreatedAt, oldID, string(entities.StatusActive))
	if err != nil {
		return fmt.Errorf("closing superseded fact: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("closing superseded fact: %w", err)
	}
	if n == 0 {
		var status string
		err := tx.QueryRowContext(ctx, `SELECT status FROM facts WHERE id = ?`, oldID).Scan(&status)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("fact not found: %s", oldID)
		}
		if err != nil {
			return fmt.Errorf("checking superseded fact: %w", err)
		}
		return fmt.Errorf("fact %s is %s: %w", oldID, status, entities.ErrFactConflict)
	}

	if err := insertFact(ctx, tx, newFact); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing supersession: %w", err)
	}
	return nil
}

func insertFact(ctx context.Context, db execer, fact *entities.Fact) error {
	subjects, err := marshalStrings(fact.SubjectIDs)
	if err != nil {
		return err
	}
	var objects sql.NullString
	if len(fact.ObjectIDs) > 0 {
		s, err := marshalStrings(fact.ObjectIDs)
		if err != nil {
			return err
		}
		objects = sql.NullString{String: s, Valid: true}
	}
	embedding, err := marshalEmbedding(fact.Embedding)
	if err != nil {
		return err
	}

	var validTo sql.NullInt64
	if fact.ValidTo != nil {
		validTo = sql.NullInt64{Int64: int64(*fact.ValidTo), Valid: true}
	}
	var supersedes sql.NullString
	if fact.SupersedesID != nil {
		supersedes = sql.NullString{String: *fact.SupersedesID, Valid: true}
	}

	query := `INSERT INTO facts (` + factColumns + `, conflict_key)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = db.ExecContext(ctx, query,
		fact.ID,
		string(fact.Type),
		fact.Predicate,
		subjects,
		objects,
		fact.CanonicalFact,
		fact.RawContent,
		fact.Confidence,
		fact.ValidFrom,
		validTo,
		embedding,
		string(fact.Status),
		supersedes,
		fact.CreatedAt,
		fact.UpdatedAt,
		fact.ConflictKey().String(),
	)
	if err != nil {
		if isActiveKeyViolation(err) {
			return fmt.Errorf("inserting fact: %w", entities.ErrFactConflict)
		}
		return fmt.Errorf("inserting fact: %w", err)
	}
	return nil
}

// isActiveKeyViolation reports whether err comes from the index allowing one
// active fact per conflict key.
func isActiveKeyViolation(err error) bool {
	return isUniqueViolation(err) && strings.Contains(err.Error(), "facts.conflict_key")
}

// FindFactByID finds a fact by its ID.
func (r *Repository) FindFactByID(ctx context.Context, factID string) (*entities.Fact, error) {
	query := `SELECT ` + factColumns + ` FROM facts WHERE id = ?`
	fact, err := scanFact(r.db.QueryRowContext(ctx, query, factID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("finding fact: %w", err)
	}
	return fact, nil
}

// FindActiveByConflictKey returns the active versions of a claim, newest first.
func (r *Repository) FindActiveByConflictKey(ctx context.Context, key entities.ConflictKey) ([]entities.Fact, error) {
	query := `SELECT ` + factColumns + ` FROM facts
		WHERE conflict_key = ? AND status = ?
		ORDER BY created_at DESC, seq DESC`
	return r.queryFacts(ctx, query, key.String(), string(entities.StatusActive))
}

// FindSuccessors returns facts that directly supersede factID.
func (r *Repository) FindSuccessors(ctx context.Context, factID string) ([]entities.Fact, error) {
	query := `SELECT ` + factColumns + ` FROM facts
		WHERE supersedes_id = ?
		ORDER BY created_at, seq`
	return r.queryFacts(ctx, query, factID)
}

// QueryFacts returns facts matching the filter.
func (r *Repository) QueryFacts(ctx context.Context, filter entities.FactFilter) ([]entities.Fact, error) {
	where, args := factConditions(filter)

	var sb strings.Builder
	sb.WriteString(`SELECT ` + factColumns + ` FROM facts`)
	if len(where) > 0 {
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(where, " AND "))
	}
	sb.WriteString(" ORDER BY valid_from DESC, confidence DESC, seq DESC")

	if filter.Limit > 0 || filter.Offset > 0 {
		limit := filter.Limit
		if limit <= 0 {
			limit = -1
		}
		sb.WriteString(" LIMIT ? OFFSET ?")
		args = append(args, limit, filter.Offset)
	}

	facts, err := r.queryFacts(ctx, sb.String(), args...)
	if err != nil {
		return nil, err
	}
	if facts == nil {
		facts = []entities.Fact{}
	}
	return facts, nil
}

// factConditions translates a filter into WHERE clauses. Chapter wins over
// Range, which wins over ValidAt.
func factConditions(filter entities.FactFilter) ([]string, []any) {
	var where []string
	var args []any

	if st := filter.EffectiveStatus(); st != entities.StatusAny {
		where = append(where, "status = ?")
		args = append(args, string(st))
	}
	if len(filter.Types) > 0 {
		placeholders, typeArgs := inClause(filter.Types)
		for i, t := range filter.Types {
			typeArgs[i] = string(t)
		}
		where = append(where, "type IN ("+placeholders+")")
		args = append(args, typeArgs...)
	}
	if len(filter.Predicates) > 0 {
		placeholders, predArgs := inClause(filter.Predicates)
		where = append(where, "predicate IN ("+placeholders+")")
		args = append(args, predArgs...)
	}
	if filter.EntityID != "" {
		where = append(where, `(EXISTS (SELECT 1 FROM json_each(facts.subject_ids) WHERE value = ?)
			OR EXISTS (SELECT 1 FROM json_each(facts.object_ids) WHERE value = ?))`)
		args = append(args, filter.EntityID, filter.EntityID)
	}
	if filter.ConflictKey != "" {
		where = append(where, "conflict_key = ?")
		args = append(args, filter.ConflictKey)
	}

	switch {
	case filter.Chapter != nil:
		where = append(where, "valid_from <= ? AND (valid_to IS NULL OR valid_to >= ?)")
		args = append(args, *filter.Chapter, *filter.Chapter)
	case filter.Range != nil:
		where = append(where, "valid_from <= ? AND (valid_to IS NULL OR valid_to >= ?)")
		args = append(args, filter.Range.Max, filter.Range.Min)
	case filter.ValidAt != nil:
		where = append(where, "valid_from <= ? AND (valid_to IS NULL OR valid_to >= ?)")
		args = append(args, *filter.ValidAt, *filter.ValidAt)
	}

	return where, args
}

// UpdateEmbedding attaches an embedding to an existing fact.
func (r *Repository) UpdateEmbedding(ctx context.Context, factID string, embedding []float32) error {
	data, err := marshalEmbedding(embedding)
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx,
		`UPDATE facts SET embedding = ?, updated_at = ? WHERE id = ?`, data, timeNow(), factID)
	if err != nil {
		return fmt.Errorf("updating embedding: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating embedding: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("fact not found: %s", factID)
	}
	return nil
}

// CountFactsByStatus returns fact counts grouped by status.
func (r *Repository) CountFactsByStatus(ctx context.Context) (map[entities.FactStatus]int, error) {
	counts, err := r.countGrouped(ctx, "status")
	if err != nil {
		return nil, err
	}
	result := make(map[entities.FactStatus]int, len(counts))
	for k, v := range counts {
		result[entities.FactStatus(k)] = v
	}
	return result, nil
}

// CountFactsByType returns fact counts grouped by type.
func (r *Repository) CountFactsByType(ctx context.Context) (map[entities.FactType]int, error) {
	counts, err := r.countGrouped(ctx, "type")
	if err != nil {
		return nil, err
	}
	result := make(map[entities.FactType]int, len(counts))
	for k, v := range counts {
		result[entities.FactType(k)] = v
	}
	return result, nil
}

// countGrouped counts facts per distinct value of column, which must be a
// trusted identifier.
func (r *Repository) countGrouped(ctx context.Context, column string) (map[string]int, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+column+`, COUNT(*) FROM facts GROUP BY `+column)
	if err != nil {
		return nil, fmt.Errorf("counting facts by %s: %w", column, err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var key string
		var count int
		if err := rows.Scan(&key, &count); err != nil {
			return nil, fmt.Errorf("scanning count: %w", err)
		}
		counts[key] = count
	}
	return counts, rows.Err()
}

func (r *Repository) queryFacts(ctx context.Context, query string, args ...any) ([]entities.Fact, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying facts: %w", err)
	}
	defer rows.Close()

	var facts []entities.Fact
	for rows.Next() {
		fact, err := scanFact(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning fact: %w", err)
		}
		facts = append(facts, *fact)
	}
	return facts, rows.Err()
}

func scanFact(row rowScanner) (*entities.Fact, error) {
	var fact entities.Fact
	var factType, subjects, status string
	var objects, embedding, supersedes sql.NullString
	var validTo sql.NullInt64

	if err := row.Scan(
		&fact.ID,
		&factType,
		&fact.Predicate,
		&subjects,
		&objects,
		&fact.CanonicalFact,
		&fact.RawContent,
		&fact.Confidence,
		&fact.ValidFrom,
		&validTo,
		&embedding,
		&status,
		&supersedes,
		&fact.CreatedAt,
		&fact.UpdatedAt,
	); err != nil {
		return nil, err
	}

	fact.Type = entities.FactType(factType)
	fact.Status = entities.FactStatus(status)

	if err := json.Unmarshal([]byte(subjects), &fact.SubjectIDs); err != nil {
		return nil, fmt.Errorf("unmarshaling subject ids: %w", err)
	}
	if objects.Valid {
		if err := json.Unmarshal([]byte(objects.String), &fact.ObjectIDs); err != nil {
			return nil, fmt.Errorf("unmarshaling object ids: %w", err)
		}
	}
	if embedding.Valid {
		if err := json.Unmarshal([]byte(embedding.String), &fact.Embedding); err != nil {
			return nil, fmt.Errorf("unmarshaling embedding: %w", err)
		}
	}
	if validTo.Valid {
		v := int(validTo.Int64)
		fact.ValidTo = &v
	}
	if supersedes.Valid {
		s := supersedes.String
		fact.SupersedesID = &s
	}
	return &fact, nil
}

func marshalEmbedding(embedding []float32) (sql.NullString, error) {
	if len(embedding) == 0 {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(embedding)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("marshaling embedding: %w", err)
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}
