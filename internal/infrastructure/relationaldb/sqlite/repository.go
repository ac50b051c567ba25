// Package sqlite provides a SQLite implementation of the RelationalDB interface.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"modernc.org/sqlite" // Pure Go SQLite driver
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/ersonp/lore-memory/internal/domain/entities"
	"github.com/ersonp/lore-memory/internal/domain/ports"
	"github.com/ersonp/lore-memory/internal/infrastructure/config"
)

var _ ports.RelationalDB = (*Repository)(nil)

// timeNow returns the current time (can be mocked in tests).
var timeNow = time.Now

// Repository implements ports.RelationalDB using SQLite.
type Repository struct {
	db   *sql.DB
	path string
}

// NewRepository creates a new SQLite repository.
func NewRepository(cfg config.SQLiteConfig) (*Repository, error) {
	if cfg.Path == "" {
		return nil, errors.New("sqlite path is required")
	}

	if cfg.Path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite database: %w", err)
	}

	// PRAGMAs apply per connection, and every connection to ":memory:" is a
	// separate database. A single connection keeps both consistent.
	db.SetMaxOpenConns(1)

	// Enable foreign keys for referential integrity
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	// Enable WAL mode for better concurrent read/write performance
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	// Set busy timeout to avoid "database is locked" errors
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	return &Repository{
		db:   db,
		path: cfg.Path,
	}, nil
}

// Close closes the database connection.
func (r *Repository) Close() error {
	return r.db.Close()
}

// Path returns the database file path.
func (r *Repository) Path() string {
	return r.path
}

// EnsureSchema creates the database schema if it doesn't exist and seeds the
// built-in entities.
func (r *Repository) EnsureSchema(ctx context.Context) error {
	schema := `
	-- Entities (characters, the user and the world)
	CREATE TABLE IF NOT EXISTS entities (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL COLLATE NOCASE UNIQUE,
		kind TEXT NOT NULL,
		aliases TEXT NOT NULL DEFAULT '[]',
		created_at DATETIME NOT NULL
	);

	-- Facts (chapter-scoped memories)
	CREATE TABLE IF NOT EXISTS facts (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		type TEXT NOT NULL,
		predicate TEXT NOT NULL,
		subject_ids TEXT NOT NULL,
		object_ids TEXT,
		conflict_key TEXT NOT NULL,
		canonical_fact TEXT NOT NULL,
		raw_content TEXT NOT NULL DEFAULT '',
		confidence REAL NOT NULL,
		valid_from INTEGER NOT NULL,
		valid_to INTEGER,
		embedding TEXT,
		status TEXT NOT NULL,
		supersedes_id TEXT REFERENCES facts(id),
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		CHECK (valid_to IS NULL OR valid_to >= valid_from)
	);
	CREATE INDEX IF NOT EXISTS idx_facts_window ON facts(valid_from, valid_to);
	CREATE INDEX IF NOT EXISTS idx_facts_status_type ON facts(status, type);
	CREATE INDEX IF NOT EXISTS idx_facts_conflict_key ON facts(conflict_key, status);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_facts_active_key ON facts(conflict_key) WHERE status = 'active';
	CREATE INDEX IF NOT EXISTS idx_facts_supersedes ON facts(supersedes_id);

	-- Audit log (tracks all ingestion decisions)
	CREATE TABLE IF NOT EXISTS audit_log (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		action TEXT NOT NULL,
		fact_id TEXT,
		details TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_audit_log_fact ON audit_log(fact_id);
	CREATE INDEX IF NOT EXISTS idx_audit_log_action ON audit_log(action);
	`

	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}

	now := timeNow()
	for _, e := range entities.DefaultEntities() {
		aliases, err := json.Marshal(e.Aliases)
		if err != nil {
			return fmt.Errorf("marshaling aliases: %w", err)
		}
		_, err = r.db.ExecContext(ctx,
			`INSERT OR IGNORE INTO entities (id, name, kind, aliases, created_at) VALUES (?, ?, ?, ?, ?)`,
			e.ID, e.Name, string(e.Kind), string(aliases), now)
		if err != nil {
			return fmt.Errorf("seeding entity %s: %w", e.Name, err)
		}
	}
	return nil
}

// Entity operations

const entityColumns = `id, name, kind, aliases, created_at`

// CreateEntity inserts a new entity.
func (r *Repository) CreateEntity(ctx context.Context, entity *entities.Entity) error {
	aliases, err := marshalStrings(entity.Aliases)
	if err != nil {
		return err
	}
	if entity.CreatedAt.IsZero() {
		entity.CreatedAt = timeNow()
	}

	query := `INSERT INTO entities (` + entityColumns + `) VALUES (?, ?, ?, ?, ?)`
	_, err = r.db.ExecContext(ctx, query, entity.ID, entity.Name, string(entity.Kind), aliases, entity.CreatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("creating entity %q: %w", entity.Name, entities.ErrEntityExists)
	}
	if err != nil {
		return fmt.Errorf("creating entity: %w", err)
	}
	return nil
}

// FindEntityByName finds an entity by canonical name or alias, ignoring case.
// A canonical name match wins over an alias match.
func (r *Repository) FindEntityByName(ctx context.Context, name string) (*entities.Entity, error) {
	query := `
		SELECT ` + entityColumns + ` FROM entities
		WHERE name = ?1
		   OR EXISTS (SELECT 1 FROM json_each(entities.aliases) WHERE value = ?1 COLLATE NOCASE)
		ORDER BY name = ?1 DESC
		LIMIT 1
	`
	entity, err := scanEntity(r.db.QueryRowContext(ctx, query, name))
	if err != nil {
		return nil, fmt.Errorf("finding entity by name: %w", err)
	}
	return entity, nil
}

// FindEntityByID finds an entity by its ID.
func (r *Repository) FindEntityByID(ctx context.Context, entityID string) (*entities.Entity, error) {
	query := `SELECT ` + entityColumns + ` FROM entities WHERE id = ?`
	entity, err := scanEntity(r.db.QueryRowContext(ctx, query, entityID))
	if err != nil {
		return nil, fmt.Errorf("finding entity by id: %w", err)
	}
	return entity, nil
}

// FindEntitiesByIDs finds multiple entities by their IDs.
func (r *Repository) FindEntitiesByIDs(ctx context.Context, ids []string) ([]*entities.Entity, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	placeholders, args := inClause(ids)
	query := `SELECT ` + entityColumns + ` FROM entities WHERE id IN (` + placeholders + `)`
	return r.queryEntities(ctx, query, args...)
}

// ListEntities lists entities ordered by name with pagination.
func (r *Repository) ListEntities(ctx context.Context, limit, offset int) ([]*entities.Entity, error) {
	if limit <= 0 {
		limit = -1
	}
	query := `SELECT ` + entityColumns + ` FROM entities ORDER BY name LIMIT ? OFFSET ?`
	return r.queryEntities(ctx, query, limit, offset)
}

// CountEntities returns the total number of entities.
func (r *Repository) CountEntities(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM entities`).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting entities: %w", err)
	}
	return count, nil
}

// AddEntityAlias records an additional spelling for an entity. Aliases that
// are already known, ignoring case, are left alone.
func (r *Repository) AddEntityAlias(ctx context.Context, entityID, alias string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	entity, err := scanEntity(tx.QueryRowContext(ctx, `SELECT `+entityColumns+` FROM entities WHERE id = ?`, entityID))
	if err != nil {
		return fmt.Errorf("finding entity: %w", err)
	}
	if entity == nil {
		return fmt.Errorf("entity not found: %s", entityID)
	}
	if entity.HasAlias(alias) {
		return nil
	}

	aliases, err := marshalStrings(append(entity.Aliases, alias))
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE entities SET aliases = ? WHERE id = ?`, aliases, entityID); err != nil {
		return fmt.Errorf("adding alias: %w", err)
	}
	return tx.Commit()
}

func (r *Repository) queryEntities(ctx context.Context, query string, args ...any) ([]*entities.Entity, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying entities: %w", err)
	}
	defer rows.Close()

	var result []*entities.Entity
	for rows.Next() {
		entity, err := scanEntity(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning entity: %w", err)
		}
		result = append(result, entity)
	}
	return result, rows.Err()
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanEntity returns (nil, nil) when the row does not exist.
func scanEntity(row rowScanner) (*entities.Entity, error) {
	var entity entities.Entity
	var kind, aliases string
	err := row.Scan(&entity.ID, &entity.Name, &kind, &aliases, &entity.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	entity.Kind = entities.EntityKind(kind)
	if err := json.Unmarshal([]byte(aliases), &entity.Aliases); err != nil {
		return nil, fmt.Errorf("unmarshaling aliases: %w", err)
	}
	return &entity, nil
}

// Audit log operations

// LogAction logs an action to the audit log.
func (r *Repository) LogAction(ctx context.Context, action string, factID string, details map[string]any) error {
	var detailsJSON sql.NullString
	if details != nil {
		data, err := json.Marshal(details)
		if err != nil {
			return fmt.Errorf("marshaling details: %w", err)
		}
		detailsJSON = sql.NullString{String: string(data), Valid: true}
	}

	var factIDPtr sql.NullString
	if factID != "" {
		factIDPtr = sql.NullString{String: factID, Valid: true}
	}

	query := `INSERT INTO audit_log (action, fact_id, details, created_at) VALUES (?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, query, action, factIDPtr, detailsJSON, timeNow())
	if err != nil {
		return fmt.Errorf("logging action: %w", err)
	}
	return nil
}

// FindAuditLog finds audit log entries for a specific fact, oldest first.
func (r *Repository) FindAuditLog(ctx context.Context, factID string) ([]entities.AuditEntry, error) {
	query := `
		SELECT id, action, fact_id, details, created_at
		FROM audit_log
		WHERE fact_id = ?
		ORDER BY id
	`
	return r.queryAuditLog(ctx, query, factID)
}

func (r *Repository) queryAuditLog(ctx context.Context, query string, args ...any) ([]entities.AuditEntry, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying audit log: %w", err)
	}
	defer rows.Close()

	var entries []entities.AuditEntry
	for rows.Next() {
		var entry entities.AuditEntry
		var factID, details sql.NullString

		if err := rows.Scan(
			&entry.ID,
			&entry.Action,
			&factID,
			&details,
			&entry.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning audit entry: %w", err)
		}

		entry.FactID = factID.String

		if details.Valid && details.String != "" {
			if err := json.Unmarshal([]byte(details.String), &entry.Details); err != nil {
				return nil, fmt.Errorf("unmarshaling details: %w", err)
			}
		}

		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// isUniqueViolation reports whether err is a SQLite UNIQUE constraint failure.
func isUniqueViolation(err error) bool {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE
}

// inClause returns "?, ?, ?" for the values along with the matching args.
func inClause[T any](values []T) (string, []any) {
	placeholders := make([]string, len(values))
	args := make([]any, len(values))
	for i, v := range values {
		placeholders[i] = "?"
		args[i] = v
	}
	return strings.Join(placeholders, ", "), args
}

func marshalStrings(values []string) (string, error) {
	if values == nil {
		values = []string{}
	}
	data, err := json.Marshal(values)
	if err != nil {
		return "", fmt.Errorf("marshaling list: %w", err)
	}
	return string(data), nil
}
