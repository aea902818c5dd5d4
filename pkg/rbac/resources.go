package rbac

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
)

// UserDirectory is the engine's read-only view of the platform's user store.
type UserDirectory interface {
	// GetUser returns the user record, or a *UserNotFoundError when the id
	// has no record.
	GetUser(ctx context.Context, id uuid.UUID) (*User, error)
}

// ResourceCatalog is the engine's read-only view of the resources scopes
// point at. Flows carry an optional parent project reference (folder_id);
// that edge is the only inheritance edge the resolver follows.
type ResourceCatalog interface {
	ProjectExists(ctx context.Context, id uuid.UUID) (bool, error)
	FlowExists(ctx context.Context, id uuid.UUID) (bool, error)

	// FlowParentProjectID returns the flow's parent project id, or nil when
	// the flow has no parent. An unknown flow yields *ResourceNotFoundError;
	// the resolver treats that the same as a flow with no parent.
	FlowParentProjectID(ctx context.Context, id uuid.UUID) (*uuid.UUID, error)

	// FlowParentProjectIDs resolves parents for a set of flows in one query.
	// Flows without a parent (or unknown flows) are absent from the result.
	FlowParentProjectIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]uuid.UUID, error)
}

// SQLUserDirectory reads users from the platform's users table.
type SQLUserDirectory struct {
	db *sql.DB
}

// NewSQLUserDirectory creates a user directory over the given database.
func NewSQLUserDirectory(db *sql.DB) *SQLUserDirectory {
	return &SQLUserDirectory{db: db}
}

// GetUser implements UserDirectory.
func (d *SQLUserDirectory) GetUser(ctx context.Context, id uuid.UUID) (*User, error) {
	var u User
	err := d.db.QueryRowContext(ctx,
		`SELECT id, is_superuser FROM users WHERE id = $1`, id,
	).Scan(&u.ID, &u.IsSuperuser)
	if err == sql.ErrNoRows {
		return nil, &UserNotFoundError{ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &u, nil
}

// SQLResourceCatalog reads projects and flows from the platform's tables.
type SQLResourceCatalog struct {
	db *sql.DB
}

// NewSQLResourceCatalog creates a resource catalog over the given database.
func NewSQLResourceCatalog(db *sql.DB) *SQLResourceCatalog {
	return &SQLResourceCatalog{db: db}
}

// ProjectExists implements ResourceCatalog.
func (c *SQLResourceCatalog) ProjectExists(ctx context.Context, id uuid.UUID) (bool, error) {
	var one int
	err := c.db.QueryRowContext(ctx, `SELECT 1 FROM projects WHERE id = $1`, id).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("project exists: %w", err)
	}
	return true, nil
}

// FlowExists implements ResourceCatalog.
func (c *SQLResourceCatalog) FlowExists(ctx context.Context, id uuid.UUID) (bool, error) {
	var one int
	err := c.db.QueryRowContext(ctx, `SELECT 1 FROM flows WHERE id = $1`, id).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("flow exists: %w", err)
	}
	return true, nil
}

// FlowParentProjectID implements ResourceCatalog.
func (c *SQLResourceCatalog) FlowParentProjectID(ctx context.Context, id uuid.UUID) (*uuid.UUID, error) {
	var parent uuid.NullUUID
	err := c.db.QueryRowContext(ctx, `SELECT folder_id FROM flows WHERE id = $1`, id).Scan(&parent)
	if err == sql.ErrNoRows {
		return nil, &ResourceNotFoundError{Kind: ScopeFlow, ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("flow parent: %w", err)
	}
	if !parent.Valid {
		return nil, nil
	}
	p := parent.UUID
	return &p, nil
}

// FlowParentProjectIDs implements ResourceCatalog.
func (c *SQLResourceCatalog) FlowParentProjectIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]uuid.UUID, error) {
	parents := make(map[uuid.UUID]uuid.UUID, len(ids))
	if len(ids) == 0 {
		return parents, nil
	}

	query, args := buildInQuery(`SELECT id, folder_id FROM flows WHERE id IN (%s)`, ids)
	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("flow parents: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id uuid.UUID
		var parent uuid.NullUUID
		if err := rows.Scan(&id, &parent); err != nil {
			return nil, fmt.Errorf("flow parents: %w", err)
		}
		if parent.Valid {
			parents[id] = parent.UUID
		}
	}
	return parents, rows.Err()
}

// buildInQuery expands a single %s placeholder into $n placeholders for each
// id and returns the matching args slice.
func buildInQuery(format string, ids []uuid.UUID) (string, []interface{}) {
	placeholders := make([]byte, 0, len(ids)*4)
	args := make([]interface{}, 0, len(ids))
	for i, id := range ids {
		if i > 0 {
			placeholders = append(placeholders, ',', ' ')
		}
		placeholders = append(placeholders, []byte(fmt.Sprintf("$%d", i+1))...)
		args = append(args, id)
	}
	return fmt.Sprintf(format, placeholders), args
}
