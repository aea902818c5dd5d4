package rbac

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// SQLStore implements Store over database/sql. The SQL sticks to the subset
// shared by PostgreSQL and SQLite so the production store and the in-memory
// test database run the same statements.
type SQLStore struct {
	db querier
	tx *sql.Tx // non-nil when transaction-bound
}

// querier is the intersection of *sql.DB and *sql.Tx the store needs.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// NewSQLStore creates a store over the given database handle.
func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

// WithTx implements Store. A transaction-bound store cannot open a nested
// transaction; fn simply runs against the existing one.
func (s *SQLStore) WithTx(ctx context.Context, fn func(Store) error) error {
	if s.tx != nil {
		return fn(s)
	}
	db, ok := s.db.(*sql.DB)
	if !ok {
		return errors.New("store is not backed by *sql.DB")
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(&SQLStore{db: tx, tx: tx}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && rbErr != sql.ErrTxDone {
			return fmt.Errorf("%w (rollback: %v)", err, rbErr)
		}
		return err
	}
	return tx.Commit()
}

// CreateRole implements Store.
func (s *SQLStore) CreateRole(ctx context.Context, role *Role) error {
	now := time.Now().UTC()
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO roles (name, description, is_system_role, created_at)
		 VALUES ($1, $2, $3, $4) RETURNING id`,
		role.Name, role.Description, role.IsSystemRole, now,
	).Scan(&role.ID)
	if err != nil {
		return fmt.Errorf("create role: %w", err)
	}
	role.CreatedAt = now
	return nil
}

// GetRoleByID implements Store.
func (s *SQLStore) GetRoleByID(ctx context.Context, id int64) (*Role, error) {
	return s.scanRole(s.db.QueryRowContext(ctx,
		`SELECT id, name, description, is_system_role, created_at FROM roles WHERE id = $1`, id))
}

// GetRoleByName implements Store.
func (s *SQLStore) GetRoleByName(ctx context.Context, name string) (*Role, error) {
	return s.scanRole(s.db.QueryRowContext(ctx,
		`SELECT id, name, description, is_system_role, created_at FROM roles WHERE name = $1`, name))
}

func (s *SQLStore) scanRole(row *sql.Row) (*Role, error) {
	var r Role
	err := row.Scan(&r.ID, &r.Name, &r.Description, &r.IsSystemRole, &r.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get role: %w", err)
	}
	return &r, nil
}

// ListRoles implements Store.
func (s *SQLStore) ListRoles(ctx context.Context) ([]Role, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, description, is_system_role, created_at FROM roles ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list roles: %w", err)
	}
	defer rows.Close()

	var roles []Role
	for rows.Next() {
		var r Role
		if err := rows.Scan(&r.ID, &r.Name, &r.Description, &r.IsSystemRole, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("list roles: %w", err)
		}
		roles = append(roles, r)
	}
	return roles, rows.Err()
}

// CreatePermission implements Store.
func (s *SQLStore) CreatePermission(ctx context.Context, perm *Permission) error {
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO permissions (name, scope, description) VALUES ($1, $2, $3) RETURNING id`,
		perm.Name, string(perm.Scope), perm.Description,
	).Scan(&perm.ID)
	if err != nil {
		return fmt.Errorf("create permission: %w", err)
	}
	return nil
}

// GetPermission implements Store.
func (s *SQLStore) GetPermission(ctx context.Context, name string, scope ScopeType) (*Permission, error) {
	var p Permission
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, scope, description FROM permissions WHERE name = $1 AND scope = $2`,
		name, string(scope),
	).Scan(&p.ID, &p.Name, &p.Scope, &p.Description)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get permission: %w", err)
	}
	return &p, nil
}

// AddRolePermission implements Store.
func (s *SQLStore) AddRolePermission(ctx context.Context, roleID, permissionID int64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO role_permissions (role_id, permission_id) VALUES ($1, $2)`,
		roleID, permissionID)
	if err != nil {
		return fmt.Errorf("add role permission: %w", err)
	}
	return nil
}

// ListRolePermissions implements Store.
func (s *SQLStore) ListRolePermissions(ctx context.Context, roleID int64) ([]Permission, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT p.id, p.name, p.scope, p.description
		 FROM permissions p
		 JOIN role_permissions rp ON rp.permission_id = p.id
		 WHERE rp.role_id = $1
		 ORDER BY p.scope, p.name`, roleID)
	if err != nil {
		return nil, fmt.Errorf("list role permissions: %w", err)
	}
	defer rows.Close()

	var perms []Permission
	for rows.Next() {
		var p Permission
		if err := rows.Scan(&p.ID, &p.Name, &p.Scope, &p.Description); err != nil {
			return nil, fmt.Errorf("list role permissions: %w", err)
		}
		perms = append(perms, p)
	}
	return perms, rows.Err()
}

// RoleHasPermission implements Store.
func (s *SQLStore) RoleHasPermission(ctx context.Context, roleID int64, name string, scope ScopeType) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1
		 FROM role_permissions rp
		 JOIN permissions p ON p.id = rp.permission_id
		 WHERE rp.role_id = $1 AND p.name = $2 AND p.scope = $3`,
		roleID, name, string(scope),
	).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("role has permission: %w", err)
	}
	return true, nil
}

const assignmentColumns = `id, user_id, role_id, scope_type, scope_id, is_immutable, created_at, created_by`

// CreateAssignment implements Store. A uniqueness violation on
// (user_id, role_id, scope_type, scope_id) surfaces as
// *DuplicateAssignmentError.
func (s *SQLStore) CreateAssignment(ctx context.Context, a *Assignment) error {
	now := time.Now().UTC()
	var scopeID uuid.NullUUID
	if a.ScopeID != nil {
		scopeID = uuid.NullUUID{UUID: *a.ScopeID, Valid: true}
	}
	var createdBy uuid.NullUUID
	if a.CreatedBy != nil {
		createdBy = uuid.NullUUID{UUID: *a.CreatedBy, Valid: true}
	}
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO user_role_assignments
		   (user_id, role_id, scope_type, scope_id, is_immutable, created_at, created_by)
		 VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`,
		a.UserID, a.RoleID, string(a.ScopeType), scopeID, a.IsImmutable, now, createdBy,
	).Scan(&a.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return &DuplicateAssignmentError{
				UserID:    a.UserID,
				RoleID:    a.RoleID,
				ScopeType: a.ScopeType,
				ScopeID:   a.ScopeID,
			}
		}
		return fmt.Errorf("create assignment: %w", err)
	}
	a.CreatedAt = now
	return nil
}

// GetAssignmentByID implements Store.
func (s *SQLStore) GetAssignmentByID(ctx context.Context, id int64) (*Assignment, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+assignmentColumns+` FROM user_role_assignments WHERE id = $1`, id)
	return scanAssignmentRow(row)
}

// GetAssignment implements Store. It looks up the direct assignment for a
// (user, scope type, scope id) triple.
func (s *SQLStore) GetAssignment(ctx context.Context, userID uuid.UUID, scope ScopeType, scopeID *uuid.UUID) (*Assignment, error) {
	var row *sql.Row
	if scopeID == nil {
		row = s.db.QueryRowContext(ctx,
			`SELECT `+assignmentColumns+`
			 FROM user_role_assignments
			 WHERE user_id = $1 AND scope_type = $2 AND scope_id IS NULL`,
			userID, string(scope))
	} else {
		row = s.db.QueryRowContext(ctx,
			`SELECT `+assignmentColumns+`
			 FROM user_role_assignments
			 WHERE user_id = $1 AND scope_type = $2 AND scope_id = $3`,
			userID, string(scope), *scopeID)
	}
	return scanAssignmentRow(row)
}

// ListAssignments implements Store. A nil userID lists every assignment.
func (s *SQLStore) ListAssignments(ctx context.Context, userID *uuid.UUID) ([]Assignment, error) {
	var rows *sql.Rows
	var err error
	if userID == nil {
		rows, err = s.db.QueryContext(ctx,
			`SELECT `+assignmentColumns+` FROM user_role_assignments ORDER BY id`)
	} else {
		rows, err = s.db.QueryContext(ctx,
			`SELECT `+assignmentColumns+` FROM user_role_assignments WHERE user_id = $1 ORDER BY id`,
			*userID)
	}
	if err != nil {
		return nil, fmt.Errorf("list assignments: %w", err)
	}
	defer rows.Close()
	return scanAssignments(rows)
}

// UpdateAssignmentRole implements Store.
func (s *SQLStore) UpdateAssignmentRole(ctx context.Context, id, roleID int64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE user_role_assignments SET role_id = $1 WHERE id = $2`, roleID, id)
	if err != nil {
		return fmt.Errorf("update assignment role: %w", err)
	}
	return nil
}

// DeleteAssignment implements Store.
func (s *SQLStore) DeleteAssignment(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM user_role_assignments WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete assignment: %w", err)
	}
	return nil
}

// DeleteAssignmentsForScope implements Store.
func (s *SQLStore) DeleteAssignmentsForScope(ctx context.Context, scope ScopeType, scopeID uuid.UUID) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM user_role_assignments WHERE scope_type = $1 AND scope_id = $2`,
		string(scope), scopeID)
	if err != nil {
		return 0, fmt.Errorf("delete assignments for scope: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete assignments for scope: %w", err)
	}
	return n, nil
}

// HasGlobalRole implements Store.
func (s *SQLStore) HasGlobalRole(ctx context.Context, userID uuid.UUID, roleName string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1
		 FROM user_role_assignments a
		 JOIN roles r ON r.id = a.role_id
		 WHERE a.user_id = $1 AND a.scope_type = $2 AND r.name = $3`,
		userID, string(ScopeGlobal), roleName,
	).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("has global role: %w", err)
	}
	return true, nil
}

// ListAssignmentsForScopes implements Store. All refs are fetched in a single
// query; the batch checker depends on that.
func (s *SQLStore) ListAssignmentsForScopes(ctx context.Context, userID uuid.UUID, refs []ScopeRef) ([]Assignment, error) {
	if len(refs) == 0 {
		return nil, nil
	}

	var global bool
	idsByType := map[ScopeType][]uuid.UUID{}
	for _, ref := range refs {
		if ref.Type == ScopeGlobal {
			global = true
			continue
		}
		idsByType[ref.Type] = append(idsByType[ref.Type], ref.ID)
	}

	args := []interface{}{userID}
	var clauses []string
	if global {
		clauses = append(clauses, `(scope_type = 'global' AND scope_id IS NULL)`)
	}
	for _, scope := range []ScopeType{ScopeProject, ScopeFlow} {
		ids := idsByType[scope]
		if len(ids) == 0 {
			continue
		}
		placeholders := make([]string, len(ids))
		for i, id := range ids {
			args = append(args, id)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf(`(scope_type = '%s' AND scope_id IN (%s))`,
			scope, strings.Join(placeholders, ", ")))
	}

	query := `SELECT ` + assignmentColumns + `
		 FROM user_role_assignments
		 WHERE user_id = $1 AND (` + strings.Join(clauses, " OR ") + `)`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list assignments for scopes: %w", err)
	}
	defer rows.Close()
	return scanAssignments(rows)
}

// GrantsForRoles implements Store. One query covers every role id.
func (s *SQLStore) GrantsForRoles(ctx context.Context, roleIDs []int64) ([]Grant, error) {
	if len(roleIDs) == 0 {
		return nil, nil
	}

	placeholders := make([]string, len(roleIDs))
	args := make([]interface{}, len(roleIDs))
	for i, id := range roleIDs {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT rp.role_id, p.name, p.scope
		 FROM role_permissions rp
		 JOIN permissions p ON p.id = rp.permission_id
		 WHERE rp.role_id IN (`+strings.Join(placeholders, ", ")+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("grants for roles: %w", err)
	}
	defer rows.Close()

	var grants []Grant
	for rows.Next() {
		var g Grant
		var scope string
		if err := rows.Scan(&g.RoleID, &g.Permission, &scope); err != nil {
			return nil, fmt.Errorf("grants for roles: %w", err)
		}
		g.Scope = ScopeType(scope)
		grants = append(grants, g)
	}
	return grants, rows.Err()
}

func scanAssignmentRow(row *sql.Row) (*Assignment, error) {
	var a Assignment
	var scopeType string
	var scopeID, createdBy uuid.NullUUID
	err := row.Scan(&a.ID, &a.UserID, &a.RoleID, &scopeType, &scopeID, &a.IsImmutable, &a.CreatedAt, &createdBy)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get assignment: %w", err)
	}
	a.ScopeType = ScopeType(scopeType)
	if scopeID.Valid {
		id := scopeID.UUID
		a.ScopeID = &id
	}
	if createdBy.Valid {
		id := createdBy.UUID
		a.CreatedBy = &id
	}
	return &a, nil
}

func scanAssignments(rows *sql.Rows) ([]Assignment, error) {
	var out []Assignment
	for rows.Next() {
		var a Assignment
		var scopeType string
		var scopeID, createdBy uuid.NullUUID
		if err := rows.Scan(&a.ID, &a.UserID, &a.RoleID, &scopeType, &scopeID, &a.IsImmutable, &a.CreatedAt, &createdBy); err != nil {
			return nil, fmt.Errorf("scan assignment: %w", err)
		}
		a.ScopeType = ScopeType(scopeType)
		if scopeID.Valid {
			id := scopeID.UUID
			a.ScopeID = &id
		}
		if createdBy.Valid {
			id := createdBy.UUID
			a.CreatedBy = &id
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// isUniqueViolation recognizes uniqueness violations from both PostgreSQL
// (lib/pq, class 23505) and SQLite (used by the test database).
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
