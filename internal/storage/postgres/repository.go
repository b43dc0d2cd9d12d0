// Package postgres stores entities, users and import audit entries in
// PostgreSQL through a pgx connection pool.
//
// Each record of an import run is written in its own transaction (InTx).
// Unique indexes on e-mail, document type+number and department name back the
// pre-save checks, so a row that races past them fails with a unique
// violation instead of creating a duplicate.
package postgres

import (
	"context"
	_ "embed"
	"errors"

	gerrors "github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JonMunkholm/staffimport/internal/core"
)

//go:embed schema.sql
var schemaSQL string

// ErrEntityExists is returned by CreateEntity for a taken id.
var ErrEntityExists = errors.New("entity already exists")

// Repository implements core.Repository and core.AuditLogger.
type Repository struct {
	pool *pgxpool.Pool
}

var (
	_ core.Repository  = (*Repository)(nil)
	_ core.AuditLogger = (*Repository)(nil)
)

// New wraps an existing pool.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Open connects to url and verifies the connection.
func Open(ctx context.Context, url string, maxConns int32) (*Repository, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, gerrors.Wrap(err, "parse database url")
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, gerrors.Wrap(err, "create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, gerrors.Wrap(err, "ping database")
	}
	return New(pool), nil
}

// Close releases the pool.
func (r *Repository) Close() {
	r.pool.Close()
}

// Ping checks the database connection.
func (r *Repository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// Migrate creates missing tables and seeds the ACL groups.
func (r *Repository) Migrate(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, schemaSQL); err != nil {
		return gerrors.Wrap(err, "apply schema")
	}
	return nil
}

// CreateEntity inserts e. A zero ID is replaced with a new one.
func (r *Repository) CreateEntity(ctx context.Context, e core.Entity) (core.Entity, error) {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.ContractType == "" {
		e.ContractType = core.ContractTypeCorporate
	}
	_, err := r.pool.Exec(ctx,
		`INSERT INTO entities (id, name, contract_type) VALUES ($1, $2, $3)`,
		e.ID, e.Name, e.ContractType)
	if isUniqueViolation(err) {
		return core.Entity{}, ErrEntityExists
	}
	if err != nil {
		return core.Entity{}, gerrors.Wrap(err, "insert entity")
	}
	return e, nil
}

// LoadEntity returns the entity with its users, departments and groups.
func (r *Repository) LoadEntity(ctx context.Context, entityID uuid.UUID) (*core.EntitySnapshot, error) {
	snap := &core.EntitySnapshot{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, name, contract_type FROM entities WHERE id = $1`, entityID,
	).Scan(&snap.Entity.ID, &snap.Entity.Name, &snap.Entity.ContractType)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, gerrors.Wrapf(core.ErrEntityNotFound, "entity %s", entityID)
		}
		return nil, gerrors.Wrap(err, "select entity")
	}

	if snap.Users, err = r.entityUsers(ctx, entityID); err != nil {
		return nil, err
	}
	if snap.Departments, err = r.entityDepartments(ctx, entityID); err != nil {
		return nil, err
	}
	if snap.Groups, err = r.entityGroups(ctx, entityID); err != nil {
		return nil, err
	}
	return snap, nil
}

func (r *Repository) entityUsers(ctx context.Context, entityID uuid.UUID) ([]core.User, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, entity_id, last_name, first_name, middle_name, email, phone,
		       birthday, role, created_by, department_id, group_id
		FROM users
		WHERE entity_id = $1
		ORDER BY created_at, id`, entityID)
	if err != nil {
		return nil, gerrors.Wrap(err, "select users")
	}

	users, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (core.User, error) {
		var (
			u                     core.User
			middle, email, phone  pgtype.Text
			createdBy             pgtype.Text
			birthday              pgtype.Date
			departmentID, groupID pgtype.UUID
		)
		err := row.Scan(&u.ID, &u.EntityID, &u.LastName, &u.FirstName, &middle, &email, &phone,
			&birthday, &u.Role, &createdBy, &departmentID, &groupID)
		u.MiddleName = fromPgText(middle)
		u.Email = fromPgText(email)
		u.Phone = fromPgText(phone)
		u.CreatedBy = fromPgText(createdBy)
		u.Birthday = fromPgDate(birthday)
		u.DepartmentID = fromPgUUID(departmentID)
		u.GroupID = fromPgUUID(groupID)
		return u, err
	})
	if err != nil {
		return nil, gerrors.Wrap(err, "scan users")
	}
	return users, nil
}

func (r *Repository) entityDepartments(ctx context.Context, entityID uuid.UUID) ([]core.Department, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, entity_id, name FROM departments WHERE entity_id = $1 ORDER BY created_at, id`, entityID)
	if err != nil {
		return nil, gerrors.Wrap(err, "select departments")
	}
	deps, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (core.Department, error) {
		var d core.Department
		err := row.Scan(&d.ID, &d.EntityID, &d.Name)
		return d, err
	})
	if err != nil {
		return nil, gerrors.Wrap(err, "scan departments")
	}
	return deps, nil
}

func (r *Repository) entityGroups(ctx context.Context, entityID uuid.UUID) ([]core.Group, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, entity_id, name FROM booking_groups WHERE entity_id = $1 ORDER BY created_at, id`, entityID)
	if err != nil {
		return nil, gerrors.Wrap(err, "select booking groups")
	}
	groups, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (core.Group, error) {
		var g core.Group
		err := row.Scan(&g.ID, &g.EntityID, &g.Name)
		return g, err
	})
	if err != nil {
		return nil, gerrors.Wrap(err, "scan booking groups")
	}
	return groups, nil
}

// CheckUser reports a taken e-mail address.
func (r *Repository) CheckUser(ctx context.Context, u *core.User) ([]core.FieldError, error) {
	if u.Email == "" {
		return nil, nil
	}
	taken, err := r.exists(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE lower(email) = lower($1))`, u.Email)
	if err != nil {
		return nil, gerrors.Wrap(err, "check user email")
	}
	if taken {
		return []core.FieldError{{Field: "email", Value: u.Email, Message: "is already taken"}}, nil
	}
	return nil, nil
}

// CheckDocument reports a document number already registered for the type.
func (r *Repository) CheckDocument(ctx context.Context, d *core.Document) ([]core.FieldError, error) {
	if d.Number == "" {
		return nil, nil
	}
	taken, err := r.exists(ctx, `SELECT EXISTS (SELECT 1 FROM documents WHERE type = $1 AND number = $2)`, d.Type, d.Number)
	if err != nil {
		return nil, gerrors.Wrap(err, "check document number")
	}
	if taken {
		return []core.FieldError{{Field: "number", Value: d.Number, Message: "is already registered"}}, nil
	}
	return nil, nil
}

// CheckDepartment reports a department name already used in the entity.
func (r *Repository) CheckDepartment(ctx context.Context, d *core.Department) ([]core.FieldError, error) {
	taken, err := r.exists(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM departments
			WHERE entity_id = $1 AND lower(btrim(name)) = lower(btrim($2))
		)`, d.EntityID, d.Name)
	if err != nil {
		return nil, gerrors.Wrap(err, "check department name")
	}
	if taken {
		return []core.FieldError{{Field: "name", Value: d.Name, Message: "is already taken"}}, nil
	}
	return nil, nil
}

func (r *Repository) exists(ctx context.Context, sql string, args ...any) (bool, error) {
	var ok bool
	err := r.pool.QueryRow(ctx, sql, args...).Scan(&ok)
	return ok, err
}

// InTx runs fn in a database transaction. A unique violation raised by any
// write is returned as is, so its message names the broken constraint.
func (r *Repository) InTx(ctx context.Context, fn func(ctx context.Context, tx core.Tx) error) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &pgTx{tx: tx})
	})
}

// RecordAudit inserts an audit log row.
func (r *Repository) RecordAudit(ctx context.Context, e core.AuditEntry) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO import_audit_log (
			id, action, severity, session_id, entity_id, actor, file_name,
			ip_address, user_agent, records_total, records_failed, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		e.ID, string(e.Action), string(e.Severity), e.SessionID, e.EntityID,
		toPgText(e.Actor), toPgText(e.FileName), toPgText(e.IPAddress), toPgText(e.UserAgent),
		e.RecordsTotal, e.RecordsFailed, e.CreatedAt)
	if err != nil {
		return gerrors.Wrap(err, "insert audit entry")
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
