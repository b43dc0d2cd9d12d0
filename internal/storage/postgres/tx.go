package postgres

import (
	"context"

	gerrors "github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/JonMunkholm/staffimport/internal/core"
)

// pgTx implements core.Tx on top of a pgx transaction.
type pgTx struct {
	tx pgx.Tx
}

var _ core.Tx = (*pgTx)(nil)

// CreateUser inserts u. The placeholder password is stored as a bcrypt hash.
func (t *pgTx) CreateUser(ctx context.Context, u *core.User) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}

	var hash string
	if u.Password != "" {
		b, err := bcrypt.GenerateFromPassword([]byte(u.Password), bcrypt.DefaultCost)
		if err != nil {
			return gerrors.Wrap(err, "hash password")
		}
		hash = string(b)
	}

	_, err := t.tx.Exec(ctx, `
		INSERT INTO users (
			id, entity_id, last_name, first_name, middle_name, email, phone,
			birthday, role, password_hash, created_by, department_id, group_id
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		u.ID, u.EntityID, u.LastName, u.FirstName, toPgText(u.MiddleName),
		toPgText(u.Email), toPgText(u.Phone), toPgDate(u.Birthday), u.Role,
		toPgText(hash), toPgText(u.CreatedBy), toPgUUID(u.DepartmentID), toPgUUID(u.GroupID))
	if err != nil {
		return gerrors.Wrap(err, "insert user")
	}
	return nil
}

func (t *pgTx) FindAclGroupsByName(ctx context.Context, names []string) ([]core.AclGroup, error) {
	if len(names) == 0 {
		return nil, nil
	}
	rows, err := t.tx.Query(ctx, `SELECT id, name FROM acl_groups WHERE name = ANY($1) ORDER BY name`, names)
	if err != nil {
		return nil, gerrors.Wrap(err, "select acl groups")
	}
	groups, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (core.AclGroup, error) {
		var g core.AclGroup
		err := row.Scan(&g.ID, &g.Name)
		return g, err
	})
	if err != nil {
		return nil, gerrors.Wrap(err, "scan acl groups")
	}
	return groups, nil
}

func (t *pgTx) LinkUserAclGroups(ctx context.Context, userID uuid.UUID, groups []core.AclGroup) error {
	if len(groups) == 0 {
		return nil
	}
	_, err := t.tx.CopyFrom(ctx,
		pgx.Identifier{"user_acl_groups"},
		[]string{"user_id", "acl_group_id"},
		pgx.CopyFromSlice(len(groups), func(i int) ([]any, error) {
			return []any{userID, groups[i].ID}, nil
		}),
	)
	if err != nil {
		return gerrors.Wrap(err, "copy user acl groups")
	}
	return nil
}

func (t *pgTx) CreateDocument(ctx context.Context, d *core.Document) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	_, err := t.tx.Exec(ctx, `
		INSERT INTO documents (
			id, user_id, type, number, gender, citizenship, issue_date, expiration_date,
			is_active, last_name_loc, first_name_loc, middle_name_loc,
			last_name_int, first_name_int, middle_name_int
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		d.ID, toPgUUID(d.UserID), d.Type, d.Number, toPgText(d.Gender), toPgText(d.Citizenship),
		toPgDate(d.IssueDate), toPgDate(d.ExpirationDate), d.IsActive,
		toPgText(d.LastNameLoc), toPgText(d.FirstNameLoc), toPgText(d.MiddleNameLoc),
		toPgText(d.LastNameInt), toPgText(d.FirstNameInt), toPgText(d.MiddleNameInt))
	if err != nil {
		return gerrors.Wrap(err, "insert document")
	}
	return nil
}

func (t *pgTx) LinkDocumentToUser(ctx context.Context, documentID, userID uuid.UUID) error {
	tag, err := t.tx.Exec(ctx, `UPDATE documents SET user_id = $2 WHERE id = $1`, documentID, userID)
	if err != nil {
		return gerrors.Wrap(err, "link document")
	}
	if tag.RowsAffected() == 0 {
		return gerrors.Errorf("link document: document %s not found", documentID)
	}
	return nil
}

func (t *pgTx) CreateDepartment(ctx context.Context, d *core.Department) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	_, err := t.tx.Exec(ctx,
		`INSERT INTO departments (id, entity_id, name) VALUES ($1, $2, $3)`,
		d.ID, d.EntityID, d.Name)
	if err != nil {
		return gerrors.Wrap(err, "insert department")
	}
	return nil
}

func (t *pgTx) LinkUserToDepartment(ctx context.Context, userID, departmentID uuid.UUID) error {
	tag, err := t.tx.Exec(ctx, `UPDATE users SET department_id = $2 WHERE id = $1`, userID, departmentID)
	if err != nil {
		return gerrors.Wrap(err, "link department")
	}
	if tag.RowsAffected() == 0 {
		return gerrors.Errorf("link department: user %s not found", userID)
	}
	return nil
}
