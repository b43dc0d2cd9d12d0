package postgres

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/JonMunkholm/staffimport/internal/core"
)

// openTestRepository connects to STAFFIMPORT_TEST_DB_URL and applies the
// schema. Tests are skipped when the variable is unset.
func openTestRepository(t *testing.T) *Repository {
	t.Helper()
	url := os.Getenv("STAFFIMPORT_TEST_DB_URL")
	if url == "" {
		t.Skip("STAFFIMPORT_TEST_DB_URL not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	repo, err := Open(ctx, url, 4)
	require.NoError(t, err)
	t.Cleanup(repo.Close)
	require.NoError(t, repo.Migrate(ctx))
	return repo
}

func TestRepository_Migrate_Idempotent(t *testing.T) {
	repo := openTestRepository(t)
	require.NoError(t, repo.Migrate(context.Background()))
}

func TestRepository_LoadEntity_NotFound(t *testing.T) {
	repo := openTestRepository(t)
	_, err := repo.LoadEntity(context.Background(), uuid.New())
	assert.ErrorIs(t, err, core.ErrEntityNotFound)
}

func TestRepository_CreateEntity_Exists(t *testing.T) {
	repo := openTestRepository(t)
	ctx := context.Background()

	e, err := repo.CreateEntity(ctx, core.Entity{Name: "Acme"})
	require.NoError(t, err)
	assert.Equal(t, core.ContractTypeCorporate, e.ContractType)

	_, err = repo.CreateEntity(ctx, e)
	assert.ErrorIs(t, err, ErrEntityExists)
}

func TestRepository_InTx_PersistsRecord(t *testing.T) {
	repo := openTestRepository(t)
	ctx := context.Background()

	entity, err := repo.CreateEntity(ctx, core.Entity{Name: "Acme", ContractType: core.ContractTypeAgency})
	require.NoError(t, err)

	email := uuid.NewString() + "@acme.test"
	birthday := core.NewDate(1985, time.April, 12)
	user := &core.User{
		EntityID:  entity.ID,
		LastName:  "Иванов",
		FirstName: "Иван",
		Email:     email,
		Birthday:  &birthday,
		Role:      core.RoleEmployee,
		Password:  "secret-123",
		AclGroups: []string{core.AclOrderCreator},
	}
	doc := &core.Document{Type: core.DocTypePassport, Number: uuid.NewString()[:10], IsActive: true}
	dept := &core.Department{EntityID: entity.ID, Name: "IT " + uuid.NewString()[:6]}

	err = repo.InTx(ctx, func(ctx context.Context, tx core.Tx) error {
		if err := tx.CreateUser(ctx, user); err != nil {
			return err
		}
		groups, err := tx.FindAclGroupsByName(ctx, user.AclGroups)
		if err != nil {
			return err
		}
		require.Len(t, groups, 1)
		if err := tx.LinkUserAclGroups(ctx, user.ID, groups); err != nil {
			return err
		}
		if err := tx.CreateDocument(ctx, doc); err != nil {
			return err
		}
		if err := tx.LinkDocumentToUser(ctx, doc.ID, user.ID); err != nil {
			return err
		}
		if err := tx.CreateDepartment(ctx, dept); err != nil {
			return err
		}
		return tx.LinkUserToDepartment(ctx, user.ID, dept.ID)
	})
	require.NoError(t, err)

	snap, err := repo.LoadEntity(ctx, entity.ID)
	require.NoError(t, err)
	assert.Equal(t, core.ContractTypeAgency, snap.Entity.ContractType)
	require.Len(t, snap.Users, 1)
	require.Len(t, snap.Departments, 1)
	got := snap.Users[0]
	assert.Equal(t, email, got.Email)
	require.NotNil(t, got.Birthday)
	assert.Equal(t, "1985-04-12", got.Birthday.String())
	require.NotNil(t, got.DepartmentID)
	assert.Equal(t, dept.ID, *got.DepartmentID)

	var hash string
	require.NoError(t, repo.pool.QueryRow(ctx, `SELECT password_hash FROM users WHERE id = $1`, user.ID).Scan(&hash))
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(hash), []byte("secret-123")))

	conflicts, err := repo.CheckUser(ctx, &core.User{Email: email})
	require.NoError(t, err)
	assert.Len(t, conflicts, 1)

	conflicts, err = repo.CheckDocument(ctx, doc)
	require.NoError(t, err)
	assert.Len(t, conflicts, 1)

	conflicts, err = repo.CheckDepartment(ctx, &core.Department{EntityID: entity.ID, Name: "  " + dept.Name + " "})
	require.NoError(t, err)
	assert.Len(t, conflicts, 1)
}

func TestRepository_InTx_RollsBack(t *testing.T) {
	repo := openTestRepository(t)
	ctx := context.Background()

	entity, err := repo.CreateEntity(ctx, core.Entity{Name: "Acme"})
	require.NoError(t, err)

	taken := uuid.NewString() + "@acme.test"
	require.NoError(t, repo.InTx(ctx, func(ctx context.Context, tx core.Tx) error {
		return tx.CreateUser(ctx, &core.User{EntityID: entity.ID, LastName: "A", FirstName: "B", Email: taken, Role: core.RoleEmployee})
	}))

	boom := errors.New("boom")
	err = repo.InTx(ctx, func(ctx context.Context, tx core.Tx) error {
		if err := tx.CreateUser(ctx, &core.User{EntityID: entity.ID, LastName: "C", FirstName: "D", Role: core.RoleEmployee}); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	err = repo.InTx(ctx, func(ctx context.Context, tx core.Tx) error {
		return tx.CreateUser(ctx, &core.User{EntityID: entity.ID, LastName: "E", FirstName: "F", Email: taken, Role: core.RoleEmployee})
	})
	require.Error(t, err)
	assert.True(t, isUniqueViolation(err))
	assert.Equal(t, "DB001", core.MapError(err).Code)

	snap, err := repo.LoadEntity(ctx, entity.ID)
	require.NoError(t, err)
	assert.Len(t, snap.Users, 1)
}

func TestRepository_RecordAudit(t *testing.T) {
	repo := openTestRepository(t)
	ctx := context.Background()

	sessionID := uuid.NewString()
	require.NoError(t, repo.RecordAudit(ctx, core.AuditEntry{
		Action:       core.ActionImportCommit,
		Severity:     core.SeverityHigh,
		SessionID:    sessionID,
		EntityID:     uuid.New(),
		RecordsTotal: 3,
		CreatedAt:    time.Now().UTC(),
	}))

	var total int
	require.NoError(t, repo.pool.QueryRow(ctx,
		`SELECT records_total FROM import_audit_log WHERE session_id = $1`, sessionID).Scan(&total))
	assert.Equal(t, 3, total)
}
