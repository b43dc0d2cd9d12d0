package core

import (
	"context"

	"github.com/google/uuid"
)

// Repository is the storage the engine reads from and writes to.
type Repository interface {
	UniquenessChecker

	// LoadEntity returns the entity with its users, departments and groups.
	// It returns an error wrapping ErrEntityNotFound for an unknown id.
	LoadEntity(ctx context.Context, entityID uuid.UUID) (*EntitySnapshot, error)

	// InTx runs fn in a transaction that is committed when fn returns nil
	// and rolled back otherwise.
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Tx holds the writes performed for one accepted record. Create methods set
// the ID of the value they persist.
type Tx interface {
	CreateUser(ctx context.Context, u *User) error
	FindAclGroupsByName(ctx context.Context, names []string) ([]AclGroup, error)
	LinkUserAclGroups(ctx context.Context, userID uuid.UUID, groups []AclGroup) error
	CreateDocument(ctx context.Context, d *Document) error
	LinkDocumentToUser(ctx context.Context, documentID, userID uuid.UUID) error
	CreateDepartment(ctx context.Context, d *Department) error
	LinkUserToDepartment(ctx context.Context, userID, departmentID uuid.UUID) error
}
