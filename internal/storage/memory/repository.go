// Package memory is an in-process implementation of the import storage.
//
// It backs the server in development mode and serves as the storage double in
// tests. Writes made inside InTx are staged and applied atomically when the
// callback returns nil, mirroring a database transaction per record.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"strings"
	"sync"

	"github.com/JonMunkholm/staffimport/internal/core"
	"github.com/google/uuid"
)

// Repository stores entities, users, documents and departments in memory.
// It is safe for concurrent use.
type Repository struct {
	mu          sync.RWMutex
	entities    map[uuid.UUID]core.Entity
	users       []core.User
	documents   []core.Document
	departments []core.Department
	groups      []core.Group
	aclGroups   []core.AclGroup
	userAcl     map[uuid.UUID][]uuid.UUID
	audit       []core.AuditEntry

	faults map[string]error
}

var (
	_ core.Repository  = (*Repository)(nil)
	_ core.AuditLogger = (*Repository)(nil)
)

// New returns an empty repository with the standard ACL groups.
func New() *Repository {
	r := &Repository{
		entities: make(map[uuid.UUID]core.Entity),
		userAcl:  make(map[uuid.UUID][]uuid.UUID),
		faults:   make(map[string]error),
	}
	for _, name := range []string{core.AclOrderCreator, core.AclOtherEmployeesOrderCreator, core.AclFinancialReportViewer} {
		r.aclGroups = append(r.aclGroups, core.AclGroup{ID: uuid.New(), Name: name})
	}
	return r
}

// AddEntity stores e. A zero ID is replaced with a new one.
func (r *Repository) AddEntity(e core.Entity) core.Entity {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entities[e.ID] = e
	return e
}

// AddDepartment stores an existing department of entityID.
func (r *Repository) AddDepartment(entityID uuid.UUID, name string) core.Department {
	d := core.Department{ID: uuid.New(), EntityID: entityID, Name: name}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.departments = append(r.departments, d)
	return d
}

// AddGroup stores an existing booking group of entityID.
func (r *Repository) AddGroup(entityID uuid.UUID, name string) core.Group {
	g := core.Group{ID: uuid.New(), EntityID: entityID, Name: name}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.groups = append(r.groups, g)
	return g
}

// AddUser stores an existing user. A zero ID is replaced with a new one.
func (r *Repository) AddUser(u core.User) core.User {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	if u.Role == "" {
		u.Role = core.RoleEmployee
	}
	u.Password = ""
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users = append(r.users, u)
	return u
}

// FailOn makes the transaction step op fail with err. Steps are named after
// the Tx methods, e.g. "CreateDocument". A nil err clears the fault.
func (r *Repository) FailOn(op string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err == nil {
		delete(r.faults, op)
		return
	}
	r.faults[op] = err
}

// ----------------------------------------------------------------------------
// Seed data
// ----------------------------------------------------------------------------

// Seed is the JSON layout accepted by LoadSeed.
type Seed struct {
	Entities []SeedEntity `json:"entities"`
}

// SeedEntity is one entity with its existing organization.
type SeedEntity struct {
	core.Entity
	Departments []string    `json:"departments"`
	Groups      []string    `json:"groups"`
	Users       []core.User `json:"users"`
}

// LoadSeed reads a Seed document and stores its contents. It returns the
// stored entities in document order.
func (r *Repository) LoadSeed(rd io.Reader) ([]core.Entity, error) {
	var seed Seed
	if err := json.NewDecoder(rd).Decode(&seed); err != nil {
		return nil, fmt.Errorf("decode seed: %w", err)
	}

	out := make([]core.Entity, 0, len(seed.Entities))
	for _, se := range seed.Entities {
		if strings.TrimSpace(se.Name) == "" {
			return nil, fmt.Errorf("seed entity %s: empty name", se.ID)
		}
		e := r.AddEntity(se.Entity)
		for _, name := range se.Departments {
			r.AddDepartment(e.ID, name)
		}
		for _, name := range se.Groups {
			r.AddGroup(e.ID, name)
		}
		for _, u := range se.Users {
			u.EntityID = e.ID
			r.AddUser(u)
		}
		out = append(out, e)
	}
	return out, nil
}

// ----------------------------------------------------------------------------
// core.Repository
// ----------------------------------------------------------------------------

// LoadEntity returns a copy of the entity and its organization.
func (r *Repository) LoadEntity(_ context.Context, entityID uuid.UUID) (*core.EntitySnapshot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entities[entityID]
	if !ok {
		return nil, core.ErrEntityNotFound
	}

	snap := &core.EntitySnapshot{Entity: e}
	for _, u := range r.users {
		if u.EntityID == entityID {
			snap.Users = append(snap.Users, u)
		}
	}
	for _, d := range r.departments {
		if d.EntityID == entityID {
			snap.Departments = append(snap.Departments, d)
		}
	}
	for _, g := range r.groups {
		if g.EntityID == entityID {
			snap.Groups = append(snap.Groups, g)
		}
	}
	return snap, nil
}

// CheckUser reports a taken e-mail address.
func (r *Repository) CheckUser(_ context.Context, u *core.User) ([]core.FieldError, error) {
	if u.Email == "" {
		return nil, nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.emailTaken(u.Email) {
		return []core.FieldError{{Field: "email", Value: u.Email, Message: "is already taken"}}, nil
	}
	return nil, nil
}

// CheckDocument reports a document number already registered for the type.
func (r *Repository) CheckDocument(_ context.Context, d *core.Document) ([]core.FieldError, error) {
	if d.Number == "" {
		return nil, nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.documentTaken(d.Type, d.Number) {
		return []core.FieldError{{Field: "number", Value: d.Number, Message: "is already registered"}}, nil
	}
	return nil, nil
}

// CheckDepartment reports a department name already used in the entity.
func (r *Repository) CheckDepartment(_ context.Context, d *core.Department) ([]core.FieldError, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.departmentTaken(d.EntityID, d.Name) {
		return []core.FieldError{{Field: "name", Value: d.Name, Message: "is already taken"}}, nil
	}
	return nil, nil
}

// InTx runs fn against a staging transaction. The staged writes are applied
// under the write lock only when fn succeeds and no unique rule is broken.
func (r *Repository) InTx(ctx context.Context, fn func(ctx context.Context, tx core.Tx) error) error {
	tx := &memTx{repo: r}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	return r.apply(tx)
}

// RecordAudit appends an audit entry.
func (r *Repository) RecordAudit(_ context.Context, e core.AuditEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.audit = append(r.audit, e)
	return nil
}

// ----------------------------------------------------------------------------
// Accessors
// ----------------------------------------------------------------------------

// Users returns the users of entityID.
func (r *Repository) Users(entityID uuid.UUID) []core.User {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []core.User
	for _, u := range r.users {
		if u.EntityID == entityID {
			out = append(out, u)
		}
	}
	return out
}

// Departments returns the departments of entityID.
func (r *Repository) Departments(entityID uuid.UUID) []core.Department {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []core.Department
	for _, d := range r.departments {
		if d.EntityID == entityID {
			out = append(out, d)
		}
	}
	return out
}

// Documents returns every stored document.
func (r *Repository) Documents() []core.Document {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.documents)
}

// UserAclGroups returns the ACL group names linked to userID.
func (r *Repository) UserAclGroups(userID uuid.UUID) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var names []string
	for _, id := range r.userAcl[userID] {
		for _, g := range r.aclGroups {
			if g.ID == id {
				names = append(names, g.Name)
			}
		}
	}
	return names
}

// AuditEntries returns the recorded audit entries in order.
func (r *Repository) AuditEntries() []core.AuditEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.audit)
}

// ----------------------------------------------------------------------------
// Transactions
// ----------------------------------------------------------------------------

// memTx collects the writes of one transaction.
type memTx struct {
	repo        *Repository
	users       []core.User
	documents   []core.Document
	departments []core.Department
	userAcl     map[uuid.UUID][]uuid.UUID
	docLinks    map[uuid.UUID]uuid.UUID
	deptLinks   map[uuid.UUID]uuid.UUID
}

func (tx *memTx) fault(op string) error {
	tx.repo.mu.RLock()
	defer tx.repo.mu.RUnlock()
	return tx.repo.faults[op]
}

func (tx *memTx) CreateUser(_ context.Context, u *core.User) error {
	if err := tx.fault("CreateUser"); err != nil {
		return err
	}
	u.ID = uuid.New()
	stored := *u
	stored.Password = ""
	tx.users = append(tx.users, stored)
	return nil
}

func (tx *memTx) FindAclGroupsByName(_ context.Context, names []string) ([]core.AclGroup, error) {
	if err := tx.fault("FindAclGroupsByName"); err != nil {
		return nil, err
	}
	tx.repo.mu.RLock()
	defer tx.repo.mu.RUnlock()
	var out []core.AclGroup
	for _, g := range tx.repo.aclGroups {
		if slices.Contains(names, g.Name) {
			out = append(out, g)
		}
	}
	return out, nil
}

func (tx *memTx) LinkUserAclGroups(_ context.Context, userID uuid.UUID, groups []core.AclGroup) error {
	if err := tx.fault("LinkUserAclGroups"); err != nil {
		return err
	}
	if tx.userAcl == nil {
		tx.userAcl = make(map[uuid.UUID][]uuid.UUID)
	}
	for _, g := range groups {
		tx.userAcl[userID] = append(tx.userAcl[userID], g.ID)
	}
	return nil
}

func (tx *memTx) CreateDocument(_ context.Context, d *core.Document) error {
	if err := tx.fault("CreateDocument"); err != nil {
		return err
	}
	d.ID = uuid.New()
	tx.documents = append(tx.documents, *d)
	return nil
}

func (tx *memTx) LinkDocumentToUser(_ context.Context, documentID, userID uuid.UUID) error {
	if err := tx.fault("LinkDocumentToUser"); err != nil {
		return err
	}
	if tx.docLinks == nil {
		tx.docLinks = make(map[uuid.UUID]uuid.UUID)
	}
	tx.docLinks[documentID] = userID
	return nil
}

func (tx *memTx) CreateDepartment(_ context.Context, d *core.Department) error {
	if err := tx.fault("CreateDepartment"); err != nil {
		return err
	}
	d.ID = uuid.New()
	tx.departments = append(tx.departments, *d)
	return nil
}

func (tx *memTx) LinkUserToDepartment(_ context.Context, userID, departmentID uuid.UUID) error {
	if err := tx.fault("LinkUserToDepartment"); err != nil {
		return err
	}
	if tx.deptLinks == nil {
		tx.deptLinks = make(map[uuid.UUID]uuid.UUID)
	}
	tx.deptLinks[userID] = departmentID
	return nil
}

// apply commits tx. It enforces the same unique rules as the database schema.
func (r *Repository) apply(tx *memTx) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, u := range tx.users {
		if u.Email != "" && r.emailTaken(u.Email) {
			return fmt.Errorf("duplicate key value violates unique constraint \"users_email_key\": %s", u.Email)
		}
	}
	for _, d := range tx.documents {
		if r.documentTaken(d.Type, d.Number) {
			return fmt.Errorf("duplicate key value violates unique constraint \"documents_type_number_key\": %s", d.Number)
		}
	}
	for _, d := range tx.departments {
		if r.departmentTaken(d.EntityID, d.Name) {
			return fmt.Errorf("duplicate key value violates unique constraint \"departments_entity_name_key\": %s", d.Name)
		}
	}

	for _, u := range tx.users {
		if deptID, ok := tx.deptLinks[u.ID]; ok {
			id := deptID
			u.DepartmentID = &id
		}
		u.Department = nil
		r.users = append(r.users, u)
	}
	for _, d := range tx.documents {
		if userID, ok := tx.docLinks[d.ID]; ok {
			id := userID
			d.UserID = &id
		}
		r.documents = append(r.documents, d)
	}
	r.departments = append(r.departments, tx.departments...)
	for userID, ids := range tx.userAcl {
		r.userAcl[userID] = append(r.userAcl[userID], ids...)
	}
	return nil
}

// The helpers below expect r.mu to be held.

func (r *Repository) emailTaken(email string) bool {
	for _, u := range r.users {
		if strings.EqualFold(u.Email, email) {
			return true
		}
	}
	return false
}

func (r *Repository) documentTaken(docType, number string) bool {
	for _, d := range r.documents {
		if d.Type == docType && d.Number == number {
			return true
		}
	}
	return false
}

func (r *Repository) departmentTaken(entityID uuid.UUID, name string) bool {
	for _, d := range r.departments {
		if d.EntityID == entityID && strings.EqualFold(strings.TrimSpace(d.Name), strings.TrimSpace(name)) {
			return true
		}
	}
	return false
}
