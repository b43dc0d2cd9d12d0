package core

// engine.go runs the import pipeline over a decoded upload.
//
// Rows are processed one at a time in input order. Each row ends in exactly
// one RecordResult; nothing a single row does can stop the batch. In save mode
// the writes of an accepted row happen in one storage transaction, so a row
// either persists completely or not at all.

import (
	"context"
	"fmt"
	"time"

	"github.com/JonMunkholm/staffimport/internal/logging"
	"github.com/JonMunkholm/staffimport/internal/translit"
	"github.com/google/uuid"
)

// RunOptions selects what a run does.
type RunOptions struct {
	EntityID uuid.UUID
	Actor    string // login of the user running the import
	FileName string

	// Save persists accepted rows. Without it the run is a preview.
	Save bool

	// Selected restricts the run to these row indices. Nil means all rows.
	// Unknown and repeated indices are ignored; input order is kept.
	Selected []int
}

func (o RunOptions) mode() string {
	if o.Save {
		return "save"
	}
	return "preview"
}

// Engine turns rows into a BatchResult.
type Engine struct {
	repo       Repository
	normalizer *RecordNormalizer
	extractor  *FieldExtractor
	matcher    *DuplicateMatcher
	validator  *RecordValidator
	translit   *translit.Translator
	password   func() (string, error)
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithDateLayout sets the layout for date cells given as text.
func WithDateLayout(layout string) EngineOption {
	return func(e *Engine) { e.normalizer = NewRecordNormalizer(layout) }
}

// WithAffirmative sets the word that switches a permission on.
func WithAffirmative(word string) EngineOption {
	return func(e *Engine) { e.extractor = NewFieldExtractor(word) }
}

// WithPasswordGenerator replaces GeneratePassword.
func WithPasswordGenerator(fn func() (string, error)) EngineOption {
	return func(e *Engine) { e.password = fn }
}

// WithTranslator replaces the translator used for international names.
func WithTranslator(t *translit.Translator) EngineOption {
	return func(e *Engine) { e.translit = t }
}

// NewEngine returns an Engine backed by repo.
func NewEngine(repo Repository, opts ...EngineOption) *Engine {
	e := &Engine{
		repo:       repo,
		normalizer: NewRecordNormalizer(DateLayout),
		extractor:  NewFieldExtractor(DefaultAffirmative),
		matcher:    NewDuplicateMatcher(),
		validator:  NewRecordValidator(repo),
		translit:   translit.RuEnTranslator(),
		password:   GeneratePassword,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run processes rows and returns one RecordResult per selected row. The only
// errors returned are batch-level: the entity could not be loaded.
func (e *Engine) Run(ctx context.Context, rows []RawRow, opts RunOptions) (*BatchResult, error) {
	start := time.Now()
	mode := opts.mode()
	logger := logging.WithFields(ctx, "entity_id", opts.EntityID, "mode", mode, "file", opts.FileName)

	snap, err := e.repo.LoadEntity(ctx, opts.EntityID)
	if err != nil {
		getMetrics().batches.WithLabelValues(mode, "error").Inc()
		return nil, fmt.Errorf("load entity %s: %w", opts.EntityID, err)
	}
	octx := NewOrganizationContext(snap)

	indices := selectRows(len(rows), opts.Selected)
	result := &BatchResult{
		FileName:      opts.FileName,
		RecordResults: make([]RecordResult, 0, len(indices)),
	}

	for _, i := range indices {
		rr := e.processRecord(ctx, octx, i, rows[i], opts)
		if rr.Failed() {
			result.FailedNumber++
			logger.Debug("record rejected", "index", i, "errors", len(rr.Errors))
		}
		getMetrics().records.WithLabelValues(mode, recordOutcome(&rr)).Inc()
		result.RecordResults = append(result.RecordResults, rr)
	}

	getMetrics().batches.WithLabelValues(mode, "ok").Inc()
	getMetrics().batchDuration.WithLabelValues(mode).Observe(time.Since(start).Seconds())

	logger.Info("import run finished",
		"records", len(result.RecordResults),
		"failed", result.FailedNumber,
		"departments_created", len(octx.CreatedDepartments()),
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return result, nil
}

func (e *Engine) processRecord(ctx context.Context, octx *OrganizationContext, index int, raw RawRow, opts RunOptions) (rr RecordResult) {
	rr = RecordResult{Index: index, Errors: []ErrorDetail{}}

	defer func() {
		if p := recover(); p != nil {
			rr.CreatedUser = nil
			rr.Errors = append(rr.Errors, unexpectedErrorDetail(fmt.Errorf("panic: %v", p)))
			logging.FromContext(ctx).Error("record panicked", "index", index, "panic", p)
		}
	}()

	norm := e.normalizer.Normalize(raw)
	rr.ParsedData = norm

	userFields := e.extractor.UserFields(norm)
	user, err := e.buildUser(octx.Entity(), userFields, e.extractor.PermissionFields(norm), opts.Actor)
	if err != nil {
		rr.Errors = append(rr.Errors, unexpectedErrorDetail(err))
		return rr
	}

	doc := e.buildDocument(e.extractor.DocumentFields(norm))
	rr.DocumentSpecified = doc != nil

	res := e.matcher.Resolve(octx, user, cellString(userFields[ColDepartment]), cellString(userFields[ColGroup]))
	rr.DepartmentSpecified = res.DepartmentSpecified
	rr.FoundDepartment = res.FoundDepartment
	rr.GroupSpecified = res.GroupSpecified
	rr.FoundGroup = res.FoundGroup
	rr.Errors = append(rr.Errors, res.Errors...)

	// A duplicate ends the record's checks.
	if res.DuplicatingUser != nil {
		rr.DuplicatingUser = res.DuplicatingUser
		rr.Errors = append(rr.Errors, duplicatingUserError(res.DuplicatingUser))
		return rr
	}

	v, err := e.validator.Validate(ctx, user, doc, res.NewDepartment)
	rr.UserValidationError = v.User
	rr.DocumentValidationError = v.Document
	rr.DepartmentValidationError = v.Department
	if err != nil {
		rr.Errors = append(rr.Errors, unexpectedErrorDetail(err))
		return rr
	}

	if len(rr.Errors) > 0 || !v.OK() {
		if len(rr.Errors) == 0 {
			rr.Errors = append(rr.Errors, checksNotPassedError())
		}
		return rr
	}

	if d := res.FoundDepartment; d != nil {
		user.Department = d
		if d.ID != uuid.Nil {
			id := d.ID
			user.DepartmentID = &id
		}
	}
	if g := res.FoundGroup; g != nil {
		id := g.ID
		user.GroupID = &id
	}
	if res.NewDepartment != nil {
		user.Department = res.NewDepartment
	}

	if opts.Save {
		if err := e.persist(ctx, user, doc, res.NewDepartment); err != nil {
			if res.NewDepartment != nil {
				res.NewDepartment.ID = uuid.Nil
			}
			rr.Errors = append(rr.Errors, persistenceErrorDetail(err))
			logging.FromContext(ctx).Warn("record not saved", "index", index, "error", err)
			return rr
		}
	}

	if res.NewDepartment != nil {
		octx.RegisterCreatedDepartment(res.NewDepartment)
		rr.CreatedDepartment = res.NewDepartment
	}
	rr.CreatedDocument = doc
	rr.CreatedUser = user

	return rr
}

// persist writes an accepted record: user, ACL links, document, department.
func (e *Engine) persist(ctx context.Context, user *User, doc *Document, dept *Department) error {
	return e.repo.InTx(ctx, func(ctx context.Context, tx Tx) error {
		if err := tx.CreateUser(ctx, user); err != nil {
			return &PersistenceError{Op: "create user", Err: err}
		}

		if len(user.AclGroups) > 0 {
			groups, err := tx.FindAclGroupsByName(ctx, user.AclGroups)
			if err != nil {
				return &PersistenceError{Op: "find acl groups", Err: err}
			}
			if err := tx.LinkUserAclGroups(ctx, user.ID, groups); err != nil {
				return &PersistenceError{Op: "link acl groups", Err: err}
			}
		}

		if doc != nil {
			if err := tx.CreateDocument(ctx, doc); err != nil {
				return &PersistenceError{Op: "create document", Err: err}
			}
			if err := tx.LinkDocumentToUser(ctx, doc.ID, user.ID); err != nil {
				return &PersistenceError{Op: "link document", Err: err}
			}
			userID := user.ID
			doc.UserID = &userID
		}

		if dept != nil {
			if err := tx.CreateDepartment(ctx, dept); err != nil {
				return &PersistenceError{Op: "create department", Err: err}
			}
			if err := tx.LinkUserToDepartment(ctx, user.ID, dept.ID); err != nil {
				return &PersistenceError{Op: "link department", Err: err}
			}
			deptID := dept.ID
			user.DepartmentID = &deptID
		}

		return nil
	})
}

func (e *Engine) buildUser(entity Entity, fields map[string]any, perms map[string]bool, actor string) (*User, error) {
	pw, err := e.password()
	if err != nil {
		return nil, fmt.Errorf("generate password: %w", err)
	}

	return &User{
		EntityID:   entity.ID,
		LastName:   cellString(fields[ColLastName]),
		FirstName:  cellString(fields[ColFirstName]),
		MiddleName: cellString(fields[ColMiddleName]),
		Email:      cellString(fields[ColEmail]),
		Phone:      cellString(fields[ColPhone]),
		Birthday:   cellDate(fields[ColBirthday]),
		Role:       RoleEmployee,
		Password:   pw,
		CreatedBy:  actor,
		AclGroups:  aclGroupsFor(perms, entity.ContractType),
	}, nil
}

// buildDocument returns nil when the row has no document data.
func (e *Engine) buildDocument(fields map[string]any) *Document {
	if !hasValues(fields) {
		return nil
	}

	d := &Document{
		Type:           cellString(fields["type"]),
		Number:         cellString(fields["number"]),
		Gender:         cellString(fields["gender"]),
		Citizenship:    cellString(fields["citizenship"]),
		IssueDate:      cellDate(fields["issueDate"]),
		ExpirationDate: cellDate(fields["expirationDate"]),
		IsActive:       true,
	}

	last := cellString(fields["lastName"])
	first := cellString(fields["firstName"])
	middle := cellString(fields["middleName"])

	if d.Type == DocTypeForeignPassport {
		d.LastNameInt, d.FirstNameInt, d.MiddleNameInt = last, first, middle
	} else {
		d.LastNameLoc, d.FirstNameLoc, d.MiddleNameLoc = last, first, middle
		d.LastNameInt = e.translit.Transliterate(last)
		d.FirstNameInt = e.translit.Transliterate(first)
		d.MiddleNameInt = e.translit.Transliterate(middle)
	}

	return d
}

// aclGroupsFor maps permission flags to ACL group names. Ordering for other
// employees is only granted to corporate clients.
func aclGroupsFor(perms map[string]bool, contractType string) []string {
	var names []string
	if perms[PermCanOrder] {
		names = append(names, AclOrderCreator)
	}
	if perms[PermCanOrderForOthers] && contractType == ContractTypeCorporate {
		names = append(names, AclOtherEmployeesOrderCreator)
	}
	if perms[PermCanViewFinReports] {
		names = append(names, AclFinancialReportViewer)
	}
	return names
}

func selectRows(n int, selected []int) []int {
	if selected == nil {
		out := make([]int, n)
		for i := range out {
			out[i] = i
		}
		return out
	}

	want := make(map[int]bool, len(selected))
	for _, i := range selected {
		want[i] = true
	}
	out := make([]int, 0, len(want))
	for i := 0; i < n; i++ {
		if want[i] {
			out = append(out, i)
		}
	}
	return out
}

func recordOutcome(rr *RecordResult) string {
	switch {
	case !rr.Failed():
		return "accepted"
	case rr.DuplicatingUser != nil:
		return "duplicate"
	default:
		return "rejected"
	}
}
