package core

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
)

// RawRow is one decoded data row keyed by column key. Values are string,
// float64 (numeric cells) or time.Time. A RawRow is never modified.
type RawRow map[string]any

// NormalizedRow is a RawRow with trimmed strings, dates parsed into *Date
// (nil when blank or unparseable) and coded fields expanded.
type NormalizedRow map[string]any

// DateLayout is the calendar date layout used for JSON and default parsing.
const DateLayout = "2006-01-02"

// Date is a calendar date without a time of day.
type Date struct {
	time.Time
}

// NewDate returns the date y-m-d in UTC.
func NewDate(y int, m time.Month, d int) Date {
	return Date{time.Date(y, m, d, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates t to its calendar date.
func DateOf(t time.Time) Date {
	return NewDate(t.Year(), t.Month(), t.Day())
}

func (d Date) String() string {
	return d.Format(DateLayout)
}

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return err
	}
	d.Time = t
	return nil
}

// Contract types of an entity.
const (
	ContractTypeCorporate = "corporate"
	ContractTypeAgency    = "agency"
)

// Entity is the company an import runs against.
type Entity struct {
	ID           uuid.UUID `json:"id"`
	Name         string    `json:"name"`
	ContractType string    `json:"contractType,omitempty"`
}

// RoleEmployee is the role assigned to every imported user.
const RoleEmployee = "employee"

// User is a user of an entity. Before persistence it is a candidate and has
// a zero ID.
type User struct {
	ID           uuid.UUID   `json:"id"`
	EntityID     uuid.UUID   `json:"entityId"`
	LastName     string      `json:"lastName" validate:"required,max=255"`
	FirstName    string      `json:"firstName" validate:"required,max=255"`
	MiddleName   string      `json:"middleName,omitempty" validate:"max=255"`
	Email        string      `json:"email,omitempty" validate:"omitempty,email,max=255"`
	Phone        string      `json:"phone,omitempty" validate:"omitempty,max=32"`
	Birthday     *Date       `json:"birthday,omitempty" validate:"-"`
	Role         string      `json:"role" validate:"required"`
	Password     string      `json:"-" validate:"-"`
	CreatedBy    string      `json:"createdBy,omitempty"`
	DepartmentID *uuid.UUID  `json:"departmentId,omitempty"`
	GroupID      *uuid.UUID  `json:"groupId,omitempty"`
	Department   *Department `json:"department,omitempty" validate:"-"`
	AclGroups    []string    `json:"aclGroups,omitempty"`
}

// FullName joins last, first and middle name.
func (u *User) FullName() string {
	return joinNonEmpty(u.LastName, u.FirstName, u.MiddleName)
}

// Document types.
const (
	DocTypePassport        = "passport"
	DocTypeForeignPassport = "foreign_passport"
)

// Document is an identity document attached to a user. Names come in a local
// (*Loc) and an international (*Int) spelling.
type Document struct {
	ID             uuid.UUID  `json:"id"`
	UserID         *uuid.UUID `json:"userId,omitempty"`
	Type           string     `json:"type" validate:"required,oneof=passport foreign_passport"`
	Number         string     `json:"number" validate:"required,max=64"`
	Gender         string     `json:"gender,omitempty" validate:"omitempty,oneof=m f"`
	Citizenship    string     `json:"citizenship,omitempty" validate:"max=64"`
	IssueDate      *Date      `json:"issueDate,omitempty" validate:"-"`
	ExpirationDate *Date      `json:"expirationDate,omitempty" validate:"-"`
	IsActive       bool       `json:"isActive"`
	LastNameLoc    string     `json:"lastName_loc,omitempty" validate:"max=255"`
	FirstNameLoc   string     `json:"firstName_loc,omitempty" validate:"max=255"`
	MiddleNameLoc  string     `json:"middleName_loc,omitempty" validate:"max=255"`
	LastNameInt    string     `json:"lastName_int,omitempty" validate:"max=255"`
	FirstNameInt   string     `json:"firstName_int,omitempty" validate:"max=255"`
	MiddleNameInt  string     `json:"middleName_int,omitempty" validate:"max=255"`
}

// Department is a department of an entity. A department created during an
// import has a zero ID until it is persisted.
type Department struct {
	ID       uuid.UUID `json:"id"`
	EntityID uuid.UUID `json:"entityId"`
	Name     string    `json:"name" validate:"required,max=255"`
}

// Group is a booking group of an entity. Imports never create groups.
type Group struct {
	ID       uuid.UUID `json:"id"`
	EntityID uuid.UUID `json:"entityId"`
	Name     string    `json:"name"`
}

// AclGroup is a named permission set users are linked to.
type AclGroup struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

// ACL group names granted by permission columns.
const (
	AclOrderCreator               = "ORDER_CREATOR"
	AclOtherEmployeesOrderCreator = "OTHER_EMPLOYEES_ORDER_CREATOR"
	AclFinancialReportViewer      = "FINANCIAL_REPORT_VIEWER"
)

// EntitySnapshot is everything an import needs to know about an entity,
// loaded once per batch.
type EntitySnapshot struct {
	Entity      Entity       `json:"entity"`
	Users       []User       `json:"users"`
	Departments []Department `json:"departments"`
	Groups      []Group      `json:"groups"`
}

// FieldError is a single failed check on a field.
type FieldError struct {
	Field   string `json:"field"`
	Value   string `json:"value,omitempty"`
	Message string `json:"message"`
}

// ErrorDetail is a record-scoped error as reported to the client.
type ErrorDetail struct {
	Name    string       `json:"name"`
	Message string       `json:"message"`
	Code    string       `json:"code,omitempty"`
	Fields  []FieldError `json:"fields,omitempty"`
}

func (e ErrorDetail) Error() string {
	if len(e.Fields) == 0 {
		return e.Name + ": " + e.Message
	}
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+" "+f.Message)
	}
	return e.Name + ": " + e.Message + " (" + strings.Join(parts, "; ") + ")"
}

// RecordResult is the outcome of one row.
type RecordResult struct {
	Index                     int           `json:"index"`
	ParsedData                NormalizedRow `json:"parsedData"`
	CreatedUser               *User         `json:"createdUser"`
	DuplicatingUser           *User         `json:"duplicatingUser"`
	GroupSpecified            bool          `json:"groupSpecified"`
	FoundGroup                *Group        `json:"foundGroup"`
	DepartmentSpecified       bool          `json:"departmentSpecified"`
	FoundDepartment           *Department   `json:"foundDepartment"`
	CreatedDepartment         *Department   `json:"createdDepartment"`
	DocumentSpecified         bool          `json:"documentSpecified"`
	CreatedDocument           *Document     `json:"createdDocument"`
	UserValidationError       *ErrorDetail  `json:"userValidationError"`
	DocumentValidationError   *ErrorDetail  `json:"documentValidationError"`
	DepartmentValidationError *ErrorDetail  `json:"departmentValidationError"`
	Errors                    []ErrorDetail `json:"errors"`
}

// Failed reports whether the row did not produce a user.
func (r *RecordResult) Failed() bool {
	return r.CreatedUser == nil
}

// BatchResult is the outcome of one run over an upload.
type BatchResult struct {
	FileName      string         `json:"fileName,omitempty"`
	FailedNumber  int            `json:"failedNumber"`
	RecordResults []RecordResult `json:"recordResults"`
}

func joinNonEmpty(parts ...string) string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, " ")
}
