package core

import (
	"errors"
	"fmt"
)

// Batch-level failures.
var (
	// ErrEntityNotFound aborts a run whose entity does not exist.
	ErrEntityNotFound = errors.New("entity not found")

	// ErrEmptySelection rejects a commit without selected rows.
	ErrEmptySelection = errors.New("no records selected for import")
)

// Session failures.
var (
	ErrSessionNotFound  = errors.New("import not found")
	ErrAlreadyCommitted = errors.New("import already committed")
	ErrSessionBusy      = errors.New("import commit already in progress")
)

// ParseError reports an upload that could not be decoded. It aborts the batch
// before any row is processed.
type ParseError struct {
	FileName string
	Err      error
}

func (e *ParseError) Error() string {
	if e.FileName == "" {
		return fmt.Sprintf("parse upload: %v", e.Err)
	}
	return fmt.Sprintf("parse upload %q: %v", e.FileName, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// PersistenceError reports a failed write while saving one record.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// Names of record-scoped errors.
const (
	ErrNameDuplicatingUser = "EmployeeImport.DuplicatingUser"
	ErrNameGroupNotFound   = "EmployeeImport.GroupNotFound"
	ErrNameChecksNotPassed = "EmployeeImport.ChecksNotPassed"
	ErrNameCantSaveRecord  = "EmployeeImport.CantSaveRecord"
	ErrNameUnexpected      = "EmployeeImport.UnexpectedError"
	ErrNameValidation      = "ValidationError"
)

func duplicatingUserError(u *User) ErrorDetail {
	return ErrorDetail{
		Name:    ErrNameDuplicatingUser,
		Message: fmt.Sprintf("user %q already exists", u.FullName()),
	}
}

func groupNotFoundError(name string) ErrorDetail {
	return ErrorDetail{
		Name:    ErrNameGroupNotFound,
		Message: fmt.Sprintf("group %q not found", name),
	}
}

func checksNotPassedError() ErrorDetail {
	return ErrorDetail{
		Name:    ErrNameChecksNotPassed,
		Message: "record did not pass validation",
	}
}

func persistenceErrorDetail(err error) ErrorDetail {
	return ErrorDetail{
		Name:    ErrNameCantSaveRecord,
		Message: err.Error(),
		Code:    MapError(err).Code,
	}
}

func unexpectedErrorDetail(err error) ErrorDetail {
	return ErrorDetail{
		Name:    ErrNameUnexpected,
		Message: err.Error(),
		Code:    MapError(err).Code,
	}
}
