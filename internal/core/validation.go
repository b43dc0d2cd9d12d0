package core

// validation.go checks candidate records before they are accepted.
//
// Validation happens at two levels:
//  1. Structural rules declared as validate tags on User, Document and
//     Department, enforced with go-playground/validator
//  2. Storage rules (e-mail, document number and department name must be
//     free) asked of a UniquenessChecker
//
// The user, document and department aspects are independent and run
// concurrently; the validator waits for all three before returning.

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"golang.org/x/sync/errgroup"
)

// UniquenessChecker reports storage-level conflicts for a candidate. An empty
// result means no conflict.
type UniquenessChecker interface {
	CheckUser(ctx context.Context, u *User) ([]FieldError, error)
	CheckDocument(ctx context.Context, d *Document) ([]FieldError, error)
	CheckDepartment(ctx context.Context, d *Department) ([]FieldError, error)
}

// Validation holds the per-aspect outcome for one record. A nil field means
// the aspect passed or was not checked.
type Validation struct {
	User       *ErrorDetail
	Document   *ErrorDetail
	Department *ErrorDetail
}

// OK reports whether every checked aspect passed.
func (v Validation) OK() bool {
	return v.User == nil && v.Document == nil && v.Department == nil
}

// RecordValidator validates candidates. It has no side effects.
type RecordValidator struct {
	validate *validator.Validate
	checker  UniquenessChecker
}

// NewRecordValidator returns a validator. checker may be nil to skip storage
// rules.
func NewRecordValidator(checker UniquenessChecker) *RecordValidator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(jsonFieldName)
	v.RegisterStructValidation(validateDocumentStruct, Document{})

	return &RecordValidator{validate: v, checker: checker}
}

// Validate checks the aspects that are non-nil. The returned error is a
// storage failure, not a validation failure.
func (rv *RecordValidator) Validate(ctx context.Context, user *User, doc *Document, dept *Department) (Validation, error) {
	var (
		out Validation
		g   errgroup.Group
	)

	if user != nil {
		g.Go(func() error {
			detail, err := rv.check(ctx, user, func(ctx context.Context) ([]FieldError, error) {
				return rv.checker.CheckUser(ctx, user)
			})
			out.User = detail
			return err
		})
	}
	if doc != nil {
		g.Go(func() error {
			detail, err := rv.check(ctx, doc, func(ctx context.Context) ([]FieldError, error) {
				return rv.checker.CheckDocument(ctx, doc)
			})
			out.Document = detail
			return err
		})
	}
	if dept != nil {
		g.Go(func() error {
			detail, err := rv.check(ctx, dept, func(ctx context.Context) ([]FieldError, error) {
				return rv.checker.CheckDepartment(ctx, dept)
			})
			out.Department = detail
			return err
		})
	}

	err := g.Wait()
	return out, err
}

// check runs structural rules first and storage rules only when those pass.
func (rv *RecordValidator) check(ctx context.Context, v any, unique func(context.Context) ([]FieldError, error)) (*ErrorDetail, error) {
	if fields := rv.Struct(v); len(fields) > 0 {
		return validationDetail(fields), nil
	}
	if rv.checker == nil {
		return nil, nil
	}
	fields, err := unique(ctx)
	if err != nil {
		return nil, fmt.Errorf("uniqueness check: %w", err)
	}
	if len(fields) > 0 {
		return validationDetail(fields), nil
	}
	return nil, nil
}

// Struct applies the structural rules to v and returns the failed fields.
func (rv *RecordValidator) Struct(v any) []FieldError {
	err := rv.validate.Struct(v)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []FieldError{{Message: err.Error()}}
	}

	out := make([]FieldError, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, FieldError{
			Field:   fe.Field(),
			Value:   valueString(fe.Value()),
			Message: fieldMessage(fe),
		})
	}
	return out
}

func validationDetail(fields []FieldError) *ErrorDetail {
	return &ErrorDetail{
		Name:    ErrNameValidation,
		Message: "validation failed",
		Code:    "IMP004",
		Fields:  fields,
	}
}

func validateDocumentStruct(sl validator.StructLevel) {
	d := sl.Current().Interface().(Document)

	if d.Type == DocTypeForeignPassport {
		if strings.TrimSpace(d.LastNameInt) == "" {
			sl.ReportError(d.LastNameInt, "lastName_int", "LastNameInt", "required", "")
		}
		if strings.TrimSpace(d.FirstNameInt) == "" {
			sl.ReportError(d.FirstNameInt, "firstName_int", "FirstNameInt", "required", "")
		}
	} else {
		if strings.TrimSpace(d.LastNameLoc) == "" {
			sl.ReportError(d.LastNameLoc, "lastName_loc", "LastNameLoc", "required", "")
		}
		if strings.TrimSpace(d.FirstNameLoc) == "" {
			sl.ReportError(d.FirstNameLoc, "firstName_loc", "FirstNameLoc", "required", "")
		}
	}

	if d.IssueDate != nil && d.ExpirationDate != nil && !d.ExpirationDate.After(d.IssueDate.Time) {
		sl.ReportError(d.ExpirationDate, "expirationDate", "ExpirationDate", "after_issue", "")
	}
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid e-mail address"
	case "oneof":
		return "must be one of: " + fe.Param()
	case "max":
		return "must be at most " + fe.Param() + " characters"
	case "after_issue":
		return "must be after the issue date"
	default:
		return "failed " + fe.Tag() + " check"
	}
}

func jsonFieldName(f reflect.StructField) string {
	name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
	if name == "-" {
		return ""
	}
	if name == "" {
		return f.Name
	}
	return name
}

func valueString(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case *Date:
		if val == nil {
			return ""
		}
		return val.String()
	case fmt.Stringer:
		return val.String()
	default:
		return fmt.Sprint(val)
	}
}
