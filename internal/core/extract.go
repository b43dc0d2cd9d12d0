package core

import (
	"strings"

	"golang.org/x/text/cases"
)

// DefaultAffirmative is the cell value that switches a permission on.
const DefaultAffirmative = "да"

// FieldExtractor projects a normalized row onto its user, document and
// permission parts. All methods are pure.
type FieldExtractor struct {
	affirmative string
}

// NewFieldExtractor returns an extractor treating affirmative (compared
// case-insensitively) as a true permission value.
func NewFieldExtractor(affirmative string) *FieldExtractor {
	if strings.TrimSpace(affirmative) == "" {
		affirmative = DefaultAffirmative
	}
	return &FieldExtractor{affirmative: cases.Fold().String(strings.TrimSpace(affirmative))}
}

// UserFields returns every field that is neither a document nor a permission
// field, keys unchanged.
func (e *FieldExtractor) UserFields(row NormalizedRow) map[string]any {
	out := make(map[string]any)
	for k, v := range row {
		if isDocKey(k) || isPermKey(k) {
			continue
		}
		out[k] = v
	}
	return out
}

// DocumentFields returns the document fields with DocPrefix stripped.
func (e *FieldExtractor) DocumentFields(row NormalizedRow) map[string]any {
	out := make(map[string]any)
	for k, v := range row {
		if isDocKey(k) {
			out[strings.TrimPrefix(k, DocPrefix)] = v
		}
	}
	return out
}

// PermissionFields returns the permission flags with PermPrefix stripped. A
// flag is true only when its trimmed value equals the affirmative word.
func (e *FieldExtractor) PermissionFields(row NormalizedRow) map[string]bool {
	out := make(map[string]bool)
	for k, v := range row {
		if !isPermKey(k) {
			continue
		}
		out[strings.TrimPrefix(k, PermPrefix)] = e.isAffirmative(v)
	}
	return out
}

func (e *FieldExtractor) isAffirmative(v any) bool {
	s := cellString(v)
	if s == "" {
		return false
	}
	return cases.Fold().String(s) == e.affirmative
}

// hasValues reports whether any field carries a non-empty value.
func hasValues(fields map[string]any) bool {
	for _, v := range fields {
		if cellString(v) != "" {
			return true
		}
	}
	return false
}
