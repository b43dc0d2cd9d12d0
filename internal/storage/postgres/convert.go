package postgres

// convert.go maps domain values to pgtype values and back.
//
// Empty strings, nil dates and nil ids become invalid pgtype values so the
// database stores NULL. Reading NULL back yields the zero value again.

import (
	"strings"

	"github.com/JonMunkholm/staffimport/internal/core"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

// toPgText converts a string to pgtype.Text.
// Returns invalid if the string is empty or only whitespace.
func toPgText(s string) pgtype.Text {
	s = strings.TrimSpace(s)
	if s == "" {
		return pgtype.Text{Valid: false}
	}
	return pgtype.Text{String: s, Valid: true}
}

func fromPgText(t pgtype.Text) string {
	if !t.Valid {
		return ""
	}
	return t.String
}

// toPgDate converts an optional calendar date to pgtype.Date.
func toPgDate(d *core.Date) pgtype.Date {
	if d == nil || d.IsZero() {
		return pgtype.Date{Valid: false}
	}
	return pgtype.Date{Time: d.Time, Valid: true}
}

func fromPgDate(d pgtype.Date) *core.Date {
	if !d.Valid {
		return nil
	}
	out := core.DateOf(d.Time)
	return &out
}

// toPgUUID converts an optional id to pgtype.UUID.
// Returns invalid for nil and for the zero UUID.
func toPgUUID(id *uuid.UUID) pgtype.UUID {
	if id == nil || *id == uuid.Nil {
		return pgtype.UUID{Valid: false}
	}
	return pgtype.UUID{Bytes: *id, Valid: true}
}

func fromPgUUID(u pgtype.UUID) *uuid.UUID {
	if !u.Valid {
		return nil
	}
	id := uuid.UUID(u.Bytes)
	return &id
}
