package core

// error_messages.go maps technical errors to messages for the people running
// imports. Each message carries a code support staff can look up.
//
// # Database Errors (DB001-DB007)
//
//	DB001 - Duplicate key: a record with this key already exists
//	DB002 - Unique constraint: a value that must be unique already exists
//	DB003 - Foreign key: a referenced record does not exist
//	DB004 - Connection refused: database unreachable
//	DB005 - Connection reset: connection interrupted
//	DB006 - Timeout: operation timed out
//	DB007 - Deadlock: conflicting concurrent writes
//
// # Import Errors (IMP001-IMP004)
//
//	IMP001 - Company not found: the entity of the import does not exist
//	IMP002 - No rows selected: commit called with an empty selection
//	IMP003 - Unreadable upload: the file could not be decoded
//	IMP004 - Validation failed: a row failed structural or uniqueness checks
//
// # File Errors (FILE001-FILE005)
//
//	FILE001 - File too large
//	FILE002 - Unsupported format (only .xlsx and .csv)
//	FILE003 - Encoding error
//	FILE004 - No file provided
//	FILE005 - Empty file
//
// # Session Errors (SES001-SES005)
//
//	SES001 - Import not found or expired
//	SES002 - Import already committed
//	SES003 - Commit already in progress
//	SES004 - System busy, too many imports running
//	SES005 - Request cancelled or timed out
//
// # Rate Limiting (RATE001), Request (REQ001) and Default (ERR000)
//
// Sentinel errors are matched with errors.Is first; other errors fall back to
// case-insensitive substring patterns, first match wins.

import (
	"errors"
	"fmt"
	"strings"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string // What happened
	Action  string // What to do about it
	Code    string // Support reference
}

var (
	msgEntityNotFound = UserMessage{
		Message: "The company of this import does not exist",
		Action:  "Check the account you are signed in with",
		Code:    "IMP001",
	}
	msgEmptySelection = UserMessage{
		Message: "No records selected for import",
		Action:  "Select at least one row from the preview",
		Code:    "IMP002",
	}
	msgParse = UserMessage{
		Message: "The uploaded file could not be read",
		Action:  "Download the template and fill it in without changing the column order",
		Code:    "IMP003",
	}
	msgSessionNotFound = UserMessage{
		Message: "Import not found",
		Action:  "The import may have expired. Upload the file again",
		Code:    "SES001",
	}
	msgAlreadyCommitted = UserMessage{
		Message: "This import has already been committed",
		Action:  "Upload the file again to import more rows",
		Code:    "SES002",
	}
	msgSessionBusy = UserMessage{
		Message: "This import is being committed right now",
		Action:  "Wait for the running commit to finish",
		Code:    "SES003",
	}
	msgTooManyRuns = UserMessage{
		Message: "System is busy processing other imports",
		Action:  "Please wait a moment and try again",
		Code:    "SES004",
	}
)

var sentinelMessages = []struct {
	err error
	msg UserMessage
}{
	{ErrEntityNotFound, msgEntityNotFound},
	{ErrEmptySelection, msgEmptySelection},
	{ErrSessionNotFound, msgSessionNotFound},
	{ErrAlreadyCommitted, msgAlreadyCommitted},
	{ErrSessionBusy, msgSessionBusy},
	{ErrTooManyRuns, msgTooManyRuns},
}

type errorPattern struct {
	pattern string
	msg     UserMessage
}

// errorPatterns is ordered specific before general.
var errorPatterns = []errorPattern{
	{"duplicate key", UserMessage{"A record with this key already exists", "Check the file for rows that were imported before", "DB001"}},
	{"unique constraint", UserMessage{"This value must be unique but already exists", "Check for duplicate e-mails or document numbers", "DB002"}},
	{"violates unique", UserMessage{"A duplicate value was found", "Check for duplicate e-mails or document numbers", "DB002"}},
	{"foreign key", UserMessage{"Referenced record does not exist", "Make sure departments and groups still exist", "DB003"}},
	{"connection refused", UserMessage{"Unable to connect to database", "Please try again in a few moments", "DB004"}},
	{"connection reset", UserMessage{"Database connection was interrupted", "Please try again", "DB005"}},
	{"deadlock", UserMessage{"Database was busy with conflicting operations", "Please try again", "DB007"}},

	{"file too large", UserMessage{"File exceeds the maximum size", "Split the file into smaller parts", "FILE001"}},
	{"unsupported format", UserMessage{"File format is not supported", "Save the file as .xlsx or .csv", "FILE002"}},
	{"encoding", UserMessage{"File contains invalid characters", "Save the file as UTF-8 or pass the encoding", "FILE003"}},
	{"no file provided", UserMessage{"No file was selected", "Please select a file to upload", "FILE004"}},
	{"empty file", UserMessage{"The uploaded file is empty", "Please upload a file with data rows", "FILE005"}},
	{"parse upload", msgParse},

	{"context canceled", UserMessage{"Request was cancelled", "Please try again", "SES005"}},
	{"context deadline exceeded", UserMessage{"Request timed out", "Try a smaller file or try again later", "SES005"}},
	{"timeout", UserMessage{"Operation timed out", "Try a smaller file or try again later", "DB006"}},

	{"rate limit", UserMessage{"Too many requests", "Please wait a moment before trying again", "RATE001"}},
	{"invalid request body", UserMessage{"The request could not be read", "Send the selected rows as JSON", "REQ001"}},
}

// defaultMessage is returned when nothing matches. Check the logs for the
// technical error when users report ERR000.
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-facing message.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	for _, s := range sentinelMessages {
		if errors.Is(err, s.err) {
			return s.msg
		}
	}

	var pe *ParseError
	if errors.As(err, &pe) {
		if m, ok := matchPattern(pe.Err); ok && strings.HasPrefix(m.Code, "FILE") {
			return m
		}
		return msgParse
	}

	if m, ok := matchPattern(err); ok {
		return m
	}
	return defaultMessage
}

func matchPattern(err error) (UserMessage, bool) {
	if err == nil {
		return UserMessage{}, false
	}
	errStr := strings.ToLower(err.Error())
	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg, true
		}
	}
	return UserMessage{}, false
}

// FormatUserError renders err as "Message (Code: XXX). Action".
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err maps to something more specific than ERR000.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}

// UserError pairs a technical error with its user-facing message.
type UserError struct {
	Technical error
	User      UserMessage
}

func (e *UserError) Error() string {
	return e.User.Message
}

func (e *UserError) Unwrap() error {
	return e.Technical
}

// NewUserError maps err. It returns nil for a nil error.
func NewUserError(err error) *UserError {
	if err == nil {
		return nil
	}
	return &UserError{
		Technical: err,
		User:      MapError(err),
	}
}
