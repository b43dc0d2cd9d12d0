// Package core provides the business logic for bulk employee imports.
//
// The package turns a decoded spreadsheet into a per-row report and, on
// confirmation, into persisted users. It has no transport dependencies and is
// used by the HTTP server, the importctl CLI and tests alike.
//
// # Pipeline
//
// Every data row travels through the same stages:
//
//  1. [RecordNormalizer] parses date cells and expands single-letter codes
//  2. [FieldExtractor] splits the row into user, document and permission fields
//  3. [DuplicateMatcher] resolves department and group names against the
//     [OrganizationContext] and looks for an existing user with the same name
//  4. [RecordValidator] checks the candidate user, document and department
//  5. [Engine] decides acceptance and, in save mode, persists the record
//
// The [Engine] folds rows strictly in input order. A department created for one
// row is registered in the [OrganizationContext] so later rows naming it reuse
// the same object instead of creating it again.
//
// # Sessions
//
// An import is a two-step protocol tracked by [SessionStore]: the upload is
// staged and previewed, then a subset of row indices is committed. A session
// accepts exactly one successful commit.
//
// # Error Handling
//
// Only two conditions abort a batch: a [ParseError] from the decoder and
// [ErrEntityNotFound]. Everything else is recorded on the affected
// [RecordResult] and processing continues with the next row. Technical errors
// returned to callers are mapped to user-facing messages with [MapError]:
//
//   - DB001-DB007: Database errors (constraints, connectivity)
//   - IMP001-IMP004: Import errors (entity, selection, parse)
//   - FILE001-FILE005: File errors (size, encoding, format)
//   - SES001-SES005: Session errors (expired, committed, busy, timeouts)
package core
