// Package core provides the business logic for importing and editing roster
// records.
//
// The package is independent of any UI or transport layer. The web handlers
// and the rosterctl command both drive it through [Service], and the record
// backends implement [Store].
//
// # Import
//
// An upload is staged to a temporary file, decoded as CSV or XLSX, and
// validated in full before anything is written:
//
//  1. [Service.Import] acquires a slot from the [ImportLimiter]
//  2. [ParseUpload] decodes the file, skipping a UTF-8 BOM and blank rows
//  3. [ValidateHeader] requires exactly the columns name and mobile
//  4. [RowValidator] checks every row and collects up to MaxRowErrors problems
//  5. Valid rows are inserted with [DefaultCategory] in one InsertMany call
//
// If any row is invalid the whole file is rejected with an [*ImportError]
// listing the offending lines, and the store is left untouched.
//
// # Records
//
// Records are listed a page at a time sorted by name ([Service.List]),
// edited one at a time ([Service.Update]) or in bulk by replacing their
// categories ([Service.BulkEditCategories]), searched by name
// ([Service.Search]), and exported as JSON lines, CSV or XLSX
// ([Service.Export]).
//
// # Error Handling
//
// Technical errors are mapped to user-friendly messages using [MapError].
// Each error category has a unique code for support reference:
//
//   - FILE001-FILE004: File errors (size, type, encoding, missing upload)
//   - VAL001-VAL004: Validation errors (headers, columns, rows, input)
//   - REC001-REC003: Record errors (not found, bad id, bulk edit)
//   - DB004-DB008: Database errors (connection, timeout, availability)
//   - UPL002-UPL005: Import capacity and cancellation
package core
