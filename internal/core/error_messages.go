package core

// error_messages.go maps errors to user-facing messages with support codes.
//
// # Error Codes Reference
//
// File errors (FILE):
//
//	FILE001 - File too large          ("request body too large", "file too large")
//	FILE002 - Unsupported file type   (ErrUnsupportedFileType)
//	FILE003 - Unreadable file         (ErrUnreadableFile)
//	FILE004 - No file uploaded        (ErrNoFileUploaded)
//
// Validation errors (VAL):
//
//	VAL001 - Invalid or missing headers   (ErrMissingHeaders)
//	VAL002 - Wrong number of columns      (ErrUnexpectedColumns)
//	VAL003 - Invalid rows                 (ErrInvalidRows)
//	VAL004 - Invalid input                (ErrInvalidInput)
//
// Record errors (REC):
//
//	REC001 - Record not found     (ErrNotFound)
//	REC002 - Invalid record id    (ErrInvalidID)
//	REC003 - Bulk edit incomplete (ErrBulkEditIncomplete)
//
// Store errors (DB):
//
//	DB004 - Connection refused     ("connection refused")
//	DB005 - Connection reset       ("connection reset")
//	DB006 - Timeout                ("timeout", "i/o timeout")
//	DB008 - Store unavailable      ("server selection error", "no reachable servers")
//
// Upload errors (UPL):
//
//	UPL002 - System busy           (ErrTooManyImports)
//	UPL004 - Request cancelled     (context.Canceled)
//	UPL005 - Request timeout       (context.DeadlineExceeded)
//
// Rate limiting (RATE):
//
//	RATE001 - Too many requests    ("rate limit")
//
// ERR000 is the fallback when nothing matches; check the logs for the
// original error.
//
// Sentinel errors are matched with errors.Is first. Errors from drivers that
// do not expose sentinels are matched by case-insensitive substring, first
// match wins.

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string // What happened (user-friendly)
	Action  string // What to do about it
	Code    string // Error code for support reference
}

type sentinelMessage struct {
	target error
	msg    UserMessage
}

// sentinelMessages is checked in order; ErrInvalidRows precedes
// ErrUnexpectedColumns because an ImportError matches both.
var sentinelMessages = []sentinelMessage{
	{ErrNoFileUploaded, UserMessage{"*No file uploaded", "Choose a CSV or XLSX file to upload", "FILE004"}},
	{ErrUnsupportedFileType, UserMessage{"*Unsupported file type", "Upload a .csv or .xlsx file", "FILE002"}},
	{ErrUnreadableFile, UserMessage{"*The file could not be read", "Re-save the file as CSV (UTF-8) or XLSX and try again", "FILE003"}},
	{ErrMissingHeaders, UserMessage{"*Invalid or missing headers", "The first row must contain the columns name and mobile", "VAL001"}},
	{ErrInvalidRows, UserMessage{"*Some rows are invalid", "Fix the listed rows and upload the file again", "VAL003"}},
	{ErrUnexpectedColumns, UserMessage{"*File must contain exactly two columns: name and mobile", "Remove any extra columns", "VAL002"}},
	{ErrInvalidInput, UserMessage{"Invalid input", "Check the values and try again", "VAL004"}},
	{ErrNotFound, UserMessage{"User not found", "Reload the page; the record may have been removed", "REC001"}},
	{ErrInvalidID, UserMessage{"User not found", "Check the record link", "REC002"}},
	{ErrBulkEditIncomplete, UserMessage{"Bulk editing failed", "Some records were not updated; try again", "REC003"}},
	{ErrTooManyImports, UserMessage{"The system is busy importing other files", "Please wait a moment and try again", "UPL002"}},
	{context.Canceled, UserMessage{"Request was cancelled", "Please try again", "UPL004"}},
	{context.DeadlineExceeded, UserMessage{"Request timed out", "Try a smaller file or try again later", "UPL005"}},
}

// errorPattern defines a pattern to match and its corresponding user message.
type errorPattern struct {
	pattern string
	msg     UserMessage
}

var errorPatterns = []errorPattern{
	{"request body too large", UserMessage{"*File exceeds the maximum upload size", "Split the file into smaller files", "FILE001"}},
	{"file too large", UserMessage{"*File exceeds the maximum upload size", "Split the file into smaller files", "FILE001"}},
	{"connection refused", UserMessage{"Unable to connect to the database", "Please try again in a few moments", "DB004"}},
	{"connection reset", UserMessage{"Database connection was interrupted", "Please try again", "DB005"}},
	{"server selection error", UserMessage{"The database is unavailable", "Please try again in a few moments", "DB008"}},
	{"no reachable servers", UserMessage{"The database is unavailable", "Please try again in a few moments", "DB008"}},
	{"timeout", UserMessage{"Operation timed out", "Try a smaller file or try again later", "DB006"}},
	{"rate limit", UserMessage{"Too many requests", "Please wait a moment before trying again", "RATE001"}},
}

var defaultMessage = UserMessage{
	Message: "Internal server error",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts an error into a user-friendly message.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	for _, sm := range sentinelMessages {
		if errors.Is(err, sm.target) {
			return sm.msg
		}
	}

	errStr := strings.ToLower(err.Error())
	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	return defaultMessage
}

// FormatUserError renders "Message (Code: XXX). Action" for display.
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
