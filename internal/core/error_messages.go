package core

// # Error Codes Reference
//
// Every error shown to a user carries a code they can quote to support.
// Codes are grouped by category:
//
// # Database Errors (DB001-DB099)
//
// Raised by the entity creator while committing rows:
//
//	DB001 - Duplicate key: A record with this ID already exists
//	DB002 - Unique constraint: This value must be unique but already exists
//	DB003 - Foreign key: Referenced record does not exist
//	DB004 - Connection refused: Unable to connect to database
//	DB005 - Connection reset: Database connection was interrupted
//	DB006 - Timeout: Operation timed out
//	DB007 - Deadlock: Database was busy with conflicting operations
//	DB008 - Value too long: A value is longer than the column allows
//
// # File Errors (FILE001-FILE099)
//
// Raised while accepting and parsing an upload:
//
//	FILE001 - File too large: File exceeds the 10MB size limit
//	FILE002 - Unreadable file: The file could not be read as CSV or Excel
//	FILE003 - Unsupported type: Only .csv, .txt, .xlsx and .xlsm are accepted
//	FILE004 - No file: No file was selected
//	FILE005 - Empty file: The file has no data rows
//	FILE006 - No worksheet: The workbook has no worksheets
//
// # Import Errors (IMP001-IMP099)
//
// Raised by the import session:
//
//	IMP001 - Too many rows: The file has more than 1000 data rows
//	IMP002 - Mapping incomplete: Required fields are not mapped
//	IMP003 - Nothing to import: No rows passed validation
//	IMP004 - Wrong step: The action is not allowed at this step
//	IMP005 - Unknown column: The file has no such column
//	IMP006 - Unknown field: The target field does not exist
//	IMP007 - Unknown entity: Records of this type cannot be imported
//	IMP008 - Not importing: No import is running for this session
//
// # Upload Errors (UPL001-UPL099)
//
// Raised by session hosting and request handling:
//
//	UPL001 - Import cancelled: The import was cancelled before it finished
//	UPL002 - System busy: Too many imports in progress
//	UPL003 - Session expired: Import session not found
//	UPL004 - Request cancelled: Request was cancelled
//	UPL005 - Request timeout: Request timed out
//	UPL006 - No institution: The request did not name an institution
//	UPL007 - Bad request: The request body could not be read
//
// # Rate Limiting (RATE001-RATE099)
//
//	RATE001 - Rate limited: Too many requests
//
// # Default Error (ERR000)
//
// Fallback when no specific pattern matches. Check application logs for the
// original technical error.
//
// # Pattern Matching
//
// Patterns are matched case-insensitively using strings.Contains.
// The first matching pattern wins, so more specific patterns come first.

import (
	"fmt"
	"strings"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string `json:"message"` // What happened
	Action  string `json:"action"`  // What to do about it
	Code    string `json:"code"`    // Error code for support reference
}

type errorPattern struct {
	pattern string
	msg     UserMessage
}

var errorPatterns = []errorPattern{
	// =========================================================================
	// Database Errors
	// =========================================================================
	{"duplicate key", UserMessage{
		Message: "A record with this ID already exists",
		Action:  "Download the error report to review duplicates",
		Code:    "DB001",
	}},
	{"unique constraint", UserMessage{
		Message: "This value must be unique but already exists",
		Action:  "Check for duplicate entries in your file",
		Code:    "DB002",
	}},
	{"violates unique", UserMessage{
		Message: "This value must be unique but already exists",
		Action:  "Check for duplicate entries in your file",
		Code:    "DB002",
	}},
	{"foreign key", UserMessage{
		Message: "Referenced record does not exist",
		Action:  "Make sure the institution exists before importing",
		Code:    "DB003",
	}},
	{"connection refused", UserMessage{
		Message: "Unable to connect to database",
		Action:  "Please try again in a few moments",
		Code:    "DB004",
	}},
	{"connection reset", UserMessage{
		Message: "Database connection was interrupted",
		Action:  "Please try again",
		Code:    "DB005",
	}},
	{"timeout", UserMessage{
		Message: "Operation timed out",
		Action:  "Try importing a smaller file or try again later",
		Code:    "DB006",
	}},
	{"deadlock", UserMessage{
		Message: "Database was busy with conflicting operations",
		Action:  "Please try again",
		Code:    "DB007",
	}},
	{"value too long", UserMessage{
		Message: "A value is longer than the field allows",
		Action:  "Shorten the value and import the row again",
		Code:    "DB008",
	}},

	// =========================================================================
	// File Errors
	// =========================================================================
	{"file too large", UserMessage{
		Message: "File exceeds the 10MB size limit",
		Action:  "Split the file into smaller files",
		Code:    "FILE001",
	}},
	{"could not read file", UserMessage{
		Message: "The file could not be read as CSV or Excel",
		Action:  "Save the file as CSV (UTF-8) or .xlsx and try again",
		Code:    "FILE002",
	}},
	{"unsupported file type", UserMessage{
		Message: "This file type is not supported",
		Action:  "Upload a .csv, .txt, .xlsx or .xlsm file",
		Code:    "FILE003",
	}},
	{"no file provided", UserMessage{
		Message: "No file was selected",
		Action:  "Please select a file to upload",
		Code:    "FILE004",
	}},
	{"file is empty", UserMessage{
		Message: "The uploaded file is empty",
		Action:  "Upload a file with a header row and at least one data row",
		Code:    "FILE005",
	}},
	{"no data rows", UserMessage{
		Message: "The uploaded file has no data rows",
		Action:  "Upload a file with a header row and at least one data row",
		Code:    "FILE005",
	}},
	{"no worksheets", UserMessage{
		Message: "The workbook has no worksheets",
		Action:  "Put the records on the first worksheet",
		Code:    "FILE006",
	}},

	// =========================================================================
	// Import Errors
	// =========================================================================
	{"too many rows", UserMessage{
		Message: "The file has more than 1000 data rows",
		Action:  "Split the file and import each part separately",
		Code:    "IMP001",
	}},
	{"required fields are not mapped", UserMessage{
		Message: "Required fields are not mapped",
		Action:  "Map a column to every required field",
		Code:    "IMP002",
	}},
	{"no valid rows", UserMessage{
		Message: "No rows passed validation",
		Action:  "Fix the errors listed in the preview and upload again",
		Code:    "IMP003",
	}},
	{"invalid step transition", UserMessage{
		Message: "This action is not available at the current step",
		Action:  "Reload the import and continue from the current step",
		Code:    "IMP004",
	}},
	{"unknown source column", UserMessage{
		Message: "The file has no such column",
		Action:  "Choose a column from the uploaded file",
		Code:    "IMP005",
	}},
	{"unknown target field", UserMessage{
		Message: "The target field does not exist",
		Action:  "Choose one of the listed fields or ignore the column",
		Code:    "IMP006",
	}},
	{"unknown entity", UserMessage{
		Message: "Records of this type cannot be imported",
		Action:  "Choose one of the available import types",
		Code:    "IMP007",
	}},
	{"not importing", UserMessage{
		Message: "No import is running for this session",
		Action:  "Start the import from the preview step",
		Code:    "IMP008",
	}},

	// =========================================================================
	// Upload Errors
	// =========================================================================
	{"import cancelled", UserMessage{
		Message: "The import was cancelled before it finished",
		Action:  "Download the error report to see which rows were not imported",
		Code:    "UPL001",
	}},
	{"too many concurrent imports", UserMessage{
		Message: "Too many imports in progress",
		Action:  "Please wait a moment and try again",
		Code:    "UPL002",
	}},
	{"session not found", UserMessage{
		Message: "Import session not found",
		Action:  "The session may have expired. Please start a new import",
		Code:    "UPL003",
	}},
	{"context canceled", UserMessage{
		Message: "Request was cancelled",
		Action:  "Please try again",
		Code:    "UPL004",
	}},
	{"context deadline exceeded", UserMessage{
		Message: "Request timed out",
		Action:  "Try a smaller file or check your connection",
		Code:    "UPL005",
	}},
	{"institution id", UserMessage{
		Message: "No institution was selected",
		Action:  "Select an institution before importing",
		Code:    "UPL006",
	}},
	{"invalid request body", UserMessage{
		Message: "The request could not be understood",
		Action:  "Check the request format and try again",
		Code:    "UPL007",
	}},

	// =========================================================================
	// Rate Limiting
	// =========================================================================
	{"rate limit", UserMessage{
		Message: "Too many requests",
		Action:  "Please wait a moment before trying again",
		Code:    "RATE001",
	}},
}

var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message.
// The first matching pattern wins; unmatched errors map to ERR000.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	errStr := strings.ToLower(err.Error())
	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}
	return defaultMessage
}

// FormatUserError renders err as "Message (Code: XXX). Action".
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err matches a known pattern.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}
