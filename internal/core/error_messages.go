package core

// error_messages.go maps technical errors to user-facing messages with a
// support code.
//
// # Codes
//
//	FILE001 - File too large            Patterns: "file too large"
//	FILE002 - Invalid CSV               *ParseError, "invalid csv"
//	FILE003 - Encoding error            Patterns: "encoding error"
//	FILE004 - No file                   Patterns: "no file provided"
//
//	REQ001 - Malformed request          Patterns: "invalid request"
//
//	STORE001 - Store unreachable        *StoreError{Kind: StoreNetwork}
//	STORE002 - Store rejected request   *StoreError{Kind: StoreRejected}
//	STORE003 - Stored report unreadable *StoreError{Kind: StoreCorrupt}
//	STORE004 - Nothing uploaded yet     ErrNotFound
//
//	DB004 - Connection refused          Patterns: "connection refused"
//	DB006 - Timeout                     Patterns: "timeout", "deadline exceeded"
//
//	RATE001 - Too many requests         Patterns: "rate limit"
//	UPLOAD001 - Upload slots exhausted  ErrTooManyUploads
//
//	ERR000 - Anything else. Check the logs for the technical error.
//
// Typed errors are matched first with errors.As/errors.Is; the remaining
// patterns are matched case-insensitively with strings.Contains, first
// match wins.

import (
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

type errorPattern struct {
	pattern string
	msg     UserMessage
}

var (
	msgInvalidCSV = UserMessage{
		Message: "File is not a valid CSV",
		Action:  "Check for unbalanced quotes and save the sheet as comma-separated text",
		Code:    "FILE002",
	}
	msgStoreNetwork = UserMessage{
		Message: "Unable to reach the report store",
		Action:  "Check your connection and try again",
		Code:    "STORE001",
	}
	msgStoreRejected = UserMessage{
		Message: "The report store rejected the request",
		Action:  "Review the details below and try again",
		Code:    "STORE002",
	}
	msgStoreCorrupt = UserMessage{
		Message: "The stored report could not be read",
		Action:  "Upload the price sheet again",
		Code:    "STORE003",
	}
	msgBusy = UserMessage{
		Message: "The server is busy processing other uploads",
		Action:  "Wait a few seconds and upload again",
		Code:    "UPLOAD001",
	}
	msgNotFound = UserMessage{
		Message: "No report has been uploaded yet",
		Action:  "Upload a CSV file to view price data",
		Code:    "STORE004",
	}
)

var errorPatterns = []errorPattern{
	{
		pattern: "file too large",
		msg: UserMessage{
			Message: "File exceeds maximum size limit",
			Action:  "Remove unused sheets or rows and upload again",
			Code:    "FILE001",
		},
	},
	{pattern: "invalid csv", msg: msgInvalidCSV},
	{
		pattern: "encoding error",
		msg: UserMessage{
			Message: "File contains invalid characters",
			Action:  "Save file as UTF-8 encoding",
			Code:    "FILE003",
		},
	},
	{
		pattern: "no file provided",
		msg: UserMessage{
			Message: "No file was selected",
			Action:  "Please select a CSV file to upload",
			Code:    "FILE004",
		},
	},
	{
		pattern: "invalid request",
		msg: UserMessage{
			Message: "The request could not be understood",
			Action:  "Check the request body and parameters and try again",
			Code:    "REQ001",
		},
	},
	{
		pattern: "connection refused",
		msg: UserMessage{
			Message: "Unable to connect to database",
			Action:  "Please try again in a few moments",
			Code:    "DB004",
		},
	},
	{
		pattern: "deadline exceeded",
		msg: UserMessage{
			Message: "Operation timed out",
			Action:  "Please try again",
			Code:    "DB006",
		},
	},
	{
		pattern: "timeout",
		msg: UserMessage{
			Message: "Operation timed out",
			Action:  "Please try again",
			Code:    "DB006",
		},
	},
	{
		pattern: "rate limit",
		msg: UserMessage{
			Message: "Too many requests",
			Action:  "Please wait a moment before trying again",
			Code:    "RATE001",
		},
	},
}

var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message.
// Returns the zero UserMessage for a nil error.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	if errors.Is(err, ErrNotFound) {
		return msgNotFound
	}
	if errors.Is(err, ErrTooManyUploads) {
		return msgBusy
	}
	var pe *ParseError
	if errors.As(err, &pe) {
		return msgInvalidCSV
	}
	var se *StoreError
	if errors.As(err, &se) {
		switch se.Kind {
		case StoreNetwork:
			return msgStoreNetwork
		case StoreRejected:
			return msgStoreRejected
		case StoreCorrupt:
			return msgStoreCorrupt
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

// FormatUserError creates a formatted error string for display:
// "Message (Code: XXX). Action".
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err maps to a specific message rather than
// the ERR000 fallback.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}
