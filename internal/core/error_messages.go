package core

import (
	"context"
	"errors"
	"strings"
)

// ErrorMessage describes a class of failure for operators.
type ErrorMessage struct {
	Message string // What happened
	Action  string // What to do about it
	Code    string // Error code for log searches
}

type errorSentinel struct {
	target error
	msg    ErrorMessage
}

type errorPattern struct {
	pattern string
	msg     ErrorMessage
}

// Sentinels are checked with errors.Is before falling back to text patterns.
var errorSentinels = []errorSentinel{
	{ErrMissingSampleID, ErrorMessage{"A result in the file has no sample id", "Correct the file on the remote source; it is retried next run", "IMP001"}},
	{ErrNoResults, ErrorMessage{"The file held no lab results", "Check the file contents with the laboratory", "IMP002"}},
	{ErrUnknownStatus, ErrorMessage{"A stored lab result has an unknown status", "Correct the record in the database; the file is retried next run", "IMP003"}},
	{ErrFileTooLarge, ErrorMessage{"The file exceeds the configured size limit", "Raise IMPORT_MAX_FILE_SIZE or ask the laboratory to split the file", "FILE001"}},
	{ErrRunInProgress, ErrorMessage{"Another run of this source is still active", "Wait for the running import to finish", "RUN001"}},
	{ErrSourceDisabled, ErrorMessage{"The source is disabled by configuration", "Enable the source to import from it", "RUN002"}},
	{ErrUnknownSource, ErrorMessage{"No such import source", "Use hl7, csv or all", "RUN003"}},
	{context.DeadlineExceeded, ErrorMessage{"Operation timed out", "Check the endpoint and database latency or raise IMPORT_RUN_TIMEOUT", "DB006"}},
}

var errorPatterns = []errorPattern{
	{"invalid hl7", ErrorMessage{"The file is not a readable HL7 message", "Check the file with the laboratory", "PAR001"}},
	{"invalid csv", ErrorMessage{"The file is not a readable result CSV", "Check the header row and delimiter", "PAR002"}},
	{"unable to authenticate", ErrorMessage{"The endpoint rejected the credentials", "Verify the source USERNAME and PASSWORD", "SRC002"}},
	{"access denied", ErrorMessage{"The endpoint rejected the credentials", "Verify the source credentials", "SRC002"}},
	{"source connect", ErrorMessage{"The remote endpoint could not be reached", "Verify the source HOST and PORT", "SRC001"}},
	{"source list", ErrorMessage{"The upload directory could not be listed", "Verify the source DIRECTORY and permissions", "SRC003"}},
	{"source read", ErrorMessage{"A listed file could not be read", "Verify the file permissions on the source", "SRC005"}},
	{"source delete", ErrorMessage{"An imported file could not be removed", "Remove the file manually; a rerun will skip it as already analyzed", "SRC004"}},
	{"duplicate key", ErrorMessage{"A record with this ID already exists", "Rerun the import; the record is now visible", "DB001"}},
	{"unique constraint", ErrorMessage{"A record with this ID already exists", "Rerun the import; the record is now visible", "DB001"}},
	{"foreign key", ErrorMessage{"Referenced record does not exist", "Check the lab_results row for this sample", "DB003"}},
	{"connection refused", ErrorMessage{"Unable to connect to database", "Please try again in a few moments", "DB004"}},
	{"timeout", ErrorMessage{"Operation timed out", "Please try again", "DB006"}},
	{"deadlock", ErrorMessage{"Database was busy with conflicting operations", "Please try again", "DB007"}},
}

var defaultMessage = ErrorMessage{
	Message: "An unexpected error occurred",
	Action:  "Check the logged error for details",
	Code:    "ERR000",
}

// MapError classifies err. It returns the zero ErrorMessage for a nil error.
func MapError(err error) ErrorMessage {
	if err == nil {
		return ErrorMessage{}
	}

	for _, es := range errorSentinels {
		if errors.Is(err, es.target) {
			return es.msg
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

// ErrorCode returns the code MapError assigns to err.
func ErrorCode(err error) string {
	return MapError(err).Code
}
