package core

import "errors"

var (
	// ErrNotFound is returned by ResultTx.GetLabResult when no record exists.
	ErrNotFound = errors.New("lab result not found")

	// ErrMissingSampleID rejects a file holding a result without a sample id.
	ErrMissingSampleID = errors.New("missing sample id")

	// ErrUnknownStatus rejects a stored record whose status is not a known state.
	ErrUnknownStatus = errors.New("unknown lab result status")

	// ErrNoResults marks a file that parsed cleanly but held no results.
	ErrNoResults = errors.New("no results in file")

	// ErrFileTooLarge rejects a remote file above the configured size limit.
	ErrFileTooLarge = errors.New("file too large")

	// ErrRunInProgress is returned when another run of the same source did not
	// finish within the wait time.
	ErrRunInProgress = errors.New("import run already in progress")

	// ErrSourceDisabled is returned by entry points of a disabled source.
	ErrSourceDisabled = errors.New("source disabled")

	// ErrUnknownSource is returned for a source name the orchestrator does not own.
	ErrUnknownSource = errors.New("unknown source")
)
