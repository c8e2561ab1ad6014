// Package core provides the business logic for laboratory result imports.
//
// This package holds all domain logic independent of any transport, database
// driver or remote endpoint. The HTTP server, the CLI and tests use it without
// modification.
//
// # Architecture
//
// One [Importer] exists per remote source. A run connects to the source, lists
// its upload directory once and pushes every file through four stages:
//
//  1. Read: fetch the file content, bounded by the configured size limit
//  2. Parse: turn the bytes into results with the source's [Parser]
//  3. Store: reconcile all results of the file in one transaction ([ResultStore])
//  4. Cleanup: delete the file remotely when its outcome is imported
//
// The stages run as goroutines joined by unbuffered channels. The reader takes
// an in-flight slot before fetching a file and the cleanup stage returns it when
// the file retires, so with the default of one slot file N+1 is not fetched
// before file N is done.
//
// # Failure Classes
//
// Connecting, authenticating, listing and reading are run-level: the run ends
// with [RunError]. Parse failures, missing sample ids and failed transactions
// are per-file: the file is logged with an error code and stays on the source
// for the next run. A file whose results were all analyzed before is skipped
// without mutation and is not deleted either.
//
// # Scheduling
//
// [Orchestrator.Start] registers one [Trigger] per enabled source and returns
// the handles. There is no package-level scheduler state; the caller stops the
// triggers on shutdown.
//
// # Error Codes Reference
//
// Per-file failures never reach a caller: they are logged and the file stays on
// the remote source. Every such log entry carries an error_code so operators can
// search for a class of failure and know what to do about it.
//
//	IMP001 - Missing sample id: A result in the file has no sample id
//	IMP002 - No results: The file held no lab results
//	IMP003 - Unknown status: A stored lab result has an unknown status
//	PAR001 - Invalid HL7: The file is not a readable HL7 message
//	PAR002 - Invalid CSV: The file is not a readable result CSV
//	FILE001 - File too large: The file exceeds IMPORT_MAX_FILE_SIZE
//	SRC001 - Connection failed: The remote endpoint could not be reached
//	SRC002 - Authentication failed: The endpoint rejected the credentials
//	SRC003 - Listing failed: The upload directory could not be listed
//	SRC004 - Delete failed: An imported file could not be removed
//	SRC005 - Read failed: A listed file could not be read
//	DB001 - Duplicate key: A record with this ID already exists
//	DB003 - Foreign key: Referenced record does not exist
//	DB004 - Connection refused: Unable to connect to database
//	DB006 - Timeout: Operation timed out
//	DB007 - Deadlock: Database was busy with conflicting operations
//	RUN001 - Run in progress: Another run of this source is still active
//	RUN002 - Source disabled: The source is disabled by configuration
//	RUN003 - Unknown source: A manual trigger named no configured source
package core
