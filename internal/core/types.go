package core

import (
	"context"
	"io"
	"strings"
	"time"
)

// Status is the tracking state of a sample.
type Status string

const (
	StatusNew      Status = "new"
	StatusSampled  Status = "sampled"
	StatusAnalyzed Status = "analyzed"
	StatusInactive Status = "inactive"
)

// Valid reports whether s is one of the known states.
func (s Status) Valid() bool {
	switch s {
	case StatusNew, StatusSampled, StatusAnalyzed, StatusInactive:
		return true
	}
	return false
}

// LabResult is one sample's tracking record together with the analyte
// readings that belong to it.
type LabResult struct {
	ID               string  // Sample code, uppercase
	SubjectID        *string // nil while the sample is unassigned
	OrderID          *int64
	Status           Status
	Remark           *string
	PerformingDoctor *string
	DummySampleID    *string
	NewSamplesSent   *bool
	StudyStatus      *string

	Observations []*LabObservation
}

// Unassigned reports whether the sample is not linked to a participant.
func (r *LabResult) Unassigned() bool {
	return r.SubjectID == nil || *r.SubjectID == ""
}

// LabObservation is one analyte reading of a LabResult.
type LabObservation struct {
	ID                 string
	LabResultID        string
	NameID             int64
	Name               string
	ResultValue        *string
	ResultString       *string
	Comment            *string
	DateOfAnalysis     *time.Time
	DateOfDelivery     *time.Time
	DateOfAnnouncement *time.Time
	LabName            *string
	Material           *string
	Unit               *string
	OtherUnit          *string
	KitName            *string
}

// Outcome records how the store stage handled a result or a file.
// The zero value means no outcome: the item failed to parse or to persist.
type Outcome string

const (
	OutcomeNone                      Outcome = ""
	OutcomeImportedNewUnassigned     Outcome = "imported_for_new_unassigned_sample"
	OutcomeImportedExisting          Outcome = "imported_for_existing_sample"
	OutcomeExistingAlreadyAnalyzed   Outcome = "existing_sample_already_had_labresult"
	OutcomeUnassignedAlreadyAnalyzed Outcome = "unassigned_sample_already_had_labresult"
)

// Imported reports whether new data was durably persisted. Only files with an
// imported outcome are removed from the remote source.
func (o Outcome) Imported() bool {
	return strings.HasPrefix(string(o), "imported_")
}

// Duplicate reports whether the result was already analyzed and left untouched.
func (o Outcome) Duplicate() bool {
	return o == OutcomeExistingAlreadyAnalyzed || o == OutcomeUnassignedAlreadyAnalyzed
}

// String returns the tag, or "none" for the zero value.
func (o Outcome) String() string {
	if o == OutcomeNone {
		return "none"
	}
	return string(o)
}

// fileOutcome folds per-result outcomes into the file's outcome: the first
// imported outcome wins, otherwise the first duplicate tag.
func fileOutcome(outcomes []Outcome) Outcome {
	var dup Outcome
	for _, o := range outcomes {
		if o.Imported() {
			return o
		}
		if dup == OutcomeNone && o.Duplicate() {
			dup = o
		}
	}
	return dup
}

// ImportItem carries one remote file through the pipeline. It is never persisted.
type ImportItem struct {
	Path    string
	Content []byte

	// Results is nil when parsing failed or the file held no results.
	Results  []*LabResult
	ParseErr error

	Outcome        Outcome
	ResultOutcomes []Outcome
	StoreErr       error

	Deleted   bool
	DeleteErr error

	// release returns the item's in-flight slot once the last stage is done with it.
	release func()
}

// retire returns the item's in-flight slot. Safe to call more than once.
func (i *ImportItem) retire() {
	if i.release != nil {
		i.release()
		i.release = nil
	}
}

// SampleIDs lists the ids of the parsed results, for logging.
func (i *ImportItem) SampleIDs() []string {
	ids := make([]string, 0, len(i.Results))
	for _, r := range i.Results {
		ids = append(ids, r.ID)
	}
	return ids
}

// RemoteFile is one entry of a source listing.
type RemoteFile struct {
	Path    string
	Size    int64
	ModTime time.Time
}

// Driver identifies a concrete remote source implementation.
type Driver string

const (
	DriverSFTP Driver = "sftp"
	DriverS3   Driver = "s3"
	DriverFS   Driver = "fs"
)

// Source is a remote endpoint laboratories deliver result files to.
// Implementations are bound to one fixed directory.
type Source interface {
	List(ctx context.Context) ([]RemoteFile, error)
	Open(ctx context.Context, path string) (io.ReadCloser, error)
	Delete(ctx context.Context, path string) error
	Close() error
	Driver() Driver
}

// SourceOpener connects to a source at the start of a run. Connection and
// authentication errors are run-level failures.
type SourceOpener func(ctx context.Context) (Source, error)

// Format names a file format delivered by a source.
type Format string

const (
	FormatHL7 Format = "hl7"
	FormatCSV Format = "csv"
)

// Parser turns raw file content into results. A file may hold several results.
// Implementations must be pure: no I/O, no shared state.
type Parser interface {
	Parse(path string, content []byte) ([]*LabResult, error)
	Format() Format
}

// ResultRepository runs reconciliation work inside a database transaction.
// fn's error rolls the transaction back; nil commits it.
type ResultRepository interface {
	WithinTx(ctx context.Context, fn func(tx ResultTx) error) error
	Ping(ctx context.Context) error
}

// ResultTx is the set of statements the store stage issues within one transaction.
type ResultTx interface {
	// GetLabResult returns ErrNotFound when no record exists.
	GetLabResult(ctx context.Context, id string) (*LabResult, error)
	MarkAnalyzed(ctx context.Context, id string, orderID *int64, performingDoctor *string) error
	InsertLabResult(ctx context.Context, r *LabResult) error
	// InsertObservation reports false when the uniqueness constraint suppressed the row.
	InsertObservation(ctx context.Context, o *LabObservation) (bool, error)
}

// RunResult is the literal outcome of an entry point.
type RunResult string

const (
	RunSuccess RunResult = "success"
	RunError   RunResult = "error"
)
