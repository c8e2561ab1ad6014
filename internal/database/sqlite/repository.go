// Package sqlite is the SQLite result repository, used for single-host
// deployments and as the real database behind the pipeline tests.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // pure go sqlite driver

	"github.com/JonMunkholm/labimport/internal/core"
	"github.com/JonMunkholm/labimport/internal/database"
)

//go:embed schema.sql
var schema string

var _ database.Store = (*Repository)(nil)

// Repository implements core.ResultRepository over a single SQLite connection.
// One connection serializes transactions, which stands in for row locking.
type Repository struct {
	db *sql.DB
}

// Open opens or creates the database file at path.
func Open(path string) (*Repository, error) {
	if path == "" {
		return nil, errors.New("sqlite path required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	dsn := "file:" + path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	return &Repository{db: db}, nil
}

// Migrate applies the embedded schema. Every statement is idempotent.
func (r *Repository) Migrate(ctx context.Context) error {
	for _, stmt := range database.SplitStatements(schema) {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}

func (r *Repository) Ping(ctx context.Context) error { return r.db.PingContext(ctx) }

func (r *Repository) Close() error { return r.db.Close() }

// WithinTx runs fn in a transaction; fn's error rolls it back.
func (r *Repository) WithinTx(ctx context.Context, fn func(tx core.ResultTx) error) (retErr error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()

	if err := fn(&resultTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

type resultTx struct {
	tx *sql.Tx
}

func (t *resultTx) GetLabResult(ctx context.Context, id string) (*core.LabResult, error) {
	var (
		res                                             core.LabResult
		status                                          string
		subjectID, remark, doctor, dummyID, studyStatus sql.NullString
		orderID                                         sql.NullInt64
		samplesSent                                     sql.NullBool
	)
	err := t.tx.QueryRowContext(ctx, `
		SELECT id, subject_id, order_id, status, remark, performing_doctor,
		       dummy_sample_id, new_samples_sent, study_status
		FROM lab_results
		WHERE id = ?`, id,
	).Scan(&res.ID, &subjectID, &orderID, &status, &remark, &doctor, &dummyID, &samplesSent, &studyStatus)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	res.SubjectID = fromNullString(subjectID)
	if orderID.Valid {
		res.OrderID = &orderID.Int64
	}
	res.Status = core.Status(status)
	res.Remark = fromNullString(remark)
	res.PerformingDoctor = fromNullString(doctor)
	res.DummySampleID = fromNullString(dummyID)
	if samplesSent.Valid {
		res.NewSamplesSent = &samplesSent.Bool
	}
	res.StudyStatus = fromNullString(studyStatus)
	return &res, nil
}

func (t *resultTx) MarkAnalyzed(ctx context.Context, id string, orderID *int64, performingDoctor *string) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE lab_results
		SET order_id = ?, performing_doctor = ?, status = 'analyzed'
		WHERE id = ?`,
		nullInt64(orderID), nullString(performingDoctor), id,
	)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return core.ErrNotFound
	}
	return nil
}

func (t *resultTx) InsertLabResult(ctx context.Context, r *core.LabResult) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO lab_results (id, subject_id, order_id, status, remark, performing_doctor,
		                         dummy_sample_id, new_samples_sent, study_status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, nullString(r.SubjectID), nullInt64(r.OrderID), string(r.Status), nullString(r.Remark),
		nullString(r.PerformingDoctor), nullString(r.DummySampleID), nullBool(r.NewSamplesSent), nullString(r.StudyStatus),
	)
	return err
}

func (t *resultTx) InsertObservation(ctx context.Context, o *core.LabObservation) (bool, error) {
	res, err := t.tx.ExecContext(ctx, `
		INSERT INTO lab_observations (id, lab_result_id, name_id, name, result_value, result_string,
		                              comment, date_of_analysis, date_of_delivery, date_of_announcement,
		                              lab_name, material, unit, other_unit, kit_name)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (lab_result_id, name_id, name) DO NOTHING`,
		o.ID, o.LabResultID, o.NameID, o.Name, nullString(o.ResultValue), nullString(o.ResultString),
		nullString(o.Comment), nullTime(o.DateOfAnalysis), nullTime(o.DateOfDelivery), nullTime(o.DateOfAnnouncement),
		nullString(o.LabName), nullString(o.Material), nullString(o.Unit), nullString(o.OtherUnit), nullString(o.KitName),
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func fromNullString(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	return &s.String
}

func nullInt64(i *int64) sql.NullInt64 {
	if i == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *i, Valid: true}
}

func nullBool(b *bool) sql.NullBool {
	if b == nil {
		return sql.NullBool{}
	}
	return sql.NullBool{Bool: *b, Valid: true}
}

// nullTime formats an optional timestamp for a TEXT column.
func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(time.RFC3339Nano), Valid: true}
}
