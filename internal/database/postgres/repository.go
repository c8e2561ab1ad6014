// Package postgres is the PostgreSQL result repository, built on a pgx pool.
package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JonMunkholm/labimport/internal/config"
	"github.com/JonMunkholm/labimport/internal/core"
	"github.com/JonMunkholm/labimport/internal/database"
)

//go:embed schema.sql
var schema string

var _ database.Store = (*Repository)(nil)

// Repository implements core.ResultRepository over a pgx connection pool.
type Repository struct {
	pool *pgxpool.Pool
}

// Connect opens and pings a pool sized from cfg.
func Connect(ctx context.Context, cfg config.DatabaseConfig) (*Repository, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = int32(cfg.MaxConns)
	}
	if cfg.MinConns > 0 {
		poolConfig.MinConns = int32(cfg.MinConns)
	}
	if cfg.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return New(pool), nil
}

// New wraps an existing pool.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Migrate applies the embedded schema. Every statement is idempotent.
func (r *Repository) Migrate(ctx context.Context) error {
	for _, stmt := range database.SplitStatements(schema) {
		if _, err := r.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}

func (r *Repository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

func (r *Repository) Close() error {
	r.pool.Close()
	return nil
}

// WithinTx runs fn in a transaction; fn's error rolls it back.
func (r *Repository) WithinTx(ctx context.Context, fn func(tx core.ResultTx) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) // No-op if already committed

	if err := fn(&resultTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

type resultTx struct {
	tx pgx.Tx
}

// GetLabResult locks the row until the transaction ends, so concurrent runs
// reconcile the same sample one after the other.
func (t *resultTx) GetLabResult(ctx context.Context, id string) (*core.LabResult, error) {
	var (
		res                                             core.LabResult
		status                                          string
		subjectID, remark, doctor, dummyID, studyStatus pgtype.Text
		orderID                                         pgtype.Int8
		samplesSent                                     pgtype.Bool
	)
	err := t.tx.QueryRow(ctx, `
		SELECT id, subject_id, order_id, status, remark, performing_doctor,
		       dummy_sample_id, new_samples_sent, study_status
		FROM lab_results
		WHERE id = $1
		FOR UPDATE`, id,
	).Scan(&res.ID, &subjectID, &orderID, &status, &remark, &doctor, &dummyID, &samplesSent, &studyStatus)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	res.SubjectID = fromText(subjectID)
	res.OrderID = fromInt8(orderID)
	res.Status = core.Status(status)
	res.Remark = fromText(remark)
	res.PerformingDoctor = fromText(doctor)
	res.DummySampleID = fromText(dummyID)
	res.NewSamplesSent = fromBool(samplesSent)
	res.StudyStatus = fromText(studyStatus)
	return &res, nil
}

func (t *resultTx) MarkAnalyzed(ctx context.Context, id string, orderID *int64, performingDoctor *string) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE lab_results
		SET order_id = $2, performing_doctor = $3, status = 'analyzed'
		WHERE id = $1`,
		id, toInt8(orderID), toText(performingDoctor),
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return core.ErrNotFound
	}
	return nil
}

func (t *resultTx) InsertLabResult(ctx context.Context, r *core.LabResult) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO lab_results (id, subject_id, order_id, status, remark, performing_doctor,
		                         dummy_sample_id, new_samples_sent, study_status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		r.ID, toText(r.SubjectID), toInt8(r.OrderID), string(r.Status), toText(r.Remark),
		toText(r.PerformingDoctor), toText(r.DummySampleID), toBool(r.NewSamplesSent), toText(r.StudyStatus),
	)
	return err
}

func (t *resultTx) InsertObservation(ctx context.Context, o *core.LabObservation) (bool, error) {
	tag, err := t.tx.Exec(ctx, `
		INSERT INTO lab_observations (id, lab_result_id, name_id, name, result_value, result_string,
		                              comment, date_of_analysis, date_of_delivery, date_of_announcement,
		                              lab_name, material, unit, other_unit, kit_name)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (lab_result_id, name_id, name) DO NOTHING`,
		toUUID(o.ID), o.LabResultID, o.NameID, o.Name, toText(o.ResultValue), toText(o.ResultString),
		toText(o.Comment), toTimestamptz(o.DateOfAnalysis), toTimestamptz(o.DateOfDelivery),
		toTimestamptz(o.DateOfAnnouncement), toText(o.LabName), toText(o.Material), toText(o.Unit),
		toText(o.OtherUnit), toText(o.KitName),
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}
