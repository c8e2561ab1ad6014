package core

// store.go reconciles parsed results against the relational store.
//
// Each file is handled in exactly one transaction. A result whose sample is
// already analyzed is left untouched, which makes the stage safe to run again
// over files an earlier run processed, fully or partially.

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// ResultStore is the store stage of the pipeline.
type ResultStore struct {
	repo ResultRepository
}

// NewResultStore creates a store stage persisting through repo.
func NewResultStore(repo ResultRepository) *ResultStore {
	return &ResultStore{repo: repo}
}

// Store reconciles every result of item in one transaction and records the
// outcomes on item. A failure leaves item without outcome and is returned so
// the caller can log it; nothing of the file is committed in that case.
func (s *ResultStore) Store(ctx context.Context, item *ImportItem) error {
	item.Outcome = OutcomeNone
	item.ResultOutcomes = nil

	if len(item.Results) == 0 {
		return ErrNoResults
	}

	// One result without sample id rejects the whole file; nothing of it is
	// imported and the file stays on the remote.
	for i, r := range item.Results {
		if strings.TrimSpace(r.ID) == "" {
			return fmt.Errorf("result %d: %w", i+1, ErrMissingSampleID)
		}
		normalize(r)
	}

	outcomes := make([]Outcome, len(item.Results))
	err := s.repo.WithinTx(ctx, func(tx ResultTx) error {
		for i, r := range item.Results {
			outcome, err := reconcile(ctx, tx, r)
			if err != nil {
				return fmt.Errorf("sample %s: %w", r.ID, err)
			}
			outcomes[i] = outcome
		}
		return nil
	})
	if err != nil {
		return err
	}

	item.ResultOutcomes = outcomes
	item.Outcome = fileOutcome(outcomes)
	return nil
}

// normalize uppercases the sample id and stamps it onto every observation.
func normalize(r *LabResult) {
	r.ID = strings.ToUpper(strings.TrimSpace(r.ID))
	for _, o := range r.Observations {
		o.LabResultID = r.ID
		if o.ID == "" {
			o.ID = uuid.NewString()
		}
	}
}

// reconcile applies one result inside tx.
func reconcile(ctx context.Context, tx ResultTx, r *LabResult) (Outcome, error) {
	existing, err := tx.GetLabResult(ctx, r.ID)
	switch {
	case errors.Is(err, ErrNotFound):
		created := &LabResult{
			ID:               r.ID,
			OrderID:          r.OrderID,
			Status:           StatusAnalyzed,
			PerformingDoctor: r.PerformingDoctor,
			NewSamplesSent:   boolPtr(false),
		}
		if err := tx.InsertLabResult(ctx, created); err != nil {
			return OutcomeNone, fmt.Errorf("insert lab result: %w", err)
		}
		if err := insertObservations(ctx, tx, r.Observations); err != nil {
			return OutcomeNone, err
		}
		return OutcomeImportedNewUnassigned, nil

	case err != nil:
		return OutcomeNone, fmt.Errorf("get lab result: %w", err)
	}

	if !existing.Status.Valid() {
		return OutcomeNone, fmt.Errorf("%w %q", ErrUnknownStatus, existing.Status)
	}

	if existing.Status == StatusAnalyzed {
		if existing.Unassigned() {
			return OutcomeUnassignedAlreadyAnalyzed, nil
		}
		return OutcomeExistingAlreadyAnalyzed, nil
	}

	if err := tx.MarkAnalyzed(ctx, r.ID, r.OrderID, r.PerformingDoctor); err != nil {
		return OutcomeNone, fmt.Errorf("mark analyzed: %w", err)
	}
	if err := insertObservations(ctx, tx, r.Observations); err != nil {
		return OutcomeNone, err
	}
	return OutcomeImportedExisting, nil
}

func insertObservations(ctx context.Context, tx ResultTx, observations []*LabObservation) error {
	for _, o := range observations {
		if _, err := tx.InsertObservation(ctx, o); err != nil {
			return fmt.Errorf("insert observation %d %q: %w", o.NameID, o.Name, err)
		}
	}
	return nil
}

func boolPtr(b bool) *bool { return &b }
