package importer

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/IBM/arcade/pkg/oem"
	"github.com/IBM/arcade/pkg/provenance"
	"github.com/IBM/arcade/pkg/store"
)

// Outcome is what happened to one parsed record.
type Outcome string

const (
	// OutcomeCreated stored the first record for its object and source.
	OutcomeCreated Outcome = "created"
	// OutcomeSuperseded replaced an older record for the same object and source.
	OutcomeSuperseded Outcome = "superseded"
	// OutcomeSkipped kept an existing record whose stop time is not older.
	OutcomeSkipped Outcome = "skipped"
)

// Superseder keeps at most one record per (tracked object, data source): the
// one with the latest stop time.
type Superseder struct {
	store  store.EntityStore
	pairs  *provenance.KeyedMutex
	logger *slog.Logger
}

// NewSuperseder creates a Superseder.
func NewSuperseder(s store.EntityStore, logger *slog.Logger) *Superseder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Superseder{store: s, pairs: provenance.NewKeyedMutex(), logger: logger}
}

// Apply stores rec for obj and ds unless an existing record from ds is at
// least as recent.
//
// Existing records of the pair are visited oldest first. A record with an
// earlier stop time is deleted; the first one whose stop time is greater or
// equal ends the check and rec is dropped. The unique index on the pair
// guarantees there is at most one existing record, so the outcome does not
// depend on visiting order. Checks for the same pair are serialized.
func (s *Superseder) Apply(ctx context.Context, obj *store.TrackedObject, ds *store.DataSource, art *store.Artifact, rec *oem.Record) (Outcome, error) {
	unlock := s.pairs.Lock(fmt.Sprintf("%d/%d", obj.ID, ds.ID))
	defer unlock()

	outcome := OutcomeCreated
	err := s.store.Transaction(ctx, func(tx store.EntityStore) error {
		var existing []store.EphemerisRecord
		if err := tx.Traverse(ctx, obj, store.RelationRecords, &existing, store.QueryOptions{
			Where:   store.Where{"data_source_id": ds.ID},
			OrderBy: "stop_time",
		}); err != nil {
			return err
		}
		for i := range existing {
			old := &existing[i]
			if old.StopTime >= rec.StopTime {
				outcome = OutcomeSkipped
				return nil
			}
			if err := tx.Delete(ctx, old); err != nil {
				return err
			}
			outcome = OutcomeSuperseded
		}

		row := store.NewEphemerisRecord(rec)
		row.TrackedObjectID = obj.ID
		row.DataSourceID = ds.ID
		row.ArtifactID = art.ID
		return tx.Create(ctx, row)
	})
	if err != nil {
		return "", fmt.Errorf("supersede record for %s from %q: %w", obj.TrackingID, ds.Name, err)
	}
	s.logger.Debug("applied ephemeris record",
		"trackingID", obj.TrackingID,
		"source", ds.Name,
		"stopTime", rec.StopTime,
		"outcome", outcome)
	return outcome, nil
}
