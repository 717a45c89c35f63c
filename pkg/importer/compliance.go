package importer

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/IBM/arcade/pkg/provenance"
	"github.com/IBM/arcade/pkg/store"
)

// ComplianceSource is the data source compliance rows are attributed to.
const ComplianceSource = "UN - Compliance"

// ComplianceStats counts what a compliance import did.
type ComplianceStats struct {
	Created int `json:"created"`
	Updated int `json:"updated"`
	Unknown int `json:"unknown"`
}

// ComplianceImporter loads registration compliance flags from a CSV export
// with the columns aso_id and is_compliant.
type ComplianceImporter struct {
	store   store.EntityStore
	tracker *provenance.Tracker
	logger  *slog.Logger
}

// NewComplianceImporter creates a ComplianceImporter.
func NewComplianceImporter(s store.EntityStore, logger *slog.Logger) *ComplianceImporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &ComplianceImporter{store: s, tracker: provenance.NewTracker(s), logger: logger}
}

// Import reads every row of r. Rows naming an object that is not tracked are
// skipped; a malformed row stops the import.
func (c *ComplianceImporter) Import(ctx context.Context, r io.Reader) (ComplianceStats, error) {
	var stats ComplianceStats
	ds, err := c.tracker.ResolveDataSource(ctx, ComplianceSource, true)
	if err != nil {
		return stats, err
	}

	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	header, err := cr.Read()
	if err != nil {
		return stats, fmt.Errorf("read compliance header: %w", err)
	}
	idCol, flagCol := -1, -1
	for i, h := range header {
		switch strings.TrimSpace(h) {
		case "aso_id":
			idCol = i
		case "is_compliant":
			flagCol = i
		}
	}
	if idCol < 0 || flagCol < 0 {
		return stats, fmt.Errorf("compliance header %v: aso_id and is_compliant columns are required", header)
	}
	cr.FieldsPerRecord = len(header)

	for row := 2; ; row++ {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		fields, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return stats, fmt.Errorf("read compliance row %d: %w", row, err)
		}
		compliant, err := strconv.ParseBool(strings.TrimSpace(fields[flagCol]))
		if err != nil {
			return stats, fmt.Errorf("compliance row %d: is_compliant: %w", row, err)
		}
		created, found, err := c.apply(ctx, ds, strings.TrimSpace(fields[idCol]), compliant)
		if err != nil {
			return stats, fmt.Errorf("compliance row %d: %w", row, err)
		}
		switch {
		case !found:
			stats.Unknown++
		case created:
			stats.Created++
		default:
			stats.Updated++
		}
	}
	c.logger.Info("compliance import finished",
		"created", stats.Created,
		"updated", stats.Updated,
		"unknown", stats.Unknown)
	return stats, nil
}

func (c *ComplianceImporter) apply(ctx context.Context, ds *store.DataSource, catalogID string, compliant bool) (created, found bool, err error) {
	obj, err := store.First[store.TrackedObject](ctx, c.store, store.Where{"catalog_id": catalogID})
	if err != nil || obj == nil {
		return false, false, err
	}
	existing, err := store.First[store.ComplianceRecord](ctx, c.store, store.Where{"tracked_object_id": obj.ID})
	if err != nil {
		return false, true, err
	}
	if existing != nil {
		return false, true, c.store.Update(ctx, existing, map[string]any{"is_compliant": compliant})
	}
	rec := &store.ComplianceRecord{TrackedObjectID: obj.ID, DataSourceID: ds.ID, IsCompliant: compliant}
	return true, true, c.store.Create(ctx, rec)
}
