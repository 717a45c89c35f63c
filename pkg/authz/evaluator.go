package authz

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/IBM/arcade/pkg/store"
)

// AccessLog appends access events. It is implemented by audit.AccessStore.
type AccessLog interface {
	Append(ctx context.Context, event *store.AccessEvent) error
}

type storeAccessLog struct {
	store store.EntityStore
}

func (l storeAccessLog) Append(ctx context.Context, event *store.AccessEvent) error {
	return l.store.Create(ctx, event)
}

// Evaluator answers read requests: it finds the newest records of a tracked
// object, decides whether a principal may read them and logs every read.
type Evaluator struct {
	store      store.EntityStore
	authorizer Authorizer
	log        AccessLog
	logger     *slog.Logger
}

// NewEvaluator creates an Evaluator. A nil authorizer checks grants directly;
// a nil access log writes events through s.
func NewEvaluator(s store.EntityStore, authorizer Authorizer, log AccessLog, logger *slog.Logger) *Evaluator {
	if authorizer == nil {
		authorizer = NewGrantAuthorizer(s)
	}
	if log == nil {
		log = storeAccessLog{store: s}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Evaluator{store: s, authorizer: authorizer, log: log, logger: logger}
}

// TrackedObject returns the object with the given tracking ID, or nil.
func (e *Evaluator) TrackedObject(ctx context.Context, trackingID string) (*store.TrackedObject, error) {
	return store.First[store.TrackedObject](ctx, e.store, store.Where{"tracking_id": trackingID})
}

// LatestRecord returns the record of the object with the latest stop time
// across all sources, or nil when the object is unknown or has no records.
func (e *Evaluator) LatestRecord(ctx context.Context, trackingID string) (*store.EphemerisRecord, error) {
	obj, err := e.TrackedObject(ctx, trackingID)
	if err != nil || obj == nil {
		return nil, err
	}
	return store.FirstRelated[store.EphemerisRecord](ctx, e.store, obj, store.RelationRecords,
		store.QueryOptions{OrderBy: "stop_time", Desc: true})
}

// LatestRecords returns the newest record of the object from every source
// that has one, latest stop time first. Supersession keeps one record per
// source, so these are all of the object's records.
func (e *Evaluator) LatestRecords(ctx context.Context, trackingID string) ([]store.EphemerisRecord, error) {
	obj, err := e.TrackedObject(ctx, trackingID)
	if err != nil || obj == nil {
		return nil, err
	}
	var recs []store.EphemerisRecord
	if err := e.store.Traverse(ctx, obj, store.RelationRecords, &recs,
		store.QueryOptions{OrderBy: "stop_time", Desc: true}); err != nil {
		return nil, err
	}
	seen := make(map[uint]bool, len(recs))
	out := recs[:0]
	for _, r := range recs {
		if seen[r.DataSourceID] {
			continue
		}
		seen[r.DataSourceID] = true
		out = append(out, r)
	}
	return out, nil
}

// Compliance returns the compliance record of the object, or nil.
func (e *Evaluator) Compliance(ctx context.Context, trackingID string) (*store.ComplianceRecord, error) {
	obj, err := e.TrackedObject(ctx, trackingID)
	if err != nil || obj == nil {
		return nil, err
	}
	return store.First[store.ComplianceRecord](ctx, e.store, store.Where{"tracked_object_id": obj.ID})
}

// CanAccess reports whether p may read rec.
func (e *Evaluator) CanAccess(ctx context.Context, p *store.Principal, rec Provenanced) (bool, error) {
	if p == nil || rec == nil {
		return false, nil
	}
	allowed, err := e.authorizer.Authorize(ctx, AccessRequest{PrincipalID: p.ID, SourceID: rec.ProvenanceSourceID()})
	if err != nil {
		return false, fmt.Errorf("authorize %s %d: %w", rec.RecordKind(), rec.RecordID(), err)
	}
	return allowed, nil
}

// Read checks access and, when it is granted, appends exactly one access
// event naming endpoint. Denied reads leave no trace.
func (e *Evaluator) Read(ctx context.Context, p *store.Principal, rec Provenanced, endpoint string) (bool, error) {
	allowed, err := e.CanAccess(ctx, p, rec)
	if err != nil || !allowed {
		return false, err
	}
	event := &store.AccessEvent{
		PrincipalID: p.ID,
		RecordKind:  rec.RecordKind(),
		RecordID:    rec.RecordID(),
		Endpoint:    endpoint,
	}
	if err := e.log.Append(ctx, event); err != nil {
		return false, fmt.Errorf("log access to %s %d: %w", rec.RecordKind(), rec.RecordID(), err)
	}
	e.logger.Debug("record read",
		"principal", p.Name,
		"kind", rec.RecordKind(),
		"recordID", rec.RecordID(),
		"endpoint", endpoint)
	return true, nil
}

// invalidator is implemented by authorizers that remember decisions.
type invalidator interface {
	Invalidate(principalID uint)
}

// Grant adds the named source to p's grants and forgets any decision the
// authorizer cached for p, so the next read sees the new grant.
func (e *Evaluator) Grant(ctx context.Context, p *store.Principal, sourceName string) error {
	if err := Grant(ctx, e.store, p, sourceName); err != nil {
		return err
	}
	if inv, ok := e.authorizer.(invalidator); ok {
		inv.Invalidate(p.ID)
	}
	e.logger.Info("source granted", "principal", p.Name, "source", sourceName)
	return nil
}
