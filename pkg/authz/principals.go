package authz

import (
	"context"
	"fmt"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/IBM/arcade/pkg/store"
)

// CreatePrincipal creates a principal and grants it every data source that
// is public at this moment. Sources created or made public later are not
// granted automatically.
func CreatePrincipal(ctx context.Context, s store.EntityStore, name string, admin bool) (*store.Principal, error) {
	p := &store.Principal{Name: name, Admin: admin}
	err := s.Transaction(ctx, func(tx store.EntityStore) error {
		if err := tx.Create(ctx, p); err != nil {
			return err
		}
		var public []store.DataSource
		if err := tx.Find(ctx, &public, store.QueryOptions{Where: store.Where{"is_public": true}}); err != nil {
			return err
		}
		targets := make([]any, len(public))
		for i := range public {
			targets[i] = &public[i]
		}
		return tx.Connect(ctx, p, store.RelationGrants, targets...)
	})
	if err != nil {
		return nil, fmt.Errorf("create principal %q: %w", name, err)
	}
	return p, nil
}

// PrincipalByName returns the named principal, or nil when none exists.
func PrincipalByName(ctx context.Context, s store.EntityStore, name string) (*store.Principal, error) {
	return store.First[store.Principal](ctx, s, store.Where{"name": name})
}

// Grant adds the named data source to the principal's grants. Granting a
// source twice is a no-op.
func Grant(ctx context.Context, s store.EntityStore, p *store.Principal, sourceName string) error {
	ds, err := store.First[store.DataSource](ctx, s, store.Where{"name": sourceName})
	if err != nil {
		return err
	}
	if ds == nil {
		return fmt.Errorf("data source %q: %w", sourceName, store.ErrNotFound)
	}
	granted, err := GrantedSources(ctx, s, p.ID)
	if err != nil {
		return err
	}
	if granted.Contains(ds.ID) {
		return nil
	}
	if err := s.Connect(ctx, p, store.RelationGrants, ds); err != nil {
		return fmt.Errorf("grant %q to %q: %w", sourceName, p.Name, err)
	}
	return nil
}

// GrantedSources returns the IDs of the data sources the principal may read.
func GrantedSources(ctx context.Context, s store.EntityStore, principalID uint) (mapset.Set[uint], error) {
	var sources []store.DataSource
	if err := s.Traverse(ctx, &store.Principal{ID: principalID}, store.RelationGrants, &sources, store.QueryOptions{}); err != nil {
		return nil, err
	}
	ids := mapset.NewSet[uint]()
	for _, ds := range sources {
		ids.Add(ds.ID)
	}
	return ids, nil
}

// GrantAuthorizer allows a read when the record's data source is among the
// principal's grants.
type GrantAuthorizer struct {
	store store.EntityStore
}

// NewGrantAuthorizer creates a GrantAuthorizer over s.
func NewGrantAuthorizer(s store.EntityStore) *GrantAuthorizer {
	return &GrantAuthorizer{store: s}
}

func (g *GrantAuthorizer) Authorize(ctx context.Context, req AccessRequest) (bool, error) {
	granted, err := GrantedSources(ctx, g.store, req.PrincipalID)
	if err != nil {
		return false, fmt.Errorf("load grants of principal %d: %w", req.PrincipalID, err)
	}
	return granted.Contains(req.SourceID), nil
}
