// Package store is the persistence layer: gorm models for the ephemeris data
// graph and a small entity store contract over them.
package store

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrNotFound is returned by lookups that require an existing entity.
var ErrNotFound = errors.New("entity not found")

// Where holds column equality predicates.
type Where map[string]any

// QueryOptions narrows and orders a listing or relationship traversal.
type QueryOptions struct {
	Where   Where
	OrderBy string
	Desc    bool
	Limit   int
	Offset  int
}

// EntityStore is the persistence contract the import pipeline and the access
// layer are written against. Entities are pointers to gorm models. Each call
// is atomic on its own; Transaction groups calls when the backend supports it.
type EntityStore interface {
	Create(ctx context.Context, entity any) error
	// FindFirst loads the first entity matching where into dest and reports
	// whether one existed.
	FindFirst(ctx context.Context, dest any, where Where) (bool, error)
	Find(ctx context.Context, dest any, opts QueryOptions) error
	Count(ctx context.Context, model any, where Where) (int64, error)
	Update(ctx context.Context, entity any, fields map[string]any) error
	Delete(ctx context.Context, entity any) error
	// Connect appends targets to the owner's named relationship.
	Connect(ctx context.Context, owner any, relation string, targets ...any) error
	// Traverse loads the owner's named relationship into dest.
	Traverse(ctx context.Context, owner any, relation string, dest any, opts QueryOptions) error
	Transaction(ctx context.Context, fn func(tx EntityStore) error) error
}

// GormStore implements EntityStore on a gorm database handle.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore creates a GormStore.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// DB returns the underlying handle.
func (s *GormStore) DB() *gorm.DB { return s.db }

func (s *GormStore) Create(ctx context.Context, entity any) error {
	if err := s.db.WithContext(ctx).Create(entity).Error; err != nil {
		return fmt.Errorf("create %T: %w", entity, err)
	}
	return nil
}

func (s *GormStore) FindFirst(ctx context.Context, dest any, where Where) (bool, error) {
	err := s.db.WithContext(ctx).Where(map[string]any(where)).First(dest).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("find %T: %w", dest, err)
	}
	return true, nil
}

func (s *GormStore) Find(ctx context.Context, dest any, opts QueryOptions) error {
	if err := applyOptions(s.db.WithContext(ctx), opts).Find(dest).Error; err != nil {
		return fmt.Errorf("find %T: %w", dest, err)
	}
	return nil
}

func (s *GormStore) Count(ctx context.Context, model any, where Where) (int64, error) {
	var n int64
	q := s.db.WithContext(ctx).Model(model)
	if len(where) > 0 {
		q = q.Where(map[string]any(where))
	}
	if err := q.Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count %T: %w", model, err)
	}
	return n, nil
}

func (s *GormStore) Update(ctx context.Context, entity any, fields map[string]any) error {
	if err := s.db.WithContext(ctx).Model(entity).Updates(fields).Error; err != nil {
		return fmt.Errorf("update %T: %w", entity, err)
	}
	return nil
}

func (s *GormStore) Delete(ctx context.Context, entity any) error {
	if err := s.db.WithContext(ctx).Delete(entity).Error; err != nil {
		return fmt.Errorf("delete %T: %w", entity, err)
	}
	return nil
}

func (s *GormStore) Connect(ctx context.Context, owner any, relation string, targets ...any) error {
	if len(targets) == 0 {
		return nil
	}
	if err := s.db.WithContext(ctx).Model(owner).Association(relation).Append(targets...); err != nil {
		return fmt.Errorf("connect %T.%s: %w", owner, relation, err)
	}
	return nil
}

func (s *GormStore) Traverse(ctx context.Context, owner any, relation string, dest any, opts QueryOptions) error {
	q := applyOptions(s.db.WithContext(ctx).Model(owner), opts)
	if err := q.Association(relation).Find(dest); err != nil {
		return fmt.Errorf("traverse %T.%s: %w", owner, relation, err)
	}
	return nil
}

func (s *GormStore) Transaction(ctx context.Context, fn func(tx EntityStore) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&GormStore{db: tx})
	})
}

func applyOptions(q *gorm.DB, opts QueryOptions) *gorm.DB {
	if len(opts.Where) > 0 {
		q = q.Where(map[string]any(opts.Where))
	}
	if opts.OrderBy != "" {
		q = q.Order(clause.OrderByColumn{Column: clause.Column{Name: opts.OrderBy}, Desc: opts.Desc})
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	return q
}

// First loads a single entity of type T matching where. It returns nil when
// none exists.
func First[T any](ctx context.Context, s EntityStore, where Where) (*T, error) {
	var out T
	found, err := s.FindFirst(ctx, &out, where)
	if err != nil || !found {
		return nil, err
	}
	return &out, nil
}

// FirstRelated orders the owner's relationship and returns its first
// element, or nil when the relationship is empty.
func FirstRelated[T any](ctx context.Context, s EntityStore, owner any, relation string, opts QueryOptions) (*T, error) {
	opts.Limit = 1
	var out []T
	if err := s.Traverse(ctx, owner, relation, &out, opts); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, nil
	}
	return &out[0], nil
}

// FindOrCreate returns the entity matching where, creating it from seed when
// absent. A concurrent creator winning the unique index race is resolved by
// reading back its row.
func FindOrCreate[T any](ctx context.Context, s EntityStore, where Where, seed *T) (*T, bool, error) {
	existing, err := First[T](ctx, s, where)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		return existing, false, nil
	}
	if err := s.Create(ctx, seed); err != nil {
		existing, lookupErr := First[T](ctx, s, where)
		if lookupErr == nil && existing != nil {
			return existing, false, nil
		}
		return nil, false, err
	}
	return seed, true, nil
}
