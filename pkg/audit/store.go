// Package audit keeps the append-only log of successful record reads and
// serves it to administrators.
package audit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"gorm.io/gorm"

	"github.com/IBM/arcade/pkg/authz"
	"github.com/IBM/arcade/pkg/store"
)

// AccessStore provides append-only operations on access events.
type AccessStore struct {
	db *gorm.DB
}

// NewAccessStore creates a new AccessStore.
func NewAccessStore(db *gorm.DB) *AccessStore {
	return &AccessStore{db: db}
}

var _ authz.AccessLog = (*AccessStore)(nil)

// Append records one access event.
func (s *AccessStore) Append(ctx context.Context, event *store.AccessEvent) error {
	if err := s.db.WithContext(ctx).Create(event).Error; err != nil {
		return fmt.Errorf("append access event: %w", err)
	}
	return nil
}

// EventFilter narrows List. Zero values match everything.
type EventFilter struct {
	PrincipalID uint
	RecordKind  string
	RecordID    uint
	Endpoint    string
}

func (f EventFilter) apply(q *gorm.DB) *gorm.DB {
	if f.PrincipalID != 0 {
		q = q.Where("principal_id = ?", f.PrincipalID)
	}
	if f.RecordKind != "" {
		q = q.Where("record_kind = ?", f.RecordKind)
	}
	if f.RecordID != 0 {
		q = q.Where("record_id = ?", f.RecordID)
	}
	if f.Endpoint != "" {
		q = q.Where("endpoint = ?", f.Endpoint)
	}
	return q
}

// List returns paginated events matching filter, newest first.
// pageToken is the ID of the last event of the previous page.
func (s *AccessStore) List(ctx context.Context, filter EventFilter, pageSize int, pageToken string) ([]store.AccessEvent, string, int, error) {
	if pageSize <= 0 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}

	db := s.db.WithContext(ctx)
	var totalSize int64
	if err := filter.apply(db.Model(&store.AccessEvent{})).Count(&totalSize).Error; err != nil {
		return nil, "", 0, fmt.Errorf("count access events: %w", err)
	}

	query := filter.apply(db.Model(&store.AccessEvent{})).Preload("Principal").Order("id DESC").Limit(pageSize + 1)
	if pageToken != "" {
		last, err := strconv.ParseUint(pageToken, 10, 64)
		if err != nil {
			return nil, "", 0, fmt.Errorf("invalid page token: %w", err)
		}
		query = query.Where("id < ?", last)
	}

	var records []store.AccessEvent
	if err := query.Find(&records).Error; err != nil {
		return nil, "", 0, fmt.Errorf("list access events: %w", err)
	}

	var nextToken string
	if len(records) > pageSize {
		nextToken = strconv.FormatUint(uint64(records[pageSize-1].ID), 10)
		records = records[:pageSize]
	}
	return records, nextToken, int(totalSize), nil
}

// ListByPrincipal returns the principal's events, newest first.
func (s *AccessStore) ListByPrincipal(ctx context.Context, principalID uint, pageSize int, pageToken string) ([]store.AccessEvent, string, int, error) {
	return s.List(ctx, EventFilter{PrincipalID: principalID}, pageSize, pageToken)
}

// GetByID returns one event, or nil.
func (s *AccessStore) GetByID(ctx context.Context, id uint) (*store.AccessEvent, error) {
	var ev store.AccessEvent
	res := s.db.WithContext(ctx).Preload("Principal").Where("id = ?", id).Limit(1).Find(&ev)
	if res.Error != nil {
		return nil, fmt.Errorf("get access event: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, nil
	}
	return &ev, nil
}

// Count returns the number of events matching filter.
func (s *AccessStore) Count(ctx context.Context, filter EventFilter) (int64, error) {
	var n int64
	if err := filter.apply(s.db.WithContext(ctx).Model(&store.AccessEvent{})).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count access events: %w", err)
	}
	return n, nil
}

// UserReport is the number of reads of one principal.
type UserReport struct {
	Principal   string `json:"principal"`
	AccessCount int64  `json:"access_count"`
}

// UserReport returns the access count of every principal with at least one
// logged read, ordered by principal name.
func (s *AccessStore) UserReport(ctx context.Context) ([]UserReport, error) {
	var rows []UserReport
	err := s.db.WithContext(ctx).Model(&store.AccessEvent{}).
		Select("principals.name AS principal, COUNT(access_events.id) AS access_count").
		Joins("JOIN principals ON principals.id = access_events.principal_id").
		Group("principals.name").
		Order("principals.name").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("user report: %w", err)
	}
	return rows, nil
}

// DeleteOlderThan deletes events created before cutoff and returns how many
// were removed.
func (s *AccessStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result := s.db.WithContext(ctx).Where("created_at < ?", cutoff).Delete(&store.AccessEvent{})
	if result.Error != nil {
		return 0, fmt.Errorf("delete old access events: %w", result.Error)
	}
	return result.RowsAffected, nil
}
