package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"library-presence-backend/internal/model"
	"library-presence-backend/internal/presence"
)

// EventStore is the append-only log of status changes.
type EventStore interface {
	Append(ctx context.Context, ev presence.Event) error
	FetchAll(ctx context.Context, order Order) ([]presence.Event, error)
	// FetchLatestFor returns nil without error when the user has no events.
	FetchLatestFor(ctx context.Context, userCode string) (*presence.Event, error)
}

// PreferenceStore persists small client settings across restarts.
type PreferenceStore interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
}

// GormStore implements EventStore and PreferenceStore using GORM.
type GormStore struct {
	db    *gorm.DB
	newID func() string
}

// NewGormStore creates a new GORM-backed store.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{
		db:    db,
		newID: func() string { return uuid.NewString() },
	}
}

// Append stores a new event. Events are never updated or deleted.
func (s *GormStore) Append(ctx context.Context, ev presence.Event) error {
	if ev.UserCode == "" || !ev.Status.Valid() || ev.Timestamp.IsZero() {
		return fmt.Errorf("%w: %+v", ErrInvalidEvent, ev)
	}

	record := model.StatusRecord{
		ID:        s.newID(),
		UserCode:  ev.UserCode,
		Status:    string(ev.Status),
		Timestamp: ev.Timestamp.UTC(),
		CreatedAt: time.Now().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(&record).Error; err != nil {
		return &Error{Op: "append", Err: err}
	}
	return nil
}

// FetchAll returns the whole log ordered by timestamp.
func (s *GormStore) FetchAll(ctx context.Context, order Order) ([]presence.Event, error) {
	desc := order == Descending
	var records []model.StatusRecord
	err := s.db.WithContext(ctx).
		Order(clause.OrderByColumn{Column: clause.Column{Name: "timestamp"}, Desc: desc}).
		Order(clause.OrderByColumn{Column: clause.Column{Name: "created_at"}, Desc: desc}).
		Find(&records).Error
	if err != nil {
		return nil, &Error{Op: "fetch all", Err: err}
	}

	events := make([]presence.Event, 0, len(records))
	for _, r := range records {
		ev, err := toEvent(r)
		if err != nil {
			return nil, &Error{Op: "fetch all", Err: err}
		}
		events = append(events, ev)
	}
	return events, nil
}

// FetchLatestFor returns the most recent event of one user.
func (s *GormStore) FetchLatestFor(ctx context.Context, userCode string) (*presence.Event, error) {
	var record model.StatusRecord
	err := s.db.WithContext(ctx).
		Where("user_code = ?", userCode).
		Order(clause.OrderByColumn{Column: clause.Column{Name: "timestamp"}, Desc: true}).
		Order(clause.OrderByColumn{Column: clause.Column{Name: "created_at"}, Desc: true}).
		Limit(1).
		Find(&record).Error
	if err != nil {
		return nil, &Error{Op: "fetch latest", Err: err}
	}
	if record.ID == "" {
		return nil, nil
	}

	ev, err := toEvent(record)
	if err != nil {
		return nil, &Error{Op: "fetch latest", Err: err}
	}
	return &ev, nil
}

// Get reads a preference.
func (s *GormStore) Get(ctx context.Context, key string) (string, bool, error) {
	var pref model.Preference
	err := s.db.WithContext(ctx).First(&pref, "key = ?", key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, &Error{Op: "get preference", Err: err}
	}
	return pref.Value, true, nil
}

// Set writes a preference, replacing any previous value.
func (s *GormStore) Set(ctx context.Context, key, value string) error {
	pref := model.Preference{Key: key, Value: value, UpdatedAt: time.Now().UTC()}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&pref).Error
	if err != nil {
		return &Error{Op: "set preference", Err: err}
	}
	return nil
}

func toEvent(r model.StatusRecord) (presence.Event, error) {
	status, err := presence.ParseStatus(r.Status)
	if err != nil {
		return presence.Event{}, fmt.Errorf("record %s: %w", r.ID, err)
	}
	return presence.Event{
		UserCode:  r.UserCode,
		Status:    status,
		Timestamp: r.Timestamp,
	}, nil
}
