package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"library-presence-backend/internal/model"
	"library-presence-backend/internal/presence"
)

// A helper function to create a mock database connection.
func newMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	gormDB, err := gorm.Open(postgres.New(postgres.Config{
		Conn: db,
	}), &gorm.Config{})
	require.NoError(t, err)

	return gormDB, mock
}

func newSQLiteStore(t *testing.T) *GormStore {
	t.Helper()
	gormDB, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "store.db")), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, gormDB.AutoMigrate(&model.StatusRecord{}, &model.Preference{}))

	sqlDB, err := gormDB.DB()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	return NewGormStore(gormDB)
}

var base = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

func TestGormStore_AppendAndFetch(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()

	events := []presence.Event{
		{UserCode: "BOB", Status: presence.StatusIn, Timestamp: base.Add(10 * time.Minute)},
		{UserCode: "ALICE", Status: presence.StatusIn, Timestamp: base},
		{UserCode: "ALICE", Status: presence.StatusOut, Timestamp: base.Add(time.Hour)},
	}
	for _, ev := range events {
		require.NoError(t, s.Append(ctx, ev))
	}

	asc, err := s.FetchAll(ctx, Ascending)
	require.NoError(t, err)
	require.Len(t, asc, 3)
	assert.Equal(t, "ALICE", asc[0].UserCode)
	assert.True(t, asc[0].Timestamp.Equal(base))
	assert.Equal(t, presence.StatusOut, asc[2].Status)

	desc, err := s.FetchAll(ctx, Descending)
	require.NoError(t, err)
	require.Len(t, desc, 3)
	assert.True(t, desc[0].Timestamp.Equal(base.Add(time.Hour)))
	assert.True(t, desc[2].Timestamp.Equal(base))
}

func TestGormStore_FetchLatestFor(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()

	latest, err := s.FetchLatestFor(ctx, "NOBODY")
	require.NoError(t, err)
	assert.Nil(t, latest, "a user without events has no latest record")

	require.NoError(t, s.Append(ctx, presence.Event{UserCode: "ALICE", Status: presence.StatusIn, Timestamp: base}))
	require.NoError(t, s.Append(ctx, presence.Event{UserCode: "ALICE", Status: presence.StatusOut, Timestamp: base.Add(time.Hour)}))
	require.NoError(t, s.Append(ctx, presence.Event{UserCode: "BOB", Status: presence.StatusIn, Timestamp: base.Add(2 * time.Hour)}))

	latest, err = s.FetchLatestFor(ctx, "ALICE")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, presence.StatusOut, latest.Status)
	assert.True(t, latest.Timestamp.Equal(base.Add(time.Hour)))
}

func TestGormStore_AppendRejectsInvalid(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()

	testCases := []struct {
		name string
		ev   presence.Event
	}{
		{name: "empty code", ev: presence.Event{Status: presence.StatusIn, Timestamp: base}},
		{name: "unknown status", ev: presence.Event{UserCode: "A", Status: "maybe", Timestamp: base}},
		{name: "zero timestamp", ev: presence.Event{UserCode: "A", Status: presence.StatusIn}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.ErrorIs(t, s.Append(ctx, tc.ev), ErrInvalidEvent)
		})
	}
}

func TestGormStore_Preferences(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()

	_, ok, err := s.Get(ctx, PrefUserCode)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Set(ctx, PrefUserCode, "ALICE"))
	require.NoError(t, s.Set(ctx, PrefUserCode, "BOB"))

	value, ok, err := s.Get(ctx, PrefUserCode)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "BOB", value)
}

func TestGormStore_BackendErrorsAreWrapped(t *testing.T) {
	gormDB, mock := newMockDB(t)
	s := NewGormStore(gormDB)
	backendErr := errors.New("connection refused")

	mock.ExpectQuery(`SELECT \* FROM "status_records"`).WillReturnError(backendErr)
	_, err := s.FetchAll(context.Background(), Descending)

	var storeErr *Error
	require.ErrorAs(t, err, &storeErr)
	assert.Equal(t, "fetch all", storeErr.Op)
	assert.ErrorIs(t, err, backendErr)

	mock.ExpectQuery(`SELECT \* FROM "status_records" WHERE user_code = \$1`).
		WithArgs("ALICE", 1).
		WillReturnError(backendErr)
	_, err = s.FetchLatestFor(context.Background(), "ALICE")
	require.ErrorAs(t, err, &storeErr)
	assert.Equal(t, "fetch latest", storeErr.Op)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormStore_FetchAllOrdersByTimestamp(t *testing.T) {
	gormDB, mock := newMockDB(t)
	s := NewGormStore(gormDB)

	mock.ExpectQuery(`SELECT \* FROM "status_records" ORDER BY "timestamp" DESC,"created_at" DESC`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_code", "status", "timestamp", "created_at"}).
			AddRow("b", "BOB", "in", base.Add(time.Minute), base).
			AddRow("a", "ALICE", "out", base, base))

	events, err := s.FetchAll(context.Background(), Descending)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "BOB", events[0].UserCode)
	assert.Equal(t, presence.StatusOut, events[1].Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormStore_CorruptStatusIsReported(t *testing.T) {
	gormDB, mock := newMockDB(t)
	s := NewGormStore(gormDB)

	mock.ExpectQuery(`SELECT \* FROM "status_records"`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_code", "status", "timestamp", "created_at"}).
			AddRow("x", "ALICE", "sideways", base, base))

	_, err := s.FetchAll(context.Background(), Ascending)
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
