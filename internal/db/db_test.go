package db

import (
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"library-presence-backend/config"
	"library-presence-backend/internal/model"
)

func TestInit_SQLite(t *testing.T) {
	cfg := &config.DatabaseConfig{
		Driver:       "sqlite",
		DSN:          filepath.Join(t.TempDir(), "presence.db"),
		MaxOpenConns: 1,
	}

	gormDB, err := Init(cfg, zerolog.Nop())
	require.NoError(t, err)
	sqlDB, err := gormDB.DB()
	require.NoError(t, err)
	defer sqlDB.Close()

	assert.True(t, gormDB.Migrator().HasTable(&model.StatusRecord{}))
	assert.True(t, gormDB.Migrator().HasTable(&model.Preference{}))
	assert.True(t, gormDB.Migrator().HasIndex(&model.StatusRecord{}, "idx_status_records_user_ts"))
}

func TestInit_UnknownDriver(t *testing.T) {
	_, err := Init(&config.DatabaseConfig{Driver: "mysql", DSN: "x"}, zerolog.Nop())
	assert.Error(t, err)
}
