package database

import (
	"testing"

	"agora/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchemaPolicy(t *testing.T) {
	tests := []struct {
		name        string
		cfg         config.Config
		wantSQL     bool
		wantAuto    bool
		expectError bool
	}{
		{name: "hybrid dev", cfg: config.Config{DBDriver: "postgres", DBSchemaMode: "hybrid", Env: "development"}, wantSQL: true, wantAuto: true},
		{name: "hybrid prod", cfg: config.Config{DBDriver: "postgres", DBSchemaMode: "hybrid", Env: "production"}, wantSQL: true},
		{name: "empty defaults to hybrid", cfg: config.Config{DBDriver: "postgres", Env: "staging"}, wantSQL: true},
		{name: "sql", cfg: config.Config{DBDriver: "postgres", DBSchemaMode: "SQL", Env: "development"}, wantSQL: true},
		{name: "auto dev", cfg: config.Config{DBDriver: "postgres", DBSchemaMode: "auto", Env: "development"}, wantAuto: true},
		{name: "auto prod refused", cfg: config.Config{DBDriver: "postgres", DBSchemaMode: "auto", Env: "prod"}, expectError: true},
		{name: "auto prod allowed", cfg: config.Config{DBDriver: "postgres", DBSchemaMode: "auto", Env: "prod", DBAutoMigrateAllowDestructive: true}, wantAuto: true},
		{name: "sqlite always auto", cfg: config.Config{DBDriver: "sqlite", DBSchemaMode: "sql", Env: "test"}, wantAuto: true},
		{name: "unknown mode", cfg: config.Config{DBDriver: "postgres", DBSchemaMode: "yolo"}, expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runSQL, runAuto, err := schemaPolicy(&tt.cfg)
			if tt.expectError {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantSQL, runSQL)
			assert.Equal(t, tt.wantAuto, runAuto)
		})
	}
}

func TestAvailableMigrations(t *testing.T) {
	versions, err := AvailableMigrations()
	require.NoError(t, err)
	assert.Equal(t, []uint{1, 2}, versions)
}

func TestNewMigrator_RejectsSQLite(t *testing.T) {
	db, err := Connect(sqliteConfig(t))
	require.NoError(t, err)
	_, err = NewMigrator(db)
	assert.Error(t, err)
}

func TestGetSchemaStatus_SQLite(t *testing.T) {
	cfg := sqliteConfig(t)
	db, err := Connect(cfg)
	require.NoError(t, err)

	status, err := GetSchemaStatus(t.Context(), db, cfg)
	require.NoError(t, err)
	assert.False(t, status.WillRunSQL)
	assert.True(t, status.WillRunAutoMigrate)
	assert.Equal(t, "sqlite", status.Driver)
}
