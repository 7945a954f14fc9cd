package migration

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/orris-inc/paygate/internal/shared/logger"
)

func TestScriptsDir(t *testing.T) {
	dir, err := ScriptsDir("mysql")
	require.NoError(t, err)
	assert.Equal(t, "scripts/mysql", dir)

	dir, err = ScriptsDir("postgres")
	require.NoError(t, err)
	assert.Equal(t, "scripts/postgres", dir)

	_, err = ScriptsDir("sqlite")
	assert.Error(t, err)
}

// Both dialects must ship the same migration versions.
func TestEmbeddedScripts_MatchAcrossDialects(t *testing.T) {
	names := func(dir string) []string {
		matches, err := fs.Glob(embeddedScripts, dir+"/*.sql")
		require.NoError(t, err)
		out := make([]string, 0, len(matches))
		for _, m := range matches {
			out = append(out, strings.TrimPrefix(m, dir+"/"))
		}
		return out
	}

	mysql := names("scripts/mysql")
	require.NotEmpty(t, mysql)
	assert.Equal(t, mysql, names("scripts/postgres"))

	for _, dir := range []string{"scripts/mysql", "scripts/postgres"} {
		for _, name := range names(dir) {
			body, err := fs.ReadFile(embeddedScripts, dir+"/"+name)
			require.NoError(t, err)
			assert.Contains(t, string(body), "-- +goose Up", name)
			assert.Contains(t, string(body), "-- +goose Down", name)
		}
	}
}

func TestGooseStrategy_RejectsUnknownDialect(t *testing.T) {
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{Logger: gormlogger.Discard})
	require.NoError(t, err)

	_, err = NewGooseStrategy(logger.NewNop()).GetVersion(db)
	assert.ErrorContains(t, err, "no migration scripts")
}

func TestManager_AutoMigrateCreatesPaymentTables(t *testing.T) {
	db, err := gorm.Open(sqlite.Open("file:automigrate?mode=memory&cache=shared"), &gorm.Config{Logger: gormlogger.Discard})
	require.NoError(t, err)

	m := NewManager("development", logger.NewNop())
	assert.Equal(t, "gorm_auto_migrate", m.GetStrategy().GetName())
	require.NoError(t, m.Migrate(db))

	for _, table := range []string{
		"payment_transactions",
		"payment_transaction_events",
		"payment_callback_events",
		"payment_recovery_notifications",
		"payment_gateways",
	} {
		assert.True(t, db.Migrator().HasTable(table), table)
	}
}

func TestNewManager_UsesGooseOutsideDevelopment(t *testing.T) {
	assert.Equal(t, "goose", NewManager("production", logger.NewNop()).GetStrategy().GetName())
	assert.Equal(t, "goose", NewManager("test", logger.NewNop()).GetStrategy().GetName())
}
