package db

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunMigrations_Idempotent(t *testing.T) {
	ctx := context.Background()
	sqlDB, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	d := dialects["sqlite"]
	for i := 0; i < 2; i++ {
		require.NoError(t, RunMigrations(ctx, sqlDB, d), "pass %d", i+1)
	}

	var n int
	require.NoError(t, sqlDB.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_migrations").Scan(&n))
	assert.Equal(t, 1, n)
	for _, table := range []string{"runs", "audit_log"} {
		_, err := sqlDB.ExecContext(ctx, "SELECT 1 FROM "+table)
		assert.NoError(t, err, "table %s", table)
	}
}

func TestEveryDialectHasMigrations(t *testing.T) {
	for name := range dialects {
		entries, err := embeddedMigrations.ReadDir("migrations/" + name)
		require.NoError(t, err, name)
		assert.NotEmpty(t, entries, name)
	}
}

func TestSplitStatements(t *testing.T) {
	got := splitStatements("CREATE TABLE a (x INT);\n\n CREATE INDEX i ON a (x);\n")
	assert.Equal(t, []string{"CREATE TABLE a (x INT)", "CREATE INDEX i ON a (x)"}, got)
}

func TestPrepareDSN(t *testing.T) {
	got, err := prepareSqliteDSN("./regvault.db")
	require.NoError(t, err)
	assert.Equal(t, "./regvault.db?_pragma=busy_timeout(5000)", got)

	got, err = prepareSqliteDSN(":memory:")
	require.NoError(t, err)
	assert.Equal(t, ":memory:", got)

	got, err = prepareMySQLDSN("user:pw@tcp(db:3306)/regvault")
	require.NoError(t, err)
	assert.Contains(t, got, "parseTime=true")

	_, err = preparePostgresDSN("postgres://user@localhost:5432/regvault")
	assert.NoError(t, err)
}
