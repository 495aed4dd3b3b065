package db

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gmarcinek/semantic-k/internal/config"
)

func TestBuildDSNForLibsqlAddsToken(t *testing.T) {
	dsn, err := buildDSN("libsql://semantic.example.turso.io", "abc123")
	require.NoError(t, err)
	assert.Equal(t, "libsql://semantic.example.turso.io?authToken=abc123", dsn)
}

func TestBuildDSNKeepsExistingToken(t *testing.T) {
	dsn, err := buildDSN("libsql://semantic.example.turso.io?authToken=keep", "other")
	require.NoError(t, err)
	assert.Equal(t, "libsql://semantic.example.turso.io?authToken=keep", dsn)
}

func TestBuildDSNForFileURL(t *testing.T) {
	dsn, err := buildDSN("file:local.db", "ignored")
	require.NoError(t, err)
	assert.Equal(t, "file:local.db", dsn)

	_, err = buildDSN("  ", "")
	assert.Error(t, err)
}

func TestDriverName(t *testing.T) {
	assert.Equal(t, "sqlite", driverName("file:local.db"))
	assert.Equal(t, "sqlite", driverName(":memory:"))
	assert.Equal(t, "libsql", driverName("libsql://semantic.example.turso.io"))
	assert.Equal(t, "libsql", driverName("https://semantic.example.turso.io"))
}

func TestOpenAndMigrateLocalFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "semantic.db")
	database, err := Open(config.Config{DatabaseURL: "file:" + path})
	require.NoError(t, err)
	defer database.Close()

	ctx := context.Background()
	require.NoError(t, Migrate(ctx, database))
	require.NoError(t, Migrate(ctx, database), "migration is repeatable")

	var tables int
	require.NoError(t, database.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name IN ('chat_sessions', 'chat_messages')`,
	).Scan(&tables))
	assert.Equal(t, 2, tables)
}
