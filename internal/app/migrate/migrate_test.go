package migrate

import (
	"testing"
	"testing/fstest"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/splax/slaguard/db"
)

func TestEmbeddedMigrationsPresent(t *testing.T) {
	entries, err := db.Migrations.ReadDir(db.MigrationsDir)
	require.NoError(t, err)
	require.NotEmpty(t, entries)
	assert.Equal(t, "00001_init.sql", entries[0].Name())
}

func TestNewRejectsIncompleteInput(t *testing.T) {
	_, err := New(nil, "postgres://localhost/slaguard", nil)
	assert.EqualError(t, err, "nil pool provided")

	pool := &pgxpool.Pool{}
	_, err = NewWithFS(pool, "", db.Migrations, db.MigrationsDir, nil)
	assert.EqualError(t, err, "empty database dsn")

	_, err = NewWithFS(pool, "postgres://localhost/slaguard", fstest.MapFS{}, "migrations", nil)
	assert.ErrorContains(t, err, "locate migrations dir")

	runner, err := NewWithFS(pool, "postgres://localhost/slaguard", fstest.MapFS{
		"sql/00001_init.sql": &fstest.MapFile{Data: []byte("-- +goose Up\n")},
	}, "sql", nil)
	require.NoError(t, err)
	assert.Equal(t, "sql", runner.dir)
}
