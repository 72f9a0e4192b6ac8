package database

import (
	"io/fs"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrationVersions_Sorted(t *testing.T) {
	fsys := fstest.MapFS{
		"010_late.sql":  {Data: []byte("SELECT 1;")},
		"001_first.sql": {Data: []byte("SELECT 1;")},
		"README.md":     {Data: []byte("ignored")},
	}

	versions, err := MigrationVersions(fsys)
	require.NoError(t, err)
	assert.Equal(t, []string{"001_first.sql", "010_late.sql"}, versions)
}

func TestEmbeddedMigrations(t *testing.T) {
	sub, err := fs.Sub(migrationFS, "migrations")
	require.NoError(t, err)

	versions, err := MigrationVersions(sub)
	require.NoError(t, err)
	assert.Equal(t, []string{"001_documents.sql", "002_chunks.sql"}, versions)

	body, err := fs.ReadFile(sub, "002_chunks.sql")
	require.NoError(t, err)
	assert.Contains(t, string(body), "CREATE EXTENSION IF NOT EXISTS vector")
}
