package migrations

import (
	"testing"

	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddedMigrations(t *testing.T) {
	src, err := iofs.New(migrationFiles, "files")
	require.NoError(t, err)
	defer src.Close()

	latest, err := latestVersion(src)
	require.NoError(t, err)
	assert.Equal(t, uint(1), latest)

	up, ident, err := src.ReadUp(1)
	require.NoError(t, err)
	defer up.Close()
	assert.Equal(t, "create_documents", ident)

	down, _, err := src.ReadDown(1)
	require.NoError(t, err)
	down.Close()
}
