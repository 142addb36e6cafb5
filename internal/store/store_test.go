package store

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/require"
)

func TestExtractUp(t *testing.T) {
	require.Equal(t, "\nCREATE TABLE a(x);\n", ExtractUp("-- +migrate Up\nCREATE TABLE a(x);\n-- +migrate Down\nDROP TABLE a;"))
	require.Equal(t, "\nCREATE TABLE b(x);", ExtractUp("-- header\n-- +migrate Up\nCREATE TABLE b(x);"))
	require.Equal(t, "CREATE TABLE c(x);", ExtractUp("CREATE TABLE c(x);"))
}

func TestLoadMigrations_SortedAndFiltered(t *testing.T) {
	fsys := fstest.MapFS{
		"0002_more.sql":  {Data: []byte("-- +migrate Up\nCREATE TABLE b(x);\n-- +migrate Down\nDROP TABLE b;")},
		"0001_init.sql":  {Data: []byte("-- +migrate Up\nCREATE TABLE a(x);")},
		"0003_empty.sql": {Data: []byte("-- +migrate Up\n\n-- +migrate Down\nDROP TABLE c;")},
		"README.md":      {Data: []byte("not a migration")},
	}

	got, err := LoadMigrations(fsys)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "0001_init.sql", got[0].Name)
	require.Equal(t, "CREATE TABLE a(x);", got[0].SQL)
	require.Equal(t, "0002_more.sql", got[1].Name)
	require.Equal(t, "CREATE TABLE b(x);", got[1].SQL)
}
