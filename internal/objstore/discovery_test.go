package go_fs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestListFilterDirs(t *testing.T) {
	dataDir := t.TempDir()

	require.NoError(t, os.Mkdir(filepath.Join(dataDir, "bloomd.orders"), 0o755))
	require.NoError(t, os.Mkdir(filepath.Join(dataDir, "bloomd.users"), 0o755))
	require.NoError(t, os.Mkdir(filepath.Join(dataDir, "not-a-filter-dir"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dataDir, "bloomd.stray-file"), []byte("x"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dataDir, "bloomd."), 0o755))

	names, err := ListFilterDirs(dataDir)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"orders", "users"}, names)
}

func TestListFilterDirs_MissingDataDirIsNotAnError(t *testing.T) {
	names, err := ListFilterDirs(filepath.Join(t.TempDir(), "does-not-exist"))
	require.NoError(t, err)
	require.Empty(t, names)
}

func TestFilterDir(t *testing.T) {
	require.Equal(t, filepath.Join("/data", "bloomd.orders"), FilterDir("/data", "orders"))
}
