package go_fs

import (
	"os"
	"path/filepath"
	"strings"
)

// folderPrefix is the on-disk namespacing the original bloomd used for each
// filter's data directory, kept unchanged so an operator migrating an
// existing data_dir does not need to rename anything.
const folderPrefix = "bloomd."

// ListFilterDirs scans dataDir for subdirectories named folderPrefix+name
// and returns the decoded filter names, in the order os.ReadDir yields them.
// A directory entry that isn't a directory, or whose name is exactly the
// prefix (empty filter name), is skipped rather than treated as an error —
// mirroring the original filter_manager.c's tolerance for stray entries in
// data_dir.
func ListFilterDirs(dataDir string) ([]string, error) {
	entries, err := os.ReadDir(dataDir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if !strings.HasPrefix(e.Name(), folderPrefix) {
			continue
		}
		name := e.Name()[len(folderPrefix):]
		if name == "" {
			continue
		}
		names = append(names, name)
	}
	return names, nil
}

// FilterDir returns the directory a named filter's own Storage should be
// rooted at within dataDir.
func FilterDir(dataDir, name string) string {
	return filepath.Join(dataDir, folderPrefix+name)
}
