package filtmgr

import (
	"go.uber.org/zap"

	go_block_cache "github.com/datnguyenzzz/bloomd/internal/blockcache"
	"github.com/datnguyenzzz/bloomd/internal/bloomfilter"
	"github.com/datnguyenzzz/bloomd/internal/config"
	"github.com/datnguyenzzz/bloomd/internal/nsmap"
	go_fs "github.com/datnguyenzzz/bloomd/internal/objstore"
)

// discover implements spec.md §4.5: scan cfg.DataDir for bloomd.<name>
// directories and open each as a filter, populating the genesis snapshot.
// A per-filter open failure is logged and that filter is skipped; only a
// failure of the scan itself is fatal.
func discover(cfg config.Config, cache go_block_cache.IMap) (*NameSpaceSnapshot, error) {
	genesis := newGenesisSnapshot()

	if cfg.InMemory {
		return genesis, nil
	}

	names, err := go_fs.ListFilterDirs(cfg.DataDir)
	if err != nil {
		return nil, err
	}

	for _, name := range names {
		dir := go_fs.FilterDir(cfg.DataDir, name)
		payload, err := bloomfilter.Open(dir, name, bloomfilter.FromManagerDefault(cfg), cache)
		if err != nil {
			zap.L().Warn("filtmgr: discovery skipped filter",
				zap.String("name", name), zap.Error(err))
			continue
		}
		genesis.m.Insert(nsmap.Key(name), newFilterEntry(payload, nil, false))
	}

	return genesis, nil
}
