// Command bloomd runs the filter manager as a standalone daemon: it loads
// its configuration from flags, starts the manager's background vacuum,
// and blocks until asked to shut down.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	go_block_cache "github.com/datnguyenzzz/bloomd/internal/blockcache"
	"github.com/datnguyenzzz/bloomd/internal/config"
	"github.com/datnguyenzzz/bloomd/internal/filtmgr"
	"github.com/datnguyenzzz/bloomd/internal/metrics"
)

func main() {
	dataDir := flag.String("data-dir", "./data", "root directory filter state is discovered from and persisted under")
	logLevel := flag.String("log-level", "info", "zap log level: debug, info, warn, error")
	bitsPerKey := flag.Int("bits-per-key", 10, "default bloom filter bit density per key")
	capacity := flag.Int("capacity", 10000, "default bloom filter capacity, in keys")
	inMemory := flag.Bool("in-memory", false, "never persist newly created filters to disk")
	vacuumDisposalsPerSec := flag.Int64("vacuum-disposals-per-sec", 256, "max retired entries the vacuum reclaims per second")
	blockCacheSizeBytes := flag.Int64("block-cache-size-bytes", 64*go_block_cache.MiB, "shared decoded-bitset cache size; 0 disables the cache")
	flag.Parse()

	logger, err := buildLogger(*logLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "bloomd: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)

	cfg := config.New(
		config.WithDataDir(*dataDir),
		config.WithBitsPerKey(*bitsPerKey),
		config.WithDefaultCapacity(*capacity),
		config.WithInMemory(*inMemory),
		config.WithVacuumDisposalsPerSec(*vacuumDisposalsPerSec),
		config.WithBlockCacheSizeBytes(*blockCacheSizeBytes),
	)

	opts := []filtmgr.Option{filtmgr.WithMetrics(metrics.NewCollector(prometheus.DefaultRegisterer))}
	if cfg.BlockCacheSizeBytes > 0 {
		cache := go_block_cache.NewMap(
			go_block_cache.WithCacheType(go_block_cache.LRU),
			go_block_cache.WithMaxSize(cfg.BlockCacheSizeBytes),
		)
		opts = append(opts, filtmgr.WithCache(cache))
	}

	mgr, err := filtmgr.New(cfg, opts...)
	if err != nil {
		zap.L().Fatal("bloomd: failed to start", zap.Error(err))
	}

	zap.L().Info("bloomd: started", zap.String("data_dir", cfg.DataDir))

	// With no network front end, the daemon process is its own sole
	// worker: it registers itself with the manager's client registry the
	// same way a per-connection worker would, so Checkpoint/Leave are
	// exercised in the running daemon rather than only by tests.
	selfID := uuid.NewString()
	heartbeatStop, heartbeatDone := startSelfCheckpoint(mgr, selfID, cfg.VacuumInterval)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	zap.L().Info("bloomd: shutting down")
	close(heartbeatStop)
	<-heartbeatDone
	mgr.Leave(selfID)
	mgr.Shutdown()
	zap.L().Info("bloomd: stopped")
}

// startSelfCheckpoint registers clientID with mgr and refreshes it on
// every vacuum cadence tick until stop is closed, at which point done is
// closed.
func startSelfCheckpoint(mgr *filtmgr.Manager, clientID string, interval time.Duration) (stop, done chan struct{}) {
	stop = make(chan struct{})
	done = make(chan struct{})

	mgr.Checkpoint(clientID)

	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				mgr.Checkpoint(clientID)
			}
		}
	}()
	return stop, done
}

func buildLogger(level string) (*zap.Logger, error) {
	var lvl zapcore.Level
	if err := lvl.Set(level); err != nil {
		return nil, fmt.Errorf("invalid -log-level %q: %w", level, err)
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	return cfg.Build()
}
