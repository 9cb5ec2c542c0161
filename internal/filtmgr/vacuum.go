package filtmgr

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/datnguyenzzz/bloomd/internal/nsmap"
)

func (m *Manager) runVacuum() {
	defer close(m.vacuumDone)

	ticker := time.NewTicker(m.cfg.VacuumInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.vacuumStop:
			m.drainOnShutdown()
			return
		case <-ticker.C:
			m.vacuumPass(false)
		}
	}
}

// VacuumNow forces a full reclamation up to the current head version,
// ignoring the client registry's checkpoint watermark entirely. Must not
// be called while workers are live.
func (m *Manager) VacuumNow() {
	m.vacuumPass(true)
}

// vacuumPass implements spec.md §4.4: compute the reclamation watermark,
// warn on backlog, then dispose every snapshot (and any retired entry it
// carries) strictly older than the watermark.
func (m *Manager) vacuumPass(forced bool) {
	start := time.Now()

	head := m.head.Load()
	if head.predecessor == nil {
		return
	}

	minVsn := head.version
	if !forced {
		if regMin, ok := m.registry.minVersion(); ok && regMin < minVsn {
			minVsn = regMin
		}
	}

	if head.version-minVsn > m.cfg.VacuumWarnThreshold {
		zap.L().Warn("filtmgr: vacuum backlog exceeds warn threshold",
			zap.Uint64("head_version", head.version),
			zap.Uint64("min_version", minVsn))
		m.metrics.WarnBacklog()
	}

	ctx := context.Background()
	if err := m.vacuumLock.AcquireCtx(ctx); err != nil {
		return
	}
	defer m.vacuumLock.ReleaseCtx(ctx)

	// versions are strictly increasing toward head, so the first
	// predecessor whose version is below minVsn marks the boundary: it
	// and everything below it are unreachable by any registered client.
	survivor := head
	for survivor.predecessor != nil && survivor.predecessor.version >= minVsn {
		survivor = survivor.predecessor
	}
	tail := survivor.predecessor
	survivor.predecessor = nil

	var errs error
	disposed := 0
	for s := tail; s != nil; {
		if s.deleted != nil {
			if err := m.disposeEntry(s.deleted); err != nil {
				errs = multierr.Append(errs, err)
			} else {
				disposed++
			}
			s.deleted = nil
		}
		next := s.predecessor
		s.m = nil
		s.predecessor = nil
		disposed++
		s = next
	}

	if errs != nil {
		zap.L().Error("filtmgr: vacuum pass disposal errors", zap.Error(errs))
	}
	m.metrics.ObserveVacuumPass(time.Since(start).Seconds(), disposed)
}

func (m *Manager) disposeEntry(e *FilterEntry) error {
	if err := m.limiter.Wait(context.Background()); err != nil {
		return err
	}
	if err := e.dispose(); err != nil {
		return fmt.Errorf("filtmgr: dispose entry %q: %w", e.payload.Name(), err)
	}
	return nil
}

// drainOnShutdown implements spec.md §4.4's termination sequence: every
// live entry is closed (never deleted), every retired deletion still
// reachable from the chain is disposed per its own should_delete, and the
// client registry is emptied.
func (m *Manager) drainOnShutdown() {
	head := m.head.Load()

	head.m.Walk(func(k nsmap.Key, e *FilterEntry) bool {
		e.shouldDelete.Store(false)
		if err := e.dispose(); err != nil {
			zap.L().Error("filtmgr: shutdown dispose", zap.String("name", string(k)), zap.Error(err))
		}
		return false
	})

	for s := head; s != nil; s = s.predecessor {
		if s.deleted == nil {
			continue
		}
		if err := s.deleted.dispose(); err != nil {
			zap.L().Error("filtmgr: shutdown dispose retired entry", zap.Error(err))
		}
		s.deleted = nil
	}

	m.registry.clear()
}

// Shutdown stops the vacuum task and drains the manager per spec.md
// §4.4's termination sequence. Idempotent.
func (m *Manager) Shutdown() {
	if !m.shuttingDown.CompareAndSwap(false, true) {
		return
	}
	close(m.vacuumStop)
	<-m.vacuumDone
}
