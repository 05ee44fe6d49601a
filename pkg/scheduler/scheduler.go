// Package scheduler drives ProxyD's daily sync cycle: a single cooperative
// goroutine that wakes up once a minute, checks whether today's sync hour
// has arrived, and if so downloads the feed and imports it.
package scheduler

import (
	"context"
	"os"
	"time"

	"github.com/netrep/proxyd/pkg/config"
	"github.com/netrep/proxyd/pkg/csvfeed"
	"github.com/netrep/proxyd/pkg/downloader"
	"github.com/netrep/proxyd/pkg/importer"
	"github.com/netrep/proxyd/pkg/metrics"
	"github.com/netrep/proxyd/pkg/proxydlog"
	"github.com/netrep/proxyd/pkg/store"
)

// checkInterval is how often the scheduler wakes up to test whether the
// configured sync hour has arrived.
const checkInterval = 60 * time.Second

var log = proxydlog.Component("scheduler")

// Scheduler owns the daily-sync loop for a single store and configuration.
type Scheduler struct {
	store *store.Store
	cfg   config.Config

	lastSyncDate string // YYYY-MM-DD, empty until the first sync fires
}

// New returns a Scheduler that has not yet synced today.
func New(s *store.Store, cfg config.Config) *Scheduler {
	return &Scheduler{store: s, cfg: cfg}
}

// shouldSyncNow reports whether now falls within the configured sync hour
// and no sync has already fired for today's date, advancing lastSyncDate as
// a side effect when it returns true.
func (s *Scheduler) shouldSyncNow(now time.Time) bool {
	now = now.UTC()
	today := now.Format("2006-01-02")
	if now.Hour() == s.cfg.SyncHourUTC && s.lastSyncDate != today {
		s.lastSyncDate = today
		return true
	}
	return false
}

// Run blocks until ctx is cancelled, performing a sync whenever
// shouldSyncNow fires. A cancelled context ends the loop promptly between
// checks rather than mid-sync.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(checkInterval)
	defer ticker.Stop()

	for {
		if s.shouldSyncNow(time.Now()) {
			log.Info().Int("sync_hour_utc", s.cfg.SyncHourUTC).Msg("starting scheduled sync")
			start := time.Now()
			if err := s.performSync(ctx); err != nil {
				log.Error().Err(err).Msg("sync failed")
				metrics.SyncFailures.Inc()
			} else {
				metrics.SyncSuccess.Inc()
			}
			metrics.SyncDuration.Observe(time.Since(start).Seconds())
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			log.Info().Msg("scheduler received shutdown signal")
			return
		}
	}
}

// performSync downloads the feed and performs a full import on first run
// (or whenever the store is empty) or an incremental import when the
// content hash has changed, skipping entirely when it has not.
func (s *Scheduler) performSync(ctx context.Context) error {
	result, err := downloader.DownloadCSV(ctx, s.cfg.CSVURL)
	if err != nil {
		return err
	}

	currentHash, hadHash := downloader.LoadHash(s.cfg.CSVHashPath())
	empty, err := s.store.IsEmpty()
	if err != nil {
		return err
	}

	records, err := csvfeed.Parse(result.Content)
	if err != nil {
		return err
	}

	switch {
	case empty:
		if _, err := importer.FullImport(s.store, records, result.Hash); err != nil {
			return err
		}
	case !hadHash || currentHash != result.Hash:
		if _, _, _, err := importer.IncrementalImport(s.store, records, result.Hash); err != nil {
			return err
		}
	default:
		log.Info().Msg("csv unchanged, skipping import")
		return s.persistSnapshot(result)
	}

	if err := s.persistSnapshot(result); err != nil {
		return err
	}
	return s.recordMetrics()
}

func (s *Scheduler) persistSnapshot(result downloader.Result) error {
	if err := downloader.SaveCSV(s.cfg.CSVPath(), result.Content); err != nil {
		return err
	}
	return downloader.SaveHash(s.cfg.CSVHashPath(), result.Hash)
}

func (s *Scheduler) recordMetrics() error {
	meta, err := s.store.GetMetadata()
	if err != nil {
		return err
	}
	metrics.RecordCount.Set(float64(meta.RecordCount))
	if meta.LastSync != nil {
		metrics.LastSyncTimestamp.Set(float64(*meta.LastSync))
	}
	return nil
}

// InitialSync runs once at process startup, before the periodic loop
// begins: it rebuilds from a local CSV snapshot if one exists and the
// store is otherwise empty, or downloads fresh if neither a store nor a
// snapshot exists yet. A populated store is left untouched until the first
// scheduled sync.
func (s *Scheduler) InitialSync(ctx context.Context) error {
	empty, err := s.store.IsEmpty()
	if err != nil {
		return err
	}
	if !empty {
		log.Info().Msg("store already populated, skipping initial sync")
		return s.recordMetrics()
	}

	if _, err := os.Stat(s.cfg.CSVPath()); err == nil {
		log.Info().Msg("store empty but local csv snapshot exists, rebuilding from it")
		if _, err := importer.RebuildFromCSV(s.store, s.cfg.CSVPath(), s.cfg.CSVHashPath()); err != nil {
			return err
		}
		return s.recordMetrics()
	}

	log.Info().Msg("first run, downloading csv feed")
	result, err := downloader.DownloadCSV(ctx, s.cfg.CSVURL)
	if err != nil {
		return err
	}
	records, err := csvfeed.Parse(result.Content)
	if err != nil {
		return err
	}
	if _, err := importer.FullImport(s.store, records, result.Hash); err != nil {
		return err
	}
	if err := s.persistSnapshot(result); err != nil {
		return err
	}
	return s.recordMetrics()
}
