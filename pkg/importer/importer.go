// Package importer drives full and incremental loads of a parsed CSV feed
// into pkg/store, keeping the store's trie and sync metadata consistent
// with whatever was just written.
package importer

import (
	"fmt"
	"time"

	"github.com/netrep/proxyd/pkg/csvfeed"
	"github.com/netrep/proxyd/pkg/downloader"
	"github.com/netrep/proxyd/pkg/proxydlog"
	"github.com/netrep/proxyd/pkg/reputation"
	"github.com/netrep/proxyd/pkg/store"
	"github.com/netrep/proxyd/pkg/trie"
)

var log = proxydlog.Component("importer")

// batchCommitSize bounds how many records a single full-import write
// transaction covers before it commits and starts a fresh one, keeping
// bbolt's single long-lived writer from holding one enormous transaction
// for the entire feed.
const batchCommitSize = 10_000

// FullImport clears every existing record, then inserts every row of
// content (already parsed from records), rebuilding the trie and sync
// metadata from scratch. It returns the number of records imported.
func FullImport(s *store.Store, records []csvfeed.Record, hash string) (uint64, error) {
	tx, err := s.BeginWrite()
	if err != nil {
		return 0, err
	}
	if err := s.ClearAll(tx); err != nil {
		tx.Rollback()
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("importer: committing clear: %w", err)
	}

	forest := trie.NewForest()
	inserted := uint64(0)

	tx, err = s.BeginWrite()
	if err != nil {
		return 0, err
	}

	commit := func() error {
		return tx.Commit()
	}

	for _, rec := range records {
		if err := s.InsertRecord(tx, rec.Entry, rec.Flags); err != nil {
			if err == reputation.ErrUnparseable {
				log.Warn().Str("entry", rec.Entry).Msg("skipping unparseable entry")
				continue
			}
			tx.Rollback()
			return 0, err
		}

		if parsed, perr := reputation.ParseEntry(rec.Entry); perr == nil && !parsed.IsExact() {
			forest.Insert(parsed.Prefix(), rec.Flags)
		}

		inserted++
		if inserted%batchCommitSize == 0 {
			if err := commit(); err != nil {
				return 0, fmt.Errorf("importer: committing batch: %w", err)
			}
			tx, err = s.BeginWrite()
			if err != nil {
				return 0, err
			}
		}
	}

	count := uint64(len(records))
	now := time.Now().Unix()
	meta := store.Metadata{LastSync: &now, CSVHash: hash, RecordCount: count}
	if err := s.SetMetadata(tx, meta); err != nil {
		tx.Rollback()
		return 0, err
	}
	if err := commit(); err != nil {
		return 0, fmt.Errorf("importer: committing final batch: %w", err)
	}

	s.SwapTrie(forest)
	return count, nil
}

// IncrementalImport diffs records against the store's current contents,
// inserting additions and changed flags and deleting records no longer
// present, then rebuilds the trie from the resulting on-disk state. It
// returns the added, updated, and deleted counts.
func IncrementalImport(s *store.Store, records []csvfeed.Record, hash string) (added, updated, deleted uint64, err error) {
	existing, err := s.GetAllEntries()
	if err != nil {
		return 0, 0, 0, err
	}

	existingFlags := make(map[string]reputation.Flags, len(existing))
	for _, e := range existing {
		existingFlags[e.Key] = e.Flags
	}

	newKeys := make(map[string]struct{}, len(records))

	tx, err := s.BeginWrite()
	if err != nil {
		return 0, 0, 0, err
	}

	for _, rec := range records {
		parsed, perr := reputation.ParseEntry(rec.Entry)
		if perr != nil {
			log.Warn().Str("entry", rec.Entry).Msg("skipping unparseable entry")
			continue
		}
		key := parsed.String()
		newKeys[key] = struct{}{}

		prior, existed := existingFlags[key]
		switch {
		case !existed:
			if err := s.InsertRecord(tx, rec.Entry, rec.Flags); err != nil {
				tx.Rollback()
				return 0, 0, 0, err
			}
			added++
		case prior != rec.Flags:
			if err := s.InsertRecord(tx, rec.Entry, rec.Flags); err != nil {
				tx.Rollback()
				return 0, 0, 0, err
			}
			updated++
		}
	}

	for key := range existingFlags {
		if _, stillPresent := newKeys[key]; stillPresent {
			continue
		}
		if _, err := s.DeleteRecord(tx, key); err != nil {
			tx.Rollback()
			return 0, 0, 0, err
		}
		deleted++
	}

	now := time.Now().Unix()
	meta := store.Metadata{LastSync: &now, CSVHash: hash, RecordCount: uint64(len(records))}
	if err := s.SetMetadata(tx, meta); err != nil {
		tx.Rollback()
		return 0, 0, 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, 0, 0, fmt.Errorf("importer: committing incremental import: %w", err)
	}

	if err := s.RebuildTrie(); err != nil {
		return 0, 0, 0, err
	}

	return added, updated, deleted, nil
}

// RebuildFromCSV reloads a previously persisted CSV snapshot from disk and
// performs a FullImport from it, falling back to a freshly computed hash
// if no sidecar hash file is present.
func RebuildFromCSV(s *store.Store, csvPath, hashPath string) (uint64, error) {
	content, err := downloader.LoadCSV(csvPath)
	if err != nil {
		return 0, err
	}

	hash, ok := downloader.LoadHash(hashPath)
	if !ok {
		hash = downloader.ComputeHash(content)
	}

	records, err := csvfeed.Parse(content)
	if err != nil {
		return 0, fmt.Errorf("importer: parsing local csv: %w", err)
	}

	return FullImport(s, records, hash)
}
