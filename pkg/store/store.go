// Package store persists reputation entries in a bbolt database and keeps
// an in-memory Patricia trie in sync with the CIDR records it holds, the Go
// analogue of the LMDB-backed store the system was originally built on.
package store

import (
	"encoding/json"
	"fmt"
	"net/netip"
	"os"
	"path/filepath"

	bolt "go.etcd.io/bbolt"

	"github.com/netrep/proxyd/pkg/proxydlog"
	"github.com/netrep/proxyd/pkg/reputation"
	"github.com/netrep/proxyd/pkg/trie"
)

var (
	bucketIPv4     = []byte("ip_v4")
	bucketIPv6     = []byte("ip_v6")
	bucketCIDRv4   = []byte("cidr_v4")
	bucketCIDRv6   = []byte("cidr_v6")
	bucketMetadata = []byte("metadata")

	metadataKey = []byte("meta")
)

// Metadata records the state of the last successful sync.
type Metadata struct {
	LastSync    *int64 `json:"last_sync,omitempty"`
	CSVHash     string `json:"csv_hash,omitempty"`
	RecordCount uint64 `json:"record_count"`
}

// Entry is one decoded (IP-or-CIDR, flags) pair as returned by GetAllEntries.
type Entry struct {
	Key   string
	Flags reputation.Flags
}

// Store is a bbolt-backed keyed store of IP and CIDR reputation records,
// with a published trie.Cell kept current for fast CIDR coverage queries.
type Store struct {
	db   *bolt.DB
	trie *trie.Cell
}

// Open creates (if needed) and opens the database at path, ensuring all
// buckets exist, then rebuilds the in-memory trie from whatever CIDR
// records are already on disk.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("%w: creating %s: %v", ErrIO, dir, err)
		}
	}

	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: opening %s: %v", ErrBackend, path, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, b := range [][]byte{bucketIPv4, bucketIPv6, bucketCIDRv4, bucketCIDRv6, bucketMetadata} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: creating buckets: %v", ErrBackend, err)
	}

	s := &Store{db: db, trie: trie.NewCell()}
	if err := s.RebuildTrie(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the underlying database file.
func (s *Store) Close() error {
	return s.db.Close()
}

// BeginWrite starts a read-write transaction. The caller must Commit or
// Rollback it.
func (s *Store) BeginWrite() (*bolt.Tx, error) {
	tx, err := s.db.Begin(true)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackend, err)
	}
	return tx, nil
}

func bucketFor(e reputation.Entry) []byte {
	if e.IsExact() {
		if e.IsV4() {
			return bucketIPv4
		}
		return bucketIPv6
	}
	if e.IsV4() {
		return bucketCIDRv4
	}
	return bucketCIDRv6
}

// InsertRecord parses entry as an IP or CIDR and upserts its flags into the
// appropriate bucket. Unparseable entries are logged at warn level and
// skipped: InsertRecord returns nil for them and the transaction stays
// usable, so a feed containing garbage rows still imports.
func (s *Store) InsertRecord(tx *bolt.Tx, entry string, flags reputation.Flags) error {
	parsed, err := reputation.ParseEntry(entry)
	if err != nil {
		proxydlog.Component("store").Warn().Str("entry", entry).Msg("skipping unparseable entry")
		return nil
	}

	b := tx.Bucket(bucketFor(parsed))

	var key []byte
	if parsed.IsExact() {
		key = reputation.IPKey(parsed.Addr())
	} else {
		key = reputation.CIDRKey(parsed.Prefix())
	}

	if err := b.Put(key, encodeFlags(flags)); err != nil {
		return fmt.Errorf("%w: %v", ErrBackend, err)
	}
	return nil
}

// DeleteRecord removes entry if present, reporting whether anything was
// deleted.
func (s *Store) DeleteRecord(tx *bolt.Tx, entry string) (bool, error) {
	parsed, err := reputation.ParseEntry(entry)
	if err != nil {
		return false, err
	}

	b := tx.Bucket(bucketFor(parsed))

	var key []byte
	if parsed.IsExact() {
		key = reputation.IPKey(parsed.Addr())
	} else {
		key = reputation.CIDRKey(parsed.Prefix())
	}

	existed := b.Get(key) != nil
	if !existed {
		return false, nil
	}
	if err := b.Delete(key); err != nil {
		return false, fmt.Errorf("%w: %v", ErrBackend, err)
	}
	return true, nil
}

// ClearAll empties every record bucket, leaving metadata untouched.
func (s *Store) ClearAll(tx *bolt.Tx) error {
	for _, name := range [][]byte{bucketIPv4, bucketIPv6, bucketCIDRv4, bucketCIDRv6} {
		if err := tx.DeleteBucket(name); err != nil {
			return fmt.Errorf("%w: %v", ErrBackend, err)
		}
		if _, err := tx.CreateBucket(name); err != nil {
			return fmt.Errorf("%w: %v", ErrBackend, err)
		}
	}
	return nil
}

// LookupIP returns the exact-match flags stored for addr, if any.
func (s *Store) LookupIP(addr netip.Addr) (reputation.Flags, bool, error) {
	bucket := bucketIPv4
	if addr.Is6() && !addr.Is4In6() {
		bucket = bucketIPv6
	}

	var flags reputation.Flags
	var found bool
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(bucket).Get(reputation.IPKey(addr))
		if raw == nil {
			return nil
		}
		flags, found = decodeFlags(raw)
		return nil
	})
	if err != nil {
		return reputation.Flags{}, false, fmt.Errorf("%w: %v", ErrBackend, err)
	}
	return flags, found, nil
}

// LookupCIDR returns the exact-match flags stored for an identical CIDR
// record (not covering-match — see pkg/lookup and FindMatchingCIDRsFast for
// that).
func (s *Store) LookupCIDR(prefix netip.Prefix) (reputation.Flags, bool, error) {
	prefix = prefix.Masked()
	bucket := bucketCIDRv4
	if prefix.Addr().Is6() && !prefix.Addr().Is4In6() {
		bucket = bucketCIDRv6
	}

	var flags reputation.Flags
	var found bool
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(bucket).Get(reputation.CIDRKey(prefix))
		if raw == nil {
			return nil
		}
		flags, found = decodeFlags(raw)
		return nil
	})
	if err != nil {
		return reputation.Flags{}, false, fmt.Errorf("%w: %v", ErrBackend, err)
	}
	return flags, found, nil
}

// LookupIPsBatch performs LookupIP for every address within a single read
// transaction.
func (s *Store) LookupIPsBatch(addrs []netip.Addr) ([]reputation.Flags, []bool, error) {
	flags := make([]reputation.Flags, len(addrs))
	found := make([]bool, len(addrs))

	err := s.db.View(func(tx *bolt.Tx) error {
		for i, addr := range addrs {
			bucket := bucketIPv4
			if addr.Is6() && !addr.Is4In6() {
				bucket = bucketIPv6
			}
			raw := tx.Bucket(bucket).Get(reputation.IPKey(addr))
			if raw == nil {
				continue
			}
			flags[i], found[i] = decodeFlags(raw)
		}
		return nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrBackend, err)
	}
	return flags, found, nil
}

// LookupCIDRsBatch performs LookupCIDR for every prefix within a single
// read transaction.
func (s *Store) LookupCIDRsBatch(prefixes []netip.Prefix) ([]reputation.Flags, []bool, error) {
	flags := make([]reputation.Flags, len(prefixes))
	found := make([]bool, len(prefixes))

	err := s.db.View(func(tx *bolt.Tx) error {
		for i, p := range prefixes {
			p = p.Masked()
			bucket := bucketCIDRv4
			if p.Addr().Is6() && !p.Addr().Is4In6() {
				bucket = bucketCIDRv6
			}
			raw := tx.Bucket(bucket).Get(reputation.CIDRKey(p))
			if raw == nil {
				continue
			}
			flags[i], found[i] = decodeFlags(raw)
		}
		return nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrBackend, err)
	}
	return flags, found, nil
}

// GetAllEntries returns every record in the store, IP records before CIDR
// records, v4 before v6 within each.
func (s *Store) GetAllEntries() ([]Entry, error) {
	var entries []Entry

	err := s.db.View(func(tx *bolt.Tx) error {
		if err := tx.Bucket(bucketIPv4).ForEach(func(k, v []byte) error {
			addr, ok := reputation.KeyToIP(k)
			if !ok {
				return nil
			}
			flags, _ := decodeFlags(v)
			entries = append(entries, Entry{Key: addr.String(), Flags: flags})
			return nil
		}); err != nil {
			return err
		}

		if err := tx.Bucket(bucketIPv6).ForEach(func(k, v []byte) error {
			addr, ok := reputation.KeyToIP(k)
			if !ok {
				return nil
			}
			flags, _ := decodeFlags(v)
			entries = append(entries, Entry{Key: addr.String(), Flags: flags})
			return nil
		}); err != nil {
			return err
		}

		if err := tx.Bucket(bucketCIDRv4).ForEach(func(k, v []byte) error {
			prefix, ok := reputation.KeyToCIDR(k)
			if !ok {
				return nil
			}
			flags, _ := decodeFlags(v)
			entries = append(entries, Entry{Key: prefix.String(), Flags: flags})
			return nil
		}); err != nil {
			return err
		}

		return tx.Bucket(bucketCIDRv6).ForEach(func(k, v []byte) error {
			prefix, ok := reputation.KeyToCIDR(k)
			if !ok {
				return nil
			}
			flags, _ := decodeFlags(v)
			entries = append(entries, Entry{Key: prefix.String(), Flags: flags})
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackend, err)
	}
	return entries, nil
}

// GetMetadata returns the stored sync metadata, or its zero value if none
// has been written yet.
func (s *Store) GetMetadata() (Metadata, error) {
	var meta Metadata
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(bucketMetadata).Get(metadataKey)
		if raw == nil {
			return nil
		}
		return json.Unmarshal(raw, &meta)
	})
	if err != nil {
		return Metadata{}, fmt.Errorf("%w: %v", ErrBackend, err)
	}
	return meta, nil
}

// SetMetadata overwrites the stored sync metadata within tx.
func (s *Store) SetMetadata(tx *bolt.Tx, meta Metadata) error {
	raw, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBackend, err)
	}
	if err := tx.Bucket(bucketMetadata).Put(metadataKey, raw); err != nil {
		return fmt.Errorf("%w: %v", ErrBackend, err)
	}
	return nil
}

// RebuildTrie scans every CIDR bucket and atomically publishes a fresh
// trie built from the records currently on disk.
func (s *Store) RebuildTrie() error {
	forest := trie.NewForest()

	err := s.db.View(func(tx *bolt.Tx) error {
		if err := tx.Bucket(bucketCIDRv4).ForEach(func(k, v []byte) error {
			prefix, ok := reputation.KeyToCIDR(k)
			if !ok {
				return nil
			}
			flags, _ := decodeFlags(v)
			forest.Insert(prefix, flags)
			return nil
		}); err != nil {
			return err
		}
		return tx.Bucket(bucketCIDRv6).ForEach(func(k, v []byte) error {
			prefix, ok := reputation.KeyToCIDR(k)
			if !ok {
				return nil
			}
			flags, _ := decodeFlags(v)
			forest.Insert(prefix, flags)
			return nil
		})
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBackend, err)
	}

	s.trie.Store(forest)
	return nil
}

// SwapTrie atomically publishes an already-built forest, used by the
// importer to rebuild off to the side of the write transaction that
// produced it.
func (s *Store) SwapTrie(f *trie.Forest) {
	s.trie.Store(f)
}

// FindMatchingCIDRsFast returns every stored CIDR covering addr using the
// published trie rather than a bucket scan.
func (s *Store) FindMatchingCIDRsFast(addr netip.Addr) []trie.Match {
	return s.trie.Load().FindAllMatches(addr)
}

// IsHealthy reports whether the backing database can still serve reads.
func (s *Store) IsHealthy() bool {
	return s.db.View(func(*bolt.Tx) error { return nil }) == nil
}

// IsEmpty reports whether every record bucket is empty.
func (s *Store) IsEmpty() (bool, error) {
	empty := true
	err := s.db.View(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketIPv4, bucketIPv6, bucketCIDRv4, bucketCIDRv6} {
			k, _ := tx.Bucket(name).Cursor().First()
			if k != nil {
				empty = false
				return nil
			}
		}
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrBackend, err)
	}
	return empty, nil
}
