package store

import (
	"net/netip"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netrep/proxyd/pkg/reputation"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "proxyd.db")
	s, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestInsertAndLookupIP(t *testing.T) {
	s := openTestStore(t)

	tx, err := s.BeginWrite()
	require.NoError(t, err)
	require.NoError(t, s.InsertRecord(tx, "203.0.113.5", reputation.Flags{Proxy: true}))
	require.NoError(t, tx.Commit())

	flags, found, err := s.LookupIP(netip.MustParseAddr("203.0.113.5"))
	require.NoError(t, err)
	assert.True(t, found)
	assert.True(t, flags.Proxy)

	_, found, err = s.LookupIP(netip.MustParseAddr("203.0.113.6"))
	require.NoError(t, err)
	assert.False(t, found, "expected no match for unrelated address")
}

func TestInsertCIDRRebuildsTrie(t *testing.T) {
	s := openTestStore(t)

	tx, err := s.BeginWrite()
	require.NoError(t, err)
	require.NoError(t, s.InsertRecord(tx, "198.51.100.0/24", reputation.Flags{Tor: true}))
	require.NoError(t, tx.Commit())

	require.NoError(t, s.RebuildTrie())

	matches := s.FindMatchingCIDRsFast(netip.MustParseAddr("198.51.100.7"))
	require.Len(t, matches, 1)
	assert.True(t, matches[0].Flags.Tor)
}

func TestDeleteRecord(t *testing.T) {
	s := openTestStore(t)

	tx, err := s.BeginWrite()
	require.NoError(t, err)
	require.NoError(t, s.InsertRecord(tx, "203.0.113.9", reputation.Flags{VPN: true}))
	require.NoError(t, tx.Commit())

	tx, err = s.BeginWrite()
	require.NoError(t, err)
	deleted, err := s.DeleteRecord(tx, "203.0.113.9")
	require.NoError(t, err)
	assert.True(t, deleted)
	require.NoError(t, tx.Commit())

	_, found, err := s.LookupIP(netip.MustParseAddr("203.0.113.9"))
	require.NoError(t, err)
	assert.False(t, found, "expected record to be gone")
}

func TestClearAll(t *testing.T) {
	s := openTestStore(t)

	tx, err := s.BeginWrite()
	require.NoError(t, err)
	require.NoError(t, s.InsertRecord(tx, "203.0.113.9", reputation.Flags{VPN: true}))
	require.NoError(t, s.InsertRecord(tx, "10.0.0.0/8", reputation.Flags{Proxy: true}))
	require.NoError(t, tx.Commit())

	tx, err = s.BeginWrite()
	require.NoError(t, err)
	require.NoError(t, s.ClearAll(tx))
	require.NoError(t, tx.Commit())

	empty, err := s.IsEmpty()
	require.NoError(t, err)
	assert.True(t, empty, "expected store to be empty after ClearAll")
}

func TestMetadataRoundTrip(t *testing.T) {
	s := openTestStore(t)

	tx, err := s.BeginWrite()
	require.NoError(t, err)
	ts := int64(1700000000)
	require.NoError(t, s.SetMetadata(tx, Metadata{LastSync: &ts, CSVHash: "abc123", RecordCount: 42}))
	require.NoError(t, tx.Commit())

	meta, err := s.GetMetadata()
	require.NoError(t, err)
	assert.Equal(t, "abc123", meta.CSVHash)
	assert.Equal(t, uint64(42), meta.RecordCount)
	require.NotNil(t, meta.LastSync)
	assert.Equal(t, ts, *meta.LastSync)
}

func TestGetAllEntries(t *testing.T) {
	s := openTestStore(t)

	tx, err := s.BeginWrite()
	require.NoError(t, err)
	require.NoError(t, s.InsertRecord(tx, "203.0.113.9", reputation.Flags{VPN: true}))
	require.NoError(t, s.InsertRecord(tx, "10.0.0.0/8", reputation.Flags{Proxy: true}))
	require.NoError(t, tx.Commit())

	entries, err := s.GetAllEntries()
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestLookupIPsBatch(t *testing.T) {
	s := openTestStore(t)

	tx, err := s.BeginWrite()
	require.NoError(t, err)
	require.NoError(t, s.InsertRecord(tx, "203.0.113.9", reputation.Flags{VPN: true}))
	require.NoError(t, tx.Commit())

	addrs := []netip.Addr{
		netip.MustParseAddr("203.0.113.9"),
		netip.MustParseAddr("203.0.113.10"),
	}
	flags, found, err := s.LookupIPsBatch(addrs)
	require.NoError(t, err)
	require.True(t, found[0])
	assert.True(t, flags[0].VPN)
	assert.False(t, found[1], "expected second address to miss")
}

func TestIsHealthy(t *testing.T) {
	s := openTestStore(t)
	assert.True(t, s.IsHealthy(), "expected freshly opened store to be healthy")
}
