package lookup

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netrep/proxyd/pkg/reputation"
	"github.com/netrep/proxyd/pkg/store"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "proxyd.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	tx, err := s.BeginWrite()
	require.NoError(t, err)
	require.NoError(t, s.InsertRecord(tx, "203.0.113.5", reputation.Flags{Proxy: true}))
	require.NoError(t, s.InsertRecord(tx, "198.51.100.0/24", reputation.Flags{Tor: true}))
	require.NoError(t, tx.Commit())
	require.NoError(t, s.RebuildTrie())

	return New(s)
}

func TestLookupIPExactOnly(t *testing.T) {
	e := newTestEngine(t)

	result, err := e.LookupIP("203.0.113.5")
	require.NoError(t, err)
	assert.True(t, result.Found)
	assert.True(t, result.Flags.Proxy)
	assert.Len(t, result.MatchedEntries, 1)
}

func TestLookupIPCoveredByCIDR(t *testing.T) {
	e := newTestEngine(t)

	result, err := e.LookupIP("198.51.100.42")
	require.NoError(t, err)
	assert.True(t, result.Found)
	assert.True(t, result.Flags.Tor)
}

func TestLookupIPNoMatch(t *testing.T) {
	e := newTestEngine(t)

	result, err := e.LookupIP("8.8.8.8")
	require.NoError(t, err)
	assert.False(t, result.Found)
}

func TestLookupIPInvalid(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.LookupIP("not-an-ip")
	assert.Error(t, err)
}

func TestLookupRangeExact(t *testing.T) {
	e := newTestEngine(t)

	result, err := e.LookupRange("198.51.100.0/24")
	require.NoError(t, err)
	assert.True(t, result.Found)
	assert.True(t, result.Flags.Tor)
}

func TestLookupIPsBatchPreservesOrder(t *testing.T) {
	e := newTestEngine(t)

	results, err := e.LookupIPsBatch([]string{"203.0.113.5", "8.8.8.8", "198.51.100.42"})
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, "203.0.113.5", results[0].Query)
	assert.True(t, results[0].Flags.Proxy)

	assert.False(t, results[1].Found)

	assert.Equal(t, "198.51.100.42", results[2].Query)
	assert.True(t, results[2].Flags.Tor)
}

func TestLookupIPsBatchRejectsTooLarge(t *testing.T) {
	e := newTestEngine(t)

	assert.Equal(t, 1000, MaxBatchSize)

	queries := make([]string, MaxBatchSize+1)
	for i := range queries {
		queries[i] = "203.0.113.5"
	}
	_, err := e.LookupIPsBatch(queries)
	require.ErrorIs(t, err, ErrBatchTooLarge)
	assert.Equal(t, "batch size exceeds maximum of 1000", err.Error())
}

func TestLookupRangesBatch(t *testing.T) {
	e := newTestEngine(t)

	results, err := e.LookupRangesBatch([]string{"198.51.100.0/24", "10.0.0.0/8"})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.True(t, results[0].Found)
	assert.False(t, results[1].Found)
}
