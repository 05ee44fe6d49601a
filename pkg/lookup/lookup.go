// Package lookup implements the query surface over pkg/store: single and
// batch IP/CIDR reputation lookups that merge an exact-match record with
// every covering CIDR found in the trie.
package lookup

import (
	"errors"
	"fmt"
	"net/netip"
	"sync"

	"github.com/netrep/proxyd/pkg/reputation"
	"github.com/netrep/proxyd/pkg/store"
)

// ErrInvalidIP is returned when a query string does not parse as an IP
// address.
var ErrInvalidIP = errors.New("lookup: invalid ip address")

// ErrInvalidCIDR is returned when a query string does not parse as CIDR
// notation.
var ErrInvalidCIDR = errors.New("lookup: invalid cidr notation")

// ErrBatchTooLarge is returned when a batch request exceeds MaxBatchSize.
var ErrBatchTooLarge = errors.New("batch size exceeds maximum of 1000")

// MaxBatchSize bounds the number of queries a single batch call will accept,
// protecting the worker pool from unbounded fan-out.
const MaxBatchSize = 1000

// maxWorkers bounds how many goroutines a batch lookup spawns concurrently.
const maxWorkers = 32

// inlineBatchSize is the largest batch that fanOut runs on the calling
// goroutine instead of handing it to the worker pool.
const inlineBatchSize = 32

// MatchedEntry is one contributing record (the exact-match IP itself, or a
// covering CIDR) together with its own flags.
type MatchedEntry struct {
	Entry string
	Flags reputation.Flags
}

// Result is the outcome of looking up a single query: whether anything
// matched, the merged flags across every match, and the individual matches
// that contributed to the merge.
type Result struct {
	Found          bool
	Query          string
	Flags          reputation.Flags
	MatchedEntries []MatchedEntry
}

// Engine answers lookups against a store.Store.
type Engine struct {
	store *store.Store
}

// New returns a lookup Engine backed by s.
func New(s *store.Store) *Engine {
	return &Engine{store: s}
}

// LookupIP resolves a single IP address query: the exact-match record (if
// any) plus every CIDR covering it, merged.
func (e *Engine) LookupIP(query string) (Result, error) {
	addr, err := netip.ParseAddr(query)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %s", ErrInvalidIP, query)
	}
	return e.lookupAddr(query, addr), nil
}

func (e *Engine) lookupAddr(query string, addr netip.Addr) Result {
	var matched []MatchedEntry
	merged := reputation.Flags{}

	if flags, found, err := e.store.LookupIP(addr); err == nil && found {
		matched = append(matched, MatchedEntry{Entry: addr.String(), Flags: flags})
		merged = merged.Merge(flags)
	}

	for _, m := range e.store.FindMatchingCIDRsFast(addr) {
		matched = append(matched, MatchedEntry{Entry: m.Network.String(), Flags: m.Flags})
		merged = merged.Merge(m.Flags)
	}

	return Result{
		Found:          len(matched) > 0,
		Query:          query,
		Flags:          merged,
		MatchedEntries: matched,
	}
}

// LookupRange resolves a single CIDR query against the exact-match CIDR
// bucket only — it does not expand to covering or covered ranges.
func (e *Engine) LookupRange(query string) (Result, error) {
	prefix, err := netip.ParsePrefix(query)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %s", ErrInvalidCIDR, query)
	}
	return e.lookupPrefix(query, prefix), nil
}

func (e *Engine) lookupPrefix(query string, prefix netip.Prefix) Result {
	var matched []MatchedEntry
	if flags, found, err := e.store.LookupCIDR(prefix); err == nil && found {
		matched = append(matched, MatchedEntry{Entry: prefix.Masked().String(), Flags: flags})
	}

	merged := reputation.Flags{}
	for _, m := range matched {
		merged = merged.Merge(m.Flags)
	}

	return Result{
		Found:          len(matched) > 0,
		Query:          query,
		Flags:          merged,
		MatchedEntries: matched,
	}
}

// LookupIPsBatch resolves every query (concurrently, bounded by maxWorkers,
// once the batch exceeds inlineBatchSize) and preserves the input order in
// its result slice.
func (e *Engine) LookupIPsBatch(queries []string) ([]Result, error) {
	if len(queries) > MaxBatchSize {
		return nil, ErrBatchTooLarge
	}

	addrs := make([]netip.Addr, len(queries))
	for i, q := range queries {
		addr, err := netip.ParseAddr(q)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", ErrInvalidIP, q)
		}
		addrs[i] = addr
	}

	results := make([]Result, len(queries))
	e.fanOut(len(queries), func(i int) {
		results[i] = e.lookupAddr(queries[i], addrs[i])
	})
	return results, nil
}

// LookupRangesBatch resolves every CIDR query (concurrently, bounded by
// maxWorkers, once the batch exceeds inlineBatchSize), preserving input
// order.
func (e *Engine) LookupRangesBatch(queries []string) ([]Result, error) {
	if len(queries) > MaxBatchSize {
		return nil, ErrBatchTooLarge
	}

	prefixes := make([]netip.Prefix, len(queries))
	for i, q := range queries {
		p, err := netip.ParsePrefix(q)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", ErrInvalidCIDR, q)
		}
		prefixes[i] = p
	}

	results := make([]Result, len(queries))
	e.fanOut(len(queries), func(i int) {
		results[i] = e.lookupPrefix(queries[i], prefixes[i])
	})
	return results, nil
}

// fanOut runs work(i) for i in [0,n) across a bounded pool of goroutines,
// the Go stand-in for the original system's data-parallel batch iteration.
// Batches of at most inlineBatchSize run on the calling goroutine.
func (e *Engine) fanOut(n int, work func(i int)) {
	if n <= inlineBatchSize {
		for i := 0; i < n; i++ {
			work(i)
		}
		return
	}

	workers := maxWorkers
	if n < workers {
		workers = n
	}

	var wg sync.WaitGroup
	jobs := make(chan int)

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				work(i)
			}
		}()
	}

	for i := 0; i < n; i++ {
		jobs <- i
	}
	close(jobs)
	wg.Wait()
}
