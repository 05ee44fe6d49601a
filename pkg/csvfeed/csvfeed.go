// Package csvfeed parses the header-flexible reputation feed format: a CSV
// file whose first column is an IP or CIDR entry and whose remaining
// columns are named boolean flag cells, in any order, with any subset
// present.
package csvfeed

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/netrep/proxyd/pkg/reputation"
)

// Record is one parsed feed row: the raw entry string (not yet validated as
// an IP or CIDR) and its decoded flags.
type Record struct {
	Entry string
	Flags reputation.Flags
}

// columnNames maps each flag to the header name the feed uses for it.
var columnNames = map[string]func(*reputation.Flags, bool){
	"anonblock":    func(f *reputation.Flags, v bool) { f.AnonBlock = v },
	"proxy":        func(f *reputation.Flags, v bool) { f.Proxy = v },
	"vpn":          func(f *reputation.Flags, v bool) { f.VPN = v },
	"cdn":          func(f *reputation.Flags, v bool) { f.CDN = v },
	"public-wifi":  func(f *reputation.Flags, v bool) { f.PublicWifi = v },
	"rangeblock":   func(f *reputation.Flags, v bool) { f.RangeBlock = v },
	"school-block": func(f *reputation.Flags, v bool) { f.SchoolBlock = v },
	"tor":          func(f *reputation.Flags, v bool) { f.Tor = v },
	"webhost":      func(f *reputation.Flags, v bool) { f.WebHost = v },
}

// parseBool accepts the feed's truthy cell spellings case- and
// whitespace-insensitively; anything else (including an empty cell) is
// false.
func parseBool(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "1", "yes":
		return true
	default:
		return false
	}
}

// Parse reads a complete CSV document and returns one Record per data row.
// The header row determines which columns map to which flags; missing
// columns default every row's corresponding flag to false. Rows whose first
// cell is empty are skipped. Column counts may vary row to row. Rows are
// parsed sequentially and records are returned in row order; a parallel
// implementation has to keep that order, since incremental-import diffs
// (and last-write-wins for duplicate entries) depend on it.
func Parse(content string) ([]Record, error) {
	reader := csv.NewReader(strings.NewReader(content))
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("csvfeed: reading header: %w", err)
	}

	setters := make([]func(*reputation.Flags, bool), len(header))
	for i, name := range header {
		setters[i] = columnNames[name]
	}

	var records []Record
	for {
		row, err := reader.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("csvfeed: reading row: %w", err)
		}
		if len(row) == 0 || row[0] == "" {
			continue
		}

		var flags reputation.Flags
		for i, cell := range row {
			if i == 0 || i >= len(setters) || setters[i] == nil {
				continue
			}
			setters[i](&flags, parseBool(cell))
		}

		records = append(records, Record{Entry: row[0], Flags: flags})
	}

	return records, nil
}
