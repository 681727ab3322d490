// Package domainlist loads the hostnames requested by the load test from a
// CSV file of popular domains.
//
// The list is built once during setup and then shared, read-only, with
// every simulated user. It is never empty: an input without data rows is
// rejected at load time.
package domainlist

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"os"
	"slices"
	"strings"

	"iconload/pkg/serrors"
)

// DefaultColumns is the header list of the top domains export.
var DefaultColumns = []string{"Rank", "Root Domain", "Linking Root Domains", "Domain Authority"} //nolint: gochecknoglobals

const (
	// DefaultDomainColumn is the column the hostnames are built from.
	DefaultDomainColumn = "Root Domain"
	// DefaultPrefix is prepended to every domain.
	DefaultPrefix = "www."

	utf8BOM = "\ufeff"
)

// Options controls how rows are mapped onto hostnames.
type Options struct {
	// Columns is the header list. Rows are mapped onto it by position; it is
	// the only description of the file layout.
	Columns []string
	// DomainColumn names the column holding the domain.
	DomainColumn string
	// Prefix is prepended to every domain.
	Prefix string
}

// DefaultOptions returns the options matching the top domains export.
func DefaultOptions() Options {
	return Options{
		Columns:      slices.Clone(DefaultColumns),
		DomainColumn: DefaultDomainColumn,
		Prefix:       DefaultPrefix,
	}
}

// DomainList is an ordered, immutable list of hostnames.
type DomainList struct {
	hosts []string
}

// Load reads the CSV file at path. The file is closed before Load returns.
func Load(path string, opts Options) (*DomainList, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("could not open domains file: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()

	list, err := Parse(f, opts)
	if err != nil {
		return nil, fmt.Errorf("could not parse %s: %w", path, err)
	}

	return list, nil
}

// Parse reads CSV rows from r and builds the hostname list in row order.
// A first row equal to the header list is skipped.
func Parse(r io.Reader, opts Options) (*DomainList, error) {
	idx := slices.Index(opts.Columns, opts.DomainColumn)
	if idx < 0 {
		return nil, serrors.With(serrors.ErrInvalidConfig,
			"domain column %q is not one of the columns %v", opts.DomainColumn, opts.Columns)
	}

	cr := csv.NewReader(skipBOM(r))
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.ReuseRecord = true

	var hosts []string
	for first := true; ; first = false {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, serrors.Wrap(serrors.ErrBadRequest, err, "malformed csv")
		}
		if first && isHeader(record, opts.Columns) {
			continue
		}

		line, _ := cr.FieldPos(0)
		if idx >= len(record) {
			return nil, serrors.With(serrors.ErrBadRequest,
				"line %d: missing column %q (%d of %d fields)", line, opts.DomainColumn, len(record), len(opts.Columns))
		}
		domain := strings.TrimSpace(record[idx])
		if domain == "" {
			return nil, serrors.With(serrors.ErrBadRequest, "line %d: empty %q", line, opts.DomainColumn)
		}

		hosts = append(hosts, opts.Prefix+domain)
	}

	if len(hosts) == 0 {
		return nil, serrors.With(serrors.ErrInvalidConfig, "domain list is empty")
	}

	return &DomainList{hosts: hosts}, nil
}

// New builds a list from hostnames that are already prefixed. It rejects an
// empty input.
func New(hosts ...string) (*DomainList, error) {
	if len(hosts) == 0 {
		return nil, serrors.With(serrors.ErrInvalidConfig, "domain list is empty")
	}

	return &DomainList{hosts: slices.Clone(hosts)}, nil
}

// skipBOM drops a leading UTF-8 byte order mark, as written by spreadsheet
// exports, so it does not end up in the first field.
func skipBOM(r io.Reader) io.Reader {
	br := bufio.NewReader(r)
	if bom, err := br.Peek(len(utf8BOM)); err == nil && string(bom) == utf8BOM {
		_, _ = br.Discard(len(utf8BOM))
	}

	return br
}

func isHeader(record, columns []string) bool {
	if len(record) < len(columns) {
		return false
	}
	for i, c := range columns {
		if !strings.EqualFold(strings.TrimSpace(record[i]), c) {
			return false
		}
	}

	return true
}

// Len returns the number of hostnames.
func (l *DomainList) Len() int { return len(l.hosts) }

// At returns the i-th hostname.
func (l *DomainList) At(i int) string { return l.hosts[i] }

// Hosts returns a copy of the hostnames in file order.
func (l *DomainList) Hosts() []string { return slices.Clone(l.hosts) }

// Pick returns a hostname chosen uniformly at random with rng. A DomainList
// is safe for concurrent use; rng is not, so every caller brings its own.
func (l *DomainList) Pick(rng *rand.Rand) string {
	return l.hosts[rng.IntN(len(l.hosts))]
}
