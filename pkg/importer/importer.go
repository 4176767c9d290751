// Package importer maps competitor password manager exports onto vault
// entries.
//
// All supported formats are the managers' CSV exports. Parsing is
// header-based so column reordering across export versions keeps
// working, and malformed rows degrade to per-row warnings instead of
// failing the whole import. Site names are derived from the login URL's
// registrable domain when one is present, otherwise from the record
// name, so imported entries resolve through the same catalog names the
// voice path uses.
package importer

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/weppos/publicsuffix-go/publicsuffix"
	"golang.org/x/text/unicode/norm"

	"github.com/voxvault/voxvault/pkg/normalize"
)

// Format identifies a supported export format.
type Format string

// Supported formats, matching the --format flag values.
const (
	FormatBitwarden Format = "bitwarden"
	FormatLastPass  Format = "lastpass"
	Format1Password Format = "1password"
)

// Record is one credential parsed from an export, ready for the vault.
type Record struct {
	Site     string
	Username string
	Password string
	Memo     string
}

// SkippedRow is an export row that produced no record.
type SkippedRow struct {
	Row    int
	Name   string
	Reason string
}

// Result is the outcome of parsing one export file.
type Result struct {
	Records  []Record
	Warnings []string
	Skipped  []SkippedRow
}

func (r *Result) warn(row int, format string, args ...interface{}) {
	r.Warnings = append(r.Warnings, fmt.Sprintf("row %d: %s", row, fmt.Sprintf(format, args...)))
}

func (r *Result) skip(row int, name, reason string) {
	r.Skipped = append(r.Skipped, SkippedRow{Row: row, Name: name, Reason: reason})
}

// Parser parses one export format.
type Parser interface {
	Parse(data []byte) (*Result, error)
	Format() Format
}

// ParserFor returns the parser for a format name.
func ParserFor(format Format) (Parser, error) {
	switch format {
	case FormatBitwarden:
		return &BitwardenParser{}, nil
	case FormatLastPass:
		return &LastPassParser{}, nil
	case Format1Password:
		return &OnePasswordParser{}, nil
	default:
		return nil, fmt.Errorf("importer: unsupported format %q", format)
	}
}

// Formats returns the supported format names.
func Formats() []string {
	return []string{
		string(FormatBitwarden),
		string(FormatLastPass),
		string(Format1Password),
	}
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// table reads a CSV export through its header row, so parsers address
// columns by name rather than position.
type table struct {
	header []string
	index  map[string]int
	reader *csv.Reader
	row    int
}

func newTable(data []byte) (*table, error) {
	data = bytes.TrimPrefix(data, utf8BOM)

	r := csv.NewReader(bytes.NewReader(data))
	// Real-world exports contain stray quotes. Row width is still
	// enforced against the header, surfacing truncated rows as errors.
	r.LazyQuotes = true

	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("importer: reading CSV header: %w", err)
	}

	index := make(map[string]int, len(header))
	for i, col := range header {
		index[strings.ToLower(strings.TrimSpace(col))] = i
	}
	return &table{header: header, index: index, reader: r, row: 1}, nil
}

// require fails when a column the format guarantees is absent, which
// means the file is not actually in this format.
func (t *table) require(cols ...string) error {
	for _, col := range cols {
		if _, ok := t.index[col]; !ok {
			return fmt.Errorf("importer: missing required column %q", col)
		}
	}
	return nil
}

// next returns the next data row and its 1-based row number.
func (t *table) next() ([]string, int, error) {
	row, err := t.reader.Read()
	t.row++
	return row, t.row, err
}

// get returns a named cell of a row, NFC-normalized and trimmed.
func (t *table) get(row []string, col string) string {
	idx, ok := t.index[col]
	if !ok || idx >= len(row) {
		return ""
	}
	return cleanField(row[idx])
}

// cleanField trims whitespace and applies Unicode NFC, so entries
// compare equal regardless of how the exporter composed accents.
func cleanField(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}

// DecodeHTMLEntities decodes the entities LastPass leaves in its CSV
// exports.
func DecodeHTMLEntities(s string) string {
	s = strings.ReplaceAll(s, "&amp;", "&")
	s = strings.ReplaceAll(s, "&lt;", "<")
	s = strings.ReplaceAll(s, "&gt;", ">")
	s = strings.ReplaceAll(s, "&quot;", "\"")
	s = strings.ReplaceAll(s, "&#39;", "'")
	s = strings.ReplaceAll(s, "&apos;", "'")
	return s
}

// SiteFromURL derives a spoken site name from a login URL via the
// registrable domain: "https://www.amazon.com/ap/signin" -> "amazon".
// It reports false when the URL carries no usable host.
func SiteFromURL(raw string) (string, bool) {
	if raw == "" {
		return "", false
	}

	// A bare domain without a scheme parses with an empty host;
	// prepending one makes url.Parse reliable.
	candidate := raw
	if !strings.Contains(candidate, "://") && strings.Contains(candidate, ".") {
		candidate = "http://" + candidate
	}

	host := raw
	if u, err := url.Parse(candidate); err == nil && u.Host != "" {
		host = u.Hostname()
	} else {
		host = strings.Split(host, "/")[0]
		host = strings.Split(host, ":")[0]
	}
	if !strings.Contains(host, ".") {
		return "", false
	}
	// IP addresses (router logins and the like) have no registrable
	// domain; let the record name decide instead.
	if net.ParseIP(host) != nil {
		return "", false
	}

	domain, err := publicsuffix.Domain(host)
	if err != nil {
		return "", false
	}

	// The label left of the public suffix is the name people say out
	// loud: "accounts.google.co.uk" -> "google".
	label, _, _ := strings.Cut(domain, ".")
	site := normalize.Normalize(label)
	if site == "" {
		return "", false
	}
	return site, true
}

// siteFor picks the record's site name: login URL first, record name as
// the fallback, both reduced to catalog form.
func siteFor(loginURL, name string) string {
	if site, ok := SiteFromURL(loginURL); ok {
		return site
	}
	return normalize.Normalize(name)
}

// joinMemo stacks memo fragments into newline-separated lines.
func joinMemo(parts ...string) string {
	var lines []string
	for _, p := range parts {
		if p != "" {
			lines = append(lines, p)
		}
	}
	return strings.Join(lines, "\n")
}
