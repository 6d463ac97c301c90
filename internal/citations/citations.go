// Package citations maps document titles to canonical source URLs.
// The mapping is loaded once at startup from a CSV table of {title, link}
// rows and is read-only afterwards, so a Map is safe for concurrent readers.
package citations

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path"
	"strings"
)

// Unknown is the sentinel returned when a title has no known link.
// Resolution never fails — unmapped titles degrade to this value.
const Unknown = "unknown"

// Row is one entry of the citation source table.
type Row struct {
	// Title is the document title as recorded in the table, possibly
	// carrying a path prefix or file extension.
	Title string

	// Link is the canonical URL for the document.
	Link string
}

// Map resolves normalized document titles to URLs.
type Map map[string]string

// NormalizeTitle strips any path component and file extension from raw and
// trims surrounding whitespace. This is the only normalization applied;
// lookups must match exactly after it.
func NormalizeTitle(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ""
	}

	name := path.Base(trimmed)
	// A leading-dot name like ".env" has no extension to strip.
	if ext := path.Ext(name); ext != "" && ext != name {
		name = strings.TrimSuffix(name, ext)
	}
	return name
}

// Build constructs a Map from rows, normalizing every title. Duplicate
// titles follow a last-write-wins policy: the final row for a title is the
// one that counts.
func Build(rows []Row) Map {
	m := make(Map, len(rows))
	for _, row := range rows {
		key := NormalizeTitle(row.Title)
		if key == "" {
			continue
		}
		m[key] = row.Link
	}
	return m
}

// Resolve returns the link for rawTitle after normalization, or Unknown when
// the title is not in the map. It never returns an error.
func (m Map) Resolve(rawTitle string) string {
	if link, ok := m[NormalizeTitle(rawTitle)]; ok {
		return link
	}
	return Unknown
}

// LoadCSV reads {title, link} rows from r. A leading header row of
// "title,link" (any case) is skipped, as are blank lines and rows without
// both fields.
func LoadCSV(r io.Reader) ([]Row, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	var rows []Row
	first := true
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("citations: failed to read csv: %w", err)
		}

		if first {
			first = false
			if isHeader(record) {
				continue
			}
		}
		if len(record) < 2 {
			continue
		}

		title := strings.TrimSpace(record[0])
		link := strings.TrimSpace(record[1])
		if title == "" || link == "" {
			continue
		}
		rows = append(rows, Row{Title: title, Link: link})
	}

	return rows, nil
}

// LoadFile reads a citation CSV from path.
func LoadFile(csvPath string) ([]Row, error) {
	f, err := os.Open(csvPath)
	if err != nil {
		return nil, fmt.Errorf("citations: failed to open %s: %w", csvPath, err)
	}
	defer f.Close()

	return LoadCSV(f)
}

// isHeader reports whether record looks like the conventional header row.
func isHeader(record []string) bool {
	if len(record) < 2 {
		return false
	}
	return strings.EqualFold(strings.TrimSpace(record[0]), "title") &&
		strings.EqualFold(strings.TrimSpace(record[1]), "link")
}
