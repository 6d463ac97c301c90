package ingestion

import (
	"net/url"
	"path"
	"path/filepath"
	"strings"
)

// TitleFromURL derives a document title from a URL: the last path segment,
// extension included (citation resolution strips it later). Falls back to
// the host when the URL has no usable path, and to the raw input when it
// does not parse.
func TitleFromURL(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return strings.TrimSpace(rawURL)
	}

	segment := path.Base(strings.TrimRight(u.Path, "/"))
	if segment == "" || segment == "." || segment == "/" {
		if u.Host != "" {
			return u.Host
		}
		return strings.TrimSpace(rawURL)
	}
	return segment
}

// TitleFromPath derives a document title from a filesystem path: the base
// file name, extension included.
func TitleFromPath(p string) string {
	return filepath.Base(strings.TrimSpace(p))
}
