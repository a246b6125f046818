package crawler

import (
	"net/url"
	"path/filepath"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// indexName is the file name used for directory-style URLs.
const indexName = "index.html"

// GenerateLocalPath maps a URL onto a destination file path. With
// preserveStructure the host and URL directories are mirrored under
// baseDestination; otherwise the file flattens to its last path
// segment. Query strings fold into the file name so distinct variants
// of the same path do not collide, traversal segments are dropped, and
// the URL-derived parts are NFC normalized for portable file names.
func GenerateLocalPath(rawURL, baseDestination string, preserveStructure bool) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return filepath.Join(baseDestination, indexName)
	}

	segments := pathSegments(u.Path)
	name := indexName
	if len(segments) > 0 && !strings.HasSuffix(u.Path, "/") {
		name = segments[len(segments)-1]
		segments = segments[:len(segments)-1]
	}
	if q := sanitizeQuery(u.RawQuery); q != "" {
		ext := filepath.Ext(name)
		name = strings.TrimSuffix(name, ext) + "_" + q + ext
	}

	if !preserveStructure {
		return filepath.Join(baseDestination, norm.NFC.String(name))
	}

	parts := make([]string, 0, len(segments)+2)
	if host := hostLabel(u); host != "" {
		parts = append(parts, host)
	}
	parts = append(parts, segments...)
	parts = append(parts, name)
	return filepath.Join(baseDestination, norm.NFC.String(filepath.Join(parts...)))
}

// hostLabel is the directory name for a URL's host, with the port
// appended when explicit so http://host/ and http://host:8080/ mirror
// into distinct trees.
func hostLabel(u *url.URL) string {
	label := u.Hostname()
	if label == "" {
		return ""
	}
	if port := u.Port(); port != "" {
		label += "_" + port
	}
	return label
}

// pathSegments splits a URL path into clean segments, dropping empty
// parts and traversal entries so the result can never escape the
// destination root.
func pathSegments(p string) []string {
	var segments []string
	for _, seg := range strings.Split(p, "/") {
		switch seg {
		case "", ".", "..":
			continue
		}
		segments = append(segments, seg)
	}
	return segments
}

// sanitizeQuery reduces a raw query string to the alphanumeric
// characters usable inside a file name.
func sanitizeQuery(query string) string {
	var b strings.Builder
	for _, r := range query {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}
