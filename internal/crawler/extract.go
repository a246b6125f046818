package crawler

import (
	"bytes"
	"fmt"
	"io"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Selectors covering every element the extractor pulls references from.
const (
	hrefSelector   = "a[href], link[href], area[href]"
	srcSelector    = "img[src], script[src], iframe[src], source[src], embed[src], audio[src], video[src], track[src]"
	srcsetSelector = "img[srcset], source[srcset]"
)

var (
	// cssURLPattern matches url(...) references in CSS, quoted or bare.
	cssURLPattern = regexp.MustCompile(`url\(\s*['"]?([^'"()\s]+)['"]?\s*\)`)

	// cssImportPattern matches @import rules written without url().
	cssImportPattern = regexp.MustCompile(`@import\s+['"]([^'"]+)['"]`)
)

// droppedSchemes are reference schemes that never yield a fetchable
// resource.
var droppedSchemes = []string{"javascript:", "mailto:", "tel:", "data:"}

// Extractor collects the URLs referenced by an HTML page. Relative
// references are resolved against the base URL and only absolute http
// and https results are kept.
type Extractor struct {
	base *url.URL
}

// NewExtractor returns an extractor that resolves references against
// baseURL, normally the final URL of the fetched page so links on
// redirected pages resolve correctly.
func NewExtractor(baseURL string) (*Extractor, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base URL: %w", err)
	}
	return &Extractor{base: base}, nil
}

// Extract parses HTML from r and returns the referenced URLs in the
// order found, without duplicates. Anchors, resource elements, srcset
// candidates, and CSS references in style elements and style
// attributes are all collected.
func (e *Extractor) Extract(r io.Reader) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parse HTML: %w", err)
	}

	var links []string
	seen := make(map[string]bool)
	add := func(raw string) {
		resolved, ok := e.resolve(raw)
		if !ok || seen[resolved] {
			return
		}
		seen[resolved] = true
		links = append(links, resolved)
	}

	doc.Find(hrefSelector).Each(func(_ int, sel *goquery.Selection) {
		add(sel.AttrOr("href", ""))
	})
	doc.Find(srcSelector).Each(func(_ int, sel *goquery.Selection) {
		add(sel.AttrOr("src", ""))
	})
	doc.Find(srcsetSelector).Each(func(_ int, sel *goquery.Selection) {
		for _, candidate := range splitSrcset(sel.AttrOr("srcset", "")) {
			add(candidate)
		}
	})
	doc.Find("style").Each(func(_ int, sel *goquery.Selection) {
		for _, ref := range cssRefs(sel.Text()) {
			add(ref)
		}
	})
	doc.Find("[style]").Each(func(_ int, sel *goquery.Selection) {
		for _, ref := range cssRefs(sel.AttrOr("style", "")) {
			add(ref)
		}
	})
	return links, nil
}

// resolve turns one raw reference into an absolute http or https URL.
// Empty references, bare fragments, non-resource schemes, and anything
// the base cannot resolve are dropped.
func (e *Extractor) resolve(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.HasPrefix(raw, "#") {
		return "", false
	}
	lower := strings.ToLower(raw)
	for _, scheme := range droppedSchemes {
		if strings.HasPrefix(lower, scheme) {
			return "", false
		}
	}
	resolved, err := e.base.Parse(raw)
	if err != nil {
		return "", false
	}
	if resolved.Scheme != "http" && resolved.Scheme != "https" {
		return "", false
	}
	if resolved.Host == "" {
		return "", false
	}
	return resolved.String(), true
}

// cssRefs returns the URL references in a CSS fragment, covering both
// url(...) and bare @import rules.
func cssRefs(css string) []string {
	var refs []string
	for _, match := range cssURLPattern.FindAllStringSubmatch(css, -1) {
		refs = append(refs, match[1])
	}
	for _, match := range cssImportPattern.FindAllStringSubmatch(css, -1) {
		refs = append(refs, match[1])
	}
	return refs
}

// splitSrcset returns the URL of each srcset candidate, discarding the
// width and density descriptors.
func splitSrcset(srcset string) []string {
	var urls []string
	for _, candidate := range strings.Split(srcset, ",") {
		if fields := strings.Fields(candidate); len(fields) > 0 {
			urls = append(urls, fields[0])
		}
	}
	return urls
}

// ExtractLinks parses page content and returns every absolute URL it
// references, resolved against baseURL.
func ExtractLinks(page []byte, baseURL string) ([]string, error) {
	extractor, err := NewExtractor(baseURL)
	if err != nil {
		return nil, err
	}
	return extractor.Extract(bytes.NewReader(page))
}
