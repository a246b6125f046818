package model

import "sync"

// CrawlTarget is a URL discovered during crawling or supplied as a seed.
// Targets are immutable once created; reclassification (a page that turns
// out not to be HTML) produces a new target rather than mutating this one.
type CrawlTarget struct {
	// URL is the absolute URL of the target.
	URL string `json:"url"`

	// Depth is the link distance from the seed URL. Seeds have depth 0.
	Depth int `json:"depth"`

	// ParentURL is the page on which this target was discovered.
	// Empty for seed URLs.
	ParentURL string `json:"parent_url,omitempty"`

	// Kind classifies the target as a page to crawl or a file to download.
	Kind Kind `json:"kind"`
}

// VisitedSet tracks URLs that have already been claimed for fetching
// during a crawl run. Membership is write-once: a URL, once inserted, is
// never removed within the same run. All methods are safe for concurrent
// use by parallel crawl workers.
type VisitedSet struct {
	mu   sync.Mutex
	urls map[string]bool
}

// NewVisitedSet creates an empty visited set.
func NewVisitedSet() *VisitedSet {
	return &VisitedSet{urls: make(map[string]bool)}
}

// MarkVisited inserts the URL and reports whether it was newly inserted.
// The check and the insert happen under a single lock, so two workers
// discovering the same URL concurrently cannot both win the claim.
func (v *VisitedSet) MarkVisited(url string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.urls[url] {
		return false
	}
	v.urls[url] = true
	return true
}

// Contains reports whether the URL has been marked visited.
func (v *VisitedSet) Contains(url string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.urls[url]
}

// Len returns the number of visited URLs.
func (v *VisitedSet) Len() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.urls)
}

// URLs returns a copy of the visited URLs in no particular order.
func (v *VisitedSet) URLs() []string {
	v.mu.Lock()
	defer v.mu.Unlock()
	urls := make([]string, 0, len(v.urls))
	for u := range v.urls {
		urls = append(urls, u)
	}
	return urls
}

// Discovery records how a URL was first seen during a crawl.
type Discovery struct {
	// Depth is the link distance from the seed at first sighting.
	Depth int `json:"depth"`

	// Parent is the page on which the URL was first seen. Empty for seeds.
	Parent string `json:"parent,omitempty"`

	// Kind is the classification at first sighting.
	Kind Kind `json:"kind"`
}

// DiscoveryRecord maps every URL ever seen during a crawl to how it was
// first discovered. It is a superset of the visited set: URLs that were
// discovered but never fetched (beyond the depth limit, filtered by
// patterns) still appear here. Entries are append-only and the first
// sighting wins. All methods are safe for concurrent use.
type DiscoveryRecord struct {
	mu      sync.Mutex
	entries map[string]Discovery
}

// NewDiscoveryRecord creates an empty discovery record.
func NewDiscoveryRecord() *DiscoveryRecord {
	return &DiscoveryRecord{entries: make(map[string]Discovery)}
}

// Record stores the discovery for url unless one is already present.
func (d *DiscoveryRecord) Record(url string, disc Discovery) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.entries[url]; ok {
		return
	}
	d.entries[url] = disc
}

// Lookup returns the first-sighting discovery for url.
func (d *DiscoveryRecord) Lookup(url string) (Discovery, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	disc, ok := d.entries[url]
	return disc, ok
}

// Len returns the number of distinct URLs ever seen.
func (d *DiscoveryRecord) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.entries)
}

// URLs returns a copy of all recorded URLs in no particular order.
func (d *DiscoveryRecord) URLs() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	urls := make([]string, 0, len(d.entries))
	for u := range d.entries {
		urls = append(urls, u)
	}
	return urls
}
