package model

// Kind classifies a discovered URL by how the crawl engine treats it.
// Classification is driven by the URL's file extension; see the crawler
// package for the extension tables.
type Kind int

const (
	// KindCrawlable marks a URL as a page to fetch and parse for further
	// links. Crawlable pages keep the traversal going; they are not saved
	// to disk.
	KindCrawlable Kind = iota

	// KindDownloadable marks a URL as a terminal resource to save to disk.
	// Downloadable targets are never parsed for links. URLs with an
	// unrecognized extension default to this kind so that unusual files
	// are downloaded rather than silently skipped.
	KindDownloadable
)

// String returns a human-readable representation of the kind.
func (k Kind) String() string {
	switch k {
	case KindCrawlable:
		return "crawlable"
	case KindDownloadable:
		return "downloadable"
	default:
		return "unknown"
	}
}
