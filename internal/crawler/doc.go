// Package crawler discovers downloadable files by breadth-first
// traversal of HTML pages.
//
// # Spider
//
// Spider is the crawl engine. Starting from one or more seed URLs it
// fetches pages level by level, extracts links from each page, and
// classifies every link as either another page to crawl or a file to
// download. Pages beyond the configured depth are never fetched, each
// URL is fetched at most once per run, and files matching the reject
// patterns (or missing the accept patterns) are dropped.
//
//	spider := crawler.NewSpider(client,
//		crawler.WithMaxDepth(3),
//		crawler.WithRobots(crawler.NewRobotsCache(client, "webget/1.0")),
//	)
//	result, err := spider.Crawl(ctx, "http://example.com/docs/")
//
// # Link extraction
//
// Extractor walks parsed HTML and collects absolute http and https
// URLs from anchors, media elements, srcset attributes, and inline CSS
// url() and @import references. Relative links are resolved against
// the page's final URL so redirected pages resolve correctly.
//
// # Robots
//
// RobotsCache fetches and caches robots.txt once per origin for the
// lifetime of a run. Missing or malformed robots.txt permits crawling;
// only an explicit Disallow for the configured user agent blocks a
// page fetch. Blocked pages are counted, not treated as errors.
//
// # Local paths
//
// GenerateLocalPath maps a URL to a destination file path, either
// flattened to the last path segment or mirroring the host and
// directory structure. Query strings are folded into the file name so
// distinct query variants do not collide.
package crawler
