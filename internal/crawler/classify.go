package crawler

import (
	"net/url"
	"path"
	"strings"

	"github.com/nao1215/webget/internal/model"
)

// crawlableExtensions are path extensions normally served as HTML
// pages rather than files.
var crawlableExtensions = map[string]bool{
	".html":  true,
	".htm":   true,
	".xhtml": true,
	".php":   true,
	".asp":   true,
	".aspx":  true,
	".jsp":   true,
}

// Classify decides whether a URL points at a page to crawl or a file
// to download. Directory URLs, extensionless paths, and known page
// extensions are crawlable; every other extension, and any URL that
// does not parse, is downloadable.
func Classify(rawURL string) model.Kind {
	u, err := url.Parse(rawURL)
	if err != nil {
		return model.KindDownloadable
	}
	if u.Path == "" || strings.HasSuffix(u.Path, "/") {
		return model.KindCrawlable
	}
	ext := strings.ToLower(path.Ext(u.Path))
	if ext == "" || crawlableExtensions[ext] {
		return model.KindCrawlable
	}
	return model.KindDownloadable
}
