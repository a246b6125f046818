package model

import "time"

// Session is the aggregate outcome of one webget run. The pipeline steps
// share a single session value: discovery fills Targets and CrawlStats,
// the transfer phase appends Results. Steps run sequentially, so the
// session itself needs no locking; concurrent batch workers hand their
// results to the batch processor, which serializes the appends.
type Session struct {
	// ID uniquely identifies the run. A UUID assigned at session start.
	ID string `json:"id"`

	// StartedAt is when the run began.
	StartedAt time.Time `json:"started_at"`

	// FinishedAt is when the run completed, successfully or not.
	FinishedAt time.Time `json:"finished_at"`

	// Seeds are the URLs the run started from, as given by the user.
	Seeds []string `json:"seeds"`

	// Destination is the base directory files were written under.
	Destination string `json:"destination"`

	// Targets are the downloadable URLs produced by the discovery phase.
	Targets []CrawlTarget `json:"targets,omitempty"`

	// Results holds one terminal record per attempted transfer.
	Results []DownloadResult `json:"results,omitempty"`

	// CrawlStats summarizes the discovery phase.
	CrawlStats CrawlStats `json:"crawl_stats"`

	// Err is the fatal error that aborted the run, if any. Per-item
	// failures live in Results, not here.
	Err error `json:"-"` // Excluded from JSON; see ErrorMessage

	// ErrorMessage is the string representation of Err for serialization.
	ErrorMessage string `json:"error,omitempty"`
}

// CrawlStats summarizes the discovery phase of a run.
type CrawlStats struct {
	// PagesVisited is the number of pages fetched and parsed.
	PagesVisited int `json:"pages_visited"`

	// FilesDiscovered is the number of downloadable targets found.
	FilesDiscovered int `json:"files_discovered"`

	// Errors is the number of pages that failed to fetch or parse.
	// Crawl errors skip the page; they never abort the run.
	Errors int `json:"errors"`

	// RobotsBlocked is the number of URLs skipped because robots.txt
	// disallowed them.
	RobotsBlocked int `json:"robots_blocked"`

	// VisitedURLs are the URLs claimed for fetching during discovery,
	// in no particular order. Claimed downloadable targets appear here
	// as well; the transfer phase fetches those.
	VisitedURLs []string `json:"visited_urls,omitempty"`

	// DiscoveredURLs are all URLs ever seen, fetched or not.
	DiscoveredURLs []string `json:"discovered_urls,omitempty"`
}

// Summary aggregates transfer outcomes for display and persistence.
type Summary struct {
	// Requested is the number of transfers attempted.
	Requested int `json:"requested"`

	// Succeeded is the number of fully written, verified files.
	Succeeded int `json:"succeeded"`

	// Failed is the number of transfers that exhausted their retries or
	// hit a non-retryable error.
	Failed int `json:"failed"`

	// Resumed is the number of transfers that continued a partial file.
	Resumed int `json:"resumed"`

	// TotalBytes is the sum of bytes transferred in this run.
	TotalBytes int64 `json:"total_bytes"`

	// Elapsed is the wall-clock duration of the whole run.
	Elapsed time.Duration `json:"-"`

	// ElapsedMillis is Elapsed in milliseconds for serialization.
	ElapsedMillis int64 `json:"elapsed_ms"`
}

// NewSession creates a session for the given seed URLs with the start
// time set to now.
func NewSession(id string, seeds []string, destination string) *Session {
	return &Session{
		ID:          id,
		StartedAt:   time.Now(),
		Seeds:       seeds,
		Destination: destination,
	}
}

// Finish stamps the end time and records a fatal error, if any.
func (s *Session) Finish(err error) {
	s.FinishedAt = time.Now()
	s.Err = err
	if err != nil {
		s.ErrorMessage = err.Error()
	}
}

// Summarize computes aggregate transfer totals from the results.
func (s *Session) Summarize() Summary {
	sum := Summary{Requested: len(s.Results)}
	for _, r := range s.Results {
		if r.Success {
			sum.Succeeded++
		} else {
			sum.Failed++
		}
		if r.Resumed {
			sum.Resumed++
		}
		sum.TotalBytes += r.Size
	}
	if !s.FinishedAt.IsZero() {
		sum.Elapsed = s.FinishedAt.Sub(s.StartedAt)
		sum.ElapsedMillis = sum.Elapsed.Milliseconds()
	}
	return sum
}
