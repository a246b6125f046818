// Package model defines the core data structures used throughout webget.
//
// This package contains the following main types:
//   - CrawlTarget: A URL discovered during crawling, classified by kind
//   - VisitedSet: Concurrency-safe set of already-fetched URLs
//   - DiscoveryRecord: Append-only record of every URL ever seen
//   - DownloadRequest / DownloadResult: One transfer in and out
//   - ErrorKind / ClassifiedError: Typed failure classification
//   - Session: The aggregate outcome of one run
//
// Models live in their own package to avoid circular dependencies.
// The crawler, transfer, pipeline, history, and report packages all
// consume these types, so centralizing them prevents import cycles.
//
// The models are designed to be serializable to JSON for report output
// and database storage.
package model
