// Package main provides the entry point for the webget CLI.
//
// webget is a resilient file downloader. It crawls web pages starting
// from seed URLs, collects the files they link to, and transfers them
// with retry, resume, and per-host circuit breaking.
//
// Usage:
//
//	webget get <url>
//	webget get -l 2 -A "*.pdf" <url>
//
// See --help for all available options.
package main

// main is the entry point for webget.
func main() {
	Execute()
}
