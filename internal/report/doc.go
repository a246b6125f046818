// Package report renders completed download sessions for people and
// tools.
//
// Three formats are provided: simple aligned text for the terminal,
// Markdown for sharing, and JSON for programmatic use. Every writer
// implements the Writer interface, and MultiWriter fans a session out
// to several destinations at once, for example the terminal and a
// report file.
package report
