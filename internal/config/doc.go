// Package config defines the configuration for webget.
//
// Configuration flows from three layers, lowest precedence first:
//   - Built-in defaults (the Default* constants in this package)
//   - The .webget.yml configuration file, if present
//   - Command-line flags
//
// The Config struct is populated by the CLI layer and passed through the
// application via dependency injection rather than global state. Validate
// is called once after flag parsing, before any network activity, and
// returns sentinel errors (see errors.go) that callers can test with
// errors.Is.
//
// The configuration file supports global settings plus per-host
// overrides (extra headers, cookies, politeness delay) for sites that
// need credentials or a gentler request rate. See File and HostConfig.
//
// XDG base directories locate the history database and the default
// config search path; see XDGDataDir and XDGConfigDir.
package config
