// Package history persists download sessions to a local SQLite database.
//
// Each run occupies one row in the sessions table plus one row per
// attempted transfer in the downloads table. Saving a session with a
// known ID overwrites its stored totals, and a re-downloaded URL
// replaces its earlier row, so the store always holds the latest
// outcome for every (session, url) pair.
//
// The store is a single file named history.db inside the directory
// passed to Open. The command line puts it under the user's XDG data
// directory. The driver is modernc.org/sqlite, so no cgo is involved.
package history
