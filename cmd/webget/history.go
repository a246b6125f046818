package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/nao1215/webget/internal/config"
	"github.com/nao1215/webget/internal/history"
	"github.com/spf13/cobra"
)

// defaultHistoryLimit is how many sessions the list view shows unless
// --limit says otherwise.
const defaultHistoryLimit = 20

// NewHistoryCmd creates the history command.
func NewHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show past download sessions",
		Long: `History lists download sessions recorded in the local database.

Every 'webget get' run is recorded with its seed URLs, per-file
results, and transfer totals. Sessions are listed newest first.

Examples:
  # List recent sessions
  webget history

  # List more sessions
  webget history --limit 50

  # Show the files of one session (ID prefixes work)
  webget history --session 1b9d6bcd`,
		Args: cobra.NoArgs,
		RunE: runHistoryCmd,
	}

	cmd.Flags().IntP("limit", "n", defaultHistoryLimit,
		"Maximum number of sessions to list")
	cmd.Flags().StringP("session", "s", "",
		"Show the per-file rows of this session (full ID or unique prefix)")

	return cmd
}

// runHistoryCmd executes the history command.
func runHistoryCmd(cmd *cobra.Command, _ []string) error {
	limit, err := cmd.Flags().GetInt("limit")
	if err != nil {
		return err
	}
	sessionID, err := cmd.Flags().GetString("session")
	if err != nil {
		return err
	}

	// Use XDG data directory for the database, same as 'webget get'.
	db, err := history.Open(config.XDGDataDir(), history.DefaultOptions())
	if err != nil {
		return fmt.Errorf("failed to open history database: %w", err)
	}
	defer db.Close()

	ctx := context.Background()
	out := cmd.OutOrStdout()

	if sessionID != "" {
		return showSessionDownloads(ctx, db, sessionID, out)
	}
	return listRecentSessions(ctx, db, limit, out)
}

// listRecentSessions prints the session list view, newest first.
func listRecentSessions(ctx context.Context, db *history.DB, limit int, out io.Writer) error {
	sessions, err := db.ListSessions(ctx, limit)
	if err != nil {
		return fmt.Errorf("failed to list sessions: %w", err)
	}

	if len(sessions) == 0 {
		fmt.Fprintln(out, "No download history found.")
		fmt.Fprintln(out, "\nUse 'webget get <url>' to download files.")
		return nil
	}

	fmt.Fprintf(out, "Download sessions (%d):\n\n", len(sessions))
	fmt.Fprintf(out, "  %-10s  %-19s  %-16s  %-10s  %s\n", "ID", "Started", "Results", "Size", "Seeds")
	fmt.Fprintln(out, "  "+strings.Repeat("-", 78))

	for i := range sessions {
		s := &sessions[i]
		fmt.Fprintf(out, "  %-10s  %-19s  %-16s  %-10s  %s\n",
			shortSessionID(s.ID),
			s.StartedAt.Local().Format("2006-01-02 15:04:05"),
			formatSessionResults(s),
			humanize.Bytes(uint64(s.TotalBytes)),
			formatSeedList(s.Seeds),
		)
	}

	fmt.Fprintln(out, "\nUse 'webget history --session <id>' to see the files of a session.")
	return nil
}

// showSessionDownloads prints one session with its per-file rows.
func showSessionDownloads(ctx context.Context, db *history.DB, idOrPrefix string, out io.Writer) error {
	rec, err := resolveSession(ctx, db, idOrPrefix)
	if err != nil {
		return err
	}

	downloads, err := db.ListDownloads(ctx, rec.ID)
	if err != nil {
		return fmt.Errorf("failed to list downloads: %w", err)
	}

	fmt.Fprintf(out, "Session %s\n", rec.ID)
	fmt.Fprintln(out, strings.Repeat("=", 60))

	fmt.Fprintf(out, "\nStarted:     %s\n", rec.StartedAt.Local().Format("2006-01-02 15:04:05"))
	if !rec.FinishedAt.IsZero() {
		fmt.Fprintf(out, "Finished:    %s\n", rec.FinishedAt.Local().Format("2006-01-02 15:04:05"))
	}
	fmt.Fprintf(out, "Destination: %s\n", rec.Destination)
	for i, seed := range rec.Seeds {
		if i == 0 {
			fmt.Fprintf(out, "Seeds:       %s\n", seed)
		} else {
			fmt.Fprintf(out, "             %s\n", seed)
		}
	}
	if rec.PagesVisited > 0 || rec.FilesDiscovered > 0 {
		fmt.Fprintf(out, "Crawl:       %d pages visited, %d files discovered\n",
			rec.PagesVisited, rec.FilesDiscovered)
	}
	fmt.Fprintf(out, "Totals:      %d requested, %d succeeded, %d failed, %d resumed, %s\n",
		rec.Requested, rec.Succeeded, rec.Failed, rec.Resumed, humanize.Bytes(uint64(rec.TotalBytes)))
	if rec.ErrorMessage != "" {
		fmt.Fprintf(out, "Error:       %s\n", rec.ErrorMessage)
	}

	if len(downloads) == 0 {
		fmt.Fprintln(out, "\nNo files were recorded for this session.")
		return nil
	}

	fmt.Fprintf(out, "\nFiles (%d):\n", len(downloads))
	for _, d := range downloads {
		if d.Success {
			note := humanize.Bytes(uint64(d.Size))
			if d.Resumed {
				note += ", resumed"
			}
			fmt.Fprintf(out, "  [ok] %s (%s)\n", d.FilePath, note)
		} else {
			fmt.Fprintf(out, "  [!!] %s\n", d.URL)
			fmt.Fprintf(out, "       %s: %s\n", d.ErrorKind, d.ErrorMessage)
		}
	}

	return nil
}

// resolveSession finds a session by full ID or unique ID prefix.
func resolveSession(ctx context.Context, db *history.DB, idOrPrefix string) (*history.SessionRecord, error) {
	rec, err := db.GetSession(ctx, idOrPrefix)
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	if rec != nil {
		return rec, nil
	}

	sessions, err := db.ListSessions(ctx, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}

	var matches []history.SessionRecord
	for i := range sessions {
		if strings.HasPrefix(sessions[i].ID, idOrPrefix) {
			matches = append(matches, sessions[i])
		}
	}

	switch len(matches) {
	case 0:
		return nil, fmt.Errorf("session %s not found (use 'webget history' to list sessions)", idOrPrefix)
	case 1:
		return &matches[0], nil
	default:
		return nil, fmt.Errorf("session ID prefix %s is ambiguous (%d matches)", idOrPrefix, len(matches))
	}
}

// shortSessionID returns the first UUID group of a session ID for
// compact display.
func shortSessionID(id string) string {
	if i := strings.IndexByte(id, '-'); i > 0 {
		return id[:i]
	}
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// formatSessionResults renders the per-session outcome counts.
func formatSessionResults(s *history.SessionRecord) string {
	parts := []string{fmt.Sprintf("%d ok", s.Succeeded)}
	if s.Failed > 0 {
		parts = append(parts, fmt.Sprintf("%d failed", s.Failed))
	}
	if s.ErrorMessage != "" {
		parts = append(parts, "error")
	}
	return strings.Join(parts, ", ")
}

// formatSeedList renders the seed column: the first seed plus a count
// of the rest.
func formatSeedList(seeds []string) string {
	switch len(seeds) {
	case 0:
		return "-"
	case 1:
		return seeds[0]
	default:
		return fmt.Sprintf("%s (+%d more)", seeds[0], len(seeds)-1)
	}
}
