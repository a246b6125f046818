// Package main provides the entry point for the webget CLI.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command for webget.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "webget",
		Short: "Resilient recursive file downloader",
		Long: `webget downloads files from web and SFTP servers, following page links
down to the files they reference. Interrupted transfers resume where
they left off, failures retry with exponential backoff, and hosts that
keep failing are circuit-broken instead of hammered.

Every URL and destination path is checked against a security policy
before any request is made. URLs resolving to loopback or private
network addresses are refused by default, and downloads are confined
to the destination directory.`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags that apply to all commands
	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")
	cmd.PersistentFlags().StringP("config", "c", "",
		"Configuration file path (default: .webget.yml in current or home directory)")

	// Add subcommands
	cmd.AddCommand(NewGetCmd())
	cmd.AddCommand(NewHistoryCmd())
	cmd.AddCommand(NewInitCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
