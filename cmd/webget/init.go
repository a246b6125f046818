package main

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"

	"github.com/nao1215/webget/internal/config"
	"github.com/spf13/cobra"
)

//go:embed templates/webget.yml
var configTemplate embed.FS

// NewInitCmd creates the init command.
func NewInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize a new webget configuration file",
		Long: `Init creates a new .webget.yml configuration file in the current directory.

The generated file includes:
- Default settings for crawl depth, delays, and retries
- Commented examples for accept/reject patterns and per-host settings
- Documentation for all available options

Examples:
  # Create .webget.yml in current directory
  webget init

  # Create config file at a specific path
  webget init -o myconfig.yml

  # Force overwrite existing file
  webget init -f`,
		RunE: runInitCmd,
	}

	cmd.Flags().StringP("output", "o", config.DefaultConfigFile,
		"Output file path for the configuration")
	cmd.Flags().BoolP("force", "f", false,
		"Overwrite existing configuration file")

	return cmd
}

// runInitCmd executes the init command.
func runInitCmd(cmd *cobra.Command, _ []string) error {
	outputPath, err := cmd.Flags().GetString("output")
	if err != nil {
		return err
	}

	force, err := cmd.Flags().GetBool("force")
	if err != nil {
		return err
	}

	// Check if file already exists
	if !force {
		if _, err := os.Stat(outputPath); err == nil {
			return fmt.Errorf("configuration file already exists: %s (use -f to overwrite)", outputPath)
		}
	}

	// Read template from embedded filesystem
	content, err := configTemplate.ReadFile("templates/webget.yml")
	if err != nil {
		return fmt.Errorf("failed to read config template: %w", err)
	}

	// Create parent directories if needed
	dir := filepath.Dir(outputPath)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}

	// Write configuration file
	if err := os.WriteFile(outputPath, content, 0600); err != nil {
		return fmt.Errorf("failed to write configuration file: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Created configuration file: %s\n", outputPath)
	fmt.Fprintln(cmd.OutOrStdout(), "\nEdit this file to set download defaults such as:")
	fmt.Fprintln(cmd.OutOrStdout(), "  - Crawl depth and politeness delays")
	fmt.Fprintln(cmd.OutOrStdout(), "  - Accept/reject filename patterns")
	fmt.Fprintln(cmd.OutOrStdout(), "  - Retry, circuit breaker, and security policy")
	fmt.Fprintln(cmd.OutOrStdout(), "  - Per-host cookies and headers")

	return nil
}
