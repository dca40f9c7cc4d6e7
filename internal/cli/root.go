// Package cli provides the thin spf13/cobra command-line wrapper around
// the daemon core (§1: "the interactive command-line wrapper... is
// explicitly out of scope beyond driving the core"). It contains no core
// logic of its own — every subcommand just calls into internal/daemon.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/AbdouB/memoryd/internal/daemon"
	"github.com/AbdouB/memoryd/internal/models"
)

var (
	configPath string
	outputText bool // --text flag for human-readable output (default is JSON)
	verbose    bool

	d *daemon.Daemon
)

// rootCmd is the base command.
var rootCmd = &cobra.Command{
	Use:   "memoryd",
	Short: "Background intelligence core for a per-user AI-assistant memory daemon",
	Long: `memoryd - background intelligence core

Runs the Task Scheduler, Indexing Pipeline, Contemplation Engine,
Session-Continuity Bridge, and Storage Orchestrator described in this
project's specification.

Quick Start:
  memoryd serve               # run the daemon loop until signaled
  memoryd index <path>        # one-shot codebase index of path
  memoryd search <query>      # query the semantic+keyword search contract
  memoryd status              # scheduler health and epistemic snapshot`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "help" || cmd.Name() == "version" {
			return nil
		}
		var err error
		d, err = daemon.Open(configPath)
		if err != nil {
			return fmt.Errorf("open daemon: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if d != nil {
			_ = d.Stop(5 * time.Second)
		}
	},
}

// Execute runs the CLI.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", defaultConfigPath(), "path to config.json")
	rootCmd.PersistentFlags().BoolVar(&outputText, "text", false, "human-readable text output (default is JSON)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	rootCmd.AddCommand(versionCmd, serveCmd, indexCmd, searchCmd, statusCmd, ingestSessionCmd)
}

func defaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".memoryd/config.json"
	}
	return home + "/.memoryd/config.json"
}

// outputResult prints result as indented JSON, or Go-syntax text under
// --text.
func outputResult(result interface{}) {
	if outputText {
		fmt.Printf("%+v\n", result)
		return
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(result)
}

// outputError prints err in the appropriate format.
func outputError(err error) {
	if outputText {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return
	}
	enc := json.NewEncoder(os.Stderr)
	_ = enc.Encode(map[string]interface{}{"status": "error", "error": err.Error()})
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("memoryd version 0.1.0")
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the daemon loop until signaled",
	RunE: func(cmd *cobra.Command, args []string) error {
		d.Start()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		<-sigCh
		return nil
	},
}

var indexCmd = &cobra.Command{
	Use:   "index <path>",
	Short: "One-shot codebase index of a project directory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		indexed, skipped, err := d.IndexProject(args[0])
		if err != nil {
			outputError(err)
			return err
		}
		outputResult(map[string]any{"indexed": indexed, "skipped": skipped})
		return nil
	},
}

var searchLimit int

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Run the search contract over a Semantic Store collection",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		collection, _ := cmd.Flags().GetString("collection")
		results, err := d.Search(context.Background(), collection, args[0], searchLimit)
		if err != nil {
			outputError(err)
			return err
		}
		outputResult(results)
		return nil
	},
}

var ingestSessionCmd = &cobra.Command{
	Use:   "ingest-session <session.json>",
	Short: "Store and index a conversation session file (§6 session file format)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := os.ReadFile(args[0])
		if err != nil {
			outputError(err)
			return err
		}
		var sess models.ConversationSession
		if err := json.Unmarshal(raw, &sess); err != nil {
			outputError(err)
			return err
		}
		chunked, err := d.IngestSession(&sess)
		if err != nil {
			outputError(err)
			return err
		}
		outputResult(map[string]any{"session_id": sess.SessionID, "chunked": chunked})
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Report scheduler health and the epistemic snapshot",
	RunE: func(cmd *cobra.Command, args []string) error {
		report, err := d.Status()
		if err != nil {
			outputError(err)
			return err
		}
		outputResult(report)
		return nil
	},
}

func init() {
	searchCmd.Flags().String("collection", "stored_memories", "Semantic Store collection to search")
	searchCmd.Flags().IntVar(&searchLimit, "limit", 10, "maximum results to return")
}
