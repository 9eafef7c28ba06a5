// package main is the entry point for the org-stats tool
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	missingcmd "github.com/alan/org-stats/cmd/missingrepos"
	statscmd "github.com/alan/org-stats/cmd/repostats"
)

func main() {
	// Values in .env become visible to the env-var fallbacks of every flag.
	_ = godotenv.Load()

	var optionsFile string
	var logFormat string

	rootCmd := &cobra.Command{
		Use:   "org-stats",
		Short: "Collect per-repository statistics for a GitHub organization",
		Long: `org-stats walks every repository of a GitHub organization through the
GraphQL API and emits one CSV row per repository with issue, pull request,
review and comment counts. Progress is saved after every row so interrupted
runs can resume where they left off.`,
	}

	rootCmd.PersistentFlags().StringVarP(&optionsFile, "options-file", "c", "", "Optional YAML file providing defaults for any flag")
	rootCmd.PersistentFlags().StringVarP(&logFormat, "log-format", "f", "text", "Log format (text, json)")

	rootCmd.AddCommand(statscmd.NewRepoStatsCmd(&optionsFile, &logFormat, setupLogger))
	rootCmd.AddCommand(missingcmd.NewMissingReposCmd(&optionsFile, &logFormat, setupLogger))

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// setupLogger configures the default slog logger. When orgName is non-empty a
// daily log file under logs/ receives a copy of every record.
func setupLogger(verbose bool, format, orgName string) {
	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}

	var out io.Writer = os.Stdout
	if orgName != "" {
		if file, err := openLogFile(orgName); err == nil {
			out = io.MultiWriter(os.Stdout, file)
		} else {
			fmt.Fprintf(os.Stderr, "warning: could not open log file: %v\n", err)
		}
	}

	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(out, &slog.HandlerOptions{Level: logLevel})
	} else {
		handler = slog.NewTextHandler(out, &slog.HandlerOptions{Level: logLevel})
	}

	slog.SetDefault(slog.New(handler))
}

func openLogFile(orgName string) (*os.File, error) {
	if err := os.MkdirAll("logs", 0o750); err != nil {
		return nil, err
	}
	name := fmt.Sprintf("%s-repo-stats-%s.log", orgName, time.Now().Format("2006-01-02"))
	return os.OpenFile(filepath.Join("logs", name), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
}
