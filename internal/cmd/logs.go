package cmd

import (
	"io"
	"os"
	"time"

	"github.com/Iron-Ham/teelog/internal/config"
	"github.com/Iron-Ham/teelog/internal/errors"
	"github.com/Iron-Ham/teelog/internal/logging"
	"github.com/spf13/cobra"
)

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "View teelog's diagnostic log",
	Long: `View and filter teelog's own diagnostic log (debug.log).

This is not the transcript of a captured command; it records what teelog
itself did: when captures started and stopped, drain passes, and errors.

Examples:
  # Last 50 entries
  teelog logs

  # Only warnings and errors from the last hour
  teelog logs --level warn --since 1h

  # Stop-phase entries for one transcript, as CSV
  teelog logs --phase stop --transcript /tmp/build.log --format csv -o stop.csv`,
	Args: cobra.NoArgs,
	RunE: runLogs,
}

var (
	logsTail       int
	logsLevel      string
	logsSince      time.Duration
	logsStream     string
	logsPhase      string
	logsTranscript string
	logsGrep       string
	logsFormat     string
	logsOutput     string
)

func init() {
	rootCmd.AddCommand(logsCmd)

	logsCmd.Flags().IntVarP(&logsTail, "tail", "n", 50, "Number of entries to show (0 for all)")
	logsCmd.Flags().StringVar(&logsLevel, "level", "", "Filter by minimum level (debug/info/warn/error)")
	logsCmd.Flags().DurationVar(&logsSince, "since", 0, "Show entries newer than this (e.g., 1h, 30m)")
	logsCmd.Flags().StringVar(&logsStream, "stream", "", "Filter by stream (stdout/stderr)")
	logsCmd.Flags().StringVar(&logsPhase, "phase", "", "Filter by phase (start/read/stop)")
	logsCmd.Flags().StringVar(&logsTranscript, "transcript", "", "Filter by transcript path")
	logsCmd.Flags().StringVar(&logsGrep, "grep", "", "Filter by substring of the message")
	logsCmd.Flags().StringVar(&logsFormat, "format", logging.FormatText, "Output format (text/json/csv)")
	logsCmd.Flags().StringVarP(&logsOutput, "output", "o", "", "Write to a file instead of stdout")
}

func runLogs(cmd *cobra.Command, args []string) error {
	cfg := config.Get()
	entries, err := logging.ReadEntries(cfg.Logging.ResolveDir())
	if err != nil {
		return err
	}

	filter := logging.Filter{
		MinLevel:   logsLevel,
		Stream:     logsStream,
		Phase:      logsPhase,
		Transcript: logsTranscript,
		Contains:   logsGrep,
	}
	if logsSince > 0 {
		filter.Since = time.Now().Add(-logsSince)
	}
	entries = logging.Select(entries, filter)

	if logsTail > 0 && len(entries) > logsTail {
		entries = entries[len(entries)-logsTail:]
	}

	var w io.Writer = cmd.OutOrStdout()
	if logsOutput != "" {
		f, err := os.Create(logsOutput)
		if err != nil {
			return errors.Wrap(err, "failed to create output file")
		}
		defer func() { _ = f.Close() }()
		w = f
	}

	return logging.WriteEntries(w, entries, logsFormat)
}
