package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/Iron-Ham/teelog/internal/config"
	"github.com/Iron-Ham/teelog/internal/errors"
	"github.com/Iron-Ham/teelog/internal/logging"
	"github.com/Iron-Ham/teelog/internal/tee"
	"github.com/Iron-Ham/teelog/internal/util"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run [flags] -- command [args...]",
	Short: "Run a command with its output captured",
	Long: `Run a command with stdout and stderr redirected into a transcript file.

The command inherits the redirected descriptors, so everything it and its
children print is captured in write order. With echo enabled, each captured
line is also written to the original stdout as it arrives.

teelog exits with the command's exit code.

Examples:
  # Capture a build into build.log, echoing when attached to a terminal
  teelog run -o build.log -- make all

  # Capture silently and dump the captured lines afterwards
  teelog run --echo off --print -- ./script.sh

  # Give the reader at most two seconds to drain on stop
  teelog run --stop-timeout 2s -- go test ./...`,
	Args:         cobra.MinimumNArgs(1),
	SilenceUsage: true,
	RunE:         runRun,
}

var (
	runOutput       string
	runEcho         string
	runPollInterval time.Duration
	runStopTimeout  time.Duration
	runWatch        bool
	runKeep         int
	runPrint        bool
)

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runOutput, "output", "o", "", "transcript path (default from capture.output)")
	runCmd.Flags().StringVar(&runEcho, "echo", "", "echo captured lines: auto, on, off (default from capture.echo)")
	runCmd.Flags().DurationVar(&runPollInterval, "poll-interval", 0, "reader poll interval (default from capture.poll_interval_ms)")
	runCmd.Flags().DurationVar(&runStopTimeout, "stop-timeout", 0, "maximum wait for the reader on stop, 0 waits forever")
	runCmd.Flags().BoolVar(&runWatch, "watch", false, "wake the reader on file writes instead of waiting for the next poll")
	runCmd.Flags().IntVar(&runKeep, "keep", 0, "number of previous transcripts to archive before truncating")
	runCmd.Flags().BoolVar(&runPrint, "print", false, "print the captured lines after the command exits")
}

// ExitError carries the exit code of the captured command.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("command exited with status %d", e.Code)
}

// loadRunConfig merges flags that were set explicitly over the loaded
// configuration and validates the result.
func loadRunConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("output") {
		cfg.Capture.Output = runOutput
	}
	if flags.Changed("echo") {
		cfg.Capture.Echo = runEcho
	}
	// The config holds whole milliseconds; finer flag values would truncate.
	var flagErrs config.ValidationErrors
	if flags.Changed("poll-interval") {
		if runPollInterval < time.Millisecond {
			flagErrs = append(flagErrs, config.ValidationError{
				Field:   "--poll-interval",
				Value:   runPollInterval,
				Message: "must be at least 1ms",
			})
		}
		cfg.Capture.PollIntervalMs = int(runPollInterval.Milliseconds())
	}
	if flags.Changed("stop-timeout") {
		if runStopTimeout != 0 && runStopTimeout < time.Millisecond {
			flagErrs = append(flagErrs, config.ValidationError{
				Field:   "--stop-timeout",
				Value:   runStopTimeout,
				Message: "must be 0 (wait forever) or at least 1ms",
			})
		}
		cfg.Capture.StopTimeoutMs = int(runStopTimeout.Milliseconds())
	}
	if len(flagErrs) > 0 {
		return nil, flagErrs
	}
	if flags.Changed("watch") {
		cfg.Capture.Watch = runWatch
	}
	if flags.Changed("keep") {
		cfg.Capture.Keep = runKeep
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, config.ValidationErrors(errs)
	}
	return cfg, nil
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadRunConfig(cmd)
	if err != nil {
		return err
	}

	logger := CreateLogger(cfg)
	defer logger.Close()

	output, err := filepath.Abs(cfg.Capture.Output)
	if err != nil {
		return errors.Wrap(err, "invalid output path")
	}

	if cfg.Capture.Keep > 0 {
		if err := logging.ArchiveFile(output, cfg.Capture.Keep, cfg.Capture.Compress); err != nil {
			logger.Warn("failed to archive previous transcript", "path", output, "error", err.Error())
		}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := tee.Options{
		Echo:         cfg.Capture.ResolveEcho(isTerminal(os.Stdout)),
		PollInterval: cfg.Capture.PollInterval(),
		StopTimeout:  cfg.Capture.StopTimeout(),
		Watch:        cfg.Capture.Watch,
		Logger:       logger,
	}

	logger.Info("running command", "command", args[0], "args", args[1:], "transcript", output)

	started := time.Now()
	exitCode := 0
	lines, err := tee.Run(output, opts, func() error {
		code, err := runChild(ctx, args)
		exitCode = code
		return err
	})
	elapsed := time.Since(started)

	if err != nil && errors.Is(err, errors.ErrJoinTimeout) {
		logger.Error("reader abandoned", "error", err.Error())
	}

	printSummary(cmd.ErrOrStderr(), output, len(lines), exitCode, elapsed, err)

	if runPrint && lines != nil {
		out := cmd.OutOrStdout()
		printLines(out, lines, terminalWidth(out))
	}

	if err != nil {
		return err
	}
	if exitCode != 0 {
		return &ExitError{Code: exitCode}
	}
	return nil
}

// runChild runs args with the process's standard descriptors. A non-zero
// exit is reported through the code, not the error.
func runChild(ctx context.Context, args []string) (int, error) {
	child := exec.CommandContext(ctx, args[0], args[1:]...)
	child.Stdin = os.Stdin
	child.Stdout = os.Stdout
	child.Stderr = os.Stderr
	child.Cancel = func() error {
		return child.Process.Signal(os.Interrupt)
	}
	child.WaitDelay = 5 * time.Second

	err := child.Run()
	if child.ProcessState != nil {
		code := child.ProcessState.ExitCode()
		if code < 0 {
			code = 1
			if ws, ok := child.ProcessState.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
				code = 128 + int(ws.Signal())
			}
		}
		var exitErr *exec.ExitError
		if err == nil || errors.As(err, &exitErr) {
			return code, nil
		}
		return code, err
	}
	if err != nil {
		return 127, errors.Wrapf(err, "failed to start %s", args[0])
	}
	return 0, nil
}

// printSummary reports what was captured. Errors are left to ReportError.
func printSummary(w io.Writer, path string, lines, exitCode int, elapsed time.Duration, err error) {
	status := successStyle.Render("captured")
	if err != nil || exitCode != 0 {
		status = errorStyle.Render("captured")
	}
	fmt.Fprintf(w, "%s %s %s %s\n",
		status,
		accentStyle.Render(fmt.Sprintf("%d lines", lines)),
		mutedStyle.Render("to"),
		path)
	fmt.Fprintf(w, "%s\n", mutedStyle.Render(fmt.Sprintf("exit %d in %s", exitCode, elapsed.Round(time.Millisecond))))
}

// printLines lists the captured lines. On a terminal each line is shown as
// text cut to the row width; elsewhere lines are quoted so the exact bytes,
// line endings included, survive.
func printLines(w io.Writer, lines []string, width int) {
	fmt.Fprintln(w, titleStyle.Render("Captured lines:"))
	for i, line := range lines {
		num := mutedStyle.Render(fmt.Sprintf("%4d", i+1))
		if width > 0 {
			fmt.Fprintf(w, "%s %s\n", num, util.DisplayLine(line, width-5))
			continue
		}
		fmt.Fprintf(w, "%s %q\n", num, line)
	}
}
