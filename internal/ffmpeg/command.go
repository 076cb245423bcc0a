package ffmpeg

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"github.com/jmylchreest/ffhls/internal/observability"
)

// maxCapturedLines bounds the error output kept for ExecutionError.
const maxCapturedLines = 1000

// LineListener receives every line the subprocess writes to stdout or stderr.
// Listeners run synchronously on the reading goroutine, in registration order.
type LineListener func(line string)

// Command represents a prepared FFmpeg invocation.
type Command struct {
	Binary  string
	Args    []string
	Inputs  []string
	Outputs []string
}

// String returns the command as a string.
func (c *Command) String() string {
	return c.Binary + " " + strings.Join(c.Args, " ")
}

// Runner executes prepared commands.
type Runner interface {
	Run(ctx context.Context, cmd *Command, listeners ...LineListener) error
}

// ExecutionError is returned when ffmpeg exits abnormally.
type ExecutionError struct {
	Args        []string
	ErrorOutput string
	ExitCode    int
	// Verbose includes the command line and captured output in Error().
	Verbose bool
	Err     error
}

func (e *ExecutionError) Error() string {
	if !e.Verbose {
		return fmt.Sprintf("ffmpeg encountered an error (exit code %d)", e.ExitCode)
	}
	return fmt.Sprintf("ffmpeg encountered an error (exit code %d)\n\nCommand:\n%s\n\nError output:\n%s",
		e.ExitCode, strings.Join(e.Args, " "), e.ErrorOutput)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// ProcessRunner runs commands as child processes.
type ProcessRunner struct {
	Logger        *slog.Logger
	VerboseErrors bool
	// MonitorInterval enables process resource sampling when positive.
	MonitorInterval time.Duration
}

// NewProcessRunner creates a runner that logs through logger.
func NewProcessRunner(logger *slog.Logger, verboseErrors bool) *ProcessRunner {
	if logger == nil {
		logger = slog.Default()
	}
	return &ProcessRunner{Logger: logger, VerboseErrors: verboseErrors}
}

// Run starts the command, feeds each output line to the listeners and waits for exit.
// stdout and stderr are merged into one stream and read on the calling goroutine.
func (r *ProcessRunner) Run(ctx context.Context, c *Command, listeners ...LineListener) error {
	cmd := exec.CommandContext(ctx, c.Binary, c.Args...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("getting stdout pipe: %w", err)
	}
	cmd.Stderr = cmd.Stdout

	r.Logger.DebugContext(ctx, "starting ffmpeg", slog.String("command", c.String()))

	if err := cmd.Start(); err != nil {
		return &ExecutionError{Args: c.Args, ErrorOutput: err.Error(), ExitCode: -1, Verbose: r.VerboseErrors, Err: err}
	}

	var monitor *ProcessMonitor
	if r.MonitorInterval > 0 {
		monitor = NewProcessMonitor(cmd.Process.Pid)
		monitor.SetInterval(r.MonitorInterval)
		monitor.Start()
	}

	captured := consumeLines(stdout, func(line string) {
		r.Logger.Log(ctx, observability.LevelTrace, "ffmpeg", slog.String("line", line))
		for _, l := range listeners {
			l(line)
		}
	})

	waitErr := cmd.Wait()

	if monitor != nil {
		monitor.Stop()
		stats := monitor.Stats()
		r.Logger.InfoContext(ctx, "ffmpeg resource usage",
			slog.Int("pid", stats.PID),
			slog.Float64("peak_cpu_percent", stats.PeakCPUPercent),
			slog.String("peak_rss", stats.PeakRSS()),
			slog.Duration("duration", stats.Duration),
		)
	}

	if waitErr != nil {
		exitCode := -1
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			exitCode = exitErr.ExitCode()
		}
		return &ExecutionError{
			Args:        c.Args,
			ErrorOutput: captured,
			ExitCode:    exitCode,
			Verbose:     r.VerboseErrors,
			Err:         waitErr,
		}
	}
	return nil
}

// consumeLines reads r to EOF, calling fn for each line, and returns the
// non-progress output joined by newlines.
func consumeLines(r io.Reader, fn func(string)) string {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	scanner.Split(scanOutputLines)

	var captured []string
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		fn(line)

		if isProgressLine(line) {
			continue
		}
		if len(captured) >= maxCapturedLines {
			captured = captured[1:]
		}
		captured = append(captured, line)
	}
	// Drain so the child never blocks on a full pipe after a scanner error.
	_, _ = io.Copy(io.Discard, r)

	return strings.Join(captured, "\n")
}

// scanOutputLines splits on \n, \r\n and bare \r, which ffmpeg uses to redraw its stats line.
func scanOutputLines(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		advance = i + 1
		if data[i] == '\r' && i+1 < len(data) && data[i+1] == '\n' {
			advance++
		} else if data[i] == '\r' && i+1 == len(data) && !atEOF {
			// A trailing \r may be the first half of \r\n.
			return 0, nil, nil
		}
		return advance, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

func isProgressLine(line string) bool {
	return strings.HasPrefix(line, "frame=") || strings.HasPrefix(line, "size=")
}
