package transfer

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Options configures the external transfer engine subprocess.
type Options struct {
	Binary        string
	Transfers     int
	Checkers      int
	StatsInterval time.Duration
	ExtraFlags    []string
	DryRun        bool
}

// Result is the outcome of one engine invocation.
type Result struct {
	ExitCode         int
	FilesTransferred int64
	FilesChecked     int64
	FilesDeleted     int64
	BytesTransferred int64
	RateMbps         float64
	Duration         time.Duration
	ErrorCount       int
	ErrorSample      []string
	Stdout           string
	Stderr           string
	Cancelled        bool
}

// Succeeded reports a clean engine exit.
func (r *Result) Succeeded() bool {
	return r != nil && r.ExitCode == 0 && !r.Cancelled
}

// Engine shells out to rclone for the byte movement itself. The engine's
// JSON log stream is the only progress contract.
type Engine struct {
	opts   Options
	logger *zap.Logger
}

// NewEngine builds an engine wrapper.
func NewEngine(opts Options, logger *zap.Logger) *Engine {
	if opts.Binary == "" {
		opts.Binary = "rclone"
	}
	if opts.Transfers <= 0 {
		opts.Transfers = 4
	}
	if opts.Checkers <= 0 {
		opts.Checkers = 8
	}
	if opts.StatsInterval <= 0 {
		opts.StatsInterval = time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{opts: opts, logger: logger}
}

// Command returns the full argument vector for one sync invocation.
func (e *Engine) Command(source, destination string) []string {
	args := []string{
		e.opts.Binary, "sync", source, destination,
		"--use-json-log",
		"--log-level", "INFO",
		"--stats", e.opts.StatsInterval.String(),
		"--stats-log-level", "INFO",
		"--transfers", strconv.Itoa(e.opts.Transfers),
		"--checkers", strconv.Itoa(e.opts.Checkers),
	}
	if e.opts.DryRun {
		args = append(args, "--dry-run")
	}
	args = append(args, e.opts.ExtraFlags...)
	return args
}

const outputTailLimit = 64 * 1024

// Sync runs one source-to-destination transfer and blocks until the engine
// exits or the context is cancelled. A non-zero exit is reported in the
// result, not as a Go error; only failure to launch returns an error.
func (e *Engine) Sync(ctx context.Context, source, destination string) (*Result, error) {
	argv := e.Command(source, destination)
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("open engine stdout: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("open engine stderr: %w", err)
	}

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start transfer engine: %w", err)
	}
	e.logger.Sugar().Infow("engine started", "source", source, "destination", destination)

	// The log stream flows through a bounded channel so a chatty engine
	// cannot grow memory without bound before the consumer catches up.
	lines := make(chan string, 256)
	stderrTail := &bytes.Buffer{}
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(stderr)
		sc.Buffer(make([]byte, 64*1024), 1024*1024)
		for sc.Scan() {
			line := sc.Text()
			appendTail(stderrTail, line)
			lines <- line
		}
	}()

	stdoutTail := &bytes.Buffer{}
	stdoutDone := make(chan struct{})
	go func() {
		defer close(stdoutDone)
		sc := bufio.NewScanner(stdout)
		sc.Buffer(make([]byte, 64*1024), 1024*1024)
		for sc.Scan() {
			appendTail(stdoutTail, sc.Text())
		}
	}()

	acc := &accumulator{}
	for line := range lines {
		acc.consume(line)
	}
	<-stdoutDone

	waitErr := cmd.Wait()
	result := &Result{
		FilesTransferred: acc.filesTransferred,
		FilesChecked:     acc.filesChecked,
		FilesDeleted:     acc.filesDeleted,
		BytesTransferred: acc.bytesTransferred,
		RateMbps:         acc.rateMbps(),
		Duration:         time.Since(start),
		ErrorCount:       acc.errorCount,
		ErrorSample:      acc.errorSample,
		Stdout:           stdoutTail.String(),
		Stderr:           stderrTail.String(),
	}

	if ctx.Err() != nil {
		result.Cancelled = true
		result.ExitCode = -1
		e.logger.Sugar().Warnw("engine cancelled", "source", source, "destination", destination)
		return result, nil
	}
	if waitErr != nil {
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
		} else {
			return result, fmt.Errorf("wait for transfer engine: %w", waitErr)
		}
	}

	e.logger.Sugar().Infow("engine finished",
		"source", source,
		"destination", destination,
		"exit_code", result.ExitCode,
		"files_transferred", result.FilesTransferred,
		"bytes_transferred", result.BytesTransferred,
		"errors", result.ErrorCount,
	)
	return result, nil
}

// Version asks the engine binary for its version string, used by readiness
// probes to confirm the subprocess contract is satisfiable.
func (e *Engine) Version(ctx context.Context) (string, error) {
	out, err := exec.CommandContext(ctx, e.opts.Binary, "version").Output()
	if err != nil {
		return "", fmt.Errorf("engine version: %w", err)
	}
	line, _, _ := strings.Cut(string(out), "\n")
	return strings.TrimSpace(line), nil
}

func appendTail(buf *bytes.Buffer, line string) {
	if buf.Len() >= outputTailLimit {
		return
	}
	buf.WriteString(line)
	buf.WriteByte('\n')
}
