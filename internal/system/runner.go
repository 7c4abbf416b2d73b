package system

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"golang.org/x/text/encoding/unicode"
)

// UnexpectedExitCode is reported when a command could not produce an exit
// status of its own: missing binary, timeout, cancellation, internal error.
const UnexpectedExitCode = 255

// Result is the outcome of one external command. It is always populated;
// failures are described by Code and Output rather than a Go error.
type Result struct {
	Argv     []string
	Code     int
	Output   string
	TimedOut bool
	Duration time.Duration
}

func (r Result) OK() bool { return r.Code == 0 }

// CommandLine is Argv joined by single spaces, for display.
func (r Result) CommandLine() string { return strings.Join(r.Argv, " ") }

// Runner executes argv and waits at most timeout for it to finish.
type Runner interface {
	Run(ctx context.Context, argv []string, timeout time.Duration) Result
}

// ProcessRunner runs commands as child processes of the server.
type ProcessRunner struct {
	// WaitDelay bounds how long Run waits for output pipes after the process
	// has been killed. Zero means one second.
	WaitDelay time.Duration
}

func NewProcessRunner() *ProcessRunner { return &ProcessRunner{} }

func (p *ProcessRunner) Run(ctx context.Context, argv []string, timeout time.Duration) (res Result) {
	start := time.Now()
	res.Argv = append([]string(nil), argv...)
	defer func() {
		if v := recover(); v != nil {
			res.Code = UnexpectedExitCode
			res.Output = fmt.Sprintf("internal error: %v", v)
		}
		res.Duration = time.Since(start)
		logResult(res)
	}()

	if len(argv) == 0 || argv[0] == "" {
		res.Code = UnexpectedExitCode
		res.Output = "empty command"
		return res
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	var buf bytes.Buffer
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Stdout = &buf
	cmd.Stderr = &buf
	cmd.WaitDelay = p.WaitDelay
	if cmd.WaitDelay <= 0 {
		cmd.WaitDelay = time.Second
	}
	killProcessGroup(cmd)

	err := cmd.Run()
	out := decodeOutput(buf.Bytes())

	var exitErr *exec.ExitError
	switch {
	case err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded):
		res.TimedOut = true
		res.Code = UnexpectedExitCode
		res.Output = joinOutput(fmt.Sprintf("command timed out after %s", timeout), out)
	case err != nil && ctx.Err() != nil:
		res.Code = UnexpectedExitCode
		res.Output = joinOutput(fmt.Sprintf("command cancelled: %v", ctx.Err()), out)
	case errors.As(err, &exitErr):
		res.Code = exitCode(exitErr.ProcessState)
		res.Output = out
	case err != nil:
		res.Code = UnexpectedExitCode
		res.Output = joinOutput(err.Error(), out)
	default:
		res.Code = 0
		res.Output = out
	}
	return res
}

func logResult(res Result) {
	switch {
	case res.TimedOut:
		slog.Warn("command timed out", "cmd", res.CommandLine(), "duration", res.Duration)
	case !res.OK():
		slog.Warn("command failed", "cmd", res.CommandLine(), "code", res.Code, "duration", res.Duration)
	default:
		slog.Info("command finished", "cmd", res.CommandLine(), "code", res.Code, "duration", res.Duration)
	}
}

// decodeOutput converts process output to a string, replacing invalid UTF-8
// byte sequences with U+FFFD.
func decodeOutput(b []byte) string {
	out, err := unicode.UTF8.NewDecoder().Bytes(b)
	if err != nil {
		return strings.ToValidUTF8(string(b), "\uFFFD")
	}
	return string(out)
}

func joinOutput(msg, out string) string {
	if out == "" {
		return msg
	}
	return msg + "\n" + out
}
