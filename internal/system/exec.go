package system

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrControlDisabled  = errors.New("firewall control is disabled on this server")
	ErrEmptyCommand     = errors.New("no command provided")
	ErrMalformedCommand = errors.New("malformed command")
)

type ExecConfig struct {
	Enabled  bool
	SudoPath string
	Timeout  time.Duration
}

// ExecService runs operator-supplied command lines through sudo. Anyone who
// can reach it runs arbitrary commands as root; no filtering is applied.
type ExecService struct {
	cfg    ExecConfig
	runner Runner
}

func NewExecService(cfg ExecConfig, runner Runner) *ExecService {
	if cfg.SudoPath == "" {
		cfg.SudoPath = "sudo"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if runner == nil {
		runner = NewProcessRunner()
	}
	return &ExecService{cfg: cfg, runner: runner}
}

func (s *ExecService) Enabled() bool { return s.cfg.Enabled }

// Argv splits text and prefixes the sudo wrapper.
func (s *ExecService) Argv(text string) ([]string, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyCommand
	}
	words, err := SplitWords(text)
	if err != nil {
		return nil, err
	}
	if len(words) == 0 {
		return nil, ErrEmptyCommand
	}
	return append([]string{s.cfg.SudoPath}, words...), nil
}

// Run executes text. Errors are returned only for requests refused before
// invocation; command failures are reported in the Result.
func (s *ExecService) Run(ctx context.Context, text string) (Result, error) {
	if !s.cfg.Enabled {
		return Result{}, ErrControlDisabled
	}
	argv, err := s.Argv(text)
	if err != nil {
		return Result{}, err
	}
	return s.runner.Run(ctx, argv, s.cfg.Timeout), nil
}

// ExecText renders a result the way the apply page shows it.
func ExecText(res Result) string {
	return fmt.Sprintf("Exit %d\n%s", res.Code, res.Output)
}
