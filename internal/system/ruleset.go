package system

import (
	"context"
	"fmt"
	"time"

	"github.com/MrTeeett/fwpanel/internal/config"
)

type RulesetConfig struct {
	Tool         config.Tool
	NftPath      string
	IptablesPath string
	Timeout      time.Duration
}

// RulesetReader lists the live firewall rules with exactly one fixed command.
type RulesetReader struct {
	cfg    RulesetConfig
	runner Runner
}

func NewRulesetReader(cfg RulesetConfig, runner Runner) *RulesetReader {
	if cfg.NftPath == "" {
		cfg.NftPath = "/usr/sbin/nft"
	}
	if cfg.IptablesPath == "" {
		cfg.IptablesPath = "/sbin/iptables"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 8 * time.Second
	}
	if runner == nil {
		runner = NewProcessRunner()
	}
	return &RulesetReader{cfg: cfg, runner: runner}
}

// Command returns the argv used to list rules.
func (r *RulesetReader) Command() []string {
	if r.cfg.Tool == config.ToolIptables {
		return []string{r.cfg.IptablesPath, "-S"}
	}
	return []string{r.cfg.NftPath, "list", "ruleset"}
}

func (r *RulesetReader) Tool() config.Tool {
	if r.cfg.Tool == config.ToolIptables {
		return config.ToolIptables
	}
	return config.ToolNft
}

func (r *RulesetReader) Read(ctx context.Context) Result {
	return r.runner.Run(ctx, r.Command(), r.cfg.Timeout)
}

// RulesetText is what the operator sees: the rules, or an error report
// naming the attempted command.
func RulesetText(res Result) string {
	if res.OK() {
		return res.Output
	}
	return fmt.Sprintf("Error running %s (code %d):\n\n%s", res.CommandLine(), res.Code, res.Output)
}

// SampleCommand is the example pre-filled on the apply form.
func SampleCommand(tool config.Tool) string {
	if tool == config.ToolIptables {
		return "sudo iptables -A INPUT -p tcp --dport 2222 -j ACCEPT"
	}
	return "sudo nft add rule inet filter input tcp dport 2222 accept"
}
