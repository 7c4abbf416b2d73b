package cli

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"

	"github.com/MrTeeett/fwpanel/internal/buildinfo"
	"github.com/MrTeeett/fwpanel/internal/config"
	"github.com/MrTeeett/fwpanel/internal/system"
)

// Commands lists the subcommands handled by Run.
var Commands = []string{"rules", "config", "version"}

// IsCommand reports whether name is a CLI subcommand rather than server mode.
func IsCommand(name string) bool {
	for _, c := range Commands {
		if c == name {
			return true
		}
	}
	return false
}

// Run implements:
// fwpanel rules    print the live ruleset once
// fwpanel config   print the effective configuration, password redacted
// fwpanel version  print build information
func Run(ctx context.Context, cfg config.Config, runner system.Runner, args []string, stdout, stderr io.Writer) (int, error) {
	if len(args) == 0 {
		return 2, errors.New("missing subcommand (rules|config|version)")
	}
	sub := args[0]
	fs := flag.NewFlagSet(sub, flag.ContinueOnError)
	fs.SetOutput(stderr)
	if err := fs.Parse(args[1:]); err != nil {
		return 2, err
	}

	switch sub {
	case "rules":
		reader := system.NewRulesetReader(system.RulesetConfig{
			Tool:         cfg.Tool(),
			NftPath:      cfg.NftPath,
			IptablesPath: cfg.IptablesPath,
			Timeout:      cfg.RulesTimeout,
		}, runner)
		res := reader.Read(ctx)
		if !res.OK() {
			fmt.Fprintln(stderr, system.RulesetText(res))
			return 1, nil
		}
		fmt.Fprint(stdout, res.Output)
		return 0, nil

	case "config":
		return 0, printConfig(stdout, cfg)

	case "version":
		fmt.Fprintf(stdout, "fwpanel %s\n", buildinfo.String())
		return 0, nil

	default:
		return 2, fmt.Errorf("unknown subcommand %q (rules|config|version)", sub)
	}
}

type configView struct {
	AdminUser    string      `json:"admin_user"`
	AdminPass    string      `json:"admin_pass"`
	Listen       string      `json:"listen"`
	AllowControl bool        `json:"allow_firewall_control"`
	Tool         config.Tool `json:"tool"`
	RulesTimeout string      `json:"rules_timeout"`
	ApplyTimeout string      `json:"apply_timeout"`
	NftPath      string      `json:"nft_path"`
	IptablesPath string      `json:"iptables_path"`
	SudoPath     string      `json:"sudo_path"`
	LogLevel     string      `json:"log_level"`
	LogFile      string      `json:"log_file,omitempty"`
}

func printConfig(w io.Writer, cfg config.Config) error {
	cfg = cfg.Redacted()
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(configView{
		AdminUser:    cfg.AdminUser,
		AdminPass:    cfg.AdminPass,
		Listen:       cfg.ListenAddr(),
		AllowControl: cfg.AllowControl,
		Tool:         cfg.Tool(),
		RulesTimeout: cfg.RulesTimeout.String(),
		ApplyTimeout: cfg.ApplyTimeout.String(),
		NftPath:      cfg.NftPath,
		IptablesPath: cfg.IptablesPath,
		SudoPath:     cfg.SudoPath,
		LogLevel:     cfg.LogLevel,
		LogFile:      cfg.LogFile,
	})
}
