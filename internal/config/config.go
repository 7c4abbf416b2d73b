package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Tool selects the packet-filter utility used to list rules.
type Tool string

const (
	ToolNft      Tool = "nft"
	ToolIptables Tool = "iptables"
)

const DefaultPassword = "changeme"

type Config struct {
	AdminUser string `json:"admin_user"`
	AdminPass string `json:"admin_pass"`
	Port      int    `json:"port"`

	// AllowControl enables the /apply page which runs arbitrary commands via sudo.
	AllowControl bool `json:"allow_firewall_control"`
	UseNft       bool `json:"use_nft"`

	RulesTimeout time.Duration `json:"rules_timeout"`
	ApplyTimeout time.Duration `json:"apply_timeout"`

	NftPath      string `json:"nft_path"`
	IptablesPath string `json:"iptables_path"`
	SudoPath     string `json:"sudo_path"`

	// LogLevel controls logging verbosity: "debug", "info", "warn", "error", "off".
	LogLevel  string `json:"log_level"`
	LogFile   string `json:"log_file,omitempty"`
	LogStdout bool   `json:"log_stdout"`
}

// Default returns the configuration used when no environment variable is set.
func Default() Config {
	cfg := Config{
		AdminUser: "admin",
		AdminPass: DefaultPassword,
		UseNft:    true,
		LogStdout: true,
	}
	cfg.applyDefaults()
	return cfg
}

// Load builds the configuration from lookup (normally os.LookupEnv).
// It is called once at startup; the result is never mutated afterwards.
//
// The operator variables (ADMIN_USER, ADMIN_PASS, PORT, USE_NFT,
// ALLOW_FIREWALL_CONTROL) fall back to their defaults only when unset: a
// variable set to the empty string is taken as is, so USE_NFT= selects
// iptables and ADMIN_PASS= is an empty password.
func Load(lookup func(string) (string, bool)) (Config, error) {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	cfg := Default()

	// Credentials are taken verbatim: surrounding spaces are part of them.
	if v, ok := lookup("ADMIN_USER"); ok {
		cfg.AdminUser = v
	}
	if v, ok := lookup("ADMIN_PASS"); ok {
		cfg.AdminPass = v
	}
	if v, ok := lookup("ALLOW_FIREWALL_CONTROL"); ok {
		cfg.AllowControl = parseBool(v)
	}
	if v, ok := lookup("USE_NFT"); ok {
		cfg.UseNft = parseBool(v)
	}
	if v, ok := lookup("PORT"); ok {
		s := strings.TrimSpace(v)
		port, err := strconv.Atoi(s)
		if err != nil || port <= 0 || port > 65535 {
			return Config{}, fmt.Errorf("config: bad PORT %q", v)
		}
		cfg.Port = port
	}

	// Ambient settings treat empty as unset.
	get := func(key string, dst *string) {
		if v, _ := lookup(key); strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	get("NFT_PATH", &cfg.NftPath)
	get("IPTABLES_PATH", &cfg.IptablesPath)
	get("SUDO_PATH", &cfg.SudoPath)
	get("LOG_LEVEL", &cfg.LogLevel)
	get("LOG_FILE", &cfg.LogFile)
	if v, _ := lookup("LOG_STDOUT"); strings.TrimSpace(v) != "" {
		cfg.LogStdout = parseBool(strings.TrimSpace(v))
	}

	var err error
	if v, _ := lookup("RULES_TIMEOUT"); strings.TrimSpace(v) != "" {
		if cfg.RulesTimeout, err = parseTimeout(strings.TrimSpace(v)); err != nil {
			return Config{}, fmt.Errorf("config: RULES_TIMEOUT: %w", err)
		}
	}
	if v, _ := lookup("APPLY_TIMEOUT"); strings.TrimSpace(v) != "" {
		if cfg.ApplyTimeout, err = parseTimeout(strings.TrimSpace(v)); err != nil {
			return Config{}, fmt.Errorf("config: APPLY_TIMEOUT: %w", err)
		}
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Port == 0 {
		c.Port = 8080
	}
	if c.RulesTimeout <= 0 {
		c.RulesTimeout = 8 * time.Second
	}
	if c.ApplyTimeout <= 0 {
		c.ApplyTimeout = 15 * time.Second
	}
	if c.NftPath == "" {
		c.NftPath = "/usr/sbin/nft"
	}
	if c.IptablesPath == "" {
		c.IptablesPath = "/sbin/iptables"
	}
	if c.SudoPath == "" {
		c.SudoPath = "sudo"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

// Tool returns the packet-filter utility selected by UseNft.
func (c Config) Tool() Tool {
	if c.UseNft {
		return ToolNft
	}
	return ToolIptables
}

// ListenAddr is always bound on all interfaces.
func (c Config) ListenAddr() string {
	return fmt.Sprintf("0.0.0.0:%d", c.Port)
}

// Redacted returns a copy safe to print.
func (c Config) Redacted() Config {
	if c.AdminPass != "" {
		c.AdminPass = "********"
	}
	return c
}

// parseBool matches "1", "true" and "yes" case-insensitively; anything else,
// including the empty string, is false.
func parseBool(s string) bool {
	switch strings.ToLower(s) {
	case "1", "true", "yes":
		return true
	default:
		return false
	}
}

// parseTimeout accepts a Go duration ("8s", "1m") or a bare number of seconds.
func parseTimeout(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	if n, err := strconv.Atoi(s); err == nil {
		if n <= 0 {
			return 0, errors.New("must be positive")
		}
		return time.Duration(n) * time.Second, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, errors.New("must be positive")
	}
	return d, nil
}
