package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MrTeeett/fwpanel/internal/app"
	"github.com/MrTeeett/fwpanel/internal/cli"
	"github.com/MrTeeett/fwpanel/internal/config"
	"github.com/MrTeeett/fwpanel/internal/logging"
	"github.com/MrTeeett/fwpanel/internal/system"
)

func main() {
	var listenAddr string
	flag.StringVar(&listenAddr, "listen", envDefault("LISTEN_ADDR", ""), "listen address (overrides PORT)")
	flag.Parse()

	// fwpanel rules|config|version
	if flag.NArg() > 0 && cli.IsCommand(flag.Arg(0)) {
		os.Exit(runCLI(flag.Args(), os.LookupEnv, os.Stdout, os.Stderr))
	}

	cfg, err := config.Load(os.LookupEnv)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	closeLog, err := logging.Init(logging.Config{Level: cfg.LogLevel, File: cfg.LogFile, Stdout: cfg.LogStdout})
	if err != nil {
		log.Fatalf("init logging: %v", err)
	}
	defer func() { _ = closeLog() }()

	if cfg.AdminPass == config.DefaultPassword {
		slog.Warn("ADMIN_PASS is the default; set a real password before exposing the panel")
	}
	if listenAddr == "" {
		listenAddr = cfg.ListenAddr()
	}

	srv, err := app.New(app.Config{Panel: cfg})
	if err != nil {
		log.Fatalf("init app: %v", err)
	}

	httpServer := &http.Server{
		Addr:              listenAddr,
		Handler:           srv.RootHandler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		fmt.Println(banner(listenAddr, cfg))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	sig := <-stop
	slog.Info("shutting down", "signal", sig.String())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = httpServer.Shutdown(ctx)
}

// runCLI runs one subcommand. Logs go to stderr so stdout carries only the
// command's own output.
func runCLI(args []string, lookup func(string) (string, bool), stdout, stderr io.Writer) int {
	cfg, err := config.Load(lookup)
	if err != nil {
		fmt.Fprintf(stderr, "load config: %v\n", err)
		return 1
	}
	closeLog, err := logging.Init(logging.Config{
		Level:   cfg.LogLevel,
		File:    cfg.LogFile,
		Stdout:  cfg.LogStdout,
		Console: stderr,
	})
	if err != nil {
		fmt.Fprintf(stderr, "init logging: %v\n", err)
		return 1
	}
	defer func() { _ = closeLog() }()

	code, err := cli.Run(context.Background(), cfg, system.NewProcessRunner(), args, stdout, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "%s: %v\n", args[0], err)
	}
	return code
}

func banner(addr string, cfg config.Config) string {
	return fmt.Sprintf("Starting fwpanel on %s, NFT enabled: %v, firewall control: %v", addr, cfg.UseNft, cfg.AllowControl)
}

func envDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
