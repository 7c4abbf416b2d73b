package app

import (
	"bytes"
	"context"
	"errors"
	"html/template"
	"log/slog"
	"net/http"
	"time"

	"github.com/MrTeeett/fwpanel/internal/auth"
	"github.com/MrTeeett/fwpanel/internal/buildinfo"
	"github.com/MrTeeett/fwpanel/internal/config"
	"github.com/MrTeeett/fwpanel/internal/metrics"
	"github.com/MrTeeett/fwpanel/internal/system"
	"github.com/MrTeeett/fwpanel/internal/ui"
)

type Config struct {
	Panel config.Config

	// Runner executes external commands. Nil means real child processes.
	Runner  system.Runner
	Metrics *metrics.Registry
}

type Server struct {
	cfg     config.Config
	auth    *auth.Basic
	rules   *system.RulesetReader
	exec    *system.ExecService
	metrics *metrics.Registry
	pages   *template.Template
}

func New(cfg Config) (*Server, error) {
	pages, err := template.ParseFS(ui.FS, "templates/*.html")
	if err != nil {
		return nil, err
	}
	runner := cfg.Runner
	if runner == nil {
		runner = system.NewProcessRunner()
	}
	m := cfg.Metrics
	if m == nil {
		m = metrics.New()
	}
	p := cfg.Panel

	s := &Server{
		cfg:     p,
		auth:    auth.New(p.AdminUser, p.AdminPass),
		metrics: m,
		pages:   pages,
		rules: system.NewRulesetReader(system.RulesetConfig{
			Tool:         p.Tool(),
			NftPath:      p.NftPath,
			IptablesPath: p.IptablesPath,
			Timeout:      p.RulesTimeout,
		}, observedRunner{kind: metrics.KindRules, next: runner, m: m}),
		exec: system.NewExecService(system.ExecConfig{
			Enabled:  p.AllowControl,
			SudoPath: p.SudoPath,
			Timeout:  p.ApplyTimeout,
		}, observedRunner{kind: metrics.KindApply, next: runner, m: m}),
	}
	s.auth.OnDeny = func(r *http.Request) {
		m.AuthFailures.Inc()
		slog.Warn("authentication failed", "remote", r.RemoteAddr, "path", r.URL.Path)
	}
	return s, nil
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.Handle("GET /{$}", s.requireAuth(http.HandlerFunc(s.handleIndex)))
	mux.Handle("GET /about", s.requireAuth(http.HandlerFunc(s.handleAbout)))
	mux.Handle("GET /rules", s.requireAuth(http.HandlerFunc(s.handleRules)))
	mux.Handle("GET /apply", s.requireAuth(s.requireControl(http.HandlerFunc(s.handleApplyForm))))
	mux.Handle("POST /apply", s.requireAuth(s.requireControl(http.HandlerFunc(s.handleApplyRun))))
	mux.Handle("GET /metrics", s.requireAuth(s.metrics.Handler()))

	limit := max(s.cfg.RulesTimeout, s.cfg.ApplyTimeout) + 5*time.Second
	return http.TimeoutHandler(s.accessLog(mux), limit, "request timeout")
}

func (s *Server) requireAuth(next http.Handler) http.Handler {
	protected := s.auth.Require(next)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store")
		protected.ServeHTTP(w, r)
	})
}

// requireControl refuses mutating routes before anything else happens when
// firewall control is disabled.
func (s *Server) requireControl(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.exec.Enabled() {
			s.renderError(w, http.StatusForbidden, "Firewall control is disabled on this server.")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// observedRunner records every command in the metrics registry.
type observedRunner struct {
	kind string
	next system.Runner
	m    *metrics.Registry
}

func (o observedRunner) Run(ctx context.Context, argv []string, timeout time.Duration) system.Result {
	res := o.next.Run(ctx, argv, timeout)
	o.m.ObserveCommand(o.kind, res.Code, res.TimedOut, res.Duration)
	return res
}

type page struct {
	Title   string
	Host    string
	Tool    config.Tool
	Allow   bool
	Version string
	Facts   system.HostFacts
	Output  string
	OK      bool
	Sample  string
	Status  string
	Message string
}

func (s *Server) render(w http.ResponseWriter, status int, name string, p page) {
	var buf bytes.Buffer
	if err := s.pages.ExecuteTemplate(&buf, name, p); err != nil {
		slog.Error("render page", "page", name, "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}

func (s *Server) renderError(w http.ResponseWriter, status int, msg string) {
	s.render(w, status, "error", page{
		Title:   http.StatusText(status),
		Status:  http.StatusText(status),
		Message: msg,
	})
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	s.render(w, http.StatusOK, "index", page{
		Title: r.Host,
		Host:  r.Host,
		Tool:  s.rules.Tool(),
		Allow: s.exec.Enabled(),
	})
}

func (s *Server) handleAbout(w http.ResponseWriter, r *http.Request) {
	s.render(w, http.StatusOK, "about", page{
		Title:   "about",
		Version: buildinfo.String(),
		Facts:   system.CollectHostFacts(),
	})
}

func (s *Server) handleRules(w http.ResponseWriter, r *http.Request) {
	res := s.rules.Read(r.Context())
	s.render(w, http.StatusOK, "rules", page{
		Title:  "rules",
		Output: system.RulesetText(res),
		OK:     res.OK(),
	})
}

func (s *Server) handleApplyForm(w http.ResponseWriter, r *http.Request) {
	s.render(w, http.StatusOK, "apply_form", page{
		Title:  "apply",
		Sample: system.SampleCommand(s.rules.Tool()),
	})
}

func (s *Server) handleApplyRun(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 64<<10)
	if err := r.ParseForm(); err != nil {
		s.renderError(w, http.StatusBadRequest, "bad form")
		return
	}

	// A client disconnect must not interrupt a privileged change halfway;
	// the apply timeout still bounds the run.
	ctx := context.WithoutCancel(r.Context())
	res, err := s.exec.Run(ctx, r.PostForm.Get("cmd"))
	switch {
	case errors.Is(err, system.ErrControlDisabled):
		s.renderError(w, http.StatusForbidden, "Firewall control is disabled on this server.")
		return
	case errors.Is(err, system.ErrEmptyCommand):
		s.renderError(w, http.StatusBadRequest, "No command provided")
		return
	case err != nil:
		s.renderError(w, http.StatusBadRequest, err.Error())
		return
	}

	slog.Info("apply command", "remote", r.RemoteAddr, "cmd", res.CommandLine(), "code", res.Code)
	s.render(w, http.StatusOK, "apply_result", page{
		Title:  "result",
		Output: system.ExecText(res),
		OK:     res.OK(),
	})
}
