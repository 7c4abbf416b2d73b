package app

import (
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/MrTeeett/fwpanel/internal/config"
	"github.com/MrTeeett/fwpanel/internal/metrics"
	"github.com/MrTeeett/fwpanel/internal/system"
)

func basicAuth(user, pass string) string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(user+":"+pass))
}

func testConfig(allow, nft bool) config.Config {
	cfg := config.Default()
	cfg.AdminUser = "admin"
	cfg.AdminPass = "s3cr3t"
	cfg.AllowControl = allow
	cfg.UseNft = nft
	return cfg
}

func newTestServer(t *testing.T, cfg config.Config, runner *system.MockRunner) (*Server, http.Handler) {
	t.Helper()
	srv, err := New(Config{Panel: cfg, Runner: runner})
	require.NoError(t, err)
	return srv, srv.Handler()
}

func do(h http.Handler, method, target, authz string, form url.Values) *httptest.ResponseRecorder {
	var r *http.Request
	if form != nil {
		r = httptest.NewRequest(method, "http://panel.lan"+target, strings.NewReader(form.Encode()))
		r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	} else {
		r = httptest.NewRequest(method, "http://panel.lan"+target, nil)
	}
	if authz != "" {
		r.Header.Set("Authorization", authz)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

func TestProtectedRoutesRequireAuth(t *testing.T) {
	t.Parallel()

	runner := &system.MockRunner{}
	_, h := newTestServer(t, testConfig(true, true), runner)

	routes := []struct {
		method string
		path   string
		form   url.Values
	}{
		{http.MethodGet, "/", nil},
		{http.MethodGet, "/about", nil},
		{http.MethodGet, "/rules", nil},
		{http.MethodGet, "/apply", nil},
		{http.MethodPost, "/apply", url.Values{"cmd": {"iptables -F"}}},
		{http.MethodGet, "/metrics", nil},
	}
	creds := []string{
		"",
		basicAuth("admin", "wrong"),
		basicAuth("root", "s3cr3t"),
		"Bearer s3cr3t",
		"Basic not-base64!",
	}
	for _, rt := range routes {
		for _, c := range creds {
			w := do(h, rt.method, rt.path, c, rt.form)
			assert.Equal(t, http.StatusUnauthorized, w.Code, "%s %s with %q", rt.method, rt.path, c)
			assert.Equal(t, `Basic realm="Login Required"`, w.Header().Get("WWW-Authenticate"))
		}
	}
	runner.AssertNotCalled(t, "Run", mock.Anything, mock.Anything)
}

func TestIndexAndAboutAlwaysAvailable(t *testing.T) {
	t.Parallel()

	for _, allow := range []bool{false, true} {
		for _, nft := range []bool{false, true} {
			_, h := newTestServer(t, testConfig(allow, nft), &system.MockRunner{})

			w := do(h, http.MethodGet, "/", basicAuth("admin", "s3cr3t"), nil)
			require.Equal(t, http.StatusOK, w.Code)
			body := w.Body.String()
			assert.Contains(t, body, "Host: <strong>panel.lan</strong>")
			assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
			if allow {
				assert.Contains(t, body, "ENABLED")
				assert.Contains(t, body, `href="/apply"`)
			} else {
				assert.Contains(t, body, "DISABLED")
				assert.NotContains(t, body, `href="/apply"`)
			}

			w = do(h, http.MethodGet, "/about", basicAuth("admin", "s3cr3t"), nil)
			require.Equal(t, http.StatusOK, w.Code)
			assert.Contains(t, w.Body.String(), "internet-facing")
		}
	}
}

func TestUnknownPathNotFound(t *testing.T) {
	t.Parallel()

	_, h := newTestServer(t, testConfig(false, true), &system.MockRunner{})
	w := do(h, http.MethodGet, "/nope", basicAuth("admin", "s3cr3t"), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestApplyForbiddenWhenDisabled(t *testing.T) {
	t.Parallel()

	runner := &system.MockRunner{}
	_, h := newTestServer(t, testConfig(false, true), runner)
	authz := basicAuth("admin", "s3cr3t")

	w := do(h, http.MethodGet, "/apply", authz, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), "Firewall control is disabled")
	assert.Contains(t, w.Body.String(), `href="/"`)

	for _, form := range []url.Values{
		{"cmd": {"nft list ruleset"}},
		{"cmd": {""}},
		{},
		{"cmd": {`"broken`}},
	} {
		w = do(h, http.MethodPost, "/apply", authz, form)
		assert.Equal(t, http.StatusForbidden, w.Code, "form %v", form)
	}
	runner.AssertNotCalled(t, "Run", mock.Anything, mock.Anything)
}

func TestApplyFormSample(t *testing.T) {
	t.Parallel()

	_, h := newTestServer(t, testConfig(true, true), &system.MockRunner{})
	w := do(h, http.MethodGet, "/apply", basicAuth("admin", "s3cr3t"), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `value="sudo nft add rule inet filter input tcp dport 2222 accept"`)
	assert.Contains(t, w.Body.String(), `name="cmd"`)

	_, h = newTestServer(t, testConfig(true, false), &system.MockRunner{})
	w = do(h, http.MethodGet, "/apply", basicAuth("admin", "s3cr3t"), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `value="sudo iptables -A INPUT -p tcp --dport 2222 -j ACCEPT"`)
}

func TestApplyRejectsEmptyCommand(t *testing.T) {
	t.Parallel()

	runner := &system.MockRunner{}
	_, h := newTestServer(t, testConfig(true, true), runner)
	authz := basicAuth("admin", "s3cr3t")

	for _, form := range []url.Values{{}, {"cmd": {""}}, {"cmd": {"   "}}} {
		w := do(h, http.MethodPost, "/apply", authz, form)
		assert.Equal(t, http.StatusBadRequest, w.Code, "form %v", form)
		assert.Contains(t, w.Body.String(), "No command provided")
	}

	w := do(h, http.MethodPost, "/apply", authz, url.Values{"cmd": {`nft add rule 'inet`}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "malformed command")

	runner.AssertNotCalled(t, "Run", mock.Anything, mock.Anything)
}

func TestApplyRunsThroughSudo(t *testing.T) {
	t.Parallel()

	runner := &system.MockRunner{}
	runner.On("Run", []string{"sudo", "sudo", "iptables", "-L"}, 15*time.Second).
		Return(system.Result{Code: 0, Output: "Chain INPUT (policy ACCEPT)\ntarget prot opt source destination\n"}).Once()

	srv, h := newTestServer(t, testConfig(true, false), runner)
	w := do(h, http.MethodPost, "/apply", basicAuth("admin", "s3cr3t"), url.Values{"cmd": {"sudo iptables -L"}})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Exit 0\nChain INPUT (policy ACCEPT)")
	runner.AssertExpectations(t)

	assert.Equal(t, 1.0, testutil.ToFloat64(srv.metrics.CommandRuns.WithLabelValues(metrics.KindApply, "ok")))
}

func TestApplyFailureRenderedInline(t *testing.T) {
	t.Parallel()

	runner := &system.MockRunner{}
	runner.On("Run", []string{"sudo", "nft", "flush", "ruleset"}, 15*time.Second).
		Return(system.Result{Code: system.UnexpectedExitCode, Output: "command timed out after 15s", TimedOut: true}).Once()

	_, h := newTestServer(t, testConfig(true, true), runner)
	w := do(h, http.MethodPost, "/apply", basicAuth("admin", "s3cr3t"), url.Values{"cmd": {"nft flush ruleset"}})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Exit 255\ncommand timed out after 15s")
	runner.AssertExpectations(t)
}

func TestRulesInvokesSelectedToolOnly(t *testing.T) {
	t.Parallel()

	tests := []struct {
		nft  bool
		argv []string
	}{
		{true, []string{"/usr/sbin/nft", "list", "ruleset"}},
		{false, []string{"/sbin/iptables", "-S"}},
	}
	for _, tt := range tests {
		runner := &system.MockRunner{}
		runner.On("Run", tt.argv, 8*time.Second).Return(system.Result{Code: 0, Output: "rules for " + tt.argv[0]}).Once()

		_, h := newTestServer(t, testConfig(false, tt.nft), runner)
		w := do(h, http.MethodGet, "/rules", basicAuth("admin", "s3cr3t"), nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "rules for "+tt.argv[0])
		runner.AssertExpectations(t)
		runner.AssertNumberOfCalls(t, "Run", 1)
	}
}

func TestRulesFailureRenderedInline(t *testing.T) {
	t.Parallel()

	runner := &system.MockRunner{}
	runner.On("Run", []string{"/usr/sbin/nft", "list", "ruleset"}, 8*time.Second).
		Return(system.Result{Code: 1, Output: "Error: Operation not permitted"}).Once()

	_, h := newTestServer(t, testConfig(false, true), runner)
	w := do(h, http.MethodGet, "/rules", basicAuth("admin", "s3cr3t"), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Error running /usr/sbin/nft list ruleset (code 1):\n\nError: Operation not permitted")
	assert.Contains(t, w.Body.String(), `href="/"`)
}

func TestOutputIsEscaped(t *testing.T) {
	t.Parallel()

	evil := "table inet x { comment \"</pre><script>alert(1)</script>\" }"
	runner := &system.MockRunner{}
	runner.On("Run", []string{"/usr/sbin/nft", "list", "ruleset"}, 8*time.Second).Return(system.Result{Code: 0, Output: evil})
	runner.On("Run", []string{"sudo", "echo", "<script>alert(2)</script>"}, 15*time.Second).
		Return(system.Result{Code: 0, Output: "<script>alert(2)</script>\n"})

	_, h := newTestServer(t, testConfig(true, true), runner)
	authz := basicAuth("admin", "s3cr3t")

	w := do(h, http.MethodGet, "/rules", authz, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "&lt;script&gt;alert(1)&lt;/script&gt;")
	assert.NotContains(t, w.Body.String(), "<script>")
	assert.NotContains(t, w.Body.String(), "</pre><script")

	w = do(h, http.MethodPost, "/apply", authz, url.Values{"cmd": {"echo '<script>alert(2)</script>'"}})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "&lt;script&gt;alert(2)&lt;/script&gt;")
	assert.NotContains(t, w.Body.String(), "<script>")

	w = do(h, http.MethodGet, "/", authz, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "<script>")
}

func TestEndToEndScenarioControlDisabled(t *testing.T) {
	t.Parallel()

	runner := &system.MockRunner{}
	runner.On("Run", []string{"/usr/sbin/nft", "list", "ruleset"}, 8*time.Second).
		Return(system.Result{Code: 0, Output: "table inet filter {\n\tchain input {\n\t}\n}\n"}).Once()

	_, h := newTestServer(t, testConfig(false, true), runner)
	authz := basicAuth("admin", "s3cr3t")

	w := do(h, http.MethodGet, "/apply", authz, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = do(h, http.MethodGet, "/rules", authz, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "table inet filter {\n\tchain input {\n\t}\n}\n")
	runner.AssertExpectations(t)
}

func TestMetricsRoute(t *testing.T) {
	t.Parallel()

	srv, h := newTestServer(t, testConfig(false, true), &system.MockRunner{})
	_ = do(h, http.MethodGet, "/about", "", nil)
	_ = do(h, http.MethodGet, "/about", basicAuth("admin", "s3cr3t"), nil)

	w := do(h, http.MethodGet, "/metrics", basicAuth("admin", "s3cr3t"), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "fwpanel_auth_failures_total 1")
	assert.Contains(t, w.Body.String(), `fwpanel_http_requests_total{code="200",route="GET /about"} 1`)
	assert.Equal(t, 1.0, testutil.ToFloat64(srv.metrics.HTTPRequests.WithLabelValues("GET /about", "401")))
}
