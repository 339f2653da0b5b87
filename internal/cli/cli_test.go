package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/me/alm/internal/apitest"
	"github.com/me/alm/pkg/model"
)

// harness runs CLI invocations against one fake API and one session
// database, so state carries over between commands like it does for a user.
type harness struct {
	t       *testing.T
	backend *apitest.Backend
	store   string
	config  string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	for _, k := range []string{"ALM_CONFIG", "ALM_API_URL", "ALM_API_PREFIX", "ALM_TRANSPORT", "ALM_STORE", "ALM_LOG_LEVEL"} {
		t.Setenv(k, "")
	}
	dir := t.TempDir()
	return &harness{
		t:       t,
		backend: apitest.New(t),
		store:   filepath.Join(dir, "session.db"),
		config:  filepath.Join(dir, "missing.yaml"),
	}
}

// run executes one alm command line and returns stdout, stderr and the error.
func (h *harness) run(args ...string) (string, string, error) {
	h.t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := NewRootCmd()
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetIn(strings.NewReader(""))
	cmd.SetArgs(append([]string{
		"--config", h.config,
		"--api-url", h.backend.URL(),
		"--store", h.store,
		"--timeout", "5s",
	}, args...))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := Execute(ctx, cmd)
	return stdout.String(), stderr.String(), err
}

func (h *harness) mustRun(args ...string) string {
	h.t.Helper()
	out, stderr, err := h.run(args...)
	require.NoError(h.t, err, "stderr: %s", stderr)
	return out
}

func (h *harness) loginAdmin() {
	h.t.Helper()
	h.backend.AddUser("Ada Admin", "ada@alm.io", "secret1", model.RoleAdmin)
	h.mustRun("login", "--email", "ada@alm.io", "--password", "secret1")
}

func TestLoginWhoamiLogout(t *testing.T) {
	h := newHarness(t)
	h.backend.AddUser("Jane Doe", "jane@alm.io", "secret1", model.RoleUser)

	out := h.mustRun("login", "--email", "jane@alm.io", "--password", "secret1")
	assert.Contains(t, out, "Logged in as Jane Doe <jane@alm.io> (user)")
	assert.NotContains(t, out, "Demo mode")

	out = h.mustRun("whoami")
	assert.Contains(t, out, "Name:  Jane Doe")
	assert.Contains(t, out, "Role:  user")
	assert.Equal(t, 1, h.backend.Count("GET", "/auth/me"))

	out = h.mustRun("session")
	assert.Contains(t, out, "Authenticated: true")
	assert.Contains(t, out, "Admin:         false")
	assert.Contains(t, out, "Token:         jwt, expires")

	assert.Contains(t, h.mustRun("logout"), "Logged out.")
	assert.Contains(t, h.mustRun("whoami"), "Not logged in.")
}

func TestLoginRejected(t *testing.T) {
	h := newHarness(t)

	_, _, err := h.run("login", "--email", "nobody@alm.io", "--password", "wrong!")
	require.Error(t, err)
	assert.Equal(t, "Invalid credentials", err.Error())
	assert.Contains(t, h.mustRun("session"), "Authenticated: false")
}

func TestLoginFallsBackToDemo(t *testing.T) {
	h := newHarness(t)
	h.backend.Close()

	out := h.mustRun("login", "--email", "admin@alm.io", "--password", "whatever")
	assert.Contains(t, out, "Logged in as admin <admin@alm.io> (admin)")
	assert.Contains(t, out, "Demo mode")

	out = h.mustRun("session")
	assert.Contains(t, out, "Token:         demo (never expires)")
	assert.Contains(t, out, "Admin:         true")
}

func TestLoginHTTPTransportNoFallback(t *testing.T) {
	h := newHarness(t)
	h.backend.Close()

	_, _, err := h.run("--transport", "http", "login", "--email", "admin@alm.io", "--password", "whatever")
	require.Error(t, err)
	assert.True(t, model.IsTransportError(err), "got %v", err)
}

func TestRegister(t *testing.T) {
	h := newHarness(t)

	out := h.mustRun("register", "--name", "Jane Doe", "--email", "jane@alm.io", "--password", "secret1")
	assert.Contains(t, out, "Logged in as Jane Doe <jane@alm.io> (user)")

	_, _, err := h.run("register", "--name", "Jane Doe", "--email", "jane@alm.io", "--password", "secret1")
	require.Error(t, err)
	assert.Equal(t, "Email already registered", err.Error())

	_, _, err = h.run("register", "--name", "Short", "--email", "s@alm.io", "--password", "123")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least 6 characters")
}

func TestAdminCommandsRequireAdmin(t *testing.T) {
	h := newHarness(t)

	_, _, err := h.run("models")
	require.ErrorIs(t, err, errNotLoggedIn)

	h.backend.AddUser("Jane Doe", "jane@alm.io", "secret1", model.RoleUser)
	h.mustRun("login", "--email", "jane@alm.io", "--password", "secret1")

	for _, args := range [][]string{{"models"}, {"cash"}, {"portfolio"}, {"forecast", "GLD"}, {"risk"}, {"result", "x"}} {
		_, _, err := h.run(args...)
		assert.ErrorIs(t, err, errNotAdmin, "alm %s", strings.Join(args, " "))
	}
	assert.Zero(t, h.backend.Count("GET", "/api/v1/models"))
}

func TestModelsAndInference(t *testing.T) {
	h := newHarness(t)
	h.loginAdmin()

	out := h.mustRun("models")
	assert.Contains(t, out, "lstm")
	assert.Contains(t, out, "gru")

	csv := filepath.Join(t.TempDir(), "prices.csv")
	require.NoError(t, os.WriteFile(csv, []byte("date,close\n2024-01-01,38.1\n"), 0o644))

	out = h.mustRun("infer", "lstm", csv, "--interval", "1ms")
	assert.Contains(t, out, "submitted to lstm")
	assert.Contains(t, out, "Status: completed")
	assert.Contains(t, out, "Current price: 38.45")
	assert.Contains(t, out, "t+3  39.60")

	out = h.mustRun("infer", "lstm", csv, "--no-wait")
	jobID := strings.Fields(out)[1]
	assert.Zero(t, h.backend.JobFetches(jobID))

	out = h.mustRun("result", jobID)
	assert.Contains(t, out, "Job:    "+jobID)
	assert.Contains(t, out, "Status: pending")
}

func TestInferFailedJob(t *testing.T) {
	h := newHarness(t)
	h.loginAdmin()
	h.backend.ScriptJobs(model.JobStatusProcessing, model.JobStatusFailed)

	csv := filepath.Join(t.TempDir(), "prices.csv")
	require.NoError(t, os.WriteFile(csv, []byte("date,close\n"), 0o644))

	out, _, err := h.run("infer", "lstm", csv, "--interval", "1ms")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not enough rows")
	assert.Contains(t, out, "Status: failed")
}

func TestInferRejectsNonCSV(t *testing.T) {
	h := newHarness(t)
	h.loginAdmin()

	_, _, err := h.run("infer", "lstm", "prices.xlsx")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "only .csv files")
	assert.Zero(t, h.backend.Count("POST", "/api/v1/inference/lstm"))
}

func TestForecast(t *testing.T) {
	h := newHarness(t)
	h.loginAdmin()

	out := h.mustRun("forecast", "PETR4.SA", "--steps", "3")
	assert.Contains(t, out, "PETR4.SA (sarima, 3 steps)")
	assert.Contains(t, out, "2024-01-04")
	assert.Contains(t, out, "aic = 512.3000")

	h.mustRun("forecast")
	assert.Equal(t, 5, h.backend.Count("POST", "/api/v1/forecast/sarima"))

	_, _, err := h.run("forecast", "GLD", "--order", "1,1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--order needs 3 values")
}

func TestDashboards(t *testing.T) {
	h := newHarness(t)
	h.loginAdmin()

	plot := filepath.Join(t.TempDir(), "alloc.png")
	out := h.mustRun("portfolio", "--plot", plot)
	assert.Contains(t, out, "PETR4.SA")
	assert.Contains(t, out, "40.00%")
	data, err := os.ReadFile(plot)
	require.NoError(t, err)
	assert.Equal(t, []byte("\x89PNG\r\n\x1a\n"), data)

	out = h.mustRun("cash")
	assert.Contains(t, out, "Invested: R$ 1.250.000,00")
	assert.Contains(t, out, "In cash:  R$ 48.000,50")
}

func TestRisk(t *testing.T) {
	h := newHarness(t)
	h.loginAdmin()
	dir := t.TempDir()

	out := h.mustRun("risk", "investment_risk", "country_risk", "--out", dir)
	assert.Contains(t, out, "investment_risk")
	html, err := os.ReadFile(filepath.Join(dir, "country_risk.html"))
	require.NoError(t, err)
	assert.Equal(t, "<div>country risk</div>", string(html))

	out, _, err = h.run("risk", "--out", dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "3 of 6 notebooks failed")
	assert.Contains(t, out, "Notebook not found")
}

func TestSimulateRunsOffline(t *testing.T) {
	h := newHarness(t)
	h.backend.Close()

	out := h.mustRun("simulate", "--deposit", "100", "--years", "1")
	assert.Contains(t, out, "Horizon:         12 months")
	assert.Contains(t, out, "Final balance:   R$ 1.272,57")
	_, err := os.Stat(h.store)
	assert.True(t, os.IsNotExist(err), "simulate should not open the session store")
}

func TestDescribeToken(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, "none", describeToken("", now))
	assert.Equal(t, "demo (never expires)", describeToken("demo_eyJ9", now))
	assert.Contains(t, describeToken(apitest.MintToken("a@b.c", now.Add(-time.Hour)), now), "jwt, expired 1 hour ago")
	assert.Contains(t, describeToken(apitest.MintToken("a@b.c", now.Add(2*time.Hour)), now), "jwt, expires 2 hours from now")
}

func TestFailedCommandReleasesStore(t *testing.T) {
	h := newHarness(t)

	_, _, err := h.run("models")
	require.ErrorIs(t, err, errNotLoggedIn)
	assert.Nil(t, app, "store must be closed after a failing command")

	h.backend.AddUser("Jane Doe", "jane@alm.io", "secret1", model.RoleUser)
	h.mustRun("login", "--email", "jane@alm.io", "--password", "secret1")
	assert.Nil(t, app)
}
