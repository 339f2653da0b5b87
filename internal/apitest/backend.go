// Package apitest provides an in-process fake of the ALM backend for tests.
// It serves every endpoint the client uses with scripted behaviour.
package apitest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/me/alm/pkg/model"
)

var signingKey = []byte("apitest-signing-key")

// MintToken returns an HS256 JWT for sub that expires at exp.
func MintToken(sub string, exp time.Time) string {
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": sub,
		"exp": exp.Unix(),
		"jti": uuid.NewString(),
	})
	s, err := tok.SignedString(signingKey)
	if err != nil {
		panic(fmt.Sprintf("apitest: sign token: %v", err))
	}
	return s
}

type account struct {
	user     model.User
	password string
}

type failure struct {
	status int
	detail any
}

// Request is one request observed by the backend.
type Request struct {
	Method        string
	Path          string
	Authorization string
	RequestID     string
}

// Backend is a scripted fake server.
type Backend struct {
	// TokenTTL is the lifetime of issued tokens.
	TokenTTL time.Duration

	mu        sync.Mutex
	accounts  map[string]*account // by email
	tokens    map[string]string   // token -> email
	jobs      map[string]*fakeJob
	script    []model.JobStatus
	failures  map[string]failure // "METHOD /path"
	requests  []Request
	models    []model.ModelInfo
	notebooks map[string]string

	srv *httptest.Server
}

type fakeJob struct {
	id      string
	model   string
	script  []model.JobStatus
	fetches int
}

// New starts a backend that is closed when t finishes.
func New(t testing.TB) *Backend {
	t.Helper()
	b := &Backend{
		TokenTTL: time.Hour,
		accounts: make(map[string]*account),
		tokens:   make(map[string]string),
		jobs:     make(map[string]*fakeJob),
		script:   []model.JobStatus{model.JobStatusPending, model.JobStatusProcessing, model.JobStatusCompleted},
		failures: make(map[string]failure),
		models: []model.ModelInfo{
			{Name: "lstm", Loaded: true},
			{Name: "gru", Loaded: false},
		},
		notebooks: map[string]string{
			"investment_risk":  "<div>investment risk</div>",
			"investment_risk2": "<div>investment risk 2</div>",
			"country_risk":     "<div>country risk</div>",
		},
	}
	b.srv = httptest.NewServer(b.Router())
	t.Cleanup(b.srv.Close)
	return b
}

// URL is the server root.
func (b *Backend) URL() string {
	return b.srv.URL
}

// Close stops the server, so later requests fail at the transport level.
func (b *Backend) Close() {
	b.srv.Close()
}

// Router returns the chi router serving the fake endpoints.
func (b *Backend) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(b.record)
	r.Use(b.injectFailures)

	r.Route("/auth", func(r chi.Router) {
		r.Post("/login", b.handleLogin)
		r.Post("/register", b.handleRegister)
		r.Post("/refresh", b.handleRefresh)
		r.Get("/me", b.handleMe)
	})
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/models", b.handleModels)
		r.Post("/inference/{model}", b.handleInference)
		r.Get("/result/{jobID}", b.handleResult)
		r.Post("/forecast/{model}", b.handleForecast)
	})
	r.Get("/portfolio-allocation", b.handlePortfolio)
	r.Get("/cash-value", b.handleCash)
	r.Get("/riskNotebook", b.handleNotebook)
	return r
}

// AddUser registers an account and returns its user.
func (b *Backend) AddUser(name, email, password string, role model.UserRole) model.User {
	b.mu.Lock()
	defer b.mu.Unlock()
	u := model.User{ID: uuid.NewString(), Name: name, Email: email, Role: role}
	b.accounts[strings.ToLower(email)] = &account{user: u, password: password}
	return u
}

// IssueToken returns a valid token bound to email, as if it logged in.
func (b *Backend) IssueToken(email string) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.issueLocked(email)
}

// ScriptJobs sets the status sequence of jobs submitted from now on. The
// last status repeats once the script is exhausted.
func (b *Backend) ScriptJobs(statuses ...model.JobStatus) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.script = append([]model.JobStatus(nil), statuses...)
}

// Fail makes every "METHOD /path" request answer status with detail, which
// may be a string or a FastAPI-style validation list. A nil detail sends an
// empty body.
func (b *Backend) Fail(method, path string, status int, detail any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures[method+" "+path] = failure{status: status, detail: detail}
}

// Heal removes a failure installed by Fail.
func (b *Backend) Heal(method, path string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.failures, method+" "+path)
}

// Requests returns the observed requests, oldest first.
func (b *Backend) Requests() []Request {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Request(nil), b.requests...)
}

// Count returns how many requests hit method and path.
func (b *Backend) Count(method, path string) int {
	n := 0
	for _, r := range b.Requests() {
		if r.Method == method && r.Path == path {
			n++
		}
	}
	return n
}

// JobFetches returns how many times the result of jobID was read.
func (b *Backend) JobFetches(jobID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if j, ok := b.jobs[jobID]; ok {
		return j.fetches
	}
	return 0
}

func (b *Backend) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		b.requests = append(b.requests, Request{
			Method:        r.Method,
			Path:          r.URL.Path,
			Authorization: r.Header.Get("Authorization"),
			RequestID:     r.Header.Get("X-Request-ID"),
		})
		b.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

func (b *Backend) injectFailures(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		f, ok := b.failures[r.Method+" "+r.URL.Path]
		b.mu.Unlock()
		if !ok {
			next.ServeHTTP(w, r)
			return
		}
		if f.detail == nil {
			w.WriteHeader(f.status)
			return
		}
		writeJSON(w, f.status, map[string]any{"detail": f.detail})
	})
}

func (b *Backend) issueLocked(email string) string {
	tok := MintToken(email, time.Now().Add(b.TokenTTL))
	b.tokens[tok] = strings.ToLower(email)
	return tok
}

// bearer resolves the account behind the Authorization header.
func (b *Backend) bearer(r *http.Request) (*account, bool) {
	raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok {
		return nil, false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	email, ok := b.tokens[raw]
	if !ok {
		return nil, false
	}
	acc, ok := b.accounts[email]
	return acc, ok
}

func (b *Backend) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req model.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDetail(w, http.StatusBadRequest, "invalid request body")
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	acc, ok := b.accounts[strings.ToLower(req.Email)]
	if !ok || acc.password != req.Password {
		writeDetail(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}
	writeJSON(w, http.StatusOK, model.LoginResponse{
		User:         acc.user,
		Token:        b.issueLocked(req.Email),
		RefreshToken: uuid.NewString(),
	})
}

func (b *Backend) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req model.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDetail(w, http.StatusBadRequest, "invalid request body")
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	key := strings.ToLower(req.Email)
	if _, exists := b.accounts[key]; exists {
		writeDetail(w, http.StatusBadRequest, "Email already registered")
		return
	}
	u := model.User{
		ID:        uuid.NewString(),
		Name:      req.Name,
		Email:     req.Email,
		Role:      model.RoleUser,
		CreatedAt: time.Now().UTC().Format("2006-01-02T15:04:05.000000"),
	}
	b.accounts[key] = &account{user: u, password: req.Password}
	writeJSON(w, http.StatusCreated, model.LoginResponse{User: u, Token: b.issueLocked(req.Email)})
}

func (b *Backend) handleRefresh(w http.ResponseWriter, r *http.Request) {
	acc, ok := b.bearer(r)
	if !ok {
		writeDetail(w, http.StatusUnauthorized, "Invalid or expired token")
		return
	}
	b.mu.Lock()
	tok := b.issueLocked(acc.user.Email)
	b.mu.Unlock()
	writeJSON(w, http.StatusOK, model.RefreshResponse{Token: tok})
}

func (b *Backend) handleMe(w http.ResponseWriter, r *http.Request) {
	acc, ok := b.bearer(r)
	if !ok {
		writeDetail(w, http.StatusUnauthorized, "Not authenticated")
		return
	}
	writeJSON(w, http.StatusOK, acc.user)
}

func (b *Backend) handleModels(w http.ResponseWriter, _ *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	writeJSON(w, http.StatusOK, model.ModelsListResponse{Models: b.models})
}

func (b *Backend) handleInference(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "model")
	b.mu.Lock()
	known := false
	for _, m := range b.models {
		known = known || m.Name == name
	}
	b.mu.Unlock()
	if !known {
		writeDetail(w, http.StatusNotFound, fmt.Sprintf("Model '%s' not found", name))
		return
	}

	file, hdr, err := r.FormFile("file")
	if err != nil {
		writeDetail(w, http.StatusBadRequest, "missing file")
		return
	}
	file.Close()
	if !strings.EqualFold(filepath.Ext(hdr.Filename), ".csv") {
		writeDetail(w, http.StatusBadRequest, "Only CSV files are accepted")
		return
	}

	b.mu.Lock()
	job := &fakeJob{id: uuid.NewString(), model: name, script: append([]model.JobStatus(nil), b.script...)}
	b.jobs[job.id] = job
	b.mu.Unlock()

	writeJSON(w, http.StatusAccepted, model.InferenceUploadResponse{
		JobID:   job.id,
		Status:  model.JobStatusPending,
		Model:   name,
		Message: "Inference job submitted",
	})
}

func (b *Backend) handleResult(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "jobID")
	b.mu.Lock()
	defer b.mu.Unlock()
	job, ok := b.jobs[id]
	if !ok {
		writeDetail(w, http.StatusNotFound, "Job not found")
		return
	}
	job.fetches++
	status := job.script[min(job.fetches, len(job.script))-1]

	out := model.InferenceJob{JobID: job.id, Status: status, Model: job.model, SubmittedAt: "2024-01-02T10:00:00"}
	switch status {
	case model.JobStatusCompleted:
		out.Result = &model.PricePrediction{
			CurrentPrice:      38.45,
			PredictionHorizon: 3,
			PredictedPrices:   []float64{38.9, 39.2, 39.6},
		}
		out.CompletedAt = "2024-01-02T10:00:06"
	case model.JobStatusFailed:
		out.Error = "Inference failed: not enough rows"
	}
	writeJSON(w, http.StatusOK, out)
}

func (b *Backend) handleForecast(w http.ResponseWriter, r *http.Request) {
	var req model.ForecastRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDetail(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Ticker == "" || req.NSteps <= 0 {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"detail": []map[string]any{
			{"loc": []string{"body", "ticker"}, "msg": "field required", "type": "value_error.missing"},
		}})
		return
	}

	start := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	resp := model.ForecastResponse{Ticker: req.Ticker, Metrics: map[string]float64{"aic": 512.3}}
	for i := range req.NSteps {
		resp.ForecastDates = append(resp.ForecastDates, start.AddDate(0, 0, i).Format(time.DateOnly))
		resp.ForecastValues = append(resp.ForecastValues, 30+float64(i)*0.5)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (b *Backend) handlePortfolio(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, model.Wallet{
		Portfolio: []model.Asset{
			{Ticker: "PETR4.SA", Name: "Petrobras", Allocation: 0.4, HistoricalAnnualReturn: 0.12, HistoricalAnnualVolatility: 0.3},
			{Ticker: "GLD", Name: "Gold", Allocation: 0.6, HistoricalAnnualReturn: 0.07, HistoricalAnnualVolatility: 0.15},
		},
		PlotBase64: "iVBORw0KGgo=",
	})
}

func (b *Backend) handleCash(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, model.CashValue{Invested: 1250000, InCash: 48000.5})
}

func (b *Backend) handleNotebook(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("notebookName")
	b.mu.Lock()
	html, ok := b.notebooks[name]
	b.mu.Unlock()
	if !ok {
		writeDetail(w, http.StatusNotFound, "Notebook not found")
		return
	}
	writeJSON(w, http.StatusOK, model.RiskNotebookResponse{NotebookHTML: html})
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
