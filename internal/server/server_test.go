package server_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/raysh454/zapscan/internal/apispec"
	"github.com/raysh454/zapscan/internal/app"
	"github.com/raysh454/zapscan/internal/metrics"
	"github.com/raysh454/zapscan/internal/model"
	"github.com/raysh454/zapscan/internal/probe"
	"github.com/raysh454/zapscan/internal/reports"
	"github.com/raysh454/zapscan/internal/server"
	"github.com/raysh454/zapscan/internal/testutil"
)

const (
	specURL     = "http://api.local/openapi.json"
	frontendURL = "http://shop.local"
	specDoc     = `{"openapi":"3.0.0","paths":{"/users":{"get":{}},"/orders":{"post":{}}}}`
)

type testEnv struct {
	srv     *server.Server
	gateway *testutil.FakeGateway
	logger  *testutil.DummyLogger
}

func newTestServer(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()
	logger := &testutil.DummyLogger{}

	store, err := reports.Open(ctx, reports.DriverSQLite, filepath.Join(t.TempDir(), "scans.db"), logger)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	m, err := metrics.New()
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}

	web := &testutil.DummyWebClient{
		Pages: map[string]string{
			specURL:     specDoc,
			frontendURL: `<html><head><title>Shop</title></head></html>`,
		},
	}
	gw := &testutil.FakeGateway{
		DefaultFindings: []model.Finding{{Name: "SQL Injection", Risk: model.SeverityHigh, URL: "http://api.local/users"}},
	}

	cfg := app.DefaultConfig()
	cfg.Workers = 1
	cfg.QueueSize = 4
	orch, err := app.NewOrchestrator(cfg, app.Deps{
		Store:   store,
		Gateway: gw,
		Specs:   apispec.NewFetcher(web, 1, time.Millisecond, logger),
		Prober:  probe.New(web, logger),
		Metrics: m,
	}, logger)
	if err != nil {
		t.Fatalf("NewOrchestrator: %v", err)
	}
	orch.Start()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = orch.Shutdown(ctx)
	})

	s, err := server.NewServer(server.Config{ListenAddr: ":0", Logger: logger, Metrics: m}, orch)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	return &testEnv{srv: s, gateway: gw, logger: logger}
}

func doJSON(t *testing.T, s http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(v); err != nil {
		t.Fatalf("decode JSON response: %v (body: %s)", err, rec.Body.String())
	}
}

func submitAPIScan(t *testing.T, s http.Handler) model.ScanView {
	t.Helper()
	rec := doJSON(t, s, "POST", "/api-scanner", `{"apiJsonUrl":"`+specURL+`","baseUrl":"http://api.local"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var v model.ScanView
	decodeJSON(t, rec, &v)
	return v
}

// waitStatus polls GET /api-scanner/{id} until the scan reaches want.
func waitStatus(t *testing.T, s http.Handler, id string, want model.Status) model.ScanView {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		rec := doJSON(t, s, "GET", "/api-scanner/"+id, "")
		if rec.Code != http.StatusOK {
			t.Fatalf("GET scan: %d %s", rec.Code, rec.Body.String())
		}
		var v model.ScanView
		decodeJSON(t, rec, &v)
		if v.Status == want {
			return v
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("scan %s never reached %s", id, want)
	return model.ScanView{}
}

// ─── CORS ──────────────────────────────────────────────────────────────

func TestServer_CORS_HeaderPresent(t *testing.T) {
	t.Parallel()
	env := newTestServer(t)

	rec := doJSON(t, env.srv, "GET", "/reports/recent", "")

	origin := rec.Header().Get("Access-Control-Allow-Origin")
	if origin != "*" {
		t.Errorf("expected CORS origin *, got %q", origin)
	}
}

func TestServer_OptionsPreflight(t *testing.T) {
	t.Parallel()
	env := newTestServer(t)

	rec := doJSON(t, env.srv, "OPTIONS", "/reports/abc", "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Methods"); got != "GET, PATCH" {
		t.Errorf("allow methods = %q", got)
	}
}

// ─── Scans ─────────────────────────────────────────────────────────────

func TestServer_SubmitAPIScan_CompletesWithFindings(t *testing.T) {
	t.Parallel()
	env := newTestServer(t)

	v := submitAPIScan(t, env.srv)
	if v.ScanID == "" {
		t.Fatal("expected scanId in response")
	}
	if v.Message != model.SubmittedMessage {
		t.Errorf("message = %q", v.Message)
	}
	if v.Vulnerabilities == nil || len(v.Vulnerabilities) != 0 {
		t.Errorf("expected empty vulnerabilities on submission, got %v", v.Vulnerabilities)
	}

	done := waitStatus(t, env.srv, v.ScanID, model.StatusCompleted)
	if len(done.Vulnerabilities) != 1 || done.Vulnerabilities[0].Name != "SQL Injection" {
		t.Errorf("vulnerabilities = %+v", done.Vulnerabilities)
	}
	if done.CompletedAt == nil {
		t.Error("expected completedAt once completed")
	}
	if done.Summary == nil || done.Summary.TotalEndpoints != 2 {
		t.Errorf("summary = %+v", done.Summary)
	}
}

func TestServer_SubmitAPIScan_BadRequests(t *testing.T) {
	t.Parallel()
	env := newTestServer(t)

	cases := map[string]string{
		"invalid json":    `{`,
		"missing spec":    `{"baseUrl":"http://api.local"}`,
		"unreachable doc": `{"apiJsonUrl":"http://api.local/missing.json","baseUrl":"http://api.local"}`,
		"bad risk":        `{"apiJsonUrl":"` + specURL + `","baseUrl":"http://api.local","minimumRiskLevel":"extreme"}`,
	}
	for name, body := range cases {
		rec := doJSON(t, env.srv, "POST", "/api-scanner", body)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d: %s", name, rec.Code, rec.Body.String())
			continue
		}
		var e map[string]string
		decodeJSON(t, rec, &e)
		if e["error"] == "" {
			t.Errorf("%s: expected error message", name)
		}
	}
}

func TestServer_SubmitFrontendScan_DoesNotLogCredentials(t *testing.T) {
	t.Parallel()
	env := newTestServer(t)

	body := `{"frontendUrl":"` + frontendURL + `","scanDepth":"quick",
		"authentication":{"loginUrl":"` + frontendURL + `/login","username":"alice","password":"hunter2"}}`
	rec := doJSON(t, env.srv, "POST", "/api-scanner/frontend", body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var v model.ScanView
	decodeJSON(t, rec, &v)
	waitStatus(t, env.srv, v.ScanID, model.StatusCompleted)

	for _, e := range env.logger.Entries() {
		for _, f := range e.Fields {
			if strings.Contains(toString(f.Value), "hunter2") {
				t.Fatalf("password leaked into log entry %q", e.Msg)
			}
		}
	}
}

func toString(v any) string {
	b, _ := json.Marshal(v)
	return string(b)
}

func TestServer_GetScan_NotFound(t *testing.T) {
	t.Parallel()
	env := newTestServer(t)

	rec := doJSON(t, env.srv, "GET", "/api-scanner/nope", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestServer_CancelScan(t *testing.T) {
	t.Parallel()
	env := newTestServer(t)
	env.gateway.Block = make(chan struct{})
	defer close(env.gateway.Block)

	v := submitAPIScan(t, env.srv)
	waitStatus(t, env.srv, v.ScanID, model.StatusInProgress)

	rec := doJSON(t, env.srv, "POST", "/api-scanner/"+v.ScanID+"/cancel", "")
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}

	failed := waitStatus(t, env.srv, v.ScanID, model.StatusFailed)
	if failed.Message != app.CanceledMessage {
		t.Errorf("message = %q", failed.Message)
	}

	rec = doJSON(t, env.srv, "POST", "/api-scanner/"+v.ScanID+"/cancel", "")
	if rec.Code != http.StatusConflict {
		t.Errorf("cancel of finished scan: expected 409, got %d", rec.Code)
	}
}

// ─── Reports ───────────────────────────────────────────────────────────

func TestServer_DownloadReport(t *testing.T) {
	t.Parallel()
	env := newTestServer(t)
	env.gateway.Block = make(chan struct{})

	v := submitAPIScan(t, env.srv)

	rec := doJSON(t, env.srv, "GET", "/reports/"+v.ScanID+"/download", "")
	if rec.Code != http.StatusConflict {
		t.Fatalf("download before completion: expected 409, got %d", rec.Code)
	}

	close(env.gateway.Block)
	waitStatus(t, env.srv, v.ScanID, model.StatusCompleted)

	rec = doJSON(t, env.srv, "GET", "/reports/"+v.ScanID+"/download", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/pdf" {
		t.Errorf("content type = %q", ct)
	}
	want := `attachment; filename="owasp-api-scan-` + v.ScanID + `.pdf"`
	if cd := rec.Header().Get("Content-Disposition"); cd != want {
		t.Errorf("content disposition = %q, want %q", cd, want)
	}
	if !strings.HasPrefix(rec.Body.String(), "%PDF") {
		t.Error("body is not a PDF")
	}

	rec = doJSON(t, env.srv, "GET", "/reports/missing/download", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown report: expected 404, got %d", rec.Code)
	}
}

func TestServer_RecentStatsAndTriage(t *testing.T) {
	t.Parallel()
	env := newTestServer(t)

	v := submitAPIScan(t, env.srv)
	waitStatus(t, env.srv, v.ScanID, model.StatusCompleted)

	rec := doJSON(t, env.srv, "GET", "/reports/recent", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("recent: %d", rec.Code)
	}
	var recent []map[string]any
	decodeJSON(t, rec, &recent)
	if len(recent) != 1 || recent[0]["scanId"] != v.ScanID {
		t.Fatalf("recent = %v", recent)
	}

	rec = doJSON(t, env.srv, "GET", "/reports/stats", "")
	var stats model.Stats
	decodeJSON(t, rec, &stats)
	if stats.TotalScans != 1 || stats.TotalVulnerabilities != 1 {
		t.Errorf("stats = %+v", stats)
	}

	rec = doJSON(t, env.srv, "PATCH", "/reports/"+v.ScanID, `{"assignedTo":"bob","tags":["api"]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("patch: %d %s", rec.Code, rec.Body.String())
	}
	var report model.ReportView
	decodeJSON(t, rec, &report)
	if report.Triage.AssignedTo != "bob" || len(report.Triage.Tags) != 1 {
		t.Errorf("triage = %+v", report.Triage)
	}

	rec = doJSON(t, env.srv, "GET", "/reports/"+v.ScanID, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("get report: %d", rec.Code)
	}

	rec = doJSON(t, env.srv, "PATCH", "/reports/missing", `{"notes":"x"}`)
	if rec.Code != http.StatusNotFound {
		t.Errorf("patch unknown: expected 404, got %d", rec.Code)
	}
}

// ─── Operations ────────────────────────────────────────────────────────

func TestServer_Healthz(t *testing.T) {
	t.Parallel()
	env := newTestServer(t)

	rec := doJSON(t, env.srv, "GET", "/healthz", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body map[string]string
	decodeJSON(t, rec, &body)
	if body["zapVersion"] != "2.14.0" {
		t.Errorf("body = %v", body)
	}
}

func TestServer_Healthz_ScannerDown(t *testing.T) {
	t.Parallel()
	env := newTestServer(t)
	env.gateway.ReadyErr = context.DeadlineExceeded

	rec := doJSON(t, env.srv, "GET", "/healthz", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}

func TestServer_Metrics(t *testing.T) {
	t.Parallel()
	env := newTestServer(t)
	submitAPIScan(t, env.srv)

	rec := doJSON(t, env.srv, "GET", "/metrics", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `zapscan_scans_submitted_total{kind="api"} 1`) {
		t.Errorf("submitted counter missing from:\n%s", rec.Body.String())
	}
}

// ─── WebSocket ─────────────────────────────────────────────────────────

func TestServer_ScanWS_StreamsUntilTerminal(t *testing.T) {
	t.Parallel()
	env := newTestServer(t)
	env.gateway.Block = make(chan struct{})

	ts := httptest.NewServer(env.srv)
	defer ts.Close()

	v := submitAPIScan(t, env.srv)
	waitStatus(t, env.srv, v.ScanID, model.StatusInProgress)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/api-scanner/" + v.ScanID
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var first model.ScanView
	if err := conn.ReadJSON(&first); err != nil {
		t.Fatalf("read first: %v", err)
	}
	if first.Status != model.StatusInProgress {
		t.Fatalf("first status = %s", first.Status)
	}

	close(env.gateway.Block)

	var last model.ScanView
	for !last.Status.Terminal() {
		if err := conn.ReadJSON(&last); err != nil {
			t.Fatalf("read: %v", err)
		}
	}
	if last.Status != model.StatusCompleted || len(last.Vulnerabilities) != 1 {
		t.Errorf("last = %+v", last)
	}

	_, _, err = conn.ReadMessage()
	if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		t.Errorf("expected normal close, got %v", err)
	}
}

func TestServer_ScanWS_UnknownScan(t *testing.T) {
	t.Parallel()
	env := newTestServer(t)

	ts := httptest.NewServer(env.srv)
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/api-scanner/missing"
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err == nil {
		t.Fatal("expected dial to fail")
	}
	if resp == nil || resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 response, got %+v", resp)
	}
}
