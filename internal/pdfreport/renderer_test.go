package pdfreport_test

import (
	"bytes"
	"errors"
	"testing"
	"time"

	pdfapi "github.com/pdfcpu/pdfcpu/pkg/api"

	"github.com/raysh454/zapscan/internal/model"
	"github.com/raysh454/zapscan/internal/pdfreport"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func completedScan(findings ...model.Finding) *model.Scan {
	started := time.Date(2026, 3, 1, 11, 0, 0, 0, time.UTC)
	done := started.Add(90 * time.Second)
	return &model.Scan{
		ID:             "scan-1",
		Kind:           model.KindAPI,
		APIJSONURL:     "http://api.local/swagger.json",
		BaseURL:        "http://api.local",
		Status:         model.StatusCompleted,
		Findings:       findings,
		ScannerVersion: "2.14.0",
		StartedAt:      started,
		CompletedAt:    &done,
	}
}

func render(t *testing.T, scan *model.Scan) []byte {
	t.Helper()
	r := pdfreport.New(pdfreport.WithClock(func() time.Time { return fixedNow }), pdfreport.WithCompression(false))
	out, err := r.Render(scan)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if err := pdfapi.Validate(bytes.NewReader(out), nil); err != nil {
		t.Fatalf("PDF validation failed: %v", err)
	}
	return out
}

func pageCount(t *testing.T, raw []byte) int {
	t.Helper()
	n, err := pdfapi.PageCount(bytes.NewReader(raw), nil)
	if err != nil {
		t.Fatalf("PageCount failed: %v", err)
	}
	return n
}

func assertContains(t *testing.T, raw []byte, text string) {
	t.Helper()
	if !bytes.Contains(raw, []byte(text)) {
		t.Errorf("PDF does not contain text %q", text)
	}
}

// ─── Layout ─────────────────────────────────────────────────────────────────

func TestRender_NoFindings(t *testing.T) {
	t.Parallel()
	raw := render(t, completedScan())

	if got := pageCount(t, raw); got != 2 {
		t.Errorf("page count = %d, want 2", got)
	}
	assertContains(t, raw, "OWASP API Security Scan Report")
	assertContains(t, raw, "No vulnerabilities were found.")
	assertContains(t, raw, "Disclaimer")
	assertContains(t, raw, "Report generated on: 2026-03-01 12:00:00 UTC")
}

func TestRender_OnePagePerFinding(t *testing.T) {
	t.Parallel()
	raw := render(t, completedScan(
		model.Finding{Risk: model.SeverityLow, Name: "Server Leaks Version", URL: "http://api.local/"},
		model.Finding{Risk: model.SeverityHigh, Name: "SQL Injection", URL: "http://api.local/users", Parameter: "id", CWEID: "89"},
		model.Finding{Risk: model.SeverityMedium, Name: "Missing Header", Reference: "https://a.example\nhttps://b.example"},
	))

	if got := pageCount(t, raw); got != 5 {
		t.Errorf("page count = %d, want 5", got)
	}
	assertContains(t, raw, "Total vulnerabilities found: 3")
	assertContains(t, raw, "High: 1")
	assertContains(t, raw, "Critical: 0")
	assertContains(t, raw, "Vulnerability Details")
	assertContains(t, raw, "https://b.example")
	assertContains(t, raw, "Base URL:")
	assertContains(t, raw, "Swagger URL:")
}

func TestRender_MostSevereFirst(t *testing.T) {
	t.Parallel()
	raw := render(t, completedScan(
		model.Finding{Risk: model.SeverityLow, Name: "Lowly Finding"},
		model.Finding{Risk: model.SeverityCritical, Name: "Critical Finding"},
	))

	hi := bytes.Index(raw, []byte("1. Critical Finding"))
	lo := bytes.Index(raw, []byte("2. Lowly Finding"))
	if hi < 0 || lo < 0 {
		t.Fatalf("finding headings missing (critical=%d low=%d)", hi, lo)
	}
	if hi > lo {
		t.Error("critical finding should be rendered before the low one")
	}
}

func TestRender_FrontendScan(t *testing.T) {
	t.Parallel()
	scan := completedScan()
	scan.Kind = model.KindFrontend
	scan.APIJSONURL = ""
	scan.BaseURL = ""
	scan.FrontendURL = "http://app.local"
	scan.Config.ScanDepth = model.DepthQuick
	scan.Config.PageTitle = "Shop Home"

	raw := render(t, scan)
	assertContains(t, raw, "OWASP Frontend Security Scan Report")
	assertContains(t, raw, "Target URL:")
	assertContains(t, raw, "Shop Home")
}

// ─── Errors ─────────────────────────────────────────────────────────────────

func TestRender_RejectsIncompleteScans(t *testing.T) {
	t.Parallel()
	r := pdfreport.New()
	for _, status := range []model.Status{model.StatusPending, model.StatusInProgress, model.StatusFailed} {
		scan := completedScan()
		scan.Status = status
		if _, err := r.Render(scan); !errors.Is(err, pdfreport.ErrNotCompleted) {
			t.Errorf("status %s: err = %v, want ErrNotCompleted", status, err)
		}
	}
	if _, err := r.Render(nil); !errors.Is(err, pdfreport.ErrNotCompleted) {
		t.Errorf("nil scan: err = %v, want ErrNotCompleted", err)
	}
}

func TestFilename(t *testing.T) {
	t.Parallel()
	if got := pdfreport.Filename("abc"); got != "owasp-api-scan-abc.pdf" {
		t.Errorf("Filename = %q", got)
	}
}

func TestSummarize(t *testing.T) {
	t.Parallel()
	counts := pdfreport.Summarize(completedScan(
		model.Finding{Risk: model.SeverityHigh},
		model.Finding{Risk: model.SeverityHigh},
		model.Finding{Risk: model.SeverityInformational},
	))
	if counts.High != 2 || counts.Informational != 1 || counts.Total() != 3 {
		t.Errorf("counts = %+v", counts)
	}
}
