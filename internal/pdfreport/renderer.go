// Package pdfreport renders completed scans as PDF documents.
package pdfreport

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"

	"github.com/raysh454/zapscan/internal/model"
)

// ErrNotCompleted is returned for scans that have not COMPLETED.
var ErrNotCompleted = errors.New("report is only available for completed scans")

const disclaimerText = "This report was generated by an automated security scanner. Automated " +
	"scanning cannot find every vulnerability, and some findings may be false positives. " +
	"Review each finding manually before acting on it. The absence of findings does not " +
	"mean the application is free of vulnerabilities. Only scan systems you are authorised to test."

const timeLayout = "2006-01-02 15:04:05 MST"

// Renderer produces report PDFs.
type Renderer struct {
	now      func() time.Time
	compress bool
}

// Option configures a Renderer.
type Option func(*Renderer)

// WithClock sets the clock used for the generation timestamp.
func WithClock(now func() time.Time) Option {
	return func(r *Renderer) { r.now = now }
}

// WithCompression toggles content stream compression. It is on by default.
func WithCompression(on bool) Option {
	return func(r *Renderer) { r.compress = on }
}

func New(opts ...Option) *Renderer {
	r := &Renderer{now: time.Now, compress: true}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Filename is the download name for a scan's report.
func Filename(scanID string) string {
	return fmt.Sprintf("owasp-api-scan-%s.pdf", scanID)
}

// Summarize counts a scan's findings per severity.
func Summarize(scan *model.Scan) model.SeverityCounts {
	return model.CountBySeverity(scan.Findings)
}

// Render returns the PDF for scan.
func (r *Renderer) Render(scan *model.Scan) ([]byte, error) {
	var buf bytes.Buffer
	if err := r.Write(&buf, scan); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Write renders scan to w. The layout is a title page with scan metadata
// and a severity summary, one page per finding ordered most severe first,
// and a closing disclaimer page.
func (r *Renderer) Write(w io.Writer, scan *model.Scan) error {
	if scan == nil || scan.Status != model.StatusCompleted {
		return ErrNotCompleted
	}

	now := r.now()
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetCompression(r.compress)
	pdf.SetCreationDate(now)
	pdf.SetModificationDate(now)
	pdf.SetTitle(title(scan), true)
	pdf.SetCreator("zapscan", true)
	pdf.SetAutoPageBreak(true, 20)
	pdf.AliasNbPages("")

	doc := &document{pdf: pdf, tr: pdf.UnicodeTranslatorFromDescriptor("")}
	pdf.SetFooterFunc(func() {
		pdf.SetY(-15)
		pdf.SetFont("Helvetica", "I", 8)
		pdf.SetTextColor(128, 128, 128)
		pdf.CellFormat(0, 10, fmt.Sprintf("Page %d of {nb}", pdf.PageNo()), "", 0, "C", false, 0, "")
	})

	doc.titlePage(scan)

	findings := append([]model.Finding(nil), scan.Findings...)
	model.SortBySeverity(findings)
	for i, f := range findings {
		doc.findingPage(i, f)
	}

	doc.disclaimerPage(now)

	if err := pdf.Error(); err != nil {
		return fmt.Errorf("render report: %w", err)
	}
	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}

func title(scan *model.Scan) string {
	if scan.Kind == model.KindFrontend {
		return "OWASP Frontend Security Scan Report"
	}
	return "OWASP API Security Scan Report"
}

type document struct {
	pdf *fpdf.Fpdf
	tr  func(string) string
}

func (d *document) heading(text string, size float64) {
	d.pdf.SetFont("Helvetica", "B", size)
	d.pdf.SetTextColor(0, 0, 0)
	d.pdf.CellFormat(0, size/2+2, d.tr(text), "", 1, "L", false, 0, "")
	d.pdf.Ln(2)
}

func (d *document) field(label, value string) {
	d.pdf.SetFont("Helvetica", "B", 10)
	d.pdf.SetTextColor(0, 0, 0)
	d.pdf.CellFormat(40, 6, d.tr(label+":"), "", 0, "L", false, 0, "")
	d.pdf.SetFont("Helvetica", "", 10)
	d.pdf.MultiCell(0, 6, d.tr(value), "", "L", false)
}

func (d *document) block(label, value string) {
	d.pdf.Ln(2)
	d.pdf.SetFont("Helvetica", "B", 10)
	d.pdf.SetTextColor(0, 0, 0)
	d.pdf.CellFormat(0, 6, d.tr(label+":"), "", 1, "L", false, 0, "")
	d.pdf.SetFont("Helvetica", "", 10)
	d.pdf.MultiCell(0, 5, d.tr(value), "", "L", false)
}

func (d *document) titlePage(scan *model.Scan) {
	d.pdf.AddPage()
	d.pdf.SetFont("Helvetica", "B", 20)
	d.pdf.CellFormat(0, 14, d.tr(title(scan)), "", 1, "C", false, 0, "")
	d.pdf.Ln(6)

	d.heading("Scan Information", 14)
	d.field("Scan ID", scan.ID)
	d.field("Status", string(scan.Status))
	if scan.Kind == model.KindFrontend {
		d.field("Target URL", scan.FrontendURL)
		if scan.Config.PageTitle != "" {
			d.field("Page title", scan.Config.PageTitle)
		}
		d.field("Scan depth", string(scan.Config.ScanDepth))
	} else {
		d.field("Base URL", scan.BaseURL)
		d.field("Swagger URL", scan.APIJSONURL)
	}
	d.field("Started at", scan.StartedAt.Format(timeLayout))
	completed := "N/A"
	if scan.CompletedAt != nil {
		completed = scan.CompletedAt.Format(timeLayout)
		d.field("Completed at", completed)
		d.field("Duration", scan.Duration().Round(time.Second).String())
	} else {
		d.field("Completed at", completed)
	}
	if scan.ScannerVersion != "" {
		d.field("Scanner version", scan.ScannerVersion)
	}
	d.pdf.Ln(6)

	d.heading("Summary", 14)
	counts := Summarize(scan)
	d.pdf.SetFont("Helvetica", "", 11)
	if counts.Total() == 0 {
		d.pdf.CellFormat(0, 7, "No vulnerabilities were found.", "", 1, "L", false, 0, "")
		return
	}
	d.pdf.CellFormat(0, 7, fmt.Sprintf("Total vulnerabilities found: %d", counts.Total()), "", 1, "L", false, 0, "")
	d.pdf.Ln(2)
	for _, sev := range model.Severities {
		red, green, blue := severityColor(sev)
		d.pdf.SetFillColor(red, green, blue)
		d.pdf.CellFormat(4, 6, "", "", 0, "L", true, 0, "")
		d.pdf.CellFormat(2, 6, "", "", 0, "L", false, 0, "")
		d.pdf.CellFormat(0, 6, fmt.Sprintf("%s: %d", sev, counts.Of(sev)), "", 1, "L", false, 0, "")
	}
}

func (d *document) findingPage(i int, f model.Finding) {
	d.pdf.AddPage()
	if i == 0 {
		d.heading("Vulnerability Details", 16)
	}

	red, green, blue := severityColor(f.Risk)
	d.pdf.SetFont("Helvetica", "B", 13)
	d.pdf.SetTextColor(red, green, blue)
	d.pdf.MultiCell(0, 7, d.tr(fmt.Sprintf("%d. %s (%s)", i+1, f.Name, f.Risk)), "", "L", false)
	d.pdf.SetTextColor(0, 0, 0)
	d.pdf.Ln(2)

	d.field("Risk", string(f.Risk))
	d.field("Confidence", orNA(f.Confidence))
	d.field("CWE ID", orNA(f.CWEID))
	d.field("WASC ID", orNA(f.WASCID))
	d.field("URL", orNA(f.URL))
	if f.Parameter != "" {
		d.field("Parameter", f.Parameter)
	}
	if f.AttackVector != "" {
		d.field("Attack vector", string(f.AttackVector))
	}
	if f.ClientSide != nil {
		d.field("Client-side", yesNo(*f.ClientSide))
	}

	d.block("Description", orNA(f.Description))
	d.block("Solution", orNA(f.Solution))
	if f.Evidence != "" {
		d.block("Evidence", f.Evidence)
	}
	if refs := splitReferences(f.Reference); len(refs) > 0 {
		d.block("References", strings.Join(refs, "\n"))
	}
}

func (d *document) disclaimerPage(now time.Time) {
	d.pdf.AddPage()
	d.heading("Disclaimer", 16)
	d.pdf.SetFont("Helvetica", "", 10)
	d.pdf.MultiCell(0, 5, disclaimerText, "", "L", false)
	d.pdf.Ln(6)
	d.pdf.SetFont("Helvetica", "I", 10)
	d.pdf.CellFormat(0, 6, "Report generated on: "+now.Format(timeLayout), "", 1, "L", false, 0, "")
}

func splitReferences(ref string) []string {
	var out []string
	for _, line := range strings.Split(ref, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return out
}

func severityColor(s model.Severity) (int, int, int) {
	switch s.Rank() {
	case 4:
		return 128, 0, 0
	case 3:
		return 220, 53, 69
	case 2:
		return 253, 126, 20
	case 1:
		return 255, 193, 7
	}
	return 13, 110, 253
}

func orNA(s string) string {
	if strings.TrimSpace(s) == "" {
		return "N/A"
	}
	return s
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
