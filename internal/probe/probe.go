// Package probe checks that a front-end target answers before a scan is
// queued, and records a few facts about its landing page.
package probe

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/raysh454/zapscan/internal/logging"
	"github.com/raysh454/zapscan/internal/webclient"
)

// Result describes the landing page of a target.
type Result struct {
	URL        string
	StatusCode int
	Title      string
	// LoginForm is set when a form with a password field was found.
	LoginForm *LoginForm
	// SameHostLinks counts anchors pointing at the target's host.
	SameHostLinks int
}

// LoginForm is a form that contains a password input.
type LoginForm struct {
	Action        string
	Method        string
	UsernameField string
	PasswordField string
}

// Prober fetches a target's landing page.
type Prober struct {
	wc     webclient.WebClient
	logger logging.Logger
}

func New(wc webclient.WebClient, logger logging.Logger) *Prober {
	return &Prober{
		wc:     wc,
		logger: logger.With(logging.Field{Key: "component", Value: "probe"}),
	}
}

// Probe fetches target. Transport failures are errors; any HTTP status is
// accepted, since landing pages behind a login often answer 401 or 403.
func (p *Prober) Probe(ctx context.Context, target string) (*Result, error) {
	resp, err := p.wc.Get(ctx, target)
	if err != nil {
		return nil, fmt.Errorf("target %s unreachable: %w", target, err)
	}

	res := &Result{URL: target, StatusCode: resp.StatusCode}
	ct := resp.Headers.Get("Content-Type")
	if ct != "" && !strings.Contains(ct, "html") {
		return res, nil
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body))
	if err != nil {
		p.logger.Warn("couldn't parse landing page",
			logging.Field{Key: "url", Value: target},
			logging.Field{Key: "error", Value: err.Error()})
		return res, nil
	}

	res.Title = strings.TrimSpace(doc.Find("title").First().Text())
	res.LoginForm = findLoginForm(doc)
	res.SameHostLinks = countSameHostLinks(doc, target)

	p.logger.Debug("probed target",
		logging.Field{Key: "url", Value: target},
		logging.Field{Key: "status", Value: res.StatusCode},
		logging.Field{Key: "title", Value: res.Title})
	return res, nil
}

// RequestTemplate returns a login body template with {username} and
// {password} placeholders, or "" when either field name is unknown.
func (lf *LoginForm) RequestTemplate() string {
	if lf == nil || lf.UsernameField == "" || lf.PasswordField == "" {
		return ""
	}
	return url.QueryEscape(lf.UsernameField) + "={username}&" + url.QueryEscape(lf.PasswordField) + "={password}"
}

func findLoginForm(doc *goquery.Document) *LoginForm {
	var found *LoginForm
	doc.Find("form").EachWithBreak(func(_ int, form *goquery.Selection) bool {
		pw := form.Find(`input[type="password"]`).First()
		if pw.Length() == 0 {
			return true
		}
		lf := &LoginForm{
			Action:        form.AttrOr("action", ""),
			Method:        strings.ToUpper(form.AttrOr("method", "GET")),
			PasswordField: pw.AttrOr("name", ""),
		}
		user := form.Find(`input[type="email"], input[type="text"], input:not([type])`).First()
		lf.UsernameField = user.AttrOr("name", "")
		found = lf
		return false
	})
	return found
}

func countSameHostLinks(doc *goquery.Document, target string) int {
	base, err := url.Parse(target)
	if err != nil {
		return 0
	}
	n := 0
	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		ref, err := url.Parse(a.AttrOr("href", ""))
		if err != nil {
			return
		}
		if strings.EqualFold(base.ResolveReference(ref).Hostname(), base.Hostname()) {
			n++
		}
	})
	return n
}
