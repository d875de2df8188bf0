package testutil

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/raysh454/zapscan/internal/model"
	"github.com/raysh454/zapscan/internal/zap"
)

// FakeGateway is a scripted scanner gateway. Every call is recorded by
// name; errors and findings are looked up from the exported fields.
type FakeGateway struct {
	mu sync.Mutex

	Version string

	ReadyErr    error
	ImportErr   error
	ScopeErr    error
	APIScanErr  error
	ActiveErr   error
	AuthErr     error
	DetailedErr error
	FetchErr    error

	// AwaitErr fails every AwaitCompletion; AwaitErrFor fails those whose
	// scan was started against the given target.
	AwaitErr    error
	AwaitErrFor map[string]error

	// Findings are returned by FetchFindings keyed by base URL, falling
	// back to DefaultFindings.
	Findings        map[string][]model.Finding
	DefaultFindings []model.Finding

	Messages int

	// Block, when set, makes AwaitCompletion wait until it is closed or
	// the context ends.
	Block chan struct{}

	calls []string
	auth  []zap.AuthSettings
}

func (g *FakeGateway) record(op string, args ...string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(args) > 0 {
		op += " " + strings.Join(args, " ")
	}
	g.calls = append(g.calls, op)
}

// Calls returns every recorded call as "op arg...".
func (g *FakeGateway) Calls() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.calls...)
}

// Ops returns the operation names of every call, without arguments.
func (g *FakeGateway) Ops() []string {
	calls := g.Calls()
	out := make([]string, len(calls))
	for i, c := range calls {
		out[i], _, _ = strings.Cut(c, " ")
	}
	return out
}

// Count returns how many times op was called.
func (g *FakeGateway) Count(op string) int {
	n := 0
	for _, o := range g.Ops() {
		if o == op {
			n++
		}
	}
	return n
}

// AuthSettings returns the settings passed to ConfigureAuthentication.
func (g *FakeGateway) AuthSettings() []zap.AuthSettings {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]zap.AuthSettings(nil), g.auth...)
}

func (g *FakeGateway) CheckReady(ctx context.Context) (string, error) {
	g.record("CheckReady")
	if g.ReadyErr != nil {
		return "", g.ReadyErr
	}
	if g.Version == "" {
		return "2.14.0", nil
	}
	return g.Version, nil
}

func (g *FakeGateway) ImportSpecification(ctx context.Context, specURL, hostOverride string) error {
	g.record("ImportSpecification", specURL, hostOverride)
	return g.ImportErr
}

func (g *FakeGateway) RegisterScope(ctx context.Context, target string) (string, error) {
	g.record("RegisterScope", target)
	if g.ScopeErr != nil {
		return "", g.ScopeErr
	}
	return "1", nil
}

func (g *FakeGateway) Crawl(ctx context.Context, target string, mode zap.CrawlMode, opts zap.CrawlOptions) error {
	g.record("Crawl", mode.String(), target)
	return ctx.Err()
}

func (g *FakeGateway) RunPassiveAnalysis(ctx context.Context) error {
	g.record("RunPassiveAnalysis")
	return ctx.Err()
}

func (g *FakeGateway) StartActiveScan(ctx context.Context, target string) (string, error) {
	g.record("StartActiveScan", target)
	if g.ActiveErr != nil {
		return "", g.ActiveErr
	}
	return target, nil
}

func (g *FakeGateway) StartAPIScan(ctx context.Context, target string) (string, error) {
	g.record("StartAPIScan", target)
	if g.APIScanErr != nil {
		return "", g.APIScanErr
	}
	return target, nil
}

// AwaitCompletion treats the handle as the scan target.
func (g *FakeGateway) AwaitCompletion(ctx context.Context, handle string) error {
	g.record("AwaitCompletion", handle)
	if g.Block != nil {
		select {
		case <-g.Block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if err, ok := g.AwaitErrFor[handle]; ok {
		return err
	}
	return g.AwaitErr
}

func (g *FakeGateway) FetchFindings(ctx context.Context, baseURL string) ([]model.Finding, error) {
	g.record("FetchFindings", baseURL)
	if g.FetchErr != nil {
		return nil, g.FetchErr
	}
	src := g.DefaultFindings
	if fs, ok := g.Findings[baseURL]; ok {
		src = fs
	}
	return append([]model.Finding(nil), src...), nil
}

func (g *FakeGateway) CountMessages(ctx context.Context, baseURL string) (int, error) {
	g.record("CountMessages", baseURL)
	return g.Messages, nil
}

func (g *FakeGateway) ConfigureAuthentication(ctx context.Context, s zap.AuthSettings) (string, error) {
	g.record("ConfigureAuthentication", s.LoginURL)
	g.mu.Lock()
	g.auth = append(g.auth, s)
	g.mu.Unlock()
	if g.AuthErr != nil {
		return "", g.AuthErr
	}
	return "7", nil
}

func (g *FakeGateway) ApplyDetailedSettings(ctx context.Context, maxDurationMinutes int) error {
	g.record("ApplyDetailedSettings")
	return g.DetailedErr
}

func (g *FakeGateway) ApplyRateLimit(ctx context.Context, perSecond int) error {
	g.record("ApplyRateLimit")
	return nil
}

func (g *FakeGateway) SetRequestTimeout(ctx context.Context, timeout time.Duration) error {
	g.record("SetRequestTimeout")
	return nil
}

func (g *FakeGateway) SetPassiveEnabled(ctx context.Context, enabled bool) error {
	g.record("SetPassiveEnabled")
	return nil
}
