package app

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"

	"github.com/raysh454/zapscan/internal/apispec"
	"github.com/raysh454/zapscan/internal/logging"
	"github.com/raysh454/zapscan/internal/metrics"
	"github.com/raysh454/zapscan/internal/model"
	"github.com/raysh454/zapscan/internal/pdfreport"
	"github.com/raysh454/zapscan/internal/probe"
	"github.com/raysh454/zapscan/internal/reports"
	"github.com/raysh454/zapscan/internal/utils"
	"github.com/raysh454/zapscan/internal/zap"
)

// CanceledMessage is the error text stored on scans stopped by CancelScan.
const CanceledMessage = "scan canceled"

// finishTimeout bounds the terminal writes, which run on a fresh context so
// a cancelled scan can still be recorded.
const finishTimeout = 30 * time.Second

// Gateway is the subset of the scanner client the orchestrator drives.
type Gateway interface {
	CheckReady(ctx context.Context) (string, error)
	ImportSpecification(ctx context.Context, specURL, hostOverride string) error
	RegisterScope(ctx context.Context, target string) (string, error)
	Crawl(ctx context.Context, target string, mode zap.CrawlMode, opts zap.CrawlOptions) error
	RunPassiveAnalysis(ctx context.Context) error
	StartActiveScan(ctx context.Context, target string) (string, error)
	StartAPIScan(ctx context.Context, target string) (string, error)
	AwaitCompletion(ctx context.Context, handle string) error
	FetchFindings(ctx context.Context, baseURL string) ([]model.Finding, error)
	CountMessages(ctx context.Context, baseURL string) (int, error)
	ConfigureAuthentication(ctx context.Context, s zap.AuthSettings) (string, error)
	ApplyDetailedSettings(ctx context.Context, maxDurationMinutes int) error
	ApplyRateLimit(ctx context.Context, perSecond int) error
	SetRequestTimeout(ctx context.Context, timeout time.Duration) error
	SetPassiveEnabled(ctx context.Context, enabled bool) error
}

// ScanStore persists scan records.
type ScanStore interface {
	Create(ctx context.Context, scan *model.Scan) error
	Get(ctx context.Context, id string) (*model.Scan, error)
	MarkInProgress(ctx context.Context, id string) error
	Complete(ctx context.Context, id string, c reports.Completion) error
	Fail(ctx context.Context, id, message string, at time.Time) error
	Recent(ctx context.Context, limit int) ([]*model.Scan, error)
	Stats(ctx context.Context) (*model.Stats, error)
	UpdateTriage(ctx context.Context, id string, upd model.TriageUpdate) (*model.Scan, error)
	Ping(ctx context.Context) error
}

type SpecLoader interface {
	Load(ctx context.Context, url string) (*apispec.Document, error)
}

type Prober interface {
	Probe(ctx context.Context, target string) (*probe.Result, error)
}

type Renderer interface {
	Render(scan *model.Scan) ([]byte, error)
}

// Deps are the collaborators of an Orchestrator. Metrics may be nil.
type Deps struct {
	Store    ScanStore
	Gateway  Gateway
	Specs    SpecLoader
	Prober   Prober
	Renderer Renderer
	Metrics  *metrics.Metrics
}

// Orchestrator accepts scan submissions, runs them in the background and
// serves their results.
type Orchestrator struct {
	cfg      *Config
	store    ScanStore
	gateway  Gateway
	specs    SpecLoader
	prober   Prober
	renderer Renderer
	metrics  *metrics.Metrics
	logger   logging.Logger
	queue    *TaskQueue
	now      func() time.Time

	subsMu sync.Mutex
	subs   map[string]map[chan model.ScanEvent]struct{}
}

// NewOrchestrator wires an Orchestrator. Background work does not begin
// until Start is called.
func NewOrchestrator(cfg *Config, deps Deps, logger logging.Logger) (*Orchestrator, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	switch {
	case deps.Store == nil:
		return nil, errors.New("orchestrator: store is required")
	case deps.Gateway == nil:
		return nil, errors.New("orchestrator: gateway is required")
	case deps.Specs == nil:
		return nil, errors.New("orchestrator: spec loader is required")
	case deps.Prober == nil:
		return nil, errors.New("orchestrator: prober is required")
	}
	if deps.Renderer == nil {
		deps.Renderer = pdfreport.New()
	}

	o := &Orchestrator{
		cfg:      cfg,
		store:    deps.Store,
		gateway:  deps.Gateway,
		specs:    deps.Specs,
		prober:   deps.Prober,
		renderer: deps.Renderer,
		metrics:  deps.Metrics,
		logger:   logger.With(logging.Field{Key: "component", Value: "orchestrator"}),
		now:      func() time.Time { return time.Now().UTC() },
		subs:     make(map[string]map[chan model.ScanEvent]struct{}),
	}
	o.queue = NewTaskQueue(cfg.Workers, cfg.QueueSize, o.handle, logger)
	return o, nil
}

// Start begins processing queued scans.
func (o *Orchestrator) Start() {
	o.queue.Start()
}

// Shutdown stops accepting scans and waits for running ones, cancelling
// them when ctx expires.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	return o.queue.Shutdown(ctx)
}

// ─── Submission ─────────────────────────────────────────────────────────────

// SubmitAPIScan validates an API scan request, records it as PENDING and
// schedules it.
func (o *Orchestrator) SubmitAPIScan(ctx context.Context, req model.APIScanRequest) (*model.ScanView, error) {
	if strings.TrimSpace(req.APIJSONURL) == "" {
		return nil, invalid("apiJsonUrl", errors.New("is required"))
	}
	specURL, err := utils.NormalizeTarget(req.APIJSONURL)
	if err != nil {
		return nil, invalid("apiJsonUrl", err)
	}
	baseURL, err := utils.NormalizeTarget(req.BaseURL)
	if err != nil {
		return nil, invalid("baseUrl", err)
	}
	floor, err := parseRiskFloor(req.MinimumRiskLevel)
	if err != nil {
		return nil, err
	}

	cfg := model.ScanConfig{MinimumRisk: floor, ActiveEnabled: true, PassiveEnabled: true}
	if opts := req.Options; opts != nil {
		if opts.EnableActiveScan != nil {
			cfg.ActiveEnabled = *opts.EnableActiveScan
		}
		if opts.EnablePassiveScan != nil {
			cfg.PassiveEnabled = *opts.EnablePassiveScan
		}
		cfg.MaxRequestsPerSecond = opts.MaxRequestsPerSecond
		cfg.RequestTimeoutMs = opts.RequestTimeout
	}

	doc, err := o.specs.Load(ctx, o.resolve(specURL))
	if err != nil {
		return nil, invalid("apiJsonUrl", fmt.Errorf("failed to load API specification: %w", err))
	}
	endpoints := apispec.ExtractEndpoints(doc, o.logger)

	scan := &model.Scan{
		ID:         uuid.New().String(),
		Kind:       model.KindAPI,
		APIJSONURL: specURL,
		BaseURL:    baseURL,
		Status:     model.StatusPending,
		Endpoints:  endpoints,
		Findings:   []model.Finding{},
		Config:     cfg,
		StartedAt:  o.now(),
	}
	return o.admit(ctx, scan, ScanTask{ScanID: scan.ID, Kind: scan.Kind})
}

// SubmitFrontendScan validates a website scan request, probes the target,
// records it as PENDING and schedules it.
func (o *Orchestrator) SubmitFrontendScan(ctx context.Context, req model.FrontendScanRequest) (*model.ScanView, error) {
	target, err := utils.NormalizeTarget(req.FrontendURL)
	if err != nil {
		return nil, invalid("frontendUrl", err)
	}
	depth, ok := model.ParseScanDepth(req.ScanDepth)
	if !ok {
		return nil, invalid("scanDepth", fmt.Errorf("unknown scan depth %q", req.ScanDepth))
	}
	floor, err := parseRiskFloor(req.MinimumRiskLevel)
	if err != nil {
		return nil, err
	}

	cfg := model.ScanConfig{
		MinimumRisk:        floor,
		ActiveEnabled:      true,
		PassiveEnabled:     true,
		ScanDepth:          depth,
		SameHostOnly:       true,
		MaxDurationMinutes: 60,
	}
	if opts := req.ScanOptions; opts != nil {
		if opts.SameHostOnly != nil {
			cfg.SameHostOnly = *opts.SameHostOnly
		}
		if opts.MaxDuration > 0 {
			cfg.MaxDurationMinutes = opts.MaxDuration
		}
		if opts.EnableActiveScan != nil {
			cfg.ActiveEnabled = *opts.EnableActiveScan
		}
		if opts.EnablePassiveScan != nil {
			cfg.PassiveEnabled = *opts.EnablePassiveScan
		}
		cfg.MaxRequestsPerSecond = opts.MaxRequestsPerSecond
	}

	var auth *zap.AuthSettings
	if a := req.Authentication; a != nil {
		loginURL, err := utils.NormalizeTarget(a.LoginURL)
		if err != nil {
			return nil, invalid("authentication.loginUrl", err)
		}
		if a.Username == "" || a.Password == "" {
			return nil, invalid("authentication", errors.New("username and password are required"))
		}
		auth = &zap.AuthSettings{
			LoginURL:         loginURL,
			Username:         a.Username,
			Password:         a.Password,
			LoginRequestData: a.LoginRequestData,
		}
		cfg.Authenticated = true
		cfg.LoginURL = loginURL
		cfg.Username = a.Username
	}

	page, err := o.prober.Probe(ctx, o.resolve(target))
	if err != nil {
		return nil, invalid("frontendUrl", err)
	}
	cfg.PageTitle = page.Title
	if page.SameHostLinks == 0 {
		o.logger.Warn("landing page has no links on the target host",
			logging.Field{Key: "url", Value: target})
	}
	if auth != nil && auth.LoginRequestData == "" {
		auth.LoginRequestData = o.loginTemplate(ctx, auth.LoginURL, target, page)
	}

	scan := &model.Scan{
		ID:          uuid.New().String(),
		Kind:        model.KindFrontend,
		FrontendURL: target,
		Status:      model.StatusPending,
		Findings:    []model.Finding{},
		Config:      cfg,
		StartedAt:   o.now(),
	}
	return o.admit(ctx, scan, ScanTask{ScanID: scan.ID, Kind: scan.Kind, Auth: auth})
}

// loginTemplate derives a login body template from the password form on
// the login page. It returns "" when no usable form is found.
func (o *Orchestrator) loginTemplate(ctx context.Context, loginURL, target string, landing *probe.Result) string {
	page := landing
	if loginURL != target {
		var err error
		if page, err = o.prober.Probe(ctx, o.resolve(loginURL)); err != nil {
			o.logger.Warn("could not read login page",
				logging.Field{Key: "url", Value: loginURL},
				logging.Field{Key: "error", Value: err})
			return ""
		}
	}
	tmpl := page.LoginForm.RequestTemplate()
	if tmpl == "" {
		o.logger.Warn("login page has no usable password form", logging.Field{Key: "url", Value: loginURL})
	}
	return tmpl
}

func (o *Orchestrator) admit(ctx context.Context, scan *model.Scan, task ScanTask) (*model.ScanView, error) {
	if err := o.store.Create(ctx, scan); err != nil {
		return nil, fmt.Errorf("create scan record: %w", err)
	}
	if err := o.queue.Enqueue(task); err != nil {
		o.fail(scan, fmt.Sprintf("could not schedule scan: %v", err))
		return nil, fmt.Errorf("schedule scan %s: %w", scan.ID, err)
	}

	o.metrics.ScanSubmitted(scan.Kind)
	o.logger.Info("scan submitted",
		logging.Field{Key: "scan_id", Value: scan.ID},
		logging.Field{Key: "kind", Value: string(scan.Kind)},
		logging.Field{Key: "target", Value: scan.Target()},
		logging.Field{Key: "endpoints", Value: len(scan.Endpoints)})
	o.publish(scan.ID, model.StatusPending, model.SubmittedMessage)

	view := scan.View()
	view.Message = model.SubmittedMessage
	return view, nil
}

func parseRiskFloor(raw string) (model.Severity, error) {
	if raw == "" {
		return "", nil
	}
	sev, ok := model.ParseSeverity(raw)
	if !ok {
		return "", invalid("minimumRiskLevel", fmt.Errorf("unknown risk level %q", raw))
	}
	return sev, nil
}

// resolve rewrites loopback hosts to the service alias in container mode.
func (o *Orchestrator) resolve(raw string) string {
	if !o.cfg.ContainerMode {
		return raw
	}
	return utils.RewriteLocalhost(raw, o.cfg.ServiceAlias)
}

// ─── Background step ────────────────────────────────────────────────────────

type scanResult struct {
	findings []model.Finding
	scanned  int
	version  string
	base     string
}

func (o *Orchestrator) handle(ctx context.Context, task ScanTask) {
	logger := o.logger.With(logging.Field{Key: "scan_id", Value: task.ScanID})

	scan, err := o.store.Get(ctx, task.ScanID)
	if err != nil {
		if ctx.Err() != nil {
			o.failByID(task.ScanID, CanceledMessage, logger)
			return
		}
		logger.Error("load scan for processing", logging.Field{Key: "error", Value: err})
		return
	}

	var res *scanResult
	switch scan.Kind {
	case model.KindFrontend:
		res, err = o.runFrontendScan(ctx, scan, task.Auth, logger)
	default:
		res, err = o.runAPIScan(ctx, scan, logger)
	}

	if err != nil {
		msg := err.Error()
		if ctx.Err() != nil {
			msg = CanceledMessage
		}
		logger.Error("scan failed", logging.Field{Key: "error", Value: err})
		o.fail(scan, msg)
		return
	}
	o.complete(scan, res, logger)
}

func (o *Orchestrator) begin(ctx context.Context, scan *model.Scan) (string, error) {
	if err := o.store.MarkInProgress(ctx, scan.ID); err != nil {
		return "", fmt.Errorf("mark scan in progress: %w", err)
	}
	o.publish(scan.ID, model.StatusInProgress, model.StatusMessage(model.StatusInProgress, ""))

	version, err := o.gateway.CheckReady(ctx)
	if err != nil {
		return "", fmt.Errorf("scanner not ready: %w", err)
	}
	return version, nil
}

func (o *Orchestrator) runAPIScan(ctx context.Context, scan *model.Scan, logger logging.Logger) (*scanResult, error) {
	version, err := o.begin(ctx, scan)
	if err != nil {
		return nil, err
	}
	base := o.resolve(scan.BaseURL)

	findings, err := o.scanSpecification(ctx, scan, base)
	scanned := len(scan.Endpoints)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		logger.Warn("specification scan failed, scanning endpoints individually",
			logging.Field{Key: "error", Value: err})
		findings, scanned, err = o.scanEndpoints(ctx, scan, base, err, logger)
		if err != nil {
			return nil, err
		}
	}

	return &scanResult{
		findings: model.FilterByRisk(findings, scan.Config.MinimumRisk),
		scanned:  scanned,
		version:  version,
		base:     base,
	}, nil
}

// scanSpecification scans the whole imported description in one pass.
func (o *Orchestrator) scanSpecification(ctx context.Context, scan *model.Scan, base string) ([]model.Finding, error) {
	host := ""
	if u, err := url.Parse(base); err == nil {
		host = u.Host
	}
	if err := o.gateway.ImportSpecification(ctx, o.resolve(scan.APIJSONURL), host); err != nil {
		return nil, fmt.Errorf("import specification: %w", err)
	}
	if _, err := o.gateway.RegisterScope(ctx, base); err != nil {
		return nil, fmt.Errorf("register scope: %w", err)
	}
	if err := o.applyTuning(ctx, scan.Config); err != nil {
		return nil, err
	}

	if scan.Config.ActiveEnabled {
		handle, err := o.gateway.StartAPIScan(ctx, base)
		if err != nil {
			return nil, fmt.Errorf("start api scan: %w", err)
		}
		if err := o.gateway.AwaitCompletion(ctx, handle); err != nil {
			return nil, err
		}
	}
	if scan.Config.PassiveEnabled {
		if err := o.gateway.RunPassiveAnalysis(ctx); err != nil {
			return nil, err
		}
	}

	findings, err := o.gateway.FetchFindings(ctx, base)
	if err != nil {
		return nil, fmt.Errorf("fetch findings: %w", err)
	}
	return findings, nil
}

// scanEndpoints scans each extracted endpoint on its own. A failing
// endpoint is logged and skipped; the scan fails only when none succeed.
func (o *Orchestrator) scanEndpoints(ctx context.Context, scan *model.Scan, base string, primary error, logger logging.Logger) ([]model.Finding, int, error) {
	if len(scan.Endpoints) == 0 {
		return nil, 0, primary
	}

	var (
		errs     *multierror.Error
		findings []model.Finding
		scanned  int
		done     = make(map[string]bool)
	)
	for _, ep := range scan.Endpoints {
		target := utils.JoinPath(base, ep.Path)
		if ok, seen := done[target]; seen {
			if ok {
				scanned++
			}
			continue
		}

		fs, err := o.scanEndpoint(ctx, target, scan.Config)
		if err != nil {
			if ctx.Err() != nil {
				return nil, 0, ctx.Err()
			}
			done[target] = false
			errs = multierror.Append(errs, fmt.Errorf("%s %s: %w", ep.Method, target, err))
			logger.Warn("endpoint scan failed",
				logging.Field{Key: "method", Value: ep.Method},
				logging.Field{Key: "url", Value: target},
				logging.Field{Key: "error", Value: err})
			continue
		}
		done[target] = true
		scanned++
		findings = append(findings, fs...)
	}

	if scanned == 0 {
		return nil, 0, errs.Errors[0]
	}
	if errs != nil {
		logger.Warn("some endpoints could not be scanned",
			logging.Field{Key: "failed", Value: errs.Len()},
			logging.Field{Key: "error", Value: errs.Error()})
	}
	return findings, scanned, nil
}

// scanEndpoint runs the scan stages enabled in cfg against one endpoint.
func (o *Orchestrator) scanEndpoint(ctx context.Context, target string, cfg model.ScanConfig) ([]model.Finding, error) {
	if _, err := o.gateway.RegisterScope(ctx, target); err != nil {
		return nil, fmt.Errorf("register scope: %w", err)
	}
	if cfg.ActiveEnabled {
		handle, err := o.gateway.StartActiveScan(ctx, target)
		if err != nil {
			return nil, fmt.Errorf("start active scan: %w", err)
		}
		if err := o.gateway.AwaitCompletion(ctx, handle); err != nil {
			return nil, err
		}
	} else if cfg.PassiveEnabled {
		if err := o.gateway.RunPassiveAnalysis(ctx); err != nil {
			return nil, err
		}
	}
	findings, err := o.gateway.FetchFindings(ctx, target)
	if err != nil {
		return nil, fmt.Errorf("fetch findings: %w", err)
	}
	return findings, nil
}

func (o *Orchestrator) runFrontendScan(ctx context.Context, scan *model.Scan, auth *zap.AuthSettings, logger logging.Logger) (*scanResult, error) {
	version, err := o.begin(ctx, scan)
	if err != nil {
		return nil, err
	}
	target := o.resolve(scan.FrontendURL)

	contextID, err := o.gateway.RegisterScope(ctx, target)
	if err != nil {
		return nil, fmt.Errorf("register scope: %w", err)
	}

	if auth != nil {
		settings := *auth
		settings.ContextID = contextID
		settings.TargetURL = target
		settings.LoginURL = o.resolve(settings.LoginURL)
		if _, err := o.gateway.ConfigureAuthentication(ctx, settings); err != nil {
			return nil, fmt.Errorf("configure authentication: %w", err)
		}
		logger.Info("authentication configured", logging.Field{Key: "login_url", Value: settings.LoginURL})
	}

	if err := o.applyTuning(ctx, scan.Config); err != nil {
		return nil, err
	}

	opts := zap.CrawlOptions{SubtreeOnly: scan.Config.SameHostOnly}
	if err := o.gateway.Crawl(ctx, target, zap.CrawlStructure, opts); err != nil {
		return nil, err
	}
	if err := o.gateway.Crawl(ctx, target, zap.CrawlBehavior, opts); err != nil {
		return nil, err
	}
	if scan.Config.PassiveEnabled {
		if err := o.gateway.RunPassiveAnalysis(ctx); err != nil {
			return nil, err
		}
	}

	if scan.Config.ScanDepth == model.DepthDetailed {
		if err := o.gateway.ApplyDetailedSettings(ctx, scan.Config.MaxDurationMinutes); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			logger.Warn("could not apply detailed scan settings", logging.Field{Key: "error", Value: err})
		}
	}

	if scan.Config.ActiveEnabled {
		handle, err := o.gateway.StartActiveScan(ctx, target)
		if err != nil {
			return nil, fmt.Errorf("start active scan: %w", err)
		}
		if err := o.gateway.AwaitCompletion(ctx, handle); err != nil {
			return nil, err
		}
	}

	findings, err := o.gateway.FetchFindings(ctx, target)
	if err != nil {
		return nil, fmt.Errorf("fetch findings: %w", err)
	}
	findings = model.FilterByRisk(findings, scan.Config.MinimumRisk)
	model.Annotate(findings)

	return &scanResult{findings: findings, version: version, base: target}, nil
}

// applyTuning applies the optional passive toggle, rate limit and request
// timeout. Failures are logged and do not stop the scan.
func (o *Orchestrator) applyTuning(ctx context.Context, cfg model.ScanConfig) error {
	if !cfg.PassiveEnabled {
		if err := o.gateway.SetPassiveEnabled(ctx, false); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			o.logger.Warn("could not disable passive scanners", logging.Field{Key: "error", Value: err})
		}
	}
	if cfg.MaxRequestsPerSecond > 0 {
		if err := o.gateway.ApplyRateLimit(ctx, cfg.MaxRequestsPerSecond); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			o.logger.Warn("could not apply rate limit", logging.Field{Key: "error", Value: err})
		}
	}
	if cfg.RequestTimeoutMs > 0 {
		timeout := time.Duration(cfg.RequestTimeoutMs) * time.Millisecond
		if err := o.gateway.SetRequestTimeout(ctx, timeout); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			o.logger.Warn("could not apply request timeout", logging.Field{Key: "error", Value: err})
		}
	}
	return nil
}

// ─── Terminal writes ────────────────────────────────────────────────────────

func (o *Orchestrator) complete(scan *model.Scan, res *scanResult, logger logging.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), finishTimeout)
	defer cancel()

	findings := res.findings
	if findings == nil {
		findings = []model.Finding{}
	}
	requests, err := o.gateway.CountMessages(ctx, res.base)
	if err != nil {
		logger.Warn("could not count scanner requests", logging.Field{Key: "error", Value: err})
	}

	at := o.now()
	err = o.store.Complete(ctx, scan.ID, reports.Completion{
		Findings: findings,
		Summary: model.Summary{
			TotalEndpoints:   len(scan.Endpoints),
			ScannedEndpoints: res.scanned,
			TotalRequests:    requests,
			AlertsByRisk:     model.CountBySeverity(findings),
		},
		ScannerVersion: res.version,
		CompletedAt:    at,
	})
	if err != nil {
		logger.Error("record completed scan", logging.Field{Key: "error", Value: err})
		return
	}

	o.metrics.ScanFinished(scan.Kind, model.StatusCompleted, at.Sub(scan.StartedAt), findings)
	logger.Info("scan completed", logging.Field{Key: "findings", Value: len(findings)})
	o.publish(scan.ID, model.StatusCompleted, model.StatusMessage(model.StatusCompleted, ""))
}

func (o *Orchestrator) fail(scan *model.Scan, message string) {
	ctx, cancel := context.WithTimeout(context.Background(), finishTimeout)
	defer cancel()

	at := o.now()
	if err := o.store.Fail(ctx, scan.ID, message, at); err != nil {
		o.logger.Error("record failed scan",
			logging.Field{Key: "scan_id", Value: scan.ID},
			logging.Field{Key: "error", Value: err})
		return
	}
	o.metrics.ScanFinished(scan.Kind, model.StatusFailed, at.Sub(scan.StartedAt), nil)
	o.publish(scan.ID, model.StatusFailed, message)
}

func (o *Orchestrator) failByID(id, message string, logger logging.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), finishTimeout)
	defer cancel()

	scan, err := o.store.Get(ctx, id)
	if err != nil {
		logger.Error("load scan for failure", logging.Field{Key: "error", Value: err})
		return
	}
	o.fail(scan, message)
}

// ─── Queries ────────────────────────────────────────────────────────────────

// GetScan returns the client-facing state of a scan.
func (o *Orchestrator) GetScan(ctx context.Context, id string) (*model.ScanView, error) {
	scan, err := o.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return scan.View(), nil
}

// CancelScan stops a PENDING or IN_PROGRESS scan. The scan ends FAILED
// with CanceledMessage once its task observes the cancellation.
func (o *Orchestrator) CancelScan(ctx context.Context, id string) (*model.ScanView, error) {
	scan, err := o.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if scan.Status.Terminal() {
		return nil, fmt.Errorf("%w: %s is %s", ErrScanFinished, id, scan.Status)
	}

	if !o.queue.Cancel(id) {
		// No task owns the scan, e.g. it was left behind by a restart.
		o.fail(scan, CanceledMessage)
	}
	o.logger.Info("scan cancellation requested", logging.Field{Key: "scan_id", Value: id})

	view := scan.View()
	view.Message = "Scan cancellation requested"
	return view, nil
}

// RecentScans returns the most recently started scans, newest first.
func (o *Orchestrator) RecentScans(ctx context.Context) ([]*model.ReportView, error) {
	scans, err := o.store.Recent(ctx, o.cfg.RecentLimit)
	if err != nil {
		return nil, err
	}
	out := make([]*model.ReportView, 0, len(scans))
	for _, s := range scans {
		out = append(out, s.Report())
	}
	return out, nil
}

// Report returns the full stored record of a scan.
func (o *Orchestrator) Report(ctx context.Context, id string) (*model.ReportView, error) {
	scan, err := o.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return scan.Report(), nil
}

// RenderReport returns the PDF for a completed scan and its download name.
func (o *Orchestrator) RenderReport(ctx context.Context, id string) ([]byte, string, error) {
	scan, err := o.store.Get(ctx, id)
	if err != nil {
		return nil, "", err
	}
	doc, err := o.renderer.Render(scan)
	if err != nil {
		return nil, "", err
	}
	return doc, pdfreport.Filename(id), nil
}

func (o *Orchestrator) Stats(ctx context.Context) (*model.Stats, error) {
	return o.store.Stats(ctx)
}

// UpdateTriage applies reviewer metadata to a scan record.
func (o *Orchestrator) UpdateTriage(ctx context.Context, id string, upd model.TriageUpdate) (*model.ReportView, error) {
	scan, err := o.store.UpdateTriage(ctx, id, upd)
	if err != nil {
		return nil, err
	}
	return scan.Report(), nil
}

// Ready checks the database and the scanner, returning the scanner version.
func (o *Orchestrator) Ready(ctx context.Context) (string, error) {
	if err := o.store.Ping(ctx); err != nil {
		return "", fmt.Errorf("database: %w", err)
	}
	version, err := o.gateway.CheckReady(ctx)
	if err != nil {
		return "", fmt.Errorf("scanner: %w", err)
	}
	return version, nil
}

// ─── Events ─────────────────────────────────────────────────────────────────

// Subscribe returns a channel of status changes for scanID and a function
// that releases it. Events are dropped when the channel buffer is full.
func (o *Orchestrator) Subscribe(scanID string) (<-chan model.ScanEvent, func()) {
	ch := make(chan model.ScanEvent, 8)

	o.subsMu.Lock()
	set, ok := o.subs[scanID]
	if !ok {
		set = make(map[chan model.ScanEvent]struct{})
		o.subs[scanID] = set
	}
	set[ch] = struct{}{}
	o.subsMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			o.subsMu.Lock()
			defer o.subsMu.Unlock()
			if set, ok := o.subs[scanID]; ok {
				delete(set, ch)
				if len(set) == 0 {
					delete(o.subs, scanID)
				}
			}
			close(ch)
		})
	}
}

func (o *Orchestrator) publish(scanID string, status model.Status, message string) {
	ev := model.ScanEvent{ScanID: scanID, Status: status, Message: message, At: o.now()}

	o.subsMu.Lock()
	defer o.subsMu.Unlock()
	for ch := range o.subs[scanID] {
		select {
		case ch <- ev:
		default:
		}
	}
}
