package model

import "time"

// Status is the lifecycle state of a scan. A scan moves forward only:
// PENDING -> IN_PROGRESS -> COMPLETED | FAILED.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusInProgress Status = "IN_PROGRESS"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
)

// Terminal reports whether s is COMPLETED or FAILED.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Valid reports whether s is one of the four known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// ScanKind distinguishes scans of API descriptions from scans of browser
// front ends.
type ScanKind string

const (
	KindAPI      ScanKind = "api"
	KindFrontend ScanKind = "frontend"
)

// ScanDepth controls how aggressively a front-end scan crawls.
type ScanDepth string

const (
	DepthQuick    ScanDepth = "quick"
	DepthStandard ScanDepth = "standard"
	DepthDetailed ScanDepth = "detailed"
)

// ParseScanDepth returns DepthStandard for an empty string.
func ParseScanDepth(s string) (ScanDepth, bool) {
	switch ScanDepth(s) {
	case "":
		return DepthStandard, true
	case DepthQuick, DepthStandard, DepthDetailed:
		return ScanDepth(s), true
	}
	return "", false
}

// Parameter is a declared operation parameter from an API description.
type Parameter struct {
	Name     string `json:"name,omitempty"`
	In       string `json:"in,omitempty"`
	Required bool   `json:"required,omitempty"`
	Ref      string `json:"$ref,omitempty"`
}

// Endpoint is one path+method pair discovered in an API description.
type Endpoint struct {
	Path       string      `json:"path"`
	Method     string      `json:"method"`
	Parameters []Parameter `json:"parameters,omitempty"`
}

// ScanConfig captures the options a scan was submitted with. Credentials
// are never part of it.
type ScanConfig struct {
	MinimumRisk          Severity  `json:"minimumRiskLevel,omitempty"`
	ActiveEnabled        bool      `json:"enableActiveScan"`
	PassiveEnabled       bool      `json:"enablePassiveScan"`
	MaxRequestsPerSecond int       `json:"maxRequestsPerSecond,omitempty"`
	RequestTimeoutMs     int       `json:"requestTimeout,omitempty"`
	ScanDepth            ScanDepth `json:"scanDepth,omitempty"`
	SameHostOnly         bool      `json:"sameHostOnly"`
	MaxDurationMinutes   int       `json:"maxDuration,omitempty"`
	Authenticated        bool      `json:"authenticated,omitempty"`
	LoginURL             string    `json:"loginUrl,omitempty"`
	Username             string    `json:"username,omitempty"`
	PageTitle            string    `json:"pageTitle,omitempty"`
}

// Triage holds reviewer-owned fields on a scan record.
type Triage struct {
	AssignedTo string   `json:"assignedTo,omitempty"`
	Notes      string   `json:"notes,omitempty"`
	Tags       []string `json:"tags,omitempty"`
}

// Scan is the persisted record of one scan.
type Scan struct {
	ID             string     `json:"scanId"`
	Kind           ScanKind   `json:"kind"`
	APIJSONURL     string     `json:"apiJsonUrl,omitempty"`
	BaseURL        string     `json:"baseUrl,omitempty"`
	FrontendURL    string     `json:"frontendUrl,omitempty"`
	Status         Status     `json:"status"`
	Endpoints      []Endpoint `json:"endpoints,omitempty"`
	Findings       []Finding  `json:"vulnerabilities"`
	Config         ScanConfig `json:"scanOptions"`
	Summary        *Summary   `json:"summary,omitempty"`
	ErrorMessage   string     `json:"errorMessage,omitempty"`
	ScannerVersion string     `json:"scannerVersion,omitempty"`
	Triage         Triage     `json:"triage"`
	StartedAt      time.Time  `json:"startedAt"`
	CompletedAt    *time.Time `json:"completedAt,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
}

// Target returns the URL the scan points at: the front-end URL for
// front-end scans and the base URL otherwise.
func (s *Scan) Target() string {
	if s.Kind == KindFrontend {
		return s.FrontendURL
	}
	return s.BaseURL
}

// Duration is the wall time between start and completion, zero while the
// scan is still running.
func (s *Scan) Duration() time.Duration {
	if s.CompletedAt == nil {
		return 0
	}
	return s.CompletedAt.Sub(s.StartedAt)
}

// Summary aggregates counts for a completed scan.
type Summary struct {
	TotalEndpoints   int            `json:"totalEndpoints"`
	ScannedEndpoints int            `json:"scannedEndpoints"`
	TotalRequests    int            `json:"totalRequests"`
	AlertsByRisk     SeverityCounts `json:"alertsByRisk"`
}

// ScanEvent is published whenever a scan changes status.
type ScanEvent struct {
	ScanID  string    `json:"scanId"`
	Status  Status    `json:"status"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}
