package model

// APIScanOptions are optional knobs on an API scan submission.
type APIScanOptions struct {
	EnableActiveScan     *bool `json:"enableActiveScan,omitempty"`
	EnablePassiveScan    *bool `json:"enablePassiveScan,omitempty"`
	MaxRequestsPerSecond int   `json:"maxRequestsPerSecond,omitempty"`
	RequestTimeout       int   `json:"requestTimeout,omitempty"`
}

// APIScanRequest is the body of POST /api-scanner.
type APIScanRequest struct {
	APIJSONURL       string          `json:"apiJsonUrl"`
	BaseURL          string          `json:"baseUrl"`
	MinimumRiskLevel string          `json:"minimumRiskLevel,omitempty"`
	Options          *APIScanOptions `json:"options,omitempty"`
}

// Authentication describes a form-login for front-end scans.
type Authentication struct {
	LoginURL         string `json:"loginUrl"`
	Username         string `json:"username"`
	Password         string `json:"password"`
	LoginRequestData string `json:"loginRequestData,omitempty"`
}

// FrontendScanOptions are optional knobs on a front-end scan submission.
type FrontendScanOptions struct {
	SameHostOnly         *bool `json:"sameHostOnly,omitempty"`
	MaxDuration          int   `json:"maxDuration,omitempty"`
	EnableActiveScan     *bool `json:"enableActiveScan,omitempty"`
	EnablePassiveScan    *bool `json:"enablePassiveScan,omitempty"`
	MaxRequestsPerSecond int   `json:"maxRequestsPerSecond,omitempty"`
}

// FrontendScanRequest is the body of POST /api-scanner/frontend.
type FrontendScanRequest struct {
	FrontendURL      string               `json:"frontendUrl"`
	ScanDepth        string               `json:"scanDepth,omitempty"`
	MinimumRiskLevel string               `json:"minimumRiskLevel,omitempty"`
	Authentication   *Authentication      `json:"authentication,omitempty"`
	ScanOptions      *FrontendScanOptions `json:"scanOptions,omitempty"`
}

// TriageUpdate is the body of PATCH /reports/{id}. Nil fields are left
// unchanged.
type TriageUpdate struct {
	AssignedTo *string   `json:"assignedTo,omitempty"`
	Notes      *string   `json:"notes,omitempty"`
	Tags       *[]string `json:"tags,omitempty"`
}

// Apply merges u into t.
func (u TriageUpdate) Apply(t Triage) Triage {
	if u.AssignedTo != nil {
		t.AssignedTo = *u.AssignedTo
	}
	if u.Notes != nil {
		t.Notes = *u.Notes
	}
	if u.Tags != nil {
		t.Tags = append([]string(nil), (*u.Tags)...)
	}
	return t
}
