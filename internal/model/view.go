package model

import "time"

// SubmittedMessage is returned with every accepted submission.
const SubmittedMessage = "Scan has been initiated. Check the results with the provided scanId."

// StatusMessage derives the human-readable message shown for a scan.
func StatusMessage(status Status, errorMessage string) string {
	switch status {
	case StatusCompleted:
		return "Scan completed successfully"
	case StatusFailed:
		if errorMessage != "" {
			return errorMessage
		}
		return "Scan failed"
	case StatusInProgress:
		return "Scan is in progress"
	default:
		return "Scan is pending"
	}
}

// ScanView is the client-facing projection of a Scan. Vulnerabilities stay
// empty until the scan has COMPLETED.
type ScanView struct {
	ScanID          string     `json:"scanId"`
	Kind            ScanKind   `json:"kind"`
	Status          Status     `json:"status"`
	Message         string     `json:"message"`
	APIJSONURL      string     `json:"apiJsonUrl,omitempty"`
	BaseURL         string     `json:"baseUrl,omitempty"`
	FrontendURL     string     `json:"frontendUrl,omitempty"`
	StartedAt       time.Time  `json:"startedAt"`
	CompletedAt     *time.Time `json:"completedAt"`
	Vulnerabilities []Finding  `json:"vulnerabilities"`
	Summary         *Summary   `json:"summary,omitempty"`
}

// View projects s for API responses.
func (s *Scan) View() *ScanView {
	v := &ScanView{
		ScanID:          s.ID,
		Kind:            s.Kind,
		Status:          s.Status,
		Message:         StatusMessage(s.Status, s.ErrorMessage),
		APIJSONURL:      s.APIJSONURL,
		BaseURL:         s.BaseURL,
		FrontendURL:     s.FrontendURL,
		StartedAt:       s.StartedAt,
		CompletedAt:     s.CompletedAt,
		Vulnerabilities: []Finding{},
	}
	if s.Status == StatusCompleted {
		if s.Findings != nil {
			v.Vulnerabilities = s.Findings
		}
		v.Summary = s.Summary
	}
	return v
}

// ReportView is the full stored record returned by the report endpoints.
type ReportView struct {
	*Scan
	Message  string `json:"message"`
	Duration int64  `json:"duration,omitempty"`
}

// Report wraps s with its derived message and duration in milliseconds.
func (s *Scan) Report() *ReportView {
	return &ReportView{
		Scan:     s,
		Message:  StatusMessage(s.Status, s.ErrorMessage),
		Duration: s.Duration().Milliseconds(),
	}
}
