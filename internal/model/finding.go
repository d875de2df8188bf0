package model

import (
	"sort"
	"strings"
)

// Severity is a finding's risk level.
type Severity string

const (
	SeverityCritical      Severity = "Critical"
	SeverityHigh          Severity = "High"
	SeverityMedium        Severity = "Medium"
	SeverityLow           Severity = "Low"
	SeverityInformational Severity = "Informational"
)

// Severities lists the levels from most to least severe.
var Severities = []Severity{SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow, SeverityInformational}

// ParseSeverity accepts a level name in any case. "info" is accepted as an
// alias for Informational.
func ParseSeverity(s string) (Severity, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "critical":
		return SeverityCritical, true
	case "high":
		return SeverityHigh, true
	case "medium":
		return SeverityMedium, true
	case "low":
		return SeverityLow, true
	case "informational", "info":
		return SeverityInformational, true
	}
	return "", false
}

// Rank orders severities: Critical is 4, Informational 0 and unknown
// values -1, so they sort after every known level.
func (s Severity) Rank() int {
	switch v, _ := ParseSeverity(string(s)); v {
	case SeverityCritical:
		return 4
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	case SeverityInformational:
		return 0
	}
	return -1
}

// AttackVector classifies client-side findings for front-end reports.
type AttackVector string

const (
	VectorXSS          AttackVector = "XSS"
	VectorCSRF         AttackVector = "CSRF"
	VectorClickjacking AttackVector = "Clickjacking"
	VectorCORS         AttackVector = "CORS"
	VectorInjection    AttackVector = "Injection"
	VectorOther        AttackVector = "Other"
)

// Finding is a single scanner alert after mapping from the scanner's format.
type Finding struct {
	Risk         Severity     `json:"risk"`
	Confidence   string       `json:"confidence"`
	Name         string       `json:"name"`
	Description  string       `json:"description"`
	Solution     string       `json:"solution"`
	Reference    string       `json:"reference"`
	URL          string       `json:"url"`
	Parameter    string       `json:"parameter"`
	Evidence     string       `json:"evidence"`
	CWEID        string       `json:"cweid"`
	WASCID       string       `json:"wascid"`
	Tags         []string     `json:"tags,omitempty"`
	ClientSide   *bool        `json:"isClientSide,omitempty"`
	AttackVector AttackVector `json:"attackVector,omitempty"`
}

// MeetsRiskFloor reports whether a finding of risk r passes a minimum-risk
// filter. An empty floor admits everything; unknown risks are held to the
// floor as Informational.
func MeetsRiskFloor(r, floor Severity) bool {
	if floor == "" {
		return true
	}
	return max(r.Rank(), 0) >= floor.Rank()
}

// FilterByRisk returns the findings at or above floor, preserving order.
func FilterByRisk(findings []Finding, floor Severity) []Finding {
	out := make([]Finding, 0, len(findings))
	for _, f := range findings {
		if MeetsRiskFloor(f.Risk, floor) {
			out = append(out, f)
		}
	}
	return out
}

// SortBySeverity orders findings most severe first with unknown risks
// last. Findings of equal severity keep their relative order.
func SortBySeverity(findings []Finding) {
	sort.SliceStable(findings, func(i, j int) bool {
		return findings[i].Risk.Rank() > findings[j].Risk.Rank()
	})
}

// SeverityCounts holds per-severity totals.
type SeverityCounts struct {
	Critical      int `json:"critical"`
	High          int `json:"high"`
	Medium        int `json:"medium"`
	Low           int `json:"low"`
	Informational int `json:"informational"`
}

// Total sums all levels.
func (c SeverityCounts) Total() int {
	return c.Critical + c.High + c.Medium + c.Low + c.Informational
}

// Of returns the count for one severity.
func (c SeverityCounts) Of(s Severity) int {
	switch s {
	case SeverityCritical:
		return c.Critical
	case SeverityHigh:
		return c.High
	case SeverityMedium:
		return c.Medium
	case SeverityLow:
		return c.Low
	}
	return c.Informational
}

// CountBySeverity tallies findings per level. Unrecognised risk values are
// counted as Informational.
func CountBySeverity(findings []Finding) SeverityCounts {
	var c SeverityCounts
	for _, f := range findings {
		switch f.Risk.Rank() {
		case 4:
			c.Critical++
		case 3:
			c.High++
		case 2:
			c.Medium++
		case 1:
			c.Low++
		default:
			c.Informational++
		}
	}
	return c
}
