package model

// NameCount pairs a finding name with how often it occurred.
type NameCount struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// Stats aggregates over all stored scans.
type Stats struct {
	TotalScans                   int         `json:"totalScans"`
	CompletedScans               int         `json:"completedScans"`
	FailedScans                  int         `json:"failedScans"`
	PendingScans                 int         `json:"pendingScans"`
	InProgressScans              int         `json:"inProgressScans"`
	TotalVulnerabilities         int         `json:"totalVulnerabilities"`
	CriticalVulnerabilities      int         `json:"criticalVulnerabilities"`
	HighVulnerabilities          int         `json:"highVulnerabilities"`
	MediumVulnerabilities        int         `json:"mediumVulnerabilities"`
	LowVulnerabilities           int         `json:"lowVulnerabilities"`
	InformationalVulnerabilities int         `json:"informationalVulnerabilities"`
	MostCommonVulnerabilities    []NameCount `json:"mostCommonVulnerabilities"`
	AverageScanDurationSeconds   float64     `json:"averageScanDurationSeconds"`
}
