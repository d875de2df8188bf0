package zapstub

import "github.com/raysh454/zapscan/internal/zap"

// Config scripts the fake scanner's behaviour.
type Config struct {
	// Port is the port Start listens on.
	Port int

	// APIKey, when set, must accompany every request.
	APIKey string

	// Version is reported by core/view/version.
	Version string

	// ScanProgress is the sequence of percentages ascan/view/status returns
	// for each scan; the last value repeats.
	ScanProgress []int

	// SpiderProgress is the same for spider/view/status.
	SpiderProgress []int

	// AjaxRunningPolls is how many ajaxSpider/view/status calls report
	// "running" before "stopped".
	AjaxRunningPolls int

	// PassiveRecords is the sequence returned by pscan/view/recordsToScan.
	PassiveRecords []int

	// RejectImportURL makes openapi/action/importUrl fail so callers fall
	// back to importFile.
	RejectImportURL bool

	// RejectAPIScan makes ascan/action/scan fail when a scan policy is
	// named, which forces the per-endpoint path.
	RejectAPIScan bool

	// Alerts is what core/view/alerts serves, filtered by baseurl prefix.
	Alerts []zap.Alert
}

// DefaultConfig returns a Config with a short, successful script.
func DefaultConfig() Config {
	return Config{
		Port:             8090,
		Version:          "2.14.0",
		ScanProgress:     []int{25, 60, 100},
		SpiderProgress:   []int{50, 100},
		AjaxRunningPolls: 1,
		PassiveRecords:   []int{4, 0},
		Alerts:           DemoAlerts("http://localhost:3000"),
	}
}

// DemoAlerts returns a small alert set rooted at base.
func DemoAlerts(base string) []zap.Alert {
	return []zap.Alert{
		{
			Alert:       "SQL Injection",
			Name:        "SQL Injection",
			Risk:        "High",
			Confidence:  "Medium",
			Description: "SQL injection may be possible.",
			Solution:    "Use parameterised queries.",
			Reference:   "https://owasp.org/www-community/attacks/SQL_Injection\nhttps://cwe.mitre.org/data/definitions/89.html",
			URL:         base + "/users?id=1",
			Param:       "id",
			Evidence:    "syntax error",
			CWEID:       "89",
			WASCID:      "19",
			Tags:        map[string]string{"OWASP_2021_A03": "https://owasp.org/Top10/A03_2021-Injection/"},
		},
		{
			Alert:       "Cross Site Scripting (Reflected)",
			Name:        "Cross Site Scripting (Reflected)",
			Risk:        "Medium",
			Confidence:  "Low",
			Description: "Reflected XSS.",
			Solution:    "Encode output.",
			URL:         base + "/search?q=x",
			Param:       "q",
			CWEID:       "79",
			WASCID:      "8",
		},
		{
			Alert:       "Server Leaks Version Information",
			Name:        "Server Leaks Version Information",
			Risk:        "Low",
			Confidence:  "High",
			Description: "The server header reveals a version.",
			URL:         base + "/",
			CWEID:       "200",
			WASCID:      "13",
		},
	}
}
