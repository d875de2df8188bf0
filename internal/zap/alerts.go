package zap

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strconv"

	"github.com/raysh454/zapscan/internal/model"
)

const alertPageSize = 500

// flexString decodes a JSON string or number into a string. ZAP reports
// ids such as cweid as strings on most versions and as numbers on some.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}

// Alert is an entry of core/view/alerts as the scanner returns it.
type Alert struct {
	Alert       string            `json:"alert"`
	Name        string            `json:"name"`
	Risk        string            `json:"risk"`
	Confidence  string            `json:"confidence"`
	Description string            `json:"description"`
	Solution    string            `json:"solution"`
	Reference   string            `json:"reference"`
	URL         string            `json:"url"`
	Param       string            `json:"param"`
	Evidence    string            `json:"evidence"`
	CWEID       flexString        `json:"cweid"`
	WASCID      flexString        `json:"wascid"`
	PluginID    flexString        `json:"pluginId"`
	Method      string            `json:"method"`
	Tags        map[string]string `json:"tags"`
}

// MapAlert converts a scanner alert into a Finding. Fields map one to one
// except param, which becomes Parameter. Tag keys are kept, sorted.
func MapAlert(a Alert) model.Finding {
	name := a.Name
	if name == "" {
		name = a.Alert
	}
	f := model.Finding{
		Risk:        model.Severity(a.Risk),
		Confidence:  a.Confidence,
		Name:        name,
		Description: a.Description,
		Solution:    a.Solution,
		Reference:   a.Reference,
		URL:         a.URL,
		Parameter:   a.Param,
		Evidence:    a.Evidence,
		CWEID:       string(a.CWEID),
		WASCID:      string(a.WASCID),
	}
	if len(a.Tags) > 0 {
		f.Tags = make([]string, 0, len(a.Tags))
		for k := range a.Tags {
			f.Tags = append(f.Tags, k)
		}
		sort.Strings(f.Tags)
	}
	return f
}

// MapAlerts maps every alert, preserving order.
func MapAlerts(alerts []Alert) []model.Finding {
	out := make([]model.Finding, 0, len(alerts))
	for _, a := range alerts {
		out = append(out, MapAlert(a))
	}
	return out
}

// FetchFindings returns every alert recorded under baseURL, paging through
// core/view/alerts.
func (c *Client) FetchFindings(ctx context.Context, baseURL string) ([]model.Finding, error) {
	var all []Alert
	for start := 0; ; start += alertPageSize {
		res, err := c.view(ctx, "core", "alerts", url.Values{
			"baseurl": {baseURL},
			"start":   {strconv.Itoa(start)},
			"count":   {strconv.Itoa(alertPageSize)},
		})
		if err != nil {
			return nil, err
		}
		var page []Alert
		if raw, ok := res["alerts"]; ok {
			if err := json.Unmarshal(raw, &page); err != nil {
				return nil, fmt.Errorf("zap core/view/alerts: decode alerts: %w", err)
			}
		}
		all = append(all, page...)
		if len(page) < alertPageSize {
			break
		}
	}
	return MapAlerts(all), nil
}
