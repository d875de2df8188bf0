package model_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/raysh454/zapscan/internal/model"
)

func TestParseSeverity(t *testing.T) {
	t.Parallel()
	cases := map[string]model.Severity{
		"critical":      model.SeverityCritical,
		"HIGH":          model.SeverityHigh,
		" Medium ":      model.SeverityMedium,
		"low":           model.SeverityLow,
		"Informational": model.SeverityInformational,
		"info":          model.SeverityInformational,
	}
	for in, want := range cases {
		got, ok := model.ParseSeverity(in)
		assert.True(t, ok, in)
		assert.Equal(t, want, got, in)
	}
	_, ok := model.ParseSeverity("severe")
	assert.False(t, ok)
}

func TestFilterByRisk_HighFloorKeepsHighAndCritical(t *testing.T) {
	t.Parallel()
	findings := []model.Finding{
		{Name: "a", Risk: model.SeverityLow},
		{Name: "b", Risk: model.SeverityCritical},
		{Name: "c", Risk: model.SeverityMedium},
		{Name: "d", Risk: model.SeverityHigh},
		{Name: "e", Risk: model.SeverityInformational},
	}

	got := model.FilterByRisk(findings, model.SeverityHigh)

	assert.Len(t, got, 2)
	assert.Equal(t, "b", got[0].Name)
	assert.Equal(t, "d", got[1].Name)
}

func TestFilterByRisk_EmptyFloorKeepsAll(t *testing.T) {
	t.Parallel()
	findings := []model.Finding{{Risk: model.SeverityInformational}, {Risk: "Weird"}}
	assert.Len(t, model.FilterByRisk(findings, ""), 2)
}

func TestSortBySeverity_Stable(t *testing.T) {
	t.Parallel()
	findings := []model.Finding{
		{Name: "low1", Risk: model.SeverityLow},
		{Name: "high1", Risk: model.SeverityHigh},
		{Name: "low2", Risk: model.SeverityLow},
		{Name: "high2", Risk: model.SeverityHigh},
	}
	model.SortBySeverity(findings)

	var names []string
	for _, f := range findings {
		names = append(names, f.Name)
	}
	assert.Equal(t, []string{"high1", "high2", "low1", "low2"}, names)
}

func TestSortBySeverity_UnknownLast(t *testing.T) {
	t.Parallel()
	findings := []model.Finding{
		{Name: "odd", Risk: "Bogus"},
		{Name: "info", Risk: model.SeverityInformational},
		{Name: "crit", Risk: model.SeverityCritical},
	}
	model.SortBySeverity(findings)

	var names []string
	for _, f := range findings {
		names = append(names, f.Name)
	}
	assert.Equal(t, []string{"crit", "info", "odd"}, names)
	assert.True(t, model.MeetsRiskFloor("Bogus", model.SeverityInformational))
	assert.False(t, model.MeetsRiskFloor("Bogus", model.SeverityLow))
}

func TestCountBySeverity_UnknownIsInformational(t *testing.T) {
	t.Parallel()
	c := model.CountBySeverity([]model.Finding{
		{Risk: model.SeverityCritical},
		{Risk: model.SeverityHigh},
		{Risk: model.SeverityHigh},
		{Risk: "Unknown"},
	})
	assert.Equal(t, model.SeverityCounts{Critical: 1, High: 2, Informational: 1}, c)
	assert.Equal(t, 4, c.Total())
	assert.Equal(t, 2, c.Of(model.SeverityHigh))
}

func TestAnnotate(t *testing.T) {
	t.Parallel()
	findings := []model.Finding{
		{Name: "Cross Site Scripting (DOM Based)"},
		{Name: "Absence of Anti-CSRF Tokens"},
		{Name: "Missing Anti-clickjacking Header"},
		{Name: "X-Frame-Options Header Not Set"},
		{Name: "SQL Injection"},
		{Name: "Server Leaks Version", Tags: []string{"OWASP_2021_A05"}},
		{Name: "Generic", Tags: []string{"CLIENT-SIDE"}},
	}
	model.Annotate(findings)

	want := []struct {
		client bool
		vector model.AttackVector
	}{
		{true, model.VectorXSS},
		{true, model.VectorCSRF},
		{false, model.VectorClickjacking},
		{false, model.VectorClickjacking},
		{false, model.VectorInjection},
		{false, model.VectorOther},
		{true, model.VectorOther},
	}
	for i, w := range want {
		if assert.NotNil(t, findings[i].ClientSide, findings[i].Name) {
			assert.Equal(t, w.client, *findings[i].ClientSide, findings[i].Name)
		}
		assert.Equal(t, w.vector, findings[i].AttackVector, findings[i].Name)
	}
}
