package reports

import (
	"context"
	"database/sql"
	"fmt"
	"sort"

	"github.com/raysh454/zapscan/internal/model"
)

// TopFindingsLimit is how many names Stats reports as most common.
const TopFindingsLimit = 5

// Stats aggregates status totals over all scans, and severity counts, the
// most common finding names and the mean duration over COMPLETED scans.
func (s *Store) Stats(ctx context.Context) (*model.Stats, error) {
	counts, err := s.CountByStatus(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, s.rebind(`SELECT vulnerabilities FROM scans
		WHERE status = ? ORDER BY started_at ASC, created_at ASC`), string(model.StatusCompleted))
	if err != nil {
		return nil, fmt.Errorf("stats: %w", err)
	}
	defer rows.Close()

	var sets [][]model.Finding
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var findings []model.Finding
		if err := decode(raw, &findings); err != nil {
			return nil, fmt.Errorf("decode vulnerabilities: %w", err)
		}
		sets = append(sets, findings)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	st := Aggregate(sets)
	var avg sql.NullFloat64
	if err := s.db.QueryRowContext(ctx, s.rebind(`SELECT CAST(AVG(duration_seconds) AS DOUBLE PRECISION)
		FROM scans WHERE status = ?`), string(model.StatusCompleted)).Scan(&avg); err != nil {
		return nil, fmt.Errorf("stats: average duration: %w", err)
	}
	st.AverageScanDurationSeconds = avg.Float64
	for status, n := range counts {
		st.TotalScans += n
		switch status {
		case model.StatusCompleted:
			st.CompletedScans = n
		case model.StatusFailed:
			st.FailedScans = n
		case model.StatusPending:
			st.PendingScans = n
		case model.StatusInProgress:
			st.InProgressScans = n
		}
	}
	return st, nil
}

// Aggregate counts findings across scans. Names are ranked by count;
// equal counts keep the order in which the names were first seen.
func Aggregate(sets [][]model.Finding) *model.Stats {
	st := &model.Stats{MostCommonVulnerabilities: []model.NameCount{}}

	var all []model.Finding
	index := make(map[string]int)
	var names []model.NameCount
	for _, set := range sets {
		all = append(all, set...)
		for _, f := range set {
			i, ok := index[f.Name]
			if !ok {
				i = len(names)
				index[f.Name] = i
				names = append(names, model.NameCount{Name: f.Name})
			}
			names[i].Count++
		}
	}

	c := model.CountBySeverity(all)
	st.TotalVulnerabilities = c.Total()
	st.CriticalVulnerabilities = c.Critical
	st.HighVulnerabilities = c.High
	st.MediumVulnerabilities = c.Medium
	st.LowVulnerabilities = c.Low
	st.InformationalVulnerabilities = c.Informational

	sort.SliceStable(names, func(i, j int) bool { return names[i].Count > names[j].Count })
	if len(names) > TopFindingsLimit {
		names = names[:TopFindingsLimit]
	}
	st.MostCommonVulnerabilities = append(st.MostCommonVulnerabilities, names...)
	return st
}
