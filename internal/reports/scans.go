package reports

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/raysh454/zapscan/internal/logging"
	"github.com/raysh454/zapscan/internal/model"
)

const scanColumns = `id, kind, api_json_url, base_url, frontend_url, status, endpoints,
	vulnerabilities, scan_options, summary, error_message, scanner_version,
	assigned_to, notes, tags, started_at, completed_at, created_at, updated_at`

// Completion is what a successful scan writes.
type Completion struct {
	Findings       []model.Finding
	Summary        model.Summary
	ScannerVersion string
	CompletedAt    time.Time
}

// Create inserts a new scan record.
func (s *Store) Create(ctx context.Context, scan *model.Scan) error {
	if scan.ID == "" {
		return fmt.Errorf("scan id is required")
	}
	if !scan.Status.Valid() {
		return fmt.Errorf("invalid status %q", scan.Status)
	}

	var exists int
	err := s.db.QueryRowContext(ctx, s.rebind(`SELECT 1 FROM scans WHERE id = ?`), scan.ID).Scan(&exists)
	if err == nil {
		return ErrDuplicateScan
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("check scan %s: %w", scan.ID, err)
	}

	now := s.now().UTC()
	if scan.StartedAt.IsZero() {
		scan.StartedAt = now
	}
	scan.CreatedAt = now
	scan.UpdatedAt = now

	var completed sql.NullInt64
	if scan.CompletedAt != nil {
		completed = sql.NullInt64{Int64: millis(*scan.CompletedAt), Valid: true}
	}

	_, err = s.db.ExecContext(ctx, s.rebind(`INSERT INTO scans (`+scanColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		scan.ID, string(scan.Kind), scan.APIJSONURL, scan.BaseURL, scan.FrontendURL, string(scan.Status),
		encode(scan.Endpoints, "[]"), encode(scan.Findings, "[]"), encode(scan.Config, "{}"), nullableJSON(scan.Summary),
		scan.ErrorMessage, scan.ScannerVersion,
		scan.Triage.AssignedTo, scan.Triage.Notes, encode(scan.Triage.Tags, "[]"),
		millis(scan.StartedAt), completed, millis(now), millis(now))
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateScan
		}
		return fmt.Errorf("insert scan %s: %w", scan.ID, err)
	}
	return nil
}

// Get returns the scan with id.
func (s *Store) Get(ctx context.Context, id string) (*model.Scan, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(`SELECT `+scanColumns+` FROM scans WHERE id = ?`), id)
	scan, err := scanRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrScanNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get scan %s: %w", id, err)
	}
	return scan, nil
}

// MarkInProgress moves a PENDING scan to IN_PROGRESS.
func (s *Store) MarkInProgress(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, s.rebind(`UPDATE scans SET status = ?, updated_at = ?
		WHERE id = ? AND status = ?`),
		string(model.StatusInProgress), millis(s.now()), id, string(model.StatusPending))
	if err != nil {
		return fmt.Errorf("mark scan %s in progress: %w", id, err)
	}
	return s.checkTransition(ctx, res, id, model.StatusInProgress)
}

// Complete writes findings and summary and moves a non-terminal scan to
// COMPLETED.
func (s *Store) Complete(ctx context.Context, id string, c Completion) error {
	at := c.CompletedAt
	if at.IsZero() {
		at = s.now()
	}
	res, err := s.db.ExecContext(ctx, s.rebind(`UPDATE scans SET status = ?, vulnerabilities = ?, summary = ?,
		scanner_version = ?, completed_at = ?, duration_seconds = (? - started_at) / 1000, updated_at = ?
		WHERE id = ? AND status IN (?, ?)`),
		string(model.StatusCompleted), encode(c.Findings, "[]"), nullableJSON(&c.Summary),
		c.ScannerVersion, millis(at), millis(at), millis(s.now()),
		id, string(model.StatusPending), string(model.StatusInProgress))
	if err != nil {
		return fmt.Errorf("complete scan %s: %w", id, err)
	}
	return s.checkTransition(ctx, res, id, model.StatusCompleted)
}

// Fail records message and moves a non-terminal scan to FAILED.
func (s *Store) Fail(ctx context.Context, id, message string, at time.Time) error {
	if at.IsZero() {
		at = s.now()
	}
	res, err := s.db.ExecContext(ctx, s.rebind(`UPDATE scans SET status = ?, error_message = ?,
		completed_at = ?, duration_seconds = (? - started_at) / 1000, updated_at = ?
		WHERE id = ? AND status IN (?, ?)`),
		string(model.StatusFailed), message, millis(at), millis(at), millis(s.now()),
		id, string(model.StatusPending), string(model.StatusInProgress))
	if err != nil {
		return fmt.Errorf("fail scan %s: %w", id, err)
	}
	return s.checkTransition(ctx, res, id, model.StatusFailed)
}

func (s *Store) checkTransition(ctx context.Context, res sql.Result, id string, to model.Status) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n > 0 {
		return nil
	}
	cur, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	s.logger.Warn("refused status transition",
		logging.Field{Key: "scan_id", Value: id},
		logging.Field{Key: "from", Value: string(cur.Status)},
		logging.Field{Key: "to", Value: string(to)})
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, cur.Status, to)
}

// Recent returns up to limit scans, newest start first.
func (s *Store) Recent(ctx context.Context, limit int) ([]*model.Scan, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx, s.rebind(`SELECT `+scanColumns+` FROM scans
		ORDER BY started_at DESC, created_at DESC LIMIT ?`), limit)
	if err != nil {
		return nil, fmt.Errorf("recent scans: %w", err)
	}
	defer rows.Close()

	var out []*model.Scan
	for rows.Next() {
		scan, err := scanRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		out = append(out, scan)
	}
	return out, rows.Err()
}

// CountByStatus returns how many scans are in each status.
func (s *Store) CountByStatus(ctx context.Context) (map[model.Status]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM scans GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count by status: %w", err)
	}
	defer rows.Close()

	out := make(map[model.Status]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		out[model.Status(status)] = n
	}
	return out, rows.Err()
}

// UpdateTriage applies reviewer fields to a scan in any status.
func (s *Store) UpdateTriage(ctx context.Context, id string, upd model.TriageUpdate) (*model.Scan, error) {
	scan, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	scan.Triage = upd.Apply(scan.Triage)
	now := s.now().UTC()

	_, err = s.db.ExecContext(ctx, s.rebind(`UPDATE scans SET assigned_to = ?, notes = ?, tags = ?, updated_at = ?
		WHERE id = ?`),
		scan.Triage.AssignedTo, scan.Triage.Notes, encode(scan.Triage.Tags, "[]"), millis(now), id)
	if err != nil {
		return nil, fmt.Errorf("update triage %s: %w", id, err)
	}
	scan.UpdatedAt = now
	return scan, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRow(r rowScanner) (*model.Scan, error) {
	var (
		scan                            model.Scan
		kind, status                    string
		endpoints, vulns, options, tags string
		summary                         sql.NullString
		startedAt, createdAt, updatedAt int64
		completedAt                     sql.NullInt64
	)
	err := r.Scan(&scan.ID, &kind, &scan.APIJSONURL, &scan.BaseURL, &scan.FrontendURL, &status,
		&endpoints, &vulns, &options, &summary, &scan.ErrorMessage, &scan.ScannerVersion,
		&scan.Triage.AssignedTo, &scan.Triage.Notes, &tags,
		&startedAt, &completedAt, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	scan.Kind = model.ScanKind(kind)
	scan.Status = model.Status(status)
	if err := decode(endpoints, &scan.Endpoints); err != nil {
		return nil, fmt.Errorf("decode endpoints: %w", err)
	}
	if err := decode(vulns, &scan.Findings); err != nil {
		return nil, fmt.Errorf("decode vulnerabilities: %w", err)
	}
	if err := decode(options, &scan.Config); err != nil {
		return nil, fmt.Errorf("decode scan options: %w", err)
	}
	if err := decode(tags, &scan.Triage.Tags); err != nil {
		return nil, fmt.Errorf("decode tags: %w", err)
	}
	if summary.Valid && summary.String != "" {
		scan.Summary = &model.Summary{}
		if err := decode(summary.String, scan.Summary); err != nil {
			return nil, fmt.Errorf("decode summary: %w", err)
		}
	}

	scan.StartedAt = fromMillis(startedAt)
	scan.CreatedAt = fromMillis(createdAt)
	scan.UpdatedAt = fromMillis(updatedAt)
	if completedAt.Valid {
		t := fromMillis(completedAt.Int64)
		scan.CompletedAt = &t
	}
	return &scan, nil
}

func encode(v interface{}, empty string) string {
	b, err := json.Marshal(v)
	if err != nil || string(b) == "null" {
		return empty
	}
	return string(b)
}

func nullableJSON(v *model.Summary) sql.NullString {
	if v == nil {
		return sql.NullString{}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}
	}
	return sql.NullString{String: string(b), Valid: true}
}

func decode(s string, dst interface{}) error {
	if s == "" {
		return nil
	}
	return json.Unmarshal([]byte(s), dst)
}

func isUniqueViolation(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique") || strings.Contains(msg, "duplicate key")
}
