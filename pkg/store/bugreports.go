package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/hypley-ia/hypley-live/pkg/core"
)

// Bug report statuses.
const (
	BugStatusOpen     = "open"
	BugStatusReviewed = "reviewed"
	BugStatusResolved = "resolved"
)

// BugReport is one user-filed report, optionally with a screenshot.
type BugReport struct {
	ID            string
	UserID        string
	Description   string
	ScreenshotURL string
	Status        string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

const bugReportColumns = `id, user_id, description, screenshot_url, status, created_at, updated_at`

func scanBugReport(row pgx.Row) (BugReport, error) {
	var b BugReport
	err := row.Scan(&b.ID, &b.UserID, &b.Description, &b.ScreenshotURL, &b.Status, &b.CreatedAt, &b.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return BugReport{}, core.NewNotFoundError("bug report not found")
	}
	if err != nil {
		return BugReport{}, fmt.Errorf("store: scan bug report: %w", err)
	}
	return b, nil
}

// CreateBugReport files a report.
func (s *Store) CreateBugReport(ctx context.Context, userID, description, screenshotURL string) (BugReport, error) {
	if description == "" {
		return BugReport{}, core.NewInvalidRequestErrorWithParam("description is required", "description")
	}
	row := s.pool.QueryRow(ctx, `
		INSERT INTO bug_reports (id, user_id, description, screenshot_url)
		VALUES ($1, $2, $3, $4)
		RETURNING `+bugReportColumns,
		uuid.NewString(), userID, description, screenshotURL)
	return scanBugReport(row)
}

// ListBugReports returns all reports, newest first. Admin surface.
func (s *Store) ListBugReports(ctx context.Context) ([]BugReport, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+bugReportColumns+` FROM bug_reports ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("store: list bug reports: %w", err)
	}
	defer rows.Close()

	var out []BugReport
	for rows.Next() {
		b, err := scanBugReport(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// SetBugReportStatus moves a report through review.
func (s *Store) SetBugReportStatus(ctx context.Context, id, status string) error {
	switch status {
	case BugStatusOpen, BugStatusReviewed, BugStatusResolved:
	default:
		return core.NewInvalidRequestErrorWithParam("unknown status "+status, "status")
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE bug_reports SET status = $2, updated_at = now() WHERE id = $1`,
		id, status)
	if err != nil {
		return core.NewPersistenceError("bug report update failed", err)
	}
	if tag.RowsAffected() == 0 {
		return core.NewNotFoundError("bug report not found")
	}
	return nil
}
