package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/ratiba/core/enrollment"
	"github.com/trezcool/ratiba/core/reminder"
	"github.com/trezcool/ratiba/core/user"
)

type reminderRepository struct {
	db *sqlx.DB
}

var _ reminder.Repository = (*reminderRepository)(nil)

func NewReminderRepository(db *sqlx.DB) *reminderRepository {
	return &reminderRepository{db: db}
}

type candidateRow struct {
	EnrollmentID       string       `db:"enrollment_id"`
	UserID             string       `db:"user_id"`
	CourseID           string       `db:"course_id"`
	ProgressPercentage float64      `db:"progress_percentage"`
	EnrolledAt         time.Time    `db:"enrolled_at"`
	LastAccessedAt     sql.NullTime `db:"last_accessed_at"`
	EnrollmentActive   bool         `db:"enrollment_active"`
	UserName           string       `db:"user_name"`
	UserEmail          string       `db:"user_email"`
	UserActive         bool         `db:"user_active"`
	EmailVerified      bool         `db:"email_verified"`
	CourseTitle        string       `db:"course_title"`
}

func (r candidateRow) toCandidate() reminder.Candidate {
	return reminder.Candidate{
		Enrollment: enrollment.Enrollment{
			ID:                 r.EnrollmentID,
			UserID:             r.UserID,
			CourseID:           r.CourseID,
			ProgressPercentage: r.ProgressPercentage,
			EnrolledAt:         r.EnrolledAt,
			LastAccessedAt:     null.NewTime(r.LastAccessedAt.Time, r.LastAccessedAt.Valid),
			IsActive:           r.EnrollmentActive,
		},
		User: user.User{
			ID:            r.UserID,
			Name:          r.UserName,
			Email:         r.UserEmail,
			IsActive:      r.UserActive,
			EmailVerified: r.EmailVerified,
		},
		CourseTitle: r.CourseTitle,
	}
}

// candidateBaseQuery selects notifiable, active, in-progress, unfinished
// enrollments joined with the template data. Callers append the inactivity
// predicate; $1 is `now`, the anchor for inactivity arithmetic.
const candidateBaseQuery = `
	SELECT e.id AS enrollment_id, e.user_id, e.course_id, e.progress_percentage,
		e.enrolled_at, e.last_accessed_at, e.is_active AS enrollment_active,
		u.name AS user_name, u.email AS user_email, u.is_active AS user_active, u.email_verified,
		c.title AS course_title
	FROM enrollments e
	JOIN users u ON u.id = e.user_id
	JOIN courses c ON c.id = e.course_id
	WHERE e.is_active = true
		AND e.completed_at IS NULL
		AND e.progress_percentage > 0 AND e.progress_percentage < 100
		AND u.is_active = true AND u.email_verified = true AND u.email <> ''`

// inactiveDays is whole days since GREATEST(last_accessed_at, enrolled_at).
const inactiveDays = `floor(extract(epoch FROM ($1 - GREATEST(COALESCE(e.last_accessed_at, e.enrolled_at), e.enrolled_at))) / 86400)`

func (repo reminderRepository) FindInactiveExact(ctx context.Context, days int, now time.Time) ([]reminder.Candidate, error) {
	var rows []candidateRow
	err := repo.db.SelectContext(ctx, &rows, candidateBaseQuery+`
		AND `+inactiveDays+` = $2
		ORDER BY GREATEST(COALESCE(e.last_accessed_at, e.enrolled_at), e.enrolled_at) DESC`,
		now, days)
	if err != nil {
		return nil, errors.Wrapf(err, "querying enrollments inactive for %d days", days)
	}
	return toCandidates(rows), nil
}

func (repo reminderRepository) FindRecurringCandidates(ctx context.Context, now time.Time) ([]reminder.Candidate, error) {
	var rows []candidateRow
	err := repo.db.SelectContext(ctx, &rows, candidateBaseQuery+`
		AND `+inactiveDays+` >= $2
		ORDER BY GREATEST(COALESCE(e.last_accessed_at, e.enrolled_at), e.enrolled_at) DESC`,
		now, reminder.RecurringBaseDays+reminder.RecurringIntervalDays)
	if err != nil {
		return nil, errors.Wrap(err, "querying recurring reminder candidates")
	}
	return toCandidates(rows), nil
}

func toCandidates(rows []candidateRow) []reminder.Candidate {
	candidates := make([]reminder.Candidate, 0, len(rows))
	for _, row := range rows {
		candidates = append(candidates, row.toCandidate())
	}
	return candidates
}

func (repo reminderRepository) AnyLogSince(ctx context.Context, enrollmentID string, days int, since time.Time) (bool, error) {
	var exists bool
	err := repo.db.GetContext(ctx, &exists, `
		SELECT EXISTS (
			SELECT 1 FROM reminder_logs
			WHERE enrollment_id = $1 AND reminder_days = $2 AND sent_at >= $3
		)`, enrollmentID, days, since)
	return exists, errors.Wrap(err, "checking reminder log existence")
}

func (repo reminderRepository) LastSuccessfulLog(ctx context.Context, enrollmentID string, days int) (reminder.Log, error) {
	var row struct {
		ID           string    `db:"id"`
		EnrollmentID string    `db:"enrollment_id"`
		ReminderDays int       `db:"reminder_days"`
		SentAt       time.Time `db:"sent_at"`
		Success      bool      `db:"success"`
	}
	err := repo.db.GetContext(ctx, &row, `
		SELECT id, enrollment_id, reminder_days, sent_at, success
		FROM reminder_logs
		WHERE enrollment_id = $1 AND reminder_days = $2 AND success = true
		ORDER BY sent_at DESC LIMIT 1`, enrollmentID, days)
	if err != nil {
		if err == sql.ErrNoRows {
			return reminder.Log{}, reminder.ErrLogNotFound
		}
		return reminder.Log{}, errors.Wrap(err, "querying last successful reminder log")
	}
	return reminder.Log(row), nil
}

func (repo reminderRepository) CreateLog(ctx context.Context, entry reminder.Log) (reminder.Log, error) {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	_, err := repo.db.ExecContext(ctx, `
		INSERT INTO reminder_logs (id, enrollment_id, reminder_days, sent_at, success)
		VALUES ($1, $2, $3, $4, $5)`,
		entry.ID, entry.EnrollmentID, entry.ReminderDays, entry.SentAt, entry.Success)
	if err != nil {
		return reminder.Log{}, errors.Wrap(err, "inserting reminder log")
	}
	return entry, nil
}

// scheduler_state is a single-row table keyed on a fixed id.
const schedulerStateID = "scheduler"

func (repo reminderRepository) GetSchedulerState(ctx context.Context) (reminder.SchedulerState, error) {
	var lastRun sql.NullTime
	err := repo.db.GetContext(ctx, &lastRun, `
		SELECT last_run_at FROM scheduler_state WHERE id = $1`, schedulerStateID)
	if err != nil {
		if err == sql.ErrNoRows {
			return reminder.SchedulerState{}, nil
		}
		return reminder.SchedulerState{}, errors.Wrap(err, "querying scheduler state")
	}
	return reminder.SchedulerState{LastRunAt: null.NewTime(lastRun.Time, lastRun.Valid)}, nil
}

func (repo reminderRepository) SaveSchedulerState(ctx context.Context, state reminder.SchedulerState) error {
	_, err := repo.db.ExecContext(ctx, `
		INSERT INTO scheduler_state (id, last_run_at) VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET last_run_at = EXCLUDED.last_run_at`,
		schedulerStateID, state.LastRunAt.Ptr())
	return errors.Wrap(err, "saving scheduler state")
}
