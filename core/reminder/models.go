package reminder

import (
	"context"
	"errors"
	"time"

	"github.com/volatiletech/null/v8"

	"github.com/trezcool/ratiba/core/enrollment"
	"github.com/trezcool/ratiba/core/user"
)

var (
	// errors
	ErrLogNotFound = errors.New("reminder log not found")
)

// Inactivity tiers, processed in this order. The last tier additionally
// seeds the open-ended recurring regime: every 14 days past the first
// 14-day reminder (28, 42, 56, ...).
var Tiers = []int{3, 7, 14}

const (
	RecurringBaseDays     = 14
	RecurringIntervalDays = 14

	// resendCooldown guards the non-recurring tiers against double-sends
	// from overlapping scheduler runs.
	resendCooldown = 24 * time.Hour
)

type (
	Repository interface {
		// FindInactiveExact lists active, unfinished, in-progress enrollments
		// whose owner can be notified and whose inactivity equals `days`
		// exactly, ordered by time since last activity ascending.
		FindInactiveExact(ctx context.Context, days int, now time.Time) ([]Candidate, error)
		// FindRecurringCandidates lists enrollments inactive for 28+ days,
		// same base filters as FindInactiveExact.
		FindRecurringCandidates(ctx context.Context, now time.Time) ([]Candidate, error)
		// AnyLogSince reports whether any log row (successful or attempted)
		// exists for the pair since the given time.
		AnyLogSince(ctx context.Context, enrollmentID string, days int, since time.Time) (bool, error)
		// LastSuccessfulLog returns the most recent successful log row for
		// the pair, or ErrLogNotFound.
		LastSuccessfulLog(ctx context.Context, enrollmentID string, days int) (Log, error)
		CreateLog(ctx context.Context, entry Log) (Log, error)

		GetSchedulerState(ctx context.Context) (SchedulerState, error)
		SaveSchedulerState(ctx context.Context, state SchedulerState) error
	}

	// Log is the append-only dedup record of a reminder attempt.
	Log struct {
		ID           string    `json:"id"`
		EnrollmentID string    `json:"enrollment_id"`
		ReminderDays int       `json:"reminder_days"`
		SentAt       time.Time `json:"sent_at"`
		Success      bool      `json:"success"`
	}

	// Candidate is an enrollment eligible for a reminder tier, joined with
	// the data the notification template needs.
	Candidate struct {
		Enrollment  enrollment.Enrollment `json:"enrollment"`
		User        user.User             `json:"user"`
		CourseTitle string                `json:"course_title"`
	}

	// SchedulerState anchors the daemon's schedule across process restarts.
	SchedulerState struct {
		LastRunAt null.Time `json:"last_run_at"`
	}

	// TierStats aggregates one tier's outcomes within a run.
	TierStats struct {
		Period    int  `json:"period"`
		Recurring bool `json:"is_recurring"`
		Total     int  `json:"total"`
		Success   int  `json:"success"`
		Failure   int  `json:"failure"`
		Skipped   int  `json:"skipped"`
	}

	// Stats aggregates a full run, one TierStats per tier in processing order.
	Stats struct {
		TotalEnrollments int         `json:"total_enrollments"`
		TotalSuccess     int         `json:"total_success"`
		TotalFailure     int         `json:"total_failure"`
		TotalSkipped     int         `json:"total_skipped"`
		Periods          []TierStats `json:"periods"`
	}
)

func (s *Stats) add(ts TierStats) {
	s.TotalEnrollments += ts.Total
	s.TotalSuccess += ts.Success
	s.TotalFailure += ts.Failure
	s.TotalSkipped += ts.Skipped
	s.Periods = append(s.Periods, ts)
}
