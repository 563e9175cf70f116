package enrollment

import (
	"context"
	"errors"
	"time"

	"github.com/volatiletech/null/v8"
)

var (
	// errors
	ErrNotFound = errors.New("enrollment not found")
)

type (
	Repository interface {
		GetEnrollmentByID(ctx context.Context, id string) (Enrollment, error)
	}

	// Enrollment anchors a learner's registration in a course; owned by the
	// wider platform, read (and its progress observed) by this engine.
	Enrollment struct {
		ID                 string    `json:"id"`
		UserID             string    `json:"user_id"`
		CourseID           string    `json:"course_id"`
		ProgressPercentage float64   `json:"progress_percentage"` // 0 - 100
		EnrolledAt         time.Time `json:"enrolled_at"`
		LastAccessedAt     null.Time `json:"last_accessed_at"`
		CompletedAt        null.Time `json:"completed_at"`
		IsActive           bool      `json:"is_active"`
	}
)

// LastActivityAt reports the learner's most recent activity; inactivity is
// measured from whichever of last access or enrollment is more recent.
func (e Enrollment) LastActivityAt() time.Time {
	if e.LastAccessedAt.Valid && e.LastAccessedAt.Time.After(e.EnrolledAt) {
		return e.LastAccessedAt.Time
	}
	return e.EnrolledAt
}

// DaysInactive is the number of whole days since the last activity.
func (e Enrollment) DaysInactive(now time.Time) int {
	return int(now.Sub(e.LastActivityAt()).Hours() / 24)
}

func (e Enrollment) IsCompleted() bool { return e.CompletedAt.Valid }

// InProgress reports whether the learner has started but not finished.
func (e Enrollment) InProgress() bool {
	return e.ProgressPercentage > 0 && e.ProgressPercentage < 100
}
