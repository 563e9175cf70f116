package calendar

import (
	"context"
	"errors"
	"time"

	"github.com/volatiletech/null/v8"

	"github.com/trezcool/ratiba/core"
	"github.com/trezcool/ratiba/core/schedule"
)

var (
	// errors
	ErrNotFound = errors.New("calendar event not found")
)

type (
	Repository interface {
		CreateEvent(ctx context.Context, ev Event) (Event, error)
		GetEventByID(ctx context.Context, id string) (Event, error)
		GetEventByItemID(ctx context.Context, itemID string) (Event, error)
		// AppendEventDescription appends a note to the event's description,
		// never overwriting what is already there.
		AppendEventDescription(ctx context.Context, eventID, note string) error
		UpdateEventSchedule(ctx context.Context, eventID string, start, end time.Time) error
		// OrphanItems lists schedule items that have no calendar event yet,
		// paired with their owning user for event attribution.
		OrphanItems(ctx context.Context) ([]OrphanItem, error)
	}

	// Event is the user-facing calendar projection of a schedule item.
	// Updated as the item changes; never deleted.
	Event struct {
		ID             string      `json:"id"`
		ScheduleItemID null.String `json:"schedule_item_id,omitempty"`
		Title          string      `json:"title"`
		Description    string      `json:"description"`
		EventType      string      `json:"event_type"`
		StartDate      time.Time   `json:"start_date"`
		EndDate        time.Time   `json:"end_date"`
		CourseID       string      `json:"course_id"`
		CreatedBy      string      `json:"created_by"`
		AutoSync       bool        `json:"auto_sync"`
		CreatedAt      time.Time   `json:"created_at"`
		UpdatedAt      time.Time   `json:"updated_at"`
	}

	OrphanItem struct {
		ItemID string `json:"item_id"`
		UserID string `json:"user_id"`
	}

	// ProgressEvent is an inbound lesson/quiz completion from the platform.
	ProgressEvent struct {
		Type         string    `json:"type" validate:"required,oneof=lesson_completed quiz_completed"`
		EnrollmentID string    `json:"enrollment_id" validate:"required"`
		LessonID     string    `json:"lesson_id,omitempty"`
		QuizID       string    `json:"quiz_id,omitempty"`
		ModuleID     string    `json:"module_id,omitempty"`
		CompletedAt  time.Time `json:"completed_at,omitempty"` // defaults to now
	}

	// EventUpdate carries a learner's manual calendar edit; both fields are
	// optional and applied independently to the linked schedule item.
	EventUpdate struct {
		NewDate   *time.Time
		NewStatus *schedule.ItemStatus
	}
)

func (ev *ProgressEvent) Validate() error {
	if err := core.Validate.Struct(ev); err != nil {
		return err
	}
	ref := ev.ContentRef()
	if ref.IsZero() {
		return core.NewValidationError(
			errors.New("a lesson or quiz reference is required"),
			core.FieldError{Field: "lesson_id", Error: "one of lesson_id or quiz_id is required"},
		)
	}
	return nil
}

func (ev ProgressEvent) ContentRef() schedule.ContentRef {
	return schedule.ContentRef{LessonID: ev.LessonID, QuizID: ev.QuizID}
}

func (u EventUpdate) IsZero() bool { return u.NewDate == nil && u.NewStatus == nil }
