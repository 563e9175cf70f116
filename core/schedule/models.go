package schedule

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/volatiletech/null/v8"

	"github.com/trezcool/ratiba/core"
)

var (
	// errors
	ErrItemNotFound        = errors.New("schedule item not found")
	ErrPreferencesNotFound = errors.New("learner preferences not found")
)

// ItemType qualifies a planned unit of study.
type ItemType string

const (
	ItemLesson    ItemType = "lesson"
	ItemQuiz      ItemType = "quiz"
	ItemMilestone ItemType = "milestone"
	ItemDeadline  ItemType = "deadline"
	ItemReminder  ItemType = "reminder"
)

func (t ItemType) IsValid() bool {
	switch t {
	case ItemLesson, ItemQuiz, ItemMilestone, ItemDeadline, ItemReminder:
		return true
	}
	return false
}

// ItemStatus is the lifecycle state of a schedule item.
type ItemStatus string

const (
	StatusPending   ItemStatus = "pending"
	StatusCompleted ItemStatus = "completed"
	StatusOverdue   ItemStatus = "overdue"
)

func (s ItemStatus) IsValid() bool {
	switch s {
	case StatusPending, StatusCompleted, StatusOverdue:
		return true
	}
	return false
}

// CanTransitionTo enforces the item state machine:
// pending -> completed | overdue; overdue -> completed; completed is terminal.
func (s ItemStatus) CanTransitionTo(to ItemStatus) bool {
	switch s {
	case StatusPending:
		return to == StatusCompleted || to == StatusOverdue
	case StatusOverdue:
		return to == StatusCompleted
	}
	return false
}

type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// StudyMode affects the pacing of a generated plan.
type StudyMode string

const (
	ModeIntensive StudyMode = "intensive"
	ModeRegular   StudyMode = "regular"
	ModeExtensive StudyMode = "extensive"
)

func (m StudyMode) IsValid() bool {
	switch m {
	case ModeIntensive, ModeRegular, ModeExtensive:
		return true
	}
	return false
}

// PacingFactor scales the advisory plan length for the mode.
func (m StudyMode) PacingFactor() float64 {
	switch m {
	case ModeIntensive:
		return 1
	case ModeExtensive:
		return 2
	default:
		return 1.5
	}
}

type (
	Repository interface {
		CreateItems(ctx context.Context, items []Item) ([]Item, error)
		// GetItemDetail loads an item joined with its lesson/quiz/module titles.
		GetItemDetail(ctx context.Context, id string) (ItemDetail, error)
		// FirstMatchingItem returns the oldest-scheduled item for the
		// enrollment matching the content reference and not yet completed.
		FirstMatchingItem(ctx context.Context, enrollmentID string, ref ContentRef) (Item, error)
		MarkItemCompleted(ctx context.Context, id string, completedAt time.Time) error
		// MarkOverdueItems bulk-transitions pending items scheduled before
		// `now` into overdue; already-overdue items are not re-matched.
		MarkOverdueItems(ctx context.Context, enrollmentID string, now time.Time) (int, error)
		UpdateItemSchedule(ctx context.Context, id string, date *time.Time, status *ItemStatus) error
		PendingItemsAfter(ctx context.Context, enrollmentID string, after time.Time) ([]Item, error)
		MilestoneExists(ctx context.Context, enrollmentID, moduleID string) (bool, error)
		// ModuleLessonProgress counts the enrollment's scheduled lessons for
		// the module and how many of them are completed.
		ModuleLessonProgress(ctx context.Context, enrollmentID, moduleID string) (total, completed int, err error)
		GetPreferences(ctx context.Context, userID string) (Preferences, error)
	}

	// Item is one planned unit of study. Items are created in bulk at
	// enrollment time and mutated as progress arrives; never deleted.
	Item struct {
		ID                       string                 `json:"id"`
		EnrollmentID             string                 `json:"enrollment_id"`
		CourseID                 string                 `json:"course_id"`
		LessonID                 null.String            `json:"lesson_id,omitempty"`
		QuizID                   null.String            `json:"quiz_id,omitempty"`
		ModuleID                 null.String            `json:"module_id,omitempty"`
		ItemType                 ItemType               `json:"item_type"`
		ScheduledDate            time.Time              `json:"scheduled_date"`
		EstimatedDurationMinutes int                    `json:"estimated_duration_minutes"`
		Priority                 Priority               `json:"priority"`
		Status                   ItemStatus             `json:"status"`
		AutoGenerated            bool                   `json:"auto_generated"`
		Metadata                 map[string]interface{} `json:"metadata,omitempty"`
		CompletedAt              null.Time              `json:"completed_at,omitempty"`
		CreatedAt                time.Time              `json:"created_at"`
		UpdatedAt                time.Time              `json:"updated_at"`
	}

	// ItemDetail joins an Item with the titles of its content references.
	ItemDetail struct {
		Item
		LessonTitle null.String `json:"lesson_title,omitempty"`
		QuizTitle   null.String `json:"quiz_title,omitempty"`
		ModuleTitle null.String `json:"module_title,omitempty"`
	}

	// ContentRef identifies the lesson or quiz a progress event refers to.
	ContentRef struct {
		LessonID string
		QuizID   string
	}
)

func (r ContentRef) IsZero() bool { return r.LessonID == "" && r.QuizID == "" }

// Preferences is the per-learner scheduling configuration. Missing or
// invalid fields fall back to the documented defaults.
type Preferences struct {
	UserID            string         `json:"user_id"`
	StudyDays         []time.Weekday `json:"study_days" validate:"omitempty,max=7,dive,min=0,max=6"`
	PreferredTime     string         `json:"preferred_time" validate:"omitempty,timehhmm"`
	DailyStudyMinutes int            `json:"daily_study_minutes" validate:"omitempty,min=1"`
	StudyMode         StudyMode      `json:"study_mode" validate:"omitempty,oneof=intensive regular extensive"`
}

// DefaultPreferences are applied when a learner has no preferences record.
func DefaultPreferences() Preferences {
	return Preferences{
		StudyDays:         []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday},
		PreferredTime:     "09:00",
		DailyStudyMinutes: 60,
		StudyMode:         ModeRegular,
	}
}

// Clean validates the preferences, replacing unusable fields with defaults
// so a single bad value never blocks plan generation.
func (p *Preferences) Clean() {
	defaults := DefaultPreferences()
	if len(p.StudyDays) == 0 {
		p.StudyDays = defaults.StudyDays
	} else {
		days := p.StudyDays[:0]
		for _, d := range p.StudyDays {
			if d >= time.Sunday && d <= time.Saturday {
				days = append(days, d)
			}
		}
		if len(days) == 0 {
			days = defaults.StudyDays
		}
		p.StudyDays = days
	}
	if err := core.Validate.Var(p.PreferredTime, "required,timehhmm"); err != nil {
		p.PreferredTime = defaults.PreferredTime
	}
	if p.DailyStudyMinutes <= 0 {
		p.DailyStudyMinutes = defaults.DailyStudyMinutes
	}
	if !p.StudyMode.IsValid() {
		p.StudyMode = defaults.StudyMode
	}
}

// IsStudyDay reports whether the weekday is one of the learner's study days.
func (p Preferences) IsStudyDay(d time.Weekday) bool {
	for _, sd := range p.StudyDays {
		if sd == d {
			return true
		}
	}
	return false
}

// NextStudyDay rolls `day` forward to the first date whose weekday is one of
// the learner's study days (no-op if `day` already qualifies).
func (p Preferences) NextStudyDay(day time.Time) time.Time {
	for i := 0; i < 7; i++ {
		if p.IsStudyDay(day.Weekday()) {
			return day
		}
		day = day.AddDate(0, 0, 1)
	}
	return day
}

// AtPreferredTime pins the learner's preferred wall-clock time onto the given day.
func (p Preferences) AtPreferredTime(day time.Time) time.Time {
	var hh, mm int
	_, _ = fmt.Sscanf(p.PreferredTime, "%d:%d", &hh, &mm)
	return time.Date(day.Year(), day.Month(), day.Day(), hh, mm, 0, 0, day.Location())
}
