package schedule

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/ratiba/core"
	"github.com/trezcool/ratiba/core/course"
)

var nowFunc = time.Now // mockable

const (
	defaultLessonMinutes = 30 // applied when an authored duration is missing or negative
	defaultQuizMinutes   = 20
)

type (
	// EventCreator mirrors newly created schedule items into calendar
	// events; implemented by the calendar synchronizer.
	EventCreator interface {
		CreateEventFromItem(ctx context.Context, itemID, userID string) (null.String, error)
	}

	// Service generates dated study plans from a course's content tree and
	// the learner's preferences.
	Service struct {
		repo    Repository
		courses course.Repository
		events  EventCreator
		log     core.Logger
	}

	GenerateResult struct {
		ItemsCreated int    `json:"items_created"`
		TargetDays   int    `json:"target_days"` // advisory plan length
		Items        []Item `json:"schedule_items"`
	}
)

func NewService(repo Repository, courses course.Repository, events EventCreator, log core.Logger) *Service {
	return &Service{repo: repo, courses: courses, events: events, log: log}
}

// GenerateSchedule computes and persists a full study plan for a fresh
// enrollment, then mirrors every item into a calendar event. A course with
// no lessons yields an empty plan, not an error.
func (svc *Service) GenerateSchedule(ctx context.Context, enrollmentID, courseID, userID string) (GenerateResult, error) {
	crs, err := svc.courses.GetCourseTree(ctx, courseID)
	if err != nil {
		return GenerateResult{}, errors.Wrapf(err, "loading course %s", courseID)
	}

	prefs, err := svc.repo.GetPreferences(ctx, userID)
	if err != nil {
		if err != ErrPreferencesNotFound {
			return GenerateResult{}, errors.Wrapf(err, "loading preferences for user %s", userID)
		}
		prefs = DefaultPreferences()
	}
	prefs.Clean()

	plan := buildPlan(crs, prefs, enrollmentID, nowFunc())
	if len(plan.items) == 0 {
		return GenerateResult{TargetDays: plan.targetDays, Items: []Item{}}, nil
	}

	items, err := svc.repo.CreateItems(ctx, plan.items)
	if err != nil {
		return GenerateResult{}, errors.Wrap(err, "persisting schedule items")
	}

	for _, item := range items {
		if _, err := svc.events.CreateEventFromItem(ctx, item.ID, userID); err != nil {
			// an orphan item is recoverable by the calendar repair sweep
			svc.log.Error(fmt.Sprintf("creating calendar event for item %s: %v", item.ID, err), err)
		}
	}

	return GenerateResult{ItemsCreated: len(items), TargetDays: plan.targetDays, Items: items}, nil
}

type plan struct {
	items      []Item
	targetDays int
}

// buildPlan converts the ordered content tree into dated items:
// lessons are greedily packed onto eligible study days within the daily
// budget, each module's quiz lands on the next eligible day after its last
// lesson, and a completion milestone follows every module with lessons.
func buildPlan(crs course.Course, prefs Preferences, enrollmentID string, now time.Time) plan {
	lessons := crs.OrderedLessons()

	var totalMinutes int
	for _, l := range lessons {
		totalMinutes += lessonDuration(l)
	}
	targetDays := int(math.Ceil(float64(totalMinutes) / float64(prefs.DailyStudyMinutes) * prefs.StudyMode.PacingFactor()))

	// greedy lesson placement
	day := startDay(now, prefs)
	dayMinutes := 0
	lastLessonDay := make(map[string]time.Time, len(crs.Modules)) // moduleID -> last lesson day

	var items []Item
	for _, lesson := range lessons {
		dur := lessonDuration(lesson)
		if dayMinutes > 0 && dayMinutes+dur > prefs.DailyStudyMinutes {
			day = nextStudyDay(day.AddDate(0, 0, 1), prefs)
			dayMinutes = 0
		}
		dayMinutes += dur

		priority := PriorityMedium
		if lesson.IsRequired {
			priority = PriorityHigh
		}
		items = append(items, Item{
			EnrollmentID:             enrollmentID,
			CourseID:                 crs.ID,
			LessonID:                 null.StringFrom(lesson.ID),
			ModuleID:                 null.StringFrom(lesson.ModuleID),
			ItemType:                 ItemLesson,
			ScheduledDate:            prefs.AtPreferredTime(day),
			EstimatedDurationMinutes: dur,
			Priority:                 priority,
			Status:                   StatusPending,
			AutoGenerated:            true,
		})
		lastLessonDay[lesson.ModuleID] = day
	}

	// quizzes: next eligible day after the module's last lesson
	for _, mod := range crs.OrderedModules() {
		last, ok := lastLessonDay[mod.ID]
		if !ok || mod.Quiz == nil {
			continue
		}
		quizDay := nextStudyDay(last.AddDate(0, 0, 1), prefs)
		dur := mod.Quiz.TimeLimitMinutes
		if dur <= 0 {
			dur = defaultQuizMinutes
		}
		items = append(items, Item{
			EnrollmentID:             enrollmentID,
			CourseID:                 crs.ID,
			QuizID:                   null.StringFrom(mod.Quiz.ID),
			ModuleID:                 null.StringFrom(mod.ID),
			ItemType:                 ItemQuiz,
			ScheduledDate:            prefs.AtPreferredTime(quizDay),
			EstimatedDurationMinutes: dur,
			Priority:                 PriorityHigh,
			Status:                   StatusPending,
			AutoGenerated:            true,
		})
	}

	// module completion milestones
	for _, mod := range crs.OrderedModules() {
		last, ok := lastLessonDay[mod.ID]
		if !ok {
			continue
		}
		msDay := nextStudyDay(last.AddDate(0, 0, 1), prefs)
		items = append(items, Item{
			EnrollmentID:  enrollmentID,
			CourseID:      crs.ID,
			ModuleID:      null.StringFrom(mod.ID),
			ItemType:      ItemMilestone,
			ScheduledDate: prefs.AtPreferredTime(msDay),
			Priority:      PriorityMedium,
			Status:        StatusPending,
			AutoGenerated: true,
			Metadata: map[string]interface{}{
				"milestone_type": "module_completion",
				"module_title":   mod.Title,
				"module_order":   mod.Order,
			},
		})
	}

	// equal timestamps keep generation order: lessons, quizzes, milestones
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].ScheduledDate.Before(items[j].ScheduledDate)
	})
	return plan{items: items, targetDays: targetDays}
}

func lessonDuration(l course.Lesson) int {
	if l.DurationMinutes <= 0 {
		return defaultLessonMinutes
	}
	return l.DurationMinutes
}

// startDay picks the first candidate study day: today if it is an eligible
// study day whose preferred start time has not passed yet, else tomorrow.
func startDay(now time.Time, prefs Preferences) time.Time {
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	if prefs.IsStudyDay(today.Weekday()) && now.Before(prefs.AtPreferredTime(today)) {
		return today
	}
	return nextStudyDay(today.AddDate(0, 0, 1), prefs)
}

func nextStudyDay(day time.Time, prefs Preferences) time.Time {
	return prefs.NextStudyDay(day)
}
