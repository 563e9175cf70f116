package schedule

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/ratiba/core/course"
)

type fakeRepo struct {
	Repository // panics on anything not overridden

	prefs   *Preferences
	created []Item
}

func (r *fakeRepo) GetPreferences(ctx context.Context, userID string) (Preferences, error) {
	if r.prefs == nil {
		return Preferences{}, ErrPreferencesNotFound
	}
	return *r.prefs, nil
}

func (r *fakeRepo) CreateItems(ctx context.Context, items []Item) ([]Item, error) {
	for i := range items {
		items[i].ID = items[i].EnrollmentID + "-item"
	}
	r.created = append(r.created, items...)
	return items, nil
}

type fakeCourseRepo struct {
	crs course.Course
	err error
}

func (r fakeCourseRepo) GetCourseTree(ctx context.Context, courseID string) (course.Course, error) {
	if r.err != nil {
		return course.Course{}, r.err
	}
	return r.crs, nil
}

type fakeEventCreator struct {
	calls int
}

func (c *fakeEventCreator) CreateEventFromItem(ctx context.Context, itemID, userID string) (null.String, error) {
	c.calls++
	return null.StringFrom("ev-" + itemID), nil
}

type noopLogger struct{}

func (noopLogger) Debug(msg string, args ...interface{}) {}
func (noopLogger) Info(msg string, args ...interface{})  {}
func (noopLogger) Warn(msg string, args ...interface{})  {}
func (noopLogger) Error(msg string, args ...interface{}) {}
func (noopLogger) Fatal(msg string, args ...interface{}) {}

func testCourse() course.Course {
	return course.Course{
		ID:    "crs1",
		Title: "Go for Gophers",
		Modules: []course.Module{
			{
				ID: "mod1", CourseID: "crs1", Title: "Basics", Order: 1,
				Lessons: []course.Lesson{
					{ID: "l1", ModuleID: "mod1", Title: "Intro", Order: 1, DurationMinutes: 30, IsRequired: true},
					{ID: "l2", ModuleID: "mod1", Title: "Types", Order: 2, DurationMinutes: 30, IsRequired: true},
					{ID: "l3", ModuleID: "mod1", Title: "Funcs", Order: 3, DurationMinutes: 30, IsRequired: false},
				},
				Quiz: &course.Quiz{ID: "q1", ModuleID: "mod1", Title: "Basics Quiz", TimeLimitMinutes: 20},
			},
		},
	}
}

func weekdayPrefs() Preferences {
	return Preferences{
		UserID:            "usr1",
		StudyDays:         []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday},
		PreferredTime:     "09:00",
		DailyStudyMinutes: 60,
		StudyMode:         ModeRegular,
	}
}

// Three 30-min lessons against a 60-min daily budget, starting on a Monday:
// two lessons land on Monday, one on Tuesday, quiz and milestone on Wednesday.
func Test_buildPlan_packing(t *testing.T) {
	prefs := weekdayPrefs()
	sunday := time.Date(2021, 2, 28, 12, 0, 0, 0, time.UTC)
	monday := time.Date(2021, 3, 1, 9, 0, 0, 0, time.UTC)

	got := buildPlan(testCourse(), prefs, "enr1", sunday)
	assert.Len(t, got.items, 5) // 3 lessons + quiz + milestone

	byContent := make(map[string]Item, len(got.items))
	for _, item := range got.items {
		switch {
		case item.LessonID.Valid:
			byContent[item.LessonID.String] = item
		case item.QuizID.Valid:
			byContent[item.QuizID.String] = item
		default:
			byContent["milestone"] = item
		}
	}

	assert.Equal(t, monday, byContent["l1"].ScheduledDate)
	assert.Equal(t, monday, byContent["l2"].ScheduledDate)
	assert.Equal(t, monday.AddDate(0, 0, 1), byContent["l3"].ScheduledDate)
	assert.Equal(t, monday.AddDate(0, 0, 2), byContent["q1"].ScheduledDate)
	assert.Equal(t, monday.AddDate(0, 0, 2), byContent["milestone"].ScheduledDate)

	assert.Equal(t, PriorityHigh, byContent["l1"].Priority)   // required lesson
	assert.Equal(t, PriorityMedium, byContent["l3"].Priority) // optional lesson
	assert.Equal(t, PriorityHigh, byContent["q1"].Priority)
	assert.Equal(t, PriorityMedium, byContent["milestone"].Priority)
	assert.Equal(t, "module_completion", byContent["milestone"].Metadata["milestone_type"])
	assert.Equal(t, "Basics", byContent["milestone"].Metadata["module_title"])
}

// Every generated item must land on a study day at the preferred time,
// pending and auto-generated.
func Test_buildPlan_studyDaysOnly(t *testing.T) {
	prefs := weekdayPrefs()
	prefs.StudyDays = []time.Weekday{time.Tuesday, time.Saturday}
	now := time.Date(2021, 3, 1, 12, 0, 0, 0, time.UTC) // Monday

	got := buildPlan(testCourse(), prefs, "enr1", now)
	for _, item := range got.items {
		assert.True(t, prefs.IsStudyDay(item.ScheduledDate.Weekday()),
			"item %s scheduled on %s", item.ItemType, item.ScheduledDate.Weekday())
		assert.Equal(t, 9, item.ScheduledDate.Hour())
		assert.Equal(t, StatusPending, item.Status)
		assert.True(t, item.AutoGenerated)
	}
}

// Items are ordered by date, and at equal dates lessons precede quizzes
// which precede milestones.
func Test_buildPlan_ordering(t *testing.T) {
	got := buildPlan(testCourse(), weekdayPrefs(), "enr1", time.Date(2021, 2, 28, 12, 0, 0, 0, time.UTC))
	for i := 1; i < len(got.items); i++ {
		assert.False(t, got.items[i].ScheduledDate.Before(got.items[i-1].ScheduledDate))
	}
	// quiz and milestone share a date; the stable sort keeps the quiz first
	assert.Equal(t, ItemQuiz, got.items[len(got.items)-2].ItemType)
	assert.Equal(t, ItemMilestone, got.items[len(got.items)-1].ItemType)
}

func Test_buildPlan_startDay(t *testing.T) {
	prefs := weekdayPrefs()
	monday := time.Date(2021, 3, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		now  time.Time
		want time.Time // first lesson's day at preferred time
	}{
		{
			name: "study day before preferred time starts today",
			now:  monday.Add(7 * time.Hour),
			want: monday.Add(9 * time.Hour),
		},
		{
			name: "study day after preferred time starts tomorrow",
			now:  monday.Add(10 * time.Hour),
			want: monday.AddDate(0, 0, 1).Add(9 * time.Hour),
		},
		{
			name: "non-study day starts next study day",
			now:  monday.AddDate(0, 0, 5).Add(8 * time.Hour), // Saturday
			want: monday.AddDate(0, 0, 7).Add(9 * time.Hour), // next Monday
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := buildPlan(testCourse(), prefs, "enr1", tt.now)
			assert.Equal(t, tt.want, got.items[0].ScheduledDate)
		})
	}
}

func Test_buildPlan_defaultDurations(t *testing.T) {
	crs := course.Course{
		ID: "crs1",
		Modules: []course.Module{{
			ID: "mod1", Order: 1,
			Lessons: []course.Lesson{{ID: "l1", ModuleID: "mod1", Order: 1, DurationMinutes: 0}},
			Quiz:    &course.Quiz{ID: "q1", ModuleID: "mod1", TimeLimitMinutes: -5},
		}},
	}
	got := buildPlan(crs, weekdayPrefs(), "enr1", time.Date(2021, 2, 28, 12, 0, 0, 0, time.UTC))
	for _, item := range got.items {
		switch item.ItemType {
		case ItemLesson:
			assert.Equal(t, defaultLessonMinutes, item.EstimatedDurationMinutes)
		case ItemQuiz:
			assert.Equal(t, defaultQuizMinutes, item.EstimatedDurationMinutes)
		}
	}
}

func TestService_GenerateSchedule(t *testing.T) {
	defer func() { nowFunc = time.Now }()
	nowFunc = func() time.Time { return time.Date(2021, 2, 28, 12, 0, 0, 0, time.UTC) }

	t.Run("ok", func(t *testing.T) {
		prefs := weekdayPrefs()
		repo := &fakeRepo{prefs: &prefs}
		events := &fakeEventCreator{}
		svc := NewService(repo, fakeCourseRepo{crs: testCourse()}, events, noopLogger{})

		res, err := svc.GenerateSchedule(context.Background(), "enr1", "crs1", "usr1")
		if err != nil {
			t.Fatalf("GenerateSchedule() failed: %v", err)
		}
		assert.Equal(t, 5, res.ItemsCreated)
		assert.Len(t, repo.created, 5)
		assert.Equal(t, 5, events.calls) // every item mirrored into an event
		assert.Equal(t, 3, res.TargetDays) // ceil(90min / 60min * 1.5)
	})

	t.Run("missing preferences fall back to defaults", func(t *testing.T) {
		repo := &fakeRepo{}
		svc := NewService(repo, fakeCourseRepo{crs: testCourse()}, &fakeEventCreator{}, noopLogger{})

		res, err := svc.GenerateSchedule(context.Background(), "enr1", "crs1", "usr1")
		if err != nil {
			t.Fatalf("GenerateSchedule() failed: %v", err)
		}
		assert.Equal(t, 5, res.ItemsCreated)
	})

	t.Run("empty course yields empty plan", func(t *testing.T) {
		repo := &fakeRepo{}
		events := &fakeEventCreator{}
		svc := NewService(repo, fakeCourseRepo{crs: course.Course{ID: "crs1"}}, events, noopLogger{})

		res, err := svc.GenerateSchedule(context.Background(), "enr1", "crs1", "usr1")
		if err != nil {
			t.Fatalf("GenerateSchedule() failed: %v", err)
		}
		assert.Equal(t, 0, res.ItemsCreated)
		assert.Empty(t, res.Items)
		assert.Zero(t, events.calls)
	})

	t.Run("missing course", func(t *testing.T) {
		svc := NewService(&fakeRepo{}, fakeCourseRepo{err: course.ErrNotFound}, &fakeEventCreator{}, noopLogger{})
		_, err := svc.GenerateSchedule(context.Background(), "enr1", "nope", "usr1")
		assert.Error(t, err)
	})
}
