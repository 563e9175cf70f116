package echoapi

import (
	"bytes"
	"encoding/json"
	"io/ioutil"
	"log"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/ratiba/core/calendar"
	"github.com/trezcool/ratiba/core/course"
	"github.com/trezcool/ratiba/core/enrollment"
	"github.com/trezcool/ratiba/core/reminder"
	"github.com/trezcool/ratiba/core/schedule"
	"github.com/trezcool/ratiba/core/user"
	"github.com/trezcool/ratiba/services/email"
	"github.com/trezcool/ratiba/services/logger"
	"github.com/trezcool/ratiba/storage/database/inmem"
)

func setup(t *testing.T) (Server, *inmemdb.DB) {
	t.Helper()
	emailsvc.ClearSentMessages()

	db, err := inmemdb.Open()
	if err != nil {
		t.Fatalf("setup() failed: %v", err)
	}
	seed(db)

	appLog := logsvc.NewStdLogger(log.New(ioutil.Discard, "", 0))
	mailSvc := emailsvc.NewConsoleServiceMock()
	courseRepo := inmemdb.NewCourseRepository(db)
	enrRepo := inmemdb.NewEnrollmentRepository(db)
	userRepo := inmemdb.NewUserRepository(db)
	itemRepo := inmemdb.NewScheduleRepository(db)
	calRepo := inmemdb.NewCalendarRepository(db)
	remRepo := inmemdb.NewReminderRepository(db)

	calSvc := calendar.NewService(calRepo, itemRepo, enrRepo, userRepo, courseRepo, mailSvc, appLog)
	schedSvc := schedule.NewService(itemRepo, courseRepo, calSvc, appLog)
	engine := reminder.NewEngine(remRepo, mailSvc, appLog)
	daemon := reminder.NewDaemon(engine, remRepo, calSvc.RepairMissingEvents, appLog)

	app := NewServer(&Options{
		Address:        ":0",
		DisableReqLogs: true,
		ScheduleSvc:    schedSvc,
		CalendarSvc:    calSvc,
		ReminderEngine: engine,
		Daemon:         daemon,
		Logger:         appLog,
	})
	t.Cleanup(daemon.Stop)
	return app, db
}

func seed(db *inmemdb.DB) {
	db.SetUser(user.User{ID: "usr1", Name: "Amani Khamisi", Email: "amani@test.test", IsActive: true, EmailVerified: true})
	db.SetCourse(course.Course{
		ID: "crs1", Title: "Go for Gophers",
		Modules: []course.Module{{
			ID: "mod1", CourseID: "crs1", Title: "Basics", Order: 1,
			Lessons: []course.Lesson{
				{ID: "l1", ModuleID: "mod1", Title: "Intro", Order: 1, DurationMinutes: 30, IsRequired: true},
				{ID: "l2", ModuleID: "mod1", Title: "Types", Order: 2, DurationMinutes: 30, IsRequired: true},
			},
		}},
	})
	db.SetEnrollment(enrollment.Enrollment{
		ID: "enr1", UserID: "usr1", CourseID: "crs1", ProgressPercentage: 45,
		EnrolledAt:     time.Now().AddDate(0, 0, -30),
		LastAccessedAt: null.TimeFrom(time.Now().AddDate(0, 0, -7)),
		IsActive:       true,
	})
}

func request(app Server, method, path string, body interface{}) *httptest.ResponseRecorder {
	var buff bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buff).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buff)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	app.ServeHTTP(rec, req)
	return rec
}

func TestSchedulerAPI_status(t *testing.T) {
	app, _ := setup(t)

	rec := request(app, http.MethodGet, "/v1/scheduler/status", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	var status reminder.DaemonStatus
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatalf("decoding status failed: %v", err)
	}
	assert.False(t, status.IsScheduled)
	assert.False(t, status.IsRunning)
}

func TestSchedulerAPI_startStop(t *testing.T) {
	app, _ := setup(t)

	rec := request(app, http.MethodPost, "/v1/scheduler/start", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	var status reminder.DaemonStatus
	_ = json.Unmarshal(rec.Body.Bytes(), &status)
	assert.True(t, status.IsScheduled)
	assert.NotNil(t, status.NextRun)

	rec = request(app, http.MethodPost, "/v1/scheduler/stop", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	_ = json.Unmarshal(rec.Body.Bytes(), &status)
	assert.False(t, status.IsScheduled)
}

func TestSchedulerAPI_runReminders(t *testing.T) {
	app, _ := setup(t)

	// the seeded enrollment is exactly 7 days inactive
	rec := request(app, http.MethodPost, "/v1/reminders/run?days=7", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	var stats reminder.TierStats
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatalf("decoding stats failed: %v", err)
	}
	assert.Equal(t, 7, stats.Period)
	assert.Equal(t, 1, stats.Total)
	assert.Equal(t, 1, stats.Success)

	t.Run("bad days param", func(t *testing.T) {
		rec := request(app, http.MethodPost, "/v1/reminders/run?days=lol", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestSchedulerAPI_generateSchedule(t *testing.T) {
	app, _ := setup(t)

	rec := request(app, http.MethodPost, "/v1/schedules/generate", map[string]string{
		"enrollment_id": "enr1",
		"course_id":     "crs1",
		"user_id":       "usr1",
	})
	assert.Equal(t, http.StatusCreated, rec.Code)

	var res schedule.GenerateResult
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("decoding result failed: %v", err)
	}
	assert.Equal(t, 3, res.ItemsCreated) // 2 lessons + module milestone

	t.Run("missing fields", func(t *testing.T) {
		rec := request(app, http.MethodPost, "/v1/schedules/generate", map[string]string{"enrollment_id": "enr1"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestSchedulerAPI_progressAndOverdue(t *testing.T) {
	app, _ := setup(t)

	// plan first, then complete a lesson through the progress endpoint
	rec := request(app, http.MethodPost, "/v1/schedules/generate", map[string]string{
		"enrollment_id": "enr1", "course_id": "crs1", "user_id": "usr1",
	})
	assert.Equal(t, http.StatusCreated, rec.Code)

	rec = request(app, http.MethodPost, "/v1/progress/events", map[string]string{
		"type":          "lesson_completed",
		"enrollment_id": "enr1",
		"lesson_id":     "l1",
		"module_id":     "mod1",
	})
	assert.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		ScheduleItemID null.String `json:"schedule_item_id"`
	}
	_ = json.Unmarshal(rec.Body.Bytes(), &body)
	assert.True(t, body.ScheduleItemID.Valid)

	rec = request(app, http.MethodPost, "/v1/enrollments/enr1/overdue", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}
