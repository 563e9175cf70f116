package reminder

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/ratiba/core"
	"github.com/trezcool/ratiba/core/enrollment"
	"github.com/trezcool/ratiba/core/user"
	"github.com/trezcool/ratiba/services/email"
)

// ---- fakes ----

type fakeRepo struct {
	mu         sync.Mutex // the daemon drives the engine from goroutines
	candidates map[int][]Candidate // days -> tier candidates
	recurring  []Candidate
	logs       []Log
	state      SchedulerState
	seq        int
}

var _ Repository = (*fakeRepo)(nil)

func newFakeRepo() *fakeRepo {
	return &fakeRepo{candidates: make(map[int][]Candidate)}
}

func (r *fakeRepo) FindInactiveExact(ctx context.Context, days int, now time.Time) ([]Candidate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.candidates[days], nil
}

func (r *fakeRepo) FindRecurringCandidates(ctx context.Context, now time.Time) ([]Candidate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.recurring, nil
}

func (r *fakeRepo) AnyLogSince(ctx context.Context, enrollmentID string, days int, since time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, entry := range r.logs {
		if entry.EnrollmentID == enrollmentID && entry.ReminderDays == days && !entry.SentAt.Before(since) {
			return true, nil
		}
	}
	return false, nil
}

func (r *fakeRepo) LastSuccessfulLog(ctx context.Context, enrollmentID string, days int) (Log, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var last *Log
	for i, entry := range r.logs {
		if entry.EnrollmentID == enrollmentID && entry.ReminderDays == days && entry.Success {
			if last == nil || entry.SentAt.After(last.SentAt) {
				last = &r.logs[i]
			}
		}
	}
	if last == nil {
		return Log{}, ErrLogNotFound
	}
	return *last, nil
}

func (r *fakeRepo) CreateLog(ctx context.Context, entry Log) (Log, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	entry.ID = "log" + strconv.Itoa(r.seq)
	r.logs = append(r.logs, entry)
	return entry, nil
}

func (r *fakeRepo) GetSchedulerState(ctx context.Context) (SchedulerState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state, nil
}

func (r *fakeRepo) SaveSchedulerState(ctx context.Context, state SchedulerState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = state
	return nil
}

func (r *fakeRepo) savedState() SchedulerState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

type failingMailSvc struct{}

func (failingMailSvc) SendMessage(msg *core.EmailMessage) error { return errors.New("smtp down") }
func (failingMailSvc) SendMessages(messages ...*core.EmailMessage) {}

type noopLogger struct{}

func (noopLogger) Debug(msg string, args ...interface{}) {}
func (noopLogger) Info(msg string, args ...interface{})  {}
func (noopLogger) Warn(msg string, args ...interface{})  {}
func (noopLogger) Error(msg string, args ...interface{}) {}
func (noopLogger) Fatal(msg string, args ...interface{}) {}

func candidate(enrID string, daysInactive int, now time.Time) Candidate {
	lastActive := now.AddDate(0, 0, -daysInactive)
	return Candidate{
		Enrollment: enrollment.Enrollment{
			ID: enrID, UserID: "usr-" + enrID, CourseID: "crs1", ProgressPercentage: 45,
			EnrolledAt:     lastActive.AddDate(0, 0, -10),
			LastAccessedAt: null.TimeFrom(lastActive),
			IsActive:       true,
		},
		User: user.User{ID: "usr-" + enrID, Name: "Neema Joseph", Email: enrID + "@test.test",
			IsActive: true, EmailVerified: true},
		CourseTitle: "Go for Gophers",
	}
}

func setup(t *testing.T, repo *fakeRepo, mailSvc core.EmailService) *Engine {
	t.Helper()
	emailsvc.ClearSentMessages()
	engine := NewEngine(repo, mailSvc, noopLogger{})
	engine.pause = 0
	return engine
}

// ---- tests ----

// An enrollment inactive exactly 7 days gets one reminder; a second full run
// the same day sends nothing for it.
func TestEngine_SendAllReminders_dedup(t *testing.T) {
	defer func() { nowFunc = time.Now }()
	now := time.Date(2021, 3, 10, 9, 0, 0, 0, time.UTC)
	nowFunc = func() time.Time { return now }

	repo := newFakeRepo()
	repo.candidates[7] = []Candidate{candidate("enr1", 7, now)}
	engine := setup(t, repo, emailsvc.NewConsoleServiceMock())

	stats, err := engine.SendAllReminders(context.Background())
	if err != nil {
		t.Fatalf("SendAllReminders() failed: %v", err)
	}
	assert.Equal(t, 1, stats.TotalEnrollments)
	assert.Equal(t, 1, stats.TotalSuccess)
	assert.Len(t, emailsvc.SentMessages, 1)
	assert.Len(t, repo.logs, 1)
	assert.Equal(t, 7, repo.logs[0].ReminderDays)
	assert.True(t, repo.logs[0].Success)

	// second run within the cool-down window
	stats, err = engine.SendAllReminders(context.Background())
	if err != nil {
		t.Fatalf("SendAllReminders() failed: %v", err)
	}
	assert.Equal(t, 1, stats.TotalSkipped)
	assert.Zero(t, stats.TotalSuccess)
	assert.Len(t, emailsvc.SentMessages, 1) // unchanged
}

func TestEngine_SendAllReminders_tierOrderAndStats(t *testing.T) {
	defer func() { nowFunc = time.Now }()
	now := time.Date(2021, 3, 10, 9, 0, 0, 0, time.UTC)
	nowFunc = func() time.Time { return now }

	repo := newFakeRepo()
	repo.candidates[3] = []Candidate{candidate("enr3", 3, now)}
	repo.candidates[7] = []Candidate{candidate("enr7", 7, now)}
	repo.candidates[14] = []Candidate{candidate("enr14", 14, now)}
	engine := setup(t, repo, emailsvc.NewConsoleServiceMock())

	stats, err := engine.SendAllReminders(context.Background())
	if err != nil {
		t.Fatalf("SendAllReminders() failed: %v", err)
	}

	assert.Equal(t, 3, stats.TotalEnrollments)
	assert.Equal(t, 3, stats.TotalSuccess)
	if assert.Len(t, stats.Periods, 4) { // 3, 7, 14, recurring
		assert.Equal(t, 3, stats.Periods[0].Period)
		assert.Equal(t, 7, stats.Periods[1].Period)
		assert.Equal(t, 14, stats.Periods[2].Period)
		assert.Equal(t, 14, stats.Periods[3].Period)
		assert.True(t, stats.Periods[3].Recurring)
		assert.False(t, stats.Periods[2].Recurring)
	}
}

// The recurring regime fires only on exact 14-day multiples since the last
// successful 14-day reminder, and never before one exists.
func TestEngine_recurringCadence(t *testing.T) {
	defer func() { nowFunc = time.Now }()
	now := time.Date(2021, 3, 10, 9, 0, 0, 0, time.UTC)
	nowFunc = func() time.Time { return now }

	tests := []struct {
		name     string
		log      *Log // successful 14-day log, if any
		wantSent int
	}{
		{name: "no 14-day log yet", log: nil, wantSent: 0},
		{name: "log 14 days old", log: &Log{SentAt: now.AddDate(0, 0, -14)}, wantSent: 1},
		{name: "log 20 days old", log: &Log{SentAt: now.AddDate(0, 0, -20)}, wantSent: 0},
		{name: "log 28 days old", log: &Log{SentAt: now.AddDate(0, 0, -28)}, wantSent: 1},
		{name: "log 13 days old", log: &Log{SentAt: now.AddDate(0, 0, -13)}, wantSent: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newFakeRepo()
			repo.recurring = []Candidate{candidate("enr1", 28, now)}
			if tt.log != nil {
				repo.logs = append(repo.logs, Log{
					ID: "log0", EnrollmentID: "enr1", ReminderDays: RecurringBaseDays,
					SentAt: tt.log.SentAt, Success: true,
				})
			}
			engine := setup(t, repo, emailsvc.NewConsoleServiceMock())

			stats, err := engine.SendRemindersForDays(context.Background(), RecurringBaseDays, true)
			if err != nil {
				t.Fatalf("SendRemindersForDays() failed: %v", err)
			}
			assert.Equal(t, tt.wantSent, stats.Success)
			assert.Len(t, emailsvc.SentMessages, tt.wantSent)
		})
	}
}

// A recurring send is always recorded under reminder_days=14 so the chain
// stays walkable.
func TestEngine_recurringLogsUnderBaseDays(t *testing.T) {
	defer func() { nowFunc = time.Now }()
	now := time.Date(2021, 3, 10, 9, 0, 0, 0, time.UTC)
	nowFunc = func() time.Time { return now }

	repo := newFakeRepo()
	repo.recurring = []Candidate{candidate("enr1", 28, now)}
	repo.logs = append(repo.logs, Log{ID: "log0", EnrollmentID: "enr1", ReminderDays: RecurringBaseDays,
		SentAt: now.AddDate(0, 0, -14), Success: true})
	engine := setup(t, repo, emailsvc.NewConsoleServiceMock())

	_, err := engine.SendRemindersForDays(context.Background(), RecurringBaseDays, true)
	if err != nil {
		t.Fatalf("SendRemindersForDays() failed: %v", err)
	}
	last := repo.logs[len(repo.logs)-1]
	assert.Equal(t, RecurringBaseDays, last.ReminderDays)
	assert.True(t, last.Success)
}

// Transport failures are logged with success=false and never abort the tier.
func TestEngine_transportFailure(t *testing.T) {
	defer func() { nowFunc = time.Now }()
	now := time.Date(2021, 3, 10, 9, 0, 0, 0, time.UTC)
	nowFunc = func() time.Time { return now }

	repo := newFakeRepo()
	repo.candidates[3] = []Candidate{candidate("enr1", 3, now), candidate("enr2", 3, now)}
	engine := setup(t, repo, failingMailSvc{})

	stats, err := engine.SendRemindersForDays(context.Background(), 3, false)
	if err != nil {
		t.Fatalf("SendRemindersForDays() failed: %v", err)
	}
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 2, stats.Failure)
	assert.Zero(t, stats.Success)
	if assert.Len(t, repo.logs, 2) {
		assert.False(t, repo.logs[0].Success)
		assert.False(t, repo.logs[1].Success)
	}
}

// Most recently active learners are notified first.
func TestEngine_processingOrder(t *testing.T) {
	defer func() { nowFunc = time.Now }()
	now := time.Date(2021, 3, 10, 9, 0, 0, 0, time.UTC)
	nowFunc = func() time.Time { return now }

	older := candidate("older", 7, now)
	older.Enrollment.LastAccessedAt = null.TimeFrom(now.AddDate(0, 0, -7).Add(-2 * time.Hour))
	newer := candidate("newer", 7, now)

	repo := newFakeRepo()
	repo.candidates[7] = []Candidate{older, newer}
	engine := setup(t, repo, emailsvc.NewConsoleServiceMock())

	_, err := engine.SendRemindersForDays(context.Background(), 7, false)
	if err != nil {
		t.Fatalf("SendRemindersForDays() failed: %v", err)
	}
	if assert.Len(t, repo.logs, 2) {
		assert.Equal(t, "newer", repo.logs[0].EnrollmentID)
		assert.Equal(t, "older", repo.logs[1].EnrollmentID)
	}
}

func TestReminderSubject(t *testing.T) {
	assert.Contains(t, reminderSubject("Neema", 3), "Ready for your next lesson")
	assert.Contains(t, reminderSubject("Neema", 7), "your course misses you")
	assert.Contains(t, reminderSubject("Neema", 30), "It's been 30 days")
}
