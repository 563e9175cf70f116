package inmemdb

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/trezcool/ratiba/core/enrollment"
	"github.com/trezcool/ratiba/core/reminder"
)

type reminderRepository struct {
	db          *reminderTable
	enrollments *enrollmentTable
	users       *userTable
	courses     *courseTable
}

var _ reminder.Repository = (*reminderRepository)(nil) // interface compliance check

func NewReminderRepository(db *DB) *reminderRepository {
	return &reminderRepository{db: db.reminder, enrollments: db.enrollment, users: db.user, courses: db.course}
}

// eligible applies the base candidate filters shared by all tiers.
func (repo *reminderRepository) eligible(e enrollment.Enrollment) (reminder.Candidate, bool) {
	if !e.IsActive || e.IsCompleted() || !e.InProgress() {
		return reminder.Candidate{}, false
	}
	repo.users.RLock()
	u, ok := repo.users.table[e.UserID]
	repo.users.RUnlock()
	if !ok || !u.CanBeNotified() {
		return reminder.Candidate{}, false
	}

	cand := reminder.Candidate{Enrollment: e, User: *u}
	repo.courses.RLock()
	if c, ok := repo.courses.table[e.CourseID]; ok {
		cand.CourseTitle = c.Title
	}
	repo.courses.RUnlock()
	return cand, true
}

func (repo *reminderRepository) candidates(match func(enrollment.Enrollment) bool) []reminder.Candidate {
	repo.enrollments.RLock()
	enrollments := make([]enrollment.Enrollment, 0, len(repo.enrollments.table))
	for _, e := range repo.enrollments.table {
		enrollments = append(enrollments, *e)
	}
	repo.enrollments.RUnlock()

	var candidates []reminder.Candidate
	for _, e := range enrollments {
		if !match(e) {
			continue
		}
		if cand, ok := repo.eligible(e); ok {
			candidates = append(candidates, cand)
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].Enrollment.LastActivityAt().After(candidates[j].Enrollment.LastActivityAt())
	})
	return candidates
}

func (repo *reminderRepository) FindInactiveExact(ctx context.Context, days int, now time.Time) ([]reminder.Candidate, error) {
	return repo.candidates(func(e enrollment.Enrollment) bool {
		return e.DaysInactive(now) == days
	}), nil
}

func (repo *reminderRepository) FindRecurringCandidates(ctx context.Context, now time.Time) ([]reminder.Candidate, error) {
	min := reminder.RecurringBaseDays + reminder.RecurringIntervalDays
	return repo.candidates(func(e enrollment.Enrollment) bool {
		return e.DaysInactive(now) >= min
	}), nil
}

func (repo *reminderRepository) AnyLogSince(ctx context.Context, enrollmentID string, days int, since time.Time) (bool, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	for _, entry := range repo.db.logs {
		if entry.EnrollmentID == enrollmentID && entry.ReminderDays == days && !entry.SentAt.Before(since) {
			return true, nil
		}
	}
	return false, nil
}

func (repo *reminderRepository) LastSuccessfulLog(ctx context.Context, enrollmentID string, days int) (reminder.Log, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	var last *reminder.Log
	for i, entry := range repo.db.logs {
		if entry.EnrollmentID == enrollmentID && entry.ReminderDays == days && entry.Success {
			if last == nil || entry.SentAt.After(last.SentAt) {
				last = &repo.db.logs[i]
			}
		}
	}
	if last == nil {
		return reminder.Log{}, reminder.ErrLogNotFound
	}
	return *last, nil
}

func (repo *reminderRepository) CreateLog(ctx context.Context, entry reminder.Log) (reminder.Log, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	repo.db.logs = append(repo.db.logs, entry)
	return entry, nil
}

func (repo *reminderRepository) GetSchedulerState(ctx context.Context) (reminder.SchedulerState, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()
	return repo.db.state, nil
}

func (repo *reminderRepository) SaveSchedulerState(ctx context.Context, state reminder.SchedulerState) error {
	repo.db.Lock()
	defer repo.db.Unlock()
	repo.db.state = state
	return nil
}
