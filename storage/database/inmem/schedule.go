package inmemdb

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/ratiba/core/schedule"
)

type scheduleRepository struct {
	db      *scheduleTable
	courses *courseTable // title lookups for ItemDetail
}

var _ schedule.Repository = (*scheduleRepository)(nil) // interface compliance check

func NewScheduleRepository(db *DB) *scheduleRepository {
	return &scheduleRepository{db: db.schedule, courses: db.course}
}

func (repo *scheduleRepository) query() []schedule.Item {
	items := make([]schedule.Item, 0, len(repo.db.items))
	for _, item := range repo.db.items {
		items = append(items, *item)
	}
	return items
}

func (repo *scheduleRepository) CreateItems(ctx context.Context, items []schedule.Item) ([]schedule.Item, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	now := time.Now().UTC()
	created := make([]schedule.Item, 0, len(items))
	for _, item := range items {
		if item.ID == "" {
			item.ID = uuid.New().String()
		}
		item.CreatedAt = now
		item.UpdatedAt = now
		itemCopy := item
		repo.db.items[item.ID] = &itemCopy
		created = append(created, item)
	}
	return created, nil
}

func (repo *scheduleRepository) GetItemDetail(ctx context.Context, id string) (schedule.ItemDetail, error) {
	repo.db.RLock()
	item, ok := repo.db.items[id]
	repo.db.RUnlock()
	if !ok {
		return schedule.ItemDetail{}, schedule.ErrItemNotFound
	}

	detail := schedule.ItemDetail{Item: *item}
	repo.courses.RLock()
	defer repo.courses.RUnlock()
	if c, ok := repo.courses.table[item.CourseID]; ok {
		for _, mod := range c.Modules {
			if item.ModuleID.Valid && mod.ID == item.ModuleID.String {
				detail.ModuleTitle = null.StringFrom(mod.Title)
			}
			for _, lesson := range mod.Lessons {
				if item.LessonID.Valid && lesson.ID == item.LessonID.String {
					detail.LessonTitle = null.StringFrom(lesson.Title)
				}
			}
			if mod.Quiz != nil && item.QuizID.Valid && mod.Quiz.ID == item.QuizID.String {
				detail.QuizTitle = null.StringFrom(mod.Quiz.Title)
			}
		}
	}
	return detail, nil
}

func (repo *scheduleRepository) FirstMatchingItem(ctx context.Context, enrollmentID string, ref schedule.ContentRef) (schedule.Item, error) {
	if ref.IsZero() {
		return schedule.Item{}, schedule.ErrItemNotFound
	}

	repo.db.RLock()
	defer repo.db.RUnlock()

	var matches []schedule.Item
	for _, item := range repo.query() {
		if item.EnrollmentID != enrollmentID || item.Status == schedule.StatusCompleted {
			continue
		}
		if ref.LessonID != "" && item.LessonID.String == ref.LessonID {
			matches = append(matches, item)
		} else if ref.LessonID == "" && ref.QuizID != "" && item.QuizID.String == ref.QuizID {
			matches = append(matches, item)
		}
	}
	if len(matches) == 0 {
		return schedule.Item{}, schedule.ErrItemNotFound
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].ScheduledDate.Before(matches[j].ScheduledDate) })
	return matches[0], nil
}

func (repo *scheduleRepository) MarkItemCompleted(ctx context.Context, id string, completedAt time.Time) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	if item, ok := repo.db.items[id]; ok {
		item.Status = schedule.StatusCompleted
		item.CompletedAt = null.TimeFrom(completedAt)
		item.UpdatedAt = time.Now().UTC()
	}
	return nil
}

func (repo *scheduleRepository) MarkOverdueItems(ctx context.Context, enrollmentID string, now time.Time) (int, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	count := 0
	for _, item := range repo.db.items {
		if item.EnrollmentID == enrollmentID && item.Status == schedule.StatusPending && item.ScheduledDate.Before(now) {
			item.Status = schedule.StatusOverdue
			item.UpdatedAt = time.Now().UTC()
			count++
		}
	}
	return count, nil
}

func (repo *scheduleRepository) UpdateItemSchedule(ctx context.Context, id string, date *time.Time, status *schedule.ItemStatus) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	item, ok := repo.db.items[id]
	if !ok {
		return schedule.ErrItemNotFound
	}
	if date != nil {
		item.ScheduledDate = *date
	}
	if status != nil {
		item.Status = *status
	}
	item.UpdatedAt = time.Now().UTC()
	return nil
}

func (repo *scheduleRepository) PendingItemsAfter(ctx context.Context, enrollmentID string, after time.Time) ([]schedule.Item, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	var items []schedule.Item
	for _, item := range repo.query() {
		if item.EnrollmentID == enrollmentID && item.Status == schedule.StatusPending && item.ScheduledDate.After(after) {
			items = append(items, item)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ScheduledDate.Before(items[j].ScheduledDate) })
	return items, nil
}

func (repo *scheduleRepository) MilestoneExists(ctx context.Context, enrollmentID, moduleID string) (bool, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	for _, item := range repo.db.items {
		if item.EnrollmentID == enrollmentID && item.ItemType == schedule.ItemMilestone && item.ModuleID.String == moduleID {
			return true, nil
		}
	}
	return false, nil
}

func (repo *scheduleRepository) ModuleLessonProgress(ctx context.Context, enrollmentID, moduleID string) (total, completed int, err error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	for _, item := range repo.db.items {
		if item.EnrollmentID != enrollmentID || item.ItemType != schedule.ItemLesson || item.ModuleID.String != moduleID {
			continue
		}
		total++
		if item.Status == schedule.StatusCompleted {
			completed++
		}
	}
	return total, completed, nil
}

func (repo *scheduleRepository) GetPreferences(ctx context.Context, userID string) (schedule.Preferences, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if p, ok := repo.db.prefs[userID]; ok {
		return *p, nil
	}
	return schedule.Preferences{}, schedule.ErrPreferencesNotFound
}
