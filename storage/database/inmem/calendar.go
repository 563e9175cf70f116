package inmemdb

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/trezcool/ratiba/core/calendar"
	"github.com/trezcool/ratiba/core/schedule"
)

type calendarRepository struct {
	db          *calendarTable
	items       *scheduleTable
	enrollments *enrollmentTable
}

var _ calendar.Repository = (*calendarRepository)(nil) // interface compliance check

func NewCalendarRepository(db *DB) *calendarRepository {
	return &calendarRepository{db: db.calendar, items: db.schedule, enrollments: db.enrollment}
}

func (repo *calendarRepository) CreateEvent(ctx context.Context, ev calendar.Event) (calendar.Event, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if ev.ID == "" {
		ev.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	ev.CreatedAt = now
	ev.UpdatedAt = now
	evCopy := ev
	repo.db.table[ev.ID] = &evCopy
	return ev, nil
}

func (repo *calendarRepository) GetEventByID(ctx context.Context, id string) (calendar.Event, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if ev, ok := repo.db.table[id]; ok {
		return *ev, nil
	}
	return calendar.Event{}, calendar.ErrNotFound
}

func (repo *calendarRepository) GetEventByItemID(ctx context.Context, itemID string) (calendar.Event, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	for _, ev := range repo.db.table {
		if ev.ScheduleItemID.String == itemID {
			return *ev, nil
		}
	}
	return calendar.Event{}, calendar.ErrNotFound
}

func (repo *calendarRepository) AppendEventDescription(ctx context.Context, eventID, note string) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	ev, ok := repo.db.table[eventID]
	if !ok {
		return calendar.ErrNotFound
	}
	ev.Description += note
	ev.UpdatedAt = time.Now().UTC()
	return nil
}

func (repo *calendarRepository) UpdateEventSchedule(ctx context.Context, eventID string, start, end time.Time) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	ev, ok := repo.db.table[eventID]
	if !ok {
		return calendar.ErrNotFound
	}
	ev.StartDate = start
	ev.EndDate = end
	ev.UpdatedAt = time.Now().UTC()
	return nil
}

func (repo *calendarRepository) OrphanItems(ctx context.Context) ([]calendar.OrphanItem, error) {
	repo.db.RLock()
	linked := make(map[string]bool, len(repo.db.table))
	for _, ev := range repo.db.table {
		if ev.ScheduleItemID.Valid {
			linked[ev.ScheduleItemID.String] = true
		}
	}
	repo.db.RUnlock()

	repo.items.RLock()
	var items []schedule.Item
	for _, item := range repo.items.items {
		if !linked[item.ID] && item.Status != schedule.StatusCompleted {
			items = append(items, *item)
		}
	}
	repo.items.RUnlock()
	sort.Slice(items, func(i, j int) bool { return items[i].ScheduledDate.Before(items[j].ScheduledDate) })

	repo.enrollments.RLock()
	defer repo.enrollments.RUnlock()
	orphans := make([]calendar.OrphanItem, 0, len(items))
	for _, item := range items {
		userID := ""
		if e, ok := repo.enrollments.table[item.EnrollmentID]; ok {
			userID = e.UserID
		}
		orphans = append(orphans, calendar.OrphanItem{ItemID: item.ID, UserID: userID})
	}
	return orphans, nil
}
