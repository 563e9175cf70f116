package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/ratiba/core/calendar"
)

type calendarRepository struct {
	db *sqlx.DB
}

var _ calendar.Repository = (*calendarRepository)(nil)

func NewCalendarRepository(db *sqlx.DB) *calendarRepository {
	return &calendarRepository{db: db}
}

type calendarEventRow struct {
	ID             string         `db:"id"`
	ScheduleItemID sql.NullString `db:"schedule_item_id"`
	Title          string         `db:"title"`
	Description    string         `db:"description"`
	EventType      string         `db:"event_type"`
	StartDate      time.Time      `db:"start_date"`
	EndDate        time.Time      `db:"end_date"`
	CourseID       string         `db:"course_id"`
	CreatedBy      string         `db:"created_by"`
	AutoSync       bool           `db:"auto_sync"`
	CreatedAt      time.Time      `db:"created_at"`
	UpdatedAt      time.Time      `db:"updated_at"`
}

func (r calendarEventRow) toEvent() calendar.Event {
	return calendar.Event{
		ID:             r.ID,
		ScheduleItemID: null.NewString(r.ScheduleItemID.String, r.ScheduleItemID.Valid),
		Title:          r.Title,
		Description:    r.Description,
		EventType:      r.EventType,
		StartDate:      r.StartDate,
		EndDate:        r.EndDate,
		CourseID:       r.CourseID,
		CreatedBy:      r.CreatedBy,
		AutoSync:       r.AutoSync,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
}

const eventColumns = `id, schedule_item_id, title, description, event_type, start_date, end_date, course_id, created_by, auto_sync, created_at, updated_at`

func (repo calendarRepository) CreateEvent(ctx context.Context, event calendar.Event) (calendar.Event, error) {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	event.CreatedAt = now
	event.UpdatedAt = now

	_, err := repo.db.ExecContext(ctx, `
		INSERT INTO calendar_events (`+eventColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		event.ID, event.ScheduleItemID.Ptr(), event.Title, event.Description, event.EventType,
		event.StartDate, event.EndDate, event.CourseID, event.CreatedBy, event.AutoSync,
		event.CreatedAt, event.UpdatedAt,
	)
	if err != nil {
		return calendar.Event{}, errors.Wrap(err, "inserting calendar event")
	}
	return event, nil
}

func (repo calendarRepository) GetEventByID(ctx context.Context, id string) (calendar.Event, error) {
	var row calendarEventRow
	err := repo.db.GetContext(ctx, &row, `
		SELECT `+eventColumns+` FROM calendar_events WHERE id = $1`, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return calendar.Event{}, calendar.ErrNotFound
		}
		return calendar.Event{}, errors.Wrap(err, "querying calendar event")
	}
	return row.toEvent(), nil
}

func (repo calendarRepository) GetEventByItemID(ctx context.Context, itemID string) (calendar.Event, error) {
	var row calendarEventRow
	err := repo.db.GetContext(ctx, &row, `
		SELECT `+eventColumns+` FROM calendar_events WHERE schedule_item_id = $1`, itemID)
	if err != nil {
		if err == sql.ErrNoRows {
			return calendar.Event{}, calendar.ErrNotFound
		}
		return calendar.Event{}, errors.Wrap(err, "querying calendar event by item")
	}
	return row.toEvent(), nil
}

func (repo calendarRepository) AppendEventDescription(ctx context.Context, eventID, note string) error {
	_, err := repo.db.ExecContext(ctx, `
		UPDATE calendar_events SET description = description || $2, updated_at = $3
		WHERE id = $1`, eventID, note, time.Now().UTC())
	return errors.Wrap(err, "appending event description")
}

func (repo calendarRepository) UpdateEventSchedule(ctx context.Context, eventID string, start, end time.Time) error {
	_, err := repo.db.ExecContext(ctx, `
		UPDATE calendar_events SET start_date = $2, end_date = $3, updated_at = $4
		WHERE id = $1`, eventID, start, end, time.Now().UTC())
	return errors.Wrap(err, "updating event schedule")
}

func (repo calendarRepository) OrphanItems(ctx context.Context) ([]calendar.OrphanItem, error) {
	var rows []struct {
		ItemID string `db:"item_id"`
		UserID string `db:"user_id"`
	}
	err := repo.db.SelectContext(ctx, &rows, `
		SELECT si.id AS item_id, e.user_id
		FROM schedule_items si
		JOIN enrollments e ON e.id = si.enrollment_id
		LEFT JOIN calendar_events ce ON ce.schedule_item_id = si.id
		WHERE ce.id IS NULL AND si.status <> 'completed'
		ORDER BY si.scheduled_date`)
	if err != nil {
		return nil, errors.Wrap(err, "querying orphan schedule items")
	}

	orphans := make([]calendar.OrphanItem, 0, len(rows))
	for _, row := range rows {
		orphans = append(orphans, calendar.OrphanItem{ItemID: row.ItemID, UserID: row.UserID})
	}
	return orphans, nil
}
