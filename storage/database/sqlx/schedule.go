package sqlxrepos

import (
	"context"
	"database/sql"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/ratiba/core/schedule"
)

type scheduleRepository struct {
	db *sqlx.DB
}

var _ schedule.Repository = (*scheduleRepository)(nil)

func NewScheduleRepository(db *sqlx.DB) *scheduleRepository {
	return &scheduleRepository{db: db}
}

type scheduleItemRow struct {
	ID                       string         `db:"id"`
	EnrollmentID             string         `db:"enrollment_id"`
	CourseID                 string         `db:"course_id"`
	LessonID                 sql.NullString `db:"lesson_id"`
	QuizID                   sql.NullString `db:"quiz_id"`
	ModuleID                 sql.NullString `db:"module_id"`
	ItemType                 string         `db:"item_type"`
	ScheduledDate            time.Time      `db:"scheduled_date"`
	EstimatedDurationMinutes int            `db:"estimated_duration_minutes"`
	Priority                 string         `db:"priority"`
	Status                   string         `db:"status"`
	AutoGenerated            bool           `db:"auto_generated"`
	Metadata                 []byte         `db:"metadata"`
	CompletedAt              sql.NullTime   `db:"completed_at"`
	CreatedAt                time.Time      `db:"created_at"`
	UpdatedAt                time.Time      `db:"updated_at"`
}

type scheduleItemDetailRow struct {
	scheduleItemRow
	LessonTitle sql.NullString `db:"lesson_title"`
	QuizTitle   sql.NullString `db:"quiz_title"`
	ModuleTitle sql.NullString `db:"module_title"`
}

func (r scheduleItemRow) toItem() (schedule.Item, error) {
	item := schedule.Item{
		ID:                       r.ID,
		EnrollmentID:             r.EnrollmentID,
		CourseID:                 r.CourseID,
		LessonID:                 null.NewString(r.LessonID.String, r.LessonID.Valid),
		QuizID:                   null.NewString(r.QuizID.String, r.QuizID.Valid),
		ModuleID:                 null.NewString(r.ModuleID.String, r.ModuleID.Valid),
		ItemType:                 schedule.ItemType(r.ItemType),
		ScheduledDate:            r.ScheduledDate,
		EstimatedDurationMinutes: r.EstimatedDurationMinutes,
		Priority:                 schedule.Priority(r.Priority),
		Status:                   schedule.ItemStatus(r.Status),
		AutoGenerated:            r.AutoGenerated,
		CompletedAt:              null.NewTime(r.CompletedAt.Time, r.CompletedAt.Valid),
		CreatedAt:                r.CreatedAt,
		UpdatedAt:                r.UpdatedAt,
	}
	if len(r.Metadata) > 0 {
		if err := json.Unmarshal(r.Metadata, &item.Metadata); err != nil {
			return item, errors.Wrap(err, "decoding item metadata")
		}
	}
	return item, nil
}

const itemColumns = `id, enrollment_id, course_id, lesson_id, quiz_id, module_id, item_type, scheduled_date,
	estimated_duration_minutes, priority, status, auto_generated, metadata, completed_at, created_at, updated_at`

func (repo scheduleRepository) CreateItems(ctx context.Context, items []schedule.Item) ([]schedule.Item, error) {
	const q = `
		INSERT INTO schedule_items (` + itemColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`

	now := time.Now().UTC()
	created := make([]schedule.Item, 0, len(items))
	for _, item := range items {
		if item.ID == "" {
			item.ID = uuid.New().String()
		}
		item.CreatedAt = now
		item.UpdatedAt = now

		var meta []byte
		if item.Metadata != nil {
			var err error
			if meta, err = json.Marshal(item.Metadata); err != nil {
				return nil, errors.Wrap(err, "encoding item metadata")
			}
		}
		_, err := repo.db.ExecContext(ctx, q,
			item.ID, item.EnrollmentID, item.CourseID,
			item.LessonID.Ptr(), item.QuizID.Ptr(), item.ModuleID.Ptr(),
			string(item.ItemType), item.ScheduledDate, item.EstimatedDurationMinutes,
			string(item.Priority), string(item.Status), item.AutoGenerated,
			meta, item.CompletedAt.Ptr(), item.CreatedAt, item.UpdatedAt,
		)
		if err != nil {
			return nil, errors.Wrap(err, "inserting schedule item")
		}
		created = append(created, item)
	}
	return created, nil
}

func (repo scheduleRepository) GetItemDetail(ctx context.Context, id string) (schedule.ItemDetail, error) {
	var row scheduleItemDetailRow
	err := repo.db.GetContext(ctx, &row, `
		SELECT si.id, si.enrollment_id, si.course_id, si.lesson_id, si.quiz_id, si.module_id, si.item_type,
			si.scheduled_date, si.estimated_duration_minutes, si.priority, si.status, si.auto_generated,
			si.metadata, si.completed_at, si.created_at, si.updated_at,
			l.title AS lesson_title, q.title AS quiz_title, m.title AS module_title
		FROM schedule_items si
		LEFT JOIN lessons l ON l.id = si.lesson_id
		LEFT JOIN quizzes q ON q.id = si.quiz_id
		LEFT JOIN course_modules m ON m.id = si.module_id
		WHERE si.id = $1`, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return schedule.ItemDetail{}, schedule.ErrItemNotFound
		}
		return schedule.ItemDetail{}, errors.Wrap(err, "querying schedule item")
	}

	item, err := row.toItem()
	if err != nil {
		return schedule.ItemDetail{}, err
	}
	return schedule.ItemDetail{
		Item:        item,
		LessonTitle: null.NewString(row.LessonTitle.String, row.LessonTitle.Valid),
		QuizTitle:   null.NewString(row.QuizTitle.String, row.QuizTitle.Valid),
		ModuleTitle: null.NewString(row.ModuleTitle.String, row.ModuleTitle.Valid),
	}, nil
}

func (repo scheduleRepository) FirstMatchingItem(ctx context.Context, enrollmentID string, ref schedule.ContentRef) (schedule.Item, error) {
	if ref.IsZero() {
		return schedule.Item{}, schedule.ErrItemNotFound
	}

	cond, arg := "lesson_id = $2", ref.LessonID
	if ref.LessonID == "" {
		cond, arg = "quiz_id = $2", ref.QuizID
	}
	var row scheduleItemRow
	err := repo.db.GetContext(ctx, &row, `
		SELECT `+itemColumns+` FROM schedule_items
		WHERE enrollment_id = $1 AND `+cond+` AND status <> 'completed'
		ORDER BY scheduled_date LIMIT 1`, enrollmentID, arg)
	if err != nil {
		if err == sql.ErrNoRows {
			return schedule.Item{}, schedule.ErrItemNotFound
		}
		return schedule.Item{}, errors.Wrap(err, "querying matching schedule item")
	}
	return row.toItem()
}

func (repo scheduleRepository) MarkItemCompleted(ctx context.Context, id string, completedAt time.Time) error {
	_, err := repo.db.ExecContext(ctx, `
		UPDATE schedule_items SET status = 'completed', completed_at = $2, updated_at = $3
		WHERE id = $1`, id, completedAt, time.Now().UTC())
	return errors.Wrap(err, "completing schedule item")
}

func (repo scheduleRepository) MarkOverdueItems(ctx context.Context, enrollmentID string, now time.Time) (int, error) {
	res, err := repo.db.ExecContext(ctx, `
		UPDATE schedule_items SET status = 'overdue', updated_at = $3
		WHERE enrollment_id = $1 AND status = 'pending' AND scheduled_date < $2`,
		enrollmentID, now, time.Now().UTC())
	if err != nil {
		return 0, errors.Wrap(err, "marking overdue items")
	}
	n, err := res.RowsAffected()
	return int(n), errors.Wrap(err, "counting overdue items")
}

func (repo scheduleRepository) UpdateItemSchedule(ctx context.Context, id string, date *time.Time, status *schedule.ItemStatus) error {
	sets := make([]string, 0, 3)
	args := []interface{}{id}
	if date != nil {
		args = append(args, *date)
		sets = append(sets, "scheduled_date = $"+strconv.Itoa(len(args)))
	}
	if status != nil {
		args = append(args, string(*status))
		sets = append(sets, "status = $"+strconv.Itoa(len(args)))
	}
	if len(sets) == 0 {
		return nil
	}
	args = append(args, time.Now().UTC())
	sets = append(sets, "updated_at = $"+strconv.Itoa(len(args)))

	_, err := repo.db.ExecContext(ctx,
		"UPDATE schedule_items SET "+strings.Join(sets, ", ")+" WHERE id = $1", args...)
	return errors.Wrap(err, "updating schedule item")
}

func (repo scheduleRepository) PendingItemsAfter(ctx context.Context, enrollmentID string, after time.Time) ([]schedule.Item, error) {
	var rows []scheduleItemRow
	err := repo.db.SelectContext(ctx, &rows, `
		SELECT `+itemColumns+` FROM schedule_items
		WHERE enrollment_id = $1 AND status = 'pending' AND scheduled_date > $2
		ORDER BY scheduled_date`, enrollmentID, after)
	if err != nil {
		return nil, errors.Wrap(err, "querying pending schedule items")
	}

	items := make([]schedule.Item, 0, len(rows))
	for _, row := range rows {
		item, err := row.toItem()
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

func (repo scheduleRepository) MilestoneExists(ctx context.Context, enrollmentID, moduleID string) (bool, error) {
	var exists bool
	err := repo.db.GetContext(ctx, &exists, `
		SELECT EXISTS (
			SELECT 1 FROM schedule_items
			WHERE enrollment_id = $1 AND module_id = $2 AND item_type = 'milestone'
		)`, enrollmentID, moduleID)
	return exists, errors.Wrap(err, "checking milestone existence")
}

func (repo scheduleRepository) ModuleLessonProgress(ctx context.Context, enrollmentID, moduleID string) (total, completed int, err error) {
	var counts struct {
		Total     int `db:"total"`
		Completed int `db:"completed"`
	}
	err = repo.db.GetContext(ctx, &counts, `
		SELECT COUNT(*) AS total,
			COUNT(*) FILTER (WHERE status = 'completed') AS completed
		FROM schedule_items
		WHERE enrollment_id = $1 AND module_id = $2 AND item_type = 'lesson'`,
		enrollmentID, moduleID)
	if err != nil {
		return 0, 0, errors.Wrap(err, "counting module lesson progress")
	}
	return counts.Total, counts.Completed, nil
}

type preferencesRow struct {
	UserID            string        `db:"user_id"`
	StudyDays         pq.Int64Array `db:"study_days"` // ISO weekdays, 1=Mon .. 7=Sun
	PreferredTime     string        `db:"preferred_time"`
	DailyStudyMinutes int           `db:"daily_study_minutes"`
	StudyMode         string        `db:"study_mode"`
}

func (repo scheduleRepository) GetPreferences(ctx context.Context, userID string) (schedule.Preferences, error) {
	var row preferencesRow
	err := repo.db.GetContext(ctx, &row, `
		SELECT user_id, study_days, preferred_time, daily_study_minutes, study_mode
		FROM learner_preferences WHERE user_id = $1`, userID)
	if err != nil {
		if err == sql.ErrNoRows {
			return schedule.Preferences{}, schedule.ErrPreferencesNotFound
		}
		return schedule.Preferences{}, errors.Wrap(err, "querying learner preferences")
	}

	days := make([]time.Weekday, 0, len(row.StudyDays))
	for _, d := range row.StudyDays {
		days = append(days, time.Weekday(d%7)) // ISO 7 (Sunday) maps to Go's 0
	}
	return schedule.Preferences{
		UserID:            row.UserID,
		StudyDays:         days,
		PreferredTime:     row.PreferredTime,
		DailyStudyMinutes: row.DailyStudyMinutes,
		StudyMode:         schedule.StudyMode(row.StudyMode),
	}, nil
}
