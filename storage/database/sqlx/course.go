package sqlxrepos

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/ratiba/core/course"
)

type courseRepository struct {
	db *sqlx.DB
}

var _ course.Repository = (*courseRepository)(nil)

func NewCourseRepository(db *sqlx.DB) *courseRepository {
	return &courseRepository{db: db}
}

type (
	courseRow struct {
		ID    string `db:"id"`
		Title string `db:"title"`
	}

	moduleRow struct {
		ID       string `db:"id"`
		CourseID string `db:"course_id"`
		Title    string `db:"title"`
		Order    int    `db:"order"`
	}

	lessonRow struct {
		ID              string `db:"id"`
		ModuleID        string `db:"module_id"`
		Title           string `db:"title"`
		Order           int    `db:"order"`
		DurationMinutes int    `db:"duration_minutes"`
		IsRequired      bool   `db:"is_required"`
	}

	quizRow struct {
		ID               string `db:"id"`
		ModuleID         string `db:"module_id"`
		Title            string `db:"title"`
		TimeLimitMinutes int    `db:"time_limit_minutes"`
		PassingScore     int    `db:"passing_score"`
	}
)

func (repo courseRepository) GetCourseTree(ctx context.Context, courseID string) (course.Course, error) {
	var cr courseRow
	err := repo.db.GetContext(ctx, &cr, `SELECT id, title FROM courses WHERE id = $1`, courseID)
	if err != nil {
		if err == sql.ErrNoRows {
			return course.Course{}, course.ErrNotFound
		}
		return course.Course{}, errors.Wrap(err, "querying course")
	}

	var modRows []moduleRow
	err = repo.db.SelectContext(ctx, &modRows,
		`SELECT id, course_id, title, "order" FROM course_modules WHERE course_id = $1 ORDER BY "order"`, courseID)
	if err != nil {
		return course.Course{}, errors.Wrap(err, "querying course modules")
	}

	crs := course.Course{ID: cr.ID, Title: cr.Title}
	if len(modRows) == 0 {
		return crs, nil
	}

	modIDs := make([]string, 0, len(modRows))
	for _, m := range modRows {
		modIDs = append(modIDs, m.ID)
	}

	var lessonRows []lessonRow
	q, args, err := sqlx.In(
		`SELECT id, module_id, title, "order", duration_minutes, is_required FROM lessons WHERE module_id IN (?) ORDER BY "order"`, modIDs)
	if err != nil {
		return course.Course{}, errors.Wrap(err, "building lessons query")
	}
	if err = repo.db.SelectContext(ctx, &lessonRows, repo.db.Rebind(q), args...); err != nil {
		return course.Course{}, errors.Wrap(err, "querying lessons")
	}

	var quizRows []quizRow
	q, args, err = sqlx.In(
		`SELECT id, module_id, title, time_limit_minutes, passing_score FROM quizzes WHERE module_id IN (?)`, modIDs)
	if err != nil {
		return course.Course{}, errors.Wrap(err, "building quizzes query")
	}
	if err = repo.db.SelectContext(ctx, &quizRows, repo.db.Rebind(q), args...); err != nil {
		return course.Course{}, errors.Wrap(err, "querying quizzes")
	}

	lessonsByMod := make(map[string][]course.Lesson, len(modRows))
	for _, l := range lessonRows {
		lessonsByMod[l.ModuleID] = append(lessonsByMod[l.ModuleID], course.Lesson{
			ID:              l.ID,
			ModuleID:        l.ModuleID,
			Title:           l.Title,
			Order:           l.Order,
			DurationMinutes: l.DurationMinutes,
			IsRequired:      l.IsRequired,
		})
	}
	quizByMod := make(map[string]*course.Quiz, len(quizRows))
	for _, qr := range quizRows {
		qr := qr
		quizByMod[qr.ModuleID] = &course.Quiz{
			ID:               qr.ID,
			ModuleID:         qr.ModuleID,
			Title:            qr.Title,
			TimeLimitMinutes: qr.TimeLimitMinutes,
			PassingScore:     qr.PassingScore,
		}
	}

	crs.Modules = make([]course.Module, 0, len(modRows))
	for _, m := range modRows {
		crs.Modules = append(crs.Modules, course.Module{
			ID:       m.ID,
			CourseID: m.CourseID,
			Title:    m.Title,
			Order:    m.Order,
			Lessons:  lessonsByMod[m.ID],
			Quiz:     quizByMod[m.ID],
		})
	}
	return crs, nil
}
