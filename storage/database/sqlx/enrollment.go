package sqlxrepos

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/ratiba/core/enrollment"
)

type enrollmentRepository struct {
	db *sqlx.DB
}

var _ enrollment.Repository = (*enrollmentRepository)(nil)

func NewEnrollmentRepository(db *sqlx.DB) *enrollmentRepository {
	return &enrollmentRepository{db: db}
}

type enrollmentRow struct {
	ID                 string       `db:"id"`
	UserID             string       `db:"user_id"`
	CourseID           string       `db:"course_id"`
	ProgressPercentage float64      `db:"progress_percentage"`
	EnrolledAt         sql.NullTime `db:"enrolled_at"`
	LastAccessedAt     sql.NullTime `db:"last_accessed_at"`
	CompletedAt        sql.NullTime `db:"completed_at"`
	IsActive           bool         `db:"is_active"`
}

func (r enrollmentRow) toEnrollment() enrollment.Enrollment {
	return enrollment.Enrollment{
		ID:                 r.ID,
		UserID:             r.UserID,
		CourseID:           r.CourseID,
		ProgressPercentage: r.ProgressPercentage,
		EnrolledAt:         r.EnrolledAt.Time,
		LastAccessedAt:     null.NewTime(r.LastAccessedAt.Time, r.LastAccessedAt.Valid),
		CompletedAt:        null.NewTime(r.CompletedAt.Time, r.CompletedAt.Valid),
		IsActive:           r.IsActive,
	}
}

func (repo enrollmentRepository) GetEnrollmentByID(ctx context.Context, id string) (enrollment.Enrollment, error) {
	var row enrollmentRow
	err := repo.db.GetContext(ctx, &row, `
		SELECT id, user_id, course_id, progress_percentage, enrolled_at, last_accessed_at, completed_at, is_active
		FROM enrollments WHERE id = $1`, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return enrollment.Enrollment{}, enrollment.ErrNotFound
		}
		return enrollment.Enrollment{}, errors.Wrap(err, "querying enrollment")
	}
	return row.toEnrollment(), nil
}
