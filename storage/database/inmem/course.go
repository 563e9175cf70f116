package inmemdb

import (
	"context"

	"github.com/trezcool/ratiba/core/course"
)

type courseRepository struct {
	db *courseTable
}

var _ course.Repository = (*courseRepository)(nil) // interface compliance check

func NewCourseRepository(db *DB) *courseRepository {
	return &courseRepository{db: db.course}
}

func (repo *courseRepository) GetCourseTree(ctx context.Context, courseID string) (course.Course, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if c, ok := repo.db.table[courseID]; ok {
		return *c, nil
	}
	return course.Course{}, course.ErrNotFound
}
