package course

import (
	"context"
	"errors"
	"sort"
)

var (
	// errors
	ErrNotFound = errors.New("course not found")
)

type (
	// Repository gives read-only access to the authored course content tree.
	Repository interface {
		// GetCourseTree returns the course with its modules, lessons and
		// quizzes fully loaded, ordered by module then lesson order.
		GetCourseTree(ctx context.Context, courseID string) (Course, error)
	}

	Course struct {
		ID      string   `json:"id"`
		Title   string   `json:"title"`
		Modules []Module `json:"modules"`
	}

	Module struct {
		ID       string   `json:"id"`
		CourseID string   `json:"course_id"`
		Title    string   `json:"title"`
		Order    int      `json:"order"`
		Lessons  []Lesson `json:"lessons"`
		Quiz     *Quiz    `json:"quiz,omitempty"` // zero-or-one per module
	}

	Lesson struct {
		ID              string `json:"id"`
		ModuleID        string `json:"module_id"`
		Title           string `json:"title"`
		Order           int    `json:"order"`
		DurationMinutes int    `json:"duration_minutes"`
		IsRequired      bool   `json:"is_required"`
	}

	Quiz struct {
		ID               string `json:"id"`
		ModuleID         string `json:"module_id"`
		Title            string `json:"title"`
		TimeLimitMinutes int    `json:"time_limit_minutes"`
		PassingScore     int    `json:"passing_score"`
	}
)

// OrderedModules returns the course's modules sorted by their order.
func (c Course) OrderedModules() []Module {
	mods := make([]Module, len(c.Modules))
	copy(mods, c.Modules)
	sort.SliceStable(mods, func(i, j int) bool { return mods[i].Order < mods[j].Order })
	return mods
}

// OrderedLessons flattens the course into its total lesson sequence:
// module order first, then lesson order within each module.
func (c Course) OrderedLessons() []Lesson {
	var lessons []Lesson
	for _, mod := range c.OrderedModules() {
		lessons = append(lessons, mod.OrderedLessons()...)
	}
	return lessons
}

func (m Module) OrderedLessons() []Lesson {
	lessons := make([]Lesson, len(m.Lessons))
	copy(lessons, m.Lessons)
	sort.SliceStable(lessons, func(i, j int) bool { return lessons[i].Order < lessons[j].Order })
	return lessons
}

func (m Module) HasLessons() bool { return len(m.Lessons) > 0 }
