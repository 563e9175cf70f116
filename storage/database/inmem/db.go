package inmemdb

import (
	"sync"

	"github.com/trezcool/ratiba/core/calendar"
	"github.com/trezcool/ratiba/core/course"
	"github.com/trezcool/ratiba/core/enrollment"
	"github.com/trezcool/ratiba/core/reminder"
	"github.com/trezcool/ratiba/core/schedule"
	"github.com/trezcool/ratiba/core/user"
)

// DB is a map-backed store used in tests and local development.
type (
	DB struct {
		course     *courseTable
		enrollment *enrollmentTable
		user       *userTable
		schedule   *scheduleTable
		calendar   *calendarTable
		reminder   *reminderTable
	}

	courseTable struct {
		sync.RWMutex
		table map[string]*course.Course
	}

	enrollmentTable struct {
		sync.RWMutex
		table map[string]*enrollment.Enrollment
	}

	userTable struct {
		sync.RWMutex
		table map[string]*user.User
	}

	scheduleTable struct {
		sync.RWMutex
		items map[string]*schedule.Item
		prefs map[string]*schedule.Preferences // keyed by user ID
	}

	calendarTable struct {
		sync.RWMutex
		table map[string]*calendar.Event
	}

	reminderTable struct {
		sync.RWMutex
		logs  []reminder.Log
		state reminder.SchedulerState
	}
)

func Open() (*DB, error) {
	db := &DB{
		course:     &courseTable{table: make(map[string]*course.Course)},
		enrollment: &enrollmentTable{table: make(map[string]*enrollment.Enrollment)},
		user:       &userTable{table: make(map[string]*user.User)},
		schedule: &scheduleTable{
			items: make(map[string]*schedule.Item),
			prefs: make(map[string]*schedule.Preferences),
		},
		calendar: &calendarTable{table: make(map[string]*calendar.Event)},
		reminder: &reminderTable{},
	}
	return db, nil
}

// SetCourse seeds a course tree.
func (db *DB) SetCourse(c course.Course) {
	db.course.Lock()
	defer db.course.Unlock()
	db.course.table[c.ID] = &c
}

// SetEnrollment seeds an enrollment.
func (db *DB) SetEnrollment(e enrollment.Enrollment) {
	db.enrollment.Lock()
	defer db.enrollment.Unlock()
	db.enrollment.table[e.ID] = &e
}

// SetUser seeds a user.
func (db *DB) SetUser(u user.User) {
	db.user.Lock()
	defer db.user.Unlock()
	db.user.table[u.ID] = &u
}

// SetPreferences seeds a learner's preferences.
func (db *DB) SetPreferences(p schedule.Preferences) {
	db.schedule.Lock()
	defer db.schedule.Unlock()
	db.schedule.prefs[p.UserID] = &p
}
