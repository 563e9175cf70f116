package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestItemStatus_CanTransitionTo(t *testing.T) {
	tests := []struct {
		name string
		from ItemStatus
		to   ItemStatus
		want bool
	}{
		{name: "pending to completed", from: StatusPending, to: StatusCompleted, want: true},
		{name: "pending to overdue", from: StatusPending, to: StatusOverdue, want: true},
		{name: "overdue to completed", from: StatusOverdue, to: StatusCompleted, want: true},
		{name: "completed is terminal", from: StatusCompleted, to: StatusPending, want: false},
		{name: "completed to overdue", from: StatusCompleted, to: StatusOverdue, want: false},
		{name: "overdue to pending", from: StatusOverdue, to: StatusPending, want: false},
		{name: "pending to pending", from: StatusPending, to: StatusPending, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.from.CanTransitionTo(tt.to); got != tt.want {
				t.Errorf("CanTransitionTo() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestStudyMode_PacingFactor(t *testing.T) {
	assert.Equal(t, float64(1), ModeIntensive.PacingFactor())
	assert.Equal(t, 1.5, ModeRegular.PacingFactor())
	assert.Equal(t, float64(2), ModeExtensive.PacingFactor())
	assert.Equal(t, 1.5, StudyMode("bogus").PacingFactor()) // unknown falls back to regular
}

func TestPreferences_Clean(t *testing.T) {
	defaults := DefaultPreferences()

	tests := []struct {
		name  string
		prefs Preferences
		want  Preferences
	}{
		{
			name:  "empty gets defaults",
			prefs: Preferences{},
			want:  defaults,
		},
		{
			name: "valid preserved",
			prefs: Preferences{
				StudyDays:         []time.Weekday{time.Saturday, time.Sunday},
				PreferredTime:     "19:30",
				DailyStudyMinutes: 45,
				StudyMode:         ModeIntensive,
			},
			want: Preferences{
				StudyDays:         []time.Weekday{time.Saturday, time.Sunday},
				PreferredTime:     "19:30",
				DailyStudyMinutes: 45,
				StudyMode:         ModeIntensive,
			},
		},
		{
			name: "bad fields clamped independently",
			prefs: Preferences{
				StudyDays:         []time.Weekday{time.Weekday(9), time.Friday},
				PreferredTime:     "25:99",
				DailyStudyMinutes: -10,
				StudyMode:         "chaotic",
			},
			want: Preferences{
				StudyDays:         []time.Weekday{time.Friday},
				PreferredTime:     defaults.PreferredTime,
				DailyStudyMinutes: defaults.DailyStudyMinutes,
				StudyMode:         defaults.StudyMode,
			},
		},
		{
			name: "all days invalid falls back to defaults",
			prefs: Preferences{
				StudyDays: []time.Weekday{time.Weekday(7), time.Weekday(42)},
			},
			want: defaults,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.prefs.Clean()
			assert.Equal(t, tt.want.StudyDays, tt.prefs.StudyDays)
			assert.Equal(t, tt.want.PreferredTime, tt.prefs.PreferredTime)
			assert.Equal(t, tt.want.DailyStudyMinutes, tt.prefs.DailyStudyMinutes)
			assert.Equal(t, tt.want.StudyMode, tt.prefs.StudyMode)
		})
	}
}

func TestPreferences_NextStudyDay(t *testing.T) {
	prefs := Preferences{StudyDays: []time.Weekday{time.Monday, time.Wednesday}}

	mon := time.Date(2021, 3, 1, 0, 0, 0, 0, time.UTC) // a Monday
	assert.Equal(t, mon, prefs.NextStudyDay(mon))

	tue := mon.AddDate(0, 0, 1)
	assert.Equal(t, mon.AddDate(0, 0, 2), prefs.NextStudyDay(tue)) // rolls to Wednesday

	thu := mon.AddDate(0, 0, 3)
	assert.Equal(t, mon.AddDate(0, 0, 7), prefs.NextStudyDay(thu)) // rolls to next Monday
}

func TestPreferences_AtPreferredTime(t *testing.T) {
	prefs := Preferences{PreferredTime: "18:45"}
	day := time.Date(2021, 3, 1, 3, 17, 55, 12, time.UTC)
	got := prefs.AtPreferredTime(day)
	assert.Equal(t, time.Date(2021, 3, 1, 18, 45, 0, 0, time.UTC), got)
}
