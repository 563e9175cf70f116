package enrollment

import (
	"testing"
	"time"

	"github.com/volatiletech/null/v8"
)

func TestEnrollment_LastActivityAt(t *testing.T) {
	enrolled := time.Date(2021, 3, 1, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		enr  Enrollment
		want time.Time
	}{
		{name: "never accessed", enr: Enrollment{EnrolledAt: enrolled}, want: enrolled},
		{
			name: "accessed after enrolling",
			enr:  Enrollment{EnrolledAt: enrolled, LastAccessedAt: null.TimeFrom(enrolled.AddDate(0, 0, 5))},
			want: enrolled.AddDate(0, 0, 5),
		},
		{
			name: "stale access date ignored",
			enr:  Enrollment{EnrolledAt: enrolled, LastAccessedAt: null.TimeFrom(enrolled.AddDate(0, 0, -5))},
			want: enrolled,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.enr.LastActivityAt(); !got.Equal(tt.want) {
				t.Errorf("LastActivityAt() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEnrollment_DaysInactive(t *testing.T) {
	enrolled := time.Date(2021, 3, 1, 10, 0, 0, 0, time.UTC)
	enr := Enrollment{EnrolledAt: enrolled}

	tests := []struct {
		name string
		now  time.Time
		want int
	}{
		{name: "same day", now: enrolled.Add(3 * time.Hour), want: 0},
		{name: "exactly 7 days", now: enrolled.AddDate(0, 0, 7), want: 7},
		{name: "7 days and change still 7", now: enrolled.AddDate(0, 0, 7).Add(20 * time.Hour), want: 7},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := enr.DaysInactive(tt.now); got != tt.want {
				t.Errorf("DaysInactive() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestEnrollment_InProgress(t *testing.T) {
	tests := []struct {
		name     string
		progress float64
		want     bool
	}{
		{name: "not started", progress: 0, want: false},
		{name: "in progress", progress: 45, want: true},
		{name: "finished", progress: 100, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			enr := Enrollment{ProgressPercentage: tt.progress}
			if got := enr.InProgress(); got != tt.want {
				t.Errorf("InProgress() = %v, want %v", got, tt.want)
			}
		})
	}
}
