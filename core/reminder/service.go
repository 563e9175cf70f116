package reminder

import (
	"context"
	"fmt"
	"net/mail"
	"sort"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/ratiba/core"
)

var nowFunc = time.Now // mockable

// Engine scans enrollments for inactivity and drives the deduplicated,
// escalating reminder cadence over the fixed tiers plus the recurring regime.
type Engine struct {
	repo    Repository
	mailSvc core.EmailService
	log     core.Logger
	pause   time.Duration // inter-send throttle
}

func NewEngine(repo Repository, mailSvc core.EmailService, log core.Logger) *Engine {
	return &Engine{repo: repo, mailSvc: mailSvc, log: log, pause: core.Conf.Scheduler.InterSendPause}
}

// SendAllReminders runs every tier in the fixed order (3, 7, 14, then
// recurring-14) and returns the aggregated outcome. Transport failures are
// logged per enrollment and never abort the run.
func (svc *Engine) SendAllReminders(ctx context.Context) (Stats, error) {
	var stats Stats
	for _, days := range Tiers {
		ts, err := svc.SendRemindersForDays(ctx, days, false)
		if err != nil {
			return stats, err
		}
		stats.add(ts)
	}
	ts, err := svc.SendRemindersForDays(ctx, RecurringBaseDays, true)
	if err != nil {
		return stats, err
	}
	stats.add(ts)
	return stats, nil
}

// SendRemindersForDays runs a single tier; the admin surface uses it to
// trigger one tier out of band.
func (svc *Engine) SendRemindersForDays(ctx context.Context, days int, recurring bool) (TierStats, error) {
	stats := TierStats{Period: days, Recurring: recurring}

	var (
		candidates []Candidate
		err        error
	)
	now := nowFunc()
	if recurring {
		candidates, err = svc.repo.FindRecurringCandidates(ctx, now)
	} else {
		candidates, err = svc.repo.FindInactiveExact(ctx, days, now)
	}
	if err != nil {
		return stats, errors.Wrapf(err, "querying candidates for %d-day tier", days)
	}

	// most recently active learners first
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Enrollment.LastActivityAt().After(candidates[j].Enrollment.LastActivityAt())
	})

	stats.Total = len(candidates)
	for _, cand := range candidates {
		sent, err := svc.hasReminderBeenSent(ctx, cand.Enrollment.ID, days, recurring)
		if err != nil {
			svc.log.Error(fmt.Sprintf("dedup check for enrollment %s: %v", cand.Enrollment.ID, err), err)
			stats.Skipped++
			continue
		}
		if sent {
			stats.Skipped++
			continue
		}

		if err := svc.sendReminder(cand); err != nil {
			svc.log.Error(fmt.Sprintf("sending %d-day reminder to %s: %v", days, cand.User.Email, err), err)
			stats.Failure++
			svc.logOutcome(ctx, cand.Enrollment.ID, days, false)
		} else {
			stats.Success++
			svc.logOutcome(ctx, cand.Enrollment.ID, days, true)
		}

		if svc.pause > 0 {
			time.Sleep(svc.pause)
		}
	}
	return stats, nil
}

// hasReminderBeenSent is the dedup gate consulted before every send.
// Non-recurring: any log row for the exact pair within the cool-down window.
// Recurring: only due when the latest successful 14-day log is at least 14
// days old and that age is an exact multiple of 14; never due before the
// first 14-day reminder succeeded.
func (svc *Engine) hasReminderBeenSent(ctx context.Context, enrollmentID string, days int, recurring bool) (bool, error) {
	now := nowFunc()
	if !recurring {
		return svc.repo.AnyLogSince(ctx, enrollmentID, days, now.Add(-resendCooldown))
	}

	last, err := svc.repo.LastSuccessfulLog(ctx, enrollmentID, RecurringBaseDays)
	if err != nil {
		if err == ErrLogNotFound {
			return true, nil // recurring regime starts after the first 14-day reminder
		}
		return true, err
	}
	age := int(now.Sub(last.SentAt).Hours() / 24)
	due := age >= RecurringIntervalDays && age%RecurringIntervalDays == 0
	return !due, nil
}

func (svc *Engine) sendReminder(cand Candidate) error {
	enr := cand.Enrollment
	daysInactive := enr.DaysInactive(nowFunc())
	msg := &core.EmailMessage{
		To:           []mail.Address{{Name: cand.User.Name, Address: cand.User.Email}},
		Subject:      reminderSubject(cand.User.FirstName(), daysInactive),
		TemplateName: "course-reminder",
		TemplateData: ReminderData{
			FirstName:          cand.User.FirstName(),
			CourseTitle:        cand.CourseTitle,
			ProgressPercentage: int(enr.ProgressPercentage),
			DaysInactive:       daysInactive,
			CourseURL:          core.Conf.FrontendBaseURL + "/courses/" + enr.CourseID,
		},
	}
	return svc.mailSvc.SendMessage(msg)
}

// logOutcome records the attempt for dedup; recurring sends always log under
// reminder_days=14 so the recurring chain stays a single walkable sequence.
func (svc *Engine) logOutcome(ctx context.Context, enrollmentID string, days int, success bool) {
	if _, err := svc.repo.CreateLog(ctx, Log{
		EnrollmentID: enrollmentID,
		ReminderDays: days,
		SentAt:       nowFunc(),
		Success:      success,
	}); err != nil {
		svc.log.Error(fmt.Sprintf("recording reminder log for enrollment %s: %v", enrollmentID, err), err)
	}
}

// ReminderData is the variable substitution surface of the reminder templates.
type ReminderData struct {
	FirstName          string
	CourseTitle        string
	ProgressPercentage int
	DaysInactive       int
	CourseURL          string
}

// reminderSubject escalates with the length of inactivity.
func reminderSubject(firstName string, daysInactive int) string {
	switch {
	case daysInactive <= 3:
		return fmt.Sprintf("Ready for your next lesson, %s?", firstName)
	case daysInactive <= 7:
		return fmt.Sprintf("%s, your course misses you", firstName)
	default:
		return fmt.Sprintf("It's been %d days, %s! Pick up where you left off", daysInactive, firstName)
	}
}
