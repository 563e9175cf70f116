package calendar

import (
	"context"
	"fmt"
	"net/mail"
	"time"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/ratiba/core"
	"github.com/trezcool/ratiba/core/course"
	"github.com/trezcool/ratiba/core/enrollment"
	"github.com/trezcool/ratiba/core/schedule"
	"github.com/trezcool/ratiba/core/user"
)

var nowFunc = time.Now // mockable

// Service keeps schedule items and their calendar projections consistent in
// both directions: progress marks items complete and annotates events,
// manual calendar edits flow back into the plan.
type Service struct {
	repo        Repository
	items       schedule.Repository
	enrollments enrollment.Repository
	users       user.Repository
	courses     course.Repository
	mailSvc     core.EmailService
	log         core.Logger
}

var _ schedule.EventCreator = (*Service)(nil)

func NewService(
	repo Repository,
	items schedule.Repository,
	enrollments enrollment.Repository,
	users user.Repository,
	courses course.Repository,
	mailSvc core.EmailService,
	log core.Logger,
) *Service {
	return &Service{
		repo:        repo,
		items:       items,
		enrollments: enrollments,
		users:       users,
		courses:     courses,
		mailSvc:     mailSvc,
		log:         log,
	}
}

// CreateEventFromItem projects a schedule item into a calendar event.
// A missing item is treated as already cleaned up: (null, nil).
func (svc *Service) CreateEventFromItem(ctx context.Context, itemID, userID string) (null.String, error) {
	detail, err := svc.items.GetItemDetail(ctx, itemID)
	if err != nil {
		if err == schedule.ErrItemNotFound {
			return null.String{}, nil
		}
		return null.String{}, errors.Wrapf(err, "loading schedule item %s", itemID)
	}

	title, desc := eventContent(detail)
	ev := Event{
		ScheduleItemID: null.StringFrom(detail.ID),
		Title:          title,
		Description:    desc,
		EventType:      string(detail.ItemType),
		StartDate:      detail.ScheduledDate,
		EndDate:        detail.ScheduledDate.Add(time.Duration(detail.EstimatedDurationMinutes) * time.Minute),
		CourseID:       detail.CourseID,
		CreatedBy:      userID,
		AutoSync:       true,
	}
	ev, err = svc.repo.CreateEvent(ctx, ev)
	if err != nil {
		return null.String{}, errors.Wrapf(err, "creating event for item %s", itemID)
	}
	return null.StringFrom(ev.ID), nil
}

func eventContent(detail schedule.ItemDetail) (title, desc string) {
	switch detail.ItemType {
	case schedule.ItemLesson:
		title = "📚 " + detail.LessonTitle.String
		desc = "Study session: " + detail.LessonTitle.String
	case schedule.ItemQuiz:
		title = "📝 " + detail.QuizTitle.String
		desc = fmt.Sprintf("Quiz: %s (%d min)", detail.QuizTitle.String, detail.EstimatedDurationMinutes)
	case schedule.ItemMilestone:
		title = "🎯 " + detail.ModuleTitle.String + " completed!"
		desc = fmt.Sprintf("You finished all lessons in %q. Great progress!", detail.ModuleTitle.String)
	case schedule.ItemDeadline:
		title = "⏰ Deadline"
		desc = "A scheduled deadline for your course."
	case schedule.ItemReminder:
		title = "🔔 Reminder"
		desc = "A study reminder for your course."
	}
	return title, desc
}

// SyncProgressToCalendar marks the first matching non-completed schedule
// item complete for an inbound lesson/quiz completion. Idempotent: once no
// pending match remains, subsequent calls are no-ops returning (null, nil).
func (svc *Service) SyncProgressToCalendar(ctx context.Context, ev ProgressEvent) (null.String, error) {
	if err := ev.Validate(); err != nil {
		return null.String{}, err
	}

	item, err := svc.items.FirstMatchingItem(ctx, ev.EnrollmentID, ev.ContentRef())
	if err != nil {
		if err == schedule.ErrItemNotFound {
			return null.String{}, nil
		}
		return null.String{}, errors.Wrap(err, "locating matching schedule item")
	}

	completedAt := ev.CompletedAt
	if completedAt.IsZero() {
		completedAt = nowFunc()
	}
	if err := svc.items.MarkItemCompleted(ctx, item.ID, completedAt); err != nil {
		return null.String{}, errors.Wrapf(err, "completing schedule item %s", item.ID)
	}

	svc.appendCompletionNote(ctx, item.ID, completedAt)

	if ev.ModuleID != "" {
		if err := svc.checkModuleMilestone(ctx, ev.EnrollmentID, ev.ModuleID); err != nil {
			svc.log.Warn(fmt.Sprintf("module milestone check for enrollment %s: %v", ev.EnrollmentID, err), err)
		}
	}

	if err := svc.adjustAheadOfSchedule(ctx, item, completedAt); err != nil {
		svc.log.Warn(fmt.Sprintf("ahead-of-schedule adjustment for item %s: %v", item.ID, err), err)
	}

	return null.StringFrom(item.ID), nil
}

func (svc *Service) appendCompletionNote(ctx context.Context, itemID string, completedAt time.Time) {
	ev, err := svc.repo.GetEventByItemID(ctx, itemID)
	if err != nil {
		if err != ErrNotFound {
			svc.log.Warn(fmt.Sprintf("loading event for item %s: %v", itemID, err), err)
		}
		return
	}
	note := "\n✅ Completed on " + completedAt.Format("Jan 2, 2006 15:04")
	if err := svc.repo.AppendEventDescription(ctx, ev.ID, note); err != nil {
		svc.log.Warn(fmt.Sprintf("appending completion note to event %s: %v", ev.ID, err), err)
	}
}

// checkModuleMilestone eagerly creates a completed module milestone once
// every scheduled lesson of the module is done. Guarded by an existence
// check so duplicate milestones are never created.
func (svc *Service) checkModuleMilestone(ctx context.Context, enrollmentID, moduleID string) error {
	total, completed, err := svc.items.ModuleLessonProgress(ctx, enrollmentID, moduleID)
	if err != nil {
		return errors.Wrap(err, "counting module lesson progress")
	}
	if total == 0 || completed < total {
		return nil
	}

	exists, err := svc.items.MilestoneExists(ctx, enrollmentID, moduleID)
	if err != nil {
		return errors.Wrap(err, "checking for existing milestone")
	}
	if exists {
		return nil
	}

	enr, err := svc.enrollments.GetEnrollmentByID(ctx, enrollmentID)
	if err != nil {
		return errors.Wrap(err, "loading enrollment")
	}

	meta := map[string]interface{}{"milestone_type": "module_completion"}
	if crs, err := svc.courses.GetCourseTree(ctx, enr.CourseID); err == nil {
		for _, mod := range crs.Modules {
			if mod.ID == moduleID {
				meta["module_title"] = mod.Title
				meta["module_order"] = mod.Order
				break
			}
		}
	}

	now := nowFunc()
	items, err := svc.items.CreateItems(ctx, []schedule.Item{{
		EnrollmentID:  enrollmentID,
		CourseID:      enr.CourseID,
		ModuleID:      null.StringFrom(moduleID),
		ItemType:      schedule.ItemMilestone,
		ScheduledDate: now,
		Priority:      schedule.PriorityMedium,
		Status:        schedule.StatusCompleted, // created after the fact
		AutoGenerated: true,
		Metadata:      meta,
		CompletedAt:   null.TimeFrom(now),
	}})
	if err != nil {
		return errors.Wrap(err, "creating milestone item")
	}

	if _, err := svc.CreateEventFromItem(ctx, items[0].ID, enr.UserID); err != nil {
		return errors.Wrap(err, "creating milestone event")
	}
	return nil
}

// adjustAheadOfSchedule pulls the learner's remaining pending items earlier
// when a lesson was completed ahead of its planned date, preserving the
// relative gaps between items.
func (svc *Service) adjustAheadOfSchedule(ctx context.Context, item schedule.Item, completedAt time.Time) error {
	aheadDays := int(item.ScheduledDate.Sub(completedAt).Hours() / 24)
	if aheadDays < 1 {
		return nil
	}
	enr, err := svc.enrollments.GetEnrollmentByID(ctx, item.EnrollmentID)
	if err != nil {
		return err
	}
	delta := -time.Duration(aheadDays) * 24 * time.Hour
	return svc.shiftPendingItems(ctx, enr, item.ID, item.ScheduledDate, delta)
}

// SyncCalendarToProgress applies a learner's manual calendar edit back onto
// the linked schedule item. Events without a schedule item (or edits on
// missing events) are ignored: (null, nil). Status edits go through the item
// state machine; an illegal transition is rejected with a ValidationError.
func (svc *Service) SyncCalendarToProgress(ctx context.Context, eventID string, upd EventUpdate) (null.String, error) {
	ev, err := svc.repo.GetEventByID(ctx, eventID)
	if err != nil {
		if err == ErrNotFound {
			return null.String{}, nil
		}
		return null.String{}, errors.Wrapf(err, "loading event %s", eventID)
	}
	if !ev.ScheduleItemID.Valid || upd.IsZero() {
		return null.String{}, nil
	}
	itemID := ev.ScheduleItemID.String

	detail, err := svc.items.GetItemDetail(ctx, itemID)
	if err != nil {
		if err == schedule.ErrItemNotFound {
			return null.String{}, nil
		}
		return null.String{}, errors.Wrapf(err, "loading schedule item %s", itemID)
	}

	newStatus := upd.NewStatus
	if newStatus != nil {
		switch {
		case *newStatus == detail.Status:
			newStatus = nil // no-op edit
		case !detail.Status.CanTransitionTo(*newStatus):
			return null.String{}, core.NewValidationError(
				errors.Errorf("schedule item %s cannot move from %s to %s", itemID, detail.Status, *newStatus),
				core.FieldError{Field: "new_status", Error: fmt.Sprintf("cannot move a %s item to %s", detail.Status, *newStatus)},
			)
		}
	}

	// completion through the calendar path stamps completed_at and annotates
	// the event the same way an inbound progress event does.
	if newStatus != nil && *newStatus == schedule.StatusCompleted {
		completedAt := nowFunc()
		if err := svc.items.MarkItemCompleted(ctx, itemID, completedAt); err != nil {
			return null.String{}, errors.Wrapf(err, "completing schedule item %s", itemID)
		}
		svc.appendCompletionNote(ctx, itemID, completedAt)
		newStatus = nil
	}

	if upd.NewDate != nil || newStatus != nil {
		if err := svc.items.UpdateItemSchedule(ctx, itemID, upd.NewDate, newStatus); err != nil {
			return null.String{}, errors.Wrapf(err, "updating schedule item %s", itemID)
		}
	}

	if upd.NewDate != nil {
		if err := svc.recalculateFollowingItems(ctx, detail.Item, *upd.NewDate); err != nil {
			svc.log.Warn(fmt.Sprintf("recalculating items after %s: %v", itemID, err), err)
		}
	}
	return null.StringFrom(itemID), nil
}

// recalculateFollowingItems shifts the enrollment's later pending items by
// the same delta as the rescheduled item, preserving relative gaps, then
// snaps each onto the learner's next study day.
func (svc *Service) recalculateFollowingItems(ctx context.Context, item schedule.Item, newDate time.Time) error {
	delta := newDate.Sub(item.ScheduledDate)
	if delta == 0 {
		return nil
	}
	enr, err := svc.enrollments.GetEnrollmentByID(ctx, item.EnrollmentID)
	if err != nil {
		return err
	}
	return svc.shiftPendingItems(ctx, enr, item.ID, item.ScheduledDate, delta)
}

// shiftPendingItems moves the enrollment's pending items dated after `after`
// by delta; the triggering item itself is excluded since its date was already
// set by the caller.
func (svc *Service) shiftPendingItems(ctx context.Context, enr enrollment.Enrollment, excludeItemID string, after time.Time, delta time.Duration) error {
	prefs, err := svc.items.GetPreferences(ctx, enr.UserID)
	if err != nil {
		if err != schedule.ErrPreferencesNotFound {
			return err
		}
		prefs = schedule.DefaultPreferences()
	}
	prefs.Clean()

	pending, err := svc.items.PendingItemsAfter(ctx, enr.ID, after)
	if err != nil {
		return err
	}
	for _, it := range pending {
		if it.ID == excludeItemID {
			continue
		}
		shifted := prefs.NextStudyDay(it.ScheduledDate.Add(delta))
		moved := prefs.AtPreferredTime(shifted)
		if err := svc.items.UpdateItemSchedule(ctx, it.ID, &moved, nil); err != nil {
			return err
		}
		if ev, err := svc.repo.GetEventByItemID(ctx, it.ID); err == nil && ev.AutoSync {
			end := moved.Add(time.Duration(it.EstimatedDurationMinutes) * time.Minute)
			if err := svc.repo.UpdateEventSchedule(ctx, ev.ID, moved, end); err != nil {
				svc.log.Warn(fmt.Sprintf("moving event %s: %v", ev.ID, err), err)
			}
		}
	}
	return nil
}

// MarkOverdueItems transitions the enrollment's pending items whose date has
// passed into overdue, and notifies the owner once per sweep with the
// aggregate count. Safe to call repeatedly.
func (svc *Service) MarkOverdueItems(ctx context.Context, enrollmentID string) (int, error) {
	count, err := svc.items.MarkOverdueItems(ctx, enrollmentID, nowFunc())
	if err != nil {
		return 0, errors.Wrapf(err, "marking overdue items for enrollment %s", enrollmentID)
	}
	if count == 0 {
		return 0, nil
	}
	svc.notifyOverdue(ctx, enrollmentID, count)
	return count, nil
}

func (svc *Service) notifyOverdue(ctx context.Context, enrollmentID string, count int) {
	enr, err := svc.enrollments.GetEnrollmentByID(ctx, enrollmentID)
	if err != nil {
		svc.log.Warn(fmt.Sprintf("loading enrollment %s for overdue notice: %v", enrollmentID, err), err)
		return
	}
	usr, err := svc.users.GetUserByID(ctx, enr.UserID)
	if err != nil || !usr.CanBeNotified() {
		return
	}
	var courseTitle string
	if crs, err := svc.courses.GetCourseTree(ctx, enr.CourseID); err == nil {
		courseTitle = crs.Title
	}

	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: usr.Name, Address: usr.Email}},
		Subject:      "You have overdue study items",
		TemplateName: "overdue-items",
		TemplateData: struct {
			FirstName   string
			CourseTitle string
			Count       int
			CourseURL   string
		}{
			FirstName:   usr.FirstName(),
			CourseTitle: courseTitle,
			Count:       count,
			CourseURL:   core.Conf.FrontendBaseURL + "/courses/" + enr.CourseID,
		},
	})
}

// RepairMissingEvents backfills calendar events for schedule items whose
// event creation was lost mid-flight (e.g. a crash between the two writes).
func (svc *Service) RepairMissingEvents(ctx context.Context) (int, error) {
	orphans, err := svc.repo.OrphanItems(ctx)
	if err != nil {
		return 0, errors.Wrap(err, "listing orphan schedule items")
	}
	var repaired int
	for _, o := range orphans {
		if _, err := svc.CreateEventFromItem(ctx, o.ItemID, o.UserID); err != nil {
			svc.log.Warn(fmt.Sprintf("repairing event for item %s: %v", o.ItemID, err), err)
			continue
		}
		repaired++
	}
	return repaired, nil
}
