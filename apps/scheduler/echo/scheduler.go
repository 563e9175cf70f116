package echoapi

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/ratiba/core/calendar"
	"github.com/trezcool/ratiba/core/reminder"
	"github.com/trezcool/ratiba/core/schedule"
)

type schedulerApi struct {
	scheduleSvc *schedule.Service
	calendarSvc *calendar.Service
	engine      *reminder.Engine
	daemon      *reminder.Daemon
}

func registerSchedulerAPI(g *echo.Group, opts *Options) {
	api := schedulerApi{
		scheduleSvc: opts.ScheduleSvc,
		calendarSvc: opts.CalendarSvc,
		engine:      opts.ReminderEngine,
		daemon:      opts.Daemon,
	}

	sg := g.Group("/scheduler")
	sg.GET("/status", api.status)
	sg.POST("/start", api.start)
	sg.POST("/stop", api.stop)
	sg.POST("/run", api.run)

	g.POST("/reminders/run", api.runReminders)

	g.POST("/schedules/generate", api.generateSchedule)
	g.POST("/progress/events", api.progressEvent)
	g.POST("/calendar/events/:id/sync", api.syncCalendarEvent)
	g.POST("/enrollments/:id/overdue", api.markOverdue)
	g.POST("/calendar/repair", api.repairEvents)
}

// Handlers

func (api *schedulerApi) status(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, api.daemon.Status())
}

func (api *schedulerApi) start(ctx echo.Context) error {
	api.daemon.Start(false)
	return ctx.JSON(http.StatusOK, api.daemon.Status())
}

func (api *schedulerApi) stop(ctx echo.Context) error {
	api.daemon.Stop()
	return ctx.JSON(http.StatusOK, api.daemon.Status())
}

func (api *schedulerApi) run(ctx echo.Context) error {
	api.daemon.RunNow()
	return ctx.NoContent(http.StatusAccepted)
}

// runReminders triggers a reminder sweep synchronously and returns its stats.
// With ?days=N only that tier runs; ?recurring=true runs the recurring regime.
func (api *schedulerApi) runReminders(ctx echo.Context) error {
	c := ctx.Request().Context()

	if daysParam := ctx.QueryParam("days"); daysParam != "" {
		days, err := strconv.Atoi(daysParam)
		if err != nil || days <= 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "days must be a positive integer")
		}
		recurring, _ := strconv.ParseBool(ctx.QueryParam("recurring"))
		stats, err := api.engine.SendRemindersForDays(c, days, recurring)
		if err != nil {
			return errors.Wrap(err, "running reminder tier")
		}
		return ctx.JSON(http.StatusOK, stats)
	}

	stats, err := api.engine.SendAllReminders(c)
	if err != nil {
		return errors.Wrap(err, "running reminders")
	}
	return ctx.JSON(http.StatusOK, stats)
}

type generateScheduleRequest struct {
	EnrollmentID string `json:"enrollment_id" validate:"required"`
	CourseID     string `json:"course_id" validate:"required"`
	UserID       string `json:"user_id" validate:"required"`
}

func (api *schedulerApi) generateSchedule(ctx echo.Context) error {
	var data generateScheduleRequest
	if err := bindAndValidate(ctx, &data); err != nil {
		return err
	}
	res, err := api.scheduleSvc.GenerateSchedule(ctx.Request().Context(), data.EnrollmentID, data.CourseID, data.UserID)
	if err != nil {
		return errors.Wrap(err, "generating schedule")
	}
	return ctx.JSON(http.StatusCreated, res)
}

func (api *schedulerApi) progressEvent(ctx echo.Context) error {
	var ev calendar.ProgressEvent
	if err := ctx.Bind(&ev); err != nil {
		return errors.Wrap(err, "binding to ProgressEvent")
	}
	itemID, err := api.calendarSvc.SyncProgressToCalendar(ctx.Request().Context(), ev)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, echo.Map{"schedule_item_id": itemID})
}

type eventUpdateRequest struct {
	NewDate   *string `json:"new_date"`   // RFC 3339
	NewStatus *string `json:"new_status"` // pending | completed | overdue
}

func (api *schedulerApi) syncCalendarEvent(ctx echo.Context) error {
	var data eventUpdateRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to EventUpdate")
	}
	upd, err := data.toEventUpdate()
	if err != nil {
		return err
	}
	itemID, err := api.calendarSvc.SyncCalendarToProgress(ctx.Request().Context(), ctx.Param("id"), upd)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, echo.Map{"schedule_item_id": itemID})
}

func (api *schedulerApi) markOverdue(ctx echo.Context) error {
	count, err := api.calendarSvc.MarkOverdueItems(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "marking overdue items")
	}
	return ctx.JSON(http.StatusOK, echo.Map{"marked_overdue": count})
}

func (api *schedulerApi) repairEvents(ctx echo.Context) error {
	repaired, err := api.calendarSvc.RepairMissingEvents(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "repairing calendar events")
	}
	return ctx.JSON(http.StatusOK, echo.Map{"repaired": repaired})
}
