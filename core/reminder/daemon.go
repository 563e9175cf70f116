package reminder

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/ratiba/core"
)

// RepairFunc backfills missing calendar events; run before each reminder
// sweep so repaired items are visible to the same run.
type RepairFunc func(ctx context.Context) (int, error)

type (
	// Daemon owns the single daily timer that drives the reminder engine.
	// One instance is constructed at process start; all state lives here,
	// not in package globals.
	Daemon struct {
		engine *Engine
		repo   Repository
		repair RepairFunc // optional
		log    core.Logger
		runAt  string // wall-clock "HH:MM"

		mu        sync.Mutex
		cron      *cron.Cron
		entryID   cron.EntryID
		scheduled bool
		running   bool
		lastRun   null.Time
	}

	DaemonStatus struct {
		IsRunning   bool       `json:"is_running"`
		IsScheduled bool       `json:"is_scheduled"`
		LastRun     *time.Time `json:"last_run,omitempty"`
		NextRun     *time.Time `json:"next_run,omitempty"`
	}
)

func NewDaemon(engine *Engine, repo Repository, repair RepairFunc, log core.Logger) *Daemon {
	return &Daemon{
		engine: engine,
		repo:   repo,
		repair: repair,
		log:    log,
		runAt:  core.Conf.Scheduler.DailyRunAt,
	}
}

// Start schedules the daily run. Calling Start while already scheduled is a
// logged no-op. With runImmediately, one out-of-band run is triggered right
// away without touching the daily schedule.
func (d *Daemon) Start(runImmediately bool) {
	d.mu.Lock()
	if d.scheduled {
		d.mu.Unlock()
		d.log.Info("reminder daemon already scheduled; ignoring start")
		return
	}

	// recover the schedule anchor so a restart near the fire time does not
	// lose track of the last run
	if state, err := d.repo.GetSchedulerState(context.Background()); err == nil {
		d.lastRun = state.LastRunAt
	}

	d.cron = cron.New()
	id, err := d.cron.AddFunc(cronSpec(d.runAt), d.tick)
	if err != nil {
		d.mu.Unlock()
		d.log.Error(fmt.Sprintf("scheduling daily reminder run at %s: %v", d.runAt, err), err)
		return
	}
	d.entryID = id
	d.cron.Start()
	d.scheduled = true
	d.mu.Unlock()

	d.log.Info(fmt.Sprintf("reminder daemon scheduled daily at %s", d.runAt))
	if runImmediately && !d.ranTodayAfterFireTime() {
		go d.tick()
	}
}

// ranTodayAfterFireTime reports whether the persisted last run already covers
// today's fire; suppresses a duplicate run when the process restarts between
// the daily fire and midnight.
func (d *Daemon) ranTodayAfterFireTime() bool {
	d.mu.Lock()
	last := d.lastRun
	d.mu.Unlock()
	if !last.Valid {
		return false
	}
	now := nowFunc()
	if last.Time.Year() != now.Year() || last.Time.YearDay() != now.YearDay() {
		return false
	}
	var hh, mm int
	if _, err := fmt.Sscanf(d.runAt, "%d:%d", &hh, &mm); err != nil {
		return false
	}
	fireAt := time.Date(now.Year(), now.Month(), now.Day(), hh, mm, 0, 0, now.Location())
	return !last.Time.Before(fireAt)
}

// Stop cancels future fires. An in-flight run is allowed to finish.
func (d *Daemon) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.scheduled {
		return
	}
	d.cron.Stop()
	d.cron = nil
	d.scheduled = false
	d.log.Info("reminder daemon stopped")
}

// RunNow triggers one out-of-band run, subject to the single-flight guard.
func (d *Daemon) RunNow() {
	go d.tick()
}

func (d *Daemon) Status() DaemonStatus {
	d.mu.Lock()
	defer d.mu.Unlock()

	status := DaemonStatus{
		IsRunning:   d.running,
		IsScheduled: d.scheduled,
	}
	if d.lastRun.Valid {
		t := d.lastRun.Time
		status.LastRun = &t
	}
	if d.scheduled {
		if next := d.cron.Entry(d.entryID).Next; !next.IsZero() {
			status.NextRun = &next
		}
	}
	return status
}

// tick runs the engine once. Concurrency is capped at 1: a tick that fires
// while a run is in flight is skipped entirely, never queued.
func (d *Daemon) tick() {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		d.log.Warn("reminder run already in progress; skipping this tick")
		return
	}
	d.running = true
	d.mu.Unlock()

	defer func() {
		d.mu.Lock()
		d.running = false
		d.mu.Unlock()
	}()

	ctx := context.Background()
	if d.repair != nil {
		if repaired, err := d.repair(ctx); err != nil {
			d.log.Warn(fmt.Sprintf("calendar repair sweep: %v", err), err)
		} else if repaired > 0 {
			d.log.Info(fmt.Sprintf("calendar repair sweep: %d events backfilled", repaired))
		}
	}

	stats, err := d.engine.SendAllReminders(ctx)
	if err != nil {
		d.log.Error(fmt.Sprintf("reminder run failed: %v", err), err)
	} else {
		d.log.Info(fmt.Sprintf(
			"reminder run done: %d candidates, %d sent, %d failed, %d skipped",
			stats.TotalEnrollments, stats.TotalSuccess, stats.TotalFailure, stats.TotalSkipped,
		))
	}

	now := nowFunc()
	d.mu.Lock()
	d.lastRun = null.TimeFrom(now)
	d.mu.Unlock()
	if err := d.repo.SaveSchedulerState(ctx, SchedulerState{LastRunAt: null.TimeFrom(now)}); err != nil {
		d.log.Error(fmt.Sprintf("persisting scheduler state: %v", err), err)
	}
}

// cronSpec converts a wall-clock "HH:MM" into a daily cron expression.
func cronSpec(runAt string) string {
	parts := strings.SplitN(runAt, ":", 2)
	if len(parts) != 2 {
		return "0 9 * * *"
	}
	hh := strings.TrimLeft(parts[0], "0")
	mm := strings.TrimLeft(parts[1], "0")
	if hh == "" {
		hh = "0"
	}
	if mm == "" {
		mm = "0"
	}
	return fmt.Sprintf("%s %s * * *", mm, hh)
}
