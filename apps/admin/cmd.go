package main

import (
	"context"
	"errors"
	"flag"
	"fmt"

	"github.com/trezcool/ratiba/core/calendar"
	"github.com/trezcool/ratiba/core/reminder"
	"github.com/trezcool/ratiba/core/schedule"
)

var errHelp = errors.New("help provided")

type commandLine struct {
	scheduleSvc *schedule.Service
	calendarSvc *calendar.Service
	engine      *reminder.Engine
}

func (cli *commandLine) printUsage() {
	fmt.Println("Usage:")
	fmt.Println("  runreminders [-days N [-recurring]]                        - run reminder sweep (all tiers, or one)")
	fmt.Println("  generateschedule -enrollment ID -course ID -user ID        - generate a study plan for an enrollment")
	fmt.Println("  markoverdue -enrollment ID                                 - mark past-due items overdue and notify")
	fmt.Println("  repairevents                                               - backfill missing calendar events")
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}
	ctx := context.Background()

	runRemindersCmd := flag.NewFlagSet("runreminders", flag.ExitOnError)
	runRemindersDays := runRemindersCmd.Int("days", 0, "Run a single tier: exact days of inactivity.")
	runRemindersRecurring := runRemindersCmd.Bool("recurring", false, "Run the recurring regime instead of an exact tier.")

	generateCmd := flag.NewFlagSet("generateschedule", flag.ExitOnError)
	generateEnr := generateCmd.String("enrollment", "", "The enrollment ID.")
	generateCrs := generateCmd.String("course", "", "The course ID.")
	generateUsr := generateCmd.String("user", "", "The learner's user ID.")

	markOverdueCmd := flag.NewFlagSet("markoverdue", flag.ExitOnError)
	markOverdueEnr := markOverdueCmd.String("enrollment", "", "The enrollment ID.")

	switch args[1] {
	case "runreminders":
		if err := runRemindersCmd.Parse(args[2:]); err != nil {
			return err
		}
		return cli.runReminders(ctx, *runRemindersDays, *runRemindersRecurring)
	case "generateschedule":
		if err := generateCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *generateEnr == "" || *generateCrs == "" || *generateUsr == "" {
			generateCmd.Usage()
			return errHelp
		}
		return cli.generateSchedule(ctx, *generateEnr, *generateCrs, *generateUsr)
	case "markoverdue":
		if err := markOverdueCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *markOverdueEnr == "" {
			markOverdueCmd.Usage()
			return errHelp
		}
		return cli.markOverdue(ctx, *markOverdueEnr)
	case "repairevents":
		return cli.repairEvents(ctx)
	default:
		cli.printUsage()
		return errHelp
	}
}

func (cli *commandLine) runReminders(ctx context.Context, days int, recurring bool) error {
	if days > 0 {
		stats, err := cli.engine.SendRemindersForDays(ctx, days, recurring)
		if err != nil {
			return err
		}
		fmt.Printf("tier %d (recurring=%t): %d candidates, %d sent, %d failed, %d skipped\n",
			stats.Period, stats.Recurring, stats.Total, stats.Success, stats.Failure, stats.Skipped)
		return nil
	}

	stats, err := cli.engine.SendAllReminders(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("reminders: %d candidates, %d sent, %d failed, %d skipped\n",
		stats.TotalEnrollments, stats.TotalSuccess, stats.TotalFailure, stats.TotalSkipped)
	return nil
}

func (cli *commandLine) generateSchedule(ctx context.Context, enrollmentID, courseID, userID string) error {
	res, err := cli.scheduleSvc.GenerateSchedule(ctx, enrollmentID, courseID, userID)
	if err != nil {
		return err
	}
	fmt.Printf("schedule generated: %d items over a target of %d study days\n", res.ItemsCreated, res.TargetDays)
	return nil
}

func (cli *commandLine) markOverdue(ctx context.Context, enrollmentID string) error {
	count, err := cli.calendarSvc.MarkOverdueItems(ctx, enrollmentID)
	if err != nil {
		return err
	}
	fmt.Printf("%d item(s) marked overdue\n", count)
	return nil
}

func (cli *commandLine) repairEvents(ctx context.Context) error {
	repaired, err := cli.calendarSvc.RepairMissingEvents(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("%d calendar event(s) backfilled\n", repaired)
	return nil
}
