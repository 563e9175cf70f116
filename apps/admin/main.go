package main

import (
	"log"
	"os"

	"github.com/trezcool/ratiba/core"
	"github.com/trezcool/ratiba/core/calendar"
	"github.com/trezcool/ratiba/core/reminder"
	"github.com/trezcool/ratiba/core/schedule"
	"github.com/trezcool/ratiba/services/email"
	"github.com/trezcool/ratiba/services/logger"
	"github.com/trezcool/ratiba/storage/database"
	"github.com/trezcool/ratiba/storage/database/sqlx"
)

var logger *log.Logger

func main() {
	defer os.Exit(0)

	logger = log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
	appLog := logsvc.NewStdLogger(logger)

	// set up DB
	db, err := database.Open(core.Conf)
	errAndDie(err)
	defer db.Close()
	errAndDie(database.Ping(db))

	// set up repositories & services
	courseRepo := sqlxrepos.NewCourseRepository(db)
	enrRepo := sqlxrepos.NewEnrollmentRepository(db)
	userRepo := sqlxrepos.NewUserRepository(db)
	itemRepo := sqlxrepos.NewScheduleRepository(db)
	calRepo := sqlxrepos.NewCalendarRepository(db)
	remRepo := sqlxrepos.NewReminderRepository(db)

	var mailSvc core.EmailService
	if core.Conf.Debug {
		mailSvc = emailsvc.NewConsoleService()
	} else {
		mailSvc = emailsvc.NewSendgridService(appLog)
	}
	calSvc := calendar.NewService(calRepo, itemRepo, enrRepo, userRepo, courseRepo, mailSvc, appLog)
	schedSvc := schedule.NewService(itemRepo, courseRepo, calSvc, appLog)
	engine := reminder.NewEngine(remRepo, mailSvc, appLog)

	// start CLI
	cli := commandLine{
		scheduleSvc: schedSvc,
		calendarSvc: calSvc,
		engine:      engine,
	}
	if err := cli.run(os.Args); err != nil {
		if err != errHelp {
			logger.Printf("\nerror: %s\n", err)
		}
		os.Exit(1)
	}
}

func errAndDie(err error) {
	if err != nil {
		logger.Fatal(err)
	}
}
