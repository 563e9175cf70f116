package main

import (
	"log"
	"os"

	"github.com/trezcool/ratiba/apps/scheduler/echo"
	"github.com/trezcool/ratiba/core"
	"github.com/trezcool/ratiba/core/calendar"
	"github.com/trezcool/ratiba/core/reminder"
	"github.com/trezcool/ratiba/core/schedule"
	"github.com/trezcool/ratiba/services/email"
	"github.com/trezcool/ratiba/services/logger"
	"github.com/trezcool/ratiba/storage/database"
	"github.com/trezcool/ratiba/storage/database/sqlx"
)

func main() {
	stdLog := log.New(os.Stdout, "SCHEDULER : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)

	// set up logging
	var appLog core.Logger
	if core.Conf.Debug {
		appLog = logsvc.NewStdLogger(stdLog)
	} else {
		appLog = logsvc.NewRollbarLogger(stdLog, core.Conf)
	}

	// set up DB
	db, err := database.Open(core.Conf)
	errAndDie(appLog, err)
	defer db.Close()
	errAndDie(appLog, database.Ping(db))

	// set up repositories
	courseRepo := sqlxrepos.NewCourseRepository(db)
	enrRepo := sqlxrepos.NewEnrollmentRepository(db)
	userRepo := sqlxrepos.NewUserRepository(db)
	itemRepo := sqlxrepos.NewScheduleRepository(db)
	calRepo := sqlxrepos.NewCalendarRepository(db)
	remRepo := sqlxrepos.NewReminderRepository(db)

	// set up services
	var mailSvc core.EmailService
	if core.Conf.Debug {
		mailSvc = emailsvc.NewConsoleService()
	} else {
		mailSvc = emailsvc.NewSendgridService(appLog)
	}
	calSvc := calendar.NewService(calRepo, itemRepo, enrRepo, userRepo, courseRepo, mailSvc, appLog)
	schedSvc := schedule.NewService(itemRepo, courseRepo, calSvc, appLog)
	engine := reminder.NewEngine(remRepo, mailSvc, appLog)
	daemon := reminder.NewDaemon(engine, remRepo, calSvc.RepairMissingEvents, appLog)

	daemon.Start(false)
	defer daemon.Stop()

	// start admin API server
	app := echoapi.NewServer(
		&echoapi.Options{
			Address:        core.Conf.Server.Addr,
			ScheduleSvc:    schedSvc,
			CalendarSvc:    calSvc,
			ReminderEngine: engine,
			Daemon:         daemon,
			Logger:         appLog,
		},
	)
	app.Start()
}

func errAndDie(log core.Logger, err error) {
	if err != nil {
		log.Fatal(err.Error())
	}
}
