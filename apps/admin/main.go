package main

import (
	"log"
	"net/http"
	"os"
	"time"

	"github.com/trezcool/coursefactory/core"
	"github.com/trezcool/coursefactory/core/course"
	"github.com/trezcool/coursefactory/core/querycache"
	logsvc "github.com/trezcool/coursefactory/services/logger"
	"github.com/trezcool/coursefactory/storage/database"
	sqlxrepos "github.com/trezcool/coursefactory/storage/database/sqlx"
)

func main() {
	std := log.New(os.Stderr, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)

	conf, err := core.NewConfig()
	if err != nil {
		std.Fatalf("loading config: %+v", err)
	}
	logger := logsvc.NewRollbarLogger(std, conf)
	logger.Enable(!conf.Debug)

	cli := commandLine{
		conf:       conf,
		logger:     logger,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		out:        os.Stdout,
	}

	// set up storage. The memory engine lives inside the API process: watch goes through the API then.
	if conf.Database.Engine != "memory" {
		db, err := database.Open(conf)
		if err != nil {
			logger.Fatal("opening database", err)
		}
		cli.db = db.DB
		repo := sqlxrepos.NewCourseRepository(db)
		cli.courseSvc = course.NewService(repo, querycache.New(querycache.Options{Logger: logger}), logger)
	}

	// start CLI
	err = cli.run(os.Args)
	if cli.db != nil {
		_ = cli.db.Close()
	}
	logger.Flush()
	if err != nil {
		if err != errHelp {
			std.Printf("\nerror: %+v\n", err)
		}
		os.Exit(1)
	}
}
