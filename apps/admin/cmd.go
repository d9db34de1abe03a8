package main

import (
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"

	"github.com/trezcool/coursefactory/core"
	"github.com/trezcool/coursefactory/core/course"
	"github.com/trezcool/coursefactory/storage/database"
)

var (
	gooseRunFunc = database.Migrate // mockable

	errHelp = errors.New("help provided")
)

type commandLine struct {
	conf       *core.Config
	logger     core.Logger
	db         *sql.DB
	courseSvc  course.Service
	httpClient *http.Client
	out        io.Writer
}

func (cli *commandLine) printUsage() {
	_, _ = fmt.Fprintln(cli.out, "Usage:")
	_, _ = fmt.Fprintln(cli.out, "  migrate COMMAND [ARGS] - run a goose command (up, down, status, version, redo...)")
	_, _ = fmt.Fprintln(cli.out, "  watch -course ID [-mode preview|publish] [-retries N] [-api URL] - follow a course generation")
	_, _ = fmt.Fprintln(cli.out, "  cache-stats [-api URL] - print the API query cache statistics")
	_, _ = fmt.Fprintln(cli.out, "  cache-clear [-api URL] [-pattern REGEXP] - invalidate the API query cache")
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	watchCmd := flag.NewFlagSet("watch", flag.ContinueOnError)
	watchCmd.SetOutput(cli.out)
	watchCourse := watchCmd.String("course", "", "The ID of the course being generated.")
	watchMode := watchCmd.String("mode", "", "The generation mode: preview or publish. Defaults to the course's mode.")
	watchRetries := watchCmd.Int("retries", 0, "How many times a failed generation is retried.")
	watchAPI := watchCmd.String("api", "", "Follow the course through the API at this base URL instead of the database.")

	cacheStatsCmd := flag.NewFlagSet("cache-stats", flag.ContinueOnError)
	cacheStatsCmd.SetOutput(cli.out)
	cacheStatsAPI := cacheStatsCmd.String("api", cli.defaultAPIURL(), "The API base URL.")

	cacheClearCmd := flag.NewFlagSet("cache-clear", flag.ContinueOnError)
	cacheClearCmd.SetOutput(cli.out)
	cacheClearAPI := cacheClearCmd.String("api", cli.defaultAPIURL(), "The API base URL.")
	cacheClearPattern := cacheClearCmd.String("pattern", "", "A regular expression matching the keys to drop. Drops everything if empty.")

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(args[2:])
	case "watch":
		if err := watchCmd.Parse(args[2:]); err != nil {
			return errHelp
		}
		if *watchCourse == "" || *watchRetries < 0 {
			watchCmd.Usage()
			return errHelp
		}
		mode := course.Mode(core.CleanString(*watchMode, true /* lower */))
		if mode != "" && mode != course.ModePreview && mode != course.ModePublish {
			watchCmd.Usage()
			return errHelp
		}
		return cli.watch(cli.watchSource(*watchAPI), *watchCourse, mode, *watchRetries)
	case "cache-stats":
		if err := cacheStatsCmd.Parse(args[2:]); err != nil {
			return errHelp
		}
		return cli.cacheStats(*cacheStatsAPI)
	case "cache-clear":
		if err := cacheClearCmd.Parse(args[2:]); err != nil {
			return errHelp
		}
		return cli.cacheClear(*cacheClearAPI, *cacheClearPattern)
	default:
		cli.printUsage()
		return errHelp
	}
}
