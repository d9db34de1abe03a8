package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/term"

	"github.com/trezcool/coursefactory/core/course"
	"github.com/trezcool/coursefactory/core/generation"
)

const (
	barWidth      = 30
	renderEvery   = 200 * time.Millisecond
	watchRetryMsg = "Retrying generation (%d/%d)..."
)

var (
	isTerminalFunc = term.IsTerminal // mockable

	errGenerationFailed = errors.New("generation failed")
	errInterrupted      = errors.New("interrupted")
)

var stepMarks = map[generation.StepStatus]string{
	generation.StepPending:   "[ ]",
	generation.StepActive:    "[~]",
	generation.StepCompleted: "[x]",
	generation.StepError:     "[!]",
}

func (cli *commandLine) watch(courses courseSource, courseID string, mode course.Mode, retries int) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c, err := courses.Get(ctx, courseID)
	if err != nil {
		return errors.Wrap(err, "getting course")
	}
	if mode == "" {
		mode = c.Mode
	}

	var retryErr error
	var attempts int
	w := generation.NewWatcher(
		courseID,
		generation.Mode(mode),
		generation.FetcherFunc(courses.Report),
		generation.Callbacks{
			OnRetry: func() {
				_, retryErr = courses.RetryGeneration(ctx, courseID)
			},
		},
		generation.Options{
			TickInterval:    cli.conf.Generation.TickInterval,
			PollInterval:    cli.conf.Generation.PollInterval,
			CompletionDelay: cli.conf.Generation.CompletionDelay,
			Logger:          cli.logger,
		},
	)
	r := newRenderer(cli.out)

	_, _ = fmt.Fprintf(cli.out, "Generating %q (%s mode, about %s)\n", c.Topic, mode, w.Mode().EstimatedDuration())
	w.Start(ctx)
	defer w.Stop()

	for {
		if err := r.follow(ctx, w); err != nil {
			return err
		}

		st := w.State()
		if st.Completed {
			report, err := courses.Report(ctx, courseID)
			if err != nil {
				return errors.Wrap(err, "reading generated course")
			}
			_, _ = fmt.Fprintf(cli.out, "Course %q is ready (%d modules)\n", report.Name, report.Modules)
			return nil
		}

		_, _ = fmt.Fprintln(cli.out, st.Error)
		if attempts >= retries {
			return errGenerationFailed
		}
		attempts++
		_, _ = fmt.Fprintf(cli.out, watchRetryMsg+"\n", attempts, retries)
		w.Retry(ctx)
		if retryErr != nil {
			return errors.Wrap(retryErr, "retrying generation")
		}
	}
}

// renderer draws the steps & the progress bar. On a terminal the bar is redrawn in place,
// otherwise a line is printed whenever the active step changes.
type renderer struct {
	out        io.Writer
	tty        bool
	lastActive string
}

func newRenderer(out io.Writer) *renderer {
	r := &renderer{out: out}
	if f, ok := out.(*os.File); ok {
		r.tty = isTerminalFunc(int(f.Fd()))
	}
	return r
}

// follow renders until the current watcher run ends.
func (r *renderer) follow(ctx context.Context, w *generation.Watcher) error {
	ticker := time.NewTicker(renderEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			_, _ = fmt.Fprintln(r.out)
			return errInterrupted
		case <-w.Done():
			r.final(w.State(), w.Progress())
			return nil
		case <-ticker.C:
			r.draw(w.State(), w.Progress())
		}
	}
}

func (r *renderer) draw(st generation.State, progress int) {
	active := activeLabel(st)
	if r.tty {
		_, _ = fmt.Fprintf(r.out, "\r\033[K%s %3d%%  %s", bar(progress), progress, active)
		return
	}
	if active != r.lastActive {
		r.lastActive = active
		_, _ = fmt.Fprintf(r.out, "%3d%%  %s\n", progress, active)
	}
}

func (r *renderer) final(st generation.State, progress int) {
	if r.tty {
		_, _ = fmt.Fprint(r.out, "\r\033[K")
	}
	for _, s := range st.Steps {
		_, _ = fmt.Fprintf(r.out, "%s %s\n", stepMarks[s.Status], s.Label)
	}
	_, _ = fmt.Fprintf(r.out, "%s %3d%%\n", bar(progress), progress)
	r.lastActive = ""
}

func activeLabel(st generation.State) string {
	for _, s := range st.Steps {
		if s.Status == generation.StepActive {
			return s.Label
		}
	}
	return ""
}

func bar(progress int) string {
	filled := progress * barWidth / 100
	return "[" + strings.Repeat("#", filled) + strings.Repeat(".", barWidth-filled) + "]"
}
