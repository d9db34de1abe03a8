package generation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/trezcool/coursefactory/core"
	"github.com/trezcool/coursefactory/core/course"
)

// Default intervals
const (
	DefaultTickInterval    = time.Second
	DefaultPollInterval    = 2 * time.Second
	DefaultCompletionDelay = 500 * time.Millisecond
)

var errTerminal = errors.New("generation reached a terminal state")

type (
	// Fetcher reads the current status of a course.
	Fetcher interface {
		FetchReport(ctx context.Context, id string) (course.Report, error)
	}

	// FetcherFunc adapts a function to a Fetcher.
	FetcherFunc func(ctx context.Context, id string) (course.Report, error)

	// Callbacks run on the Watcher's goroutine once the run has ended, so they may call Retry or Stop.
	Callbacks struct {
		OnComplete func()
		OnError    func(msg string)
		OnRetry    func()
	}

	Options struct {
		TickInterval    time.Duration
		PollInterval    time.Duration
		CompletionDelay time.Duration
		Logger          core.Logger
	}

	event struct {
		tick   bool
		report course.Report
	}
)

func (f FetcherFunc) FetchReport(ctx context.Context, id string) (course.Report, error) {
	return f(ctx, id)
}

// Watcher drives a Tracker for one course: a ticker and a poller feed a single
// reducer goroutine, which is the only one touching the Tracker.
type Watcher struct {
	courseID string
	fetcher  Fetcher
	cb       Callbacks
	opts     Options

	mu      sync.RWMutex
	tracker *Tracker
	cancel  context.CancelFunc
	done    chan struct{}
}

func NewWatcher(courseID string, mode Mode, fetcher Fetcher, cb Callbacks, opts Options) *Watcher {
	if opts.TickInterval <= 0 {
		opts.TickInterval = DefaultTickInterval
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.CompletionDelay < 0 {
		opts.CompletionDelay = 0
	}
	if opts.Logger == nil {
		opts.Logger = core.NopLogger{}
	}
	return &Watcher{
		courseID: courseID,
		fetcher:  fetcher,
		cb:       cb,
		opts:     opts,
		tracker:  NewTracker(mode),
	}
}

// Start begins watching. A Watcher without a course ID stays dormant, and starting a running Watcher does nothing.
func (w *Watcher) Start(ctx context.Context) {
	if w.courseID == "" {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cancel != nil || w.tracker.state.Terminal() {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.done = make(chan struct{})
	go w.run(ctx, w.done)
}

// Stop halts ticking & polling and waits for the run to end.
// OnComplete and OnError only fire for runs that ended before Stop was called.
func (w *Watcher) Stop() {
	w.mu.Lock()
	cancel, done := w.cancel, w.done
	w.cancel = nil
	w.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Retry resets the tracker to its initial state and watches again.
func (w *Watcher) Retry(ctx context.Context) {
	w.Stop()

	w.mu.Lock()
	w.tracker.Reset()
	w.mu.Unlock()

	if w.cb.OnRetry != nil {
		w.cb.OnRetry()
	}
	w.Start(ctx)
}

// Done is closed once the current run ends. It is nil when the Watcher never started.
func (w *Watcher) Done() <-chan struct{} {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.done
}

func (w *Watcher) State() State {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.tracker.State()
}

func (w *Watcher) Progress() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.tracker.Progress()
}

func (w *Watcher) Mode() Mode { return w.tracker.Mode() }

func (w *Watcher) run(ctx context.Context, done chan<- struct{}) {
	outcome := w.watch(ctx)
	if outcome == OutcomeCompleted {
		timer := time.NewTimer(w.opts.CompletionDelay)
		select {
		case <-ctx.Done():
		case <-timer.C:
		}
		timer.Stop()
	}
	close(done)

	if ctx.Err() != nil { // stopped
		return
	}
	switch outcome {
	case OutcomeFailed:
		if w.cb.OnError != nil {
			w.cb.OnError(ErrInterruptedMessage)
		}
	case OutcomeCompleted:
		if w.cb.OnComplete != nil {
			w.cb.OnComplete()
		}
	}
}

// watch feeds the tracker until it reaches a terminal state or ctx is done.
func (w *Watcher) watch(ctx context.Context) Outcome {
	events := make(chan event)
	var outcome Outcome

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return w.tick(gctx, events) })
	g.Go(func() error { return w.poll(gctx, events) })
	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case ev := <-events:
				if outcome = w.reduce(ev); outcome != OutcomeNone {
					return errTerminal // stops the ticker & the poller
				}
			}
		}
	})
	if err := g.Wait(); err != nil && err != errTerminal {
		w.opts.Logger.Error(fmt.Sprintf("watching course %s: %v", w.courseID, err), err)
	}
	return outcome
}

func (w *Watcher) reduce(ev event) Outcome {
	w.mu.Lock()
	defer w.mu.Unlock()
	if ev.tick {
		return w.tracker.Tick()
	}
	return w.tracker.Observe(ev.report)
}

func (w *Watcher) tick(ctx context.Context, events chan<- event) error {
	ticker := time.NewTicker(w.opts.TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			select {
			case events <- event{tick: true}:
			case <-ctx.Done():
				return nil
			}
		}
	}
}

// poll fetches a report right away, then every poll interval.
// A failed fetch is logged and retried on the next interval; it never ends the generation.
func (w *Watcher) poll(ctx context.Context, events chan<- event) error {
	ticker := time.NewTicker(w.opts.PollInterval)
	defer ticker.Stop()
	for {
		r, err := w.fetcher.FetchReport(ctx, w.courseID)
		switch {
		case ctx.Err() != nil:
			return nil
		case err != nil:
			w.opts.Logger.Warn(fmt.Sprintf("polling course %s: %v", w.courseID, err), err)
		default:
			select {
			case events <- event{report: r}:
			case <-ctx.Done():
				return nil
			}
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
