// Package generation tracks the progress of an asynchronous course generation.
//
// The server only reports a coarse course status, so intermediate progress is
// inferred from elapsed time: one step every 3 seconds, never past the second to
// last step. Only a polled report can end a generation, either as completed (a
// draft whose name lost its provisional prefix) or as failed (status error).
package generation

import (
	"time"

	"github.com/trezcool/coursefactory/core/course"
)

// ErrInterruptedMessage is handed to the error callback when a generation fails.
const ErrInterruptedMessage = "Generation was interrupted. Please try again."

const (
	stepDuration = 3 * time.Second
	tickStep     = time.Second
	maxProgress  = 95
)

type StepStatus string

// Step statuses
const (
	StepPending   StepStatus = "pending"
	StepActive    StepStatus = "active"
	StepCompleted StepStatus = "completed"
	StepError     StepStatus = "error"
)

type Step struct {
	ID     string     `json:"id"`
	Label  string     `json:"label"`
	Status StepStatus `json:"status"`
}

var stepTemplate = [...]Step{
	{ID: "init", Label: "Initializing", Status: StepActive},
	{ID: "structure", Label: "Designing course structure", Status: StepPending},
	{ID: "modules", Label: "Generating modules", Status: StepPending},
	{ID: "lessons", Label: "Writing lessons", Status: StepPending},
	{ID: "finalize", Label: "Finalizing course", Status: StepPending},
}

// Steps returns a fresh copy of the step template.
func Steps() []Step {
	steps := make([]Step, len(stepTemplate))
	copy(steps, stepTemplate[:])
	return steps
}

type Mode string

// Modes
const (
	ModePreview Mode = Mode(course.ModePreview)
	ModePublish Mode = Mode(course.ModePublish)
)

// ReferenceWindow is the elapsed time mapped to a full progress bar.
func (m Mode) ReferenceWindow() time.Duration {
	if m == ModePublish {
		return 120 * time.Second
	}
	return 30 * time.Second
}

// EstimatedDuration is the human readable duration shown while generating.
func (m Mode) EstimatedDuration() string {
	if m == ModePublish {
		return "2-3 minutes"
	}
	return "30-60 seconds"
}

// Outcome is what a single transition produced.
type Outcome int

const (
	OutcomeNone Outcome = iota
	OutcomeCompleted
	OutcomeFailed
)

type State struct {
	Steps     []Step        `json:"steps"`
	Elapsed   time.Duration `json:"elapsed"`
	Completed bool          `json:"completed"`
	Failed    bool          `json:"failed"`
	Error     string        `json:"error,omitempty"`
}

// Terminal reports whether no further transition can happen.
func (s State) Terminal() bool { return s.Completed || s.Failed }

// Tracker is the generation state machine. It is not safe for concurrent use:
// a single goroutine feeds it ticks & poll reports.
type Tracker struct {
	mode   Mode
	state  State
	report *course.Report
}

func NewTracker(mode Mode) *Tracker {
	t := &Tracker{mode: mode}
	t.Reset()
	return t
}

// Reset puts the tracker back to its initial state: first step active, the rest pending.
func (t *Tracker) Reset() {
	t.state = State{Steps: Steps()}
	t.report = nil
}

func (t *Tracker) Mode() Mode { return t.mode }

// Tick advances the elapsed time by one second.
func (t *Tracker) Tick() Outcome {
	if t.state.Terminal() {
		return OutcomeNone
	}
	t.state.Elapsed += tickStep
	return t.apply()
}

// Observe records the latest polled report.
func (t *Tracker) Observe(r course.Report) Outcome {
	if t.state.Terminal() {
		return OutcomeNone
	}
	t.report = &r
	return t.apply()
}

// apply is the only place the state changes. Applying it twice with the same inputs is a no-op.
func (t *Tracker) apply() Outcome {
	if t.state.Terminal() {
		return OutcomeNone
	}

	if r := t.report; r != nil {
		switch {
		case r.Status == course.StatusError:
			for i := range t.state.Steps {
				if t.state.Steps[i].Status == StepActive {
					t.state.Steps[i].Status = StepError
				}
			}
			t.state.Failed = true
			t.state.Error = ErrInterruptedMessage
			return OutcomeFailed

		case r.Status == course.StatusDraft && r.Name != "" && !course.IsProvisionalName(r.Name):
			for i := range t.state.Steps {
				t.state.Steps[i].Status = StepCompleted
			}
			t.state.Completed = true
			return OutcomeCompleted
		}
	}

	current := int(t.state.Elapsed / stepDuration)
	if last := len(t.state.Steps) - 2; current > last {
		current = last
	}
	for i := range t.state.Steps {
		switch {
		case i < current:
			t.state.Steps[i].Status = StepCompleted
		case i == current:
			t.state.Steps[i].Status = StepActive
		default:
			t.state.Steps[i].Status = StepPending
		}
	}
	return OutcomeNone
}

// State returns a copy of the current state.
func (t *Tracker) State() State {
	s := t.state
	s.Steps = append([]Step(nil), t.state.Steps...)
	return s
}

// Progress is the percentage shown on the progress bar.
// It stays below 100 until the server confirms the completion.
func (t *Tracker) Progress() int {
	switch {
	case t.state.Completed:
		return 100
	case t.state.Failed:
		var done int
		for _, s := range t.state.Steps {
			if s.Status == StepCompleted {
				done++
			}
		}
		return done * (100 / len(stepTemplate))
	}

	p := int(100 * t.state.Elapsed / t.mode.ReferenceWindow())
	if p > maxProgress {
		return maxProgress
	}
	return p
}
