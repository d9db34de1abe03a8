package course

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/coursefactory/core"
)

type Status string

// Statuses
const (
	StatusDraft      Status = "draft"
	StatusGenerating Status = "generating"
	StatusPublished  Status = "published"
	StatusError      Status = "error"
)

var Statuses = []Status{StatusDraft, StatusGenerating, StatusPublished, StatusError}

type Mode string

// Generation modes
const (
	ModePreview Mode = "preview"
	ModePublish Mode = "publish"
)

// ProvisionalPrefix marks the name of a course whose generation is still underway.
const ProvisionalPrefix = "Generating: "

// ProvisionalName is the name given to a course while it is being generated.
func ProvisionalName(topic string) string {
	return ProvisionalPrefix + topic
}

// IsProvisionalName reports whether name still carries the generation-in-progress prefix.
func IsProvisionalName(name string) bool {
	return strings.HasPrefix(name, ProvisionalPrefix)
}

type Module struct {
	Title   string   `json:"title" validate:"required"`
	Lessons []string `json:"lessons"`
}

type Course struct {
	ID          string     `json:"id" db:"id"`
	Name        string     `json:"name" db:"name"`
	Topic       string     `json:"topic" db:"topic"`
	Mode        Mode       `json:"mode" db:"mode"`
	Status      Status     `json:"status" db:"status"`
	Modules     []Module   `json:"modules,omitempty" db:"-"`
	Error       string     `json:"error,omitempty" db:"-"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"` // UTC
	UpdatedAt   time.Time  `json:"updated_at" db:"updated_at"` // UTC
	PublishedAt *time.Time `json:"published_at,omitempty" db:"-"`
}

// Clone returns a copy of c that shares no slice or pointer with it.
func (c Course) Clone() Course {
	if c.Modules != nil {
		modules := make([]Module, len(c.Modules))
		for i, m := range c.Modules {
			m.Lessons = append([]string(nil), m.Lessons...)
			modules[i] = m
		}
		c.Modules = modules
	}
	if c.PublishedAt != nil {
		t := *c.PublishedAt
		c.PublishedAt = &t
	}
	return c
}

// Report is the status read polled while a course is being generated.
type Report struct {
	ID      string `json:"id"`
	Status  Status `json:"status"`
	Name    string `json:"name"`
	Modules int    `json:"modules,omitempty"`
}

func (c Course) Report() Report {
	return Report{
		ID:      c.ID,
		Status:  c.Status,
		Name:    c.Name,
		Modules: len(c.Modules),
	}
}

// NewCourse contains information needed to start the generation of a new Course.
type NewCourse struct {
	Topic string `json:"topic" validate:"required,max=200"`
	Mode  Mode   `json:"mode" validate:"omitempty,course_mode"`
}

func (nc *NewCourse) Validate(validate *validator.Validate) error {
	nc.Topic = core.CleanString(nc.Topic)
	nc.Mode = Mode(core.CleanString(string(nc.Mode), true /* lower */))
	if nc.Mode == "" {
		nc.Mode = ModePreview
	}
	return validate.Struct(nc)
}

// GenerationResult is what the generation job reports once it is done.
// A non-empty Error marks the generation as failed.
type GenerationResult struct {
	Name    string   `json:"name" validate:"max=200"`
	Modules []Module `json:"modules" validate:"omitempty,dive"`
	Error   string   `json:"error"`
}

func (gr *GenerationResult) Validate(validate *validator.Validate) error {
	gr.Name = core.CleanString(gr.Name)
	gr.Error = core.CleanString(gr.Error)
	if err := validate.Struct(gr); err != nil {
		return err
	}
	if gr.Error != "" {
		return nil
	}
	if gr.Name == "" {
		return core.NewValidationError(nil, core.FieldError{Field: "name", Error: "this field is required"})
	}
	if IsProvisionalName(gr.Name) {
		return core.NewValidationError(nil, core.FieldError{Field: "name", Error: "name cannot be provisional"})
	}
	return nil
}

type QueryFilter struct {
	Search string   `query:"search"`
	Status []Status `query:"status" validate:"omitempty,dive,course_status"`
}

func (qf *QueryFilter) IsEmpty() bool {
	return qf.Search == "" && len(qf.Status) == 0
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
}

// Dashboard counts courses per status.
type Dashboard struct {
	Total  int            `json:"total"`
	Counts map[Status]int `json:"counts"`
}

func (d Dashboard) clone() Dashboard {
	counts := make(map[Status]int, len(d.Counts))
	for s, n := range d.Counts {
		counts[s] = n
	}
	d.Counts = counts
	return d
}
