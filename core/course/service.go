package course

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/singleflight"

	"github.com/trezcool/coursefactory/core"
	"github.com/trezcool/coursefactory/core/querycache"
)

var (
	// errors
	ErrNotFound          = errors.New("course not found")
	ErrInvalidTransition = errors.New("invalid status transition")

	nowFunc = time.Now // mockable
)

// Cache keys & invalidation patterns
const (
	cacheEntity        = "course"
	listKeyPrefix      = "courses:list:"
	dashboardKey       = "dashboard:stats"
	listPattern        = "^courses:"
	dashboardPattern   = "^dashboard:"
	orderableFieldList = "name,topic,status,created_at,updated_at"
)

// OrderableFields are the fields a course listing can be ordered by.
var OrderableFields = strings.Split(orderableFieldList, ",")

type (
	Repository interface {
		CreateCourse(ctx context.Context, c Course) (Course, error)
		GetCourse(ctx context.Context, id string) (Course, error)
		// QueryCourses applies AND operation on available QueryFilter fields.
		// QueryFilter.Search does a case-insensitive match on one of Course.Name or Course.Topic.
		QueryCourses(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Course, error)
		// UpdateCourse stores c only while the stored course is still in the from status,
		// otherwise it returns ErrInvalidTransition.
		UpdateCourse(ctx context.Context, c Course, from Status) (Course, error)
		DeleteCourse(ctx context.Context, id string) error
		CountByStatus(ctx context.Context) (map[Status]int, error)
	}

	Service interface {
		Create(ctx context.Context, nc NewCourse) (Course, error)
		Get(ctx context.Context, id string) (Course, error)
		Report(ctx context.Context, id string) (Report, error)
		Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Course, error)
		Dashboard(ctx context.Context) (Dashboard, error)
		CompleteGeneration(ctx context.Context, id string, name string, modules []Module) (Course, error)
		FailGeneration(ctx context.Context, id string, reason string) (Course, error)
		RetryGeneration(ctx context.Context, id string) (Course, error)
		Publish(ctx context.Context, id string) (Course, error)
		Delete(ctx context.Context, id string) error
	}

	service struct {
		repo   Repository
		cache  *querycache.Cache
		logger core.Logger
		loads  singleflight.Group
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository, cache *querycache.Cache, logger core.Logger) Service {
	if logger == nil {
		logger = core.NopLogger{}
	}
	return &service{repo: repo, cache: cache, logger: logger}
}

func (svc *service) Create(ctx context.Context, nc NewCourse) (Course, error) {
	now := nowFunc().UTC()
	c, err := svc.repo.CreateCourse(ctx, Course{
		Name:      ProvisionalName(nc.Topic),
		Topic:     nc.Topic,
		Mode:      nc.Mode,
		Status:    StatusGenerating,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		return Course{}, errors.Wrap(err, "creating course")
	}
	svc.invalidate(c.ID)
	return c, nil
}

func (svc *service) Get(ctx context.Context, id string) (Course, error) {
	key := querycache.Key(cacheEntity, id)
	if v, ok := svc.cache.Get(key); ok {
		if c, ok := v.(Course); ok {
			return c.Clone(), nil
		}
	}

	gen := svc.cache.Generation()
	c, err := svc.repo.GetCourse(ctx, id)
	if err != nil {
		return Course{}, err
	}
	svc.cache.SetIfGeneration(gen, key, c.Clone(), querycache.TTLShort)
	return c, nil
}

// Report reads the course status straight from the repository.
// It is polled while the course is generated, so it is never served from the cache.
func (svc *service) Report(ctx context.Context, id string) (Report, error) {
	c, err := svc.repo.GetCourse(ctx, id)
	if err != nil {
		return Report{}, err
	}
	return c.Report(), nil
}

func (svc *service) Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Course, error) {
	key := listKey(filter, ordering)
	if v, ok := svc.cache.Get(key); ok {
		if courses, ok := v.([]Course); ok {
			return cloneCourses(courses), nil
		}
	}

	// Concurrent misses on the same listing share one repository read.
	// Flights are per generation: a read started before a write is never shared after it.
	gen := svc.cache.Generation()
	v, err, _ := svc.loads.Do(fmt.Sprintf("%s@%d", key, gen), func() (interface{}, error) {
		courses, err := svc.repo.QueryCourses(ctx, filter, ordering)
		if err != nil {
			return nil, err
		}
		svc.cache.SetIfGeneration(gen, key, courses, querycache.TTLMedium)
		return courses, nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "querying courses")
	}
	return cloneCourses(v.([]Course)), nil
}

func (svc *service) Dashboard(ctx context.Context) (Dashboard, error) {
	if v, ok := svc.cache.Get(dashboardKey); ok {
		if d, ok := v.(Dashboard); ok {
			return d.clone(), nil
		}
	}

	gen := svc.cache.Generation()
	counts, err := svc.repo.CountByStatus(ctx)
	if err != nil {
		return Dashboard{}, errors.Wrap(err, "counting courses")
	}
	d := Dashboard{Counts: make(map[Status]int, len(Statuses))}
	for _, s := range Statuses {
		d.Counts[s] = counts[s]
		d.Total += counts[s]
	}
	svc.cache.SetIfGeneration(gen, dashboardKey, d, querycache.TTLLong)
	return d.clone(), nil
}

func (svc *service) CompleteGeneration(ctx context.Context, id string, name string, modules []Module) (Course, error) {
	return svc.transition(ctx, id, func(c *Course) error {
		if c.Status != StatusGenerating {
			return ErrInvalidTransition
		}
		c.Status = StatusDraft
		c.Name = name
		c.Modules = modules
		c.Error = ""
		return nil
	})
}

func (svc *service) FailGeneration(ctx context.Context, id string, reason string) (Course, error) {
	return svc.transition(ctx, id, func(c *Course) error {
		if c.Status != StatusGenerating {
			return ErrInvalidTransition
		}
		c.Status = StatusError
		c.Error = reason
		return nil
	})
}

func (svc *service) RetryGeneration(ctx context.Context, id string) (Course, error) {
	return svc.transition(ctx, id, func(c *Course) error {
		if c.Status != StatusError {
			return ErrInvalidTransition
		}
		c.Status = StatusGenerating
		c.Name = ProvisionalName(c.Topic)
		c.Modules = nil
		c.Error = ""
		return nil
	})
}

func (svc *service) Publish(ctx context.Context, id string) (Course, error) {
	return svc.transition(ctx, id, func(c *Course) error {
		if c.Status != StatusDraft {
			return ErrInvalidTransition
		}
		now := nowFunc().UTC()
		c.Status = StatusPublished
		c.PublishedAt = &now
		return nil
	})
}

func (svc *service) Delete(ctx context.Context, id string) error {
	if err := svc.repo.DeleteCourse(ctx, id); err != nil {
		return err
	}
	svc.invalidate(id)
	return nil
}

func (svc *service) transition(ctx context.Context, id string, apply func(c *Course) error) (Course, error) {
	c, err := svc.repo.GetCourse(ctx, id)
	if err != nil {
		return Course{}, err
	}
	from := c.Status
	if err = apply(&c); err != nil {
		return Course{}, core.NewValidationError(
			errors.Wrapf(err, "%s course cannot be changed this way", from),
			core.FieldError{Field: "status", Error: fmt.Sprintf("course is %s", from)},
		)
	}
	c.UpdatedAt = nowFunc().UTC()

	// the repository re-checks the status: a concurrent transition from the same status loses here
	c, err = svc.repo.UpdateCourse(ctx, c, from)
	if errors.Cause(err) == ErrInvalidTransition {
		return Course{}, core.NewValidationError(
			errors.Wrapf(err, "course is no longer %s", from),
			core.FieldError{Field: "status", Error: fmt.Sprintf("course is no longer %s", from)},
		)
	}
	if err != nil {
		return Course{}, errors.Wrap(err, "updating course")
	}
	svc.invalidate(id)
	svc.logger.Info(fmt.Sprintf("course %s: %s -> %s", id, from, c.Status))
	return c, nil
}

// invalidate drops every cached read a write to course id may have made stale.
func (svc *service) invalidate(id string) {
	svc.cache.Invalidate(querycache.Key(cacheEntity, id))
	for _, p := range []string{listPattern, dashboardPattern} {
		if _, err := svc.cache.InvalidatePattern(p); err != nil {
			svc.logger.Error(fmt.Sprintf("invalidating %q: %v", p, err), err)
		}
	}
}

func cloneCourses(courses []Course) []Course {
	if courses == nil {
		return nil
	}
	cp := make([]Course, len(courses))
	for i, c := range courses {
		cp[i] = c.Clone()
	}
	return cp
}

// listKey derives a stable cache key from a listing's filter & ordering.
func listKey(filter *QueryFilter, ordering []core.DBOrdering) string {
	var b strings.Builder
	b.WriteString(listKeyPrefix)
	if filter != nil && !filter.IsEmpty() {
		statuses := make([]string, 0, len(filter.Status))
		for _, s := range filter.Status {
			statuses = append(statuses, string(s))
		}
		sort.Strings(statuses)
		fmt.Fprintf(&b, "search=%s;status=%s;", strings.ToLower(filter.Search), strings.Join(statuses, ","))
	} else {
		b.WriteString("all;")
	}
	for _, ord := range ordering {
		fmt.Fprintf(&b, "%s,", ord)
	}
	return b.String()
}
