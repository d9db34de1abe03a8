package echoapi

import (
	"fmt"
	"net/http"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/coursefactory/core"
	"github.com/trezcool/coursefactory/core/course"
	"github.com/trezcool/coursefactory/core/generation"
)

var errCourseNotFoundInCtx = errors.New("course object not found in echo.Context")

type courseApi struct {
	svc        course.Service
	mailSvc    core.EmailService
	conf       *core.Config
	logger     core.Logger
	validate   *validator.Validate
	translator ut.Translator
}

func registerCourseAPI(g *echo.Group, deps ServerDeps) {
	api := courseApi{
		svc:        deps.CourseSvc,
		mailSvc:    deps.MailSvc,
		conf:       deps.Conf,
		logger:     deps.Logger,
		validate:   deps.Validate,
		translator: deps.Translator,
	}

	g.GET("/dashboard", api.dashboard)

	cg := g.Group("/courses")
	cg.GET("", api.query)
	cg.POST("", api.create)

	// detail endpoints
	dg := cg.Group("/:id")
	dg.GET("", api.retrieve, courseMiddleware(api.svc))
	dg.GET("/status", api.status) // polled: always read fresh
	dg.PUT("/generation", api.reportGeneration)
	dg.POST("/retry", api.retry)
	dg.POST("/publish", api.publish)
	dg.DELETE("", api.destroy)
}

type createResponse struct {
	course.Course
	EstimatedDuration string `json:"estimated_duration"`
}

// Handlers

func (api *courseApi) create(ctx echo.Context) error {
	var data course.NewCourse
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewCourse")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	c, err := api.svc.Create(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating course")
	}
	return ctx.JSON(http.StatusCreated, createResponse{
		Course:            c,
		EstimatedDuration: generation.Mode(c.Mode).EstimatedDuration(),
	})
}

func (api *courseApi) query(ctx echo.Context) error {
	filter := new(course.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []course.Course{})
	}
	filter.Clean()
	if err := api.validate.Struct(filter); err != nil {
		return err
	}
	ordering := new(Ordering)
	ordering.Bind(ctx, course.OrderableFields...)

	courses, err := api.svc.Query(ctx.Request().Context(), filter, ordering.Orderings)
	if err != nil {
		return errors.Wrap(err, "querying courses")
	}
	if courses == nil {
		courses = []course.Course{}
	}
	return ctx.JSON(http.StatusOK, courses)
}

func (api *courseApi) retrieve(ctx echo.Context) error {
	c, ok := ctx.Get(objectKey).(course.Course)
	if !ok {
		return errors.Wrap(errCourseNotFoundInCtx, "retrieving object from context")
	}
	return ctx.JSON(http.StatusOK, c)
}

func (api *courseApi) status(ctx echo.Context) error {
	r, err := api.svc.Report(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "reading course status")
	}
	return ctx.JSON(http.StatusOK, r)
}

// reportGeneration is called by the generation job once it is done.
func (api *courseApi) reportGeneration(ctx echo.Context) error {
	var data course.GenerationResult
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to GenerationResult")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	var (
		c   course.Course
		err error
	)
	rctx := ctx.Request().Context()
	if data.Error != "" {
		c, err = api.svc.FailGeneration(rctx, ctx.Param("id"), data.Error)
	} else {
		c, err = api.svc.CompleteGeneration(rctx, ctx.Param("id"), data.Name, data.Modules)
	}
	if err != nil {
		return errors.Wrap(err, "reporting generation")
	}

	api.notifyAdmins(c)
	return ctx.JSON(http.StatusOK, c)
}

func (api *courseApi) retry(ctx echo.Context) error {
	c, err := api.svc.RetryGeneration(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "retrying generation")
	}
	return ctx.JSON(http.StatusOK, c)
}

func (api *courseApi) publish(ctx echo.Context) error {
	c, err := api.svc.Publish(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "publishing course")
	}
	return ctx.JSON(http.StatusOK, c)
}

func (api *courseApi) destroy(ctx echo.Context) error {
	if err := api.svc.Delete(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting course")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *courseApi) dashboard(ctx echo.Context) error {
	d, err := api.svc.Dashboard(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "loading dashboard")
	}
	return ctx.JSON(http.StatusOK, d)
}

func (api *courseApi) notifyAdmins(c course.Course) {
	to := core.ParseAddresses(api.conf.AdminEmails)
	if len(to) == 0 || api.mailSvc == nil {
		return
	}

	msg := &core.EmailMessage{
		To:              to,
		TemplateData:    c,
		FrontendBaseURL: api.conf.FrontendBaseURL,
	}
	if c.Status == course.StatusError {
		msg.Subject = fmt.Sprintf("Generation failed: %s", c.Topic)
		msg.TemplateName = "generation_failed"
	} else {
		msg.Subject = fmt.Sprintf("Course generated: %s", c.Name)
		msg.TemplateName = "generation_completed"
	}
	api.mailSvc.SendMessages(msg)
}
