package echoapi_test

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/coursefactory/core/course"
	"github.com/trezcool/coursefactory/services/email"
)

func TestHome(t *testing.T) {
	app := setup(t)
	req, rec := newRequest(http.MethodGet, "/")
	app.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Welcome to Course Factory API!", rec.Body.String())
}

func Test_courseApi_create(t *testing.T) {
	app := setup(t)

	tests := []httpTest{
		{
			name:     "missing topic",
			method:   http.MethodPost,
			path:     "/v1/courses",
			body:     []byte(`{"topic": "  "}`),
			wantCode: http.StatusBadRequest,
			wantData: []byte(`{"topic": "this field is required"}`),
		},
		{
			name:     "unknown mode",
			method:   http.MethodPost,
			path:     "/v1/courses",
			body:     []byte(`{"topic": "Go", "mode": "later"}`),
			wantCode: http.StatusBadRequest,
		},
	}
	runHttpTests(t, app, tests)

	req, rec := newRequest(http.MethodPost, "/v1/courses", []byte(`{"topic": "Go", "mode": "publish"}`))
	app.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)

	var got struct {
		course.Course
		EstimatedDuration string `json:"estimated_duration"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.NotEmpty(t, got.ID)
	assert.Equal(t, "Generating: Go", got.Name)
	assert.Equal(t, course.StatusGenerating, got.Status)
	assert.Equal(t, course.ModePublish, got.Mode)
	assert.Equal(t, "2-3 minutes", got.EstimatedDuration)
}

func Test_courseApi_detail(t *testing.T) {
	ctx := context.Background()
	app := setup(t)
	c, err := app.svc.Create(ctx, course.NewCourse{Topic: "Go", Mode: course.ModePreview})
	require.NoError(t, err)

	tests := []httpTest{
		{
			name:     "retrieve",
			method:   http.MethodGet,
			path:     "/v1/courses/" + c.ID,
			wantCode: http.StatusOK,
			wantData: marshallObj(t, c),
		},
		{
			name:     "retrieve unknown",
			method:   http.MethodGet,
			path:     "/v1/courses/unknown",
			wantCode: http.StatusNotFound,
			wantData: marshallObj(t, errNotFound),
		},
		{
			name:     "status",
			method:   http.MethodGet,
			path:     "/v1/courses/" + c.ID + "/status",
			wantCode: http.StatusOK,
			wantData: marshallObj(t, course.Report{ID: c.ID, Status: course.StatusGenerating, Name: "Generating: Go"}),
		},
		{
			name:     "status unknown",
			method:   http.MethodGet,
			path:     "/v1/courses/unknown/status",
			wantCode: http.StatusNotFound,
			wantData: marshallObj(t, errNotFound),
		},
		{
			name:     "publish while generating",
			method:   http.MethodPost,
			path:     "/v1/courses/" + c.ID + "/publish",
			wantCode: http.StatusBadRequest,
			wantData: []byte(`{"status": "course is generating"}`),
		},
		{
			name:     "retry while generating",
			method:   http.MethodPost,
			path:     "/v1/courses/" + c.ID + "/retry",
			wantCode: http.StatusBadRequest,
			wantData: []byte(`{"status": "course is generating"}`),
		},
		{
			name:     "provisional name",
			method:   http.MethodPut,
			path:     "/v1/courses/" + c.ID + "/generation",
			body:     []byte(`{"name": "Generating: Go"}`),
			wantCode: http.StatusBadRequest,
			wantData: []byte(`{"name": "name cannot be provisional"}`),
		},
		{
			name:     "delete unknown",
			method:   http.MethodDelete,
			path:     "/v1/courses/unknown",
			wantCode: http.StatusNotFound,
			wantData: marshallObj(t, errNotFound),
		},
	}
	runHttpTests(t, app, tests)
}

func Test_courseApi_lifecycle(t *testing.T) {
	ctx := context.Background()
	app := setup(t)
	c, err := app.svc.Create(ctx, course.NewCourse{Topic: "Go", Mode: course.ModePreview})
	require.NoError(t, err)
	do := func(method, path string, body ...[]byte) (int, course.Course) {
		req, rec := newRequest(method, path, body...)
		app.ServeHTTP(rec, req)
		var got course.Course
		if rec.Body.Len() > 0 {
			_ = json.Unmarshal(rec.Body.Bytes(), &got)
		}
		return rec.Code, got
	}

	// the job fails
	code, got := do(http.MethodPut, "/v1/courses/"+c.ID+"/generation", []byte(`{"error": "model timeout"}`))
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, course.StatusError, got.Status)
	assert.Equal(t, "model timeout", got.Error)

	sent := emailsvc.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "Generation failed: Go", sent[0].Subject)
	assert.Equal(t, "admin@test.cd", sent[0].To[0].Address)
	assert.Contains(t, sent[0].TextContent, "model timeout")
	assert.Contains(t, sent[0].TextContent, "http://localhost:5000/courses/"+c.ID)

	// the cached detail follows
	code, got = do(http.MethodGet, "/v1/courses/"+c.ID)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, course.StatusError, got.Status)

	code, got = do(http.MethodPost, "/v1/courses/"+c.ID+"/retry")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, course.StatusGenerating, got.Status)

	// the job completes
	body := []byte(`{"name": "Go in Practice", "modules": [{"title": "Basics", "lessons": ["Types"]}]}`)
	code, got = do(http.MethodPut, "/v1/courses/"+c.ID+"/generation", body)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, course.StatusDraft, got.Status)
	assert.Equal(t, "Go in Practice", got.Name)
	require.Len(t, emailsvc.Sent(), 2)
	assert.Equal(t, "Course generated: Go in Practice", emailsvc.Sent()[1].Subject)

	code, got = do(http.MethodPost, "/v1/courses/"+c.ID+"/publish")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, course.StatusPublished, got.Status)
	assert.NotNil(t, got.PublishedAt)

	code, _ = do(http.MethodDelete, "/v1/courses/"+c.ID)
	assert.Equal(t, http.StatusNoContent, code)
	code, _ = do(http.MethodGet, "/v1/courses/"+c.ID)
	assert.Equal(t, http.StatusNotFound, code)
}

func Test_courseApi_query(t *testing.T) {
	ctx := context.Background()
	app := setup(t)
	goCourse, err := app.svc.Create(ctx, course.NewCourse{Topic: "Go", Mode: course.ModePreview})
	require.NoError(t, err)
	rust, err := app.svc.Create(ctx, course.NewCourse{Topic: "Rust", Mode: course.ModePreview})
	require.NoError(t, err)
	rust, err = app.svc.CompleteGeneration(ctx, rust.ID, "Rust 101", nil)
	require.NoError(t, err)

	tests := []httpTest{
		{
			name:     "all, ordered by name",
			method:   http.MethodGet,
			path:     "/v1/courses?ordering=name",
			wantCode: http.StatusOK,
			wantData: marshallObj(t, []course.Course{goCourse, rust}),
		},
		{
			name:     "descending",
			method:   http.MethodGet,
			path:     "/v1/courses?ordering=-name",
			wantCode: http.StatusOK,
			wantData: marshallObj(t, []course.Course{rust, goCourse}),
		},
		{
			name:     "search",
			method:   http.MethodGet,
			path:     "/v1/courses?search=rust",
			wantCode: http.StatusOK,
			wantData: marshallObj(t, []course.Course{rust}),
		},
		{
			name:     "status",
			method:   http.MethodGet,
			path:     "/v1/courses?status=generating",
			wantCode: http.StatusOK,
			wantData: marshallObj(t, []course.Course{goCourse}),
		},
		{
			name:     "no match",
			method:   http.MethodGet,
			path:     "/v1/courses?search=haskell",
			wantCode: http.StatusOK,
			wantData: []byte(`[]`),
		},
		{
			name:     "invalid status",
			method:   http.MethodGet,
			path:     "/v1/courses?status=archived",
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "dashboard",
			method:   http.MethodGet,
			path:     "/v1/dashboard",
			wantCode: http.StatusOK,
			wantData: []byte(`{"total": 2, "counts": {"draft": 1, "generating": 1, "published": 0, "error": 0}}`),
		},
	}
	runHttpTests(t, app, tests)
}
