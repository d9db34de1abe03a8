package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"github.com/pkg/errors"

	"github.com/trezcool/coursefactory/core/course"
)

// courseSource is what watch needs to follow a generation.
type courseSource interface {
	Get(ctx context.Context, id string) (course.Course, error)
	Report(ctx context.Context, id string) (course.Report, error)
	RetryGeneration(ctx context.Context, id string) (course.Course, error)
}

// apiCourses reads courses through a running API.
type apiCourses struct {
	cli     *commandLine
	baseURL string
}

var _ courseSource = (*apiCourses)(nil)

func (api *apiCourses) Get(ctx context.Context, id string) (course.Course, error) {
	var c course.Course
	err := api.cli.callAPI(ctx, http.MethodGet, api.baseURL, "/v1/courses/"+url.PathEscape(id), nil, &c)
	return c, err
}

func (api *apiCourses) Report(ctx context.Context, id string) (course.Report, error) {
	var r course.Report
	err := api.cli.callAPI(ctx, http.MethodGet, api.baseURL, "/v1/courses/"+url.PathEscape(id)+"/status", nil, &r)
	return r, err
}

func (api *apiCourses) RetryGeneration(ctx context.Context, id string) (course.Course, error) {
	var c course.Course
	err := api.cli.callAPI(ctx, http.MethodPost, api.baseURL, "/v1/courses/"+url.PathEscape(id)+"/retry", nil, &c)
	return c, err
}

// watchSource picks where watch reads the course from: the API when an URL is given
// or when the CLI has no storage of its own, the local service otherwise.
func (cli *commandLine) watchSource(apiURL string) courseSource {
	if apiURL == "" && cli.courseSvc != nil {
		return cli.courseSvc
	}
	if apiURL == "" {
		apiURL = cli.defaultAPIURL()
	}
	return &apiCourses{cli: cli, baseURL: apiURL}
}

// callAPI sends a request to the API and decodes its JSON response into dst.
// A 404 is reported as course.ErrNotFound.
func (cli *commandLine) callAPI(ctx context.Context, method, apiURL, path string, q url.Values, dst interface{}) error {
	u, err := url.Parse(strings.TrimSuffix(apiURL, "/") + path)
	if err != nil {
		return errors.Wrap(err, "parsing API URL")
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, method, u.String(), nil)
	if err != nil {
		return errors.Wrap(err, "building request")
	}
	res, err := cli.httpClient.Do(req)
	if err != nil {
		return errors.Wrapf(err, "calling %s", u.Redacted())
	}
	defer func() { _ = res.Body.Close() }()

	switch res.StatusCode {
	case http.StatusOK:
		return errors.Wrap(json.NewDecoder(res.Body).Decode(dst), "decoding response")
	case http.StatusNotFound:
		return errors.Wrapf(course.ErrNotFound, "%s %s", method, u.Path)
	default:
		var apiErr map[string]interface{}
		_ = json.NewDecoder(res.Body).Decode(&apiErr)
		return errors.Errorf("%s %s: %s %v", method, u.Path, res.Status, apiErr)
	}
}
