package echoapi_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	"github.com/go-playground/validator/v10"

	. "github.com/trezcool/coursefactory/apps/api/echo"
	"github.com/trezcool/coursefactory/core"
	"github.com/trezcool/coursefactory/core/course"
	"github.com/trezcool/coursefactory/core/querycache"
	"github.com/trezcool/coursefactory/services/email"
	"github.com/trezcool/coursefactory/storage/database/inmem"
)

var errNotFound = httpErr{Error: "not found"}

type testApp struct {
	*Server
	svc   course.Service
	cache *querycache.Cache
}

func setup(t *testing.T) testApp {
	t.Helper()
	conf := &core.Config{
		Env:             "TEST",
		TestMode:        true,
		AppName:         "Course Factory",
		FrontendBaseURL: "http://localhost:5000",
		AdminEmails:     []string{"Admin <admin@test.cd>"},
		Server:          core.ServerConfig{DisableReqLogs: true},
	}

	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	course.InitValidators(validate, translator)

	cache := querycache.New(querycache.Options{})
	svc := course.NewService(inmemdb.NewCourseRepository(inmemdb.Open()), cache, nil)
	emailsvc.ClearSentMessages()

	return testApp{
		Server: NewServer(ServerDeps{
			Conf:       conf,
			CourseSvc:  svc,
			Cache:      cache,
			MailSvc:    emailsvc.NewConsoleServiceMock(conf),
			Validate:   validate,
			Translator: translator,
		}),
		svc:   svc,
		cache: cache,
	}
}

type httpErr struct {
	Error string `json:"error"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	wantCode int
	wantData []byte
}

func newRequest(method, path string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	return req, rec
}

func marshallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marshallObj(): %v", err)
	}
	return data
}

func jsonBytesEqual(b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	return reflect.DeepEqual(j1, j2), nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	t.Helper()
	if rec.Code != tt.wantCode {
		t.Errorf("failed! code = %v; wantCode %v", rec.Code, tt.wantCode)
	}
	if tt.wantData == nil {
		return
	}
	ok, err := jsonBytesEqual(rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}

func runHttpTests(t *testing.T, app testApp, tests []httpTest) {
	t.Helper()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newRequest(tt.method, tt.path, tt.body)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}
}
