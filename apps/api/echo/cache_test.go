package echoapi_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func Test_cacheApi(t *testing.T) {
	app := setup(t)
	app.cache.Set("course:1", 1)
	app.cache.Set("courses:list:all;", 2)
	app.cache.Set("dashboard:stats", 3)

	tests := []httpTest{
		{
			name:     "stats",
			method:   http.MethodGet,
			path:     "/v1/admin/cache",
			wantCode: http.StatusOK,
			wantData: []byte(`{"total": 3, "valid": 3, "expired": 0}`),
		},
		{
			name:     "invalid pattern",
			method:   http.MethodDelete,
			path:     "/v1/admin/cache?pattern=%5B",
			wantCode: http.StatusBadRequest,
			wantData: []byte(`{"pattern": "pattern must be a valid regular expression"}`),
		},
		{
			name:     "pattern",
			method:   http.MethodDelete,
			path:     "/v1/admin/cache?pattern=%5Ecourse",
			wantCode: http.StatusOK,
			wantData: []byte(`{"removed": 2}`),
		},
		{
			name:     "all",
			method:   http.MethodDelete,
			path:     "/v1/admin/cache",
			wantCode: http.StatusOK,
			wantData: []byte(`{"removed": 1}`),
		},
	}
	runHttpTests(t, app, tests)

	_, ok := app.cache.Get("dashboard:stats")
	assert.False(t, ok)
}
