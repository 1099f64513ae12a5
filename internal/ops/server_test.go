package ops

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thebtf/storyline/internal/pipeline"
)

type fakePinger struct{ err error }

func (f fakePinger) Ping() error { return f.err }

type fakeParked struct {
	count int64
	err   error
}

func (f fakeParked) ParkedCount(context.Context) (int64, error) { return f.count, f.err }

type fakeReporter struct{ report pipeline.Report }

func (f fakeReporter) Report() pipeline.Report { return f.report }

func testRequest(t *testing.T, svc *Service, path string) (int, map[string]any) {
	t.Helper()

	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	svc.router.ServeHTTP(rec, req)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return rec.Code, body
}

func TestHandleHealth(t *testing.T) {
	svc := NewService("1.2.3", fakePinger{}, fakeParked{}, fakeReporter{})

	code, body := testRequest(t, svc, "/healthz")

	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "1.2.3", body["version"])
}

func TestHandleHealthDegraded(t *testing.T) {
	svc := NewService("1.2.3", fakePinger{err: errors.New("connection refused")}, fakeParked{}, fakeReporter{})

	code, body := testRequest(t, svc, "/healthz")

	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "degraded", body["status"])
	assert.Contains(t, body["database"], "connection refused")
}

func TestHandleStats(t *testing.T) {
	svc := NewService("1.2.3", fakePinger{}, fakeParked{count: 3}, fakeReporter{
		report: pipeline.Report{Processed: 10, Duplicates: 4, Created: 6, Joined: 4},
	})

	code, body := testRequest(t, svc, "/stats")

	assert.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 10, body["processed"])
	assert.EqualValues(t, 4, body["duplicates"])
	assert.EqualValues(t, 6, body["created"])
	assert.EqualValues(t, 3, body["parked"])
}

func TestHandleStatsUnavailable(t *testing.T) {
	svc := NewService("1.2.3", fakePinger{}, fakeParked{err: errors.New("db gone")}, fakeReporter{})

	code, body := testRequest(t, svc, "/stats")

	assert.Equal(t, http.StatusInternalServerError, code)
	assert.Equal(t, "stats unavailable", body["error"])
}
