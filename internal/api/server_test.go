package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/albapepper/stock-notifier/internal/api/handler"
	"github.com/albapepper/stock-notifier/internal/config"
	"github.com/albapepper/stock-notifier/internal/metrics"
	"github.com/albapepper/stock-notifier/internal/notifications"
)

type stubPinger struct{ err error }

func (s stubPinger) HealthCheck(ctx context.Context) error { return s.err }

func newTestRouter(t *testing.T, dbErr error, runs *handler.RunHistory) http.Handler {
	t.Helper()
	reg := prometheus.NewRegistry()
	rec := metrics.NewRecorder(reg)
	rec.ObserveRun(handler.ResultOK, time.Unix(1705327200, 0))

	h := handler.New(stubPinger{err: dbErr}, runs, []notifications.Channel{notifications.ChannelEmail}, "0 * * * *")
	cfg := &config.Config{CORSAllowOrigins: []string{"http://localhost:3000"}}
	return NewRouter(h, reg, cfg, slog.New(slog.DiscardHandler))
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
	return rr
}

func TestRouter_Health(t *testing.T) {
	r := newTestRouter(t, nil, handler.NewRunHistory(5))

	rr := get(t, r, "/health")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.NotEmpty(t, rr.Header().Get("X-Process-Time"))

	rr = get(t, r, "/health/db")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"database":"connected"`)
}

func TestRouter_HealthDBDown(t *testing.T) {
	r := newTestRouter(t, errors.New("connection refused"), handler.NewRunHistory(5))

	rr := get(t, r, "/health/db")
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Contains(t, rr.Body.String(), `"status":"unhealthy"`)
}

func TestRouter_LastRun(t *testing.T) {
	runs := handler.NewRunHistory(5)
	r := newTestRouter(t, nil, runs)

	rr := get(t, r, "/api/v1/runs/last")
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Contains(t, rr.Body.String(), "NO_RUNS")

	runs.Record(handler.RunRecord{
		Result:     handler.ResultOK,
		FinishedAt: time.Date(2024, 1, 15, 14, 0, 5, 0, time.UTC),
		Summary:    &notifications.Summary{RunID: "run-1", TotalSkipped: 2},
	})

	rr = get(t, r, "/api/v1/runs/last")
	require.Equal(t, http.StatusOK, rr.Code)

	var body handler.RunRecord
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, handler.ResultOK, body.Result)
	require.NotNil(t, body.Summary)
	assert.Equal(t, "run-1", body.Summary.RunID)
	assert.Equal(t, 2, body.Summary.TotalSkipped)
}

func TestRouter_Metrics(t *testing.T) {
	r := newTestRouter(t, nil, handler.NewRunHistory(1))

	rr := get(t, r, "/metrics")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `stock_notifier_runs_total{result="ok"} 1`)
}

func TestRunHistory_KeepsNewest(t *testing.T) {
	h := handler.NewRunHistory(2)
	h.Record(handler.RunRecord{Result: "a"})
	h.Record(handler.RunRecord{Result: "b"})
	h.Record(handler.RunRecord{Result: "c"})

	recent := h.Recent()
	require.Len(t, recent, 2)
	assert.Equal(t, "c", recent[0].Result)
	assert.Equal(t, "b", recent[1].Result)

	last, ok := h.Last()
	require.True(t, ok)
	assert.Equal(t, "c", last.Result)
}
