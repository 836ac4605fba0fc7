package backtest

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"maru/internal/market"
	"maru/internal/strategy"
)

func testRegistry(t *testing.T) *strategy.Registry {
	t.Helper()
	reg := strategy.NewRegistry()
	require.NoError(t, reg.Register(strategy.Registration{
		Name: "scripted",
		Factory: func(strategy.Params) (strategy.Strategy, error) {
			return &scriptedStrategy{signals: []strategy.Signal{strategy.SignalBuy, strategy.SignalSell}}, nil
		},
		DefaultBounds: strategy.ParamBounds{},
	}))
	return reg
}

func newTestServer(t *testing.T) (*HTTPServer, *Service) {
	t.Helper()
	runs, err := NewRunStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = runs.Close() })

	svc, err := NewService(ServiceConfig{
		Engine:        NewEngine(0),
		Source:        market.NewSyntheticSource(),
		Runs:          runs,
		Registry:      testRegistry(t),
		MaxConcurrent: 1,
	})
	require.NoError(t, err)

	srv, err := NewHTTPServer(HTTPConfig{Service: svc})
	require.NoError(t, err)
	return srv, svc
}

func doJSON(t *testing.T, srv *HTTPServer, method, path string, body any) (*httptest.ResponseRecorder, map[string]json.RawMessage) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	out := make(map[string]json.RawMessage)
	if rec.Body.Len() > 0 {
		_ = json.Unmarshal(rec.Body.Bytes(), &out)
	}
	return rec, out
}

func TestHTTPStrategies(t *testing.T) {
	srv, _ := newTestServer(t)
	rec, body := doJSON(t, srv, http.MethodGet, "/api/strategies", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var list []map[string]any
	require.NoError(t, json.Unmarshal(body["strategies"], &list))
	require.Len(t, list, 1)
	assert.Equal(t, "scripted", list[0]["name"])
}

func TestHTTPRunLifecycle(t *testing.T) {
	srv, _ := newTestServer(t)

	rec, body := doJSON(t, srv, http.MethodPost, "/api/backtest/runs", RunRequest{
		Strategy: "scripted",
		Code:     "005930",
		Days:     30,
	})
	require.Equal(t, http.StatusAccepted, rec.Code)

	var run Run
	require.NoError(t, json.Unmarshal(body["run"], &run))
	require.NotEmpty(t, run.ID)
	assert.Equal(t, RunStatusPending, run.Status)

	// 后台任务完成后状态落为 done
	deadline := time.Now().Add(5 * time.Second)
	for {
		rec, body = doJSON(t, srv, http.MethodGet, "/api/backtest/runs/"+run.ID, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		require.NoError(t, json.Unmarshal(body["run"], &run))
		if run.Status == RunStatusDone || run.Status == RunStatusFailed {
			break
		}
		require.True(t, time.Now().Before(deadline), "run did not finish in time")
		time.Sleep(20 * time.Millisecond)
	}
	require.Equal(t, RunStatusDone, run.Status)
	assert.Equal(t, 30, run.Days)
	assert.NotZero(t, run.FinalEquity)

	rec, body = doJSON(t, srv, http.MethodGet, "/api/backtest/runs/"+run.ID+"/equity", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var curve []EquityPoint
	require.NoError(t, json.Unmarshal(body["equity"], &curve))
	assert.Len(t, curve, 30)

	rec, _ = doJSON(t, srv, http.MethodGet, "/api/backtest/runs", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestHTTPRunValidation(t *testing.T) {
	srv, _ := newTestServer(t)

	rec, _ := doJSON(t, srv, http.MethodPost, "/api/backtest/runs", map[string]string{"strategy": "scripted"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = doJSON(t, srv, http.MethodPost, "/api/backtest/runs", RunRequest{Strategy: "nope", Code: "005930"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = doJSON(t, srv, http.MethodPost, "/api/backtest/runs", RunRequest{Strategy: "scripted", Code: "bad"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = doJSON(t, srv, http.MethodGet, "/api/backtest/runs/unknown-id", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHTTPReportWithoutRenderer(t *testing.T) {
	srv, _ := newTestServer(t)
	rec, _ := doJSON(t, srv, http.MethodGet, "/api/backtest/runs/whatever/report", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHTTPOptimizationsEmptyWithoutStore(t *testing.T) {
	srv, _ := newTestServer(t)
	rec, body := doJSON(t, srv, http.MethodGet, "/api/optimizations", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list []any
	require.NoError(t, json.Unmarshal(body["optimizations"], &list))
	assert.Empty(t, list)
}
