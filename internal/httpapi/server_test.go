package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/orthofit/internal/driver"
	"github.com/sawpanic/orthofit/internal/metrics"
	"github.com/sawpanic/orthofit/internal/sweep"
)

func newTestServer(t *testing.T) (*httptest.Server, *Monitor, *metrics.Registry) {
	t.Helper()
	reg := metrics.New()
	mon := NewMonitor()
	srv := httptest.NewServer(NewServer(":0", reg, mon).Handler())
	t.Cleanup(srv.Close)
	return srv, mon, reg
}

func getJSON(t *testing.T, url string, v any) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
	return resp
}

func TestHealth(t *testing.T) {
	srv, _, _ := newTestServer(t)

	var body map[string]any
	resp := getJSON(t, srv.URL+"/health", &body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, StateIdle, body["state"])
}

func TestStatusFollowsRun(t *testing.T) {
	srv, mon, _ := newTestServer(t)

	mon.Begin("run-7", 16)
	mon.BatchDone(driver.BatchEvent{RunID: "run-7", Batch: 0, YStart: 75, YEnd: 83, RowsDone: 8, RowsTotal: 16,
		Stats: sweep.Stats{Points: 40, DegenerateDirections: 2}, ETA: 3 * time.Second})

	var st Status
	getJSON(t, srv.URL+"/status", &st)
	assert.Equal(t, "run-7", st.RunID)
	assert.Equal(t, StateRunning, st.State)
	assert.Equal(t, 8, st.RowsDone)
	assert.Equal(t, 1, st.Batches)
	assert.Equal(t, 40, st.Stats.Points)
	assert.Equal(t, "3s", st.ETA)
	require.NotNil(t, st.Last)
	assert.Equal(t, 75, st.Last.YStart)

	mon.End(errors.New("load rows [83,91): short read"))
	getJSON(t, srv.URL+"/status", &st)
	assert.Equal(t, StateFailed, st.State)
	assert.Contains(t, st.Error, "short read")
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _, reg := newTestServer(t)
	reg.RecordPoints(12, 0, 0)

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "orthofit_points_total 12")
}

func TestUnknownRoute(t *testing.T) {
	srv, _, _ := newTestServer(t)
	resp, err := http.Get(srv.URL + "/nope")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestProgressWebsocket(t *testing.T) {
	srv, mon, _ := newTestServer(t)
	mon.Begin("run-ws", 8)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/progress"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var st Status
	require.NoError(t, conn.ReadJSON(&st))
	assert.Equal(t, "run-ws", st.RunID)
	assert.Zero(t, st.RowsDone)
	assert.Equal(t, 1, mon.Clients())

	mon.BatchDone(driver.BatchEvent{RunID: "run-ws", Batch: 0, YStart: 0, YEnd: 8, RowsDone: 8, RowsTotal: 8})
	require.NoError(t, conn.ReadJSON(&st))
	assert.Equal(t, 8, st.RowsDone)

	mon.End(nil)
	require.NoError(t, conn.ReadJSON(&st))
	assert.Equal(t, StateDone, st.State)

	conn.Close()
	assert.Eventually(t, func() bool { return mon.Clients() == 0 }, 2*time.Second, 10*time.Millisecond)
}
