package daemon

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OpenCHAMI/senselink/internal/cache"
	"github.com/OpenCHAMI/senselink/internal/metrics"
	"github.com/OpenCHAMI/senselink/pkg/outlet"
	"github.com/OpenCHAMI/senselink/pkg/server"
)

type fakeResponder struct {
	mu         sync.Mutex
	responding bool
}

func (f *fakeResponder) Statistics() server.Statistics {
	f.mu.Lock()
	defer f.mu.Unlock()
	return server.Statistics{State: "bound", Responding: f.responding, PacketsReceived: 7}
}

func (f *fakeResponder) SetRespond(respond bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responding = respond
}

type fakeRequesters struct {
	list []cache.Requester
	err  error
}

func (f fakeRequesters) Get() ([]cache.Requester, error) { return f.list, f.err }

func newTestDaemon(t *testing.T, opts ...Option) (*Daemon, *outlet.Registry, *fakeResponder) {
	t.Helper()
	a, err := outlet.New(outlet.Params{ID: "dryer", Power: 4800, Voltage: 240})
	require.NoError(t, err)
	b, err := outlet.New(outlet.Params{ID: "fridge", Current: 1})
	require.NoError(t, err)
	registry := outlet.NewRegistry(a, b)
	responder := &fakeResponder{responding: true}
	opts = append([]Option{WithLogger(zerolog.Nop())}, opts...)
	return New(registry, responder, opts...), registry, responder
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestListOutlets(t *testing.T) {
	d, _, _ := newTestDaemon(t)
	rec := do(t, d.Router(), http.MethodGet, "/outlets", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var got []outlet.Outlet
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 2)
	assert.Equal(t, "dryer", got[0].ID)
	assert.Equal(t, "fridge", got[1].ID)
}

func TestGetOutlet(t *testing.T) {
	d, _, _ := newTestDaemon(t)
	h := d.Router()

	rec := do(t, h, http.MethodGet, "/outlets/dryer/", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var got outlet.Outlet
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, 20.0, got.Current)

	rec = do(t, h, http.MethodGet, "/outlets/missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUpdateOutlet(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewMetrics(reg)
	d, registry, _ := newTestDaemon(t, WithMetrics(reg, m))
	h := d.Router()

	rec := do(t, h, http.MethodPut, "/outlets/fridge", `{"power": 360}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	o, _ := registry.Get("fridge")
	assert.Equal(t, 360.0, o.Power)
	assert.Equal(t, 3.0, o.Current)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SourceUpdates.WithLabelValues("http")))
	assert.Equal(t, 360.0, testutil.ToFloat64(m.OutletPower.WithLabelValues("fridge")))

	rec = do(t, h, http.MethodPut, "/outlets/fridge", "12")
	require.Equal(t, http.StatusOK, rec.Code)
	o, _ = registry.Get("fridge")
	assert.Equal(t, 12.0, o.Power)

	tests := []struct {
		path, body string
		code       int
	}{
		{"/outlets/fridge", "", http.StatusBadRequest},
		{"/outlets/fridge", "watts", http.StatusBadRequest},
		{"/outlets/fridge", `{"voltage": -1}`, http.StatusBadRequest},
		{"/outlets/missing", "100", http.StatusNotFound},
	}
	for _, tt := range tests {
		rec := do(t, h, http.MethodPut, tt.path, tt.body)
		assert.Equal(t, tt.code, rec.Code, "%s %q", tt.path, tt.body)
	}
}

func TestStatus(t *testing.T) {
	d, _, responder := newTestDaemon(t)
	h := d.Router()

	rec := do(t, h, http.MethodGet, "/status", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var got map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "bound", got["state"])
	assert.Equal(t, true, got["responding"])
	assert.Equal(t, 7.0, got["packets_received"])
	assert.Equal(t, 2.0, got["outlets"])

	rec = do(t, h, http.MethodPut, "/status", `{"responding": false}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, responder.Statistics().Responding)

	rec = do(t, h, http.MethodPut, "/status", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = do(t, h, http.MethodPut, "/status", `nope`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRequesters(t *testing.T) {
	d, _, _ := newTestDaemon(t)
	rec := do(t, d.Router(), http.MethodGet, "/requesters", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())

	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	d, _, _ = newTestDaemon(t, WithRequesters(fakeRequesters{list: []cache.Requester{
		{Host: "192.168.1.5", Port: 9999, Polls: 3, FirstSeen: now, LastSeen: now},
	}}))
	rec = do(t, d.Router(), http.MethodGet, "/requesters", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var got []cache.Requester
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, int64(3), got[0].Polls)

	d, _, _ = newTestDaemon(t, WithRequesters(fakeRequesters{err: errors.New("db locked")}))
	rec = do(t, d.Router(), http.MethodGet, "/requesters", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	d, _, _ := newTestDaemon(t)
	rec := do(t, d.Router(), http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	reg := prometheus.NewRegistry()
	m := metrics.NewMetrics(reg)
	m.RecordPacketReceived()
	d, _, _ = newTestDaemon(t, WithMetrics(reg, m))
	rec = do(t, d.Router(), http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "senselink_packets_received_total 1")
}

func TestRunStopsOnCancel(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	endpoint := l.Addr().String()
	require.NoError(t, l.Close())

	d, _, _ := newTestDaemon(t)
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- d.Run(ctx, endpoint) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + endpoint + "/status")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("daemon did not stop")
	}
}
