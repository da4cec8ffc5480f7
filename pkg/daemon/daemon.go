// Package daemon serves the HTTP status and control API next to the
// datagram responder.
package daemon

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/OpenCHAMI/senselink/internal/cache"
	"github.com/OpenCHAMI/senselink/internal/metrics"
	"github.com/OpenCHAMI/senselink/pkg/outlet"
	"github.com/OpenCHAMI/senselink/pkg/server"
)

// DefaultEndpoint is the endpoint suggested for the HTTP API.
const DefaultEndpoint = "127.0.0.1:9998"

const maxBodySize = 1 << 16

// Responder is the part of the datagram server the API reports on and
// toggles.
type Responder interface {
	Statistics() server.Statistics
	SetRespond(respond bool)
}

// RequesterSource lists cached requesters.
type RequesterSource interface {
	Get() ([]cache.Requester, error)
}

type Daemon struct {
	registry   *outlet.Registry
	responder  Responder
	requesters RequesterSource
	gatherer   prometheus.Gatherer
	metrics    *metrics.Metrics
	logger     zerolog.Logger
	startTime  time.Time
}

type Option func(*Daemon)

func WithRequesters(r RequesterSource) Option {
	return func(d *Daemon) { d.requesters = r }
}

// WithMetrics exposes g on /metrics and counts API updates in m.
func WithMetrics(g prometheus.Gatherer, m *metrics.Metrics) Option {
	return func(d *Daemon) {
		d.gatherer = g
		d.metrics = m
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(d *Daemon) { d.logger = l }
}

func New(registry *outlet.Registry, responder Responder, opts ...Option) *Daemon {
	d := &Daemon{
		registry:  registry,
		responder: responder,
		logger:    log.Logger,
		startTime: time.Now(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Router builds the API routes.
func (d *Daemon) Router() http.Handler {
	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		requestLogger(d.logger),
		middleware.Recoverer,
		middleware.StripSlashes,
		middleware.Timeout(60*time.Second),
	)

	router.Route("/outlets", func(r chi.Router) {
		r.Get("/", d.listOutlets)
		r.Get("/{id}", d.getOutlet)
		r.Put("/{id}", d.updateOutlet)
	})
	router.Get("/status", d.getStatus)
	router.Put("/status", d.setStatus)
	router.Get("/requesters", d.listRequesters)
	if d.gatherer != nil {
		router.Handle("/metrics", promhttp.HandlerFor(d.gatherer, promhttp.HandlerOpts{}))
	}
	return router
}

// Run serves the API on endpoint until ctx is cancelled.
func (d *Daemon) Run(ctx context.Context, endpoint string) error {
	srv := &http.Server{
		Addr:              endpoint,
		Handler:           d.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		d.logger.Info().Str("endpoint", endpoint).Msg("serving HTTP API")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (d *Daemon) listOutlets(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, d.registry.Snapshot())
}

func (d *Daemon) getOutlet(w http.ResponseWriter, r *http.Request) {
	o, ok := d.registry.Get(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, outlet.ErrNotFound)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (d *Daemon) updateOutlet(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	reading, err := outlet.ParseReading(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	updated, err := d.registry.Update(id, reading.Apply)
	if err != nil {
		if errors.Is(err, outlet.ErrNotFound) {
			writeError(w, http.StatusNotFound, err)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	d.metrics.RecordSourceUpdate("http")
	d.metrics.SetOutletPower(updated.ID, updated.Power)
	d.logger.Debug().Str("outlet", id).Float64("power", updated.Power).Msg("outlet updated over HTTP")
	writeJSON(w, http.StatusOK, updated)
}

type status struct {
	server.Statistics
	Outlets int     `json:"outlets"`
	Uptime  float64 `json:"uptime"`
}

func (d *Daemon) getStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, status{
		Statistics: d.responder.Statistics(),
		Outlets:    d.registry.Len(),
		Uptime:     time.Since(d.startTime).Seconds(),
	})
}

func (d *Daemon) setStatus(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Responding *bool `json:"responding"`
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodySize)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.Responding == nil {
		writeError(w, http.StatusBadRequest, errors.New("missing field: responding"))
		return
	}
	d.responder.SetRespond(*req.Responding)
	d.logger.Info().Bool("responding", *req.Responding).Msg("responses toggled over HTTP")
	d.getStatus(w, r)
}

func (d *Daemon) listRequesters(w http.ResponseWriter, r *http.Request) {
	if d.requesters == nil {
		writeJSON(w, http.StatusOK, []cache.Requester{})
		return
	}
	requesters, err := d.requesters.Get()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, requesters)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(b)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

// requestLogger logs each request at debug level.
func requestLogger(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				logger.Debug().
					Str("request_id", middleware.GetReqID(r.Context())).
					Str("method", r.Method).
					Str("path", r.URL.Path).
					Str("remote", r.RemoteAddr).
					Int("status", ww.Status()).
					Int("bytes", ww.BytesWritten()).
					Dur("elapsed", time.Since(start)).
					Msg("http request")
			}()
			next.ServeHTTP(ww, r)
		})
	}
}
