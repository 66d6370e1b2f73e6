// Package admin serves the local operational endpoints: a liveness probe and
// a JSON status snapshot of the buffering pipeline.
package admin

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"sensorsync/internal/backpressure"
	"sensorsync/internal/breaker"
	"sensorsync/internal/logging"
	"sensorsync/internal/retention"
	"sensorsync/internal/store"
	"sensorsync/internal/syncer"
)

// Status is the /status response body.
type Status struct {
	DeviceID string        `json:"device_id"`
	Backlog  BacklogStatus `json:"backlog"`
	Breaker  BreakerStatus `json:"breaker"`
	Pressure Pressure      `json:"backpressure"`
	Disk     DiskStatus    `json:"disk"`
	Sync     syncer.Status `json:"sync"`
}

type BacklogStatus struct {
	Total    int64      `json:"total"`
	Unsynced int64      `json:"unsynced"`
	Oldest   *time.Time `json:"oldest,omitempty"`
	Newest   *time.Time `json:"newest,omitempty"`
}

type BreakerStatus struct {
	State               string `json:"state"`
	ConsecutiveFailures int    `json:"consecutive_failures"`
}

type Pressure struct {
	Failures     int    `json:"failures"`
	PollInterval string `json:"poll_interval"`
}

type DiskStatus struct {
	UtilizationPercent float64 `json:"utilization_percent"`
	Error              string  `json:"error,omitempty"`
}

type Server struct {
	deviceID string
	store    *store.Store
	breaker  *breaker.Breaker
	pressure *backpressure.Controller
	engine   *syncer.Engine
	gauge    retention.Gauge
	mux      *http.ServeMux
}

func NewServer(deviceID string, st *store.Store, b *breaker.Breaker, p *backpressure.Controller, e *syncer.Engine, g retention.Gauge) *Server {
	s := &Server{
		deviceID: deviceID,
		store:    st,
		breaker:  b,
		pressure: p,
		engine:   e,
		gauge:    g,
		mux:      http.NewServeMux(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealthz)
	s.mux.HandleFunc("/status", s.handleStatus)
}

// Handler exposes the mux for tests and embedding.
func (s *Server) Handler() http.Handler { return s.mux }

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context, addr string) error {
	log := logging.FromContext(ctx)
	srv := &http.Server{Addr: addr, Handler: s.mux}

	errc := make(chan error, 1)
	go func() {
		log.Info("admin endpoint listening", "addr", addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(sctx)
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.Snapshot(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(status)
}

// Snapshot assembles the current pipeline status. Storage errors abort the
// snapshot; a failing disk gauge is reported inline since status should stay
// reachable while the disk is misbehaving.
func (s *Server) Snapshot(ctx context.Context) (Status, error) {
	total, err := s.store.Count(ctx)
	if err != nil {
		return Status{}, err
	}
	unsynced, err := s.store.CountUnsynced(ctx)
	if err != nil {
		return Status{}, err
	}
	backlog := BacklogStatus{Total: total, Unsynced: unsynced}
	if oldest, newest, ok, err := s.store.TimeRange(ctx); err != nil {
		return Status{}, err
	} else if ok {
		backlog.Oldest, backlog.Newest = &oldest, &newest
	}

	disk := DiskStatus{}
	if pct, err := s.gauge.Utilization(); err != nil {
		disk.Error = err.Error()
	} else {
		disk.UtilizationPercent = pct
	}

	return Status{
		DeviceID: s.deviceID,
		Backlog:  backlog,
		Breaker: BreakerStatus{
			State:               s.breaker.State().String(),
			ConsecutiveFailures: s.breaker.ConsecutiveFailures(),
		},
		Pressure: Pressure{
			Failures:     s.pressure.Failures(),
			PollInterval: s.pressure.Interval().String(),
		},
		Disk: disk,
		Sync: s.engine.Status(),
	}, nil
}
