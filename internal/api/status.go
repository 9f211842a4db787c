package api

import (
	"net/http"
	"runtime"
	"time"

	"github.com/veftodii/air-quality-monitor/internal/monitor"
)

// StatusHandler reports connectivity and the last cycle.
type StatusHandler struct {
	deps Deps
}

// NewStatusHandler creates new status handler
func NewStatusHandler(deps Deps) *StatusHandler {
	return &StatusHandler{deps: deps}
}

// StationStatus is the association part of the status.
type StationStatus struct {
	State   string `json:"state"`
	Retries int    `json:"retries"`
	Addr    string `json:"addr,omitempty"`
}

// BrokerStatus is the session part of the status.
type BrokerStatus struct {
	Server    string `json:"server"`
	Connected bool   `json:"connected"`
}

// Status is the response of GET /api/status.
type Status struct {
	Station   *StationStatus `json:"station,omitempty"`
	Broker    *BrokerStatus  `json:"broker,omitempty"`
	LastCycle *monitor.Cycle `json:"lastCycle,omitempty"`
	BootCount int            `json:"bootCount"`
	Uptime    string         `json:"uptime"`
	HeapAlloc uint64         `json:"heapAlloc"`
}

// Get handles GET /api/status
func (h *StatusHandler) Get(w http.ResponseWriter, r *http.Request) {
	st := Status{
		BootCount: h.deps.BootCount,
		Uptime:    time.Since(h.deps.Started).Truncate(time.Second).String(),
	}

	if h.deps.Station != nil {
		st.Station = &StationStatus{
			State:   h.deps.Station.State().String(),
			Retries: h.deps.Station.Retries(),
		}
		if addr := h.deps.Station.Addr(); addr.IsValid() {
			st.Station.Addr = addr.String()
		}
	}
	if h.deps.Session != nil {
		st.Broker = &BrokerStatus{
			Server:    h.deps.Session.Broker().Server,
			Connected: h.deps.Session.IsConnected(),
		}
	}
	if h.deps.Loop != nil {
		if c, ok := h.deps.Loop.Last(); ok {
			st.LastCycle = &c
		}
	}

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	st.HeapAlloc = mem.HeapAlloc

	writeJSON(w, http.StatusOK, st)
}
