// Package api exposes the latest snapshot over a small read-only HTTP
// surface. It never blocks the poll loop; every handler works on a copied
// view.
package api

import (
	"net/http"
	"sort"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/ovum-tools/acp-poller/internal/poller"
	"github.com/ovum-tools/acp-poller/internal/regmap"
	"github.com/ovum-tools/acp-poller/internal/snapshot"
)

// Scheduler is the slice of the poll scheduler the API reports on.
type Scheduler interface {
	State() poller.State
	Interval() time.Duration
}

// Handler serves the HTTP API.
type Handler struct {
	store     *snapshot.Store
	scheduler Scheduler
	rmap      *regmap.Map
	startTime time.Time
}

func NewHandler(store *snapshot.Store, scheduler Scheduler, rmap *regmap.Map) *Handler {
	return &Handler{
		store:     store,
		scheduler: scheduler,
		rmap:      rmap,
		startTime: time.Now(),
	}
}

// Register mounts all routes.
func (h *Handler) Register(e *echo.Echo) {
	e.GET("/healthz", h.HandleHealth)
	e.GET("/v1/snapshot", h.HandleSnapshot)
	e.GET("/v1/registers", h.HandleRegisters)
}

type healthResponse struct {
	Status   string `json:"status"`
	State    string `json:"state"`
	Interval string `json:"interval"`
	Uptime   string `json:"uptime"`
	Readings int    `json:"readings"`
	Stale    int    `json:"stale"`
}

// HandleHealth reports poller state. Degraded means the device is unreachable
// and values are going stale; the process itself is still healthy.
func (h *Handler) HandleHealth(c echo.Context) error {
	view := h.store.Current()
	stale := 0
	for _, r := range view {
		if r.Stale {
			stale++
		}
	}

	status := "ok"
	code := http.StatusOK
	if h.scheduler.State() == poller.StateBackingOff {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}

	return c.JSON(code, healthResponse{
		Status:   status,
		State:    h.scheduler.State().String(),
		Interval: h.scheduler.Interval().String(),
		Uptime:   time.Since(h.startTime).Round(time.Second).String(),
		Readings: len(view),
		Stale:    stale,
	})
}

type readingResponse struct {
	Key       string    `json:"key"`
	Name      string    `json:"name"`
	Value     string    `json:"value"`
	Unit      string    `json:"unit,omitempty"`
	Group     string    `json:"group,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Stale     bool      `json:"stale"`
}

// HandleSnapshot returns the latest merged snapshot, sorted by key.
func (h *Handler) HandleSnapshot(c echo.Context) error {
	view := h.store.Current()

	out := make([]readingResponse, 0, len(view))
	for _, r := range view {
		out = append(out, readingResponse{
			Key:       r.Key,
			Name:      r.Name,
			Value:     r.Value.String(),
			Unit:      r.Unit,
			Group:     r.Group,
			Timestamp: r.Timestamp,
			Stale:     r.Stale,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })

	return c.JSON(http.StatusOK, out)
}

type registerResponse struct {
	Key     string `json:"key"`
	Name    string `json:"name"`
	Address uint16 `json:"address"`
	Words   uint16 `json:"words"`
	Rule    string `json:"rule"`
	Scale   string `json:"scale"`
	Unit    string `json:"unit,omitempty"`
	Group   string `json:"group,omitempty"`
	Enabled bool   `json:"enabled"`
}

// HandleRegisters lists the loaded register catalog in map order.
func (h *Handler) HandleRegisters(c echo.Context) error {
	out := make([]registerResponse, 0, len(h.rmap.Registers))
	for _, d := range h.rmap.Registers {
		out = append(out, registerResponse{
			Key:     d.Key,
			Name:    d.Name,
			Address: d.Address,
			Words:   d.Words,
			Rule:    string(d.Rule),
			Scale:   d.Scale.String(),
			Unit:    d.Unit,
			Group:   d.Group,
			Enabled: d.IsEnabled(),
		})
	}
	return c.JSON(http.StatusOK, out)
}
