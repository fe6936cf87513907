package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ovum-tools/acp-poller/internal/decode"
	"github.com/ovum-tools/acp-poller/internal/poller"
	"github.com/ovum-tools/acp-poller/internal/regmap"
	"github.com/ovum-tools/acp-poller/internal/snapshot"
	"github.com/ovum-tools/acp-poller/internal/transport"
)

func testServer(t *testing.T) (*echo.Echo, *snapshot.Store) {
	t.Helper()

	rmap := regmap.Default()
	store := snapshot.NewStore()
	// Never started: no socket is touched, the session dials lazily.
	sched, err := poller.New(rmap, store, poller.Config{
		Connection: transport.Config{Host: "10.0.0.5", Port: 502, UnitID: 247},
		Interval:   time.Minute,
	})
	require.NoError(t, err)

	e := echo.New()
	NewHandler(store, sched, rmap).Register(e)
	return e, store
}

func get(e *echo.Echo, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

type stubScheduler struct{ state poller.State }

func (s stubScheduler) State() poller.State     { return s.state }
func (s stubScheduler) Interval() time.Duration { return time.Minute }

func TestHandleHealth(t *testing.T) {
	e, _ := testServer(t)

	rec := get(e, "/healthz")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "stopped", body["state"])
	assert.Equal(t, "1m0s", body["interval"])
}

func TestHandleHealthDegradedWhileBackingOff(t *testing.T) {
	e := echo.New()
	NewHandler(snapshot.NewStore(), stubScheduler{state: poller.StateBackingOff}, regmap.Default()).Register(e)

	rec := get(e, "/healthz")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "degraded", body["status"])
	assert.Equal(t, "backing off", body["state"])
}

func TestHandleSnapshot(t *testing.T) {
	e, store := testServer(t)

	at := time.Now()
	store.Apply(snapshot.Update{At: at, Readings: []snapshot.Reading{
		{
			Key:   "waermepumpenaustritt",
			Name:  "AIR WP Austritt",
			Value: decode.Value{Kind: decode.KindNumber, Number: decimal.RequireFromString("23.5")},
			Unit:  "°C",
			Group: "temperature",
		},
		{
			Key:   "wp_status",
			Name:  "WP Status",
			Value: decode.Value{Kind: decode.KindLabel, Label: "Bereit"},
			Group: "information",
		},
	}})
	store.Apply(snapshot.Update{At: at.Add(time.Minute), Failed: []string{"wp_status"}})

	rec := get(e, "/v1/snapshot")
	require.Equal(t, http.StatusOK, rec.Code)

	var readings []struct {
		Key   string `json:"key"`
		Value string `json:"value"`
		Unit  string `json:"unit"`
		Stale bool   `json:"stale"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &readings))
	require.Len(t, readings, 2)

	// Sorted by key.
	assert.Equal(t, "waermepumpenaustritt", readings[0].Key)
	assert.Equal(t, "23.5", readings[0].Value)
	assert.Equal(t, "°C", readings[0].Unit)
	assert.False(t, readings[0].Stale)

	assert.Equal(t, "wp_status", readings[1].Key)
	assert.Equal(t, "Bereit", readings[1].Value, "stale readings keep their last value")
	assert.True(t, readings[1].Stale)
}

func TestHandleRegisters(t *testing.T) {
	e, _ := testServer(t)

	rec := get(e, "/v1/registers")
	require.Equal(t, http.StatusOK, rec.Code)

	var regs []struct {
		Key     string `json:"key"`
		Address uint16 `json:"address"`
		Rule    string `json:"rule"`
		Scale   string `json:"scale"`
		Enabled bool   `json:"enabled"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &regs))
	require.NotEmpty(t, regs)

	byKey := make(map[string]int)
	for i, r := range regs {
		byKey[r.Key] = i
	}

	outlet := regs[byKey["waermepumpenaustritt"]]
	assert.Equal(t, uint16(103), outlet.Address)
	assert.Equal(t, "signed16", outlet.Rule)
	assert.Equal(t, "0.1", outlet.Scale)
	assert.True(t, outlet.Enabled)

	assert.False(t, regs[byKey["wp_status_num"]].Enabled)
}
