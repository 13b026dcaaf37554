package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"solar-clock/config"
	"solar-clock/internal/geo"
	"solar-clock/internal/storage"
	"solar-clock/internal/sunset"
	"solar-clock/internal/widget"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu       sync.Mutex
	frame    widget.Frame
	theme    widget.Theme
	mode     widget.ClockMode
	located  *geo.Coordinates
	denied   error
	fetchErr error
	viewers  []string
}

func newFakeClock() *fakeClock {
	return &fakeClock{
		frame: widget.Frame{
			Clock:      widget.ClockLoading,
			SolarClock: widget.ClockLoading,
			RealClock:  "19:45:10",
			Countdown:  widget.CountdownPending,
			Status:     widget.StatusLocating,
			Location:   "Dhaka, Bangladesh",
			Theme:      widget.ThemeNight,
			Appearance: widget.ThemeNight,
			ClockMode:  widget.ClockSolar,
		},
		theme: widget.ThemeNight,
		mode:  widget.ClockSolar,
	}
}

func (f *fakeClock) Frame() widget.Frame {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.frame
}

func (f *fakeClock) Stars() []widget.Star {
	return []widget.Star{{Top: 10, Left: 20, Duration: 1.5}}
}

func (f *fakeClock) Locate(_ context.Context, coords geo.Coordinates) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fetchErr != nil {
		f.frame.Status = widget.StatusFetchFailed
		return f.fetchErr
	}
	f.located = &coords
	f.frame.Ready = true
	f.frame.Clock = "01:15:10"
	f.frame.Countdown = widget.CountdownPrefix + "22h 44m 50s"
	f.frame.Status = "Sunset Time: 18:30:00"
	return nil
}

func (f *fakeClock) Deny(reason error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.denied = reason
	if errors.Is(reason, geo.ErrLocationDenied) {
		f.frame.Status = widget.StatusDenied
	} else {
		f.frame.Status = widget.StatusUnavailable
	}
}

func (f *fakeClock) Relabel(_ context.Context, ip string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.viewers = append(f.viewers, ip)
}

func (f *fakeClock) SetTheme(t widget.Theme) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.theme = t
	f.frame.Theme = t
	return nil
}

func (f *fakeClock) SetClockMode(m widget.ClockMode) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mode = m
	f.frame.ClockMode = m
	return nil
}

func (f *fakeClock) Modes() (widget.Theme, widget.ClockMode) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.theme, f.mode
}

func (f *fakeClock) SunTimes() *sunset.Times { return nil }
func (f *fakeClock) TickerActive() bool      { return false }

type fakeHistory struct {
	records []storage.SunTimesRecord
}

func (h fakeHistory) GetRecentSunTimes(limit int) ([]storage.SunTimesRecord, error) {
	if limit < len(h.records) {
		return h.records[:limit], nil
	}
	return h.records, nil
}

func newTestServer(t *testing.T, cfg ServerConfig) (*Server, *fakeClock) {
	t.Helper()
	clock := newFakeClock()
	cfg.Clock = clock
	cfg.BaseURL = "https://clock.example.com"
	s := NewServer(cfg)
	t.Cleanup(func() { s.Stop(context.Background()) })
	return s, clock
}

func do(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestClockPage(t *testing.T) {
	s, _ := newTestServer(t, ServerConfig{})

	rec := do(t, s, http.MethodGet, "/", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "<title>Solar Clock</title>")
	assert.Contains(t, body, `class="night"`)
	assert.Contains(t, body, widget.ClockLoading)
	assert.Contains(t, body, widget.StatusLocating)
	assert.Contains(t, body, `class="star"`)
	assert.Contains(t, body, "https://clock.example.com")
	assert.Contains(t, body, "navigator.geolocation")

	rec = do(t, s, http.MethodGet, "/static/icon.svg", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestClockPageFixedLocation(t *testing.T) {
	s, _ := newTestServer(t, ServerConfig{FixedLocation: true})
	rec := do(t, s, http.MethodGet, "/", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "navigator.geolocation")
}

func TestManifest(t *testing.T) {
	s, _ := newTestServer(t, ServerConfig{})

	rec := do(t, s, http.MethodGet, "/manifest.webmanifest", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/manifest+json", rec.Header().Get("Content-Type"))

	var m Manifest
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &m))
	assert.Equal(t, "Solar Clock", m.Name)
	assert.Equal(t, "/", m.StartURL)
	assert.Equal(t, "standalone", m.Display)
	assert.NotEmpty(t, m.Icons)
}

func TestLocation(t *testing.T) {
	s, clock := newTestServer(t, ServerConfig{})

	rec := do(t, s, http.MethodPost, "/api/v1/location", `{"latitude": 23.8103, "longitude": 90.4125}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, clock.located)
	assert.Equal(t, 23.8103, clock.located.Latitude)

	var resp struct {
		Frame widget.Frame `json:"frame"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "01:15:10", resp.Frame.Clock)
	assert.True(t, resp.Frame.Ready)
}

func TestLocationLabelsViewer(t *testing.T) {
	s, clock := newTestServer(t, ServerConfig{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/location",
		strings.NewReader(`{"latitude": 38.72, "longitude": -9.14}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Forwarded-For", "203.0.113.7")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/api/v1/location/error", strings.NewReader(`{"code": "denied"}`))
	req.Header.Set("Content-Type", "application/json")
	req.RemoteAddr = "198.51.100.4:41000"
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, []string{"203.0.113.7", "198.51.100.4"}, clock.viewers)
}

func TestLocationSuperseded(t *testing.T) {
	s, clock := newTestServer(t, ServerConfig{})
	clock.fetchErr = widget.ErrSuperseded

	rec := do(t, s, http.MethodPost, "/api/v1/location", `{"latitude": 1, "longitude": 2}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestLocationRejectsBadInput(t *testing.T) {
	s, clock := newTestServer(t, ServerConfig{})

	for _, body := range []string{`{"latitude": 91, "longitude": 0}`, `{"longitude": 10}`, `not json`} {
		rec := do(t, s, http.MethodPost, "/api/v1/location", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
	}
	assert.Nil(t, clock.located)
}

func TestLocationFetchFailure(t *testing.T) {
	s, clock := newTestServer(t, ServerConfig{})
	clock.fetchErr = sunset.ErrFetchFailed

	rec := do(t, s, http.MethodPost, "/api/v1/location", `{"latitude": 0, "longitude": 0}`)
	require.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, rec.Body.String(), "Failed to load sunset time.")
}

func TestLocationError(t *testing.T) {
	s, clock := newTestServer(t, ServerConfig{})

	rec := do(t, s, http.MethodPost, "/api/v1/location/error", `{"code": "denied"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.ErrorIs(t, clock.denied, geo.ErrLocationDenied)
	assert.Contains(t, rec.Body.String(), `"denied":true`)

	rec = do(t, s, http.MethodPost, "/api/v1/location/error", `{"code": "timeout"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.ErrorIs(t, clock.denied, geo.ErrLocationUnavailable)
}

func TestModes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("api:\n  port: 9000\n"), 0o644))
	cfg, err := config.Load(path)
	require.NoError(t, err)

	s, clock := newTestServer(t, ServerConfig{Config: cfg, ConfigPath: path})

	rec := do(t, s, http.MethodPut, "/api/v1/modes", `{"theme": "auto", "clock_mode": "real"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"theme": "auto", "clock_mode": "real"}`, rec.Body.String())
	assert.Equal(t, widget.ThemeAuto, clock.theme)

	saved, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "auto", saved.Clock.Theme)
	assert.Equal(t, "real", saved.Clock.Mode)
	assert.Equal(t, 9000, saved.API.Port)

	rec = do(t, s, http.MethodPut, "/api/v1/modes", `{"theme": "sepia"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, widget.ThemeAuto, clock.theme)

	rec = do(t, s, http.MethodGet, "/api/v1/modes", "")
	assert.JSONEq(t, `{"theme": "auto", "clock_mode": "real"}`, rec.Body.String())
}

func TestSunsets(t *testing.T) {
	s, _ := newTestServer(t, ServerConfig{})
	rec := do(t, s, http.MethodGet, "/api/v1/sunsets", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	s, _ = newTestServer(t, ServerConfig{History: fakeHistory{records: []storage.SunTimesRecord{
		{Provider: "astronomy", Date: "2025-06-15"},
		{Provider: "astronomy", Date: "2025-06-14"},
	}}})
	rec = do(t, s, http.MethodGet, "/api/v1/sunsets?limit=1", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var records []storage.SunTimesRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &records))
	require.Len(t, records, 1)
	assert.Equal(t, "2025-06-15", records[0].Date)
}

func TestHealthAndMetrics(t *testing.T) {
	s, _ := newTestServer(t, ServerConfig{})

	rec := do(t, s, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"healthy"`)

	rec = do(t, s, http.MethodGet, "/api/v1/frame", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"Getting your location..."`)

	rec = do(t, s, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "solarclock_websocket_clients")
}

func readFrame(t *testing.T, conn *websocket.Conn) widget.Frame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg struct {
		Topic string       `json:"topic"`
		Data  widget.Frame `json:"data"`
	}
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "frame", msg.Topic)
	return msg.Data
}

func TestWebsocketStream(t *testing.T) {
	s, clock := newTestServer(t, ServerConfig{})
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	initial := readFrame(t, conn)
	assert.Equal(t, widget.StatusLocating, initial.Status)

	require.Eventually(t, func() bool { return s.Hub().Clients() == 1 }, time.Second, 10*time.Millisecond)

	next := clock.Frame()
	next.Clock = "01:15:11"
	require.NoError(t, s.Hub().PublishFrame(next))
	assert.Equal(t, "01:15:11", readFrame(t, conn).Clock)

	require.NoError(t, conn.WriteJSON(map[string]string{"action": "theme", "value": "day"}))
	assert.Eventually(t, func() bool {
		theme, _ := clock.Modes()
		return theme == widget.ThemeDay
	}, time.Second, 10*time.Millisecond)

	conn.Close()
	assert.Eventually(t, func() bool { return s.Hub().Clients() == 0 }, time.Second, 10*time.Millisecond)
}
