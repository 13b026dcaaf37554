// Package widget drives the solar clock display: it owns one tracker, the
// status and location lines, the theme and clock-mode toggles, and the
// single one-second ticker that pushes frames to publishers.
package widget

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"solar-clock/internal/geo"
	"solar-clock/internal/metrics"
	"solar-clock/internal/solar"
	"solar-clock/internal/sunset"

	"cloudeng.io/datetime"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// Publisher receives every frame the widget renders.
type Publisher interface {
	Name() string
	PublishFrame(Frame) error
}

// Locator resolves the cosmetic place label for an IP address. An empty
// address means the server's own.
type Locator interface {
	Lookup(ctx context.Context, ip string) (*geo.Place, error)
}

// ErrSuperseded is returned by Locate when a newer location request or
// denial arrived while its sunset was being fetched.
var ErrSuperseded = errors.New("location superseded by a newer request")

type Config struct {
	Provider sunset.Provider
	// Locator is optional; without it the label stays at LocationLabel or
	// UnknownLocation.
	Locator Locator
	// LocationLabel, when set, replaces every IP lookup.
	LocationLabel string

	Clock    clockwork.Clock
	TimeZone *time.Location
	Interval time.Duration

	Theme     Theme
	ClockMode ClockMode
	Stars     int
	Seed      int64

	Logger *zap.SugaredLogger
}

type Widget struct {
	provider   sunset.Provider
	locator    Locator
	fixedLabel bool
	clock    clockwork.Clock
	loc      *time.Location
	interval time.Duration
	log      *zap.SugaredLogger
	stars    []Star

	mu         sync.RWMutex
	tracker    *solar.Tracker
	times      *sunset.Times
	coords     *geo.Coordinates
	status     string
	location   string
	theme      Theme
	mode       ClockMode
	publishers []Publisher
	// gen counts location requests; only the latest one may apply.
	gen uint64

	tickerMu     sync.Mutex
	tickerCancel context.CancelFunc
	tickerDone   chan struct{}
}

func New(cfg Config) *Widget {
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.TimeZone == nil {
		cfg.TimeZone = time.Local
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}
	if cfg.Theme == "" {
		cfg.Theme = ThemeNight
	}
	if cfg.ClockMode == "" {
		cfg.ClockMode = ClockSolar
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop().Sugar()
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = cfg.Clock.Now().UnixNano()
	}

	return &Widget{
		provider:   cfg.Provider,
		locator:    cfg.Locator,
		fixedLabel: cfg.LocationLabel != "",
		clock:    cfg.Clock,
		loc:      cfg.TimeZone,
		interval: cfg.Interval,
		log:      cfg.Logger,
		stars:    NewStarField(cfg.Stars, rand.New(rand.NewSource(seed))),
		tracker:  solar.NewTracker(),
		status:   StatusLocating,
		location: cfg.LocationLabel,
		theme:    cfg.Theme,
		mode:     cfg.ClockMode,
	}
}

func (w *Widget) AddPublisher(p Publisher) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.publishers = append(w.publishers, p)
}

// Start resolves the place label in the background and publishes the
// initial frame. It does not block.
func (w *Widget) Start(ctx context.Context) {
	w.mu.RLock()
	label := w.location
	w.mu.RUnlock()

	if label == "" {
		if w.locator == nil {
			w.setLocation(geo.UnknownLocation)
		} else {
			go w.lookupLabel(ctx, "")
		}
	}
	w.publish(w.Frame())
}

// Relabel resolves the place label for the viewer at ip. Private and
// loopback addresses share the server's network, so they resolve through
// the server's own public address.
func (w *Widget) Relabel(ctx context.Context, ip string) {
	if w.fixedLabel || w.locator == nil {
		return
	}
	w.lookupLabel(ctx, geo.PublicIP(ip))
}

func (w *Widget) lookupLabel(ctx context.Context, ip string) {
	place, err := w.locator.Lookup(ctx, ip)
	if err != nil {
		w.log.Debugf("Location label lookup for %q failed: %v", ip, err)
	}
	w.setLocation(geo.LabelOrUnknown(place, err))
}

func (w *Widget) setLocation(label string) {
	w.mu.Lock()
	w.location = label
	w.mu.Unlock()
	w.publish(w.Frame())
}

// Locate resolves the sunset for coords and, on success, replaces the
// reference and restarts the ticker. On failure the status reports it, the
// tracker keeps its previous state and no ticker is started. A call that
// finishes after a newer Locate or Deny started changes nothing and
// returns ErrSuperseded.
func (w *Widget) Locate(ctx context.Context, coords geo.Coordinates) error {
	if err := coords.Validate(); err != nil {
		w.Deny(geo.ErrLocationUnavailable)
		return err
	}
	events := metrics.Get().LocationEvents

	w.mu.Lock()
	w.gen++
	gen := w.gen
	w.mu.Unlock()

	times, err := w.provider.SunTimes(ctx, coords.Latitude, coords.Longitude, w.clock.Now().In(w.loc))
	if err != nil {
		w.mu.Lock()
		if w.gen != gen {
			w.mu.Unlock()
			return w.superseded(coords, err)
		}
		w.status = StatusFetchFailed
		w.mu.Unlock()
		events.WithLabelValues("fetch_failed").Inc()
		w.log.Warnf("Sunset lookup for %s failed: %v", coords, err)
		w.publish(w.Frame())
		if errors.Is(err, sunset.ErrFetchFailed) {
			return err
		}
		return fmt.Errorf("%w: %v", sunset.ErrFetchFailed, err)
	}

	w.mu.Lock()
	if w.gen != gen {
		w.mu.Unlock()
		return w.superseded(coords, nil)
	}
	w.tracker.SetReference(times.Sunset)
	w.times = times
	w.coords = &coords
	w.status = fmt.Sprintf("%s %s", StatusSunsetPrefix, times.Sunset.In(w.loc).Format("15:04:05"))
	w.mu.Unlock()

	events.WithLabelValues("resolved").Inc()
	metrics.Get().ReferenceUnix.Set(float64(times.Sunset.Unix()))
	w.log.Infof("Sunset for %s at %s (%s)", coords, times.Sunset.In(w.loc).Format(time.RFC3339), times.Provider)

	w.tick()
	w.restartTicker()
	return nil
}

func (w *Widget) superseded(coords geo.Coordinates, cause error) error {
	metrics.Get().LocationEvents.WithLabelValues("superseded").Inc()
	w.log.Debugf("Dropping sunset lookup for %s: newer request pending", coords)
	if cause != nil {
		return fmt.Errorf("%w: %v", ErrSuperseded, cause)
	}
	return ErrSuperseded
}

// Deny records that device coordinates could not be obtained. It
// supersedes any Locate still fetching.
func (w *Widget) Deny(reason error) {
	status := StatusUnavailable
	outcome := "unavailable"
	if errors.Is(reason, geo.ErrLocationDenied) {
		status = StatusDenied
		outcome = "denied"
	}
	metrics.Get().LocationEvents.WithLabelValues(outcome).Inc()

	w.mu.Lock()
	w.gen++
	w.status = status
	w.mu.Unlock()
	w.publish(w.Frame())
}

func (w *Widget) SetTheme(t Theme) error {
	parsed, err := ParseTheme(string(t))
	if err != nil {
		return err
	}
	w.mu.Lock()
	w.theme = parsed
	w.mu.Unlock()
	w.publish(w.Frame())
	return nil
}

func (w *Widget) SetClockMode(m ClockMode) error {
	parsed, err := ParseClockMode(string(m))
	if err != nil {
		return err
	}
	w.mu.Lock()
	w.mode = parsed
	w.mu.Unlock()
	w.publish(w.Frame())
	return nil
}

func (w *Widget) Modes() (Theme, ClockMode) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.theme, w.mode
}

// SunTimes returns the last resolved sun times, or nil.
func (w *Widget) SunTimes() *sunset.Times {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.times
}

// Coordinates returns the last coordinates that resolved a sunset, or nil.
func (w *Widget) Coordinates() *geo.Coordinates {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.coords
}

func (w *Widget) Stars() []Star {
	return w.stars
}

// Frame renders the display at the current time.
func (w *Widget) Frame() Frame {
	return w.FrameAt(w.clock.Now())
}

func (w *Widget) FrameAt(now time.Time) Frame {
	now = now.In(w.loc)

	w.mu.RLock()
	defer w.mu.RUnlock()

	f := Frame{
		At:         now,
		RealClock:  datetime.TimeOfDayFromTime(now).String(),
		Status:     w.status,
		Location:   w.location,
		Theme:      w.theme,
		Appearance: w.appearance(now),
		ClockMode:  w.mode,
	}
	if f.Location == "" {
		f.Location = LocationDetecting
	}

	reading, err := w.tracker.Sample(now)
	if err != nil {
		f.SolarClock = ClockLoading
		f.Countdown = CountdownPending
	} else {
		sunsetAt := reading.Reference.In(w.loc)
		f.Ready = true
		f.Sunset = &sunsetAt
		f.SolarClock = solar.FormatClock(reading.Elapsed)
		f.Countdown = CountdownPrefix + solar.FormatCountdown(reading.Until)
		f.ElapsedSeconds = int64(reading.Elapsed / time.Second)
		f.UntilSeconds = int64(reading.Until / time.Second)
	}

	f.Clock = f.SolarClock
	if w.mode == ClockReal {
		f.Clock = f.RealClock
	}
	return f
}

// appearance resolves ThemeAuto against the resolved sun times, falling
// back to 06:00-18:00 when none are known. Callers hold mu.
func (w *Widget) appearance(now time.Time) Theme {
	if w.theme != ThemeAuto {
		return w.theme
	}
	daylight := false
	if w.times != nil {
		daylight = w.times.IsDaylight(now)
	} else {
		daylight = now.Hour() >= 6 && now.Hour() < 18
	}
	if daylight {
		return ThemeDay
	}
	return ThemeNight
}

func (w *Widget) tick() {
	metrics.Get().Ticks.Inc()
	w.publish(w.Frame())
}

func (w *Widget) publish(f Frame) {
	w.mu.RLock()
	publishers := make([]Publisher, len(w.publishers))
	copy(publishers, w.publishers)
	w.mu.RUnlock()

	for _, p := range publishers {
		if err := p.PublishFrame(f); err != nil {
			metrics.Get().PublishErrors.WithLabelValues(p.Name()).Inc()
			w.log.Debugf("Publishing frame to %s failed: %v", p.Name(), err)
		}
	}
}

// restartTicker stops any running ticker and starts a fresh one, so at most
// one ticker is ever active.
func (w *Widget) restartTicker() {
	w.tickerMu.Lock()
	defer w.tickerMu.Unlock()

	w.stopTickerLocked()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	ticker := w.clock.NewTicker(w.interval)
	w.tickerCancel = cancel
	w.tickerDone = done
	metrics.Get().TickersStarted.Inc()

	go func() {
		defer close(done)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.Chan():
				w.tick()
			}
		}
	}()
}

func (w *Widget) stopTickerLocked() {
	if w.tickerCancel == nil {
		return
	}
	w.tickerCancel()
	<-w.tickerDone
	w.tickerCancel = nil
	w.tickerDone = nil
}

// TickerActive reports whether the periodic ticker is running.
func (w *Widget) TickerActive() bool {
	w.tickerMu.Lock()
	defer w.tickerMu.Unlock()
	return w.tickerCancel != nil
}

// Stop cancels the ticker and drops the reference.
func (w *Widget) Stop() {
	w.tickerMu.Lock()
	w.stopTickerLocked()
	w.tickerMu.Unlock()

	w.mu.Lock()
	w.tracker.Dispose()
	w.times = nil
	w.mu.Unlock()
}
