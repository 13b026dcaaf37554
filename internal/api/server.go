package api

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"strconv"
	"sync"
	"time"

	"solar-clock/config"
	"solar-clock/internal/geo"
	"solar-clock/internal/metrics"
	"solar-clock/internal/storage"
	"solar-clock/internal/sunset"
	"solar-clock/internal/widget"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

//go:embed web/templates/*.html web/static/*
var webFS embed.FS

// Controller changes the display toggles.
type Controller interface {
	SetTheme(widget.Theme) error
	SetClockMode(widget.ClockMode) error
}

// Clock is the widget surface the server drives.
type Clock interface {
	Controller
	Frame() widget.Frame
	Stars() []widget.Star
	Locate(ctx context.Context, coords geo.Coordinates) error
	Deny(reason error)
	Relabel(ctx context.Context, ip string)
	Modes() (widget.Theme, widget.ClockMode)
	SunTimes() *sunset.Times
	TickerActive() bool
}

// History lists cached sun times.
type History interface {
	GetRecentSunTimes(limit int) ([]storage.SunTimesRecord, error)
}

type Server struct {
	router   *gin.Engine
	server   *http.Server
	clock    Clock
	history  History
	hub      *Hub
	port     int
	baseURL  string
	fixed    bool
	manifest Manifest
	log      *zap.SugaredLogger

	config      *config.Config
	configPath  string
	configMutex sync.Mutex
}

type ServerConfig struct {
	Port    int
	BaseURL string
	Clock   Clock
	// History is optional; /api/v1/sunsets answers 503 without it.
	History History
	// FixedLocation stops the page from asking the browser for coordinates.
	FixedLocation bool
	// Config and ConfigPath, when set, persist mode changes made over HTTP.
	Config     *config.Config
	ConfigPath string
	Logger     *zap.SugaredLogger
}

func NewServer(cfg ServerConfig) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(gin.Logger())

	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop().Sugar()
	}

	s := &Server{
		router:     router,
		clock:      cfg.Clock,
		history:    cfg.History,
		port:       cfg.Port,
		baseURL:    cfg.BaseURL,
		fixed:      cfg.FixedLocation,
		manifest:   newManifest(),
		log:        cfg.Logger,
		config:     cfg.Config,
		configPath: cfg.ConfigPath,
	}
	s.hub = NewHub(s, cfg.Logger)

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	tmpl := template.Must(template.ParseFS(webFS, "web/templates/*.html"))
	s.router.SetHTMLTemplate(tmpl)

	static, err := fs.Sub(webFS, "web/static")
	if err != nil {
		panic(err)
	}
	s.router.StaticFS("/static", http.FS(static))

	s.router.GET("/", s.clockHandler)
	s.router.HEAD("/", s.clockHandler)
	s.router.GET("/manifest.webmanifest", s.manifestHandler)
	s.router.GET("/health", s.healthHandler)
	s.router.GET("/ws", s.wsHandler)
	metrics.Get()
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := s.router.Group("/api/v1")
	{
		api.GET("/frame", s.frameHandler)
		api.POST("/location", s.locationHandler)
		api.POST("/location/error", s.locationErrorHandler)
		api.GET("/modes", s.getModesHandler)
		api.PUT("/modes", s.updateModesHandler)
		api.GET("/sunsets", s.sunsetsHandler)
	}
}

// Hub returns the websocket hub so it can be registered as a frame publisher.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.log.Infof("API server starting on port %d", s.port)
	return s.server.ListenAndServe()
}

func (s *Server) Stop(ctx context.Context) error {
	s.hub.Close()
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) clockHandler(c *gin.Context) {
	frame := s.clock.Frame()
	label, value, _ := frame.SunsetStatus()
	theme, mode := s.clock.Modes()

	c.HTML(http.StatusOK, "clock.html", gin.H{
		"title":         appName,
		"description":   appDescription,
		"baseURL":       s.baseURL,
		"frame":         frame,
		"stars":         s.clock.Stars(),
		"theme":         string(theme),
		"mode":          string(mode),
		"sunsetLabel":   label,
		"sunsetValue":   value,
		"fixedLocation": s.fixed,
	})
}

func (s *Server) healthHandler(c *gin.Context) {
	frame := s.clock.Frame()
	c.JSON(http.StatusOK, gin.H{
		"status":     "healthy",
		"ready":      frame.Ready,
		"ticking":    s.clock.TickerActive(),
		"ws_clients": s.hub.Clients(),
		"timestamp":  frame.At,
	})
}

func (s *Server) frameHandler(c *gin.Context) {
	c.JSON(http.StatusOK, s.clock.Frame())
}

func (s *Server) wsHandler(c *gin.Context) {
	s.hub.Serve(c, s.clock.Frame())
}

type LocationRequest struct {
	Latitude  *float64 `json:"latitude" binding:"required"`
	Longitude *float64 `json:"longitude" binding:"required"`
}

func (s *Server) locationHandler(c *gin.Context) {
	var req LocationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	coords := geo.Coordinates{Latitude: *req.Latitude, Longitude: *req.Longitude}
	if err := coords.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	s.clock.Relabel(c.Request.Context(), c.ClientIP())

	if err := s.clock.Locate(c.Request.Context(), coords); err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, widget.ErrSuperseded) {
			status = http.StatusConflict
		}
		c.JSON(status, gin.H{
			"error": err.Error(),
			"frame": s.clock.Frame(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"frame":     s.clock.Frame(),
		"sun_times": s.clock.SunTimes(),
	})
}

type LocationErrorRequest struct {
	Code string `json:"code"`
}

func (s *Server) locationErrorHandler(c *gin.Context) {
	var req LocationErrorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	reason := geo.ParseErrorCode(req.Code)
	s.clock.Relabel(c.Request.Context(), c.ClientIP())
	s.clock.Deny(reason)

	c.JSON(http.StatusOK, gin.H{
		"denied": errors.Is(reason, geo.ErrLocationDenied),
		"frame":  s.clock.Frame(),
	})
}

type ModesRequest struct {
	Theme     string `json:"theme"`
	ClockMode string `json:"clock_mode"`
}

func (s *Server) getModesHandler(c *gin.Context) {
	theme, mode := s.clock.Modes()
	c.JSON(http.StatusOK, gin.H{
		"theme":      theme,
		"clock_mode": mode,
	})
}

func (s *Server) updateModesHandler(c *gin.Context) {
	var req ModesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var (
		theme widget.Theme
		mode  widget.ClockMode
		err   error
	)
	if req.Theme != "" {
		if theme, err = widget.ParseTheme(req.Theme); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	if req.ClockMode != "" {
		if mode, err = widget.ParseClockMode(req.ClockMode); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	if theme != "" {
		if err := s.SetTheme(theme); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
	}
	if mode != "" {
		if err := s.SetClockMode(mode); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
	}

	s.getModesHandler(c)
}

// SetTheme applies and persists a theme change from any transport.
func (s *Server) SetTheme(t widget.Theme) error {
	if err := s.clock.SetTheme(t); err != nil {
		return err
	}
	s.persistModes()
	return nil
}

// SetClockMode applies and persists a clock mode change from any transport.
func (s *Server) SetClockMode(m widget.ClockMode) error {
	if err := s.clock.SetClockMode(m); err != nil {
		return err
	}
	s.persistModes()
	return nil
}

func (s *Server) persistModes() {
	if s.config == nil || s.configPath == "" {
		return
	}
	theme, mode := s.clock.Modes()

	s.configMutex.Lock()
	defer s.configMutex.Unlock()
	s.config.Clock.Theme = string(theme)
	s.config.Clock.Mode = string(mode)
	if err := config.Save(s.configPath, s.config); err != nil {
		s.log.Warnf("Failed to save config to file: %v", err)
	}
}

func (s *Server) sunsetsHandler(c *gin.Context) {
	if s.history == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Sun time cache disabled"})
		return
	}

	limit, err := strconv.Atoi(c.DefaultQuery("limit", "30"))
	if err != nil || limit <= 0 || limit > 1000 {
		limit = 30
	}

	records, err := s.history.GetRecentSunTimes(limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, records)
}
