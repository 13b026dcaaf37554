package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

const (
	appName        = "Solar Clock"
	appShortName   = "SolarClock"
	appDescription = "A solar clock that syncs with your location and shows the time since sunset, with a live countdown to the next one."
)

type manifestIcon struct {
	Src     string `json:"src"`
	Sizes   string `json:"sizes"`
	Type    string `json:"type"`
	Purpose string `json:"purpose,omitempty"`
}

// Manifest is the progressive web app manifest.
type Manifest struct {
	Name            string         `json:"name"`
	ShortName       string         `json:"short_name"`
	Description     string         `json:"description"`
	StartURL        string         `json:"start_url"`
	Display         string         `json:"display"`
	BackgroundColor string         `json:"background_color"`
	ThemeColor      string         `json:"theme_color"`
	Icons           []manifestIcon `json:"icons"`
}

func newManifest() Manifest {
	return Manifest{
		Name:            appName,
		ShortName:       appShortName,
		Description:     appDescription,
		StartURL:        "/",
		Display:         "standalone",
		BackgroundColor: "#ffffff",
		ThemeColor:      "#000000",
		Icons: []manifestIcon{
			{Src: "/static/icon.svg", Sizes: "any", Type: "image/svg+xml", Purpose: "any"},
			{Src: "/static/icon.svg", Sizes: "any", Type: "image/svg+xml", Purpose: "maskable"},
		},
	}
}

func (s *Server) manifestHandler(c *gin.Context) {
	c.Header("Content-Type", "application/manifest+json")
	c.JSON(http.StatusOK, s.manifest)
}
