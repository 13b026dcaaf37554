package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultIPWhoIsURL = "https://ipwho.is/"

type IPWhoIs struct {
	baseURL string
	client  *http.Client
}

func NewIPWhoIs(baseURL string, timeout time.Duration) *IPWhoIs {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = defaultIPWhoIsURL
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &IPWhoIs{
		baseURL: baseURL,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

type Place struct {
	IP        string  `json:"ip"`
	City      string  `json:"city"`
	Region    string  `json:"region"`
	Country   string  `json:"country"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Timezone  string  `json:"timezone,omitempty"`
}

// Label renders "<city>, <country>".
func (p *Place) Label() string {
	return fmt.Sprintf("%s, %s", p.City, p.Country)
}

type ipWhoIsResponse struct {
	IP        string  `json:"ip"`
	Success   bool    `json:"success"`
	Message   string  `json:"message"`
	City      string  `json:"city"`
	Region    string  `json:"region"`
	Country   string  `json:"country"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Timezone  struct {
		ID string `json:"id"`
	} `json:"timezone"`
}

// Lookup resolves ip to a place. An empty ip resolves the address the request
// leaves from. A response with success=false is reported as ErrLookupFailed.
func (c *IPWhoIs) Lookup(ctx context.Context, ip string) (*Place, error) {
	target := c.baseURL
	if ip != "" {
		target = strings.TrimRight(c.baseURL, "/") + "/" + url.PathEscape(ip)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("ipwho.is request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLookupFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: bad status %s", ErrLookupFailed, resp.Status)
	}

	var payload ipWhoIsResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrLookupFailed, err)
	}
	if !payload.Success {
		return nil, fmt.Errorf("%w: %s", ErrLookupFailed, payload.Message)
	}

	return &Place{
		IP:        payload.IP,
		City:      payload.City,
		Region:    payload.Region,
		Country:   payload.Country,
		Latitude:  payload.Latitude,
		Longitude: payload.Longitude,
		Timezone:  payload.Timezone.ID,
	}, nil
}

// PublicIP returns ip when it is a routable address, or "" for private,
// loopback and malformed ones.
func PublicIP(ip string) string {
	parsed := net.ParseIP(strings.TrimSpace(ip))
	if parsed == nil || parsed.IsPrivate() || parsed.IsLoopback() ||
		parsed.IsLinkLocalUnicast() || parsed.IsUnspecified() {
		return ""
	}
	return parsed.String()
}

// LabelOrUnknown is the display label for a lookup result.
func LabelOrUnknown(place *Place, err error) string {
	if err != nil || place == nil || strings.TrimSpace(place.City) == "" {
		return UnknownLocation
	}
	return place.Label()
}
