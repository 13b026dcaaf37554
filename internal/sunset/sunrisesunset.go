package sunset

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultSunriseSunsetURL = "https://api.sunrise-sunset.org/json"

// SunriseSunsetClient queries api.sunrise-sunset.org. Requests use
// formatted=0 so every instant comes back as an RFC3339 timestamp in UTC.
type SunriseSunsetClient struct {
	baseURL string
	client  *http.Client
}

func NewSunriseSunsetClient(baseURL string, timeout time.Duration) *SunriseSunsetClient {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = defaultSunriseSunsetURL
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &SunriseSunsetClient{
		baseURL: baseURL,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

type sunriseSunsetResponse struct {
	Results struct {
		Sunrise   string `json:"sunrise"`
		Sunset    string `json:"sunset"`
		SolarNoon string `json:"solar_noon"`
		DayLength int64  `json:"day_length"`
	} `json:"results"`
	Status string `json:"status"`
}

func (c *SunriseSunsetClient) Name() string {
	return "sunrise-sunset"
}

func (c *SunriseSunsetClient) SunTimes(ctx context.Context, lat, lon float64, date time.Time) (*Times, error) {
	query := url.Values{}
	query.Set("lat", fmt.Sprintf("%.6f", lat))
	query.Set("lng", fmt.Sprintf("%.6f", lon))
	query.Set("date", dateKey(date))
	query.Set("formatted", "0")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+query.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("sunrise-sunset request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sunrise-sunset request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("sunrise-sunset bad status: %s", resp.Status)
	}

	var payload sunriseSunsetResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("sunrise-sunset decode: %w", err)
	}
	if payload.Status != "OK" {
		return nil, fmt.Errorf("sunrise-sunset status %q", payload.Status)
	}

	sunset, err := time.Parse(time.RFC3339, payload.Results.Sunset)
	if err != nil {
		return nil, fmt.Errorf("sunrise-sunset sunset %q: %w", payload.Results.Sunset, err)
	}
	sunrise, err := time.Parse(time.RFC3339, payload.Results.Sunrise)
	if err != nil {
		return nil, fmt.Errorf("sunrise-sunset sunrise %q: %w", payload.Results.Sunrise, err)
	}
	noon, _ := time.Parse(time.RFC3339, payload.Results.SolarNoon)

	return &Times{
		Provider:  c.Name(),
		Latitude:  lat,
		Longitude: lon,
		Date:      dateKey(date),
		Sunrise:   sunrise,
		Sunset:    sunset,
		SolarNoon: noon,
		DayLength: time.Duration(payload.Results.DayLength) * time.Second,
	}, nil
}
