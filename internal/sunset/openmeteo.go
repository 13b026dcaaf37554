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

const defaultOpenMeteoURL = "https://api.open-meteo.com/v1/forecast"

type OpenMeteoClient struct {
	baseURL string
	client  *http.Client
}

func NewOpenMeteoClient(baseURL string, timeout time.Duration) *OpenMeteoClient {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = defaultOpenMeteoURL
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &OpenMeteoClient{
		baseURL: baseURL,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

type openMeteoResponse struct {
	Timezone string `json:"timezone"`
	Daily    struct {
		Time    []string `json:"time"`
		Sunrise []string `json:"sunrise"`
		Sunset  []string `json:"sunset"`
	} `json:"daily"`
}

func (c *OpenMeteoClient) Name() string {
	return "openmeteo"
}

func (c *OpenMeteoClient) SunTimes(ctx context.Context, lat, lon float64, date time.Time) (*Times, error) {
	day := dateKey(date)

	query := url.Values{}
	query.Set("latitude", fmt.Sprintf("%.6f", lat))
	query.Set("longitude", fmt.Sprintf("%.6f", lon))
	query.Set("daily", "sunrise,sunset")
	query.Set("timezone", "auto")
	query.Set("start_date", day)
	query.Set("end_date", day)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+query.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("open-meteo request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("open-meteo request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("open-meteo bad status: %s", resp.Status)
	}

	var payload openMeteoResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("open-meteo decode: %w", err)
	}

	sunrise, sunset, err := pickOpenMeteoDay(day, payload)
	if err != nil {
		return nil, err
	}

	return &Times{
		Provider:  c.Name(),
		Latitude:  lat,
		Longitude: lon,
		Date:      day,
		Sunrise:   sunrise,
		Sunset:    sunset,
		SolarNoon: sunrise.Add(sunset.Sub(sunrise) / 2),
		DayLength: sunset.Sub(sunrise),
	}, nil
}

func pickOpenMeteoDay(day string, payload openMeteoResponse) (time.Time, time.Time, error) {
	loc := time.UTC
	if strings.TrimSpace(payload.Timezone) != "" {
		if parsed, err := time.LoadLocation(payload.Timezone); err == nil {
			loc = parsed
		}
	}

	count := len(payload.Daily.Sunrise)
	if len(payload.Daily.Sunset) < count {
		count = len(payload.Daily.Sunset)
	}
	if count == 0 {
		return time.Time{}, time.Time{}, fmt.Errorf("open-meteo daily data missing")
	}

	index := -1
	for i := 0; i < count && i < len(payload.Daily.Time); i++ {
		if payload.Daily.Time[i] == day {
			index = i
			break
		}
	}
	if index < 0 {
		return time.Time{}, time.Time{}, fmt.Errorf("open-meteo returned no entry for %s", day)
	}

	sunrise := parseOpenMeteoTime(payload.Daily.Sunrise[index], loc)
	sunset := parseOpenMeteoTime(payload.Daily.Sunset[index], loc)
	if sunrise.IsZero() || sunset.IsZero() {
		return time.Time{}, time.Time{}, fmt.Errorf("open-meteo sun times missing for %s", day)
	}
	return sunrise, sunset, nil
}

func parseOpenMeteoTime(value string, loc *time.Location) time.Time {
	if t, err := time.ParseInLocation("2006-01-02T15:04", value, loc); err == nil {
		return t
	}
	if t, err := time.ParseInLocation(time.RFC3339, value, loc); err == nil {
		return t
	}
	return time.Time{}
}
