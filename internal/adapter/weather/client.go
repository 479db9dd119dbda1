package weather

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/couchcryptid/weather-mail-etl/internal/domain"
	"github.com/couchcryptid/weather-mail-etl/internal/observability"
)

// TokenSource yields the Authorization header for one weather request.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// Client implements domain.WeatherProvider against the weather service.
type Client struct {
	baseURL    string
	httpClient *http.Client
	tokens     TokenSource
	location   *time.Location
	logger     *slog.Logger
	metrics    *observability.Metrics
}

// NewClient creates a weather client. A zero timeout leaves requests
// unbounded apart from ctx. Observation times are reported in loc.
func NewClient(baseURL, login, password string, timeout time.Duration, loc *time.Location, logger *slog.Logger, metrics *observability.Metrics) *Client {
	httpClient := &http.Client{Timeout: timeout}
	return &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
		tokens:     NewAuthenticator(baseURL, login, password, httpClient),
		location:   loc,
		logger:     logger,
		metrics:    metrics,
	}
}

// Observations fetches a fresh token and then the records for location
// between from and to. A non-200 response is logged and yields no records.
func (c *Client) Observations(ctx context.Context, from, to, location string) ([]domain.Observation, error) {
	start := time.Now()
	defer func() { c.metrics.WeatherAPIDuration.Observe(time.Since(start).Seconds()) }()

	token, err := c.tokens.Token(ctx)
	if err != nil {
		c.metrics.WeatherRequests.WithLabelValues("auth_error").Inc()
		return nil, err
	}

	params := url.Values{
		"from":     {from},
		"to":       {to},
		"location": {location},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/forecast?"+params.Encode(), nil)
	if err != nil {
		c.metrics.WeatherRequests.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.WeatherRequests.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("weather request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		c.logger.Warn("weather service unavailable",
			"location", location,
			"from", from,
			"to", to,
			"status", resp.StatusCode,
			"body", string(body),
		)
		c.metrics.WeatherRequests.WithLabelValues("unavailable").Inc()
		return []domain.Observation{}, nil
	}

	var records []record
	if err := json.NewDecoder(resp.Body).Decode(&records); err != nil {
		c.metrics.WeatherRequests.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("decode weather response: %w", err)
	}

	out := make([]domain.Observation, 0, len(records))
	for i, r := range records {
		obs, err := r.toObservation(c.location)
		if err != nil {
			c.metrics.WeatherRequests.WithLabelValues("error").Inc()
			return nil, fmt.Errorf("weather record %d: %w", i, err)
		}
		out = append(out, obs)
	}
	c.metrics.WeatherRequests.WithLabelValues("success").Inc()
	return out, nil
}

// Weather service response types. Fields not listed here are ignored.

type record struct {
	Time            *float64 `json:"time"` // epoch seconds
	TempC           *float64 `json:"tempC"`
	Humidity        *float64 `json:"humidity"`
	WindSpeed       *float64 `json:"windSpeed"`
	WindDirection   *float64 `json:"windDirection"`
	CloudCover      *float64 `json:"cloudCover"`
	PercipMM        *float64 `json:"percipMM"`
	SolarIrradiance *float64 `json:"solarIrradiance"`
}

func (r record) toObservation(loc *time.Location) (domain.Observation, error) {
	if r.Time == nil {
		return domain.Observation{}, errors.New("missing time")
	}
	return domain.Observation{
		Time:            time.Unix(int64(*r.Time), 0).In(loc),
		Temperature:     r.TempC,
		Humidity:        r.Humidity,
		WindSpeed:       r.WindSpeed,
		WindDirection:   r.WindDirection,
		CloudCover:      r.CloudCover,
		Precipitation:   r.PercipMM,
		SolarIrradiance: r.SolarIrradiance,
	}, nil
}
