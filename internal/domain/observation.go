package domain

import (
	"context"
	"time"
)

// Observation is one timestamped weather record returned by the weather
// service. Only these fields are kept; anything else in the response is dropped.
type Observation struct {
	City            string
	Time            time.Time
	Temperature     *float64
	Humidity        *float64
	WindSpeed       *float64
	WindDirection   *float64
	CloudCover      *float64
	Precipitation   *float64
	SolarIrradiance *float64
}

// WeatherProvider fetches observations for a location and time window.
type WeatherProvider interface {
	// Observations returns the records between from and to (YYYY-MM-DD HH:MM)
	// for location. An unavailable service yields an empty slice and nil error.
	Observations(ctx context.Context, from, to, location string) ([]Observation, error)
}
