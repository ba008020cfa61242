package weather

import (
	"context"
	"time"
)

// Provider abstracts a daily weather data source (e.g. Open-Meteo, WeatherAPI, OpenWeather).
// FetchDaily returns one reading per available day in [start, end].
type Provider interface {
	Name() string
	FetchDaily(ctx context.Context, loc Location, start, end time.Time) ([]DailyReading, error)
}

// Geocoder resolves a location without coordinates to latitude and longitude.
type Geocoder func(loc Location) (lat, lon float64, err error)
