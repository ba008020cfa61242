package weather

import (
	"math"
	"time"
)

// Column names of the daily weather feature schema, in schema order.
const (
	ColTemperatureMax        = "temperature_max"
	ColTemperatureMin        = "temperature_min"
	ColPrecipitationSum      = "precipitation_sum"
	ColRainSum               = "rain_sum"
	ColSnowfallSum           = "snowfall_sum"
	ColPrecipitationHours    = "precipitation_hours"
	ColWindspeedMax          = "windspeed_max"
	ColWindgustsMax          = "windgusts_max"
	ColWinddirectionDominant = "winddirection_dominant"
)

// Columns lists the weather schema in order.
var Columns = []string{
	ColTemperatureMax,
	ColTemperatureMin,
	ColPrecipitationSum,
	ColRainSum,
	ColSnowfallSum,
	ColPrecipitationHours,
	ColWindspeedMax,
	ColWindgustsMax,
	ColWinddirectionDominant,
}

// Location represents a logical place for which we look up weather.
// Lat/Lon are optional; providers that need them resolve the city first.
type Location struct {
	City    string   `json:"city" yaml:"city"`
	Country string   `json:"country" yaml:"country"`
	Lat     *float64 `json:"lat,omitempty" yaml:"lat"`
	Lon     *float64 `json:"lon,omitempty" yaml:"lon"`
}

// Key returns a canonical string key for this location.
func (l Location) Key() string {
	return l.City + ":" + l.Country
}

// HasCoordinates reports whether both coordinates are set.
func (l Location) HasCoordinates() bool {
	return l.Lat != nil && l.Lon != nil
}

// DailyReading is one provider's normalized view of a single calendar day.
// Fields a provider cannot supply are NaN.
type DailyReading struct {
	ProviderName string
	Date         time.Time

	TemperatureMaxC       float64
	TemperatureMinC       float64
	PrecipitationSumMm    float64
	RainSumMm             float64
	SnowfallSumCm         float64
	PrecipitationHours    float64
	WindspeedMaxKmh       float64
	WindgustsMaxKmh       float64
	WinddirectionDominant float64
}

// EmptyReading returns a reading with every measurement missing.
func EmptyReading(provider string, date time.Time) DailyReading {
	nan := math.NaN()
	return DailyReading{
		ProviderName:          provider,
		Date:                  date,
		TemperatureMaxC:       nan,
		TemperatureMinC:       nan,
		PrecipitationSumMm:    nan,
		RainSumMm:             nan,
		SnowfallSumCm:         nan,
		PrecipitationHours:    nan,
		WindspeedMaxKmh:       nan,
		WindgustsMaxKmh:       nan,
		WinddirectionDominant: nan,
	}
}

func (r DailyReading) values() []float64 {
	return []float64{
		r.TemperatureMaxC,
		r.TemperatureMinC,
		r.PrecipitationSumMm,
		r.RainSumMm,
		r.SnowfallSumCm,
		r.PrecipitationHours,
		r.WindspeedMaxKmh,
		r.WindgustsMaxKmh,
		r.WinddirectionDominant,
	}
}

// Empty reports whether the reading carries no measured value at all.
func (r DailyReading) Empty() bool {
	for _, v := range r.values() {
		if !math.IsNaN(v) {
			return false
		}
	}
	return true
}

// DailyWeather is the aggregated weather row for one city and date. It is
// broadcast to every station forecast on that date.
type DailyWeather struct {
	City   string             `json:"city"`
	Date   time.Time          `json:"date"` // midnight UTC
	Values map[string]float64 `json:"values"`

	Providers []ProviderContribution `json:"providers,omitempty"`
}

// ProviderContribution describes data coming from a single provider used in aggregation.
type ProviderContribution struct {
	ProviderName string    `json:"provider"`
	Date         time.Time `json:"date"`
}
