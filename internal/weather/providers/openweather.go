package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/sony/gobreaker"

	"github.com/i474232898/citibike-forecast/internal/common"
	"github.com/i474232898/citibike-forecast/internal/remote"
	"github.com/i474232898/citibike-forecast/internal/weather"
)

// OpenWeatherProvider implements the weather.Provider interface on top of
// the OpenWeatherMap One Call daily aggregation endpoint.
type OpenWeatherProvider struct {
	name    string
	apiKey  string
	baseURL string
	httpCfg remote.HTTPClientConfig
	circuit *gobreaker.CircuitBreaker
}

func NewOpenWeatherProvider(client *http.Client, apiKey string) *OpenWeatherProvider {
	return &OpenWeatherProvider{
		name:    "openweathermap",
		apiKey:  apiKey,
		baseURL: "https://api.openweathermap.org/data/3.0/onecall/day_summary",
		httpCfg: defaultHTTPConfig(client),
		circuit: remote.NewBreaker("openweather"),
	}
}

// WithBaseURL points the provider at a different endpoint.
func (p *OpenWeatherProvider) WithBaseURL(baseURL string) *OpenWeatherProvider {
	p.baseURL = baseURL
	return p
}

func (p *OpenWeatherProvider) Name() string {
	return p.name
}

func (p *OpenWeatherProvider) FetchDaily(ctx context.Context, loc weather.Location, start, end time.Time) ([]weather.DailyReading, error) {
	if p.apiKey == "" {
		return nil, fmt.Errorf("openweather api key is not configured")
	}
	if !loc.HasCoordinates() {
		return nil, fmt.Errorf("openweather requires latitude and longitude")
	}

	var readings []weather.DailyReading
	for _, day := range days(start, end) {
		r, err := p.fetchDay(ctx, loc, day)
		if err != nil {
			return nil, err
		}
		readings = append(readings, r)
	}
	return readings, nil
}

func (p *OpenWeatherProvider) fetchDay(ctx context.Context, loc weather.Location, day time.Time) (weather.DailyReading, error) {
	buildRequest := func() (*http.Request, error) {
		values := url.Values{}
		values.Set("appid", p.apiKey)
		values.Set("units", "metric")
		values.Set("lat", fmt.Sprintf("%f", *loc.Lat))
		values.Set("lon", fmt.Sprintf("%f", *loc.Lon))
		values.Set("date", common.FormatDate(day))

		u := fmt.Sprintf("%s?%s", p.baseURL, values.Encode())
		return http.NewRequest(http.MethodGet, u, nil)
	}

	resp, err := remote.DoRequest(ctx, p.httpCfg, p.circuit, buildRequest)
	if err != nil {
		return weather.DailyReading{}, err
	}
	defer resp.Body.Close()

	var payload struct {
		Date        string `json:"date"`
		Temperature struct {
			Min *float64 `json:"min"`
			Max *float64 `json:"max"`
		} `json:"temperature"`
		Precipitation struct {
			Total *float64 `json:"total"`
		} `json:"precipitation"`
		Wind struct {
			Max struct {
				Speed     *float64 `json:"speed"`
				Direction *float64 `json:"direction"`
			} `json:"max"`
		} `json:"wind"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return weather.DailyReading{}, err
	}
	if payload.Date != "" && payload.Date != common.FormatDate(day) {
		return weather.DailyReading{}, fmt.Errorf("openweather returned %s for %s", payload.Date, common.FormatDate(day))
	}

	r := weather.EmptyReading(p.name, day)
	r.TemperatureMaxC = orNaN(payload.Temperature.Max)
	r.TemperatureMinC = orNaN(payload.Temperature.Min)
	r.PrecipitationSumMm = orNaN(payload.Precipitation.Total)
	if payload.Wind.Max.Speed != nil {
		r.WindspeedMaxKmh = msToKmh(*payload.Wind.Max.Speed)
	}
	r.WinddirectionDominant = orNaN(payload.Wind.Max.Direction)

	return r, nil
}
