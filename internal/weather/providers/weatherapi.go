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

// weatherAPIForecastDays is the horizon served by forecast.json; later days use future.json.
const weatherAPIForecastDays = 14

// WeatherAPIProvider implements the weather.Provider interface for WeatherAPI.com.
// It issues one request per day.
type WeatherAPIProvider struct {
	name    string
	apiKey  string
	baseURL string
	httpCfg remote.HTTPClientConfig
	circuit *gobreaker.CircuitBreaker
	now     func() time.Time
}

func NewWeatherAPIProvider(client *http.Client, apiKey string) *WeatherAPIProvider {
	return &WeatherAPIProvider{
		name:    "weatherapi",
		apiKey:  apiKey,
		baseURL: "https://api.weatherapi.com/v1",
		httpCfg: defaultHTTPConfig(client),
		circuit: remote.NewBreaker("weatherapi"),
		now:     time.Now,
	}
}

// WithBaseURL points the provider at a different endpoint root.
func (p *WeatherAPIProvider) WithBaseURL(baseURL string) *WeatherAPIProvider {
	p.baseURL = baseURL
	return p
}

func (p *WeatherAPIProvider) Name() string {
	return p.name
}

func (p *WeatherAPIProvider) FetchDaily(ctx context.Context, loc weather.Location, start, end time.Time) ([]weather.DailyReading, error) {
	if p.apiKey == "" {
		return nil, fmt.Errorf("weatherapi api key is not configured")
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

func (p *WeatherAPIProvider) endpoint(day time.Time) string {
	today := common.Day(p.now())
	switch {
	case !day.After(today):
		return "history.json"
	case day.Before(common.AddDays(today, weatherAPIForecastDays)):
		return "forecast.json"
	default:
		return "future.json"
	}
}

func (p *WeatherAPIProvider) fetchDay(ctx context.Context, loc weather.Location, day time.Time) (weather.DailyReading, error) {
	endpoint := p.endpoint(day)

	buildRequest := func() (*http.Request, error) {
		values := url.Values{}
		values.Set("key", p.apiKey)
		// WeatherAPI uses "q" for location; it accepts "city,country" or "lat,lon".
		if loc.HasCoordinates() {
			values.Set("q", fmt.Sprintf("%f,%f", *loc.Lat, *loc.Lon))
		} else {
			q := loc.City
			if loc.Country != "" {
				q = fmt.Sprintf("%s,%s", loc.City, loc.Country)
			}
			values.Set("q", q)
		}
		values.Set("dt", common.FormatDate(day))
		if endpoint == "forecast.json" {
			values.Set("days", fmt.Sprintf("%d", weatherAPIForecastDays))
		}

		u := fmt.Sprintf("%s/%s?%s", p.baseURL, endpoint, values.Encode())
		return http.NewRequest(http.MethodGet, u, nil)
	}

	resp, err := remote.DoRequest(ctx, p.httpCfg, p.circuit, buildRequest)
	if err != nil {
		return weather.DailyReading{}, err
	}
	defer resp.Body.Close()

	var payload struct {
		Forecast struct {
			ForecastDay []struct {
				Date string `json:"date"`
				Day  struct {
					MaxTempC      *float64 `json:"maxtemp_c"`
					MinTempC      *float64 `json:"mintemp_c"`
					TotalPrecipMm *float64 `json:"totalprecip_mm"`
					TotalSnowCm   *float64 `json:"totalsnow_cm"`
					MaxWindKph    *float64 `json:"maxwind_kph"`
				} `json:"day"`
			} `json:"forecastday"`
		} `json:"forecast"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return weather.DailyReading{}, err
	}

	want := common.FormatDate(day)
	for _, fd := range payload.Forecast.ForecastDay {
		if fd.Date != want {
			continue
		}
		r := weather.EmptyReading(p.name, day)
		r.TemperatureMaxC = orNaN(fd.Day.MaxTempC)
		r.TemperatureMinC = orNaN(fd.Day.MinTempC)
		r.PrecipitationSumMm = orNaN(fd.Day.TotalPrecipMm)
		r.SnowfallSumCm = orNaN(fd.Day.TotalSnowCm)
		r.WindspeedMaxKmh = orNaN(fd.Day.MaxWindKph)
		return r, nil
	}

	return weather.DailyReading{}, fmt.Errorf("weatherapi returned no day %s", want)
}
