package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/i474232898/citibike-forecast/internal/common"
	"github.com/i474232898/citibike-forecast/internal/remote"
	"github.com/i474232898/citibike-forecast/internal/weather"
)

var openMeteoDaily = []string{
	"temperature_2m_max",
	"temperature_2m_min",
	"precipitation_sum",
	"rain_sum",
	"snowfall_sum",
	"precipitation_hours",
	"windspeed_10m_max",
	"windgusts_10m_max",
	"winddirection_10m_dominant",
}

// archiveLag is how far behind today the Open-Meteo archive is complete.
const archiveLag = 5 * 24 * time.Hour

// OpenMeteoProvider implements the weather.Provider interface for Open-Meteo.
// Past days come from the archive API, recent and future days from the forecast API.
type OpenMeteoProvider struct {
	name        string
	archiveURL  string
	forecastURL string
	httpCfg     remote.HTTPClientConfig
	circuit     *gobreaker.CircuitBreaker
	now         func() time.Time
}

func NewOpenMeteoProvider(client *http.Client) *OpenMeteoProvider {
	return &OpenMeteoProvider{
		name:        "openmeteo",
		archiveURL:  "https://archive-api.open-meteo.com/v1/archive",
		forecastURL: "https://api.open-meteo.com/v1/forecast",
		httpCfg:     defaultHTTPConfig(client),
		circuit:     remote.NewBreaker("openmeteo"),
		now:         time.Now,
	}
}

// WithBaseURLs points the provider at different endpoints.
func (p *OpenMeteoProvider) WithBaseURLs(archiveURL, forecastURL string) *OpenMeteoProvider {
	p.archiveURL = archiveURL
	p.forecastURL = forecastURL
	return p
}

func (p *OpenMeteoProvider) Name() string {
	return p.name
}

func (p *OpenMeteoProvider) FetchDaily(ctx context.Context, loc weather.Location, start, end time.Time) ([]weather.DailyReading, error) {
	if !loc.HasCoordinates() {
		return nil, fmt.Errorf("openmeteo requires latitude and longitude")
	}

	base := p.forecastURL
	if end.Before(p.now().UTC().Add(-archiveLag)) {
		base = p.archiveURL
	}

	buildRequest := func() (*http.Request, error) {
		values := url.Values{}
		values.Set("latitude", fmt.Sprintf("%f", *loc.Lat))
		values.Set("longitude", fmt.Sprintf("%f", *loc.Lon))
		values.Set("start_date", common.FormatDate(start))
		values.Set("end_date", common.FormatDate(end))
		values.Set("daily", strings.Join(openMeteoDaily, ","))
		values.Set("timezone", "UTC")

		u := fmt.Sprintf("%s?%s", base, values.Encode())
		return http.NewRequest(http.MethodGet, u, nil)
	}

	resp, err := remote.DoRequest(ctx, p.httpCfg, p.circuit, buildRequest)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var payload struct {
		Daily struct {
			Time              []string   `json:"time"`
			TemperatureMax    []*float64 `json:"temperature_2m_max"`
			TemperatureMin    []*float64 `json:"temperature_2m_min"`
			PrecipitationSum  []*float64 `json:"precipitation_sum"`
			RainSum           []*float64 `json:"rain_sum"`
			SnowfallSum       []*float64 `json:"snowfall_sum"`
			PrecipitationHour []*float64 `json:"precipitation_hours"`
			WindspeedMax      []*float64 `json:"windspeed_10m_max"`
			WindgustsMax      []*float64 `json:"windgusts_10m_max"`
			WinddirectionDom  []*float64 `json:"winddirection_10m_dominant"`
		} `json:"daily"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, err
	}

	at := func(col []*float64, i int) float64 {
		if i >= len(col) {
			return orNaN(nil)
		}
		return orNaN(col[i])
	}

	d := payload.Daily
	readings := make([]weather.DailyReading, 0, len(d.Time))
	for i, ts := range d.Time {
		date, err := common.ParseDate(ts)
		if err != nil {
			return nil, err
		}
		readings = append(readings, weather.DailyReading{
			ProviderName:          p.name,
			Date:                  date,
			TemperatureMaxC:       at(d.TemperatureMax, i),
			TemperatureMinC:       at(d.TemperatureMin, i),
			PrecipitationSumMm:    at(d.PrecipitationSum, i),
			RainSumMm:             at(d.RainSum, i),
			SnowfallSumCm:         at(d.SnowfallSum, i),
			PrecipitationHours:    at(d.PrecipitationHour, i),
			WindspeedMaxKmh:       at(d.WindspeedMax, i),
			WindgustsMaxKmh:       at(d.WindgustsMax, i),
			WinddirectionDominant: at(d.WinddirectionDom, i),
		})
	}

	return readings, nil
}
