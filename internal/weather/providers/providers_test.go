package providers

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/citibike-forecast/internal/weather"
)

func nyc() weather.Location {
	lat, lon := 40.7128, -74.0060
	return weather.Location{City: "New York", Country: "US", Lat: &lat, Lon: &lon}
}

func date(s string) time.Time {
	t, _ := time.Parse("2006-01-02", s)
	return t
}

func TestOpenMeteoUsesArchiveForPastDaysAndKeepsNulls(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		assert.Equal(t, "2024-01-11", r.URL.Query().Get("start_date"))
		assert.Equal(t, "2024-01-12", r.URL.Query().Get("end_date"))
		fmt.Fprint(w, `{"daily":{
			"time":["2024-01-11","2024-01-12"],
			"temperature_2m_max":[5.5,null],
			"temperature_2m_min":[-1.0,0.5],
			"windspeed_10m_max":[20.1,12.0]
		}}`)
	}))
	defer srv.Close()

	p := NewOpenMeteoProvider(srv.Client()).WithBaseURLs(srv.URL+"/archive", srv.URL+"/forecast")
	p.now = func() time.Time { return date("2024-06-01") }

	readings, err := p.FetchDaily(context.Background(), nyc(), date("2024-01-11"), date("2024-01-12"))
	require.NoError(t, err)
	require.Len(t, readings, 2)

	assert.Equal(t, "/archive", gotPath)
	assert.Equal(t, 5.5, readings[0].TemperatureMaxC)
	assert.True(t, math.IsNaN(readings[1].TemperatureMaxC))
	assert.True(t, math.IsNaN(readings[0].RainSumMm))
	assert.Equal(t, 12.0, readings[1].WindspeedMaxKmh)
}

func TestOpenMeteoRequiresCoordinates(t *testing.T) {
	p := NewOpenMeteoProvider(http.DefaultClient)
	_, err := p.FetchDaily(context.Background(), weather.Location{City: "nyc"}, date("2024-01-11"), date("2024-01-11"))
	assert.Error(t, err)
}

func TestWeatherAPIPicksEndpointByDate(t *testing.T) {
	p := NewWeatherAPIProvider(http.DefaultClient, "k")
	p.now = func() time.Time { return date("2024-01-10") }

	assert.Equal(t, "history.json", p.endpoint(date("2024-01-10")))
	assert.Equal(t, "forecast.json", p.endpoint(date("2024-01-11")))
	assert.Equal(t, "future.json", p.endpoint(date("2024-01-30")))
}

func TestWeatherAPIFetchesOneRequestPerDay(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		assert.True(t, strings.HasSuffix(r.URL.Path, "/history.json"))
		dt := r.URL.Query().Get("dt")
		fmt.Fprintf(w, `{"forecast":{"forecastday":[{"date":%q,"day":{"maxtemp_c":3,"mintemp_c":-2,"totalprecip_mm":1.5,"totalsnow_cm":0,"maxwind_kph":18}}]}}`, dt)
	}))
	defer srv.Close()

	p := NewWeatherAPIProvider(srv.Client(), "k").WithBaseURL(srv.URL)
	p.now = func() time.Time { return date("2024-06-01") }

	readings, err := p.FetchDaily(context.Background(), nyc(), date("2024-01-11"), date("2024-01-13"))
	require.NoError(t, err)
	require.Len(t, readings, 3)
	assert.Equal(t, 3, calls)
	assert.Equal(t, 18.0, readings[2].WindspeedMaxKmh)
	assert.True(t, math.IsNaN(readings[0].WindgustsMaxKmh))
}

func TestOpenWeatherConvertsWindToKmh(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"date":"2024-01-11","temperature":{"min":-3,"max":4},"precipitation":{"total":2},"wind":{"max":{"speed":10,"direction":270}}}`)
	}))
	defer srv.Close()

	p := NewOpenWeatherProvider(srv.Client(), "k").WithBaseURL(srv.URL)
	readings, err := p.FetchDaily(context.Background(), nyc(), date("2024-01-11"), date("2024-01-11"))
	require.NoError(t, err)
	require.Len(t, readings, 1)

	assert.InDelta(t, 36.0, readings[0].WindspeedMaxKmh, 1e-9)
	assert.Equal(t, 270.0, readings[0].WinddirectionDominant)
	assert.Equal(t, 4.0, readings[0].TemperatureMaxC)
}

func TestOpenWeatherRequiresAPIKey(t *testing.T) {
	p := NewOpenWeatherProvider(http.DefaultClient, "")
	_, err := p.FetchDaily(context.Background(), nyc(), date("2024-01-11"), date("2024-01-11"))
	assert.Error(t, err)
}
