package weather

import (
	"context"
	"errors"
	"math"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProvider struct {
	name  string
	temp  float64
	dir   float64
	skip  map[string]bool
	calls int32
	err   error
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) FetchDaily(ctx context.Context, loc Location, start, end time.Time) ([]DailyReading, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.err != nil {
		return nil, f.err
	}
	var out []DailyReading
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		if f.skip[d.Format("2006-01-02")] {
			continue
		}
		r := EmptyReading(f.name, d)
		r.TemperatureMaxC = f.temp
		r.WinddirectionDominant = f.dir
		out = append(out, r)
	}
	return out, nil
}

func day(s string) time.Time {
	t, _ := time.Parse("2006-01-02", s)
	return t
}

func TestLookupAveragesProvidersAndMemoizes(t *testing.T) {
	a := &fakeProvider{name: "a", temp: 10, dir: 350}
	b := &fakeProvider{name: "b", temp: 20, dir: 10}
	svc := NewService([]Provider{a, b}, nil, nil, 16)

	row, err := svc.Lookup(context.Background(), "nyc", day("2024-01-11"))
	require.NoError(t, err)

	assert.Equal(t, 15.0, row.Values[ColTemperatureMax])
	assert.InDelta(t, 0.0, math.Mod(row.Values[ColWinddirectionDominant]+0.5, 360)-0.5, 1e-6)
	assert.True(t, math.IsNaN(row.Values[ColRainSum]))
	assert.Len(t, row.Providers, 2)

	_, err = svc.Lookup(context.Background(), "NYC", day("2024-01-11"))
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&a.calls))
}

func TestLookupMissingDateIsFatal(t *testing.T) {
	p := &fakeProvider{name: "a", temp: 1, skip: map[string]bool{"2024-01-12": true}}
	svc := NewService([]Provider{p}, nil, nil, 16)

	_, err := svc.Lookup(context.Background(), "nyc", day("2024-01-12"))
	assert.True(t, errors.Is(err, ErrNoWeatherData))
}

func TestLookupAllNullDayIsFatal(t *testing.T) {
	p := &fakeProvider{name: "a", temp: math.NaN(), dir: math.NaN()}
	svc := NewService([]Provider{p}, nil, nil, 16)

	_, err := svc.Lookup(context.Background(), "nyc", day("2024-01-11"))
	assert.True(t, errors.Is(err, ErrNoWeatherData))
}

func TestLookupIgnoresAllNullProviderReading(t *testing.T) {
	empty := &fakeProvider{name: "empty", temp: math.NaN(), dir: math.NaN()}
	full := &fakeProvider{name: "full", temp: 8, dir: 90}
	svc := NewService([]Provider{empty, full}, nil, nil, 16)

	row, err := svc.Lookup(context.Background(), "nyc", day("2024-01-11"))
	require.NoError(t, err)
	assert.Equal(t, 8.0, row.Values[ColTemperatureMax])
	require.Len(t, row.Providers, 1)
	assert.Equal(t, "full", row.Providers[0].ProviderName)
}

func TestFetchRangeSurvivesOneFailingProvider(t *testing.T) {
	ok := &fakeProvider{name: "ok", temp: 4}
	bad := &fakeProvider{name: "bad", err: errors.New("boom")}
	svc := NewService([]Provider{ok, bad}, nil, nil, 16)

	rows, err := svc.FetchRange(context.Background(), "nyc", day("2024-01-11"), day("2024-01-13"))
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.True(t, rows[0].Date.Before(rows[1].Date))
	assert.Equal(t, 4.0, rows[2].Values[ColTemperatureMax])
}

func TestResolveGeocodesOnce(t *testing.T) {
	var calls int
	geo := func(loc Location) (float64, float64, error) {
		calls++
		return 40.7, -74.0, nil
	}
	svc := NewService([]Provider{&fakeProvider{name: "a"}}, map[string]Location{"nyc": {City: "New York", Country: "US"}}, geo, 16)

	loc, err := svc.resolve("nyc")
	require.NoError(t, err)
	require.True(t, loc.HasCoordinates())
	assert.Equal(t, 40.7, *loc.Lat)

	_, err = svc.resolve("NYC")
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestNoProvidersIsAnError(t *testing.T) {
	svc := NewService(nil, nil, nil, 0)
	_, err := svc.Lookup(context.Background(), "nyc", day("2024-01-11"))
	assert.Error(t, err)
}
