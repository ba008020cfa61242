package forecast

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/i474232898/citibike-forecast/internal/common"
	"github.com/i474232898/citibike-forecast/internal/weather"
)

func mustDate(s string) time.Time {
	d, err := common.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

// makeHistory builds n days of rows per station ending at end, sorted by
// (date, station). Counts are 10*day index + station position.
func makeHistory(stations []string, n int, end time.Time) []Observation {
	var rows []Observation
	for d := n - 1; d >= 0; d-- {
		date := common.AddDays(end, -d)
		for i, id := range stations {
			rows = append(rows, Observation{
				Date:       date,
				StationID:  id,
				UsersCount: float64(10*(n-d) + i),
				Features:   map[string]float64{"temperature_max": 1},
			})
		}
	}
	return rows
}

func stationIDs(n int) []string {
	ids := make([]string, n)
	for i := range ids {
		ids[i] = fmt.Sprintf("%d.%02d", 4000+i, i%100)
	}
	return ids
}

func holidays(from time.Time, n int) HolidayCalendar {
	h := HolidayCalendar{}
	for k := 1; k <= n; k++ {
		h.Set(common.AddDays(from, k), 0)
	}
	return h
}

type fakeWeather struct {
	mu      sync.Mutex
	calls   int
	missing map[string]bool
}

func (f *fakeWeather) Lookup(ctx context.Context, city string, date time.Time) (weather.DailyWeather, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.missing[common.FormatDate(date)] {
		return weather.DailyWeather{}, fmt.Errorf("%w: %s", weather.ErrNoWeatherData, common.FormatDate(date))
	}
	return weather.DailyWeather{
		City: city,
		Date: date,
		Values: map[string]float64{
			weather.ColTemperatureMax: float64(date.Day()),
			weather.ColRainSum:        0.5,
		},
	}, nil
}

// recordingRegressor returns value for every row and keeps every batch.
type recordingRegressor struct {
	names   []string
	value   func(day int, batch []FeatureVector) float64
	batches [][]FeatureVector
}

func (r *recordingRegressor) FeatureNames() []string { return r.names }

func (r *recordingRegressor) Predict(batch []FeatureVector) ([]float64, error) {
	r.batches = append(r.batches, batch)
	out := make([]float64, len(batch))
	for i := range out {
		out[i] = r.value(len(r.batches), batch)
	}
	return out, nil
}

func constant(c float64) func(int, []FeatureVector) float64 {
	return func(int, []FeatureVector) float64 { return c }
}
