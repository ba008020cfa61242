package forecast

import (
	"context"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/i474232898/citibike-forecast/internal/common"
	"github.com/i474232898/citibike-forecast/internal/weather"
)

// Regressor is a trained model with a fixed, ordered list of input features.
type Regressor interface {
	FeatureNames() []string
	Predict(batch []FeatureVector) ([]float64, error)
}

// WeatherLookup returns the weather row of one city and date.
type WeatherLookup interface {
	Lookup(ctx context.Context, city string, date time.Time) (weather.DailyWeather, error)
}

// FeatureEngineer re-derives features over a whole history and returns the
// engineered rows of one date.
type FeatureEngineer interface {
	EngineerAt(rows []Observation, at time.Time) ([]Observation, error)
}

// RunInput is everything one rolling forecast needs.
type RunInput struct {
	History       []Observation // engineered, filtered to Stations
	LastKnownDate time.Time
	Stations      []string
	HorizonDays   int
	Regressor     Regressor
	Holidays      HolidayCalendar
}

// Orchestrator runs rolling multi-day forecasts. Day k's features are
// engineered from the history plus the predictions of days 1..k-1.
type Orchestrator struct {
	engineer FeatureEngineer
	weather  WeatherLookup
	city     string
}

// NewOrchestrator creates an Orchestrator querying weather for city.
func NewOrchestrator(engineer FeatureEngineer, weather WeatherLookup, city string) *Orchestrator {
	return &Orchestrator{
		engineer: engineer,
		weather:  weather,
		city:     city,
	}
}

// Columns lists every feature a forecast row can carry: the engineer's
// columns, the weather schema and the holiday indicator.
func (o *Orchestrator) Columns() []string {
	var cols []string
	if c, ok := o.engineer.(interface{ Columns() []string }); ok {
		cols = append(cols, c.Columns()...)
	}
	cols = append(cols, weather.Columns...)
	return append(cols, ColHoliday)
}

// Run produces HorizonDays x len(Stations) predictions, starting the day
// after LastKnownDate. Any failure aborts the whole run.
func (o *Orchestrator) Run(ctx context.Context, in RunInput) (*Result, error) {
	if len(in.Stations) == 0 {
		return nil, ErrNoStations
	}
	if in.HorizonDays < 1 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidHorizon, in.HorizonDays)
	}
	if in.Regressor == nil {
		return nil, fmt.Errorf("no regressor configured")
	}

	selector, err := NewSelector(in.Regressor.FeatureNames())
	if err != nil {
		return nil, err
	}

	stations := append([]string(nil), in.Stations...)
	sort.Strings(stations)
	for i := 1; i < len(stations); i++ {
		if stations[i] == stations[i-1] {
			return nil, fmt.Errorf("station %s selected twice", stations[i])
		}
	}

	last := common.Day(in.LastKnownDate)

	// Rows past the last known date would collide with provisional rows.
	running := make([]Observation, 0, len(in.History)+in.HorizonDays*len(stations))
	for _, row := range in.History {
		if !row.Date.After(last) {
			running = append(running, row)
		}
	}

	result := &Result{Rows: make([]Prediction, 0, in.HorizonDays*len(stations))}

	for k := 1; k <= in.HorizonDays; k++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		target := common.AddDays(last, k)

		provisional := make([]Observation, len(stations))
		for i, id := range stations {
			provisional[i] = Observation{
				Date:       target,
				StationID:  id,
				UsersCount: UnknownCount,
			}
		}

		batch, err := o.engineer.EngineerAt(append(running[:len(running):len(running)], provisional...), target)
		if err != nil {
			return nil, fmt.Errorf("engineer features for %s: %w", common.FormatDate(target), err)
		}
		if len(batch) != len(stations) {
			return nil, fmt.Errorf("engineered %d rows for %s, want %d", len(batch), common.FormatDate(target), len(stations))
		}

		// One weather query and one holiday lookup per day, shared by all stations.
		wx, err := o.weather.Lookup(ctx, o.city, target)
		if err != nil {
			return nil, fmt.Errorf("weather for %s: %w", common.FormatDate(target), err)
		}
		holiday, ok := in.Holidays.Indicator(target)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingHoliday, common.FormatDate(target))
		}

		for i := range batch {
			for col, v := range wx.Values {
				batch[i].Features[col] = v
			}
			batch[i].Features[ColHoliday] = holiday
		}

		start := len(running)
		running = append(running, batch...)

		vectors, err := selector.Batch(batch)
		if err != nil {
			return nil, err
		}

		preds, err := in.Regressor.Predict(vectors)
		if err != nil {
			return nil, fmt.Errorf("predict %s: %w", common.FormatDate(target), err)
		}
		if len(preds) != len(batch) {
			return nil, fmt.Errorf("%w: %d for %d rows", ErrPrediction, len(preds), len(batch))
		}

		for i, row := range batch {
			result.append(Prediction{
				Date:      target,
				StationID: row.StationID,
				Value:     preds[i],
			})
			// Feed the prediction back so the next day's lags see it.
			running[start+i].UsersCount = preds[i]
		}
	}

	log.Printf("DEBUG: forecast produced %d rows for %d stations over %d days", len(result.Rows), len(stations), in.HorizonDays)
	return result, nil
}
