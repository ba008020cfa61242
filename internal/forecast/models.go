// Package forecast builds multi-day Citi Bike ridership forecasts by feeding
// each day's predictions back into the history used for the next day.
package forecast

import (
	"errors"
	"sort"
	"time"

	"github.com/i474232898/citibike-forecast/internal/common"
)

// UnknownCount marks a ridership count that has not been predicted yet.
const UnknownCount = -1.0

// Feature columns shared with the feature store and the model artifact.
const (
	ColDate           = "date"
	ColStationID      = "station_id"
	ColUsersCount     = "users_count"
	ColPrevUsersCount = "prev_users_count"
	ColHoliday        = "holiday"
	ColDayOfWeek      = "day_of_week"
	ColMonth          = "month"
	ColDayOfMonth     = "day_of_month"
	ColIsWeekend      = "is_weekend"
	ColTimestamp      = "timestamp"
)

var (
	ErrNoStations      = errors.New("no stations selected")
	ErrUnknownStation  = errors.New("unknown station")
	ErrInvalidHorizon  = errors.New("forecast horizon must be at least one day")
	ErrFeatureMismatch = errors.New("regressor feature columns do not match engineered features")
	ErrMissingHoliday  = errors.New("no holiday entry for date")
	ErrPrediction      = errors.New("regressor returned an unexpected number of predictions")
)

// Station is a Citi Bike docking station.
type Station struct {
	ID   string  `json:"station_id" yaml:"station_id"`
	Name string  `json:"station_name" yaml:"station_name"`
	Lat  float64 `json:"lat" yaml:"lat"`
	Lon  float64 `json:"long" yaml:"long"`
}

// Observation is one (date, station) row. Provisional rows carry
// UsersCount == UnknownCount until their prediction is folded back in.
type Observation struct {
	Date       time.Time
	StationID  string
	UsersCount float64
	Features   map[string]float64
}

// Provisional reports whether the row still waits for a prediction.
func (o Observation) Provisional() bool {
	return o.UsersCount == UnknownCount
}

func (o Observation) clone() Observation {
	c := o
	c.Features = make(map[string]float64, len(o.Features)+16)
	for k, v := range o.Features {
		c.Features[k] = v
	}
	return c
}

// SortObservations orders rows by (date, station id).
func SortObservations(rows []Observation) {
	sort.SliceStable(rows, func(i, j int) bool {
		return lessObservation(rows[i], rows[j])
	})
}

func lessObservation(a, b Observation) bool {
	if !a.Date.Equal(b.Date) {
		return a.Date.Before(b.Date)
	}
	return a.StationID < b.StationID
}

// HolidayCalendar maps a date (YYYY-MM-DD) to its holiday indicator.
type HolidayCalendar map[string]float64

// Set records the indicator for a date.
func (h HolidayCalendar) Set(date time.Time, indicator float64) {
	h[common.FormatDate(date)] = indicator
}

// Indicator returns the holiday indicator for a date.
func (h HolidayCalendar) Indicator(date time.Time) (float64, bool) {
	v, ok := h[common.FormatDate(date)]
	return v, ok
}

// Prediction is one forecast cell.
type Prediction struct {
	Date      time.Time `json:"date"`
	StationID string    `json:"station_id"`
	Value     float64   `json:"prediction"`
}

// Result is the forecast table of one run, ordered by (date, station id).
// Rows are only ever appended.
type Result struct {
	Rows []Prediction `json:"rows"`
}

func (r *Result) append(rows ...Prediction) {
	r.Rows = append(r.Rows, rows...)
}

// Dates returns the distinct forecast dates in order.
func (r *Result) Dates() []time.Time {
	var out []time.Time
	for _, p := range r.Rows {
		if len(out) == 0 || !out[len(out)-1].Equal(p.Date) {
			out = append(out, p.Date)
		}
	}
	return out
}

// byStation groups predictions per station, each in date order.
func (r *Result) byStation() map[string][]Prediction {
	out := make(map[string][]Prediction)
	for _, p := range r.Rows {
		out[p.StationID] = append(out[p.StationID], p)
	}
	return out
}

// Series pivots the result into date -> station name -> prediction, the
// shape plotted per station. names maps station ids to display names.
func (r *Result) Series(names func(id string) string) map[string]map[string]float64 {
	out := make(map[string]map[string]float64)
	for _, p := range r.Rows {
		d := common.FormatDate(p.Date)
		if out[d] == nil {
			out[d] = make(map[string]float64)
		}
		out[d][names(p.StationID)] = p.Value
	}
	return out
}
