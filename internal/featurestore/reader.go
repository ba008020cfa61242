package featurestore

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/i474232898/citibike-forecast/internal/common"
	"github.com/i474232898/citibike-forecast/internal/forecast"
)

// Refs names the feature view and groups the forecast reads.
type Refs struct {
	TrainingView FeatureViewRef
	Weather      GroupRef
	Stations     GroupRef
	Holidays     GroupRef
}

// DefaultRefs are the citibike project's feature view and groups.
func DefaultRefs() Refs {
	return Refs{
		TrainingView: FeatureViewRef{Name: "citibike_fv", Version: 1},
		Weather:      GroupRef{Name: "meteorological_measurements", Version: 1},
		Stations:     GroupRef{Name: "citibike_stations_info", Version: 1},
		Holidays:     GroupRef{Name: "us_holidays", Version: 1},
	}
}

// Reader decodes feature store rows into forecast types.
type Reader struct {
	session Session
	refs    Refs

	// static replaces the station info group when set.
	static []forecast.Station
}

// NewReader creates a Reader over an open session.
func NewReader(session Session, refs Refs) *Reader {
	return &Reader{session: session, refs: refs}
}

// History returns the training data as observations sorted by (date, station).
func (r *Reader) History(ctx context.Context) ([]forecast.Observation, error) {
	recs, err := r.session.TrainingData(ctx, r.refs.TrainingView)
	if err != nil {
		return nil, err
	}

	out := make([]forecast.Observation, 0, len(recs))
	for i, rec := range recs {
		date, err := recordDate(rec)
		if err != nil {
			return nil, fmt.Errorf("%s row %d: %w", r.refs.TrainingView, i, err)
		}
		station, ok := asString(rec[forecast.ColStationID])
		if !ok || station == "" {
			return nil, fmt.Errorf("%s row %d: missing station_id", r.refs.TrainingView, i)
		}
		count, ok := asFloat(rec[forecast.ColUsersCount])
		if !ok {
			return nil, fmt.Errorf("%s row %d: missing users_count", r.refs.TrainingView, i)
		}

		features := make(map[string]float64, len(rec))
		for col, v := range rec {
			switch col {
			case forecast.ColDate, forecast.ColStationID, forecast.ColUsersCount:
				continue
			}
			if f, ok := asFloat(v); ok {
				features[col] = f
			}
		}

		out = append(out, forecast.Observation{
			Date:       date,
			StationID:  station,
			UsersCount: count,
			Features:   features,
		})
	}

	forecast.SortObservations(out)
	return out, nil
}

// WithStations serves stations from a fixed list instead of the station
// info group.
func (r *Reader) WithStations(stations []forecast.Station) *Reader {
	r.static = append([]forecast.Station(nil), stations...)
	return r
}

// Stations returns the station info group.
func (r *Reader) Stations(ctx context.Context) ([]forecast.Station, error) {
	if len(r.static) > 0 {
		return append([]forecast.Station(nil), r.static...), nil
	}
	recs, err := r.session.ReadGroup(ctx, r.refs.Stations, nil)
	if err != nil {
		return nil, err
	}

	out := make([]forecast.Station, 0, len(recs))
	for i, rec := range recs {
		id, ok := asString(rec["station_id"])
		if !ok {
			return nil, fmt.Errorf("%s row %d: missing station_id", r.refs.Stations, i)
		}
		name, _ := asString(rec["station_name"])
		lat, _ := asFloat(rec["lat"])
		lon, _ := asFloat(rec["long"])
		out = append(out, forecast.Station{ID: id, Name: name, Lat: lat, Lon: lon})
	}
	return out, nil
}

// LastDate returns the most recent date in the weather feature group.
func (r *Reader) LastDate(ctx context.Context) (time.Time, error) {
	recs, err := r.session.ReadGroup(ctx, r.refs.Weather, nil)
	if err != nil {
		return time.Time{}, err
	}

	var last time.Time
	for i, rec := range recs {
		d, err := recordDate(rec)
		if err != nil {
			return time.Time{}, fmt.Errorf("%s row %d: %w", r.refs.Weather, i, err)
		}
		if d.After(last) {
			last = d
		}
	}
	if last.IsZero() {
		return time.Time{}, fmt.Errorf("%s has no rows", r.refs.Weather)
	}
	return last, nil
}

// Holidays reads the holiday indicators for after < date <= until.
func (r *Reader) Holidays(ctx context.Context, after, until time.Time) (forecast.HolidayCalendar, error) {
	recs, err := r.session.ReadGroup(ctx, r.refs.Holidays, &TimeRange{
		After: common.DateToUnix(after),
		Until: common.DateToUnix(until),
	})
	if err != nil {
		return nil, err
	}

	cal := forecast.HolidayCalendar{}
	for i, rec := range recs {
		d, err := recordDate(rec)
		if err != nil {
			return nil, fmt.Errorf("%s row %d: %w", r.refs.Holidays, i, err)
		}
		v, ok := asFloat(rec[forecast.ColHoliday])
		if !ok {
			return nil, fmt.Errorf("%s row %d: missing holiday", r.refs.Holidays, i)
		}
		cal.Set(d, v)
	}
	return cal, nil
}

// recordDate reads the "date" column, falling back to "timestamp".
func recordDate(rec Record) (time.Time, error) {
	if v, ok := rec[forecast.ColDate]; ok && v != nil {
		return asDate(v)
	}
	if v, ok := rec[forecast.ColTimestamp]; ok && v != nil {
		return asDate(v)
	}
	return time.Time{}, fmt.Errorf("row has no date")
}

func asDate(v interface{}) (time.Time, error) {
	switch t := v.(type) {
	case time.Time:
		return common.Day(t), nil
	case string:
		return parseDateString(t)
	case []byte:
		return parseDateString(string(t))
	}
	if ms, ok := asFloat(v); ok {
		return common.UnixToDate(int64(ms)), nil
	}
	return time.Time{}, fmt.Errorf("unsupported date value %v", v)
}

func parseDateString(s string) (time.Time, error) {
	if len(s) >= len(common.DateLayout) {
		if d, err := common.ParseDate(s[:len(common.DateLayout)]); err == nil {
			return d, nil
		}
	}
	return time.Time{}, fmt.Errorf("unsupported date %q", s)
}

func asFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case int:
		return float64(n), true
	case bool:
		if n {
			return 1, true
		}
		return 0, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case []byte:
		f, err := strconv.ParseFloat(string(n), 64)
		return f, err == nil
	case nil:
		return math.NaN(), false
	}
	return 0, false
}

func asString(v interface{}) (string, bool) {
	switch s := v.(type) {
	case string:
		return strings.TrimSpace(s), true
	case []byte:
		return strings.TrimSpace(string(s)), true
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64), true
	case int64:
		return strconv.FormatInt(s, 10), true
	case int:
		return strconv.Itoa(s), true
	}
	return "", false
}
