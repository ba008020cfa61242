package featurestore

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/citibike-forecast/internal/common"
	"github.com/i474232898/citibike-forecast/internal/forecast"
)

const seedSQL = `
CREATE TABLE citibike_fv_1 (date TEXT, station_id REAL, users_count INTEGER, prev_users_count REAL, mean_7_days REAL);
INSERT INTO citibike_fv_1 VALUES
	('2024-01-10', 6170.02, 12, 10, 11.5),
	('2024-01-09', 6170.02, 10, 9, 10.0),
	('2024-01-10', 4729.01, 7, 6, 6.5);

CREATE TABLE citibike_stations_info_1 (station_id TEXT, station_name TEXT, lat REAL, long REAL);
INSERT INTO citibike_stations_info_1 VALUES
	('6170.02', 'W 52 St & 6 Ave', 40.7616, -73.9788),
	('4729.01', 'Broadway & W 25 St', 40.7428, -73.9892);

CREATE TABLE meteorological_measurements_1 (date TEXT, timestamp INTEGER, temperature_max REAL);
INSERT INTO meteorological_measurements_1 VALUES
	('2024-01-09', 1704758400000, 3.1),
	('2024-01-12', 1705017600000, 4.2),
	('2024-01-11', 1704931200000, 2.0);

CREATE TABLE us_holidays_1 (date TEXT, timestamp INTEGER, holiday INTEGER);
INSERT INTO us_holidays_1 VALUES
	('2024-01-12', 1705017600000, 0),
	('2024-01-13', 1705104000000, 0),
	('2024-01-14', 1705190400000, 0),
	('2024-01-15', 1705276800000, 1);
`

func openSeeded(t *testing.T) *SQLSession {
	t.Helper()
	s, err := OpenSQL(context.Background(), "sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	_, err = s.DB().Exec(seedSQL)
	require.NoError(t, err)
	return s
}

func TestReaderHistoryFromSQL(t *testing.T) {
	r := NewReader(openSeeded(t), DefaultRefs())

	rows, err := r.History(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.Equal(t, "2024-01-09", common.FormatDate(rows[0].Date))
	assert.Equal(t, "6170.02", rows[0].StationID)
	assert.Equal(t, "4729.01", rows[1].StationID)
	assert.Equal(t, 7.0, rows[1].UsersCount)
	assert.Equal(t, 6.5, rows[1].Features["mean_7_days"])
	assert.NotContains(t, rows[1].Features, "users_count")
}

func TestReaderStationsAndLastDate(t *testing.T) {
	r := NewReader(openSeeded(t), DefaultRefs())

	stations, err := r.Stations(context.Background())
	require.NoError(t, err)
	require.Len(t, stations, 2)
	assert.Equal(t, "W 52 St & 6 Ave", stations[0].Name)
	assert.Equal(t, -73.9788, stations[0].Lon)

	last, err := r.LastDate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "2024-01-12", common.FormatDate(last))
}

func TestReaderStaticStations(t *testing.T) {
	r := NewReader(openSeeded(t), DefaultRefs()).WithStations([]forecast.Station{
		{ID: "1.01", Name: "Static"},
	})

	stations, err := r.Stations(context.Background())
	require.NoError(t, err)
	require.Len(t, stations, 1)
	assert.Equal(t, "Static", stations[0].Name)
}

func TestReaderHolidaysWindowIsHalfOpen(t *testing.T) {
	r := NewReader(openSeeded(t), DefaultRefs())
	after, _ := common.ParseDate("2024-01-12")
	until, _ := common.ParseDate("2024-01-15")

	cal, err := r.Holidays(context.Background(), after, until)
	require.NoError(t, err)
	assert.Len(t, cal, 3)

	_, ok := cal.Indicator(after)
	assert.False(t, ok)
	v, ok := cal.Indicator(until)
	assert.True(t, ok)
	assert.Equal(t, 1.0, v)
}

func TestSQLMissingGroup(t *testing.T) {
	s := openSeeded(t)
	_, err := s.ReadGroup(context.Background(), GroupRef{Name: "nope", Version: 1}, nil)
	assert.True(t, errors.Is(err, ErrGroupNotFound))

	_, err = s.ReadGroup(context.Background(), GroupRef{Name: "x; DROP TABLE us_holidays_1", Version: 1}, nil)
	assert.Error(t, err)
}

func TestSQLClosedSession(t *testing.T) {
	s := openSeeded(t)
	require.NoError(t, s.Close())
	_, err := s.TrainingData(context.Background(), DefaultRefs().TrainingView)
	assert.True(t, errors.Is(err, ErrClosed))
}

func TestRebindForPostgres(t *testing.T) {
	s := &SQLSession{dialect: "postgres"}
	assert.Equal(t, "SELECT 1 WHERE a > $1 AND b <= $2", s.rebind("SELECT 1 WHERE a > ? AND b <= ?"))
}

func TestOpenUnknownBackend(t *testing.T) {
	_, err := Open(context.Background(), Config{Backend: "csv"})
	assert.Error(t, err)
}

func TestRESTSessionLoginAndRead(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/auth/apikey", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "ApiKey secret", r.Header.Get("Authorization"))
		json.NewEncoder(w).Encode(map[string]string{"token": "tok"})
	})
	mux.HandleFunc("/api/project/citibike/featurestores/featuregroups/us_holidays/version/1/rows", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.Equal(t, "1704844800000", r.URL.Query().Get("after"))
		w.Write([]byte(`{"rows":[{"date":"2024-01-11","holiday":0},{"date":"2024-01-12","holiday":1}]}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	s, err := Open(context.Background(), Config{
		Backend:    "rest",
		BaseURL:    srv.URL,
		Project:    "citibike",
		APIKey:     "secret",
		HTTPClient: srv.Client(),
	})
	require.NoError(t, err)
	defer s.Close()

	after, _ := common.ParseDate("2024-01-10")
	until, _ := common.ParseDate("2024-01-12")
	cal, err := NewReader(s, DefaultRefs()).Holidays(context.Background(), after, until)
	require.NoError(t, err)
	v, ok := cal.Indicator(until)
	require.True(t, ok)
	assert.Equal(t, 1.0, v)

	_, err = s.ReadGroup(context.Background(), GroupRef{Name: "missing", Version: 1}, nil)
	assert.True(t, errors.Is(err, ErrGroupNotFound))
}

func TestRESTLoginRequiresKey(t *testing.T) {
	_, err := Login(context.Background(), http.DefaultClient, "http://localhost", "citibike", "")
	assert.Error(t, err)
}
