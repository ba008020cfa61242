package weather

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bluele/gcache"

	"github.com/i474232898/citibike-forecast/internal/common"
)

// ErrNoWeatherData is returned when no provider has a row for a requested date.
var ErrNoWeatherData = errors.New("no weather data for date")

// Service fans out daily weather requests to every provider, aggregates the
// readings per day and memoizes rows for the lifetime of the process.
type Service struct {
	providers []Provider
	geocode   Geocoder

	mu        sync.Mutex
	locations map[string]Location // key: lower-case city alias

	cache gcache.Cache
}

// NewService creates a new Service. locations maps city aliases such as
// "nyc" to concrete locations; geocode may be nil.
func NewService(providers []Provider, locations map[string]Location, geocode Geocoder, cacheSize int) *Service {
	if cacheSize <= 0 {
		cacheSize = 4096
	}
	locs := make(map[string]Location, len(locations))
	for alias, loc := range locations {
		locs[strings.ToLower(alias)] = loc
	}
	return &Service{
		providers: providers,
		geocode:   geocode,
		locations: locs,
		cache:     gcache.New(cacheSize).LRU().Build(),
	}
}

func cacheKey(city string, date time.Time) string {
	return strings.ToLower(city) + "|" + common.FormatDate(date)
}

// Lookup returns the weather row for one city and date.
func (s *Service) Lookup(ctx context.Context, city string, date time.Time) (DailyWeather, error) {
	date = common.Day(date)
	if v, err := s.cache.Get(cacheKey(city, date)); err == nil {
		return v.(DailyWeather), nil
	}

	rows, err := s.FetchRange(ctx, city, date, date)
	if err != nil {
		return DailyWeather{}, err
	}
	for _, row := range rows {
		if row.Date.Equal(date) {
			return row, nil
		}
	}
	return DailyWeather{}, fmt.Errorf("%w: %s %s", ErrNoWeatherData, city, common.FormatDate(date))
}

// FetchRange fetches all providers concurrently for [start, end] and returns
// one aggregated row per day that at least one provider reported, ordered by date.
func (s *Service) FetchRange(ctx context.Context, city string, start, end time.Time) ([]DailyWeather, error) {
	start, end = common.Day(start), common.Day(end)
	if end.Before(start) {
		return nil, fmt.Errorf("invalid weather range %s..%s", common.FormatDate(start), common.FormatDate(end))
	}
	if len(s.providers) == 0 {
		log.Printf("ERROR: No providers available to fetch weather data for %s", city)
		return nil, fmt.Errorf("no weather providers configured")
	}

	loc, err := s.resolve(city)
	if err != nil {
		return nil, err
	}

	var (
		wg          sync.WaitGroup
		mu          sync.Mutex
		dayReadings = make(map[string][]DailyReading)
	)

	for _, p := range s.providers {
		p := p
		wg.Add(1)
		go func() {
			defer wg.Done()

			readings, err := p.FetchDaily(ctx, loc, start, end)
			if err != nil {
				// Log and continue; one provider answering is enough.
				log.Printf("provider %s daily fetch failed for %s: %v", p.Name(), loc.Key(), err)
				return
			}

			mu.Lock()
			defer mu.Unlock()
			for _, r := range readings {
				d := common.Day(r.Date)
				if d.Before(start) || d.After(end) {
					continue
				}
				// Days not yet measured come back as all nulls.
				if r.Empty() {
					continue
				}
				r.Date = d
				k := common.FormatDate(d)
				dayReadings[k] = append(dayReadings[k], r)
			}
		}()
	}

	wg.Wait()

	if len(dayReadings) == 0 {
		return nil, fmt.Errorf("%w: %s %s..%s", ErrNoWeatherData, city, common.FormatDate(start), common.FormatDate(end))
	}

	keys := make([]string, 0, len(dayReadings))
	for k := range dayReadings {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	rows := make([]DailyWeather, 0, len(keys))
	for _, k := range keys {
		readings := dayReadings[k]
		row := AggregateDaily(city, readings[0].Date, readings)
		if err := s.cache.Set(cacheKey(city, row.Date), row); err != nil {
			log.Printf("DEBUG: weather cache set failed: %v", err)
		}
		rows = append(rows, row)
	}

	return rows, nil
}

// resolve maps a city alias to a Location, geocoding it once when
// coordinates are missing.
func (s *Service) resolve(city string) (Location, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := strings.ToLower(city)
	loc, ok := s.locations[key]
	if !ok {
		loc = Location{City: city}
	}
	if loc.HasCoordinates() || s.geocode == nil {
		return loc, nil
	}

	lat, lon, err := s.geocode(loc)
	if err != nil {
		// Providers that accept a city name can still answer.
		log.Printf("INFO: geocoding %s failed: %v", loc.Key(), err)
		return loc, nil
	}
	loc.Lat, loc.Lon = &lat, &lon
	s.locations[key] = loc
	return loc, nil
}
