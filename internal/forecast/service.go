package forecast

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/i474232898/citibike-forecast/internal/common"
)

// Horizon bounds offered to users.
const (
	DefaultMinDays = 7
	DefaultMaxDays = 1000
)

// FeatureSource is the read side of the feature store used by the service.
type FeatureSource interface {
	History(ctx context.Context) ([]Observation, error)
	Stations(ctx context.Context) ([]Station, error)
	LastDate(ctx context.Context) (time.Time, error)
	Holidays(ctx context.Context, after, until time.Time) (HolidayCalendar, error)
}

// ServiceConfig tunes the service. Zero values fall back to defaults.
type ServiceConfig struct {
	// Curated restricts selectable stations; empty offers every station.
	Curated []string
	MinDays int
	MaxDays int
}

// Request selects stations by id and/or display name.
type Request struct {
	StationIDs   []string
	StationNames []string
	Days         int
}

// Run is one completed forecast.
type Run struct {
	ID            string    `json:"id"`
	CreatedAt     time.Time `json:"created_at"`
	LastKnownDate string    `json:"last_known_date"`
	Days          int       `json:"days"`
	Stations      []Station `json:"stations"`
	Result        *Result   `json:"result"`
}

// Series pivots the run into date -> station name -> prediction.
func (r *Run) Series() map[string]map[string]float64 {
	names := make(map[string]string, len(r.Stations))
	for _, s := range r.Stations {
		names[s.ID] = s.Name
	}
	return r.Result.Series(func(id string) string {
		if n, ok := names[id]; ok {
			return n
		}
		return id
	})
}

// Service answers forecast requests over data fetched once at start-up.
type Service struct {
	source       FeatureSource
	orchestrator *Orchestrator
	regressor    Regressor

	catalog  *Catalog
	history  []Observation
	lastDate time.Time

	minDays int
	maxDays int

	// one run at a time
	mu sync.Mutex
}

// NewService loads the training history, station catalog and last known
// date from source.
func NewService(ctx context.Context, source FeatureSource, orchestrator *Orchestrator, regressor Regressor, cfg ServiceConfig) (*Service, error) {
	if regressor == nil {
		return nil, fmt.Errorf("no regressor configured")
	}
	if orchestrator == nil {
		return nil, fmt.Errorf("no orchestrator configured")
	}
	if err := checkFeatures(regressor.FeatureNames(), orchestrator.Columns()); err != nil {
		return nil, err
	}

	history, err := source.History(ctx)
	if err != nil {
		return nil, fmt.Errorf("load training data: %w", err)
	}
	stations, err := source.Stations(ctx)
	if err != nil {
		return nil, fmt.Errorf("load stations: %w", err)
	}
	last, err := source.LastDate(ctx)
	if err != nil {
		return nil, fmt.Errorf("load last date: %w", err)
	}

	catalog, err := NewCatalog(stations)
	if err != nil {
		return nil, err
	}
	if len(cfg.Curated) > 0 {
		if catalog, err = catalog.Subset(cfg.Curated); err != nil {
			return nil, fmt.Errorf("curated stations: %w", err)
		}
	}

	s := &Service{
		source:       source,
		orchestrator: orchestrator,
		regressor:    regressor,
		catalog:      catalog,
		history:      history,
		lastDate:     common.Day(last),
		minDays:      cfg.MinDays,
		maxDays:      cfg.MaxDays,
	}
	if s.minDays <= 0 {
		s.minDays = DefaultMinDays
	}
	if s.maxDays <= 0 {
		s.maxDays = DefaultMaxDays
	}
	if s.minDays > s.maxDays {
		return nil, fmt.Errorf("horizon bounds %d..%d are empty", s.minDays, s.maxDays)
	}

	log.Printf("INFO: loaded %d history rows, %d stations, last date %s",
		len(history), catalog.Len(), common.FormatDate(s.lastDate))
	return s, nil
}

// Stations returns the selectable stations in catalog order.
func (s *Service) Stations() []Station {
	return s.catalog.All()
}

// LastKnownDate is the day before the first forecast date.
func (s *Service) LastKnownDate() time.Time {
	return s.lastDate
}

// Forecast runs a rolling forecast for the requested stations.
func (s *Service) Forecast(ctx context.Context, req Request) (*Run, error) {
	if req.Days < s.minDays || req.Days > s.maxDays {
		return nil, fmt.Errorf("%w: days must be within %d..%d, got %d", ErrInvalidHorizon, s.minDays, s.maxDays, req.Days)
	}

	ids, err := s.selection(req)
	if err != nil {
		return nil, err
	}
	stations, err := s.catalog.Resolve(ids)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	selected := make(map[string]bool, len(ids))
	for _, id := range ids {
		selected[id] = true
	}
	history := make([]Observation, 0, len(s.history)/max(1, s.catalog.Len())*len(ids))
	for _, row := range s.history {
		if selected[row.StationID] {
			history = append(history, row)
		}
	}

	until := common.AddDays(s.lastDate, req.Days)
	holidays, err := s.source.Holidays(ctx, s.lastDate, until)
	if err != nil {
		return nil, fmt.Errorf("load holidays: %w", err)
	}

	start := time.Now()
	result, err := s.orchestrator.Run(ctx, RunInput{
		History:       history,
		LastKnownDate: s.lastDate,
		Stations:      ids,
		HorizonDays:   req.Days,
		Regressor:     s.regressor,
		Holidays:      holidays,
	})
	if err != nil {
		return nil, err
	}

	run := &Run{
		ID:            uuid.NewString(),
		CreatedAt:     time.Now().UTC(),
		LastKnownDate: common.FormatDate(s.lastDate),
		Days:          req.Days,
		Stations:      stations,
		Result:        result,
	}
	log.Printf("INFO: forecast %s: %d stations x %d days in %s", run.ID, len(ids), req.Days, time.Since(start))
	return run, nil
}

// checkFeatures fails when the regressor declares a feature no forecast row
// will carry.
func checkFeatures(declared, produced []string) error {
	selector, err := NewSelector(declared)
	if err != nil {
		return err
	}
	available := make(map[string]bool, len(produced))
	for _, c := range produced {
		available[c] = true
	}
	var missing []string
	for _, n := range selector.Names() {
		if !available[n] {
			missing = append(missing, n)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: nothing produces %v", ErrFeatureMismatch, missing)
	}
	return nil
}

// selection merges ids and names into one duplicate-free id list.
func (s *Service) selection(req Request) ([]string, error) {
	fromNames, err := s.catalog.IDsForNames(req.StationNames)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var ids []string
	for _, id := range append(append([]string(nil), req.StationIDs...), fromNames...) {
		if seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return nil, ErrNoStations
	}
	return ids, nil
}
