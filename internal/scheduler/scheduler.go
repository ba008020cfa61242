package scheduler

import (
	"context"
	"log"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/i474232898/citibike-forecast/internal/forecast"
)

// Forecaster runs one forecast.
type Forecaster interface {
	Forecast(ctx context.Context, req forecast.Request) (*forecast.Run, error)
}

// RunSaver keeps completed runs.
type RunSaver interface {
	Save(run *forecast.Run)
}

// Scheduler periodically refreshes the forecast of the default stations.
type Scheduler struct {
	scheduler  *gocron.Scheduler
	forecaster Forecaster
	runs       RunSaver
	stations   []string
	days       int
	interval   time.Duration
	timeout    time.Duration
}

// New creates a new Scheduler.
func New(stations []string, days int, interval, timeout time.Duration, forecaster Forecaster, runs RunSaver) *Scheduler {
	s := gocron.NewScheduler(time.UTC)
	s.SingletonModeAll()
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	return &Scheduler{
		scheduler:  s,
		forecaster: forecaster,
		runs:       runs,
		stations:   stations,
		days:       days,
		interval:   interval,
		timeout:    timeout,
	}
}

// Start schedules the periodic job and starts the underlying scheduler.
// The first run happens immediately.
func (s *Scheduler) Start() error {
	if len(s.stations) == 0 {
		log.Println("scheduler: no default stations configured; nothing to schedule")
		return nil
	}

	minutes := int(s.interval.Minutes())
	if minutes <= 0 {
		minutes = 360
	}

	if _, err := s.scheduler.Every(minutes).Minutes().Do(s.refresh); err != nil {
		return err
	}

	s.scheduler.StartAsync()
	return nil
}

func (s *Scheduler) refresh() {
	log.Printf("scheduler: running forecast for %d stations over %d days", len(s.stations), s.days)

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	run, err := s.forecaster.Forecast(ctx, forecast.Request{
		StationIDs: s.stations,
		Days:       s.days,
	})
	if err != nil {
		log.Printf("scheduler: forecast failed: %v", err)
		return
	}

	s.runs.Save(run)
	log.Printf("scheduler: stored forecast %s", run.ID)
}

// Stop stops the scheduler and cancels any future jobs.
func (s *Scheduler) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}
