package httpapi

import (
	"context"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/i474232898/citibike-forecast/internal/common"
	"github.com/i474232898/citibike-forecast/internal/featurestore"
	"github.com/i474232898/citibike-forecast/internal/forecast"
	"github.com/i474232898/citibike-forecast/internal/store"
	"github.com/i474232898/citibike-forecast/internal/weather"
)

var validate = validator.New()

// Forecaster is the forecast service as seen by the handlers.
type Forecaster interface {
	Stations() []forecast.Station
	LastKnownDate() time.Time
	Forecast(ctx context.Context, req forecast.Request) (*forecast.Run, error)
}

// RunStore keeps completed forecast runs.
type RunStore interface {
	Save(run *forecast.Run)
	Get(id string) (*forecast.Run, error)
	Latest() (*forecast.Run, error)
	List() []*forecast.Run
}

// RegisterRoutes wires the HTTP handlers into the Fiber app.
func RegisterRoutes(app *fiber.App, service Forecaster, runs RunStore) {
	v1 := app.Group("/api/v1")

	v1.Get("/stations", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"last_known_date": common.FormatDate(service.LastKnownDate()),
			"stations":        service.Stations(),
		})
	})

	v1.Post("/forecasts", func(c *fiber.Ctx) error {
		var req forecastRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
		if err := validate.Struct(req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		run, err := service.Forecast(c.UserContext(), req.toRequest())
		if err != nil {
			return toFiberError(err)
		}
		runs.Save(run)

		return c.Status(fiber.StatusCreated).JSON(run)
	})

	v1.Get("/forecasts", func(c *fiber.Ctx) error {
		list := runs.List()
		out := make([]runSummary, 0, len(list))
		for _, r := range list {
			out = append(out, summarize(r))
		}
		return c.JSON(fiber.Map{"runs": out})
	})

	v1.Get("/forecasts/latest", func(c *fiber.Ctx) error {
		run, err := runs.Latest()
		if err != nil {
			return toFiberError(err)
		}
		return c.JSON(run)
	})

	v1.Get("/forecasts/:id", func(c *fiber.Ctx) error {
		run, err := runs.Get(c.Params("id"))
		if err != nil {
			return toFiberError(err)
		}
		return c.JSON(run)
	})

	v1.Get("/forecasts/:id/series", func(c *fiber.Ctx) error {
		run, err := runs.Get(c.Params("id"))
		if err != nil {
			return toFiberError(err)
		}
		return c.JSON(fiber.Map{
			"id":     run.ID,
			"series": run.Series(),
		})
	})
}

// ErrorHandler renders every error as {"error": true, "message": ...}.
func ErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var e *fiber.Error
	if errors.As(err, &e) {
		code = e.Code
	}
	return c.Status(code).JSON(fiber.Map{
		"error":   true,
		"message": err.Error(),
	})
}

// toFiberError maps domain errors to HTTP status codes.
func toFiberError(err error) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, forecast.ErrUnknownStation),
		errors.Is(err, forecast.ErrNoStations),
		errors.Is(err, forecast.ErrInvalidHorizon):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, weather.ErrNoWeatherData),
		errors.Is(err, forecast.ErrMissingHoliday),
		errors.Is(err, featurestore.ErrGroupNotFound):
		return fiber.NewError(fiber.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return fiber.NewError(fiber.StatusGatewayTimeout, "forecast timed out")
	}
	return fiber.NewError(fiber.StatusInternalServerError, "forecast failed")
}

// forecastRequest is the body of POST /forecasts.
type forecastRequest struct {
	Stations     []string `json:"stations" validate:"required_without=StationNames,dive,required"`
	StationNames []string `json:"station_names" validate:"required_without=Stations,dive,required"`
	Days         int      `json:"days" validate:"required,min=1"`
}

func (r forecastRequest) toRequest() forecast.Request {
	return forecast.Request{
		StationIDs:   r.Stations,
		StationNames: r.StationNames,
		Days:         r.Days,
	}
}

type runSummary struct {
	ID            string    `json:"id"`
	CreatedAt     time.Time `json:"created_at"`
	LastKnownDate string    `json:"last_known_date"`
	Days          int       `json:"days"`
	Stations      int       `json:"stations"`
}

func summarize(r *forecast.Run) runSummary {
	return runSummary{
		ID:            r.ID,
		CreatedAt:     r.CreatedAt,
		LastKnownDate: r.LastKnownDate,
		Days:          r.Days,
		Stations:      len(r.Stations),
	}
}
