// Package featurestore reads feature views and feature groups from a managed
// feature store through an explicitly opened Session.
package featurestore

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

var (
	// ErrGroupNotFound is returned when a feature view or group does not exist.
	ErrGroupNotFound = errors.New("feature group not found")
	// ErrClosed is returned by a Session after Close.
	ErrClosed = errors.New("feature store session closed")
)

// FeatureViewRef names a versioned feature view.
type FeatureViewRef struct {
	Name    string
	Version int
}

func (r FeatureViewRef) String() string {
	return fmt.Sprintf("%s_%d", r.Name, r.Version)
}

// GroupRef names a versioned feature group.
type GroupRef struct {
	Name    string
	Version int
}

func (r GroupRef) String() string {
	return fmt.Sprintf("%s_%d", r.Name, r.Version)
}

// TimeRange filters rows on their unix-millisecond "timestamp" column:
// After < timestamp <= Until.
type TimeRange struct {
	After int64
	Until int64
}

// Record is one feature row keyed by column name. Values are float64,
// int64, string, bool, []byte or time.Time depending on the backend.
type Record map[string]interface{}

// Session is a logged-in connection to one feature store. It is opened once
// and used read-only afterwards.
type Session interface {
	// TrainingData returns the training split of a feature view with a
	// train ratio of 1, labels included.
	TrainingData(ctx context.Context, view FeatureViewRef) ([]Record, error)
	// ReadGroup reads a feature group, optionally filtered by timestamp.
	ReadGroup(ctx context.Context, group GroupRef, filter *TimeRange) ([]Record, error)
	Close() error
}

// Config selects and configures a backend.
type Config struct {
	Backend string // "sqlite", "postgres" or "rest"

	// SQL backends.
	DSN string

	// REST backend.
	BaseURL    string
	Project    string
	APIKey     string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// Open logs into the configured feature store.
func Open(ctx context.Context, cfg Config) (Session, error) {
	switch cfg.Backend {
	case "sqlite", "postgres":
		return OpenSQL(ctx, cfg.Backend, cfg.DSN)
	case "rest":
		client := cfg.HTTPClient
		if client == nil {
			client = &http.Client{Timeout: cfg.Timeout}
		}
		return Login(ctx, client, cfg.BaseURL, cfg.Project, cfg.APIKey)
	default:
		return nil, fmt.Errorf("unknown feature store backend %q", cfg.Backend)
	}
}
