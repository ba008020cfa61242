package model

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"path/filepath"

	"github.com/sony/gobreaker"

	"github.com/i474232898/citibike-forecast/internal/remote"
)

// SortOrder says whether a higher or lower metric is better.
type SortOrder string

const (
	SortMax SortOrder = "max"
	SortMin SortOrder = "min"
)

// Version is one registered model version with its evaluation metrics.
type Version struct {
	Name    string             `json:"name"`
	Version int                `json:"version"`
	Metrics map[string]float64 `json:"metrics"`
}

// Registry finds and downloads registered models.
type Registry interface {
	BestModel(ctx context.Context, name, metric string, order SortOrder) (Version, error)
	Download(ctx context.Context, v Version, fileName, dir string) (string, error)
}

// BestVersion picks the version with the best value of metric. Versions
// without the metric are ignored.
func BestVersion(versions []Version, metric string, order SortOrder) (Version, error) {
	var best Version
	found := false
	for _, v := range versions {
		m, ok := v.Metrics[metric]
		if !ok {
			continue
		}
		if !found {
			best, found = v, true
			continue
		}
		b := best.Metrics[metric]
		if (order == SortMin && m < b) || (order != SortMin && m > b) {
			best = v
		}
	}
	if !found {
		return Version{}, fmt.Errorf("%w: no version reports %s", ErrModelNotFound, metric)
	}
	return best, nil
}

// HTTPRegistry is a client of the model registry REST API.
type HTTPRegistry struct {
	baseURL string
	project string
	apiKey  string
	httpCfg remote.HTTPClientConfig
	circuit *gobreaker.CircuitBreaker
}

// NewHTTPRegistry creates a registry client.
func NewHTTPRegistry(client *http.Client, baseURL, project, apiKey string) *HTTPRegistry {
	return &HTTPRegistry{
		baseURL: baseURL,
		project: project,
		apiKey:  apiKey,
		httpCfg: remote.HTTPClientConfig{
			Client:  client,
			Backoff: remote.DefaultBackoff(),
		},
		circuit: remote.NewBreaker("modelregistry"),
	}
}

func (r *HTTPRegistry) get(ctx context.Context, u string) (*http.Response, error) {
	return remote.DoRequest(ctx, r.httpCfg, r.circuit, func() (*http.Request, error) {
		req, err := http.NewRequest(http.MethodGet, u, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "ApiKey "+r.apiKey)
		return req, nil
	})
}

// BestModel lists every version of name and returns the best by metric.
func (r *HTTPRegistry) BestModel(ctx context.Context, name, metric string, order SortOrder) (Version, error) {
	u := fmt.Sprintf("%s/api/project/%s/modelregistries/models?name=%s",
		r.baseURL, url.PathEscape(r.project), url.QueryEscape(name))

	resp, err := r.get(ctx, u)
	if err != nil {
		if errors.Is(err, remote.ErrNotFound) {
			return Version{}, fmt.Errorf("%w: %s", ErrModelNotFound, name)
		}
		return Version{}, fmt.Errorf("list model %s: %w", name, err)
	}
	defer resp.Body.Close()

	var payload struct {
		Items []Version `json:"items"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return Version{}, fmt.Errorf("decode model list: %w", err)
	}

	return BestVersion(payload.Items, metric, order)
}

// Download stores fileName of version v under dir/<name>_<version>/ and
// returns that directory.
func (r *HTTPRegistry) Download(ctx context.Context, v Version, fileName, dir string) (string, error) {
	u := fmt.Sprintf("%s/api/project/%s/modelregistries/models/%s/version/%d/files/%s",
		r.baseURL, url.PathEscape(r.project), url.PathEscape(v.Name), v.Version, url.PathEscape(fileName))

	resp, err := r.get(ctx, u)
	if err != nil {
		if errors.Is(err, remote.ErrNotFound) {
			return "", fmt.Errorf("%w: %s v%d/%s", ErrModelNotFound, v.Name, v.Version, fileName)
		}
		return "", fmt.Errorf("download model: %w", err)
	}
	defer resp.Body.Close()

	target := filepath.Join(dir, fmt.Sprintf("%s_%d", v.Name, v.Version))
	if err := os.MkdirAll(target, 0o755); err != nil {
		return "", err
	}

	f, err := os.Create(filepath.Join(target, fileName))
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		return "", fmt.Errorf("write model: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", err
	}

	log.Printf("INFO: downloaded model %s v%d to %s", v.Name, v.Version, target)
	return target, nil
}
