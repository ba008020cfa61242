package featurestore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"sync"

	"github.com/sony/gobreaker"

	"github.com/i474232898/citibike-forecast/internal/remote"
)

// RESTSession talks to the feature store's REST API with a bearer token
// obtained at login.
type RESTSession struct {
	baseURL string
	project string
	httpCfg remote.HTTPClientConfig
	circuit *gobreaker.CircuitBreaker

	mu    sync.RWMutex
	token string
}

// Login exchanges an API key for a session token.
func Login(ctx context.Context, client *http.Client, baseURL, project, apiKey string) (*RESTSession, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("feature store api key is not configured")
	}
	if project == "" {
		return nil, fmt.Errorf("feature store project is not configured")
	}

	s := &RESTSession{
		baseURL: baseURL,
		project: project,
		httpCfg: remote.HTTPClientConfig{
			Client:  client,
			Backoff: remote.DefaultBackoff(),
		},
		circuit: remote.NewBreaker("featurestore"),
	}

	body, err := json.Marshal(map[string]string{"project": project})
	if err != nil {
		return nil, err
	}

	resp, err := remote.DoRequest(ctx, s.httpCfg, s.circuit, func() (*http.Request, error) {
		req, err := http.NewRequest(http.MethodPost, baseURL+"/api/auth/apikey", bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "ApiKey "+apiKey)
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	})
	if err != nil {
		return nil, fmt.Errorf("feature store login: %w", err)
	}
	defer resp.Body.Close()

	var payload struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("feature store login: %w", err)
	}
	if payload.Token == "" {
		return nil, fmt.Errorf("feature store login returned no token")
	}
	s.token = payload.Token

	log.Printf("INFO: logged into feature store project %s", project)
	return s, nil
}

// Close drops the session token.
func (s *RESTSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = ""
	return nil
}

func (s *RESTSession) TrainingData(ctx context.Context, view FeatureViewRef) ([]Record, error) {
	path := fmt.Sprintf("/api/project/%s/featurestores/featureview/%s/version/%d/trainingdata",
		url.PathEscape(s.project), url.PathEscape(view.Name), view.Version)
	values := url.Values{}
	values.Set("train_ratio", "1")
	return s.get(ctx, path, values, view.String())
}

func (s *RESTSession) ReadGroup(ctx context.Context, group GroupRef, filter *TimeRange) ([]Record, error) {
	path := fmt.Sprintf("/api/project/%s/featurestores/featuregroups/%s/version/%d/rows",
		url.PathEscape(s.project), url.PathEscape(group.Name), group.Version)
	values := url.Values{}
	if filter != nil {
		values.Set("after", strconv.FormatInt(filter.After, 10))
		values.Set("until", strconv.FormatInt(filter.Until, 10))
	}
	return s.get(ctx, path, values, group.String())
}

func (s *RESTSession) get(ctx context.Context, path string, values url.Values, name string) ([]Record, error) {
	s.mu.RLock()
	token := s.token
	s.mu.RUnlock()
	if token == "" {
		return nil, ErrClosed
	}

	u := s.baseURL + path
	if len(values) > 0 {
		u += "?" + values.Encode()
	}

	resp, err := remote.DoRequest(ctx, s.httpCfg, s.circuit, func() (*http.Request, error) {
		req, err := http.NewRequest(http.MethodGet, u, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Accept", "application/json")
		return req, nil
	})
	if err != nil {
		if errors.Is(err, remote.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrGroupNotFound, name)
		}
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	defer resp.Body.Close()

	var payload struct {
		Rows []Record `json:"rows"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode %s: %w", name, err)
	}
	return payload.Rows, nil
}
