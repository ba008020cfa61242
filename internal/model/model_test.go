package model

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/citibike-forecast/internal/forecast"
)

const testModel = `{
  "learner": {
    "feature_names": ["prev_users_count", "temperature_max", "holiday"],
    "learner_model_param": {"base_score": "[5E-1]", "num_feature": "3"},
    "objective": {"name": "reg:squarederror"},
    "gradient_booster": {
      "name": "gbtree",
      "model": {
        "trees": [
          {"left_children": [1, -1, -1], "right_children": [2, -1, -1],
           "split_indices": [0, 0, 0], "split_conditions": [10, 1.0, 2.0],
           "default_left": [true, false, false]},
          {"left_children": [1, -1, -1], "right_children": [2, -1, -1],
           "split_indices": [2, 0, 0], "split_conditions": [0.5, 0.5, -0.5],
           "default_left": [0, 0, 0]}
        ]
      }
    }
  }
}`

func TestBoosterPredict(t *testing.T) {
	b, err := LoadBooster(strings.NewReader(testModel))
	require.NoError(t, err)
	assert.Equal(t, 2, b.NumTrees())
	assert.Equal(t, []string{"prev_users_count", "temperature_max", "holiday"}, b.FeatureNames())

	preds, err := b.Predict([]forecast.FeatureVector{
		{5, 0, 0},
		{math.NaN(), 0, 1},
		{20, 0, 0},
	})
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{2.0, 1.0, 3.0}, preds, 1e-9)
}

func TestBoosterRejectsWrongWidth(t *testing.T) {
	b, err := LoadBooster(strings.NewReader(testModel))
	require.NoError(t, err)

	_, err = b.Predict([]forecast.FeatureVector{{1, 2}})
	assert.True(t, errors.Is(err, forecast.ErrFeatureMismatch))
}

func TestBoosterValidateFeatures(t *testing.T) {
	b, err := LoadBooster(strings.NewReader(testModel))
	require.NoError(t, err)

	assert.NoError(t, b.Validate(nil))
	assert.NoError(t, b.Validate([]string{"prev_users_count", "temperature_max", "holiday"}))
	assert.True(t, errors.Is(b.Validate([]string{"temperature_max", "prev_users_count", "holiday"}), forecast.ErrFeatureMismatch))
}

func TestLoadBoosterRejectsBrokenTrees(t *testing.T) {
	broken := strings.Replace(testModel, `"left_children": [1, -1, -1], "right_children": [2, -1, -1],
           "split_indices": [0, 0, 0]`, `"left_children": [0, -1, -1], "right_children": [2, -1, -1],
           "split_indices": [0, 0, 0]`, 1)
	_, err := LoadBooster(strings.NewReader(broken))
	assert.True(t, errors.Is(err, ErrInvalidModel))

	_, err = LoadBooster(strings.NewReader(`{"learner": {"feature_names": []}}`))
	assert.True(t, errors.Is(err, ErrInvalidModel))

	_, err = LoadBooster(strings.NewReader(strings.Replace(testModel, "reg:squarederror", "binary:logistic", 1)))
	assert.True(t, errors.Is(err, ErrInvalidModel))
}

func TestLoadBoosterPoissonUsesLogLink(t *testing.T) {
	m := strings.Replace(testModel, "reg:squarederror", "count:poisson", 1)
	m = strings.Replace(m, "[5E-1]", "1", 1)
	b, err := LoadBooster(strings.NewReader(m))
	require.NoError(t, err)

	preds, err := b.Predict([]forecast.FeatureVector{{5, 0, 0}})
	require.NoError(t, err)
	assert.InDelta(t, math.Exp(1.5), preds[0], 1e-9)
}

func TestBestVersion(t *testing.T) {
	versions := []Version{
		{Name: "m", Version: 1, Metrics: map[string]float64{"r2_score": 0.7}},
		{Name: "m", Version: 2, Metrics: map[string]float64{"r2_score": 0.9}},
		{Name: "m", Version: 3, Metrics: map[string]float64{"mae": 1}},
	}

	best, err := BestVersion(versions, "r2_score", SortMax)
	require.NoError(t, err)
	assert.Equal(t, 2, best.Version)

	best, err = BestVersion(versions, "r2_score", SortMin)
	require.NoError(t, err)
	assert.Equal(t, 1, best.Version)

	_, err = BestVersion(versions, "rmse", SortMax)
	assert.True(t, errors.Is(err, ErrModelNotFound))
}

func TestProviderPrefersLocalFile(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "models", "xgb")
	require.NoError(t, os.MkdirAll(nested, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(nested, "citibike_xgb_model.json"), []byte(testModel), 0o644))

	p := &Provider{FileName: "citibike_xgb_model.json", SearchRoot: root}
	b, err := p.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, b.NumTrees())
}

func TestProviderFallsBackToRegistry(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/project/citibike/modelregistries/models", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "citibike_xgb_model", r.URL.Query().Get("name"))
		assert.Equal(t, "ApiKey k", r.Header.Get("Authorization"))
		json.NewEncoder(w).Encode(map[string]interface{}{
			"items": []Version{
				{Name: "citibike_xgb_model", Version: 1, Metrics: map[string]float64{"r2_score": 0.5}},
				{Name: "citibike_xgb_model", Version: 4, Metrics: map[string]float64{"r2_score": 0.8}},
			},
		})
	})
	mux.HandleFunc("/api/project/citibike/modelregistries/models/citibike_xgb_model/version/4/files/citibike_xgb_model.json", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(testModel))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	download := t.TempDir()
	p := &Provider{
		FileName:    "citibike_xgb_model.json",
		SearchRoot:  t.TempDir(),
		ModelName:   "citibike_xgb_model",
		Metric:      "r2_score",
		SortOrder:   SortMax,
		DownloadDir: download,
		Registry:    NewHTTPRegistry(srv.Client(), srv.URL, "citibike", "k"),
	}

	b, err := p.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, len(b.FeatureNames()))
	assert.FileExists(t, filepath.Join(download, "citibike_xgb_model_4", "citibike_xgb_model.json"))
}

func TestProviderWithoutRegistryFails(t *testing.T) {
	p := &Provider{FileName: "missing.json", SearchRoot: t.TempDir()}
	_, err := p.Load(context.Background())
	assert.True(t, errors.Is(err, ErrModelNotFound))
}

func TestProviderRejectsUnexpectedFeatures(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "m.json"), []byte(testModel), 0o644))

	p := &Provider{FileName: "m.json", SearchRoot: root, Features: []string{"holiday"}}
	_, err := p.Load(context.Background())
	assert.True(t, errors.Is(err, forecast.ErrFeatureMismatch))
}
