package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/i474232898/citibike-forecast/internal/forecast"
	"github.com/i474232898/citibike-forecast/internal/weather"
)

// curatedStations are the stations offered for selection by default.
var curatedStations = []string{
	"6170.02", "4729.01", "7976.08", "5190.07", "6896.16", "3847.04",
	"4611.03", "6230.04", "6416.06", "4143.03", "6887.03", "7414.17",
	"7522.02", "5282.02", "4906.07", "4895.09", "6203.02", "5175.08",
	"5156.05", "5788.15", "7567.06", "6584.12", "4517.03", "5117.05",
	"7688.12", "6960.1", "5453.01", "7622.12", "7783.18", "4107.13",
	"6247.06", "6650.07", "6717.06", "4528.01", "5148.03", "4494.04",
	"4404.1", "6551.02", "4175.15", "5308.04", "5545.04", "5001.08",
	"6039.06", "6966.04", "7504.18", "6462.05", "5938.11", "5863.07",
	"5633.04", "6441.01", "5082.08", "5178.06", "7520.07", "3498.09",
	"6762.02", "5470.12", "5267.08", "4437.01", "7009.02", "5374.01",
}

type AppConfig struct {
	Port string `validate:"required"`

	// HTTPTimeout bounds every outbound call.
	HTTPTimeout time.Duration `validate:"gt=0"`
	// ForecastTimeout bounds one scheduled forecast run.
	ForecastTimeout time.Duration `validate:"gt=0"`

	// Feature store.
	FeatureStoreBackend string `validate:"oneof=sqlite postgres rest"`
	FeatureStoreDSN     string `validate:"required_unless=FeatureStoreBackend rest"`
	FeatureStoreURL     string `validate:"required_if=FeatureStoreBackend rest"`
	FeatureStoreProject string
	FeatureStoreAPIKey  string

	// Model artifact and registry.
	ModelFile        string `validate:"required"`
	ModelName        string `validate:"required"`
	ModelMetric      string `validate:"required"`
	ModelSortOrder   string `validate:"oneof=max min"`
	ModelSearchRoot  string
	ModelDownloadDir string
	ModelRegistryURL string `validate:"omitempty,url"`
	// ModelFeatures, when set, must equal the model's ordered feature names.
	ModelFeatures []string

	// Weather providers.
	OpenWeatherAPIKey string
	WeatherAPIKey     string
	GeocoderAPIKey    string
	WeatherCity       string `validate:"required"`
	WeatherCacheSize  int    `validate:"gte=0"`
	Locations         map[string]weather.Location

	// Stations: curated selectable list, defaults refreshed by the scheduler
	// and an optional static catalog replacing the feature store's.
	CuratedStations []string
	DefaultStations []string
	Stations        []forecast.Station

	// Forecast horizon.
	MinDays            int `validate:"min=1"`
	MaxDays            int `validate:"gtefield=MinDays"`
	DefaultHorizonDays int `validate:"gtefield=MinDays,ltefield=MaxDays"`

	// SchedulerInterval controls how often the default forecast is refreshed.
	SchedulerInterval time.Duration

	// In-memory store retention.
	StoreMaxRuns int           // max number of runs kept (0 = unlimited)
	StoreMaxAge  time.Duration // max age of runs (0 = unlimited)
}

// catalogFile is the YAML layout of STATIONS_FILE.
type catalogFile struct {
	Curated   []string                    `yaml:"curated"`
	Defaults  []string                    `yaml:"defaults"`
	Stations  []forecast.Station          `yaml:"stations"`
	Locations map[string]weather.Location `yaml:"locations"`
}

// Load reads configuration from environment with sensible defaults.
func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil {
		log.Printf("INFO: No .env file found or error loading it: %v", err)
	}
	cfg := &AppConfig{}
	var err error

	cfg.Port = getenvDefault("PORT", "8080")
	if cfg.HTTPTimeout, err = getenvDuration("HTTP_TIMEOUT", "30s"); err != nil {
		return nil, err
	}
	if cfg.ForecastTimeout, err = getenvDuration("FORECAST_TIMEOUT", "10m"); err != nil {
		return nil, err
	}

	cfg.FeatureStoreBackend = getenvDefault("FEATURE_STORE_BACKEND", "sqlite")
	cfg.FeatureStoreDSN = getenvDefault("FEATURE_STORE_DSN", "file:citibike.db")
	cfg.FeatureStoreURL = os.Getenv("FEATURE_STORE_URL")
	cfg.FeatureStoreProject = getenvDefault("FEATURE_STORE_PROJECT", "citibike")
	cfg.FeatureStoreAPIKey = os.Getenv("FEATURE_STORE_API_KEY")

	cfg.ModelFile = getenvDefault("MODEL_FILE", "citibike_xgb_model.json")
	cfg.ModelName = getenvDefault("MODEL_NAME", "citibike_xgb_model")
	cfg.ModelMetric = getenvDefault("MODEL_METRIC", "r2_score")
	cfg.ModelSortOrder = getenvDefault("MODEL_SORT_ORDER", "max")
	cfg.ModelSearchRoot = getenvDefault("MODEL_SEARCH_ROOT", ".")
	cfg.ModelDownloadDir = os.Getenv("MODEL_DOWNLOAD_DIR")
	cfg.ModelRegistryURL = getenvDefault("MODEL_REGISTRY_URL", cfg.FeatureStoreURL)
	cfg.ModelFeatures = getenvList("MODEL_FEATURES", nil)

	cfg.OpenWeatherAPIKey = os.Getenv("OPENWEATHER_API_KEY")
	cfg.WeatherAPIKey = os.Getenv("WEATHERAPI_API_KEY")
	cfg.GeocoderAPIKey = os.Getenv("GOOGLE_GEOCODER_API_KEY")
	cfg.WeatherCity = strings.ToLower(getenvDefault("WEATHER_CITY", "nyc"))
	cfg.WeatherCacheSize = getenvInt("WEATHER_CACHE_SIZE", 4096)

	loc, err := loadPrimaryLocation()
	if err != nil {
		return nil, err
	}
	cfg.Locations = map[string]weather.Location{cfg.WeatherCity: loc}

	cfg.CuratedStations = getenvList("CURATED_STATIONS", curatedStations)
	cfg.DefaultStations = getenvList("DEFAULT_STATIONS", []string{"3847.04"})

	cfg.MinDays = getenvInt("FORECAST_MIN_DAYS", forecast.DefaultMinDays)
	cfg.MaxDays = getenvInt("FORECAST_MAX_DAYS", forecast.DefaultMaxDays)
	cfg.DefaultHorizonDays = getenvInt("DEFAULT_HORIZON_DAYS", cfg.MinDays)

	// Scheduler interval: default 6 hours.
	if cfg.SchedulerInterval, err = getenvDuration("SCHEDULER_INTERVAL", "6h"); err != nil {
		return nil, err
	}

	// Store retention.
	cfg.StoreMaxRuns = getenvInt("STORE_MAX_RUNS", 50)
	if cfg.StoreMaxAge, err = getenvDuration("STORE_MAX_AGE", "24h"); err != nil {
		return nil, err
	}

	if path := os.Getenv("STATIONS_FILE"); path != "" {
		if err := cfg.applyCatalogFile(path); err != nil {
			return nil, err
		}
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// applyCatalogFile overrides stations and locations from a YAML file.
func (cfg *AppConfig) applyCatalogFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read STATIONS_FILE: %w", err)
	}

	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parse STATIONS_FILE: %w", err)
	}

	if len(file.Curated) > 0 {
		cfg.CuratedStations = file.Curated
	}
	if len(file.Defaults) > 0 {
		cfg.DefaultStations = file.Defaults
	}
	if len(file.Stations) > 0 {
		if _, err := forecast.NewCatalog(file.Stations); err != nil {
			return fmt.Errorf("STATIONS_FILE: %w", err)
		}
		cfg.Stations = file.Stations
	}
	for alias, loc := range file.Locations {
		cfg.Locations[strings.ToLower(alias)] = loc
	}
	return nil
}

func loadPrimaryLocation() (weather.Location, error) {
	loc := weather.Location{
		City:    getenvDefault("WEATHER_LOCATION_CITY", "New York"),
		Country: getenvDefault("WEATHER_LOCATION_COUNTRY", "US"),
	}

	// Empty coordinates leave the city to the geocoder.
	lat, err := getenvFloatPtr("WEATHER_LOCATION_LAT", "40.7128")
	if err != nil {
		return loc, err
	}
	lon, err := getenvFloatPtr("WEATHER_LOCATION_LON", "-74.0060")
	if err != nil {
		return loc, err
	}
	if (lat == nil) != (lon == nil) {
		return loc, fmt.Errorf("WEATHER_LOCATION_LAT and WEATHER_LOCATION_LON must be set together")
	}
	loc.Lat, loc.Lon = lat, lon

	return loc, nil
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(v)
		if err == nil {
			return n
		}
	}
	return def
}

func getenvDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(getenvDefault(key, def))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

// getenvList splits a comma separated variable, dropping blanks.
func getenvList(key string, def []string) []string {
	v, ok := os.LookupEnv(key)
	if !ok {
		return append([]string(nil), def...)
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func getenvFloatPtr(key, def string) (*float64, error) {
	v, ok := os.LookupEnv(key)
	if !ok {
		v = def
	}
	if strings.TrimSpace(v) == "" {
		return nil, nil
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s: %w", key, err)
	}
	return &f, nil
}
