package weather

import (
	"fmt"
	"sync"

	"github.com/kelvins/geocoder"
)

// geocoder keeps its API key in a package variable.
var geocoderMu sync.Mutex

// NewGoogleGeocoder returns a Geocoder backed by the Google Geocoding API.
func NewGoogleGeocoder(apiKey string) Geocoder {
	return func(loc Location) (float64, float64, error) {
		if apiKey == "" {
			return 0, 0, fmt.Errorf("geocoder api key is not configured")
		}

		geocoderMu.Lock()
		defer geocoderMu.Unlock()

		geocoder.ApiKey = apiKey
		res, err := geocoder.Geocoding(geocoder.Address{
			City:    loc.City,
			Country: loc.Country,
		})
		if err != nil {
			return 0, 0, fmt.Errorf("geocode %s: %w", loc.Key(), err)
		}
		return res.Latitude, res.Longitude, nil
	}
}
