package providers

import (
	"math"
	"net/http"
	"time"

	"github.com/i474232898/citibike-forecast/internal/common"
	"github.com/i474232898/citibike-forecast/internal/remote"
)

// defaultHTTPConfig wraps the shared client with the default retry policy.
func defaultHTTPConfig(client *http.Client) remote.HTTPClientConfig {
	return remote.HTTPClientConfig{
		Client:  client,
		Backoff: remote.DefaultBackoff(),
	}
}

// orNaN turns a JSON null into a missing value.
func orNaN(v *float64) float64 {
	if v == nil {
		return math.NaN()
	}
	return *v
}

// days lists every calendar day in [start, end].
func days(start, end time.Time) []time.Time {
	var out []time.Time
	for d := common.Day(start); !d.After(common.Day(end)); d = common.NextDate(d) {
		out = append(out, d)
	}
	return out
}

// msToKmh converts a wind speed from m/s to km/h.
func msToKmh(v float64) float64 {
	return v * 3.6
}
