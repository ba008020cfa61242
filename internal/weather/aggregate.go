package weather

import (
	"math"
	"time"
)

// AggregateDaily combines several providers' readings for the same day into
// one DailyWeather row. Numeric fields are averaged over the providers that
// reported them; wind direction uses a circular mean. A field nobody
// reported stays NaN.
func AggregateDaily(city string, date time.Time, readings []DailyReading) DailyWeather {
	row := DailyWeather{
		City:   city,
		Date:   date,
		Values: make(map[string]float64, len(Columns)),
	}

	sums := make([]float64, len(Columns))
	counts := make([]int, len(Columns))
	var sinSum, cosSum float64
	var dirCount int

	dirIdx := len(Columns) - 1

	for _, r := range readings {
		for i, v := range r.values() {
			if math.IsNaN(v) {
				continue
			}
			if i == dirIdx {
				rad := v * math.Pi / 180
				sinSum += math.Sin(rad)
				cosSum += math.Cos(rad)
				dirCount++
				continue
			}
			sums[i] += v
			counts[i]++
		}

		row.Providers = append(row.Providers, ProviderContribution{
			ProviderName: r.ProviderName,
			Date:         r.Date,
		})
	}

	for i, col := range Columns {
		if i == dirIdx {
			continue
		}
		if counts[i] == 0 {
			row.Values[col] = math.NaN()
			continue
		}
		row.Values[col] = sums[i] / float64(counts[i])
	}

	if dirCount == 0 {
		row.Values[ColWinddirectionDominant] = math.NaN()
	} else {
		deg := math.Atan2(sinSum, cosSum) * 180 / math.Pi
		if deg < 0 {
			deg += 360
		}
		row.Values[ColWinddirectionDominant] = deg
	}

	return row
}
