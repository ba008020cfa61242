package forecast

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/i474232898/citibike-forecast/internal/common"
)

// DefaultWindows are the rolling windows, in days, of the citibike features.
var DefaultWindows = []int{7, 14, 56}

// Engineer derives lag, rolling and calendar features from per-station
// ridership history. Features for a row only look at earlier rows of the
// same station.
type Engineer struct {
	windows []int
}

// NewEngineer creates an Engineer; with no windows it uses DefaultWindows.
func NewEngineer(windows ...int) *Engineer {
	if len(windows) == 0 {
		windows = DefaultWindows
	}
	return &Engineer{windows: append([]int(nil), windows...)}
}

// MeanCol, StdCol and ExpMeanCol name the rolling features for a window.
func MeanCol(w int) string    { return fmt.Sprintf("mean_%d_days", w) }
func StdCol(w int) string     { return fmt.Sprintf("std_%d_days", w) }
func ExpMeanCol(w int) string { return fmt.Sprintf("exp_mean_%d_days", w) }

// Columns lists every column the Engineer writes.
func (e *Engineer) Columns() []string {
	cols := []string{ColPrevUsersCount}
	for _, w := range e.windows {
		cols = append(cols, MeanCol(w), StdCol(w), ExpMeanCol(w))
	}
	return append(cols, ColDayOfWeek, ColMonth, ColDayOfMonth, ColIsWeekend, ColTimestamp)
}

// Transform engineers every row and returns them sorted by (date, station id).
// The input is not modified.
func (e *Engineer) Transform(rows []Observation) []Observation {
	return e.derive(rows, func(Observation) bool { return true })
}

// EngineerAt re-derives features over the whole of rows and returns only the
// rows dated at.
func (e *Engineer) EngineerAt(rows []Observation, at time.Time) ([]Observation, error) {
	at = common.Day(at)
	out := e.derive(rows, func(o Observation) bool { return o.Date.Equal(at) })
	if len(out) == 0 {
		return nil, fmt.Errorf("no rows dated %s to engineer", common.FormatDate(at))
	}
	return out, nil
}

type rolling struct {
	size  int
	buf   []float64
	sum   float64
	sumSq float64
	n     int
}

func (r *rolling) push(v float64) {
	r.buf = append(r.buf, v)
	if !math.IsNaN(v) {
		r.sum += v
		r.sumSq += v * v
		r.n++
	}
	if len(r.buf) > r.size {
		old := r.buf[0]
		r.buf = r.buf[1:]
		if !math.IsNaN(old) {
			r.sum -= old
			r.sumSq -= old * old
			r.n--
		}
	}
}

func (r *rolling) mean() float64 {
	if r.n == 0 {
		return math.NaN()
	}
	return r.sum / float64(r.n)
}

// std is the sample standard deviation.
func (r *rolling) std() float64 {
	if r.n < 2 {
		return math.NaN()
	}
	n := float64(r.n)
	v := (r.sumSq - r.sum*r.sum/n) / (n - 1)
	if v < 0 {
		v = 0
	}
	return math.Sqrt(v)
}

// ewm is an adjusted exponentially weighted mean with alpha = 2/(span+1).
// Missing values still decay the older weights.
type ewm struct {
	decay    float64
	num, den float64
}

func (e *ewm) push(v float64) {
	e.num *= e.decay
	e.den *= e.decay
	if !math.IsNaN(v) {
		e.num += v
		e.den++
	}
}

func (e *ewm) mean() float64 {
	if e.den == 0 {
		return math.NaN()
	}
	return e.num / e.den
}

func (e *Engineer) derive(rows []Observation, keep func(Observation) bool) []Observation {
	groups := make(map[string][]int)
	var order []string
	for i, r := range rows {
		if _, ok := groups[r.StationID]; !ok {
			order = append(order, r.StationID)
		}
		groups[r.StationID] = append(groups[r.StationID], i)
	}

	var out []Observation
	for _, station := range order {
		idx := groups[station]
		if !sort.SliceIsSorted(idx, func(a, b int) bool { return rows[idx[a]].Date.Before(rows[idx[b]].Date) }) {
			sort.SliceStable(idx, func(a, b int) bool { return rows[idx[a]].Date.Before(rows[idx[b]].Date) })
		}

		rolls := make([]rolling, len(e.windows))
		ewms := make([]ewm, len(e.windows))
		for k, w := range e.windows {
			rolls[k] = rolling{size: w}
			ewms[k] = ewm{decay: 1 - 2/(float64(w)+1)}
		}

		prev := math.NaN()
		for _, i := range idx {
			row := rows[i]
			for k := range e.windows {
				rolls[k].push(prev)
				ewms[k].push(prev)
			}

			if keep(row) {
				c := row.clone()
				c.Features[ColPrevUsersCount] = prev
				for k, w := range e.windows {
					c.Features[MeanCol(w)] = rolls[k].mean()
					c.Features[StdCol(w)] = rolls[k].std()
					c.Features[ExpMeanCol(w)] = ewms[k].mean()
				}
				addCalendar(c.Features, row.Date)
				out = append(out, c)
			}

			prev = row.UsersCount
			if row.Provisional() {
				prev = math.NaN()
			}
		}
	}

	if !sort.SliceIsSorted(out, func(i, j int) bool { return lessObservation(out[i], out[j]) }) {
		SortObservations(out)
	}
	return out
}

func addCalendar(f map[string]float64, date time.Time) {
	// Monday = 0, matching the feature store's day_of_week.
	dow := (int(date.Weekday()) + 6) % 7
	f[ColDayOfWeek] = float64(dow)
	f[ColMonth] = float64(date.Month())
	f[ColDayOfMonth] = float64(date.Day())
	if dow >= 5 {
		f[ColIsWeekend] = 1
	} else {
		f[ColIsWeekend] = 0
	}
	f[ColTimestamp] = float64(common.DateToUnix(date))
}
