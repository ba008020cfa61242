package forecast

import "fmt"

// FeatureVector is one row of model input, aligned with a Selector's names.
type FeatureVector []float64

// Selector projects feature maps onto a regressor's declared, ordered
// feature names.
type Selector struct {
	names []string
}

// NewSelector validates the declared names: non-empty, no blanks, no duplicates.
func NewSelector(names []string) (*Selector, error) {
	if len(names) == 0 {
		return nil, fmt.Errorf("%w: regressor declares no features", ErrFeatureMismatch)
	}
	seen := make(map[string]bool, len(names))
	for _, n := range names {
		if n == "" {
			return nil, fmt.Errorf("%w: blank feature name", ErrFeatureMismatch)
		}
		if seen[n] {
			return nil, fmt.Errorf("%w: duplicate feature %q", ErrFeatureMismatch, n)
		}
		seen[n] = true
	}
	return &Selector{names: append([]string(nil), names...)}, nil
}

// Names returns the declared feature order.
func (s *Selector) Names() []string {
	return append([]string(nil), s.names...)
}

// Vector builds the input vector for one row. A declared feature the row
// does not carry is a fatal configuration error; NaN values are allowed.
func (s *Selector) Vector(row Observation) (FeatureVector, error) {
	v := make(FeatureVector, len(s.names))
	for i, n := range s.names {
		x, ok := row.Features[n]
		if !ok {
			return nil, fmt.Errorf("%w: missing %q for station %s", ErrFeatureMismatch, n, row.StationID)
		}
		v[i] = x
	}
	return v, nil
}

// Batch builds vectors for all rows.
func (s *Selector) Batch(rows []Observation) ([]FeatureVector, error) {
	out := make([]FeatureVector, 0, len(rows))
	for _, r := range rows {
		v, err := s.Vector(r)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}
