// Package model loads the trained ridership regressor, either from a local
// artifact or from the model registry.
package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/i474232898/citibike-forecast/internal/forecast"
)

var (
	ErrModelNotFound = errors.New("model artifact not found")
	ErrInvalidModel  = errors.New("invalid model artifact")
)

// Booster is a gradient boosted tree ensemble loaded from an XGBoost JSON
// model (Booster.save_model("*.json")).
type Booster struct {
	features  []string
	baseScore float64
	expOutput bool
	trees     []tree
}

type tree struct {
	left, right []int
	split       []int
	cond        []float64
	defaultLeft []bool
}

// flexBool decodes both 0/1 and true/false, as XGBoost versions differ.
type flexBool bool

func (b *flexBool) UnmarshalJSON(data []byte) error {
	switch strings.TrimSpace(string(data)) {
	case "true", "1":
		*b = true
	case "false", "0":
		*b = false
	default:
		return fmt.Errorf("invalid boolean %s", data)
	}
	return nil
}

type xgbDocument struct {
	Learner struct {
		FeatureNames      []string `json:"feature_names"`
		LearnerModelParam struct {
			BaseScore  string `json:"base_score"`
			NumFeature string `json:"num_feature"`
		} `json:"learner_model_param"`
		GradientBooster struct {
			Name  string `json:"name"`
			Model struct {
				Trees []struct {
					LeftChildren    []int      `json:"left_children"`
					RightChildren   []int      `json:"right_children"`
					SplitIndices    []int      `json:"split_indices"`
					SplitConditions []float64  `json:"split_conditions"`
					DefaultLeft     []flexBool `json:"default_left"`
				} `json:"trees"`
			} `json:"model"`
		} `json:"gradient_booster"`
		Objective struct {
			Name string `json:"name"`
		} `json:"objective"`
	} `json:"learner"`
}

// LoadBooster decodes and validates an XGBoost JSON model.
func LoadBooster(r io.Reader) (*Booster, error) {
	var doc xgbDocument
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidModel, err)
	}
	l := doc.Learner

	if len(l.FeatureNames) == 0 {
		return nil, fmt.Errorf("%w: model carries no feature names", ErrInvalidModel)
	}
	if name := l.GradientBooster.Name; name != "" && name != "gbtree" {
		return nil, fmt.Errorf("%w: unsupported booster %q", ErrInvalidModel, name)
	}

	base, err := parseBaseScore(l.LearnerModelParam.BaseScore)
	if err != nil {
		return nil, err
	}

	b := &Booster{features: append([]string(nil), l.FeatureNames...)}

	switch l.Objective.Name {
	case "", "reg:squarederror", "reg:linear", "reg:absoluteerror", "reg:pseudohubererror":
		b.baseScore = base
	case "count:poisson", "reg:tweedie", "reg:gamma":
		if base <= 0 {
			return nil, fmt.Errorf("%w: base_score %v for log-link objective", ErrInvalidModel, base)
		}
		b.baseScore = math.Log(base)
		b.expOutput = true
	default:
		return nil, fmt.Errorf("%w: unsupported objective %q", ErrInvalidModel, l.Objective.Name)
	}

	for i, t := range l.GradientBooster.Model.Trees {
		n := len(t.LeftChildren)
		if n == 0 || len(t.RightChildren) != n || len(t.SplitIndices) != n || len(t.SplitConditions) != n {
			return nil, fmt.Errorf("%w: tree %d has inconsistent node arrays", ErrInvalidModel, i)
		}
		tr := tree{
			left:        t.LeftChildren,
			right:       t.RightChildren,
			split:       t.SplitIndices,
			cond:        t.SplitConditions,
			defaultLeft: make([]bool, n),
		}
		for j := range tr.defaultLeft {
			if j < len(t.DefaultLeft) {
				tr.defaultLeft[j] = bool(t.DefaultLeft[j])
			}
		}
		for node := 0; node < n; node++ {
			if tr.left[node] == -1 {
				continue
			}
			// Children always follow their parent, so traversal terminates.
			if tr.left[node] <= node || tr.left[node] >= n || tr.right[node] <= node || tr.right[node] >= n {
				return nil, fmt.Errorf("%w: tree %d node %d has invalid children", ErrInvalidModel, i, node)
			}
			if tr.split[node] < 0 || tr.split[node] >= len(b.features) {
				return nil, fmt.Errorf("%w: tree %d node %d splits on feature %d", ErrInvalidModel, i, node, tr.split[node])
			}
		}
		b.trees = append(b.trees, tr)
	}

	return b, nil
}

// base_score is a string such as "5E-1" or, in newer releases, "[5E-1]".
func parseBaseScore(s string) (float64, error) {
	s = strings.Trim(strings.TrimSpace(s), "[]")
	if s == "" {
		return 0.5, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: base_score %q", ErrInvalidModel, s)
	}
	return v, nil
}

// FeatureNames returns the ordered input features the model was trained on.
func (b *Booster) FeatureNames() []string {
	return append([]string(nil), b.features...)
}

// NumTrees returns the ensemble size.
func (b *Booster) NumTrees() int {
	return len(b.trees)
}

// Validate checks the model's features against an expected ordered list.
func (b *Booster) Validate(expected []string) error {
	if len(expected) == 0 {
		return nil
	}
	if len(expected) != len(b.features) {
		return fmt.Errorf("%w: model has %d features, expected %d", forecast.ErrFeatureMismatch, len(b.features), len(expected))
	}
	for i := range expected {
		if expected[i] != b.features[i] {
			return fmt.Errorf("%w: feature %d is %q, expected %q", forecast.ErrFeatureMismatch, i, b.features[i], expected[i])
		}
	}
	return nil
}

// Predict scores a batch of vectors aligned with FeatureNames. NaN entries
// follow each split's default direction.
func (b *Booster) Predict(batch []forecast.FeatureVector) ([]float64, error) {
	out := make([]float64, len(batch))
	for i, v := range batch {
		if len(v) != len(b.features) {
			return nil, fmt.Errorf("%w: row %d has %d values, model expects %d", forecast.ErrFeatureMismatch, i, len(v), len(b.features))
		}
		margin := b.baseScore
		for t := range b.trees {
			margin += b.trees[t].leaf(v)
		}
		if b.expOutput {
			margin = math.Exp(margin)
		}
		out[i] = margin
	}
	return out, nil
}

func (t *tree) leaf(v forecast.FeatureVector) float64 {
	node := 0
	for t.left[node] != -1 {
		x := v[t.split[node]]
		switch {
		case math.IsNaN(x):
			if t.defaultLeft[node] {
				node = t.left[node]
			} else {
				node = t.right[node]
			}
		case x < t.cond[node]:
			node = t.left[node]
		default:
			node = t.right[node]
		}
	}
	// Leaves keep their weight in split_conditions.
	return t.cond[node]
}
