// Package surrogate scores scenario vectors with pre-trained regressors
// instead of running the simulator.
package surrogate

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/cwbudde/scenariosearch/internal/fitness"
)

// Regressor predicts one objective from a raw scenario vector.
type Regressor interface {
	Predict(x []float64) (float64, error)
}

// Scaler standardises inputs: (x - mean) / scale.
type Scaler struct {
	Mean  []float64 `json:"mean"`
	Scale []float64 `json:"scale"`
}

func (s Scaler) transform(x []float64) ([]float64, error) {
	if len(x) != len(s.Mean) {
		return nil, fmt.Errorf("input has %d features, model expects %d", len(x), len(s.Mean))
	}
	out := make([]float64, len(x))
	for i := range x {
		scale := s.Scale[i]
		if scale == 0 {
			scale = 1
		}
		out[i] = (x[i] - s.Mean[i]) / scale
	}
	return out, nil
}

func (s Scaler) validate() error {
	if len(s.Mean) == 0 || len(s.Mean) != len(s.Scale) {
		return fmt.Errorf("scaler needs equal-length mean and scale, got %d and %d", len(s.Mean), len(s.Scale))
	}
	return nil
}

// KrigingModel is the posterior mean of a Gaussian process with a
// constant-scaled RBF kernel:
//
//	y(x) = YMean + YStd * sum_i Constant * exp(-|x - X_i|^2 / (2 LengthScale^2)) * Alpha_i
type KrigingModel struct {
	Scaler      Scaler      `json:"scaler"`
	XTrain      [][]float64 `json:"x_train"`
	Alpha       []float64   `json:"alpha"`
	LengthScale float64     `json:"length_scale"`
	Constant    float64     `json:"constant"`
	YMean       float64     `json:"y_mean"`
	YStd        float64     `json:"y_std"`
}

func (m *KrigingModel) validate() error {
	if err := m.Scaler.validate(); err != nil {
		return err
	}
	if len(m.XTrain) == 0 || len(m.XTrain) != len(m.Alpha) {
		return fmt.Errorf("kriging needs one alpha per training point, got %d points and %d alphas", len(m.XTrain), len(m.Alpha))
	}
	for i, row := range m.XTrain {
		if len(row) != len(m.Scaler.Mean) {
			return fmt.Errorf("training point %d has %d features, want %d", i, len(row), len(m.Scaler.Mean))
		}
	}
	if m.LengthScale <= 0 {
		return fmt.Errorf("length_scale must be positive")
	}
	if m.Constant == 0 {
		m.Constant = 1
	}
	if m.YStd == 0 {
		m.YStd = 1
	}
	return nil
}

// Predict returns the posterior mean at x.
func (m *KrigingModel) Predict(x []float64) (float64, error) {
	z, err := m.Scaler.transform(x)
	if err != nil {
		return 0, err
	}
	denom := 2 * m.LengthScale * m.LengthScale
	sum := 0.0
	for i, xi := range m.XTrain {
		d2 := 0.0
		for j := range z {
			d := z[j] - xi[j]
			d2 += d * d
		}
		sum += m.Constant * math.Exp(-d2/denom) * m.Alpha[i]
	}
	return m.YMean + m.YStd*sum, nil
}

// PolynomialModel is a linear regression over monomial features of the
// standardised input. Powers[k][j] is the exponent of feature j in term k.
type PolynomialModel struct {
	Scaler    Scaler    `json:"scaler"`
	Powers    [][]int   `json:"powers"`
	Coef      []float64 `json:"coef"`
	Intercept float64   `json:"intercept"`
}

func (m *PolynomialModel) validate() error {
	if err := m.Scaler.validate(); err != nil {
		return err
	}
	if len(m.Powers) == 0 || len(m.Powers) != len(m.Coef) {
		return fmt.Errorf("polynomial needs one coefficient per term, got %d terms and %d coefficients", len(m.Powers), len(m.Coef))
	}
	for k, p := range m.Powers {
		if len(p) != len(m.Scaler.Mean) {
			return fmt.Errorf("term %d has %d exponents, want %d", k, len(p), len(m.Scaler.Mean))
		}
	}
	return nil
}

// Predict evaluates the polynomial at the scaled x.
func (m *PolynomialModel) Predict(x []float64) (float64, error) {
	z, err := m.Scaler.transform(x)
	if err != nil {
		return 0, err
	}
	y := m.Intercept
	for k, powers := range m.Powers {
		term := 1.0
		for j, p := range powers {
			if p != 0 {
				term *= math.Pow(z[j], float64(p))
			}
		}
		y += m.Coef[k] * term
	}
	return y, nil
}

// Model kinds as they appear in export files and file names.
const (
	KindKriging    = "Kriging"
	KindPolynomial = "Polynomial"
)

type modelFile struct {
	Kind       string           `json:"kind"`
	Criterion  string           `json:"criterion"`
	Kriging    *KrigingModel    `json:"kriging,omitempty"`
	Polynomial *PolynomialModel `json:"polynomial,omitempty"`
}

// LoadModel reads one exported regressor. The file's kind selects the model.
func LoadModel(path string) (Regressor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read model: %w", err)
	}
	var f modelFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse model %s: %w", path, err)
	}

	switch f.Kind {
	case KindKriging:
		if f.Kriging == nil {
			return nil, fmt.Errorf("model %s: missing kriging block", path)
		}
		if err := f.Kriging.validate(); err != nil {
			return nil, fmt.Errorf("model %s: %w", path, err)
		}
		return f.Kriging, nil
	case KindPolynomial:
		if f.Polynomial == nil {
			return nil, fmt.Errorf("model %s: missing polynomial block", path)
		}
		if err := f.Polynomial.validate(); err != nil {
			return nil, fmt.Errorf("model %s: %w", path, err)
		}
		return f.Polynomial, nil
	default:
		return nil, fmt.Errorf("model %s: unknown kind %q", path, f.Kind)
	}
}

// ModelSet holds one regressor per objective slot.
type ModelSet struct {
	Models [fitness.NumObjectives]Regressor
}

// slotCriteria names the criterion each objective slot's regressor was
// trained on.
var slotCriteria = [fitness.NumObjectives]string{
	fitness.ObjRouteCompletion: fitness.RouteCompletionTest,
	fitness.ObjLaneKeeping:     fitness.OutsideRouteLanesTest,
	fitness.ObjCollision:       fitness.CollisionTest,
}

// ModelPath returns <dir>/regression-<kind>-<criterion>.json.
func ModelPath(dir, kind, criterion string) string {
	return filepath.Join(dir, fmt.Sprintf("regression-%s-%s.json", kind, criterion))
}

// LoadModelSet loads the three regressors of one kind from dir.
func LoadModelSet(dir, kind string) (*ModelSet, error) {
	var set ModelSet
	for slot, criterion := range slotCriteria {
		m, err := LoadModel(ModelPath(dir, kind, criterion))
		if err != nil {
			return nil, err
		}
		set.Models[slot] = m
	}
	return &set, nil
}

// Predict evaluates every slot and clamps the predictions into [0,1].
func (s *ModelSet) Predict(x []float64) (fitness.Objectives, error) {
	var o fitness.Objectives
	for slot, m := range s.Models {
		if m == nil {
			return fitness.Objectives{}, fmt.Errorf("no regressor for %s", slotCriteria[slot])
		}
		y, err := m.Predict(x)
		if err != nil {
			return fitness.Objectives{}, fmt.Errorf("%s: %w", slotCriteria[slot], err)
		}
		if math.IsNaN(y) {
			y = 1
		}
		o[slot] = math.Max(0, math.Min(1, y))
	}
	return o, nil
}
