package scenario

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

// Vector is the fixed-length real encoding of one test case.
// Components are expected in [0,1]; the box constraint is enforced by the
// optimizer, not by the vector.
type Vector []float64

const (
	// VectorLen is the number of components in every scenario vector.
	VectorLen = 14

	weatherStart  = 0
	weatherEnd    = 9
	vehiclesStart = 9
	vehiclesEnd   = 12
	offsetsStart  = 12
	offsetsEnd    = 14

	// DefaultOffsetRange is the lateral trajectory perturbation span in
	// simulator distance units.
	DefaultOffsetRange = 50.0
)

// ErrInvalidVectorLength is matched by every *InvalidVectorLengthError.
var ErrInvalidVectorLength = errors.New("invalid scenario vector length")

// InvalidVectorLengthError reports a vector that does not have VectorLen components.
type InvalidVectorLengthError struct {
	Got int
}

func (e *InvalidVectorLengthError) Error() string {
	return fmt.Sprintf("invalid scenario vector length: expected %d, got %d", VectorLen, e.Got)
}

func (e *InvalidVectorLengthError) Is(target error) bool {
	return target == ErrInvalidVectorLength
}

// DecodeError reports a vector or route that cannot be decoded.
type DecodeError struct {
	Field  string
	Reason string
}

func (e *DecodeError) Error() string {
	return "decode error: " + e.Field + ": " + e.Reason
}

// Overlay holds the per-evaluation fields derived from a vector.
type Overlay struct {
	Weather    Weather    `json:"weather" yaml:"weather"`
	Vehicles   Vehicles   `json:"vehicles" yaml:"vehicles"`
	Trajectory []Waypoint `json:"trajectory" yaml:"trajectory"`
}

// Night reports whether the decoded sun is below the horizon.
func (o Overlay) Night() bool {
	return o.Weather.SunAltitudeAngle < 0
}

// Vehicles are the other-vehicle presence flags.
type Vehicles struct {
	InFront  bool `json:"inFront" yaml:"in_front"`
	Side     bool `json:"side" yaml:"side"`
	Opposite bool `json:"opposite" yaml:"opposite"`
}

// Count returns the number of other vehicles requested.
func (v Vehicles) Count() int {
	n := 0
	for _, present := range []bool{v.InFront, v.Side, v.Opposite} {
		if present {
			n++
		}
	}
	return n
}

// Baseline is the unperturbed scenario: neutral weather, no other vehicles
// and both endpoints at their original position.
func Baseline() Vector {
	v := make(Vector, VectorLen)
	for i := offsetsStart; i < offsetsEnd; i++ {
		v[i] = 0.5
	}
	return v
}

// Validate checks the length and that every component is a finite number.
func (v Vector) Validate() error {
	if len(v) != VectorLen {
		return &InvalidVectorLengthError{Got: len(v)}
	}
	for i, c := range v {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return &DecodeError{Field: fmt.Sprintf("vector[%d]", i), Reason: "not a finite number"}
		}
	}
	return nil
}

// InBounds reports whether every component lies in [0,1].
func (v Vector) InBounds() bool {
	for _, c := range v {
		if c < 0 || c > 1 {
			return false
		}
	}
	return true
}

// Clone returns an independent copy of the vector.
func (v Vector) Clone() Vector {
	out := make(Vector, len(v))
	copy(out, v)
	return out
}

// Equal reports whether both vectors hold identical components.
func (v Vector) Equal(other Vector) bool {
	if len(v) != len(other) {
		return false
	}
	for i := range v {
		if v[i] != other[i] {
			return false
		}
	}
	return true
}

// CSV joins the components with commas using the shortest float form that
// parses back to the same value.
func (v Vector) CSV() string {
	parts := make([]string, len(v))
	for i, c := range v {
		parts[i] = strconv.FormatFloat(c, 'g', -1, 64)
	}
	return strings.Join(parts, ",")
}

// ParseVector parses a comma-separated line produced by Vector.CSV.
func ParseVector(line string) (Vector, error) {
	fields := strings.Split(strings.TrimSpace(line), ",")
	v := make(Vector, len(fields))
	for i, f := range fields {
		c, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
		if err != nil {
			return nil, &DecodeError{Field: fmt.Sprintf("vector[%d]", i), Reason: err.Error()}
		}
		v[i] = c
	}
	if err := v.Validate(); err != nil {
		return nil, err
	}
	return v, nil
}

// ReadVectors parses one vector per line, skipping blank lines.
func ReadVectors(r io.Reader) ([]Vector, error) {
	var out []Vector
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}
		v, err := ParseVector(text)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		out = append(out, v)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Decode maps a vector onto weather, vehicle flags and the two perturbed
// trajectory endpoints.
func Decode(v Vector, endpoints []Waypoint, offsetRange float64) (Overlay, error) {
	if err := v.Validate(); err != nil {
		return Overlay{}, err
	}
	if len(endpoints) != offsetsEnd-offsetsStart {
		return Overlay{}, &DecodeError{
			Field:  "trajectory",
			Reason: fmt.Sprintf("expected %d endpoints, got %d", offsetsEnd-offsetsStart, len(endpoints)),
		}
	}

	trajectory := make([]Waypoint, len(endpoints))
	for i, wp := range endpoints {
		trajectory[i] = OffsetEndpoint(wp, v[offsetsStart+i], offsetRange)
	}

	return Overlay{
		Weather:    DecodeWeather(v[weatherStart:weatherEnd]),
		Vehicles:   DecodeVehicles(v[vehiclesStart:vehiclesEnd]),
		Trajectory: trajectory,
	}, nil
}

// DecodeVehicles thresholds each flag component at 0.5.
func DecodeVehicles(flags []float64) Vehicles {
	return Vehicles{
		InFront:  flags[0] >= 0.5,
		Side:     flags[1] >= 0.5,
		Opposite: flags[2] >= 0.5,
	}
}
