package scenario

import "math"

// Waypoint is a location with the heading of the road at that point.
type Waypoint struct {
	X   float64 `json:"x" yaml:"x"`
	Y   float64 `json:"y" yaml:"y"`
	Z   float64 `json:"z" yaml:"z"`
	Yaw float64 `json:"yaw" yaml:"yaw"` // degrees
}

// RouteConfig is one base scenario definition. It is treated as a value:
// evaluations derive a Scenario from it and never mutate it.
type RouteConfig struct {
	Name            string     `json:"name" yaml:"name"`
	Index           int        `json:"index" yaml:"index"`
	Town            string     `json:"town" yaml:"town"`
	RepetitionIndex int        `json:"repetitionIndex" yaml:"repetition_index"`
	Trajectory      []Waypoint `json:"trajectory" yaml:"trajectory"`
	Weather         Weather    `json:"weather" yaml:"weather"`
}

// Scenario is a base route plus the overlay decoded for one evaluation.
type Scenario struct {
	Route   RouteConfig `json:"route"`
	Overlay Overlay     `json:"overlay"`
}

// Derive decodes v against the route's original trajectory endpoints.
func (r RouteConfig) Derive(v Vector, offsetRange float64) (Scenario, error) {
	endpoints := r.Trajectory
	if len(endpoints) > 2 {
		endpoints = []Waypoint{endpoints[0], endpoints[len(endpoints)-1]}
	}
	overlay, err := Decode(v, endpoints, offsetRange)
	if err != nil {
		return Scenario{}, err
	}

	base := r
	base.Trajectory = append([]Waypoint(nil), r.Trajectory...)
	return Scenario{Route: base, Overlay: overlay}, nil
}

// Heading buckets a yaw angle into one of four cardinal quadrants.
type Heading int

const (
	HeadingEast  Heading = iota // [315, 45)
	HeadingSouth                // [45, 135)
	HeadingWest                 // [135, 225)
	HeadingNorth                // [225, 315)
)

// HeadingOf normalises yaw into [0,360) and returns its quadrant.
func HeadingOf(yaw float64) Heading {
	d := math.Mod(yaw, 360)
	if d < 0 {
		d += 360
	}
	switch {
	case d >= 315 || d < 45:
		return HeadingEast
	case d < 135:
		return HeadingSouth
	case d < 225:
		return HeadingWest
	default:
		return HeadingNorth
	}
}

// LateralShift maps an offset fraction in [0,1] onto [-offsetRange/2, +offsetRange/2].
func LateralShift(frac, offsetRange float64) float64 {
	return frac*offsetRange - offsetRange/2
}

// OffsetEndpoint shifts wp perpendicular to the road heading. Positive shifts
// move to the right of the direction of travel in the simulator's
// left-handed frame (yaw 90 points along +y).
func OffsetEndpoint(wp Waypoint, frac, offsetRange float64) Waypoint {
	shift := LateralShift(frac, offsetRange)
	out := wp
	switch HeadingOf(wp.Yaw) {
	case HeadingEast:
		out.Y += shift
	case HeadingSouth:
		out.X -= shift
	case HeadingWest:
		out.Y -= shift
	case HeadingNorth:
		out.X += shift
	}
	return out
}
