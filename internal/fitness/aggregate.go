package fitness

import (
	"math"
	"time"

	"github.com/cwbudde/scenariosearch/internal/scenario"
)

// NumObjectives is the size of every objective tuple.
const NumObjectives = 3

// severityCap clips the min-distance signal before normalisation.
const severityCap = 2.0

// Objectives are minimised by the search:
// [1 - RouteCompletion, 1 - LaneKeeping, CollisionSeverity].
type Objectives [NumObjectives]float64

const (
	ObjRouteCompletion = iota
	ObjLaneKeeping
	ObjCollision
)

// ObjectiveNames label the objective slots for logs and artifacts.
var ObjectiveNames = [NumObjectives]string{"route_completion", "lane_keeping", "collision_severity"}

// WorstObjectives is assigned to evaluations that did not complete.
var WorstObjectives = Objectives{1, 1, 1}

// Slice returns the objectives as a fresh slice.
func (o Objectives) Slice() []float64 {
	return []float64{o[0], o[1], o[2]}
}

// Dominates reports whether o is no worse than other in every objective and
// strictly better in at least one.
func (o Objectives) Dominates(other Objectives) bool {
	better := false
	for i := range o {
		if o[i] > other[i] {
			return false
		}
		if o[i] < other[i] {
			better = true
		}
	}
	return better
}

// Aggregate converts a criteria row and its auxiliary fitness row into the
// three objectives. The binary collision flag gates the continuous
// min-distance signal.
func Aggregate(c CriteriaRow, f FitnessRow) Objectives {
	var o Objectives
	o[ObjRouteCompletion] = clamp01(1 - c.RouteCompletionPercent()/100)
	o[ObjLaneKeeping] = clamp01(c.OutsideRouteLanesPercent() / 100)
	if c.Collision() != 0 {
		o[ObjCollision] = clamp01(math.Min(f[MinDistanceOtherVehicle], severityCap) / severityCap)
	}
	return o
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 1
	}
	return math.Max(0, math.Min(1, v))
}

// Criterion names as reported by the simulator.
const (
	RouteCompletionTest   = "RouteCompletionTest"
	OutsideRouteLanesTest = "OutsideRouteLanesTest"
	CollisionTest         = "CollisionTest"
	RunningRedLightTest   = "RunningRedLightTest"
	RunningStopTest       = "RunningStopTest"
	InRouteTest           = "InRouteTest"
	AgentBlockedTest      = "AgentBlockedTest"
	TimeoutCriterion      = "Timeout"
)

// CriterionResult maps criterion names to normalised scores in [0,1];
// higher is safer.
type CriterionResult map[string]float64

// Criteria derives the normalised per-criterion scores from a criteria row.
func Criteria(c CriteriaRow) CriterionResult {
	return CriterionResult{
		RouteCompletionTest:   clamp01(c[colRouteCompletionPct] / 100),
		OutsideRouteLanesTest: clamp01(1 - c[colOutsideRouteLanesPct]/100),
		CollisionTest:         clamp01(1 - c[colCollision]),
		RunningRedLightTest:   clamp01(1 - c[colRunningRedLight]),
		RunningStopTest:       clamp01(1 - c[colRunningStop]),
		InRouteTest:           clamp01(1 - c[colInRoute]),
		AgentBlockedTest:      clamp01(1 - c[colAgentBlocked]),
		TimeoutCriterion:      clamp01(1 - c[colTimeout]),
	}
}

// Status classifies how an evaluation ended.
type Status string

const (
	StatusOK      Status = "ok"
	StatusCrashed Status = "crashed"
	StatusTimeout Status = "timeout"
)

// Failed reports whether the evaluation did not complete.
func (s Status) Failed() bool {
	return s != StatusOK
}

// Evaluation is the typed outcome of scoring one scenario vector.
type Evaluation struct {
	Vector     scenario.Vector `json:"vector"`
	Objectives Objectives      `json:"objectives"`
	Status     Status          `json:"status"`
	Message    string          `json:"message,omitempty"`
	Duration   time.Duration   `json:"duration"`
}

// Failed reports whether the evaluation carries worst-case objectives
// because the simulation did not complete.
func (e Evaluation) Failed() bool {
	return e.Status.Failed()
}
