package fitness

import (
	"fmt"
	"strconv"
	"strings"
)

// Column positions of the criteria log. Status columns hold 1 when the
// criterion failed or the event occurred, 0 otherwise; percentage columns
// hold the figure reported by the simulator.
const (
	colRouteCompletion = iota
	colRouteCompletionPct
	colOutsideRouteLanes
	colOutsideRouteLanesPct
	colCollision
	colCollisionPct
	colRunningRedLight
	colRunningRedLightPct
	colRunningStop
	colRunningStopPct
	colInRoute
	colInRoutePct
	colAgentBlocked
	colAgentBlockedPct
	colTimeout

	CriteriaColumns
)

// CriteriaHeader names the criteria log columns in file order.
var CriteriaHeader = [CriteriaColumns]string{
	"RouteCompletionTest",
	"RouteCompletionTest_figure",
	"OutsideRouteLanesTest",
	"OutsideRouteLanesTest_figure",
	"CollisionTest",
	"CollisionTest_figure",
	"RunningRedLightTest",
	"RunningRedLightTest_figure",
	"RunningStopTest",
	"RunningStopTest_figure",
	"InRouteTest",
	"InRouteTest_figure",
	"AgentBlockedTest",
	"AgentBlockedTest_figure",
	"Timeout",
}

// CriteriaRow is one line of the criteria log.
type CriteriaRow [CriteriaColumns]float64

func (r CriteriaRow) RouteCompletionPercent() float64   { return r[colRouteCompletionPct] }
func (r CriteriaRow) OutsideRouteLanesPercent() float64 { return r[colOutsideRouteLanesPct] }
func (r CriteriaRow) Collision() float64                { return r[colCollision] }

// Fitness log columns.
const (
	DistanceOutOfLane = iota
	MinDistanceOtherVehicle
	MinDistancePedestrian
	MinDistanceStaticMesh
	DistanceFromDestination

	FitnessColumns
)

// FitnessHeader names the fitness log columns in file order.
var FitnessHeader = [FitnessColumns]string{"DOL", "DVE", "DPD", "DSM", "DFD"}

// FitnessRow is one line of the auxiliary fitness log.
type FitnessRow [FitnessColumns]float64

// ParseError reports a malformed log line.
type ParseError struct {
	Log    string
	Line   string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s line %q: %s", e.Log, e.Line, e.Reason)
}

// ParseCriteriaLine parses one comma-separated criteria log line.
func ParseCriteriaLine(line string) (CriteriaRow, error) {
	var row CriteriaRow
	if err := parseInto(row[:], "criteria", line); err != nil {
		return CriteriaRow{}, err
	}
	return row, nil
}

// ParseFitnessLine parses one comma-separated fitness log line.
func ParseFitnessLine(line string) (FitnessRow, error) {
	var row FitnessRow
	if err := parseInto(row[:], "fitness", line); err != nil {
		return FitnessRow{}, err
	}
	return row, nil
}

func parseInto(dst []float64, log, line string) error {
	fields := strings.Split(strings.TrimSpace(line), ",")
	if len(fields) != len(dst) {
		return &ParseError{Log: log, Line: line, Reason: fmt.Sprintf("expected %d columns, got %d", len(dst), len(fields))}
	}
	for i, f := range fields {
		v, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
		if err != nil {
			return &ParseError{Log: log, Line: line, Reason: fmt.Sprintf("column %d: %v", i, err)}
		}
		dst[i] = v
	}
	return nil
}

// CSV renders the row as a criteria log line.
func (r CriteriaRow) CSV() string { return formatRow(r[:]) }

// CSV renders the row as a fitness log line.
func (r FitnessRow) CSV() string { return formatRow(r[:]) }

func formatRow(values []float64) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = strconv.FormatFloat(v, 'g', -1, 64)
	}
	return strings.Join(parts, ",")
}

// FailureCriteria is the sentinel criteria row written for a crashed or
// timed-out evaluation: every criterion failed, no route completed, the
// whole route driven outside the lanes.
func FailureCriteria() CriteriaRow {
	var row CriteriaRow
	for _, col := range []int{colRouteCompletion, colOutsideRouteLanes, colCollision,
		colRunningRedLight, colRunningStop, colInRoute, colAgentBlocked, colTimeout} {
		row[col] = 1
	}
	row[colRouteCompletionPct] = 0
	row[colOutsideRouteLanesPct] = 100
	return row
}

// FailureFitness is the sentinel fitness row paired with FailureCriteria.
// Distances sit at the severity cap so the collision objective saturates.
func FailureFitness() FitnessRow {
	return FitnessRow{
		DistanceOutOfLane:       0,
		MinDistanceOtherVehicle: severityCap,
		MinDistancePedestrian:   severityCap,
		MinDistanceStaticMesh:   severityCap,
		DistanceFromDestination: 0,
	}
}
