package opt

import (
	"testing"
)

// shifted sphere with its minimum inside the unit box
func shiftedSphere(x []float64) float64 {
	var sum float64
	for _, v := range x {
		d := v - 0.3
		sum += d * d
	}
	return sum
}

func unitBounds(dim int) ([]float64, []float64) {
	lower := make([]float64, dim)
	upper := make([]float64, dim)
	for i := range upper {
		upper[i] = 1
	}
	return lower, upper
}

func TestMayflyAdapterOnSphere(t *testing.T) {
	optimizer := NewMayfly(100, 20, 42)

	dim := 3
	lower, upper := unitBounds(dim)

	best, cost, err := optimizer.Run(shiftedSphere, lower, upper, dim)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(best) != dim {
		t.Fatalf("Expected %d parameters, got %d", dim, len(best))
	}
	if cost > 0.05 {
		t.Errorf("Expected cost near 0, got %f", cost)
	}
	for i, v := range best {
		if v < 0 || v > 1 {
			t.Errorf("Parameter %d = %f outside bounds", i, v)
		}
	}
}

func TestMayflyAdapterDeterministic(t *testing.T) {
	lower, upper := unitBounds(2)

	_, cost1, err1 := NewMayfly(30, 20, 123).Run(shiftedSphere, lower, upper, 2)
	_, cost2, err2 := NewMayfly(30, 20, 123).Run(shiftedSphere, lower, upper, 2)
	if err1 != nil || err2 != nil {
		t.Fatalf("Run failed: %v %v", err1, err2)
	}
	if cost1 != cost2 {
		t.Errorf("Non-deterministic: cost1=%f, cost2=%f", cost1, cost2)
	}
}

func TestMayflyAdapterRejectsBadBounds(t *testing.T) {
	optimizer := NewMayfly(5, 20, 1)

	if _, _, err := optimizer.Run(shiftedSphere, []float64{0}, []float64{1, 1}, 2); err == nil {
		t.Error("Expected error for mismatched bounds")
	}
	if _, _, err := optimizer.Run(shiftedSphere, []float64{0, 0}, []float64{1, 2}, 2); err == nil {
		t.Error("Expected error for non-uniform bounds")
	}
}

func TestNewMayflyRaisesSmallPopulation(t *testing.T) {
	m := NewMayfly(5, 4, 1).(*MayflyAdapter)
	if m.popSize != MinMayflyPopulation {
		t.Errorf("Expected population %d, got %d", MinMayflyPopulation, m.popSize)
	}
}
