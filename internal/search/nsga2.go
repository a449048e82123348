package search

import (
	"math"
	"sort"

	"github.com/cwbudde/scenariosearch/internal/fitness"
	"github.com/cwbudde/scenariosearch/internal/scenario"
)

// individual is one member of a genetic population.
type individual struct {
	x        scenario.Vector
	f        fitness.Objectives
	rank     int
	crowding float64
}

// fastNonDominatedSort splits pop into fronts and sets each member's rank.
// Fronts hold indices into pop.
func fastNonDominatedSort(pop []*individual) [][]int {
	n := len(pop)
	dominatedBy := make([][]int, n)
	count := make([]int, n)

	var first []int
	for p := 0; p < n; p++ {
		for q := 0; q < n; q++ {
			if p == q {
				continue
			}
			if pop[p].f.Dominates(pop[q].f) {
				dominatedBy[p] = append(dominatedBy[p], q)
			} else if pop[q].f.Dominates(pop[p].f) {
				count[p]++
			}
		}
		if count[p] == 0 {
			pop[p].rank = 0
			first = append(first, p)
		}
	}

	var fronts [][]int
	current := first
	for rank := 0; len(current) > 0; rank++ {
		fronts = append(fronts, current)
		var next []int
		for _, p := range current {
			for _, q := range dominatedBy[p] {
				count[q]--
				if count[q] == 0 {
					pop[q].rank = rank + 1
					next = append(next, q)
				}
			}
		}
		current = next
	}
	return fronts
}

// assignCrowding sets the crowding distance of every member of front.
// Boundary members get +Inf; an objective with no spread is skipped.
func assignCrowding(pop []*individual, front []int) {
	for _, i := range front {
		pop[i].crowding = 0
	}
	if len(front) <= 2 {
		for _, i := range front {
			pop[i].crowding = math.Inf(1)
		}
		return
	}

	order := make([]int, len(front))
	for m := 0; m < fitness.NumObjectives; m++ {
		copy(order, front)
		sort.SliceStable(order, func(a, b int) bool {
			return pop[order[a]].f[m] < pop[order[b]].f[m]
		})

		span := pop[order[len(order)-1]].f[m] - pop[order[0]].f[m]
		if span == 0 {
			continue
		}
		pop[order[0]].crowding = math.Inf(1)
		pop[order[len(order)-1]].crowding = math.Inf(1)
		for k := 1; k < len(order)-1; k++ {
			pop[order[k]].crowding += (pop[order[k+1]].f[m] - pop[order[k-1]].f[m]) / span
		}
	}
}

// rankAndCrowd sorts pop into fronts and assigns crowding per front.
func rankAndCrowd(pop []*individual) [][]int {
	fronts := fastNonDominatedSort(pop)
	for _, front := range fronts {
		assignCrowding(pop, front)
	}
	return fronts
}

// survive keeps size members of pop, filling by rank and breaking the last
// front by descending crowding distance.
func survive(pop []*individual, size int) []*individual {
	fronts := rankAndCrowd(pop)
	next := make([]*individual, 0, size)
	for _, front := range fronts {
		if len(next)+len(front) <= size {
			for _, i := range front {
				next = append(next, pop[i])
			}
			continue
		}
		rest := append([]int(nil), front...)
		sort.SliceStable(rest, func(a, b int) bool {
			return pop[rest[a]].crowding > pop[rest[b]].crowding
		})
		for _, i := range rest[:size-len(next)] {
			next = append(next, pop[i])
		}
		break
	}
	return next
}

// better is the crowded-comparison operator.
func better(a, b *individual) bool {
	if a.rank != b.rank {
		return a.rank < b.rank
	}
	return a.crowding > b.crowding
}

// firstFront returns the rank-0 members of pop as a Front.
func firstFront(pop []*individual) Front {
	fronts := fastNonDominatedSort(pop)
	var front Front
	if len(fronts) == 0 {
		return front
	}
	for _, i := range fronts[0] {
		front.X = append(front.X, pop[i].x.Clone())
		front.F = append(front.F, pop[i].f)
	}
	return front
}
