package scheduler

import (
	"sort"

	"github.com/nexuscore/core/internal/pipeline/types"
)

// FilterCost is the optimizer's cost-model entry for one filter/map
// expression (spec.md §4.6): its estimated selectivity (fraction of input
// that survives) and estimated per-item cost, used to reorder commutative
// filters to minimize expected data volume. Zero value means "unknown,
// assume unit cost and full pass-through" so an unscored expression never
// gets reordered ahead of a scored one without reason.
type FilterCost struct {
	Selectivity float64
	Cost        float64
}

// CostTable maps a filter/map expression to its estimated cost, updatable
// from historical metrics (spec.md §4.6). Nil means every expression is
// treated as selectivity=1, cost=1 (no reordering benefit assumed).
type CostTable map[string]FilterCost

func (t CostTable) lookup(expr string) FilterCost {
	if t == nil {
		return FilterCost{Selectivity: 1, Cost: 1}
	}
	if c, ok := t[expr]; ok && c != (FilterCost{}) {
		return c
	}
	return FilterCost{Selectivity: 1, Cost: 1}
}

// Optimize applies the cost-model rewrites of spec.md §4.6 to plan in
// place and returns it: fuse adjacent pure Filter/Map stages, reorder
// commutative filters to front-load the most selective, and drop Subshell
// wrappers whose inner pipeline is a single stage. It never reorders
// across a stage with observable effects (Command, Redirect) and never
// changes the plan's external behavior (spec.md §4.6: "must preserve
// observable semantics").
func Optimize(plan *types.Plan, costs CostTable) *types.Plan {
	dropSubshellWrappers(plan)
	fuseAdjacentPureStages(plan)
	reorderCommutativeFilters(plan, costs)
	return plan
}

// dropSubshellWrappers replaces a Subshell stage whose flattened config
// describes exactly one inner stage with that inner stage's kind directly
// (the wrapper's Expr is left as it was; the flattened config carries no
// inner expression), preserving the wrapper's name and dependency edges so
// no downstream reference breaks.
func dropSubshellWrappers(plan *types.Plan) {
	for _, s := range plan.Stages {
		if s.Kind != types.StageSubshell {
			continue
		}
		if _, hasSecond := s.Config["substage_1_name"]; hasSecond {
			continue // more than one inner stage: keep the wrapper
		}
		innerType, ok := s.Config["substage_0_type"]
		if !ok {
			continue
		}
		s.Kind = types.StageKind(innerType)
		delete(s.Config, "substage_0_name")
		delete(s.Config, "substage_0_type")
	}
}

func isPureFilterOrMap(k types.StageKind) bool {
	return k == types.StageFilter || k == types.StageMap
}

// fuseAdjacentPureStages merges a chain A->B of pure Filter/Map stages
// into a single stage when B's only dependency is A and no other stage in
// the plan depends on A (fusing would otherwise drop A's standalone
// output). The fused stage keeps B's name/dependents and concatenates the
// two expressions.
func fuseAdjacentPureStages(plan *types.Plan) {
	changed := true
	for changed {
		changed = false
		for _, b := range plan.Stages {
			if !isPureFilterOrMap(b.Kind) || len(b.Dependencies) != 1 {
				continue
			}
			a, ok := plan.StageByName(b.Dependencies[0])
			if !ok || !isPureFilterOrMap(a.Kind) {
				continue
			}
			if countDependents(plan, a.Name) != 1 {
				continue // a is relied on by more than just b: don't fuse away its output
			}

			b.Expr = a.Expr + " && " + b.Expr
			b.Dependencies = a.Dependencies
			removeStage(plan, a.Name)
			changed = true
			break
		}
	}
}

func countDependents(plan *types.Plan, name string) int {
	n := 0
	for _, s := range plan.Stages {
		for _, dep := range s.Dependencies {
			if dep == name {
				n++
			}
		}
	}
	return n
}

func removeStage(plan *types.Plan, name string) {
	out := plan.Stages[:0]
	for _, s := range plan.Stages {
		if s.Name != name {
			out = append(out, s)
		}
	}
	plan.Stages = out
}

// reorderCommutativeFilters reorders a maximal run of consecutive pure
// Filter stages linked only to each other (A->B->C, nothing else
// depending on the interior stages) by ascending selectivity so the most
// restrictive filter runs first, minimizing expected data volume through
// the rest of the chain. Runs bounded by a Command/Redirect/Map stage are
// left untouched on either side.
func reorderCommutativeFilters(plan *types.Plan, costs CostTable) {
	runs := findFilterRuns(plan)
	for _, run := range runs {
		if len(run) < 2 {
			continue
		}
		// Stage names and dependency edges stay in place; only the filter
		// expressions move, so the run's entry dependency and exit
		// dependents are unchanged.
		exprs := make([]string, len(run))
		for i, s := range run {
			exprs[i] = s.Expr
		}
		sort.SliceStable(exprs, func(i, j int) bool {
			return costs.lookup(exprs[i]).Selectivity < costs.lookup(exprs[j]).Selectivity
		})
		for i, s := range run {
			s.Expr = exprs[i]
		}
	}
}

// findFilterRuns locates maximal chains of Filter stages where each
// interior stage has exactly one dependency and exactly one dependent
// (strictly linear, so reordering cannot change any other stage's view of
// the graph).
func findFilterRuns(plan *types.Plan) [][]*types.StagePlan {
	inChain := make(map[string]bool)
	var runs [][]*types.StagePlan

	for _, s := range plan.Stages {
		if s.Kind != types.StageFilter || inChain[s.Name] {
			continue
		}
		// walk forward from s while the chain stays linear
		run := []*types.StagePlan{s}
		inChain[s.Name] = true
		cur := s
		for {
			next := soleDependent(plan, cur.Name)
			if next == nil || next.Kind != types.StageFilter || len(next.Dependencies) != 1 {
				break
			}
			run = append(run, next)
			inChain[next.Name] = true
			cur = next
		}
		if len(run) >= 2 {
			runs = append(runs, run)
		}
	}
	return runs
}

// soleDependent returns the one stage depending on name, or nil if zero or
// more than one stage does.
func soleDependent(plan *types.Plan, name string) *types.StagePlan {
	var found *types.StagePlan
	for _, s := range plan.Stages {
		for _, dep := range s.Dependencies {
			if dep == name {
				if found != nil {
					return nil
				}
				found = s
			}
		}
	}
	return found
}
