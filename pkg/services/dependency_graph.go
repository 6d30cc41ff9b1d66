package services

import (
	"fmt"
	"slices"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/ekaya-inc/shapeshift-engine/pkg/apperrors"
	"github.com/ekaya-inc/shapeshift-engine/pkg/models"
)

// DependencyMap maps an entity name to the entities it must be processed after.
// Graph functions treat it as read-only.
type DependencyMap map[string][]string

// BuildDependencyMap derives the dependency map of a configuration: the union of
// each entity's source, foreign key entities and depends_on, without repeats.
func BuildDependencyMap(cfg *models.Configuration) DependencyMap {
	deps := make(DependencyMap, len(cfg.Entities))
	for _, name := range cfg.Names() {
		spec := cfg.Entities[name]
		var list []string
		add := func(dep string) {
			if dep != "" && !slices.Contains(list, dep) {
				list = append(list, dep)
			}
		}
		add(spec.Source)
		for _, fk := range spec.ForeignKeys {
			add(fk.Entity)
		}
		for _, d := range spec.DependsOn {
			add(d)
		}
		deps[name] = list
	}
	return deps
}

// Nodes returns every node in the map, including dependencies that have no
// entry of their own, sorted by name.
func (d DependencyMap) Nodes() []string {
	seen := make(map[string]bool, len(d))
	for n, deps := range d {
		seen[n] = true
		for _, dep := range deps {
			seen[dep] = true
		}
	}
	nodes := make([]string, 0, len(seen))
	for n := range seen {
		nodes = append(nodes, n)
	}
	sort.Strings(nodes)
	return nodes
}

// Dependents returns the inverted map: node -> entities that depend on it.
func (d DependencyMap) Dependents() map[string][]string {
	result := make(map[string][]string, len(d))
	for _, n := range d.Nodes() {
		for _, dep := range d[n] {
			result[dep] = append(result[dep], n)
		}
	}
	return result
}

// TransitiveDependencies returns roots plus everything they depend on,
// directly or indirectly, sorted by name.
func (d DependencyMap) TransitiveDependencies(roots []string) []string {
	seen := make(map[string]bool)
	stack := append([]string(nil), roots...)
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[n] {
			continue
		}
		seen[n] = true
		stack = append(stack, d[n]...)
	}
	result := make([]string, 0, len(seen))
	for n := range seen {
		result = append(result, n)
	}
	sort.Strings(result)
	return result
}

// Restrict returns the sub-map containing only the given nodes and the
// edges between them.
func (d DependencyMap) Restrict(nodes []string) DependencyMap {
	keep := make(map[string]bool, len(nodes))
	for _, n := range nodes {
		keep[n] = true
	}
	result := make(DependencyMap, len(nodes))
	for _, n := range nodes {
		var list []string
		for _, dep := range d[n] {
			if keep[dep] {
				list = append(list, dep)
			}
		}
		result[n] = list
	}
	return result
}

// FindCycles returns every cycle found by a depth-first walk. Each cycle is the
// path from the repeated node back to itself, so a self-dependency is [a, a].
// The walk restarts from every unvisited node, so disjoint cycles are all
// reported. It never fails; callers decide what a cycle means.
func FindCycles(deps DependencyMap) [][]string {
	visited := make(map[string]bool)
	onStack := make(map[string]bool)
	var path []string
	var cycles [][]string

	var visit func(node string)
	visit = func(node string) {
		visited[node] = true
		onStack[node] = true
		path = append(path, node)

		for _, dep := range deps[node] {
			if onStack[dep] {
				start := slices.Index(path, dep)
				cycle := append(slices.Clone(path[start:]), dep)
				cycles = append(cycles, cycle)
				continue
			}
			if !visited[dep] {
				visit(dep)
			}
		}

		path = path[:len(path)-1]
		onStack[node] = false
	}

	for _, node := range deps.Nodes() {
		if !visited[node] {
			visit(node)
		}
	}
	return cycles
}

// TopologicalSort orders nodes dependents-first: every entity appears before
// the entities it depends on. In-degree is the number of entities that list
// a node as a dependency; ties are broken first-in first-out, seeded in name
// order. The result is incomplete when the map contains cycles, so check
// FindCycles first.
func TopologicalSort(deps DependencyMap) []string {
	nodes := deps.Nodes()
	inDegree := make(map[string]int, len(nodes))
	for _, n := range nodes {
		for _, dep := range deps[n] {
			inDegree[dep]++
		}
	}

	queue := make([]string, 0, len(nodes))
	for _, n := range nodes {
		if inDegree[n] == 0 {
			queue = append(queue, n)
		}
	}

	order := make([]string, 0, len(nodes))
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		order = append(order, node)
		for _, dep := range deps[node] {
			inDegree[dep]--
			if inDegree[dep] == 0 {
				queue = append(queue, dep)
			}
		}
	}
	return order
}

// CalculateDepths measures how far each node sits behind the terminal outputs.
// Outputs nothing depends on have depth 0; a dependency is one deeper than
// its deepest dependent. order must be a dependents-first TopologicalSort result.
//
// With an empty order (the cycle case) the result is only an approximation:
// nodes with at least one dependency get 1, everything else 0.
func CalculateDepths(deps DependencyMap, order []string) map[string]int {
	depths := make(map[string]int)
	if len(order) == 0 {
		for _, n := range deps.Nodes() {
			if len(deps[n]) > 0 {
				depths[n] = 1
			} else {
				depths[n] = 0
			}
		}
		return depths
	}

	for _, n := range order {
		if _, ok := depths[n]; !ok {
			depths[n] = 0
		}
		for _, dep := range deps[n] {
			if d := depths[n] + 1; d > depths[dep] {
				depths[dep] = d
			}
		}
	}
	return depths
}

// CycleError reports the cycles that make a processing order impossible.
type CycleError struct {
	Cycles [][]string
}

func (e *CycleError) Error() string {
	parts := make([]string, len(e.Cycles))
	for i, c := range e.Cycles {
		parts[i] = strings.Join(c, " -> ")
	}
	return fmt.Sprintf("%d dependency cycle(s): %s", len(e.Cycles), strings.Join(parts, "; "))
}

func (e *CycleError) Unwrap() error { return apperrors.ErrCycleDetected }

// ProcessingOrder returns an order in which every entity comes after all of
// its dependencies, the reverse of TopologicalSort.
func ProcessingOrder(deps DependencyMap) ([]string, error) {
	if cycles := FindCycles(deps); len(cycles) > 0 {
		return nil, &CycleError{Cycles: cycles}
	}
	order := TopologicalSort(deps)
	slices.Reverse(order)
	return order, nil
}

// DependencyReport bundles the graph analysis of a configuration.
type DependencyReport struct {
	Dependencies    DependencyMap  `json:"dependencies"`
	Cycles          [][]string     `json:"cycles"`
	TopologicalSort []string       `json:"topological_order"`
	ProcessingOrder []string       `json:"processing_order"`
	Depths          map[string]int `json:"depths"`

	// DepthsApproximate is set when cycles forced the depth heuristic.
	DepthsApproximate bool `json:"depths_approximate"`
}

// AnalyzeDependencies runs cycle detection, ordering and depth calculation.
func AnalyzeDependencies(deps DependencyMap) *DependencyReport {
	report := &DependencyReport{
		Dependencies: deps,
		Cycles:       FindCycles(deps),
	}
	if len(report.Cycles) > 0 {
		report.Depths = CalculateDepths(deps, nil)
		report.DepthsApproximate = true
		return report
	}
	report.TopologicalSort = TopologicalSort(deps)
	report.ProcessingOrder = slices.Clone(report.TopologicalSort)
	slices.Reverse(report.ProcessingOrder)
	report.Depths = CalculateDepths(deps, report.TopologicalSort)
	return report
}

// LogDependencyReport logs a human-readable summary of the analysis.
func LogDependencyReport(logger *zap.Logger, report *DependencyReport) {
	logger.Info("Dependency graph analysis:")
	logger.Info(fmt.Sprintf("  Entities: %d", len(report.Dependencies.Nodes())))

	if len(report.Cycles) > 0 {
		for i, c := range report.Cycles {
			logger.Warn(fmt.Sprintf("  Cycle %d: %s", i+1, strings.Join(c, " -> ")))
		}
		logger.Warn("Depths are approximate while cycles exist")
		return
	}

	byDepth := make(map[int][]string)
	maxDepth := 0
	for n, d := range report.Depths {
		byDepth[d] = append(byDepth[d], n)
		maxDepth = max(maxDepth, d)
	}
	for d := maxDepth; d >= 0; d-- {
		names := byDepth[d]
		sort.Strings(names)
		logger.Info(fmt.Sprintf("  Depth %d (%d entities): %v", d, len(names), names))
	}
	logger.Info(fmt.Sprintf("Processing order: %v", report.ProcessingOrder))
}
