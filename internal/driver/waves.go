package driver

import (
	"context"
	"fmt"
	"runtime"
	"slices"
	"sort"
	"strings"

	"fortio.org/safecast"
	"golang.org/x/sync/errgroup"

	"strata/internal/frontend"
	"strata/internal/ir"
)

type moduleID uint32

// moduleGraph holds import edges between the modules of one build.
// Edges run from a module to the modules importing it.
type moduleGraph struct {
	names []string
	ids   map[string]moduleID
	edges [][]moduleID
	indeg []int
}

type waves struct {
	batches [][]moduleID
	cycle   []string
}

func buildGraph(names []string, imports [][]string) (*moduleGraph, error) {
	g := &moduleGraph{
		names: names,
		ids:   make(map[string]moduleID, len(names)),
		edges: make([][]moduleID, len(names)),
		indeg: make([]int, len(names)),
	}
	for i, name := range names {
		if _, dup := g.ids[name]; dup {
			return nil, fmt.Errorf("driver: module %q requested twice", name)
		}
		id, err := safecast.Conv[moduleID](i)
		if err != nil {
			panic(fmt.Errorf("module id overflow: %w", err))
		}
		g.ids[name] = id
	}
	for to, imps := range imports {
		seen := make(map[moduleID]struct{}, len(imps))
		for _, imp := range imps {
			from, ok := g.ids[imp]
			if !ok {
				// внешняя зависимость, приходит через Request.Dependencies
				continue
			}
			if _, dup := seen[from]; dup || int(from) == to {
				continue
			}
			seen[from] = struct{}{}
			toID, err := safecast.Conv[moduleID](to)
			if err != nil {
				panic(fmt.Errorf("module id overflow: %w", err))
			}
			g.edges[from] = append(g.edges[from], toID)
			g.indeg[to]++
		}
	}
	for i := range g.edges {
		slices.Sort(g.edges[i])
	}
	return g, nil
}

// kahn groups modules into waves of mutually independent modules.
func (g *moduleGraph) kahn() waves {
	indeg := slices.Clone(g.indeg)
	var w waves
	current := make([]moduleID, 0, len(g.names))
	for i, d := range indeg {
		if d == 0 {
			current = append(current, moduleID(i))
		}
	}
	visited := 0
	for len(current) > 0 {
		w.batches = append(w.batches, current)
		next := make([]moduleID, 0)
		for _, id := range current {
			visited++
			for _, to := range g.edges[id] {
				indeg[to]--
				if indeg[to] == 0 {
					next = append(next, to)
				}
			}
		}
		slices.Sort(next)
		current = next
	}
	if visited != len(g.names) {
		for i, d := range indeg {
			if d > 0 {
				w.cycle = append(w.cycle, g.names[i])
			}
		}
		sort.Strings(w.cycle)
	}
	return w
}

// CompileAll compiles several modules of one build. Requests are analyzed
// first to learn module names and imports, then compiled wave by wave: a
// module starts once every module it imports from the same build has
// finished, and receives their final IR and descriptors as dependencies.
// Each request still gets its own symbol table and IR module; the built-in
// function family is shared. Results are returned in request order.
func CompileAll(ctx context.Context, reqs []*Request, jobs int) ([]*Result, error) {
	if jobs <= 0 {
		jobs = runtime.GOMAXPROCS(0)
	}
	if len(reqs) == 0 {
		return nil, nil
	}

	for _, req := range reqs {
		if req == nil || req.Analyzer == nil {
			return nil, ErrNoAnalyzer
		}
	}

	local := make([]Request, len(reqs))
	names := make([]string, len(reqs))
	imports := make([][]string, len(reqs))
	shared := ir.NewBuiltins()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(min(jobs, len(reqs)))
	for i, req := range reqs {
		local[i] = *req
		if local[i].Builtins == nil {
			local[i].Builtins = shared
		}
		g.Go(func() error {
			// Compile повторит отчёт и замер анализа на готовом результате
			a, err := analyze(gctx, req, nil, progress{})
			if err != nil {
				return err
			}
			names[i] = a.Module.Name
			imports[i] = a.Module.Imports
			local[i].Analyzer = frontend.Static(a)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	graph, err := buildGraph(names, imports)
	if err != nil {
		return nil, err
	}
	plan := graph.kahn()
	if len(plan.cycle) > 0 {
		return nil, fmt.Errorf("driver: import cycle between modules %s", strings.Join(plan.cycle, ", "))
	}

	results := make([]*Result, len(reqs))
	for _, batch := range plan.batches {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(min(jobs, len(batch)))
		for _, id := range batch {
			r := &local[id]
			deps := slices.Clone(r.Dependencies)
			seen := make(map[moduleID]struct{}, len(imports[id]))
			for _, imp := range imports[id] {
				up, ok := graph.ids[imp]
				if !ok || up == id {
					// самоимпорт отвергает checkAnalysis
					continue
				}
				if _, dup := seen[up]; dup {
					continue
				}
				seen[up] = struct{}{}
				deps = append(deps, results[up].Dependency())
			}
			r.Dependencies = deps
			g.Go(func() error {
				res, err := Compile(gctx, r)
				if err != nil {
					return err
				}
				// индексы уникальны для каждой горутины
				results[id] = res
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	}
	return results, nil
}
