// Package topology executes an approved plan's tasks under one of four
// concurrency shapes. It generalizes agent/loop.go's executeToolCalls
// ordered-concurrent-execution primitive (single call inline, multiple
// calls via goroutines + index-ordered result slots) from tool-call level
// to task level, adding DAG layering (Kahn's algorithm) for the hybrid
// topology and a bounded one-shot rewrite hook for the centralized one.
package topology

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/apexion-ai/orchestrator-kernel/internal/planner"
)

// Status is a task's terminal state after a run.
type Status string

const (
	StatusDone    Status = "done"
	StatusFailed  Status = "failed"
	StatusSkipped Status = "skipped"
)

// Result is one task's outcome, always present in Plan-declared order in
// the final transcript regardless of completion order (spec.md §4.12's
// "deterministic aggregation" rule).
type Result struct {
	TaskID string
	Status Status
	Output string
	Err    error
}

// Runner executes a single task and returns its output or an error. It is
// supplied by the caller (the Agent Kernel, C13) so this package stays
// decoupled from provider/agent wiring.
type Runner func(ctx context.Context, t planner.Task) (string, error)

// Options tunes executor behavior.
type Options struct {
	MaxParallelTasks        int  // default 4
	CancelSiblingsOnFailure bool // parallel topology only

	// Coordinator, for TopologyCentralized, runs first and may return a
	// replacement task list for everything after it — a bounded one-shot
	// DAG mutation per spec.md §4.12.
	Coordinator func(ctx context.Context, coordinatorOutput string, remaining []planner.Task) []planner.Task
}

// Run executes p.Tasks under p.Topology and returns one Result per task,
// ordered to match p.Tasks regardless of actual completion order.
func Run(ctx context.Context, p planner.Plan, run Runner, opts Options) []Result {
	switch p.Topology {
	case planner.TopologyParallel:
		return runParallel(ctx, p.Tasks, run, opts)
	case planner.TopologyHybrid:
		return runHybrid(ctx, p.Tasks, run, opts)
	case planner.TopologyCentralized:
		return runCentralized(ctx, p.Tasks, run, opts)
	default:
		return runSequential(ctx, p.Tasks, run)
	}
}

// runSequential runs tasks strictly in order; a failure marks every
// downstream task skipped without running it.
func runSequential(ctx context.Context, tasks []planner.Task, run Runner) []Result {
	results := make([]Result, len(tasks))
	failed := false
	for i, t := range tasks {
		if failed {
			results[i] = Result{TaskID: t.ID, Status: StatusSkipped}
			continue
		}
		if ctx.Err() != nil {
			results[i] = Result{TaskID: t.ID, Status: StatusSkipped, Err: ctx.Err()}
			failed = true
			continue
		}
		out, err := run(ctx, t)
		if err != nil {
			results[i] = Result{TaskID: t.ID, Status: StatusFailed, Err: err}
			failed = true
			continue
		}
		results[i] = Result{TaskID: t.ID, Status: StatusDone, Output: out}
	}
	return results
}

// runParallel spawns every task concurrently (bounded by
// opts.MaxParallelTasks), preserving Plan-declared order in the returned
// slice. This is executeToolCalls' goroutines + ordered-result-slots
// pattern lifted to task granularity.
func runParallel(ctx context.Context, tasks []planner.Task, run Runner, opts Options) []Result {
	maxParallel := opts.MaxParallelTasks
	if maxParallel <= 0 {
		maxParallel = 4
	}

	results := make([]Result, len(tasks))
	sem := make(chan struct{}, maxParallel)
	var cancelled atomic.Bool
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	for i, t := range tasks {
		wg.Add(1)
		go func(idx int, task planner.Task) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			if cancelled.Load() {
				results[idx] = Result{TaskID: task.ID, Status: StatusSkipped}
				return
			}
			out, err := run(runCtx, task)
			if err != nil {
				results[idx] = Result{TaskID: task.ID, Status: StatusFailed, Err: err}
				if opts.CancelSiblingsOnFailure {
					cancelled.Store(true)
					cancel()
				}
				return
			}
			results[idx] = Result{TaskID: task.ID, Status: StatusDone, Output: out}
		}(i, t)
	}
	wg.Wait()
	return results
}

// runHybrid topologically sorts the DAG into layers (Kahn's algorithm);
// each layer runs in parallel and the next layer starts only once the
// previous layer has fully settled. A failed task skips every task that
// (transitively) depends on it, in any later layer.
func runHybrid(ctx context.Context, tasks []planner.Task, run Runner, opts Options) []Result {
	layers, err := layerDAG(tasks)
	if err != nil {
		results := make([]Result, len(tasks))
		for i, t := range tasks {
			results[i] = Result{TaskID: t.ID, Status: StatusFailed, Err: err}
		}
		return results
	}

	byID := make(map[string]planner.Task, len(tasks))
	order := make(map[string]int, len(tasks))
	for i, t := range tasks {
		byID[t.ID] = t
		order[t.ID] = i
	}

	results := make([]Result, len(tasks))
	failedOrSkipped := make(map[string]bool)

	maxParallel := opts.MaxParallelTasks
	if maxParallel <= 0 {
		maxParallel = 4
	}

	for _, layer := range layers {
		sem := make(chan struct{}, maxParallel)
		var wg sync.WaitGroup
		for _, id := range layer {
			t := byID[id]
			if dependsOnFailed(t, failedOrSkipped) {
				results[order[id]] = Result{TaskID: id, Status: StatusSkipped}
				failedOrSkipped[id] = true
				continue
			}
			wg.Add(1)
			go func(task planner.Task) {
				defer wg.Done()
				sem <- struct{}{}
				defer func() { <-sem }()
				out, err := run(ctx, task)
				if err != nil {
					results[order[task.ID]] = Result{TaskID: task.ID, Status: StatusFailed, Err: err}
					failedOrSkipped[task.ID] = true
					return
				}
				results[order[task.ID]] = Result{TaskID: task.ID, Status: StatusDone, Output: out}
			}(t)
		}
		wg.Wait()
	}
	return results
}

func dependsOnFailed(t planner.Task, failedOrSkipped map[string]bool) bool {
	for _, dep := range t.DependsOn {
		if failedOrSkipped[dep] {
			return true
		}
	}
	return false
}

// layerDAG groups tasks into dependency layers via Kahn's algorithm.
// Returns an error if the DAG has a cycle.
func layerDAG(tasks []planner.Task) ([][]string, error) {
	indegree := make(map[string]int, len(tasks))
	dependents := make(map[string][]string, len(tasks))
	ids := make(map[string]bool, len(tasks))
	for _, t := range tasks {
		ids[t.ID] = true
	}
	for _, t := range tasks {
		indegree[t.ID] = 0
	}
	for _, t := range tasks {
		for _, dep := range t.DependsOn {
			if !ids[dep] {
				continue // dangling dependency, ignored rather than failing the whole plan
			}
			indegree[t.ID]++
			dependents[dep] = append(dependents[dep], t.ID)
		}
	}

	var layers [][]string
	remaining := len(tasks)
	frontier := make([]string, 0)
	for _, t := range tasks {
		if indegree[t.ID] == 0 {
			frontier = append(frontier, t.ID)
		}
	}

	for len(frontier) > 0 {
		layers = append(layers, frontier)
		remaining -= len(frontier)
		var next []string
		for _, id := range frontier {
			for _, dep := range dependents[id] {
				indegree[dep]--
				if indegree[dep] == 0 {
					next = append(next, dep)
				}
			}
		}
		frontier = next
	}

	if remaining != 0 {
		return nil, fmt.Errorf("topology: dependency cycle detected among %d tasks", remaining)
	}
	return layers, nil
}

// runCentralized runs tasks[0] as a coordinator, then — if opts.Coordinator
// is set — lets it rewrite the remaining task list before running those
// under a hybrid layering. This is a bounded one-shot mutation: the
// coordinator cannot be invoked again for the rewritten tasks.
func runCentralized(ctx context.Context, tasks []planner.Task, run Runner, opts Options) []Result {
	if len(tasks) == 0 {
		return nil
	}
	coordinator := tasks[0]
	out, err := run(ctx, coordinator)
	coordResult := Result{TaskID: coordinator.ID, Status: StatusDone, Output: out}
	if err != nil {
		coordResult = Result{TaskID: coordinator.ID, Status: StatusFailed, Err: err}
		skipped := make([]Result, len(tasks))
		skipped[0] = coordResult
		for i := 1; i < len(tasks); i++ {
			skipped[i] = Result{TaskID: tasks[i].ID, Status: StatusSkipped}
		}
		return skipped
	}

	remaining := tasks[1:]
	if opts.Coordinator != nil {
		remaining = opts.Coordinator(ctx, out, remaining)
	}

	rest := runHybrid(ctx, remaining, run, opts)
	return append([]Result{coordResult}, rest...)
}
