package topology

import (
	"context"
	"errors"
	"testing"

	"github.com/apexion-ai/orchestrator-kernel/internal/planner"
)

func TestRunSequentialSkipsDownstreamOnFailure(t *testing.T) {
	tasks := []planner.Task{{ID: "a"}, {ID: "b"}, {ID: "c"}}
	run := func(ctx context.Context, t planner.Task) (string, error) {
		if t.ID == "b" {
			return "", errors.New("boom")
		}
		return "ok:" + t.ID, nil
	}
	results := Run(context.Background(), planner.Plan{Tasks: tasks, Topology: planner.TopologySequential}, run, Options{})
	if results[0].Status != StatusDone {
		t.Fatalf("task a: got %+v", results[0])
	}
	if results[1].Status != StatusFailed {
		t.Fatalf("task b: got %+v", results[1])
	}
	if results[2].Status != StatusSkipped {
		t.Fatalf("task c: got %+v", results[2])
	}
}

func TestRunParallelPreservesDeclaredOrder(t *testing.T) {
	tasks := []planner.Task{{ID: "a"}, {ID: "b"}, {ID: "c"}}
	run := func(ctx context.Context, t planner.Task) (string, error) {
		return "ok:" + t.ID, nil
	}
	results := Run(context.Background(), planner.Plan{Tasks: tasks, Topology: planner.TopologyParallel}, run, Options{})
	for i, want := range []string{"a", "b", "c"} {
		if results[i].TaskID != want {
			t.Fatalf("index %d: got %+v", i, results)
		}
	}
}

func TestRunParallelOneFailureDoesNotCancelSiblingsByDefault(t *testing.T) {
	tasks := []planner.Task{{ID: "a"}, {ID: "b"}}
	run := func(ctx context.Context, t planner.Task) (string, error) {
		if t.ID == "a" {
			return "", errors.New("boom")
		}
		return "ok", nil
	}
	results := Run(context.Background(), planner.Plan{Tasks: tasks, Topology: planner.TopologyParallel}, run, Options{})
	if results[0].Status != StatusFailed {
		t.Fatalf("task a: got %+v", results[0])
	}
	if results[1].Status != StatusDone {
		t.Fatalf("task b should still complete, got %+v", results[1])
	}
}

func TestRunHybridLayersAndSkipsTransitiveDependents(t *testing.T) {
	tasks := []planner.Task{
		{ID: "a"},
		{ID: "b"},
		{ID: "c", DependsOn: []string{"a"}},
		{ID: "d", DependsOn: []string{"c"}},
	}
	run := func(ctx context.Context, t planner.Task) (string, error) {
		if t.ID == "a" {
			return "", errors.New("boom")
		}
		return "ok:" + t.ID, nil
	}
	results := Run(context.Background(), planner.Plan{Tasks: tasks, Topology: planner.TopologyHybrid}, run, Options{})

	byID := make(map[string]Result, len(results))
	for _, r := range results {
		byID[r.TaskID] = r
	}
	if byID["a"].Status != StatusFailed {
		t.Fatalf("a: got %+v", byID["a"])
	}
	if byID["b"].Status != StatusDone {
		t.Fatalf("b (independent) should complete, got %+v", byID["b"])
	}
	if byID["c"].Status != StatusSkipped {
		t.Fatalf("c (depends on failed a) should be skipped, got %+v", byID["c"])
	}
	if byID["d"].Status != StatusSkipped {
		t.Fatalf("d (transitively depends on failed a) should be skipped, got %+v", byID["d"])
	}
}

func TestRunCentralizedSkipsAllOnCoordinatorFailure(t *testing.T) {
	tasks := []planner.Task{{ID: "coord"}, {ID: "a"}, {ID: "b"}}
	run := func(ctx context.Context, t planner.Task) (string, error) {
		if t.ID == "coord" {
			return "", errors.New("coordinator failed")
		}
		return "ok", nil
	}
	results := Run(context.Background(), planner.Plan{Tasks: tasks, Topology: planner.TopologyCentralized}, run, Options{})
	if results[0].Status != StatusFailed {
		t.Fatalf("coordinator: got %+v", results[0])
	}
	if results[1].Status != StatusSkipped || results[2].Status != StatusSkipped {
		t.Fatalf("downstream tasks should be skipped, got %+v", results[1:])
	}
}

func TestRunCentralizedAppliesCoordinatorRewrite(t *testing.T) {
	tasks := []planner.Task{{ID: "coord"}, {ID: "a"}}
	run := func(ctx context.Context, t planner.Task) (string, error) {
		return "ok:" + t.ID, nil
	}
	rewritten := false
	opts := Options{Coordinator: func(ctx context.Context, out string, remaining []planner.Task) []planner.Task {
		rewritten = true
		return []planner.Task{{ID: "rewritten"}}
	}}
	results := Run(context.Background(), planner.Plan{Tasks: tasks, Topology: planner.TopologyCentralized}, run, opts)
	if !rewritten {
		t.Fatal("expected coordinator rewrite hook to run")
	}
	if len(results) != 2 || results[1].TaskID != "rewritten" {
		t.Fatalf("got %+v", results)
	}
}

func TestLayerDAGDetectsCycle(t *testing.T) {
	tasks := []planner.Task{
		{ID: "a", DependsOn: []string{"b"}},
		{ID: "b", DependsOn: []string{"a"}},
	}
	_, err := layerDAG(tasks)
	if err == nil {
		t.Fatal("expected cycle detection error")
	}
}
