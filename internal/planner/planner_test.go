package planner

import (
	"context"
	"testing"

	"github.com/apexion-ai/orchestrator-kernel/internal/intent"
)

func TestHeuristicDecomposerPassesThroughAtomicRequest(t *testing.T) {
	p, err := HeuristicDecomposer{}.Decompose(context.Background(), "fix the null pointer bug in parser.go", intent.Coding)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(p.Tasks) != 1 || p.Topology != TopologySequential {
		t.Fatalf("got %+v", p)
	}
}

func TestHeuristicDecomposerSplitsCompositeRequest(t *testing.T) {
	p, err := HeuristicDecomposer{}.Decompose(context.Background(), "design the schema and then implement the migration and then test it", intent.Coding)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(p.Tasks) != 3 {
		t.Fatalf("expected 3 tasks, got %+v", p.Tasks)
	}
	if p.Topology != TopologySequential {
		t.Fatalf("expected sequential topology for a strict chain, got %s", p.Topology)
	}
	for i := 1; i < len(p.Tasks); i++ {
		if len(p.Tasks[i].DependsOn) != 1 || p.Tasks[i].DependsOn[0] != p.Tasks[i-1].ID {
			t.Fatalf("task %d should depend on previous task, got %+v", i, p.Tasks[i])
		}
	}
}

func TestNeedsApprovalByTaskCount(t *testing.T) {
	p := Plan{Tasks: []Task{{ID: "t1"}, {ID: "t2"}}}
	if !NeedsApproval(p, DefaultGatingThreshold) {
		t.Fatal("expected approval required at the gating threshold")
	}
}

func TestNeedsApprovalByCriticalTask(t *testing.T) {
	p := Plan{Tasks: []Task{{ID: "t1", Critical: true}}}
	if !NeedsApproval(p, DefaultGatingThreshold) {
		t.Fatal("expected approval required for a single critical task")
	}
}

func TestNeedsApprovalFalseForSingleNonCriticalTask(t *testing.T) {
	p := Plan{Tasks: []Task{{ID: "t1"}}}
	if NeedsApproval(p, DefaultGatingThreshold) {
		t.Fatal("expected no approval needed for one non-critical task")
	}
}

func TestTopologyForTasksDetectsParallel(t *testing.T) {
	tasks := []Task{{ID: "a"}, {ID: "b"}, {ID: "c"}}
	if got := TopologyForTasks(tasks); got != TopologyParallel {
		t.Fatalf("expected parallel for independent tasks, got %s", got)
	}
}

func TestTopologyForTasksDetectsHybrid(t *testing.T) {
	tasks := []Task{
		{ID: "a"},
		{ID: "b"},
		{ID: "c", DependsOn: []string{"a", "b"}},
	}
	if got := TopologyForTasks(tasks); got != TopologyHybrid {
		t.Fatalf("expected hybrid for a mixed DAG, got %s", got)
	}
}

func TestModelDecomposerFallsBackOnAskError(t *testing.T) {
	md := ModelDecomposer{Ask: func(ctx context.Context, sys, user string) (string, error) {
		return "", context.DeadlineExceeded
	}}
	p, err := md.Decompose(context.Background(), "refactor the router module", intent.Refactor)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(p.Tasks) != 1 {
		t.Fatalf("expected heuristic fallback single task, got %+v", p.Tasks)
	}
}

func TestModelDecomposerParsesFencedPlan(t *testing.T) {
	md := ModelDecomposer{Ask: func(ctx context.Context, sys, user string) (string, error) {
		return "```json\n{\"summary\":\"do things\",\"tasks\":[{\"id\":\"t1\",\"description\":\"explore\",\"agent_kind\":\"explore\"},{\"id\":\"t2\",\"description\":\"code\",\"agent_kind\":\"code\",\"depends_on\":[\"t1\"]}]}\n```", nil
	}}
	p, err := md.Decompose(context.Background(), "investigate and fix the bug", intent.Coding)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(p.Tasks) != 2 || p.Tasks[1].DependsOn[0] != "t1" {
		t.Fatalf("got %+v", p.Tasks)
	}
}
