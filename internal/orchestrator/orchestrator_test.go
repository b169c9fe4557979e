package orchestrator

import (
	"context"
	"errors"
	"testing"

	"github.com/apexion-ai/orchestrator-kernel/internal/intent"
	"github.com/apexion-ai/orchestrator-kernel/internal/planner"
	"github.com/apexion-ai/orchestrator-kernel/internal/topology"
)

func classifyAs(k intent.Kind) func(context.Context, string) intent.Intent {
	return func(context.Context, string) intent.Intent {
		return intent.Intent{Kind: k, Confidence: 1}
	}
}

func okRunner(ctx context.Context, t planner.Task) (string, error) {
	return "ok:" + t.ID, nil
}

func TestHandleAtomicRequestSkipsApproval(t *testing.T) {
	o := &Orchestrator{
		Classify:  classifyAs(intent.Coding),
		Decompose: planner.HeuristicDecomposer{},
		Run:       okRunner,
	}
	result := o.Handle(context.Background(), "fix the off-by-one error in the parser")
	if result.State != StateDone {
		t.Fatalf("got %+v", result)
	}
	if len(result.TaskResults) != 1 {
		t.Fatalf("expected 1 task result, got %+v", result.TaskResults)
	}
}

func TestHandleMultiTaskRequiresApproval(t *testing.T) {
	called := false
	o := &Orchestrator{
		Classify:  classifyAs(intent.Coding),
		Decompose: planner.HeuristicDecomposer{},
		Run:       okRunner,
		ApprovalCallback: func(ctx context.Context, p planner.Plan) (Approval, error) {
			called = true
			return Approval{Decision: DecisionAccept}, nil
		},
	}
	result := o.Handle(context.Background(), "design the schema and then implement the migration and then write tests")
	if !called {
		t.Fatal("expected approval callback to be invoked for a multi-task plan")
	}
	if result.State != StateDone {
		t.Fatalf("got %+v", result)
	}
}

func TestHandleRejectedPlanFailsWithCancelledByUser(t *testing.T) {
	o := &Orchestrator{
		Classify:  classifyAs(intent.Coding),
		Decompose: planner.HeuristicDecomposer{},
		Run:       okRunner,
		ApprovalCallback: func(ctx context.Context, p planner.Plan) (Approval, error) {
			return Approval{Decision: DecisionReject}, nil
		},
	}
	result := o.Handle(context.Background(), "design the schema and then implement the migration and then write tests")
	if result.State != StateFailed || result.Failure != FailureCancelledByUser {
		t.Fatalf("got %+v", result)
	}
}

func TestHandleMissingApprovalCallbackFailsGracefully(t *testing.T) {
	o := &Orchestrator{
		Classify:  classifyAs(intent.Coding),
		Decompose: planner.HeuristicDecomposer{},
		Run:       okRunner,
	}
	result := o.Handle(context.Background(), "design the schema and then implement the migration and then write tests")
	if result.State != StateFailed || result.Failure != FailureCancelledByUser {
		t.Fatalf("got %+v", result)
	}
}

func TestHandleTaskFailurePropagatesToTerminalState(t *testing.T) {
	o := &Orchestrator{
		Classify:  classifyAs(intent.Coding),
		Decompose: planner.HeuristicDecomposer{},
		Run: func(ctx context.Context, t planner.Task) (string, error) {
			return "", errors.New("boom")
		},
	}
	result := o.Handle(context.Background(), "fix the crash in the scheduler")
	if result.State != StateFailed || result.Failure != FailureRunError {
		t.Fatalf("got %+v", result)
	}
}

func TestHandleEditedPlanReplacesOriginal(t *testing.T) {
	replacement := planner.Plan{
		Summary:  "edited",
		Tasks:    []planner.Task{{ID: "x1"}},
		Topology: planner.TopologySequential,
	}
	o := &Orchestrator{
		Classify:  classifyAs(intent.Coding),
		Decompose: planner.HeuristicDecomposer{},
		Run:       okRunner,
		ApprovalCallback: func(ctx context.Context, p planner.Plan) (Approval, error) {
			return Approval{Decision: DecisionEdit, Edited: replacement}, nil
		},
	}
	result := o.Handle(context.Background(), "design the schema and then implement the migration and then write tests")
	if result.State != StateDone || len(result.TaskResults) != 1 || result.TaskResults[0].TaskID != "x1" {
		t.Fatalf("got %+v", result)
	}
}
