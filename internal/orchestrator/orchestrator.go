// Package orchestrator drives the top-level state machine: classify a
// request, plan it, gate it on approval when warranted, run its tasks
// under the chosen topology, and aggregate a final structured result. It
// is new relative to the teacher (which has no multi-task run loop, only
// a single interactive session), but every stage it calls into —
// classification, decomposition, topology execution — is itself grounded
// on teacher code, per the sibling packages' own doc comments.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/apexion-ai/orchestrator-kernel/internal/intent"
	"github.com/apexion-ai/orchestrator-kernel/internal/planner"
	"github.com/apexion-ai/orchestrator-kernel/internal/topology"
)

// State is the Orchestrator's top-level state machine position, per
// spec.md §4.14: Idle -> Classifying -> Planning -> (Awaiting Approval |
// Running) -> Running -> Aggregating -> Done | Failed.
type State string

const (
	StateIdle             State = "idle"
	StateClassifying      State = "classifying"
	StatePlanning         State = "planning"
	StateAwaitingApproval State = "awaiting_approval"
	StateRunning          State = "running"
	StateAggregating      State = "aggregating"
	StateDone             State = "done"
	StateFailed           State = "failed"
)

// Decision is the caller's verdict from an Approval callback.
type Decision string

const (
	DecisionAccept Decision = "accept"
	DecisionReject Decision = "reject"
	DecisionEdit   Decision = "edit"
)

// Approval is passed to the injected approval callback: it describes the
// plan awaiting a decision and, for DecisionEdit, carries the caller's
// replacement plan back out.
type Approval struct {
	Plan     planner.Plan
	Decision Decision
	Edited   planner.Plan // only read when Decision == DecisionEdit
}

// ApprovalCallback is invoked once per run when planner.NeedsApproval
// returns true. It must not block indefinitely; ctx carries the run's
// cancellation.
type ApprovalCallback func(ctx context.Context, p planner.Plan) (Approval, error)

// FailureMode for ErrCancelledByUser vs. other failures (spec.md §4.11's
// "otherwise the run aborts with CancelledByUser").
type FailureMode string

const (
	FailureNone            FailureMode = ""
	FailureCancelledByUser FailureMode = "cancelled_by_user"
	FailurePlanInvalid     FailureMode = "plan_invalid"
	FailureRunError        FailureMode = "run_error"
)

// RunResult is the Orchestrator's final structured output: ordered task
// results plus a summary, per spec.md §4.14.
type RunResult struct {
	State       State
	Plan        planner.Plan
	TaskResults []topology.Result
	Summary     string
	Failure     FailureMode
	Err         error
}

// Orchestrator wires a Classifier, a Decomposer, and a task Runner into
// the full request -> result pipeline.
type Orchestrator struct {
	Classify          func(ctx context.Context, request string) intent.Intent
	Decompose         planner.Decomposer
	Run               topology.Runner
	Options           topology.Options
	GatingThreshold   int // plan_gating_threshold, default planner.DefaultGatingThreshold
	ApprovalCallback  ApprovalCallback
}

// Handle runs one request through the full state machine. The returned
// RunResult.State is always a terminal state (Done or Failed).
func (o *Orchestrator) Handle(ctx context.Context, request string) RunResult {
	state := StateClassifying
	k := o.Classify(ctx, request)

	state = StatePlanning
	plan, err := o.Decompose.Decompose(ctx, request, k.Kind)
	if err != nil {
		return RunResult{State: StateFailed, Failure: FailurePlanInvalid, Err: err}
	}
	if len(plan.Tasks) == 0 {
		return RunResult{State: StateFailed, Plan: plan, Failure: FailurePlanInvalid, Err: fmt.Errorf("planner produced an empty task list")}
	}

	if planner.NeedsApproval(plan, o.GatingThreshold) {
		state = StateAwaitingApproval
		if o.ApprovalCallback == nil {
			return RunResult{State: StateFailed, Plan: plan, Failure: FailureCancelledByUser, Err: fmt.Errorf("plan requires approval but no approval callback is configured")}
		}
		approval, err := o.ApprovalCallback(ctx, plan)
		if err != nil {
			return RunResult{State: StateFailed, Plan: plan, Failure: FailureRunError, Err: err}
		}
		switch approval.Decision {
		case DecisionReject:
			return RunResult{State: StateFailed, Plan: plan, Failure: FailureCancelledByUser, Err: fmt.Errorf("plan rejected by approval callback")}
		case DecisionEdit:
			plan = approval.Edited
			if len(plan.Tasks) == 0 {
				return RunResult{State: StateFailed, Plan: plan, Failure: FailurePlanInvalid, Err: fmt.Errorf("edited plan is empty")}
			}
		case DecisionAccept:
			// plan unchanged
		default:
			return RunResult{State: StateFailed, Plan: plan, Failure: FailureCancelledByUser, Err: fmt.Errorf("unrecognized approval decision %q", approval.Decision)}
		}
	}

	state = StateRunning
	if ctx.Err() != nil {
		return RunResult{State: StateFailed, Plan: plan, Failure: FailureRunError, Err: ctx.Err()}
	}
	results := topology.Run(ctx, plan, o.Run, o.Options)

	state = StateAggregating
	summary := summarize(plan, results)

	state = StateDone
	for _, r := range results {
		if r.Status == topology.StatusFailed {
			state = StateFailed
		}
	}

	failure := FailureNone
	var aggErr error
	if state == StateFailed {
		failure = FailureRunError
		aggErr = fmt.Errorf("one or more tasks failed")
	}

	return RunResult{
		State:       state,
		Plan:        plan,
		TaskResults: results,
		Summary:     summary,
		Failure:     failure,
		Err:         aggErr,
	}
}

func summarize(p planner.Plan, results []topology.Result) string {
	done, failed, skipped := 0, 0, 0
	for _, r := range results {
		switch r.Status {
		case topology.StatusDone:
			done++
		case topology.StatusFailed:
			failed++
		case topology.StatusSkipped:
			skipped++
		}
	}
	return fmt.Sprintf("%s: %d done, %d failed, %d skipped (topology=%s)", p.Summary, done, failed, skipped, p.Topology)
}

// Deadline computes a per-task deadline context, per spec.md §5's
// "each task has a deadline" cancellation model.
func Deadline(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		d = 5 * time.Minute
	}
	return context.WithTimeout(ctx, d)
}
