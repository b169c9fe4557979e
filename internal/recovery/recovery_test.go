package recovery

import (
	"context"
	"encoding/json"
	"testing"
)

type fakeRegistry struct{ known map[string]bool }

func (f fakeRegistry) Has(name string) bool { return f.known[name] }

func TestCategorizeErrorClassifiesKinds(t *testing.T) {
	cases := map[string]ErrorKind{
		"Error: unknown tool 'fetch_url'":        ErrorUnknownTool,
		"open foo.go: no such file or directory": ErrorMissingFile,
		"invalid params: file_path is required":  ErrorParameter,
		"permission denied for bash":              ErrorPermission,
		"rate_limit exceeded, please retry":       ErrorTransient,
		"something weird happened":                ErrorOther,
	}
	for msg, want := range cases {
		if got := CategorizeError(msg); got != want {
			t.Errorf("CategorizeError(%q) = %v, want %v", msg, got, want)
		}
	}
}

func TestDiagnoseRepairsUnknownToolName(t *testing.T) {
	reg := fakeRegistry{known: map[string]bool{"read_file": true}}
	rc := Context{ToolName: "cat", ErrorKind: ErrorUnknownTool}
	d, err := Diagnose(context.Background(), rc, reg, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.GiveUp || d.CorrectedTool != "read_file" {
		t.Fatalf("got %+v", d)
	}
}

func TestDiagnoseRepairsParameterArgs(t *testing.T) {
	reg := fakeRegistry{known: map[string]bool{"read_file": true}}
	rc := Context{ToolName: "read_file", Args: []byte(`{"path":"main.go"}`), ErrorKind: ErrorParameter}
	d, err := Diagnose(context.Background(), rc, reg, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.CorrectedArgs == nil {
		t.Fatal("expected corrected args")
	}
	var m map[string]string
	json.Unmarshal(d.CorrectedArgs, &m)
	if m["file_path"] != "main.go" {
		t.Fatalf("got %+v", m)
	}
}

func TestDiagnoseGivesUpOnPermissionError(t *testing.T) {
	reg := fakeRegistry{}
	rc := Context{ToolName: "bash", ErrorKind: ErrorPermission}
	d, err := Diagnose(context.Background(), rc, reg, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !d.GiveUp {
		t.Fatal("expected give up on permission error")
	}
}

func TestDiagnoseTransientSkipsModelRoundTrip(t *testing.T) {
	reg := fakeRegistry{}
	calledAsk := false
	ask := func(context.Context, Context) (Diagnosis, error) {
		calledAsk = true
		return Diagnosis{}, nil
	}
	rc := Context{ToolName: "bash", ErrorKind: ErrorTransient}
	d, err := Diagnose(context.Background(), rc, reg, ask)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calledAsk {
		t.Fatal("transient errors should not invoke the model round-trip")
	}
	if d.RetryDelay <= 0 {
		t.Fatal("expected a retry delay for transient errors")
	}
}

func TestAttemptsGivesUpImmediatelyOnPermissionError(t *testing.T) {
	reg := fakeRegistry{}
	attempts := 0
	execute := func(ctx context.Context, toolName string, args json.RawMessage) (bool, string) {
		attempts++
		return false, "permission denied"
	}
	ok, diagnoses := Attempts(context.Background(), Context{ToolName: "bash", ErrorKind: ErrorPermission}, reg, nil, execute, 2)
	if ok {
		t.Fatal("expected failure")
	}
	if len(diagnoses) != 1 {
		t.Fatalf("expected give-up on first diagnosis (permission), got %d diagnoses", len(diagnoses))
	}
	if attempts != 0 {
		t.Fatalf("execute should never run after an immediate give-up, got %d calls", attempts)
	}
}

func TestAttemptsSucceedsAfterRepair(t *testing.T) {
	reg := fakeRegistry{known: map[string]bool{"read_file": true}}
	calls := 0
	execute := func(ctx context.Context, toolName string, args json.RawMessage) (bool, string) {
		calls++
		if toolName == "read_file" {
			return true, ""
		}
		return false, "unknown tool"
	}
	ok, diagnoses := Attempts(context.Background(), Context{ToolName: "cat", ErrorKind: ErrorUnknownTool}, reg, nil, execute, 2)
	if !ok {
		t.Fatalf("expected success, diagnoses=%+v", diagnoses)
	}
	if calls != 1 {
		t.Fatalf("expected exactly one execute call after repair, got %d", calls)
	}
}

func TestLoopDetectorEscalatesOnRepeatedFailures(t *testing.T) {
	d := NewLoopDetector()
	batch := []Context{{ToolName: "bash", Args: []byte(`{"command":"false"}`)}}

	if a := d.Check(batch); a != ActionNone {
		t.Fatalf("attempt 1: got %v", a)
	}
	if a := d.Check(batch); a != ActionWarn {
		t.Fatalf("attempt 2: expected warn, got %v", a)
	}
	d.Check(batch)
	if a := d.Check(batch); a != ActionStop {
		t.Fatalf("attempt 4: expected stop, got %v", a)
	}
}

func TestLoopDetectorResetsOnDifferentBatch(t *testing.T) {
	d := NewLoopDetector()
	a := []Context{{ToolName: "bash", Args: []byte(`{"command":"false"}`)}}
	b := []Context{{ToolName: "bash", Args: []byte(`{"command":"true"}`)}}

	d.Check(a)
	d.Check(a)
	if action := d.Check(b); action != ActionNone {
		t.Fatalf("different batch should reset streak, got %v", action)
	}
}
