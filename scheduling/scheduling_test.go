package scheduling

import (
	"errors"
	"testing"
	"time"

	"go.temporal.io/api/serviceerror"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/testsuite"

	"github.com/plantops/opsbrief/briefing"
	"github.com/plantops/opsbrief/tooling"
)

func testOrchestrator() *briefing.Orchestrator {
	return &briefing.Orchestrator{
		Registry:       tooling.NewRegistry(),
		Plant:          briefing.PlantModel{AreaOrder: []string{"stamping"}},
		TotalBudget:    time.Second,
		PerToolTimeout: 200 * time.Millisecond,
	}
}

func TestRunBriefingActivityHandoff(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestActivityEnvironment()

	acts := &Activities{Orchestrator: testOrchestrator()}
	env.RegisterActivityWithOptions(acts.RunBriefing, activity.RegisterOptions{Name: runBriefingActivityName})

	val, err := env.ExecuteActivity(runBriefingActivityName, Input{Kind: KindHandoff})
	if err != nil {
		t.Fatalf("activity failed: %v", err)
	}
	var out Result
	if err := val.Get(&out); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	// With no tools registered every section fails, but the handoff still
	// composes its four sections rather than erroring out.
	if out.SectionCount != 4 {
		t.Errorf("section count = %d, want 4", out.SectionCount)
	}
	if out.GeneratedAt.IsZero() {
		t.Error("result must carry the generation timestamp")
	}
}

func TestRunBriefingActivityUnknownKind(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestActivityEnvironment()

	acts := &Activities{Orchestrator: testOrchestrator()}
	env.RegisterActivityWithOptions(acts.RunBriefing, activity.RegisterOptions{Name: runBriefingActivityName})

	if _, err := env.ExecuteActivity(runBriefingActivityName, Input{Kind: "bogus"}); err == nil {
		t.Error("unknown briefing kinds must fail the activity")
	}
}

func TestIsAlreadyExists(t *testing.T) {
	if !isAlreadyExists(serviceerror.NewAlreadyExists("schedule exists")) {
		t.Error("serviceerror.AlreadyExists must be treated as already created")
	}
	if isAlreadyExists(errors.New("connection refused")) {
		t.Error("other errors must propagate")
	}
	if isAlreadyExists(nil) {
		t.Error("nil is not already-exists")
	}
}
