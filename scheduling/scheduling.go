// Package scheduling is an optional Temporal-backed durable trigger for the
// three recurring briefing kinds (plant, EOD, shift handoff). It owns no
// briefing content itself: workflows run a single activity that calls into
// briefing.Orchestrator and returns the result for the caller's own
// persistence/delivery layer.
package scheduling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.temporal.io/api/serviceerror"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/client"
	temporalotel "go.temporal.io/sdk/contrib/opentelemetry"
	"go.temporal.io/sdk/interceptor"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/worker"
	"go.temporal.io/sdk/workflow"

	"github.com/plantops/opsbrief/briefing"
)

const (
	PlantBriefingWorkflowName = "opsbrief.plant_briefing"
	EODSummaryWorkflowName    = "opsbrief.eod_summary"
	ShiftHandoffWorkflowName  = "opsbrief.shift_handoff"

	runBriefingActivityName = "opsbrief.run_briefing_activity"
)

// Kind identifies which recurring briefing a schedule triggers.
type Kind string

const (
	KindPlant   Kind = "plant"
	KindEOD     Kind = "eod"
	KindHandoff Kind = "handoff"
)

// Input is the workflow input for every recurring briefing kind. Only the
// fields relevant to Kind are read.
type Input struct {
	Kind           Kind
	AreaPreference []string
	UserID         string
	TargetDate     time.Time
}

// Result is what the activity (and therefore the workflow) returns.
type Result struct {
	CompletionPercentage  float64
	SectionCount          int
	ToolFailures          []string
	TotalDurationEstimate float64
	GeneratedAt           time.Time
}

func toResult(b briefing.Briefing) Result {
	return Result{
		CompletionPercentage:  b.CompletionPercentage,
		SectionCount:          len(b.Sections),
		ToolFailures:          b.ToolFailures,
		TotalDurationEstimate: b.TotalDurationEstimate,
		GeneratedAt:           b.GeneratedAt,
	}
}

// Activities bundles the orchestrator dependency the activity needs. It is
// registered on a Temporal worker via RegisterOn.
type Activities struct {
	Orchestrator *briefing.Orchestrator
}

// RunBriefing is the single activity every recurring workflow delegates to.
// Activities run outside workflow determinism constraints, so this is where
// the actual tool fan-out happens.
func (a *Activities) RunBriefing(ctx context.Context, in Input) (Result, error) {
	logger := activity.GetLogger(ctx)
	logger.Info("running scheduled briefing", "kind", in.Kind)

	switch in.Kind {
	case KindPlant:
		return toResult(a.Orchestrator.GeneratePlantBriefing(ctx, in.AreaPreference)), nil
	case KindEOD:
		target := in.TargetDate
		if target.IsZero() {
			target = time.Now().UTC()
		}
		return toResult(a.Orchestrator.GenerateEODSummary(ctx, in.UserID, target)), nil
	case KindHandoff:
		return toResult(a.Orchestrator.SynthesizeShiftHandoff(ctx)), nil
	default:
		return Result{}, fmt.Errorf("scheduling: unknown briefing kind %q", in.Kind)
	}
}

// PlantBriefingWorkflow, EODSummaryWorkflow, and ShiftHandoffWorkflow are
// thin deterministic wrappers around the single RunBriefing activity, each
// with the activity-level timeout matching that briefing's own budget.
func PlantBriefingWorkflow(ctx workflow.Context, in Input) (Result, error) {
	return runBriefingWorkflow(ctx, in, 35*time.Second)
}

func EODSummaryWorkflow(ctx workflow.Context, in Input) (Result, error) {
	return runBriefingWorkflow(ctx, in, 35*time.Second)
}

func ShiftHandoffWorkflow(ctx workflow.Context, in Input) (Result, error) {
	return runBriefingWorkflow(ctx, in, 20*time.Second)
}

func runBriefingWorkflow(ctx workflow.Context, in Input, startToClose time.Duration) (Result, error) {
	ao := workflow.ActivityOptions{StartToCloseTimeout: startToClose}
	ctx = workflow.WithActivityOptions(ctx, ao)
	var out Result
	err := workflow.ExecuteActivity(ctx, runBriefingActivityName, in).Get(ctx, &out)
	return out, err
}

// Dial connects a Temporal client with the OpenTelemetry tracing interceptor
// installed, so scheduled briefing runs carry spans through the same global
// OTel providers the rest of opsbrief reports to.
func Dial(hostPort, namespace string) (client.Client, error) {
	tracer, err := temporalotel.NewTracingInterceptor(temporalotel.TracerOptions{})
	if err != nil {
		return nil, fmt.Errorf("scheduling: configure tracing interceptor: %w", err)
	}
	return client.Dial(client.Options{
		HostPort:     hostPort,
		Namespace:    namespace,
		Interceptors: []interceptor.ClientInterceptor{tracer},
	})
}

// NewWorker builds a worker on taskQueue with the three briefing workflows
// and their shared activity registered.
func NewWorker(c client.Client, taskQueue string, acts *Activities) worker.Worker {
	w := worker.New(c, taskQueue, worker.Options{})
	RegisterOn(w, acts)
	return w
}

// RegisterOn registers the three workflows and the shared activity on w,
// using opsbrief's fixed workflow/activity names.
func RegisterOn(w worker.Worker, acts *Activities) {
	w.RegisterWorkflowWithOptions(PlantBriefingWorkflow, workflow.RegisterOptions{Name: PlantBriefingWorkflowName})
	w.RegisterWorkflowWithOptions(EODSummaryWorkflow, workflow.RegisterOptions{Name: EODSummaryWorkflowName})
	w.RegisterWorkflowWithOptions(ShiftHandoffWorkflow, workflow.RegisterOptions{Name: ShiftHandoffWorkflowName})
	w.RegisterActivityWithOptions(acts.RunBriefing, activity.RegisterOptions{Name: runBriefingActivityName})
}

// ScheduleSpec describes one recurring briefing's Temporal Schedule.
type ScheduleSpec struct {
	ScheduleID string
	Workflow   string
	TaskQueue  string
	Input      Input
	// CronExpression is a standard 5-field cron expression in the
	// schedule's own timezone (set via client.ScheduleSpec.TimeZoneName
	// when constructing the Temporal schedule, not modeled here).
	CronExpression string
}

// EnsureSchedule creates spec's Temporal Schedule if it does not already
// exist; an existing schedule with the same ScheduleID is left untouched,
// since recurring triggers are expected to be idempotent deployment-time
// setup rather than something opsbrief reconciles continuously.
func EnsureSchedule(ctx context.Context, c client.Client, spec ScheduleSpec) error {
	sched := c.ScheduleClient()
	_, err := sched.Create(ctx, client.ScheduleOptions{
		ID: spec.ScheduleID,
		Spec: client.ScheduleSpec{
			CronExpressions: []string{spec.CronExpression},
		},
		Action: &client.ScheduleWorkflowAction{
			ID:        spec.ScheduleID + "-run",
			Workflow:  spec.Workflow,
			TaskQueue: spec.TaskQueue,
			Args:      []any{spec.Input},
		},
	})
	if err != nil {
		if isAlreadyExists(err) {
			return nil
		}
		return fmt.Errorf("scheduling: create schedule %s: %w", spec.ScheduleID, err)
	}
	return nil
}

func isAlreadyExists(err error) bool {
	var alreadyExists *serviceerror.AlreadyExists
	return errors.As(err, &alreadyExists) || errors.Is(err, temporal.ErrScheduleAlreadyRunning)
}
