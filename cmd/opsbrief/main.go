package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/v2/mongo"
	mongooptions "go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.temporal.io/sdk/worker"
	"goa.design/clue/log"
	"goa.design/pulse/rmap"

	"github.com/plantops/opsbrief/actionengine"
	"github.com/plantops/opsbrief/briefing"
	"github.com/plantops/opsbrief/cache"
	"github.com/plantops/opsbrief/cache/rediscache"
	"github.com/plantops/opsbrief/config"
	"github.com/plantops/opsbrief/gateway"
	"github.com/plantops/opsbrief/gateway/memgateway"
	"github.com/plantops/opsbrief/gateway/mongogateway"
	"github.com/plantops/opsbrief/grounding"
	"github.com/plantops/opsbrief/idgen"
	"github.com/plantops/opsbrief/llmclient"
	"github.com/plantops/opsbrief/llmclient/anthropicclient"
	"github.com/plantops/opsbrief/llmclient/bedrockclient"
	"github.com/plantops/opsbrief/llmclient/openaiclient"
	"github.com/plantops/opsbrief/opsmodel"
	"github.com/plantops/opsbrief/scheduling"
	"github.com/plantops/opsbrief/telemetry"
	"github.com/plantops/opsbrief/tooling"
	"github.com/plantops/opsbrief/tools"
)

func main() {
	var (
		configF = flag.String("config", "opsbrief.yaml", "Path to the YAML configuration file")
		kindF   = flag.String("briefing", "plant", "What to generate (plant, supervisor, eod, handoff, actions, ground, serve)")
		userF   = flag.String("user", "demo-user", "User id the briefing is generated for")
		dateF   = flag.String("date", "", "Target date (YYYY-MM-DD); eod defaults to today, actions to yesterday")
		dbgF    = flag.Bool("debug", false, "Enable debug logging")
	)
	flag.Parse()

	format := log.FormatJSON
	if log.IsTerminal() {
		format = log.FormatTerminal
	}
	ctx := log.Context(context.Background(), log.WithFormat(format))
	if *dbgF {
		ctx = log.Context(ctx, log.WithDebug())
	}

	cfg, err := config.Load(*configF)
	if err != nil {
		log.Fatal(ctx, err)
	}
	cfg = config.LoadFromEnv(cfg)

	logger, metrics, _ := telemetry.NewClue()

	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	}

	gw, cleanup, err := buildGateway(ctx, cfg)
	if err != nil {
		log.Fatal(ctx, err)
	}
	defer cleanup()
	gw = gateway.NewRetryPolicy(gw, gateway.WithAdaptiveLimiter(buildGatewayLimiter(ctx, rdb)))

	store := buildCache(cfg, metrics, rdb)

	engine := actionengine.New(gw, actionengine.Thresholds{
		TargetOEE:                cfg.ActionEngine.TargetOEEPercentage,
		LossThreshold:            cfg.ActionEngine.FinancialLossThreshold,
		OEEHighGapThreshold:      cfg.ActionEngine.OEEHighGapThreshold,
		OEEMediumGapThreshold:    cfg.ActionEngine.OEEMediumGapThreshold,
		FinancialHighThreshold:   cfg.ActionEngine.FinancialHighThreshold,
		FinancialMediumThreshold: cfg.ActionEngine.FinancialMediumThreshold,
	})

	registry := buildRegistry(gw, engine, store, *userF)

	orch := &briefing.Orchestrator{
		Registry:       registry,
		Plant:          buildPlantModel(ctx, gw),
		Log:            logger,
		Metrics:        metrics,
		TotalBudget:    cfg.Orchestrator.TotalTimeout(),
		PerToolTimeout: cfg.Orchestrator.PerToolTimeout(),
	}

	llm, err := buildLLM(cfg)
	if err != nil {
		log.Print(ctx, log.KV{K: "llm", V: "disabled: " + err.Error()})
	}

	// Every generated artifact leaves an audit trail entry recording who asked
	// for what; the sink is the gateway's best-effort hook.
	audit := func(action, subjectType, subjectID string) {
		gw.RecordAudit(ctx, opsmodel.AuditTrailEntry{
			ID:          idgen.New("aud"),
			OccurredAt:  time.Now().UTC(),
			Actor:       *userF,
			Action:      action,
			SubjectType: subjectType,
			SubjectID:   subjectID,
		})
	}

	switch *kindF {
	case "ground":
		audit("question_grounded", "question", truncateSubject(flag.Arg(0)))
		emit(ctx, groundText(ctx, gw, llm, flag.Arg(0)))
	case "plant":
		audit("briefing_generated", "briefing", "plant")
		emit(ctx, orch.GeneratePlantBriefing(ctx, nil))
	case "supervisor":
		audit("briefing_generated", "briefing", "supervisor")
		emit(ctx, orch.GenerateSupervisorBriefing(ctx, flag.Args()))
	case "eod":
		target := parseDate(*dateF)
		if target.IsZero() {
			target = time.Now().UTC()
		}
		audit("briefing_generated", "briefing", "eod")
		emit(ctx, orch.GenerateEODSummary(ctx, *userF, target))
	case "handoff":
		orch.TotalBudget = cfg.Orchestrator.HandoffTimeout()
		audit("briefing_generated", "briefing", "handoff")
		emit(ctx, orch.SynthesizeShiftHandoff(ctx))
	case "actions":
		audit("action_list_generated", "action_list", parseDate(*dateF).Format("2006-01-02"))
		emit(ctx, engine.GenerateActionList(ctx, actionengine.Options{TargetDate: parseDate(*dateF)}))
	case "serve":
		runScheduledWorker(ctx, cfg, orch)
	default:
		log.Fatal(ctx, fmt.Errorf("unknown briefing kind %q", *kindF))
	}
}

func truncateSubject(s string) string {
	if len(s) > 80 {
		return s[:80]
	}
	return s
}

// runScheduledWorker runs the Temporal worker that serves the three recurring
// briefing workflows, ensuring their default schedules exist first.
func runScheduledWorker(ctx context.Context, cfg config.Config, orch *briefing.Orchestrator) {
	if cfg.TemporalHostPort == "" {
		log.Fatal(ctx, fmt.Errorf("temporal_host_port must be configured for serve mode"))
	}
	c, err := scheduling.Dial(cfg.TemporalHostPort, cfg.TemporalNamespace)
	if err != nil {
		log.Fatal(ctx, err)
	}
	defer c.Close()

	for _, spec := range defaultSchedules(cfg) {
		if err := scheduling.EnsureSchedule(ctx, c, spec); err != nil {
			log.Print(ctx, log.KV{K: "schedule", V: spec.ScheduleID}, log.KV{K: "err", V: err.Error()})
		}
	}

	w := scheduling.NewWorker(c, cfg.TemporalTaskQueue, &scheduling.Activities{Orchestrator: orch})
	log.Print(ctx, log.KV{K: "worker", V: "running"}, log.KV{K: "task_queue", V: cfg.TemporalTaskQueue})
	if err := w.Run(worker.InterruptCh()); err != nil {
		log.Fatal(ctx, err)
	}
}

func defaultSchedules(cfg config.Config) []scheduling.ScheduleSpec {
	return []scheduling.ScheduleSpec{
		{
			ScheduleID:     "opsbrief-morning-plant",
			Workflow:       scheduling.PlantBriefingWorkflowName,
			TaskQueue:      cfg.TemporalTaskQueue,
			Input:          scheduling.Input{Kind: scheduling.KindPlant},
			CronExpression: "0 6 * * *",
		},
		{
			ScheduleID:     "opsbrief-eod-summary",
			Workflow:       scheduling.EODSummaryWorkflowName,
			TaskQueue:      cfg.TemporalTaskQueue,
			Input:          scheduling.Input{Kind: scheduling.KindEOD},
			CronExpression: "0 18 * * *",
		},
		{
			ScheduleID:     "opsbrief-shift-handoff",
			Workflow:       scheduling.ShiftHandoffWorkflowName,
			TaskQueue:      cfg.TemporalTaskQueue,
			Input:          scheduling.Input{Kind: scheduling.KindHandoff},
			CronExpression: "0 */8 * * *",
		},
	}
}

// buildGatewayLimiter coordinates the gateway's adaptive QPS budget across
// processes through a Pulse replicated map when Redis is configured, and
// stays process-local otherwise.
func buildGatewayLimiter(ctx context.Context, rdb *redis.Client) *gateway.AdaptiveLimiter {
	if rdb != nil {
		if m, err := rmap.Join(ctx, "opsbrief-gateway", rdb); err == nil {
			return gateway.NewAdaptiveLimiter(ctx, m, "gateway-qps", 50, 200)
		}
	}
	return gateway.NewAdaptiveLimiter(ctx, nil, "", 50, 200)
}

func parseDate(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func emit(ctx context.Context, v any) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		log.Fatal(ctx, err)
	}
	fmt.Fprintln(os.Stdout, string(out))
}

// groundText validates one free-form statement against the daily summaries
// reported in the 48 hours before now, demonstrating the grounding
// validator end to end.
func groundText(ctx context.Context, gw gateway.Gateway, llm llmclient.Client, text string) opsmodel.CitedResponse {
	validator := grounding.New(llm)
	pool := grounding.Pool{}

	now := time.Now().UTC()
	start := now.AddDate(0, 0, -2)
	result, err := gw.GetFinancialMetrics(ctx, gateway.ScopedDateQuery{Start: start, End: now})
	if err == nil {
		summaries, _ := result.Data.([]opsmodel.DailySummary)
		assets, _ := gw.GetAllAssets(ctx)
		nameByID := map[string]string{}
		if list, ok := assets.Data.([]opsmodel.Asset); ok {
			for _, a := range list {
				nameByID[a.ID] = a.Name
			}
		}
		for _, s := range summaries {
			ts := s.ReportDate
			pool.Rows = append(pool.Rows, grounding.EvidenceRow{
				SourceType:  opsmodel.SourceDatabase,
				SourceTable: result.TableName,
				RecordID:    s.ID,
				AssetID:     s.AssetID,
				Timestamp:   &ts,
				Fields: map[string]any{
					"asset_name":             nameByID[s.AssetID],
					"downtime_minutes":       s.DowntimeMinutes,
					"waste_count":            s.WasteCount,
					"financial_loss_dollars": s.FinancialLossDollars,
				},
				Excerpt: fmt.Sprintf("%s: %d min downtime, %d waste", nameByID[s.AssetID], s.DowntimeMinutes, s.WasteCount),
			})
		}
	}
	return validator.Validate(ctx, text, pool)
}

// buildPlantModel fills the default area layout with the asset ids the
// gateway actually knows, so supervisor scoping works against real ids.
func buildPlantModel(ctx context.Context, gw gateway.Gateway) briefing.PlantModel {
	plant := briefing.DefaultPlantModel()
	plant.AssetsByArea = map[string][]string{}
	result, err := gw.GetAllAssets(ctx)
	if err != nil {
		return plant
	}
	assets, _ := result.Data.([]opsmodel.Asset)
	for _, a := range assets {
		plant.AssetsByArea[a.Area] = append(plant.AssetsByArea[a.Area], a.ID)
	}
	return plant
}

// buildGateway selects the Mongo-backed gateway when configured, otherwise
// the in-memory fixture gateway seeded with a small demo plant.
func buildGateway(ctx context.Context, cfg config.Config) (gateway.Gateway, func(), error) {
	if cfg.MongoURI != "" {
		client, err := mongo.Connect(mongooptions.Client().ApplyURI(cfg.MongoURI))
		if err != nil {
			return nil, func() {}, fmt.Errorf("connect mongo: %w", err)
		}
		db := cfg.MongoDB
		if db == "" {
			db = "opsbrief"
		}
		cleanup := func() { _ = client.Disconnect(context.Background()) }
		return mongogateway.New(client.Database(db)), cleanup, nil
	}
	return memgateway.New(demoStore()), func() {}, nil
}

func buildCache(cfg config.Config, metrics telemetry.Metrics, rdb *redis.Client) cache.Cache {
	if rdb != nil {
		return rediscache.New(rdb, "opsbrief:cache:")
	}
	opts := []cache.Option{
		cache.WithMaxEntriesPerTier(cfg.Cache.MaxSize),
		cache.WithMetrics(metrics),
	}
	if !cfg.Cache.CacheEnabled() {
		opts = append(opts, cache.WithDisabled())
	}
	return cache.New(opts...)
}

func buildLLM(cfg config.Config) (llmclient.Client, error) {
	switch {
	case cfg.AnthropicModel != "":
		return anthropicclient.NewFromAPIKey(os.Getenv("ANTHROPIC_API_KEY"), cfg.AnthropicModel)
	case cfg.OpenAIModel != "":
		return openaiclient.NewFromAPIKey(os.Getenv("OPENAI_API_KEY"), cfg.OpenAIModel)
	case cfg.BedrockModel != "":
		return bedrockclient.NewFromRegion(os.Getenv("AWS_REGION"), cfg.BedrockModel)
	}
	return nil, fmt.Errorf("no LLM model configured")
}

// buildRegistry registers every capability tool, each wrapped in the cache
// decorator keyed to the invoking user.
func buildRegistry(gw gateway.Gateway, engine *actionengine.Engine, store cache.Cache, userID string) *tooling.Registry {
	userIDFn := func(context.Context) string { return userID }
	registry := tooling.NewRegistry()
	all := []tooling.Tool{
		&tools.AssetLookup{GW: gw},
		&tools.OEEQuery{GW: gw},
		&tools.DowntimeAnalysis{GW: gw},
		&tools.SafetyEvents{GW: gw},
		&tools.AlertCheck{GW: gw},
		&tools.FinancialImpact{GW: gw},
		&tools.CostOfLossRanking{GW: gw},
		&tools.TrendAnalysis{GW: gw},
		&tools.ComparativeAnalysis{GW: gw},
		&tools.RecommendationEngine{GW: gw},
		&tools.ActionList{Engine: engine},
		&tools.ShiftTargetQuery{GW: gw},
		&tools.AreaRollup{GW: gw},
		&tools.ProductionStatus{GW: gw},
	}
	for _, t := range all {
		registry.Register(cache.NewDecorator(t, store, userIDFn))
	}
	return registry
}

// demoStore seeds the in-memory gateway with a plant small enough to read in
// one briefing but broad enough to exercise every tool.
func demoStore() memgateway.Store {
	now := time.Now().UTC()
	yesterday := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, -1)
	oee := func(v float64) *float64 { return &v }
	return memgateway.Store{
		Assets: []opsmodel.Asset{
			{ID: "ast-grinder-5", Name: "Grinder 5", SourceID: "G5", Area: "machining", CostCenterID: "cc-machining"},
			{ID: "ast-press-2", Name: "Press 2", SourceID: "P2", Area: "stamping", CostCenterID: "cc-stamping"},
			{ID: "ast-line-3", Name: "Line 3", SourceID: "L3", Area: "assembly"},
		},
		Summaries: []opsmodel.DailySummary{
			{ID: "sum-1", AssetID: "ast-grinder-5", ReportDate: yesterday, OEEPercentage: oee(62.5), ActualOutput: 820, TargetOutput: 1000, DowntimeMinutes: 47, WasteCount: 12, FinancialLossDollars: 1840, DowntimeReasons: map[string]int{"bearing overheat": 35, "changeover": 12}},
			{ID: "sum-2", AssetID: "ast-press-2", ReportDate: yesterday, OEEPercentage: oee(88.0), ActualOutput: 1480, TargetOutput: 1500, DowntimeMinutes: 8, WasteCount: 3, FinancialLossDollars: 120},
			{ID: "sum-3", AssetID: "ast-line-3", ReportDate: yesterday, OEEPercentage: oee(74.2), ActualOutput: 620, TargetOutput: 800, DowntimeMinutes: 66, WasteCount: 21, FinancialLossDollars: 2600, DowntimeReasons: map[string]int{"material starvation": 50, "jam": 16}},
		},
		Snapshots: []opsmodel.LiveSnapshot{
			{AssetID: "ast-grinder-5", SnapshotTimestamp: now.Add(-5 * time.Minute), CurrentOutput: 410, TargetOutput: 500, OutputVariance: -90, Status: opsmodel.SnapshotBehind},
			{AssetID: "ast-press-2", SnapshotTimestamp: now.Add(-3 * time.Minute), CurrentOutput: 745, TargetOutput: 750, OutputVariance: -5, Status: opsmodel.SnapshotOnTarget},
		},
		SafetyEvents: []opsmodel.SafetyEvent{
			{ID: "se-1", AssetID: "ast-line-3", EventTimestamp: now.Add(-2 * time.Hour), ReasonCode: "guard-open", Severity: opsmodel.SeverityHigh, Description: "light curtain bypassed on station 4", IsResolved: false},
		},
		ShiftTargets: []opsmodel.ShiftTarget{
			{AssetID: "ast-grinder-5", TargetOutput: 1000, Shift: "day", EffectiveDate: yesterday.AddDate(0, 0, -30)},
		},
		CostCenters: []opsmodel.CostCenter{
			{ID: "cc-machining", StandardHourlyRate: 240, CostPerUnit: 3.5},
			{ID: "cc-stamping", StandardHourlyRate: 180, CostPerUnit: 2.0},
		},
	}
}
