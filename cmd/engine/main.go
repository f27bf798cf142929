// Command engine is the CLI entry point for the dislocation-overlay
// rebalancing engine. It is a thin wrapper (spec.md §6 keeps CLI details
// out of the decision core's scope): `run` executes one tick against a
// quote/history fixture and persists the result; `serve` wraps `run` in
// internal/scheduler for unattended weekly execution. Grounded on
// cmd/server/main.go's startup-sequence structure (load config, build
// logger, wire dependencies, run), adapted from a long-lived HTTP daemon to
// a one-shot/cron CLI.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/harrowgate/dislocation-engine/internal/allocator"
	"github.com/harrowgate/dislocation-engine/internal/config"
	"github.com/harrowgate/dislocation-engine/internal/domain"
	"github.com/harrowgate/dislocation-engine/internal/engine"
	"github.com/harrowgate/dislocation-engine/internal/features"
	"github.com/harrowgate/dislocation-engine/internal/logger"
	"github.com/harrowgate/dislocation-engine/internal/scheduler"
	"github.com/harrowgate/dislocation-engine/internal/state"
)

// Exit codes per spec.md §6: 0 success, 2 invariant violation, 3 unexecutable
// plan.
const (
	exitOK              = 0
	exitInvariantFailed = 2
	exitUnexecutable    = 3
)

// fixture is the on-disk shape of the `--quotes` JSON file: everything
// engine.Input needs that isn't derivable from BotConfig or --as-of. Real
// market-data adapters are out of scope per spec.md §1; this fixture format
// is the engine's only supported input surface.
type fixture struct {
	Quotes           map[string]float64              `json:"quotes"`
	History          map[string][]historyPointJSON   `json:"history"`
	Universe         []string                        `json:"universe"`
	CandidateBuckets map[string]allocator.Bucket      `json:"candidate_buckets"`
	ProxyMap         map[string][]string              `json:"proxy_map"`
	RatesLabel       domain.RatesLabel                `json:"rates_label"`
	RatesStance      string                           `json:"rates_stance"`
	CashInfusionUSD  float64                          `json:"cash_infusion_usd"`
}

type historyPointJSON struct {
	Date  time.Time `json:"date"`
	Close float64   `json:"close"`
}

func (f fixture) toInput(asOf time.Time) engine.Input {
	history := make(map[string][]features.HistoryPoint, len(f.History))
	for symbol, points := range f.History {
		hp := make([]features.HistoryPoint, len(points))
		for i, p := range points {
			hp[i] = features.HistoryPoint{Date: p.Date, Close: p.Close}
		}
		history[symbol] = hp
	}
	return engine.Input{
		AsOf:             asOf,
		Quotes:           f.Quotes,
		History:          history,
		Universe:         f.Universe,
		CandidateBuckets: f.CandidateBuckets,
		ProxyMap:         f.ProxyMap,
		RatesLabel:       f.RatesLabel,
		RatesStance:      f.RatesStance,
		Scenario:         engine.ScenarioOverrides{CashInfusionUSD: f.CashInfusionUSD},
	}
}

func loadFixture(path string) (fixture, error) {
	var f fixture
	raw, err := os.ReadFile(path)
	if err != nil {
		return f, fmt.Errorf("read quotes fixture: %w", err)
	}
	if err := json.Unmarshal(raw, &f); err != nil {
		return f, fmt.Errorf("parse quotes fixture: %w", err)
	}
	return f, nil
}

// runJob adapts one `engine run` invocation to scheduler.Job so both the
// `run` and `serve` subcommands share the exact same tick path.
type runJob struct {
	cfg        config.BotConfig
	log        zerolog.Logger
	store      *state.Store
	ledger     *state.Ledger
	quotesPath string
	asOf       func() time.Time
	lastExit   int
}

func (j *runJob) Name() string { return "weekly-rebalance" }

func (j *runJob) Run() error {
	asOf := j.asOf()
	f, err := loadFixture(j.quotesPath)
	if err != nil {
		return err
	}

	prior, err := j.store.Load(domain.Money(j.cfg.StartingCapitalUSD))
	if err != nil {
		return fmt.Errorf("load engine state: %w", err)
	}

	if err := j.ledger.Append(state.RunStartedData{AsOf: asOf}); err != nil {
		j.log.Warn().Err(err).Msg("failed to append RUN_STARTED")
	}

	e := engine.New(j.cfg, j.log)
	next, result := e.Tick(prior, f.toInput(asOf))

	if err := j.store.Save(next); err != nil {
		return fmt.Errorf("save engine state: %w", err)
	}

	for _, o := range result.Orders {
		if err := j.ledger.Append(state.FillRecordedData{Order: o, Price: f.Quotes[o.Symbol]}); err != nil {
			j.log.Warn().Err(err).Msg("failed to append FILL_RECORDED")
		}
	}
	for _, ev := range result.CashEvents {
		if err := j.ledger.Append(state.CashRecordedData{Event: ev}); err != nil {
			j.log.Warn().Err(err).Msg("failed to append CASH_RECORDED")
		}
	}
	if err := j.ledger.Append(state.RunCompletedData{
		NAV:            result.Diagnostics.Budgets.NAVPostInfusion,
		ViolationCount: len(result.InvariantReport.Violations),
		OrdersFilled:   len(result.Orders),
	}); err != nil {
		j.log.Warn().Err(err).Msg("failed to append RUN_COMPLETED")
	}

	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal tick result: %w", err)
	}
	fmt.Println(string(out))

	switch {
	case !result.InvariantReport.OK:
		j.lastExit = exitInvariantFailed
	case result.Unexecutable:
		j.lastExit = exitUnexecutable
	default:
		j.lastExit = exitOK
	}
	return nil
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	cfg := config.Load()
	log := logger.New(logger.Config{Level: getEnv("LOG_LEVEL", "info"), Pretty: true})

	switch os.Args[1] {
	case "run":
		os.Exit(runCommand(cfg, log, os.Args[2:]))
	case "serve":
		os.Exit(serveCommand(cfg, log, os.Args[2:]))
	default:
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: engine run --as-of <RFC3339 timestamp> --state-dir <dir> --quotes <path>")
	fmt.Fprintln(os.Stderr, "       engine serve --cron <spec> --state-dir <dir> --quotes <path>")
}

func openStore(stateDir string, log zerolog.Logger) (*state.Store, *state.Ledger, error) {
	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("create state dir: %w", err)
	}
	st, err := state.Open(stateDir+"/engine_state.db", log)
	if err != nil {
		return nil, nil, err
	}
	led, err := state.OpenLedger(stateDir+"/ledger.jsonl", log)
	if err != nil {
		st.Close()
		return nil, nil, err
	}
	return st, led, nil
}

func runCommand(cfg config.BotConfig, log zerolog.Logger, args []string) int {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	asOfFlag := fs.String("as-of", "", "RFC3339 timestamp for this tick")
	stateDir := fs.String("state-dir", "./state", "directory holding engine_state.db and ledger.jsonl")
	quotesPath := fs.String("quotes", "", "path to the quotes/history JSON fixture")
	fs.Parse(args)

	if *asOfFlag == "" || *quotesPath == "" {
		usage()
		return 1
	}
	asOf, err := time.Parse(time.RFC3339, *asOfFlag)
	if err != nil {
		log.Error().Err(err).Msg("invalid --as-of timestamp")
		return 1
	}

	st, led, err := openStore(*stateDir, log)
	if err != nil {
		log.Error().Err(err).Msg("failed to open state store")
		return 1
	}
	defer st.Close()

	job := &runJob{cfg: cfg, log: log, store: st, ledger: led, quotesPath: *quotesPath, asOf: func() time.Time { return asOf }}
	if err := job.Run(); err != nil {
		log.Error().Err(err).Msg("tick failed")
		return 1
	}
	return job.lastExit
}

func serveCommand(cfg config.BotConfig, log zerolog.Logger, args []string) int {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	cronSpec := fs.String("cron", "0 0 9 * * MON", "cron schedule for the weekly tick (robfig/cron/v3 seconds format)")
	stateDir := fs.String("state-dir", "./state", "directory holding engine_state.db and ledger.jsonl")
	quotesPath := fs.String("quotes", "", "path to the quotes/history JSON fixture")
	fs.Parse(args)

	if *quotesPath == "" {
		usage()
		return 1
	}

	st, led, err := openStore(*stateDir, log)
	if err != nil {
		log.Error().Err(err).Msg("failed to open state store")
		return 1
	}
	defer st.Close()

	job := &runJob{cfg: cfg, log: log, store: st, ledger: led, quotesPath: *quotesPath, asOf: time.Now}

	sched := scheduler.New(log)
	if err := sched.AddJob(*cronSpec, job); err != nil {
		log.Error().Err(err).Msg("failed to register cron job")
		return 1
	}
	sched.Start()
	defer sched.Stop()

	log.Info().Str("cron", *cronSpec).Msg("engine serving; press Ctrl+C to stop")
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutdown signal received")
	return exitOK
}

// getEnv mirrors the corpus's cmd/server/main.go helper: environment
// variable lookup with a fallback for values the CLI needs before BotConfig
// is fully wired (the log level must be known before the logger exists).
func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
