// Command kousei corrects Japanese lecture speech-to-text transcripts.
//
// Subcommands:
//
//	correct  — correct one transcript file
//	batch    — correct every transcript in a directory
//	analyze  — audit an original/corrected transcript pair
//	serve    — run the demo HTTP server
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MrWong99/kousei/internal/config"
	"github.com/MrWong99/kousei/internal/correct"
	"github.com/MrWong99/kousei/internal/diffreport"
	"github.com/MrWong99/kousei/internal/escalate"
	"github.com/MrWong99/kousei/internal/llmcorrect"
	"github.com/MrWong99/kousei/internal/observe"
	"github.com/MrWong99/kousei/internal/run"
	"github.com/MrWong99/kousei/internal/statstore"
	"github.com/MrWong99/kousei/internal/web"
)

const version = "0.1.0"

const defaultConfigPath = "config.yaml"

const usage = `kousei — lecture transcript correction

Usage:
  kousei correct [-config file] [-out dir] <transcript.txt>
  kousei batch   [-config file] [-out dir] [-concurrency n] <dir>
  kousei analyze [-json file] <original.txt> <corrected.txt>
  kousei serve   [-config file]
`

func main() {
	os.Exit(runMain())
}

func runMain() int {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		return 2
	}

	switch os.Args[1] {
	case "correct":
		return runCorrect(os.Args[2:])
	case "batch":
		return runBatch(os.Args[2:])
	case "analyze":
		return runAnalyze(os.Args[2:])
	case "serve":
		return runServe(os.Args[2:])
	case "help", "-h", "--help":
		fmt.Print(usage)
		return 0
	default:
		fmt.Fprintf(os.Stderr, "kousei: unknown command %q\n\n%s", os.Args[1], usage)
		return 2
	}
}

func runCorrect(args []string) int {
	fs := flag.NewFlagSet("correct", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "path to the YAML configuration file")
	outDir := fs.String("out", "", "output directory (default: alongside the input file)")
	fs.Parse(args)

	file := fs.Arg(0)
	if file == "" {
		fmt.Fprint(os.Stderr, "kousei correct: no transcript file given\n")
		return 2
	}

	cfg, ret := loadConfigOrExit(*configPath)
	if ret != 0 {
		return ret
	}
	setupLogger(cfg.Server.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	p, err := buildPipeline(ctx, cfg)
	if err != nil {
		slog.Error("failed to build pipeline", "err", err)
		return 1
	}
	defer p.close()

	dir := *outDir
	if dir == "" {
		dir = filepath.Dir(file)
	}

	stats, err := p.runner.ProcessFile(ctx, file, dir)
	if err != nil {
		slog.Error("correction failed", "file", file, "err", err)
		return 1
	}
	printStats(stats)
	return 0
}

func runBatch(args []string) int {
	fs := flag.NewFlagSet("batch", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "path to the YAML configuration file")
	outDir := fs.String("out", "", "output directory (default: <input dir>_corrected)")
	concurrency := fs.Int("concurrency", 4, "number of transcript files processed in parallel")
	fs.Parse(args)

	dir := fs.Arg(0)
	if dir == "" {
		fmt.Fprint(os.Stderr, "kousei batch: no input directory given\n")
		return 2
	}

	cfg, ret := loadConfigOrExit(*configPath)
	if ret != 0 {
		return ret
	}
	setupLogger(cfg.Server.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	p, err := buildPipeline(ctx, cfg, run.WithConcurrency(*concurrency))
	if err != nil {
		slog.Error("failed to build pipeline", "err", err)
		return 1
	}
	defer p.close()

	stats, err := p.runner.ProcessDir(ctx, dir, *outDir)
	if err != nil {
		slog.Error("batch run failed", "dir", dir, "err", err)
		return 1
	}
	printStats(stats)
	return 0
}

func runAnalyze(args []string) int {
	fs := flag.NewFlagSet("analyze", flag.ExitOnError)
	jsonPath := fs.String("json", "", "also write the full analysis as JSON to this path")
	fs.Parse(args)

	original, corrected := fs.Arg(0), fs.Arg(1)
	if original == "" || corrected == "" {
		fmt.Fprint(os.Stderr, "kousei analyze: need an original and a corrected transcript\n")
		return 2
	}

	analysis, err := diffreport.AnalyzeFiles(original, corrected)
	if err != nil {
		fmt.Fprintf(os.Stderr, "kousei analyze: %v\n", err)
		return 1
	}

	fmt.Print(diffreport.Report(analysis))

	if *jsonPath != "" {
		data, err := json.MarshalIndent(analysis, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "kousei analyze: marshal analysis: %v\n", err)
			return 1
		}
		if err := os.WriteFile(*jsonPath, data, 0o644); err != nil {
			fmt.Fprintf(os.Stderr, "kousei analyze: write %q: %v\n", *jsonPath, err)
			return 1
		}
	}
	return 0
}

func runServe(args []string) int {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "path to the YAML configuration file")
	fs.Parse(args)

	cfg, ret := loadConfigOrExit(*configPath)
	if ret != 0 {
		return ret
	}
	levelVar := setupLogger(cfg.Server.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceVersion: version})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		if err := shutdown(context.Background()); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	p, err := buildPipeline(ctx, cfg)
	if err != nil {
		slog.Error("failed to build pipeline", "err", err)
		return 1
	}
	defer p.close()

	var checks []web.Check
	if p.pool != nil {
		checks = append(checks, web.Check{Name: "statstore", Probe: p.pool.Ping})
	}
	server := web.NewServer(p.runner, observe.DefaultMetrics(), checks...)

	// Hot reload: log level, stage toggles, custom terms, and the scorer can
	// change without a restart; provider and transport changes cannot.
	if _, err := os.Stat(*configPath); err == nil {
		watcher, err := config.NewWatcher(*configPath, func(old, new *config.Config) {
			d := config.Diff(old, new)
			if !d.Changed() {
				return
			}
			if d.LogLevelChanged {
				levelVar.Set(slogLevel(d.NewLogLevel))
				slog.Info("log level changed", "level", d.NewLogLevel)
			}
			if d.StagesChanged || d.CustomTermsChanged || d.ScorerChanged {
				runner, err := p.rebuildRunner(new)
				if err != nil {
					slog.Error("config reload: keeping previous pipeline", "err", err)
					return
				}
				server.SetRunner(runner)
				slog.Info("correction pipeline reloaded")
			}
		})
		if err != nil {
			slog.Error("failed to start config watcher", "err", err)
			return 1
		}
		defer watcher.Stop()
	}

	slog.Info("kousei serving",
		"addr", cfg.Server.ListenAddr,
		"llm_enabled", cfg.LLM.Enabled,
		"version", version,
	)

	if err := server.Serve(ctx, cfg.Server.ListenAddr); err != nil &&
		!errors.Is(err, context.Canceled) {
		slog.Error("server error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// pipeline bundles everything a runner needs plus the resources behind it.
type pipeline struct {
	runner *run.Runner
	gate   *escalate.Gate
	llm    *llmcorrect.Corrector
	store  statstore.Store
	pool   *pgxpool.Pool
	opts   []run.Option
}

// buildPipeline wires the rule corrector, the optional LLM escalation, and
// the optional statistics store into a ready runner.
func buildPipeline(ctx context.Context, cfg *config.Config, extra ...run.Option) (*pipeline, error) {
	p := &pipeline{opts: extra}

	if cfg.LLM.Enabled {
		provider, err := config.DefaultRegistry().CreateLLM(cfg.LLM)
		if err != nil {
			return nil, fmt.Errorf("create llm provider %q: %w", cfg.LLM.Provider, err)
		}
		var llmOpts []llmcorrect.Option
		if cfg.LLM.Temperature > 0 {
			llmOpts = append(llmOpts, llmcorrect.WithTemperature(cfg.LLM.Temperature))
		}
		if cfg.LLM.TopP > 0 {
			llmOpts = append(llmOpts, llmcorrect.WithTopP(cfg.LLM.TopP))
		}
		if cfg.LLM.MaxTokens > 0 {
			llmOpts = append(llmOpts, llmcorrect.WithMaxTokens(cfg.LLM.MaxTokens))
		}
		llmOpts = append(llmOpts, llmcorrect.WithRates(cfg.Cost.InputRatePer1K, cfg.Cost.OutputRatePer1K))
		p.gate = escalate.NewGate()
		p.llm = llmcorrect.New(provider, llmOpts...)
		slog.Info("llm escalation enabled", "provider", cfg.LLM.Provider, "model", cfg.LLM.Model)
	}

	if cfg.Stats.PostgresDSN != "" {
		pool, err := pgxpool.New(ctx, cfg.Stats.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("connect stats store: %w", err)
		}
		store := statstore.NewPostgresStore(pool)
		if err := store.Migrate(ctx); err != nil {
			slog.Warn("stats store migration failed; persistence may not work", "err", err)
		}
		p.pool = pool
		p.store = store
	}

	runner, err := p.rebuildRunner(cfg)
	if err != nil {
		p.close()
		return nil, err
	}
	p.runner = runner
	return p, nil
}

// rebuildRunner constructs a fresh runner from cfg, reusing the pipeline's
// LLM corrector and statistics store. Used at startup and on config reload.
func (p *pipeline) rebuildRunner(cfg *config.Config) (*run.Runner, error) {
	corrector, err := correct.New(
		correct.WithStages(cfg.Stages),
		correct.WithCustomTerms(cfg.CustomTerms),
	)
	if err != nil {
		return nil, fmt.Errorf("build rule corrector: %w", err)
	}

	opts := []run.Option{
		run.WithScorer(run.ScorerFor(cfg.Scorer)),
		run.WithCost(cfg.Cost),
		run.WithSaveStatistics(cfg.Stats.SaveStatistics),
	}
	if p.llm != nil {
		opts = append(opts, run.WithEscalation(p.gate, p.llm))
		opts = append(opts, run.WithUseThreshold(cfg.LLM.UseThreshold))
	}
	if p.store != nil {
		opts = append(opts, run.WithStatsStore(p.store))
	}
	opts = append(opts, p.opts...)

	return run.New(corrector, opts...), nil
}

func (p *pipeline) close() {
	if p.pool != nil {
		p.pool.Close()
	}
}

// loadConfigOrExit loads the config file, falling back to defaults when the
// default path does not exist. A missing explicitly-given path is an error.
func loadConfigOrExit(path string) (*config.Config, int) {
	cfg, err := config.Load(path)
	switch {
	case err == nil:
		return cfg, 0
	case errors.Is(err, os.ErrNotExist) && path == defaultConfigPath:
		return config.Default(), 0
	default:
		fmt.Fprintf(os.Stderr, "kousei: %v\n", err)
		return nil, 1
	}
}

func printStats(stats *run.Stats) {
	data, err := json.MarshalIndent(stats, "", "  ")
	if err != nil {
		slog.Error("failed to render statistics", "err", err)
		return
	}
	fmt.Println(string(data))
}

func setupLogger(level config.LogLevel) *slog.LevelVar {
	lv := new(slog.LevelVar)
	lv.Set(slogLevel(level))
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lv})))
	return lv
}

func slogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
