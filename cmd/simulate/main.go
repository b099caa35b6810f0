// Package main is a command-line front end to the risk engine. It runs one
// scenario (or every preset) against a pool and prints the risk report and
// shadow rating.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"
	"gopkg.in/yaml.v3"

	"github.com/aristath/poolrisk/internal/domain"
	"github.com/aristath/poolrisk/internal/engine"
	"github.com/aristath/poolrisk/internal/modules/rating"
	"github.com/aristath/poolrisk/internal/modules/scenarios"
	"github.com/aristath/poolrisk/internal/modules/simulation"
	"github.com/aristath/poolrisk/pkg/logger"
)

// allPresets runs every built-in preset side by side
const allPresets = "all"

type options struct {
	scenario     string
	input        string
	trials       int
	seed         uint64
	seedSet      bool
	workers      int
	table        string
	format       string
	distribution string
}

// inputFile is the YAML accepted by -input. Any section may be omitted.
type inputFile struct {
	Pool     *domain.PoolDescriptor     `yaml:"pool"`
	Scenario *domain.ScenarioParameters `yaml:"scenario"`
	Preset   string                     `yaml:"preset"`
	Config   domain.SimulationConfig    `yaml:"config"`
}

func main() {
	var opts options
	flag.StringVar(&opts.scenario, "scenario", "base", `Preset name, or "all" to compare every preset`)
	flag.StringVar(&opts.input, "input", "", "YAML file with pool, scenario and config sections")
	flag.IntVar(&opts.trials, "trials", 0, "Number of trials (0 = input file or default)")
	flag.Uint64Var(&opts.seed, "seed", 42, "Random seed")
	flag.IntVar(&opts.workers, "workers", 0, "Parallel workers (0 = all CPUs)")
	flag.StringVar(&opts.table, "table", "", "Rating threshold table YAML (default: embedded)")
	flag.StringVar(&opts.format, "format", "text", "Output format: text or json")
	flag.StringVar(&opts.distribution, "distribution", "", "Write trial outcomes as MessagePack to this file")
	verbose := flag.Bool("v", false, "Verbose logging to stderr")
	flag.Parse()

	flag.Visit(func(f *flag.Flag) {
		if f.Name == "seed" {
			opts.seedSet = true
		}
	})

	level := "warn"
	if *verbose {
		level = "debug"
	}
	log := logger.New(logger.Config{Level: level, Pretty: true, Output: os.Stderr})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, opts, os.Stdout, log); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, opts options, out io.Writer, log zerolog.Logger) error {
	if opts.format != "text" && opts.format != "json" {
		return fmt.Errorf("unknown format %q", opts.format)
	}

	pool, scenario, cfg, err := resolveInputs(opts)
	if err != nil {
		return err
	}

	ratings, err := rating.NewProvider(opts.table, log)
	if err != nil {
		return err
	}
	driver := simulation.NewDriver(simulation.Options{Workers: opts.workers}, log)
	eng := engine.New(driver, ratings, log)

	if scenario == nil {
		list := make([]domain.ScenarioParameters, 0, len(scenarios.Names()))
		for _, p := range scenarios.Presets() {
			list = append(list, p.Scenario)
		}
		results, err := eng.Compare(ctx, pool, list, cfg)
		if err != nil {
			return err
		}
		if opts.format == "json" {
			return writeJSON(out, results)
		}
		return printComparison(out, results)
	}

	cfg.ExportDistribution = opts.distribution != ""
	result, err := eng.Run(ctx, pool, *scenario, cfg, nil)
	if err != nil {
		return err
	}
	rated, err := eng.DeriveShadowRating(result.Report)
	if err != nil {
		return err
	}

	if opts.distribution != "" {
		if err := writeDistribution(opts.distribution, result.Outcomes); err != nil {
			return err
		}
	}

	if opts.format == "json" {
		return writeJSON(out, engine.ScenarioResult{Scenario: scenario.Name, Report: result.Report, Rating: rated})
	}
	return printReport(out, pool, result.Report, rated)
}

// resolveInputs merges the input file with flags. A nil scenario means
// "compare every preset".
func resolveInputs(opts options) (domain.PoolDescriptor, *domain.ScenarioParameters, domain.SimulationConfig, error) {
	var in inputFile
	if opts.input != "" {
		data, err := os.ReadFile(opts.input)
		if err != nil {
			return domain.PoolDescriptor{}, nil, domain.SimulationConfig{}, fmt.Errorf("read input: %w", err)
		}
		if err := yaml.Unmarshal(data, &in); err != nil {
			return domain.PoolDescriptor{}, nil, domain.SimulationConfig{}, fmt.Errorf("parse input %s: %w", opts.input, err)
		}
	}

	pool := scenarios.SamplePool()
	if in.Pool != nil {
		pool = *in.Pool
	}

	cfg := in.Config
	if opts.trials > 0 {
		cfg.Trials = opts.trials
	}
	if opts.seedSet || opts.input == "" || cfg.Seed == 0 {
		cfg.Seed = opts.seed
	}
	if opts.workers > 0 {
		cfg.Workers = opts.workers
	}

	if in.Scenario != nil {
		return pool, in.Scenario, cfg, nil
	}

	name := opts.scenario
	if in.Preset != "" {
		name = in.Preset
	}
	if strings.EqualFold(name, allPresets) {
		return pool, nil, cfg, nil
	}
	scenario, err := scenarios.Get(name)
	if err != nil {
		return domain.PoolDescriptor{}, nil, domain.SimulationConfig{}, err
	}
	return pool, &scenario, cfg, nil
}

func writeJSON(out io.Writer, v interface{}) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeDistribution(path string, outcomes []domain.TrialOutcome) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create distribution file: %w", err)
	}
	defer f.Close()

	enc := msgpack.NewEncoder(f)
	enc.SetCustomStructTag("json")
	if err := enc.Encode(outcomes); err != nil {
		return fmt.Errorf("write distribution: %w", err)
	}
	return f.Close()
}

func printReport(out io.Writer, pool domain.PoolDescriptor, report *domain.RiskReport, rated domain.ShadowRating) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)

	fmt.Fprintf(w, "Pool\t%s (%s %s, %d months)\n", pool.Name, pool.Notional.StringFixed(0), pool.Currency, pool.TermMonths)
	fmt.Fprintf(w, "Scenario\t%s\n", report.Scenario)
	fmt.Fprintf(w, "Trials\t%d (seed %d)\n", report.Trials, report.Seed)
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Expected loss\t%s\n", percent(report.ExpectedLoss))
	fmt.Fprintf(w, "Loss std dev\t%s\n", percent(report.LossStdDev))
	for _, p := range report.VaR {
		fmt.Fprintf(w, "VaR %.4g%%\t%s\n", p.Confidence*100, percent(p.Loss))
	}
	fmt.Fprintf(w, "Tail risk (ES 99%%)\t%s\n", percent(report.TailRisk))
	fmt.Fprintf(w, "Expected return\t%s\n", percent(report.ExpectedReturn))
	fmt.Fprintf(w, "Duration\t%s\n", metric(report.Duration, "%.4f"))
	fmt.Fprintf(w, "Convexity\t%s\n", metric(report.Convexity, "%.4f"))
	fmt.Fprintf(w, "Breakeven default rate\t%s\n", metric(report.BreakevenDefaultRate, "%.2f%%"))

	if len(report.Tranches) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Tranche\tRange\tEL\tVaR 99%\tP(loss)\tReturn")
		for _, t := range report.Tranches {
			var99, _ := t.VaRAt(domain.TailConfidence)
			fmt.Fprintf(w, "%s\t%.0f-%.0f%%\t%s\t%s\t%s\t%s\n",
				t.Name, t.Attachment*100, t.Detachment*100,
				percent(t.ExpectedLoss), percent(var99), percent(t.LossProbability), percent(t.ExpectedReturn))
		}
	}

	fmt.Fprintln(w)
	for _, r := range rated.Ratings {
		fmt.Fprintf(w, "Rating %s\t%s (confidence %.0f%%)\n", r.Scale, r.Label, r.Confidence)
	}
	fmt.Fprintf(w, "Rating confidence\t%.0f%% (table %s)\n", rated.Confidence, rated.TableVersion)

	for _, d := range report.Degeneracies {
		fmt.Fprintf(w, "Warning\t%s: %s\n", d.Field, d.Reason)
	}
	return w.Flush()
}

func printComparison(out io.Writer, results []engine.ScenarioResult) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)

	header := []string{"Scenario", "EL", "VaR 99%", "ES 99%", "Return"}
	if len(results) > 0 {
		for _, r := range results[0].Rating.Ratings {
			header = append(header, r.Scale)
		}
	}
	fmt.Fprintln(w, strings.Join(header, "\t"))

	for _, res := range results {
		var99, _ := res.Report.VaRAt(domain.TailConfidence)
		row := []string{
			res.Scenario,
			percent(res.Report.ExpectedLoss),
			percent(var99),
			percent(res.Report.TailRisk),
			percent(res.Report.ExpectedReturn),
		}
		for _, r := range res.Rating.Ratings {
			row = append(row, r.Label)
		}
		fmt.Fprintln(w, strings.Join(row, "\t"))
	}
	return w.Flush()
}

func percent(fraction float64) string {
	return fmt.Sprintf("%.3f%%", fraction*100)
}

func metric(m domain.Metric, format string) string {
	if !m.Defined {
		return "undefined"
	}
	return fmt.Sprintf(format, m.Value)
}
