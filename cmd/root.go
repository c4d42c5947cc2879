package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/cdst-optimize/cdst-optimize/opt"
	"github.com/cdst-optimize/cdst-optimize/opt/routing"
	"github.com/cdst-optimize/cdst-optimize/opt/scheduler"
)

var (
	// CLI flags shared by the subcommands
	networkPath string // Network snapshot YAML
	logLevel    string // Log verbosity level
	windowFrom  string // Demand window start (YYYY-MM-DD)
	windowTo    string // Demand window end (YYYY-MM-DD)
	outputPath  string // Result destination; empty writes to stdout

	// Algorithm knobs
	seed           int64
	seeded         bool
	populationSize int
	maxGenerations int
	crossoverRate  float64
	mutationRate   float64
	eliteSize      int
	timeBudget     time.Duration

	// Objective weights
	wDistance      float64
	wTime          float64
	wCost          float64
	wUtilization   float64
	wAccessibility float64

	// Soft-constraint thresholds (0 disables)
	maxDistanceKM  float64
	maxTravelTime  float64
	minUtilization float64
	maxUtilization float64
	minQuality     float64

	// Routing
	osrmBaseURL string
)

// rootCmd is the base command for the CLI
var rootCmd = &cobra.Command{
	Use:   "cdst-optimize",
	Short: "Multi-objective workload allocation for CDST laboratory networks",
}

// runCmd executes one optimization scenario from CLI flags
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the allocation optimization",
	Run: func(cmd *cobra.Command, args []string) {
		setupLogging()
		settings := LoadSettings()

		p, params, router := buildRun(settings)
		defer router.Close()

		store := checkpointStore(settings)
		sched := scheduler.New(scheduler.Config{
			GlobalSlots: settings.MaxConcurrent,
			Timeout:     params.TimeBudget,
		}, store)
		defer sched.Close()

		id, err := sched.Submit(scheduler.SubmitRequest{
			UserID:     "cli",
			Problem:    p,
			Parameters: params,
		})
		if err != nil {
			logrus.Fatalf("Submit failed: %v", err)
		}

		frames, cancelSub, err := sched.Subscribe(id)
		if err != nil {
			logrus.Fatalf("Subscribe failed: %v", err)
		}
		defer cancelSub()
		go func() {
			for f := range frames {
				logrus.Infof("generation %d/%d best=%.6f hypervolume=%.4f",
					f.Generation, f.MaxGenerations, f.BestComposite, f.Hypervolume)
			}
		}()

		if err := sched.Wait(context.Background(), id); err != nil {
			logrus.Fatalf("Scenario wait failed: %v", err)
		}
		result, err := sched.Result(id)
		if err != nil {
			logrus.Fatalf("Optimization failed: %v", err)
		}
		writeResult(result)
		logrus.Infof("Optimization complete: %d generations, %d allocation rows",
			result.Generations, len(result.Best.Rows))
	},
}

// baselineCmd prints the greedy nearest-lab allocation without optimizing,
// for quick comparisons and smoke checks.
var baselineCmd = &cobra.Command{
	Use:   "baseline",
	Short: "Compute the greedy nearest-laboratory baseline",
	Run: func(cmd *cobra.Command, args []string) {
		setupLogging()
		settings := LoadSettings()

		p, params, router := buildRun(settings)
		defer router.Close()

		al := opt.GreedyBaseline(p)
		obj, penalty := opt.NewEvaluator(p, params.Constraints).Evaluate(al)

		out := map[string]any{
			"objectives": objectiveMap(obj),
			"penalty":    penalty,
			"tests":      al.TotalTests(),
		}
		data, err := yaml.Marshal(out)
		if err != nil {
			logrus.Fatalf("Encoding baseline: %v", err)
		}
		os.Stdout.Write(data)
	},
}

func setupLogging() {
	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		logrus.Fatalf("Invalid log level: %s", logLevel)
	}
	logrus.SetLevel(level)
}

// buildRun loads the network, materializes the problem, and assembles the
// run parameters from settings overridden by flags.
func buildRun(settings Settings) (*opt.Problem, opt.Parameters, *routing.Provider) {
	if networkPath == "" {
		logrus.Fatalf("Network file not provided. Use --network.")
	}
	net, err := LoadNetwork(networkPath)
	if err != nil {
		logrus.Fatalf("Loading network: %v", err)
	}

	window, err := parseWindow()
	if err != nil {
		logrus.Fatalf("Parsing window: %v", err)
	}

	baseURL := osrmBaseURL
	if baseURL == "" {
		baseURL = settings.OSRMBaseURL
	}
	router := routing.NewProvider(routing.ProviderConfig{
		BaseURL:        baseURL,
		RequestTimeout: settings.OSRMTimeout,
		CacheTTL:       settings.RouteCacheTTL,
	})

	params := parameters(settings)
	if err := params.Validate(); err != nil {
		router.Close()
		logrus.Fatalf("Invalid parameters: %v", err)
	}

	p, err := opt.BuildProblem(context.Background(), net, router, window)
	if err != nil {
		router.Close()
		logrus.Fatalf("Building problem: %v", err)
	}
	return p, params, router
}

func parameters(settings Settings) opt.Parameters {
	params := opt.DefaultParameters()
	params.PopulationSize = settings.PopulationSize
	params.MaxGenerations = settings.MaxGenerations
	params.TimeBudget = settings.Timeout

	if populationSize > 0 {
		params.PopulationSize = populationSize
	}
	if maxGenerations > 0 {
		params.MaxGenerations = maxGenerations
	}
	if timeBudget > 0 {
		params.TimeBudget = timeBudget
	}
	params.CrossoverRate = crossoverRate
	params.MutationRate = mutationRate
	if eliteSize >= 0 {
		params.EliteSize = eliteSize
	}
	params.Weights = opt.Weights{
		Distance:      wDistance,
		Time:          wTime,
		Cost:          wCost,
		Utilization:   wUtilization,
		Accessibility: wAccessibility,
	}
	params.Constraints = opt.Constraints{
		MaxDistanceKM:        maxDistanceKM,
		MaxTravelTimeMinutes: maxTravelTime,
		MinUtilization:       minUtilization,
		MaxUtilization:       maxUtilization,
		MinQuality:           minQuality,
	}
	if seeded {
		params.Seed = seed
		params.Seeded = true
	}
	return params
}

func parseWindow() (opt.DateWindow, error) {
	var w opt.DateWindow
	if windowFrom != "" {
		t, err := time.Parse("2006-01-02", windowFrom)
		if err != nil {
			return w, fmt.Errorf("bad --from date %q: %w", windowFrom, err)
		}
		w.From = t
	}
	if windowTo != "" {
		t, err := time.Parse("2006-01-02", windowTo)
		if err != nil {
			return w, fmt.Errorf("bad --to date %q: %w", windowTo, err)
		}
		w.To = t
	}
	return w, nil
}

func checkpointStore(settings Settings) scheduler.Store {
	if settings.CheckpointDir == "" {
		return nil
	}
	store, err := scheduler.NewFSStore(settings.CheckpointDir)
	if err != nil {
		logrus.Fatalf("Opening checkpoint dir: %v", err)
	}
	return store
}

func writeResult(result *opt.Result) {
	data, err := yaml.Marshal(result)
	if err != nil {
		logrus.Fatalf("Encoding result: %v", err)
	}
	if outputPath == "" {
		os.Stdout.Write(data)
		return
	}
	if err := os.WriteFile(outputPath, data, 0o644); err != nil {
		logrus.Fatalf("Writing result file: %v", err)
	}
}

func objectiveMap(obj [opt.NumObjectives]float64) map[string]float64 {
	m := make(map[string]float64, len(obj))
	for i, v := range obj {
		m[opt.ObjectiveNames[i]] = v
	}
	return m
}

// Execute runs the CLI root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// init sets up CLI flags and subcommands
func init() {
	for _, c := range []*cobra.Command{runCmd, baselineCmd} {
		c.Flags().StringVar(&networkPath, "network", "", "Network snapshot YAML file")
		c.Flags().StringVar(&logLevel, "log", "info", "Log level (trace, debug, info, warn, error, fatal, panic)")
		c.Flags().StringVar(&windowFrom, "from", "", "Demand window start (YYYY-MM-DD)")
		c.Flags().StringVar(&windowTo, "to", "", "Demand window end (YYYY-MM-DD)")
		c.Flags().StringVar(&osrmBaseURL, "osrm-url", "", "Routing endpoint base URL (overrides OSRM_BASE_URL)")

		// Soft-constraint thresholds
		c.Flags().Float64Var(&maxDistanceKM, "max-distance-km", 0, "Soft maximum sample transport distance (0 disables)")
		c.Flags().Float64Var(&maxTravelTime, "max-travel-minutes", 0, "Soft maximum travel time in minutes (0 disables)")
		c.Flags().Float64Var(&minUtilization, "min-utilization", 0, "Soft minimum laboratory utilization (0 disables)")
		c.Flags().Float64Var(&maxUtilization, "max-utilization", 0, "Soft maximum laboratory utilization (0 disables)")
		c.Flags().Float64Var(&minQuality, "min-quality", 0, "Soft minimum capability quality score (0 disables)")
	}

	// Algorithm knobs
	runCmd.Flags().Int64Var(&seed, "seed", 42, "Seed for reproducible runs (with --seeded)")
	runCmd.Flags().BoolVar(&seeded, "seeded", false, "Use --seed instead of a fresh entropy seed")
	runCmd.Flags().IntVar(&populationSize, "population", 0, "Population size (0 uses OPTIMIZATION_POPULATION_SIZE)")
	runCmd.Flags().IntVar(&maxGenerations, "generations", 0, "Generation budget (0 uses OPTIMIZATION_MAX_GENERATIONS)")
	runCmd.Flags().Float64Var(&crossoverRate, "crossover-rate", 0.9, "Crossover probability")
	runCmd.Flags().Float64Var(&mutationRate, "mutation-rate", 0.1, "Base per-gene mutation probability")
	runCmd.Flags().IntVar(&eliteSize, "elite-size", 20, "Individuals preserved unconditionally per generation")
	runCmd.Flags().DurationVar(&timeBudget, "time-budget", 0, "Wall-clock budget (0 uses OPTIMIZATION_TIMEOUT)")

	// Objective weights (must sum to 1)
	runCmd.Flags().Float64Var(&wDistance, "weight-distance", 0.3, "Weight of mean transport distance")
	runCmd.Flags().Float64Var(&wTime, "weight-time", 0.2, "Weight of mean turnaround time")
	runCmd.Flags().Float64Var(&wCost, "weight-cost", 0.2, "Weight of total operational cost")
	runCmd.Flags().Float64Var(&wUtilization, "weight-utilization", 0.15, "Weight of laboratory utilization balance")
	runCmd.Flags().Float64Var(&wAccessibility, "weight-accessibility", 0.15, "Weight of service accessibility")

	runCmd.Flags().StringVar(&outputPath, "output", "", "Write the result YAML here instead of stdout")

	// Attach subcommands to `root`
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(baselineCmd)
}
