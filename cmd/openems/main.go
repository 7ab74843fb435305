package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/guptarohit/asciigraph"
	"github.com/spf13/cobra"

	"github.com/tmolteno/openEMS/internal/config"
	"github.com/tmolteno/openEMS/internal/observability"
	"github.com/tmolteno/openEMS/internal/sim"
	"github.com/tmolteno/openEMS/internal/storage"
	"github.com/tmolteno/openEMS/internal/tui"
)

var (
	dataDir       string
	engineName    string
	numThreads    int
	disableDumps  bool
	debugMaterial bool
	debugOperator bool
	debugPEC      bool
	debugBoxes    bool
	debugCSX      bool
	noSimulation  bool
	liveView      bool
	metricsAddr   string
	batchWorkers  int
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "openems [simulation file]",
		Short:        "electromagnetic field solver using the FDTD method",
		Args:         cobra.ExactArgs(1),
		RunE:         runSimulation,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&dataDir, "data", "", "data directory (default $OPENEMS_DATA_DIR or .openems)")
	rootCmd.Flags().StringVar(&engineName, "engine", "standard", "engine: standard, sse, sse-compressed, multithreaded")
	rootCmd.Flags().IntVar(&numThreads, "num-threads", 0, "worker threads for the multithreaded engine (0: all cpus)")
	rootCmd.Flags().BoolVar(&disableDumps, "disable-dumps", false, "disable all field dumps, keep probes")
	rootCmd.Flags().BoolVar(&debugMaterial, "debug-material", false, "dump material distribution")
	rootCmd.Flags().BoolVar(&debugOperator, "debug-operator", false, "dump operator coefficients")
	rootCmd.Flags().BoolVar(&debugPEC, "debug-pec", false, "dump pec cells")
	rootCmd.Flags().BoolVar(&debugBoxes, "debug-boxes", false, "dump probe and dump regions")
	rootCmd.Flags().BoolVar(&debugCSX, "debug-csx", false, "dump the parsed geometry")
	rootCmd.Flags().BoolVar(&noSimulation, "no-simulation", false, "preprocessing only, do not run the engine")
	rootCmd.Flags().BoolVar(&liveView, "live", false, "live progress view")
	rootCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve prometheus metrics on this address")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "list stored runs",
		RunE:  listRuns,
	}

	plotCmd := &cobra.Command{
		Use:   "plot [run_id]",
		Short: "plot the energy decay of a stored run",
		Args:  cobra.ExactArgs(1),
		RunE:  plotRun,
	}

	batchCmd := &cobra.Command{
		Use:   "batch [simulation files...]",
		Short: "run several simulation documents concurrently",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runBatch,
	}
	batchCmd.Flags().IntVar(&batchWorkers, "workers", 0, "concurrent runs (0: all at once)")
	batchCmd.Flags().StringVar(&engineName, "engine", "standard", "engine: standard, sse, sse-compressed, multithreaded")
	batchCmd.Flags().IntVar(&numThreads, "num-threads", 0, "worker threads for the multithreaded engine (0: all cpus)")
	batchCmd.Flags().BoolVar(&disableDumps, "disable-dumps", false, "disable all field dumps, keep probes")

	rootCmd.AddCommand(listCmd, plotCmd, batchCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(exitCode(err))
	}
}

// exitCode maps the error classes to the documented process exit codes.
func exitCode(err error) int {
	switch {
	case errors.Is(err, config.ErrReadFailed):
		return 2
	case errors.Is(err, config.ErrMissingTopLevel):
		return 3
	case errors.Is(err, config.ErrMissingFDTD):
		return 4
	case errors.Is(err, config.ErrMissingBoundary):
		return 5
	case errors.Is(err, sim.ErrGeometryBind):
		return 6
	case errors.Is(err, sim.ErrExcitationSetup):
		return 7
	}
	return 1
}

func engineType(name string) (sim.EngineType, error) {
	switch name {
	case "standard":
		return sim.EngineStandard, nil
	case "sse":
		return sim.EngineSSE, nil
	case "sse-compressed":
		return sim.EngineSSECompressed, nil
	case "multithreaded":
		return sim.EngineMultithreaded, nil
	}
	return 0, fmt.Errorf("unknown engine: %s", name)
}

func runSimulation(cmd *cobra.Command, args []string) error {
	configFile := args[0]

	envCfg, err := config.FromEnv()
	if err != nil {
		return err
	}
	if dataDir == "" {
		dataDir = envCfg.DataDir
	}
	if metricsAddr == "" {
		metricsAddr = envCfg.MetricsAddr
	}
	if numThreads == 0 {
		numThreads = envCfg.NumThreads
	}

	doc, err := config.Load(configFile)
	if err != nil {
		return err
	}

	s := sim.New()
	s.SetNumThreads(numThreads)
	s.SetEnableDumps(!disableDumps)
	s.SetNoSimulation(noSimulation)
	if debugMaterial {
		s.DebugMaterial()
	}
	if debugOperator {
		s.DebugOperator()
	}
	if debugPEC {
		s.DebugPEC()
	}
	if debugBoxes {
		s.DebugBox()
	}
	if debugCSX {
		s.DebugGeometry()
	}

	engine, err := engineType(engineName)
	if err != nil {
		return err
	}
	s.SetEngineType(engine)

	var collector *observability.RunCollector
	if metricsAddr != "" {
		collector, err = observability.NewRunCollector(nil)
		if err != nil {
			return err
		}
		collector.Serve(metricsAddr)
		s.SetCollector(collector)
	}

	status, err := s.Setup(doc)
	if err != nil {
		return err
	}
	if status == sim.StatusPreprocessOnly {
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	var result *sim.Result
	if liveView {
		view := tui.NewLiveView(cancel)
		s.SetStatusFunc(func(p sim.Progress) { view.Send(p) })
		// the view owns the terminal while the run is going
		s.SetOutput(io.Discard, io.Discard)
		done := make(chan error, 1)
		go func() {
			var runErr error
			result, runErr = s.Run(ctx)
			if result != nil {
				view.Done(result)
			}
			done <- runErr
		}()
		if err := view.Run(); err != nil {
			cancel()
		}
		if err := <-done; err != nil {
			return err
		}
	} else {
		result, err = s.Run(ctx)
		if err != nil {
			return err
		}
	}

	st := storage.New(dataDir)
	if err := st.Init(); err != nil {
		return err
	}
	history := make([]storage.EnergySample, len(result.History))
	for i, h := range result.History {
		history[i] = storage.EnergySample{Timestep: h.Timestep, Energy: h.Energy, DecayDB: h.DecayDB}
	}
	runID, err := st.Save(storage.RunMetadata{
		Timestamp:   time.Now(),
		ConfigFile:  configFile,
		Operator:    s.Operator().Type(),
		Timesteps:   result.Timesteps,
		Cells:       result.Cells,
		ElapsedSec:  result.Elapsed.Seconds(),
		SpeedMCells: result.SpeedMCells,
		StopReason:  result.Reason.String(),
		FinalEnergy: result.FinalEnergy,
		MaxEnergy:   result.MaxEnergy,
	}, history)
	if err != nil {
		return err
	}
	fmt.Printf("run id: %s\n", runID)
	return nil
}

func runBatch(cmd *cobra.Command, args []string) error {
	engine, err := engineType(engineName)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	configure := func(s *sim.Simulation) {
		s.SetEngineType(engine)
		s.SetNumThreads(numThreads)
		s.SetEnableDumps(!disableDumps)
		// per-timestep chatter from concurrent runs would interleave
		s.SetOutput(io.Discard, os.Stderr)
	}
	results := sim.NewBatch(configure, batchWorkers).Run(ctx, args)

	failed := 0
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "FILE\tTIMESTEPS\tSPEED\tSTOP")
	for _, r := range results {
		if r.Err != nil {
			failed++
			fmt.Fprintf(w, "%s\terror: %v\t\t\n", r.Path, r.Err)
			continue
		}
		fmt.Fprintf(w, "%s\t%d\t%.1f MC/s\t%s\n",
			r.Path, r.Result.Timesteps, r.Result.SpeedMCells, r.Result.Reason)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d runs failed", failed, len(results))
	}
	return nil
}

func listRuns(cmd *cobra.Command, args []string) error {
	if dataDir == "" {
		envCfg, err := config.FromEnv()
		if err != nil {
			return err
		}
		dataDir = envCfg.DataDir
	}
	st := storage.New(dataDir)
	runs, err := st.List()
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("no runs found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTIME\tOPERATOR\tTIMESTEPS\tCELLS\tSPEED\tSTOP")
	for _, run := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%.1f MC/s\t%s\n",
			run.ID,
			run.Timestamp.Format("2006-01-02 15:04:05"),
			run.Operator,
			run.Timesteps,
			run.Cells,
			run.SpeedMCells,
			run.StopReason,
		)
	}
	return w.Flush()
}

func plotRun(cmd *cobra.Command, args []string) error {
	runID := args[0]
	if dataDir == "" {
		envCfg, err := config.FromEnv()
		if err != nil {
			return err
		}
		dataDir = envCfg.DataDir
	}
	st := storage.New(dataDir)
	meta, err := st.Load(runID)
	if err != nil {
		return err
	}
	history, err := st.LoadEnergy(runID)
	if err != nil {
		return err
	}
	if len(history) == 0 {
		return fmt.Errorf("no energy history to plot")
	}

	fmt.Printf("run: %s\n", meta.ID)
	fmt.Printf("operator: %s\n", meta.Operator)
	fmt.Printf("timesteps: %d (%s)\n\n", meta.Timesteps, meta.StopReason)

	decay := make([]float64, len(history))
	for i, h := range history {
		decay[i] = -h.DecayDB
	}
	graph := asciigraph.Plot(decay,
		asciigraph.Height(10),
		asciigraph.Width(80),
		asciigraph.Caption("energy decay (dB)"),
	)
	fmt.Println(graph)
	fmt.Println()
	return nil
}
