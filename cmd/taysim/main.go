package main

import (
	"context"
	"encoding/csv"
	"fmt"
	"log/slog"
	"maps"
	"math"
	"math/big"
	"os"
	"slices"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/guptarohit/asciigraph"
	"github.com/spf13/cobra"

	"github.com/san-kum/taysim/internal/analysis"
	"github.com/san-kum/taysim/internal/config"
	"github.com/san-kum/taysim/internal/dynamo"
	"github.com/san-kum/taysim/internal/events"
	"github.com/san-kum/taysim/internal/export"
	"github.com/san-kum/taysim/internal/expr"
	"github.com/san-kum/taysim/internal/integrators"
	"github.com/san-kum/taysim/internal/metrics"
	"github.com/san-kum/taysim/internal/physics"
	"github.com/san-kum/taysim/internal/precision"
	"github.com/san-kum/taysim/internal/sim"
	"github.com/san-kum/taysim/internal/storage"
	"github.com/san-kum/taysim/internal/taylor"
	"github.com/san-kum/taysim/internal/viz"
)

var (
	dataDir string
	verbose bool

	configFile string
	presetName string
	dt         float64
	duration   float64
	start      float64
	order      int
	precName   string
	source     string
	integrator string
	recordN    int
	initState  string
	params     []string
	watch      []string
	haltExpr   string

	xAxis          string
	yAxis          string
	sectionTrigger string
	sectionDir     string
	asCSV          bool
	plotWidth      int
	plotHeight     int

	outFile      string
	svgPhase     bool
	plotVar      string
	stroke       string
	exportEvents bool

	checkOnly bool
	saveRuns  bool
)

var logger *slog.Logger

func main() {
	rootCmd := &cobra.Command{
		Use:   "taysim",
		Short: "taylor-series simulation with event detection",
	}
	rootCmd.PersistentFlags().StringVar(&dataDir, "data", ".taysim", "data directory")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "debug logging to stderr")
	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		level := slog.LevelWarn
		if verbose {
			level = slog.LevelDebug
		}
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	}

	runCmd := &cobra.Command{
		Use:   "run [model]",
		Short: "run a simulation and store the results",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runSimulation,
	}
	addRunFlags(runCmd)

	liveCmd := &cobra.Command{
		Use:   "live [model]",
		Short: "watch events fire in the terminal",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runLive,
	}
	addRunFlags(liveCmd)

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "list stored runs",
		RunE:  listRuns,
	}

	plotCmd := &cobra.Command{
		Use:   "plot [run_id]",
		Short: "plot a stored run",
		Args:  cobra.ExactArgs(1),
		RunE:  plotRun,
	}

	phaseCmd := &cobra.Command{
		Use:   "phase [run_id]",
		Short: "phase plane with event crossings marked",
		Args:  cobra.ExactArgs(1),
		RunE:  phasePlot,
	}
	phaseCmd.Flags().StringVar(&xAxis, "x-axis", "", "variable for the x axis")
	phaseCmd.Flags().StringVar(&yAxis, "y-axis", "", "variable for the y axis")
	phaseCmd.Flags().IntVar(&plotWidth, "width", 70, "plot width")
	phaseCmd.Flags().IntVar(&plotHeight, "height", 24, "plot height")

	poincareCmd := &cobra.Command{
		Use:   "poincare [model]",
		Short: "compute a poincare section from event crossings",
		Args:  cobra.MaximumNArgs(1),
		RunE:  poincareRun,
	}
	addRunFlags(poincareCmd)
	poincareCmd.Flags().StringVar(&sectionTrigger, "trigger", "", "section surface expression")
	poincareCmd.Flags().StringVar(&sectionDir, "direction", "positive", "crossing direction")
	poincareCmd.Flags().StringVar(&xAxis, "x-axis", "", "variable for the x axis")
	poincareCmd.Flags().StringVar(&yAxis, "y-axis", "", "variable for the y axis")
	poincareCmd.Flags().IntVar(&plotWidth, "width", 70, "plot width")
	poincareCmd.Flags().IntVar(&plotHeight, "height", 24, "plot height")
	poincareCmd.Flags().BoolVar(&asCSV, "csv", false, "emit crossings as csv instead of a plot")

	exportCSVCmd := &cobra.Command{
		Use:   "export-csv [run_id]",
		Short: "export run data to csv",
		Args:  cobra.ExactArgs(1),
		RunE:  exportCSV,
	}
	exportCSVCmd.Flags().BoolVar(&exportEvents, "events", false, "export the event log instead of the trace")

	exportJSONCmd := &cobra.Command{
		Use:   "export-json [run_id]",
		Short: "export run data to json",
		Args:  cobra.ExactArgs(1),
		RunE:  exportJSON,
	}

	svgCmd := &cobra.Command{
		Use:   "svg [run_id]",
		Short: "render a stored run as svg",
		Args:  cobra.ExactArgs(1),
		RunE:  svgExport,
	}
	svgCmd.Flags().StringVar(&outFile, "out", "", "output file (default <run_id>.svg)")
	svgCmd.Flags().BoolVar(&svgPhase, "phase", false, "render the phase plane instead of the time series")
	svgCmd.Flags().StringVar(&plotVar, "var", "", "variable for the time series")
	svgCmd.Flags().StringVar(&xAxis, "x-axis", "", "variable for the x axis (phase)")
	svgCmd.Flags().StringVar(&yAxis, "y-axis", "", "variable for the y axis (phase)")
	svgCmd.Flags().IntVar(&plotWidth, "width", 900, "image width")
	svgCmd.Flags().IntVar(&plotHeight, "height", 480, "image height")
	svgCmd.Flags().StringVar(&stroke, "stroke", "", "trajectory color")

	checkCmd := &cobra.Command{
		Use:   "check [config]",
		Short: "validate a run configuration",
		Args:  cobra.ExactArgs(1),
		RunE:  checkConfig,
	}

	suiteCmd := &cobra.Command{
		Use:   "suite [file]",
		Short: "run a scenario suite",
		Args:  cobra.ExactArgs(1),
		RunE:  runSuite,
	}
	suiteCmd.Flags().BoolVar(&checkOnly, "check", false, "validate the suite without running it")
	suiteCmd.Flags().BoolVar(&saveRuns, "save", false, "store every suite result")

	modelsCmd := &cobra.Command{
		Use:   "models",
		Short: "list the model catalog",
		RunE:  listModels,
	}

	precisionsCmd := &cobra.Command{
		Use:   "precisions",
		Short: "list the working precisions",
		RunE:  listPrecisions,
	}

	presetsCmd := &cobra.Command{
		Use:   "presets [model]",
		Short: "list run and event presets for a model",
		Args:  cobra.ExactArgs(1),
		RunE:  listModelPresets,
	}

	rootCmd.AddCommand(runCmd, liveCmd, listCmd, plotCmd, phaseCmd, poincareCmd,
		exportCSVCmd, exportJSONCmd, svgCmd, checkCmd, suiteCmd, modelsCmd,
		precisionsCmd, presetsCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runSimulation(cmd *cobra.Command, args []string) error {
	model := ""
	if len(args) > 0 {
		model = args[0]
	}
	cfg, err := buildConfig(cmd, model)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	m, err := physics.Build(cfg.Model, cfg.Params)
	if err != nil {
		return err
	}
	evs, err := cfg.ResolveEvents(m)
	if err != nil {
		return err
	}
	x0, err := cfg.State.Resolve(m.System.Vars(), m.Initial)
	if err != nil {
		return err
	}
	prec, err := precision.ParsePrecision(cfg.Precision)
	if err != nil {
		return err
	}

	st := storage.New(dataDir)
	if err := st.Init(); err != nil {
		return err
	}

	fmt.Printf("running %s (%s, %s)...\n", cfg.Model, prec, describeSource(cfg))
	began := time.Now()
	res, err := dispatchRun(context.Background(), prec, m, evs, x0, cfg)
	if err != nil {
		return err
	}
	elapsed := time.Since(began)

	runID, err := st.Save(runInfo(cfg, m, prec), res)
	if err != nil {
		return err
	}

	fmt.Printf("completed in %v\n", elapsed)
	fmt.Printf("run id: %s\n", runID)
	fmt.Printf("steps: %d\n", res.StepsTaken)
	fmt.Printf("samples: %d\n", len(res.States))
	if res.EnergyDrift > 0 {
		fmt.Printf("energy drift: %.3e\n", res.EnergyDrift)
	}

	printEvents(res)
	printMetrics(res.Metrics)
	return nil
}

func runLive(cmd *cobra.Command, args []string) error {
	model := ""
	if len(args) > 0 {
		model = args[0]
	}
	cfg, err := buildConfig(cmd, model)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	prec, err := precision.ParsePrecision(cfg.Precision)
	if err != nil {
		return err
	}
	if prec != precision.Double {
		return fmt.Errorf("%w: the live monitor runs in double precision",
			dynamo.ErrUnsupportedPrecision)
	}

	m, err := physics.Build(cfg.Model, cfg.Params)
	if err != nil {
		return err
	}
	evs, err := cfg.ResolveEvents(m)
	if err != nil {
		return err
	}
	if len(evs) == 0 {
		fmt.Println("no events configured; try --watch with one of the model presets")
	}
	x0, err := cfg.State.Resolve(m.System.Vars(), m.Initial)
	if err != nil {
		return err
	}

	ops := precision.ForDouble()
	src, err := doubleSource(ops, m, cfg)
	if err != nil {
		return err
	}
	det := events.NewDetector(ops, m.System.Vars(), logger)
	for _, ev := range evs {
		desc, err := eventDescriptor[float64](ev, m.System.Vars())
		if err != nil {
			return err
		}
		if _, err := det.Register(desc); err != nil {
			return err
		}
	}

	mon := viz.NewMonitor(cfg.Model, src, det, x0, cfg.Start, cfg.Dt, logger)
	if h, ok := m.Dynamics.(dynamo.Hamiltonian); ok {
		mon.SetEnergy(h.Energy)
	}
	p := tea.NewProgram(mon)
	_, err = p.Run()
	return err
}

func listRuns(cmd *cobra.Command, args []string) error {
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
	fmt.Fprintln(w, "ID\tMODEL\tTIME\tPREC\tSOURCE\tDT\tSTEPS\tEVENTS\tHALTED")
	for _, run := range runs {
		halted := ""
		if run.Halted {
			halted = run.HaltEvent
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%.4g\t%d\t%d\t%s\n",
			run.ID,
			run.Model,
			run.Timestamp.Format("2006-01-02 15:04:05"),
			run.Precision,
			run.Source,
			run.Dt,
			run.Steps,
			run.EventCount,
			halted,
		)
	}
	return w.Flush()
}

func plotRun(cmd *cobra.Command, args []string) error {
	runID := args[0]

	st := storage.New(dataDir)
	meta, err := st.Load(runID)
	if err != nil {
		return err
	}
	states, _, err := st.LoadStates(runID)
	if err != nil {
		return err
	}
	if len(states) == 0 {
		return fmt.Errorf("no data to plot")
	}

	fmt.Printf("run: %s\n", meta.ID)
	fmt.Printf("model: %s (%s, %s)\n", meta.Model, meta.Precision, meta.Source)
	fmt.Printf("samples: %d\n\n", len(states))

	dim := len(states[0])
	maxPlots := 6
	if dim > maxPlots {
		dim = maxPlots
	}
	for v := 0; v < dim; v++ {
		data := make([]float64, len(states))
		for i := range states {
			if v < len(states[i]) {
				data[i] = states[i][v]
			}
		}

		caption := fmt.Sprintf("x%d", v)
		if v < len(meta.Vars) {
			caption = meta.Vars[v]
		}
		graph := asciigraph.Plot(data,
			asciigraph.Height(10),
			asciigraph.Width(80),
			asciigraph.Caption(caption),
		)
		fmt.Println(graph)
		fmt.Println()
	}

	recs, err := st.LoadEvents(runID)
	if err == nil && len(recs) > 0 {
		fmt.Printf("events (%d):\n", len(recs))
		show := recs
		if len(show) > 12 {
			fmt.Printf("  ... %d earlier\n", len(show)-12)
			show = show[len(show)-12:]
		}
		for _, r := range show {
			fmt.Printf("  %.6f  %-16s %s\n", r.Time, r.Name, r.Direction)
		}
	}
	if meta.Halted {
		fmt.Printf("halted by %s at t=%.6f\n", meta.HaltEvent, meta.HaltTime)
	}
	return nil
}

func phasePlot(cmd *cobra.Command, args []string) error {
	runID := args[0]

	st := storage.New(dataDir)
	meta, err := st.Load(runID)
	if err != nil {
		return err
	}
	states, times, err := st.LoadStates(runID)
	if err != nil {
		return err
	}
	if len(states) == 0 {
		return fmt.Errorf("no data to plot")
	}

	dim := len(states[0])
	xi, err := varIndex(meta.Vars, xAxis, 0, dim)
	if err != nil {
		return err
	}
	yi, err := varIndex(meta.Vars, yAxis, 1, dim)
	if err != nil {
		return err
	}

	res := &sim.Result{Times: times, States: make([]dynamo.State, len(states))}
	for i, s := range states {
		res.States[i] = s
	}
	portrait := analysis.PhasePortrait(res, xi, yi)
	if portrait == nil {
		return fmt.Errorf("state dimension too small for the selected axes")
	}

	// Crossing marks land at the recorded sample nearest each firing.
	recs, _ := st.LoadEvents(runID)
	section := &analysis.Section{XIndex: xi, YIndex: yi}
	for _, r := range recs {
		i := nearestTime(times, r.Time)
		if i < 0 || xi >= len(states[i]) || yi >= len(states[i]) {
			continue
		}
		section.Points = append(section.Points, analysis.Point{X: states[i][xi], Y: states[i][yi]})
		section.Times = append(section.Times, r.Time)
	}

	fmt.Printf("phase: %s\n", meta.ID)
	fmt.Printf("x: %s, y: %s\n\n", axisName(meta.Vars, xi), axisName(meta.Vars, yi))
	fmt.Print(analysis.OverlayToASCII(portrait, section, plotWidth, plotHeight))
	if len(section.Points) > 0 {
		fmt.Printf("\n%d crossings marked ×\n", len(section.Points))
	}
	return nil
}

func poincareRun(cmd *cobra.Command, args []string) error {
	model := ""
	if len(args) > 0 {
		model = args[0]
	}
	cfg, err := buildConfig(cmd, model)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	m, err := physics.Build(cfg.Model, cfg.Params)
	if err != nil {
		return err
	}
	x0, err := cfg.State.Resolve(m.System.Vars(), m.Initial)
	if err != nil {
		return err
	}
	prec, err := precision.ParsePrecision(cfg.Precision)
	if err != nil {
		return err
	}

	trigSrc := sectionTrigger
	dirName := sectionDir
	if trigSrc == "" && len(watch) == 1 {
		for _, p := range m.Presets {
			if p.Name == watch[0] {
				trigSrc = p.Trigger
				if !cmd.Flags().Changed("direction") {
					dirName = p.Direction
				}
				break
			}
		}
	}
	if trigSrc == "" {
		return fmt.Errorf("a section needs --trigger, or --watch with one model event preset")
	}

	vars := m.System.Vars()
	trig, err := expr.Parse(trigSrc, vars)
	if err != nil {
		return err
	}
	dir, err := events.ParseDirection(dirName)
	if err != nil {
		return err
	}
	xi, err := varIndex(vars, xAxis, 0, len(vars))
	if err != nil {
		return err
	}
	yi, err := varIndex(vars, yAxis, 1, len(vars))
	if err != nil {
		return err
	}

	ctx := context.Background()
	var section *analysis.Section
	switch prec {
	case precision.Extended:
		ops := precision.ForExtended()
		src, serr := taylor.NewStepper(ops, m.System, cfg.Order, logger)
		if serr != nil {
			return serr
		}
		section, err = analysis.PoincareSection(ctx, ops, src, trig, dir, xi, yi,
			workingState(ops, x0), cfg.SimConfig(), logger)
	case precision.Quad:
		ops := precision.ForQuad()
		src, serr := taylor.NewStepper(ops, m.System, cfg.Order, logger)
		if serr != nil {
			return serr
		}
		section, err = analysis.PoincareSection(ctx, ops, src, trig, dir, xi, yi,
			workingState(ops, x0), cfg.SimConfig(), logger)
	default:
		ops := precision.ForDouble()
		src, serr := doubleSource(ops, m, cfg)
		if serr != nil {
			return serr
		}
		section, err = analysis.PoincareSection(ctx, ops, src, trig, dir, xi, yi,
			x0, cfg.SimConfig(), logger)
	}
	if err != nil {
		return err
	}

	if asCSV {
		w := csv.NewWriter(os.Stdout)
		if err := w.Write([]string{axisName(vars, xi), axisName(vars, yi), "time"}); err != nil {
			return err
		}
		for i, p := range section.Points {
			row := []string{shortFloat(p.X), shortFloat(p.Y), shortFloat(section.Times[i])}
			if err := w.Write(row); err != nil {
				return err
			}
		}
		w.Flush()
		return w.Error()
	}

	fmt.Printf("poincare section: %s, trigger %s (%s)\n", cfg.Model, trigSrc, dir)
	fmt.Printf("axes: %s vs %s\n\n", axisName(vars, xi), axisName(vars, yi))
	fmt.Print(analysis.SectionToASCII(section, plotWidth, plotHeight))
	fmt.Printf("\ncrossings: %d\n", len(section.Points))
	return nil
}

func exportCSV(cmd *cobra.Command, args []string) error {
	runID := args[0]

	st := storage.New(dataDir)
	meta, states, times, recs, err := loadRun(st, runID)
	if err != nil {
		return err
	}
	res := asResult(meta, states, times, recs)
	if exportEvents {
		return storage.ExportEventsCSV(os.Stdout, res)
	}
	return storage.ExportStatesCSV(os.Stdout, meta.Vars, res)
}

func exportJSON(cmd *cobra.Command, args []string) error {
	runID := args[0]

	st := storage.New(dataDir)
	meta, states, times, recs, err := loadRun(st, runID)
	if err != nil {
		return err
	}
	info := storage.RunInfo{
		Model:     meta.Model,
		Precision: meta.Precision,
		Source:    meta.Source,
		Order:     meta.Order,
		Dt:        meta.Dt,
		Duration:  meta.Duration,
		Vars:      meta.Vars,
	}
	return storage.ExportJSON(os.Stdout, info, asResult(meta, states, times, recs))
}

func svgExport(cmd *cobra.Command, args []string) error {
	runID := args[0]

	st := storage.New(dataDir)
	meta, states, times, recs, err := loadRun(st, runID)
	if err != nil {
		return err
	}
	if len(states) == 0 {
		return fmt.Errorf("no data to plot")
	}
	res := asResult(meta, states, times, recs)
	dim := len(states[0])

	var doc string
	if svgPhase {
		xi, err := varIndex(meta.Vars, xAxis, 0, dim)
		if err != nil {
			return err
		}
		yi, err := varIndex(meta.Vars, yAxis, 1, dim)
		if err != nil {
			return err
		}
		doc = export.PhaseSVG(res, xi, yi, plotWidth, plotHeight, stroke)
	} else {
		vi, err := varIndex(meta.Vars, plotVar, 0, dim)
		if err != nil {
			return err
		}
		doc = export.TimeSeriesSVG(res, vi, plotWidth, plotHeight, stroke)
	}
	if doc == "" {
		return fmt.Errorf("no data to plot")
	}

	out := outFile
	if out == "" {
		out = runID + ".svg"
	}
	if err := os.WriteFile(out, []byte(doc), 0644); err != nil {
		return err
	}
	fmt.Printf("wrote %s\n", out)
	return nil
}

func checkConfig(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(args[0])
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	m, err := physics.Build(cfg.Model, cfg.Params)
	if err != nil {
		return err
	}
	evs, err := cfg.ResolveEvents(m)
	if err != nil {
		return err
	}
	x0, err := cfg.State.Resolve(m.System.Vars(), m.Initial)
	if err != nil {
		return err
	}
	prec, err := precision.ParsePrecision(cfg.Precision)
	if err != nil {
		return err
	}

	fmt.Printf("%s: ok\n", args[0])
	fmt.Printf("model: %s\n", cfg.Model)
	pnames := sortedKeys(m.Params)
	parts := make([]string, 0, len(pnames))
	for _, p := range pnames {
		parts = append(parts, fmt.Sprintf("%s=%g", p, m.Params[p]))
	}
	fmt.Printf("params: %s\n", strings.Join(parts, ", "))
	fmt.Printf("precision: %s (%d mantissa bits)\n", prec, prec.Bits())
	fmt.Printf("source: %s\n", describeSource(cfg))
	end := cfg.Start + math.Copysign(cfg.Duration, cfg.Dt)
	fmt.Printf("span: t=%g to %g, dt=%g\n", cfg.Start, end, cfg.Dt)
	fmt.Printf("state: %v (%s)\n", x0, strings.Join(m.System.Vars(), ", "))

	if len(evs) == 0 {
		fmt.Println("events: none")
		return nil
	}
	fmt.Printf("events (%d):\n", len(evs))
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "  NAME\tTRIGGER\tDIRECTION\tKIND\tCOOLDOWN")
	for _, ev := range evs {
		dir, _ := events.ParseDirection(ev.Direction)
		kind, _ := events.ParseKind(ev.Kind)
		fmt.Fprintf(w, "  %s\t%s\t%s\t%s\t%g\n", ev.Name, ev.Trigger, dir, kind, ev.Cooldown)
	}
	return w.Flush()
}

func runSuite(cmd *cobra.Command, args []string) error {
	suite, err := config.LoadSuite(args[0])
	if err != nil {
		return err
	}
	if err := suite.Validate(); err != nil {
		return err
	}

	if suite.Name != "" {
		fmt.Printf("suite: %s\n", suite.Name)
	}
	if checkOnly {
		fmt.Printf("%s: ok (%d runs)\n", args[0], len(suite.Runs))
		for _, run := range suite.Runs {
			rc := run.Config(suite.Base)
			n := 1
			if run.Grid != nil {
				n = run.Grid.Count
			}
			fmt.Printf("  %s: %s, %d starts\n", run.Name, rc.Model, n)
		}
		return nil
	}

	st := storage.New(dataDir)
	if saveRuns {
		if err := st.Init(); err != nil {
			return err
		}
	}

	ctx := context.Background()
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "RUN\tSTART\tSTEPS\tEVENTS\tHALT\tDRIFT")
	for _, run := range suite.Runs {
		rc := run.Config(suite.Base)
		m, err := physics.Build(rc.Model, rc.Params)
		if err != nil {
			return fmt.Errorf("run %q: %w", run.Name, err)
		}
		evs, err := rc.ResolveEvents(m)
		if err != nil {
			return fmt.Errorf("run %q: %w", run.Name, err)
		}
		starts, err := run.Starts(m.System.Vars(), m.Initial)
		if err != nil {
			return fmt.Errorf("run %q: %w", run.Name, err)
		}
		prec, err := precision.ParsePrecision(rc.Precision)
		if err != nil {
			return fmt.Errorf("run %q: %w", run.Name, err)
		}

		results, err := dispatchSuite(ctx, prec, m, evs, starts, &rc)
		if err != nil {
			return fmt.Errorf("run %q: %w", run.Name, err)
		}

		for i, res := range results {
			halt := ""
			if res.Halt != nil {
				halt = fmt.Sprintf("%s@%.4f", res.Halt.Name, res.Halt.Time)
			}
			fmt.Fprintf(w, "%s\t%v\t%d\t%d\t%s\t%.2e\n",
				run.Name, starts[i], res.StepsTaken, len(res.Events), halt, res.EnergyDrift)
			if saveRuns {
				if _, err := st.Save(runInfo(&rc, m, prec), res); err != nil {
					return err
				}
			}
		}
	}
	return w.Flush()
}

func listModels(cmd *cobra.Command, args []string) error {
	for _, name := range physics.Names() {
		m, err := physics.Default(name)
		if err != nil {
			return err
		}

		fmt.Printf("%s (%s)\n", name, strings.Join(m.System.Vars(), ", "))
		pnames := sortedKeys(m.Params)
		parts := make([]string, 0, len(pnames))
		for _, p := range pnames {
			parts = append(parts, fmt.Sprintf("%s=%g", p, m.Params[p]))
		}
		fmt.Printf("  params: %s\n", strings.Join(parts, ", "))
		for _, p := range m.Presets {
			extra := ""
			if p.Cooldown > 0 {
				extra = fmt.Sprintf(", cooldown %gs", p.Cooldown)
			}
			fmt.Printf("  event %s: %s (%s%s)\n", p.Name, p.Trigger, p.Direction, extra)
		}
		if presets := config.ListPresets(name); len(presets) > 0 {
			fmt.Printf("  presets: %s\n", strings.Join(presets, ", "))
		}
		fmt.Println()
	}
	return nil
}

func listPrecisions(cmd *cobra.Command, args []string) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tMANTISSA\tEPSILON\tAVAILABLE")
	for _, p := range []precision.Precision{precision.Double, precision.Extended, precision.Quad} {
		fmt.Fprintf(w, "%s\t%d bits\t%.3e\t%v\n",
			p, p.Bits(), precision.Epsilon(p.Bits()), precision.Available(p))
	}
	return w.Flush()
}

func listModelPresets(cmd *cobra.Command, args []string) error {
	model := args[0]

	names := config.ListPresets(model)
	if len(names) == 0 {
		fmt.Printf("no presets for model: %s\n", model)
	} else {
		fmt.Printf("presets for %s:\n", model)
		for _, name := range names {
			p := config.GetPreset(model, name)
			fmt.Printf("  %s: %gs at dt=%g\n", name, p.Duration, p.Dt)
		}
	}

	m, err := physics.Default(model)
	if err != nil {
		return err
	}
	if len(m.Presets) > 0 {
		fmt.Println("event presets:")
		for _, p := range m.Presets {
			fmt.Printf("  %s: %s (%s)\n", p.Name, p.Trigger, p.Direction)
		}
	}
	return nil
}

func addRunFlags(c *cobra.Command) {
	c.Flags().StringVar(&configFile, "config", "", "config file path (yaml)")
	c.Flags().StringVar(&presetName, "preset", "", "use a preset configuration")
	c.Flags().Float64Var(&dt, "dt", config.DefaultDt, "timestep (negative runs backward)")
	c.Flags().Float64Var(&duration, "time", config.DefaultDuration, "duration")
	c.Flags().Float64Var(&start, "start", 0, "initial time")
	c.Flags().IntVar(&order, "order", config.DefaultOrder, "series order")
	c.Flags().StringVar(&precName, "precision", "double", "working precision (double, extended, quad)")
	c.Flags().StringVar(&source, "source", "taylor", "dense step source (taylor, hermite)")
	c.Flags().StringVar(&integrator, "integrator", "rk4", "integrator behind the hermite source")
	c.Flags().IntVar(&recordN, "record-every", 0, "keep every nth sample")
	c.Flags().StringVar(&initState, "state", "", "initial state as comma-separated values")
	c.Flags().StringArrayVar(&params, "param", nil, "model parameter override (name=value)")
	c.Flags().StringSliceVar(&watch, "watch", nil, "enable model event presets")
	c.Flags().StringVar(&haltExpr, "halt", "", "terminal trigger expression")
}

// buildConfig assembles the effective run configuration: preset first, then
// config file, then explicit flags, each layer overriding the one before.
func buildConfig(cmd *cobra.Command, model string) (*config.Config, error) {
	cfg := config.DefaultConfig()

	if presetName != "" {
		if model == "" {
			return nil, fmt.Errorf("a preset needs the model argument")
		}
		p := config.GetPreset(model, presetName)
		if p == nil {
			return nil, fmt.Errorf("unknown preset: %s (available: %v)",
				presetName, config.ListPresets(model))
		}
		c := *p
		c.Params = maps.Clone(p.Params)
		c.Events = slices.Clone(p.Events)
		c.Presets = slices.Clone(p.Presets)
		cfg = &c
	}

	if configFile != "" {
		loaded, err := config.Load(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		cfg = loaded
	}

	if model != "" {
		cfg.Model = model
	}
	if cmd.Flags().Changed("dt") {
		cfg.Dt = dt
	}
	if cmd.Flags().Changed("time") {
		cfg.Duration = duration
	}
	if cmd.Flags().Changed("start") {
		cfg.Start = start
	}
	if cmd.Flags().Changed("order") {
		cfg.Order = order
	}
	if cmd.Flags().Changed("precision") {
		cfg.Precision = precName
	}
	if cmd.Flags().Changed("source") {
		cfg.Source = source
	}
	if cmd.Flags().Changed("record-every") {
		cfg.RecordEvery = recordN
	}

	if initState != "" {
		vals, err := parseStateFlag(initState)
		if err != nil {
			return nil, err
		}
		cfg.State = config.StateValues(vals...)
	}
	for _, kv := range params {
		name, val, err := parseParamFlag(kv)
		if err != nil {
			return nil, err
		}
		if cfg.Params == nil {
			cfg.Params = make(map[string]float64)
		}
		cfg.Params[name] = val
	}
	cfg.Presets = append(cfg.Presets, watch...)
	if haltExpr != "" {
		cfg.Events = append(cfg.Events, config.EventConfig{
			Name: "halt", Trigger: haltExpr, Kind: "terminal",
		})
	}

	return cfg, nil
}

func parseStateFlag(s string) ([]float64, error) {
	fields := strings.Split(s, ",")
	vals := make([]float64, 0, len(fields))
	for _, f := range fields {
		v, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
		if err != nil {
			return nil, fmt.Errorf("bad state value %q", f)
		}
		vals = append(vals, v)
	}
	return vals, nil
}

func parseParamFlag(kv string) (string, float64, error) {
	name, raw, ok := strings.Cut(kv, "=")
	if !ok {
		return "", 0, fmt.Errorf("bad parameter %q (want name=value)", kv)
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return "", 0, fmt.Errorf("bad parameter value %q", kv)
	}
	return strings.TrimSpace(name), v, nil
}

// dispatchRun builds the per-precision pipeline and drives one run. The
// hermite source exists in double only; Validate has already enforced that.
func dispatchRun(ctx context.Context, prec precision.Precision, m *physics.Model,
	evs []config.EventConfig, x0 []float64, cfg *config.Config) (*sim.Result, error) {
	switch prec {
	case precision.Extended:
		ops := precision.ForExtended()
		src, err := taylor.NewStepper(ops, m.System, cfg.Order, logger)
		if err != nil {
			return nil, err
		}
		return runPipeline(ctx, ops, src, m, evs, x0, cfg.SimConfig())
	case precision.Quad:
		ops := precision.ForQuad()
		src, err := taylor.NewStepper(ops, m.System, cfg.Order, logger)
		if err != nil {
			return nil, err
		}
		return runPipeline(ctx, ops, src, m, evs, x0, cfg.SimConfig())
	default:
		ops := precision.ForDouble()
		src, err := doubleSource(ops, m, cfg)
		if err != nil {
			return nil, err
		}
		return runPipeline(ctx, ops, src, m, evs, x0, cfg.SimConfig())
	}
}

func dispatchSuite(ctx context.Context, prec precision.Precision, m *physics.Model,
	evs []config.EventConfig, starts [][]float64, cfg *config.Config) ([]*sim.Result, error) {
	switch prec {
	case precision.Extended:
		ops := precision.ForExtended()
		return suitePipeline(ctx, ops, func() (sim.Source[*big.Float], error) {
			return taylor.NewStepper(ops, m.System, cfg.Order, logger)
		}, m, evs, starts, cfg.SimConfig())
	case precision.Quad:
		ops := precision.ForQuad()
		return suitePipeline(ctx, ops, func() (sim.Source[*big.Float], error) {
			return taylor.NewStepper(ops, m.System, cfg.Order, logger)
		}, m, evs, starts, cfg.SimConfig())
	default:
		ops := precision.ForDouble()
		return suitePipeline(ctx, ops, func() (sim.Source[float64], error) {
			return doubleSource(ops, m, cfg)
		}, m, evs, starts, cfg.SimConfig())
	}
}

func doubleSource(ops precision.Arith[float64], m *physics.Model, cfg *config.Config) (sim.Source[float64], error) {
	if cfg.Source == "hermite" {
		ig, err := pickIntegrator(integrator)
		if err != nil {
			return nil, err
		}
		return taylor.NewHermiteSource(m.Dynamics, ig), nil
	}
	return taylor.NewStepper(ops, m.System, cfg.Order, logger)
}

func runPipeline[T any](ctx context.Context, ops precision.Arith[T], src sim.Source[T],
	m *physics.Model, evs []config.EventConfig, x0 []float64, simCfg sim.Config) (*sim.Result, error) {
	r, err := newRunner(ops, src, m, evs)
	if err != nil {
		return nil, err
	}
	return r.Run(ctx, workingState(ops, x0), simCfg)
}

// suitePipeline fans one configuration across starts; every goroutine gets
// its own source and runner from the build function.
func suitePipeline[T any](ctx context.Context, ops precision.Arith[T], mkSrc func() (sim.Source[T], error),
	m *physics.Model, evs []config.EventConfig, starts [][]float64, simCfg sim.Config) ([]*sim.Result, error) {
	ens := sim.NewEnsemble(func() (*sim.Runner[T], error) {
		src, err := mkSrc()
		if err != nil {
			return nil, err
		}
		return newRunner(ops, src, m, evs)
	})
	ts := make([][]T, len(starts))
	for i, s := range starts {
		ts[i] = workingState(ops, s)
	}
	return ens.Run(ctx, ts, simCfg)
}

// stateBound is where the stability metric starts counting a sample as
// diverged.
const stateBound = 1e6

// newRunner wires the configured events, the standard metric set and the
// model energy around one runner.
func newRunner[T any](ops precision.Arith[T], src sim.Source[T], m *physics.Model,
	evs []config.EventConfig) (*sim.Runner[T], error) {
	vars := m.System.Vars()
	det := events.NewDetector(ops, vars, logger)
	for _, ev := range evs {
		desc, err := eventDescriptor[T](ev, vars)
		if err != nil {
			return nil, err
		}
		if _, err := det.Register(desc); err != nil {
			return nil, err
		}
	}

	r := sim.NewRunner(ops, src, det, logger)
	if h, ok := m.Dynamics.(dynamo.Hamiltonian); ok {
		r.SetEnergy(h.Energy)
		r.AddMetric(metrics.NewMeanEnergy(m.Dynamics))
	}
	fc := metrics.NewFiringCount("")
	sup := metrics.NewSuppressedCount("")
	gap := metrics.NewMinGap("")
	if s := r.Scanner(); s != nil {
		s.AddObserver(fc)
		s.AddObserver(sup)
		s.AddObserver(gap)
	}
	r.AddMetric(fc)
	r.AddMetric(sup)
	r.AddMetric(gap)
	r.AddMetric(metrics.NewStability(stateBound))
	return r, nil
}

func eventDescriptor[T any](ev config.EventConfig, vars []string) (events.Descriptor[T], error) {
	var d events.Descriptor[T]
	trig, err := expr.Parse(ev.Trigger, vars)
	if err != nil {
		return d, err
	}
	dir, err := events.ParseDirection(ev.Direction)
	if err != nil {
		return d, err
	}
	kind, err := events.ParseKind(ev.Kind)
	if err != nil {
		return d, err
	}
	disp, err := events.ParseDisposition(ev.Disposition)
	if err != nil {
		return d, err
	}
	return events.Descriptor[T]{
		Name:        ev.Name,
		Trigger:     trig,
		Direction:   dir,
		Kind:        kind,
		Cooldown:    ev.Cooldown,
		Disposition: disp,
	}, nil
}

func pickIntegrator(name string) (dynamo.Integrator, error) {
	switch name {
	case "", "rk4":
		return integrators.NewRK4(), nil
	case "euler":
		return integrators.NewEuler(), nil
	case "rk45":
		return integrators.NewRK45(), nil
	case "verlet":
		return integrators.NewVerlet(), nil
	default:
		return nil, fmt.Errorf("unknown integrator %q (want euler, rk4, rk45 or verlet)", name)
	}
}

func workingState[T any](ops precision.Arith[T], x []float64) []T {
	out := make([]T, len(x))
	for i, v := range x {
		out[i] = ops.FromFloat(v)
	}
	return out
}

func runInfo(cfg *config.Config, m *physics.Model, prec precision.Precision) storage.RunInfo {
	return storage.RunInfo{
		Model:     cfg.Model,
		Precision: prec.String(),
		Source:    normalizeSource(cfg.Source),
		Order:     cfg.Order,
		Dt:        cfg.Dt,
		Duration:  cfg.Duration,
		Vars:      m.System.Vars(),
	}
}

func normalizeSource(s string) string {
	if s == "" {
		return "taylor"
	}
	return s
}

func describeSource(cfg *config.Config) string {
	if normalizeSource(cfg.Source) == "hermite" {
		ig := integrator
		if ig == "" {
			ig = "rk4"
		}
		return "hermite over " + ig
	}
	return fmt.Sprintf("taylor order %d", cfg.Order)
}

// loadRun pulls all three artifacts of a stored run.
func loadRun(st *storage.Store, runID string) (*storage.RunMetadata, [][]float64, []float64, []storage.EventRecord, error) {
	meta, err := st.Load(runID)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	states, times, err := st.LoadStates(runID)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	recs, err := st.LoadEvents(runID)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	return meta, states, times, recs, nil
}

// asResult rebuilds a result from stored artifacts so the export and plot
// paths work the same on live and loaded runs.
func asResult(meta *storage.RunMetadata, states [][]float64, times []float64, recs []storage.EventRecord) *sim.Result {
	res := &sim.Result{
		Times:       times,
		States:      make([]dynamo.State, len(states)),
		StepsTaken:  meta.Steps,
		EnergyDrift: meta.EnergyDrift,
		Metrics:     meta.Metrics,
	}
	for i, s := range states {
		res.States[i] = s
	}
	for _, r := range recs {
		dir, _ := events.ParseDirection(r.Direction)
		res.Events = append(res.Events, events.Firing{
			Name:      r.Name,
			Time:      r.Time,
			Direction: dir,
			Value:     r.Value,
			Ambiguous: r.Ambiguous,
		})
	}
	if meta.Halted {
		res.Halt = &events.Firing{Name: meta.HaltEvent, Time: meta.HaltTime}
	}
	return res
}

// varIndex resolves an axis flag to a state index: a variable name, a bare
// index, or the fallback when empty.
func varIndex(vars []string, flag string, fallback, dim int) (int, error) {
	if flag == "" {
		if fallback >= dim {
			return 0, fmt.Errorf("state dimension %d has no variable %d", dim, fallback)
		}
		return fallback, nil
	}
	if i := slices.Index(vars, flag); i >= 0 && i < dim {
		return i, nil
	}
	if n, err := strconv.Atoi(flag); err == nil && n >= 0 && n < dim {
		return n, nil
	}
	return 0, fmt.Errorf("unknown variable %q (have %s)", flag, strings.Join(vars, ", "))
}

func axisName(vars []string, i int) string {
	if i < len(vars) {
		return vars[i]
	}
	return fmt.Sprintf("x%d", i)
}

// nearestTime finds the sample closest to t. Times may run backward, so
// the lookup scans instead of bisecting.
func nearestTime(times []float64, t float64) int {
	if len(times) == 0 {
		return -1
	}
	best := 0
	bd := math.Abs(times[0] - t)
	for i, v := range times[1:] {
		if d := math.Abs(v - t); d < bd {
			best, bd = i+1, d
		}
	}
	return best
}

func printEvents(res *sim.Result) {
	if len(res.Events) == 0 && res.Halt == nil {
		return
	}

	fmt.Printf("\nevents (%d firings):\n", len(res.Events))
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "  TIME\tEVENT\tDIRECTION\tVALUE")
	show := res.Events
	if len(show) > 12 {
		fmt.Fprintf(w, "  ...\t%d earlier\t\t\n", len(show)-12)
		show = show[len(show)-12:]
	}
	for _, f := range show {
		amb := ""
		if f.Ambiguous {
			amb = " ~"
		}
		fmt.Fprintf(w, "  %.6f\t%s\t%s%s\t%g\n", f.Time, f.Name, f.Direction, amb, f.Value)
	}
	w.Flush()

	if res.Halt != nil {
		fmt.Printf("halted by %s at t=%.6f\n", res.Halt.Name, res.Halt.Time)
	}
}

func printMetrics(m map[string]float64) {
	if len(m) == 0 {
		return
	}
	fmt.Println("\nmetrics:")
	for _, name := range sortedKeys(m) {
		fmt.Printf("  %s: %g\n", name, m[name])
	}
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func shortFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
