package main

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"os"
	"os/signal"
	"strings"
	"text/tabwriter"

	"github.com/charmbracelet/lipgloss/tree"
	"github.com/guptarohit/asciigraph"
	"github.com/spf13/cobra"

	"github.com/san-kum/blocksim/internal/analysis"
	"github.com/san-kum/blocksim/internal/config"
	"github.com/san-kum/blocksim/internal/ctxlog"
	"github.com/san-kum/blocksim/internal/framework"
	"github.com/san-kum/blocksim/internal/metrics"
	"github.com/san-kum/blocksim/internal/plants"
	"github.com/san-kum/blocksim/internal/registry"
	"github.com/san-kum/blocksim/internal/storage"
	"github.com/san-kum/blocksim/internal/sweep"
	"github.com/san-kum/blocksim/internal/tui"
)

var (
	dataDir  string
	logLevel string
	preset   string

	atTime    float64
	start     float64
	stop      float64
	dt        float64
	output    string
	save      bool
	live      bool
	frameRate int
	maxPlots  int
	bound     float64
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "blocksim",
		Short:         "block-diagram system evaluation",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level, err := ctxlog.ParseLevel(logLevel)
			if err != nil {
				return fmt.Errorf("log level: %w", err)
			}
			logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
			cmd.SetContext(ctxlog.WithLogger(cmd.Context(), logger))
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVar(&dataDir, "data", ".blocksim", "data directory")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level (debug, info, warn, error)")

	diagramCmd := func(use, short string, run func(*cobra.Command, *loaded) error) *cobra.Command {
		c := &cobra.Command{
			Use:   use + " [file]",
			Short: short,
			Args:  cobra.MaximumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				l, err := load(cmd.Context(), args)
				if err != nil {
					return err
				}
				return run(cmd, l)
			},
		}
		c.Flags().StringVar(&preset, "preset", "", "use a built-in diagram instead of a file")
		return c
	}

	evalCmd := diagramCmd("eval", "evaluate every output of a diagram", evalOutputs)
	evalCmd.Flags().Float64Var(&atTime, "time", 0, "evaluation time (default: the file's time)")

	derivsCmd := diagramCmd("derivs", "print continuous state and time derivatives", printDerivatives)
	derivsCmd.Flags().Float64Var(&atTime, "time", 0, "evaluation time (default: the file's time)")

	describeCmd := diagramCmd("describe", "print the diagram structure", describe)

	sweepCmd := diagramCmd("sweep", "evaluate an output over a time grid", runSweep)
	sweepCmd.Flags().Float64Var(&start, "start", config.DefaultStart, "first sample time")
	sweepCmd.Flags().Float64Var(&stop, "stop", config.DefaultStop, "last sample time")
	sweepCmd.Flags().Float64Var(&dt, "dt", config.DefaultDt, "sample spacing")
	sweepCmd.Flags().StringVar(&output, "output", "", "output port name (default: first output)")
	sweepCmd.Flags().BoolVar(&save, "save", true, "store the run")
	sweepCmd.Flags().BoolVar(&live, "live", false, "draw samples as they are taken")
	sweepCmd.Flags().IntVar(&frameRate, "fps", 30, "frame rate for --live")
	sweepCmd.Flags().IntVar(&maxPlots, "plots", 4, "number of elements to plot, 0 for none")
	sweepCmd.Flags().Float64Var(&bound, "bound", 1, "threshold for the within_bound metric")

	inspectCmd := diagramCmd("inspect", "browse subsystems and their values", inspect)
	inspectCmd.Flags().Float64Var(&dt, "dt", 0.1, "time step for stepping and playback")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "list stored sweeps",
		RunE:  listRuns,
	}

	plotCmd := &cobra.Command{
		Use:   "plot [run_id]",
		Short: "plot a stored sweep",
		Args:  cobra.ExactArgs(1),
		RunE:  plotRun,
	}
	plotCmd.Flags().IntVar(&maxPlots, "plots", 6, "number of elements to plot")

	exportCmd := &cobra.Command{
		Use:   "export [run_id]",
		Short: "write a stored sweep as json",
		Args:  cobra.ExactArgs(1),
		RunE:  exportRun,
	}

	analyzeCmd := &cobra.Command{
		Use:   "analyze [run_id]",
		Short: "frequency analysis of a stored sweep",
		Args:  cobra.ExactArgs(1),
		RunE:  analyzeRun,
	}

	presetsCmd := &cobra.Command{
		Use:   "presets [name]",
		Short: "list built-in diagrams or print one as yaml",
		Args:  cobra.MaximumNArgs(1),
		RunE:  listPresets,
	}

	kindsCmd := &cobra.Command{
		Use:   "kinds",
		Short: "list block kinds",
		RunE:  listKinds,
	}

	rootCmd.AddCommand(evalCmd, derivsCmd, describeCmd, sweepCmd, inspectCmd,
		listCmd, plotCmd, exportCmd, analyzeCmd, presetsCmd, kindsCmd)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		cancel()
		os.Exit(1)
	}
}

type loaded struct {
	source  string
	file    *config.File
	diagram *framework.Diagram
	context framework.Context
}

// load reads the diagram named by the file argument or --preset, builds it
// and creates its context.
func load(ctx context.Context, args []string) (*loaded, error) {
	var (
		f      *config.File
		source string
		err    error
	)
	switch {
	case preset != "" && len(args) > 0:
		return nil, fmt.Errorf("give a file or --preset, not both")
	case preset != "":
		f, err = config.Preset(preset)
		source = "preset:" + preset
	case len(args) == 1:
		f, err = config.Load(args[0])
		source = args[0]
	default:
		return nil, fmt.Errorf("no diagram: give a file or --preset (one of %s)", strings.Join(config.PresetNames(), ", "))
	}
	if err != nil {
		return nil, err
	}

	d, err := config.Build(ctx, f, registry.NewRegistry())
	if err != nil {
		return nil, err
	}
	dctx, err := config.NewContext(f, d)
	if err != nil {
		return nil, err
	}
	ctxlog.FromContext(ctx).Info("loaded diagram", "source", source, "systems", d.NumSubsystems(), "states", d.NumContinuousStates())
	return &loaded{source: source, file: f, diagram: d, context: dctx}, nil
}

func (l *loaded) applyTime(cmd *cobra.Command) {
	if cmd.Flags().Changed("time") {
		l.context.SetTime(atTime)
		l.context.MarkCachesOutOfDate()
	}
}

// safely runs fn and converts a framework panic into an error.
func safely(fn func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			if e, ok := r.(error); ok {
				err = e
				return
			}
			err = fmt.Errorf("%v", r)
		}
	}()
	fn()
	return nil
}

func evalOutputs(cmd *cobra.Command, l *loaded) error {
	l.applyTime(cmd)
	d := l.diagram
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "# %s at t=%g\n", d.Name(), l.context.Time())
	fmt.Fprintln(w, "OUTPUT\tSIZE\tVALUE")
	for i := range d.NumOutputPorts() {
		out := d.OutputPort(framework.OutputPortIndex(i))
		var text string
		err := safely(func() {
			text = fmt.Sprintf("%v", out.EvalAbstract(l.context).Interface())
		})
		if err != nil {
			return fmt.Errorf("output %s: %w", out.Name(), err)
		}
		fmt.Fprintf(w, "%s\t%d\t%s\n", out.Name(), out.Size(), text)
	}
	return w.Flush()
}

func printDerivatives(cmd *cobra.Command, l *loaded) error {
	l.applyTime(cmd)
	d := l.diagram
	if d.NumContinuousStates() == 0 {
		fmt.Println("diagram has no continuous state")
		return nil
	}

	derivs := d.AllocateTimeDerivatives()
	if err := safely(func() { d.CalcTimeDerivatives(l.context, derivs) }); err != nil {
		return err
	}

	state := l.context.ContinuousState()
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "# %s at t=%g\n", d.Name(), l.context.Time())
	fmt.Fprintln(w, "SYSTEM\tQ/V/Z\tSTATE\tDERIVATIVE\tENERGY")
	for i, sys := range d.Subsystems() {
		sizes := sys.ContextSizes()
		if sizes.Total() == 0 {
			continue
		}
		idx := framework.SubsystemIndex(i)
		x := state.Substate(idx).Vector()
		energy := "-"
		if h, ok := sys.(plants.Hamiltonian); ok {
			energy = fmt.Sprintf("%.4g", h.Energy(x))
		}
		fmt.Fprintf(w, "%s\t%d/%d/%d\t%v\t%v\t%s\n", sys.Name(),
			sizes.NumPositions, sizes.NumVelocities, sizes.NumMisc,
			x, derivs.Substate(idx).Vector(), energy)
	}
	return w.Flush()
}

func describe(cmd *cobra.Command, l *loaded) error {
	fmt.Println(describeSystem(l.diagram).String())
	if conns := l.diagram.Connections(); len(conns) > 0 {
		fmt.Println()
		for _, c := range conns {
			fmt.Printf("%s -> %s\n", outputLabel(l.diagram, c.From), inputLabel(l.diagram, c.To))
		}
	}
	return nil
}

func describeSystem(sys framework.System) *tree.Tree {
	sizes := sys.ContextSizes()
	label := fmt.Sprintf("%s (%d in, %d out, state %d/%d/%d)", sys.Name(),
		sys.NumInputPorts(), sys.NumOutputPorts(),
		sizes.NumPositions, sizes.NumVelocities, sizes.NumMisc)
	t := tree.Root(label)
	for i := range sys.NumInputPorts() {
		in := sys.InputPort(framework.InputPortIndex(i))
		t.Child(fmt.Sprintf("in  %s [%s %d]", in.Name(), in.DataType(), in.Size()))
	}
	for i := range sys.NumOutputPorts() {
		out := sys.OutputPort(framework.OutputPortIndex(i))
		ft := ""
		if !out.HasDirectFeedthrough() {
			ft = ", no feedthrough"
		}
		t.Child(fmt.Sprintf("out %s [%s %d%s]", out.Name(), out.DataType(), out.Size(), ft))
	}
	if d, ok := sys.(*framework.Diagram); ok {
		for _, child := range d.Subsystems() {
			t.Child(describeSystem(child))
		}
	}
	return t
}

func outputLabel(d *framework.Diagram, loc framework.OutputPortLocator) string {
	sys, ok := d.SubsystemByID(loc.System)
	if !ok {
		return "?"
	}
	return sys.Name() + "." + sys.OutputPort(loc.Index).Name()
}

func inputLabel(d *framework.Diagram, loc framework.InputPortLocator) string {
	sys, ok := d.SubsystemByID(loc.System)
	if !ok {
		return "?"
	}
	return sys.Name() + "." + sys.InputPort(loc.Index).Name()
}

func runSweep(cmd *cobra.Command, l *loaded) error {
	cfg := l.file.SweepOrDefault()
	if cmd.Flags().Changed("start") {
		cfg.Start = start
	}
	if cmd.Flags().Changed("stop") {
		cfg.Stop = stop
	}
	if cmd.Flags().Changed("dt") {
		cfg.Dt = dt
	}
	if cmd.Flags().Changed("output") {
		cfg.Output = output
	}

	d := l.diagram
	if d.NumOutputPorts() == 0 {
		return fmt.Errorf("diagram %s has no outputs", d.Name())
	}
	port := d.OutputPort(0)
	if cfg.Output != "" {
		p, ok := d.OutputPortByName(cfg.Output)
		if !ok {
			return fmt.Errorf("diagram %s has no output %q", d.Name(), cfg.Output)
		}
		port = p
	}

	ms := metrics.Default(bound)
	observers := metrics.Observers(ms)
	if live {
		r := tui.NewLiveRenderer(os.Stdout, d.Name()+"."+port.Name(), frameRate)
		r.Start()
		defer r.Stop()
		observers = append(observers, r)
	}

	res, err := sweep.Run(cmd.Context(), d, l.context, port,
		sweep.Config{Start: cfg.Start, Stop: cfg.Stop, Dt: cfg.Dt}, observers...)
	if err != nil {
		return err
	}

	fmt.Printf("%s.%s: %d samples, t in [%g, %g]\n", d.Name(), port.Name(), res.Len(), cfg.Start, cfg.Stop)
	fmt.Printf("last: %v\n", res.Last())
	values := metrics.Values(ms)
	for _, m := range ms {
		fmt.Printf("%s: %.6g\n", m.Name(), values[m.Name()])
	}
	plot(res, maxPlots)

	if !save {
		return nil
	}
	st := storage.New(dataDir)
	if err := st.Init(); err != nil {
		return err
	}
	id, err := st.Save(storage.RunMetadata{
		Diagram: d.Name(),
		Source:  l.source,
		Start:   cfg.Start,
		Stop:    cfg.Stop,
		Dt:      cfg.Dt,
		Metrics: values,
	}, res)
	if err != nil {
		return err
	}
	fmt.Printf("saved: %s\n", id)
	return nil
}

func plot(res *sweep.Result, n int) {
	if res.Len() < 2 {
		return
	}
	for i := range min(n, res.Width()) {
		graph := asciigraph.Plot(res.Column(i),
			asciigraph.Height(10),
			asciigraph.Width(80),
			asciigraph.Caption(fmt.Sprintf("%s[%d] vs time", res.Port, i)),
		)
		fmt.Println()
		fmt.Println(graph)
	}
}

func inspect(cmd *cobra.Command, l *loaded) error {
	return tui.Run(l.diagram, l.context, dt)
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
	fmt.Fprintln(w, "ID\tDIAGRAM\tPORT\tTIME\tSAMPLES\tDT\tSOURCE")
	for _, run := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%g\t%s\n",
			run.ID,
			run.Diagram,
			run.Port,
			run.Timestamp.Local().Format("2006-01-02 15:04:05"),
			run.Samples,
			run.Dt,
			run.Source,
		)
	}
	return w.Flush()
}

func plotRun(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	meta, err := st.Load(args[0])
	if err != nil {
		return err
	}
	res, err := st.LoadSamples(args[0])
	if err != nil {
		return err
	}
	if res.Len() == 0 {
		return fmt.Errorf("no data to plot")
	}

	fmt.Printf("run: %s\n", meta.ID)
	fmt.Printf("diagram: %s (%s)\n", meta.Diagram, meta.Source)
	fmt.Printf("samples: %d\n", res.Len())
	plot(res, maxPlots)
	return nil
}

func exportRun(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	meta, err := st.Load(args[0])
	if err != nil {
		return err
	}
	res, err := st.LoadSamples(args[0])
	if err != nil {
		return err
	}
	return storage.ExportJSON(os.Stdout, *meta, res)
}

func analyzeRun(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	meta, err := st.Load(args[0])
	if err != nil {
		return err
	}
	res, err := st.LoadSamples(args[0])
	if err != nil {
		return err
	}

	fmt.Printf("run: %s (%s.%s, %d samples, dt=%g)\n", meta.ID, meta.Diagram, meta.Port, res.Len(), meta.Dt)
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ELEMENT\tMEAN\tDOMINANT HZ\tRAD/S\tAMPLITUDE\tRESOLUTION")
	for i := range res.Width() {
		s, err := analysis.NewSpectrum(res.Column(i), meta.Dt)
		if err != nil {
			return err
		}
		f, amp := s.Dominant()
		fmt.Fprintf(w, "%s[%d]\t%.4g\t%.4g\t%.4g\t%.4g\t%.4g\n",
			res.Port, i, s.Mean(), f, 2*math.Pi*f, amp, s.Resolution())
	}
	return w.Flush()
}

func listPresets(cmd *cobra.Command, args []string) error {
	if len(args) == 1 {
		f, err := config.Preset(args[0])
		if err != nil {
			return err
		}
		return config.Encode(os.Stdout, f)
	}
	for _, name := range config.PresetNames() {
		f, _ := config.Preset(name)
		root, _ := f.RootDiagram()
		fmt.Printf("  %-18s %d blocks\n", name, len(root.Blocks))
	}
	return nil
}

func listKinds(cmd *cobra.Command, args []string) error {
	reg := registry.NewRegistry()
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	for _, kind := range reg.Kinds() {
		fmt.Fprintf(w, "%s\t%s\n", kind, reg.Help(kind))
	}
	fmt.Fprintf(w, "%s\t%s\n", config.KindDiagram, "instance of another diagram in the same file; ref")
	return w.Flush()
}
