package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/veghal/heatgrid/internal/artifact"
	"github.com/veghal/heatgrid/internal/comm"
	"github.com/veghal/heatgrid/internal/config"
	"github.com/veghal/heatgrid/internal/export"
	"github.com/veghal/heatgrid/internal/metrics"
	"github.com/veghal/heatgrid/internal/sim"
	"github.com/veghal/heatgrid/internal/storage"
	"github.com/veghal/heatgrid/internal/tui"
	"github.com/veghal/heatgrid/internal/viz"
)

var (
	dataDir    string
	ranks      int
	transport  string
	rank       int
	addrs      string
	nout       int
	outPath    string
	configFile string
	presetName string
	saveRun    bool
	quiet      bool
	liveNout   int
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "heatgrid",
		Short: "distributed 2D heat-diffusion simulator",
	}
	rootCmd.PersistentFlags().StringVar(&dataDir, "data", ".heatgrid", "data directory")
	rootCmd.PersistentFlags().BoolVar(&quiet, "quiet", false, "suppress progress logging")

	runCmd := &cobra.Command{
		Use:   "run [NX NY NI]",
		Short: "run a simulation (NX: local slab width, NY: height, NI: iterations)",
		Args:  cobra.MaximumNArgs(3),
		RunE:  runSimulation,
	}
	runCmd.Flags().IntVar(&ranks, "ranks", 1, "unit count (local transport)")
	runCmd.Flags().StringVar(&transport, "transport", "local", "transport: local or tcp")
	runCmd.Flags().IntVar(&rank, "rank", 0, "this process's rank (tcp transport)")
	runCmd.Flags().StringVar(&addrs, "addrs", "", "comma-separated listen addresses, rank order (tcp transport)")
	runCmd.Flags().IntVar(&nout, "nout", config.DefaultNout, "energy report cadence")
	runCmd.Flags().StringVar(&outPath, "out", "field.dat", "output artifact path")
	runCmd.Flags().StringVar(&configFile, "config", "", "config file path (yaml)")
	runCmd.Flags().StringVar(&presetName, "preset", "", "named parameter preset: "+strings.Join(config.ListPresets(), ", "))
	runCmd.Flags().BoolVar(&saveRun, "save", false, "record run metadata and energy trace")
	runCmd.MarkFlagsMutuallyExclusive("preset", "config")

	liveCmd := &cobra.Command{
		Use:   "live NX NY NI",
		Short: "run with a live energy view",
		Args:  cobra.ExactArgs(3),
		RunE:  runLive,
	}
	liveCmd.Flags().IntVar(&ranks, "ranks", 1, "unit count")
	liveCmd.Flags().IntVar(&liveNout, "live-nout", 100, "energy sample cadence")

	benchCmd := &cobra.Command{
		Use:   "bench NX NY NI",
		Short: "benchmark a local chain",
		Args:  cobra.ExactArgs(3),
		RunE:  runBench,
	}
	benchCmd.Flags().IntVar(&ranks, "ranks", 1, "unit count")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "list recorded runs",
		RunE:  listRuns,
	}

	plotCmd := &cobra.Command{
		Use:   "plot RUN_ID",
		Short: "plot a recorded run's energy trace",
		Args:  cobra.ExactArgs(1),
		RunE:  plotRun,
	}

	exportCmd := &cobra.Command{
		Use:   "export ARTIFACT SVG",
		Short: "render a result artifact as an SVG heatmap",
		Args:  cobra.ExactArgs(2),
		RunE:  exportArtifact,
	}

	rootCmd.AddCommand(runCmd, liveCmd, benchCmd, listCmd, plotCmd, exportCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger() *zap.Logger {
	if quiet {
		return zap.NewNop()
	}
	encCfg := zap.NewDevelopmentEncoderConfig()
	encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.Lock(os.Stderr), zap.InfoLevel)
	return zap.New(core)
}

// parseArgs assembles the Base for one run: a preset or config file over the
// defaults, then the positional integers, then explicitly set flags.
func parseArgs(cmd *cobra.Command, args []string) (*config.Base, error) {
	b := config.DefaultBase()
	switch {
	case presetName != "":
		p := config.GetPreset(presetName)
		if p == nil {
			return nil, fmt.Errorf("unknown preset %q, have: %s", presetName, strings.Join(config.ListPresets(), ", "))
		}
		b = p
	case configFile != "":
		loaded, err := config.LoadBase(configFile)
		if err != nil {
			return nil, err
		}
		b = loaded
	}

	switch len(args) {
	case 3:
		vals := make([]int, 3)
		for i, a := range args {
			v, err := strconv.Atoi(a)
			if err != nil || v <= 0 {
				return nil, fmt.Errorf("argument %q must be a positive integer", a)
			}
			vals[i] = v
		}
		b.Nx, b.Ny, b.Ni = vals[0], vals[1], vals[2]
	case 0:
		if presetName == "" && configFile == "" {
			return nil, fmt.Errorf("need NX NY NI, a --preset, or a --config file")
		}
	default:
		return nil, fmt.Errorf("need all three of NX NY NI")
	}

	f := cmd.Flags()
	if f.Changed("ranks") {
		b.Ranks = ranks
	}
	if f.Changed("nout") {
		b.Nout = nout
	}
	if f.Changed("transport") {
		b.Transport = transport
	}
	if f.Changed("out") {
		b.Out = outPath
	}
	return b, nil
}

func runSimulation(cmd *cobra.Command, args []string) error {
	b, err := parseArgs(cmd, args)
	if err != nil {
		return err
	}
	log := newLogger()
	defer log.Sync()

	if b.Transport == "tcp" {
		return runTCP(b, log)
	}
	return runLocal(b, log)
}

func runLocal(b *config.Base, log *zap.Logger) error {
	ctx := context.Background()
	start := time.Now()

	res, err := sim.RunGroup(ctx, b, log, nil)
	if err != nil {
		return err
	}
	elapsed := time.Since(start)

	cfg, err := config.Derive(b.Nx, b.Ny, b.Ni, comm.Root, b.Ranks)
	if err != nil {
		return err
	}

	w, err := artifact.Create(b.Out, cfg.GlobalWidth()*cfg.Ny)
	if err != nil {
		return err
	}
	if err := w.WriteHeader(uint64(cfg.GlobalWidth()), uint64(cfg.GlobalHeight()), cfg.TotalTime()); err != nil {
		return err
	}
	for r, f := range res.Fields {
		if err := w.WriteSlab(r, f); err != nil {
			return err
		}
	}
	if err := w.Finalize(); err != nil {
		return err
	}
	log.Info("artifact finalized", zap.String("path", b.Out))

	if saveRun {
		store := storage.New(dataDir)
		if err := store.Init(); err != nil {
			return err
		}
		runID, err := store.Save(b, cfg, res.Root)
		if err != nil {
			return err
		}
		fmt.Printf("saved run %s\n", runID)
	}

	printSummary(b, cfg, res.Root, elapsed)
	return nil
}

func runTCP(b *config.Base, log *zap.Logger) error {
	if addrs == "" {
		return fmt.Errorf("tcp transport requires --addrs")
	}
	list := strings.Split(addrs, ",")
	b.Ranks = len(list)

	cfg, err := config.Derive(b.Nx, b.Ny, b.Ni, rank, len(list))
	if err != nil {
		return err
	}
	if b.Nout > 0 {
		cfg.Nout = b.Nout
	}

	ctx := context.Background()
	bootCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	c, err := comm.DialTCP(bootCtx, rank, list, log)
	cancel()
	if err != nil {
		return err
	}
	defer c.Close()

	s := sim.New(cfg, c, log)
	if rank == comm.Root {
		s.AddMetric(metrics.NewEnergy())
		s.AddMetric(metrics.NewStability(1e12))
	}

	start := time.Now()
	res, err := s.Run(ctx)
	if err != nil {
		return err
	}
	elapsed := time.Since(start)

	w, err := artifact.Create(b.Out, cfg.GlobalWidth()*cfg.Ny)
	if err != nil {
		return err
	}
	if rank == comm.Root {
		if err := w.WriteHeader(uint64(cfg.GlobalWidth()), uint64(cfg.GlobalHeight()), cfg.TotalTime()); err != nil {
			return err
		}
	}
	if err := w.WriteSlab(rank, s.Field()); err != nil {
		return err
	}
	if err := w.Finalize(); err != nil {
		return err
	}
	// Every unit confirms its region is on disk before the artifact counts
	// as finalized.
	if err := c.Barrier(ctx); err != nil {
		return err
	}
	if rank == comm.Root {
		log.Info("artifact finalized", zap.String("path", b.Out))
		printSummary(b, cfg, res, elapsed)
	}
	return nil
}

func runLive(cmd *cobra.Command, args []string) error {
	b, err := parseArgs(cmd, args)
	if err != nil {
		return err
	}
	b.Nout = liveNout

	feed := tui.NewFeed()
	go func() {
		_, err := sim.RunGroup(context.Background(), b, zap.NewNop(), feed)
		feed.Finish(err)
	}()

	title := fmt.Sprintf("heatgrid %dx%d, %d ranks", b.Nx*b.Ranks, b.Ny, b.Ranks)
	_, err = tui.NewProgram(feed, title).Run()
	return err
}

func runBench(cmd *cobra.Command, args []string) error {
	b, err := parseArgs(cmd, args)
	if err != nil {
		return err
	}

	start := time.Now()
	if _, err := sim.RunGroup(context.Background(), b, zap.NewNop(), nil); err != nil {
		return err
	}
	elapsed := time.Since(start)

	cells := float64(b.Nx*b.Ranks*b.Ny) * float64(b.Ni)
	fmt.Printf("%d ranks, %dx%d global, %d iterations\n", b.Ranks, b.Nx*b.Ranks, b.Ny, b.Ni)
	fmt.Printf("wall time: %v\n", elapsed.Round(time.Millisecond))
	fmt.Printf("cell updates/sec: %.3g\n", cells/elapsed.Seconds())
	return nil
}

func listRuns(cmd *cobra.Command, args []string) error {
	store := storage.New(dataDir)
	runs, err := store.List()
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("no recorded runs")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tGRID\tRANKS\tITER\tGAMMA\tWHEN")
	for _, r := range runs {
		fmt.Fprintf(w, "%s\t%dx%d\t%d\t%d\t%.3f\t%s\n",
			r.ID, r.Nx*r.Ranks, r.Ny, r.Ranks, r.Ni, r.Gamma,
			r.Timestamp.Format("2006-01-02 15:04"))
	}
	return w.Flush()
}

func plotRun(cmd *cobra.Command, args []string) error {
	store := storage.New(dataDir)
	meta, err := store.Load(args[0])
	if err != nil {
		return err
	}
	_, energy, err := store.LoadTrace(args[0])
	if err != nil {
		return err
	}

	fmt.Println(viz.Summary(meta))
	fmt.Println(viz.EnergyPlot(energy, 70, 15))
	return nil
}

func exportArtifact(cmd *cobra.Command, args []string) error {
	h, body, err := artifact.Read(args[0])
	if err != nil {
		return err
	}
	svg := export.FieldToSVG(body, int(h.GlobalWidth), int(h.GlobalHeight), 4)
	if svg == "" {
		return fmt.Errorf("artifact %s has inconsistent dimensions", args[0])
	}
	return os.WriteFile(args[1], []byte(svg), 0644)
}

func printSummary(b *config.Base, cfg *config.Config, res *sim.Result, elapsed time.Duration) {
	fmt.Printf("grid %dx%d over %d ranks, %d iterations in %v\n",
		cfg.GlobalWidth(), cfg.GlobalHeight(), b.Ranks, b.Ni, elapsed.Round(time.Millisecond))
	if len(res.Energy) > 0 {
		fmt.Printf("final energy: %.6g\n", res.Energy[len(res.Energy)-1])
	}
	for name, v := range res.Metrics {
		fmt.Printf("%s: %.6g\n", name, v)
	}
}
