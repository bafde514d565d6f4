package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/guptarohit/asciigraph"
	"github.com/spf13/cobra"

	"github.com/san-kum/twinkit/internal/config"
	"github.com/san-kum/twinkit/internal/model"
	"github.com/san-kum/twinkit/internal/refengine"
	"github.com/san-kum/twinkit/internal/registry"
	"github.com/san-kum/twinkit/internal/session"
	"github.com/san-kum/twinkit/internal/tabular"
	"github.com/san-kum/twinkit/internal/tui"
	"github.com/san-kum/twinkit/internal/twin"
)

var (
	dataDir    string
	verbose    bool
	dt         float64
	duration   float64
	configFile string
	method     string
	plotOutput string
	saveState  bool
	resume     bool
	resumeAt   float64
	inputsCSV  string
	outputCSV  string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "twinkit",
		Short: "evaluate packaged twin runtime models",
	}
	rootCmd.PersistentFlags().StringVar(&dataDir, "data", config.DefaultWorkDir, "data directory")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose logging")

	infoCmd := &cobra.Command{
		Use:   "info [model.twz]",
		Short: "print model metadata",
		Args:  cobra.ExactArgs(1),
		RunE:  showInfo,
	}

	runCmd := &cobra.Command{
		Use:   "run [model.twz]",
		Short: "evaluate a model step by step",
		Args:  cobra.ExactArgs(1),
		RunE:  runModel,
	}
	runCmd.Flags().Float64Var(&dt, "dt", 0, "step size (default: model setting)")
	runCmd.Flags().Float64Var(&duration, "time", 0, "end time (default: model setting)")
	runCmd.Flags().StringVar(&configFile, "config", "", "run config file (yaml)")
	runCmd.Flags().StringVar(&method, "method", "rk4", "integration method (rk4, euler)")
	runCmd.Flags().StringVar(&plotOutput, "plot", "", "plot the named output after the run")
	runCmd.Flags().BoolVar(&saveState, "save-state", false, "save the final state into the registry")
	runCmd.Flags().BoolVar(&resume, "resume", false, "resume from the latest saved state")
	runCmd.Flags().Float64Var(&resumeAt, "resume-at", 0, "resume from the saved state closest to this time")

	batchCmd := &cobra.Command{
		Use:   "batch [model.twz]",
		Short: "evaluate a model over a table of historical inputs",
		Args:  cobra.ExactArgs(1),
		RunE:  runBatch,
	}
	batchCmd.Flags().StringVar(&inputsCSV, "inputs", "", "input CSV file (Time column + one column per input)")
	batchCmd.Flags().StringVar(&outputCSV, "out", "", "output CSV file (default: stdout)")
	batchCmd.Flags().StringVar(&configFile, "config", "", "run config file (yaml)")
	batchCmd.Flags().StringVar(&method, "method", "rk4", "integration method (rk4, euler)")
	_ = batchCmd.MarkFlagRequired("inputs")

	statesCmd := &cobra.Command{
		Use:   "states [model.twz]",
		Short: "list saved states for a model",
		Args:  cobra.ExactArgs(1),
		RunE:  listStates,
	}

	liveCmd := &cobra.Command{
		Use:   "live [model.twz]",
		Short: "evaluate a model with a live terminal view",
		Args:  cobra.ExactArgs(1),
		RunE:  runLive,
	}
	liveCmd.Flags().Float64Var(&dt, "dt", 0, "step size (default: model setting)")
	liveCmd.Flags().StringVar(&configFile, "config", "", "run config file (yaml)")
	liveCmd.Flags().StringVar(&method, "method", "rk4", "integration method (rk4, euler)")

	rootCmd.AddCommand(infoCmd, runCmd, batchCmd, statesCmd, liveCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func settings() config.Settings {
	s := config.DefaultSettings()
	s.WorkDir = dataDir
	if verbose {
		s.LogLevel = slog.LevelDebug
	}
	return s
}

func openInitialized(path string) (*session.Session, *config.Config, error) {
	cfg := config.DefaultConfig()
	if configFile != "" {
		loaded, err := config.Load(configFile)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to load config: %w", err)
		}
		cfg = loaded
	}

	opener := refengine.Opener(refengine.Method(method))
	sess, err := session.Open(opener, path, session.WithLogger(settings().Logger()))
	if err != nil {
		return nil, nil, err
	}
	if err := sess.Instantiate(); err != nil {
		sess.Close()
		return nil, nil, err
	}
	if err := sess.Initialize(cfg.Inputs, cfg.Parameters); err != nil {
		sess.Close()
		return nil, nil, err
	}
	return sess, cfg, nil
}

func resumeFromRegistry(sess *session.Session) error {
	workDir, err := settings().EnsureWorkDir()
	if err != nil {
		return err
	}
	reg, err := registry.New(workDir, sess.ModelName())
	if err != nil {
		return err
	}
	entry, err := reg.Latest()
	if resumeAt > 0 {
		entry, err = reg.Find(resumeAt, 0)
	}
	if err != nil {
		return err
	}
	blob, err := reg.Blob(entry)
	if err != nil {
		return err
	}
	if err := sess.LoadState(blob); err != nil {
		return err
	}
	fmt.Printf("resumed from state %s (t=%g)\n", entry.ID, sess.Time())
	return nil
}

func showInfo(cmd *cobra.Command, args []string) error {
	m, err := model.Open(args[0])
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "model\t%s\n", m.Doc.Name)
	fmt.Fprintf(w, "version\t%s\n", m.Doc.Version)
	fmt.Fprintf(w, "engine\t%s (runtime %s)\n", m.Doc.Engine, model.RuntimeVersion)
	fmt.Fprintf(w, "step size\t%g\n", m.Doc.Solver.StepSize)
	fmt.Fprintf(w, "end time\t%g\n", m.Doc.Solver.EndTime)
	w.Flush()

	inputs, outputs, params := m.Doc.Variables()
	printVars(os.Stdout, "inputs", inputs)
	printVars(os.Stdout, "outputs", outputs)
	printVars(os.Stdout, "parameters", params)
	return nil
}

func printVars(out *os.File, title string, vars []twin.Variable) {
	if len(vars) == 0 {
		return
	}
	fmt.Fprintf(out, "\n%s:\n", title)
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "  name\ttype\tunit\tstart\tdescription")
	for _, v := range vars {
		fmt.Fprintf(w, "  %s\t%s\t%s\t%g\t%s\n", v.Name, v.Type, v.Unit, v.Start, v.Description)
	}
	w.Flush()
}

func validateOutputName(outputs []twin.Variable, name string) error {
	if _, ok := twin.FindVar(outputs, name); !ok {
		return fmt.Errorf("unknown output %q (model declares: %s)",
			name, strings.Join(twin.VarNames(outputs), ", "))
	}
	return nil
}

func runModel(cmd *cobra.Command, args []string) error {
	sess, cfg, err := openInitialized(args[0])
	if err != nil {
		return err
	}
	defer sess.Close()

	if plotOutput != "" {
		if err := validateOutputName(sess.Info().Outputs, plotOutput); err != nil {
			return err
		}
	}

	stepSize := dt
	if stepSize <= 0 {
		stepSize = cfg.StepSize
	}
	if s := sess.Settings(); stepSize <= 0 && s.StepSize > 0 {
		stepSize = s.StepSize
	}
	endTime := duration
	if endTime <= 0 {
		endTime = cfg.EndTime
	}
	if s := sess.Settings(); endTime <= 0 && s.EndTime > 0 {
		endTime = s.EndTime
	}

	if resume || resumeAt > 0 {
		if err := resumeFromRegistry(sess); err != nil {
			return err
		}
	}

	fmt.Printf("running %s...\n", sess.ModelName())
	start := time.Now()

	var history []float64
	steps := 0
	for sess.Time() < endTime {
		if err := sess.Step(stepSize, nil); err != nil {
			return err
		}
		steps++
		if plotOutput != "" {
			history = append(history, sess.Outputs()[plotOutput])
		}
	}
	elapsed := time.Since(start)

	fmt.Printf("completed in %v\n", elapsed)
	fmt.Printf("steps: %d\n", steps)
	fmt.Printf("final time: %g\n", sess.Time())
	fmt.Println("\noutputs:")
	outs := sess.Outputs()
	for _, name := range outs.Names() {
		fmt.Printf("  %s: %.6f\n", name, outs[name])
	}

	if plotOutput != "" && len(history) > 1 {
		fmt.Println()
		fmt.Println(asciigraph.Plot(history,
			asciigraph.Height(12),
			asciigraph.Width(70),
			asciigraph.Caption(plotOutput),
		))
	}

	if saveState {
		blob, err := sess.SaveState()
		if err != nil {
			return err
		}
		workDir, err := settings().EnsureWorkDir()
		if err != nil {
			return err
		}
		reg, err := registry.New(workDir, sess.ModelName())
		if err != nil {
			return err
		}
		entry, err := reg.Append(sess.ID(), sess.Time(), sess.Inputs(), sess.Parameters(), sess.Outputs(), blob)
		if err != nil {
			return err
		}
		fmt.Printf("\nstate saved: %s (t=%g)\n", entry.ID, entry.Time)
	}
	return nil
}

func runBatch(cmd *cobra.Command, args []string) error {
	frame, err := tabular.ReadCSVFile(inputsCSV)
	if err != nil {
		return err
	}

	sess, _, err := openInitialized(args[0])
	if err != nil {
		return err
	}
	defer sess.Close()

	result, err := sess.SimulateBatch(frame)
	if err != nil {
		if result != nil && result.Len() > 0 {
			fmt.Fprintf(os.Stderr, "batch aborted after %d of %d rows: %v\n", result.Len(), frame.Len(), err)
		}
		return err
	}

	if outputCSV == "" {
		return result.WriteCSV(os.Stdout)
	}
	if err := result.WriteCSVFile(outputCSV); err != nil {
		return err
	}
	fmt.Printf("wrote %d rows to %s\n", result.Len(), outputCSV)
	return nil
}

func listStates(cmd *cobra.Command, args []string) error {
	m, err := model.Open(args[0])
	if err != nil {
		return err
	}
	workDir, err := settings().EnsureWorkDir()
	if err != nil {
		return err
	}
	reg, err := registry.New(workDir, m.Doc.Name)
	if err != nil {
		return err
	}
	entries, err := reg.List()
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Printf("no saved states for %s\n", m.Doc.Name)
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "id\ttime\tsaved at\tsession")
	for _, e := range entries {
		fmt.Fprintf(w, "%s\t%g\t%s\t%s\n", e.ID, e.Time, e.SavedAt.Format(time.RFC3339), e.SessionID)
	}
	return w.Flush()
}

func runLive(cmd *cobra.Command, args []string) error {
	sess, cfg, err := openInitialized(args[0])
	if err != nil {
		return err
	}
	defer sess.Close()

	stepSize := dt
	if stepSize <= 0 {
		stepSize = cfg.StepSize
	}
	if s := sess.Settings(); stepSize <= 0 && s.StepSize > 0 {
		stepSize = s.StepSize
	}
	return tui.Run(sess, stepSize)
}
