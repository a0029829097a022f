package main

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/spf13/cobra"

	"strata/internal/config"
	"strata/internal/driver"
	"strata/internal/frontend"
	"strata/internal/observ"
	"strata/internal/version"
)

var buildCmd = &cobra.Command{
	Use:   "build [flags] FILE...",
	Short: "Compile analyzed modules",
	Long: "Lower analyzed modules (TOML files written by the front end) and either print the\n" +
		"lowered IR or write library archives. Modules of one invocation may import each other.",
	Args: cobra.MinimumNArgs(1),
	RunE: buildExecution,
}

func init() {
	addBuildFlags(buildCmd)
}

func addBuildFlags(cmd *cobra.Command) {
	cmd.Flags().String("mode", "", "output mode (emit|archive), defaults to strata.toml or emit")
	cmd.Flags().String("out", "", "archive output directory, defaults to [compiler].output")
	cmd.Flags().String("config", "", "path to strata.toml, searched upwards from the working directory by default")
	cmd.Flags().IntP("jobs", "j", 0, "modules compiled in parallel (0 = STRATA_JOBS or GOMAXPROCS)")
	cmd.Flags().String("ui", "auto", "progress view (auto|on|off)")
}

type buildOptions struct {
	project *config.Project
	mode    driver.Mode
	out     string
	jobs    int
	timings bool
	ui      bool
}

func readBuildOptions(cmd *cobra.Command) (*buildOptions, error) {
	modeValue, err := cmd.Flags().GetString("mode")
	if err != nil {
		return nil, err
	}
	outValue, err := cmd.Flags().GetString("out")
	if err != nil {
		return nil, err
	}
	configPath, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}
	jobs, err := cmd.Flags().GetInt("jobs")
	if err != nil {
		return nil, err
	}
	uiValue, err := cmd.Flags().GetString("ui")
	if err != nil {
		return nil, err
	}
	uiMode, err := readUIMode(uiValue)
	if err != nil {
		return nil, err
	}
	timings, err := cmd.Root().PersistentFlags().GetBool("timings")
	if err != nil {
		return nil, fmt.Errorf("failed to get timings flag: %w", err)
	}

	var project *config.Project
	if configPath != "" {
		project, err = config.Load(configPath)
	} else {
		project, _, err = config.LoadFrom(".")
	}
	if err != nil {
		return nil, err
	}

	opts := &buildOptions{project: project, mode: driver.ModeEmit, jobs: jobs, timings: timings, ui: shouldUseTUI(uiMode)}
	if project != nil {
		opts.mode = project.Compiler.Mode
		opts.out = project.Compiler.Output
	}
	if modeValue != "" {
		if opts.mode, err = config.ParseMode(modeValue); err != nil {
			return nil, err
		}
	}
	if outValue != "" {
		opts.out = outValue
	}
	if opts.mode == driver.ModeArchive && opts.out == "" {
		opts.out = "build"
	}
	if opts.jobs <= 0 {
		opts.jobs = config.LoadEnv().Jobs
	}
	return opts, nil
}

// requests builds one request per analyzed module file. The strata.toml
// module name only constrains a single-module build.
func (o *buildOptions) requests(files []string, sink driver.ProgressSink) []*driver.Request {
	reqs := make([]*driver.Request, 0, len(files))
	for _, f := range files {
		cfg := driver.Config{CompilerVersion: version.Version, PreRelease: version.IsPreRelease()}
		if o.project != nil {
			cfg = driver.ConfigFromProject(o.project, version.Version, version.IsPreRelease())
			if len(files) > 1 {
				cfg.ModuleName = ""
			}
		}
		reqs = append(reqs, &driver.Request{
			Analyzer:  frontend.FileAnalyzer{Path: f},
			Config:    cfg,
			Mode:      o.mode,
			OutputDir: o.out,
			Progress:  sink,
			Timer:     observ.NewTimer(),
		})
	}
	return reqs
}

func buildExecution(cmd *cobra.Command, args []string) error {
	opts, err := readBuildOptions(cmd)
	if err != nil {
		return err
	}
	return runBuild(cmd, opts, args)
}

func runBuild(cmd *cobra.Command, opts *buildOptions, files []string) error {
	var (
		results []*driver.Result
		err     error
	)
	if opts.ui {
		results, err = compileWithUI(cmd.Context(), "strata build", opts, files)
	} else {
		sink := newStatusSink(cmd.ErrOrStderr(), isTerminal(os.Stderr))
		results, err = driver.CompileAll(cmd.Context(), opts.requests(files, sink), opts.jobs)
	}
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for _, res := range results {
		switch o := res.Outcome.(type) {
		case *driver.EmitOutcome:
			fmt.Fprint(out, o.Text)
		case *driver.ArchiveOutcome:
			fmt.Fprintf(out, "%s %s -> %s\n", okColor.Sprint("archived"), res.Module, o.Layout.Dir)
			if o.IRRoundTrip != nil {
				fmt.Fprintf(out, "  ir round trip: %v\n", o.IRRoundTrip)
			}
		}
		if opts.timings {
			fmt.Fprint(cmd.ErrOrStderr(), driver.TimingsText(res))
		}
	}
	return nil
}

// statusSink prints stage transitions, one line per finished stage.
type statusSink struct {
	mu      sync.Mutex
	w       io.Writer
	verbose bool
}

func newStatusSink(w io.Writer, verbose bool) *statusSink {
	return &statusSink{w: w, verbose: verbose}
}

func (s *statusSink) OnEvent(evt driver.Event) {
	if evt.Status == driver.StatusWorking || evt.Status == driver.StatusQueued {
		return
	}
	if !s.verbose && evt.Status != driver.StatusError {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	stage := string(evt.Stage)
	if evt.Phase != "" {
		stage += "/" + evt.Phase
	}
	if evt.Status == driver.StatusError {
		fmt.Fprintf(s.w, "%s %s %s: %v\n", errColor.Sprint("failed"), evt.Module, stage, evt.Err)
		return
	}
	if evt.Elapsed > 0 {
		fmt.Fprintf(s.w, "%s %s %.1f ms\n", stageColor.Sprint(stage), evt.Module, float64(evt.Elapsed.Microseconds())/1000)
		return
	}
	fmt.Fprintf(s.w, "%s %s\n", stageColor.Sprint(stage), evt.Module)
}
