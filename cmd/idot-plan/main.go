// Command idot-plan turns a reaction template workbook (.xlsx or .yaml) into an
// I.DOT nanodispenser import CSV plus a per-source-well summary CSV.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"idotplan/internal/adapters/idot"
	"idotplan/internal/blob"
	"idotplan/internal/core"
	"idotplan/internal/report"
	"idotplan/internal/template"
)

var exitFunc = os.Exit

type options struct {
	verbose     bool
	quiet       bool
	dryRun      bool
	metricsFile string
}

// usageError marks command line mistakes, which exit with status 2.
type usageError struct{ err error }

func (e usageError) Error() string { return e.err.Error() }

func main() {
	code := cli(os.Args[1:], os.Stdout, os.Stderr)
	exitFunc(code)
}

func cli(args []string, stdout, stderr io.Writer) int {
	if args == nil {
		args = []string{}
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := newRootCmd(stdout, stderr)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(ctx)
	if err == nil {
		return 0
	}
	_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
	var ue usageError
	if errors.As(err, &ue) {
		_, _ = fmt.Fprint(stderr, cmd.UsageString())
		return 2
	}
	return 1
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	var opts options
	cmd := &cobra.Command{
		Use:   "idot-plan <input.xlsx|input.yaml> [output.csv]",
		Short: "Generate an I.DOT dispense plan from a reaction template",
		Long: `Reads the Settings, Source Plate and mode sheet of a template workbook,
expands the reactions, balances draws across duplicate source wells and writes
the nanodispenser CSV together with a <name>_summary.csv companion file.

The output location is chosen with IDOT_OUTPUT_DRIVER (fs, s3 or memory).`,
		Args: func(_ *cobra.Command, args []string) error {
			if len(args) < 1 || len(args) > 2 {
				return usageError{fmt.Errorf("expected <input> [output.csv], got %d arguments", len(args))}
			}
			return nil
		},
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), opts, args, stdout, stderr)
		},
	}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return usageError{err}
	})
	flags := cmd.Flags()
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "log pipeline stages at debug level")
	flags.BoolVarP(&opts.quiet, "quiet", "q", false, "do not print the console summary")
	flags.BoolVar(&opts.dryRun, "dry-run", false, "render outputs in memory without writing them")
	flags.StringVar(&opts.metricsFile, "metrics-file", "", "write plan metrics in Prometheus text format to this path")
	return cmd
}

// newLogger writes JSON log lines to stderr. Only warnings surface unless
// verbose is set.
func newLogger(w io.Writer, verbose bool) *zap.Logger {
	level := zapcore.WarnLevel
	if verbose {
		level = zapcore.DebugLevel
	}
	enc := zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
	return zap.New(zapcore.NewCore(enc, zapcore.AddSync(w), level))
}

func run(ctx context.Context, opts options, args []string, stdout, stderr io.Writer) error {
	logger := newLogger(stderr, opts.verbose)
	defer func() { _ = logger.Sync() }()

	input := args[0]
	if st, err := os.Stat(input); err != nil || st.IsDir() {
		return fmt.Errorf("file not found: %s", input)
	}
	output := defaultOutputPath(input)
	if len(args) == 2 {
		output = args[1]
	}
	summaryPath := summaryPathFor(output)
	logger.Debug("resolved paths", zap.String("input", input), zap.String("output", output), zap.String("summary", summaryPath))

	wb, err := template.Load(input)
	if err != nil {
		return err
	}
	tpl, err := template.Parse(wb)
	if err != nil {
		return err
	}

	metrics := core.NewPrometheusRecorder(nil)
	svc := core.NewService(core.WithLogger(logger), core.WithMetrics(metrics))
	plan, res, err := svc.Plan(ctx, tpl.Request())
	if err != nil {
		return err
	}

	var store blob.Store
	if opts.dryRun {
		store = blob.NewMemory()
	} else if store, err = blob.Open(ctx, filepath.Dir(output)); err != nil {
		return fmt.Errorf("open output store: %w", err)
	}
	exported, err := idot.NewExporter(store, idot.WithExportLogger(logger)).Export(ctx, idot.ExportInput{
		Plan:        plan,
		Config:      tpl.Config,
		Experiment:  tpl.Experiment,
		DispenseKey: filepath.Base(output),
		SummaryKey:  filepath.Base(summaryPath),
	})
	if err != nil {
		return err
	}

	if opts.metricsFile != "" {
		if err := metrics.WriteTextfile(opts.metricsFile); err != nil {
			return fmt.Errorf("write metrics: %w", err)
		}
	}
	if opts.quiet {
		return nil
	}
	out := report.Outputs{DryRun: opts.dryRun}
	if !opts.dryRun {
		out.Dispenses = location(exported.Dispenses)
		out.Summary = location(exported.Summary)
	}
	return report.New(stdout).Print(plan, tpl.Config, res, out)
}

// defaultOutputPath names the dispense file after the input, in the current
// directory.
func defaultOutputPath(input string) string {
	base := filepath.Base(input)
	return strings.TrimSuffix(base, filepath.Ext(base)) + "_idot.csv"
}

// summaryPathFor derives the summary file next to the dispense file:
// plan_idot.csv becomes plan_summary.csv, anything else gets _summary.csv
// in place of its extension.
func summaryPathFor(output string) string {
	if strings.HasSuffix(output, "_idot.csv") {
		return strings.TrimSuffix(output, "_idot.csv") + "_summary.csv"
	}
	return strings.TrimSuffix(output, filepath.Ext(output)) + "_summary.csv"
}

func location(a idot.Artifact) string {
	if u, err := url.Parse(a.URL); err == nil && u.Scheme == "file" {
		return filepath.FromSlash(u.Path)
	}
	return a.URL
}
