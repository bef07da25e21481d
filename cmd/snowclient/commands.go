package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"go.uber.org/zap"

	"github.com/gerhard-ee/snowclient/internal/config"
	"github.com/gerhard-ee/snowclient/internal/source"
	"github.com/gerhard-ee/snowclient/pkg/dataset"
	"github.com/gerhard-ee/snowclient/pkg/snowflake"
)

var (
	ErrNoInput        = errors.New("either --file or --source with --query must be specified")
	ErrAmbiguousInput = errors.New("--file and --source are mutually exclusive")
	ErrQueryRequired  = errors.New("--query is required with --source")
	ErrUnknownFormat  = errors.New("unknown output format")
)

// TargetFlags name the table a command works on. Empty flags fall back to
// the snowflake section of the configuration.
type TargetFlags struct {
	Database  string `help:"Database name" short:"d"`
	Schema    string `help:"Schema name" short:"s"`
	Table     string `help:"Table name" short:"t" required:""`
	Warehouse string `help:"Warehouse to run with"`
	Role      string `help:"Role to run with"`
}

// Target resolves the flags against cfg
func (f TargetFlags) Target(cfg *config.Config) snowflake.Target {
	return snowflake.Target{
		Database:  firstNonEmpty(f.Database, cfg.Snowflake.Database),
		Schema:    firstNonEmpty(f.Schema, cfg.Snowflake.Schema),
		Table:     f.Table,
		Warehouse: firstNonEmpty(f.Warehouse, cfg.Snowflake.Warehouse),
		Role:      firstNonEmpty(f.Role, cfg.Snowflake.Role),
	}
}

// InputFlags select where a frame is read from
type InputFlags struct {
	File   string `help:"CSV file to read" short:"f" type:"existingfile"`
	Source string `help:"Source database from the sources section of the configuration"`
	Query  string `help:"Query to run against the source" short:"q"`
}

// Validate checks that exactly one input is selected
func (f InputFlags) Validate() error {
	switch {
	case f.File != "" && f.Source != "":
		return ErrAmbiguousInput
	case f.Source != "" && f.Query == "":
		return ErrQueryRequired
	case f.File == "" && f.Source == "":
		return ErrNoInput
	}
	return nil
}

func (f InputFlags) read(ctx context.Context, cfg *config.Config) (*dataset.Frame, error) {
	if f.File != "" {
		return readCSVFile(f.File)
	}

	srcCfg, err := cfg.Source(f.Source)
	if err != nil {
		return nil, err
	}
	src, err := source.New(srcCfg)
	if err != nil {
		return nil, err
	}
	if err := src.Connect(ctx); err != nil {
		return nil, fmt.Errorf("failed to connect to source %s: %w", f.Source, err)
	}
	defer src.Close()

	frame, err := src.Read(ctx, f.Query)
	if err != nil {
		return nil, fmt.Errorf("failed to read from source %s: %w", f.Source, err)
	}
	return frame, nil
}

func readCSVFile(path string) (*dataset.Frame, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer file.Close()

	frame, err := dataset.ReadCSV(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return frame, nil
}

// LoadCmd represents the load command
type LoadCmd struct {
	TargetFlags `embed:""`
	InputFlags  `embed:""`
	Overwrite   bool `help:"Replace the table contents instead of appending"`
}

// Run executes the load command
func (cmd *LoadCmd) Run(ctx *Context) error {
	return withApp(ctx, func(a *app) error {
		frame, err := cmd.InputFlags.read(ctx, a.cfg)
		if err != nil {
			return err
		}

		target := cmd.TargetFlags.Target(a.cfg)
		outcome, err := a.client.LoadFrame(ctx, frame, snowflake.LoadRequest{Target: target, Overwrite: cmd.Overwrite})
		if err != nil {
			return err
		}
		printLoadOutcome(ctx.Out, target, outcome)
		if !outcome.Success {
			return fmt.Errorf("load into %s did not complete", target)
		}
		return nil
	})
}

func printLoadOutcome(w io.Writer, target snowflake.Target, outcome *snowflake.LoadOutcome) {
	for _, col := range outcome.AddedColumns {
		fmt.Fprintf(w, "added column %s %s\n", col.Column, col.Definition)
	}
	fmt.Fprintf(w, "loaded %d rows in %d chunks into %s\n", outcome.Rows, outcome.Chunks, target)
	for _, d := range outcome.Diagnostics {
		if d.FirstError != "" {
			fmt.Fprintf(w, "%s: %s: %s\n", d.File, d.Status, d.FirstError)
		}
	}
}

// ValidateCmd represents the validate command
type ValidateCmd struct {
	TargetFlags `embed:""`
	File        string `help:"CSV file whose columns the table must have" short:"f" required:"" type:"existingfile"`
	Append      bool   `help:"Append to the staging table instead of replacing it"`
}

// Run executes the validate command
func (cmd *ValidateCmd) Run(ctx *Context) error {
	return withApp(ctx, func(a *app) error {
		frame, err := readCSVFile(cmd.File)
		if err != nil {
			return err
		}

		entries, err := a.client.ValidateSchema(ctx, frame, snowflake.ValidateRequest{
			Target: cmd.TargetFlags.Target(a.cfg),
			Append: cmd.Append,
		})
		for _, e := range entries {
			fmt.Fprintln(ctx.Out, e.Statement)
		}
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			fmt.Fprintln(ctx.Out, "no columns to add")
		}
		return nil
	})
}

// FetchCmd represents the fetch command
type FetchCmd struct {
	TargetFlags `embed:""`
	Output      string `help:"Output file; stdout when empty" short:"o"`
	Format      string `help:"Output format" enum:"csv,parquet" default:"csv"`
}

// Run executes the fetch command
func (cmd *FetchCmd) Run(ctx *Context) error {
	return withApp(ctx, func(a *app) error {
		frame, err := a.client.FetchTableData(ctx, cmd.TargetFlags.Target(a.cfg))
		if err != nil {
			return err
		}
		if err := writeFrame(ctx.Out, frame, cmd.Output, cmd.Format); err != nil {
			return err
		}
		a.logger.Info("fetched table", zap.String("table", cmd.Table), zap.Int("rows", frame.Len()))
		return nil
	})
}

func writeFrame(stdout io.Writer, frame *dataset.Frame, path, format string) error {
	switch format {
	case "", "csv":
		if path == "" {
			return frame.WriteCSV(stdout)
		}
		file, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", path, err)
		}
		if err := frame.WriteCSV(file); err != nil {
			file.Close()
			return err
		}
		return file.Close()
	case "parquet":
		if path == "" {
			return fmt.Errorf("--output is required for parquet")
		}
		return frame.WriteParquet(path)
	default:
		return fmt.Errorf("%w: %s", ErrUnknownFormat, format)
	}
}

// QueryCmd represents the query command
type QueryCmd struct {
	SQL       string `arg:"" help:"Statement to run"`
	Database  string `help:"Database to run in" short:"d"`
	Schema    string `help:"Schema to run in" short:"s"`
	Warehouse string `help:"Warehouse to run with"`
	Role      string `help:"Role to run with"`
}

// Run executes the query command
func (cmd *QueryCmd) Run(ctx *Context) error {
	return withApp(ctx, func(a *app) error {
		target := TargetFlags{
			Database:  cmd.Database,
			Schema:    cmd.Schema,
			Warehouse: cmd.Warehouse,
			Role:      cmd.Role,
		}.Target(a.cfg)

		outcome, err := a.client.RunQuery(ctx, cmd.SQL, target)
		if err != nil {
			return err
		}
		return printQueryOutcome(ctx.Out, outcome)
	})
}

func printQueryOutcome(w io.Writer, outcome *snowflake.QueryOutcome) error {
	if outcome.Tabular() {
		return outcome.Frame.WriteCSV(w)
	}
	_, err := fmt.Fprintf(w, "%d rows affected\n", outcome.RowsAffected)
	return err
}

// JournalCmd represents the journal command
type JournalCmd struct {
	Table string `arg:"" optional:"" help:"Only show loads into this table"`
}

// Run executes the journal command. The journal lives in the state store,
// so no warehouse connection is made.
func (cmd *JournalCmd) Run(ctx *Context) error {
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close(ctx)

	states, err := a.client.Journal(ctx, cmd.Table)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(ctx.Out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "JOB\tTABLE\tSTATUS\tROWS\tCHUNKS\tCOLUMNS ADDED\tUPDATED\tERROR")
	for _, s := range states {
		fmt.Fprintf(tw, "%s\t%s.%s.%s\t%s\t%d\t%d\t%s\t%s\t%s\n",
			s.JobID, s.Database, s.Schema, s.Table, s.Status, s.RowsLoaded, s.Chunks,
			strings.Join(s.ColumnsAdded, ","), s.LastUpdated.Format(time.RFC3339), s.Error)
	}
	return tw.Flush()
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
