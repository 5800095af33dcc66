package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/a7mdelbanna/classboom/internal/config"
	"github.com/a7mdelbanna/classboom/internal/core"
)

var errBadMapping = errors.New("mapping must look like COLUMN=FIELD")

// sessionFlags are shared by the commands that read a file.
type sessionFlags struct {
	entity   string
	mappings []string
}

func (f *sessionFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.entity, "entity", "e", "students", "Entity to import")
	cmd.Flags().StringArrayVarP(&f.mappings, "map", "m", nil, "Override a suggested mapping as COLUMN=FIELD (repeatable, FIELD may be \"ignore\")")
}

func newSampleCmd(a *app) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "sample ENTITY",
		Short: "Write the CSV template of an entity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			schema, err := lookupSchema(args[0])
			if err != nil {
				return err
			}
			if output == "" {
				return core.SampleCSV(cmd.OutOrStdout(), schema)
			}
			if output == "." {
				output = core.SampleFileName(schema)
			}

			f, err := os.Create(output)
			if err != nil {
				return err
			}
			if err := core.SampleCSV(f, schema); err != nil {
				f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", output)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Write to this file instead of stdout (\".\" uses the default name)")
	return cmd
}

func newSchemasCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "schemas",
		Short: "List importable entities and their fields",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			for _, schema := range core.All() {
				fmt.Fprintf(tw, "%s\t%s\n", schema.Entity, schema.Label)
				for _, f := range schema.Fields {
					req := ""
					if f.Required {
						req = "required"
					}
					fmt.Fprintf(tw, "  %s\t%s\t%s\n", f.Name, f.Label, req)
				}
			}
			return tw.Flush()
		},
	}
}

func newInspectCmd(a *app) *cobra.Command {
	var flags sessionFlags
	cmd := &cobra.Command{
		Use:   "inspect FILE",
		Short: "Show the columns of a file and their suggested mappings",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.importConfig()
			if err != nil {
				return err
			}
			session, err := openSession(cfg, flags, args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s: %d rows, %d columns\n\n", filepath.Base(args[0]), len(session.RawRows()), len(session.Headers()))
			printMappings(out, session)
			if missing := session.MissingRequired(); len(missing) > 0 {
				fmt.Fprintf(out, "\nunmapped required fields: %s\n", joinFields(missing))
			}
			return nil
		},
	}
	flags.register(cmd)
	return cmd
}

func newValidateCmd(a *app) *cobra.Command {
	var (
		flags  sessionFlags
		report string
	)
	cmd := &cobra.Command{
		Use:   "validate FILE",
		Short: "Validate a file without importing it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.importConfig()
			if err != nil {
				return err
			}
			session, err := previewSession(cfg, flags, args[0])
			if err != nil {
				return err
			}

			printPreview(cmd.OutOrStdout(), session)
			return writeReport(cmd.OutOrStdout(), report, session)
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVar(&report, "report", "", "Write the error report CSV to this file")
	return cmd
}

func newImportCmd(a *app) *cobra.Command {
	var (
		flags       sessionFlags
		report      string
		institution string
		databaseURL string
		batchSize   int
		concurrency int
		migrate     bool
	)
	cmd := &cobra.Command{
		Use:   "import FILE",
		Short: "Validate a file and commit its valid rows",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			institutionID, err := uuid.Parse(institution)
			if err != nil {
				return fmt.Errorf("invalid --institution %q: %w", institution, err)
			}
			if databaseURL == "" {
				databaseURL = a.getenv("DATABASE_URL")
			}
			if databaseURL == "" {
				return errors.New("no database: set --database-url or DATABASE_URL")
			}

			cfg, err := a.importConfig()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("batch-size") {
				cfg.BatchSize = batchSize
			}
			if cmd.Flags().Changed("concurrency") {
				cfg.Concurrency = concurrency
			}

			session, err := previewSession(cfg, flags, args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			printPreview(out, session)

			ctx := cmd.Context()
			creators, closeDB, err := a.open(ctx, databaseURL, migrate)
			if err != nil {
				return err
			}
			defer closeDB()

			creator, err := creators.For(flags.entity, institutionID)
			if err != nil {
				return err
			}

			opts := cfg.CommitOptions()
			opts.OnProgress = func(p core.CommitProgress) {
				fmt.Fprintf(out, "batch %d/%d: %d/%d rows (%d%%)\n", p.Batch, p.Batches, p.Processed, p.Total, p.Percent())
			}
			result, err := session.Import(ctx, creator, opts)
			if err != nil {
				return err
			}

			fmt.Fprintf(out, "\nimported %d of %d rows, %d failed\n", result.SuccessfulRows, result.TotalRows, result.FailedRows)
			for _, e := range result.Errors {
				fmt.Fprintf(out, "  row %d: %s\n", e.Row, core.FormatUserError(errors.New(e.Message)))
			}
			if err := writeReport(out, report, session); err != nil {
				return err
			}
			if !result.Success {
				return fmt.Errorf("%d rows failed to import", result.FailedRows)
			}
			return nil
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVar(&report, "report", "", "Write the error report CSV to this file")
	cmd.Flags().StringVar(&institution, "institution", "", "Institution ID the records belong to")
	cmd.Flags().StringVar(&databaseURL, "database-url", "", "Postgres URL (default $DATABASE_URL)")
	cmd.Flags().IntVar(&batchSize, "batch-size", core.DefaultBatchSize, "Rows per batch")
	cmd.Flags().IntVar(&concurrency, "concurrency", 1, "Parallel inserts within a batch")
	cmd.Flags().BoolVar(&migrate, "migrate", false, "Create the entity tables if missing")
	_ = cmd.MarkFlagRequired("institution")
	return cmd
}

func lookupSchema(entity string) (core.Schema, error) {
	schema, ok := core.Get(entity)
	if !ok {
		return core.Schema{}, fmt.Errorf("%w: %s", core.ErrUnknownEntity, entity)
	}
	return schema, nil
}

// openSession parses path into a new session and applies the --map overrides.
func openSession(cfg config.ImportConfig, flags sessionFlags, path string) (*core.Session, error) {
	schema, err := lookupSchema(flags.entity)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}

	session := core.NewSession(schema, cfg.ServiceOptions().Limits)
	if err := session.Upload(filepath.Base(path), f, info.Size()); err != nil {
		return nil, err
	}

	for _, m := range flags.mappings {
		column, field, ok := strings.Cut(m, "=")
		if !ok || strings.TrimSpace(column) == "" || strings.TrimSpace(field) == "" {
			return nil, fmt.Errorf("%w: %q", errBadMapping, m)
		}
		if err := session.UpdateMapping(strings.TrimSpace(column), core.Field(strings.TrimSpace(field))); err != nil {
			return nil, err
		}
	}
	return session, nil
}

// previewSession opens the file and validates every row.
func previewSession(cfg config.ImportConfig, flags sessionFlags, path string) (*core.Session, error) {
	session, err := openSession(cfg, flags, path)
	if err != nil {
		return nil, err
	}
	if err := session.ProceedToPreview(); err != nil {
		return nil, err
	}
	return session, nil
}

func printMappings(w io.Writer, session *core.Session) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "COLUMN\tFIELD")
	for _, m := range session.Mappings() {
		fmt.Fprintf(tw, "%s\t%s\n", m.SourceColumn, m.TargetField)
	}
	tw.Flush()
}

func printPreview(w io.Writer, session *core.Session) {
	p := session.Snapshot().Preview
	if p == nil {
		return
	}
	s := p.Summary
	fmt.Fprintf(w, "%d rows: %d valid, %d excluded, %d with warnings, %d errors\n",
		s.TotalRows, s.ValidRows, s.ExcludedRows, s.WarningRows, s.ErrorCount)
	for _, e := range session.Errors() {
		fmt.Fprintf(w, "  %s\n", e.Error())
	}
}

func writeReport(out io.Writer, path string, session *core.Session) error {
	if path == "" {
		return nil
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := core.WriteErrorReport(f, session.Errors(), session.Result()); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	fmt.Fprintf(out, "error report written to %s\n", path)
	return nil
}

func joinFields(fields []core.Field) string {
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = string(f)
	}
	return strings.Join(names, ", ")
}
