package admin

import (
	"context"
	"fmt"
	"io"
	"slices"
	"text/tabwriter"

	"github.com/malbeclabs/census/census/pkg/loader"
	"github.com/malbeclabs/census/census/pkg/schema"
)

// InitTables materializes every missing catalog table. It fails when any
// table could not be created.
func InitTables(ctx context.Context, out io.Writer, ldr *loader.Loader) error {
	report, err := ldr.EnsureTables(ctx)
	if err != nil {
		return err
	}
	for _, name := range report.Created {
		fmt.Fprintf(out, "  ✓ Created %s\n", name)
	}
	for _, f := range report.Failed {
		fmt.Fprintf(out, "  ✗ %s: %v\n", f.Table.Name, f.Err)
	}
	fmt.Fprintf(out, "\n%d created, %d already present, %d failed\n", len(report.Created), len(report.Skipped), len(report.Failed))
	if len(report.Failed) > 0 {
		return fmt.Errorf("%d table(s) failed to load", len(report.Failed))
	}
	return nil
}

// TableLister lists the tables that exist in the engine.
type TableLister interface {
	Tables(ctx context.Context) ([]string, error)
}

// ListTables prints every catalog table and whether the engine has it.
func ListTables(ctx context.Context, out io.Writer, engineTables TableLister, ldr *loader.Loader) error {
	existing, err := engineTables.Tables(ctx)
	if err != nil {
		return fmt.Errorf("failed to list tables: %w", err)
	}
	tables, err := ldr.Tables()
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TABLE\tTYPE\tYEAR\tLEVEL\tSTATUS")
	for _, t := range tables {
		status := "missing"
		if slices.Contains(existing, t.Name) {
			status = "loaded"
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n", t.Name, t.DatasetType, t.Year, t.Level, status)
	}
	return w.Flush()
}

// VariableLister lists the canonical variables of one table.
type VariableLister interface {
	ListVariables(ctx context.Context, datasetType string, year int, level schema.Level) ([]string, error)
}

// Describe prints the canonical variables of a dataset table, one per line.
func Describe(ctx context.Context, out io.Writer, svc VariableLister, datasetType string, year int, level string) error {
	l, err := schema.ParseLevel(level)
	if err != nil {
		return err
	}
	vars, err := svc.ListVariables(ctx, datasetType, year, l)
	if err != nil {
		return err
	}
	for _, v := range vars {
		fmt.Fprintln(out, v)
	}
	return nil
}
