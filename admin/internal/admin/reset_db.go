package admin

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/malbeclabs/census/census/pkg/loader"
)

// ResetDB drops every catalog table present in the engine after asking for
// confirmation on in, unless skipConfirm is set.
func ResetDB(ctx context.Context, out io.Writer, in io.Reader, ldr *loader.Loader, dryRun, skipConfirm bool) error {
	tables, err := ldr.Reset(ctx, true)
	if err != nil {
		return err
	}
	if len(tables) == 0 {
		fmt.Fprintln(out, "No census tables found")
		return nil
	}

	fmt.Fprintf(out, "⚠️  WARNING: This will DROP %d table(s):\n\n", len(tables))
	for _, table := range tables {
		fmt.Fprintf(out, "  - %s\n", table)
	}

	if dryRun {
		fmt.Fprintln(out, "\n[DRY RUN] Would drop the above tables")
		return nil
	}

	if !skipConfirm {
		fmt.Fprintf(out, "\n⚠️  This is a DESTRUCTIVE operation that cannot be undone!\n")
		fmt.Fprintf(out, "Type 'yes' to confirm: ")

		response, err := bufio.NewReader(in).ReadString('\n')
		if err != nil && err != io.EOF {
			return fmt.Errorf("failed to read confirmation: %w", err)
		}
		if strings.TrimSpace(strings.ToLower(response)) != "yes" {
			fmt.Fprintf(out, "\nConfirmation failed. Operation cancelled.\n")
			return nil
		}
		fmt.Fprintln(out)
	}

	dropped, err := ldr.Reset(ctx, false)
	for _, table := range dropped {
		fmt.Fprintf(out, "  ✓ Dropped %s\n", table)
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "\nSuccessfully dropped %d table(s)\n", len(dropped))
	return nil
}
