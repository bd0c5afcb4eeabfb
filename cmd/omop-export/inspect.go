package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ehr/omopexport/internal/platform/omop"
)

func inspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <file.tsv>",
		Short: "Parse a published TSV file and report its header and row count",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			return inspectTSV(cmd.OutOrStdout(), filepath.Base(args[0]), f)
		},
	}
}

// inspectTSV reports on one TSV file. A file named after a known table must
// carry exactly that table's columns.
func inspectTSV(out io.Writer, name string, r io.Reader) error {
	header, rows, err := omop.ReadTSV(r)
	if err != nil {
		return fmt.Errorf("parse %s: %w", name, err)
	}

	table := omop.Table(strings.TrimSuffix(name, ".tsv"))
	known := false
	for _, t := range omop.Tables() {
		if t == table {
			known = true
			break
		}
	}

	fmt.Fprintf(out, "file:    %s\n", name)
	if known {
		fmt.Fprintf(out, "table:   %s\n", table)
	} else {
		fmt.Fprintln(out, "table:   (unknown)")
	}
	fmt.Fprintf(out, "columns: %d\n", len(header))
	fmt.Fprintf(out, "rows:    %d\n", len(rows))
	fmt.Fprintf(out, "header:  %s\n", strings.Join(header, ", "))

	if known {
		want := omop.Columns(table)
		if strings.Join(want, "\t") != strings.Join(header, "\t") {
			return fmt.Errorf("%w: %s header does not match the %s table", omop.ErrColumnMismatch, name, table)
		}
	}
	return nil
}
