package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/JonMunkholm/staffimport/internal/app"
	"github.com/JonMunkholm/staffimport/internal/core"
)

type runOptions struct {
	entityID uuid.UUID
	apply    bool
	rows     []int
	encoding string
	actor    string
	format   string
	strict   bool
}

func newRunCmd(root *rootOptions) *cobra.Command {
	var opts runOptions

	cmd := &cobra.Command{
		Use:   "run FILE",
		Short: "Preview or import an employee file (dry-run unless --apply)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(cmd.Context(), cmd.OutOrStdout(), root, args[0], opts)
		},
	}

	var entity string
	cmd.Flags().StringVar(&entity, "entity", "", "Entity UUID (required)")
	cmd.Flags().BoolVar(&opts.apply, "apply", false, "Save accepted rows (default is a preview)")
	cmd.Flags().IntSliceVar(&opts.rows, "rows", nil, "Row indices to run, counted from 0 over non-blank rows (default: all)")
	cmd.Flags().StringVar(&opts.encoding, "encoding", "", "Charset of .csv files (default: utf-8)")
	cmd.Flags().StringVar(&opts.actor, "actor", "importctl", "Login recorded as the creator of imported users")
	cmd.Flags().StringVar(&opts.format, "format", "text", "Output: text or json")
	cmd.Flags().BoolVar(&opts.strict, "strict", false, "Exit with code 2 when any row failed")
	_ = cmd.MarkFlagRequired("entity")

	cmd.PreRunE = func(cmd *cobra.Command, args []string) error {
		id, err := uuid.Parse(strings.TrimSpace(entity))
		if err != nil {
			return withCode(exitUsage, fmt.Errorf("invalid --entity: %w", err))
		}
		opts.entityID = id
		if opts.format != "text" && opts.format != "json" {
			return withCode(exitUsage, fmt.Errorf("invalid --format %q: must be text or json", opts.format))
		}
		return nil
	}

	return cmd
}

func runImport(ctx context.Context, out io.Writer, root *rootOptions, path string, opts runOptions) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return withCode(exitUsage, fmt.Errorf("read %s: %w", path, err))
	}

	cfg, err := loadConfig(root)
	if err != nil {
		return err
	}
	a, err := app.New(ctx, cfg)
	if err != nil {
		return withCode(exitDB, err)
	}
	defer a.Close()

	res, err := a.Service.RunFile(ctx, data, core.DecodeHint{
		FileName: filepath.Base(path),
		Encoding: opts.encoding,
	}, core.RunOptions{
		EntityID: opts.entityID,
		Actor:    opts.actor,
		Save:     opts.apply,
		Selected: opts.rows,
	})
	if err != nil {
		var pe *core.ParseError
		if errors.As(err, &pe) {
			return withCode(exitUsage, fmt.Errorf("%s: %w", core.FormatUserError(err), err))
		}
		return withCode(exitDB, err)
	}

	if opts.format == "json" {
		if err := writeJSONLine(out, res); err != nil {
			return err
		}
	} else if err := writeSummary(out, res, opts.apply); err != nil {
		return err
	}

	if opts.strict && res.FailedNumber > 0 {
		return withCode(exitFailedRows, fmt.Errorf("%d of %d rows failed", res.FailedNumber, len(res.RecordResults)))
	}
	return nil
}

// writeSummary prints one line per row and a total.
func writeSummary(out io.Writer, res *core.BatchResult, applied bool) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ROW\tSTATUS\tNAME\tDEPARTMENT\tERRORS")
	for _, rr := range res.RecordResults {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n",
			rr.Index, rowStatus(rr, applied), rowName(rr), rowDepartment(rr), rowErrors(rr))
	}
	if err := tw.Flush(); err != nil {
		return fmt.Errorf("write summary: %w", err)
	}

	verb := "previewed"
	if applied {
		verb = "imported"
	}
	_, err := fmt.Fprintf(out, "\n%d rows %s, %d failed\n", len(res.RecordResults), verb, res.FailedNumber)
	return err
}

func rowStatus(rr core.RecordResult, applied bool) string {
	switch {
	case rr.DuplicatingUser != nil:
		return "duplicate"
	case rr.Failed():
		return "failed"
	case applied:
		return "created"
	default:
		return "ok"
	}
}

func rowName(rr core.RecordResult) string {
	if rr.CreatedUser != nil {
		return rr.CreatedUser.FullName()
	}
	parts := make([]string, 0, 2)
	for _, key := range []string{core.ColLastName, core.ColFirstName} {
		if s, ok := rr.ParsedData[key].(string); ok && s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, " ")
}

func rowDepartment(rr core.RecordResult) string {
	switch {
	case rr.CreatedDepartment != nil:
		return rr.CreatedDepartment.Name + " (new)"
	case rr.FoundDepartment != nil:
		return rr.FoundDepartment.Name
	default:
		return "-"
	}
}

func rowErrors(rr core.RecordResult) string {
	if len(rr.Errors) == 0 {
		return "-"
	}
	msgs := make([]string, 0, len(rr.Errors))
	for _, e := range rr.Errors {
		msgs = append(msgs, e.Error())
	}
	return strings.Join(msgs, "; ")
}
