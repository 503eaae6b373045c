package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/prabaj-wq/allinonecompdev-sub004/modules/hierarchy/services"
)

type importOptions struct {
	hierarchyID string
	file        string
	format      string
	apply       bool
}

func newImportCmd(g *globalOptions, load serviceLoader) *cobra.Command {
	var opts importOptions
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Reconcile a flat CSV or XLSX table into a hierarchy (dry run unless --apply)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(opts.hierarchyID) == "" {
				return withCode(exitUsage, fmt.Errorf("--hierarchy is required"))
			}
			if strings.TrimSpace(opts.file) == "" {
				return withCode(exitUsage, fmt.Errorf("--file is required"))
			}
			format, err := formatFor(opts.format, opts.file)
			if err != nil {
				return err
			}
			table, err := readTable(opts.file, format)
			if err != nil {
				return err
			}
			svc, err := load(cmd.Context(), g)
			if err != nil {
				return err
			}
			return runImport(cmd.Context(), svc, opts, table, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&opts.hierarchyID, "hierarchy", "", "Hierarchy id (required)")
	cmd.Flags().StringVar(&opts.file, "file", "", "CSV or XLSX file (required)")
	cmd.Flags().StringVar(&opts.format, "format", "", "csv|xlsx (default from --file extension)")
	cmd.Flags().BoolVar(&opts.apply, "apply", false, "Write changes (default is a dry run)")
	return cmd
}

func runImport(ctx context.Context, svc *services.HierarchyService, opts importOptions, table services.Table, stdout io.Writer) error {
	res, err := svc.Import(ctx, opts.hierarchyID, table, !opts.apply)
	if err != nil {
		return classify(err, exitAPIRead)
	}
	if err := writeJSONLine(stdout, res); err != nil {
		return err
	}
	if res.Failed == 0 {
		return nil
	}
	if res.NodesCreated+res.ElementsCreated+res.ElementsUpdated > 0 {
		return withCode(exitPartial, fmt.Errorf("import partially applied: %s", res.Summary))
	}
	return withCode(exitAPIWrite, fmt.Errorf("import failed: %s", res.Summary))
}
