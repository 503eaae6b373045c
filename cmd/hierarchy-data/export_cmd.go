package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/prabaj-wq/allinonecompdev-sub004/modules/hierarchy/services"
)

type exportOptions struct {
	hierarchyID string
	format      string
	output      string
	outputDir   string
}

func newExportCmd(g *globalOptions, load serviceLoader) *cobra.Command {
	var opts exportOptions
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export a hierarchy as a flat CSV or XLSX table",
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(opts.hierarchyID) == "" {
				return withCode(exitUsage, fmt.Errorf("--hierarchy is required"))
			}
			format, err := formatFor(opts.format, opts.output)
			if err != nil {
				return err
			}
			svc, err := load(cmd.Context(), g)
			if err != nil {
				return err
			}
			return runExport(cmd.Context(), svc, opts, format, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&opts.hierarchyID, "hierarchy", "", "Hierarchy id (required)")
	cmd.Flags().StringVar(&opts.format, "format", "", "csv|xlsx (default from --output extension, else csv)")
	cmd.Flags().StringVar(&opts.output, "output", "", "Output file; '-' writes the table to stdout")
	cmd.Flags().StringVar(&opts.outputDir, "output-dir", ".", "Directory for the generated file name when --output is empty")
	return cmd
}

type exportSummary struct {
	Status   string                   `json:"status"`
	File     string                   `json:"file"`
	Rows     int                      `json:"rows"`
	Warnings []services.ExportWarning `json:"warnings,omitempty"`
	Artifact string                   `json:"artifact,omitempty"`
}

func runExport(ctx context.Context, svc *services.HierarchyService, opts exportOptions, format services.Format, stdout io.Writer) error {
	var buf bytes.Buffer
	info, err := svc.Export(ctx, opts.hierarchyID, format, &buf)
	if err != nil {
		return classify(err, exitAPIRead)
	}
	if opts.output == "-" {
		_, err := stdout.Write(buf.Bytes())
		return err
	}

	path := opts.output
	if strings.TrimSpace(path) == "" {
		path = filepath.Join(opts.outputDir, info.Filename)
	}
	f, err := createOutput(path)
	if err != nil {
		return err
	}
	if _, err := f.Write(buf.Bytes()); err != nil {
		_ = f.Close()
		return withCode(exitUsage, fmt.Errorf("write %s: %w", path, err))
	}
	if err := f.Close(); err != nil {
		return withCode(exitUsage, err)
	}
	return writeJSONLine(stdout, exportSummary{
		Status:   "exported",
		File:     path,
		Rows:     info.Rows,
		Warnings: info.Warnings,
		Artifact: info.Artifact,
	})
}
