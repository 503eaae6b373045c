package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newHierarchiesCmd(opts *globalOptions, load serviceLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "hierarchies",
		Short: "List hierarchies of the selected axis",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			svc, err := load(ctx, opts)
			if err != nil {
				return err
			}
			list, err := svc.ListHierarchies(ctx)
			if err != nil {
				return classify(err, exitAPIRead)
			}
			for _, h := range list {
				if err := writeJSONLine(cmd.OutOrStdout(), h); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

func newTreeCmd(opts *globalOptions, load serviceLoader) *cobra.Command {
	var hierarchyID string
	cmd := &cobra.Command{
		Use:   "tree",
		Short: "Print the nested tree of one hierarchy as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(hierarchyID) == "" {
				return withCode(exitUsage, fmt.Errorf("--hierarchy is required"))
			}
			ctx := cmd.Context()
			svc, err := load(ctx, opts)
			if err != nil {
				return err
			}
			view, err := svc.Load(ctx, hierarchyID)
			if err != nil {
				return classify(err, exitAPIRead)
			}
			return writeJSONLine(cmd.OutOrStdout(), view)
		},
	}
	cmd.Flags().StringVar(&hierarchyID, "hierarchy", "", "Hierarchy id (required)")
	return cmd
}

func newFieldsCmd(opts *globalOptions, load serviceLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "fields",
		Short: "List custom field definitions of the selected axis",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			svc, err := load(ctx, opts)
			if err != nil {
				return err
			}
			defs, err := svc.CustomFields(ctx)
			if err != nil {
				return classify(err, exitAPIRead)
			}
			for _, d := range defs {
				if err := writeJSONLine(cmd.OutOrStdout(), d); err != nil {
					return err
				}
			}
			return nil
		},
	}
}
