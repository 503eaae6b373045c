package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/prabaj-wq/allinonecompdev-sub004/modules/hierarchy/services"
)

func newAssignCmd(g *globalOptions, load serviceLoader) *cobra.Command {
	var hierarchyID, nodeID, elements string
	cmd := &cobra.Command{
		Use:   "assign",
		Short: "Assign elements to a node",
		RunE: func(cmd *cobra.Command, args []string) error {
			ids := splitIDs(elements)
			if strings.TrimSpace(hierarchyID) == "" || strings.TrimSpace(nodeID) == "" {
				return withCode(exitUsage, fmt.Errorf("--hierarchy and --node are required"))
			}
			if len(ids) == 0 {
				return withCode(exitUsage, fmt.Errorf("--elements is required"))
			}
			ctx := cmd.Context()
			svc, err := load(ctx, g)
			if err != nil {
				return err
			}
			res, err := svc.Assign(ctx, hierarchyID, nodeID, ids)
			if err != nil {
				return classify(err, exitAPIRead)
			}
			return reportAssignment(cmd.OutOrStdout(), "assign", res)
		},
	}
	cmd.Flags().StringVar(&hierarchyID, "hierarchy", "", "Hierarchy id (required)")
	cmd.Flags().StringVar(&nodeID, "node", "", "Target node id (required)")
	cmd.Flags().StringVar(&elements, "elements", "", "Comma separated element ids (required)")
	return cmd
}

func newUnassignCmd(g *globalOptions, load serviceLoader) *cobra.Command {
	var elements string
	cmd := &cobra.Command{
		Use:   "unassign",
		Short: "Detach elements from their node",
		RunE: func(cmd *cobra.Command, args []string) error {
			ids := splitIDs(elements)
			if len(ids) == 0 {
				return withCode(exitUsage, fmt.Errorf("--elements is required"))
			}
			ctx := cmd.Context()
			svc, err := load(ctx, g)
			if err != nil {
				return err
			}
			return reportAssignment(cmd.OutOrStdout(), "unassign", svc.Unassign(ctx, ids))
		},
	}
	cmd.Flags().StringVar(&elements, "elements", "", "Comma separated element ids (required)")
	return cmd
}

func reportAssignment(w io.Writer, action string, res *services.AssignmentResult) error {
	if err := writeJSONLine(w, res); err != nil {
		return err
	}
	switch {
	case len(res.Failed) == 0:
		return nil
	case res.Partial():
		return withCode(exitPartial, fmt.Errorf("%s: %d of %d elements failed", action, len(res.Failed), len(res.Failed)+len(res.Succeeded)))
	default:
		return withCode(exitAPIWrite, fmt.Errorf("%s: all %d elements failed", action, len(res.Failed)))
	}
}

func newMoveCmd(g *globalOptions, load serviceLoader) *cobra.Command {
	var hierarchyID, nodeID, parentID string
	var toRoot bool
	cmd := &cobra.Command{
		Use:   "move",
		Short: "Re-parent a node and rewrite the levels below it",
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(hierarchyID) == "" || strings.TrimSpace(nodeID) == "" {
				return withCode(exitUsage, fmt.Errorf("--hierarchy and --node are required"))
			}
			if toRoot == (strings.TrimSpace(parentID) != "") {
				return withCode(exitUsage, fmt.Errorf("exactly one of --parent or --root is required"))
			}
			var parent *string
			if !toRoot {
				p := strings.TrimSpace(parentID)
				parent = &p
			}
			ctx := cmd.Context()
			svc, err := load(ctx, g)
			if err != nil {
				return err
			}
			return runMove(ctx, svc, hierarchyID, nodeID, parent, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&hierarchyID, "hierarchy", "", "Hierarchy id (required)")
	cmd.Flags().StringVar(&nodeID, "node", "", "Node id to move (required)")
	cmd.Flags().StringVar(&parentID, "parent", "", "New parent node id")
	cmd.Flags().BoolVar(&toRoot, "root", false, "Move the node to the root")
	return cmd
}

func runMove(ctx context.Context, svc *services.HierarchyService, hierarchyID, nodeID string, parent *string, w io.Writer) error {
	res, err := svc.MoveNode(ctx, hierarchyID, nodeID, parent)
	if err != nil {
		return classify(err, exitAPIWrite)
	}
	return writeJSONLine(w, res)
}
