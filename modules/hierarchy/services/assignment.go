package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/prabaj-wq/allinonecompdev-sub004/modules/hierarchy/domain"
)

type AssignmentFailure struct {
	ElementID string `json:"element_id"`
	Error     string `json:"error"`
}

type AssignmentResult struct {
	NodeID    string              `json:"node_id,omitempty"`
	Level     int                 `json:"level"`
	Succeeded []string            `json:"succeeded"`
	Failed    []AssignmentFailure `json:"failed,omitempty"`
}

func (r *AssignmentResult) Partial() bool {
	return len(r.Failed) > 0 && len(r.Succeeded) > 0
}

// TargetLevel is the level elements take when placed under target.
func TargetLevel(target *domain.Node) int {
	if target == nil {
		return 0
	}
	return target.Level + 1
}

// AssignElements places every element under target with one write per
// element. Writes are independent: a failure neither stops the batch nor
// rolls back earlier writes.
func AssignElements(ctx context.Context, store Store, target *domain.Node, elementIDs []string) (*AssignmentResult, error) {
	if target == nil || strings.TrimSpace(target.ID) == "" {
		return nil, ErrTargetNodeRequired
	}
	nodeID := target.ID
	hierarchyID := target.HierarchyID
	res := &AssignmentResult{NodeID: nodeID, Level: TargetLevel(target), Succeeded: make([]string, 0, len(elementIDs))}
	for _, id := range dedupeIDs(elementIDs) {
		upd := ElementUpdate{
			SetPlacement: true,
			NodeID:       domain.StringPtr(nodeID),
			Level:        res.Level,
		}
		if hierarchyID != "" {
			upd.HierarchyID = domain.StringPtr(hierarchyID)
		}
		if err := store.UpdateElement(ctx, id, upd); err != nil {
			recordAssignment("assign", false)
			res.Failed = append(res.Failed, AssignmentFailure{ElementID: id, Error: err.Error()})
			logWithFields(ctx, logrus.WarnLevel, "element assignment failed", logrus.Fields{
				"element_id": id,
				"node_id":    nodeID,
				"error":      err.Error(),
			})
			continue
		}
		recordAssignment("assign", true)
		res.Succeeded = append(res.Succeeded, id)
	}
	return res, nil
}

// UnassignElements clears node and hierarchy on every element. Elements are
// never deleted.
func UnassignElements(ctx context.Context, store Store, elementIDs []string) *AssignmentResult {
	res := &AssignmentResult{Succeeded: make([]string, 0, len(elementIDs))}
	for _, id := range dedupeIDs(elementIDs) {
		if err := store.UpdateElement(ctx, id, ElementUpdate{SetPlacement: true}); err != nil {
			recordAssignment("unassign", false)
			res.Failed = append(res.Failed, AssignmentFailure{ElementID: id, Error: err.Error()})
			logWithFields(ctx, logrus.WarnLevel, "element unassignment failed", logrus.Fields{"element_id": id, "error": err.Error()})
			continue
		}
		recordAssignment("unassign", true)
		res.Succeeded = append(res.Succeeded, id)
	}
	return res
}

func dedupeIDs(ids []string) []string {
	out := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

type MoveResult struct {
	NodeID        string   `json:"node_id"`
	ParentID      *string  `json:"parent_id"`
	Level         int      `json:"level"`
	LevelsUpdated []string `json:"levels_updated"`
}

// MoveNode re-parents a node and rewrites the levels of its subtree. A nil
// parentID moves the node to the root.
func MoveNode(ctx context.Context, store Store, tree *Tree, nodeID string, parentID *string) (*MoveResult, error) {
	n, ok := tree.ByID[nodeID]
	if !ok {
		return nil, ErrNodeNotFound
	}
	level := 0
	if parentID != nil && strings.TrimSpace(*parentID) != "" {
		pid := strings.TrimSpace(*parentID)
		if pid == nodeID {
			return nil, ErrNodeCycle
		}
		if _, below := tree.Descendants(nodeID)[pid]; below {
			return nil, ErrNodeCycle
		}
		parent, ok := tree.ByID[pid]
		if !ok {
			return nil, fmt.Errorf("parent %s: %w", pid, ErrNodeNotFound)
		}
		level = parent.Level + 1
		parentID = &pid
	} else {
		parentID = nil
	}

	if err := store.UpdateNode(ctx, nodeID, parentID, level); err != nil {
		return nil, fmt.Errorf("update node %s: %w", nodeID, err)
	}
	res := &MoveResult{NodeID: nodeID, ParentID: parentID, Level: level, LevelsUpdated: []string{nodeID}}

	delta := level - n.Level
	if delta == 0 {
		return res, nil
	}
	var walk func(p *domain.Node, parentLevel int) error
	walk = func(p *domain.Node, parentLevel int) error {
		for _, c := range p.Children {
			lvl := parentLevel + 1
			pid := p.ID
			if err := store.UpdateNode(ctx, c.ID, &pid, lvl); err != nil {
				return fmt.Errorf("update node %s: %w", c.ID, err)
			}
			res.LevelsUpdated = append(res.LevelsUpdated, c.ID)
			if err := walk(c, lvl); err != nil {
				return err
			}
		}
		return nil
	}
	if err := walk(n, level); err != nil {
		return res, err
	}
	return res, nil
}
