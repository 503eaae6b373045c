package services

import (
	"context"

	"github.com/prabaj-wq/allinonecompdev-sub004/modules/hierarchy/domain"
)

type NodeInput struct {
	HierarchyID string
	Code        string
	Name        string
	ParentID    *string
	Level       int
}

type ElementInput struct {
	Code         string
	Name         string
	NodeID       *string
	HierarchyID  *string
	Level        int
	CustomFields map[string]any
}

// ElementUpdate is a partial element write. When SetPlacement is true the
// node/hierarchy/level triple is written (nil pointers clear the placement).
// CustomFields is written only when non-nil.
type ElementUpdate struct {
	SetPlacement bool
	NodeID       *string
	HierarchyID  *string
	Level        int
	CustomFields map[string]any
}

// Store is the external CRUD backend for one axis.
type Store interface {
	Axis() domain.Axis

	ListHierarchies(ctx context.Context) ([]domain.Hierarchy, error)
	CreateHierarchy(ctx context.Context, h domain.Hierarchy) (domain.Hierarchy, error)
	DeleteHierarchy(ctx context.Context, id string) error
	GetStructure(ctx context.Context, hierarchyID string) (domain.Structure, error)

	CreateNode(ctx context.Context, in NodeInput) (domain.Node, error)
	UpdateNode(ctx context.Context, id string, parentID *string, level int) error
	DeleteNode(ctx context.Context, id string, cascade bool) error

	ListElements(ctx context.Context) ([]domain.Element, error)
	CreateElement(ctx context.Context, in ElementInput) (domain.Element, error)
	UpdateElement(ctx context.Context, id string, upd ElementUpdate) error

	ListCustomFields(ctx context.Context) ([]domain.CustomFieldDefinition, error)
}
