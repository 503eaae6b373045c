package services

import (
	"sort"

	"github.com/prabaj-wq/allinonecompdev-sub004/modules/hierarchy/domain"
)

// ServiceSet holds one HierarchyService per axis. The engine is the same
// for every axis, only the Store differs.
type ServiceSet struct {
	byAxis map[domain.Axis]*HierarchyService
}

func NewServiceSet(svcs ...*HierarchyService) *ServiceSet {
	set := &ServiceSet{byAxis: make(map[domain.Axis]*HierarchyService, len(svcs))}
	for _, s := range svcs {
		set.byAxis[s.Axis()] = s
	}
	return set
}

func (s *ServiceSet) Get(axis domain.Axis) (*HierarchyService, bool) {
	svc, ok := s.byAxis[axis]
	return svc, ok
}

func (s *ServiceSet) Axes() []domain.Axis {
	out := make([]domain.Axis, 0, len(s.byAxis))
	for a := range s.byAxis {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
