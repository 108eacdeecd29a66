package endpoint

import (
	"context"
	"strings"
)

// Directory lists aggregation targets. Implementations never fail:
// an empty or missing source yields an empty list.
type Directory interface {
	List(ctx context.Context) []Descriptor
	ListGroup(ctx context.Context, group string) []Descriptor
}

// Filter returns the descriptors whose effective group matches group
func Filter(all []Descriptor, group string) []Descriptor {
	out := make([]Descriptor, 0, len(all))
	for _, d := range all {
		if d.InGroup(group) {
			out = append(out, d)
		}
	}
	return out
}

// Group is one document group with its members in discovery order
type Group struct {
	Name      string
	Endpoints []Descriptor
}

// GroupBy partitions descriptors by effective group. Group names compare
// case-insensitively; the first spelling seen names the group. Groups are
// returned in order of first appearance.
func GroupBy(all []Descriptor) []Group {
	index := make(map[string]int)
	var groups []Group
	for _, d := range all {
		key := strings.ToLower(d.EffectiveGroup())
		i, ok := index[key]
		if !ok {
			i = len(groups)
			index[key] = i
			groups = append(groups, Group{Name: d.EffectiveGroup()})
		}
		groups[i].Endpoints = append(groups[i].Endpoints, d)
	}
	return groups
}

// GroupNames lists the distinct effective groups in order of first appearance
func GroupNames(all []Descriptor) []string {
	groups := GroupBy(all)
	names := make([]string, len(groups))
	for i, g := range groups {
		names[i] = g.Name
	}
	return names
}

// Static is a fixed Directory, useful for one-shot aggregation and tests
type Static []Descriptor

// List implements Directory
func (s Static) List(_ context.Context) []Descriptor {
	return append([]Descriptor(nil), s...)
}

// ListGroup implements Directory
func (s Static) ListGroup(_ context.Context, group string) []Descriptor {
	return Filter(s, group)
}
