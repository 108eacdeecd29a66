// Package endpoint discovers the backends that publish API documents and
// describes each one as an immutable Descriptor.
package endpoint

import (
	"fmt"
	"net/url"
	"strings"
)

// Descriptor identifies one backend participating in aggregation.
// Values are rebuilt on every discovery pass and never mutated.
type Descriptor struct {
	ClusterID          string `json:"cluster_id"`
	BaseAddress        string `json:"base_address"`
	DocumentPath       string `json:"document_path"`
	Prefix             string `json:"prefix,omitempty"`
	PathFilter         string `json:"path_filter,omitempty"`
	TokenClient        string `json:"token_client,omitempty"`
	OnlyPublishedPaths bool   `json:"only_published_paths,omitempty"`
	IsMetadataSource   bool   `json:"is_metadata_source,omitempty"`
	GroupName          string `json:"group_name,omitempty"`
}

// EffectiveGroup is the document group this endpoint contributes to:
// the explicit group name, or the cluster ID when none is set.
func (d Descriptor) EffectiveGroup() string {
	if d.GroupName != "" {
		return d.GroupName
	}
	return d.ClusterID
}

// InGroup reports whether the endpoint belongs to group (case-insensitive)
func (d Descriptor) InGroup(group string) bool {
	return strings.EqualFold(d.EffectiveGroup(), group)
}

// DocumentURL resolves the document path against the base address
func (d Descriptor) DocumentURL() (string, error) {
	base, err := url.Parse(d.BaseAddress)
	if err != nil {
		return "", fmt.Errorf("parse base address %q: %w", d.BaseAddress, err)
	}
	if !base.IsAbs() || base.Host == "" {
		return "", fmt.Errorf("base address %q is not an absolute URL", d.BaseAddress)
	}
	ref, err := url.Parse(d.DocumentPath)
	if err != nil {
		return "", fmt.Errorf("parse document path %q: %w", d.DocumentPath, err)
	}
	return base.ResolveReference(ref).String(), nil
}
