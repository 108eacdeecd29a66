package endpoint

import "strings"

// Cluster metadata keys recognized by discovery
const (
	MetaEnabled            = "Swagger:Enabled"
	MetaPath               = "Swagger:Path"
	MetaPrefix             = "Swagger:Prefix"
	MetaPathFilter         = "Swagger:PathFilter"
	MetaOnlyPublishedPaths = "Swagger:OnlyPublishedPaths"
	MetaIsMetadataSource   = "Swagger:IsMetadataSource"
	MetaAccessTokenClient  = "Swagger:AccessTokenClient"
	MetaDocumentName       = "Swagger:DocumentName"
)

// Enabled reports whether cluster metadata opts into aggregation
func Enabled(meta map[string]string) bool {
	return isTrue(meta[MetaEnabled])
}

// FromMetadata builds a descriptor from a cluster's metadata bag
func FromMetadata(clusterID, address string, meta map[string]string, defaultPath string) Descriptor {
	path := meta[MetaPath]
	if path == "" {
		path = defaultPath
	}
	return Descriptor{
		ClusterID:          clusterID,
		BaseAddress:        address,
		DocumentPath:       path,
		Prefix:             meta[MetaPrefix],
		PathFilter:         meta[MetaPathFilter],
		TokenClient:        meta[MetaAccessTokenClient],
		OnlyPublishedPaths: isTrue(meta[MetaOnlyPublishedPaths]),
		IsMetadataSource:   isTrue(meta[MetaIsMetadataSource]),
		GroupName:          meta[MetaDocumentName],
	}
}

func isTrue(v string) bool {
	return strings.EqualFold(strings.TrimSpace(v), "true")
}
