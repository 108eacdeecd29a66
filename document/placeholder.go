package document

// PlaceholderDescription is shown while a group has never been aggregated
const PlaceholderDescription = "**API documentation is being loaded. Please refresh in a few seconds.**\n\n" +
	"The Swagger aggregation service is still initializing. This may happen during application " +
	"startup or when backend services are not yet available."

// Placeholder returns the "still loading" document served for a group with no merged result yet
func Placeholder(name string) *Document {
	doc := New()
	doc.Info = Info{
		Title:       name,
		Version:     DefaultVersion,
		Description: PlaceholderDescription,
	}
	return doc
}

// IsPlaceholder reports whether doc was produced by Placeholder
func IsPlaceholder(doc *Document) bool {
	return doc != nil && doc.Info.Description == PlaceholderDescription && len(doc.Paths) == 0
}
