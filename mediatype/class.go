package mediatype

import "strings"

// Class is the content category of a cached resource. Its value is the
// single path segment that leads every cache URL path.
type Class string

const (
	// Document is used for markup and anything not otherwise classified.
	Document Class = "c"
	// Image is used for image/* media types.
	Image Class = "i"
	// Resource is used for fonts.
	Resource Class = "r"
)

// Prefix returns the class as a leading path segment, e.g. "/i".
func (c Class) Prefix() string {
	return "/" + string(c)
}

// String returns the class name.
func (c Class) String() string {
	switch c {
	case Document:
		return "document"
	case Image:
		return "image"
	case Resource:
		return "resource"
	default:
		return "unknown"
	}
}

// ClassifyType maps a media type to its class. Images win over fonts, and
// anything else, including the empty string, is a document.
func ClassifyType(mediaType string) Class {
	switch {
	case strings.HasPrefix(mediaType, "image/"):
		return Image
	case strings.Contains(mediaType, "font"):
		return Resource
	default:
		return Document
	}
}

// Classify infers the class of p from its extension using l.
func Classify(l Lookup, p string) Class {
	if l == nil {
		return Document
	}
	mediaType, ok := l.TypeByPath(p)
	if !ok {
		return Document
	}
	return ClassifyType(mediaType)
}
