// Package mimetypes groups sniffed media types into the coarse categories
// carried in content-type replies.
package mimetypes

import (
	"mime"
	"strings"
)

type MIME string

const (
	Unknown   MIME = "unknown"
	TextPlain MIME = "text/plain"
	TextHTML  MIME = "text/html"
	TextCSV   MIME = "text/csv"

	ApplicationPDF  MIME = "application/pdf"
	ApplicationJSON MIME = "application/json"
	ApplicationXML  MIME = "application/xml"

	ImagePNG  MIME = "image/png"
	ImageJPEG MIME = "image/jpeg"
	ImageGIF  MIME = "image/gif"
)

type Category string

const (
	CategoryText       Category = "text"
	CategoryStructured Category = "structured"
	CategoryDocument   Category = "document"
	CategoryImage      Category = "image"
	CategoryBinary     Category = "binary"
)

var categories = map[MIME]Category{
	TextPlain:       CategoryText,
	TextHTML:        CategoryStructured,
	TextCSV:         CategoryStructured,
	ApplicationJSON: CategoryStructured,
	ApplicationXML:  CategoryStructured,
	"text/xml":      CategoryStructured,
	ApplicationPDF:  CategoryDocument,
}

// Matches reports whether detected, parameters stripped, is expected.
func Matches(detected string, expected MIME) (MIME, bool) {
	mt, _, err := mime.ParseMediaType(detected)
	if err != nil {
		return Unknown, false
	}
	return expected, mt == string(expected)
}

// Classify maps a detected media type, parameters allowed, to its category.
// Unparseable and unlisted types are binary, except the image/* family.
func Classify(detected string) Category {
	mt, _, err := mime.ParseMediaType(detected)
	if err != nil {
		return CategoryBinary
	}
	if c, ok := categories[MIME(mt)]; ok {
		return c
	}
	if strings.HasPrefix(mt, "image/") {
		return CategoryImage
	}
	return CategoryBinary
}
