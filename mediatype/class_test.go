package mediatype

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyType(t *testing.T) {
	tests := []struct {
		mediaType string
		want      Class
	}{
		{"image/png", Image},
		{"image/svg+xml", Image},
		{"font/woff2", Resource},
		{"application/vnd.ms-fontobject", Resource},
		{"application/x-font-type1", Resource},
		{"text/html", Document},
		{"application/pdf", Document},
		{"", Document},
	}

	for _, tt := range tests {
		t.Run(tt.mediaType, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyType(tt.mediaType))
		})
	}
}

func TestClassifyUsesInjectedLookup(t *testing.T) {
	lookup := LookupFunc(func(p string) (string, bool) {
		if p == "/special" {
			return "image/x-special", true
		}
		return "", false
	})

	assert.Equal(t, Image, Classify(lookup, "/special"))
	assert.Equal(t, Document, Classify(lookup, "/cat.jpg"))
	assert.Equal(t, Document, Classify(nil, "/cat.jpg"))
}

func TestClassifyDefaultTable(t *testing.T) {
	assert.Equal(t, Image, Classify(Default(), "/cat.jpg"))
	assert.Equal(t, Resource, Classify(Default(), "/x.woff"))
	assert.Equal(t, Document, Classify(Default(), "/foo.html"))
	assert.Equal(t, Document, Classify(Default(), "/"))
}

func TestClassPrefix(t *testing.T) {
	assert.Equal(t, "/c", Document.Prefix())
	assert.Equal(t, "/i", Image.Prefix())
	assert.Equal(t, "/r", Resource.Prefix())
	assert.Equal(t, "image", Image.String())
	assert.Equal(t, "unknown", Class("x").String())
}
