package rewrite

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	urlpkg "github.com/joeychilson/cacheurl/url"
)

const (
	suffix  = "cdn.example"
	baseURL = "https://example.com/articles/post.html"
)

func TestRewrite(t *testing.T) {
	doc := `<!DOCTYPE html>
<html><head>
<link rel="stylesheet" href="/css/site.css">
<link rel="canonical" href="https://example.com/articles/post.html">
<link rel="icon" href="favicon.ico">
</head><body>
<a href="/other.html">other</a>
<img src="cat.jpg" alt="cat">
<img src="http://images.example.org/dog.png" srcset="small.png 1x, large.png 2x">
<amp-img src="/fonts/preview.webp"></amp-img>
<video poster="poster.jpg"></video>
<img src="data:image/gif;base64,R0lGOD">
</body></html>`

	r := New(urlpkg.NewTransformer(), suffix)
	res, err := r.Rewrite([]byte(doc), baseURL)
	require.NoError(t, err)

	out := string(res.Content)
	assert.Contains(t, out, `href="https://example-com.cdn.example/c/s/example.com/css/site.css"`)
	assert.Contains(t, out, `href="https://example-com.cdn.example/i/s/example.com/articles/favicon.ico"`)
	assert.Contains(t, out, `src="https://example-com.cdn.example/i/s/example.com/articles/cat.jpg"`)
	assert.Contains(t, out, `src="https://images-example-org.cdn.example/i/images.example.org/dog.png"`)
	assert.Contains(t, out, `srcset="https://example-com.cdn.example/i/s/example.com/articles/small.png 1x, https://example-com.cdn.example/i/s/example.com/articles/large.png 2x"`)
	assert.Contains(t, out, `src="https://example-com.cdn.example/i/s/example.com/fonts/preview.webp"`)
	assert.Contains(t, out, `poster="https://example-com.cdn.example/i/s/example.com/articles/poster.jpg"`)

	// Navigation and canonical links are not subresources.
	assert.Contains(t, out, `href="/other.html"`)
	assert.Contains(t, out, `href="https://example.com/articles/post.html"`)

	assert.Equal(t, 8, res.Rewritten)
	require.Len(t, res.Skipped, 1)
	assert.Equal(t, "unsupported scheme", res.Skipped[0].Reason)
}

func TestRewriteHonoursBaseElement(t *testing.T) {
	doc := `<html><head><base href="https://static.example.net/assets/"></head>
<body><img src="a.png"></body></html>`

	res, err := New(nil, suffix).Rewrite([]byte(doc), baseURL)
	require.NoError(t, err)
	assert.Contains(t, string(res.Content), `src="https://static-example-net.cdn.example/i/s/static.example.net/assets/a.png"`)
	assert.Equal(t, 1, res.Rewritten)
}

func TestRewriteSkipsFailedTransforms(t *testing.T) {
	longHost := strings.Repeat("a", 40) + "." + strings.Repeat("b", 40) + ".com"
	doc := `<img src="https://` + longHost + `/x.png">`

	res, err := New(nil, suffix).Rewrite([]byte(doc), baseURL)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Rewritten)
	require.Len(t, res.Skipped, 1)
	assert.Equal(t, "hostname too long", res.Skipped[0].Reason)
	assert.Contains(t, string(res.Content), longHost)
}

func TestRewriteDataSrcset(t *testing.T) {
	doc := `<img srcset="data:image/png;base64,AAAA 1x">`

	res, err := New(nil, suffix).Rewrite([]byte(doc), baseURL)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Rewritten)
	assert.Contains(t, string(res.Content), `srcset="data:image/png;base64,AAAA 1x"`)
}

func TestRewriteSrcsetCommaInURL(t *testing.T) {
	doc := `<img srcset="a.jpg?w=1,2 1x, b.jpg 2x,c.jpg">`

	res, err := New(nil, suffix).Rewrite([]byte(doc), baseURL)
	require.NoError(t, err)

	prefix := "https://example-com.cdn.example/i/s/example.com/articles/"
	assert.Contains(t, string(res.Content),
		`srcset="`+prefix+`a.jpg?w=1,2 1x, `+prefix+`b.jpg 2x, `+prefix+`c.jpg"`)
	assert.Equal(t, 3, res.Rewritten)
	assert.Empty(t, res.Skipped)
}

func TestSplitSrcset(t *testing.T) {
	tests := []struct {
		srcset string
		want   []srcsetCandidate
	}{
		{"a.png", []srcsetCandidate{{url: "a.png"}}},
		{" a.png  1x ,b.png 2x ", []srcsetCandidate{{"a.png", "1x"}, {"b.png", "2x"}}},
		{"a.png?x=1,2 100w", []srcsetCandidate{{"a.png?x=1,2", "100w"}}},
		{"a.png, b.png", []srcsetCandidate{{url: "a.png"}, {url: "b.png"}}},
		{"data:image/png;base64,AAAA 1x", []srcsetCandidate{{"data:image/png;base64,AAAA", "1x"}}},
		{"a.png calc(1,2) 1x, b.png", []srcsetCandidate{{"a.png", "calc(1,2) 1x"}, {url: "b.png"}}},
		{" , ", nil},
	}

	for _, tt := range tests {
		t.Run(tt.srcset, func(t *testing.T) {
			assert.Equal(t, tt.want, splitSrcset(tt.srcset))
		})
	}
}

func TestRewriteInvalidBase(t *testing.T) {
	_, err := New(nil, suffix).Rewrite([]byte("<p>hi</p>"), "not a url")
	require.Error(t, err)
	assert.True(t, urlpkg.IsInvalidURL(err))
}

func TestRewriteSanitized(t *testing.T) {
	doc := `<p>hello</p><script>alert(1)</script><img src="cat.jpg" onerror="x()">`

	r := New(nil, suffix, WithSanitizer(SanitizePolicy()))
	res, err := r.Rewrite([]byte(doc), baseURL)
	require.NoError(t, err)

	out := string(res.Content)
	assert.NotContains(t, out, "<script>")
	assert.NotContains(t, out, "onerror")
	assert.Contains(t, out, "hello")
	assert.Contains(t, out, "https://example-com.cdn.example/i/s/example.com/articles/cat.jpg")
}

func TestMarkdown(t *testing.T) {
	doc := `<h1>Title</h1><p>Body with <img src="cat.jpg" alt="cat"></p>`

	res, err := New(nil, suffix).Markdown([]byte(doc), baseURL)
	require.NoError(t, err)

	out := string(res.Content)
	assert.Contains(t, out, "# Title")
	assert.Contains(t, out, "https://example-com.cdn.example/i/s/example.com/articles/cat.jpg")
	assert.Equal(t, 1, res.Rewritten)
}
