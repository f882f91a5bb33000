// Package rewrite points the subresources of an HTML document at their
// cache URLs, so a document served from the cache loads images, fonts and
// stylesheets from the cache too.
package rewrite

import (
	"bytes"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"

	urlpkg "github.com/joeychilson/cacheurl/url"
)

var (
	// urlAttrs lists the URL-valued attributes rewritten per element.
	urlAttrs = map[string][]string{
		"img":       {"src", "srcset"},
		"amp-img":   {"src", "srcset"},
		"amp-anim":  {"src", "srcset"},
		"source":    {"src", "srcset"},
		"video":     {"poster"},
		"amp-video": {"poster"},
	}

	// linkRels lists the <link rel> values whose href is a subresource.
	linkRels = map[string]bool{
		"stylesheet":       true,
		"icon":             true,
		"apple-touch-icon": true,
		"preload":          true,
		"prefetch":         true,
	}
)

// Skip records a reference that was left unchanged.
type Skip struct {
	URL    string `json:"url"`
	Reason string `json:"reason"`
}

// Result is the outcome of rewriting a document.
type Result struct {
	Content   []byte
	Rewritten int
	Skipped   []Skip
}

// Rewriter rewrites documents for a single cache.
type Rewriter struct {
	transformer *urlpkg.Transformer
	suffix      string
	sanitizer   *bluemonday.Policy
}

// Option is a functional option for configuring the Rewriter.
type Option func(*Rewriter)

// WithSanitizer sanitizes documents with policy before rewriting them.
func WithSanitizer(policy *bluemonday.Policy) Option {
	return func(r *Rewriter) {
		r.sanitizer = policy
	}
}

// SanitizePolicy returns the policy used when callers ask for sanitized
// output: user-generated-content rules plus responsive image attributes.
func SanitizePolicy() *bluemonday.Policy {
	policy := bluemonday.UGCPolicy()
	policy.AllowElements("picture", "source")
	policy.AllowAttrs("src", "srcset", "sizes", "type", "media").OnElements("source")
	policy.AllowAttrs("srcset", "sizes").OnElements("img")
	return policy
}

// New creates a Rewriter that maps references to cache URLs under domainSuffix.
func New(t *urlpkg.Transformer, domainSuffix string, opts ...Option) *Rewriter {
	if t == nil {
		t = urlpkg.NewTransformer()
	}
	r := &Rewriter{
		transformer: t,
		suffix:      domainSuffix,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Rewrite rewrites content, a document fetched from baseURL, and renders it
// back to HTML.
func (r *Rewriter) Rewrite(content []byte, baseURL string) (*Result, error) {
	doc, res, err := r.rewrite(content, baseURL)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := html.Render(&buf, doc); err != nil {
		return nil, fmt.Errorf("failed to render document: %w", err)
	}
	res.Content = buf.Bytes()
	return res, nil
}

// Markdown rewrites content like Rewrite and renders it as Markdown.
func (r *Rewriter) Markdown(content []byte, baseURL string) (*Result, error) {
	doc, res, err := r.rewrite(content, baseURL)
	if err != nil {
		return nil, err
	}

	conv := converter.NewConverter(
		converter.WithPlugins(
			base.NewBasePlugin(),
			commonmark.NewCommonmarkPlugin(),
		),
	)

	markdown, err := conv.ConvertNode(doc, converter.WithDomain(baseURL))
	if err != nil {
		return nil, fmt.Errorf("failed to convert document: %w", err)
	}
	res.Content = markdown
	return res, nil
}

func (r *Rewriter) rewrite(content []byte, baseURL string) (*html.Node, *Result, error) {
	baseU, err := urlpkg.ParseAndValidate(baseURL)
	if err != nil {
		return nil, nil, err
	}

	input := string(content)
	if r.sanitizer != nil {
		input = r.sanitizer.Sanitize(input)
	}

	doc, err := html.Parse(strings.NewReader(input))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse document: %w", err)
	}

	if href := findBaseHref(doc); href != "" {
		if ref, err := url.Parse(href); err == nil {
			baseU = baseU.ResolveReference(ref)
		}
	}

	res := &Result{}
	var traverse func(*html.Node)
	traverse = func(n *html.Node) {
		if n.Type == html.ElementNode {
			for _, key := range attrsFor(n) {
				r.rewriteAttr(n, key, baseU, res)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			traverse(c)
		}
	}
	traverse(doc)

	return doc, res, nil
}

func attrsFor(n *html.Node) []string {
	if n.Data == "link" {
		for _, rel := range strings.Fields(strings.ToLower(getAttr(n, "rel"))) {
			if linkRels[rel] {
				return []string{"href"}
			}
		}
		return nil
	}
	return urlAttrs[n.Data]
}

func (r *Rewriter) rewriteAttr(n *html.Node, key string, base *url.URL, res *Result) {
	for i, attr := range n.Attr {
		if attr.Namespace != "" || attr.Key != key || strings.TrimSpace(attr.Val) == "" {
			continue
		}
		if key == "srcset" {
			n.Attr[i].Val = r.rewriteSrcset(attr.Val, base, res)
		} else {
			n.Attr[i].Val = r.rewriteRef(attr.Val, base, res)
		}
	}
}

// rewriteSrcset rewrites the URL of each candidate of a srcset, keeping
// its descriptors.
func (r *Rewriter) rewriteSrcset(srcset string, base *url.URL, res *Result) string {
	candidates := splitSrcset(srcset)
	out := make([]string, 0, len(candidates))
	for _, c := range candidates {
		ref := r.rewriteRef(c.url, base, res)
		if c.descriptor != "" {
			ref += " " + c.descriptor
		}
		out = append(out, ref)
	}
	return strings.Join(out, ", ")
}

type srcsetCandidate struct {
	url        string
	descriptor string
}

// splitSrcset splits a srcset into candidates the way browsers do: a URL
// runs to the next whitespace, so it may contain commas, and descriptors
// run to the next comma outside parentheses.
func splitSrcset(srcset string) []srcsetCandidate {
	isSpace := func(c byte) bool {
		return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f'
	}

	var candidates []srcsetCandidate
	i := 0
	for i < len(srcset) {
		for i < len(srcset) && (isSpace(srcset[i]) || srcset[i] == ',') {
			i++
		}
		if i == len(srcset) {
			break
		}

		start := i
		for i < len(srcset) && !isSpace(srcset[i]) {
			i++
		}
		ref := srcset[start:i]

		if trimmed := strings.TrimRight(ref, ","); trimmed != ref {
			candidates = append(candidates, srcsetCandidate{url: trimmed})
			continue
		}

		start = i
		depth := 0
	descriptor:
		for ; i < len(srcset); i++ {
			switch srcset[i] {
			case '(':
				depth++
			case ')':
				if depth > 0 {
					depth--
				}
			case ',':
				if depth == 0 {
					break descriptor
				}
			}
		}
		candidates = append(candidates, srcsetCandidate{
			url:        ref,
			descriptor: strings.Join(strings.Fields(srcset[start:i]), " "),
		})
	}
	return candidates
}

func (r *Rewriter) rewriteRef(ref string, base *url.URL, res *Result) string {
	ref = strings.TrimSpace(ref)
	parsed, err := url.Parse(ref)
	if err != nil {
		res.Skipped = append(res.Skipped, Skip{URL: ref, Reason: "unparseable reference"})
		return ref
	}

	abs := base.ResolveReference(parsed)
	if abs.Scheme != "http" && abs.Scheme != "https" {
		res.Skipped = append(res.Skipped, Skip{URL: ref, Reason: "unsupported scheme"})
		return ref
	}

	cacheURL, err := r.transformer.CacheURL(r.suffix, abs.String())
	if err != nil {
		reason := "invalid url"
		if errors.Is(err, urlpkg.ErrHostnameTooLong) {
			reason = "hostname too long"
		}
		res.Skipped = append(res.Skipped, Skip{URL: ref, Reason: reason})
		return ref
	}

	res.Rewritten++
	return cacheURL
}

func findBaseHref(n *html.Node) string {
	if n.Type == html.ElementNode && n.Data == "base" {
		return getAttr(n, "href")
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if href := findBaseHref(c); href != "" {
			return href
		}
	}
	return ""
}

func getAttr(n *html.Node, key string) string {
	for _, attr := range n.Attr {
		if attr.Namespace == "" && attr.Key == key {
			return attr.Val
		}
	}
	return ""
}
