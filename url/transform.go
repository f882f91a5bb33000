package url

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/idna"

	"github.com/joeychilson/cacheurl/mediatype"
)

const (
	maxLabelLength    = 63
	maxHostnameLength = 253
)

// ErrHostnameTooLong is returned when the encoded cache hostname would not
// fit the DNS limits of 63 octets per label and 253 octets overall.
var ErrHostnameTooLong = errors.New("cache hostname exceeds dns length limits")

// Result is a canonical URL rewritten to its cache URL.
type Result struct {
	// URL is the cache URL.
	URL *url.URL
	// Class is the content class inferred from the path extension.
	Class mediatype.Class
	// Secure reports whether the canonical URL used https.
	Secure bool
	// Host is the encoded cache hostname, without the domain suffix.
	Host string
	// OriginHost is the canonical hostname in ASCII form.
	OriginHost string
}

// String returns the serialized cache URL.
func (r *Result) String() string {
	return r.URL.String()
}

// Transformer converts canonical document URLs into cache URLs.
// A Transformer holds no mutable state and is safe for concurrent use.
type Transformer struct {
	types     mediatype.Lookup
	dnsLimits bool
}

// Option is a functional option for configuring the Transformer.
type Option func(*Transformer)

// WithTypes sets the lookup used to classify paths. Defaults to
// mediatype.Default().
func WithTypes(l mediatype.Lookup) Option {
	return func(t *Transformer) {
		if l != nil {
			t.types = l
		}
	}
}

// WithDNSLimits toggles the DNS label and hostname length checks (default: on).
func WithDNSLimits(enabled bool) Option {
	return func(t *Transformer) {
		t.dnsLimits = enabled
	}
}

// NewTransformer creates a Transformer with the given options.
func NewTransformer(opts ...Option) *Transformer {
	t := &Transformer{
		types:     mediatype.Default(),
		dnsLimits: true,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

var defaultTransformer = NewTransformer()

// CacheURL rewrites canonicalURL to its cache URL under domainSuffix using the
// builtin media type table.
//
//	CacheURL("cdn.example", "https://example.com/foo.html")
//	// https://example-com.cdn.example/c/s/example.com/foo.html
func CacheURL(domainSuffix, canonicalURL string) (string, error) {
	return defaultTransformer.CacheURL(domainSuffix, canonicalURL)
}

// CacheURL rewrites canonicalURL to its cache URL under domainSuffix.
func (t *Transformer) CacheURL(domainSuffix, canonicalURL string) (string, error) {
	res, err := t.Transform(domainSuffix, canonicalURL)
	if err != nil {
		return "", err
	}
	return res.String(), nil
}

// Transform rewrites canonicalURL and returns the cache URL together with
// how it was derived. Only the scheme, host and path of the parsed URL are
// replaced; query and fragment are carried over untouched.
func (t *Transformer) Transform(domainSuffix, canonicalURL string) (*Result, error) {
	u, err := ParseAndValidate(canonicalURL)
	if err != nil {
		return nil, err
	}

	originHost := u.Hostname()
	port := u.Port()

	label, err := EncodeHost(originHost)
	if err != nil {
		return nil, &InvalidURLError{URL: canonicalURL, Err: err}
	}

	host := label + "." + domainSuffix
	if t.dnsLimits {
		if err := checkDNSLength(label, host); err != nil {
			return nil, err
		}
	}

	escapedPath := u.EscapedPath()
	if escapedPath == "" {
		escapedPath = "/"
	}

	// The extension is taken from the path as serialized, so an escaped
	// dot such as "foo%2Ejpg" does not start an extension.
	class := mediatype.Classify(t.types, escapedPath)
	secure := u.Scheme == "https"

	segment := class.Prefix() + "/"
	if secure {
		segment = class.Prefix() + "/s/"
	}
	rawPath := segment + originHost + escapedPath
	path, err := url.PathUnescape(rawPath)
	if err != nil {
		return nil, &InvalidURLError{URL: canonicalURL, Err: err}
	}

	if port == defaultPorts["https"] {
		port = ""
	}

	u.Scheme = "https"
	u.Host = joinHostPort(host, port)
	u.Path = path
	u.RawPath = rawPath

	return &Result{
		URL:        u,
		Class:      class,
		Secure:     secure,
		Host:       label,
		OriginHost: originHost,
	}, nil
}

// CacheHost returns the cache hostname for hostname under domainSuffix,
// enforcing DNS length limits.
func CacheHost(domainSuffix, hostname string) (string, error) {
	canonical, err := canonicalHost(hostname)
	if err != nil {
		return "", &InvalidURLError{URL: hostname, Err: err}
	}
	label, err := EncodeHost(canonical)
	if err != nil {
		return "", &InvalidURLError{URL: hostname, Err: err}
	}
	host := label + "." + domainSuffix
	if err := checkDNSLength(label, host); err != nil {
		return "", err
	}
	return host, nil
}

// EncodeHost folds hostname into a single DNS label. The hostname is decoded
// to Unicode, literal hyphens are doubled, dots become single hyphens and the
// result is encoded back to Punycode. Doubling hyphens first keeps the
// mapping injective: "a-b.com" and "a.b-com" stay distinct.
func EncodeHost(hostname string) (string, error) {
	unicodeHost, err := idna.Punycode.ToUnicode(hostname)
	if err != nil {
		return "", fmt.Errorf("punycode decode %q: %w", hostname, err)
	}

	label := strings.ReplaceAll(unicodeHost, "-", "--")
	label = strings.ReplaceAll(label, ".", "-")

	// An ASCII label is final; re-encoding would try to decode labels that
	// happen to start with "xn--", such as the fold of "xn-a.com".
	if isASCII(label) {
		return label, nil
	}

	encoded, err := idna.Punycode.ToASCII(label)
	if err != nil {
		return "", fmt.Errorf("punycode encode %q: %w", label, err)
	}
	return encoded, nil
}

// DecodeHost reverses EncodeHost, returning the Unicode hostname. A domain
// suffix, if present, must be stripped by the caller.
func DecodeHost(label string) (string, error) {
	unicodeLabel, err := idna.Punycode.ToUnicode(label)
	if err != nil {
		return "", fmt.Errorf("punycode decode %q: %w", label, err)
	}

	var b strings.Builder
	b.Grow(len(unicodeLabel))
	for i := 0; i < len(unicodeLabel); i++ {
		c := unicodeLabel[i]
		if c != '-' {
			b.WriteByte(c)
			continue
		}
		if i+1 < len(unicodeLabel) && unicodeLabel[i+1] == '-' {
			b.WriteByte('-')
			i++
			continue
		}
		b.WriteByte('.')
	}
	return b.String(), nil
}

func checkDNSLength(label, host string) error {
	if len(label) > maxLabelLength {
		return fmt.Errorf("%w: label %q is %d octets (max %d)", ErrHostnameTooLong, label, len(label), maxLabelLength)
	}
	if len(host) > maxHostnameLength {
		return fmt.Errorf("%w: hostname is %d octets (max %d)", ErrHostnameTooLong, len(host), maxHostnameLength)
	}
	return nil
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}
