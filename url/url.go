package url

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/idna"
)

// InvalidURLError is returned when a canonical URL cannot be used as an
// absolute http or https URL.
type InvalidURLError struct {
	URL string
	Err error
}

func (e *InvalidURLError) Error() string {
	return fmt.Sprintf("invalid url %q: %v", e.URL, e.Err)
}

func (e *InvalidURLError) Unwrap() error {
	return e.Err
}

// IsInvalidURL reports whether err is or wraps an *InvalidURLError.
func IsInvalidURL(err error) bool {
	var invalid *InvalidURLError
	return errors.As(err, &invalid)
}

// hostProfile canonicalizes hostnames the way browsers do when parsing a URL:
// IDNA mapping to lowercase ASCII, without STD3 or hyphen restrictions.
var hostProfile = idna.New(
	idna.MapForLookup(),
	idna.Transitional(false),
	idna.StrictDomainName(false),
	idna.CheckHyphens(false),
	idna.VerifyDNSLength(false),
)

var defaultPorts = map[string]string{
	"http":  "80",
	"https": "443",
}

// ParseAndValidate parses a URL string and validates it has an http(s)
// scheme and a host. The host is canonicalized to lowercase ASCII and a
// port equal to the scheme default is dropped. All failures are returned as
// *InvalidURLError.
func ParseAndValidate(rawURL string) (*url.URL, error) {
	invalid := func(err error) error {
		return &InvalidURLError{URL: rawURL, Err: err}
	}

	if strings.TrimSpace(rawURL) == "" {
		return nil, invalid(errors.New("url cannot be empty"))
	}

	parsedURL, err := url.Parse(unescapeHost(rawURL))
	if err != nil {
		return nil, invalid(err)
	}

	if parsedURL.Scheme == "" || parsedURL.Host == "" {
		return nil, invalid(errors.New("url must be absolute with scheme (http/https) and host"))
	}

	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return nil, invalid(errors.New("url scheme must be http or https"))
	}

	hostname, err := canonicalHost(parsedURL.Hostname())
	if err != nil {
		return nil, invalid(err)
	}

	port := parsedURL.Port()
	if port == defaultPorts[parsedURL.Scheme] {
		port = ""
	}
	parsedURL.Host = joinHostPort(hostname, port)

	return parsedURL, nil
}

func canonicalHost(hostname string) (string, error) {
	if hostname == "" {
		return "", errors.New("url has no host")
	}
	if strings.Contains(hostname, ":") {
		return "", errors.New("ip literal hosts cannot be encoded into a cache hostname")
	}

	ascii, err := hostProfile.ToASCII(hostname)
	if err != nil {
		return "", fmt.Errorf("idna: %w", err)
	}
	if strings.ContainsAny(ascii, forbiddenHostChars) {
		return "", fmt.Errorf("hostname %q contains a forbidden character", ascii)
	}

	if endsInNumber(ascii) {
		return parseIPv4(ascii)
	}
	return ascii, nil
}

// unescapeHost percent-decodes the host of an absolute URL string, which
// net/url would otherwise reject for ASCII escapes such as "ex%41mple.com".
// The input is returned unchanged when decoding would alter the URL's
// structure.
func unescapeHost(rawURL string) string {
	i := strings.Index(rawURL, "://")
	if i < 0 {
		return rawURL
	}
	start := i + 3
	end := len(rawURL)
	if j := strings.IndexAny(rawURL[start:], "/?#"); j >= 0 {
		end = start + j
	}

	authority := rawURL[start:end]
	if at := strings.LastIndexByte(authority, '@'); at >= 0 {
		start += at + 1
		authority = authority[at+1:]
	}
	if !strings.Contains(authority, "%") || strings.HasPrefix(authority, "[") {
		return rawURL
	}

	decoded, err := url.PathUnescape(authority)
	if err != nil || strings.Count(decoded, ":") != strings.Count(authority, ":") {
		return rawURL
	}
	if strings.ContainsAny(decoded, forbiddenHostChars) || !utf8.ValidString(decoded) {
		return rawURL
	}
	return rawURL[:start] + decoded + rawURL[end:]
}

const forbiddenHostChars = " \t\n\r#%/<>?@[\\]^|"

// endsInNumber reports whether the last label of host is numeric, which
// makes the whole host an IPv4 address in a browser's URL parser.
func endsInNumber(host string) bool {
	labels := strings.Split(host, ".")
	if len(labels) > 1 && labels[len(labels)-1] == "" {
		labels = labels[:len(labels)-1]
	}
	last := labels[len(labels)-1]
	if last != "" && strings.Trim(last, "0123456789") == "" {
		return true
	}
	_, err := parseIPv4Number(last)
	return err == nil
}

// parseIPv4 parses the one to four part IPv4 forms browsers accept, with
// decimal, octal (leading 0) and hex (0x) parts, and returns the
// dotted-decimal address.
func parseIPv4(host string) (string, error) {
	parts := strings.Split(host, ".")
	if len(parts) > 1 && parts[len(parts)-1] == "" {
		parts = parts[:len(parts)-1]
	}
	if len(parts) > 4 {
		return "", fmt.Errorf("invalid ipv4 address %q", host)
	}

	numbers := make([]uint64, len(parts))
	for i, part := range parts {
		n, err := parseIPv4Number(part)
		if err != nil {
			return "", fmt.Errorf("invalid ipv4 address %q: %w", host, err)
		}
		if i < len(parts)-1 && n > 255 {
			return "", fmt.Errorf("invalid ipv4 address %q: part %q out of range", host, part)
		}
		numbers[i] = n
	}

	last := numbers[len(numbers)-1]
	if last >= 1<<(8*(5-len(numbers))) {
		return "", fmt.Errorf("invalid ipv4 address %q: out of range", host)
	}

	ipv4 := last
	for i, n := range numbers[:len(numbers)-1] {
		ipv4 += n << (8 * (3 - i))
	}
	return net.IPv4(byte(ipv4>>24), byte(ipv4>>16), byte(ipv4>>8), byte(ipv4)).String(), nil
}

func parseIPv4Number(s string) (uint64, error) {
	if s == "" {
		return 0, errors.New("empty part")
	}
	base := 10
	switch {
	case len(s) >= 2 && (s[:2] == "0x" || s[:2] == "0X"):
		base, s = 16, s[2:]
	case len(s) >= 2 && s[0] == '0':
		base, s = 8, s[1:]
	}
	if s == "" {
		return 0, nil
	}
	return strconv.ParseUint(s, base, 32)
}

func joinHostPort(hostname, port string) string {
	if port == "" {
		return hostname
	}
	return net.JoinHostPort(hostname, port)
}
