package sitemap

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
)

// Namespace is the sitemaps.org schema namespace written on encode.
const Namespace = "http://www.sitemaps.org/schemas/sitemap/0.9"

// URLSet represents a sitemap.xml file
type URLSet struct {
	XMLName xml.Name `xml:"urlset"`
	Xmlns   string   `xml:"xmlns,attr,omitempty"`
	URLs    []URL    `xml:"url"`
}

// SitemapIndex represents a sitemap index file that references other sitemaps
type SitemapIndex struct {
	XMLName  xml.Name  `xml:"sitemapindex"`
	Xmlns    string    `xml:"xmlns,attr,omitempty"`
	Sitemaps []Sitemap `xml:"sitemap"`
}

// Sitemap represents a reference to another sitemap
type Sitemap struct {
	Loc     string `xml:"loc"`
	LastMod string `xml:"lastmod,omitempty"`
}

// URL represents a single URL entry in a sitemap
type URL struct {
	Loc        string  `xml:"loc"`
	LastMod    string  `xml:"lastmod,omitempty"`
	ChangeFreq string  `xml:"changefreq,omitempty"`
	Priority   float64 `xml:"priority,omitempty"`
}

// Document is a parsed sitemap: either a URL set or a sitemap index.
type Document struct {
	URLSet *URLSet
	Index  *SitemapIndex
}

// Parse parses sitemap XML content. Entries with an empty <loc> are dropped.
func Parse(content []byte) (*Document, error) {
	var urlset URLSet
	if err := xml.Unmarshal(content, &urlset); err == nil && len(urlset.URLs) > 0 {
		urls := make([]URL, 0, len(urlset.URLs))
		for _, u := range urlset.URLs {
			if u.Loc != "" {
				urls = append(urls, u)
			}
		}
		urlset.URLs = urls
		return &Document{URLSet: &urlset}, nil
	}

	var index SitemapIndex
	if err := xml.Unmarshal(content, &index); err == nil && len(index.Sitemaps) > 0 {
		sitemaps := make([]Sitemap, 0, len(index.Sitemaps))
		for _, s := range index.Sitemaps {
			if s.Loc != "" {
				sitemaps = append(sitemaps, s)
			}
		}
		index.Sitemaps = sitemaps
		return &Document{Index: &index}, nil
	}

	return nil, fmt.Errorf("invalid sitemap format")
}

// ParseReader parses sitemap XML from a reader
func ParseReader(r io.Reader) (*Document, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read sitemap: %w", err)
	}
	return Parse(content)
}

// IsIndex reports whether the document is a sitemap index.
func (d *Document) IsIndex() bool {
	return d.Index != nil
}

// Locations returns every <loc> in document order.
func (d *Document) Locations() []string {
	var locs []string
	if d.URLSet != nil {
		for _, u := range d.URLSet.URLs {
			locs = append(locs, u.Loc)
		}
	}
	if d.Index != nil {
		for _, s := range d.Index.Sitemaps {
			locs = append(locs, s.Loc)
		}
	}
	return locs
}

// Rewrite returns a copy of the document with every <loc> replaced by
// fn(loc). Entries for which fn fails are left out of the copy and their
// errors are joined into the returned error.
func (d *Document) Rewrite(fn func(loc string) (string, error)) (*Document, error) {
	var errs []error
	out := &Document{}

	if d.URLSet != nil {
		urls := make([]URL, 0, len(d.URLSet.URLs))
		for _, u := range d.URLSet.URLs {
			loc, err := fn(u.Loc)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			u.Loc = loc
			urls = append(urls, u)
		}
		out.URLSet = &URLSet{URLs: urls}
	}

	if d.Index != nil {
		sitemaps := make([]Sitemap, 0, len(d.Index.Sitemaps))
		for _, s := range d.Index.Sitemaps {
			loc, err := fn(s.Loc)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			s.Loc = loc
			sitemaps = append(sitemaps, s)
		}
		out.Index = &SitemapIndex{Sitemaps: sitemaps}
	}

	return out, errors.Join(errs...)
}

// Encode writes the document as indented XML with the sitemaps.org namespace.
func (d *Document) Encode(w io.Writer) error {
	var v any
	switch {
	case d.URLSet != nil:
		v = &URLSet{Xmlns: Namespace, URLs: d.URLSet.URLs}
	case d.Index != nil:
		v = &SitemapIndex{Xmlns: Namespace, Sitemaps: d.Index.Sitemaps}
	default:
		return fmt.Errorf("empty sitemap document")
	}

	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode sitemap: %w", err)
	}
	if err := enc.Close(); err != nil {
		return err
	}
	_, err := io.WriteString(w, "\n")
	return err
}
