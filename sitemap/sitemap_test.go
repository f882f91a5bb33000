package sitemap

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

const urlsetXML = `<?xml version="1.0" encoding="UTF-8"?>
<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
  <url>
    <loc>https://example.com/page1</loc>
    <lastmod>2023-01-01</lastmod>
    <changefreq>daily</changefreq>
    <priority>0.8</priority>
  </url>
  <url>
    <loc></loc>
  </url>
  <url>
    <loc>https://example.com/page2</loc>
  </url>
</urlset>`

const indexXML = `<?xml version="1.0" encoding="UTF-8"?>
<sitemapindex xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
  <sitemap>
    <loc>https://example.com/sitemap1.xml</loc>
    <lastmod>2023-01-01</lastmod>
  </sitemap>
  <sitemap>
    <loc>https://example.com/sitemap2.xml</loc>
  </sitemap>
</sitemapindex>`

func TestParse(t *testing.T) {
	t.Run("urlset drops empty locs", func(t *testing.T) {
		doc, err := Parse([]byte(urlsetXML))
		if err != nil {
			t.Fatalf("Parse() error = %v", err)
		}
		if doc.IsIndex() {
			t.Error("IsIndex() = true, want false")
		}
		locs := doc.Locations()
		if len(locs) != 2 {
			t.Fatalf("Locations() returned %d, want 2", len(locs))
		}
		if locs[0] != "https://example.com/page1" || locs[1] != "https://example.com/page2" {
			t.Errorf("Locations() = %v", locs)
		}
		if doc.URLSet.URLs[0].Priority != 0.8 {
			t.Errorf("Priority = %v, want 0.8", doc.URLSet.URLs[0].Priority)
		}
	})

	t.Run("sitemap index", func(t *testing.T) {
		doc, err := Parse([]byte(indexXML))
		if err != nil {
			t.Fatalf("Parse() error = %v", err)
		}
		if !doc.IsIndex() {
			t.Error("IsIndex() = false, want true")
		}
		if got := len(doc.Locations()); got != 2 {
			t.Errorf("Locations() returned %d, want 2", got)
		}
	})

	t.Run("invalid", func(t *testing.T) {
		for _, content := range []string{"", "not xml", "<html><body/></html>", "<urlset></urlset>"} {
			if _, err := Parse([]byte(content)); err == nil {
				t.Errorf("Parse(%q) should fail", content)
			}
		}
	})

	t.Run("reader", func(t *testing.T) {
		doc, err := ParseReader(strings.NewReader(indexXML))
		if err != nil {
			t.Fatalf("ParseReader() error = %v", err)
		}
		if !doc.IsIndex() {
			t.Error("expected sitemap index")
		}
	})
}

func TestRewrite(t *testing.T) {
	doc, err := Parse([]byte(urlsetXML))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	errBad := errors.New("bad loc")
	out, err := doc.Rewrite(func(loc string) (string, error) {
		if strings.HasSuffix(loc, "page2") {
			return "", errBad
		}
		return "https://cache.example/" + strings.TrimPrefix(loc, "https://"), nil
	})
	if !errors.Is(err, errBad) {
		t.Fatalf("Rewrite() error = %v, want %v", err, errBad)
	}

	locs := out.Locations()
	if len(locs) != 1 || locs[0] != "https://cache.example/example.com/page1" {
		t.Fatalf("Locations() = %v", locs)
	}
	if out.URLSet.URLs[0].LastMod != "2023-01-01" {
		t.Errorf("LastMod = %q, want metadata preserved", out.URLSet.URLs[0].LastMod)
	}
	if doc.URLSet.URLs[0].Loc != "https://example.com/page1" {
		t.Error("Rewrite should not modify the source document")
	}
}

func TestEncodeRoundTrip(t *testing.T) {
	for name, content := range map[string]string{"urlset": urlsetXML, "index": indexXML} {
		t.Run(name, func(t *testing.T) {
			doc, err := Parse([]byte(content))
			if err != nil {
				t.Fatalf("Parse() error = %v", err)
			}

			var buf bytes.Buffer
			if err := doc.Encode(&buf); err != nil {
				t.Fatalf("Encode() error = %v", err)
			}
			if !strings.Contains(buf.String(), `xmlns="`+Namespace+`"`) {
				t.Errorf("encoded sitemap missing namespace: %s", buf.String())
			}

			again, err := Parse(buf.Bytes())
			if err != nil {
				t.Fatalf("Parse(Encode()) error = %v", err)
			}
			if strings.Join(again.Locations(), ",") != strings.Join(doc.Locations(), ",") {
				t.Errorf("round trip locations = %v, want %v", again.Locations(), doc.Locations())
			}
		})
	}
}

func TestEncodeEscapes(t *testing.T) {
	doc := &Document{URLSet: &URLSet{URLs: []URL{{Loc: "https://example.com/?a=1&b=2"}}}}

	var buf bytes.Buffer
	if err := doc.Encode(&buf); err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	if !strings.Contains(buf.String(), "a=1&amp;b=2") {
		t.Errorf("expected escaped ampersand, got %s", buf.String())
	}
}

func TestEncodeEmpty(t *testing.T) {
	if err := (&Document{}).Encode(&bytes.Buffer{}); err == nil {
		t.Error("Encode() on empty document should fail")
	}
}
