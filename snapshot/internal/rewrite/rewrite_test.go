package rewrite

import (
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
)

func mustURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatal(err)
	}
	return u
}

func parse(t *testing.T, markup string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		t.Fatal(err)
	}
	return doc
}

func TestSrcset(t *testing.T) {
	base := mustURL(t, "https://example.com")
	tests := []struct{ in, want string }{
		{"/a.png 1x, /b.png 2x", "a.png 1x, b.png 2x"},
		{"/small.jpg 480w,/large.jpg 1080w", "small.jpg 480w, large.jpg 1080w"},
		{"https://cdn.other.com/a.png 1x, /b.png 2x", "https://cdn.other.com/a.png 1x, b.png 2x"},
		{"/only.png", "only.png"},
		{" , /a.png 1x", "a.png 1x"},
		{"https://example.com/i/w_100,h_100/a.png 1x", "i/w_100,h_100/a.png 1x"},
		{"/i/w_100,h_100/a.png 1x, /i/w_200,h_200/a.png 2x", "i/w_100,h_100/a.png 1x, i/w_200,h_200/a.png 2x"},
		{"/a.png,, /b.png 2x", "a.png, b.png 2x"},
		{"/a.png 100w\n\t, /b.png 200w", "a.png 100w, b.png 200w"},
	}
	for _, tt := range tests {
		if got := Srcset(tt.in, base); got != tt.want {
			t.Errorf("Srcset(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestRewriteAttributes(t *testing.T) {
	doc := parse(t, `<html><head>
<link rel="stylesheet" href="/css/site.css">
<script src="https://ext.com/lib.js"></script>
<script src="/js/app.js"></script>
</head><body>
<a href="#top">top</a>
<a href="mailto:me@example.com">mail</a>
<img src="img/logo.png" srcset="/a.png 1x, /b.png 2x">
<video src="/v.mp4" poster="/poster.jpg"></video>
<iframe src="data:text/html,hi"></iframe>
</body></html>`)

	n := RewriteAttributes(doc, mustURL(t, "https://example.com/blog/post"))

	checks := []struct{ sel, attr, want string }{
		{"link", "href", "css/site.css"},
		{`script[src^="https://ext"]`, "src", "https://ext.com/lib.js"},
		{`script[src$="app.js"]`, "src", "js/app.js"},
		{`a[href^="#"]`, "href", "#top"},
		{`a[href^="mailto"]`, "href", "mailto:me@example.com"},
		{"img", "src", "blog/img/logo.png"},
		{"img", "srcset", "a.png 1x, b.png 2x"},
		{"video", "src", "v.mp4"},
		{"video", "poster", "poster.jpg"},
		{"iframe", "src", "data:text/html,hi"},
	}
	for _, c := range checks {
		got, _ := doc.Find(c.sel).Attr(c.attr)
		if got != c.want {
			t.Errorf("%s[%s] = %q, want %q", c.sel, c.attr, got, c.want)
		}
	}
	if n != 6 {
		t.Errorf("changed = %d, want 6", n)
	}
}

func TestRemoveHydration(t *testing.T) {
	doc := parse(t, `<html><body>
<script id="__NEXT_DATA__" type="application/json">{"props":{}}</script>
<script id="__NUXT_DATA__" type="application/json">[]</script>
<script id="app">console.log(1)</script>
</body></html>`)

	if n := RemoveHydration(doc); n != 2 {
		t.Errorf("removed = %d, want 2", n)
	}
	if doc.Find("script").Length() != 1 || doc.Find("script#app").Length() != 1 {
		t.Error("unrelated scripts must be kept")
	}
}

func TestRun(t *testing.T) {
	root := t.TempDir()
	markup := `<!DOCTYPE html><html><head>
<style>body{color:red}</style>
<style>p{margin:0}</style>
<script src="https://ext.com/lib.js"></script>
</head><body>
<img srcset="/a.png 1x, /b.png 2x">
<script id="__NEXT_DATA__" type="application/json">{"page":"/"}</script>
</body></html>`

	st, err := Run(markup, Config{Root: root, Base: mustURL(t, "https://example.com/blog/post")})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if st.Styles != 2 || st.StyleFailures != 0 || st.Hydration != 1 {
		t.Errorf("stats = %+v", st)
	}

	for i, want := range []string{"body{color:red}", "p{margin:0}"} {
		got, err := os.ReadFile(filepath.Join(root, StylesDir, StyleFile(i)))
		if err != nil || string(got) != want {
			t.Errorf("style %d = %q, %v; want %q", i, got, err, want)
		}
	}

	raw, err := os.ReadFile(filepath.Join(root, IndexFile))
	if err != nil {
		t.Fatalf("read index: %v", err)
	}
	doc := parse(t, string(raw))

	if doc.Find("style").Length() != 0 {
		t.Error("inline styles should be replaced")
	}
	var hrefs []string
	doc.Find(`link[rel="stylesheet"]`).Each(func(_ int, s *goquery.Selection) {
		h, _ := s.Attr("href")
		hrefs = append(hrefs, h)
	})
	if len(hrefs) != 2 || hrefs[0] != "styles/inline-style-0.css" || hrefs[1] != "styles/inline-style-1.css" {
		t.Errorf("style links = %v", hrefs)
	}
	if src, _ := doc.Find("script[src]").Attr("src"); src != "https://ext.com/lib.js" {
		t.Errorf("cross-origin script = %q", src)
	}
	if set, _ := doc.Find("img").Attr("srcset"); set != "a.png 1x, b.png 2x" {
		t.Errorf("srcset = %q", set)
	}
	if strings.Contains(string(raw), "__NEXT_DATA__") {
		t.Error("hydration payload should be removed")
	}
}

func TestRun_NoStylesStillCreatesDir(t *testing.T) {
	root := t.TempDir()
	if _, err := Run(`<html><body><p>hi</p></body></html>`, Config{Root: root, Base: mustURL(t, "https://example.com")}); err != nil {
		t.Fatal(err)
	}
	fi, err := os.Stat(filepath.Join(root, StylesDir))
	if err != nil || !fi.IsDir() {
		t.Errorf("styles dir: %v", err)
	}
}

func TestRun_StyleWriteFailureKeepsStyleInline(t *testing.T) {
	root := t.TempDir()
	// A file named "styles" blocks the directory.
	if err := os.WriteFile(filepath.Join(root, StylesDir), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	st, err := Run(`<html><head><style>a{}</style></head></html>`, Config{Root: root, Base: mustURL(t, "https://example.com")})
	if err != nil {
		t.Fatal(err)
	}
	if st.Styles != 0 || st.StyleFailures != 1 {
		t.Errorf("stats = %+v", st)
	}
	raw, _ := os.ReadFile(filepath.Join(root, IndexFile))
	if !strings.Contains(string(raw), "<style>a{}</style>") {
		t.Errorf("style should stay inline: %s", raw)
	}
}

func TestRun_IndexWriteFailure(t *testing.T) {
	root := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(root, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Run(`<html></html>`, Config{Root: root, Base: mustURL(t, "https://example.com")}); err == nil {
		t.Error("expected error when the output root is not a directory")
	}
}
