package rewrite

import (
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// StylesDir is the output subdirectory for extracted inline styles.
const StylesDir = "styles"

// StyleFile returns the file name of the n-th inline style, 0-based in
// document order.
func StyleFile(n int) string {
	return fmt.Sprintf("inline-style-%d.css", n)
}

// StyleHref is the href of the link that replaces the n-th inline style.
func StyleHref(n int) string {
	return path.Join(StylesDir, StyleFile(n))
}

// ExtractStyles moves each <style> element's text to styles/inline-style-N.css
// and replaces the element by a stylesheet link. N is the element's position
// among all style elements, so names are stable even when a write fails; a
// style that cannot be written stays inline. The styles directory is created
// even when the document has no inline styles. It returns the inserted links.
func ExtractStyles(doc *goquery.Document, root string, log *slog.Logger) (links []*html.Node, failed int) {
	if err := os.MkdirAll(filepath.Join(root, StylesDir), 0o755); err != nil {
		log.Warn("rewrite: create styles dir", "error", err)
	}

	doc.Find("style").Each(func(i int, s *goquery.Selection) {
		rel := StyleHref(i)
		if err := writeFile(root, rel, []byte(s.Text())); err != nil {
			failed++
			log.Warn("rewrite: write inline style", "path", rel, "error", err)
			return
		}
		link := stylesheetLink(rel)
		s.ReplaceWithNodes(link)
		links = append(links, link)
	})
	return links, failed
}

func stylesheetLink(href string) *html.Node {
	return &html.Node{
		Type:     html.ElementNode,
		DataAtom: atom.Link,
		Data:     "link",
		Attr: []html.Attribute{
			{Key: "rel", Val: "stylesheet"},
			{Key: "href", Val: href},
		},
	}
}
