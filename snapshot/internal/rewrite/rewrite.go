// Package rewrite turns the rendered markup of a page into the snapshot's
// index.html: inline styles become files under styles/, asset references
// become output-relative paths, and framework hydration payloads are
// dropped.
package rewrite

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/hazyhaar/pagesnap/guard"
	"github.com/hazyhaar/pagesnap/snapshot/internal/localpath"
)

// IndexFile is the name of the rewritten document in the output root.
const IndexFile = "index.html"

// Target is an (element, attribute) pair that carries asset references.
type Target struct {
	Selector string
	Attr     string
}

// Targets lists every rewritten attribute, in processing order.
var Targets = []Target{
	{"link[href]", "href"},
	{"a[href]", "href"},
	{"script[src]", "src"},
	{"img[src]", "src"},
	{"img[srcset]", "srcset"},
	{"source[srcset]", "srcset"},
	{"video[src]", "src"},
	{"video[poster]", "poster"},
	{"audio[src]", "src"},
	{"source[src]", "src"},
	{"iframe[src]", "src"},
	{"embed[src]", "src"},
}

// HydrationSelector matches script elements that embed serialized
// application state.
const HydrationSelector = `script#__NEXT_DATA__, script#__NUXT_DATA__, script#__NUXT__, script#__APOLLO_STATE__`

// Config configures a rewrite.
type Config struct {
	Root   string   // output root
	Base   *url.URL // page URL used for resolution
	Logger *slog.Logger
}

// Stats describes what a rewrite changed.
type Stats struct {
	Styles        int `json:"styles"`
	StyleFailures int `json:"style_failures"`
	Attributes    int `json:"attributes"`
	Hydration     int `json:"hydration"`
}

// Run rewrites markup and persists it as index.html under cfg.Root.
// Only a parse failure or a failure to write index.html is returned.
func Run(markup string, cfg Config) (Stats, error) {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return Stats{}, fmt.Errorf("rewrite: parse: %w", err)
	}

	var st Stats
	links, failed := ExtractStyles(doc, cfg.Root, log)
	st.Styles, st.StyleFailures = len(links), failed
	st.Attributes = RewriteAttributes(doc, cfg.Base, links...)
	st.Hydration = RemoveHydration(doc)

	out, err := doc.Html()
	if err != nil {
		return st, fmt.Errorf("rewrite: render: %w", err)
	}
	if err := os.WriteFile(filepath.Join(cfg.Root, IndexFile), []byte(out), 0o644); err != nil {
		return st, fmt.Errorf("rewrite: write %s: %w", IndexFile, err)
	}

	log.Debug("rewrite: done",
		"styles", st.Styles, "style_failures", st.StyleFailures,
		"attributes", st.Attributes, "hydration", st.Hydration)
	return st, nil
}

// RewriteAttributes rewrites every Targets attribute in doc and returns how
// many values changed. Nodes in skip are left alone; these are the links
// ExtractStyles inserted, whose hrefs are already output-relative.
func RewriteAttributes(doc *goquery.Document, base *url.URL, skip ...*html.Node) int {
	skipped := make(map[*html.Node]bool, len(skip))
	for _, n := range skip {
		skipped[n] = true
	}

	changed := 0
	for _, t := range Targets {
		doc.Find(t.Selector).Each(func(_ int, s *goquery.Selection) {
			if skipped[s.Get(0)] {
				return
			}
			val, ok := s.Attr(t.Attr)
			if !ok || val == "" {
				return
			}
			var next string
			if t.Attr == "srcset" {
				next = Srcset(val, base)
			} else {
				next = localpath.Resolve(val, base)
			}
			if next != val {
				s.SetAttr(t.Attr, next)
				changed++
			}
		})
	}
	return changed
}

// Srcset rewrites each candidate URL of a srcset value and keeps its
// descriptor verbatim. Candidates are rejoined with ", ".
//
// Candidates are split the way browsers do: a URL is a run of
// non-whitespace and may itself contain commas (CDN transform paths);
// only a comma after the URL's trailing commas or after its descriptor
// ends the candidate.
func Srcset(val string, base *url.URL) string {
	var out []string
	for _, c := range srcsetCandidates(val) {
		ref := localpath.Resolve(c.url, base)
		if c.desc != "" {
			ref += " " + c.desc
		}
		out = append(out, ref)
	}
	return strings.Join(out, ", ")
}

type srcsetCandidate struct {
	url, desc string
}

func srcsetCandidates(val string) []srcsetCandidate {
	var out []srcsetCandidate
	i := 0
	for i < len(val) {
		for i < len(val) && (isSpace(val[i]) || val[i] == ',') {
			i++
		}
		if i == len(val) {
			break
		}

		start := i
		for i < len(val) && !isSpace(val[i]) {
			i++
		}
		u := val[start:i]
		if trimmed := strings.TrimRight(u, ","); trimmed != u {
			out = append(out, srcsetCandidate{url: trimmed})
			continue
		}

		start = i
		depth := 0
		for i < len(val) {
			ch := val[i]
			if ch == '(' {
				depth++
			} else if ch == ')' && depth > 0 {
				depth--
			} else if ch == ',' && depth == 0 {
				break
			}
			i++
		}
		out = append(out, srcsetCandidate{url: u, desc: strings.TrimSpace(val[start:i])})
	}
	return out
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f'
}

// RemoveHydration deletes hydration payload scripts and returns how many
// were removed.
func RemoveHydration(doc *goquery.Document) int {
	sel := doc.Find(HydrationSelector)
	n := sel.Length()
	sel.Remove()
	return n
}

func writeFile(root, rel string, data []byte) error {
	path, err := guard.SafeJoin(root, rel)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
