// Package materialize writes captured assets into a snapshot's output tree.
//
// Only same-host, non-root assets are written, each at the path derived
// from its URL path. Every asset produces a Result; nothing here fails the
// batch.
package materialize

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/hazyhaar/pagesnap/guard"
	"github.com/hazyhaar/pagesnap/snapshot/internal/capture"
	"github.com/hazyhaar/pagesnap/snapshot/internal/localpath"
)

// Outcome is what happened to one asset.
type Outcome int

const (
	Written Outcome = iota
	SkippedCrossOrigin
	SkippedRoot
	SkippedInvalid
	// Superseded: another asset mapped to the same local path and was
	// written instead (last one in URL order wins).
	Superseded
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Written:
		return "written"
	case SkippedCrossOrigin:
		return "cross_origin"
	case SkippedRoot:
		return "root"
	case SkippedInvalid:
		return "invalid"
	case Superseded:
		return "superseded"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

// Result is the per-asset record.
type Result struct {
	URL     string
	Path    string // relative to the output root, slash-separated
	Outcome Outcome
	Err     error
}

// Summary aggregates the results of one batch.
type Summary struct {
	Results []Result
}

// Count returns how many results have outcome o.
func (s Summary) Count(o Outcome) int {
	n := 0
	for _, r := range s.Results {
		if r.Outcome == o {
			n++
		}
	}
	return n
}

// Written is the number of files written.
func (s Summary) Written() int { return s.Count(Written) }

// Failed is the number of in-scope assets whose write failed.
func (s Summary) Failed() int { return s.Count(Failed) }

// Skipped is the number of assets deliberately left out.
func (s Summary) Skipped() int {
	return len(s.Results) - s.Written() - s.Failed()
}

// Config configures a batch.
type Config struct {
	Root    string   // output root directory
	Base    *url.URL // page URL; decides what is same-origin
	Workers int      // concurrent writers, default 8
	Logger  *slog.Logger
}

// Plan applies the scope filter and the path derivation to one asset URL.
// A path ending in "/" is stored as its index.html so that a static server
// resolves the rewritten directory reference to it.
func Plan(base *url.URL, rawURL string) (string, Outcome) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return "", SkippedInvalid
	}
	if !localpath.SameHost(u, base) {
		return "", SkippedCrossOrigin
	}
	if localpath.IsRoot(u) {
		return "", SkippedRoot
	}
	rel := localpath.FromURL(u)
	if strings.HasSuffix(rel, "/") {
		rel += "index.html"
	}
	return rel, Written
}

// Run writes every in-scope asset under cfg.Root. The root document
// (index.html) is written afterwards by the rewriter and wins over any
// asset that mapped to the same name.
func Run(ctx context.Context, cfg Config, assets []capture.Asset) Summary {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = 8
	}

	results := make([]Result, len(assets))
	byPath := make(map[string]int, len(assets))
	for i, a := range assets {
		rel, outcome := Plan(cfg.Base, a.URL)
		results[i] = Result{URL: a.URL, Path: rel, Outcome: outcome}
		if outcome != Written {
			continue
		}
		if prev, ok := byPath[rel]; ok {
			results[prev].Outcome = Superseded
		}
		byPath[rel] = i
	}

	var g errgroup.Group
	g.SetLimit(workers)
	for i := range results {
		if results[i].Outcome != Written {
			continue
		}
		g.Go(func() error {
			r := &results[i]
			if err := ctx.Err(); err != nil {
				r.Outcome, r.Err = Failed, err
				return nil
			}
			if err := write(cfg.Root, r.Path, assets[i].Body); err != nil {
				r.Outcome, r.Err = Failed, err
				log.Debug("materialize: write failed", "url", r.URL, "path", r.Path, "error", err)
			}
			return nil
		})
	}
	_ = g.Wait()

	sum := Summary{Results: results}
	log.Debug("materialize: done",
		"assets", len(assets), "written", sum.Written(),
		"skipped", sum.Skipped(), "failed", sum.Failed())
	return sum
}

func write(root, rel string, body []byte) error {
	path, err := guard.SafeJoin(root, rel)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("materialize: mkdir: %w", err)
	}
	if err := os.WriteFile(path, body, 0o644); err != nil {
		return fmt.Errorf("materialize: write: %w", err)
	}
	return nil
}
