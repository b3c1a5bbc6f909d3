package materialize

import (
	"context"
	"net/url"
	"os"
	"path/filepath"
	"testing"

	"github.com/hazyhaar/pagesnap/snapshot/internal/capture"
)

func base(t *testing.T) *url.URL {
	t.Helper()
	u, err := url.Parse("https://example.com")
	if err != nil {
		t.Fatal(err)
	}
	return u
}

func TestPlan(t *testing.T) {
	b := base(t)
	tests := []struct {
		url     string
		path    string
		outcome Outcome
	}{
		{"https://example.com/img/logo.png", "img/logo.png", Written},
		{"https://example.com/app.js?v=2", "app.js", Written},
		{"https://example.com/docs/", "docs/index.html", Written},
		{"https://cdn.other.com/a.js", "", SkippedCrossOrigin},
		{"https://example.com/", "", SkippedRoot},
		{"https://example.com", "", SkippedRoot},
		{"data:text/plain,hi", "", SkippedInvalid},
		{"://broken", "", SkippedInvalid},
	}
	for _, tt := range tests {
		path, outcome := Plan(b, tt.url)
		if path != tt.path || outcome != tt.outcome {
			t.Errorf("Plan(%q) = (%q, %v), want (%q, %v)", tt.url, path, outcome, tt.path, tt.outcome)
		}
	}
}

func TestRun_WritesInScopeAssets(t *testing.T) {
	root := t.TempDir()
	assets := []capture.Asset{
		{URL: "https://cdn.other.com/lib.js", Body: []byte("cross")},
		{URL: "https://example.com/", Body: []byte("<html>root</html>")},
		{URL: "https://example.com/css/site.css", Body: []byte("body{}")},
		{URL: "https://example.com/img/logo.png", Body: []byte("png")},
	}

	sum := Run(context.Background(), Config{Root: root, Base: base(t), Workers: 2}, assets)

	if sum.Written() != 2 || sum.Skipped() != 2 || sum.Failed() != 0 {
		t.Fatalf("written=%d skipped=%d failed=%d", sum.Written(), sum.Skipped(), sum.Failed())
	}
	if sum.Count(SkippedCrossOrigin) != 1 || sum.Count(SkippedRoot) != 1 {
		t.Errorf("cross=%d root=%d", sum.Count(SkippedCrossOrigin), sum.Count(SkippedRoot))
	}

	got, err := os.ReadFile(filepath.Join(root, "css", "site.css"))
	if err != nil || string(got) != "body{}" {
		t.Errorf("css/site.css = %q, %v", got, err)
	}
	if _, err := os.Stat(filepath.Join(root, "img", "logo.png")); err != nil {
		t.Errorf("img/logo.png: %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "index.html")); !os.IsNotExist(err) {
		t.Error("root document must not be written")
	}
	if _, err := os.Stat(filepath.Join(root, "lib.js")); !os.IsNotExist(err) {
		t.Error("cross-origin asset must not be written")
	}
}

func TestRun_SamePathLastWins(t *testing.T) {
	root := t.TempDir()
	assets := []capture.Asset{
		{URL: "https://example.com/app.js?v=1", Body: []byte("one")},
		{URL: "https://example.com/app.js?v=2", Body: []byte("two")},
	}

	sum := Run(context.Background(), Config{Root: root, Base: base(t)}, assets)
	if sum.Written() != 1 || sum.Count(Superseded) != 1 {
		t.Fatalf("written=%d superseded=%d", sum.Written(), sum.Count(Superseded))
	}
	got, _ := os.ReadFile(filepath.Join(root, "app.js"))
	if string(got) != "two" {
		t.Errorf("app.js = %q, want two", got)
	}
}

func TestRun_WriteFailureDoesNotAbortBatch(t *testing.T) {
	root := t.TempDir()
	// "blocker" is a file, so nothing can be written below it.
	if err := os.WriteFile(filepath.Join(root, "blocker"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	assets := []capture.Asset{
		{URL: "https://example.com/blocker/inner.css", Body: []byte("a")},
		{URL: "https://example.com/ok.css", Body: []byte("b")},
	}

	sum := Run(context.Background(), Config{Root: root, Base: base(t)}, assets)
	if sum.Failed() != 1 || sum.Written() != 1 {
		t.Fatalf("failed=%d written=%d", sum.Failed(), sum.Written())
	}
	for _, r := range sum.Results {
		if r.Outcome == Failed && r.Err == nil {
			t.Error("failed result should carry its error")
		}
	}
	if _, err := os.Stat(filepath.Join(root, "ok.css")); err != nil {
		t.Errorf("ok.css: %v", err)
	}
}

func TestRun_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sum := Run(ctx, Config{Root: t.TempDir(), Base: base(t)}, []capture.Asset{
		{URL: "https://example.com/a.css", Body: []byte("a")},
	})
	if sum.Failed() != 1 {
		t.Errorf("failed = %d, want 1", sum.Failed())
	}
}
