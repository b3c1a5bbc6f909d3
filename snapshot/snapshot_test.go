package snapshot

import (
	"context"
	"errors"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hazyhaar/pagesnap/snapshot/internal/browser"
	"github.com/hazyhaar/pagesnap/snapshot/internal/browser/browsertest"
)

const scenarioHTML = `<!DOCTYPE html>
<html><head>
<link rel="stylesheet" href="/style.css">
<script src="https://ext.com/lib.js"></script>
<style>h1{font-size:2em}</style>
</head><body>
<h1>Example</h1>
<img src="/img/logo.png">
<script id="__NEXT_DATA__" type="application/json">{}</script>
</body></html>`

func testConfig() *Config {
	cfg := DefaultConfig()
	cfg.Timing = TimingConfig{ScrollStep: 300, LazyAttributes: []string{"data-src"}}
	return cfg
}

func scenarioLauncher() *browsertest.Launcher {
	return &browsertest.Launcher{Page: browsertest.Page{
		HTML:     []string{scenarioHTML},
		FinalURL: "https://example.com/",
		Responses: []browser.Response{
			browsertest.Body("https://example.com/", 200, scenarioHTML),
			browsertest.Body("https://example.com/style.css", 200, "body{margin:0}"),
			browsertest.Body("https://example.com/img/logo.png", 200, "PNG"),
			browsertest.Body("https://example.com/missing.gif", 404, "not found"),
			browsertest.Body("https://ext.com/lib.js", 200, "console.log('ext')"),
		},
	}}
}

func TestCapture_Scenario(t *testing.T) {
	out := t.TempDir()
	l := scenarioLauncher()

	rep, err := New(testConfig(), nil, WithLauncher(l)).Capture(context.Background(), "https://example.com", out)
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}

	for _, p := range []string{"index.html", "style.css", "img/logo.png", "styles/inline-style-0.css"} {
		if _, err := os.Stat(filepath.Join(out, filepath.FromSlash(p))); err != nil {
			t.Errorf("%s: %v", p, err)
		}
	}
	if _, err := os.Stat(filepath.Join(out, "lib.js")); !os.IsNotExist(err) {
		t.Error("cross-origin lib.js must not be materialized")
	}
	if _, err := os.Stat(filepath.Join(out, "missing.gif")); !os.IsNotExist(err) {
		t.Error("404 response must not be materialized")
	}

	index, err := os.ReadFile(filepath.Join(out, "index.html"))
	if err != nil {
		t.Fatal(err)
	}
	html := string(index)
	for _, want := range []string{
		`href="style.css"`,
		`src="https://ext.com/lib.js"`,
		`src="img/logo.png"`,
		`href="styles/inline-style-0.css"`,
	} {
		if !strings.Contains(html, want) {
			t.Errorf("index.html missing %s", want)
		}
	}
	if strings.Contains(html, "__NEXT_DATA__") {
		t.Error("hydration script should be removed")
	}

	if rep.Responses != 5 || rep.Captured != 4 {
		t.Errorf("responses=%d captured=%d", rep.Responses, rep.Captured)
	}
	if rep.Written != 2 || rep.Skipped != 2 || rep.Failed != 0 {
		t.Errorf("written=%d skipped=%d failed=%d", rep.Written, rep.Skipped, rep.Failed)
	}
	if rep.Styles != 1 || rep.Hydration != 1 {
		t.Errorf("styles=%d hydration=%d", rep.Styles, rep.Hydration)
	}
	if n := l.Sessions()[0].Closes(); n != 1 {
		t.Errorf("closes = %d, want 1", n)
	}
}

func TestCapture_RedirectUsesFinalHost(t *testing.T) {
	out := t.TempDir()
	page := `<html><head><link rel="stylesheet" href="https://www.example.com/a.css"></head></html>`
	l := &browsertest.Launcher{Page: browsertest.Page{
		HTML:     []string{page},
		FinalURL: "https://www.example.com/",
		Responses: []browser.Response{
			browsertest.Body("https://www.example.com/a.css", 200, "a{}"),
		},
	}}

	if _, err := New(testConfig(), nil, WithLauncher(l)).Capture(context.Background(), "https://example.com", out); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(out, "a.css")); err != nil {
		t.Errorf("a.css: %v", err)
	}
	index, _ := os.ReadFile(filepath.Join(out, "index.html"))
	if !strings.Contains(string(index), `href="a.css"`) {
		t.Errorf("reference should be localized: %s", index)
	}
}

func TestCapture_NavigationFailure(t *testing.T) {
	l := &browsertest.Launcher{Page: browsertest.Page{NavigateErr: errors.New("net::ERR_CONNECTION_REFUSED")}}
	err := New(testConfig(), nil, WithLauncher(l)).Snapshot(context.Background(), "https://example.com", t.TempDir())
	if !errors.Is(err, ErrNavigate) {
		t.Fatalf("err = %v, want ErrNavigate", err)
	}
	if n := l.Sessions()[0].Closes(); n != 1 {
		t.Errorf("closes = %d, want 1", n)
	}
}

func TestCapture_LaunchFailure(t *testing.T) {
	l := &browsertest.Launcher{Page: browsertest.Page{LaunchErr: errors.New("chrome not found")}}
	err := New(testConfig(), nil, WithLauncher(l)).Snapshot(context.Background(), "https://example.com", t.TempDir())
	if !errors.Is(err, ErrLaunch) {
		t.Fatalf("err = %v, want ErrLaunch", err)
	}
}

func TestCapture_RejectsNonHTTP(t *testing.T) {
	l := scenarioLauncher()
	err := New(testConfig(), nil, WithLauncher(l)).Snapshot(context.Background(), "file:///etc/passwd", t.TempDir())
	if err == nil {
		t.Fatal("expected error for file:// URL")
	}
	if len(l.Sessions()) != 0 {
		t.Error("no browser session should be started")
	}
}

func TestBaseURL(t *testing.T) {
	target, _ := url.Parse("https://example.com")
	tests := []struct{ final, want string }{
		{"", "https://example.com"},
		{"https://www.example.com/home", "https://www.example.com/home"},
		{"about:blank", "https://example.com"},
		{"chrome-error://chromewebdata/", "https://example.com"},
	}
	for _, tt := range tests {
		if got := baseURL(target, tt.final).String(); got != tt.want {
			t.Errorf("baseURL(%q) = %q, want %q", tt.final, got, tt.want)
		}
	}
}
