package guard

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"
)

func TestSafeJoin(t *testing.T) {
	root := filepath.Join("srv", "out")
	tests := []struct {
		rel     string
		want    string
		wantErr bool
	}{
		{"img/logo.png", filepath.Join(root, "img", "logo.png"), false},
		{"styles/inline-style-0.css", filepath.Join(root, "styles", "inline-style-0.css"), false},
		{"a//b.js", filepath.Join(root, "a", "b.js"), false},
		{"./c.css", filepath.Join(root, "c.css"), false},
		{"../etc/passwd", "", true},
		{"img/../../x", "", true},
		{"..", "", true},
		{"", "", true},
		{"/", "", true},
		{".", "", true},
	}
	for _, tt := range tests {
		got, err := SafeJoin(root, tt.rel)
		if (err != nil) != tt.wantErr {
			t.Errorf("SafeJoin(%q) error=%v, wantErr=%v", tt.rel, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && got != tt.want {
			t.Errorf("SafeJoin(%q) = %q, want %q", tt.rel, got, tt.want)
		}
	}
}

func TestSafeJoin_TraversalSentinel(t *testing.T) {
	if _, err := SafeJoin("/out", "../x"); !errors.Is(err, ErrPathTraversal) {
		t.Fatalf("got %v, want ErrPathTraversal", err)
	}
}

func TestValidateTarget(t *testing.T) {
	tests := []struct {
		url          string
		blockPrivate bool
		wantErr      bool
	}{
		{"https://example.com", false, false},
		{"  http://example.com/page  ", false, false},
		{"ftp://example.com/x", false, true},
		{"javascript:alert(1)", false, true},
		{"example.com", false, true},
		{"https://", false, true},
		{"http://127.0.0.1:3000/", false, false},
		{"http://127.0.0.1:3000/", true, true},
		{"http://10.0.0.1/", true, true},
		{"http://192.168.1.1/", true, true},
		{"http://[::1]/", true, true},
		{"http://8.8.8.8/", true, false},
	}
	for _, tt := range tests {
		_, err := ValidateTarget(tt.url, tt.blockPrivate)
		if (err != nil) != tt.wantErr {
			t.Errorf("ValidateTarget(%q, %v) error=%v, wantErr=%v", tt.url, tt.blockPrivate, err, tt.wantErr)
		}
	}
}

func TestLimitedReadAll(t *testing.T) {
	data, err := LimitedReadAll(strings.NewReader("hello"), 5)
	if err != nil || string(data) != "hello" {
		t.Fatalf("got %q, %v", data, err)
	}
	if _, err := LimitedReadAll(strings.NewReader("hello!"), 5); err == nil {
		t.Fatal("expected error when body exceeds limit")
	}
}
