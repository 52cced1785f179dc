package server

import (
	"math"
	"os"
	"path/filepath"
	"testing"
)

func TestSimilarity(t *testing.T) {
	tests := []struct {
		a, b string
		want float64
	}{
		{"", "", 1},
		{"abc", "", 0},
		{"abc", "abc", 1},
		{"ABC", "abc", 1},
		{"kitten", "sitting", 1 - 3.0/7.0},
		{"missing.htm", "missing.html", 1 - 1.0/12.0},
	}
	for _, tt := range tests {
		got := Similarity(tt.a, tt.b)
		if math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("Similarity(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestFindSimilarFiles(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"missing.html", "misc.txt", "unrelated.png"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	sub := filepath.Join(dir, "pages")
	if err := os.Mkdir(sub, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(sub, "missing2.html"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	got := FindSimilarFiles("/missing.htm", []string{dir})
	if len(got) == 0 {
		t.Fatal("no suggestions returned")
	}
	if got[0].Path != "missing.html" {
		t.Errorf("best suggestion = %q, want missing.html", got[0].Path)
	}
	for i := 1; i < len(got); i++ {
		if got[i].Score > got[i-1].Score {
			t.Errorf("suggestions not sorted: %v", got)
		}
	}
	for _, s := range got {
		if s.Path == "unrelated.png" {
			t.Errorf("below-threshold file suggested: %v", s)
		}
	}
}

func TestFindSimilarFilesCapped(t *testing.T) {
	dir := t.TempDir()
	for i := 0; i < 10; i++ {
		name := filepath.Join(dir, "page"+string(rune('a'+i))+".html")
		if err := os.WriteFile(name, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	got := FindSimilarFiles("/pagex.html", []string{dir})
	if len(got) > maxSuggestions {
		t.Errorf("got %d suggestions, cap is %d", len(got), maxSuggestions)
	}
}
