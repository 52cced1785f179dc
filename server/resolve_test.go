package server

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

func TestResolveRejectsTraversalPatterns(t *testing.T) {
	root := t.TempDir()

	bad := []string{
		"../etc/passwd",
		"/a/../../b",
		"//etc/passwd",
		`\\server\share`,
		"file\x00.html",
		"%2e%2e/secret",
		"",
	}
	for _, p := range bad {
		if _, err := Resolve(root, p); !errors.Is(err, ErrPathRejected) {
			t.Errorf("Resolve(%q) = %v, want ErrPathRejected", p, err)
		}
	}
}

func TestResolveFindsRealFile(t *testing.T) {
	root := t.TempDir()
	sub := filepath.Join(root, "css")
	if err := os.MkdirAll(sub, 0755); err != nil {
		t.Fatal(err)
	}
	file := filepath.Join(sub, "main.css")
	if err := os.WriteFile(file, []byte("body{}"), 0644); err != nil {
		t.Fatal(err)
	}

	rp, err := Resolve(root, "/css/main.css")
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	want, _ := filepath.EvalSymlinks(file)
	if rp.Path != want {
		t.Errorf("resolved path = %q, want %q", rp.Path, want)
	}
	if rp.IsDir {
		t.Error("file resolved as directory")
	}
}

func TestResolveDirectory(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "docs"), 0755); err != nil {
		t.Fatal(err)
	}

	rp, err := Resolve(root, "/docs")
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	if !rp.IsDir {
		t.Error("directory not flagged as directory")
	}
}

func TestResolveMissingFile(t *testing.T) {
	root := t.TempDir()
	if _, err := Resolve(root, "/missing.html"); !errors.Is(err, ErrPathNotFound) {
		t.Errorf("Resolve(missing) = %v, want ErrPathNotFound", err)
	}
}

func TestResolveRejectsSymlinkEscape(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need privileges on windows")
	}
	root := t.TempDir()
	outside := t.TempDir()
	secret := filepath.Join(outside, "secret.txt")
	if err := os.WriteFile(secret, []byte("top"), 0644); err != nil {
		t.Fatal(err)
	}
	link := filepath.Join(root, "escape.txt")
	if err := os.Symlink(secret, link); err != nil {
		t.Fatal(err)
	}

	if _, err := Resolve(root, "/escape.txt"); !errors.Is(err, ErrPathRejected) {
		t.Errorf("symlink escape = %v, want ErrPathRejected", err)
	}
}

func TestResolvePercentDecodedName(t *testing.T) {
	root := t.TempDir()
	file := filepath.Join(root, "my page.html")
	if err := os.WriteFile(file, []byte("<html></html>"), 0644); err != nil {
		t.Fatal(err)
	}

	rp, err := Resolve(root, "/my%20page.html")
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	want, _ := filepath.EvalSymlinks(file)
	if rp.Path != want {
		t.Errorf("resolved path = %q, want %q", rp.Path, want)
	}
}
