package sandbox

import (
	"errors"
	"path/filepath"
	"testing"
)

func TestResolveStaysInsideRoot(t *testing.T) {
	root := t.TempDir()
	r, err := New(root)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	cases := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", root},
		{"dot", ".", root},
		{"simple", "sub", filepath.Join(root, "sub")},
		{"nested", "sub/dir", filepath.Join(root, "sub", "dir")},
		{"backslashes", "sub\\dir", filepath.Join(root, "sub", "dir")},
		{"internal dotdot", "sub/../other", filepath.Join(root, "other")},
		{"trailing slash", "sub/", filepath.Join(root, "sub")},
		{"whitespace", "  sub  ", filepath.Join(root, "sub")},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := r.Resolve(tc.in)
			if err != nil {
				t.Fatalf("Resolve(%q): %v", tc.in, err)
			}
			if got != tc.want {
				t.Errorf("Resolve(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestResolveRejectsEscapes(t *testing.T) {
	r, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	cases := []struct {
		name string
		in   string
	}{
		{"parent", ".."},
		{"deep traversal", "../../etc"},
		{"backslash traversal", "..\\..\\etc"},
		{"embedded traversal", "sub/../../x"},
		{"absolute", "/etc/passwd"},
		{"drive letter", "C:\\windows"},
		{"encoded dots", "%2e%2e/secret"},
		{"encoded slash", "%2e%2e%2fsecret"},
		{"double encoded", "%252e%252e/secret"},
		{"encoded backslash", "..%5c..%5cetc"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := r.Resolve(tc.in)
			if !errors.Is(err, ErrPathEscape) {
				t.Errorf("Resolve(%q) = (%q, %v), want ErrPathEscape", tc.in, got, err)
			}
		})
	}
}

func TestRelRoundTrip(t *testing.T) {
	r, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	abs, err := r.Resolve("sub/dir")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	rel, err := r.Rel(abs)
	if err != nil {
		t.Fatalf("Rel: %v", err)
	}
	if rel != "sub/dir" {
		t.Errorf("Rel(%q) = %q, want %q", abs, rel, "sub/dir")
	}

	rootRel, err := r.Rel(r.Root())
	if err != nil {
		t.Fatalf("Rel(root): %v", err)
	}
	if rootRel != "." {
		t.Errorf("Rel(root) = %q, want %q", rootRel, ".")
	}
}

func TestRelRejectsOutsidePaths(t *testing.T) {
	r, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := r.Rel("/etc"); !errors.Is(err, ErrPathEscape) {
		t.Errorf("Rel(/etc) err = %v, want ErrPathEscape", err)
	}
	// sibling directory sharing the root as a string prefix
	if _, err := r.Rel(r.Root() + "x"); !errors.Is(err, ErrPathEscape) {
		t.Errorf("Rel(root+x) err = %v, want ErrPathEscape", err)
	}
}
