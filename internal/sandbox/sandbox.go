package sandbox

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// ErrPathEscape is returned for any input whose normalized form would land
// outside the sandbox root. Execution never proceeds past it.
var ErrPathEscape = errors.New("path escapes sandbox root")

var driveLetter = regexp.MustCompile(`^[a-zA-Z]:`)

// percent-encoded traversal bytes that must not smuggle past the checks
var encodedSeq = strings.NewReplacer(
	"%2e", ".", "%2E", ".",
	"%2f", "/", "%2F", "/",
	"%5c", "\\", "%5C", "\\",
	"%25", "%",
)

// Resolver confines conversation working directories under a fixed root.
// Resolution is purely lexical: no filesystem access, no symlink chasing.
type Resolver struct {
	root string
}

// New anchors a resolver at root (made absolute once, at construction).
func New(root string) (*Resolver, error) {
	if root == "" {
		root = "."
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve sandbox root: %w", err)
	}
	return &Resolver{root: filepath.Clean(abs)}, nil
}

// Root returns the absolute sandbox root.
func (r *Resolver) Root() string {
	return r.root
}

// Resolve maps a sandbox-relative path to an absolute path under the root.
// Absolute inputs, drive-letter inputs, and any normalized form that climbs
// above the root are rejected with ErrPathEscape. Backslashes and the common
// percent-encodings count as separators regardless of host OS, so encoded
// traversal cannot slip through on Unix.
func (r *Resolver) Resolve(relative string) (string, error) {
	cleaned := normalize(relative)
	if cleaned == "" || cleaned == "." {
		return r.root, nil
	}
	if strings.HasPrefix(cleaned, "/") || driveLetter.MatchString(cleaned) {
		return "", fmt.Errorf("%w: %s", ErrPathEscape, relative)
	}
	joined := filepath.Clean(filepath.Join(r.root, filepath.FromSlash(cleaned)))
	if !r.contains(joined) {
		return "", fmt.Errorf("%w: %s", ErrPathEscape, relative)
	}
	return joined, nil
}

// Rel maps an absolute path back to its sandbox-relative form, failing with
// ErrPathEscape when the path lies outside the root. Used to persist working
// directories read back from executed commands.
func (r *Resolver) Rel(abs string) (string, error) {
	cleaned := filepath.Clean(abs)
	if !r.contains(cleaned) {
		return "", fmt.Errorf("%w: %s", ErrPathEscape, abs)
	}
	rel, err := filepath.Rel(r.root, cleaned)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrPathEscape, abs)
	}
	return filepath.ToSlash(rel), nil
}

func (r *Resolver) contains(abs string) bool {
	return abs == r.root || strings.HasPrefix(abs, r.root+string(os.PathSeparator))
}

func normalize(p string) string {
	p = strings.TrimSpace(p)
	// Decode until stable so double-encoded sequences cannot hide a dot or
	// separator from the containment check.
	for {
		decoded := encodedSeq.Replace(p)
		if decoded == p {
			break
		}
		p = decoded
	}
	return strings.ReplaceAll(p, "\\", "/")
}
