package artifact

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/kingrea/diagindex/internal/groups"
)

// State describes an artifact on disk.
type State string

const (
	StateMissing State = "missing"
	StateReady   State = "ready"
	StateInvalid State = "invalid"
)

// CheckResult reports what Check found.
type CheckResult struct {
	Ref   Ref
	Path  string
	State State
	Err   error
}

// Namespace is a scratch directory shared by every run of a session.
type Namespace struct {
	root     string
	modelExt string
}

// Option customizes a Namespace during construction.
type Option func(*Namespace)

// WithModelExtension sets the file extension used for model artifacts.
func WithModelExtension(ext string) Option {
	return func(n *Namespace) {
		if ext != "" {
			n.modelExt = ext
		}
	}
}

// NewNamespace builds a namespace rooted at dir. The directory is created
// lazily by Ensure.
func NewNamespace(dir string, opts ...Option) *Namespace {
	ns := &Namespace{root: filepath.Clean(dir), modelExt: ".h5"}
	for _, opt := range opts {
		opt(ns)
	}
	return ns
}

// Root returns the namespace directory.
func (n *Namespace) Root() string {
	return n.root
}

// Ensure creates the namespace directory.
func (n *Namespace) Ensure() error {
	if err := os.MkdirAll(filepath.Join(n.root, previewDir), 0o755); err != nil {
		return fmt.Errorf("artifact: create namespace %s: %w", n.root, err)
	}
	return nil
}

// Check inspects an artifact on disk.
func (n *Namespace) Check(ref Ref) (CheckResult, error) {
	path := ref.Path(n)
	if path == "" {
		err := fmt.Errorf("artifact: %s path could not be resolved", ref.Kind)
		return CheckResult{Ref: ref, State: StateInvalid, Err: err}, err
	}
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return CheckResult{Ref: ref, Path: path, State: StateMissing}, nil
		}
		return CheckResult{Ref: ref, Path: path, State: StateInvalid, Err: err}, err
	}
	if info.IsDir() {
		err := fmt.Errorf("artifact: expected file, %s is a directory", path)
		return CheckResult{Ref: ref, Path: path, State: StateInvalid, Err: err}, err
	}
	return CheckResult{Ref: ref, Path: path, State: StateReady}, nil
}

// Exists reports whether the artifact is present.
func (n *Namespace) Exists(ref Ref) bool {
	res, err := n.Check(ref)
	return err == nil && res.State == StateReady
}

// Remove deletes the given artifacts. Missing files are not an error.
func (n *Namespace) Remove(refs ...Ref) error {
	var errs []error
	for _, ref := range refs {
		path := ref.Path(n)
		if path == "" {
			continue
		}
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, fmt.Errorf("artifact: remove %s: %w", path, err))
		}
	}
	return errors.Join(errs...)
}

// Sweep removes every staging file left for group id (`group<id>.*` and
// `group<id>_*`) and returns the names it deleted. Means are not touched.
func (n *Namespace) Sweep(id groups.GroupID) ([]string, error) {
	pattern := fmt.Sprintf("group%d{.*,_*}", id)
	matches, err := doublestar.Glob(os.DirFS(n.root), pattern, doublestar.WithFilesOnly())
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("artifact: sweep group %d: %w", id, err)
	}
	var errs []error
	removed := make([]string, 0, len(matches))
	for _, name := range matches {
		if err := os.Remove(filepath.Join(n.root, filepath.FromSlash(name))); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, fmt.Errorf("artifact: remove %s: %w", name, err))
			continue
		}
		removed = append(removed, name)
	}
	return removed, errors.Join(errs...)
}

// Destroy removes the namespace and everything in it.
func (n *Namespace) Destroy() error {
	return os.RemoveAll(n.root)
}
