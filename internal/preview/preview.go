// Package preview produces group-tagged copies of every shape file and a
// manifest of the selected ones for an external viewer.
package preview

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"

	"github.com/kingrea/diagindex/internal/artifact"
	"github.com/kingrea/diagindex/internal/groups"
	"github.com/kingrea/diagindex/internal/logbook"
	"github.com/kingrea/diagindex/internal/shape"
)

// ManifestHeader is the single column header of the preview manifest.
const ManifestHeader = "VTK Files"

// FileError records a file that could not be decorated.
type FileError struct {
	Group groups.GroupID
	Path  string
	Err   error
}

func (e FileError) Error() string {
	return fmt.Sprintf("preview: group %d: %s: %v", e.Group, e.Path, e.Err)
}

func (e FileError) Unwrap() error { return e.Err }

// Collision records two inputs with the same file name. Copies are keyed by
// name, so Replaced's copy was overwritten by Path's.
type Collision struct {
	Copy     string
	Replaced string
	Path     string
}

// Result lists what an export produced.
type Result struct {
	// Decorated maps each original path to its decorated copy.
	Decorated map[string]string
	// Included lists the decorated copies written to the manifest, in order.
	Included   []string
	Manifest   string
	Failures   []FileError
	Collisions []Collision
}

// Exporter writes decorated copies into a scratch namespace.
type Exporter struct {
	ns        *artifact.Namespace
	attribute string
	logbook   *logbook.Logbook
}

// Option customizes an Exporter.
type Option func(*Exporter)

// WithLogbook reports per-file failures to the session journal.
func WithLogbook(lb *logbook.Logbook) Option {
	return func(e *Exporter) {
		e.logbook = lb
	}
}

// NewExporter builds an exporter that tags points with the named array.
func NewExporter(ns *artifact.Namespace, attribute string, opts ...Option) *Exporter {
	exp := &Exporter{ns: ns, attribute: attribute}
	if exp.attribute == "" {
		exp.attribute = "Groups"
	}
	for _, opt := range opts {
		opt(exp)
	}
	return exp
}

// Export decorates every file of the table and writes the manifest of the
// selected ones. Files that fail are reported in Result.Failures; only
// namespace and manifest I/O errors are returned.
func (e *Exporter) Export(table *groups.Table, sel groups.Selection) (Result, error) {
	if err := e.ns.Ensure(); err != nil {
		return Result{}, err
	}
	res := Result{Decorated: map[string]string{}}
	written := map[string]string{}
	table.Each(func(id groups.GroupID, path string) {
		target := artifact.Decorated(path).Path(e.ns)
		if err := decorate(path, target, e.attribute, id); err != nil {
			failure := FileError{Group: id, Path: path, Err: err}
			res.Failures = append(res.Failures, failure)
			e.logbook.Warn("Preview skipped %s: %v", path, err)
			return
		}
		if prev, ok := written[target]; ok {
			res.Collisions = append(res.Collisions, Collision{Copy: target, Replaced: prev, Path: path})
			e.logbook.Warn("Preview of %s replaced by %s: both are named %s", prev, path, filepath.Base(path))
			delete(res.Decorated, prev)
			res.Included = without(res.Included, target)
		}
		written[target] = path
		res.Decorated[path] = target
		if sel.Selected(path) {
			res.Included = append(res.Included, target)
		}
	})
	manifest := artifact.PreviewManifest().Path(e.ns)
	if err := writeManifest(manifest, res.Included); err != nil {
		return res, fmt.Errorf("preview: write manifest: %w", err)
	}
	res.Manifest = manifest
	return res, nil
}

func without(list []string, item string) []string {
	out := list[:0]
	for _, v := range list {
		if v != item {
			out = append(out, v)
		}
	}
	return out
}

func decorate(source, target, attribute string, id groups.GroupID) error {
	mesh, err := shape.Load(source)
	if err != nil {
		return err
	}
	mesh.SetConstantScalars(attribute, float64(id))
	return shape.Save(target, mesh)
}

func writeManifest(path string, files []string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w := csv.NewWriter(f)
	records := make([][]string, 0, len(files)+1)
	records = append(records, []string{ManifestHeader})
	for _, file := range files {
		records = append(records, []string{file})
	}
	if err := w.WriteAll(records); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
