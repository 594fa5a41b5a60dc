// Package export writes the final classification: one mean shape per group
// copied into a target directory, plus a CSV manifest mapping each copy to
// its group.
package export

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/kingrea/diagindex/internal/groups"
	"github.com/kingrea/diagindex/internal/logbook"
)

// ManifestHeader is the header row of the classification manifest.
var ManifestHeader = []string{"VTK Files", "Group"}

// DefaultManifestName is used when no manifest name is configured.
const DefaultManifestName = "classification.csv"

// ExportConflictError lists destinations that already exist. Declined is set
// when the user refused to overwrite them.
type ExportConflictError struct {
	Paths    []string
	Declined bool
}

func (e *ExportConflictError) Error() string {
	verb := "would overwrite"
	if e.Declined {
		verb = "overwrite declined for"
	}
	return fmt.Sprintf("export: %s %d existing file(s): %s", verb, len(e.Paths), strings.Join(e.Paths, ", "))
}

// DuplicateDestinationError reports two groups whose means would be copied to
// the same destination.
type DuplicateDestinationError struct {
	Path   string
	Groups []groups.GroupID
}

func (e *DuplicateDestinationError) Error() string {
	return fmt.Sprintf("export: groups %v map to the same destination %s", e.Groups, e.Path)
}

// Confirmer decides whether existing files may be overwritten.
type Confirmer interface {
	ConfirmOverwrite(paths []string) (bool, error)
}

// ConfirmFunc adapts a function to Confirmer.
type ConfirmFunc func(paths []string) (bool, error)

// ConfirmOverwrite implements Confirmer.
func (f ConfirmFunc) ConfirmOverwrite(paths []string) (bool, error) {
	return f(paths)
}

// Destination pairs a group's mean with where it will be written. InPlace is
// set when the mean already is the target file; it is listed in the manifest
// but never copied.
type Destination struct {
	Group   groups.GroupID
	Source  string
	Target  string
	InPlace bool
}

// Plan is the set of files an export would write.
type Plan struct {
	Destinations []Destination
	Manifest     string
	// Conflicts lists destinations (including the manifest) that already exist.
	Conflicts []string
}

// Result describes a finished export.
type Result struct {
	Written  []string
	InPlace  []string
	Manifest string
}

// Exporter copies means into a target directory.
type Exporter struct {
	manifestName string
	logbook      *logbook.Logbook
}

// Option customizes an Exporter.
type Option func(*Exporter)

// WithManifestName overrides the manifest file name.
func WithManifestName(name string) Option {
	return func(e *Exporter) {
		if strings.TrimSpace(name) != "" {
			e.manifestName = name
		}
	}
}

// WithLogbook reports progress to the session journal.
func WithLogbook(lb *logbook.Logbook) Option {
	return func(e *Exporter) {
		e.logbook = lb
	}
}

// NewExporter creates an exporter.
func NewExporter(opts ...Option) *Exporter {
	exp := &Exporter{manifestName: DefaultManifestName}
	for _, opt := range opts {
		if opt != nil {
			opt(exp)
		}
	}
	return exp
}

// Plan computes destinations for means under target without writing
// anything. Each group's first mean is used.
func (e *Exporter) Plan(means *groups.Table, target string) (Plan, error) {
	if means == nil || means.Count() == 0 {
		return Plan{}, errors.New("export: no means to export")
	}
	if strings.TrimSpace(target) == "" {
		return Plan{}, errors.New("export: target directory is required")
	}
	plan := Plan{Manifest: filepath.Join(target, e.manifestName)}
	claimed := map[string]groups.GroupID{}
	for _, id := range means.IDs() {
		members := means.Members(id)
		if len(members) == 0 {
			continue
		}
		dest := filepath.Join(target, filepath.Base(members[0]))
		if other, ok := claimed[dest]; ok {
			return Plan{}, &DuplicateDestinationError{Path: dest, Groups: []groups.GroupID{other, id}}
		}
		if dest == plan.Manifest {
			return Plan{}, &DuplicateDestinationError{Path: dest, Groups: []groups.GroupID{id}}
		}
		claimed[dest] = id
		plan.Destinations = append(plan.Destinations, Destination{
			Group:   id,
			Source:  members[0],
			Target:  dest,
			InPlace: sameFile(members[0], dest),
		})
	}
	for _, dest := range plan.Destinations {
		if !dest.InPlace && exists(dest.Target) {
			plan.Conflicts = append(plan.Conflicts, dest.Target)
		}
	}
	if exists(plan.Manifest) {
		plan.Conflicts = append(plan.Conflicts, plan.Manifest)
	}
	sort.Strings(plan.Conflicts)
	return plan, nil
}

// Export copies each group's mean to target and writes the manifest. When
// destinations already exist, confirmer is asked once; a nil confirmer or a
// refusal returns an *ExportConflictError and writes nothing.
func (e *Exporter) Export(means *groups.Table, target string, confirmer Confirmer) (Result, error) {
	plan, err := e.Plan(means, target)
	if err != nil {
		return Result{}, err
	}
	if len(plan.Conflicts) > 0 {
		ok := false
		if confirmer != nil {
			ok, err = confirmer.ConfirmOverwrite(plan.Conflicts)
			if err != nil {
				return Result{}, fmt.Errorf("export: confirm overwrite: %w", err)
			}
		}
		if !ok {
			e.logbook.Warn("Export cancelled: %d file(s) already exist in %s", len(plan.Conflicts), target)
			return Result{}, &ExportConflictError{Paths: plan.Conflicts, Declined: true}
		}
	}
	if err := os.MkdirAll(target, 0o755); err != nil {
		return Result{}, fmt.Errorf("export: create %s: %w", target, err)
	}
	var res Result
	for _, dest := range plan.Destinations {
		if dest.InPlace {
			res.InPlace = append(res.InPlace, dest.Target)
			continue
		}
		if err := copyFile(dest.Source, dest.Target); err != nil {
			return res, fmt.Errorf("export: group %d: copy %s: %w", dest.Group, dest.Source, err)
		}
		res.Written = append(res.Written, dest.Target)
	}
	if err := writeManifest(plan.Manifest, plan.Destinations); err != nil {
		return res, fmt.Errorf("export: write manifest: %w", err)
	}
	res.Manifest = plan.Manifest
	if len(res.InPlace) > 0 {
		e.logbook.Info("%d mean(s) already in %s, left in place", len(res.InPlace), target)
	}
	e.logbook.Info("Exported %d mean(s) to %s", len(res.Written), target)
	return res, nil
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil || !errors.Is(err, fs.ErrNotExist)
}

// sameFile reports whether both paths name the same existing file, so that
// copying one onto the other would truncate it.
func sameFile(a, b string) bool {
	ai, err := os.Stat(a)
	if err != nil {
		return false
	}
	bi, err := os.Stat(b)
	if err != nil {
		return false
	}
	return os.SameFile(ai, bi)
}

func copyFile(source, target string) error {
	in, err := os.Open(source)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(target)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func writeManifest(path string, dests []Destination) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w := csv.NewWriter(f)
	records := make([][]string, 0, len(dests)+1)
	records = append(records, ManifestHeader)
	for _, dest := range dests {
		records = append(records, []string{dest.Target, strconv.Itoa(int(dest.Group))})
	}
	if err := w.WriteAll(records); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
