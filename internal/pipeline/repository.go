package pipeline

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"
)

// ErrReportNotFound is returned when the requested run has not been
// persisted.
var ErrReportNotFound = errors.New("pipeline: report not found")

// DefaultHistoryLimit is how many run reports a Repository keeps.
const DefaultHistoryLimit = 20

// ReportStore persists run reports.
type ReportStore interface {
	Save(Report) error
	Latest() (Report, error)
}

// RunSummary is the listing entry for one stored run.
type RunSummary struct {
	RunID        string
	HealthyGroup int
	Groups       int
	Failed       int
	Report       Report
}

// RepositoryOption customizes a Repository.
type RepositoryOption func(*Repository)

// WithHistoryLimit caps the number of stored runs; the oldest are pruned on
// Save. A limit below one keeps every run.
func WithHistoryLimit(n int) RepositoryOption {
	return func(r *Repository) {
		r.limit = n
	}
}

// Repository keeps one JSON report per run under <state>/runs, named by run
// id.
type Repository struct {
	dir   string
	limit int
}

// NewRepository creates a repository rooted at stateDir.
func NewRepository(stateDir string, opts ...RepositoryOption) *Repository {
	r := &Repository{dir: filepath.Join(stateDir, "runs"), limit: DefaultHistoryLimit}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// Dir returns the directory holding the run reports.
func (r *Repository) Dir() string {
	return r.dir
}

func (r *Repository) path(runID string) (string, error) {
	if _, err := uuid.Parse(runID); err != nil {
		return "", fmt.Errorf("pipeline: invalid run id %q", runID)
	}
	return filepath.Join(r.dir, runID+".json"), nil
}

// Save writes the report under its run id, then prunes runs beyond the
// history limit.
func (r *Repository) Save(report Report) error {
	path, err := r.path(report.RunID)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return err
	}
	encoded, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, append(encoded, '\n'), 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		return err
	}
	return r.prune()
}

// Load reads one run. Group errors come back as their Error strings only.
func (r *Repository) Load(runID string) (Report, error) {
	path, err := r.path(runID)
	if err != nil {
		return Report{}, err
	}
	return readReport(path)
}

// Latest returns the most recently started run.
func (r *Repository) Latest() (Report, error) {
	runs, err := r.List()
	if err != nil {
		return Report{}, err
	}
	if len(runs) == 0 {
		return Report{}, ErrReportNotFound
	}
	return runs[0].Report, nil
}

// List returns every stored run, newest first. Unreadable files are skipped.
func (r *Repository) List() ([]RunSummary, error) {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var runs []RunSummary
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		report, err := readReport(filepath.Join(r.dir, name))
		if err != nil {
			continue
		}
		runs = append(runs, RunSummary{
			RunID:        report.RunID,
			HealthyGroup: int(report.HealthyGroup),
			Groups:       len(report.Groups),
			Failed:       len(report.Failed()),
			Report:       report,
		})
	}
	sort.SliceStable(runs, func(i, j int) bool {
		return runs[i].Report.StartedAt.After(runs[j].Report.StartedAt)
	})
	return runs, nil
}

func (r *Repository) prune() error {
	if r.limit < 1 {
		return nil
	}
	runs, err := r.List()
	if err != nil {
		return err
	}
	var errs []error
	for _, run := range runs[min(len(runs), r.limit):] {
		path, err := r.path(run.RunID)
		if err != nil {
			continue
		}
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func readReport(path string) (Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Report{}, ErrReportNotFound
		}
		return Report{}, err
	}
	var report Report
	if err := json.Unmarshal(data, &report); err != nil {
		return Report{}, fmt.Errorf("pipeline: decode %s: %w", filepath.Base(path), err)
	}
	return report, nil
}
