// Package session holds everything one classification session works on: the
// group table, preview selection, computed means and healthy group, plus the
// scratch namespace and journals they are processed with.
package session

import (
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"

	"github.com/kingrea/diagindex/internal/artifact"
	"github.com/kingrea/diagindex/internal/config"
	"github.com/kingrea/diagindex/internal/export"
	"github.com/kingrea/diagindex/internal/groups"
	"github.com/kingrea/diagindex/internal/logbook"
	"github.com/kingrea/diagindex/internal/logging"
	"github.com/kingrea/diagindex/internal/pipeline"
	"github.com/kingrea/diagindex/internal/preview"
)

var (
	// ErrNoSeed is returned by Increase before an existing classification
	// has been loaded.
	ErrNoSeed = errors.New("session: no existing classification loaded to increase")
	// ErrNoHealthyGroup is returned when no valid healthy group is chosen.
	ErrNoHealthyGroup = errors.New("session: no healthy group selected")
	// ErrEmptyTable is returned when an operation needs loaded files.
	ErrEmptyTable = errors.New("session: no shape files loaded")
	// ErrNoMeans is returned by Export before any means exist.
	ErrNoMeans = errors.New("session: no means computed")
)

// Mode records how the current table was loaded.
type Mode string

const (
	ModeNone     Mode = ""
	ModeExisting Mode = "existing"
	ModeNew      Mode = "new"
	ModeIncrease Mode = "increase"
)

// JournalName is the logbook file inside the project logs directory.
const JournalName = "session.log"

// Session is not safe for concurrent use.
type Session struct {
	cfg     *config.Config
	logger  *logging.Logger
	logbook *logbook.Logbook
	ns      *artifact.Namespace
	tool    pipeline.ModelTool
	viewer  pipeline.CommandRunner
	reports pipeline.ReportStore

	table    *groups.Table
	sel      groups.Selection
	means    *groups.Table
	healthy  groups.GroupID
	maxGroup groups.GroupID
	mode     Mode
	report   *pipeline.Report
}

// Option customizes a Session.
type Option func(*Session)

// WithModelTool replaces the external modeling tools.
func WithModelTool(tool pipeline.ModelTool) Option {
	return func(s *Session) {
		if tool != nil {
			s.tool = tool
		}
	}
}

// WithViewerRunner replaces how the preview viewer is launched.
func WithViewerRunner(runner pipeline.CommandRunner) Option {
	return func(s *Session) {
		if runner != nil {
			s.viewer = runner
		}
	}
}

// WithLogger records diagnostics.
func WithLogger(logger *logging.Logger) Option {
	return func(s *Session) {
		s.logger = logger
	}
}

// WithLogbook overrides the session journal.
func WithLogbook(lb *logbook.Logbook) Option {
	return func(s *Session) {
		if lb != nil {
			s.logbook = lb
		}
	}
}

// WithReportStore overrides where run reports are kept.
func WithReportStore(store pipeline.ReportStore) Option {
	return func(s *Session) {
		if store != nil {
			s.reports = store
		}
	}
}

// New prepares an empty session for cfg.
func New(cfg *config.Config, opts ...Option) (*Session, error) {
	if cfg == nil {
		return nil, errors.New("session: config is required")
	}
	s := &Session{
		cfg:     cfg,
		ns:      artifact.NewNamespace(cfg.ScratchDir, artifact.WithModelExtension(cfg.Project.Tools.ModelExtension)),
		reports: pipeline.NewRepository(cfg.StateDir()),
		viewer:  launchViewer,
		sel:     groups.Selection{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	if s.logbook == nil {
		lb, err := logbook.New(filepath.Join(cfg.LogsDir(), JournalName))
		if err != nil {
			return nil, fmt.Errorf("session: open journal: %w", err)
		}
		s.logbook = lb
	}
	if s.tool == nil {
		outputs := cfg.SampleOutputs()
		primary := "mean.vtk"
		if len(outputs) > 0 {
			primary = outputs[0]
		}
		s.tool = pipeline.NewExecTool(
			cfg.Project.Tools.BuildModel,
			cfg.Project.Tools.SampleMean,
			primary,
			pipeline.WithToolLogger(s.logger),
		)
	}
	return s, nil
}

// Config returns the session configuration.
func (s *Session) Config() *config.Config { return s.cfg }

// Logbook returns the session journal.
func (s *Session) Logbook() *logbook.Logbook { return s.logbook }

// Namespace returns the scratch namespace.
func (s *Session) Namespace() *artifact.Namespace { return s.ns }

// Table returns the current group table, or nil before anything is loaded.
func (s *Session) Table() *groups.Table { return s.table }

// Means returns the computed (or loaded) means, or nil.
func (s *Session) Means() *groups.Table { return s.means }

// Mode returns how the current table was loaded.
func (s *Session) Mode() Mode { return s.mode }

// HealthyGroup returns the chosen healthy group, 0 when unset.
func (s *Session) HealthyGroup() groups.GroupID { return s.healthy }

// MaxGroup bounds the healthy group and reassignment targets.
func (s *Session) MaxGroup() groups.GroupID { return s.maxGroup }

// LastReport returns the report of the latest Compute, if any.
func (s *Session) LastReport() *pipeline.Report { return s.report }

// LoadExisting loads a finished classification: one mean per group. The table
// doubles as the current means so it can be exported or increased directly.
// A group with several files is only a warning.
func (s *Session) LoadExisting(csvPath string) error {
	if err := s.load(csvPath, groups.NewTable(), ModeExisting); err != nil {
		return err
	}
	if err := groups.ValidateSingleton(s.table); err != nil {
		s.logbook.Warn("%v", err)
	}
	s.means = s.table.Clone()
	return nil
}

// LoadNew loads raw grouped shape data.
func (s *Session) LoadNew(csvPath string) error {
	return s.load(csvPath, groups.NewTable(), ModeNew)
}

// Increase adds raw rows on top of the means of a loaded classification.
// The old means are cleared; Compute produces new ones.
func (s *Session) Increase(csvPath string) error {
	if s.mode != ModeExisting || s.means == nil || s.means.Count() == 0 {
		return ErrNoSeed
	}
	seed := groups.SeedFromMeans(s.means)
	if err := s.load(csvPath, seed, ModeIncrease); err != nil {
		return err
	}
	s.means = nil
	return nil
}

func (s *Session) load(csvPath string, table *groups.Table, mode Mode) error {
	s.table = table
	s.mode = mode
	s.means = nil
	s.report = nil
	s.healthy = 0
	s.sel = groups.Selection{}

	rows, parseErr := groups.ReadCSV(csvPath)
	res, err := groups.Ingest(table, rows)
	s.maxGroup = table.MaxGroup()
	s.sel.SelectAll(table)
	if err == nil {
		err = parseErr
	}
	if err != nil {
		s.logbook.Error("Loading %s stopped: %v", filepath.Base(csvPath), err)
		return err
	}
	s.logbook.Info("Loaded %d file(s) into %d group(s) from %s (%s)", res.Added, table.Len(), filepath.Base(csvPath), mode)
	return nil
}

// SetHealthyGroup chooses the reference group, which must lie in [1, MaxGroup].
func (s *Session) SetHealthyGroup(id groups.GroupID) error {
	if id < 1 || id > s.maxGroup {
		return fmt.Errorf("%w: %d is outside 1..%d", ErrNoHealthyGroup, id, s.maxGroup)
	}
	s.healthy = id
	return nil
}

// Reassign moves a file to another group within [1, MaxGroup].
func (s *Session) Reassign(path string, target groups.GroupID) error {
	if s.table == nil {
		return ErrEmptyTable
	}
	if target < 1 || target > s.maxGroup {
		return fmt.Errorf("session: group %d is outside 1..%d", target, s.maxGroup)
	}
	from, _ := s.table.Owner(path)
	if err := s.table.Reassign(path, target); err != nil {
		s.logbook.Warn("%v", err)
		return err
	}
	if from != target {
		s.logbook.Info("Moved %s from group %d to group %d", filepath.Base(path), from, target)
	}
	return nil
}

// SetSelected flags a single file for preview.
func (s *Session) SetSelected(path string, on bool) {
	s.sel.Set(path, on)
}

// Selected reports whether a file is flagged for preview.
func (s *Session) Selected(path string) bool {
	return s.sel.Selected(path)
}

// SelectGroup flags or clears every member of a group.
func (s *Session) SelectGroup(id groups.GroupID, on bool) {
	if s.table == nil {
		return
	}
	s.sel.SelectGroup(s.table, id, on)
}

// GroupSelected reports whether every member of a non-empty group is flagged.
func (s *Session) GroupSelected(id groups.GroupID) bool {
	if s.table == nil {
		return false
	}
	return groups.GroupSelected(s.table, s.sel, id)
}

// Preview writes decorated copies and the manifest of selected files, then
// hands the manifest to the configured viewer, if any.
func (s *Session) Preview() (preview.Result, error) {
	if s.table == nil || s.table.Count() == 0 {
		return preview.Result{}, ErrEmptyTable
	}
	exp := preview.NewExporter(s.ns, s.cfg.Project.Preview.Attribute, preview.WithLogbook(s.logbook))
	res, err := exp.Export(s.table, s.sel)
	if err != nil {
		s.logbook.Error("Preview failed: %v", err)
		return res, err
	}
	s.logbook.Info("Preview manifest lists %d file(s): %s", len(res.Included), res.Manifest)
	viewer := s.cfg.Project.Preview.Viewer
	if viewer == "" {
		return res, nil
	}
	out, err := s.viewer(s.cfg.ProjectDir, viewer, res.Manifest)
	s.logger.Scope("viewer").Output(viewer, out)
	if err != nil {
		s.logbook.Error("Viewer %s failed: %v", viewer, err)
		return res, fmt.Errorf("session: launch viewer: %w", err)
	}
	return res, nil
}

// Check surveys point counts per group and journals groups whose members
// disagree.
func (s *Session) Check() ([]pipeline.GroupSurvey, error) {
	if s.table == nil || s.table.Count() == 0 {
		return nil, ErrEmptyTable
	}
	surveys := pipeline.Survey(s.table)
	for _, sv := range surveys {
		if len(sv.Failures) > 0 {
			s.logbook.Warn("Group %d: %d file(s) could not be read", sv.Group, len(sv.Failures))
		}
		if sv.Loaded > 1 && !sv.Uniform() {
			s.logbook.Warn("Group %d: point counts differ (%d..%d, mean %.1f, std %.1f)",
				sv.Group, sv.MinPoints, sv.MaxPoints, sv.MeanPoints, sv.StdPoints)
		}
	}
	return surveys, nil
}

// Outcome is a finished pipeline run that has not been applied to the
// session yet.
type Outcome struct {
	Means  *groups.Table
	Report pipeline.Report
}

// Compute runs the mean pipeline over the current table and applies the
// result. Means of groups that failed are absent; the report says why.
func (s *Session) Compute() (pipeline.Report, error) {
	out, err := s.Run()
	if err != nil {
		return out.Report, err
	}
	s.Apply(out)
	return out.Report, nil
}

// Run executes the mean pipeline without changing the session's means or
// report. It only reads the table, so callers may render the session while
// it runs as long as nothing reassigns files in the meantime.
func (s *Session) Run() (Outcome, error) {
	if s.table == nil || s.table.Count() == 0 {
		return Outcome{}, ErrEmptyTable
	}
	if s.healthy < 1 || s.healthy > s.maxGroup {
		return Outcome{}, ErrNoHealthyGroup
	}
	if _, err := s.Check(); err != nil {
		return Outcome{}, err
	}
	p, err := pipeline.New(s.ns, s.tool,
		pipeline.WithSampleOutputs(s.cfg.SampleOutputs()...),
		pipeline.WithLogbook(s.logbook),
		pipeline.WithLogger(s.logger),
	)
	if err != nil {
		return Outcome{}, err
	}
	s.logbook.Info("Computing means for %d group(s), healthy group %d", s.table.Len(), s.healthy)
	means, report, err := p.Run(s.table, s.healthy)
	if err != nil {
		s.logbook.Error("Pipeline stopped: %v", err)
		return Outcome{Report: report}, err
	}
	return Outcome{Means: means, Report: report}, nil
}

// Apply stores the means and report of a finished Run and persists the
// report.
func (s *Session) Apply(out Outcome) {
	s.means = out.Means
	report := out.Report
	s.report = &report
	if err := s.reports.Save(report); err != nil {
		s.logger.Printf("session: save run report: %v", err)
		s.logbook.Warn("Run report not saved: %v", err)
	}
	if failed := report.Failed(); len(failed) > 0 {
		s.logbook.Warn("Means missing for group(s) %v", failed)
	}
}

// PlanExport reports what Export would write to target and which of those
// files already exist.
func (s *Session) PlanExport(target string) (export.Plan, error) {
	if s.means == nil || s.means.Count() == 0 {
		return export.Plan{}, ErrNoMeans
	}
	return s.exporter().Plan(s.means, target)
}

// Export copies the current means to target, asking confirmer once before
// overwriting anything.
func (s *Session) Export(target string, confirmer export.Confirmer) (export.Result, error) {
	if s.means == nil || s.means.Count() == 0 {
		return export.Result{}, ErrNoMeans
	}
	res, err := s.exporter().Export(s.means, target, confirmer)
	if err != nil {
		var conflict *export.ExportConflictError
		if !errors.As(err, &conflict) {
			s.logbook.Error("Export failed: %v", err)
		}
		return res, err
	}
	return res, nil
}

func (s *Session) exporter() *export.Exporter {
	return export.NewExporter(
		export.WithManifestName(s.cfg.Project.Export.Manifest),
		export.WithLogbook(s.logbook),
	)
}

// Reset drops the table, means, selection and healthy group.
func (s *Session) Reset() {
	s.table = nil
	s.means = nil
	s.report = nil
	s.sel = groups.Selection{}
	s.healthy = 0
	s.maxGroup = 0
	s.mode = ModeNone
	s.logbook.Info("Session reset")
}

// Close removes the scratch namespace. Means that were not exported are lost.
func (s *Session) Close() error {
	if err := s.ns.Destroy(); err != nil {
		return fmt.Errorf("session: remove scratch: %w", err)
	}
	return nil
}

// launchViewer starts the viewer without waiting for it to exit.
func launchViewer(dir, name string, args ...string) ([]byte, error) {
	cmd := exec.Command(name, args...)
	cmd.Dir = dir
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	go cmd.Wait() //nolint:errcheck
	return nil, nil
}
