package session

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/kingrea/diagindex/internal/config"
	"github.com/kingrea/diagindex/internal/export"
	"github.com/kingrea/diagindex/internal/groups"
	"github.com/kingrea/diagindex/internal/pipeline"
	"github.com/kingrea/diagindex/internal/shape"
	"github.com/kingrea/diagindex/internal/shape/shapetest"
)

type countingTool struct {
	builds int
}

func (c *countingTool) BuildModel(_, modelPath string) error {
	c.builds++
	return os.WriteFile(modelPath, []byte("model"), 0o644)
}

func (c *countingTool) SampleMean(_, outputDir string) (string, error) {
	mean := filepath.Join(outputDir, "mean.vtk")
	return mean, shape.Save(mean, shapetest.Triangle(9))
}

func newSession(t *testing.T, opts ...Option) (*Session, string) {
	t.Helper()
	project := t.TempDir()
	if err := config.InitProjectDir(project); err != nil {
		t.Fatalf("init project: %v", err)
	}
	cfg, err := config.NewConfig(project)
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	s, err := New(cfg, opts...)
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	return s, project
}

// writeInput writes shapes named in rows ("name,group") plus the CSV itself.
func writeInput(t *testing.T, dir, csvName string, rows ...string) string {
	t.Helper()
	lines := []string{"VTK Files,Group"}
	for i, row := range rows {
		name := strings.SplitN(row, ",", 2)[0]
		shapetest.WriteTriangle(t, dir, name, float64(i))
		lines = append(lines, row)
	}
	path := filepath.Join(dir, csvName)
	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func journal(t *testing.T, s *Session) string {
	t.Helper()
	lines, _ := s.Logbook().Tail(50)
	return strings.Join(lines, "\n")
}

func TestComputeAndExportNewClassification(t *testing.T) {
	tool := &countingTool{}
	s, _ := newSession(t, WithModelTool(tool))
	data := t.TempDir()
	input := writeInput(t, data, "input.csv", "a.vtk,1", "b.vtk,1", "c.vtk,2")
	if err := s.LoadNew(input); err != nil {
		t.Fatalf("load: %v", err)
	}
	if s.MaxGroup() != 2 || s.Mode() != ModeNew {
		t.Fatalf("unexpected session state: max=%d mode=%s", s.MaxGroup(), s.Mode())
	}
	if !s.GroupSelected(1) || !s.GroupSelected(2) {
		t.Fatalf("loaded files should start selected")
	}
	if err := s.SetHealthyGroup(2); err != nil {
		t.Fatalf("set healthy: %v", err)
	}
	report, err := s.Compute()
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if tool.builds != 1 {
		t.Fatalf("only the two-member group should build a model, got %d builds", tool.builds)
	}
	if report.HealthyGroup != 2 || len(report.Failed()) != 0 {
		t.Fatalf("unexpected report: %+v", report)
	}
	saved, err := pipeline.NewRepository(s.Config().StateDir()).Latest()
	if err != nil || saved.RunID != report.RunID {
		t.Fatalf("report not persisted: %v", err)
	}

	target := t.TempDir()
	res, err := s.Export(target, nil)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	want := []string{filepath.Join(target, "meanGroup1.vtk"), filepath.Join(target, "meanGroup2.vtk")}
	if diff := cmp.Diff(want, res.Written); diff != "" {
		t.Fatalf("written mismatch (-want +got):\n%s", diff)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := os.Stat(s.Namespace().Root()); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("scratch should be removed on close, stat err = %v", err)
	}
}

func TestComputePreconditionsRunNoTools(t *testing.T) {
	tool := &countingTool{}
	s, _ := newSession(t, WithModelTool(tool))
	if _, err := s.Compute(); !errors.Is(err, ErrEmptyTable) {
		t.Fatalf("expected ErrEmptyTable, got %v", err)
	}
	data := t.TempDir()
	if err := s.LoadNew(writeInput(t, data, "in.csv", "a.vtk,1", "b.vtk,1")); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Compute(); !errors.Is(err, ErrNoHealthyGroup) {
		t.Fatalf("expected ErrNoHealthyGroup, got %v", err)
	}
	if err := s.SetHealthyGroup(3); !errors.Is(err, ErrNoHealthyGroup) {
		t.Fatalf("healthy group beyond MaxGroup must be rejected, got %v", err)
	}
	if tool.builds != 0 {
		t.Fatalf("tools ran despite failed preconditions")
	}
	if _, err := s.Export(t.TempDir(), nil); !errors.Is(err, ErrNoMeans) {
		t.Fatalf("expected ErrNoMeans, got %v", err)
	}
}

func TestIncreaseSeedsFromExistingMeans(t *testing.T) {
	s, _ := newSession(t, WithModelTool(&countingTool{}))
	if err := s.Increase("missing.csv"); !errors.Is(err, ErrNoSeed) {
		t.Fatalf("expected ErrNoSeed, got %v", err)
	}
	data := t.TempDir()
	existing := writeInput(t, data, "existing.csv", "mean1.vtk,1", "mean2.vtk,2", "extra.vtk,2")
	if err := s.LoadExisting(existing); err != nil {
		t.Fatalf("load existing: %v", err)
	}
	if !strings.Contains(journal(t, s), "group 2 has 2 files") {
		t.Fatalf("overpopulated group should be journaled:\n%s", journal(t, s))
	}
	if s.Means() == nil || s.Means().Count() != 3 {
		t.Fatalf("existing table should double as means")
	}

	more := t.TempDir()
	raw := writeInput(t, more, "raw.csv", "n1.vtk,1", "n3.vtk,3")
	if err := s.Increase(raw); err != nil {
		t.Fatalf("increase: %v", err)
	}
	if s.Means() != nil {
		t.Fatalf("old means must be cleared after increase")
	}
	table := s.Table()
	if got := table.Members(1); len(got) != 2 || filepath.Base(got[0]) != "mean1.vtk" {
		t.Fatalf("group 1 should hold the seed mean then the new row, got %v", got)
	}
	if s.MaxGroup() != 3 || table.Count() != 5 {
		t.Fatalf("unexpected table after increase: max=%d count=%d", s.MaxGroup(), table.Count())
	}
}

func TestLoadStopsAtMissingFile(t *testing.T) {
	s, _ := newSession(t)
	data := t.TempDir()
	shapetest.WriteTriangle(t, data, "a.vtk", 0)
	input := filepath.Join(data, "in.csv")
	if err := os.WriteFile(input, []byte("VTK Files,Group\na.vtk,1\ngone.vtk,2\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	err := s.LoadNew(input)
	var missing *groups.MissingFileError
	if !errors.As(err, &missing) || missing.Line != 3 {
		t.Fatalf("expected MissingFileError on line 3, got %v", err)
	}
	if s.Table().Count() != 1 || s.MaxGroup() != 1 {
		t.Fatalf("rows before the missing file should stay loaded")
	}
}

func TestReassignStaysWithinBounds(t *testing.T) {
	s, _ := newSession(t)
	data := t.TempDir()
	if err := s.LoadNew(writeInput(t, data, "in.csv", "a.vtk,1", "b.vtk,2")); err != nil {
		t.Fatal(err)
	}
	a := filepath.Join(data, "a.vtk")
	if err := s.Reassign(a, 3); err == nil {
		t.Fatalf("expected out-of-range reassignment to fail")
	}
	if err := s.Reassign(a, 2); err != nil {
		t.Fatalf("reassign: %v", err)
	}
	if owner, _ := s.Table().Owner(a); owner != 2 {
		t.Fatalf("owner = %d, want 2", owner)
	}
	var inconsistency *groups.MembershipInconsistency
	if err := s.Reassign(filepath.Join(data, "nope.vtk"), 1); !errors.As(err, &inconsistency) {
		t.Fatalf("expected MembershipInconsistency, got %v", err)
	}
}

func TestPreviewLaunchesConfiguredViewer(t *testing.T) {
	var launched []string
	runner := func(_, name string, args ...string) ([]byte, error) {
		launched = append([]string{name}, args...)
		return nil, nil
	}
	s, _ := newSession(t, WithViewerRunner(runner))
	s.Config().Project.Preview.Viewer = "paraview"
	data := t.TempDir()
	if err := s.LoadNew(writeInput(t, data, "in.csv", "a.vtk,1", "b.vtk,2")); err != nil {
		t.Fatal(err)
	}
	s.SelectGroup(2, false)
	if s.GroupSelected(2) || !s.Selected(filepath.Join(data, "a.vtk")) {
		t.Fatalf("selection not applied")
	}
	res, err := s.Preview()
	if err != nil {
		t.Fatalf("preview: %v", err)
	}
	if len(res.Included) != 1 {
		t.Fatalf("only group 1 should be included, got %v", res.Included)
	}
	if diff := cmp.Diff([]string{"paraview", res.Manifest}, launched); diff != "" {
		t.Fatalf("viewer invocation mismatch:\n%s", diff)
	}
}

func TestExportDeclineReturnsConflict(t *testing.T) {
	s, _ := newSession(t)
	data := t.TempDir()
	if err := s.LoadExisting(writeInput(t, data, "existing.csv", "m1.vtk,1")); err != nil {
		t.Fatal(err)
	}
	target := t.TempDir()
	if err := os.WriteFile(filepath.Join(target, "m1.vtk"), []byte("keep"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := s.Export(target, export.ConfirmFunc(func([]string) (bool, error) { return false, nil }))
	var conflict *export.ExportConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected ExportConflictError, got %v", err)
	}
	data2, _ := os.ReadFile(filepath.Join(target, "m1.vtk"))
	if string(data2) != "keep" {
		t.Fatalf("declined export overwrote the target")
	}
}

func TestResetClearsState(t *testing.T) {
	s, _ := newSession(t)
	data := t.TempDir()
	if err := s.LoadExisting(writeInput(t, data, "e.csv", "m1.vtk,1")); err != nil {
		t.Fatal(err)
	}
	s.Reset()
	if s.Table() != nil || s.Means() != nil || s.MaxGroup() != 0 || s.Mode() != ModeNone {
		t.Fatalf("reset left state behind")
	}
}

func TestRunLeavesSessionUntilApplied(t *testing.T) {
	s, _ := newSession(t, WithModelTool(&countingTool{}))
	input := writeInput(t, t.TempDir(), "input.csv", "a.vtk,1", "b.vtk,1", "c.vtk,2")
	if err := s.LoadNew(input); err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := s.SetHealthyGroup(1); err != nil {
		t.Fatalf("set healthy: %v", err)
	}
	out, err := s.Run()
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if s.Means() != nil || s.LastReport() != nil {
		t.Fatalf("run must not change the session's means or report")
	}
	if out.Means == nil || out.Means.Len() != 2 {
		t.Fatalf("outcome should carry two means")
	}
	s.Apply(out)
	if s.Means() != out.Means {
		t.Fatalf("apply should install the outcome's means")
	}
	if r := s.LastReport(); r == nil || r.RunID != out.Report.RunID {
		t.Fatalf("apply should record the report")
	}
	if _, err := pipeline.NewRepository(s.Config().StateDir()).Load(out.Report.RunID); err != nil {
		t.Fatalf("apply should persist the report: %v", err)
	}
}
