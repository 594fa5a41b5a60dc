package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kingrea/diagindex/internal/config"
	"github.com/kingrea/diagindex/internal/export"
	"github.com/kingrea/diagindex/internal/session"
	"github.com/kingrea/diagindex/internal/shape/shapetest"
)

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	root := newRootCommand(strings.NewReader(stdin), &out, &errOut)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func writeExisting(t *testing.T, dir string) string {
	t.Helper()
	shapetest.WriteTriangle(t, dir, "meanGroup1.vtk", 0)
	shapetest.WriteTriangle(t, dir, "meanGroup2.vtk", 1)
	path := filepath.Join(dir, "existing.csv")
	body := "VTK Files,Group\nmeanGroup1.vtk,1\nmeanGroup2.vtk,2\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestInitCreatesProjectDir(t *testing.T) {
	project := t.TempDir()
	out, err := execute(t, "", "init", "--project", project)
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	if !strings.Contains(out, config.ProjectDirName) {
		t.Fatalf("unexpected output %q", out)
	}
	if _, err := os.Stat(filepath.Join(project, config.ProjectDirName, "config.yaml")); err != nil {
		t.Fatalf("config.yaml missing: %v", err)
	}
}

func TestCheckReportsGroups(t *testing.T) {
	project, data := t.TempDir(), t.TempDir()
	existing := writeExisting(t, data)
	out, err := execute(t, "", "check", "--project", project, "--existing", existing)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	for _, want := range []string{"2 file(s) in 2 group(s)", "group 1: 1 file(s)", "[uniform]"} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}
}

func TestExportExistingClassification(t *testing.T) {
	project, data, target := t.TempDir(), t.TempDir(), t.TempDir()
	existing := writeExisting(t, data)
	out, err := execute(t, "", "export", "--project", project, "--existing", existing, "--target", target)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if !strings.Contains(out, filepath.Join(target, "classification.csv")) {
		t.Fatalf("manifest not reported:\n%s", out)
	}
	stateEntries, err := os.ReadDir(filepath.Join(project, config.ProjectDirName, "scratch"))
	if err != nil {
		t.Fatal(err)
	}
	if len(stateEntries) != 0 {
		t.Fatalf("export should remove its scratch namespace, found %d entries", len(stateEntries))
	}

	orig := stdinIsTerminal
	stdinIsTerminal = func() bool { return false }
	t.Cleanup(func() { stdinIsTerminal = orig })
	_, err = execute(t, "", "export", "--project", project, "--existing", existing, "--target", target)
	var conflict *export.ExportConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("second export without --yes should be declined, got %v", err)
	}
	if _, err := execute(t, "", "export", "--project", project, "--existing", existing, "--target", target, "--yes"); err != nil {
		t.Fatalf("export --yes: %v", err)
	}
}

func TestInputFlagRules(t *testing.T) {
	project, data := t.TempDir(), t.TempDir()
	existing := writeExisting(t, data)
	if _, err := execute(t, "", "check", "--project", project); err == nil {
		t.Fatalf("expected an error without input flags")
	}
	if _, err := execute(t, "", "check", "--project", project, "--existing", existing, "--new", existing); err == nil {
		t.Fatalf("--existing with --new should be rejected")
	}
	_, err := execute(t, "", "check", "--project", project, "--increase", existing)
	if !errors.Is(err, session.ErrNoSeed) {
		t.Fatalf("expected ErrNoSeed, got %v", err)
	}
}

func TestComputeRejectsHealthyGroupOutOfRange(t *testing.T) {
	project, data := t.TempDir(), t.TempDir()
	existing := writeExisting(t, data)
	_, err := execute(t, "", "compute", "--project", project, "--existing", existing, "--healthy", "5")
	if !errors.Is(err, session.ErrNoHealthyGroup) {
		t.Fatalf("expected ErrNoHealthyGroup, got %v", err)
	}
}

func TestConfirmer(t *testing.T) {
	paths := []string{"/out/meanGroup1.vtk"}
	var out bytes.Buffer
	cases := []struct {
		name        string
		yes         bool
		interactive bool
		input       string
		want        bool
	}{
		{name: "yes flag", yes: true, want: true},
		{name: "no terminal", input: "y\n", want: false},
		{name: "answer yes", interactive: true, input: "yes\n", want: true},
		{name: "answer default", interactive: true, input: "\n", want: false},
		{name: "eof", interactive: true, input: "", want: false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			out.Reset()
			got, err := newConfirmer(tc.yes, strings.NewReader(tc.input), &out, tc.interactive).ConfirmOverwrite(paths)
			if err != nil {
				t.Fatalf("confirm: %v", err)
			}
			if got != tc.want {
				t.Fatalf("confirm = %v, want %v (output %q)", got, tc.want, out.String())
			}
		})
	}
}

func TestExportIntoInputDirectoryKeepsMeans(t *testing.T) {
	project, data := t.TempDir(), t.TempDir()
	existing := writeExisting(t, data)
	mean := filepath.Join(data, "meanGroup1.vtk")
	before, err := os.ReadFile(mean)
	if err != nil {
		t.Fatal(err)
	}
	out, err := execute(t, "", "export", "--project", project, "--existing", existing, "--target", data, "--yes")
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if !strings.Contains(out, "Kept "+mean) {
		t.Fatalf("in-place mean not reported:\n%s", out)
	}
	after, err := os.ReadFile(mean)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(before, after) {
		t.Fatalf("mean changed from %d to %d bytes", len(before), len(after))
	}
}

func TestHistoryWithoutRuns(t *testing.T) {
	out, err := execute(t, "", "history", "--project", t.TempDir())
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if !strings.Contains(out, "No runs recorded") {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestHistoryListsComputeRuns(t *testing.T) {
	project, data := t.TempDir(), t.TempDir()
	existing := writeExisting(t, data)
	for i := 0; i < 2; i++ {
		if _, err := execute(t, "", "compute", "--project", project, "--existing", existing, "--healthy", "1"); err != nil {
			t.Fatalf("compute: %v", err)
		}
	}
	out, err := execute(t, "", "history", "--project", project)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if got := strings.Count(out, "healthy 1  2 group(s), 0 failed"); got != 2 {
		t.Fatalf("expected two runs listed, got %d:\n%s", got, out)
	}
}
