package groups

import (
	"errors"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func touch(t *testing.T, dir string, names ...string) []string {
	t.Helper()
	paths := make([]string, len(names))
	for i, name := range names {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte("# vtk DataFile Version 3.0\n"), 0o644); err != nil {
			t.Fatal(err)
		}
		paths[i] = path
	}
	return paths
}

func writeCSV(t *testing.T, dir string, lines ...string) string {
	t.Helper()
	path := filepath.Join(dir, "groups.csv")
	body := "VTK Files,Group\n" + strings.Join(lines, "\n") + "\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func snapshot(table *Table) map[GroupID][]string {
	out := map[GroupID][]string{}
	for _, id := range table.IDs() {
		out[id] = table.Members(id)
	}
	return out
}

func TestIngestHaltsAtMissingFileAndKeepsEarlierRows(t *testing.T) {
	dir := t.TempDir()
	files := touch(t, dir, "a.vtk", "b.vtk", "d.vtk")
	csvPath := writeCSV(t, dir,
		"a.vtk,1",
		"b.vtk,2",
		"missing.vtk,1",
		"d.vtk,2",
	)
	rows, err := ReadCSV(csvPath)
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	table := NewTable()
	res, err := Ingest(table, rows)
	var missing *MissingFileError
	if !errors.As(err, &missing) {
		t.Fatalf("expected MissingFileError, got %v", err)
	}
	if missing.Line != 4 {
		t.Fatalf("missing line = %d, want 4", missing.Line)
	}
	if !strings.HasSuffix(missing.Path, "missing.vtk") {
		t.Fatalf("missing path = %s", missing.Path)
	}
	want := map[GroupID][]string{1: {files[0]}, 2: {files[1]}}
	if diff := cmp.Diff(want, snapshot(table)); diff != "" {
		t.Fatalf("partial table mismatch (-want +got):\n%s", diff)
	}
	if res.Added != 2 || res.MaxGroup != 2 {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestIngestBuildsGroupsInOrder(t *testing.T) {
	dir := t.TempDir()
	files := touch(t, dir, "a.vtk", "b.vtk", "c.vtk", "d.vtk")
	csvPath := writeCSV(t, dir,
		files[0]+",2",
		"b.vtk, 1",
		"",
		"c.vtk,2",
		"d.vtk,4",
	)
	rows, err := ReadCSV(csvPath)
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	table := NewTable()
	res, err := Ingest(table, rows)
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	want := map[GroupID][]string{
		1: {files[1]},
		2: {files[0], files[2]},
		4: {files[3]},
	}
	if diff := cmp.Diff(want, snapshot(table)); diff != "" {
		t.Fatalf("table mismatch (-want +got):\n%s", diff)
	}
	if res.MaxGroup != 4 || table.Count() != 4 {
		t.Fatalf("max=%d count=%d", res.MaxGroup, table.Count())
	}
}

func TestParseCSVRejectsInvalidRows(t *testing.T) {
	cases := map[string]struct {
		body string
		line int
	}{
		"non-integer": {body: "h,g\na.vtk,1\nb.vtk,two\n", line: 3},
		"zero":        {body: "h,g\na.vtk,0\n", line: 2},
		"short":       {body: "h,g\na.vtk,1\nb.vtk\n", line: 3},
		"empty path":  {body: "h,g\n ,1\n", line: 2},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseCSV(strings.NewReader(tc.body), "")
			var invalid *InvalidRowError
			if !errors.As(err, &invalid) {
				t.Fatalf("expected InvalidRowError, got %v", err)
			}
			if invalid.Line != tc.line {
				t.Fatalf("line = %d, want %d", invalid.Line, tc.line)
			}
		})
	}
}

func TestIngestRejectsDuplicatePath(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "a.vtk")
	csvPath := writeCSV(t, dir, "a.vtk,1", "./a.vtk,2")
	rows, err := ReadCSV(csvPath)
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	table := NewTable()
	_, err = Ingest(table, rows)
	var dup *DuplicateRecordError
	if !errors.As(err, &dup) {
		t.Fatalf("expected DuplicateRecordError, got %v", err)
	}
	if dup.Line != 3 || dup.Group != 1 {
		t.Fatalf("unexpected duplicate error %+v", dup)
	}
	if table.Count() != 1 {
		t.Fatalf("count = %d, want 1", table.Count())
	}
}

func TestValidateSingleton(t *testing.T) {
	table := NewTable()
	mustAdd(t, table, 1, "/data/mean1.vtk")
	mustAdd(t, table, 2, "/data/mean2.vtk")
	if err := ValidateSingleton(table); err != nil {
		t.Fatalf("expected no warning, got %v", err)
	}
	mustAdd(t, table, 2, "/data/extra.vtk")
	err := ValidateSingleton(table)
	var over *OverpopulatedGroupError
	if !errors.As(err, &over) {
		t.Fatalf("expected OverpopulatedGroupError, got %v", err)
	}
	if diff := cmp.Diff([]GroupID{2}, over.Groups()); diff != "" {
		t.Fatalf("groups mismatch:\n%s", diff)
	}
}

func TestReassignMovesFileToExactlyOneGroup(t *testing.T) {
	table := NewTable()
	mustAdd(t, table, 1, "/data/g1/jaw.vtk")
	mustAdd(t, table, 1, "/data/g1/other.vtk")
	mustAdd(t, table, 2, "/data/g2/jaw.vtk")

	if err := table.Reassign("/data/g1/jaw.vtk", 3); err != nil {
		t.Fatalf("reassign: %v", err)
	}
	want := map[GroupID][]string{
		1: {"/data/g1/other.vtk"},
		2: {"/data/g2/jaw.vtk"},
		3: {"/data/g1/jaw.vtk"},
	}
	if diff := cmp.Diff(want, snapshot(table)); diff != "" {
		t.Fatalf("table mismatch (-want +got):\n%s", diff)
	}
	if owner, ok := table.Owner("/data/g1/jaw.vtk"); !ok || owner != 3 {
		t.Fatalf("owner = %d, %v", owner, ok)
	}
}

func TestReassignUnknownFileIsInconsistency(t *testing.T) {
	table := NewTable()
	mustAdd(t, table, 1, "/data/a.vtk")
	before := snapshot(table)
	err := table.Reassign("/data/ghost.vtk", 1)
	var inconsistency *MembershipInconsistency
	if !errors.As(err, &inconsistency) {
		t.Fatalf("expected MembershipInconsistency, got %v", err)
	}
	if diff := cmp.Diff(before, snapshot(table)); diff != "" {
		t.Fatalf("table changed on inconsistency:\n%s", diff)
	}
}

func TestReassignSequencesConserveRecords(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	table := NewTable()
	var paths []string
	for i := 0; i < 30; i++ {
		path := filepath.Join("/data", "case", string(rune('a'+i%26))+strings.Repeat("x", i/26)+".vtk")
		paths = append(paths, path)
		mustAdd(t, table, GroupID(i%4+1), path)
	}
	total := table.Count()
	for step := 0; step < 500; step++ {
		path := paths[rng.Intn(len(paths))]
		target := GroupID(rng.Intn(6) + 1)
		if err := table.Reassign(path, target); err != nil {
			t.Fatalf("step %d: %v", step, err)
		}
		if owner, _ := table.Owner(path); owner != target {
			t.Fatalf("step %d: owner = %d, want %d", step, owner, target)
		}
		seen := map[string]int{}
		sum := 0
		for _, id := range table.IDs() {
			for _, member := range table.Members(id) {
				seen[member]++
				sum++
			}
		}
		if sum != total {
			t.Fatalf("step %d: %d records, want %d", step, sum, total)
		}
		if seen[path] != 1 {
			t.Fatalf("step %d: %s appears %d times", step, path, seen[path])
		}
	}
}

func TestSelectionAggregate(t *testing.T) {
	table := NewTable()
	mustAdd(t, table, 1, "/d/a.vtk")
	mustAdd(t, table, 1, "/d/b.vtk")
	mustAdd(t, table, 2, "/d/c.vtk")
	sel := Selection{}
	sel.Set("/d/a.vtk", true)
	sel.Set("/d/c.vtk", true)

	want := map[GroupID]bool{1: false, 2: true}
	if diff := cmp.Diff(want, SelectionAggregate(table, sel)); diff != "" {
		t.Fatalf("aggregate mismatch:\n%s", diff)
	}

	if err := table.Reassign("/d/b.vtk", 2); err != nil {
		t.Fatal(err)
	}
	want = map[GroupID]bool{1: true, 2: false}
	if diff := cmp.Diff(want, SelectionAggregate(table, sel)); diff != "" {
		t.Fatalf("aggregate after reassign mismatch:\n%s", diff)
	}

	if err := table.Reassign("/d/a.vtk", 2); err != nil {
		t.Fatal(err)
	}
	if GroupSelected(table, sel, 1) {
		t.Fatalf("empty group must not count as selected")
	}

	sel.SelectGroup(table, 2, true)
	if !GroupSelected(table, sel, 2) {
		t.Fatalf("SelectGroup should select every member")
	}
	sel.SelectGroup(table, 2, false)
	if len(sel) != 0 {
		t.Fatalf("clearing group 2 should clear every flag, got %v", sel)
	}
}

func TestSeedFromMeansIsIndependentCopy(t *testing.T) {
	means := NewTable()
	mustAdd(t, means, 1, "/means/meanGroup1.vtk")
	seed := SeedFromMeans(means)
	mustAdd(t, seed, 1, "/raw/new.vtk")
	if len(means.Members(1)) != 1 {
		t.Fatalf("seeding must not mutate the means table")
	}
	if len(seed.Members(1)) != 2 {
		t.Fatalf("seed should mix the mean and the new row")
	}
}

func mustAdd(t *testing.T, table *Table, id GroupID, path string) {
	t.Helper()
	if err := table.Add(id, path); err != nil {
		t.Fatalf("add %s: %v", path, err)
	}
}
