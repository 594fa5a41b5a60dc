package groups

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// Row is one data row of an input CSV.
type Row struct {
	Line  int
	Path  string
	Group GroupID
}

// IngestResult summarizes an ingestion pass.
type IngestResult struct {
	Added    int
	MaxGroup GroupID
}

// ReadCSV parses a `path,group` file with a header row. Relative shape paths
// are resolved against the CSV's directory.
func ReadCSV(path string) ([]Row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("groups: open %s: %w", path, err)
	}
	defer f.Close()
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("groups: resolve %s: %w", path, err)
	}
	return ParseCSV(f, filepath.Dir(abs))
}

// ParseCSV reads rows from r. baseDir anchors relative shape paths; an empty
// baseDir leaves them as written. Empty lines are not counted.
func ParseCSV(r io.Reader, baseDir string) ([]Row, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	reader.Comma = ','

	var rows []Row
	index := -1
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return rows, fmt.Errorf("groups: read csv: %w", err)
		}
		index++
		if index == 0 {
			continue
		}
		// Data row n (0-based, header excluded) sits on line n+2.
		line := index + 1
		if isBlank(record) {
			continue
		}
		if len(record) < 2 {
			return rows, &InvalidRowError{Line: line, Reason: "expected a shape path and a group id"}
		}
		shapePath := strings.TrimSpace(record[0])
		if shapePath == "" {
			return rows, &InvalidRowError{Line: line, Reason: "empty shape path"}
		}
		id, err := strconv.Atoi(strings.TrimSpace(record[1]))
		if err != nil {
			return rows, &InvalidRowError{Line: line, Reason: fmt.Sprintf("group id %q is not an integer", record[1])}
		}
		if id < 1 {
			return rows, &InvalidRowError{Line: line, Reason: fmt.Sprintf("group id %d must be 1 or greater", id)}
		}
		if baseDir != "" && !filepath.IsAbs(shapePath) {
			shapePath = filepath.Join(baseDir, shapePath)
		}
		rows = append(rows, Row{Line: line, Path: shapePath, Group: GroupID(id)})
	}
	return rows, nil
}

// Ingest appends rows to table in order. It stops at the first row whose file
// is missing or already present; earlier rows stay in the table.
func Ingest(table *Table, rows []Row) (IngestResult, error) {
	var res IngestResult
	for _, row := range rows {
		if _, err := os.Stat(row.Path); err != nil {
			res.MaxGroup = table.MaxGroup()
			return res, &MissingFileError{Line: row.Line, Path: row.Path}
		}
		if err := table.Add(row.Group, row.Path); err != nil {
			var dup *DuplicateRecordError
			if errors.As(err, &dup) {
				dup.Line = row.Line
			}
			res.MaxGroup = table.MaxGroup()
			return res, err
		}
		res.Added++
	}
	res.MaxGroup = table.MaxGroup()
	return res, nil
}

// ValidateSingleton reports every group holding more than one file. An
// existing classification is expected to carry exactly one mean per group.
func ValidateSingleton(table *Table) error {
	sizes := map[GroupID]int{}
	for _, id := range table.IDs() {
		if n := len(table.groups[id]); n > 1 {
			sizes[id] = n
		}
	}
	if len(sizes) == 0 {
		return nil
	}
	return &OverpopulatedGroupError{Sizes: sizes}
}

func isBlank(record []string) bool {
	for _, field := range record {
		if strings.TrimSpace(field) != "" {
			return false
		}
	}
	return true
}

func sortIDs(ids []GroupID) {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
}
