// Package shapetest writes small polydata fixtures for tests.
package shapetest

import (
	"path/filepath"
	"testing"

	"github.com/kingrea/diagindex/internal/shape"
)

// Triangle returns a one-triangle mesh shifted by offset, carrying a
// "Thickness" point array so stripping can be observed.
func Triangle(offset float64) *shape.Mesh {
	return &shape.Mesh{
		Title:     "fixture",
		PointType: "float",
		Points: []float64{
			offset, 0, 0,
			offset + 1, 0, 0,
			offset, 1, 0,
		},
		Cells: []shape.CellBlock{{Keyword: "POLYGONS", Count: 1, Data: []int{3, 0, 1, 2}}},
		PointData: []shape.Array{{
			Name:       "Thickness",
			Kind:       shape.KindScalars,
			Type:       "float",
			Components: 1,
			Values:     []float64{0.5, 0.25, 0.125},
		}},
	}
}

// Write saves mesh as dir/name and returns the path.
func Write(t testing.TB, dir, name string, mesh *shape.Mesh) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := shape.Save(path, mesh); err != nil {
		t.Fatalf("write fixture %s: %v", path, err)
	}
	return path
}

// WriteTriangle saves Triangle(offset) as dir/name.
func WriteTriangle(t testing.TB, dir, name string, offset float64) string {
	t.Helper()
	return Write(t, dir, name, Triangle(offset))
}
