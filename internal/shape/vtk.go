// Package shape reads and writes legacy ASCII VTK polydata meshes and edits
// their per-point attribute arrays.
package shape

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

const legacyVersionLine = "# vtk DataFile Version 3.0"

// ErrBinaryUnsupported is returned for legacy files stored in BINARY mode.
var ErrBinaryUnsupported = errors.New("shape: binary VTK files are not supported")

// ArrayKind is the legacy attribute keyword an array was declared with.
type ArrayKind string

const (
	KindScalars ArrayKind = "SCALARS"
	KindVectors ArrayKind = "VECTORS"
	KindNormals ArrayKind = "NORMALS"
	KindField   ArrayKind = "FIELD"
)

// Array is one point or cell attribute array.
type Array struct {
	Name       string
	Kind       ArrayKind
	Type       string
	Components int
	Values     []float64
}

// Tuples returns the number of tuples stored in the array.
func (a Array) Tuples() int {
	if a.Components <= 0 {
		return 0
	}
	return len(a.Values) / a.Components
}

// CellBlock holds one topology section (VERTICES, LINES, POLYGONS or
// TRIANGLE_STRIPS) in its flattened legacy layout.
type CellBlock struct {
	Keyword string
	Count   int
	Data    []int
}

// Mesh is an in-memory polydata file.
type Mesh struct {
	Title     string
	PointType string
	Points    []float64
	Cells     []CellBlock
	PointData []Array
	CellData  []Array
}

// NumPoints returns the number of xyz points.
func (m *Mesh) NumPoints() int {
	return len(m.Points) / 3
}

// NumCells sums the cell counts of every topology section.
func (m *Mesh) NumCells() int {
	total := 0
	for _, block := range m.Cells {
		total += block.Count
	}
	return total
}

// Load reads a legacy VTK polydata file.
func Load(path string) (*Mesh, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("shape: read %s: %w", path, err)
	}
	mesh, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("shape: parse %s: %w", path, err)
	}
	return mesh, nil
}

// Save writes the mesh in legacy ASCII form, creating parent directories.
func Save(path string, mesh *Mesh) error {
	if mesh == nil {
		return fmt.Errorf("shape: nil mesh for %s", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := mesh.Encode(&buf); err != nil {
		return fmt.Errorf("shape: encode %s: %w", path, err)
	}
	return os.WriteFile(path, buf.Bytes(), 0o644)
}

// Parse decodes legacy ASCII VTK polydata.
func Parse(data []byte) (*Mesh, error) {
	lines := strings.SplitN(string(data), "\n", 4)
	if len(lines) < 4 {
		return nil, fmt.Errorf("truncated header")
	}
	if !strings.HasPrefix(strings.TrimSpace(lines[0]), "# vtk DataFile") {
		return nil, fmt.Errorf("missing vtk version line")
	}
	switch strings.ToUpper(strings.TrimSpace(lines[2])) {
	case "ASCII":
	case "BINARY":
		return nil, ErrBinaryUnsupported
	default:
		return nil, fmt.Errorf("unknown file mode %q", strings.TrimSpace(lines[2]))
	}
	p := &parser{tokens: strings.Fields(lines[3])}
	mesh := &Mesh{Title: strings.TrimSpace(lines[1])}
	if err := p.run(mesh); err != nil {
		return nil, err
	}
	return mesh, nil
}

type parser struct {
	tokens []string
	pos    int
}

func (p *parser) done() bool { return p.pos >= len(p.tokens) }

func (p *parser) next() (string, error) {
	if p.done() {
		return "", fmt.Errorf("unexpected end of file")
	}
	tok := p.tokens[p.pos]
	p.pos++
	return tok, nil
}

func (p *parser) peek() string {
	if p.done() {
		return ""
	}
	return p.tokens[p.pos]
}

func (p *parser) nextInt() (int, error) {
	tok, err := p.next()
	if err != nil {
		return 0, err
	}
	v, err := strconv.Atoi(tok)
	if err != nil {
		return 0, fmt.Errorf("expected integer, got %q", tok)
	}
	return v, nil
}

// tuples reads count tuples of width values each. count comes from the file
// header, so it is checked against the remaining tokens before multiplying.
func (p *parser) tuples(count, width int) ([]float64, error) {
	if count < 0 || width < 1 || count > (len(p.tokens)-p.pos)/width {
		return nil, fmt.Errorf("expected %d tuples of %d values, file is truncated", count, width)
	}
	return p.floats(count * width)
}

func (p *parser) floats(n int) ([]float64, error) {
	if n < 0 || n > len(p.tokens)-p.pos {
		return nil, fmt.Errorf("expected %d values, file is truncated", n)
	}
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		v, err := strconv.ParseFloat(p.tokens[p.pos+i], 64)
		if err != nil {
			return nil, fmt.Errorf("invalid numeric value %q", p.tokens[p.pos+i])
		}
		out[i] = v
	}
	p.pos += n
	return out, nil
}

func (p *parser) ints(n int) ([]int, error) {
	if n < 0 || n > len(p.tokens)-p.pos {
		return nil, fmt.Errorf("expected %d indices, file is truncated", n)
	}
	out := make([]int, n)
	for i := 0; i < n; i++ {
		v, err := strconv.Atoi(p.tokens[p.pos+i])
		if err != nil {
			return nil, fmt.Errorf("invalid index %q", p.tokens[p.pos+i])
		}
		out[i] = v
	}
	p.pos += n
	return out, nil
}

func (p *parser) run(mesh *Mesh) error {
	var (
		target *[]Array
		count  int
	)
	for !p.done() {
		keyword, _ := p.next()
		switch strings.ToUpper(keyword) {
		case "DATASET":
			kind, err := p.next()
			if err != nil {
				return err
			}
			if strings.ToUpper(kind) != "POLYDATA" {
				return fmt.Errorf("unsupported dataset %s", kind)
			}
		case "POINTS":
			n, err := p.nextInt()
			if err != nil {
				return err
			}
			if mesh.PointType, err = p.next(); err != nil {
				return err
			}
			if mesh.Points, err = p.tuples(n, 3); err != nil {
				return err
			}
		case "VERTICES", "LINES", "POLYGONS", "TRIANGLE_STRIPS":
			n, err := p.nextInt()
			if err != nil {
				return err
			}
			size, err := p.nextInt()
			if err != nil {
				return err
			}
			data, err := p.ints(size)
			if err != nil {
				return err
			}
			mesh.Cells = append(mesh.Cells, CellBlock{Keyword: strings.ToUpper(keyword), Count: n, Data: data})
		case "POINT_DATA", "CELL_DATA":
			n, err := p.nextInt()
			if err != nil {
				return err
			}
			count = n
			if strings.ToUpper(keyword) == "POINT_DATA" {
				target = &mesh.PointData
			} else {
				target = &mesh.CellData
			}
		case "SCALARS", "VECTORS", "NORMALS", "FIELD":
			if target == nil {
				return fmt.Errorf("%s outside of POINT_DATA or CELL_DATA", keyword)
			}
			arrays, err := p.attribute(ArrayKind(strings.ToUpper(keyword)), count)
			if err != nil {
				return err
			}
			*target = append(*target, arrays...)
		case "METADATA":
			p.skipMetadata()
		default:
			return fmt.Errorf("unsupported keyword %q", keyword)
		}
	}
	if mesh.PointType == "" {
		return fmt.Errorf("no POINTS section")
	}
	return nil
}

func (p *parser) attribute(kind ArrayKind, count int) ([]Array, error) {
	name, err := p.next()
	if err != nil {
		return nil, err
	}
	switch kind {
	case KindScalars:
		typ, err := p.next()
		if err != nil {
			return nil, err
		}
		// numComp is optional and always followed by LOOKUP_TABLE; a bare
		// integer is the first data value of a block without a lookup table.
		comps := 1
		if n, convErr := strconv.Atoi(p.peek()); convErr == nil && n >= 1 && n <= 4 &&
			p.pos+1 < len(p.tokens) && strings.EqualFold(p.tokens[p.pos+1], "LOOKUP_TABLE") {
			comps = n
			p.pos++
		}
		if strings.EqualFold(p.peek(), "LOOKUP_TABLE") {
			p.pos += 2
		}
		values, err := p.tuples(count, comps)
		if err != nil {
			return nil, err
		}
		return []Array{{Name: name, Kind: kind, Type: typ, Components: comps, Values: values}}, nil
	case KindVectors, KindNormals:
		typ, err := p.next()
		if err != nil {
			return nil, err
		}
		values, err := p.tuples(count, 3)
		if err != nil {
			return nil, err
		}
		return []Array{{Name: name, Kind: kind, Type: typ, Components: 3, Values: values}}, nil
	default:
		n, err := p.nextInt()
		if err != nil {
			return nil, err
		}
		if n < 0 || n > len(p.tokens)-p.pos {
			return nil, fmt.Errorf("field %s declares %d arrays, file is truncated", name, n)
		}
		out := make([]Array, 0, n)
		for i := 0; i < n; i++ {
			arrName, err := p.next()
			if err != nil {
				return nil, err
			}
			comps, err := p.nextInt()
			if err != nil {
				return nil, err
			}
			tuples, err := p.nextInt()
			if err != nil {
				return nil, err
			}
			typ, err := p.next()
			if err != nil {
				return nil, err
			}
			values, err := p.tuples(tuples, comps)
			if err != nil {
				return nil, err
			}
			out = append(out, Array{Name: arrName, Kind: KindField, Type: typ, Components: comps, Values: values})
		}
		return out, nil
	}
}

// skipMetadata drops INFORMATION blocks written by newer VTK releases. They
// end at the next section keyword.
func (p *parser) skipMetadata() {
	for !p.done() {
		switch strings.ToUpper(p.peek()) {
		case "POINTS", "VERTICES", "LINES", "POLYGONS", "TRIANGLE_STRIPS",
			"POINT_DATA", "CELL_DATA", "SCALARS", "VECTORS", "NORMALS", "FIELD":
			return
		}
		p.pos++
	}
}
