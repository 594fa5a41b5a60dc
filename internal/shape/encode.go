package shape

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
)

const valuesPerLine = 9

// Encode writes the mesh as legacy ASCII polydata.
func (m *Mesh) Encode(w io.Writer) error {
	if len(m.Points)%3 != 0 {
		return fmt.Errorf("point buffer length %d is not a multiple of 3", len(m.Points))
	}
	bw := bufio.NewWriter(w)
	title := m.Title
	if title == "" {
		title = "diagindex"
	}
	pointType := m.PointType
	if pointType == "" {
		pointType = "float"
	}
	fmt.Fprintln(bw, legacyVersionLine)
	fmt.Fprintln(bw, title)
	fmt.Fprintln(bw, "ASCII")
	fmt.Fprintln(bw, "DATASET POLYDATA")
	fmt.Fprintf(bw, "POINTS %d %s\n", m.NumPoints(), pointType)
	writeValues(bw, m.Points)
	for _, block := range m.Cells {
		fmt.Fprintf(bw, "%s %d %d\n", block.Keyword, block.Count, len(block.Data))
		writeCells(bw, block.Data)
	}
	if err := writeAttributes(bw, "CELL_DATA", m.NumCells(), m.CellData); err != nil {
		return err
	}
	if err := writeAttributes(bw, "POINT_DATA", m.NumPoints(), m.PointData); err != nil {
		return err
	}
	return bw.Flush()
}

func writeAttributes(w *bufio.Writer, section string, count int, arrays []Array) error {
	if len(arrays) == 0 {
		return nil
	}
	fmt.Fprintf(w, "%s %d\n", section, count)
	for _, arr := range arrays {
		typ := arr.Type
		if typ == "" {
			typ = "float"
		}
		switch arr.Kind {
		case KindScalars:
			if arr.Tuples() != count {
				return fmt.Errorf("%s array %q has %d tuples, want %d", section, arr.Name, arr.Tuples(), count)
			}
			fmt.Fprintf(w, "SCALARS %s %s %d\n", arr.Name, typ, arr.Components)
			fmt.Fprintln(w, "LOOKUP_TABLE default")
		case KindVectors, KindNormals:
			if arr.Components != 3 || arr.Tuples() != count {
				return fmt.Errorf("%s array %q is not a %d-tuple vector array", section, arr.Name, count)
			}
			fmt.Fprintf(w, "%s %s %s\n", arr.Kind, arr.Name, typ)
		default:
			fmt.Fprintln(w, "FIELD FieldData 1")
			fmt.Fprintf(w, "%s %d %d %s\n", arr.Name, arr.Components, arr.Tuples(), typ)
		}
		writeValues(w, arr.Values)
	}
	return nil
}

func writeValues(w *bufio.Writer, values []float64) {
	for i, v := range values {
		w.WriteString(strconv.FormatFloat(v, 'g', -1, 64))
		if (i+1)%valuesPerLine == 0 || i == len(values)-1 {
			w.WriteByte('\n')
		} else {
			w.WriteByte(' ')
		}
	}
}

// writeCells keeps one cell per line: a vertex count followed by its indices.
func writeCells(w *bufio.Writer, data []int) {
	for i := 0; i < len(data); {
		n := data[i]
		end := i + n + 1
		if n < 0 || end > len(data) {
			end = len(data)
		}
		for j := i; j < end; j++ {
			if j > i {
				w.WriteByte(' ')
			}
			w.WriteString(strconv.Itoa(data[j]))
		}
		w.WriteByte('\n')
		i = end
	}
}
