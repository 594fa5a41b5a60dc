package shape

// StripPointData removes every per-point attribute array.
func (m *Mesh) StripPointData() {
	m.PointData = nil
}

// PointArray returns the named point-data array.
func (m *Mesh) PointArray(name string) (Array, bool) {
	for _, arr := range m.PointData {
		if arr.Name == name {
			return arr, true
		}
	}
	return Array{}, false
}

// SetConstantScalars attaches a one-component scalar array holding value at
// every point. An existing array of the same name is replaced. The new array
// is placed first so viewers pick it as the active scalars.
func (m *Mesh) SetConstantScalars(name string, value float64) {
	values := make([]float64, m.NumPoints())
	for i := range values {
		values[i] = value
	}
	kept := make([]Array, 0, len(m.PointData)+1)
	kept = append(kept, Array{Name: name, Kind: KindScalars, Type: "int", Components: 1, Values: values})
	for _, arr := range m.PointData {
		if arr.Name != name {
			kept = append(kept, arr)
		}
	}
	m.PointData = kept
}
