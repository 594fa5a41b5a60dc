package groups

import "path/filepath"

// Selection flags which files are included in a preview. Files without an
// entry are not selected.
type Selection map[string]bool

// Set flags or clears a single file.
func (s Selection) Set(path string, on bool) {
	key := filepath.Clean(path)
	if on {
		s[key] = true
		return
	}
	delete(s, key)
}

// Selected reports whether path is flagged.
func (s Selection) Selected(path string) bool {
	return s[filepath.Clean(path)]
}

// SelectGroup flags or clears every current member of group id.
func (s Selection) SelectGroup(table *Table, id GroupID, on bool) {
	for _, path := range table.groups[id] {
		s.Set(path, on)
	}
}

// SelectAll flags every file in the table.
func (s Selection) SelectAll(table *Table) {
	table.Each(func(_ GroupID, path string) {
		s.Set(path, true)
	})
}

// GroupSelected reports whether group id is fully selected: it has members
// and every one of them is flagged.
func GroupSelected(table *Table, sel Selection, id GroupID) bool {
	members := table.groups[id]
	if len(members) == 0 {
		return false
	}
	for _, path := range members {
		if !sel[path] {
			return false
		}
	}
	return true
}

// SelectionAggregate evaluates GroupSelected for every group of the table.
func SelectionAggregate(table *Table, sel Selection) map[GroupID]bool {
	out := make(map[GroupID]bool, table.Len())
	for _, id := range table.IDs() {
		out[id] = GroupSelected(table, sel, id)
	}
	return out
}
