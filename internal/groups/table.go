// Package groups holds the group-membership model: which shape files belong
// to which numbered group, how the table is filled from CSV input and how it
// stays consistent when files move between groups.
package groups

import (
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
)

// GroupID identifies a group. Valid ids start at 1.
type GroupID int

func (id GroupID) String() string {
	return strconv.Itoa(int(id))
}

// Table maps group ids to ordered shape-file paths. Every path belongs to at
// most one group. The zero value is not usable; call NewTable.
type Table struct {
	groups map[GroupID][]string
	owner  map[string]GroupID
}

// NewTable returns an empty table.
func NewTable() *Table {
	return &Table{
		groups: map[GroupID][]string{},
		owner:  map[string]GroupID{},
	}
}

// Clone returns an independent copy.
func (t *Table) Clone() *Table {
	out := NewTable()
	for id, members := range t.groups {
		out.groups[id] = append([]string{}, members...)
	}
	for path, id := range t.owner {
		out.owner[path] = id
	}
	return out
}

// Add appends path to group id, creating the group if needed.
func (t *Table) Add(id GroupID, path string) error {
	if id < 1 {
		return fmt.Errorf("groups: invalid group id %d", id)
	}
	key := filepath.Clean(path)
	if current, ok := t.owner[key]; ok {
		return &DuplicateRecordError{Path: key, Group: current}
	}
	t.groups[id] = append(t.groups[id], key)
	t.owner[key] = id
	return nil
}

// IDs returns the group ids in ascending order, including emptied groups.
func (t *Table) IDs() []GroupID {
	ids := make([]GroupID, 0, len(t.groups))
	for id := range t.groups {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Members returns a copy of the paths in group id, in insertion order.
func (t *Table) Members(id GroupID) []string {
	return append([]string{}, t.groups[id]...)
}

// Has reports whether group id has an entry, even an empty one.
func (t *Table) Has(id GroupID) bool {
	_, ok := t.groups[id]
	return ok
}

// Len returns the number of group entries.
func (t *Table) Len() int {
	return len(t.groups)
}

// Count returns the total number of records across all groups.
func (t *Table) Count() int {
	return len(t.owner)
}

// MaxGroup returns the largest group id, or 0 for an empty table.
func (t *Table) MaxGroup() GroupID {
	var highest GroupID
	for id := range t.groups {
		if id > highest {
			highest = id
		}
	}
	return highest
}

// Owner returns the group that currently holds path.
func (t *Table) Owner(path string) (GroupID, bool) {
	id, ok := t.owner[filepath.Clean(path)]
	return id, ok
}

// Each calls fn for every record, by ascending group id then insertion order.
func (t *Table) Each(fn func(id GroupID, path string)) {
	for _, id := range t.IDs() {
		for _, path := range t.groups[id] {
			fn(id, path)
		}
	}
}

// Reassign moves path from its current group to newGroup, creating the
// destination if absent. A path that is in no group leaves the table
// untouched and yields *MembershipInconsistency.
func (t *Table) Reassign(path string, newGroup GroupID) error {
	if newGroup < 1 {
		return fmt.Errorf("groups: invalid group id %d", newGroup)
	}
	key := filepath.Clean(path)
	current, ok := t.owner[key]
	if !ok {
		return &MembershipInconsistency{Path: key, Target: newGroup}
	}
	if current == newGroup {
		return nil
	}
	members := t.groups[current]
	for i, member := range members {
		if member == key {
			t.groups[current] = append(members[:i:i], members[i+1:]...)
			break
		}
	}
	t.groups[newGroup] = append(t.groups[newGroup], key)
	t.owner[key] = newGroup
	return nil
}

// SeedFromMeans copies a per-group means table so new raw rows can be
// ingested on top of it. The result mixes singleton and multi-member groups.
func SeedFromMeans(means *Table) *Table {
	if means == nil {
		return NewTable()
	}
	return means.Clone()
}
