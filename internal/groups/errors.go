package groups

import (
	"fmt"
	"strings"
)

// MissingFileError reports an input row whose shape file does not exist.
// Line is the 1-based line in the CSV file, header included.
type MissingFileError struct {
	Line int
	Path string
}

func (e *MissingFileError) Error() string {
	return fmt.Sprintf("groups: shape file not found at line %d: %s", e.Line, e.Path)
}

// InvalidRowError reports a row that cannot be turned into a record.
type InvalidRowError struct {
	Line   int
	Reason string
}

func (e *InvalidRowError) Error() string {
	return fmt.Sprintf("groups: invalid row at line %d: %s", e.Line, e.Reason)
}

// DuplicateRecordError reports a path that is already in the table.
type DuplicateRecordError struct {
	Line  int
	Path  string
	Group GroupID
}

func (e *DuplicateRecordError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("groups: line %d: %s already belongs to group %d", e.Line, e.Path, e.Group)
	}
	return fmt.Sprintf("groups: %s already belongs to group %d", e.Path, e.Group)
}

// OverpopulatedGroupError is a warning raised when a table that should hold
// one file per group does not.
type OverpopulatedGroupError struct {
	Sizes map[GroupID]int
}

// Groups returns the offending group ids in ascending order.
func (e *OverpopulatedGroupError) Groups() []GroupID {
	ids := make([]GroupID, 0, len(e.Sizes))
	for id := range e.Sizes {
		ids = append(ids, id)
	}
	sortIDs(ids)
	return ids
}

func (e *OverpopulatedGroupError) Error() string {
	parts := make([]string, 0, len(e.Sizes))
	for _, id := range e.Groups() {
		parts = append(parts, fmt.Sprintf("group %d has %d files", id, e.Sizes[id]))
	}
	return "groups: more than one file per group: " + strings.Join(parts, ", ")
}

// MembershipInconsistency reports a reassignment of a file no group holds.
type MembershipInconsistency struct {
	Path   string
	Target GroupID
}

func (e *MembershipInconsistency) Error() string {
	return fmt.Sprintf("groups: cannot move %s to group %d: file is not in any group", e.Path, e.Target)
}
