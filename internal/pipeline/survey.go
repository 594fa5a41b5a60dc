package pipeline

import (
	"gonum.org/v1/gonum/stat"

	"github.com/kingrea/diagindex/internal/groups"
	"github.com/kingrea/diagindex/internal/shape"
)

// GroupSurvey describes the point counts of a group's members. Model
// building assumes point correspondence, so members should agree.
type GroupSurvey struct {
	Group      groups.GroupID
	Members    int
	Loaded     int
	MeanPoints float64
	StdPoints  float64
	MinPoints  int
	MaxPoints  int
	Failures   []string
}

// Uniform reports whether every loaded member has the same point count.
func (s GroupSurvey) Uniform() bool {
	return s.Loaded > 0 && s.MinPoints == s.MaxPoints
}

// Survey loads every member of every group and summarizes point counts.
func Survey(table *groups.Table) []GroupSurvey {
	ids := table.IDs()
	out := make([]GroupSurvey, 0, len(ids))
	for _, id := range ids {
		members := table.Members(id)
		sv := GroupSurvey{Group: id, Members: len(members)}
		counts := make([]float64, 0, len(members))
		for _, path := range members {
			mesh, err := shape.Load(path)
			if err != nil {
				sv.Failures = append(sv.Failures, path)
				continue
			}
			n := mesh.NumPoints()
			if len(counts) == 0 || n < sv.MinPoints {
				sv.MinPoints = n
			}
			if n > sv.MaxPoints {
				sv.MaxPoints = n
			}
			counts = append(counts, float64(n))
		}
		sv.Loaded = len(counts)
		switch len(counts) {
		case 0:
		case 1:
			sv.MeanPoints = counts[0]
		default:
			sv.MeanPoints, sv.StdPoints = stat.MeanStdDev(counts, nil)
		}
		out = append(out, sv)
	}
	return out
}
