package pipeline

import (
	"errors"
	"fmt"
	"time"

	"github.com/kingrea/diagindex/internal/groups"
)

// Stage enumerates the steps a group passes through.
type Stage string

const (
	StagePending     Stage = "pending"
	StageStripped    Stage = "attributes-stripped"
	StageStaged      Stage = "staged"
	StageModelBuilt  Stage = "model-built"
	StageMeanSampled Stage = "mean-sampled"
	StageMeanRenamed Stage = "mean-renamed"
	StageMeanIsSelf  Stage = "mean-is-self"
	StageCleanedUp   Stage = "cleaned-up"
	StageRecorded    Stage = "recorded"
)

// Status is the outcome of one group's run.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusSkipped   Status = "skipped"
)

// ShapeError reports a member that could not be stripped.
type ShapeError struct {
	Group groups.GroupID
	Path  string
	Err   error
}

func (e *ShapeError) Error() string {
	return fmt.Sprintf("pipeline: group %d: strip %s: %v", e.Group, e.Path, e.Err)
}

func (e *ShapeError) Unwrap() error { return e.Err }

// GroupResult records how far a group got and what it produced.
type GroupResult struct {
	Group   groups.GroupID `json:"group"`
	Members int            `json:"members"`
	Stages  []Stage        `json:"stages"`
	Status  Status         `json:"status"`
	Mean    string         `json:"mean,omitempty"`
	Error   string         `json:"error,omitempty"`
	// CleanupError is set when scratch artifacts could not all be removed.
	CleanupError string `json:"cleanup_error,omitempty"`

	err error
}

// Err returns the failure that stopped the group, if any.
func (r GroupResult) Err() error {
	return r.err
}

// Reached reports whether the group passed through stage.
func (r GroupResult) Reached(stage Stage) bool {
	for _, s := range r.Stages {
		if s == stage {
			return true
		}
	}
	return false
}

func (r *GroupResult) advance(stage Stage) {
	r.Stages = append(r.Stages, stage)
}

func (r *GroupResult) fail(err error) {
	r.Status = StatusFailed
	r.err = err
	r.Error = err.Error()
}

// Report summarizes a pipeline run.
type Report struct {
	RunID        string         `json:"run_id"`
	HealthyGroup groups.GroupID `json:"healthy_group,omitempty"`
	StartedAt    time.Time      `json:"started_at"`
	FinishedAt   time.Time      `json:"finished_at"`
	Groups       []GroupResult  `json:"groups"`
}

// Result returns the entry for group id.
func (r Report) Result(id groups.GroupID) (GroupResult, bool) {
	for _, res := range r.Groups {
		if res.Group == id {
			return res, true
		}
	}
	return GroupResult{}, false
}

// Failed returns the groups whose mean could not be computed.
func (r Report) Failed() []groups.GroupID {
	var ids []groups.GroupID
	for _, res := range r.Groups {
		if res.Status == StatusFailed {
			ids = append(ids, res.Group)
		}
	}
	return ids
}

// Err joins every group failure of the run.
func (r Report) Err() error {
	var errs []error
	for _, res := range r.Groups {
		if res.err != nil {
			errs = append(errs, res.err)
		}
	}
	return errors.Join(errs...)
}
