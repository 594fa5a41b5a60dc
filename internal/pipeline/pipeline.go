// Package pipeline computes one mean shape per group. Groups run one after
// another; each group strips its members, stages a file list, has the
// external tools build a model and sample its mean, then removes every
// staging artifact it created. A failing group never stops the others.
package pipeline

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kingrea/diagindex/internal/artifact"
	"github.com/kingrea/diagindex/internal/groups"
	"github.com/kingrea/diagindex/internal/logbook"
	"github.com/kingrea/diagindex/internal/logging"
	"github.com/kingrea/diagindex/internal/shape"
)

// Pipeline runs mean computations inside a scratch namespace.
type Pipeline struct {
	ns            *artifact.Namespace
	tool          ModelTool
	sampleOutputs []string
	logbook       *logbook.Logbook
	logger        *logging.Logger
	now           func() time.Time
}

// Option customizes the pipeline.
type Option func(*Pipeline)

// WithSampleOutputs lists every fixed-name file the sampler may leave in the
// namespace so cleanup can remove them.
func WithSampleOutputs(names ...string) Option {
	return func(p *Pipeline) {
		p.sampleOutputs = append([]string{}, names...)
	}
}

// WithLogbook reports group outcomes to the session journal.
func WithLogbook(lb *logbook.Logbook) Option {
	return func(p *Pipeline) {
		p.logbook = lb
	}
}

// WithLogger records diagnostic detail.
func WithLogger(logger *logging.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// WithClock overrides the clock used for report timestamps.
func WithClock(clock func() time.Time) Option {
	return func(p *Pipeline) {
		if clock != nil {
			p.now = clock
		}
	}
}

// New wires a pipeline to a namespace and modeling tool.
func New(ns *artifact.Namespace, tool ModelTool, opts ...Option) (*Pipeline, error) {
	if ns == nil {
		return nil, fmt.Errorf("pipeline: scratch namespace is required")
	}
	if tool == nil {
		return nil, fmt.Errorf("pipeline: model tool is required")
	}
	p := &Pipeline{
		ns:            ns,
		tool:          tool,
		sampleOutputs: []string{"mean.vtk"},
		now:           time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p, nil
}

// Run processes every group of table in ascending id order and returns the
// table of means that could be computed. Group failures are in the report;
// the returned error is only for conditions that stop the whole run.
func (p *Pipeline) Run(table *groups.Table, healthy groups.GroupID) (*groups.Table, Report, error) {
	report := Report{
		RunID:        uuid.NewString(),
		HealthyGroup: healthy,
		StartedAt:    p.now(),
	}
	if table == nil {
		return nil, report, fmt.Errorf("pipeline: group table is required")
	}
	if err := p.ns.Ensure(); err != nil {
		return nil, report, err
	}
	means := groups.NewTable()
	for _, id := range table.IDs() {
		res := p.runGroup(id, table.Members(id))
		if res.Status == StatusCompleted {
			if err := means.Add(id, res.Mean); err != nil {
				res.fail(err)
			}
		}
		p.journal(res)
		report.Groups = append(report.Groups, res)
	}
	report.FinishedAt = p.now()
	return means, report, nil
}

func (p *Pipeline) runGroup(id groups.GroupID, members []string) GroupResult {
	res := GroupResult{Group: id, Members: len(members), Stages: []Stage{StagePending}}
	if len(members) == 0 {
		res.Status = StatusSkipped
		return res
	}
	mean, cleanupErr := p.produceMean(id, members, &res)
	res.advance(StageCleanedUp)
	if cleanupErr != nil {
		res.CleanupError = cleanupErr.Error()
		p.logbook.Warn("Group %d: scratch cleanup incomplete: %v", id, cleanupErr)
	}
	if res.Status == StatusFailed {
		return res
	}
	res.Mean = mean
	res.advance(StageRecorded)
	res.Status = StatusCompleted
	return res
}

// produceMean drives one group up to its renamed mean. Failures are stored on
// res; the returned error only describes cleanup problems.
func (p *Pipeline) produceMean(id groups.GroupID, members []string, res *GroupResult) (mean string, cleanupErr error) {
	var staged []artifact.Ref
	defer func() {
		cleanupErr = p.cleanup(id, staged)
	}()

	meanRef := artifact.Mean(id)
	if err := p.ns.Remove(meanRef); err != nil {
		res.fail(err)
		return "", nil
	}

	if len(members) == 1 {
		if err := strip(members[0], meanRef.Path(p.ns)); err != nil {
			res.fail(&ShapeError{Group: id, Path: members[0], Err: err})
			return "", nil
		}
		res.advance(StageStripped)
		res.advance(StageMeanIsSelf)
		return meanRef.Path(p.ns), nil
	}

	stripped := make([]string, 0, len(members))
	for i, member := range members {
		ref := artifact.StrippedCopy(id, i, member)
		staged = append(staged, ref)
		if err := strip(member, ref.Path(p.ns)); err != nil {
			res.fail(&ShapeError{Group: id, Path: member, Err: err})
			return "", nil
		}
		stripped = append(stripped, ref.Path(p.ns))
	}
	res.advance(StageStripped)

	list := artifact.FileList(id)
	staged = append(staged, list)
	if err := os.WriteFile(list.Path(p.ns), []byte(strings.Join(stripped, "\n")+"\n"), 0o644); err != nil {
		res.fail(fmt.Errorf("pipeline: group %d: write file list: %w", id, err))
		return "", nil
	}
	res.advance(StageStaged)

	model := p.ns.Model(id)
	staged = append(staged, model)
	p.logbook.Info("Group %d: building model from %d shapes", id, len(members))
	if err := p.tool.BuildModel(list.Path(p.ns), model.Path(p.ns)); err != nil {
		res.fail(tagGroup(err, id))
		return "", nil
	}
	res.advance(StageModelBuilt)

	sampled, err := p.tool.SampleMean(model.Path(p.ns), p.ns.Root())
	if err != nil {
		res.fail(tagGroup(err, id))
		return "", nil
	}
	res.advance(StageMeanSampled)

	if err := os.Rename(sampled, meanRef.Path(p.ns)); err != nil {
		res.fail(fmt.Errorf("pipeline: group %d: rename %s: %w", id, sampled, err))
		return "", nil
	}
	res.advance(StageMeanRenamed)
	return meanRef.Path(p.ns), nil
}

func (p *Pipeline) cleanup(id groups.GroupID, staged []artifact.Ref) error {
	refs := append([]artifact.Ref{}, staged...)
	refs = append(refs, artifact.FileList(id), p.ns.Model(id))
	for _, name := range p.sampleOutputs {
		refs = append(refs, artifact.Sample(name))
	}
	var errs []error
	if err := p.ns.Remove(refs...); err != nil {
		errs = append(errs, err)
	}
	swept, err := p.ns.Sweep(id)
	if err != nil {
		errs = append(errs, err)
	}
	if len(swept) > 0 {
		p.logger.Scope("group "+id.String()).Printf("swept leftovers %v", swept)
	}
	return errors.Join(errs...)
}

func (p *Pipeline) journal(res GroupResult) {
	switch res.Status {
	case StatusCompleted:
		p.logbook.Info("Group %d: mean recorded (%d members) at %s", res.Group, res.Members, res.Mean)
	case StatusSkipped:
		p.logbook.Warn("Group %d: no members, skipped", res.Group)
	default:
		p.logbook.Error("Group %d: %s", res.Group, res.Error)
		p.logger.Scope("group "+res.Group.String()).Printf("failed: %s", res.Error)
	}
}

func strip(source, target string) error {
	mesh, err := shape.Load(source)
	if err != nil {
		return err
	}
	mesh.StripPointData()
	return shape.Save(target, mesh)
}

func tagGroup(err error, id groups.GroupID) error {
	var toolErr *ExternalToolError
	if errors.As(err, &toolErr) && toolErr.Group == 0 {
		toolErr.Group = id
		return err
	}
	if toolErr != nil {
		return err
	}
	return &ExternalToolError{Tool: "model tool", Group: id, Err: err}
}
