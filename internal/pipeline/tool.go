package pipeline

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/kingrea/diagindex/internal/groups"
	"github.com/kingrea/diagindex/internal/logging"
)

// ModelTool is the external statistical shape-modeling capability. Both calls
// block until the underlying work is finished.
type ModelTool interface {
	// BuildModel reads the stripped shapes listed in fileList and writes a
	// model to modelPath.
	BuildModel(fileList, modelPath string) error
	// SampleMean writes the model's mean into outputDir and returns the path
	// of the fixed-name mean file.
	SampleMean(modelPath, outputDir string) (string, error)
}

// ExternalToolError reports a tool that could not start, exited with failure
// or did not produce its expected output.
type ExternalToolError struct {
	Tool   string
	Stage  Stage
	Group  groups.GroupID
	Output string
	Err    error
}

func (e *ExternalToolError) Error() string {
	msg := fmt.Sprintf("pipeline: %s failed", e.Tool)
	if e.Group > 0 {
		msg = fmt.Sprintf("pipeline: group %d: %s failed", e.Group, e.Tool)
	}
	if e.Stage != "" {
		msg += fmt.Sprintf(" during %s", e.Stage)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ExternalToolError) Unwrap() error { return e.Err }

// CommandRunner overrides the external command executor.
type CommandRunner func(dir, name string, args ...string) ([]byte, error)

// ExecTool runs the model builder and sampler as blocking processes.
//
//	<build>  --data-list <list> --output-file <model>
//	<sample> <model> <output dir>
type ExecTool struct {
	build        string
	sample       string
	sampleOutput string
	runCmd       CommandRunner
	logger       *logging.Logger
}

// ExecOption customizes an ExecTool.
type ExecOption func(*ExecTool)

// WithCommandRunner swaps the external command executor.
func WithCommandRunner(runner CommandRunner) ExecOption {
	return func(t *ExecTool) {
		if runner != nil {
			t.runCmd = runner
		}
	}
}

// WithToolLogger records every invocation and its combined output.
func WithToolLogger(logger *logging.Logger) ExecOption {
	return func(t *ExecTool) {
		t.logger = logger
	}
}

// NewExecTool builds a tool that runs the given commands. sampleOutput is the
// fixed file name the sampler writes its mean to.
func NewExecTool(build, sample, sampleOutput string, opts ...ExecOption) *ExecTool {
	tool := &ExecTool{
		build:        build,
		sample:       sample,
		sampleOutput: sampleOutput,
		runCmd:       defaultCommandRunner,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(tool)
		}
	}
	return tool
}

// BuildModel implements ModelTool.
func (t *ExecTool) BuildModel(fileList, modelPath string) error {
	out, err := t.invoke(StageModelBuilt, filepath.Dir(modelPath), t.build, "--data-list", fileList, "--output-file", modelPath)
	if err != nil {
		return err
	}
	if err := expectFile(modelPath); err != nil {
		return &ExternalToolError{Tool: t.build, Stage: StageModelBuilt, Output: out, Err: err}
	}
	return nil
}

// SampleMean implements ModelTool.
func (t *ExecTool) SampleMean(modelPath, outputDir string) (string, error) {
	out, err := t.invoke(StageMeanSampled, outputDir, t.sample, modelPath, outputDir)
	if err != nil {
		return "", err
	}
	mean := filepath.Join(outputDir, t.sampleOutput)
	if err := expectFile(mean); err != nil {
		return "", &ExternalToolError{Tool: t.sample, Stage: StageMeanSampled, Output: out, Err: err}
	}
	return mean, nil
}

func (t *ExecTool) invoke(stage Stage, dir, name string, args ...string) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", &ExternalToolError{Tool: "<unset>", Stage: stage, Err: errors.New("no command configured")}
	}
	log := t.logger.Scope(string(stage))
	log.Printf("exec: %s %s", name, strings.Join(args, " "))
	raw, err := t.runCmd(dir, name, args...)
	log.Output(filepath.Base(name), raw)
	out := strings.TrimSpace(string(raw))
	if err != nil {
		return out, &ExternalToolError{Tool: name, Stage: stage, Output: out, Err: err}
	}
	return out, nil
}

func expectFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("expected output %s was not written", path)
		}
		return err
	}
	if info.IsDir() {
		return fmt.Errorf("expected output %s is a directory", path)
	}
	return nil
}

func defaultCommandRunner(dir, name string, args ...string) ([]byte, error) {
	cmd := exec.Command(name, args...)
	cmd.Dir = dir
	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf
	err := cmd.Run()
	return buf.Bytes(), err
}
