// internal/config/config.go
//
// This package handles configuration and the .diagindex directory structure.
// Every project that uses diagindex gets a .diagindex/ folder created in its root.

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

const (
	// ProjectDirName is the name of the directory we create in each project
	ProjectDirName = ".diagindex"

	defaultBuildModel      = "statismo-build-shape-model"
	defaultSampleMean      = "statismo-sample"
	defaultModelExtension  = ".h5"
	defaultAttribute       = "Groups"
	defaultExportManifest  = "classification.csv"
	defaultPrimarySample   = "mean.vtk"
	defaultSecondarySample = "mean.coef"
)

const defaultProjectConfigYAML = `# diagindex project configuration
version: 1

# External shape-modeling tools. The build tool is called as
#   <build_model> --data-list <file list> --output-file <model>
# and the sampling tool as
#   <sample_mean> <model> <output directory>
# The sampling tool writes fixed-name files; the first entry of
# sample_outputs is the mean shape.
tools:
  build_model: statismo-build-shape-model
  sample_mean: statismo-sample
  model_extension: .h5
  sample_outputs:
    - mean.vtk
    - mean.coef

preview:
  # Point-data array attached to decorated preview copies.
  attribute: Groups
  # Optional viewer launched with the preview manifest as its only argument.
  # viewer: paraview

export:
  manifest: classification.csv
`

// ToolsConfig names the external modeling commands.
type ToolsConfig struct {
	BuildModel     string   `yaml:"build_model"`
	SampleMean     string   `yaml:"sample_mean"`
	ModelExtension string   `yaml:"model_extension"`
	SampleOutputs  []string `yaml:"sample_outputs"`
}

// PreviewConfig controls decorated preview copies.
type PreviewConfig struct {
	Attribute string `yaml:"attribute"`
	Viewer    string `yaml:"viewer,omitempty"`
}

// ExportConfig controls the classification export.
type ExportConfig struct {
	Manifest string `yaml:"manifest"`
}

// ProjectConfig models .diagindex/config.yaml.
type ProjectConfig struct {
	Version int           `yaml:"version"`
	Tools   ToolsConfig   `yaml:"tools"`
	Preview PreviewConfig `yaml:"preview"`
	Export  ExportConfig  `yaml:"export"`
}

// Config holds the runtime configuration for diagindex.
type Config struct {
	// ProjectDir is the directory where the user ran `diagindex` from
	ProjectDir string

	// StateRoot is ProjectDir/.diagindex
	StateRoot string

	// ScratchDir is the per-session staging namespace. Every pipeline run of
	// the session shares it.
	ScratchDir string

	Project ProjectConfig
}

// InitProjectDir creates the .diagindex directory structure in the given project directory.
//
// Structure created:
// .diagindex/
// ├── logs/     <- diagnostics log and session journal
// ├── state/    <- last pipeline run report
// └── scratch/  <- one staging namespace per session
func InitProjectDir(projectDir string) error {
	root := filepath.Join(projectDir, ProjectDirName)
	dirs := []string{
		filepath.Join(root, "logs"),
		filepath.Join(root, "state"),
		filepath.Join(root, "scratch"),
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return ensureProjectConfig(filepath.Join(root, "config.yaml"))
}

// NewConfig creates a new Config instance populated with project settings.
// The scratch namespace path is reserved but not created.
func NewConfig(projectDir string) (*Config, error) {
	abs, err := filepath.Abs(projectDir)
	if err != nil {
		return nil, fmt.Errorf("config: resolve project dir: %w", err)
	}
	root := filepath.Join(abs, ProjectDirName)
	cfg := &Config{
		ProjectDir: abs,
		StateRoot:  root,
		ScratchDir: filepath.Join(root, "scratch", uuid.NewString()),
		Project:    defaultProjectConfig(),
	}
	if err := cfg.loadProjectConfig(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LogsDir returns the path to the logs directory
func (c *Config) LogsDir() string {
	return filepath.Join(c.StateRoot, "logs")
}

// StateDir returns the path to the state directory
func (c *Config) StateDir() string {
	return filepath.Join(c.StateRoot, "state")
}

// ProjectConfigPath returns the on-disk location for the project config file.
func (c *Config) ProjectConfigPath() string {
	return filepath.Join(c.StateRoot, "config.yaml")
}

// SampleOutputs returns the fixed file names written by the sampling tool.
func (c *Config) SampleOutputs() []string {
	return append([]string{}, c.Project.Tools.SampleOutputs...)
}

func (c *Config) loadProjectConfig() error {
	path := c.ProjectConfigPath()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("config: read %s: %w", path, err)
	}

	var parsed ProjectConfig
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}

	parsed.applyDefaults()
	parsed.normalize()
	if err := parsed.validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	c.Project = parsed
	return nil
}

func defaultProjectConfig() ProjectConfig {
	pc := ProjectConfig{}
	pc.applyDefaults()
	return pc
}

func (pc *ProjectConfig) applyDefaults() {
	if pc.Version == 0 {
		pc.Version = 1
	}
	if pc.Tools.BuildModel == "" {
		pc.Tools.BuildModel = defaultBuildModel
	}
	if pc.Tools.SampleMean == "" {
		pc.Tools.SampleMean = defaultSampleMean
	}
	if pc.Tools.ModelExtension == "" {
		pc.Tools.ModelExtension = defaultModelExtension
	}
	if len(pc.Tools.SampleOutputs) == 0 {
		pc.Tools.SampleOutputs = []string{defaultPrimarySample, defaultSecondarySample}
	}
	if pc.Preview.Attribute == "" {
		pc.Preview.Attribute = defaultAttribute
	}
	if pc.Export.Manifest == "" {
		pc.Export.Manifest = defaultExportManifest
	}
}

func (pc *ProjectConfig) normalize() {
	pc.Tools.BuildModel = strings.TrimSpace(pc.Tools.BuildModel)
	pc.Tools.SampleMean = strings.TrimSpace(pc.Tools.SampleMean)
	if ext := strings.TrimSpace(pc.Tools.ModelExtension); ext != "" && !strings.HasPrefix(ext, ".") {
		pc.Tools.ModelExtension = "." + ext
	}
	outputs := pc.Tools.SampleOutputs[:0]
	for _, name := range pc.Tools.SampleOutputs {
		if trimmed := strings.TrimSpace(name); trimmed != "" {
			outputs = append(outputs, trimmed)
		}
	}
	pc.Tools.SampleOutputs = outputs
	pc.Preview.Attribute = strings.TrimSpace(pc.Preview.Attribute)
	pc.Preview.Viewer = strings.TrimSpace(pc.Preview.Viewer)
	pc.Export.Manifest = strings.TrimSpace(pc.Export.Manifest)
}

func (pc ProjectConfig) validate() error {
	if pc.Version != 1 {
		return fmt.Errorf("unsupported config version %d", pc.Version)
	}
	if len(pc.Tools.SampleOutputs) == 0 {
		return fmt.Errorf("tools.sample_outputs must name at least one file")
	}
	for _, name := range pc.Tools.SampleOutputs {
		if filepath.Base(name) != name {
			return fmt.Errorf("tools.sample_outputs entry %q must be a bare file name", name)
		}
	}
	if strings.ContainsAny(pc.Preview.Attribute, " \t\n") {
		return fmt.Errorf("preview.attribute %q must not contain whitespace", pc.Preview.Attribute)
	}
	if filepath.Base(pc.Export.Manifest) != pc.Export.Manifest {
		return fmt.Errorf("export.manifest %q must be a bare file name", pc.Export.Manifest)
	}
	return nil
}

func ensureProjectConfig(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return os.WriteFile(path, []byte(defaultProjectConfigYAML), 0o644)
}
