// cmd/diagindex/main.go
//
// Entry point for the diagindex CLI. Every command works against a project
// directory (default: cwd) holding the .diagindex/ folder, loads its input
// CSVs into a session and then previews, computes or exports.

package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/kingrea/diagindex/internal/config"
	"github.com/kingrea/diagindex/internal/logging"
	"github.com/kingrea/diagindex/internal/session"
)

func main() {
	root := newRootCommand(os.Stdin, os.Stdout, os.Stderr)
	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// stdinIsTerminal reports whether overwrite prompts can be answered.
var stdinIsTerminal = func() bool {
	fd := os.Stdin.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

type rootOptions struct {
	project  string
	existing string
	newData  string
	increase string

	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
}

func newRootCommand(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	opts := &rootOptions{stdin: stdin, stdout: stdout, stderr: stderr}
	root := &cobra.Command{
		Use:   "diagindex",
		Short: "Classify shape files into groups and compute group means",
		Long: `
diagindex reads CSV files mapping VTK shape files to numbered groups, lets
you review and redistribute the groups, computes one mean shape per group
with an external statistical shape-modeling tool and exports the result.

Input CSVs have a header row followed by "path,group" rows:
  --existing  a finished classification, one mean per group
  --new       raw grouped shape files
  --increase  raw rows added on top of --existing
`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetIn(stdin)
	root.SetOut(stdout)
	root.SetErr(stderr)

	flags := root.PersistentFlags()
	flags.StringVar(&opts.project, "project", "", "project directory holding .diagindex (defaults to cwd)")
	flags.StringVar(&opts.existing, "existing", "", "CSV of an existing classification")
	flags.StringVar(&opts.newData, "new", "", "CSV of new grouped shape files")
	flags.StringVar(&opts.increase, "increase", "", "CSV of shape files to add to --existing")

	root.AddCommand(
		newInitCommand(opts),
		newCheckCommand(opts),
		newPreviewCommand(opts),
		newComputeCommand(opts),
		newExportCommand(opts),
		newReviewCommand(opts),
		newHistoryCommand(opts),
	)
	return root
}

func (o *rootOptions) projectDir() (string, error) {
	project := o.project
	if project == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("determine working directory: %w", err)
		}
		project = cwd
	}
	return filepath.Abs(project)
}

// openSession prepares the project directory, builds a session and loads the
// input flags. release closes the log and, unless keepScratch is set, removes
// the scratch namespace.
func (o *rootOptions) openSession(keepScratch bool) (sess *session.Session, release func(), err error) {
	project, err := o.projectDir()
	if err != nil {
		return nil, nil, err
	}
	if err := config.InitProjectDir(project); err != nil {
		return nil, nil, fmt.Errorf("init %s: %w", config.ProjectDirName, err)
	}
	cfg, err := config.NewConfig(project)
	if err != nil {
		return nil, nil, err
	}
	logger, err := logging.New(project)
	if err != nil {
		return nil, nil, err
	}
	sess, err = session.New(cfg, session.WithLogger(logger))
	if err != nil {
		logger.Close()
		return nil, nil, err
	}
	release = func() {
		if !keepScratch {
			if err := sess.Close(); err != nil {
				fmt.Fprintf(o.stderr, "Warning: %v\n", err)
			}
		}
		logger.Close()
	}
	if err := o.loadInputs(sess); err != nil {
		release()
		return nil, nil, err
	}
	return sess, release, nil
}

func (o *rootOptions) loadInputs(sess *session.Session) error {
	switch {
	case o.existing != "" && o.newData != "":
		return errors.New("--existing and --new cannot be combined; use --increase to add data")
	case o.increase != "" && o.existing == "":
		return session.ErrNoSeed
	case o.existing == "" && o.newData == "":
		return errors.New("no input: pass --existing, --new or --existing with --increase")
	}
	if o.existing != "" {
		if err := sess.LoadExisting(o.existing); err != nil {
			return err
		}
		if o.increase != "" {
			return sess.Increase(o.increase)
		}
		return nil
	}
	return sess.LoadNew(o.newData)
}
