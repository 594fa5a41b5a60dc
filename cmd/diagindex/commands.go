package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/kingrea/diagindex/internal/config"
	"github.com/kingrea/diagindex/internal/export"
	"github.com/kingrea/diagindex/internal/groups"
	"github.com/kingrea/diagindex/internal/pipeline"
	"github.com/kingrea/diagindex/internal/session"
	"github.com/kingrea/diagindex/internal/tui"
)

func newInitCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the .diagindex directory and default config",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, args []string) error {
			project, err := opts.projectDir()
			if err != nil {
				return err
			}
			if err := config.InitProjectDir(project); err != nil {
				return err
			}
			fmt.Fprintf(opts.stdout, "Initialized %s\n", filepath.Join(project, config.ProjectDirName))
			return nil
		},
	}
}

func newCheckCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Load the inputs and report groups and point counts",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, args []string) error {
			sess, release, err := opts.openSession(false)
			if err != nil {
				return err
			}
			defer release()
			table := sess.Table()
			fmt.Fprintf(opts.stdout, "%d file(s) in %d group(s), max group %d\n", table.Count(), table.Len(), sess.MaxGroup())
			if sess.Mode() != session.ModeNew {
				if err := groups.ValidateSingleton(table); err != nil {
					fmt.Fprintf(opts.stdout, "Warning: %v\n", err)
				}
			}
			surveys, err := sess.Check()
			if err != nil {
				return err
			}
			for _, sv := range surveys {
				state := "uniform"
				if sv.Loaded > 0 && !sv.Uniform() {
					state = "MISMATCH"
				}
				fmt.Fprintf(opts.stdout, "group %d: %d file(s), points mean %.1f std %.1f [%s]\n",
					sv.Group, sv.Members, sv.MeanPoints, sv.StdPoints, state)
				for _, path := range sv.Failures {
					fmt.Fprintf(opts.stdout, "  unreadable: %s\n", path)
				}
			}
			return nil
		},
	}
}

func newPreviewCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "preview",
		Short: "Write group-decorated copies and a preview manifest",
		Long: `
Writes a copy of every input file carrying a "Groups" point-data array and a
manifest listing them. The scratch directory is kept so a viewer can open
the manifest; preview.viewer in config.yaml is launched automatically.
`,
		Args: cobra.NoArgs,
		RunE: func(c *cobra.Command, args []string) error {
			sess, release, err := opts.openSession(true)
			if err != nil {
				return err
			}
			defer release()
			res, err := sess.Preview()
			if err != nil {
				return err
			}
			for _, failure := range res.Failures {
				fmt.Fprintf(opts.stderr, "Skipped %s: %v\n", failure.Path, failure.Err)
			}
			for _, c := range res.Collisions {
				fmt.Fprintf(opts.stderr, "Warning: %s replaced the preview of %s\n", c.Path, c.Replaced)
			}
			fmt.Fprintf(opts.stdout, "Preview manifest: %s (%d file(s))\n", res.Manifest, len(res.Included))
			return nil
		},
	}
}

func newComputeCommand(opts *rootOptions) *cobra.Command {
	var (
		healthy int
		target  string
		yes     bool
	)
	cmd := &cobra.Command{
		Use:   "compute",
		Short: "Compute one mean shape per group",
		Long: `
Runs the external model builder and sampler for every group with more than
one file; single-file groups are their own mean. With --target the means are
exported; without it the scratch directory holding them is kept.
`,
		Args: cobra.NoArgs,
		RunE: func(c *cobra.Command, args []string) error {
			sess, release, err := opts.openSession(target == "")
			if err != nil {
				return err
			}
			defer release()
			if err := sess.SetHealthyGroup(groups.GroupID(healthy)); err != nil {
				return err
			}
			report, err := sess.Compute()
			if err != nil {
				return err
			}
			printReport(opts.stdout, report)
			if target == "" {
				fmt.Fprintf(opts.stdout, "Means kept in %s\n", sess.Namespace().Root())
				return report.Err()
			}
			res, err := sess.Export(target, newConfirmer(yes, opts.stdin, opts.stdout, stdinIsTerminal()))
			if err != nil {
				return err
			}
			printExport(opts.stdout, res)
			return report.Err()
		},
	}
	cmd.Flags().IntVar(&healthy, "healthy", 0, "healthy group id (1..max group)")
	cmd.Flags().StringVar(&target, "target", "", "directory to export the means to")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "overwrite existing files without asking")
	_ = cmd.MarkFlagRequired("healthy")
	return cmd
}

func newExportCommand(opts *rootOptions) *cobra.Command {
	var (
		target string
		yes    bool
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export an existing classification to a directory",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, args []string) error {
			sess, release, err := opts.openSession(false)
			if err != nil {
				return err
			}
			defer release()
			res, err := sess.Export(target, newConfirmer(yes, opts.stdin, opts.stdout, stdinIsTerminal()))
			if err != nil {
				return err
			}
			printExport(opts.stdout, res)
			return nil
		},
	}
	cmd.Flags().StringVar(&target, "target", "", "directory to export to")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "overwrite existing files without asking")
	_ = cmd.MarkFlagRequired("target")
	return cmd
}

func newHistoryCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "history",
		Short: "List the stored compute runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, args []string) error {
			project, err := opts.projectDir()
			if err != nil {
				return err
			}
			if err := config.InitProjectDir(project); err != nil {
				return err
			}
			cfg, err := config.NewConfig(project)
			if err != nil {
				return err
			}
			runs, err := pipeline.NewRepository(cfg.StateDir()).List()
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				fmt.Fprintln(opts.stdout, "No runs recorded")
				return nil
			}
			for _, run := range runs {
				fmt.Fprintf(opts.stdout, "%s  %s  healthy %d  %d group(s), %d failed\n",
					run.RunID, run.Report.StartedAt.Local().Format("2006-01-02 15:04:05"),
					run.HealthyGroup, run.Groups, run.Failed)
			}
			return nil
		},
	}
}

func newReviewCommand(opts *rootOptions) *cobra.Command {
	var target string
	cmd := &cobra.Command{
		Use:   "review",
		Short: "Review groups interactively",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, args []string) error {
			sess, release, err := opts.openSession(false)
			if err != nil {
				return err
			}
			defer release()
			app, err := tui.NewApp(sess, tui.WithExportTarget(target))
			if err != nil {
				return err
			}
			p := tea.NewProgram(app, tea.WithAltScreen())
			if _, err := p.Run(); err != nil {
				return fmt.Errorf("run review: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&target, "target", "", "directory the export key writes to")
	return cmd
}

// newConfirmer answers overwrite questions: --yes accepts, an interactive
// terminal is prompted once, anything else declines.
func newConfirmer(yes bool, in io.Reader, out io.Writer, interactive bool) export.Confirmer {
	return export.ConfirmFunc(func(paths []string) (bool, error) {
		if yes {
			return true, nil
		}
		fmt.Fprintln(out, "These files already exist:")
		for _, path := range paths {
			fmt.Fprintf(out, "  %s\n", path)
		}
		if !interactive {
			fmt.Fprintln(out, "Not overwriting without a terminal; pass --yes to force.")
			return false, nil
		}
		fmt.Fprint(out, "Overwrite? [y/N] ")
		answer, err := bufio.NewReader(in).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return false, err
		}
		switch strings.ToLower(strings.TrimSpace(answer)) {
		case "y", "yes":
			return true, nil
		}
		return false, nil
	})
}

func printReport(out io.Writer, report pipeline.Report) {
	fmt.Fprintf(out, "Run %s (healthy group %d)\n", report.RunID, report.HealthyGroup)
	for _, res := range report.Groups {
		switch res.Status {
		case pipeline.StatusCompleted:
			fmt.Fprintf(out, "  group %d: %s\n", res.Group, res.Mean)
		case pipeline.StatusSkipped:
			fmt.Fprintf(out, "  group %d: empty, skipped\n", res.Group)
		default:
			fmt.Fprintf(out, "  group %d: FAILED %s\n", res.Group, res.Error)
		}
	}
}

func printExport(out io.Writer, res export.Result) {
	for _, path := range res.Written {
		fmt.Fprintf(out, "Wrote %s\n", path)
	}
	for _, path := range res.InPlace {
		fmt.Fprintf(out, "Kept %s\n", path)
	}
	fmt.Fprintf(out, "Manifest %s\n", res.Manifest)
}
