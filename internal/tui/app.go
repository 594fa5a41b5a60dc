// internal/tui/app.go
//
// The review screen for a classification session. Every loaded shape file is
// one table row; the user moves files between groups, picks what goes into
// the preview, then computes and exports the group means.
//
// Compute runs as a single tea.Cmd that only reads the session; its outcome
// is applied in Update once computeFinishedMsg arrives. Keys other than
// ctrl+c are ignored while it is in flight.

package tui

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/kingrea/diagindex/internal/export"
	"github.com/kingrea/diagindex/internal/groups"
	"github.com/kingrea/diagindex/internal/logbook"
	"github.com/kingrea/diagindex/internal/pipeline"
	"github.com/kingrea/diagindex/internal/session"
)

type appState int

const (
	stateBrowse           appState = iota // moving files, toggling selection
	stateComputing                        // pipeline running in the background
	stateConfirmOverwrite                 // waiting for y/n on export conflicts
)

const logTailLines = 6

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FF6B6B")).MarginBottom(1)
	infoStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#5B8DEF")).Bold(true)
	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888")).MarginTop(1)
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#F7B801")).Bold(true)
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF4D4D"))
	logStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#AAAAAA"))
	boxStyle    = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("#444444")).Padding(0, 1)
)

type computeFinishedMsg struct {
	outcome session.Outcome
	err     error
}

// AppOption customizes App construction.
type AppOption func(*App)

// WithExportTarget sets the directory the export key writes to.
func WithExportTarget(dir string) AppOption {
	return func(a *App) {
		a.target = strings.TrimSpace(dir)
	}
}

// App is the review model.
type App struct {
	session *session.Session
	keys    keyMap
	help    help.Model
	table   table.Model
	paths   []string

	state     appState
	target    string
	pending   []string
	statusMsg string

	width  int
	height int
}

// NewApp builds the review screen for a loaded session.
func NewApp(sess *session.Session, opts ...AppOption) (*App, error) {
	if sess == nil {
		return nil, errors.New("tui: session is required")
	}
	styles := table.DefaultStyles()
	styles.Header = styles.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("#444444")).
		BorderBottom(true).
		Bold(true)
	styles.Selected = styles.Selected.
		Foreground(lipgloss.Color("#FFFFFF")).
		Background(lipgloss.Color("#5B8DEF"))
	tbl := table.New(
		table.WithColumns([]table.Column{
			{Title: "File", Width: 40},
			{Title: "Group", Width: 7},
			{Title: "Preview", Width: 8},
		}),
		table.WithFocused(true),
		table.WithHeight(12),
		table.WithStyles(styles),
	)
	app := &App{
		session: sess,
		keys:    defaultKeyMap(),
		help:    help.New(),
		table:   tbl,
		state:   stateBrowse,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(app)
		}
	}
	app.refreshRows()
	return app, nil
}

// Init is called once when the program starts.
func (a *App) Init() tea.Cmd {
	return nil
}

// Update is called when a message is received.
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.help.Width = msg.Width
		a.table.SetHeight(max(3, msg.Height-(logTailLines+10)))
		return a, nil

	case computeFinishedMsg:
		a.state = stateBrowse
		a.handleComputeFinished(msg)
		return a, nil

	case tea.KeyMsg:
		if key.Matches(msg, a.keys.ForceQuit) {
			return a, tea.Quit
		}
		switch a.state {
		case stateComputing:
			return a, nil
		case stateConfirmOverwrite:
			return a.updateConfirm(msg)
		}
		return a.updateBrowse(msg)
	}
	return a, nil
}

func (a *App) updateBrowse(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, a.keys.Quit):
		return a, tea.Quit
	case key.Matches(msg, a.keys.Raise):
		a.shiftGroup(1)
	case key.Matches(msg, a.keys.Lower):
		a.shiftGroup(-1)
	case key.Matches(msg, a.keys.Toggle):
		if path, ok := a.currentPath(); ok {
			a.session.SetSelected(path, !a.session.Selected(path))
			a.refreshRows()
		}
	case key.Matches(msg, a.keys.ToggleGroup):
		if path, ok := a.currentPath(); ok {
			if id, found := a.session.Table().Owner(path); found {
				on := !a.session.GroupSelected(id)
				a.session.SelectGroup(id, on)
				a.refreshRows()
			}
		}
	case key.Matches(msg, a.keys.Healthy):
		a.cycleHealthy()
	case key.Matches(msg, a.keys.Preview):
		a.runPreview()
	case key.Matches(msg, a.keys.Compute):
		return a, a.startCompute()
	case key.Matches(msg, a.keys.Export):
		a.startExport()
	default:
		var cmd tea.Cmd
		a.table, cmd = a.table.Update(msg)
		return a, cmd
	}
	return a, nil
}

func (a *App) updateConfirm(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, a.keys.Yes):
		a.state = stateBrowse
		a.pending = nil
		a.finishExport(export.ConfirmFunc(func([]string) (bool, error) { return true, nil }))
	case key.Matches(msg, a.keys.No):
		a.state = stateBrowse
		a.pending = nil
		a.statusMsg = "Export cancelled; nothing was written"
		a.session.Logbook().Warn("Export to %s cancelled by user", a.target)
	}
	return a, nil
}

func (a *App) shiftGroup(delta int) {
	path, ok := a.currentPath()
	if !ok {
		return
	}
	current, found := a.session.Table().Owner(path)
	if !found {
		return
	}
	target := current + groups.GroupID(delta)
	if target < 1 || target > a.session.MaxGroup() {
		a.statusMsg = fmt.Sprintf("Groups range from 1 to %d", a.session.MaxGroup())
		return
	}
	if err := a.session.Reassign(path, target); err != nil {
		a.statusMsg = err.Error()
		return
	}
	a.statusMsg = fmt.Sprintf("%s → group %d", filepath.Base(path), target)
	a.refreshRows()
	a.focusPath(path)
}

func (a *App) cycleHealthy() {
	maxGroup := a.session.MaxGroup()
	if maxGroup < 1 {
		return
	}
	next := a.session.HealthyGroup() + 1
	if next > maxGroup {
		next = 1
	}
	if err := a.session.SetHealthyGroup(next); err != nil {
		a.statusMsg = err.Error()
		return
	}
	a.statusMsg = fmt.Sprintf("Healthy group: %d", next)
}

func (a *App) runPreview() {
	res, err := a.session.Preview()
	if err != nil {
		a.statusMsg = fmt.Sprintf("Preview failed: %v", err)
		return
	}
	a.statusMsg = fmt.Sprintf("Preview: %d file(s) listed in %s", len(res.Included), res.Manifest)
	if len(res.Failures) > 0 {
		a.statusMsg += fmt.Sprintf(" (%d skipped)", len(res.Failures))
	}
}

func (a *App) startCompute() tea.Cmd {
	if a.session.Table() == nil || a.session.Table().Count() == 0 {
		a.statusMsg = session.ErrEmptyTable.Error()
		return nil
	}
	if a.session.HealthyGroup() < 1 {
		a.statusMsg = "Choose a healthy group first (h)"
		return nil
	}
	a.state = stateComputing
	a.statusMsg = "Computing means…"
	sess := a.session
	return func() tea.Msg {
		out, err := sess.Run()
		return computeFinishedMsg{outcome: out, err: err}
	}
}

func (a *App) handleComputeFinished(msg computeFinishedMsg) {
	if msg.err != nil {
		a.statusMsg = fmt.Sprintf("Compute failed: %v", msg.err)
		return
	}
	a.session.Apply(msg.outcome)
	report := msg.outcome.Report
	done := 0
	for _, res := range report.Groups {
		if res.Status == pipeline.StatusCompleted {
			done++
		}
	}
	a.statusMsg = fmt.Sprintf("Computed %d mean(s)", done)
	if failed := report.Failed(); len(failed) > 0 {
		a.statusMsg += fmt.Sprintf("; failed groups %v", failed)
	}
}

func (a *App) startExport() {
	if a.target == "" {
		a.statusMsg = "No export directory configured (--target)"
		return
	}
	plan, err := a.session.PlanExport(a.target)
	if err != nil {
		a.statusMsg = fmt.Sprintf("Export unavailable: %v", err)
		return
	}
	if len(plan.Conflicts) > 0 {
		a.pending = plan.Conflicts
		a.state = stateConfirmOverwrite
		a.statusMsg = ""
		return
	}
	a.finishExport(nil)
}

func (a *App) finishExport(confirmer export.Confirmer) {
	res, err := a.session.Export(a.target, confirmer)
	if err != nil {
		a.statusMsg = fmt.Sprintf("Export failed: %v", err)
		return
	}
	a.statusMsg = fmt.Sprintf("Exported %d mean(s); manifest %s", len(res.Written), res.Manifest)
}

func (a *App) currentPath() (string, bool) {
	idx := a.table.Cursor()
	if idx < 0 || idx >= len(a.paths) {
		return "", false
	}
	return a.paths[idx], true
}

func (a *App) focusPath(path string) {
	for i, p := range a.paths {
		if p == path {
			a.table.SetCursor(i)
			return
		}
	}
}

func (a *App) refreshRows() {
	cursor := a.table.Cursor()
	a.paths = a.paths[:0]
	var rows []table.Row
	if tbl := a.session.Table(); tbl != nil {
		tbl.Each(func(id groups.GroupID, path string) {
			mark := ""
			if a.session.Selected(path) {
				mark = "✓"
			}
			a.paths = append(a.paths, path)
			rows = append(rows, table.Row{filepath.Base(path), id.String(), mark})
		})
	}
	a.table.SetRows(rows)
	if cursor >= len(rows) {
		cursor = len(rows) - 1
	}
	if cursor >= 0 {
		a.table.SetCursor(cursor)
	}
}

// View renders the current state.
func (a *App) View() string {
	sections := []string{titleStyle.Render("⬡ DIAGINDEX")}
	sections = append(sections, infoStyle.Render(a.summaryLine()))
	sections = append(sections, boxStyle.Render(a.table.View()))
	if a.state == stateConfirmOverwrite {
		sections = append(sections, a.renderConfirm())
		sections = append(sections, a.help.View(confirmKeys{a.keys}))
	} else {
		sections = append(sections, a.help.View(a.keys))
	}
	if logPanel := a.renderLogPanel(); logPanel != "" {
		sections = append(sections, logPanel)
	}
	if a.statusMsg != "" {
		sections = append(sections, statusStyle.Render(a.statusMsg))
	}
	return strings.Join(sections, "\n")
}

func (a *App) summaryLine() string {
	tbl := a.session.Table()
	files, groupCount := 0, 0
	if tbl != nil {
		files, groupCount = tbl.Count(), tbl.Len()
	}
	healthy := "none"
	if id := a.session.HealthyGroup(); id > 0 {
		healthy = id.String()
	}
	means := 0
	if m := a.session.Means(); m != nil {
		means = m.Len()
	}
	mode := string(a.session.Mode())
	if mode == "" {
		mode = "empty"
	}
	return fmt.Sprintf("%s · %d file(s) in %d group(s) · healthy %s · %d mean(s)", mode, files, groupCount, healthy, means)
}

func (a *App) renderConfirm() string {
	lines := []string{warnStyle.Render("These files already exist. Overwrite them?")}
	for _, path := range a.pending {
		lines = append(lines, "  "+path)
	}
	return boxStyle.Render(strings.Join(lines, "\n"))
}

func (a *App) renderLogPanel() string {
	lb := a.session.Logbook()
	entries, total := lb.Recent(logTailLines)
	if len(entries) == 0 {
		return ""
	}
	lines := make([]string, 0, len(entries))
	for _, entry := range entries {
		style := logStyle
		switch entry.Level {
		case logbook.LevelWarn:
			style = warnStyle
		case logbook.LevelError:
			style = errorStyle
		}
		lines = append(lines, style.Render(entry.String()))
	}
	head := infoStyle.Render(fmt.Sprintf("LOG · %s (%d)", filepath.Base(lb.Path()), total))
	return boxStyle.Render(head + "\n" + strings.Join(lines, "\n"))
}
