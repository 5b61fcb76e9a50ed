package tui

import (
	"context"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/jask/rosterflow/internal/service"
)

// App is the interactive review surface for one prepared batch: resolve
// conflict pairs, override linkage suggestions, then commit.
type App struct {
	ctx      context.Context
	importer *service.Importer
	prepared *service.Prepared

	state      appState
	pairCursor int
	candCursor int
	status     string
	ledger     *service.Ledger
}

type appState string

const (
	viewConflicts  appState = "conflicts"
	viewCandidates appState = "candidates"
	viewSummary    appState = "summary"
)

func New(ctx context.Context, importer *service.Importer, prepared *service.Prepared) *App {
	a := &App{ctx: ctx, importer: importer, prepared: prepared, state: viewConflicts}
	if len(prepared.Conflicts.Pending()) == 0 {
		a.state = viewCandidates
	}
	return a
}

func (a *App) Init() tea.Cmd { return nil }

type statusMsg string

type errMsg struct{ error }

type scoredMsg struct{}

type commitDoneMsg struct{ Ledger service.Ledger }

func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch m := msg.(type) {
	case tea.KeyMsg:
		switch a.state {
		case viewConflicts:
			return a.handleConflictKey(m)
		case viewCandidates:
			return a.handleCandidateKey(m)
		default:
			switch m.String() {
			case "q", "ctrl+c", "enter", "esc":
				return a, tea.Quit
			}
		}
	case statusMsg:
		a.status = string(m)
	case errMsg:
		a.status = "error: " + m.Error()
	case scoredMsg:
		a.state = viewCandidates
		a.candCursor = 0
		a.status = fmt.Sprintf("%d candidates scored", len(a.prepared.Candidates))
	case commitDoneMsg:
		a.ledger = &m.Ledger
		a.state = viewSummary
		a.status = ""
	}
	return a, nil
}

func (a *App) handleConflictKey(m tea.KeyMsg) (tea.Model, tea.Cmd) {
	pending := a.prepared.Conflicts.Pending()
	switch m.String() {
	case "q", "ctrl+c":
		return a, tea.Quit
	case "up":
		if a.pairCursor > 0 {
			a.pairCursor--
		}
	case "down":
		if a.pairCursor < len(pending)-1 {
			a.pairCursor++
		}
	case "a":
		return a, a.resolveCmd(pending, service.KeepA)
	case "b":
		return a, a.resolveCmd(pending, service.KeepB)
	case "m":
		return a, a.resolveCmd(pending, service.MergeAB)
	case "x":
		return a, a.resolveCmd(pending, service.KeepBoth)
	}
	return a, nil
}

func (a *App) resolveCmd(pending []service.ConflictPair, s service.Strategy) tea.Cmd {
	if len(pending) == 0 {
		return nil
	}
	pair := pending[a.pairCursor]
	return func() tea.Msg {
		if err := a.prepared.Conflicts.Resolve(pair.ID, s); err != nil {
			return errMsg{err}
		}
		if err := a.importer.Checkpoint(a.ctx, a.prepared); err != nil {
			return errMsg{err}
		}
		if a.pairCursor > 0 {
			a.pairCursor--
		}
		if len(a.prepared.Conflicts.Pending()) == 0 {
			return a.scoreCmd()()
		}
		return statusMsg(fmt.Sprintf("resolved %s", pair.ID[:8]))
	}
}

func (a *App) scoreCmd() tea.Cmd {
	return func() tea.Msg {
		if err := a.importer.Score(a.ctx, a.prepared); err != nil {
			return errMsg{err}
		}
		return scoredMsg{}
	}
}

func (a *App) handleCandidateKey(m tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch m.String() {
	case "q", "ctrl+c":
		return a, tea.Quit
	case "up":
		if a.candCursor > 0 {
			a.candCursor--
		}
	case "down":
		if a.candCursor < len(a.prepared.Candidates)-1 {
			a.candCursor++
		}
	case "c":
		a.overrideCandidate(service.ActionCreate)
	case "u":
		a.overrideCandidate(service.ActionUpdate)
	case "s":
		a.overrideCandidate(service.ActionSkip)
	case "enter":
		a.status = "committing..."
		return a, a.commitCmd()
	}
	return a, nil
}

func (a *App) overrideCandidate(action service.Action) {
	if a.candCursor >= len(a.prepared.Candidates) {
		return
	}
	c := a.prepared.Candidates[a.candCursor]
	d := service.Decision{Row: c.Row, Action: action}
	if action == service.ActionUpdate {
		if c.MatchID == "" {
			a.status = "no persisted match to update"
			return
		}
		d.ExistingID = c.MatchID
	}
	a.prepared.SetDecision(d)
	a.status = fmt.Sprintf("row %d -> %s", c.Row, action)
}

func (a *App) commitCmd() tea.Cmd {
	return func() tea.Msg {
		ledger, err := a.importer.Commit(a.ctx, a.prepared)
		if err != nil {
			return errMsg{err}
		}
		return commitDoneMsg{Ledger: ledger}
	}
}

func (a *App) View() string {
	var body string
	switch a.state {
	case viewConflicts:
		body = a.renderConflicts()
	case viewCandidates:
		body = a.renderCandidates()
	default:
		body = a.renderSummary()
	}
	if a.status != "" {
		body += "\n" + a.status
	}
	return body
}

// styles
var titleStyle = lipgloss.NewStyle().Bold(true).Underline(true)

func (a *App) renderConflicts() string {
	pending := a.prepared.Conflicts.Pending()
	title := titleStyle.Render(fmt.Sprintf("Conflicts - %d pending", len(pending)))
	if len(pending) == 0 {
		return title + "\nAll pairs resolved."
	}
	out := title + "\n"
	for i, p := range pending {
		marker := " "
		if i == a.pairCursor {
			marker = "▶"
		}
		out += fmt.Sprintf("%s [%s] %s\n    A: %s\n    B: %s\n", marker, p.KeyKind, p.Reason, p.A, p.B)
	}
	out += "[a] Keep A  [b] Keep B  [m] Merge  [x] Keep both  [q] Quit"
	return out
}

func (a *App) renderCandidates() string {
	title := titleStyle.Render(fmt.Sprintf("Linkage - %d rows", len(a.prepared.Candidates)))
	out := title + "\n"
	byRow := map[int]service.Action{}
	for _, d := range a.prepared.Decisions {
		byRow[d.Row] = d.Action
	}
	for i, c := range a.prepared.Candidates {
		marker := " "
		if i == a.candCursor {
			marker = "▶"
		}
		action := byRow[c.Row]
		match := "-"
		if c.MatchID != "" {
			match = c.MatchID[:8]
		}
		out += fmt.Sprintf("%s row %-4d score %.2f  match %-8s  %s\n", marker, c.Row, c.Score, match, action)
	}
	if len(a.prepared.Eligibility) > 0 {
		out += fmt.Sprintf("%d rows failed eligibility (advisory)\n", len(a.prepared.Eligibility))
	}
	out += "[c] Create  [u] Update  [s] Skip  [enter] Commit  [q] Quit"
	return out
}

func (a *App) renderSummary() string {
	title := titleStyle.Render("Commit Summary")
	if a.ledger == nil {
		return title + "\nNothing committed."
	}
	out := fmt.Sprintf("%s\nCreated %d  Updated %d  Skipped %d  Failed %d  (%s)",
		title, a.ledger.Created, a.ledger.Updated, a.ledger.Skipped, len(a.ledger.Failed), a.ledger.Duration)
	for _, f := range a.ledger.Failed {
		out += fmt.Sprintf("\n- row %d: %s", f.OriginalIndex, f.Reason)
	}
	if n := len(a.prepared.RowErrors); n > 0 {
		var parts []string
		for i, e := range a.prepared.RowErrors {
			if i == 3 {
				parts = append(parts, fmt.Sprintf("+%d more", n-3))
				break
			}
			parts = append(parts, e.Error())
		}
		out += "\nExcluded rows: " + strings.Join(parts, "; ")
	}
	out += "\n[enter] Quit"
	return out
}
