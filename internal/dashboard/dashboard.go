// Package dashboard is a terminal UI that polls the engine's task list
// and renders a live table of task code, status, kind and owner, in
// the teacher's bubbletea/bubbles/lipgloss idiom for its own TUI.
package dashboard

import (
	"fmt"
	"time"

	"charm.land/bubbles/v2/table"
	tea "charm.land/bubbletea/v2"
	"charm.land/lipgloss/v2"

	"github.com/dwizi/databridge/internal/task"
)

const pollInterval = 2 * time.Second

// Engine is the narrow facade dependency this package needs.
type Engine interface {
	TaskList(userCode string, pageNo, limitSize int) ([]task.Task, error)
}

type tasksLoadedMsg struct {
	tasks []task.Task
	err   error
}

type model struct {
	engine   Engine
	userCode string
	tasks    table.Model
	errText  string
	width    int
	height   int
}

// Run starts the dashboard program and blocks until the user quits.
func Run(engine Engine, userCode string) error {
	m := newModel(engine, userCode)
	_, err := tea.NewProgram(m).Run()
	return err
}

func newModel(engine Engine, userCode string) model {
	t := table.New()
	t.Focus()
	t.SetColumns([]table.Column{
		{Title: "Task", Width: 20},
		{Title: "Kind", Width: 10},
		{Title: "Status", Width: 12},
		{Title: "Owner", Width: 20},
		{Title: "Error", Width: 30},
	})
	return model{engine: engine, userCode: userCode, tasks: t}
}

func (m model) Init() tea.Cmd {
	return pollCmd(m.engine, m.userCode)
}

func pollCmd(engine Engine, userCode string) tea.Cmd {
	return tea.Tick(pollInterval, func(time.Time) tea.Msg {
		tasks, err := engine.TaskList(userCode, 1, 200)
		return tasksLoadedMsg{tasks: tasks, err: err}
	})
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.tasks.SetWidth(msg.Width - 2)
		m.tasks.SetHeight(msg.Height - 4)
		return m, nil
	case tasksLoadedMsg:
		if msg.err != nil {
			m.errText = msg.err.Error()
		} else {
			m.errText = ""
			m.tasks.SetRows(rowsFor(msg.tasks))
		}
		return m, pollCmd(m.engine, m.userCode)
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		}
	}
	var cmd tea.Cmd
	m.tasks, cmd = m.tasks.Update(msg)
	return m, cmd
}

func rowsFor(tasks []task.Task) []table.Row {
	rows := make([]table.Row, 0, len(tasks))
	for _, t := range tasks {
		header := t.GetHeader()
		rows = append(rows, table.Row{
			fmt.Sprintf("%d", header.Code),
			string(t.Kind()),
			header.Status.String(),
			header.IdentifyCode,
			header.ErrorMessage,
		})
	}
	return rows
}

var titleStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
var footerStyle = lipgloss.NewStyle().Faint(true).Padding(0, 1)

func (m model) View() tea.View {
	title := titleStyle.Render("databridge tasks")
	footer := footerStyle.Render("q to quit, refreshes every 2s")
	body := m.tasks.View()
	if m.errText != "" {
		body = body + "\n" + lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Render("error: "+m.errText)
	}
	return tea.NewView(title + "\n" + body + "\n" + footer)
}
