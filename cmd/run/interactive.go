package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/brooklang/brook/runtime"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	callStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	metaStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	resultStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

type modelState int

const (
	stateStarting modelState = iota
	statePaused
	stateFutures
	stateDone
)

type interactiveModel struct {
	err        error
	handle     *runtime.Handle
	filename   string
	externals  []string
	scriptName string

	state     modelState
	call      pendingCall
	futureIDs []uint32
	inputs    []textinput.Model
	focusIdx  int
	envelope  string
	isError   bool
	history   []string
}

type pendingCall struct {
	id     uint32
	name   string
	args   string
	kwargs string
	method bool
}

type startedMsg struct {
	err    error
	handle *runtime.Handle
	step   stepMsg
}

type stepMsg struct {
	progress runtime.Progress
	err      error
}

func newInteractiveModel(filename string, externals []string, scriptName string) *interactiveModel {
	return &interactiveModel{
		filename:   filename,
		externals:  externals,
		scriptName: scriptName,
		state:      stateStarting,
	}
}

func (m *interactiveModel) Init() tea.Cmd {
	return m.startScript
}

func (m *interactiveModel) startScript() tea.Msg {
	source, err := os.ReadFile(m.filename)
	if err != nil {
		return startedMsg{err: err}
	}
	name := m.scriptName
	if name == "" {
		name = m.filename
	}

	h, err := runtime.New(string(source), m.externals, name)
	if err != nil {
		return startedMsg{err: err}
	}
	progress, err := h.Start()
	return startedMsg{handle: h, step: stepMsg{progress: progress, err: err}}
}

func (m *interactiveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			m.handle.Close()
			return m, tea.Quit

		case "q":
			if m.state != statePaused && m.state != stateFutures {
				m.handle.Close()
				return m, tea.Quit
			}

		case "tab":
			if m.state == stateFutures && len(m.inputs) > 1 {
				m.inputs[m.focusIdx].Blur()
				m.focusIdx = (m.focusIdx + 1) % len(m.inputs)
				m.inputs[m.focusIdx].Focus()
			}

		case "enter":
			switch m.state {
			case statePaused:
				return m, m.submitCall
			case stateFutures:
				return m, m.submitFutures
			case stateDone:
				m.handle.Close()
				return m, tea.Quit
			}
		}

	case startedMsg:
		if msg.err != nil {
			m.err = msg.err
			m.state = stateDone
			return m, nil
		}
		m.handle = msg.handle
		return m.applyStep(msg.step)

	case stepMsg:
		return m.applyStep(msg)
	}

	if m.state == statePaused || m.state == stateFutures {
		var cmds []tea.Cmd
		for i := range m.inputs {
			var cmd tea.Cmd
			m.inputs[i], cmd = m.inputs[i].Update(msg)
			cmds = append(cmds, cmd)
		}
		return m, tea.Batch(cmds...)
	}

	return m, nil
}

func (m *interactiveModel) applyStep(step stepMsg) (tea.Model, tea.Cmd) {
	// A script failure carries both an error message and a terminal
	// envelope; only operation errors have no envelope to show.
	if step.err != nil && step.progress != runtime.ProgressError {
		m.err = step.err
		m.state = stateDone
		return m, nil
	}

	switch step.progress {
	case runtime.ProgressPending:
		m.call.name, _ = m.handle.PendingFunctionName()
		m.call.args, _ = m.handle.PendingArgs()
		m.call.kwargs, _ = m.handle.PendingKwargs()
		m.call.id, _ = m.handle.PendingCallID()
		m.call.method, _ = m.handle.PendingIsMethodCall()
		m.prepareCallInput()
		m.state = statePaused

	case runtime.ProgressAwaitingFutures:
		m.futureIDs, _ = m.handle.PendingFutureCallIDs()
		m.prepareFutureInputs()
		m.state = stateFutures

	default:
		env, _ := m.handle.CompletedResult()
		m.isError, _ = m.handle.CompletedIsError()
		var pretty map[string]any
		if err := json.Unmarshal(env, &pretty); err == nil {
			if formatted, err := json.MarshalIndent(pretty, "", "  "); err == nil {
				env = formatted
			}
		}
		m.envelope = string(env)
		m.state = stateDone
	}
	return m, nil
}

func (m *interactiveModel) prepareCallInput() {
	ti := textinput.New()
	ti.Placeholder = `JSON value, "!error msg" or "!future"`
	ti.Prompt = "result: "
	ti.Width = 60
	ti.Focus()
	m.inputs = []textinput.Model{ti}
	m.focusIdx = 0
}

func (m *interactiveModel) prepareFutureInputs() {
	m.inputs = make([]textinput.Model, len(m.futureIDs))
	for i, id := range m.futureIDs {
		ti := textinput.New()
		ti.Placeholder = `JSON value or "!error msg"`
		ti.Prompt = fmt.Sprintf("#%d: ", id)
		ti.Width = 60
		if i == 0 {
			ti.Focus()
		}
		m.inputs[i] = ti
	}
	m.focusIdx = 0
}

func (m *interactiveModel) submitCall() tea.Msg {
	line := strings.TrimSpace(m.inputs[0].Value())
	m.history = append(m.history, fmt.Sprintf("#%d %s <- %s", m.call.id, m.call.name, line))

	var (
		progress runtime.Progress
		err      error
	)
	switch {
	case line == "!future":
		progress, err = m.handle.ResumeAsFuture()
	case strings.HasPrefix(line, "!error "):
		progress, err = m.handle.ResumeWithError(strings.TrimPrefix(line, "!error "))
	default:
		progress, err = m.handle.Resume(line)
	}
	return stepMsg{progress: progress, err: err}
}

func (m *interactiveModel) submitFutures() tea.Msg {
	results := make(map[string]json.RawMessage)
	failures := make(map[string]string)
	for i, id := range m.futureIDs {
		line := strings.TrimSpace(m.inputs[i].Value())
		if line == "" {
			continue
		}
		key := fmt.Sprintf("%d", id)
		if strings.HasPrefix(line, "!error ") {
			failures[key] = strings.TrimPrefix(line, "!error ")
		} else {
			results[key] = json.RawMessage(line)
		}
		m.history = append(m.history, fmt.Sprintf("future #%d <- %s", id, line))
	}

	resultsJSON, err := json.Marshal(results)
	if err != nil {
		return stepMsg{err: err}
	}
	errorsJSON, err := json.Marshal(failures)
	if err != nil {
		return stepMsg{err: err}
	}
	progress, err := m.handle.ResumeFutures(string(resultsJSON), string(errorsJSON))
	return stepMsg{progress: progress, err: err}
}

func (m *interactiveModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("Brook Runner"))
	b.WriteString(" ")
	b.WriteString(m.filename)
	b.WriteString("\n\n")

	for _, line := range m.history {
		b.WriteString(helpStyle.Render(line))
		b.WriteString("\n")
	}
	if len(m.history) > 0 {
		b.WriteString("\n")
	}

	switch m.state {
	case stateStarting:
		b.WriteString("Starting script...")

	case statePaused:
		kind := "call"
		if m.call.method {
			kind = "method call"
		}
		b.WriteString(fmt.Sprintf("Pending %s %s %s\n", kind,
			callStyle.Render(fmt.Sprintf("#%d %s", m.call.id, m.call.name)),
			metaStyle.Render(fmt.Sprintf("args=%s kwargs=%s", m.call.args, m.call.kwargs))))
		b.WriteString("\n")
		b.WriteString(m.inputs[0].View())
		b.WriteString("\n\n")
		b.WriteString(helpStyle.Render("enter resume • ctrl+c quit"))

	case stateFutures:
		b.WriteString(fmt.Sprintf("Awaiting %d future(s)\n\n", len(m.futureIDs)))
		for _, input := range m.inputs {
			b.WriteString(input.View())
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("tab next field • enter resolve (blank = leave pending) • ctrl+c quit"))

	case stateDone:
		if m.err != nil {
			b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
		} else {
			if out := m.handle.PrintOutput(); out != "" {
				b.WriteString(metaStyle.Render("--- output ---"))
				b.WriteString("\n" + out + "\n")
			}
			style := resultStyle
			if m.isError {
				style = errorStyle
			}
			b.WriteString(style.Render(m.envelope))
		}
		b.WriteString("\n\n")
		b.WriteString(helpStyle.Render("enter/q quit"))
	}

	return b.String()
}

func runInteractive(filename string, externals []string, scriptName string) error {
	p := tea.NewProgram(newInteractiveModel(filename, externals, scriptName), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
