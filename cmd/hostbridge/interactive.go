package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/wippyai/hostbridge/bridge"
	"github.com/wippyai/hostbridge/engine"
	"github.com/wippyai/hostbridge/errors"
)

var (
	funcStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	typeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4"))

	resultStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90"))
)

type consoleState int

const (
	stateSelectFunc consoleState = iota
	stateInputArgs
	stateShowResult
)

type consoleModel struct {
	ctx      context.Context
	err      error
	bridge   *bridge.Bridge
	inst     bridge.RuntimeInstance
	result   string
	funcs    []engine.Signature
	inputs   []textinput.Model
	selected int
	focusIdx int
	state    consoleState
}

type callResultMsg struct {
	err    error
	result string
}

func newConsoleModel(ctx context.Context, b *bridge.Bridge, inst bridge.RuntimeInstance) (*consoleModel, error) {
	e, ok := engine.Lookup(inst.LibraryPath)
	if !ok {
		return nil, errors.NotRunning(errors.PhaseCall, b.State().String())
	}
	return &consoleModel{
		ctx:    ctx,
		bridge: b,
		inst:   inst,
		funcs:  e.Signatures(),
		state:  stateSelectFunc,
	}, nil
}

func (m *consoleModel) Init() tea.Cmd {
	return nil
}

func (m *consoleModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			if m.state != stateInputArgs || msg.String() == "ctrl+c" {
				return m, tea.Quit
			}

		case "up", "k":
			if m.state == stateSelectFunc && m.selected > 0 {
				m.selected--
			}

		case "down", "j":
			if m.state == stateSelectFunc && m.selected < len(m.funcs)-1 {
				m.selected++
			}

		case "s":
			if m.state == stateSelectFunc {
				policy := m.bridge.Policy()
				m.err = policy.SetStringConversion(m.ctx, !policy.StringConversion())
			}

		case "enter":
			switch m.state {
			case stateSelectFunc:
				if len(m.funcs) == 0 {
					break
				}
				m.prepareInputs()
				if len(m.inputs) == 0 {
					return m, m.callFunction
				}
				m.state = stateInputArgs

			case stateInputArgs:
				return m, m.callFunction

			case stateShowResult:
				m.state = stateSelectFunc
				m.result = ""
				m.err = nil
			}

		case "tab":
			if m.state == stateInputArgs && len(m.inputs) > 1 {
				m.inputs[m.focusIdx].Blur()
				m.focusIdx = (m.focusIdx + 1) % len(m.inputs)
				m.inputs[m.focusIdx].Focus()
			}

		case "esc":
			switch m.state {
			case stateInputArgs:
				m.state = stateSelectFunc
				m.inputs = nil
			case stateShowResult:
				m.state = stateSelectFunc
				m.result = ""
				m.err = nil
			}
		}

	case callResultMsg:
		m.result = msg.result
		m.err = msg.err
		m.state = stateShowResult
	}

	if m.state == stateInputArgs {
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

func (m *consoleModel) prepareInputs() {
	f := m.funcs[m.selected]
	m.inputs = make([]textinput.Model, len(f.Params))
	for i, typ := range f.Params {
		ti := textinput.New()
		ti.Placeholder = typ
		ti.Prompt = fmt.Sprintf("arg%d: ", i)
		ti.Width = 40
		if i == 0 {
			ti.Focus()
		}
		m.inputs[i] = ti
	}
	m.focusIdx = 0
}

// callFunction runs on a goroutine of its own, so it attaches for the
// duration of the call.
func (m *consoleModel) callFunction() tea.Msg {
	if err := m.bridge.AttachCurrentThread(); err != nil {
		return callResultMsg{err: err}
	}
	defer m.bridge.DetachCurrentThread()

	raw := make([]string, len(m.inputs))
	for i, input := range m.inputs {
		raw[i] = input.Value()
	}
	params, err := parseParams(raw)
	if err != nil {
		return callResultMsg{err: err}
	}

	f := m.funcs[m.selected]
	res, err := m.bridge.Call(m.ctx, f.Name, params...)
	if err != nil {
		return callResultMsg{err: err}
	}
	return callResultMsg{result: formatResults(res, f.Results)}
}

func formatResults(res []uint64, types []string) string {
	if len(res) == 0 {
		return "(no results)"
	}
	out := make([]string, len(res))
	for i, v := range res {
		if i < len(types) && types[i] == "i32" {
			out[i] = fmt.Sprint(int32(uint32(v)))
			continue
		}
		out[i] = fmt.Sprint(v)
	}
	return strings.Join(out, ", ")
}

func (m *consoleModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("hostbridge"))
	b.WriteString(" ")
	b.WriteString(m.inst.LibraryPath)
	b.WriteString("\n")
	b.WriteString(helpStyle.Render(fmt.Sprintf("state %s • strings %s • %d threads attached",
		m.bridge.State(), conversionMode(m.bridge.Policy().StringConversion()), len(m.bridge.Threads()))))
	b.WriteString("\n\n")

	switch m.state {
	case stateSelectFunc:
		if len(m.funcs) == 0 {
			b.WriteString("The runtime exports no functions.\n\n")
		} else {
			b.WriteString("Select an export to call:\n\n")
		}
		for i, f := range m.funcs {
			if i == m.selected {
				b.WriteString(selectedStyle.Render("> " + formatFunc(f)))
			} else {
				b.WriteString("  " + formatFunc(f))
			}
			b.WriteString("\n")
		}
		if m.err != nil {
			b.WriteString("\n")
			b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("↑/↓ select • enter call • s toggle strings • q quit"))

	case stateInputArgs:
		f := m.funcs[m.selected]
		b.WriteString(fmt.Sprintf("Calling %s\n\n", funcStyle.Render(f.Name)))
		for i, input := range m.inputs {
			b.WriteString(input.View())
			b.WriteString(" ")
			b.WriteString(typeStyle.Render(f.Params[i]))
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("tab next field • enter call • esc back"))

	case stateShowResult:
		f := m.funcs[m.selected]
		b.WriteString(fmt.Sprintf("Result of %s:\n\n", funcStyle.Render(f.Name)))
		if m.err != nil {
			b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
		} else {
			b.WriteString(resultStyle.Render(m.result))
		}
		b.WriteString("\n\n")
		b.WriteString(helpStyle.Render("enter continue • q quit"))
	}

	return b.String()
}

func formatFunc(f engine.Signature) string {
	params := make([]string, len(f.Params))
	for i, p := range f.Params {
		params[i] = typeStyle.Render(p)
	}
	result := ""
	if len(f.Results) > 0 {
		result = " -> " + typeStyle.Render(strings.Join(f.Results, ", "))
	}
	return funcStyle.Render(f.Name) + "(" + strings.Join(params, ", ") + ")" + result
}

func runInteractive(ctx context.Context, b *bridge.Bridge, inst bridge.RuntimeInstance) error {
	m, err := newConsoleModel(ctx, b, inst)
	if err != nil {
		return err
	}
	_, err = tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx)).Run()
	return err
}
