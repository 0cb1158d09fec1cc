package main

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	keyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB")).
			Width(12)

	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	warnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFD866"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

// printer writes status lines, styled only when out is a terminal.
type printer struct {
	out    io.Writer
	styled bool
}

func newPrinter(f *os.File) printer {
	return printer{out: f, styled: term.IsTerminal(int(f.Fd()))}
}

func (p printer) render(style lipgloss.Style, s string) string {
	if !p.styled {
		return s
	}
	return style.Render(s)
}

func (p printer) title(s string) {
	fmt.Fprintln(p.out, p.render(titleStyle, s))
}

func (p printer) field(key string, value any) {
	k := key + ":"
	if p.styled {
		k = keyStyle.Render(k)
	} else {
		k = fmt.Sprintf("%-12s", k)
	}
	fmt.Fprintf(p.out, "%s %s\n", k, p.render(valueStyle, fmt.Sprint(value)))
}

func (p printer) warn(err error) {
	fmt.Fprintln(p.out, p.render(warnStyle, "warning: "+err.Error()))
}
