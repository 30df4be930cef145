package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
)

// tone classifies a status line for labelling and coloring.
type tone string

const (
	toneInfo tone = "INFO"
	toneOK   tone = "OK"
	toneWarn tone = "WARN"
	toneFail tone = "ERROR"
)

var toneColors = map[tone]string{
	toneInfo: "\x1b[34m",
	toneOK:   "\x1b[32m",
	toneWarn: "\x1b[33m",
	toneFail: "\x1b[31m",
}

const ansiReset = "\x1b[0m"

// statusView renders aligned, optionally colored status output. Color is on
// only when the destination is an interactive terminal.
type statusView struct {
	out   io.Writer
	color bool
}

func newStatusView(out io.Writer) *statusView {
	return &statusView{out: out, color: isTerminal(out)}
}

func (v *statusView) paint(t tone, s string) string {
	if !v.color {
		return s
	}
	color, ok := toneColors[t]
	if !ok {
		return s
	}
	return color + s + ansiReset
}

func (v *statusView) section(title string) {
	heading := fmt.Sprintf("== %s ==", strings.TrimSpace(title))
	fmt.Fprintln(v.out, v.paint(toneInfo, heading))
	fmt.Fprintln(v.out, v.paint(toneInfo, strings.Repeat("-", len(heading))))
}

func (v *statusView) line(t tone, label, message string) {
	value := "[" + string(t) + "]"
	if message != "" {
		value += " " + message
	}
	fmt.Fprintln(v.out, v.paint(t, fmt.Sprintf("  %-20s %s", label+":", value)))
}

func (v *statusView) blank() {
	fmt.Fprintln(v.out)
}

func isTerminal(w io.Writer) bool {
	file, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(file.Fd()) || isatty.IsCygwinTerminal(file.Fd())
}
