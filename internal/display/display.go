package display

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
)

const rule = "--------------------------------------------------"

var (
	cyan   = color.New(color.FgCyan).SprintFunc()
	green  = color.New(color.FgGreen).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	bold   = color.New(color.Bold).SprintFunc()
)

// Printer writes progress lines for the operator.
type Printer struct {
	Out io.Writer
}

func NewPrinter(out io.Writer) *Printer {
	return &Printer{Out: out}
}

func (p *Printer) Step(iteration int, state, format string, args ...any) {
	fmt.Fprintf(p.Out, "%s %s %s\n", cyan(fmt.Sprintf("[%02d]", iteration)), bold(state), fmt.Sprintf(format, args...))
}

func (p *Printer) Info(format string, args ...any) {
	fmt.Fprintln(p.Out, fmt.Sprintf(format, args...))
}

func (p *Printer) Success(format string, args ...any) {
	fmt.Fprintln(p.Out, green(fmt.Sprintf(format, args...)))
}

func (p *Printer) Warn(format string, args ...any) {
	fmt.Fprintln(p.Out, yellow(fmt.Sprintf(format, args...)))
}

func (p *Printer) Error(format string, args ...any) {
	fmt.Fprintln(p.Out, red(fmt.Sprintf(format, args...)))
}

// Block prints a titled, ruled section such as the model's plan.
func (p *Printer) Block(title, body string) {
	fmt.Fprintln(p.Out, FormatBlock(title, body))
}

func FormatBlock(title, body string) string {
	var sb strings.Builder
	sb.WriteString(title + ":\n")
	sb.WriteString(rule + "\n")
	sb.WriteString(strings.TrimRight(body, "\n") + "\n")
	sb.WriteString(rule)
	return sb.String()
}

// StatusLine is the single labelled line printed when a run ends.
func StatusLine(ok bool, label, detail string) string {
	tag := red("[" + label + "]")
	if ok {
		tag = green("[" + label + "]")
	}
	if detail == "" {
		return tag
	}
	return tag + " " + detail
}
