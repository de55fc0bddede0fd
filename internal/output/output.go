// Package output provides consistent CLI output: status lines, per-item crawl
// lines and run summaries, coloured only on terminals.
package output

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"
)

// Writer provides formatted output for CLI.
type Writer struct {
	out      io.Writer
	useColor bool
}

// New creates a Writer without colour.
func New(out io.Writer) *Writer {
	return &Writer{out: out}
}

// NewAuto creates a Writer that colours its output when out is a terminal
// and NO_COLOR is unset.
func NewAuto(out io.Writer) *Writer {
	return &Writer{out: out, useColor: ColorEnabled(out)}
}

// ColorEnabled reports whether out should receive ANSI colour.
func ColorEnabled(out io.Writer) bool {
	if _, ok := os.LookupEnv("NO_COLOR"); ok {
		return false
	}
	f, ok := out.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

var kindStyles = map[string]lipgloss.Style{
	"hit":   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("35")),
	"miss":  lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
	"skip":  lipgloss.NewStyle().Foreground(lipgloss.Color("220")),
	"error": lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
	"ok":    lipgloss.NewStyle().Foreground(lipgloss.Color("35")),
	"warn":  lipgloss.NewStyle().Foreground(lipgloss.Color("220")),
}

func (w *Writer) paint(kind, s string) string {
	if !w.useColor {
		return s
	}
	if style, ok := kindStyles[kind]; ok {
		return style.Render(s)
	}
	return s
}

// Status prints a status message with an icon.
// Errors from writing are intentionally ignored for console output.
func (w *Writer) Status(icon, msg string) {
	if icon != "" {
		_, _ = fmt.Fprintf(w.out, "%s %s\n", icon, msg)
	} else {
		_, _ = fmt.Fprintf(w.out, "   %s\n", msg)
	}
}

// Statusf prints a formatted status message with an icon.
func (w *Writer) Statusf(icon, format string, args ...any) {
	w.Status(icon, fmt.Sprintf(format, args...))
}

// Success prints a success message with checkmark.
func (w *Writer) Success(msg string) {
	w.Status(w.paint("ok", "✓"), msg)
}

// Successf prints a formatted success message.
func (w *Writer) Successf(format string, args ...any) {
	w.Success(fmt.Sprintf(format, args...))
}

// Warning prints a warning message.
func (w *Writer) Warning(msg string) {
	w.Status(w.paint("warn", "!"), msg)
}

// Warningf prints a formatted warning message.
func (w *Writer) Warningf(format string, args ...any) {
	w.Warning(fmt.Sprintf(format, args...))
}

// Error prints an error message.
func (w *Writer) Error(msg string) {
	w.Status(w.paint("error", "✗"), msg)
}

// Errorf prints a formatted error message.
func (w *Writer) Errorf(format string, args ...any) {
	w.Error(fmt.Sprintf(format, args...))
}

// Item prints one per-candidate line: a fixed-width kind tag, the
// identifier, and an optional detail.
//
//	hit   U426_nichibunken_0001_0001_0000  Yokai scroll
func (w *Writer) Item(kind, identifier, detail string) {
	tag := w.paint(kind, fmt.Sprintf("%-5s", kind))
	if detail == "" {
		_, _ = fmt.Fprintf(w.out, "%s %s\n", tag, identifier)
		return
	}
	_, _ = fmt.Fprintf(w.out, "%s %s  %s\n", tag, identifier, detail)
}

// Field is one labelled count in a summary.
type Field struct {
	Label string
	Value int
}

// Summary prints a titled block of aligned counts followed by the elapsed
// time. Counts use thousands separators.
func (w *Writer) Summary(title string, elapsed time.Duration, fields ...Field) {
	_, _ = fmt.Fprintln(w.out)
	_, _ = fmt.Fprintln(w.out, title)

	width := 0
	for _, f := range fields {
		width = max(width, len(f.Label))
	}
	for _, f := range fields {
		_, _ = fmt.Fprintf(w.out, "  %-*s  %s\n", width+1, f.Label+":", humanize.Comma(int64(f.Value)))
	}
	_, _ = fmt.Fprintf(w.out, "  %-*s  %s\n", width+1, "elapsed:", elapsed.Round(100*time.Millisecond))
}

// Code prints a code block with indentation.
func (w *Writer) Code(content string) {
	_, _ = fmt.Fprintln(w.out)
	for _, line := range strings.Split(content, "\n") {
		_, _ = fmt.Fprintf(w.out, "  %s\n", line)
	}
	_, _ = fmt.Fprintln(w.out)
}

// Newline prints an empty line.
func (w *Writer) Newline() {
	_, _ = fmt.Fprintln(w.out)
}
