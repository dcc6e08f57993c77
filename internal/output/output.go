// Package output provides formatted output utilities for the CLI.
package output

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/list"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// Notifier is the host notification boundary. Archiving problems and other
// side-channel messages go through it instead of changing a verdict.
type Notifier interface {
	Info(format string, args ...interface{})
	Warning(format string, args ...interface{})
	Error(format string, args ...interface{})
}

// Writer handles CLI output formatting.
type Writer struct {
	out     io.Writer
	err     io.Writer
	color   bool
	quiet   bool
	verbose bool
}

var _ Notifier = (*Writer)(nil)

// New creates a new Writer with default settings.
func New() *Writer {
	return &Writer{
		out:   os.Stdout,
		err:   os.Stderr,
		color: isTerminal(),
	}
}

// NewWithWriters creates a Writer with custom io.Writers (for testing).
func NewWithWriters(out, err io.Writer, color bool) *Writer {
	return &Writer{
		out:   out,
		err:   err,
		color: color,
	}
}

// SetQuiet enables or disables quiet mode.
func (w *Writer) SetQuiet(quiet bool) {
	w.quiet = quiet
}

// SetVerbose enables or disables debug output.
func (w *Writer) SetVerbose(verbose bool) {
	w.verbose = verbose
}

// Println writes a line to stdout.
func (w *Writer) Println(format string, args ...interface{}) {
	fmt.Fprintf(w.out, format+"\n", args...)
}

// Errorln writes a line to stderr.
func (w *Writer) Errorln(format string, args ...interface{}) {
	fmt.Fprintf(w.err, format+"\n", args...)
}

// Error prints an error line to stderr. It is shown even in quiet mode.
func (w *Writer) Error(format string, args ...interface{}) {
	if w.color {
		w.Errorln(red+"error: "+format+reset, args...)
	} else {
		w.Errorln("error: "+format, args...)
	}
}

// Info prints an info message (skipped in quiet mode).
func (w *Writer) Info(format string, args ...interface{}) {
	if w.quiet {
		return
	}
	w.Println(format, args...)
}

// Debug prints a diagnostic line in verbose mode only.
func (w *Writer) Debug(format string, args ...interface{}) {
	if !w.verbose || w.quiet {
		return
	}
	if w.color {
		w.Errorln(dim+format+reset, args...)
	} else {
		w.Errorln(format, args...)
	}
}

// Success prints a success message.
func (w *Writer) Success(format string, args ...interface{}) {
	if w.color {
		w.Println(green+format+reset, args...)
	} else {
		w.Println(format, args...)
	}
}

// Warning prints a warning message.
func (w *Writer) Warning(format string, args ...interface{}) {
	if w.color {
		w.Errorln(yellow+"warning: "+format+reset, args...)
	} else {
		w.Errorln("warning: "+format, args...)
	}
}

// ErrorPrefix prints an error message with the gtm prefix to stderr.
func (w *Writer) ErrorPrefix(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	if w.color {
		w.Errorln("%sgtm:%s %s", red, reset, msg)
	} else {
		w.Errorln("gtm: %s", msg)
	}
}

// LeafStarted prints the start of a leaf.
func (w *Writer) LeafStarted(id string) {
	if w.quiet {
		return
	}
	if w.color {
		w.Println("%s─── %s ───%s", bold+cyan, id, reset)
	} else {
		w.Println("--- %s", id)
	}
}

// LeafPassed prints a passed leaf.
func (w *Writer) LeafPassed(id string, d time.Duration) {
	if w.quiet {
		return
	}
	if w.color {
		w.Println("  %s✓%s %s %s%s%s", green, reset, id, dim, FormatDuration(d), reset)
	} else {
		w.Println("  + %s %s", id, FormatDuration(d))
	}
}

// LeafFailed prints a failed leaf with its message. Failures are shown even
// in quiet mode.
func (w *Writer) LeafFailed(id, message string, d time.Duration) {
	if w.color {
		w.Errorln("  %s✗%s %s %s%s%s  %s(%s)%s", red, reset, id, dim, FormatDuration(d), reset, red, message, reset)
	} else {
		w.Errorln("  x %s %s  (%s)", id, FormatDuration(d), message)
	}
}

// Section prints a section header.
func (w *Writer) Section(title string) {
	if w.quiet {
		return
	}
	w.Println("")
	if w.color {
		w.Println("%s=== %s ===%s", bold, title, reset)
	} else {
		w.Println("=== %s ===", title)
	}
}

// List prints a list of items.
func (w *Writer) List(items []string) {
	for _, item := range items {
		w.Println("  - %s", item)
	}
}

// Table prints a plain table. Short rows are padded.
func (w *Writer) Table(headers []string, rows [][]string) {
	t := w.newTable(headers, table.StyleDefault)
	for _, r := range rows {
		t.AppendRow(toRow(r, len(headers)))
	}
	t.Render()
}

// ResultTable prints a titled table whose color reflects the overall result.
func (w *Writer) ResultTable(title string, headers []string, rows [][]string, footer []string, passed bool) {
	style := table.StyleDefault
	if w.color {
		style = table.StyleColoredBlackOnRedWhite
		if passed {
			style = table.StyleColoredBlackOnGreenWhite
		}
	}
	t := w.newTable(headers, style)
	t.SetTitle(title)
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, WidthMax: 80, WidthMaxEnforcer: text.WrapSoft},
		{Number: len(headers), WidthMax: 60, WidthMaxEnforcer: text.WrapSoft},
	})
	for _, r := range rows {
		t.AppendRow(toRow(r, len(headers)))
	}
	if len(footer) > 0 {
		t.AppendFooter(toRow(footer, len(headers)))
	}
	t.Render()
}

func (w *Writer) newTable(headers []string, style table.Style) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w.out)
	style.Format.Header = text.FormatDefault
	style.Format.Footer = text.FormatDefault
	t.SetStyle(style)
	t.AppendHeader(toRow(headers, len(headers)))
	return t
}

func toRow(cells []string, width int) table.Row {
	row := make(table.Row, width)
	for i := range row {
		if i < len(cells) {
			row[i] = cells[i]
		} else {
			row[i] = ""
		}
	}
	return row
}

// TreeItem is one entry of a rendered tree.
type TreeItem struct {
	Label    string
	Children []TreeItem
}

// Tree prints nested items with connecting lines.
func (w *Writer) Tree(items []TreeItem) {
	if len(items) == 0 {
		return
	}
	l := list.NewWriter()
	l.SetStyle(list.StyleConnectedLight)
	var add func([]TreeItem)
	add = func(items []TreeItem) {
		for _, it := range items {
			l.AppendItem(it.Label)
			if len(it.Children) > 0 {
				l.Indent()
				add(it.Children)
				l.UnIndent()
			}
		}
	}
	add(items)
	w.Println("%s", l.Render())
}

// FormatDuration renders sub-second durations in milliseconds.
func FormatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	return d.Truncate(time.Millisecond).String()
}

// isTerminal returns true if stdout is a terminal.
func isTerminal() bool {
	if fi, _ := os.Stdout.Stat(); fi != nil {
		return (fi.Mode() & os.ModeCharDevice) != 0
	}
	return false
}

// ANSI color codes.
const (
	reset  = "\033[0m"
	bold   = "\033[1m"
	dim    = "\033[2m"
	red    = "\033[31m"
	green  = "\033[32m"
	yellow = "\033[33m"
	cyan   = "\033[36m"
)

// SummaryHeader prints a summary section header.
func (w *Writer) SummaryHeader(title string) {
	w.Println("")
	if w.color {
		w.Println("%s=== %s ===%s", bold+cyan, title, reset)
	} else {
		w.Println("=== %s ===", title)
	}
	w.Println("")
}

// SummaryItem prints a labeled summary item with value.
func (w *Writer) SummaryItem(label, value string) {
	if w.color {
		w.Println("  %s%s:%s %s", dim, label, reset, value)
	} else {
		w.Println("  %s: %s", label, value)
	}
}

// SummaryPassed prints a passed/success items summary.
func (w *Writer) SummaryPassed(label, value string) {
	if w.color {
		w.Println("  %s%s:%s %s%s%s", dim, label, reset, green, value, reset)
	} else {
		w.Println("  %s: %s", label, value)
	}
}

// SummaryFailed prints a failed items summary.
func (w *Writer) SummaryFailed(label, value string) {
	if w.color {
		w.Println("  %s%s:%s %s%s%s", dim, label, reset, red, value, reset)
	} else {
		w.Println("  %s: %s", label, value)
	}
}

// FinalSuccess prints a final success message.
func (w *Writer) FinalSuccess(format string, args ...interface{}) {
	w.Println("")
	msg := fmt.Sprintf(format, args...)
	if w.color {
		w.Println("%s%s%s", green, msg, reset)
	} else {
		w.Println("%s", msg)
	}
}

// FinalFailure prints a final failure message.
func (w *Writer) FinalFailure(format string, args ...interface{}) {
	w.Println("")
	msg := fmt.Sprintf(format, args...)
	if w.color {
		w.Println("%s%s%s", red, msg, reset)
	} else {
		w.Println("%s", msg)
	}
}

// ValidationSuccess prints a validation success message.
func (w *Writer) ValidationSuccess(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	if w.color {
		w.Println("%s✓%s %s", green, reset, msg)
	} else {
		w.Println("%s", msg)
	}
}

// Hint prints a hint message for the user.
func (w *Writer) Hint(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	if w.color {
		w.Println("%s%s%s", dim, msg, reset)
	} else {
		w.Println("%s", msg)
	}
}
