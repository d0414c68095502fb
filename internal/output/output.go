// Package output writes the line-oriented CLI messages and prompts that
// surround a repair report.
package output

import (
	"fmt"
	"io"
	"strings"
)

// Icons used in status lines.
const (
	IconOK      = "✅"
	IconWarn    = "⚠️ "
	IconError   = "❌"
	IconInfo    = "🔍"
	IconRecover = "📥"
	IconBackup  = "💾"
)

// Writer provides formatted output for CLI.
type Writer struct {
	out    io.Writer
	indent string
}

// New creates a new output Writer.
func New(out io.Writer) *Writer {
	return &Writer{out: out}
}

// Out returns the underlying writer.
func (w *Writer) Out() io.Writer {
	return w.out
}

// Indented returns a Writer that prefixes every line with two more spaces.
func (w *Writer) Indented() *Writer {
	return &Writer{out: w.out, indent: w.indent + "  "}
}

// Status prints a status message with an icon. Write errors are ignored.
func (w *Writer) Status(icon, msg string) {
	if icon != "" {
		_, _ = fmt.Fprintf(w.out, "%s%s %s\n", w.indent, icon, msg)
	} else {
		_, _ = fmt.Fprintf(w.out, "%s   %s\n", w.indent, msg)
	}
}

// Statusf prints a formatted status message with an icon.
func (w *Writer) Statusf(icon, format string, args ...any) {
	w.Status(icon, fmt.Sprintf(format, args...))
}

// Success prints a success message with checkmark.
func (w *Writer) Success(msg string) {
	w.Status(IconOK, msg)
}

// Successf prints a formatted success message.
func (w *Writer) Successf(format string, args ...any) {
	w.Success(fmt.Sprintf(format, args...))
}

// Warning prints a warning message.
func (w *Writer) Warning(msg string) {
	w.Status(IconWarn, msg)
}

// Warningf prints a formatted warning message.
func (w *Writer) Warningf(format string, args ...any) {
	w.Warning(fmt.Sprintf(format, args...))
}

// Error prints an error message.
func (w *Writer) Error(msg string) {
	w.Status(IconError, msg)
}

// Errorf prints a formatted error message.
func (w *Writer) Errorf(format string, args ...any) {
	w.Error(fmt.Sprintf(format, args...))
}

// Line prints an indented plain line.
func (w *Writer) Line(format string, args ...any) {
	_, _ = fmt.Fprintf(w.out, "%s%s\n", w.indent, fmt.Sprintf(format, args...))
}

// KeyValue prints "key: value" with keys padded to width.
func (w *Writer) KeyValue(key string, value any, width int) {
	_, _ = fmt.Fprintf(w.out, "%s%-*s %v\n", w.indent, width+1, key+":", value)
}

// Block prints multi-line content indented by two spaces, surrounded by
// blank lines.
func (w *Writer) Block(content string) {
	w.Newline()
	for _, line := range strings.Split(strings.TrimRight(content, "\n"), "\n") {
		_, _ = fmt.Fprintf(w.out, "%s  %s\n", w.indent, line)
	}
	w.Newline()
}

// Newline prints an empty line.
func (w *Writer) Newline() {
	_, _ = fmt.Fprintln(w.out)
}

// ShortID returns the first eight characters of an ID followed by "...".
func ShortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8] + "..."
}

// FormatBytes formats bytes in human-readable format.
func FormatBytes(bytes int64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
	)

	switch {
	case bytes >= GB:
		return fmt.Sprintf("%.1f GB", float64(bytes)/float64(GB))
	case bytes >= MB:
		return fmt.Sprintf("%.1f MB", float64(bytes)/float64(MB))
	case bytes >= KB:
		return fmt.Sprintf("%.1f KB", float64(bytes)/float64(KB))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
