// Package output prints human-facing status lines. They go to stderr so that
// stdout carries only the record stream.
package output

import (
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/fatih/color"
)

var (
	successColor = color.New(color.FgGreen, color.Bold)
	errorColor   = color.New(color.FgRed, color.Bold)
	infoColor    = color.New(color.FgCyan)
	warnColor    = color.New(color.FgYellow)
	keyColor     = color.New(color.FgWhite, color.Bold)
)

// Writer receives all status output.
var Writer io.Writer = os.Stderr

func Success(format string, a ...interface{}) {
	successColor.Fprintf(Writer, "✓ "+format+"\n", a...)
}

func Error(format string, a ...interface{}) {
	errorColor.Fprintf(Writer, "✗ "+format+"\n", a...)
}

func Info(format string, a ...interface{}) {
	infoColor.Fprintf(Writer, format+"\n", a...)
}

func Warn(format string, a ...interface{}) {
	warnColor.Fprintf(Writer, "⚠ "+format+"\n", a...)
}

// Fields prints key/value pairs aligned on the key column, sorted by key.
func Fields(w io.Writer, fields map[string]string) {
	keys := make([]string, 0, len(fields))
	width := 0
	for k := range fields {
		keys = append(keys, k)
		if len(k) > width {
			width = len(k)
		}
	}
	sort.Strings(keys)

	for _, k := range keys {
		keyColor.Fprintf(w, "%-*s", width, k)
		fmt.Fprintf(w, "  %s\n", fields[k])
	}
}
