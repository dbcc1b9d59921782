// Package ui prints human-readable CLI messages.
package ui

import (
	"fmt"
	"io"
	"os"
	"strings"
)

// Out is where messages are written.
var Out io.Writer = os.Stdout

func ShowHeader(title string) {
	fmt.Fprintf(Out, " %s\n", strings.Repeat("─", len(title)+2))
	fmt.Fprintf(Out, " %s\n", title)
	fmt.Fprintf(Out, " %s\n", strings.Repeat("─", len(title)+2))
}

func ShowSuccess(format string, args ...any) {
	fmt.Fprintf(Out, " ✓ %s\n", fmt.Sprintf(format, args...))
}

func ShowError(msg string, err error) {
	if err != nil {
		fmt.Fprintf(Out, " ✗ %s: %v\n", msg, err)
	} else {
		fmt.Fprintf(Out, " ✗ %s\n", msg)
	}
}

func ShowWarning(format string, args ...any) {
	fmt.Fprintf(Out, " ! %s\n", fmt.Sprintf(format, args...))
}

func ShowInfo(format string, args ...any) {
	fmt.Fprintf(Out, " ℹ %s\n", fmt.Sprintf(format, args...))
}

// ShowField prints an aligned "label: value" line.
func ShowField(label string, value any) {
	fmt.Fprintf(Out, "   %-14s %v\n", label+":", value)
}
