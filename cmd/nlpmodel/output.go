package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
)

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorBold   = "\033[1m"
)

// stderr receives all human-facing CLI output; tests swap it for a buffer.
var stderr io.Writer = os.Stderr

func colorize(color, text string) string {
	if noColor {
		return text
	}
	return color + text + colorReset
}

// printMarked writes one status line prefixed by mark, in color.
func printMarked(color, mark, format string, args []any) {
	fmt.Fprintln(stderr, colorize(color, mark+" "+fmt.Sprintf(format, args...)))
}

func printSuccess(format string, args ...any) { printMarked(colorGreen, "✓", format, args) }

func printError(format string, args ...any) { printMarked(colorRed, "✗", format, args) }

func printWarning(format string, args ...any) { printMarked(colorYellow, "⚠", format, args) }

func printStep(format string, args ...any) { printMarked(colorCyan, "→", format, args) }

// printStatus writes an indented "label: value" row.
func printStatus(label string, format string, args ...any) {
	fmt.Fprintf(stderr, "  %s %s\n", colorize(colorBold, label+":"), fmt.Sprintf(format, args...))
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
