// Package ui provides terminal UI utilities for agentsync.
package ui

import (
	"os"
	"strings"

	"github.com/fatih/color"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Paint functions for styled output.
var (
	Success = color.New(color.FgGreen).SprintFunc()
	Error   = color.New(color.FgRed).SprintFunc()
	Warning = color.New(color.FgYellow).SprintFunc()
	Info    = color.New(color.FgCyan).SprintFunc()
	Bold    = color.New(color.Bold).SprintFunc()
	// Dim marks secondary details such as hashes and paths.
	Dim = color.New(color.Faint).SprintFunc()
	// Header is used for table headers and section titles.
	Header = color.New(color.FgCyan, color.Bold).SprintFunc()
)

// Status symbols.
const (
	SymbolSuccess = "✓"
	SymbolError   = "✗"
	SymbolWarning = "⚠"
	SymbolSkipped = "-"
	SymbolPending = "○"
)

// status prefixes msg with a painted symbol. An empty msg yields only the
// symbol.
func status(paint func(...any) string, symbol, msg string) string {
	if msg == "" {
		return paint(symbol)
	}
	return paint(symbol) + " " + msg
}

// StatusSuccess marks a finished step.
func StatusSuccess(msg string) string { return status(Success, SymbolSuccess, msg) }

// StatusError marks a failed step.
func StatusError(msg string) string { return status(Error, SymbolError, msg) }

// StatusWarning marks a step that needs attention.
func StatusWarning(msg string) string { return status(Warning, SymbolWarning, msg) }

// StatusSkipped marks a provider or file that was left alone.
func StatusSkipped(msg string) string { return status(Dim, SymbolSkipped, msg) }

// StatusPending marks a change that has not been pushed or pulled yet.
func StatusPending(msg string) string { return status(Info, SymbolPending, msg) }

// DisableColors turns off color output.
func DisableColors() {
	color.NoColor = true
}

// EnableColors enables color output.
func EnableColors() {
	color.NoColor = false
}

// IsColorEnabled returns whether colors are currently enabled.
func IsColorEnabled() bool {
	return !color.NoColor
}

// ConfigureColors applies the output.color setting ("auto", "always" or
// "never"). noColor (the --no-color flag) and NO_COLOR always win.
func ConfigureColors(mode string, noColor bool) {
	if noColor || os.Getenv("NO_COLOR") != "" {
		DisableColors()
		return
	}
	switch strings.ToLower(mode) {
	case "always":
		EnableColors()
	case "never":
		DisableColors()
	}
	// "auto" keeps fatih/color's own terminal detection.
}

// Title converts identifiers such as "local_ahead" or "remote-ahead" into
// display text ("Local Ahead").
func Title(s string) string {
	s = strings.NewReplacer("_", " ", "-", " ").Replace(s)
	return cases.Title(language.English).String(s)
}
