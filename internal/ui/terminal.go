// Package ui provides terminal styling for git-ai CLI output.
package ui

import (
	"os"

	"github.com/muesli/termenv"
	"golang.org/x/term"
)

// IsTerminal reports whether stdout is attached to a terminal.
func IsTerminal() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// ShouldUseColor reports whether output should be styled with ANSI colors.
// NO_COLOR (set to anything, even empty) disables color and takes
// precedence over everything else. CLICOLOR=0 disables color, and
// CLICOLOR_FORCE enables it even when stdout is not a TTY. With none of
// those set, color follows the TTY check.
func ShouldUseColor() bool {
	if _, set := os.LookupEnv("NO_COLOR"); set {
		return false
	}
	if termenv.EnvNoColor() {
		return false
	}
	if force := os.Getenv("CLICOLOR_FORCE"); force != "" && force != "0" {
		return true
	}
	return IsTerminal()
}

// ShouldUseEmoji reports whether status icons should be emitted.
// GIT_AI_NO_EMOJI disables them, otherwise they follow the TTY check.
func ShouldUseEmoji() bool {
	if os.Getenv("GIT_AI_NO_EMOJI") != "" {
		return false
	}
	return IsTerminal()
}

// IsAgentMode reports whether output is being consumed by a coding agent
// rather than a human. Agents set GIT_AI_AGENT=1 so command output stays
// plain and parseable.
func IsAgentMode() bool {
	v := os.Getenv("GIT_AI_AGENT")
	return v == "1" || v == "true"
}
