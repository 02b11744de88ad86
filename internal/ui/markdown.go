// Package ui provides terminal styling for git-ai CLI output.
package ui

import (
	"os"

	"charm.land/glamour/v2"
	"charm.land/glamour/v2/styles"
	"github.com/muesli/termenv"
	"golang.org/x/term"
)

// RenderMarkdown renders markdown text using glamour, honoring the
// terminal's light or dark background. Returns the original text when
// rendering fails or when styled output would get in the way (agent
// mode, colors disabled). Word wraps at terminal width, capped for
// readability.
func RenderMarkdown(markdown string) string {
	// Skip glamour in agent mode to keep output clean for parsing
	if IsAgentMode() {
		return markdown
	}

	// Skip glamour if colors are disabled
	if !ShouldUseColor() {
		return markdown
	}

	// Wide lines are hard to scan, cap the wrap width even on big terminals.
	const maxReadableWidth = 100
	wrapWidth := 80 // default if terminal size unavailable
	if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 0 {
		wrapWidth = w
	}
	if wrapWidth > maxReadableWidth {
		wrapWidth = maxReadableWidth
	}

	// glamour v2 dropped WithAutoStyle; pick dark/light from the terminal
	// background the same way v1's auto style did.
	style := styles.LightStyle
	if termenv.HasDarkBackground() {
		style = styles.DarkStyle
	}

	renderer, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(style),
		glamour.WithWordWrap(wrapWidth),
	)
	if err != nil {
		return markdown
	}

	rendered, err := renderer.Render(markdown)
	if err != nil {
		return markdown
	}

	return rendered
}
