package ui

import (
	"fmt"
	"hash/fnv"
)

// ANSI256 color codes matching the Ayu palette.
const (
	colorAccent = 74  // blue
	colorMuted  = 245 // medium gray
	colorError  = 203 // red
)

// agentPalette is cycled by agent name so each agent keeps one color.
var agentPalette = []int{74, 114, 179, 176, 80, 215, 141, 150}

var noColor bool

func paint(code int, s string) string {
	if noColor {
		return s
	}
	return fmt.Sprintf("\x1b[38;5;%dm%s\x1b[0m", code, s)
}

// RenderAccent returns s in the accent (blue) color.
func RenderAccent(s string) string { return paint(colorAccent, s) }

// RenderMuted returns s in the muted (gray) color.
func RenderMuted(s string) string { return paint(colorMuted, s) }

// RenderError returns s in the error (red) color.
func RenderError(s string) string { return paint(colorError, s) }

// RenderAgent returns the agent name in a color derived from the name, so
// interleaved output from several agents stays readable.
func RenderAgent(agent string) string {
	return paint(AgentColor(agent), agent)
}

// AgentColor returns the palette entry assigned to agent.
func AgentColor(agent string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(agent))
	return agentPalette[h.Sum32()%uint32(len(agentPalette))]
}

// ForceNoColor disables color output globally.
func ForceNoColor() {
	noColor = true
}
