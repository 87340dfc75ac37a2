// Package prompt composes the system instructions sent with each model turn.
package prompt

import (
	"strings"
	"time"

	"github.com/flitsinc/agentrun/internal/agents"
)

const dateTimeLayout = "Monday, January 2, 2006 at 3:04 PM MST"

// Instructions composes the system instructions for one model turn of a:
// the current date and time, then the agent's own instructions.
func Instructions(a agents.Agent, now time.Time) string {
	return join(
		"Current date and time: "+now.Format(dateTimeLayout),
		a.Instructions,
	)
}

// join separates sections with a blank line, skipping empty ones.
func join(sections ...string) string {
	var sb strings.Builder
	for _, section := range sections {
		section = strings.TrimSpace(section)
		if section == "" {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(section)
	}
	return sb.String()
}
