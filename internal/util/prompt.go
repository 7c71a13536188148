// Package util contains small shared helpers that do not warrant their own
// public package.
package util

import (
	"fmt"
	"strings"

	"github.com/hupe1980/agentgate/core"
)

// FlattenHistory folds an ordered conversation into the single prompt string
// the runtime consumes: every message but the last is embedded as tagged
// history, the last message is the active prompt.
func FlattenHistory(history []core.Message) string {
	if len(history) == 0 {
		return ""
	}

	last := history[len(history)-1]
	if len(history) == 1 {
		return last.Content
	}

	var b strings.Builder
	b.WriteString("<conversation-history>\n")
	for _, m := range history[:len(history)-1] {
		fmt.Fprintf(&b, "[%s] %s\n", m.Role, m.Content)
	}
	b.WriteString("</conversation-history>\n\n")
	b.WriteString(last.Content)
	return b.String()
}
