package guard

import (
	"fmt"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/hupe1980/agentgate/core"
	"github.com/hupe1980/agentgate/runtime"
)

// Tool names subject to the write restriction. Any other tool passes through
// untouched; the hook is a narrow veto layer, not a permission system.
const (
	ToolWrite        = "Write"
	ToolEdit         = "Edit"
	ToolNotebookEdit = "NotebookEdit"
	ToolBash         = "Bash"
)

// BuildRestrictionHook composes the path guard and the write-target extractor
// into a pre-execution veto confined to cwd plus extra writable directories.
// The returned hook runs independently of the approval gate's permission
// mode: even a fully auto-approving run keeps this veto.
func BuildRestrictionHook(cwd string, extra []string) runtime.PreToolHook {
	allowed := append([]string{cwd}, extra...)

	deny := func(resolved string) *core.ToolDecision {
		d := core.Deny(fmt.Sprintf(
			"Path %s is outside the allowed directories: %s",
			resolved, strings.Join(allowed, ", "),
		))
		return &d
	}

	return func(toolName, input string) *core.ToolDecision {
		switch toolName {
		case ToolWrite, ToolEdit:
			if path := gjson.Get(input, "file_path").String(); path != "" {
				if resolved, outside := ResolveOutsideAllowed(path, cwd, extra); outside {
					return deny(resolved)
				}
			}
		case ToolNotebookEdit:
			if path := gjson.Get(input, "notebook_path").String(); path != "" {
				if resolved, outside := ResolveOutsideAllowed(path, cwd, extra); outside {
					return deny(resolved)
				}
			}
		case ToolBash:
			command := gjson.Get(input, "command").String()
			for _, target := range ExtractWriteTargets(command) {
				if resolved, outside := ResolveOutsideAllowed(target, cwd, extra); outside {
					return deny(resolved)
				}
			}
		}
		return nil
	}
}
