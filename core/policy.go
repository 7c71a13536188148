package core

// PermissionMode selects how the approval gate treats tool invocations that
// are not covered by an explicit veto.
type PermissionMode string

const (
	// PermissionDefault routes every tool invocation through interactive approval.
	PermissionDefault PermissionMode = "default"
	// PermissionAcceptEdits behaves like PermissionDefault at the gate level;
	// the runtime may pre-approve file edit tools under this mode.
	PermissionAcceptEdits PermissionMode = "acceptEdits"
	// PermissionBypass approves every tool invocation without asking. The path
	// restriction hook and the disabled-skill veto still apply.
	PermissionBypass PermissionMode = "bypassPermissions"
	// PermissionPlan restricts the runtime to read-only planning; gate
	// treatment is interactive.
	PermissionPlan PermissionMode = "plan"
	// PermissionDontAsk denies any invocation that would require an
	// interactive prompt instead of suspending the run.
	PermissionDontAsk PermissionMode = "dontAsk"
)

// MCPServer configures one auxiliary MCP server made available to a run.
type MCPServer struct {
	Type    string            `json:"type,omitempty"` // "stdio", "sse", "http"
	Command string            `json:"command,omitempty"`
	Args    []string          `json:"args,omitempty"`
	URL     string            `json:"url,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
}

// PolicySettings is the immutable per-run policy input. It is supplied by the
// caller for every invocation and never mutated by the orchestration core.
type PolicySettings struct {
	// Model selects the runtime model id. Empty uses the runtime default.
	Model string `json:"model,omitempty"`

	// MaxTurns bounds agent loop iterations; 0 means runtime default.
	MaxTurns int `json:"max_turns,omitempty"`
	// MaxTokens bounds completion tokens per model call; 0 means default.
	MaxTokens int `json:"max_tokens,omitempty"`
	// MaxBudgetUSD caps estimated spend for the run; 0 disables the cap.
	MaxBudgetUSD float64 `json:"max_budget_usd,omitempty"`

	// WorkingDir is the directory the run operates in. It anchors relative
	// paths and the write restriction when RestrictToWorkingDir is set.
	WorkingDir string `json:"working_dir,omitempty"`

	PermissionMode PermissionMode `json:"permission_mode,omitempty"`

	// AllowedTools lists tool names offered to the runtime. ToolPreset may
	// name a predefined set instead; an explicit list wins.
	AllowedTools []string `json:"allowed_tools,omitempty"`
	ToolPreset   string   `json:"tool_preset,omitempty"`

	MCPServers map[string]MCPServer `json:"mcp_servers,omitempty"`

	// RestrictToWorkingDir enables the path restriction hook vetoing writes
	// outside WorkingDir and ExtraWritableDirs.
	RestrictToWorkingDir bool     `json:"restrict_to_working_dir,omitempty"`
	ExtraWritableDirs    []string `json:"extra_writable_dirs,omitempty"`

	// SkillsMode controls skill discovery; DisabledSkills vetoes individual
	// skills by name even in bypass mode.
	SkillsMode     string   `json:"skills_mode,omitempty"`
	DisabledSkills []string `json:"disabled_skills,omitempty"`

	// APIKey and BaseURL, when set, override provider credentials for the
	// duration of the run via a scoped override that is always restored.
	APIKey  string `json:"-"`
	BaseURL string `json:"-"`
}

// SkillDisabled reports whether name is in the disabled-skill set.
func (p PolicySettings) SkillDisabled(name string) bool {
	for _, s := range p.DisabledSkills {
		if s == name {
			return true
		}
	}
	return false
}
