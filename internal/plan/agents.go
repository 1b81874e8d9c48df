package plan

type builtinAgent struct {
	command []string
	// acp is the command that speaks ACP on stdio; nil if unsupported.
	acp []string
}

var builtins = map[string]builtinAgent{
	"claude": {
		command: []string{"claude"},
		acp:     []string{"claude-code-acp"},
	},
	"codex": {
		command: []string{"codex"},
		acp:     []string{"codex-acp"},
	},
	"gemini": {
		command: []string{"gemini"},
		acp:     []string{"gemini", "--experimental-acp"},
	},
}

// BuiltinAgents returns the names of the built-in agents.
func BuiltinAgents() []string {
	return []string{"claude", "codex", "gemini"}
}
