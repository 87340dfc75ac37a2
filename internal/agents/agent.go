package agents

import "errors"

var ErrAgentNotFound = errors.New("agent not found")

type ToolType string

const (
	ToolRemote  ToolType = "mcp"
	ToolAgent   ToolType = "agent"
	ToolBuiltin ToolType = "builtin"
)

// Names of builtins the runtime treats specially.
const (
	BuiltinAskHuman       = "ask-human"
	BuiltinExecuteCommand = "executeCommand"
)

// Protocol classifies a tool attachment by the run protocol it takes part
// in. Most tools are ProtocolNone and simply execute.
type Protocol int

const (
	ProtocolNone Protocol = iota
	ProtocolAskHuman
	ProtocolCommand
	ProtocolSubAgent
)

func (p Protocol) String() string {
	switch p {
	case ProtocolAskHuman:
		return "ask-human"
	case ProtocolCommand:
		return "command"
	case ProtocolSubAgent:
		return "sub-agent"
	default:
		return "none"
	}
}

type ToolAttachment struct {
	Type        ToolType       `json:"type" yaml:"type"`
	Name        string         `json:"name" yaml:"name"`
	Description string         `json:"description,omitempty" yaml:"description,omitempty"`
	InputSchema map[string]any `json:"inputSchema,omitempty" yaml:"inputSchema,omitempty"`
	Server      string         `json:"mcpServerName,omitempty" yaml:"mcpServerName,omitempty"`
}

func (t ToolAttachment) Protocol() Protocol {
	switch t.Type {
	case ToolAgent:
		return ProtocolSubAgent
	case ToolBuiltin:
		switch t.Name {
		case BuiltinAskHuman:
			return ProtocolAskHuman
		case BuiltinExecuteCommand:
			return ProtocolCommand
		}
	}
	return ProtocolNone
}

// Agent is an immutable definition loaded by name. KnowledgeGraph agents run
// on the knowledge-graph model when one is configured.
type Agent struct {
	Name           string                    `json:"name" yaml:"name"`
	Description    string                    `json:"description,omitempty" yaml:"description,omitempty"`
	Instructions   string                    `json:"instructions" yaml:"instructions"`
	Model          string                    `json:"model,omitempty" yaml:"model,omitempty"`
	KnowledgeGraph bool                      `json:"knowledgeGraph,omitempty" yaml:"knowledgeGraph,omitempty"`
	Tools          map[string]ToolAttachment `json:"tools,omitempty" yaml:"tools,omitempty"`
}

func (a Agent) Tool(name string) (ToolAttachment, bool) {
	t, ok := a.Tools[name]
	return t, ok
}
