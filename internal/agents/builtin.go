package agents

// Built-in agent ids.
const (
	CopilotAgent      = "copilot"
	NoteCreationAgent = "note_creation"
)

var copilot = Agent{
	Name:         CopilotAgent,
	Description:  "General purpose assistant that can run shell commands and ask for clarification.",
	Instructions: "You are a helpful assistant working in the user's workspace. Ask the human when a request is ambiguous.",
	Tools: map[string]ToolAttachment{
		BuiltinAskHuman:       {Type: ToolBuiltin, Name: BuiltinAskHuman},
		BuiltinExecuteCommand: {Type: ToolBuiltin, Name: BuiltinExecuteCommand},
	},
}

var noteCreationVariants = map[string]string{
	"low": `---
description: Turns source material into notes, keeping most details.
knowledgeGraph: true
---
Create notes for every entity mentioned in the input.`,
	"medium": `---
description: Turns source material into notes for notable entities.
knowledgeGraph: true
---
Create notes for people, organisations and projects that matter to the user.`,
	"high": `---
description: Turns source material into notes only for key entities.
knowledgeGraph: true
---
Create notes only for entities the user interacts with directly.`,
}

// RegisterDefaults installs the built-in agents. strictness selects the
// note-creation variant and may be nil.
func RegisterDefaults(l *Loader, strictness func() string) {
	l.Register(CopilotAgent, Static(copilot))
	l.Register("rowboatx", Static(copilot))
	l.Register(NoteCreationAgent, Variants(NoteCreationAgent, strictness, noteCreationVariants, "high"))
}
