package core

// SkillDefinition is a validated skill manifest: a named instruction document
// optionally requiring tools to be present on any agent that injects it.
type SkillDefinition struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Instruction string `json:"instruction"`

	// RequiredTools lists tool identifiers this skill depends on. Entries may
	// be qualified ("bundle/item"), bare item names or bundle names; the
	// factory checks them against the agent's resolved tool set.
	RequiredTools []string `json:"required_tools,omitempty"`
}
