package core

// ToolItem is a single callable action inside a tool bundle.
type ToolItem struct {
	Name         string         `json:"name"`
	Description  string         `json:"description,omitempty"`
	InputSchema  map[string]any `json:"input_schema,omitempty"`
	OutputSchema map[string]any `json:"output_schema,omitempty"`
	Config       map[string]any `json:"config,omitempty"`
}

// ToolBundle groups tool items under a unique bundle name. Item identity is
// always the fully qualified form "bundle/item"; bare item names only exist
// in references, never in resolved state.
type ToolBundle struct {
	Name  string     `json:"name"`
	Items []ToolItem `json:"items"`
}

// ResolvedTool is a tool item bound to the bundle that won resolution for its
// name. The ID is the qualified identifier injected into agent instances.
type ResolvedTool struct {
	ID     string   `json:"id"` // "bundle/item"
	Bundle string   `json:"bundle"`
	Item   ToolItem `json:"item"`
}

// QualifiedToolID composes the canonical "bundle/item" identifier.
func QualifiedToolID(bundle, item string) string { return bundle + "/" + item }
