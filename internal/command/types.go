package command

// Param describes one user-facing input of a command template.
type Param struct {
	Name     string `json:"name" yaml:"name"`
	Label    string `json:"label" yaml:"label"`
	Type     string `json:"type" yaml:"type"`
	Required bool   `json:"required,omitempty" yaml:"required,omitempty"`
}

// Command pairs a fixed system prompt with a user-content template. Built-in
// commands ship with the binary; custom commands are user-created and keyed
// by slug in the same namespace.
type Command struct {
	ID           string  `json:"id" yaml:"id"`
	Name         string  `json:"name" yaml:"name"`
	Slug         string  `json:"slug" yaml:"slug"`
	Kind         string  `json:"kind" yaml:"kind"`
	Params       []Param `json:"params" yaml:"params"`
	SystemPrompt string  `json:"systemPrompt" yaml:"systemPrompt"`
	UserTemplate string  `json:"userTemplate" yaml:"userTemplate"`
	Model        string  `json:"model,omitempty" yaml:"model,omitempty"`
}
