// Package batch implements the script runtime: parsing JSON/YAML/text
// scripts into steps, validating them against the action allow-list and
// path-safety rules, and executing them through the tool registry.
package batch

// Format identifies how a script was encoded on disk.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
	FormatText Format = "text"
)

// Step is one unit of work in a script. Exactly one of Action or Command is
// set: Action steps invoke a tool directly, Command steps go through the
// natural-language interpreter first.
type Step struct {
	Action      string         `json:"action,omitempty" yaml:"action,omitempty"`
	Params      map[string]any `json:"params,omitempty" yaml:"params,omitempty"`
	Command     string         `json:"command,omitempty" yaml:"command,omitempty"`
	Description string         `json:"description,omitempty" yaml:"description,omitempty"`
}

// Script is a parsed batch script ready for validation and execution.
type Script struct {
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	Steps       []Step `json:"steps" yaml:"steps"`

	SourcePath string `json:"-" yaml:"-"`
	Format     Format `json:"-" yaml:"-"`
}
