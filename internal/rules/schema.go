package rules

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// RuleSetSpec is the on-disk shape of a rule source. JSON sources decode
// through the same YAML decoder.
type RuleSetSpec struct {
	Team           string              `yaml:"team"`
	Description    string              `yaml:"description"`
	GlobalSettings *GlobalSettingsSpec `yaml:"global_settings"`
	Rules          RuleSpecs           `yaml:"rules" validate:"dive"`
}

// GlobalSettingsSpec mirrors GlobalSettings before validation.
type GlobalSettingsSpec struct {
	DefaultSeverity string   `yaml:"default_severity" validate:"omitempty,severity"`
	IgnorePatterns  []string `yaml:"ignore_patterns" validate:"dive,required,glob"`
}

// RuleSpec is a single rule definition as written by users. Every optional
// field receives an explicit default during compilation.
type RuleSpec struct {
	Category      string        `yaml:"category" validate:"omitempty,category"`
	Severity      string        `yaml:"severity" validate:"omitempty,severity"`
	Description   string        `yaml:"description"`
	Patterns      []PatternSpec `yaml:"patterns" validate:"dive"`
	AntiPatterns  []PatternSpec `yaml:"anti_patterns" validate:"dive"`
	FileTypes     []string      `yaml:"file_types" validate:"dive,required"`
	Exceptions    []string      `yaml:"exceptions" validate:"dive,required"`
	Enabled       *bool         `yaml:"enabled"`
	AutoFix       bool          `yaml:"auto_fix"`
	FixSuggestion string        `yaml:"fix_suggestion"`
	CustomCheck   string        `yaml:"custom_check" validate:"omitempty,checkname"`
	Tags          []string      `yaml:"tags"`
}

// PatternSpec accepts either a bare expression string or a mapping.
type PatternSpec struct {
	Pattern       string `yaml:"pattern" validate:"required"`
	Flags         string `yaml:"flags" validate:"omitempty,flags"`
	Message       string `yaml:"message"`
	FixSuggestion string `yaml:"fix_suggestion"`
	AutoFix       bool   `yaml:"auto_fix"`
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (p *PatternSpec) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		p.Pattern = node.Value
		return nil
	}
	type plain PatternSpec
	var v plain
	if err := node.Decode(&v); err != nil {
		return err
	}
	*p = PatternSpec(v)
	return nil
}

// NamedRuleSpec pairs a rule name with its definition.
type NamedRuleSpec struct {
	Name string `validate:"required,rulename"`
	Spec RuleSpec
}

// RuleSpecs keeps rules in document order; a plain map would lose it.
type RuleSpecs []NamedRuleSpec

// UnmarshalYAML implements yaml.Unmarshaler.
func (rs *RuleSpecs) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: rules must be a mapping of rule name to definition", node.Line)
	}
	index := make(map[string]int, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, value := node.Content[i], node.Content[i+1]
		var spec RuleSpec
		if err := value.Decode(&spec); err != nil {
			return fmt.Errorf("rule %q: %w", key.Value, err)
		}
		if at, ok := index[key.Value]; ok {
			(*rs)[at].Spec = spec
			continue
		}
		index[key.Value] = len(*rs)
		*rs = append(*rs, NamedRuleSpec{Name: key.Value, Spec: spec})
	}
	return nil
}

// DecodeRuleSet parses a rule source without validating it.
func DecodeRuleSet(data []byte) (*RuleSetSpec, error) {
	var spec RuleSetSpec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return nil, err
	}
	return &spec, nil
}
