package policy

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// RuleFile is the on-disk rules format.
type RuleFile struct {
	Rules []DynamicRule `yaml:"rules"`
}

// LoadRules reads a YAML rules file.
func LoadRules(path string) ([]DynamicRule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rules file: %w", err)
	}
	return ParseRules(data)
}

// ParseRules parses rules YAML and validates actions.
func ParseRules(data []byte) ([]DynamicRule, error) {
	var f RuleFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse rules yaml: %w", err)
	}
	for i, r := range f.Rules {
		if r.ID == "" {
			return nil, fmt.Errorf("rule %d has no id", i)
		}
		switch r.Action {
		case ActionSuppress, ActionNotify:
		case "":
			f.Rules[i].Action = ActionSuppress
		default:
			return nil, fmt.Errorf("rule %s: unknown action %q", r.ID, r.Action)
		}
	}
	return f.Rules, nil
}

// Suppressor decides whether an alert should be dropped. The highest-priority matching
// rule wins; an explicit notify rule overrides lower-priority suppress rules.
type Suppressor struct {
	engine *CELEngine
}

// NewSuppressor compiles rules. An empty rule set never suppresses.
func NewSuppressor(rules []DynamicRule) (*Suppressor, error) {
	engine, err := NewCELEngine()
	if err != nil {
		return nil, err
	}
	if err := engine.Compile(rules); err != nil {
		return nil, err
	}
	return &Suppressor{engine: engine}, nil
}

// Suppressed reports whether ec is muted, and by which rule.
func (s *Suppressor) Suppressed(ctx context.Context, ec EvaluationContext) (bool, string, error) {
	if s == nil || s.engine == nil {
		return false, "", nil
	}
	matches, err := s.engine.Evaluate(ctx, ec)
	if err != nil {
		return false, "", err
	}
	if len(matches) == 0 {
		return false, "", nil
	}
	top := matches[0]
	return top.Action == ActionSuppress, top.ID, nil
}
