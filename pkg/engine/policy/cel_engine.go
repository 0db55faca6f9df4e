package policy

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/google/cel-go/cel"
)

// Rule actions.
const (
	ActionSuppress = "suppress"
	ActionNotify   = "notify"
)

// DynamicRule represents a user-defined alert rule (from the rules YAML file).
type DynamicRule struct {
	ID        string `yaml:"id" json:"id"`
	Condition string `yaml:"condition" json:"condition"` // CEL expression: "event_name == 'CreateRole' && user_type == 'AWSService'"
	Action    string `yaml:"action" json:"action"`       // "suppress" or "notify"
	Priority  int    `yaml:"priority" json:"priority"`
}

// EvaluationContext is the view of an audit event exposed to rules.
type EvaluationContext struct {
	EventName   string
	EventSource string
	SourceIP    string
	AccountID   string
	Region      string
	UserType    string
	User        string
	Params      map[string]interface{}
}

func (c EvaluationContext) vars() map[string]interface{} {
	params := c.Params
	if params == nil {
		params = map[string]interface{}{}
	}
	return map[string]interface{}{
		"event_name":   c.EventName,
		"event_source": c.EventSource,
		"source_ip":    c.SourceIP,
		"account_id":   c.AccountID,
		"region":       c.Region,
		"user_type":    c.UserType,
		"user":         c.User,
		"params":       params,
	}
}

type compiledRule struct {
	rule DynamicRule
	prg  cel.Program
}

// CELEngine manages the compilation and execution of dynamic rules.
type CELEngine struct {
	env   *cel.Env
	rules []compiledRule
}

// NewCELEngine initializes the CEL environment with the audit event variables.
func NewCELEngine() (*CELEngine, error) {
	env, err := cel.NewEnv(
		cel.Variable("event_name", cel.StringType),
		cel.Variable("event_source", cel.StringType),
		cel.Variable("source_ip", cel.StringType),
		cel.Variable("account_id", cel.StringType),
		cel.Variable("region", cel.StringType),
		cel.Variable("user_type", cel.StringType),
		cel.Variable("user", cel.StringType),
		cel.Variable("params", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL env: %w", err)
	}

	return &CELEngine{env: env}, nil
}

// Compile compiles rules into executable programs. Rules are kept sorted by priority,
// highest first.
func (e *CELEngine) Compile(rules []DynamicRule) error {
	for _, r := range rules {
		ast, issues := e.env.Compile(r.Condition)
		if issues != nil && issues.Err() != nil {
			return fmt.Errorf("rule %s compilation error: %w", r.ID, issues.Err())
		}
		if !ast.OutputType().IsExactType(cel.BoolType) {
			return fmt.Errorf("rule %s must evaluate to bool, got %s", r.ID, ast.OutputType())
		}

		prg, err := e.env.Program(ast)
		if err != nil {
			return fmt.Errorf("rule %s program creation error: %w", r.ID, err)
		}

		e.rules = append(e.rules, compiledRule{rule: r, prg: prg})
	}

	sort.SliceStable(e.rules, func(i, j int) bool {
		return e.rules[i].rule.Priority > e.rules[j].rule.Priority
	})
	return nil
}

// Evaluate returns the rules matching ec, in priority order.
// A rule that fails to evaluate is logged and treated as not matching.
func (e *CELEngine) Evaluate(ctx context.Context, ec EvaluationContext) ([]DynamicRule, error) {
	var matches []DynamicRule
	vars := ec.vars()

	for _, r := range e.rules {
		if err := ctx.Err(); err != nil {
			return matches, err
		}
		out, _, err := r.prg.Eval(vars)
		if err != nil {
			slog.Error("Rule evaluation failed", "rule_id", r.rule.ID, "error", err)
			continue
		}

		if match, ok := out.Value().(bool); ok && match {
			matches = append(matches, r.rule)
		}
	}

	return matches, nil
}
