// Package policy evaluates route access rules for protected map routes.
//
// Rules are ordered CEL expressions over the verified credential's claims;
// the first matching rule wins and unmatched routes are denied. The default
// rule set simply requires the route to appear in the credential's route
// list, with an admin bypass.
package policy

import (
	"errors"
	"fmt"

	"github.com/google/cel-go/cel"
)

// maxExpressionLength is the maximum allowed length for rule expressions.
const maxExpressionLength = 1024

// Action is the result of a matching rule.
type Action string

const (
	// ActionAllow permits access to the route.
	ActionAllow Action = "allow"
	// ActionDeny blocks access to the route.
	ActionDeny Action = "deny"
)

// ErrInvalidRule is returned for rules that fail validation or compilation.
var ErrInvalidRule = errors.New("invalid route rule")

// Rule is a single route access rule.
type Rule struct {
	// Name is a human-readable identifier for the rule.
	Name string
	// Condition is a CEL expression over: route (string), email (string),
	// is_admin (bool), routes (list of string).
	Condition string
	// Action is applied when the condition evaluates true.
	Action Action
}

// Decision is the outcome of evaluating a route request.
type Decision struct {
	Allowed bool
	// RuleName names the rule that produced the decision, or "default-deny".
	RuleName string
}

// Request is the evaluation input for one route access check.
type Request struct {
	// Route is the requested route identifier.
	Route string
	// Email is the credential holder's email.
	Email string
	// IsAdmin is the credential's admin claim.
	IsAdmin bool
	// Routes is the credential's authorized route list.
	Routes []string
}

// DefaultRules is the rule set used when none is configured: admins see
// everything, regular users see the routes their credential names.
func DefaultRules() []Rule {
	return []Rule{
		{Name: "admin-bypass", Condition: "is_admin", Action: ActionAllow},
		{Name: "credential-routes", Condition: "route in routes", Action: ActionAllow},
	}
}

// compiledRule pairs a rule with its compiled program.
type compiledRule struct {
	rule Rule
	prg  cel.Program
}

// Engine evaluates an ordered rule set. Rules are compiled once at
// construction; evaluation is pure and safe for concurrent use.
type Engine struct {
	rules []compiledRule
}

// NewEngine compiles the given rules. An empty slice selects DefaultRules.
func NewEngine(rules []Rule) (*Engine, error) {
	if len(rules) == 0 {
		rules = DefaultRules()
	}

	env, err := cel.NewEnv(
		cel.Variable("route", cel.StringType),
		cel.Variable("email", cel.StringType),
		cel.Variable("is_admin", cel.BoolType),
		cel.Variable("routes", cel.ListType(cel.StringType)),
	)
	if err != nil {
		return nil, fmt.Errorf("create rule environment: %w", err)
	}

	compiled := make([]compiledRule, 0, len(rules))
	for _, r := range rules {
		if err := validateRule(r); err != nil {
			return nil, err
		}
		ast, issues := env.Compile(r.Condition)
		if issues != nil && issues.Err() != nil {
			return nil, fmt.Errorf("%w: %q: %v", ErrInvalidRule, r.Name, issues.Err())
		}
		if ast.OutputType() != cel.BoolType {
			return nil, fmt.Errorf("%w: %q: condition must be boolean, got %v", ErrInvalidRule, r.Name, ast.OutputType())
		}
		prg, err := env.Program(ast, cel.EvalOptions(cel.OptOptimize))
		if err != nil {
			return nil, fmt.Errorf("%w: %q: %v", ErrInvalidRule, r.Name, err)
		}
		compiled = append(compiled, compiledRule{rule: r, prg: prg})
	}
	return &Engine{rules: compiled}, nil
}

// Evaluate runs the rule set against a route request. First match wins;
// no match means deny.
func (e *Engine) Evaluate(req Request) (Decision, error) {
	routes := req.Routes
	if routes == nil {
		routes = []string{}
	}
	activation := map[string]any{
		"route":    req.Route,
		"email":    req.Email,
		"is_admin": req.IsAdmin,
		"routes":   routes,
	}

	for _, cr := range e.rules {
		out, _, err := cr.prg.Eval(activation)
		if err != nil {
			return Decision{}, fmt.Errorf("evaluate rule %q: %w", cr.rule.Name, err)
		}
		matched, ok := out.Value().(bool)
		if !ok {
			return Decision{}, fmt.Errorf("rule %q produced non-boolean result", cr.rule.Name)
		}
		if matched {
			return Decision{
				Allowed:  cr.rule.Action == ActionAllow,
				RuleName: cr.rule.Name,
			}, nil
		}
	}
	return Decision{Allowed: false, RuleName: "default-deny"}, nil
}

func validateRule(r Rule) error {
	if r.Name == "" {
		return fmt.Errorf("%w: rule name is required", ErrInvalidRule)
	}
	if r.Condition == "" {
		return fmt.Errorf("%w: %q: condition is empty", ErrInvalidRule, r.Name)
	}
	if len(r.Condition) > maxExpressionLength {
		return fmt.Errorf("%w: %q: condition too long (%d characters, max %d)",
			ErrInvalidRule, r.Name, len(r.Condition), maxExpressionLength)
	}
	if r.Action != ActionAllow && r.Action != ActionDeny {
		return fmt.Errorf("%w: %q: action must be allow or deny", ErrInvalidRule, r.Name)
	}
	return nil
}
