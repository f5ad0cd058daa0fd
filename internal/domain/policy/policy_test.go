package policy

import (
	"errors"
	"testing"
)

func TestNewEngine_InvalidRules(t *testing.T) {
	tests := []struct {
		name  string
		rules []Rule
	}{
		{name: "missing name", rules: []Rule{{Condition: "true", Action: ActionAllow}}},
		{name: "empty condition", rules: []Rule{{Name: "r", Action: ActionAllow}}},
		{name: "bad action", rules: []Rule{{Name: "r", Condition: "true", Action: "maybe"}}},
		{name: "syntax error", rules: []Rule{{Name: "r", Condition: "route in", Action: ActionAllow}}},
		{name: "unknown variable", rules: []Rule{{Name: "r", Condition: "tool == 'x'", Action: ActionAllow}}},
		{name: "non-boolean condition", rules: []Rule{{Name: "r", Condition: "route", Action: ActionAllow}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewEngine(tt.rules)
			if !errors.Is(err, ErrInvalidRule) {
				t.Errorf("NewEngine() error = %v, want ErrInvalidRule", err)
			}
		})
	}
}

func TestEngine_DefaultRules(t *testing.T) {
	engine, err := NewEngine(nil)
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}

	tests := []struct {
		name        string
		req         Request
		wantAllowed bool
		wantRule    string
	}{
		{
			name:        "admin sees any route",
			req:         Request{Route: "citadel", Email: "admin@example.com", IsAdmin: true},
			wantAllowed: true,
			wantRule:    "admin-bypass",
		},
		{
			name:        "credential route allowed",
			req:         Request{Route: "harbour", Email: "guest@example.com", Routes: []string{"harbour", "old-town"}},
			wantAllowed: true,
			wantRule:    "credential-routes",
		},
		{
			name:        "unlisted route denied",
			req:         Request{Route: "citadel", Email: "guest@example.com", Routes: []string{"harbour"}},
			wantAllowed: false,
			wantRule:    "default-deny",
		},
		{
			name:        "nil route list denied",
			req:         Request{Route: "harbour", Email: "guest@example.com"},
			wantAllowed: false,
			wantRule:    "default-deny",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := engine.Evaluate(tt.req)
			if err != nil {
				t.Fatalf("Evaluate() error = %v", err)
			}
			if got.Allowed != tt.wantAllowed || got.RuleName != tt.wantRule {
				t.Errorf("Evaluate() = %+v, want allowed=%v rule=%s", got, tt.wantAllowed, tt.wantRule)
			}
		})
	}
}

func TestEngine_FirstMatchWins(t *testing.T) {
	engine, err := NewEngine([]Rule{
		{Name: "block-citadel", Condition: "route == 'citadel'", Action: ActionDeny},
		{Name: "allow-all", Condition: "true", Action: ActionAllow},
	})
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}

	denied, err := engine.Evaluate(Request{Route: "citadel", IsAdmin: true})
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if denied.Allowed || denied.RuleName != "block-citadel" {
		t.Errorf("Evaluate(citadel) = %+v, want denied by block-citadel", denied)
	}

	allowed, err := engine.Evaluate(Request{Route: "harbour"})
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if !allowed.Allowed || allowed.RuleName != "allow-all" {
		t.Errorf("Evaluate(harbour) = %+v, want allowed by allow-all", allowed)
	}
}

func TestEngine_EmailCondition(t *testing.T) {
	engine, err := NewEngine([]Rule{
		{Name: "vip", Condition: "email.endsWith('@vip.example.com')", Action: ActionAllow},
	})
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}

	d, err := engine.Evaluate(Request{Route: "harbour", Email: "guest@vip.example.com"})
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if !d.Allowed {
		t.Errorf("Evaluate() = %+v, want allowed", d)
	}
}
