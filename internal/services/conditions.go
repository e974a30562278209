package services

import (
	"fmt"
	"regexp"

	"github.com/expr-lang/expr"

	"github.com/calderhq/calder/internal/types"
)

// Workflow documents write condition variables shell-style ($BRANCH). The
// evaluator strips the sigil and compiles the rest as an expression over the
// fixed environment below, so "$BRANCH == 'main'" becomes BRANCH == 'main'.
var conditionVar = regexp.MustCompile(`\$([A-Za-z_][A-Za-z0-9_]*)`)

func conditionEnv(chain *types.Chain, frag *types.Fragment) map[string]interface{} {
	env := map[string]interface{}{
		"TRIGGER":     "",
		"TRIGGER_REF": "",
		"BRANCH":      "",
		"MACHINE":     "",
		"ATTEMPT":     frag.Attempt,
	}
	if chain != nil {
		if chain.Trigger != nil {
			env["TRIGGER"] = string(*chain.Trigger)
		}
		if chain.TriggerRef != nil {
			env["TRIGGER_REF"] = *chain.TriggerRef
		}
		if chain.Branch != nil {
			env["BRANCH"] = *chain.Branch
		}
	}
	if frag.MachineGroup != nil {
		env["MACHINE"] = *frag.MachineGroup
	}
	return env
}

func evalCondition(condition string, env map[string]interface{}) (bool, error) {
	normalized := conditionVar.ReplaceAllString(condition, "$1")

	program, err := expr.Compile(normalized, expr.Env(env), expr.AsBool())
	if err != nil {
		return false, fmt.Errorf("compile condition %q: %w", condition, err)
	}
	out, err := expr.Run(program, env)
	if err != nil {
		return false, fmt.Errorf("evaluate condition %q: %w", condition, err)
	}
	result, ok := out.(bool)
	if !ok {
		return false, fmt.Errorf("condition %q did not produce a boolean", condition)
	}
	return result, nil
}
