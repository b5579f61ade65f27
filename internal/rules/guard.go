package rules

import (
	"fmt"

	"github.com/google/cel-go/cel"
)

// GuardInput is the evaluation scope for rule guard expressions.
type GuardInput struct {
	Text     string
	ChatType string
	FromRole string
}

type guardEvaluator struct {
	env *cel.Env
}

func newGuardEvaluator() (*guardEvaluator, error) {
	env, err := cel.NewEnv(
		cel.Variable("text", cel.StringType),
		cel.Variable("chat_type", cel.StringType),
		cel.Variable("from_role", cel.StringType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &guardEvaluator{env: env}, nil
}

func (e *guardEvaluator) Compile(expression string) (cel.Program, error) {
	ast, issues := e.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile guard expression: %w", issues.Err())
	}

	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("guard expression must return bool, got %v", ast.OutputType())
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create guard program: %w", err)
	}

	return program, nil
}

func evalGuard(program cel.Program, input GuardInput) (bool, error) {
	result, _, err := program.Eval(map[string]interface{}{
		"text":      input.Text,
		"chat_type": input.ChatType,
		"from_role": input.FromRole,
	})
	if err != nil {
		return false, fmt.Errorf("failed to evaluate guard expression: %w", err)
	}

	boolVal, ok := result.Value().(bool)
	if !ok {
		return false, fmt.Errorf("guard expression did not return bool, got %T", result.Value())
	}

	return boolVal, nil
}
