package cel

import (
	"context"
	"fmt"

	"github.com/google/cel-go/cel"
)

const (
	VarProfileID    = "profile_id"
	VarPartitionKey = "partition_key"
)

type Evaluator struct {
	env *cel.Env
}

func NewEvaluator() (*Evaluator, error) {
	env, err := cel.NewEnv(
		cel.Variable(VarProfileID, cel.StringType),
		cel.Variable(VarPartitionKey, cel.StringType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Evaluator{env: env}, nil
}

func (e *Evaluator) ValidateExpression(expression string) error {
	_, issues := e.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return fmt.Errorf("CEL expression validation failed: %w", issues.Err())
	}
	return nil
}

// ValidateRuleExpression checks that expression compiles and yields a bool.
func (e *Evaluator) ValidateRuleExpression(expression string) error {
	ast, issues := e.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return fmt.Errorf("CEL expression validation failed: %w", issues.Err())
	}

	if ast.OutputType() != cel.BoolType {
		return fmt.Errorf("rule expression must return bool, got %v", ast.OutputType())
	}

	return nil
}

// CompileRule compiles a bool expression once so it can be evaluated per
// request without reparsing.
func (e *Evaluator) CompileRule(expression string) (cel.Program, error) {
	if err := e.ValidateRuleExpression(expression); err != nil {
		return nil, err
	}
	return e.CompileExpression(expression)
}

func (e *Evaluator) CompileExpression(expression string) (cel.Program, error) {
	ast, issues := e.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile CEL expression: %w", issues.Err())
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL program: %w", err)
	}

	return program, nil
}

// EvaluateRule runs a compiled rule against one job.
func (e *Evaluator) EvaluateRule(ctx context.Context, program cel.Program, profileID, partitionKey string) (bool, error) {
	vars := map[string]interface{}{
		VarProfileID:    profileID,
		VarPartitionKey: partitionKey,
	}

	result, _, err := program.ContextEval(ctx, vars)
	if err != nil {
		return false, fmt.Errorf("failed to evaluate CEL expression: %w", err)
	}

	boolVal, ok := result.Value().(bool)
	if !ok {
		return false, fmt.Errorf("CEL expression did not return bool, got %T", result.Value())
	}

	return boolVal, nil
}
