package adapter

import (
	"fmt"

	"github.com/google/cel-go/cel"

	"stockpay/internal/service/checkout/domain/port"
)

// CELResultPolicy 用一条 CEL 表达式判定结果码，表达式里可用变量 resultCode (string)。
// 例如 resultCode == "200" 或 resultCode in ["200", "201"]。
type CELResultPolicy struct {
	expr    string
	program cel.Program
}

func NewCELResultPolicy(expr string) (*CELResultPolicy, error) {
	env, err := cel.NewEnv(cel.Variable("resultCode", cel.StringType))
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL env: %w", err)
	}
	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("invalid success policy %q: %w", expr, issues.Err())
	}
	if !ast.OutputType().IsExactType(cel.BoolType) {
		return nil, fmt.Errorf("success policy %q must evaluate to bool, got %s", expr, ast.OutputType())
	}
	program, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to build CEL program: %w", err)
	}
	return &CELResultPolicy{expr: expr, program: program}, nil
}

func (p *CELResultPolicy) IsSuccess(result port.PaymentResult) (bool, error) {
	out, _, err := p.program.Eval(map[string]any{"resultCode": result.ResultCode})
	if err != nil {
		return false, fmt.Errorf("failed to evaluate success policy: %w", err)
	}
	ok, isBool := out.Value().(bool)
	if !isBool {
		return false, fmt.Errorf("success policy %q returned %T", p.expr, out.Value())
	}
	return ok, nil
}
