package domain

import (
	"context"

	"github.com/google/cel-go/cel"
	"github.com/pkg/errors"
)

// AdmissionPolicy 用一个 CEL 表达式决定是否接受订单。
// 可用变量: amount (double), items (list，元素含 sku/qty/price), userId (string)。
type AdmissionPolicy struct {
	rule string
	prg  cel.Program
}

// NewAdmissionPolicy 编译规则；空规则接受所有订单
func NewAdmissionPolicy(rule string) (*AdmissionPolicy, error) {
	if rule == "" {
		return &AdmissionPolicy{}, nil
	}
	env, err := cel.NewEnv(
		cel.Variable("amount", cel.DoubleType),
		cel.Variable("items", cel.ListType(cel.DynType)),
		cel.Variable("userId", cel.StringType),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create cel env")
	}
	ast, iss := env.Compile(rule)
	if iss.Err() != nil {
		return nil, errors.Wrapf(iss.Err(), "compile admission rule %q", rule)
	}
	if !ast.OutputType().IsExactType(cel.BoolType) {
		return nil, errors.Errorf("admission rule %q must evaluate to bool, got %s", rule, ast.OutputType())
	}
	prg, err := env.Program(ast)
	if err != nil {
		return nil, errors.Wrapf(err, "build admission program %q", rule)
	}
	return &AdmissionPolicy{rule: rule, prg: prg}, nil
}

// Admit 拒绝时返回 ErrAdmissionDenied
func (p *AdmissionPolicy) Admit(ctx context.Context, order *Order) error {
	if p == nil || p.prg == nil {
		return nil
	}
	items := make([]any, len(order.Items))
	for i, it := range order.Items {
		items[i] = map[string]any{
			"sku":   it.SKU,
			"qty":   it.Qty,
			"price": it.Price.InexactFloat64(),
		}
	}
	out, _, err := p.prg.ContextEval(ctx, map[string]any{
		"amount": order.Amount.InexactFloat64(),
		"items":  items,
		"userId": order.UserID,
	})
	if err != nil {
		return errors.Wrapf(err, "evaluate admission rule %q", p.rule)
	}
	if allowed, ok := out.Value().(bool); !ok || !allowed {
		return errors.Wrapf(ErrAdmissionDenied, "rule %q", p.rule)
	}
	return nil
}
