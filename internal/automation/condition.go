package automation

import (
	"fmt"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/ast"
	"github.com/expr-lang/expr/parser"
	"github.com/expr-lang/expr/vm"
	"github.com/shopspring/decimal"
)

// Condition is a compiled rule condition: `attr op number` clauses joined by
// "and". The empty condition always matches.
type Condition struct {
	program *vm.Program
	attrs   []string
}

var comparisons = map[string]struct{}{
	"<": {}, "<=": {}, ">": {}, ">=": {}, "==": {}, "!=": {},
}

// ParseCondition compiles expressions such as `stock < 5 and price >= 10.5`.
func ParseCondition(src string) (Condition, error) {
	src = strings.ToLower(strings.TrimSpace(src))
	if src == "" {
		return Condition{}, nil
	}
	tree, err := parser.Parse(src)
	if err != nil {
		return Condition{}, fmt.Errorf("invalid condition %q: %w", src, err)
	}
	seen := map[string]struct{}{}
	if err := checkConjunction(tree.Node, seen); err != nil {
		return Condition{}, fmt.Errorf("invalid condition %q: %w", src, err)
	}
	program, err := expr.Compile(src, expr.AsBool(), expr.AllowUndefinedVariables())
	if err != nil {
		return Condition{}, fmt.Errorf("invalid condition %q: %w", src, err)
	}
	attrs := make([]string, 0, len(seen))
	for name := range seen {
		attrs = append(attrs, name)
	}
	return Condition{program: program, attrs: attrs}, nil
}

func checkConjunction(node ast.Node, seen map[string]struct{}) error {
	bin, ok := node.(*ast.BinaryNode)
	if !ok {
		return fmt.Errorf("expected a comparison, got %q", node.String())
	}
	if bin.Operator == "and" || bin.Operator == "&&" {
		if err := checkConjunction(bin.Left, seen); err != nil {
			return err
		}
		return checkConjunction(bin.Right, seen)
	}
	if _, ok := comparisons[bin.Operator]; !ok {
		return fmt.Errorf("unsupported operator %q", bin.Operator)
	}
	ident, ok := bin.Left.(*ast.IdentifierNode)
	if !ok {
		return fmt.Errorf("left side of %q must be an attribute", bin.Operator)
	}
	if !isNumber(bin.Right) {
		return fmt.Errorf("right side of %q must be a number", bin.Operator)
	}
	seen[ident.Value] = struct{}{}
	return nil
}

func isNumber(node ast.Node) bool {
	switch n := node.(type) {
	case *ast.IntegerNode, *ast.FloatNode:
		return true
	case *ast.UnaryNode:
		return (n.Operator == "-" || n.Operator == "+") && isNumber(n.Node)
	}
	return false
}

// Matches evaluates the condition. A clause naming a missing attribute is false.
func (c Condition) Matches(attrs map[string]decimal.Decimal) bool {
	if c.program == nil {
		return true
	}
	env := make(map[string]any, len(attrs))
	for k, v := range attrs {
		env[strings.ToLower(k)] = v.InexactFloat64()
	}
	for _, name := range c.attrs {
		if _, ok := env[name]; !ok {
			return false
		}
	}
	out, err := expr.Run(c.program, env)
	if err != nil {
		return false
	}
	matched, ok := out.(bool)
	return ok && matched
}
