package primitives

import (
	"fmt"
	"math"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"

	"github.com/san-kum/blocksim/internal/framework"
	"github.com/san-kum/blocksim/internal/vector"
)

// Expression computes each output element from a CEL expression over the
// input vector u, the context time t and the element index i, e.g.
// "u[i] * 2.0 + sin(t)".
type Expression struct {
	*framework.LeafSystem
	source string
	prg    cel.Program
	u      *framework.InputPort
}

var exprEnv = mustExprEnv()

func mustExprEnv() *cel.Env {
	unary := func(name string, fn func(float64) float64) cel.EnvOption {
		return cel.Function(name,
			cel.Overload(name+"_double", []*cel.Type{cel.DoubleType}, cel.DoubleType,
				cel.UnaryBinding(func(v ref.Val) ref.Val {
					return types.Double(fn(float64(v.(types.Double))))
				})))
	}
	env, err := cel.NewEnv(
		cel.Variable("u", cel.ListType(cel.DoubleType)),
		cel.Variable("t", cel.DoubleType),
		cel.Variable("i", cel.IntType),
		unary("sin", math.Sin),
		unary("cos", math.Cos),
		unary("exp", math.Exp),
		unary("sqrt", math.Sqrt),
		unary("abs", math.Abs),
		unary("tanh", math.Tanh),
	)
	if err != nil {
		panic(fmt.Sprintf("primitives: expression env: %v", err))
	}
	return env
}

// NewExpression compiles expr for an input of width inputs and an output of
// width outputs. An inputs of 0 declares no input port.
func NewExpression(name, expr string, inputs, outputs int) (*Expression, error) {
	ast, issues := exprEnv.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("%w: compile %q: %v", ErrExpression, expr, issues.Err())
	}
	if !ast.OutputType().IsExactType(cel.DoubleType) && !ast.OutputType().IsExactType(cel.IntType) {
		return nil, fmt.Errorf("%w: %q has type %v, want double", ErrExpression, expr, ast.OutputType())
	}
	prg, err := exprEnv.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("%w: program %q: %v", ErrExpression, expr, err)
	}

	e := &Expression{LeafSystem: framework.NewLeafSystem(name), source: expr, prg: prg}
	if inputs > 0 {
		e.u = e.DeclareVectorInputPort("u", inputs)
	}
	e.DeclareVectorOutputPort("y", outputs, e.calc)
	return e, nil
}

func (e *Expression) Source() string { return e.source }

func (e *Expression) calc(ctx *framework.LeafContext, y vector.Vector) {
	u := []float64{}
	if e.u != nil {
		u = e.u.EvalVector(ctx)
	}
	for i := range y {
		out, _, err := e.prg.Eval(map[string]any{
			"u": u,
			"t": ctx.Time(),
			"i": int64(i),
		})
		if err != nil {
			panic(fmt.Errorf("%w: eval %q at i=%d: %v", ErrExpression, e.source, i, err))
		}
		switch v := out.Value().(type) {
		case float64:
			y[i] = v
		case int64:
			y[i] = float64(v)
		default:
			panic(fmt.Errorf("%w: %q produced %T", ErrExpression, e.source, v))
		}
	}
}
