package parser

import (
	"math"

	"kalk/errors"
	"kalk/symbols"
)

// Values mirrored by the built-in constants "_pi" and "_e".
const (
	constPi = 3.141592653589793238462643
	constE  = 2.718281828459045235360287
)

func fun1(f func(float64) float64) NumFun {
	return func(args []Value) (Value, error) {
		return f(args[0]), nil
	}
}

// Logarithms and the square root refuse arguments outside their
// domain instead of producing NaN or infinities.

func logE(args []Value) (Value, error) {
	if args[0] <= 0 {
		return 0, errors.New(errors.DomainError, -1, "ln")
	}
	return math.Log(args[0]), nil
}

func logBase2(args []Value) (Value, error) {
	if args[0] <= 0 {
		return 0, errors.New(errors.DomainError, -1, "log2")
	}
	return math.Log2(args[0]), nil
}

func logBase10(args []Value) (Value, error) {
	if args[0] <= 0 {
		return 0, errors.New(errors.DomainError, -1, "log10")
	}
	return math.Log10(args[0]), nil
}

func sqrt(args []Value) (Value, error) {
	if args[0] < 0 {
		return 0, errors.New(errors.DomainError, -1, "sqrt")
	}
	return math.Sqrt(args[0]), nil
}

func sign(args []Value) (Value, error) {
	switch {
	case args[0] > 0:
		return 1, nil
	case args[0] < 0:
		return -1, nil
	}
	return 0, nil
}

// rint rounds to the nearest integer, halves upward: rint(-0.5) is 0,
// where math.Round would give -1.
func rint(args []Value) (Value, error) {
	return math.Floor(args[0] + 0.5), nil
}

func sum(args []Value) (Value, error) {
	var result Value
	for _, arg := range args {
		result += arg
	}
	return result, nil
}

func avg(args []Value) (Value, error) {
	if len(args) == 0 {
		return 0, errors.New(errors.TooFewParams, -1, "avg")
	}
	var result Value
	for _, arg := range args {
		result += arg
	}
	return result / Value(len(args)), nil
}

func minOf(args []Value) (Value, error) {
	if len(args) == 0 {
		return 0, errors.New(errors.TooFewParams, -1, "min")
	}
	result := args[0]
	for _, arg := range args[1:] {
		result = math.Min(result, arg)
	}
	return result, nil
}

func maxOf(args []Value) (Value, error) {
	if len(args) == 0 {
		return 0, errors.New(errors.TooFewParams, -1, "max")
	}
	result := args[0]
	for _, arg := range args[1:] {
		result = math.Max(result, arg)
	}
	return result, nil
}

// initFun installs the default function set.
func initFun(p *Parser) {
	// trigonometric functions
	mustDefineFun(p, "sin", 1, fun1(math.Sin))
	mustDefineFun(p, "cos", 1, fun1(math.Cos))
	mustDefineFun(p, "tan", 1, fun1(math.Tan))
	// arcus functions
	mustDefineFun(p, "asin", 1, fun1(math.Asin))
	mustDefineFun(p, "acos", 1, fun1(math.Acos))
	mustDefineFun(p, "atan", 1, fun1(math.Atan))
	mustDefineFun(p, "atan2", 2, func(args []Value) (Value, error) {
		return math.Atan2(args[0], args[1]), nil
	})
	// hyperbolic functions
	mustDefineFun(p, "sinh", 1, fun1(math.Sinh))
	mustDefineFun(p, "cosh", 1, fun1(math.Cosh))
	mustDefineFun(p, "tanh", 1, fun1(math.Tanh))
	// arcus hyperbolic functions
	mustDefineFun(p, "asinh", 1, fun1(math.Asinh))
	mustDefineFun(p, "acosh", 1, fun1(math.Acosh))
	mustDefineFun(p, "atanh", 1, fun1(math.Atanh))
	// logarithms; log is the natural logarithm
	mustDefineFun(p, "log2", 1, logBase2)
	mustDefineFun(p, "log10", 1, logBase10)
	mustDefineFun(p, "log", 1, logE)
	mustDefineFun(p, "ln", 1, logE)
	// misc
	mustDefineFun(p, "exp", 1, fun1(math.Exp))
	mustDefineFun(p, "sqrt", 1, sqrt)
	mustDefineFun(p, "sign", 1, sign)
	mustDefineFun(p, "rint", 1, rint)
	mustDefineFun(p, "abs", 1, fun1(math.Abs))
	// functions with variable argument count
	mustDefineFun(p, "sum", VarArgs, sum)
	mustDefineFun(p, "avg", VarArgs, avg)
	mustDefineFun(p, "min", VarArgs, minOf)
	mustDefineFun(p, "max", VarArgs, maxOf)
}

func mustDefineFun(p *Parser, name string, argc int, fn NumFun) {
	if err := p.DefineFun(name, argc, fn); err != nil {
		// The default tables are fixed; a conflict here is a
		// programming error.
		panic(err)
	}
}

func initConst(p *Parser) {
	if err := p.DefineConst("_pi", constPi); err != nil {
		panic(err)
	}
	if err := p.DefineConst("_e", constE); err != nil {
		panic(err)
	}
}

// initOprt installs the sign operators.
func initOprt(p *Parser) {
	err := p.DefineInfixOprt("-", func(v Value) (Value, error) { return -v, nil }, symbols.PrecInfix)
	if err != nil {
		panic(err)
	}
	err = p.DefineInfixOprt("+", func(v Value) (Value, error) { return v, nil }, symbols.PrecInfix)
	if err != nil {
		panic(err)
	}
}

func boolVal(b bool) Value {
	if b {
		return 1
	}
	return 0
}

func bitwise(f func(a, b int64) int64) BinFun {
	return func(a, b Value) (Value, error) {
		return Value(f(int64(a), int64(b))), nil
	}
}

func divide(a, b Value) (Value, error) {
	if b == 0 {
		return 0, errors.New(errors.DivByZero, -1, "/")
	}
	return a / b, nil
}

func modulo(a, b Value) (Value, error) {
	if b == 0 {
		return 0, errors.New(errors.DivByZero, -1, "%")
	}
	return math.Mod(a, b), nil
}

func shiftLeft(a, b Value) (Value, error) {
	if b < 0 || b > 62 {
		return 0, errors.New(errors.DomainError, -1, "<<")
	}
	return Value(int64(a) << uint(b)), nil
}

func shiftRight(a, b Value) (Value, error) {
	if b < 0 || b > 62 {
		return 0, errors.New(errors.DomainError, -1, ">>")
	}
	return Value(int64(a) >> uint(b)), nil
}

func ok2(f func(a, b Value) Value) BinFun {
	return func(a, b Value) (Value, error) { return f(a, b), nil }
}

// builtInOprts is the fixed built-in binary operator table. The
// precedence levels match the documented ordering; "^" and the
// assignment are right associative.
func builtInOprts() []*symbols.OprtEntry {
	entries := []*symbols.OprtEntry{
		{Name: "=", Prec: symbols.PrecAssign, Assoc: symbols.AssocRight, IsAssign: true},

		{Name: "&&", Prec: symbols.PrecLogic, Fn: ok2(func(a, b Value) Value { return boolVal(a != 0 && b != 0) })},
		{Name: "||", Prec: symbols.PrecLogic, Fn: ok2(func(a, b Value) Value { return boolVal(a != 0 || b != 0) })},

		{Name: "|", Prec: symbols.PrecBitOr, Fn: bitwise(func(a, b int64) int64 { return a | b })},
		{Name: "&", Prec: symbols.PrecBitAnd, Fn: bitwise(func(a, b int64) int64 { return a & b })},

		{Name: "==", Prec: symbols.PrecEqual, Fn: ok2(func(a, b Value) Value { return boolVal(a == b) })},
		{Name: "!=", Prec: symbols.PrecEqual, Fn: ok2(func(a, b Value) Value { return boolVal(a != b) })},

		{Name: "<", Prec: symbols.PrecRelational, Fn: ok2(func(a, b Value) Value { return boolVal(a < b) })},
		{Name: ">", Prec: symbols.PrecRelational, Fn: ok2(func(a, b Value) Value { return boolVal(a > b) })},
		{Name: "<=", Prec: symbols.PrecRelational, Fn: ok2(func(a, b Value) Value { return boolVal(a <= b) })},
		{Name: ">=", Prec: symbols.PrecRelational, Fn: ok2(func(a, b Value) Value { return boolVal(a >= b) })},

		{Name: "<<", Prec: symbols.PrecShift, Fn: shiftLeft},
		{Name: ">>", Prec: symbols.PrecShift, Fn: shiftRight},

		{Name: "+", Prec: symbols.PrecAddSub, Fn: ok2(func(a, b Value) Value { return a + b })},
		{Name: "-", Prec: symbols.PrecAddSub, Fn: ok2(func(a, b Value) Value { return a - b })},

		{Name: "*", Prec: symbols.PrecMulDiv, Fn: ok2(func(a, b Value) Value { return a * b })},
		{Name: "/", Prec: symbols.PrecMulDiv, Fn: divide},
		{Name: "%", Prec: symbols.PrecMulDiv, Fn: modulo},

		{Name: "^", Prec: symbols.PrecPow, Assoc: symbols.AssocRight, Fn: ok2(math.Pow)},
	}
	for _, entry := range entries {
		entry.AllowFold = !entry.IsAssign
	}
	return entries
}
