// Package parser is the public face of kalk: an embeddable
// mathematical expression parser and evaluator. A Parser owns the
// symbol tables, the cached bytecode for the current expression, and
// the evaluator. Typical use:
//
//	var x float64 = 2
//	p := parser.New()
//	if err := p.DefineVar("x", &x); err != nil { ... }
//	if err := p.SetExpr("sin(x)^2 + cos(x)^2"); err != nil { ... }
//	result, err := p.Eval()
//
// The expression is compiled once by SetExpr and re-evaluated against
// the current variable values by every Eval call. Changing the symbol
// tables invalidates the cached bytecode; the next Eval recompiles.
//
// A Parser must not be mutated concurrently. Independent instances
// may evaluate in parallel as long as shared callables are reentrant.
package parser

import (
	"kalk/compiler"
	"kalk/errors"
	"kalk/lexer"
	"kalk/symbols"
	"kalk/vm"
)

// Re-exported so hosts rarely need to import the inner packages.
type (
	Value    = symbols.Value
	NumFun   = symbols.NumFun
	StrFun   = symbols.StrFun
	BinFun   = symbols.BinFun
	UnFun    = symbols.UnFun
	Assoc    = symbols.Assoc
	ValIdent = lexer.ValIdent
)

const (
	AssocLeft  = symbols.AssocLeft
	AssocRight = symbols.AssocRight

	// VarArgs declares a variadic function (one or more arguments).
	VarArgs = symbols.VarArgs
)

// Precedence levels of the built-in binary operators, for use with
// DefineOprt and DefineInfixOprt.
const (
	PrecAssign     = symbols.PrecAssign
	PrecLogic      = symbols.PrecLogic
	PrecBitOr      = symbols.PrecBitOr
	PrecBitAnd     = symbols.PrecBitAnd
	PrecEqual      = symbols.PrecEqual
	PrecRelational = symbols.PrecRelational
	PrecShift      = symbols.PrecShift
	PrecAddSub     = symbols.PrecAddSub
	PrecMulDiv     = symbols.PrecMulDiv
	PrecPow        = symbols.PrecPow
	PrecInfix      = symbols.PrecInfix
	PrecPostfix    = symbols.PrecPostfix
)

// Parser owns one expression and the symbol state it compiles
// against.
type Parser struct {
	tab *symbols.Table
	vm  *vm.VM

	expr     string
	bytecode compiler.Bytecode

	compiled    bool
	compiledGen uint64

	valIdents []ValIdent
	optimize  bool

	decSep       rune
	thousandsSep rune
}

// New creates a Parser with the default functions, constants, the
// built-in binary operators and the sign operators installed.
func New() *Parser {
	p := &Parser{
		tab:      symbols.NewTable(),
		vm:       vm.New(),
		optimize: true,
		decSep:   '.',
	}
	p.tab.SetBuiltIns(builtInOprts())
	initFun(p)
	initConst(p)
	initOprt(p)
	return p
}

// invalidate drops the cached bytecode; the next evaluation
// recompiles the expression text.
func (p *Parser) invalidate() { p.compiled = false }

// SetExpr compiles expr and caches the bytecode. On error nothing is
// cached and the previous expression is gone.
func (p *Parser) SetExpr(expr string) error {
	p.expr = expr
	p.compiled = false
	return p.compile()
}

// GetExpr returns the current expression text.
func (p *Parser) GetExpr() string { return p.expr }

func (p *Parser) compile() error {
	idents := make([]ValIdent, 0, len(p.valIdents)+1)
	idents = append(idents, p.valIdents...)
	idents = append(idents, p.defaultValIdent())

	c := compiler.New(p.tab, p.optimize, idents)
	bytecode, err := c.Compile(p.expr)
	if err != nil {
		p.bytecode = compiler.Bytecode{}
		return err
	}
	p.bytecode = bytecode
	p.compiled = true
	p.compiledGen = p.tab.Generation
	return nil
}

func (p *Parser) ensureCompiled() error {
	if p.expr == "" {
		return errors.New(errors.UnexpectedEOF, 0, "")
	}
	if !p.compiled || p.compiledGen != p.tab.Generation {
		return p.compile()
	}
	return nil
}

// Eval evaluates the cached bytecode against the current variable
// values and returns the single result. An expression with several
// comma-separated top-level parts must be evaluated with EvalMulti.
func (p *Parser) Eval() (Value, error) {
	results, err := p.evalAll()
	if err != nil {
		return 0, err
	}
	if len(results) != 1 {
		return 0, errors.New(errors.Generic, -1, "expression yields multiple results, use EvalMulti")
	}
	return results[0], nil
}

// EvalMulti evaluates the expression and returns one result per
// top-level comma-separated part, in source order.
func (p *Parser) EvalMulti() ([]Value, error) {
	return p.evalAll()
}

func (p *Parser) evalAll() ([]Value, error) {
	if err := p.ensureCompiled(); err != nil {
		return nil, err
	}
	return p.vm.Run(p.bytecode)
}

// Disassemble compiles if necessary and renders the bytecode as a
// human readable listing.
func (p *Parser) Disassemble() (string, error) {
	if err := p.ensureCompiled(); err != nil {
		return "", err
	}
	return p.bytecode.Disassemble(), nil
}

// ---------------------------------------------------------------
// variables and constants

// DefineVar binds name to a host-owned storage cell. The cell must
// stay alive until the variable is removed or the parser dropped.
func (p *Parser) DefineVar(name string, ptr *Value) error {
	defer p.invalidate()
	return p.tab.DefineVar(name, ptr)
}

// RemoveVar removes one variable binding; unknown names are ignored.
func (p *Parser) RemoveVar(name string) {
	p.tab.RemoveVar(name)
	p.invalidate()
}

// ClearVar removes every variable binding.
func (p *Parser) ClearVar() {
	p.tab.ClearVars()
	p.invalidate()
}

func (p *Parser) DefineConst(name string, v Value) error {
	defer p.invalidate()
	return p.tab.DefineConst(name, v)
}

func (p *Parser) DefineStrConst(name, s string) error {
	defer p.invalidate()
	return p.tab.DefineStrConst(name, s)
}

// ClearConst removes every numeric and string constant, the built-in
// ones included.
func (p *Parser) ClearConst() {
	p.tab.ClearConsts()
	p.invalidate()
}

// GetVars returns the current variable bindings as name → cell.
func (p *Parser) GetVars() map[string]*Value {
	vars := make(map[string]*Value, len(p.tab.Vars))
	for name, variable := range p.tab.Vars {
		vars[name] = variable.Ptr
	}
	return vars
}

// GetConsts returns a copy of the current numeric constants.
func (p *Parser) GetConsts() map[string]Value {
	consts := make(map[string]Value, len(p.tab.Consts))
	for name, v := range p.tab.Consts {
		consts[name] = v
	}
	return consts
}

// ---------------------------------------------------------------
// functions

// DefineFun registers a numeric function with a fixed argument count
// (or VarArgs). Constant arguments may be folded at compile time; use
// DefineFunNoFold for callables with side effects.
func (p *Parser) DefineFun(name string, argc int, fn NumFun) error {
	defer p.invalidate()
	return p.tab.DefineFun(&symbols.FunEntry{Name: name, Argc: argc, Fn: fn, AllowFold: true})
}

// DefineFunNoFold registers a numeric function that is never invoked
// at compile time.
func (p *Parser) DefineFunNoFold(name string, argc int, fn NumFun) error {
	defer p.invalidate()
	return p.tab.DefineFun(&symbols.FunEntry{Name: name, Argc: argc, Fn: fn})
}

// DefineStrFun registers a function whose first argument must be a
// string literal or string constant; argc counts the numeric
// arguments that follow it. String functions are never folded.
func (p *Parser) DefineStrFun(name string, argc int, fn StrFun) error {
	defer p.invalidate()
	return p.tab.DefineFun(&symbols.FunEntry{Name: name, Argc: argc, Str: fn})
}

// ClearFun removes every function, the built-in ones included.
func (p *Parser) ClearFun() {
	p.tab.ClearFuns()
	p.invalidate()
}

// ---------------------------------------------------------------
// operators

// DefineOprt registers a binary operator with the given precedence
// and associativity. While the built-in operators are enabled their
// spellings are reserved; disable them with EnableBuiltInOprt(false)
// to redefine those.
func (p *Parser) DefineOprt(name string, fn BinFun, prec int, assoc Assoc) error {
	defer p.invalidate()
	return p.tab.DefineOprt(&symbols.OprtEntry{
		Name: name, Fn: fn, Prec: prec, Assoc: assoc, AllowFold: true,
	})
}

func (p *Parser) ClearOprt() {
	p.tab.ClearOprts()
	p.invalidate()
}

// DefineInfixOprt registers a unary prefix operator. PrecInfix binds
// signs tighter than addition but looser than exponentiation; pass a
// level above PrecPow to make a sign bind tighter than "^".
func (p *Parser) DefineInfixOprt(name string, fn UnFun, prec int) error {
	defer p.invalidate()
	return p.tab.DefineInfixOprt(&symbols.UnOprtEntry{Name: name, Fn: fn, Prec: prec})
}

// ClearInfixOprt removes every infix operator, the sign operators
// included.
func (p *Parser) ClearInfixOprt() {
	p.tab.ClearInfixOprts()
	p.invalidate()
}

// DefinePostfixOprt registers a unary postfix operator.
func (p *Parser) DefinePostfixOprt(name string, fn UnFun) error {
	defer p.invalidate()
	return p.tab.DefinePostfixOprt(&symbols.UnOprtEntry{Name: name, Fn: fn, Prec: symbols.PrecPostfix})
}

func (p *Parser) ClearPostfixOprt() {
	p.tab.ClearPostfixOprts()
	p.invalidate()
}

// EnableBuiltInOprt switches the built-in binary operator table on or
// off. With built-ins disabled, user operators may reuse their
// spellings.
func (p *Parser) EnableBuiltInOprt(on bool) {
	p.tab.EnableBuiltInOprt(on)
	p.invalidate()
}

// EnableOptimizer switches constant folding on or off.
func (p *Parser) EnableOptimizer(on bool) {
	p.optimize = on
	p.invalidate()
}

// ---------------------------------------------------------------
// tokeniser configuration

// DefineNameChars sets the characters usable in variable, constant
// and function names.
func (p *Parser) DefineNameChars(chars string) {
	p.tab.SetNameChars(chars)
	p.invalidate()
}

// DefineOprtChars sets the characters usable in binary and postfix
// operator identifiers.
func (p *Parser) DefineOprtChars(chars string) {
	p.tab.SetOprtChars(chars)
	p.invalidate()
}

// DefineInfixOprtChars sets the characters usable in infix operator
// identifiers.
func (p *Parser) DefineInfixOprtChars(chars string) {
	p.tab.SetInfixChars(chars)
	p.invalidate()
}

// AddValIdent registers an additional numeric-literal recogniser.
// User recognisers run before the built-in decimal reader, in
// registration order.
func (p *Parser) AddValIdent(fn ValIdent) {
	p.valIdents = append(p.valIdents, fn)
	p.invalidate()
}

// SetDecSep sets the decimal separator the built-in literal reader
// accepts.
func (p *Parser) SetDecSep(sep rune) {
	p.decSep = sep
	p.invalidate()
}

// SetThousandsSep sets the digit group separator the built-in literal
// reader skips; 0 disables grouping.
func (p *Parser) SetThousandsSep(sep rune) {
	p.thousandsSep = sep
	p.invalidate()
}
