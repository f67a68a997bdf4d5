// Package compiler turns a token stream directly into bytecode using
// an operator-precedence (shunting yard) parse: a compile-time value
// stack shadows what the runtime stack will hold, an operator stack
// holds pending operators, parentheses and ternary markers. Constant
// subexpressions are folded as they complete, and the ternary operator
// compiles to patched forward jumps so the untaken branch is skipped
// entirely at runtime.
package compiler

import (
	goerrors "errors"

	"kalk/errors"
	"kalk/lexer"
	"kalk/symbols"
	"kalk/token"
)

// Shadow-stack value classification. A known constant can take part
// in folding; a variable reference is what assignment needs on its
// left side; a string may only feed a string-accepting function.
type valKind int

const (
	valConst valKind = iota
	valDynamic
	valVarRef
	valString
)

// shadowVal mirrors one runtime stack slot at compile time. pos/size
// delimit the instruction span that produced the value, so folding
// can discard and replace it.
type shadowVal struct {
	kind   valKind
	val    symbols.Value
	strIdx int
	varIdx int

	pos, size int
	tokPos    int
	ident     string
}

// Operator-stack entry kinds.
type opKind int

const (
	opBin opKind = iota
	opInfix
	opAssign
	opLParen
	opTernIf   // pending "?", jmpPos addresses its OP_JMP_IF_FALSE
	opTernElse // pending ":", jmpPos addresses its OP_JMP
)

type stackOp struct {
	kind opKind
	tok  token.Token

	bin *symbols.OprtEntry
	un  *symbols.UnOprtEntry

	// open parenthesis bookkeeping
	fun     *symbols.FunEntry
	valBase int
	commas  int

	jmpPos int
}

func (op stackOp) prec() int {
	switch op.kind {
	case opBin:
		return op.bin.Prec
	case opInfix:
		return op.un.Prec
	case opAssign:
		return symbols.PrecAssign
	}
	return 0
}

// Compiler compiles one expression. Create a fresh instance per
// compilation; it is not reusable.
type Compiler struct {
	tab       *symbols.Table
	valIdents []lexer.ValIdent
	optimize  bool

	bytecode Bytecode
	valStack []shadowVal
	opStack  []stackOp

	curDepth, maxDepth int

	constIdx map[symbols.Value]int
	strIdx   map[string]int
	varIdx   map[*symbols.Variable]int
	funIdx   map[*symbols.FunEntry]int
	oprtIdx  map[*symbols.OprtEntry]int
	infixIdx map[*symbols.UnOprtEntry]int
	postIdx  map[*symbols.UnOprtEntry]int

	pendingFun bool
	funTok     token.Token
}

// New creates a compiler over the given symbol table. optimize
// enables constant folding.
func New(tab *symbols.Table, optimize bool, valIdents []lexer.ValIdent) *Compiler {
	return &Compiler{
		tab:       tab,
		valIdents: valIdents,
		optimize:  optimize,
		constIdx:  make(map[symbols.Value]int),
		strIdx:    make(map[string]int),
		varIdx:    make(map[*symbols.Variable]int),
		funIdx:    make(map[*symbols.FunEntry]int),
		oprtIdx:   make(map[*symbols.OprtEntry]int),
		infixIdx:  make(map[*symbols.UnOprtEntry]int),
		postIdx:   make(map[*symbols.UnOprtEntry]int),
	}
}

// Compile tokenises and compiles expr. On error no partial bytecode
// is retained.
func (c *Compiler) Compile(expr string) (Bytecode, error) {
	lex := lexer.New(expr, c.tab, c.valIdents)

	for {
		tok, err := lex.Next()
		if err != nil {
			return Bytecode{}, err
		}

		if c.pendingFun && tok.Kind != token.LParen {
			return Bytecode{}, errors.New(errors.UnexpectedFun, c.funTok.Pos, c.funTok.Ident)
		}

		if err := c.compileToken(tok); err != nil {
			return Bytecode{}, err
		}
		if tok.Kind == token.EOE {
			break
		}
	}

	c.bytecode.MaxStackDepth = c.maxDepth
	return c.bytecode, nil
}

func (c *Compiler) compileToken(tok token.Token) error {
	switch tok.Kind {
	case token.Number:
		c.emitConstant(tok.Val, tok)
	case token.Variable:
		c.emitVar(tok)
	case token.String:
		c.emitString(tok)
	case token.Function:
		c.pendingFun = true
		c.funTok = tok
	case token.LParen:
		op := stackOp{kind: opLParen, tok: tok, valBase: len(c.valStack)}
		if c.pendingFun {
			op.fun = c.funTok.Fun
			op.tok = c.funTok
			c.pendingFun = false
		}
		c.opStack = append(c.opStack, op)
	case token.RParen:
		return c.closeParen(tok)
	case token.Comma:
		return c.comma(tok)
	case token.BinOprt:
		return c.binOprt(tok)
	case token.Assign:
		return c.assign(tok)
	case token.InfixOprt:
		c.opStack = append(c.opStack, stackOp{kind: opInfix, tok: tok, un: tok.UnOprt})
	case token.PostOprt:
		return c.applyPostfix(tok)
	case token.Question:
		return c.question(tok)
	case token.Colon:
		return c.colon(tok)
	case token.EOE:
		return c.finish(tok)
	}
	return nil
}

// ---------------------------------------------------------------
// emission helpers

func (c *Compiler) emit(op Opcode, operands ...int) int {
	pos := len(c.bytecode.Instructions)
	instruction, err := AssembleInstruction(op, operands...)
	if err != nil {
		// Definitions and call sites are fixed at compile time of the
		// package itself; a mismatch is a programming error.
		panic(err)
	}
	c.bytecode.Instructions = append(c.bytecode.Instructions, instruction...)
	return pos
}

func (c *Compiler) pushVal(v shadowVal) {
	c.valStack = append(c.valStack, v)
	if v.kind != valString {
		c.curDepth++
		if c.curDepth > c.maxDepth {
			c.maxDepth = c.curDepth
		}
	}
}

func (c *Compiler) popVal() shadowVal {
	v := c.valStack[len(c.valStack)-1]
	c.valStack = c.valStack[:len(c.valStack)-1]
	if v.kind != valString {
		c.curDepth--
	}
	return v
}

func (c *Compiler) internConst(v symbols.Value) int {
	if v == v { // NaN never hits the dedup map
		if idx, ok := c.constIdx[v]; ok {
			return idx
		}
	}
	c.bytecode.ConstantsPool = append(c.bytecode.ConstantsPool, v)
	idx := len(c.bytecode.ConstantsPool) - 1
	if v == v {
		c.constIdx[v] = idx
	}
	return idx
}

func (c *Compiler) emitConstant(v symbols.Value, tok token.Token) {
	idx := c.internConst(v)
	pos := c.emit(OP_CONSTANT, idx)
	c.pushVal(shadowVal{
		kind: valConst, val: v,
		pos: pos, size: len(c.bytecode.Instructions) - pos,
		tokPos: tok.Pos, ident: tok.Ident,
	})
}

func (c *Compiler) emitVar(tok token.Token) {
	idx, ok := c.varIdx[tok.Var]
	if !ok {
		c.bytecode.VarPool = append(c.bytecode.VarPool, tok.Var)
		idx = len(c.bytecode.VarPool) - 1
		c.varIdx[tok.Var] = idx
	}
	pos := c.emit(OP_VAR, idx)
	c.pushVal(shadowVal{
		kind: valVarRef, varIdx: idx,
		pos: pos, size: len(c.bytecode.Instructions) - pos,
		tokPos: tok.Pos, ident: tok.Ident,
	})
}

func (c *Compiler) emitString(tok token.Token) {
	idx, ok := c.strIdx[tok.Str]
	if !ok {
		c.bytecode.StringPool = append(c.bytecode.StringPool, tok.Str)
		idx = len(c.bytecode.StringPool) - 1
		c.strIdx[tok.Str] = idx
	}
	pos := c.emit(OP_STRING, idx)
	c.pushVal(shadowVal{
		kind: valString, strIdx: idx,
		pos: pos, size: len(c.bytecode.Instructions) - pos,
		tokPos: tok.Pos, ident: tok.Ident,
	})
}

// ---------------------------------------------------------------
// operator application

// foldable reports whether the given shadow values are known
// constants whose instructions sit unbroken at the tail of the
// stream, so they can be discarded and replaced by one push.
func (c *Compiler) foldable(vals ...shadowVal) bool {
	if !c.optimize {
		return false
	}
	end := len(c.bytecode.Instructions)
	for i := len(vals) - 1; i >= 0; i-- {
		v := vals[i]
		if v.kind != valConst || v.size == 0 {
			return false
		}
		if v.pos+v.size != end {
			return false
		}
		end = v.pos
	}
	return true
}

// foldInto discards the instruction span of the folded operands and
// pushes the computed constant in their place.
func (c *Compiler) foldInto(start int, v symbols.Value, tokPos int) {
	c.bytecode.Instructions = c.bytecode.Instructions[:start]
	idx := c.internConst(v)
	pos := c.emit(OP_CONSTANT, idx)
	c.pushVal(shadowVal{
		kind: valConst, val: v,
		pos: pos, size: len(c.bytecode.Instructions) - pos,
		tokPos: tokPos,
	})
}

// position attaches source context to an error coming out of a
// callable invoked at fold time.
func position(err error, pos int, ident string) error {
	var kerr *errors.Error
	if goerrors.As(err, &kerr) {
		if kerr.Pos < 0 {
			kerr.Pos = pos
		}
		if kerr.Token == "" {
			kerr.Token = ident
		}
		return kerr
	}
	e := errors.New(errors.Generic, pos, ident)
	e.Token = err.Error()
	return e
}

func (c *Compiler) applyBin(op stackOp) error {
	rhs := c.popVal()
	lhs := c.popVal()
	if lhs.kind == valString || rhs.kind == valString {
		return errors.New(errors.OprtTypeConflict, op.tok.Pos, op.tok.Ident)
	}

	entry := op.bin
	if entry.AllowFold && c.foldable(lhs, rhs) {
		v, err := entry.Fn(lhs.val, rhs.val)
		if err != nil {
			return position(err, op.tok.Pos, op.tok.Ident)
		}
		c.foldInto(lhs.pos, v, op.tok.Pos)
		return nil
	}

	idx, ok := c.oprtIdx[entry]
	if !ok {
		c.bytecode.OprtPool = append(c.bytecode.OprtPool, entry)
		idx = len(c.bytecode.OprtPool) - 1
		c.oprtIdx[entry] = idx
	}
	c.emit(OP_BIN, idx)
	c.pushVal(shadowVal{kind: valDynamic, tokPos: op.tok.Pos})
	return nil
}

func (c *Compiler) applyInfix(op stackOp) error {
	operand := c.popVal()
	if operand.kind == valString {
		return errors.New(errors.OprtTypeConflict, op.tok.Pos, op.tok.Ident)
	}

	entry := op.un
	if c.foldable(operand) {
		v, err := entry.Fn(operand.val)
		if err != nil {
			return position(err, op.tok.Pos, op.tok.Ident)
		}
		c.foldInto(operand.pos, v, op.tok.Pos)
		return nil
	}

	idx, ok := c.infixIdx[entry]
	if !ok {
		c.bytecode.InfixPool = append(c.bytecode.InfixPool, entry)
		idx = len(c.bytecode.InfixPool) - 1
		c.infixIdx[entry] = idx
	}
	c.emit(OP_PREFIX, idx)
	c.pushVal(shadowVal{kind: valDynamic, tokPos: op.tok.Pos})
	return nil
}

func (c *Compiler) applyPostfix(tok token.Token) error {
	operand := c.popVal()
	if operand.kind == valString {
		return errors.New(errors.OprtTypeConflict, tok.Pos, tok.Ident)
	}

	entry := tok.UnOprt
	if c.foldable(operand) {
		v, err := entry.Fn(operand.val)
		if err != nil {
			return position(err, tok.Pos, tok.Ident)
		}
		c.foldInto(operand.pos, v, tok.Pos)
		return nil
	}

	idx, ok := c.postIdx[entry]
	if !ok {
		c.bytecode.PostPool = append(c.bytecode.PostPool, entry)
		idx = len(c.bytecode.PostPool) - 1
		c.postIdx[entry] = idx
	}
	c.emit(OP_POSTFIX, idx)
	c.pushVal(shadowVal{kind: valDynamic, tokPos: tok.Pos})
	return nil
}

func (c *Compiler) applyAssign(op stackOp) error {
	rhs := c.popVal()
	lhs := c.popVal()
	if lhs.kind != valVarRef {
		return errors.New(errors.UnexpectedOperator, op.tok.Pos, op.tok.Ident)
	}
	if rhs.kind == valString {
		return errors.New(errors.OprtTypeConflict, op.tok.Pos, op.tok.Ident)
	}
	c.emit(OP_ASSIGN, lhs.varIdx)
	c.pushVal(shadowVal{kind: valDynamic, tokPos: op.tok.Pos})
	return nil
}

// applyTop applies and removes the topmost operator-stack entry,
// which must be a binary, infix or assignment operator.
func (c *Compiler) applyTop() error {
	op := c.opStack[len(c.opStack)-1]
	c.opStack = c.opStack[:len(c.opStack)-1]
	switch op.kind {
	case opBin:
		return c.applyBin(op)
	case opInfix:
		return c.applyInfix(op)
	default:
		return c.applyAssign(op)
	}
}

// resolveTernElse patches the unconditional jump of a completed
// ternary to the current position and removes its marker. The merged
// branch result is no longer a known constant.
func (c *Compiler) resolveTernElse() {
	op := c.opStack[len(c.opStack)-1]
	c.opStack = c.opStack[:len(c.opStack)-1]
	PatchOperand(c.bytecode.Instructions, op.jmpPos, 0, len(c.bytecode.Instructions))
	if len(c.valStack) > 0 {
		top := &c.valStack[len(c.valStack)-1]
		top.kind = valDynamic
		top.size = 0
	}
}

// popUntilParen applies pending operators and resolves completed
// ternaries until an open parenthesis is on top. It reports whether
// one was found; the parenthesis itself stays on the stack.
func (c *Compiler) popUntilParen() (bool, error) {
	for len(c.opStack) > 0 {
		top := c.opStack[len(c.opStack)-1]
		switch top.kind {
		case opLParen:
			return true, nil
		case opTernElse:
			c.resolveTernElse()
		case opTernIf:
			return false, errors.New(errors.MissingElseClause, top.tok.Pos, top.tok.Ident)
		default:
			if err := c.applyTop(); err != nil {
				return false, err
			}
		}
	}
	return false, nil
}

// ---------------------------------------------------------------
// token rules

func (c *Compiler) binOprt(tok token.Token) error {
	entry := tok.Oprt
	for len(c.opStack) > 0 {
		top := c.opStack[len(c.opStack)-1]
		if top.kind != opBin && top.kind != opInfix && top.kind != opAssign {
			break
		}
		if top.prec() > entry.Prec ||
			(top.prec() == entry.Prec && entry.Assoc == symbols.AssocLeft) {
			if err := c.applyTop(); err != nil {
				return err
			}
			continue
		}
		break
	}
	c.opStack = append(c.opStack, stackOp{kind: opBin, tok: tok, bin: entry})
	return nil
}

func (c *Compiler) assign(tok token.Token) error {
	// Lowest precedence, right associative: nothing below it pops.
	for len(c.opStack) > 0 {
		top := c.opStack[len(c.opStack)-1]
		if top.kind != opBin && top.kind != opInfix {
			break
		}
		if err := c.applyTop(); err != nil {
			return err
		}
	}
	c.opStack = append(c.opStack, stackOp{kind: opAssign, tok: tok})
	return nil
}

func (c *Compiler) question(tok token.Token) error {
	// The condition must be complete: apply every pending operator
	// above assignment level, then plant the conditional jump.
	for len(c.opStack) > 0 {
		top := c.opStack[len(c.opStack)-1]
		if top.kind != opBin && top.kind != opInfix {
			break
		}
		if err := c.applyTop(); err != nil {
			return err
		}
	}
	cond := c.popVal()
	if cond.kind == valString {
		return errors.New(errors.OprtTypeConflict, tok.Pos, tok.Ident)
	}
	jmpPos := c.emit(OP_JMP_IF_FALSE, 0)
	c.opStack = append(c.opStack, stackOp{kind: opTernIf, tok: tok, jmpPos: jmpPos})
	return nil
}

func (c *Compiler) colon(tok token.Token) error {
	for len(c.opStack) > 0 {
		top := c.opStack[len(c.opStack)-1]
		if top.kind == opTernElse {
			// A nested ternary in the then-branch ends at this colon.
			c.resolveTernElse()
			continue
		}
		if top.kind != opBin && top.kind != opInfix && top.kind != opAssign {
			break
		}
		if err := c.applyTop(); err != nil {
			return err
		}
	}
	if len(c.opStack) == 0 || c.opStack[len(c.opStack)-1].kind != opTernIf {
		return errors.New(errors.MisplacedColon, tok.Pos, tok.Ident)
	}

	ternIf := c.opStack[len(c.opStack)-1]
	c.popVal() // the then-branch value; only one branch exists at runtime

	jmpPos := c.emit(OP_JMP, 0)
	PatchOperand(c.bytecode.Instructions, ternIf.jmpPos, 0, len(c.bytecode.Instructions))
	c.opStack[len(c.opStack)-1] = stackOp{kind: opTernElse, tok: tok, jmpPos: jmpPos}
	return nil
}

func (c *Compiler) comma(tok token.Token) error {
	found, err := c.popUntilParen()
	if err != nil {
		return err
	}
	if !found {
		// Top-level comma: one statement ends, the next begins.
		return c.endStatement()
	}
	lp := &c.opStack[len(c.opStack)-1]
	if lp.fun == nil {
		return errors.New(errors.UnexpectedComma, tok.Pos, tok.Ident)
	}
	lp.commas++
	return nil
}

func (c *Compiler) closeParen(tok token.Token) error {
	found, err := c.popUntilParen()
	if err != nil {
		return err
	}
	if !found {
		return errors.New(errors.UnexpectedParens, tok.Pos, tok.Ident)
	}
	lp := c.opStack[len(c.opStack)-1]
	c.opStack = c.opStack[:len(c.opStack)-1]

	args := len(c.valStack) - lp.valBase
	if lp.fun != nil {
		return c.emitCall(lp, args, tok)
	}
	if args == 0 {
		return errors.New(errors.UnexpectedParens, tok.Pos, tok.Ident)
	}
	// A parenthesised variable is a value, not an assignment target.
	top := &c.valStack[len(c.valStack)-1]
	if top.kind == valVarRef {
		top.kind = valDynamic
		top.size = 0
	}
	return nil
}

func (c *Compiler) emitCall(lp stackOp, args int, closeTok token.Token) error {
	fun := lp.fun
	argVals := c.valStack[lp.valBase:]

	if fun.IsStr() {
		if args == 0 {
			return errors.New(errors.UnexpectedParens, closeTok.Pos, closeTok.Ident)
		}
		want := 1 + fun.Argc
		if args > want {
			return errors.New(errors.TooManyParams, lp.tok.Pos, fun.Name)
		}
		if args < want {
			return errors.New(errors.TooFewParams, lp.tok.Pos, fun.Name)
		}
		if argVals[0].kind != valString {
			return errors.New(errors.StringExpected, argVals[0].tokPos, argVals[0].ident)
		}
		for _, arg := range argVals[1:] {
			if arg.kind == valString {
				return errors.New(errors.ValExpected, arg.tokPos, arg.ident)
			}
		}
		c.emitCallOp(fun, fun.Argc)
		return nil
	}

	for _, arg := range argVals {
		if arg.kind == valString {
			return errors.New(errors.ValExpected, arg.tokPos, arg.ident)
		}
	}
	switch {
	case fun.Argc == symbols.VarArgs:
		if args < 1 {
			return errors.New(errors.TooFewParams, lp.tok.Pos, fun.Name)
		}
	case args < fun.Argc:
		return errors.New(errors.TooFewParams, lp.tok.Pos, fun.Name)
	case args > fun.Argc:
		return errors.New(errors.TooManyParams, lp.tok.Pos, fun.Name)
	}

	if args > 0 && fun.AllowFold && c.foldable(argVals...) {
		callArgs := make([]symbols.Value, args)
		for i, arg := range argVals {
			callArgs[i] = arg.val
		}
		start := argVals[0].pos
		v, err := fun.Fn(callArgs)
		if err != nil {
			return position(err, lp.tok.Pos, fun.Name)
		}
		for range callArgs {
			c.popVal()
		}
		c.foldInto(start, v, lp.tok.Pos)
		return nil
	}

	c.emitCallOp(fun, args)
	return nil
}

// emitCallOp pops the call's arguments off the shadow stack and
// emits the dispatch opcode. argc is the numeric argument count the
// evaluator will pop.
func (c *Compiler) emitCallOp(fun *symbols.FunEntry, argc int) {
	idx, ok := c.funIdx[fun]
	if !ok {
		c.bytecode.FunPool = append(c.bytecode.FunPool, fun)
		idx = len(c.bytecode.FunPool) - 1
		c.funIdx[fun] = idx
	}
	total := argc
	if fun.IsStr() {
		total = argc + 1 // the string argument sits on the string stack
	}
	for i := 0; i < total; i++ {
		c.popVal()
	}
	c.emit(OP_CALL, idx, argc)
	c.pushVal(shadowVal{kind: valDynamic})
}

// endStatement seals one top-level expression: its result must be
// numeric, and the evaluator collects it from the top of the stack.
func (c *Compiler) endStatement() error {
	top := c.popVal()
	if top.kind == valString {
		return errors.New(errors.StrResult, top.tokPos, top.ident)
	}
	c.emit(OP_STMT_END)
	c.bytecode.StmtCount++
	c.curDepth = 0
	return nil
}

func (c *Compiler) finish(tok token.Token) error {
	for len(c.opStack) > 0 {
		top := c.opStack[len(c.opStack)-1]
		switch top.kind {
		case opLParen:
			return errors.New(errors.MissingParens, top.tok.Pos, top.tok.Ident)
		case opTernElse:
			c.resolveTernElse()
		case opTernIf:
			return errors.New(errors.MissingElseClause, top.tok.Pos, top.tok.Ident)
		default:
			if err := c.applyTop(); err != nil {
				return err
			}
		}
	}
	if err := c.endStatement(); err != nil {
		return err
	}
	c.emit(OP_END)
	return nil
}
