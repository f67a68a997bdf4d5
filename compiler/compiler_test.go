package compiler

import (
	"strconv"
	"testing"

	"kalk/errors"
	"kalk/lexer"
	"kalk/symbols"
)

func add(a, b symbols.Value) (symbols.Value, error) { return a + b, nil }
func sub(a, b symbols.Value) (symbols.Value, error) { return a - b, nil }
func mul(a, b symbols.Value) (symbols.Value, error) { return a * b, nil }
func neg(v symbols.Value) (symbols.Value, error)    { return -v, nil }

func testTable(t *testing.T, vars map[string]*symbols.Value) *symbols.Table {
	t.Helper()
	tab := symbols.NewTable()
	tab.SetBuiltIns([]*symbols.OprtEntry{
		{Name: "=", Prec: symbols.PrecAssign, Assoc: symbols.AssocRight, IsAssign: true},
		{Name: "<", Prec: symbols.PrecRelational, Fn: func(a, b symbols.Value) (symbols.Value, error) {
			if a < b {
				return 1, nil
			}
			return 0, nil
		}, AllowFold: true},
		{Name: "+", Prec: symbols.PrecAddSub, Fn: add, AllowFold: true},
		{Name: "-", Prec: symbols.PrecAddSub, Fn: sub, AllowFold: true},
		{Name: "*", Prec: symbols.PrecMulDiv, Fn: mul, AllowFold: true},
	})
	for name, cell := range vars {
		if err := tab.DefineVar(name, cell); err != nil {
			t.Fatalf("DefineVar(%q): %v", name, err)
		}
	}
	if err := tab.DefineInfixOprt(&symbols.UnOprtEntry{Name: "-", Fn: neg, Prec: symbols.PrecInfix}); err != nil {
		t.Fatalf("DefineInfixOprt: %v", err)
	}
	if err := tab.DefineFun(&symbols.FunEntry{
		Name: "max", Argc: symbols.VarArgs, AllowFold: true,
		Fn: func(args []symbols.Value) (symbols.Value, error) {
			result := args[0]
			for _, arg := range args[1:] {
				if arg > result {
					result = arg
				}
			}
			return result, nil
		},
	}); err != nil {
		t.Fatalf("DefineFun: %v", err)
	}
	return tab
}

func decimalIdent(rest string) (symbols.Value, int, bool) {
	rs := []rune(rest)
	i := 0
	if i < len(rs) && (rs[i] == '+' || rs[i] == '-') {
		i++
	}
	digits := 0
	for i < len(rs) && (rs[i] >= '0' && rs[i] <= '9' || rs[i] == '.') {
		if rs[i] != '.' {
			digits++
		}
		i++
	}
	if digits == 0 {
		return 0, 0, false
	}
	val, err := strconv.ParseFloat(string(rs[:i]), 64)
	if err != nil {
		return 0, 0, false
	}
	return val, i, true
}

func compile(t *testing.T, tab *symbols.Table, expr string, optimize bool) (Bytecode, error) {
	t.Helper()
	c := New(tab, optimize, []lexer.ValIdent{decimalIdent})
	return c.Compile(expr)
}

func mustAsm(t *testing.T, op Opcode, operands ...int) []byte {
	t.Helper()
	instruction, err := AssembleInstruction(op, operands...)
	if err != nil {
		t.Fatalf("AssembleInstruction(%v): %v", op, err)
	}
	return instruction
}

func join(parts ...[]byte) Instructions {
	var result Instructions
	for _, part := range parts {
		result = append(result, part...)
	}
	return result
}

func assertInstructions(t *testing.T, got, want Instructions) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("instruction length mismatch - got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("instruction byte %d mismatch - got %v, want %v", i, got, want)
		}
	}
}

func TestCompileBinaryExpression(t *testing.T) {
	var a symbols.Value = 1
	tab := testTable(t, map[string]*symbols.Value{"a": &a})

	bytecode, err := compile(t, tab, "1+2*a", true)
	if err != nil {
		t.Fatalf("compile failed: %v", err)
	}

	// 2*a cannot fold, so the whole tree stays dynamic; "*" is
	// applied (and therefore pooled) before "+".
	want := join(
		mustAsm(t, OP_CONSTANT, 0),
		mustAsm(t, OP_CONSTANT, 1),
		mustAsm(t, OP_VAR, 0),
		mustAsm(t, OP_BIN, 0),
		mustAsm(t, OP_BIN, 1),
		mustAsm(t, OP_STMT_END),
		mustAsm(t, OP_END),
	)
	assertInstructions(t, bytecode.Instructions, want)

	if bytecode.OprtPool[0].Name != "*" || bytecode.OprtPool[1].Name != "+" {
		t.Errorf("operator pool order wrong: %v, %v", bytecode.OprtPool[0].Name, bytecode.OprtPool[1].Name)
	}
	if bytecode.MaxStackDepth != 3 {
		t.Errorf("MaxStackDepth = %d, want 3", bytecode.MaxStackDepth)
	}
	if bytecode.StmtCount != 1 {
		t.Errorf("StmtCount = %d, want 1", bytecode.StmtCount)
	}
}

func TestConstantFolding(t *testing.T) {
	tab := testTable(t, nil)

	tests := []struct {
		expr string
		want symbols.Value
	}{
		{"(1+ 2*3)", 7},
		{"-(2+1)", -3},
		{"max(1,2,3)*2", 6},
		{"1+max(1,-max(1,2))", 2},
	}
	for _, tt := range tests {
		bytecode, err := compile(t, tab, tt.expr, true)
		if err != nil {
			t.Errorf("compile(%q) failed: %v", tt.expr, err)
			continue
		}
		constIdx := int(bytecode.Instructions[2]) // operand of the leading OP_CONSTANT
		want := join(
			mustAsm(t, OP_CONSTANT, constIdx),
			mustAsm(t, OP_STMT_END),
			mustAsm(t, OP_END),
		)
		assertInstructions(t, bytecode.Instructions, want)
		if got := bytecode.ConstantsPool[constIdx]; got != tt.want {
			t.Errorf("compile(%q) folded to %v, want %v", tt.expr, got, tt.want)
		}
	}
}

func TestOptimizerDisabled(t *testing.T) {
	tab := testTable(t, nil)

	bytecode, err := compile(t, tab, "1+2", false)
	if err != nil {
		t.Fatalf("compile failed: %v", err)
	}
	want := join(
		mustAsm(t, OP_CONSTANT, 0),
		mustAsm(t, OP_CONSTANT, 1),
		mustAsm(t, OP_BIN, 0),
		mustAsm(t, OP_STMT_END),
		mustAsm(t, OP_END),
	)
	assertInstructions(t, bytecode.Instructions, want)
}

func TestTernaryJumpPatching(t *testing.T) {
	tab := testTable(t, nil)

	bytecode, err := compile(t, tab, "1 ? 2 : 3", true)
	if err != nil {
		t.Fatalf("compile failed: %v", err)
	}

	// 0000 OP_CONSTANT      0003 OP_JMP_IF_FALSE -> 12
	// 0006 OP_CONSTANT      0009 OP_JMP -> 15
	// 0012 OP_CONSTANT      0015 OP_STMT_END  0016 OP_END
	want := join(
		mustAsm(t, OP_CONSTANT, 0),
		mustAsm(t, OP_JMP_IF_FALSE, 12),
		mustAsm(t, OP_CONSTANT, 1),
		mustAsm(t, OP_JMP, 15),
		mustAsm(t, OP_CONSTANT, 2),
		mustAsm(t, OP_STMT_END),
		mustAsm(t, OP_END),
	)
	assertInstructions(t, bytecode.Instructions, want)
}

func TestCompoundStatements(t *testing.T) {
	var a symbols.Value = 1
	var c symbols.Value = 3
	tab := testTable(t, map[string]*symbols.Value{"a": &a, "c": &c})

	bytecode, err := compile(t, tab, "a=c, a*10", true)
	if err != nil {
		t.Fatalf("compile failed: %v", err)
	}
	if bytecode.StmtCount != 2 {
		t.Errorf("StmtCount = %d, want 2", bytecode.StmtCount)
	}

	want := join(
		mustAsm(t, OP_VAR, 0),      // a (assignment target)
		mustAsm(t, OP_VAR, 1),      // c
		mustAsm(t, OP_ASSIGN, 0),   // a = c
		mustAsm(t, OP_STMT_END),
		mustAsm(t, OP_VAR, 0),      // a
		mustAsm(t, OP_CONSTANT, 0), // 10
		mustAsm(t, OP_BIN, 0),      // *
		mustAsm(t, OP_STMT_END),
		mustAsm(t, OP_END),
	)
	assertInstructions(t, bytecode.Instructions, want)
}

func TestCompileErrors(t *testing.T) {
	var a symbols.Value = 1
	var b symbols.Value = 2
	tab := testTable(t, map[string]*symbols.Value{"a": &a, "b": &b})

	tests := []struct {
		expr string
		kind errors.Kind
	}{
		{"(1+2", errors.MissingParens},
		{"()", errors.UnexpectedParens},
		{"3+()", errors.UnexpectedParens},
		{"(2+", errors.UnexpectedEOF},
		{"max()", errors.TooFewParams},
		{"(7,8)", errors.UnexpectedComma},
		{"3=4", errors.UnexpectedOperator},
		{"a=3=b", errors.UnexpectedOperator},
		{"(a)=5", errors.UnexpectedOperator},
		{"(8)=5", errors.UnexpectedOperator},
		{"a+b=10", errors.UnexpectedOperator},
		{"(a<b) ? 1", errors.MissingElseClause},
		{"(a<b) ? (b<a) ? 1 : 2", errors.MissingElseClause},
		{"a : b", errors.MisplacedColon},
		{"(1) ? 1 : 2 : 3", errors.MisplacedColon},
	}
	for _, tt := range tests {
		_, err := compile(t, tab, tt.expr, true)
		if err == nil {
			t.Errorf("compile(%q) should have failed with kind %d", tt.expr, tt.kind)
			continue
		}
		if !errors.Is(err, tt.kind) {
			t.Errorf("compile(%q): got %v, want kind %d", tt.expr, err, tt.kind)
		}
	}
}

func TestFoldSurfacesCallableError(t *testing.T) {
	tab := testTable(t, nil)
	if err := tab.DefineOprt(&symbols.OprtEntry{
		Name: "/", Prec: symbols.PrecMulDiv, AllowFold: true,
		Fn: func(a, b symbols.Value) (symbols.Value, error) {
			if b == 0 {
				return 0, errors.New(errors.DivByZero, -1, "/")
			}
			return a / b, nil
		},
	}); err != nil {
		t.Fatalf("DefineOprt: %v", err)
	}

	_, err := compile(t, tab, "1/0", true)
	if err == nil {
		t.Fatal("folding 1/0 should have failed")
	}
	if !errors.Is(err, errors.DivByZero) {
		t.Errorf("got %v, want DIV_BY_ZERO", err)
	}
}
