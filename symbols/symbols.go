// Package symbols holds the registries consulted by the tokeniser and
// the compiler: variables, constants, string constants, functions and
// the three operator tables, together with the configurable character
// sets and the operator lookup tries.
package symbols

import (
	"kalk/errors"
)

// Value is the scalar the whole engine computes with. Switching the
// engine to an integer scalar means changing this alias and the
// built-in callables, nothing else.
type Value = float64

// Callable signatures. Every callable reports failure through the
// error return; errors abort evaluation (or constant folding).
type (
	// NumFun is a numeric function body. It receives exactly the
	// arguments of the call site, already evaluated.
	NumFun func(args []Value) (Value, error)

	// StrFun is the body of a string-accepting function: the string
	// argument first, then the numeric arguments.
	StrFun func(s string, args []Value) (Value, error)

	// BinFun is a binary operator body, applied in (lhs, rhs) order.
	BinFun func(a, b Value) (Value, error)

	// UnFun is a unary (infix prefix or postfix) operator body.
	UnFun func(v Value) (Value, error)
)

// VarArgs marks a function as variadic; such functions accept one or
// more arguments, with the count fixed per call site at compile time.
const VarArgs = -1

// Assoc is the associativity of a binary operator.
type Assoc int

const (
	AssocLeft Assoc = iota
	AssocRight
)

// Fixed precedence levels of the built-in binary operators, lowest
// first. User operators may use any level; PrecInfix is the
// conventional level for sign-like infix operators (tighter than
// addition, looser than exponentiation).
const (
	PrecAssign     = -1 // =
	PrecLogic      = 1  // && ||
	PrecBitOr      = 2  // |
	PrecBitAnd     = 3  // &
	PrecEqual      = 4  // == !=
	PrecRelational = 5  // < > <= >=
	PrecShift      = 6  // << >>
	PrecAddSub     = 7  // + -
	PrecMulDiv     = 8  // * / %
	PrecPow        = 9  // ^ (right-associative)

	PrecInfix   = 8
	PrecPostfix = 8
)

// Variable is a named, host-owned storage cell. The parser reads and
// writes through Ptr at evaluation time; the host must keep the cell
// alive until the variable is removed.
type Variable struct {
	Name string
	Ptr  *Value
}

// FunEntry describes one registered function.
type FunEntry struct {
	Name string

	// Argc is the declared numeric argument count, or VarArgs. For a
	// string-accepting function it counts only the numeric arguments
	// following the string.
	Argc int

	Fn  NumFun // numeric functions
	Str StrFun // string-accepting functions; nil otherwise

	// AllowFold permits the compiler to invoke the function at
	// compile time when every argument is a known constant.
	AllowFold bool
}

// IsStr reports whether the first argument must be a string literal
// or string constant.
func (f *FunEntry) IsStr() bool { return f.Str != nil }

// OprtEntry describes one binary operator.
type OprtEntry struct {
	Name  string
	Fn    BinFun
	Prec  int
	Assoc Assoc

	// AllowFold permits compile-time application to constant operands.
	AllowFold bool

	// IsAssign marks the built-in assignment operator; it has no Fn.
	IsAssign bool
}

// UnOprtEntry describes one unary operator (infix prefix or postfix).
type UnOprtEntry struct {
	Name string
	Fn   UnFun
	Prec int
}

// Default character sets.
const (
	DefaultNameChars  = "0123456789_abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"
	DefaultOprtChars  = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ+-*^/?<>=#!$%&|~'_{}"
	DefaultInfixChars = "/+-*^?<>=#!$%&|~'_"
)

// Table is the complete symbol state of one parser instance. It is
// not safe for concurrent mutation.
type Table struct {
	Vars      map[string]*Variable
	Consts    map[string]Value
	StrConsts map[string]string
	Funs      map[string]*FunEntry

	Oprts      map[string]*OprtEntry
	InfixOprts map[string]*UnOprtEntry
	PostOprts  map[string]*UnOprtEntry

	// The built-in binary operators, installed once by the facade.
	// They participate in tokenising and conflict checks only while
	// BuiltInOprt is true.
	BuiltIns    map[string]*OprtEntry
	BuiltInOprt bool

	NameChars  map[rune]bool
	OprtChars  map[rune]bool
	InfixChars map[rune]bool

	binTrie   *Trie
	infixTrie *Trie
	postTrie  *Trie
	triesOK   bool

	// Generation increments on every mutation that can invalidate
	// compiled bytecode.
	Generation uint64
}

func NewTable() *Table {
	t := &Table{
		Vars:        make(map[string]*Variable),
		Consts:      make(map[string]Value),
		StrConsts:   make(map[string]string),
		Funs:        make(map[string]*FunEntry),
		Oprts:       make(map[string]*OprtEntry),
		InfixOprts:  make(map[string]*UnOprtEntry),
		PostOprts:   make(map[string]*UnOprtEntry),
		BuiltIns:    make(map[string]*OprtEntry),
		BuiltInOprt: true,
	}
	t.SetNameChars(DefaultNameChars)
	t.SetOprtChars(DefaultOprtChars)
	t.SetInfixChars(DefaultInfixChars)
	return t
}

func (t *Table) mutated() {
	t.triesOK = false
	t.Generation++
}

func charSet(chars string) map[rune]bool {
	set := make(map[rune]bool, len(chars))
	for _, r := range chars {
		set[r] = true
	}
	return set
}

func (t *Table) SetNameChars(chars string)  { t.NameChars = charSet(chars); t.mutated() }
func (t *Table) SetOprtChars(chars string)  { t.OprtChars = charSet(chars); t.mutated() }
func (t *Table) SetInfixChars(chars string) { t.InfixChars = charSet(chars); t.mutated() }

// IsNameChar reports whether r may appear in an identifier.
func (t *Table) IsNameChar(r rune) bool { return t.NameChars[r] }

// IsNameStart reports whether r may start an identifier. Identifiers
// never start with a digit regardless of the configured set.
func (t *Table) IsNameStart(r rune) bool {
	return t.NameChars[r] && (r < '0' || r > '9')
}

// ValidName checks a variable, constant or function name against the
// configured identifier character set.
func (t *Table) ValidName(name string) error {
	runes := []rune(name)
	if len(runes) == 0 || !t.IsNameStart(runes[0]) {
		return errors.New(errors.InvalidName, -1, name)
	}
	for _, r := range runes[1:] {
		if !t.IsNameChar(r) {
			return errors.New(errors.InvalidName, -1, name)
		}
	}
	return nil
}

func validIn(name string, set map[rune]bool) error {
	if name == "" {
		return errors.New(errors.InvalidName, -1, name)
	}
	for _, r := range name {
		if !set[r] {
			return errors.New(errors.InvalidName, -1, name)
		}
	}
	return nil
}

// Tags identifying the table a name is being defined into; nameTaken
// skips the defining table so redefinition overwrites instead of
// conflicting. Binary and infix operators are read in different
// token positions, so one spelling may be both (a binary "+" next to
// the sign "+").
const (
	tabVars = iota
	tabConsts
	tabStrConsts
	tabFuns
	tabOprts
	tabInfix
	tabPost
)

func (t *Table) nameTaken(name string, self int) bool {
	present := func(tab int, ok bool) bool { return ok && tab != self }
	if _, ok := t.Vars[name]; present(tabVars, ok) {
		return true
	}
	if _, ok := t.Consts[name]; present(tabConsts, ok) {
		return true
	}
	if _, ok := t.StrConsts[name]; present(tabStrConsts, ok) {
		return true
	}
	if _, ok := t.Funs[name]; present(tabFuns, ok) {
		return true
	}
	if _, ok := t.Oprts[name]; present(tabOprts, ok) && self != tabInfix {
		return true
	}
	if _, ok := t.InfixOprts[name]; present(tabInfix, ok) && self != tabOprts {
		return true
	}
	if _, ok := t.PostOprts[name]; present(tabPost, ok) {
		return true
	}
	return false
}

func (t *Table) DefineVar(name string, ptr *Value) error {
	if err := t.ValidName(name); err != nil {
		return err
	}
	if t.nameTaken(name, tabVars) {
		return errors.New(errors.NameConflict, -1, name)
	}
	t.Vars[name] = &Variable{Name: name, Ptr: ptr}
	t.mutated()
	return nil
}

func (t *Table) RemoveVar(name string) {
	if _, ok := t.Vars[name]; ok {
		delete(t.Vars, name)
		t.mutated()
	}
}

func (t *Table) ClearVars() {
	t.Vars = make(map[string]*Variable)
	t.mutated()
}

func (t *Table) DefineConst(name string, v Value) error {
	if err := t.ValidName(name); err != nil {
		return err
	}
	if t.nameTaken(name, tabConsts) {
		return errors.New(errors.NameConflict, -1, name)
	}
	t.Consts[name] = v
	t.mutated()
	return nil
}

func (t *Table) DefineStrConst(name, s string) error {
	if err := t.ValidName(name); err != nil {
		return err
	}
	if t.nameTaken(name, tabStrConsts) {
		return errors.New(errors.NameConflict, -1, name)
	}
	t.StrConsts[name] = s
	t.mutated()
	return nil
}

// ClearConsts removes all numeric and string constants.
func (t *Table) ClearConsts() {
	t.Consts = make(map[string]Value)
	t.StrConsts = make(map[string]string)
	t.mutated()
}

func (t *Table) DefineFun(entry *FunEntry) error {
	if err := t.ValidName(entry.Name); err != nil {
		return err
	}
	if t.nameTaken(entry.Name, tabFuns) {
		return errors.New(errors.NameConflict, -1, entry.Name)
	}
	t.Funs[entry.Name] = entry
	t.mutated()
	return nil
}

func (t *Table) ClearFuns() {
	t.Funs = make(map[string]*FunEntry)
	t.mutated()
}

func (t *Table) DefineOprt(entry *OprtEntry) error {
	if err := validIn(entry.Name, t.OprtChars); err != nil {
		return err
	}
	if t.BuiltInOprt {
		if _, ok := t.BuiltIns[entry.Name]; ok {
			return errors.New(errors.NameConflict, -1, entry.Name)
		}
	}
	if t.nameTaken(entry.Name, tabOprts) {
		return errors.New(errors.NameConflict, -1, entry.Name)
	}
	t.Oprts[entry.Name] = entry
	t.mutated()
	return nil
}

func (t *Table) ClearOprts() {
	t.Oprts = make(map[string]*OprtEntry)
	t.mutated()
}

func (t *Table) DefineInfixOprt(entry *UnOprtEntry) error {
	if err := validIn(entry.Name, t.InfixChars); err != nil {
		return err
	}
	if t.nameTaken(entry.Name, tabInfix) {
		return errors.New(errors.NameConflict, -1, entry.Name)
	}
	t.InfixOprts[entry.Name] = entry
	t.mutated()
	return nil
}

func (t *Table) ClearInfixOprts() {
	t.InfixOprts = make(map[string]*UnOprtEntry)
	t.mutated()
}

func (t *Table) DefinePostfixOprt(entry *UnOprtEntry) error {
	if err := validIn(entry.Name, t.OprtChars); err != nil {
		return err
	}
	if t.nameTaken(entry.Name, tabPost) {
		return errors.New(errors.NameConflict, -1, entry.Name)
	}
	t.PostOprts[entry.Name] = entry
	t.mutated()
	return nil
}

func (t *Table) ClearPostfixOprts() {
	t.PostOprts = make(map[string]*UnOprtEntry)
	t.mutated()
}

// SetBuiltIns installs the fixed built-in binary operator table. The
// facade calls this once at construction.
func (t *Table) SetBuiltIns(entries []*OprtEntry) {
	t.BuiltIns = make(map[string]*OprtEntry, len(entries))
	for _, e := range entries {
		t.BuiltIns[e.Name] = e
	}
	t.mutated()
}

func (t *Table) EnableBuiltInOprt(on bool) {
	if t.BuiltInOprt != on {
		t.BuiltInOprt = on
		t.mutated()
	}
}

// LookupOprt resolves a binary operator name, consulting the built-in
// table only while built-ins are enabled. User definitions win over
// built-ins once built-ins are disabled; while enabled the define is
// rejected up front, so no shadowing can occur.
func (t *Table) LookupOprt(name string) *OprtEntry {
	if e, ok := t.Oprts[name]; ok {
		return e
	}
	if t.BuiltInOprt {
		if e, ok := t.BuiltIns[name]; ok {
			return e
		}
	}
	return nil
}

func (t *Table) rebuildTries() {
	t.binTrie = NewTrie()
	for name := range t.Oprts {
		t.binTrie.Insert(name)
	}
	if t.BuiltInOprt {
		for name := range t.BuiltIns {
			t.binTrie.Insert(name)
		}
	}
	t.infixTrie = NewTrie()
	for name := range t.InfixOprts {
		t.infixTrie.Insert(name)
	}
	t.postTrie = NewTrie()
	for name := range t.PostOprts {
		t.postTrie.Insert(name)
	}
	t.triesOK = true
}

// BinTrie returns the longest-match trie over binary operator names
// (built-ins included while enabled), rebuilding it after mutations.
func (t *Table) BinTrie() *Trie {
	if !t.triesOK {
		t.rebuildTries()
	}
	return t.binTrie
}

func (t *Table) InfixTrie() *Trie {
	if !t.triesOK {
		t.rebuildTries()
	}
	return t.infixTrie
}

func (t *Table) PostTrie() *Trie {
	if !t.triesOK {
		t.rebuildTries()
	}
	return t.postTrie
}
