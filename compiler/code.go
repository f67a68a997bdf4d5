package compiler

import (
	"encoding/binary"
	"fmt"
	"strings"

	"kalk/symbols"
)

// Bytecode is the compiled form of one expression: a linear
// instruction stream plus the flat pools its operands index into.
// The pools pin the symbol-table entries the program depends on, so
// evaluation never consults the tables again.
type Bytecode struct {
	Instructions Instructions

	ConstantsPool []symbols.Value
	StringPool    []string
	VarPool       []*symbols.Variable
	FunPool       []*symbols.FunEntry
	OprtPool      []*symbols.OprtEntry
	InfixPool     []*symbols.UnOprtEntry
	PostPool      []*symbols.UnOprtEntry

	// MaxStackDepth is the largest numeric stack depth any execution
	// of the program can reach; the evaluator preallocates to it.
	MaxStackDepth int

	// StmtCount is the number of top-level comma-separated
	// expressions; Eval yields exactly this many results.
	StmtCount int
}

type Opcode byte

type Instructions []byte

// Opcodes. Operands are unsigned 16-bit big-endian indexes into the
// pools, which caps each pool at 65536 entries (indexes 0 to 65535)
// and jump targets at byte offset 65535.
const (
	OP_CONSTANT Opcode = iota // push ConstantsPool[operand]
	OP_VAR                    // push current value of VarPool[operand]
	OP_STRING                 // push operand onto the string stack
	OP_BIN                    // apply OprtPool[operand] to the top two values
	OP_PREFIX                 // apply InfixPool[operand] to the top value
	OP_POSTFIX                // apply PostPool[operand] to the top value
	OP_ASSIGN                 // write top value through VarPool[operand]
	OP_CALL                   // call FunPool[operand1] with operand2 arguments
	OP_JMP_IF_FALSE           // pop one value; jump to operand when it is zero
	OP_JMP                    // jump to operand
	OP_STMT_END               // record top of stack as a statement result
	OP_END                    // end of program
)

// OpCodeDefinition describes one opcode for the assembler and the
// disassembler.
type OpCodeDefinition struct {
	Name          string
	OperandWidths []int
}

var definitions = map[Opcode]*OpCodeDefinition{
	OP_CONSTANT:     {Name: "OP_CONSTANT", OperandWidths: []int{2}},
	OP_VAR:          {Name: "OP_VAR", OperandWidths: []int{2}},
	OP_STRING:       {Name: "OP_STRING", OperandWidths: []int{2}},
	OP_BIN:          {Name: "OP_BIN", OperandWidths: []int{2}},
	OP_PREFIX:       {Name: "OP_PREFIX", OperandWidths: []int{2}},
	OP_POSTFIX:      {Name: "OP_POSTFIX", OperandWidths: []int{2}},
	OP_ASSIGN:       {Name: "OP_ASSIGN", OperandWidths: []int{2}},
	OP_CALL:         {Name: "OP_CALL", OperandWidths: []int{2, 2}},
	OP_JMP_IF_FALSE: {Name: "OP_JMP_IF_FALSE", OperandWidths: []int{2}},
	OP_JMP:          {Name: "OP_JMP", OperandWidths: []int{2}},
	OP_STMT_END:     {Name: "OP_STMT_END", OperandWidths: []int{}},
	OP_END:          {Name: "OP_END", OperandWidths: []int{}},
}

func Get(op Opcode) (*OpCodeDefinition, error) {
	def, ok := definitions[op]
	if !ok {
		return nil, fmt.Errorf("opcode %d undefined", op)
	}
	return def, nil
}

// AssembleInstruction constructs a bytecode instruction from an
// opcode and its operands, encoding each operand big-endian at its
// defined width.
func AssembleInstruction(op Opcode, operands ...int) ([]byte, error) {
	def, err := Get(op)
	if err != nil {
		return nil, err
	}
	if len(operands) != len(def.OperandWidths) {
		return nil, fmt.Errorf("opcode %s expects %d operands, got %d",
			def.Name, len(def.OperandWidths), len(operands))
	}

	instructionLength := 1
	for _, width := range def.OperandWidths {
		instructionLength += width
	}

	instruction := make([]byte, instructionLength)
	instruction[0] = byte(op)

	byteOffset := 1
	for i, operand := range operands {
		width := def.OperandWidths[i]
		switch width {
		case 2:
			binary.BigEndian.PutUint16(instruction[byteOffset:], uint16(operand))
		}
		byteOffset += width
	}
	return instruction, nil
}

// InstructionLength returns the total encoded size of the instruction
// starting with op, opcode byte included.
func InstructionLength(op Opcode) int {
	def, ok := definitions[op]
	if !ok {
		return 1
	}
	length := 1
	for _, width := range def.OperandWidths {
		length += width
	}
	return length
}

// ReadOperand decodes the n-th operand of the instruction starting at
// offset ip.
func ReadOperand(ins Instructions, ip, n int) int {
	return int(binary.BigEndian.Uint16(ins[ip+1+2*n:]))
}

// PatchOperand overwrites the n-th operand of the instruction at ip.
// The compiler uses it to resolve forward jumps.
func PatchOperand(ins Instructions, ip, n, operand int) {
	binary.BigEndian.PutUint16(ins[ip+1+2*n:], uint16(operand))
}

// Disassemble renders the program as a human readable listing, one
// instruction per line, resolving pool operands to their values.
func (bc Bytecode) Disassemble() string {
	var builder strings.Builder
	ip := 0
	for ip < len(bc.Instructions) {
		op := Opcode(bc.Instructions[ip])
		def, err := Get(op)
		if err != nil {
			fmt.Fprintf(&builder, "%04d UNDEFINED(%d)\n", ip, op)
			ip++
			continue
		}

		fmt.Fprintf(&builder, "%04d %s", ip, def.Name)
		for n := range def.OperandWidths {
			fmt.Fprintf(&builder, " %d", ReadOperand(bc.Instructions, ip, n))
		}

		switch op {
		case OP_CONSTANT:
			fmt.Fprintf(&builder, ", value: %v", bc.ConstantsPool[ReadOperand(bc.Instructions, ip, 0)])
		case OP_VAR, OP_ASSIGN:
			fmt.Fprintf(&builder, ", var: %s", bc.VarPool[ReadOperand(bc.Instructions, ip, 0)].Name)
		case OP_STRING:
			fmt.Fprintf(&builder, ", str: %q", bc.StringPool[ReadOperand(bc.Instructions, ip, 0)])
		case OP_BIN:
			fmt.Fprintf(&builder, ", oprt: %s", bc.OprtPool[ReadOperand(bc.Instructions, ip, 0)].Name)
		case OP_PREFIX:
			fmt.Fprintf(&builder, ", oprt: %s", bc.InfixPool[ReadOperand(bc.Instructions, ip, 0)].Name)
		case OP_POSTFIX:
			fmt.Fprintf(&builder, ", oprt: %s", bc.PostPool[ReadOperand(bc.Instructions, ip, 0)].Name)
		case OP_CALL:
			fmt.Fprintf(&builder, ", fun: %s", bc.FunPool[ReadOperand(bc.Instructions, ip, 0)].Name)
		}
		builder.WriteString("\n")

		ip += InstructionLength(op)
	}
	return builder.String()
}
