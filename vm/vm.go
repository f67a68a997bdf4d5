// Package vm executes compiled expression bytecode. The machine is a
// plain stack machine: a value stack sized to the compile-time
// maximum, a small stack of string-pool indexes for string arguments,
// and an instruction pointer. Function and operator dispatch goes
// through the bytecode's pools, so no table lookup happens during
// evaluation.
package vm

import (
	goerrors "errors"

	"kalk/compiler"
	"kalk/errors"
	"kalk/symbols"
)

// VM executes bytecode. A VM may be reused across evaluations but
// not shared between goroutines.
type VM struct {
	stack Stack
	strs  []int
}

func New() *VM {
	return &VM{}
}

// runtimeError normalises an error coming out of a callable: kalk
// errors pass through, anything else is wrapped.
func runtimeError(err error, name string) error {
	var kerr *errors.Error
	if goerrors.As(err, &kerr) {
		if kerr.Token == "" {
			kerr.Token = name
		}
		return kerr
	}
	e := errors.New(errors.Generic, -1, name)
	e.Token = err.Error()
	return e
}

// Run executes the program and returns one result per top-level
// comma-separated expression. A callable error aborts evaluation
// immediately; the partially built result list is discarded.
func (vm *VM) Run(bytecode compiler.Bytecode) ([]symbols.Value, error) {
	if cap(vm.stack) < bytecode.MaxStackDepth {
		vm.stack = make(Stack, 0, bytecode.MaxStackDepth)
	}
	vm.stack.Reset()
	vm.strs = vm.strs[:0]

	results := make([]symbols.Value, 0, bytecode.StmtCount)
	ins := bytecode.Instructions
	ip := 0

	for ip < len(ins) {
		opCode := compiler.Opcode(ins[ip])

		switch opCode {
		case compiler.OP_END:
			return results, nil

		case compiler.OP_CONSTANT:
			operand := compiler.ReadOperand(ins, ip, 0)
			vm.stack.Push(bytecode.ConstantsPool[operand])

		case compiler.OP_VAR:
			operand := compiler.ReadOperand(ins, ip, 0)
			vm.stack.Push(*bytecode.VarPool[operand].Ptr)

		case compiler.OP_STRING:
			vm.strs = append(vm.strs, compiler.ReadOperand(ins, ip, 0))

		case compiler.OP_BIN:
			entry := bytecode.OprtPool[compiler.ReadOperand(ins, ip, 0)]
			args, ok := vm.stack.PopN(2)
			if !ok {
				return nil, errors.New(errors.Generic, -1, entry.Name)
			}
			result, err := entry.Fn(args[0], args[1])
			if err != nil {
				return nil, runtimeError(err, entry.Name)
			}
			vm.stack.Push(result)

		case compiler.OP_PREFIX:
			entry := bytecode.InfixPool[compiler.ReadOperand(ins, ip, 0)]
			operand, ok := vm.stack.Pop()
			if !ok {
				return nil, errors.New(errors.Generic, -1, entry.Name)
			}
			result, err := entry.Fn(operand)
			if err != nil {
				return nil, runtimeError(err, entry.Name)
			}
			vm.stack.Push(result)

		case compiler.OP_POSTFIX:
			entry := bytecode.PostPool[compiler.ReadOperand(ins, ip, 0)]
			operand, ok := vm.stack.Pop()
			if !ok {
				return nil, errors.New(errors.Generic, -1, entry.Name)
			}
			result, err := entry.Fn(operand)
			if err != nil {
				return nil, runtimeError(err, entry.Name)
			}
			vm.stack.Push(result)

		case compiler.OP_ASSIGN:
			variable := bytecode.VarPool[compiler.ReadOperand(ins, ip, 0)]
			pair, ok := vm.stack.PopN(2)
			if !ok {
				return nil, errors.New(errors.Generic, -1, variable.Name)
			}
			// pair[0] is the variable's read slot, pair[1] the value.
			*variable.Ptr = pair[1]
			vm.stack.Push(pair[1])

		case compiler.OP_CALL:
			fun := bytecode.FunPool[compiler.ReadOperand(ins, ip, 0)]
			argc := compiler.ReadOperand(ins, ip, 1)
			args, ok := vm.stack.PopN(argc)
			if !ok {
				return nil, errors.New(errors.Generic, -1, fun.Name)
			}
			var result symbols.Value
			var err error
			if fun.IsStr() {
				if len(vm.strs) == 0 {
					return nil, errors.New(errors.Generic, -1, fun.Name)
				}
				strIdx := vm.strs[len(vm.strs)-1]
				vm.strs = vm.strs[:len(vm.strs)-1]
				result, err = fun.Str(bytecode.StringPool[strIdx], args)
			} else {
				result, err = fun.Fn(args)
			}
			if err != nil {
				return nil, runtimeError(err, fun.Name)
			}
			vm.stack.Push(result)

		case compiler.OP_JMP_IF_FALSE:
			cond, ok := vm.stack.Pop()
			if !ok {
				return nil, errors.New(errors.Generic, -1, "?")
			}
			if cond == 0 {
				ip = compiler.ReadOperand(ins, ip, 0)
				continue
			}

		case compiler.OP_JMP:
			ip = compiler.ReadOperand(ins, ip, 0)
			continue

		case compiler.OP_STMT_END:
			top, ok := vm.stack.Pop()
			if !ok {
				return nil, errors.New(errors.Generic, -1, "")
			}
			results = append(results, top)
			vm.stack.Reset()
			vm.strs = vm.strs[:0]

		default:
			return nil, errors.New(errors.Generic, ip, "unknown opcode")
		}

		ip += compiler.InstructionLength(opCode)
	}

	return results, nil
}
