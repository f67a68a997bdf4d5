package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/google/subcommands"
)

// bytecodeCmd compiles an expression and prints the disassembled
// program instead of evaluating it.
type bytecodeCmd struct {
	outFile string
}

func (*bytecodeCmd) Name() string     { return "bytecode" }
func (*bytecodeCmd) Synopsis() string { return "Compile an expression and dump its bytecode" }
func (*bytecodeCmd) Usage() string {
	return `kalk bytecode 'expression':
  Compile the expression and print a disassembled instruction listing.
`
}

func (cmd *bytecodeCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&cmd.outFile, "o", "", "write the listing to a file instead of stdout")
}

func (cmd *bytecodeCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	args := f.Args()
	if len(args) < 1 {
		fmt.Fprintf(os.Stderr, "💥 No expression provided\n")
		return subcommands.ExitUsageError
	}
	expr := strings.Join(args, " ")

	sess := newSession()
	if err := sess.setExpr(expr); err != nil {
		fmt.Fprintf(os.Stderr, "💥 %s\n", err.Error())
		return subcommands.ExitFailure
	}
	listing, err := sess.parser.Disassemble()
	if err != nil {
		fmt.Fprintf(os.Stderr, "💥 %s\n", err.Error())
		return subcommands.ExitFailure
	}

	if cmd.outFile == "" {
		fmt.Print(listing)
		return subcommands.ExitSuccess
	}
	if err := os.WriteFile(cmd.outFile, []byte(listing), 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "💥 %s\n", err.Error())
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}
