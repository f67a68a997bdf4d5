package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"
	"github.com/google/subcommands"
)

// replCmd implements the interactive calculator.
type replCmd struct {
	showBytecode bool
}

func (*replCmd) Name() string     { return "repl" }
func (*replCmd) Synopsis() string { return "Start an interactive calculator session" }
func (*replCmd) Usage() string {
	return `kalk repl:
  Evaluate expressions interactively. Unknown identifiers become
  variables, so "x=2, x^10" works without declarations. Type "exit"
  or press Ctrl-D to quit.
`
}

func (cmd *replCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&cmd.showBytecode, "bytecode", false, "print the compiled bytecode before each evaluation")
	f.BoolVar(&cmd.showBytecode, "b", false, "Shorthand for bytecode.")
}

func (cmd *replCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	fmt.Println("\nWelcome to kalk!")
	fmt.Println("")

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          ">>> ",
		HistoryFile:     filepath.Join(os.TempDir(), ".kalk_history"),
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "💥 %s\n", err.Error())
		return subcommands.ExitFailure
	}
	defer rl.Close()

	sess := newSession()

	for {
		line, err := rl.Readline()
		if err == readline.ErrInterrupt {
			continue
		}
		if err == io.EOF {
			return subcommands.ExitSuccess
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "💥 %s\n", err.Error())
			return subcommands.ExitFailure
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if line == "exit" {
			return subcommands.ExitSuccess
		}

		if err := sess.setExpr(line); err != nil {
			fmt.Fprintf(os.Stderr, "💥 %s\n", err.Error())
			continue
		}

		if cmd.showBytecode {
			listing, err := sess.parser.Disassemble()
			if err != nil {
				fmt.Fprintf(os.Stderr, "💥 %s\n", err.Error())
				continue
			}
			fmt.Print(listing)
		}

		results, err := sess.parser.EvalMulti()
		if err != nil {
			fmt.Fprintf(os.Stderr, "💥 %s\n", err.Error())
			continue
		}
		for _, result := range results {
			fmt.Printf("%v\n", result)
		}
	}
}
