// Package interpreter wires lexer, parser, compiler, and vm together behind
// a single Run call — the full pipeline a source string needs to pass
// through before bytecode reaches the VM's dispatch loop. Both the CLI's
// `run` subcommand and the REPL share this, so neither has to know the
// compile pipeline's internals.
package interpreter

import (
	"errors"
	"fmt"
	"strings"

	"loxvm/internal/compiler"
	"loxvm/internal/lexer"
	"loxvm/internal/parser"
	"loxvm/internal/vm"
)

// Result mirrors clox's INTERPRET_OK/INTERPRET_COMPILE_ERROR/
// INTERPRET_RUNTIME_ERROR three-way outcome, which `cmd/loxvm` maps to
// process exit codes.
type Result int

const (
	ResultOK Result = iota
	ResultCompileError
	ResultRuntimeError
)

// Interpreter pairs a persistent VM (globals, heap, GC state all carry
// across calls) with the one-shot compile-then-run pipeline.
type Interpreter struct {
	VM *vm.VM
}

func New(opts ...vm.Option) *Interpreter {
	return &Interpreter{VM: vm.New(opts...)}
}

// Run compiles and executes one Lox program (or REPL line) against the
// Interpreter's persistent VM.
func (in *Interpreter) Run(source string) (Result, error) {
	scanner := lexer.NewScanner(source)
	tokens := scanner.ScanTokens()

	p := parser.NewParser(tokens)
	stmts, parseErrs := p.Parse()
	if len(parseErrs) > 0 {
		return ResultCompileError, joinParseErrors(parseErrs)
	}

	fn, compileErrs := compiler.Compile(stmts)
	if len(compileErrs) > 0 {
		return ResultCompileError, errors.Join(compileErrs...)
	}

	loaded := in.VM.Load(fn)
	if _, err := in.VM.Run(loaded); err != nil {
		return ResultRuntimeError, err
	}
	return ResultOK, nil
}

func joinParseErrors(errs []*parser.ParseError) error {
	msgs := make([]string, len(errs))
	for i, e := range errs {
		msgs[i] = e.Error()
	}
	return fmt.Errorf("%s", strings.Join(msgs, "\n"))
}
