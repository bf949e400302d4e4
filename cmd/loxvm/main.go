// cmd/loxvm/main.go
package main

import (
	"fmt"
	"os"

	"github.com/pkg/errors"

	"loxvm/internal/bytecode"
	"loxvm/internal/compiler"
	"loxvm/internal/disasm"
	"loxvm/internal/interpreter"
	"loxvm/internal/lexer"
	"loxvm/internal/parser"
	"loxvm/internal/repl"
	"loxvm/internal/traceserver"
	"loxvm/internal/vm"
)

const version = "0.1.0"

var commandAliases = map[string]string{
	"r": "run",
	"i": "repl",
	"d": "debug",
	"v": "version",
}

func main() {
	os.Exit(run(os.Args[1:]))
}

// run dispatches a command line to its subcommand and returns the process
// exit code, kept separate from main so it can be driven by a test harness
// without forking a real process.
func run(args []string) int {
	if len(args) == 0 {
		if err := repl.Start(os.Stdin, os.Stdout); err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		return 0
	}

	cmd := args[0]
	if alias, ok := commandAliases[cmd]; ok {
		cmd = alias
	}

	switch cmd {
	case "--help", "-h", "help":
		showUsage()
		return 0
	case "--version", "-v", "version":
		showVersion()
		return 0
	case "run":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "Usage: loxvm run <file.lox>")
			return 1
		}
		return runFile(args[1], runOpts(args[2:])...)
	case "repl":
		if err := repl.Start(os.Stdin, os.Stdout); err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		return 0
	case "debug":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "Usage: loxvm debug <file.lox> [--dump] [--serve addr]")
			return 1
		}
		return debugFile(args[1], args[2:])
	default:
		return suggestCommand(cmd)
	}
}

// runOpts translates the `run` subcommand's trailing CLI flags into
// vm.Options; `debug` parses its own flags in debugFile.
func runOpts(flags []string) []vm.Option {
	var opts []vm.Option
	for _, f := range flags {
		switch f {
		case "--trace":
			opts = append(opts, vm.WithTrace())
		case "--trace-gc":
			opts = append(opts, vm.WithTraceGC())
		case "--stress-gc":
			opts = append(opts, vm.WithStressGC())
		}
	}
	return opts
}

// runFile reads and executes source, returning the process exit code clox's
// main() uses: 0 on success, 65 on a compile error, 70 on a runtime error.
func runFile(path string, opts ...vm.Option) int {
	source, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, errors.Wrapf(err, "reading %s", path))
		return 74
	}

	it := interpreter.New(opts...)
	result, err := it.Run(string(source))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
	}
	switch result {
	case interpreter.ResultCompileError:
		return 65
	case interpreter.ResultRuntimeError:
		return 70
	default:
		return 0
	}
}

// debugFile compiles path, prints its disassembly (or a structured dump with
// --dump), then runs it with instruction tracing on, optionally serving each
// dispatch-loop step over a websocket for an attached trace viewer.
func debugFile(path string, flags []string) int {
	source, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, errors.Wrapf(err, "reading %s", path))
		return 74
	}

	dump := false
	serveAddr := ""
	for i := 0; i < len(flags); i++ {
		switch flags[i] {
		case "--dump":
			dump = true
		case "--serve":
			if i+1 < len(flags) {
				i++
				serveAddr = flags[i]
			}
		}
	}

	scanner := lexer.NewScanner(string(source))
	p := parser.NewParser(scanner.ScanTokens())
	stmts, parseErrs := p.Parse()
	if len(parseErrs) > 0 {
		for _, e := range parseErrs {
			fmt.Fprintln(os.Stderr, e)
		}
		return 65
	}

	fn, compileErrs := compiler.Compile(stmts)
	if len(compileErrs) > 0 {
		for _, e := range compileErrs {
			fmt.Fprintln(os.Stderr, e)
		}
		return 65
	}

	var machine *vm.VM
	if serveAddr != "" {
		srv := traceserver.New()
		go func() {
			if err := srv.ListenAndServe(serveAddr); err != nil {
				fmt.Fprintln(os.Stderr, errors.Wrap(err, "trace server"))
			}
		}()
		fmt.Fprintf(os.Stdout, "trace server listening on ws://%s, session %s\n", serveAddr, srv.SessionID())
		machine = vm.New(vm.WithTrace(), vm.WithTraceHook(srv.Broadcast))
	} else {
		machine = vm.New(vm.WithTrace())
	}

	loaded := machine.Load(fn)
	if dump {
		disasm.Dump(os.Stdout, loaded.Chunk)
	} else {
		disasm.DisassembleChunk(os.Stdout, loaded.Chunk, fnLabel(loaded))
	}

	if _, err := machine.Run(loaded); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 70
	}
	return 0
}

func fnLabel(fn *vm.ObjFunction) string {
	if fn.Name == nil {
		return "script"
	}
	return fn.Name.Chars
}

func showUsage() {
	fmt.Println("loxvm - a bytecode virtual machine for Lox")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  loxvm run <file.lox>         Compile and run a script        (alias: r)")
	fmt.Println("  loxvm repl                   Start the interactive REPL      (alias: i)")
	fmt.Println("  loxvm debug <file.lox>       Disassemble and trace a script  (alias: d)")
	fmt.Println("  loxvm version                Show the version                (alias: v)")
	fmt.Println()
	fmt.Println("Run flags:")
	fmt.Println("  --trace                      Print each instruction before it executes")
	fmt.Println("  --trace-gc                   Log every collection cycle")
	fmt.Println("  --stress-gc                  Collect before every allocation")
	fmt.Println()
	fmt.Println("Debug flags:")
	fmt.Println("  --dump                       Print a structured constant-pool dump instead")
	fmt.Println("  --serve <addr>                Stream trace events over a websocket at addr")
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Println("  loxvm r hello.lox")
	fmt.Println("  loxvm run fib.lox --trace")
	fmt.Println("  loxvm d classes.lox --serve localhost:8080")
	fmt.Println("  loxvm i")
}

func showVersion() {
	fmt.Printf("loxvm %s, %d opcodes\n", version, bytecode.OpCodeCount)
}

func suggestCommand(cmd string) int {
	allCommands := []string{"run", "repl", "debug", "version", "help"}

	fmt.Fprintf(os.Stderr, "Error: unknown command %q\n", cmd)
	suggestions := findSimilarCommands(cmd, allCommands, 2)
	if len(suggestions) > 0 {
		fmt.Fprintln(os.Stderr, "\nDid you mean one of these?")
		for _, s := range suggestions {
			alias := ""
			for a, full := range commandAliases {
				if full == s {
					alias = fmt.Sprintf(" (alias: %s)", a)
					break
				}
			}
			fmt.Fprintf(os.Stderr, "  loxvm %s%s\n", s, alias)
		}
	}
	fmt.Fprintln(os.Stderr, "\nRun 'loxvm help' to see all available commands")
	return 1
}

func findSimilarCommands(input string, commands []string, maxDistance int) []string {
	var similar []string
	for _, c := range commands {
		if levenshteinDistance(input, c) <= maxDistance {
			similar = append(similar, c)
		}
	}
	return similar
}

func levenshteinDistance(s1, s2 string) int {
	if len(s1) == 0 {
		return len(s2)
	}
	if len(s2) == 0 {
		return len(s1)
	}

	matrix := make([][]int, len(s1)+1)
	for i := range matrix {
		matrix[i] = make([]int, len(s2)+1)
		matrix[i][0] = i
	}
	for j := range matrix[0] {
		matrix[0][j] = j
	}

	for i := 1; i <= len(s1); i++ {
		for j := 1; j <= len(s2); j++ {
			cost := 0
			if s1[i-1] != s2[j-1] {
				cost = 1
			}
			matrix[i][j] = min3(
				matrix[i-1][j]+1,
				matrix[i][j-1]+1,
				matrix[i-1][j-1]+cost,
			)
		}
	}
	return matrix[len(s1)][len(s2)]
}

func min3(a, b, c int) int {
	return min(a, min(b, c))
}
