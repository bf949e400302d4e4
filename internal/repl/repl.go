// Package repl runs one compile-and-execute cycle per input line against a
// persistent interpreter, so variables and functions declared on one line
// are still visible on the next.
package repl

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"

	"loxvm/internal/interpreter"
	"loxvm/internal/vm"
)

// Start reads lines from in, compiling and running each against one
// persistent Interpreter, writing results to out. A real terminal gets a
// colored `>` prompt; piped stdin gets a bare one so output stays
// diffable in a non-interactive fixture.
func Start(in io.Reader, out io.Writer) error {
	interactive := false
	if f, ok := in.(*os.File); ok {
		interactive = isatty.IsTerminal(f.Fd())
	}

	prompt := "> "
	if interactive {
		prompt = "\x1b[36m>\x1b[0m "
	}

	it := interpreter.New(vm.WithStdout(out))
	scanner := bufio.NewScanner(in)

	for {
		fmt.Fprint(out, prompt)
		if !scanner.Scan() {
			break
		}
		line := scanner.Text()
		if line == "" {
			continue
		}

		if _, err := it.Run(line); err != nil {
			fmt.Fprintln(out, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return errors.Wrap(err, "reading REPL input")
	}
	return nil
}
