// Command clipivot builds pivot tables from delimited text in one pass.
//
//	clipivot sum employees.csv -r department -c was_fired -v salary
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/mattn/go-isatty"

	// register all backends with the storage factory; diary and export
	// pick one by kind at run time.
	_ "clipivot/internal/storage/all"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	a := &app{
		stdin:          os.Stdin,
		stdout:         os.Stdout,
		stderr:         os.Stderr,
		argv:           os.Args,
		getenv:         os.Getenv,
		stdinTerminal:  isTerminal(os.Stdin),
		stdoutTerminal: isTerminal(os.Stdout),
	}
	err := a.execute(ctx, os.Args[1:])
	stop()
	if err != nil {
		fatalf(a.stderr, "%v", err)
	}
}

func isTerminal(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func fatalf(w io.Writer, format string, a ...any) {
	fmt.Fprintf(w, format+"\n", a...)
	os.Exit(1)
}
