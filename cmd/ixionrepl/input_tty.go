package main

import (
	"fmt"
	"io"
	"os"

	"golang.org/x/term"
)

// ttyInput reads raw keystrokes from a terminal and assembles them into
// lines with basic editing (backspace, Ctrl+C/Ctrl+D to quit), grounded on
// the teacher's repl.ttyInput (repl/input_tty.go) — trimmed to the subset
// this single-line cell editor needs: no history navigation, since unlike a
// language REPL a recalculation driver's "history" is just the sheet state
// itself, visible on screen after every command.
type ttyInput struct {
	in    *os.File
	out   io.Writer
	state *term.State
}

func newTTYInput(in io.Reader, out io.Writer) (*ttyInput, bool) {
	inFile, ok := in.(*os.File)
	if !ok {
		return nil, false
	}
	outFile, ok := out.(*os.File)
	if !ok {
		return nil, false
	}
	if !term.IsTerminal(int(inFile.Fd())) || !term.IsTerminal(int(outFile.Fd())) {
		return nil, false
	}
	state, err := term.MakeRaw(int(inFile.Fd()))
	if err != nil {
		return nil, false
	}
	return &ttyInput{in: inFile, out: out, state: state}, true
}

func (t *ttyInput) Close() {
	if t == nil || t.state == nil {
		return
	}
	_ = term.Restore(int(t.in.Fd()), t.state)
}

func (t *ttyInput) readLine(prompt string) (string, bool) {
	fmt.Fprint(t.out, prompt)
	line := make([]byte, 0, 64)
	buf := make([]byte, 1)
	for {
		n, err := t.in.Read(buf)
		if n == 0 || err != nil {
			return "", false
		}
		switch buf[0] {
		case '\r', '\n':
			fmt.Fprint(t.out, "\r\n")
			return string(line), true
		case 0x03, 0x04: // Ctrl+C, Ctrl+D
			fmt.Fprint(t.out, "\r\n")
			return "", false
		case 0x7f, 0x08: // Backspace
			if len(line) > 0 {
				line = line[:len(line)-1]
				fmt.Fprint(t.out, "\b \b")
			}
		default:
			if buf[0] >= 0x20 {
				line = append(line, buf[0])
				fmt.Fprintf(t.out, "%s", string(buf[0]))
			}
		}
	}
}
