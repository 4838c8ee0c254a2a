// Command ixionrepl is a small interactive driver over the engine package:
// it reads "<cell> <value or =formula>" lines, recalculates the affected
// cells, and prints the results — a line-at-a-time analogue of the
// teacher's repl.Start, which reads "<expression>" lines and prints the
// evaluated value (repl/repl.go). "name <name> <value or =formula>" and
// "table <name> <range> <headers> <totals> <cols>" lines additionally let
// a formula reference a named expression or a structured table column
// (spec §4.1/§4.2). Persistence, multi-sheet books and the A1/R1C1/ODFF
// resolver families are all out of scope here (spec §1); this exists
// purely to exercise engine from a terminal.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"

	"ixion/address"
	"ixion/engine"
	"ixion/model"
	"ixion/resolver"
	"ixion/sessionhook"
	"ixion/token"
)

const (
	prompt = "ixion> "
	banner = "Ixion formula engine -- type '<cell> <value>' or '<cell> =<formula>',\n" +
		"'name <name> <value or =formula>' to define a named expression,\n" +
		"'table <name> <range> <headers 0|1> <totals 0|1> <col1,col2,...>' to define a table,\n" +
		":quit to exit\n"
)

func main() {
	threads := flag.Int("threads", 4, "worker pool width for recalculation")
	zmqAddr := flag.String("zmq", "", "if set, publish trace events on this ZeroMQ PUB address")
	wsAddr := flag.String("ws", "", "if set, serve a websocket trace feed on this address")
	flag.Parse()

	ctx := context.Background()

	var handler model.SessionHandler
	if *zmqAddr != "" {
		hook, err := sessionhook.NewZMQHook(ctx, *zmqAddr)
		if err != nil {
			fmt.Fprintf(os.Stderr, "ixionrepl: %v\n", err)
			os.Exit(1)
		}
		defer hook.Close()
		handler = hook
		fmt.Printf("publishing trace events on %s\n", *zmqAddr)
	}
	if *wsAddr != "" {
		wsHook := sessionhook.NewWSHook()
		go func() {
			mux := http.NewServeMux()
			mux.HandleFunc("/trace", wsHook.HandleWebSocket)
			fmt.Fprintf(os.Stderr, "ixionrepl: websocket trace feed error: %v\n", http.ListenAndServe(*wsAddr, mux))
		}()
		if handler == nil {
			handler = wsHook
		}
		fmt.Printf("serving websocket trace feed on ws://%s/trace\n", *wsAddr)
	}

	b := newBook(handler)
	res := b.newA1Resolver()

	fmt.Print(banner)

	var tty *ttyInput
	var scanner *bufio.Scanner
	if ti, ok := newTTYInput(os.Stdin, os.Stdout); ok {
		tty = ti
		defer tty.Close()
	} else {
		scanner = bufio.NewScanner(os.Stdin)
	}

	for {
		var line string
		var ok bool
		if tty != nil {
			line, ok = tty.readLine(prompt)
		} else {
			fmt.Print(prompt)
			ok = scanner.Scan()
			line = scanner.Text()
		}
		if !ok {
			return
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if line == ":quit" || line == ":q" {
			return
		}

		if err := runCommand(ctx, b, res, line, *threads); err != nil {
			fmt.Printf("error: %v\n", err)
		}
	}
}

func runCommand(ctx context.Context, b *book, res *resolver.A1Resolver, line string, threads int) error {
	parts := strings.SplitN(line, " ", 2)
	if len(parts) != 2 {
		return fmt.Errorf("expected '<cell> <value or =formula>'")
	}

	switch strings.ToLower(parts[0]) {
	case "name":
		return runNameCommand(b, res, parts[1])
	case "table":
		return runTableCommand(b, parts[1])
	}

	addr, ok := parseCellAddress(parts[0])
	if !ok {
		return fmt.Errorf("bad cell address %q", parts[0])
	}
	raw := strings.TrimSpace(parts[1])

	if strings.HasPrefix(raw, "=") {
		toks, err := engine.ParseFormulaString(b, addr, res, []byte(raw[1:]))
		if err != nil {
			return err
		}
		b.setFormula(addr, toks)
	} else {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return fmt.Errorf("not a number or formula: %q", raw)
		}
		b.setValue(addr, v)
	}

	dirty := engine.GetAllDirtyCells(b.tracker, []address.AbsAddress{addr})
	if err := engine.CalculateCells(ctx, b, b.tracker, b.lookup, dirty, threads); err != nil {
		return err
	}

	for _, a := range dirty {
		cell := b.lookup(a)
		if cell == nil {
			continue
		}
		r := cell.GetValue()
		fmt.Printf("%s = %s\n", printAddress(a), r.Str(func(id uint32) string {
			s, _ := b.GetString(id)
			return s
		}))
	}
	return nil
}

// runNameCommand implements "name <name> <value or =formula>": it binds
// name to the parsed tokens via book.defineNamed, so later formulas can
// reference it through the NamedExp token the parser/resolver/interpreter
// recognise (spec §4.1/§4.2/§4.5).
func runNameCommand(b *book, res *resolver.A1Resolver, rest string) error {
	parts := strings.SplitN(strings.TrimSpace(rest), " ", 2)
	if len(parts) != 2 {
		return fmt.Errorf("expected 'name <name> <value or =formula>'")
	}
	name, raw := parts[0], strings.TrimSpace(parts[1])
	anchor := address.AbsAddress{Sheet: 0, Row: 0, Column: 0}

	var toks *token.Sequence
	if strings.HasPrefix(raw, "=") {
		parsed, err := engine.ParseFormulaString(b, anchor, res, []byte(raw[1:]))
		if err != nil {
			return err
		}
		toks = parsed
	} else {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return fmt.Errorf("not a number or formula: %q", raw)
		}
		toks = token.NewSequence([]token.Token{token.NewValue(v)})
	}

	cell := b.defineNamed(name, toks)
	fmt.Printf("%s = %s\n", name, cell.GetValue().Str(func(id uint32) string {
		s, _ := b.GetString(id)
		return s
	}))
	return nil
}

// runTableCommand implements "table <name> <range> <headers> <totals>
// <col1,col2,...>", defining a structured table over an existing A1 range
// so a later formula's "Name[[#Headers],[Column]]"-shaped reference
// resolves against it (spec §4.1).
func runTableCommand(b *book, rest string) error {
	fields := strings.Fields(rest)
	if len(fields) != 5 {
		return fmt.Errorf("expected 'table <name> <range> <headers 0|1> <totals 0|1> <col1,col2,...>'")
	}
	name, rangeText, headersText, totalsText, colsText := fields[0], fields[1], fields[2], fields[3], fields[4]

	rng, ok := parseCellRange(rangeText)
	if !ok {
		return fmt.Errorf("bad range %q", rangeText)
	}
	hasHeaders := headersText == "1"
	hasTotals := totalsText == "1"
	b.defineTable(name, rng, hasHeaders, hasTotals, strings.Split(colsText, ","))
	fmt.Printf("table %s defined over %s\n", name, rangeText)
	return nil
}

// parseCellRange parses a plain "A1:C4" range (no "$" or sheet prefix)
// into an AbsRange on sheet 0.
func parseCellRange(s string) (address.AbsRange, bool) {
	i := strings.IndexByte(s, ':')
	if i < 0 {
		return address.AbsRange{}, false
	}
	first, ok1 := parseCellAddress(s[:i])
	last, ok2 := parseCellAddress(s[i+1:])
	if !ok1 || !ok2 {
		return address.AbsRange{}, false
	}
	return address.AbsRange{First: first, Last: last}, true
}

func printAddress(a address.AbsAddress) string {
	return fmt.Sprintf("%s%d", colName(a.Column), a.Row+1)
}

func colName(n int) string {
	n++
	var out []byte
	for n > 0 {
		n--
		out = append([]byte{byte('A' + n%26)}, out...)
		n /= 26
	}
	return string(out)
}

// parseCellAddress parses a plain "A1" reference (no "$" or sheet prefix)
// into an absolute address on sheet 0.
func parseCellAddress(s string) (address.AbsAddress, bool) {
	i := 0
	for i < len(s) && s[i] >= 'A' && s[i] <= 'Z' {
		i++
	}
	if i == 0 || i == len(s) {
		return address.AbsAddress{}, false
	}
	col := 0
	for j := 0; j < i; j++ {
		col = col*26 + int(s[j]-'A'+1)
	}
	row, err := strconv.Atoi(s[i:])
	if err != nil || row < 1 {
		return address.AbsAddress{}, false
	}
	return address.AbsAddress{Sheet: 0, Row: row - 1, Column: col - 1}, true
}
