package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/cognicore/chainkb/pkg/chainkb"
	"github.com/cognicore/chainkb/pkg/chainkb/kb"
)

const helpText = `Commands:
  assert <fact|rule>   add knowledge (alias: tell)
                       facts:  isa(cube, block)   or  (isa cube block)
                       rules:  isa(?x, block) -> movable(?x)
  retract <fact>       withdraw an asserted fact and its consequences
  ask <pattern>        match a fact pattern, e.g. movable(?x)
  why <fact|rule>      show the justification tree
  load <file>          assert every item in a knowledge file
  facts | rules        list stored facts or rules
  dump                 print the whole knowledge base
  check                verify the store invariants
  help                 show this text
  quit                 exit (Ctrl+D works too)`

var errUnknownCommand = errors.New("unknown command")

func runREPL(ctx context.Context, r *chainkb.Reasoner, in io.Reader, out io.Writer) error {
	fmt.Fprintln(out, "===========================================")
	fmt.Fprintln(out, "  chainkb")
	fmt.Fprintln(out, "  Forward chaining with truth maintenance")
	fmt.Fprintln(out, "===========================================")
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Type help for commands (Ctrl+D to exit):")
	fmt.Fprintln(out)

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			break
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		quit, err := execLine(ctx, r, line, out)
		if err != nil {
			fmt.Fprintln(out, "Error:", err)
		}
		if ferr := r.Flush(ctx); ferr != nil {
			fmt.Fprintln(out, "Warning:", ferr)
		}
		if quit {
			break
		}
	}

	fmt.Fprintln(out, "\nGoodbye!")
	return scanner.Err()
}

// execLine runs one shell command. It reports quit for "quit"/"exit".
func execLine(ctx context.Context, r *chainkb.Reasoner, line string, out io.Writer) (bool, error) {
	verb, rest, _ := strings.Cut(strings.TrimSpace(line), " ")
	rest = strings.TrimSpace(rest)

	switch strings.ToLower(verb) {
	case "quit", "exit":
		return true, nil

	case "help", "?":
		fmt.Fprintln(out, helpText)

	case "assert", "tell":
		item, err := chainkb.ParseItem(rest)
		if err != nil {
			return false, err
		}
		if err := r.Tell(item); err != nil {
			return false, err
		}
		fmt.Fprintln(out, "ok")

	case "retract":
		item, err := chainkb.ParseItem(rest)
		if err != nil {
			return false, err
		}
		removed, err := r.Retract(item)
		if err != nil {
			return false, err
		}
		fmt.Fprintf(out, "removed %d:\n", len(removed))
		for _, it := range removed {
			fmt.Fprintf(out, "  %s: %s\n", it.Kind(), it.Key())
		}

	case "ask":
		return false, cmdAsk(r, rest, out)

	case "why":
		return false, cmdWhy(r, rest, out)

	case "load":
		if rest == "" {
			return false, errors.New("load: file path required")
		}
		f, err := os.Open(rest)
		if err != nil {
			return false, err
		}
		defer f.Close()
		n, err := r.Load(ctx, f)
		if err != nil {
			return false, fmt.Errorf("%s: %w", rest, err)
		}
		fmt.Fprintf(out, "loaded %d items\n", n)

	case "facts":
		for _, f := range r.KB().Facts() {
			fmt.Fprintf(out, "  %s%s\n", f.Key(), markers(f))
		}

	case "rules":
		for _, rl := range r.KB().Rules() {
			fmt.Fprintf(out, "  %s%s\n", rl.Key(), markers(rl))
		}

	case "dump":
		fmt.Fprint(out, r.KB().String())

	case "check":
		return false, cmdCheck(r, out)

	default:
		return false, fmt.Errorf("%w %q (try help)", errUnknownCommand, verb)
	}

	return false, nil
}

func cmdAsk(r *chainkb.Reasoner, pattern string, out io.Writer) error {
	query, err := chainkb.ParseItem(pattern)
	if err != nil {
		return err
	}
	answers := r.Ask(query)
	if len(answers) == 0 {
		fmt.Fprintln(out, "No matches.")
		return nil
	}
	for i, a := range answers {
		bindings := a.Bindings.String()
		if bindings == "" {
			bindings = "yes"
		}
		fmt.Fprintf(out, "%d: %s    [%s]\n", i, bindings, a.Facts[0].Key())
	}
	return nil
}

func cmdWhy(r *chainkb.Reasoner, target string, out io.Writer) error {
	item, err := chainkb.ParseItem(target)
	if err != nil {
		return err
	}
	proof, err := r.Why(item)
	if err != nil {
		return err
	}
	fmt.Fprint(out, proof.String())
	return nil
}

func cmdCheck(r *chainkb.Reasoner, out io.Writer) error {
	if err := r.Check(); err != nil {
		return fmt.Errorf("invariants violated:\n%w", err)
	}
	facts, rules := r.KB().Len()
	fmt.Fprintf(out, "ok: %d facts, %d rules\n", facts, rules)
	return nil
}

func markers(it kb.Item) string {
	switch {
	case it.Asserted() && len(it.SupportedBy()) > 0:
		return "  [asserted, supported]"
	case it.Asserted():
		return "  [asserted]"
	default:
		return ""
	}
}
