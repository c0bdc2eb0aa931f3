package parse

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/cognicore/chainkb/pkg/chainkb/internalerr"
	"github.com/cognicore/chainkb/pkg/chainkb/logic"
)

// Kind tells facts and rules apart
type Kind int

const (
	KindFact Kind = iota + 1
	KindRule
)

// Item is one parsed fact or rule
type Item struct {
	Kind Kind
	Fact logic.Statement   // KindFact
	LHS  []logic.Statement // KindRule
	RHS  logic.Statement   // KindRule
	Line int               // 1-based source line, 0 when parsed from a single string
}

func (it Item) String() string {
	if it.Kind == KindRule {
		return "rule: " + logic.JoinKeys(it.LHS) + " -> " + it.RHS.Key()
	}
	return "fact: " + it.Fact.Key()
}

// Load parses a knowledge file
// Format:
//
//	# comments
//	fact: isa(cube, block)
//	rule: isa(?x, ?y), isa(?y, ?z) -> isa(?x, ?z)
//
// S-expressions are accepted as well:
//
//	fact: (isa cube block)
//	rule: ((isa ?x ?y) (isa ?y ?z)) -> (isa ?x ?z)
func Load(r io.Reader) ([]Item, error) {
	scanner := bufio.NewScanner(r)
	lineNum := 0
	var items []Item

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, ";") {
			continue
		}

		item, err := ParseItem(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNum, err)
		}
		item.Line = lineNum
		items = append(items, item)
	}

	return items, scanner.Err()
}

// LoadString parses knowledge from a string
func LoadString(s string) ([]Item, error) {
	return Load(strings.NewReader(s))
}

// ParseItem parses a single "fact:" or "rule:" line. Without a prefix, a
// line containing "->" is a rule and anything else is a fact.
func ParseItem(line string) (Item, error) {
	line = strings.TrimSpace(line)

	var (
		kind Kind
		body string
	)
	switch {
	case hasPrefixFold(line, "fact:"):
		kind, body = KindFact, line[len("fact:"):]
	case hasPrefixFold(line, "rule:"):
		kind, body = KindRule, line[len("rule:"):]
	case strings.Contains(line, "->"):
		kind, body = KindRule, line
	default:
		kind, body = KindFact, line
	}

	if kind == KindFact {
		s, err := ParseStatement(body)
		if err != nil {
			return Item{}, err
		}
		return Item{Kind: KindFact, Fact: s}, nil
	}

	lhs, rhs, err := ParseRule(body)
	if err != nil {
		return Item{}, err
	}
	return Item{Kind: KindRule, LHS: lhs, RHS: rhs}, nil
}

// ParseRule parses "cond1, cond2 -> conclusion"
func ParseRule(s string) ([]logic.Statement, logic.Statement, error) {
	arrow := strings.LastIndex(s, "->")
	if arrow == -1 {
		return nil, logic.Statement{}, syntaxErr("missing '->': %s", s)
	}

	left := strings.TrimSpace(s[:arrow])
	right := strings.TrimSpace(s[arrow+2:])
	if left == "" {
		return nil, logic.Statement{}, syntaxErr("rule has no conditions: %s", s)
	}

	rhs, err := ParseStatement(right)
	if err != nil {
		return nil, logic.Statement{}, err
	}

	var parts []string
	if strings.HasPrefix(left, "((") {
		// ((a ?x) (b ?x))
		inner := strings.TrimSpace(left[1:])
		if !strings.HasSuffix(inner, ")") {
			return nil, logic.Statement{}, syntaxErr("unbalanced conditions: %s", left)
		}
		parts, err = splitSexprs(inner[:len(inner)-1])
	} else {
		parts, err = splitTopLevel(left)
	}
	if err != nil {
		return nil, logic.Statement{}, err
	}

	lhs := make([]logic.Statement, 0, len(parts))
	for _, p := range parts {
		stmt, err := ParseStatement(p)
		if err != nil {
			return nil, logic.Statement{}, err
		}
		lhs = append(lhs, stmt)
	}
	return lhs, rhs, nil
}

// ParseStatement parses "pred(a, ?x)", "pred" or "(pred a ?x)"
func ParseStatement(s string) (logic.Statement, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return logic.Statement{}, syntaxErr("empty statement")
	}

	if strings.HasPrefix(s, "(") {
		return parseSexpr(s)
	}

	// Find opening paren
	openParen := strings.Index(s, "(")
	if openParen == -1 {
		return newStatement(s, nil, s)
	}

	predicate := strings.TrimSpace(s[:openParen])

	// Closing paren must end the statement
	if !strings.HasSuffix(s, ")") {
		return logic.Statement{}, syntaxErr("missing ')': %s", s)
	}

	args := strings.TrimSpace(s[openParen+1 : len(s)-1])
	if args == "" {
		return newStatement(predicate, nil, s)
	}
	parts := strings.Split(args, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return newStatement(predicate, parts, s)
}

func parseSexpr(s string) (logic.Statement, error) {
	if !strings.HasSuffix(s, ")") {
		return logic.Statement{}, syntaxErr("missing ')': %s", s)
	}
	fields := strings.Fields(s[1 : len(s)-1])
	if len(fields) == 0 {
		return logic.Statement{}, syntaxErr("empty statement: %s", s)
	}
	return newStatement(fields[0], fields[1:], s)
}

func newStatement(predicate string, terms []string, src string) (logic.Statement, error) {
	if !validToken(predicate) {
		return logic.Statement{}, syntaxErr("invalid predicate %q in %s", predicate, src)
	}
	for _, t := range terms {
		if !validToken(t) {
			return logic.Statement{}, syntaxErr("invalid term %q in %s", t, src)
		}
	}
	stmt := logic.NewStatement(predicate, terms...)
	if !stmt.Valid() {
		return logic.Statement{}, syntaxErr("malformed statement: %s", src)
	}
	return stmt, nil
}

func validToken(tok string) bool {
	if tok == "" {
		return false
	}
	return !strings.ContainsAny(tok, "(), \t")
}

// splitTopLevel splits on commas that are not inside parentheses
func splitTopLevel(s string) ([]string, error) {
	var parts []string
	depth, start := 0, 0
	for i, c := range s {
		switch c {
		case '(':
			depth++
		case ')':
			depth--
			if depth < 0 {
				return nil, syntaxErr("unbalanced ')' in %s", s)
			}
		case ',':
			if depth == 0 {
				parts = append(parts, strings.TrimSpace(s[start:i]))
				start = i + 1
			}
		}
	}
	if depth != 0 {
		return nil, syntaxErr("unbalanced '(' in %s", s)
	}
	return append(parts, strings.TrimSpace(s[start:])), nil
}

// splitSexprs splits "(a ?x) (b ?x)" into its parenthesized groups
func splitSexprs(s string) ([]string, error) {
	var parts []string
	depth, start := 0, -1
	for i, c := range s {
		switch c {
		case '(':
			if depth == 0 {
				start = i
			}
			depth++
		case ')':
			depth--
			if depth < 0 {
				return nil, syntaxErr("unbalanced ')' in %s", s)
			}
			if depth == 0 {
				parts = append(parts, s[start:i+1])
			}
		default:
			if depth == 0 && c != ' ' && c != '\t' {
				return nil, syntaxErr("unexpected %q outside condition in %s", c, s)
			}
		}
	}
	if depth != 0 {
		return nil, syntaxErr("unbalanced '(' in %s", s)
	}
	if len(parts) == 0 {
		return nil, syntaxErr("rule has no conditions")
	}
	return parts, nil
}

func hasPrefixFold(s, prefix string) bool {
	return len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix)
}

func syntaxErr(format string, args ...interface{}) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), internalerr.ErrSyntax)
}
