package parquet

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/datalith-io/lakeq/internal/domain"
)

// predicate is a conjunction of column comparisons parsed from a filter
// expression such as `price > 10 AND region = 'eu'`.
type predicate struct {
	clauses []clause
}

type clause struct {
	column string
	op     string
	str    string
	num    float64
	boolv  bool
	kind   litKind
}

type litKind int

const (
	litNumber litKind = iota
	litString
	litBool
)

// parsePredicate parses `ident op literal [AND ident op literal ...]`.
// Supported operators: =, !=, <, <=, >, >=.
func parsePredicate(expr string) (*predicate, error) {
	toks, err := tokenize(expr)
	if err != nil {
		return nil, err
	}
	if len(toks) == 0 {
		return nil, fmt.Errorf("%w: empty filter expression", domain.ErrValidation)
	}

	p := &predicate{}
	i := 0
	for {
		if len(toks)-i < 3 {
			return nil, fmt.Errorf("%w: incomplete comparison in filter %q", domain.ErrValidation, expr)
		}
		col, op, lit := toks[i], toks[i+1], toks[i+2]
		i += 3

		if col.kind != tokIdent {
			return nil, fmt.Errorf("%w: expected column name, got %q", domain.ErrValidation, col.text)
		}
		if op.kind != tokOp {
			return nil, fmt.Errorf("%w: expected comparison operator, got %q", domain.ErrValidation, op.text)
		}

		c := clause{column: col.text, op: op.text}
		switch lit.kind {
		case tokString:
			c.kind = litString
			c.str = lit.text
		case tokNumber:
			c.kind = litNumber
			n, err := strconv.ParseFloat(lit.text, 64)
			if err != nil {
				return nil, fmt.Errorf("%w: bad numeric literal %q", domain.ErrValidation, lit.text)
			}
			c.num = n
		case tokIdent:
			switch strings.ToLower(lit.text) {
			case "true":
				c.kind = litBool
				c.boolv = true
			case "false":
				c.kind = litBool
			default:
				return nil, fmt.Errorf("%w: expected literal, got %q", domain.ErrValidation, lit.text)
			}
		default:
			return nil, fmt.Errorf("%w: expected literal, got %q", domain.ErrValidation, lit.text)
		}
		p.clauses = append(p.clauses, c)

		if i == len(toks) {
			return p, nil
		}
		if toks[i].kind != tokIdent || !strings.EqualFold(toks[i].text, "and") {
			return nil, fmt.Errorf("%w: expected AND, got %q", domain.ErrValidation, toks[i].text)
		}
		i++
	}
}

// match evaluates the predicate against one row. Unknown columns fail
// with a validation error so a typo is not silently an empty result.
func (p *predicate) match(row map[string]any) (bool, error) {
	for _, c := range p.clauses {
		v, ok := row[c.column]
		if !ok {
			return false, fmt.Errorf("%w: filter references unknown column %q", domain.ErrValidation, c.column)
		}
		ok, err := c.eval(v)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

func (c clause) eval(v any) (bool, error) {
	switch c.kind {
	case litNumber:
		n, ok := asNumber(v)
		if !ok {
			return false, fmt.Errorf("%w: column %q is %T, filter compares it to a number",
				domain.ErrTypeMismatch, c.column, v)
		}
		return cmpOrdered(n, c.num, c.op)
	case litString:
		s, ok := v.(string)
		if !ok {
			return false, fmt.Errorf("%w: column %q is %T, filter compares it to a string",
				domain.ErrTypeMismatch, c.column, v)
		}
		return cmpOrdered(s, c.str, c.op)
	case litBool:
		b, ok := v.(bool)
		if !ok {
			return false, fmt.Errorf("%w: column %q is %T, filter compares it to a bool",
				domain.ErrTypeMismatch, c.column, v)
		}
		switch c.op {
		case "=":
			return b == c.boolv, nil
		case "!=":
			return b != c.boolv, nil
		}
		return false, fmt.Errorf("%w: operator %q not defined for booleans", domain.ErrValidation, c.op)
	}
	return false, fmt.Errorf("%w: unreachable literal kind", domain.ErrValidation)
}

func cmpOrdered[T interface{ ~float64 | ~string }](a, b T, op string) (bool, error) {
	switch op {
	case "=":
		return a == b, nil
	case "!=":
		return a != b, nil
	case "<":
		return a < b, nil
	case "<=":
		return a <= b, nil
	case ">":
		return a > b, nil
	case ">=":
		return a >= b, nil
	}
	return false, fmt.Errorf("%w: unknown operator %q", domain.ErrValidation, op)
}

func asNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	return 0, false
}

type tokKind int

const (
	tokIdent tokKind = iota
	tokOp
	tokNumber
	tokString
)

type token struct {
	kind tokKind
	text string
}

func tokenize(expr string) ([]token, error) {
	var toks []token
	rs := []rune(expr)
	i := 0
	for i < len(rs) {
		r := rs[i]
		switch {
		case unicode.IsSpace(r):
			i++
		case r == '\'' || r == '"':
			quote := r
			j := i + 1
			for j < len(rs) && rs[j] != quote {
				j++
			}
			if j == len(rs) {
				return nil, fmt.Errorf("%w: unterminated string in filter %q", domain.ErrValidation, expr)
			}
			toks = append(toks, token{kind: tokString, text: string(rs[i+1 : j])})
			i = j + 1
		case r == '=' || r == '<' || r == '>' || r == '!':
			j := i + 1
			if j < len(rs) && rs[j] == '=' {
				j++
			}
			op := string(rs[i:j])
			if op == "!" {
				return nil, fmt.Errorf("%w: bare '!' in filter %q", domain.ErrValidation, expr)
			}
			toks = append(toks, token{kind: tokOp, text: op})
			i = j
		case unicode.IsDigit(r) || r == '-' || r == '.':
			j := i
			if rs[j] == '-' {
				j++
			}
			for j < len(rs) && (unicode.IsDigit(rs[j]) || rs[j] == '.') {
				j++
			}
			toks = append(toks, token{kind: tokNumber, text: string(rs[i:j])})
			i = j
		case unicode.IsLetter(r) || r == '_':
			j := i
			for j < len(rs) && (unicode.IsLetter(rs[j]) || unicode.IsDigit(rs[j]) || rs[j] == '_') {
				j++
			}
			toks = append(toks, token{kind: tokIdent, text: string(rs[i:j])})
			i = j
		default:
			return nil, fmt.Errorf("%w: unexpected character %q in filter %q", domain.ErrValidation, r, expr)
		}
	}
	return toks, nil
}
