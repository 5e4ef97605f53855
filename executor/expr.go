package executor

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/loomworks/loom/recipe"
	"github.com/loomworks/loom/types"
)

// newExpressionExecutor builds the expression executor. The expression is
// evaluated by a restricted AST-walking interpreter over the resolved
// inputs; no ambient code execution is possible.
func newExpressionExecutor(cfg recipe.ExecutorConfig) (Executor, error) {
	src := cfg.String("expression")
	if src == "" {
		return nil, types.NewError(types.ErrManifestInvalid, "expression executor declares no expression")
	}
	// Parse errors surface at dispatch time, not on every run.
	if _, err := scan(src); err != nil {
		return nil, types.NewError(types.ErrManifestInvalid, "invalid expression").WithCause(err)
	}
	return func(_ context.Context, ec Context) Result {
		val, err := EvalExpr(src, ec.Inputs)
		if err != nil {
			return Fail(types.NewError(types.ErrExecutorFailed, "expression evaluation failed").WithCause(err))
		}
		return Ok(val)
	}, nil
}

// EvalExpr evaluates a restricted expression against the given variables.
//
// Grammar, loosest to tightest binding: || && , comparisons
// (== != > < >= <=), + -, * /, unary ! and -, then literals, dot-path
// variables, and parentheses. String + string concatenates. The result is
// whatever type the expression produces.
func EvalExpr(src string, vars map[string]any) (any, error) {
	src = strings.TrimSpace(src)
	if src == "" {
		return nil, fmt.Errorf("empty expression")
	}
	lexemes, err := scan(src)
	if err != nil {
		return nil, err
	}
	p := &exprState{lexemes: lexemes, vars: vars}
	val, err := p.or()
	if err != nil {
		return nil, err
	}
	if p.pos < len(p.lexemes) {
		return nil, fmt.Errorf("unexpected %q after expression", p.lexemes[p.pos].text)
	}
	return val, nil
}

// EvalCondition evaluates an expression and coerces the result to a bool.
func EvalCondition(src string, vars map[string]any) (bool, error) {
	val, err := EvalExpr(src, vars)
	if err != nil {
		return false, err
	}
	return truthy(val), nil
}

type lexKind int

const (
	lexNumber lexKind = iota
	lexString
	lexIdent
	lexOp
	lexLParen
	lexRParen
)

type lexeme struct {
	kind lexKind
	text string
}

func scan(src string) ([]lexeme, error) {
	var out []lexeme
	runes := []rune(src)
	i := 0
	for i < len(runes) {
		ch := runes[i]

		if unicode.IsSpace(ch) {
			i++
			continue
		}
		if ch == '(' {
			out = append(out, lexeme{lexLParen, "("})
			i++
			continue
		}
		if ch == ')' {
			out = append(out, lexeme{lexRParen, ")"})
			i++
			continue
		}
		if ch == '"' || ch == '\'' {
			text, next, err := scanString(runes, i)
			if err != nil {
				return nil, err
			}
			out = append(out, lexeme{lexString, text})
			i = next
			continue
		}
		if i+1 < len(runes) {
			switch two := string(runes[i : i+2]); two {
			case "==", "!=", ">=", "<=", "&&", "||":
				out = append(out, lexeme{lexOp, two})
				i += 2
				continue
			}
		}
		// A leading '-' binds to the number only in prefix position;
		// elsewhere it is subtraction.
		if isDigitRune(ch) || (ch == '-' && i+1 < len(runes) && isDigitRune(runes[i+1]) && prefixPosition(out)) {
			text, next := scanNumber(runes, i)
			out = append(out, lexeme{lexNumber, text})
			i = next
			continue
		}
		switch ch {
		case '>', '<', '!', '+', '-', '*', '/':
			out = append(out, lexeme{lexOp, string(ch)})
			i++
			continue
		}
		if unicode.IsLetter(ch) || ch == '_' {
			text, next := scanIdent(runes, i)
			out = append(out, lexeme{lexIdent, text})
			i = next
			continue
		}
		return nil, fmt.Errorf("unexpected character %q at offset %d", string(ch), i)
	}
	return out, nil
}

func scanString(runes []rune, start int) (string, int, error) {
	quote := runes[start]
	var sb strings.Builder
	i := start + 1
	for i < len(runes) {
		if runes[i] == '\\' && i+1 < len(runes) {
			sb.WriteRune(runes[i+1])
			i += 2
			continue
		}
		if runes[i] == quote {
			return sb.String(), i + 1, nil
		}
		sb.WriteRune(runes[i])
		i++
	}
	return "", 0, fmt.Errorf("unterminated string at offset %d", start)
}

func scanNumber(runes []rune, start int) (string, int) {
	i := start
	if runes[i] == '-' {
		i++
	}
	for i < len(runes) && isDigitRune(runes[i]) {
		i++
	}
	if i < len(runes) && runes[i] == '.' {
		i++
		for i < len(runes) && isDigitRune(runes[i]) {
			i++
		}
	}
	return string(runes[start:i]), i
}

func scanIdent(runes []rune, start int) (string, int) {
	i := start
	for i < len(runes) && (unicode.IsLetter(runes[i]) || unicode.IsDigit(runes[i]) || runes[i] == '_' || runes[i] == '.') {
		i++
	}
	return string(runes[start:i]), i
}

func isDigitRune(ch rune) bool { return ch >= '0' && ch <= '9' }

func prefixPosition(preceding []lexeme) bool {
	if len(preceding) == 0 {
		return true
	}
	last := preceding[len(preceding)-1]
	return last.kind == lexOp || last.kind == lexLParen
}

type exprState struct {
	lexemes []lexeme
	pos     int
	vars    map[string]any
}

func (p *exprState) peekOp(ops ...string) (string, bool) {
	if p.pos >= len(p.lexemes) {
		return "", false
	}
	l := p.lexemes[p.pos]
	if l.kind != lexOp {
		return "", false
	}
	for _, op := range ops {
		if l.text == op {
			return op, true
		}
	}
	return "", false
}

func (p *exprState) or() (any, error) {
	left, err := p.and()
	if err != nil {
		return nil, err
	}
	for {
		if _, ok := p.peekOp("||"); !ok {
			return left, nil
		}
		p.pos++
		right, err := p.and()
		if err != nil {
			return nil, err
		}
		left = truthy(left) || truthy(right)
	}
}

func (p *exprState) and() (any, error) {
	left, err := p.comparison()
	if err != nil {
		return nil, err
	}
	for {
		if _, ok := p.peekOp("&&"); !ok {
			return left, nil
		}
		p.pos++
		right, err := p.comparison()
		if err != nil {
			return nil, err
		}
		left = truthy(left) && truthy(right)
	}
}

func (p *exprState) comparison() (any, error) {
	left, err := p.additive()
	if err != nil {
		return nil, err
	}
	op, ok := p.peekOp("==", "!=", ">", "<", ">=", "<=")
	if !ok {
		return left, nil
	}
	p.pos++
	right, err := p.additive()
	if err != nil {
		return nil, err
	}
	return compare(left, op, right), nil
}

func (p *exprState) additive() (any, error) {
	left, err := p.multiplicative()
	if err != nil {
		return nil, err
	}
	for {
		op, ok := p.peekOp("+", "-")
		if !ok {
			return left, nil
		}
		p.pos++
		right, err := p.multiplicative()
		if err != nil {
			return nil, err
		}
		left, err = arith(left, op, right)
		if err != nil {
			return nil, err
		}
	}
}

func (p *exprState) multiplicative() (any, error) {
	left, err := p.unary()
	if err != nil {
		return nil, err
	}
	for {
		op, ok := p.peekOp("*", "/")
		if !ok {
			return left, nil
		}
		p.pos++
		right, err := p.unary()
		if err != nil {
			return nil, err
		}
		left, err = arith(left, op, right)
		if err != nil {
			return nil, err
		}
	}
}

func (p *exprState) unary() (any, error) {
	if _, ok := p.peekOp("!"); ok {
		p.pos++
		val, err := p.unary()
		if err != nil {
			return nil, err
		}
		return !truthy(val), nil
	}
	if _, ok := p.peekOp("-"); ok {
		p.pos++
		val, err := p.unary()
		if err != nil {
			return nil, err
		}
		f, ok := asNumber(val)
		if !ok {
			return nil, fmt.Errorf("cannot negate %T", val)
		}
		return -f, nil
	}
	return p.primary()
}

func (p *exprState) primary() (any, error) {
	if p.pos >= len(p.lexemes) {
		return nil, fmt.Errorf("unexpected end of expression")
	}
	l := p.lexemes[p.pos]
	switch l.kind {
	case lexNumber:
		p.pos++
		return strconv.ParseFloat(l.text, 64)
	case lexString:
		p.pos++
		return l.text, nil
	case lexIdent:
		p.pos++
		switch l.text {
		case "true":
			return true, nil
		case "false":
			return false, nil
		case "null":
			return nil, nil
		default:
			return resolvePath(l.text, p.vars), nil
		}
	case lexLParen:
		p.pos++
		val, err := p.or()
		if err != nil {
			return nil, err
		}
		if p.pos >= len(p.lexemes) || p.lexemes[p.pos].kind != lexRParen {
			return nil, fmt.Errorf("missing closing parenthesis")
		}
		p.pos++
		return val, nil
	default:
		return nil, fmt.Errorf("unexpected token %q", l.text)
	}
}

// arith applies an arithmetic operator. Strings concatenate under +;
// everything else must be numeric.
func arith(left any, op string, right any) (any, error) {
	if op == "+" {
		ls, lok := left.(string)
		rs, rok := right.(string)
		if lok || rok {
			if lok && rok {
				return ls + rs, nil
			}
			return stringify(left) + stringify(right), nil
		}
	}
	lf, lok := asNumber(left)
	rf, rok := asNumber(right)
	if !lok || !rok {
		return nil, fmt.Errorf("operator %q needs numeric operands, got %T and %T", op, left, right)
	}
	switch op {
	case "+":
		return lf + rf, nil
	case "-":
		return lf - rf, nil
	case "*":
		return lf * rf, nil
	case "/":
		if rf == 0 {
			return nil, fmt.Errorf("division by zero")
		}
		return lf / rf, nil
	}
	return nil, fmt.Errorf("unknown operator %q", op)
}

// compare evaluates a comparison. nil equals only nil and orders below
// every value; mixed types fall back to string comparison.
func compare(left any, op string, right any) bool {
	if left == nil && right == nil {
		return op == "==" || op == ">=" || op == "<="
	}
	if left == nil || right == nil {
		switch op {
		case "!=":
			return true
		case "==":
			return false
		}
		if left == nil {
			return op == "<" || op == "<="
		}
		return op == ">" || op == ">="
	}

	if lf, lok := asNumber(left); lok {
		if rf, rok := asNumber(right); rok {
			switch op {
			case "==":
				return lf == rf
			case "!=":
				return lf != rf
			case ">":
				return lf > rf
			case "<":
				return lf < rf
			case ">=":
				return lf >= rf
			case "<=":
				return lf <= rf
			}
		}
	}

	ls, rs := stringify(left), stringify(right)
	switch op {
	case "==":
		return ls == rs
	case "!=":
		return ls != rs
	case ">":
		return ls > rs
	case "<":
		return ls < rs
	case ">=":
		return ls >= rs
	case "<=":
		return ls <= rs
	}
	return false
}

func truthy(v any) bool {
	switch val := v.(type) {
	case nil:
		return false
	case bool:
		return val
	case float64:
		return val != 0
	case int:
		return val != 0
	case string:
		return val != "" && val != "false" && val != "0"
	default:
		return true
	}
}

func asNumber(v any) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case float32:
		return float64(val), true
	case int:
		return float64(val), true
	case int64:
		return float64(val), true
	case string:
		f, err := strconv.ParseFloat(val, 64)
		return f, err == nil
	default:
		return 0, false
	}
}
