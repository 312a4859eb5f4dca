package tools

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/big"
	"strconv"
	"strings"
	"unicode"

	"github.com/becomeliminal/nim-assistant/core"
)

// ErrDivisionByZero is returned by Evaluate when a divisor is zero.
var ErrDivisionByZero = errors.New("division by zero")

var errDomain = errors.New("math domain error")

// maxResultBits bounds exact integer products and powers. Nested powers
// would otherwise grow without limit.
const maxResultBits = 1 << 16

var errRange = errors.New("numerical result out of range")

// Number is an evaluated calculator value. Integers are exact.
type Number struct {
	isInt bool
	i     *big.Int
	f     float64
}

func intNum(i *big.Int) Number { return Number{isInt: true, i: i} }

func floatNum(f float64) Number { return Number{f: f} }

// IsInt reports whether n is an exact integer.
func (n Number) IsInt() bool { return n.isInt }

func (n Number) float() float64 {
	if n.isInt {
		f, _ := new(big.Float).SetInt(n.i).Float64()
		return f
	}
	return n.f
}

// Value returns the JSON-friendly form: int64 when it fits, *big.Int for
// larger integers, float64 otherwise.
func (n Number) Value() interface{} {
	if !n.isInt {
		return n.f
	}
	if n.i.IsInt64() {
		return n.i.Int64()
	}
	return n.i
}

// Format renders integers verbatim and floats with thousands separators and
// two decimals, e.g. 1,234.50.
func (n Number) Format() string {
	if n.isInt {
		return n.i.String()
	}
	return formatFloat(n.f)
}

func formatFloat(f float64) string {
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	s := strconv.FormatFloat(math.Abs(f), 'f', 2, 64)
	intPart, frac := s, ""
	if dot := strings.IndexByte(s, '.'); dot >= 0 {
		intPart, frac = s[:dot], s[dot:]
	}

	var b strings.Builder
	if math.Signbit(f) && s != "0.00" {
		b.WriteByte('-')
	}
	for i, c := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(c)
	}
	b.WriteString(frac)
	return b.String()
}

// Evaluate parses and evaluates an arithmetic expression.
//
// Grammar, loosest binding first:
//
//	expr    = term { ("+" | "-") term }
//	term    = unary { ("*" | "/" | "//" | "%") unary }
//	unary   = ("+" | "-") unary | power
//	power   = primary [ ("**" | "^") unary ]
//	primary = number | constant | func "(" args ")" | "(" expr ")" | "[" args "]"
//
// "/" always yields a float. "//" rounds toward negative infinity and "%"
// takes the sign of the divisor.
func Evaluate(expression string) (Number, error) {
	toks, err := lex(expression)
	if err != nil {
		return Number{}, err
	}
	p := &parser{toks: toks}
	v, err := p.expr()
	if err != nil {
		return Number{}, err
	}
	if tok := p.peek(); tok.kind != tokEOF {
		return Number{}, fmt.Errorf("unexpected %q at position %d", tok.text, tok.pos)
	}
	return v.number()
}

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokNumber
	tokIdent
	tokOp
)

type token struct {
	kind tokenKind
	text string
	pos  int
}

func lex(s string) ([]token, error) {
	var toks []token
	rs := []rune(s)
	for i := 0; i < len(rs); {
		c := rs[i]
		switch {
		case unicode.IsSpace(c):
			i++
		case unicode.IsDigit(c) || (c == '.' && i+1 < len(rs) && unicode.IsDigit(rs[i+1])):
			start := i
			for i < len(rs) && (unicode.IsDigit(rs[i]) || rs[i] == '.' || rs[i] == '_') {
				i++
			}
			if i < len(rs) && (rs[i] == 'e' || rs[i] == 'E') {
				j := i + 1
				if j < len(rs) && (rs[j] == '+' || rs[j] == '-') {
					j++
				}
				if j < len(rs) && unicode.IsDigit(rs[j]) {
					i = j
					for i < len(rs) && unicode.IsDigit(rs[i]) {
						i++
					}
				}
			}
			toks = append(toks, token{kind: tokNumber, text: string(rs[start:i]), pos: start})
		case unicode.IsLetter(c) || c == '_':
			start := i
			for i < len(rs) && (unicode.IsLetter(rs[i]) || unicode.IsDigit(rs[i]) || rs[i] == '_') {
				i++
			}
			toks = append(toks, token{kind: tokIdent, text: string(rs[start:i]), pos: start})
		case c == '*' || c == '/':
			if i+1 < len(rs) && rs[i+1] == c {
				toks = append(toks, token{kind: tokOp, text: string([]rune{c, c}), pos: i})
				i += 2
				continue
			}
			toks = append(toks, token{kind: tokOp, text: string(c), pos: i})
			i++
		case strings.ContainsRune("+-%^(),[]", c):
			toks = append(toks, token{kind: tokOp, text: string(c), pos: i})
			i++
		default:
			return nil, fmt.Errorf("invalid character %q at position %d", c, i)
		}
	}
	return append(toks, token{kind: tokEOF, pos: len(rs)}), nil
}

// value is either a number or a list literal; lists only make sense as
// function arguments.
type value struct {
	num    Number
	list   []Number
	isList bool
}

func (v value) number() (Number, error) {
	if v.isList {
		return Number{}, errors.New("unsupported operand type: list")
	}
	return v.num, nil
}

type parser struct {
	toks []token
	pos  int
}

func (p *parser) peek() token { return p.toks[p.pos] }

func (p *parser) next() token {
	t := p.toks[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *parser) accept(op string) bool {
	if t := p.peek(); t.kind == tokOp && t.text == op {
		p.pos++
		return true
	}
	return false
}

func (p *parser) expect(op string) error {
	if p.accept(op) {
		return nil
	}
	t := p.peek()
	if t.kind == tokEOF {
		return fmt.Errorf("expected %q but expression ended", op)
	}
	return fmt.Errorf("expected %q at position %d, got %q", op, t.pos, t.text)
}

func (p *parser) expr() (value, error) {
	left, err := p.term()
	if err != nil {
		return value{}, err
	}
	for {
		var op string
		switch {
		case p.accept("+"):
			op = "+"
		case p.accept("-"):
			op = "-"
		default:
			return left, nil
		}
		right, err := p.term()
		if err != nil {
			return value{}, err
		}
		if left, err = binary(op, left, right); err != nil {
			return value{}, err
		}
	}
}

func (p *parser) term() (value, error) {
	left, err := p.unary()
	if err != nil {
		return value{}, err
	}
	for {
		var op string
		switch {
		case p.accept("*"):
			op = "*"
		case p.accept("//"):
			op = "//"
		case p.accept("/"):
			op = "/"
		case p.accept("%"):
			op = "%"
		default:
			return left, nil
		}
		right, err := p.unary()
		if err != nil {
			return value{}, err
		}
		if left, err = binary(op, left, right); err != nil {
			return value{}, err
		}
	}
}

func (p *parser) unary() (value, error) {
	switch {
	case p.accept("-"):
		v, err := p.unary()
		if err != nil {
			return value{}, err
		}
		n, err := v.number()
		if err != nil {
			return value{}, err
		}
		if n.isInt {
			return value{num: intNum(new(big.Int).Neg(n.i))}, nil
		}
		return value{num: floatNum(-n.f)}, nil
	case p.accept("+"):
		v, err := p.unary()
		if err != nil {
			return value{}, err
		}
		if _, err := v.number(); err != nil {
			return value{}, err
		}
		return v, nil
	}
	return p.power()
}

func (p *parser) power() (value, error) {
	base, err := p.primary()
	if err != nil {
		return value{}, err
	}
	if p.accept("**") || p.accept("^") {
		exp, err := p.unary()
		if err != nil {
			return value{}, err
		}
		return binary("**", base, exp)
	}
	return base, nil
}

func (p *parser) primary() (value, error) {
	t := p.next()
	switch t.kind {
	case tokNumber:
		n, err := parseNumber(t.text)
		if err != nil {
			return value{}, err
		}
		return value{num: n}, nil
	case tokIdent:
		if p.accept("(") {
			args, err := p.args(")")
			if err != nil {
				return value{}, err
			}
			n, err := callFunc(t.text, args)
			if err != nil {
				return value{}, err
			}
			return value{num: n}, nil
		}
		if c, ok := constants[t.text]; ok {
			return value{num: floatNum(c)}, nil
		}
		return value{}, fmt.Errorf("name %q is not defined", t.text)
	case tokOp:
		switch t.text {
		case "(":
			v, err := p.expr()
			if err != nil {
				return value{}, err
			}
			if err := p.expect(")"); err != nil {
				return value{}, err
			}
			return v, nil
		case "[":
			args, err := p.args("]")
			if err != nil {
				return value{}, err
			}
			list := make([]Number, 0, len(args))
			for _, a := range args {
				n, err := a.number()
				if err != nil {
					return value{}, err
				}
				list = append(list, n)
			}
			return value{list: list, isList: true}, nil
		}
		return value{}, fmt.Errorf("unexpected %q at position %d", t.text, t.pos)
	}
	return value{}, errors.New("unexpected end of expression")
}

func (p *parser) args(closing string) ([]value, error) {
	var args []value
	if p.accept(closing) {
		return args, nil
	}
	for {
		v, err := p.expr()
		if err != nil {
			return nil, err
		}
		args = append(args, v)
		if p.accept(",") {
			continue
		}
		if err := p.expect(closing); err != nil {
			return nil, err
		}
		return args, nil
	}
}

func parseNumber(text string) (Number, error) {
	clean := strings.ReplaceAll(text, "_", "")
	if !strings.ContainsAny(clean, ".eE") {
		i, ok := new(big.Int).SetString(clean, 10)
		if !ok {
			return Number{}, fmt.Errorf("invalid number %q", text)
		}
		return intNum(i), nil
	}
	f, err := strconv.ParseFloat(clean, 64)
	if err != nil {
		return Number{}, fmt.Errorf("invalid number %q", text)
	}
	return floatNum(f), nil
}

func binary(op string, lv, rv value) (value, error) {
	l, err := lv.number()
	if err != nil {
		return value{}, err
	}
	r, err := rv.number()
	if err != nil {
		return value{}, err
	}
	n, err := arith(op, l, r)
	if err != nil {
		return value{}, err
	}
	return value{num: n}, nil
}

func arith(op string, l, r Number) (Number, error) {
	if l.isInt && r.isInt {
		return intArith(op, l.i, r.i)
	}
	a, b := l.float(), r.float()
	var out float64
	switch op {
	case "+":
		out = a + b
	case "-":
		out = a - b
	case "*":
		out = a * b
	case "/":
		if b == 0 {
			return Number{}, ErrDivisionByZero
		}
		out = a / b
	case "//":
		if b == 0 {
			return Number{}, ErrDivisionByZero
		}
		out = math.Floor(a / b)
	case "%":
		if b == 0 {
			return Number{}, ErrDivisionByZero
		}
		out = floorMod(a, b)
	case "**":
		if a == 0 && b < 0 {
			return Number{}, ErrDivisionByZero
		}
		if a < 0 && b != math.Trunc(b) {
			return Number{}, errDomain
		}
		out = math.Pow(a, b)
	}
	return checkFloat(out)
}

func intArith(op string, a, b *big.Int) (Number, error) {
	switch op {
	case "+":
		return intNum(new(big.Int).Add(a, b)), nil
	case "-":
		return intNum(new(big.Int).Sub(a, b)), nil
	case "*":
		if a.BitLen()+b.BitLen() > maxResultBits {
			return Number{}, errRange
		}
		return intNum(new(big.Int).Mul(a, b)), nil
	case "/":
		if b.Sign() == 0 {
			return Number{}, ErrDivisionByZero
		}
		f, _ := new(big.Rat).SetFrac(a, b).Float64()
		return checkFloat(f)
	case "//", "%":
		if b.Sign() == 0 {
			return Number{}, ErrDivisionByZero
		}
		q, m := new(big.Int).QuoRem(a, b, new(big.Int))
		// Round the quotient toward negative infinity.
		if m.Sign() != 0 && (m.Sign() < 0) != (b.Sign() < 0) {
			q.Sub(q, big.NewInt(1))
			m.Add(m, b)
		}
		if op == "//" {
			return intNum(q), nil
		}
		return intNum(m), nil
	case "**":
		if b.Sign() < 0 {
			if a.Sign() == 0 {
				return Number{}, ErrDivisionByZero
			}
			return checkFloat(math.Pow(intNum(a).float(), intNum(b).float()))
		}
		// 0, 1 and -1 stay small for any exponent.
		if a.BitLen() > 1 && (!b.IsInt64() || b.Int64() > maxResultBits/int64(a.BitLen()-1)) {
			return Number{}, errRange
		}
		return intNum(new(big.Int).Exp(a, b, nil)), nil
	}
	return Number{}, fmt.Errorf("unknown operator %q", op)
}

func floorMod(a, b float64) float64 {
	m := math.Mod(a, b)
	if m != 0 && (m < 0) != (b < 0) {
		m += b
	}
	return m
}

func checkFloat(f float64) (Number, error) {
	if math.IsInf(f, 0) {
		return Number{}, errRange
	}
	if math.IsNaN(f) {
		return Number{}, errDomain
	}
	return floatNum(f), nil
}

var constants = map[string]float64{
	"pi": math.Pi,
	"e":  math.E,
}

func floatFunc(fn func(float64) float64, domain func(float64) bool) func([]Number) (Number, error) {
	return func(args []Number) (Number, error) {
		if len(args) != 1 {
			return Number{}, fmt.Errorf("expected 1 argument, got %d", len(args))
		}
		x := args[0].float()
		if domain != nil && !domain(x) {
			return Number{}, errDomain
		}
		return checkFloat(fn(x))
	}
}

func positive(x float64) bool    { return x > 0 }
func nonNegative(x float64) bool { return x >= 0 }

func toInt(f float64) (Number, error) {
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return Number{}, errors.New("cannot convert non-finite float to integer")
	}
	i, _ := big.NewFloat(f).Int(nil)
	return intNum(i), nil
}

func roundingFunc(fn func(float64) float64) func([]Number) (Number, error) {
	return func(args []Number) (Number, error) {
		if len(args) != 1 {
			return Number{}, fmt.Errorf("expected 1 argument, got %d", len(args))
		}
		if args[0].isInt {
			return args[0], nil
		}
		return toInt(fn(args[0].f))
	}
}

var functions = map[string]func([]Number) (Number, error){
	"sqrt":  floatFunc(math.Sqrt, nonNegative),
	"sin":   floatFunc(math.Sin, nil),
	"cos":   floatFunc(math.Cos, nil),
	"tan":   floatFunc(math.Tan, nil),
	"exp":   floatFunc(math.Exp, nil),
	"log10": floatFunc(math.Log10, positive),
	"ceil":  roundingFunc(math.Ceil),
	"floor": roundingFunc(math.Floor),
	"log": func(args []Number) (Number, error) {
		if len(args) == 0 || len(args) > 2 {
			return Number{}, fmt.Errorf("expected 1 or 2 arguments, got %d", len(args))
		}
		x := args[0].float()
		if x <= 0 {
			return Number{}, errDomain
		}
		if len(args) == 1 {
			return checkFloat(math.Log(x))
		}
		base := args[1].float()
		if base <= 0 {
			return Number{}, errDomain
		}
		if base == 1 {
			return Number{}, ErrDivisionByZero
		}
		return checkFloat(math.Log(x) / math.Log(base))
	},
	"abs": func(args []Number) (Number, error) {
		if len(args) != 1 {
			return Number{}, fmt.Errorf("expected 1 argument, got %d", len(args))
		}
		if args[0].isInt {
			return intNum(new(big.Int).Abs(args[0].i)), nil
		}
		return floatNum(math.Abs(args[0].f)), nil
	},
	"round": func(args []Number) (Number, error) {
		if len(args) == 0 || len(args) > 2 {
			return Number{}, fmt.Errorf("expected 1 or 2 arguments, got %d", len(args))
		}
		x := args[0]
		if len(args) == 1 {
			if x.isInt {
				return x, nil
			}
			return toInt(math.RoundToEven(x.f))
		}
		if !args[1].isInt {
			return Number{}, errors.New("round() digits must be an integer")
		}
		if x.isInt {
			return x, nil
		}
		digits := args[1].i.Int64()
		scale := math.Pow(10, float64(digits))
		return checkFloat(math.RoundToEven(x.f*scale) / scale)
	},
	"pow": func(args []Number) (Number, error) {
		if len(args) != 2 {
			return Number{}, fmt.Errorf("expected 2 arguments, got %d", len(args))
		}
		return arith("**", args[0], args[1])
	},
	"min": func(args []Number) (Number, error) { return extreme(args, -1) },
	"max": func(args []Number) (Number, error) { return extreme(args, 1) },
	"sum": func(args []Number) (Number, error) {
		total := intNum(new(big.Int))
		for _, a := range args {
			var err error
			if total, err = arith("+", total, a); err != nil {
				return Number{}, err
			}
		}
		return total, nil
	},
}

func extreme(args []Number, sign int) (Number, error) {
	if len(args) == 0 {
		return Number{}, errors.New("arg is an empty sequence")
	}
	best := args[0]
	for _, a := range args[1:] {
		if compare(a, best)*sign > 0 {
			best = a
		}
	}
	return best, nil
}

func compare(a, b Number) int {
	if a.isInt && b.isInt {
		return a.i.Cmp(b.i)
	}
	x, y := a.float(), b.float()
	switch {
	case x < y:
		return -1
	case x > y:
		return 1
	}
	return 0
}

// callFunc flattens a single list argument so min([1, 2]) and min(1, 2)
// behave the same.
func callFunc(name string, args []value) (Number, error) {
	fn, ok := functions[name]
	if !ok {
		return Number{}, fmt.Errorf("name %q is not defined", name)
	}
	var nums []Number
	for i, a := range args {
		if a.isList {
			if i != 0 || !(name == "min" || name == "max" || name == "sum") {
				return Number{}, fmt.Errorf("%s() does not accept a list here", name)
			}
			nums = append(nums, a.list...)
			continue
		}
		nums = append(nums, a.num)
	}
	n, err := fn(nums)
	if err != nil && !errors.Is(err, ErrDivisionByZero) && !errors.Is(err, errDomain) {
		return Number{}, fmt.Errorf("%s(): %w", name, err)
	}
	return n, err
}

// Calculate evaluates expression and shapes the outcome as a tool result.
func Calculate(expression string) core.ToolResult {
	n, err := Evaluate(expression)
	switch {
	case errors.Is(err, ErrDivisionByZero):
		return core.ToolResult{
			"error":      "Division by zero",
			"expression": expression,
			"result":     nil,
		}
	case err != nil:
		return core.ToolResult{
			"error":      fmt.Sprintf("Calculation error: %v", err),
			"expression": expression,
			"result":     nil,
		}
	}
	return core.ToolResult{
		"expression": expression,
		"result":     n.Value(),
		"formatted":  n.Format(),
	}
}

// NewCalculatorTool creates the calculator tool.
func NewCalculatorTool() core.Tool {
	return New(core.ToolCalculator).
		Description("Perform mathematical calculations and computations. Use this when the user asks for calculations, percentages, conversions, or any mathematical operations.").
		Schema(ObjectSchema(map[string]interface{}{
			"expression": StringProperty("Mathematical expression to evaluate (e.g., '25 * 84', '0.15 * 2450', 'sqrt(144)')"),
		}, "expression")).
		Handler(func(ctx context.Context, params *core.ToolParams) core.ToolResult {
			return Calculate(core.StringArg(params.Input, "expression", ""))
		})
}
