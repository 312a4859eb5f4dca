package tools_test

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/becomeliminal/nim-assistant/core"
	"github.com/becomeliminal/nim-assistant/tools"
)

func TestCalculate_Expressions(t *testing.T) {
	res := tools.Calculate("25 * 84")
	assert.Empty(t, res.Err())
	assert.Equal(t, int64(2100), res["result"])
	assert.Equal(t, "2100", res["formatted"])
	assert.Equal(t, "25 * 84", res["expression"])

	res = tools.Calculate("sqrt(144)")
	assert.Empty(t, res.Err())
	assert.Equal(t, 12.0, res["result"])
	assert.Equal(t, "12.00", res["formatted"])
}

func TestCalculate_DivisionByZero(t *testing.T) {
	for _, expr := range []string{"10/0", "10 // 0", "5 % 0", "1.5 / 0.0", "0 ** -1"} {
		res := tools.Calculate(expr)
		assert.Equal(t, "Division by zero", res.Err(), expr)
		v, ok := res["result"]
		assert.True(t, ok, expr)
		assert.Nil(t, v, expr)
		assert.Equal(t, expr, res["expression"])
	}
}

func TestCalculate_Malformed(t *testing.T) {
	for _, expr := range []string{"", "2 +", "(1 + 2", "foo(3)", "import os", "2 $ 3", "[1, 2] + 1"} {
		res := tools.Calculate(expr)
		assert.True(t, strings.HasPrefix(res.Err(), "Calculation error: "), "%q -> %v", expr, res)
		assert.Nil(t, res["result"])
	}
}

func TestEvaluate(t *testing.T) {
	tests := []struct {
		expr      string
		formatted string
	}{
		{"1 + 2 * 3", "7"},
		{"(1 + 2) * 3", "9"},
		{"7 / 2", "3.50"},
		{"7 // 2", "3"},
		{"-7 // 2", "-4"},
		{"-7 % 3", "2"},
		{"7 % -3", "-2"},
		{"2 ** 10", "1024"},
		{"2 ^ 10", "1024"},
		{"2 ** 3 ** 2", "512"},
		{"-2 ** 2", "-4"},
		{"2 ** -1", "0.50"},
		{"1234.5 * 1", "1,234.50"},
		{"1000000 / 3", "333,333.33"},
		{"-1234.5 + 0", "-1,234.50"},
		{"abs(-3)", "3"},
		{"round(2.5)", "2"},
		{"round(3.14159, 2)", "3.14"},
		{"floor(2.7)", "2"},
		{"ceil(2.1)", "3"},
		{"min(3, 1, 2)", "1"},
		{"max([3, 1, 2])", "3"},
		{"sum([1, 2, 3])", "6"},
		{"pow(2, 8)", "256"},
		{"log10(1000)", "3.00"},
		{"log(8, 2)", "3.00"},
		{"exp(0)", "1.00"},
		{"cos(0)", "1.00"},
		{"pi * 2", "6.28"},
		{"0.15 * 2450", "367.50"},
		{"1e3 + 1", "1,001.00"},
		{"2 ** 100", "1267650600228229401496703205376"},
	}
	for _, tt := range tests {
		n, err := tools.Evaluate(tt.expr)
		require.NoError(t, err, tt.expr)
		assert.Equal(t, tt.formatted, n.Format(), tt.expr)
	}
}

func TestEvaluate_BigIntegerValue(t *testing.T) {
	n, err := tools.Evaluate("2 ** 70")
	require.NoError(t, err)
	assert.True(t, n.IsInt())
	v, ok := n.Value().(*big.Int)
	require.True(t, ok)
	assert.Equal(t, "1180591620717411303424", v.String())
}

func TestEvaluate_Errors(t *testing.T) {
	_, err := tools.Evaluate("1/0")
	assert.True(t, errors.Is(err, tools.ErrDivisionByZero))

	_, err = tools.Evaluate("sqrt(-1)")
	assert.EqualError(t, err, "math domain error")

	_, err = tools.Evaluate("2 ** 1000000")
	assert.Error(t, err)

	_, err = tools.Evaluate("10.0 ** 400")
	assert.Error(t, err)
}

func TestEvaluate_BoundsIntegerGrowth(t *testing.T) {
	for _, expr := range []string{
		"(10**65535)**200",
		"(10**65535)**65535",
		"10 ** 65535",
		"(2 ** 40000) * (2 ** 40000)",
		"pow(pow(9, 9), 9999)",
	} {
		_, err := tools.Evaluate(expr)
		assert.EqualError(t, err, "numerical result out of range", expr)
	}

	tests := []struct {
		expr string
		bits int
	}{
		{"2 ** 65536", 65537},
		{"(2 ** 100) ** 100", 10001},
		{"(2 ** 30000) * 8", 30004},
	}
	for _, tt := range tests {
		n, err := tools.Evaluate(tt.expr)
		require.NoError(t, err, tt.expr)
		v, ok := n.Value().(*big.Int)
		require.True(t, ok, tt.expr)
		assert.Equal(t, tt.bits, v.BitLen(), tt.expr)
	}

	res := tools.Calculate("(10**65535)**200")
	assert.Equal(t, "Calculation error: numerical result out of range", res.Err())
	assert.Nil(t, res["result"])

	n, err := tools.Evaluate("(-1) ** 10000001")
	require.NoError(t, err)
	assert.Equal(t, "-1", n.Format())
	n, err = tools.Evaluate("1 ** 99999999999")
	require.NoError(t, err)
	assert.Equal(t, "1", n.Format())
}

func TestCalculatorTool(t *testing.T) {
	tool := tools.NewCalculatorTool()
	def := tool.Definition()
	assert.Equal(t, core.ToolCalculator, def.ToolName)
	assert.Equal(t, []string{"expression"}, def.InputSchema["required"])

	res := tool.Execute(context.Background(), &core.ToolParams{Input: map[string]interface{}{"expression": "25 * 84"}})
	assert.Equal(t, int64(2100), res["result"])

	res = tool.Execute(context.Background(), &core.ToolParams{})
	assert.Contains(t, res.Err(), "Calculation error")
}
