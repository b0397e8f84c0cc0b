package jack_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/wolfo1/nand2tetris/pkg/jack"
)

func parse(t *testing.T, src string) jack.Class {
	p := jack.NewParser(strings.NewReader(src))
	class, err := p.Parse()
	assert.NoError(t, err)
	return class
}

func TestParseClass(t *testing.T) {
	t.Run("empty class", func(t *testing.T) {
		class := parse(t, "class Main { }")
		assert.Equal(t, "Main", class.Name)
		assert.Equal(t, 0, class.Fields.Size())
		assert.Equal(t, 0, class.Subroutines.Size())
	})

	t.Run("static and field declarations, including comma lists", func(t *testing.T) {
		class := parse(t, `
			class Point {
				field int x, y;
				static boolean initialized;
			}
		`)

		xField, ok := class.Fields.Get("x")
		assert.True(t, ok)
		assert.Equal(t, jack.Variable{Name: "x", Type: jack.Field, DataType: jack.Int}, xField)

		yField, ok := class.Fields.Get("y")
		assert.True(t, ok)
		assert.Equal(t, jack.Variable{Name: "y", Type: jack.Field, DataType: jack.Int}, yField)

		initField, ok := class.Fields.Get("initialized")
		assert.True(t, ok)
		assert.Equal(t, jack.Variable{Name: "initialized", Type: jack.Static, DataType: jack.Bool}, initField)
	})

	t.Run("malformed class is rejected", func(t *testing.T) {
		p := jack.NewParser(strings.NewReader("class Main ("))
		_, err := p.Parse()
		assert.Error(t, err)
	})
}

func TestParseSubroutine(t *testing.T) {
	class := parse(t, `
		class Main {
			function void main(int argc, Array argv) {
				var int i;
				let i = 0;
				return;
			}
		}
	`)

	sub, ok := class.Subroutines.Get("main")
	assert.True(t, ok)
	assert.Equal(t, jack.Function, sub.Type)
	assert.Equal(t, jack.Void, sub.Return)
	assert.Equal(t, 2, sub.Arguments.Size())

	argc, ok := sub.Arguments.Get("argc")
	assert.True(t, ok)
	assert.Equal(t, jack.Variable{Name: "argc", Type: jack.Parameter, DataType: jack.Int}, argc)

	argv, ok := sub.Arguments.Get("argv")
	assert.True(t, ok)
	assert.Equal(t, jack.Variable{Name: "argv", Type: jack.Parameter, DataType: jack.Object, ClassName: "Array"}, argv)

	// A leading 'var' declaration surfaces as an ordinary VarStmt in the statement list,
	// ahead of whatever the subroutine body itself contains.
	assert.IsType(t, jack.VarStmt{}, sub.Statements[0])
	assert.IsType(t, jack.LetStmt{}, sub.Statements[1])
	assert.IsType(t, jack.ReturnStmt{}, sub.Statements[2])
}

func TestParseStatements(t *testing.T) {
	t.Run("let with a plain LHS", func(t *testing.T) {
		class := parse(t, `class C { function void f() { let x = 1; return; } }`)
		sub, _ := class.Subroutines.Get("f")
		let := sub.Statements[0].(jack.LetStmt)
		assert.Equal(t, jack.VarExpr{Var: "x"}, let.Lhs)
		assert.Equal(t, jack.LiteralExpr{Type: jack.Int, Value: "1"}, let.Rhs)
	})

	t.Run("let with an array-cell LHS", func(t *testing.T) {
		class := parse(t, `class C { function void f() { let a[i] = 1; return; } }`)
		sub, _ := class.Subroutines.Get("f")
		let := sub.Statements[0].(jack.LetStmt)
		assert.Equal(t, jack.ArrayExpr{Var: "a", Index: jack.VarExpr{Var: "i"}}, let.Lhs)
	})

	t.Run("if/else", func(t *testing.T) {
		class := parse(t, `
			class C {
				function void f() {
					if (x) { let y = 1; } else { let y = 2; }
					return;
				}
			}
		`)
		sub, _ := class.Subroutines.Get("f")
		ifStmt := sub.Statements[0].(jack.IfStmt)
		assert.Len(t, ifStmt.ThenBlock, 1)
		assert.Len(t, ifStmt.ElseBlock, 1)
	})

	t.Run("if without an else has a nil ElseBlock", func(t *testing.T) {
		class := parse(t, `class C { function void f() { if (x) { let y = 1; } return; } }`)
		sub, _ := class.Subroutines.Get("f")
		ifStmt := sub.Statements[0].(jack.IfStmt)
		assert.Nil(t, ifStmt.ElseBlock)
	})

	t.Run("while", func(t *testing.T) {
		class := parse(t, `class C { function void f() { while (x) { let y = 1; } return; } }`)
		sub, _ := class.Subroutines.Get("f")
		while := sub.Statements[0].(jack.WhileStmt)
		assert.Len(t, while.Block, 1)
	})

	t.Run("return with no expression", func(t *testing.T) {
		class := parse(t, `class C { function void f() { return; } }`)
		sub, _ := class.Subroutines.Get("f")
		ret := sub.Statements[0].(jack.ReturnStmt)
		assert.Nil(t, ret.Expr)
	})
}

func TestParseSubroutineCallForms(t *testing.T) {
	t.Run("implicit this call: f(args)", func(t *testing.T) {
		class := parse(t, `class C { function void g() { do f(1, 2); return; } }`)
		sub, _ := class.Subroutines.Get("g")
		do := sub.Statements[0].(jack.DoStmt)
		assert.False(t, do.FuncCall.IsExtCall)
		assert.Equal(t, "f", do.FuncCall.FuncName)
		assert.Len(t, do.FuncCall.Arguments, 2)
	})

	t.Run("call through a variable: var.f(args)", func(t *testing.T) {
		class := parse(t, `class C { function void g() { do obj.f(); return; } }`)
		sub, _ := class.Subroutines.Get("g")
		do := sub.Statements[0].(jack.DoStmt)
		assert.True(t, do.FuncCall.IsExtCall)
		assert.Equal(t, "obj", do.FuncCall.Var)
		assert.Equal(t, "f", do.FuncCall.FuncName)
	})

	t.Run("call into another class: Class.f(args)", func(t *testing.T) {
		class := parse(t, `class C { function void g() { do Output.printInt(5); return; } }`)
		sub, _ := class.Subroutines.Get("g")
		do := sub.Statements[0].(jack.DoStmt)
		assert.True(t, do.FuncCall.IsExtCall)
		assert.Equal(t, "Output", do.FuncCall.Var)
		assert.Equal(t, "printInt", do.FuncCall.FuncName)
	})
}

func TestParseExpressions(t *testing.T) {
	t.Run("binary operators associate left to right with a flat precedence", func(t *testing.T) {
		class := parse(t, `class C { function void f() { let x = 1 + 2 * 3; return; } }`)
		sub, _ := class.Subroutines.Get("f")
		let := sub.Statements[0].(jack.LetStmt)
		// '+' binds first since there is no precedence distinction: (1 + 2) * 3.
		expected := jack.BinaryExpr{
			Type: jack.Multiply,
			Lhs:  jack.BinaryExpr{Type: jack.Plus, Lhs: jack.LiteralExpr{Type: jack.Int, Value: "1"}, Rhs: jack.LiteralExpr{Type: jack.Int, Value: "2"}},
			Rhs:  jack.LiteralExpr{Type: jack.Int, Value: "3"},
		}
		assert.Equal(t, expected, let.Rhs)
	})

	t.Run("parenthesized sub-expressions override the left-to-right order", func(t *testing.T) {
		class := parse(t, `class C { function void f() { let x = 1 * (2 + 3); return; } }`)
		sub, _ := class.Subroutines.Get("f")
		let := sub.Statements[0].(jack.LetStmt)
		expected := jack.BinaryExpr{
			Type: jack.Multiply,
			Lhs:  jack.LiteralExpr{Type: jack.Int, Value: "1"},
			Rhs:  jack.BinaryExpr{Type: jack.Plus, Lhs: jack.LiteralExpr{Type: jack.Int, Value: "2"}, Rhs: jack.LiteralExpr{Type: jack.Int, Value: "3"}},
		}
		assert.Equal(t, expected, let.Rhs)
	})

	t.Run("unary operators, including the shift extension", func(t *testing.T) {
		class := parse(t, `class C { function void f() { let x = #y; let z = ^y; let w = ~y; let v = -y; return; } }`)
		sub, _ := class.Subroutines.Get("f")
		assert.Equal(t, jack.UnaryExpr{Type: jack.ShiftLeft, Rhs: jack.VarExpr{Var: "y"}}, sub.Statements[0].(jack.LetStmt).Rhs)
		assert.Equal(t, jack.UnaryExpr{Type: jack.ShiftRight, Rhs: jack.VarExpr{Var: "y"}}, sub.Statements[1].(jack.LetStmt).Rhs)
		assert.Equal(t, jack.UnaryExpr{Type: jack.BoolNot, Rhs: jack.VarExpr{Var: "y"}}, sub.Statements[2].(jack.LetStmt).Rhs)
		assert.Equal(t, jack.UnaryExpr{Type: jack.Minus, Rhs: jack.VarExpr{Var: "y"}}, sub.Statements[3].(jack.LetStmt).Rhs)
	})

	t.Run("literals: int, string, true/false, null, this", func(t *testing.T) {
		class := parse(t, `
			class C {
				function void f() {
					let a = 5;
					let b = "hi";
					let c = true;
					let d = false;
					let e = null;
					let g = this;
					return;
				}
			}
		`)
		sub, _ := class.Subroutines.Get("f")
		assert.Equal(t, jack.LiteralExpr{Type: jack.Int, Value: "5"}, sub.Statements[0].(jack.LetStmt).Rhs)
		assert.Equal(t, jack.LiteralExpr{Type: jack.String, Value: "hi"}, sub.Statements[1].(jack.LetStmt).Rhs)
		assert.Equal(t, jack.LiteralExpr{Type: jack.Bool, Value: "true"}, sub.Statements[2].(jack.LetStmt).Rhs)
		assert.Equal(t, jack.LiteralExpr{Type: jack.Bool, Value: "false"}, sub.Statements[3].(jack.LetStmt).Rhs)
		assert.Equal(t, jack.LiteralExpr{Type: jack.Null, Value: "null"}, sub.Statements[4].(jack.LetStmt).Rhs)
		assert.Equal(t, jack.VarExpr{Var: "this"}, sub.Statements[5].(jack.LetStmt).Rhs)
	})

	t.Run("array read in an expression", func(t *testing.T) {
		class := parse(t, `class C { function void f() { let x = a[i]; return; } }`)
		sub, _ := class.Subroutines.Get("f")
		assert.Equal(t, jack.ArrayExpr{Var: "a", Index: jack.VarExpr{Var: "i"}}, sub.Statements[0].(jack.LetStmt).Rhs)
	})
}
