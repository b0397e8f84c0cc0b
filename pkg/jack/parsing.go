package jack

import (
	"fmt"
	"io"

	"github.com/wolfo1/nand2tetris/pkg/utils"
)

// ----------------------------------------------------------------------------
// Jack Parser

// This section defines the Parser for the nand2tetris Jack language.
//
// Unlike the Asm and Vm front ends, the Jack parser is hand-rolled recursive descent
// rather than built from parser combinators: the Jack grammar carries enough context
// (is this identifier a type, a variable, or a subroutine call? does this comma-separated
// list hold one element or zero?) that a combinator grammar ends up fighting the one-token
// lookahead this implementation gets directly from the Tokenizer for free.
//
// Each parseX method maps to exactly one production of the grammar, consumes precisely the
// tokens that belong to it, and returns the matching jack.go AST node. The mapping to
// 'grammar rule -> Go method' mirrors the structure (if not the parsing technique) of the
// reference CompilationEngine this was learned from.
type Parser struct{ reader io.Reader }

// Initializes and returns to the caller a brand new 'Parser' struct.
// Requires the argument io.Reader 'r' to be valid and usable.
func NewParser(r io.Reader) Parser {
	return Parser{reader: r}
}

// Parser entrypoint: reads the whole input, tokenizes it and parses exactly one class
// declaration out of it (a Jack source file always contains a single top-level class).
func (p *Parser) Parse() (Class, error) {
	content, err := io.ReadAll(p.reader)
	if err != nil {
		return Class{}, fmt.Errorf("cannot read from 'io.Reader': %s", err)
	}

	tokenizer, err := NewTokenizer(content)
	if err != nil {
		return Class{}, fmt.Errorf("failed to tokenize input content: %s", err)
	}

	return (&parser{t: tokenizer}).parseClass()
}

// parser is the actual recursive descent engine, kept private since the only thing callers
// need is the Parse() entrypoint above, everything else is an implementation detail.
type parser struct{ t *Tokenizer }

// ----------------------------------------------------------------------------
// Token helpers

func (p *parser) peekIsKeyword(value string) bool {
	tok := p.t.Peek()
	return tok.Type == Keyword && tok.Value == value
}

func (p *parser) peekIsSymbol(value string) bool {
	tok := p.t.Peek()
	return tok.Type == Symbol && tok.Value == value
}

func (p *parser) expectKeyword(value string) (Token, error) {
	tok := p.t.Advance()
	if tok.Type != Keyword || tok.Value != value {
		return tok, fmt.Errorf("expected keyword '%s', got '%s'", value, tok.Value)
	}
	return tok, nil
}

func (p *parser) expectSymbol(value string) (Token, error) {
	tok := p.t.Advance()
	if tok.Type != Symbol || tok.Value != value {
		return tok, fmt.Errorf("expected symbol '%s', got '%s'", value, tok.Value)
	}
	return tok, nil
}

func (p *parser) expectIdentifier() (Token, error) {
	tok := p.t.Advance()
	if tok.Type != Identifier {
		return tok, fmt.Errorf("expected identifier, got '%s' (%s)", tok.Value, tok.Type)
	}
	return tok, nil
}

// Consumes a Jack type (a primitive keyword or a class identifier) and returns it as a
// DataType, alongside the class name for the Object case (empty string otherwise).
func (p *parser) parseType() (DataType, string, error) {
	tok := p.t.Advance()

	switch {
	case tok.Type == Keyword && tok.Value == "int":
		return Int, "", nil
	case tok.Type == Keyword && tok.Value == "char":
		return Char, "", nil
	case tok.Type == Keyword && tok.Value == "boolean":
		return Bool, "", nil
	case tok.Type == Keyword && tok.Value == "void":
		return Void, "", nil
	case tok.Type == Identifier:
		return Object, tok.Value, nil
	default:
		return "", "", fmt.Errorf("expected a type, got '%s'", tok.Value)
	}
}

// ----------------------------------------------------------------------------
// Classes

func (p *parser) parseClass() (Class, error) {
	if _, err := p.expectKeyword("class"); err != nil {
		return Class{}, err
	}

	name, err := p.expectIdentifier()
	if err != nil {
		return Class{}, fmt.Errorf("error parsing class name: %w", err)
	}

	if _, err := p.expectSymbol("{"); err != nil {
		return Class{}, err
	}

	class := Class{
		Name:        name.Value,
		Fields:      utils.NewOrderedMap[string, Variable](),
		Subroutines: utils.NewOrderedMap[string, Subroutine](),
	}

	for p.peekIsKeyword("static") || p.peekIsKeyword("field") {
		vars, err := p.parseClassVarDec()
		if err != nil {
			return Class{}, fmt.Errorf("error parsing class var declaration: %w", err)
		}
		for _, variable := range vars {
			class.Fields.Set(variable.Name, variable)
		}
	}

	for p.peekIsKeyword("constructor") || p.peekIsKeyword("function") || p.peekIsKeyword("method") {
		subroutine, err := p.parseSubroutine()
		if err != nil {
			return Class{}, fmt.Errorf("error parsing subroutine: %w", err)
		}
		class.Subroutines.Set(subroutine.Name, subroutine)
	}

	if _, err := p.expectSymbol("}"); err != nil {
		return Class{}, err
	}

	return class, nil
}

// Compiles a static declaration or a field declaration, e.g. 'field int x, y;'.
func (p *parser) parseClassVarDec() ([]Variable, error) {
	kindTok := p.t.Advance() // 'static' or 'field', already validated by the caller
	kind := Static
	if kindTok.Value == "field" {
		kind = Field
	}

	dataType, className, err := p.parseType()
	if err != nil {
		return nil, err
	}

	vars := []Variable{}
	for {
		name, err := p.expectIdentifier()
		if err != nil {
			return nil, fmt.Errorf("error parsing variable name: %w", err)
		}
		vars = append(vars, Variable{Name: name.Value, Type: kind, DataType: dataType, ClassName: className})

		if !p.peekIsSymbol(",") {
			break
		}
		p.t.Advance() // consume ','
	}

	if _, err := p.expectSymbol(";"); err != nil {
		return nil, err
	}

	return vars, nil
}

// ----------------------------------------------------------------------------
// Subroutines

// Compiles a complete method, function or constructor.
func (p *parser) parseSubroutine() (Subroutine, error) {
	kindTok := p.t.Advance() // 'constructor', 'function' or 'method'
	var kind SubroutineType
	switch kindTok.Value {
	case "constructor":
		kind = Constructor
	case "method":
		kind = Method
	case "function":
		kind = Function
	default:
		return Subroutine{}, fmt.Errorf("expected subroutine kind, got '%s'", kindTok.Value)
	}

	returnType, _, err := p.parseType()
	if err != nil {
		return Subroutine{}, fmt.Errorf("error parsing return type: %w", err)
	}

	name, err := p.expectIdentifier()
	if err != nil {
		return Subroutine{}, fmt.Errorf("error parsing subroutine name: %w", err)
	}

	if _, err := p.expectSymbol("("); err != nil {
		return Subroutine{}, err
	}
	arguments, err := p.parseParameterList()
	if err != nil {
		return Subroutine{}, fmt.Errorf("error parsing parameter list: %w", err)
	}
	if _, err := p.expectSymbol(")"); err != nil {
		return Subroutine{}, err
	}

	if _, err := p.expectSymbol("{"); err != nil {
		return Subroutine{}, err
	}

	statements := []Statement{}
	for p.peekIsKeyword("var") {
		varStmt, err := p.parseVarDec()
		if err != nil {
			return Subroutine{}, fmt.Errorf("error parsing var declaration: %w", err)
		}
		statements = append(statements, varStmt)
	}

	body, err := p.parseStatements()
	if err != nil {
		return Subroutine{}, fmt.Errorf("error parsing subroutine body: %w", err)
	}
	statements = append(statements, body...)

	if _, err := p.expectSymbol("}"); err != nil {
		return Subroutine{}, err
	}

	return Subroutine{Name: name.Value, Type: kind, Return: returnType, Arguments: arguments, Statements: statements}, nil
}

// Compiles a (possibly empty) parameter list, not including the enclosing '()'.
// NOTE: A method's implicit receiver is never part of this list, it's injected later on
// during lowering (as the scope's first registered variable) to keep the two concerns apart.
func (p *parser) parseParameterList() (utils.OrderedMap[string, Variable], error) {
	arguments := utils.NewOrderedMap[string, Variable]()
	if p.peekIsSymbol(")") {
		return arguments, nil
	}

	for {
		dataType, className, err := p.parseType()
		if err != nil {
			return arguments, err
		}
		name, err := p.expectIdentifier()
		if err != nil {
			return arguments, fmt.Errorf("error parsing parameter name: %w", err)
		}
		arguments.Set(name.Value, Variable{Name: name.Value, Type: Parameter, DataType: dataType, ClassName: className})

		if !p.peekIsSymbol(",") {
			break
		}
		p.t.Advance() // consume ','
	}

	return arguments, nil
}

// Compiles a 'var' declaration, e.g. 'var Array a, b;'.
func (p *parser) parseVarDec() (VarStmt, error) {
	if _, err := p.expectKeyword("var"); err != nil {
		return VarStmt{}, err
	}

	dataType, className, err := p.parseType()
	if err != nil {
		return VarStmt{}, err
	}

	vars := []Variable{}
	for {
		name, err := p.expectIdentifier()
		if err != nil {
			return VarStmt{}, fmt.Errorf("error parsing variable name: %w", err)
		}
		vars = append(vars, Variable{Name: name.Value, Type: Local, DataType: dataType, ClassName: className})

		if !p.peekIsSymbol(",") {
			break
		}
		p.t.Advance() // consume ','
	}

	if _, err := p.expectSymbol(";"); err != nil {
		return VarStmt{}, err
	}

	return VarStmt{Vars: vars}, nil
}

// ----------------------------------------------------------------------------
// Statements

// Compiles a sequence of statements, not including the enclosing '{}'.
func (p *parser) parseStatements() ([]Statement, error) {
	statements := []Statement{}

	for !p.peekIsSymbol("}") {
		tok := p.t.Peek()
		if tok.Type != Keyword {
			return nil, fmt.Errorf("expected a statement, got '%s'", tok.Value)
		}

		var stmt Statement
		var err error
		switch tok.Value {
		case "let":
			stmt, err = p.parseLetStmt()
		case "if":
			stmt, err = p.parseIfStmt()
		case "while":
			stmt, err = p.parseWhileStmt()
		case "do":
			stmt, err = p.parseDoStmt()
		case "return":
			stmt, err = p.parseReturnStmt()
		default:
			return nil, fmt.Errorf("unrecognized statement keyword '%s'", tok.Value)
		}
		if err != nil {
			return nil, err
		}

		statements = append(statements, stmt)
	}

	return statements, nil
}

// Compiles a 'do' statement: 'do Class.method(args);'.
func (p *parser) parseDoStmt() (DoStmt, error) {
	if _, err := p.expectKeyword("do"); err != nil {
		return DoStmt{}, err
	}

	call, err := p.parseSubroutineCall()
	if err != nil {
		return DoStmt{}, fmt.Errorf("error parsing subroutine call: %w", err)
	}

	if _, err := p.expectSymbol(";"); err != nil {
		return DoStmt{}, err
	}

	return DoStmt{FuncCall: call}, nil
}

// Compiles a 'let' statement, either a plain assignment or an array cell assignment.
func (p *parser) parseLetStmt() (LetStmt, error) {
	if _, err := p.expectKeyword("let"); err != nil {
		return LetStmt{}, err
	}

	name, err := p.expectIdentifier()
	if err != nil {
		return LetStmt{}, fmt.Errorf("error parsing variable name: %w", err)
	}

	var lhs Expression = VarExpr{Var: name.Value}
	if p.peekIsSymbol("[") {
		p.t.Advance() // consume '['
		index, err := p.parseExpression()
		if err != nil {
			return LetStmt{}, fmt.Errorf("error parsing array index expression: %w", err)
		}
		if _, err := p.expectSymbol("]"); err != nil {
			return LetStmt{}, err
		}
		lhs = ArrayExpr{Var: name.Value, Index: index}
	}

	if _, err := p.expectSymbol("="); err != nil {
		return LetStmt{}, err
	}

	rhs, err := p.parseExpression()
	if err != nil {
		return LetStmt{}, fmt.Errorf("error parsing RHS expression: %w", err)
	}

	if _, err := p.expectSymbol(";"); err != nil {
		return LetStmt{}, err
	}

	return LetStmt{Lhs: lhs, Rhs: rhs}, nil
}

// Compiles a 'while' statement.
func (p *parser) parseWhileStmt() (WhileStmt, error) {
	if _, err := p.expectKeyword("while"); err != nil {
		return WhileStmt{}, err
	}
	if _, err := p.expectSymbol("("); err != nil {
		return WhileStmt{}, err
	}
	condition, err := p.parseExpression()
	if err != nil {
		return WhileStmt{}, fmt.Errorf("error parsing while condition: %w", err)
	}
	if _, err := p.expectSymbol(")"); err != nil {
		return WhileStmt{}, err
	}
	if _, err := p.expectSymbol("{"); err != nil {
		return WhileStmt{}, err
	}
	block, err := p.parseStatements()
	if err != nil {
		return WhileStmt{}, fmt.Errorf("error parsing while block: %w", err)
	}
	if _, err := p.expectSymbol("}"); err != nil {
		return WhileStmt{}, err
	}

	return WhileStmt{Condition: condition, Block: block}, nil
}

// Compiles an 'if' statement, possibly with a trailing 'else' clause.
func (p *parser) parseIfStmt() (IfStmt, error) {
	if _, err := p.expectKeyword("if"); err != nil {
		return IfStmt{}, err
	}
	if _, err := p.expectSymbol("("); err != nil {
		return IfStmt{}, err
	}
	condition, err := p.parseExpression()
	if err != nil {
		return IfStmt{}, fmt.Errorf("error parsing if condition: %w", err)
	}
	if _, err := p.expectSymbol(")"); err != nil {
		return IfStmt{}, err
	}
	if _, err := p.expectSymbol("{"); err != nil {
		return IfStmt{}, err
	}
	thenBlock, err := p.parseStatements()
	if err != nil {
		return IfStmt{}, fmt.Errorf("error parsing 'then' block: %w", err)
	}
	if _, err := p.expectSymbol("}"); err != nil {
		return IfStmt{}, err
	}

	var elseBlock []Statement
	if p.peekIsKeyword("else") {
		p.t.Advance() // consume 'else'
		if _, err := p.expectSymbol("{"); err != nil {
			return IfStmt{}, err
		}
		elseBlock, err = p.parseStatements()
		if err != nil {
			return IfStmt{}, fmt.Errorf("error parsing 'else' block: %w", err)
		}
		if _, err := p.expectSymbol("}"); err != nil {
			return IfStmt{}, err
		}
	}

	return IfStmt{Condition: condition, ThenBlock: thenBlock, ElseBlock: elseBlock}, nil
}

// Compiles a 'return' statement, with or without a trailing expression.
func (p *parser) parseReturnStmt() (ReturnStmt, error) {
	if _, err := p.expectKeyword("return"); err != nil {
		return ReturnStmt{}, err
	}

	var expr Expression
	if !p.peekIsSymbol(";") {
		var err error
		expr, err = p.parseExpression()
		if err != nil {
			return ReturnStmt{}, fmt.Errorf("error parsing return expression: %w", err)
		}
	}

	if _, err := p.expectSymbol(";"); err != nil {
		return ReturnStmt{}, err
	}

	return ReturnStmt{Expr: expr}, nil
}

// ----------------------------------------------------------------------------
// Expressions

// Operators allowed between two terms, they all share a single precedence level and
// associate left-to-right (this mirrors the Jack grammar, which defines no precedence
// between them at all: parenthesize explicitly if that's not what you mean).
var binaryOps = map[string]ExprType{
	"+": Plus, "-": Minus, "*": Multiply, "/": Divide,
	"&": BoolAnd, "|": BoolOr, "<": LessThan, ">": GreatThan, "=": Equal,
}

// Unary operators, always bind to the single term immediately following them.
var unaryOps = map[string]ExprType{
	"-": Minus, "~": BoolNot, "^": ShiftRight, "#": ShiftLeft,
}

func (p *parser) parseExpression() (Expression, error) {
	lhs, err := p.parseTerm()
	if err != nil {
		return nil, err
	}

	for {
		tok := p.t.Peek()
		op, isOp := binaryOps[tok.Value]
		if tok.Type != Symbol || !isOp {
			break
		}
		p.t.Advance() // consume the operator

		rhs, err := p.parseTerm()
		if err != nil {
			return nil, fmt.Errorf("error parsing RHS of '%s': %w", tok.Value, err)
		}
		lhs = BinaryExpr{Type: op, Lhs: lhs, Rhs: rhs}
	}

	return lhs, nil
}

func (p *parser) parseTerm() (Expression, error) {
	tok := p.t.Peek()

	switch {
	case tok.Type == Symbol && tok.Value == "(":
		p.t.Advance()
		expr, err := p.parseExpression()
		if err != nil {
			return nil, fmt.Errorf("error parsing parenthesized expression: %w", err)
		}
		if _, err := p.expectSymbol(")"); err != nil {
			return nil, err
		}
		return expr, nil

	case tok.Type == Symbol:
		op, isUnary := unaryOps[tok.Value]
		if !isUnary {
			return nil, fmt.Errorf("unexpected symbol '%s' at start of expression", tok.Value)
		}
		p.t.Advance()
		rhs, err := p.parseTerm()
		if err != nil {
			return nil, fmt.Errorf("error parsing operand of unary '%s': %w", tok.Value, err)
		}
		return UnaryExpr{Type: op, Rhs: rhs}, nil

	case tok.Type == IntConst:
		p.t.Advance()
		return LiteralExpr{Type: Int, Value: tok.Value}, nil

	case tok.Type == StringConst:
		p.t.Advance()
		return LiteralExpr{Type: String, Value: tok.Value}, nil

	case tok.Type == Keyword && (tok.Value == "true" || tok.Value == "false"):
		p.t.Advance()
		return LiteralExpr{Type: Bool, Value: tok.Value}, nil

	case tok.Type == Keyword && tok.Value == "null":
		p.t.Advance()
		return LiteralExpr{Type: Null, Value: "null"}, nil

	case tok.Type == Keyword && tok.Value == "this":
		p.t.Advance()
		return VarExpr{Var: "this"}, nil

	case tok.Type == Identifier:
		next := p.t.PeekAt(2)
		switch {
		case next.Type == Symbol && (next.Value == "(" || next.Value == "."):
			return p.parseSubroutineCall()
		case next.Type == Symbol && next.Value == "[":
			p.t.Advance() // consume the array name
			p.t.Advance() // consume '['
			index, err := p.parseExpression()
			if err != nil {
				return nil, fmt.Errorf("error parsing array index expression: %w", err)
			}
			if _, err := p.expectSymbol("]"); err != nil {
				return nil, err
			}
			return ArrayExpr{Var: tok.Value, Index: index}, nil
		default:
			p.t.Advance() // consume the bare variable name
			return VarExpr{Var: tok.Value}, nil
		}

	default:
		return nil, fmt.Errorf("unexpected token '%s' at start of expression", tok.Value)
	}
}

// Compiles a subroutine call, in either of its three forms: 'f(args)' (implicit 'this'),
// 'var.f(args)' (call through a variable, resolved to method or function during lowering)
// and 'Class.f(args)' (call into another class). Telling these apart is not this parser's
// job: it only records whether a '.' was seen (IsExtCall) and what came before it (Var),
// the Lowerer is the one with enough context (the scope table) to resolve the rest.
func (p *parser) parseSubroutineCall() (FuncCallExpr, error) {
	first, err := p.expectIdentifier()
	if err != nil {
		return FuncCallExpr{}, fmt.Errorf("error parsing subroutine call target: %w", err)
	}

	call := FuncCallExpr{FuncName: first.Value}
	if p.peekIsSymbol(".") {
		p.t.Advance() // consume '.'
		second, err := p.expectIdentifier()
		if err != nil {
			return FuncCallExpr{}, fmt.Errorf("error parsing subroutine name: %w", err)
		}
		call = FuncCallExpr{IsExtCall: true, Var: first.Value, FuncName: second.Value}
	}

	if _, err := p.expectSymbol("("); err != nil {
		return FuncCallExpr{}, err
	}
	args, err := p.parseExpressionList()
	if err != nil {
		return FuncCallExpr{}, fmt.Errorf("error parsing argument list: %w", err)
	}
	if _, err := p.expectSymbol(")"); err != nil {
		return FuncCallExpr{}, err
	}

	call.Arguments = args
	return call, nil
}

// Compiles a (possibly empty) comma-separated list of expressions, not including the
// enclosing '()'.
func (p *parser) parseExpressionList() ([]Expression, error) {
	args := []Expression{}
	if p.peekIsSymbol(")") {
		return args, nil
	}

	for {
		expr, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		args = append(args, expr)

		if !p.peekIsSymbol(",") {
			break
		}
		p.t.Advance() // consume ','
	}

	return args, nil
}
