package jack

import (
	"fmt"
	"strings"
	"unicode"
)

// ----------------------------------------------------------------------------
// Tokens

// This section defines the lexical tokens recognized by the Jack language, ignoring
// comments (both '//' single line and '/* ... */' possibly multi line spanning ones)
// and whitespace entirely: neither ever reaches the token stream consumed by the Parser.

type TokenType string // Enum to manage the different kind of lexeme a Token can represent

const (
	Keyword     TokenType = "keyword"
	Symbol      TokenType = "symbol"
	Identifier  TokenType = "identifier"
	IntConst    TokenType = "int_const"
	StringConst TokenType = "string_const"
)

// Token is a single lexeme alongside the kind of lexeme it is. 'Value' always holds the
// raw text as it appeared in the source, w/ one exception: for a 'StringConst' the
// surrounding double quotes are stripped (the Parser never needs to see them again).
type Token struct {
	Type  TokenType
	Value string
}

// Keywords holds the full reserved word list of the Jack language, anything matching one
// of these is tagged 'Keyword' rather than 'Identifier' regardless of what it looks like.
var Keywords = map[string]bool{
	"class": true, "constructor": true, "function": true, "method": true,
	"field": true, "static": true, "var": true,
	"int": true, "char": true, "boolean": true, "void": true,
	"true": true, "false": true, "null": true, "this": true,
	"let": true, "do": true, "if": true, "else": true, "while": true, "return": true,
}

// Symbols holds the full set of single-char punctuation/operators of the Jack language.
// NOTE: '^' and '#' are the nand2tetris extension for shiftright/shiftleft, not part of
// the language as taught in the original book but required by this toolchain's VM target.
var Symbols = map[byte]bool{
	'{': true, '}': true, '(': true, ')': true, '[': true, ']': true,
	'.': true, ',': true, ';': true,
	'+': true, '-': true, '*': true, '/': true, '&': true, '|': true,
	'<': true, '>': true, '=': true, '~': true, '^': true, '#': true,
}

// ----------------------------------------------------------------------------
// Tokenizer

// Tokenizer turns raw Jack source into a flat stream of Token, stripping comments and
// whitespace along the way. Unlike a typical one-shot scanner, the whole stream is
// materialized upfront (tokens []Token) and walked with a cursor, so the Parser can
// freely look one token ahead (Peek) without needing to push anything back.
type Tokenizer struct {
	tokens []Token
	cursor int // Index of the token last returned by Advance, -1 before the first call
}

// Initializes and returns to the caller a brand new 'Tokenizer' struct, the whole of
// 'source' is scanned immediately: any lexical error is reported here, not lazily.
func NewTokenizer(source []byte) (*Tokenizer, error) {
	stripped := stripComments(string(source))

	tokens, err := scan(stripped)
	if err != nil {
		return nil, fmt.Errorf("failed to tokenize source: %s", err)
	}

	return &Tokenizer{tokens: tokens, cursor: -1}, nil
}

// Reports whether there is at least one more token after the cursor's current position.
func (t *Tokenizer) HasMoreTokens() bool { return t.cursor+1 < len(t.tokens) }

// Advances the cursor and returns the token it now points at. Once the stream is exhausted
// it returns the zero Token and leaves the cursor where it is.
func (t *Tokenizer) Advance() Token {
	if !t.HasMoreTokens() {
		return Token{}
	}
	t.cursor++
	return t.tokens[t.cursor]
}

// Returns the current token (the one last returned by Advance) without moving the cursor.
// Before the first call to Advance this is the zero Token.
func (t *Tokenizer) Current() Token {
	if t.cursor < 0 {
		return Token{}
	}
	return t.tokens[t.cursor]
}

// Returns the next token without consuming it, used by the Parser to decide between two
// productions that share a common prefix (e.g. a bare identifier vs. a subroutine call).
// Returns the zero Token once the stream is exhausted.
func (t *Tokenizer) Peek() Token { return t.PeekAt(1) }

// Returns the token 'n' positions past the cursor without consuming anything, n=1 is
// equivalent to Peek(). Used when a single token of lookahead isn't enough to decide
// between two productions (e.g. telling a bare variable apart from 'var(' or 'var[').
// Returns the zero Token once past the end of the stream.
func (t *Tokenizer) PeekAt(n int) Token {
	if t.cursor+n >= len(t.tokens) || n < 1 {
		return Token{}
	}
	return t.tokens[t.cursor+n]
}

// ----------------------------------------------------------------------------
// Comment stripping

// Removes every '//' and '/* ... */' comment from 'source', dropping their bytes
// entirely (the delimiters themselves are always surrounded by whitespace or line
// boundaries in valid Jack source, so no two tokens ever get fused together). A
// '/* ... */' comment may span multiple lines, so this runs over the raw text as a
// single pass rather than line by line.
func stripComments(source string) string {
	var out strings.Builder
	inString, inBlockComment, inLineComment := false, false, false

	for i := 0; i < len(source); i++ {
		ch := source[i]

		if inLineComment {
			if ch == '\n' {
				inLineComment = false
				out.WriteByte(ch)
			}
			continue
		}
		if inBlockComment {
			if ch == '*' && i+1 < len(source) && source[i+1] == '/' {
				inBlockComment = false
				i++
			}
			continue
		}
		if inString {
			out.WriteByte(ch)
			if ch == '"' {
				inString = false
			}
			continue
		}

		if ch == '"' {
			inString = true
			out.WriteByte(ch)
			continue
		}
		if ch == '/' && i+1 < len(source) && source[i+1] == '/' {
			inLineComment = true
			i++
			continue
		}
		if ch == '/' && i+1 < len(source) && source[i+1] == '*' {
			inBlockComment = true
			i++
			continue
		}

		out.WriteByte(ch)
	}

	return out.String()
}

// Splits the comment-free 'source' into a flat list of Token. String literals are
// scanned as a single atomic token even though they may contain symbol characters that
// would otherwise split a bare identifier or operator sequence apart.
func scan(source string) ([]Token, error) {
	tokens := []Token{}

	i, n := 0, len(source)
	for i < n {
		ch := source[i]

		switch {
		case unicode.IsSpace(rune(ch)):
			i++

		case ch == '"':
			end := strings.IndexByte(source[i+1:], '"')
			if end == -1 {
				return nil, fmt.Errorf("unterminated string literal starting at byte %d", i)
			}
			value := source[i+1 : i+1+end]
			tokens = append(tokens, Token{Type: StringConst, Value: value})
			i += end + 2

		case Symbols[ch]:
			tokens = append(tokens, Token{Type: Symbol, Value: string(ch)})
			i++

		case ch >= '0' && ch <= '9':
			start := i
			for i < n && source[i] >= '0' && source[i] <= '9' {
				i++
			}
			tokens = append(tokens, Token{Type: IntConst, Value: source[start:i]})

		case isIdentStart(ch):
			start := i
			for i < n && isIdentPart(source[i]) {
				i++
			}
			word := source[start:i]
			if Keywords[word] {
				tokens = append(tokens, Token{Type: Keyword, Value: word})
			} else {
				tokens = append(tokens, Token{Type: Identifier, Value: word})
			}

		default:
			return nil, fmt.Errorf("unrecognized character '%c' at byte %d", ch, i)
		}
	}

	return tokens, nil
}

func isIdentStart(ch byte) bool {
	return ch == '_' || (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z')
}

func isIdentPart(ch byte) bool { return isIdentStart(ch) || (ch >= '0' && ch <= '9') }
