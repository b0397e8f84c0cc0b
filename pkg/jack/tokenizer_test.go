package jack_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/wolfo1/nand2tetris/pkg/jack"
)

func allTokens(t *testing.T, src string) []jack.Token {
	tok, err := jack.NewTokenizer([]byte(src))
	assert.NoError(t, err)

	tokens := []jack.Token{}
	for tok.HasMoreTokens() {
		tokens = append(tokens, tok.Advance())
	}
	return tokens
}

func TestTokenizerBasics(t *testing.T) {
	t.Run("keywords are tagged Keyword, not Identifier", func(t *testing.T) {
		tokens := allTokens(t, "class static field")
		assert.Equal(t, []jack.Token{
			{Type: jack.Keyword, Value: "class"},
			{Type: jack.Keyword, Value: "static"},
			{Type: jack.Keyword, Value: "field"},
		}, tokens)
	})

	t.Run("identifiers that merely contain keyword text stay identifiers", func(t *testing.T) {
		tokens := allTokens(t, "classroom staticVar")
		assert.Equal(t, []jack.Token{
			{Type: jack.Identifier, Value: "classroom"},
			{Type: jack.Identifier, Value: "staticVar"},
		}, tokens)
	})

	t.Run("int constants", func(t *testing.T) {
		tokens := allTokens(t, "0 42 32767")
		assert.Equal(t, []jack.Token{
			{Type: jack.IntConst, Value: "0"},
			{Type: jack.IntConst, Value: "42"},
			{Type: jack.IntConst, Value: "32767"},
		}, tokens)
	})

	t.Run("string constants drop the surrounding quotes", func(t *testing.T) {
		tokens := allTokens(t, `"hello world"`)
		assert.Equal(t, []jack.Token{{Type: jack.StringConst, Value: "hello world"}}, tokens)
	})

	t.Run("unterminated string literal is a lexical error", func(t *testing.T) {
		_, err := jack.NewTokenizer([]byte(`"unterminated`))
		assert.Error(t, err)
	})

	t.Run("nand2tetris shift symbols are recognized", func(t *testing.T) {
		tokens := allTokens(t, "a ^ b # c")
		assert.Equal(t, []jack.Token{
			{Type: jack.Identifier, Value: "a"},
			{Type: jack.Symbol, Value: "^"},
			{Type: jack.Identifier, Value: "b"},
			{Type: jack.Symbol, Value: "#"},
			{Type: jack.Identifier, Value: "c"},
		}, tokens)
	})

	t.Run("unrecognized character is a lexical error", func(t *testing.T) {
		_, err := jack.NewTokenizer([]byte("@"))
		assert.Error(t, err)
	})
}

func TestTokenizerCommentStripping(t *testing.T) {
	t.Run("single line comments run to end of line", func(t *testing.T) {
		tokens := allTokens(t, "let x = 1; // assign x\nlet y = 2;")
		values := []string{}
		for _, tok := range tokens {
			values = append(values, tok.Value)
		}
		assert.Equal(t, []string{"let", "x", "=", "1", ";", "let", "y", "=", "2", ";"}, values)
	})

	t.Run("block comments may span multiple lines", func(t *testing.T) {
		tokens := allTokens(t, "let x /* this\nspans\nlines */ = 1;")
		values := []string{}
		for _, tok := range tokens {
			values = append(values, tok.Value)
		}
		assert.Equal(t, []string{"let", "x", "=", "1", ";"}, values)
	})

	t.Run("comment-like sequences inside string literals are kept verbatim", func(t *testing.T) {
		tokens := allTokens(t, `"not // a comment" "nor /* this */ either"`)
		assert.Equal(t, []jack.Token{
			{Type: jack.StringConst, Value: "not // a comment"},
			{Type: jack.StringConst, Value: "nor /* this */ either"},
		}, tokens)
	})
}

func TestTokenizerCursor(t *testing.T) {
	tok, err := jack.NewTokenizer([]byte("let x = 1;"))
	assert.NoError(t, err)

	// Before the first Advance, Current is the zero Token and Peek looks at token 0.
	assert.Equal(t, jack.Token{}, tok.Current())
	assert.Equal(t, jack.Token{Type: jack.Keyword, Value: "let"}, tok.Peek())

	assert.True(t, tok.HasMoreTokens())
	first := tok.Advance()
	assert.Equal(t, jack.Token{Type: jack.Keyword, Value: "let"}, first)
	assert.Equal(t, first, tok.Current())

	// Peek/PeekAt never consume: Current must still report the same token afterwards.
	assert.Equal(t, jack.Token{Type: jack.Identifier, Value: "x"}, tok.Peek())
	assert.Equal(t, jack.Token{Type: jack.Symbol, Value: "="}, tok.PeekAt(2))
	assert.Equal(t, first, tok.Current())

	for tok.HasMoreTokens() {
		tok.Advance()
	}
	assert.False(t, tok.HasMoreTokens())
	assert.Equal(t, jack.Token{}, tok.Peek())
}
