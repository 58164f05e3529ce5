package basm

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTokenizerBasic(t *testing.T) {
	tz := NewTokenizer(`foo + 12 - 0x1F * "hi" 'a'`)

	var kinds []TokenKind
	for {
		tok, err := tz.Next()
		require.NoError(t, err)
		kinds = append(kinds, tok.Kind)
		if tok.Kind == TokEOF {
			break
		}
	}

	require.Equal(t, []TokenKind{
		TokIdent, TokPlus, TokInt, TokMinus, TokInt, TokStar, TokString, TokChar, TokEOF,
	}, kinds)
}

func TestTokenizerPeekDoesNotConsume(t *testing.T) {
	tz := NewTokenizer("a b")
	first, err := tz.Peek()
	require.NoError(t, err)
	require.Equal(t, TokIdent, first.Kind)
	require.Equal(t, "a", first.Text)

	again, err := tz.Peek()
	require.NoError(t, err)
	require.Equal(t, first, again)

	consumed, err := tz.Next()
	require.NoError(t, err)
	require.Equal(t, first, consumed)
}

func TestTokenizerStringEscapes(t *testing.T) {
	tz := NewTokenizer(`"hello\nworld"`)
	tok, err := tz.Next()
	require.NoError(t, err)
	require.Equal(t, TokString, tok.Kind)
	require.Equal(t, "hello\nworld", tok.Text)
}
