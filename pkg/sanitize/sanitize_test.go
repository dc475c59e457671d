package sanitize

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSymbol(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
		ok    bool
	}{
		{"plain", "BTCUSDT", "BTCUSDT", true},
		{"lower case folded", "btcusdt", "BTCUSDT", true},
		{"strips punctuation", "btc-usdt!", "BTCUSDT", true},
		{"strips spaces", " eth usdt ", "ETHUSDT", true},
		{"digits kept", "1000PEPEUSDT", "1000PEPEUSDT", true},
		{"empty input", "", "", false},
		{"only punctuation", "$@!-", "", false},
		{"over length", strings.Repeat("A", MaxSymbolLength+1), "", false},
		{"non-ascii stripped", "BTC™USDT", "BTCUSDT", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Symbol(tt.input)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSymbolIdempotent(t *testing.T) {
	inputs := []string{"btc-usdt", "ETHUSDT", "sol/usdt", "1000pepeusdt"}

	for _, in := range inputs {
		once, ok := Symbol(in)
		require.True(t, ok)
		twice, ok := Symbol(once)
		require.True(t, ok)
		assert.Equal(t, once, twice)
	}
}

func TestSymbols(t *testing.T) {
	got := Symbols([]string{"btcusdt", "BTC-USDT", "", "ethusdt", "!!"})
	assert.Equal(t, []string{"BTCUSDT", "ETHUSDT"}, got)
}

func TestNumber(t *testing.T) {
	n, ok := Number("1,500.5", 0, 10000)
	require.True(t, ok)
	assert.Equal(t, 1500.5, n)

	_, ok = Number("NaN", 0, 1)
	assert.False(t, ok)

	_, ok = Number("Inf", 0, 1)
	assert.False(t, ok)

	_, ok = Number("5", 10, 100)
	assert.False(t, ok)

	_, ok = Number("abc", 0, 1)
	assert.False(t, ok)
}

func TestInteger(t *testing.T) {
	n, ok := Integer(" 30 ", 1, 200)
	require.True(t, ok)
	assert.Equal(t, 30, n)

	_, ok = Integer("0", 1, 200)
	assert.False(t, ok)

	_, ok = Integer("2.5", 1, 200)
	assert.False(t, ok)
}
