package extract

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func amountStrings(amounts []decimal.Decimal) []string {
	out := make([]string, len(amounts))
	for i, a := range amounts {
		out[i] = a.StringFixed(2)
	}
	return out
}

func TestAmounts_CommaAndDotAreEquivalent(t *testing.T) {
	comma := Amounts("Total TTC 123,45 EUR")
	dot := Amounts("Total TTC 123.45 EUR")

	require.Len(t, comma, 1)
	assert.Equal(t, []string{"123.45"}, amountStrings(comma))
	assert.Equal(t, amountStrings(dot), amountStrings(comma))
}

func TestAmounts_DeduplicatesAfterRounding(t *testing.T) {
	amounts := Amounts("Sous-total 45,90\nTVA 7,65\nTotal 45.90\nArrondi 45,899")

	assert.Equal(t, []string{"7.65", "45.90"}, amountStrings(amounts))
}

func TestAmounts_ThreeDigitFractionRoundsToCents(t *testing.T) {
	amounts := Amounts("prix unitaire 12,345")

	assert.Equal(t, []string{"12.35"}, amountStrings(amounts))
}

func TestAmounts_NoMatch(t *testing.T) {
	assert.Empty(t, Amounts("Facture n° 2024 sans montant"))
	assert.Empty(t, Amounts(""))
	assert.Empty(t, Amounts("montant 45,9"))
}

func TestAmounts_Idempotent(t *testing.T) {
	text := "Montant 10,00 puis 20.50 puis 10.00 et 3,141"

	first := Amounts(text)
	second := Amounts(text)

	assert.Equal(t, amountStrings(first), amountStrings(second))
	assert.Equal(t, []string{"3.14", "10.00", "20.50"}, amountStrings(first))
}

func TestAmounts_OrderIndependent(t *testing.T) {
	a := Amounts("1,50 2,50 3,50")
	b := Amounts("3,50 1,50 2,50")

	assert.Equal(t, amountStrings(a), amountStrings(b))
}

func TestParseAmount(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
		ok    bool
	}{
		{"negative comma", "-45,90", "-45.90", true},
		{"positive dot", "45.90", "45.90", true},
		{"explicit plus", "+12,00", "12.00", true},
		{"thousands space", "1 234,56", "1234.56", true},
		{"thousands dot", "1.234,56", "1234.56", true},
		{"thousands comma", "1,234.56", "1234.56", true},
		{"unicode minus", "−3,10", "-3.10", true},
		{"currency suffix", "45,90 €", "45.90", true},
		{"integer", "120", "120.00", true},
		{"empty", "", "", false},
		{"garbage", "abc", "", false},
		{"lone sign", "-", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseAmount(tt.input)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, got.StringFixed(2))
			}
		})
	}
}

func TestWithinTolerance(t *testing.T) {
	tol := decimal.RequireFromString("0.01")

	assert.True(t, WithinTolerance(decimal.RequireFromString("100.00"), decimal.RequireFromString("100.01"), tol))
	assert.True(t, WithinTolerance(decimal.RequireFromString("100.01"), decimal.RequireFromString("100.00"), tol))
	assert.False(t, WithinTolerance(decimal.RequireFromString("100.00"), decimal.RequireFromString("100.02"), tol))
}

func TestDateTokens(t *testing.T) {
	tokens := DateTokens("Emise le 01/03/2024, échéance 2024-03-31, ref 12-1-99")

	assert.Equal(t, []string{"01/03/2024", "2024-03-31", "12-1-99"}, tokens)
	assert.Equal(t, tokens, DateTokens("Emise le 01/03/2024, échéance 2024-03-31, ref 12-1-99"))
	assert.Empty(t, DateTokens("no dates here"))
}

func TestDateTokens_Idempotent(t *testing.T) {
	text := "Facture 15/02/2024 livrée 2024-02-18\nPaiement 18-2-24, avoir 99/99/9999"

	first := DateTokens(text)
	second := DateTokens(text)

	assert.Equal(t, first, second)
	assert.Equal(t, []string{"15/02/2024", "2024-02-18", "18-2-24", "99/99/9999"}, first)
	assert.Equal(t, first, DateTokens(strings.Join(first, " ")), "tokens re-extract to themselves")
}

func TestParseDate(t *testing.T) {
	tests := []struct {
		input string
		want  time.Time
		ok    bool
	}{
		{"2024-03-01", time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), true},
		{"01/03/2024", time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), true},
		{"01-03-2024", time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), true},
		{"05/03/24", time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC), true},
		{"5-3-24", time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC), true},
		{"31/02/2024", time.Time{}, false},
		{"13/13/2024", time.Time{}, false},
		{"2024/03/01", time.Time{}, false},
		{"March 1 2024", time.Time{}, false},
		{"", time.Time{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, ok := ParseDate(tt.input)
			assert.Equal(t, tt.ok, ok)
			assert.True(t, tt.want.Equal(got), "got %s", got)
		})
	}
}

func TestFirstDate_SkipsUnparsableTokens(t *testing.T) {
	d, ok := FirstDate("ref 99/99/9999 émise le 15/01/2024")

	require.True(t, ok)
	assert.Equal(t, time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC), d)

	_, ok = FirstDate("rien")
	assert.False(t, ok)
}
