package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDescription_Canonical(t *testing.T) {
	assert.Equal(t,
		"PAVIMENTACAO ASFALTICA, CBUQ",
		Description("Pavimentação asfáltica; CBUQ"))

	assert.Equal(t,
		"EXECUCAO DE GUIA DE CONCRETO",
		Description("  Execução   de guia  de concreto.  "))
}

func TestDescription_DigitConfusions(t *testing.T) {
	// Confusions are repaired only inside numeric runs.
	assert.Equal(t, "TUBO DN 100", Description("TUBO DN 1OO"))
	assert.Equal(t, "CAMADA 150 MM", Description("CAMADA 15O MM"))
	// A plain word is untouched.
	assert.Equal(t, "OLEO DIESEL", Description("Óleo Diesel"))
}

func TestExtractItemCode(t *testing.T) {
	cases := []struct {
		in   string
		code string
		rest string
	}{
		{"1.1 Pavimento asfaltico", "1.1", "Pavimento asfaltico"},
		{"1.2.3.4 Meio fio", "1.2.3.4", "Meio fio"},
		{"S1-2.01 Drenagem", "S1-2.01", "Drenagem"},
		{"AD2-1.4 Aterro", "AD2-1.4", "Aterro"},
		{"4 01 2 Escavacao de vala", "4.01.2", "Escavacao de vala"},
		{"Guia de concreto", "", "Guia de concreto"},
	}
	for _, tc := range cases {
		code, rest := ExtractItemCode(tc.in)
		assert.Equal(t, tc.code, code, "code for %q", tc.in)
		assert.Equal(t, tc.rest, rest, "rest for %q", tc.in)
	}
}

func TestExtractItemCode_RoundTrip(t *testing.T) {
	in := "1.2  Concrete   curb"
	code, rest := ExtractItemCode(in)
	assert.Equal(t, CollapseWhitespace(in), code+" "+rest)
}

func TestKeywords(t *testing.T) {
	kw := Keywords("Pavimentação asfáltica em CBUQ com 5 cm de espessura")
	assert.True(t, kw["PAVIMENTACAO"])
	assert.True(t, kw["ASFALTICA"])
	assert.True(t, kw["CBUQ"])
	assert.False(t, kw["EM"], "stopwords dropped")
	assert.False(t, kw["DE"], "stopwords dropped")
	assert.False(t, kw["5"], "single-char tokens dropped")
}

func TestSimilarity_AsymmetricDenominator(t *testing.T) {
	long := "Execução de pavimentação asfáltica em CBUQ incluindo imprimação e pintura de ligação"
	short := "pavimentação asfáltica"

	score := Similarity(long, short)
	assert.Greater(t, score, 0.0)
	// Denominator is the larger bag: a short subset cannot reach 1.0.
	assert.Less(t, score, 0.5)
	assert.InDelta(t, 1.0, Similarity(short, short), 1e-9)
}

func TestSimilarity_EmptySets(t *testing.T) {
	assert.Zero(t, Similarity("", "pavimentação"))
	assert.Zero(t, Similarity("de em com", "pavimentação"))
}
