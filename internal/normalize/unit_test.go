package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUnit_Corrections(t *testing.T) {
	cases := map[string]string{
		"m²":      "M2",
		"M^2":     "M2",
		"M?":      "M2",
		"M°":      "M2",
		"m³":      "M3",
		"M23":     "M2",
		"M22":     "M2",
		"M32":     "M3",
		"M33":     "M3",
		"uni":     "UN",
		"UND":     "UN",
		"Unidade": "UN",
		"metro":   "M",
		"METROS":  "M",
		"kgs":     "KG",
		"LT":      "L",
		"ton":     "T",
		"MOS":     "MES",
		" un ":    "UN",
		"KG":      "KG",
	}
	for raw, want := range cases {
		assert.Equal(t, want, Unit(raw), "Unit(%q)", raw)
	}
}

func TestUnit_RepeatedLetterArtifacts(t *testing.T) {
	assert.Equal(t, "TON1", Unit("TONN1"))
	assert.Equal(t, "M", Unit("MM"))
	assert.Equal(t, "UN", Unit("UN")) // exempt from NN collapse
	assert.Equal(t, "UN", Unit("UUN"))
}

func TestUnit_Subscripts(t *testing.T) {
	assert.Equal(t, "M2", Unit("M₂"))
	assert.Equal(t, "H2O", Unit("H₂O"))
}

func TestUnit_Idempotent(t *testing.T) {
	for _, raw := range []string{"m²", "METROS", "uni", "KGS", "M23", "xyz", ""} {
		once := Unit(raw)
		assert.Equal(t, once, Unit(once), "Unit not idempotent for %q", raw)
	}
}

func TestValidUnit(t *testing.T) {
	assert.True(t, ValidUnit("M2"))
	assert.True(t, ValidUnit("MES"))
	assert.True(t, ValidUnit("XYZ"), "short unknown codes are permitted")
	assert.False(t, ValidUnit(""))
	assert.False(t, ValidUnit("METROSQ"), "tokens longer than 5 are rejected")
	assert.False(t, ValidUnit("ABCD"), "unknown 4-char token rejected")
}
