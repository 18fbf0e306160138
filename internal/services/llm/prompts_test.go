package llm

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseServices(t *testing.T) {
	raw := `[
		{"item_code":"1.1","description":"Pavimentação em CBUQ","quantity":1200.5,"unit":"M2"},
		{"item_code":"","description":"Meio-fio de concreto","quantity":null,"unit":"M"},
		{"item_code":"2.1","description":"   ","quantity":10,"unit":"UN"}
	]`

	services, err := parseServices(raw)
	require.NoError(t, err)
	require.Len(t, services, 2)

	assert.Equal(t, "1.1", services[0].ItemCode)
	assert.InDelta(t, 1200.5, services[0].Qty(), 1e-9)
	assert.Nil(t, services[1].Quantity)
}

func TestParseServices_StripsMarkdownFence(t *testing.T) {
	raw := "```json\n[{\"description\":\"Drenagem pluvial\",\"quantity\":50,\"unit\":\"M\"}]\n```"
	services, err := parseServices(raw)
	require.NoError(t, err)
	require.Len(t, services, 1)
	assert.Equal(t, "Drenagem pluvial", services[0].Description)
}

func TestParseServices_SurroundingProse(t *testing.T) {
	raw := `Aqui está a lista extraída: [{"description":"Aterro compactado","quantity":300,"unit":"M3"}] Espero ter ajudado.`
	services, err := parseServices(raw)
	require.NoError(t, err)
	require.Len(t, services, 1)
}

func TestParseServices_NoArray(t *testing.T) {
	_, err := parseServices("não encontrei serviços no documento")
	assert.Error(t, err)
}

func TestParseRequirements_AllowSumDefaultsTrue(t *testing.T) {
	raw := `[
		{"code":"9.1.1","description":"Pavimentação asfáltica","required":5000,"unit":"M2"},
		{"code":"9.1.2","description":"Drenagem profunda","required":800,"unit":"M","allow_sum":false,"mandatory_terms":["TUBO DE CONCRETO"]},
		{"description":"Item sem quantidade","required":0,"unit":"UN"}
	]`

	reqs, err := parseRequirements(raw)
	require.NoError(t, err)
	require.Len(t, reqs, 2)

	assert.True(t, reqs[0].AllowSum)
	assert.False(t, reqs[1].AllowSum)
	assert.Equal(t, []string{"TUBO DE CONCRETO"}, reqs[1].MandatoryTerms)
}

func TestParseMetadata(t *testing.T) {
	raw := `{"issuer":"  Prefeitura Municipal de Campinas ","issue_date":"2024-08-15"}`
	meta, err := parseMetadata(raw)
	require.NoError(t, err)
	assert.Equal(t, "Prefeitura Municipal de Campinas", meta.Issuer)
	assert.Equal(t, "2024-08-15", meta.IssueDate)
}

func TestParseMetadata_StripsMarkdownFence(t *testing.T) {
	raw := "```json\n{\"issuer\":\"DER-SP\",\"issue_date\":\"\"}\n```"
	meta, err := parseMetadata(raw)
	require.NoError(t, err)
	assert.Equal(t, "DER-SP", meta.Issuer)
	assert.Empty(t, meta.IssueDate)
}

func TestParseMetadata_NoObject(t *testing.T) {
	_, err := parseMetadata("não identifiquei o emissor")
	assert.Error(t, err)
}

func TestRateLimitDetection(t *testing.T) {
	tests := []struct {
		msg  string
		want bool
	}{
		{"googleapi: Error 429: RESOURCE_EXHAUSTED", true},
		{"anthropic: rate_limit_error", true},
		{"quota exceeded for model", true},
		{"googleapi: Error 400: invalid argument", false},
		{"connection refused", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, isRateLimitError(errString(tt.msg)), tt.msg)
	}
}

func TestExtractRetryDelay(t *testing.T) {
	assert.Equal(t, 7*time.Second, extractRetryDelay(errString(`retryDelay: "7s"`)))
	assert.Equal(t, time.Duration(0), extractRetryDelay(errString("rate limit exceeded")))
}

func TestBackoffDelay_Capped(t *testing.T) {
	assert.Equal(t, 2*time.Second, backoffDelay(0))
	assert.Equal(t, 4*time.Second, backoffDelay(1))
	assert.Equal(t, maxRetryDelay, backoffDelay(10))
}

type errString string

func (e errString) Error() string { return string(e) }
