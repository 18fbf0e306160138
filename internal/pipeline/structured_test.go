package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/attesto/internal/interfaces"
)

func TestParseQuantity(t *testing.T) {
	tests := []struct {
		in   string
		want float64
		ok   bool
	}{
		{"1.234,56", 1234.56, true},
		{"1.200", 1200, true},
		{"1234.5", 1234.5, true},
		{"1,5", 1.5, true},
		{"1.234.567", 1234567, true},
		{"300", 300, true},
		{"  42  ", 42, true},
		{"", 0, false},
		{"abc", 0, false},
		{"12a", 0, false},
		{"M2", 0, false},
		{"1.2.3.4.5,0", 0, false}, // not a grouped number
	}
	for _, tt := range tests {
		got := ParseQuantity(tt.in)
		if !tt.ok {
			assert.Nil(t, got, "input %q", tt.in)
			continue
		}
		require.NotNil(t, got, "input %q", tt.in)
		assert.InDelta(t, tt.want, *got, 1e-9, "input %q", tt.in)
	}
}

func TestServicesFromTables_ColumnInference(t *testing.T) {
	tables := []interfaces.Table{{
		Headers: []string{"ITEM", "DESCRIÇÃO", "QTD", "UN"},
		Rows: [][]string{
			{"ITEM", "DESCRIÇÃO", "QTD", "UN"}, // repeated header row
			{"1.1", "Pavimentação asfáltica em CBUQ", "1.200,50", "M2"},
			{"1.2", "Meio-fio de concreto", "300", "M"},
			{"", "", "", ""},
		},
	}}

	services := ServicesFromTables(tables)
	require.Len(t, services, 2)

	assert.Equal(t, "1.1", services[0].ItemCode)
	assert.Equal(t, "Pavimentação asfáltica em CBUQ", services[0].Description)
	require.NotNil(t, services[0].Quantity)
	assert.InDelta(t, 1200.50, *services[0].Quantity, 1e-9)
	assert.Equal(t, "M2", services[0].Unit)

	assert.Equal(t, "1.2", services[1].ItemCode)
	require.NotNil(t, services[1].Quantity)
	assert.InDelta(t, 300, *services[1].Quantity, 1e-9)
	assert.Equal(t, "M", services[1].Unit)
}

func TestServicesFromTables_InlineItemCode(t *testing.T) {
	tables := []interfaces.Table{{
		Rows: [][]string{
			{"2.01.3 Escavação mecânica de valas", "450,00", "M3"},
		},
	}}

	services := ServicesFromTables(tables)
	require.Len(t, services, 1)
	assert.Equal(t, "2.01.3", services[0].ItemCode)
	assert.Equal(t, "Escavação mecânica de valas", services[0].Description)
	require.NotNil(t, services[0].Quantity)
	assert.InDelta(t, 450, *services[0].Quantity, 1e-9)
}

func TestServicesFromTables_RowWithoutDescription(t *testing.T) {
	tables := []interfaces.Table{{
		Rows: [][]string{
			{"100", "200", "300"},
		},
	}}
	assert.Empty(t, ServicesFromTables(tables))
}

func TestConcatText(t *testing.T) {
	pages := []interfaces.PageResult{
		{PageNumber: 1, Text: "first"},
		{PageNumber: 2, Text: "   "},
		{PageNumber: 3, Text: "third"},
	}
	assert.Equal(t, "first\n\nthird", ConcatText(pages))
	assert.Equal(t, "", ConcatText(nil))
}
