package parser

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bkam-rates/failure"
)

func loadFixture(t *testing.T, name string) string {
	t.Helper()
	data, err := os.ReadFile("testdata/" + name)
	require.NoError(t, err)
	return string(data)
}

func TestExtractTableFixture(t *testing.T) {
	table, err := ExtractTable(loadFixture(t, "bkam_rates.html"))
	require.NoError(t, err)

	assert.Equal(t, []string{"Date d'échéance", "Transaction", "Taux moyen pondéré", "Date de la valeur"}, table.Columns)
	require.Equal(t, 2, table.Len())
	assert.Equal(t, []string{"22/01/2024", "0,00", "2,936 %", "16/01/2024"}, table.Rows[0])
	assert.Equal(t, []string{"15/04/2024", "125 000 000,00", "2,998 %", "16/01/2024"}, table.Rows[1])
}

func TestExtractTableSkipsSummaryRows(t *testing.T) {
	tests := []struct {
		name     string
		html     string
		wantRows int
	}{
		{
			name: "total in first cell",
			html: `<table><tr><th>A</th><th>B</th></tr>
				<tr><td>1</td><td>2</td></tr>
				<tr><td>Total</td><td>2</td></tr></table>`,
			wantRows: 1,
		},
		{
			name: "total in last cell",
			html: `<table><tr><th>A</th><th>B</th></tr>
				<tr><td>1</td><td>Total</td></tr>
				<tr><td>3</td><td>4</td></tr></table>`,
			wantRows: 1,
		},
		{
			name: "total with narrower row",
			html: `<table><tr><th>A</th><th>B</th><th>C</th></tr>
				<tr><td>1</td><td>2</td><td>3</td></tr>
				<tr><td colspan="2">Total</td><td>3</td></tr></table>`,
			wantRows: 1,
		},
		{
			name: "word containing total is kept",
			html: `<table><tr><th>A</th></tr>
				<tr><td>Subtotal</td></tr>
				<tr><td>Total general</td></tr></table>`,
			wantRows: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			table, err := ExtractTable(tt.html)
			require.NoError(t, err)
			assert.Equal(t, tt.wantRows, table.Len())
			for _, row := range table.Rows {
				assert.NotContains(t, row, SummaryLabel)
			}
		})
	}
}

func TestExtractTableNoTable(t *testing.T) {
	_, err := ExtractTable(`<html><body><p>Aucune donnée disponible</p></body></html>`)
	require.Error(t, err)
	assert.Equal(t, failure.NoTableFound, failure.KindOf(err))

	_, err = ExtractTable("")
	assert.Equal(t, failure.NoTableFound, failure.KindOf(err))
}

func TestExtractTableHeaderFromFirstRow(t *testing.T) {
	table, err := ExtractTable(`<table>
		<tr><td>Col 1</td><td>Col 2</td></tr>
		<tr><td>a</td><td>b</td></tr></table>`)
	require.NoError(t, err)

	assert.Equal(t, []string{"Col 1", "Col 2"}, table.Columns)
	assert.Equal(t, [][]string{{"a", "b"}}, table.Rows)
}

func TestExtractTableSkipsRowsWithoutCells(t *testing.T) {
	table, err := ExtractTable(`<table>
		<tr><th>A</th><th>B</th></tr>
		<tr></tr>
		<tr><td>1</td><td>2</td></tr></table>`)
	require.NoError(t, err)
	assert.Equal(t, 1, table.Len())
}

func TestExtractTableMalformedRow(t *testing.T) {
	_, err := ExtractTable(`<table>
		<tr><th>A</th><th>B</th></tr>
		<tr><td>1</td></tr></table>`)
	require.Error(t, err)
	assert.Equal(t, failure.Unhandled, failure.KindOf(err))
}

func TestExtractTableHeaderOnly(t *testing.T) {
	table, err := ExtractTable(`<table><tr><th>A</th></tr></table>`)
	require.NoError(t, err)
	assert.True(t, table.Empty())
	assert.Equal(t, []string{"A"}, table.Columns)
}
