package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bkam-rates/failure"
	"bkam-rates/models"
)

func sampleTable() *models.Table {
	return &models.Table{
		Columns: []string{"Date d'échéance", "Transaction", "Taux moyen pondéré", "Date de la valeur"},
		Rows: [][]string{
			{"22/01/2024", "0,00", "2,936 %", "16/01/2024"},
			{"15/04/2024", "125 000 000,00", "2,998 %", "16/01/2024"},
		},
	}
}

func TestNormalize(t *testing.T) {
	in := sampleTable()

	out, err := Normalize(in)
	require.NoError(t, err)

	assert.Equal(t, []string{"Taux moyen pondéré", "Date de la valeur", RenamedMaturityColumn}, out.Columns)
	assert.NotContains(t, out.Columns, TransactionColumn)
	assert.NotContains(t, out.Columns, MaturityColumn)

	maturities, ok := out.Column(RenamedMaturityColumn)
	require.True(t, ok)
	assert.Equal(t, []string{"22/01/2024", "15/04/2024"}, maturities)

	for _, row := range out.Rows {
		assert.Len(t, row, len(out.Columns))
	}
}

func TestNormalizeDoesNotMutateInput(t *testing.T) {
	in := sampleTable()
	before := in.Clone()

	_, err := Normalize(in)
	require.NoError(t, err)
	assert.Equal(t, before, in)
}

func TestNormalizeToleratesTypographicHeaders(t *testing.T) {
	in := &models.Table{
		// typographic apostrophe and decomposed e + combining acute
		Columns: []string{"Date d\u2019e\u0301che\u0301ance", " Transaction ", "Taux"},
		Rows:    [][]string{{"01/02/2024", "10", "3,1 %"}},
	}

	out, err := Normalize(in)
	require.NoError(t, err)
	assert.Equal(t, []string{"Taux", RenamedMaturityColumn}, out.Columns)
	assert.Equal(t, [][]string{{"3,1 %", "01/02/2024"}}, out.Rows)
}

func TestNormalizeEmptyRows(t *testing.T) {
	in := &models.Table{Columns: []string{"Transaction", "Date d'échéance"}}

	out, err := Normalize(in)
	require.NoError(t, err)
	assert.Equal(t, []string{RenamedMaturityColumn}, out.Columns)
	assert.True(t, out.Empty())
}

func TestNormalizeMissingColumns(t *testing.T) {
	tests := []struct {
		name    string
		columns []string
	}{
		{"no maturity", []string{"Transaction", "Taux"}},
		{"no transaction", []string{"Date d'échéance", "Taux"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Normalize(&models.Table{Columns: tt.columns})
			require.Error(t, err)
			assert.Equal(t, failure.Unhandled, failure.KindOf(err))
		})
	}

	_, err := Normalize(nil)
	assert.Error(t, err)
}
