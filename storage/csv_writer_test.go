package storage

import (
	"bytes"
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bkam-rates/models"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.True(t, bytes.HasPrefix(data, utf8BOM), "file must start with a UTF-8 BOM")

	records, err := csv.NewReader(bytes.NewReader(data[len(utf8BOM):])).ReadAll()
	require.NoError(t, err)
	return records
}

func TestCSVWriterSave(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "downloads")
	w := NewCSVWriter(dir)
	date := time.Date(2024, time.January, 15, 0, 0, 0, 0, time.UTC)

	table := &models.Table{
		Columns: []string{"Taux moyen pondéré", "Date de la valeur", "Date déchéance"},
		Rows: [][]string{
			{"2,936 %", "16/01/2024", "22/01/2024"},
			{"2,998 %", "16/01/2024", "15/04/2024"},
		},
	}

	path, err := w.Save(context.Background(), date, table)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "BKAM_Data_2024-01-15.csv"), path)

	records := readCSV(t, path)
	require.Len(t, records, 3)
	assert.Equal(t, table.Columns, records[0])
	assert.Equal(t, table.Rows[0], records[1])
	assert.Equal(t, table.Rows[1], records[2])
}

func TestCSVWriterOverwrites(t *testing.T) {
	w := NewCSVWriter(t.TempDir())
	date := time.Date(2024, time.January, 15, 0, 0, 0, 0, time.UTC)
	ctx := context.Background()

	first := &models.Table{Columns: []string{"A"}, Rows: [][]string{{"1"}, {"2"}, {"3"}}}
	second := &models.Table{Columns: []string{"A"}, Rows: [][]string{{"9"}}}

	_, err := w.Save(ctx, date, first)
	require.NoError(t, err)
	path, err := w.Save(ctx, date, second)
	require.NoError(t, err)

	records := readCSV(t, path)
	assert.Equal(t, [][]string{{"A"}, {"9"}}, records)
}

func TestCSVWriterQuotesFields(t *testing.T) {
	w := NewCSVWriter(t.TempDir())
	date := time.Date(2024, time.May, 2, 0, 0, 0, 0, time.UTC)

	table := &models.Table{Columns: []string{"Montant"}, Rows: [][]string{{"1,5"}, {`dit "x"`}}}
	path, err := w.Save(context.Background(), date, table)
	require.NoError(t, err)

	assert.Equal(t, [][]string{{"Montant"}, {"1,5"}, {`dit "x"`}}, readCSV(t, path))
}

func TestCSVWriterNilTable(t *testing.T) {
	w := NewCSVWriter(t.TempDir())
	_, err := w.Save(context.Background(), time.Now(), nil)
	assert.Error(t, err)
}

func TestCSVWriterIsSink(t *testing.T) {
	var sink TableSink = NewCSVWriter("out")
	assert.Equal(t, "csv", sink.Name())
}
