package bot

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bkam-rates/failure"
	"bkam-rates/models"
)

func TestFormatPreview(t *testing.T) {
	table := &models.Table{
		Columns: []string{"Taux", "Date déchéance"},
		Rows:    [][]string{{"2,936 %", "22/01/2024"}},
	}

	expected := "Taux    | Date déchéance\n" +
		"--------+---------------\n" +
		"2,936 % | 22/01/2024"
	assert.Equal(t, expected, formatPreview(table))
}

func TestFormatPreviewClipsLongCells(t *testing.T) {
	table := &models.Table{
		Columns: []string{"A"},
		Rows:    [][]string{{strings.Repeat("x", 40)}},
	}

	lines := strings.Split(formatPreview(table), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, strings.Repeat("x", maxCellWidth-1)+"…", lines[2])
}

func TestFormatPreviewEmpty(t *testing.T) {
	assert.Empty(t, formatPreview(nil))
	assert.Empty(t, formatPreview(&models.Table{}))
}

func TestFormatSuccess(t *testing.T) {
	result := &models.Result{
		Date:      time.Date(2024, 1, 16, 0, 0, 0, 0, time.UTC),
		Table:     &models.Table{Columns: []string{"A"}, Rows: [][]string{{"1"}, {"2"}}},
		Strategy:  "rod",
		Locations: map[string]string{"sheets": "https://docs.google.com/spreadsheets/d/x/edit#gid=1"},
	}

	text := formatSuccess(result)
	assert.Contains(t, text, "✅ <b>2</b> rows for 16/01/2024 (via rod)")
	assert.Contains(t, text, "📊 Spreadsheet: https://docs.google.com/spreadsheets/d/x/edit#gid=1")
}

func TestFormatFailure(t *testing.T) {
	tests := []struct {
		name     string
		result   *models.Result
		contains []string
	}{
		{
			name: "typed error",
			result: &models.Result{
				Date: time.Date(2024, 1, 13, 0, 0, 0, 0, time.UTC),
				Err:  failure.Newf(failure.NoTableFound, "extract table", "no <table> element in page"),
			},
			contains: []string{failureText, "Date: 13/01/2024", "Reason: <code>NoTableFound</code>"},
		},
		{
			name:     "untyped error",
			result:   &models.Result{Err: errors.New("boom")},
			contains: []string{failureText, "Reason: <code>Unhandled</code>"},
		},
		{
			name:     "no rows",
			result:   &models.Result{Table: &models.Table{Columns: []string{"A"}}},
			contains: []string{"Reason: <code>no data rows</code>"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			text := formatFailure(tt.result)
			for _, want := range tt.contains {
				assert.Contains(t, text, want)
			}
		})
	}
}

func TestPreBlocksEscapes(t *testing.T) {
	blocks := preBlocks("a < b & c")
	require.Len(t, blocks, 1)
	assert.Equal(t, "<pre>a &lt; b &amp; c</pre>", blocks[0])

	assert.Nil(t, preBlocks("  \n"))
}

func TestSplitMessage(t *testing.T) {
	tests := []struct {
		name   string
		text   string
		maxLen int
		parts  int
	}{
		{name: "short", text: "hello", maxLen: 10, parts: 1},
		{name: "lines", text: "aaaa\nbbbb\ncccc", maxLen: 10, parts: 2},
		{name: "long line", text: strings.Repeat("x", 25), maxLen: 10, parts: 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parts := splitMessage(tt.text, tt.maxLen)
			assert.Len(t, parts, tt.parts)
			for _, p := range parts {
				assert.LessOrEqual(t, len(p), tt.maxLen)
			}
		})
	}
}

func TestSplitMessageKeepsRunesWhole(t *testing.T) {
	text := strings.Repeat("é", 10) // 20 bytes
	for _, p := range splitMessage(text, 7) {
		assert.True(t, strings.ToValidUTF8(p, "?") == p, "part %q is not valid UTF-8", p)
	}
}
