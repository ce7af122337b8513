package parser

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"bkam-rates/failure"
	"bkam-rates/models"
)

// SummaryLabel marks the summary row at the bottom of the rate table
const SummaryLabel = "Total"

// Parser extracts the rate table from page markup
type Parser struct{}

// NewParser creates a new Parser instance
func NewParser() *Parser {
	return &Parser{}
}

// ExtractTable is a shortcut for NewParser().ExtractTable(html)
func ExtractTable(html string) (*models.Table, error) {
	return NewParser().ExtractTable(html)
}

// ExtractTable reads the first <table> of the page. The header comes from
// its th cells (or the first row when there are none); every following row
// with td cells becomes a data row, except summary rows.
func (p *Parser) ExtractTable(htmlContent string) (*models.Table, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlContent))
	if err != nil {
		return nil, failure.New(failure.Unhandled, "parse html", err)
	}

	table := doc.Find("table").First()
	if table.Length() == 0 {
		return nil, failure.Newf(failure.NoTableFound, "extract table", "no <table> element in page")
	}

	headers := cellTexts(table.Find("th"))
	rows := table.Find("tr")

	start := 1
	if len(headers) == 0 {
		// No th cells: the first row carries the column names
		headers = cellTexts(rows.First().Find("td"))
	}
	if len(headers) == 0 {
		return nil, failure.Newf(failure.NoTableFound, "extract table", "table has no header cells")
	}

	result := models.NewTable(headers...)

	var malformed error
	rows.Slice(start, goquery.ToEnd).EachWithBreak(func(i int, tr *goquery.Selection) bool {
		values := cellTexts(tr.Find("td"))
		if len(values) == 0 {
			return true
		}
		if isSummaryRow(values) {
			return true
		}
		if len(values) != len(headers) {
			malformed = fmt.Errorf("row %d has %d fields, header has %d", i+start, len(values), len(headers))
			return false
		}
		result.Rows = append(result.Rows, values)
		return true
	})
	if malformed != nil {
		return nil, failure.New(failure.Unhandled, "extract table", malformed)
	}

	return result, nil
}

// cellTexts returns the trimmed text of every cell in the selection
func cellTexts(cells *goquery.Selection) []string {
	var values []string
	cells.Each(func(_ int, cell *goquery.Selection) {
		values = append(values, strings.TrimSpace(cell.Text()))
	})
	return values
}

func isSummaryRow(values []string) bool {
	for _, v := range values {
		if v == SummaryLabel {
			return true
		}
	}
	return false
}
