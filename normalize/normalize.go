// Package normalize applies the fixed column clean-up to an extracted rate table.
package normalize

import (
	"strings"

	"golang.org/x/text/unicode/norm"

	"bkam-rates/failure"
	"bkam-rates/models"
)

const (
	// MaturityColumn is the maturity date header as published
	MaturityColumn = "Date d'échéance"
	// RenamedMaturityColumn is the header the maturity values are exported under
	RenamedMaturityColumn = "Date déchéance"
	// TransactionColumn holds traded volumes, not exported
	TransactionColumn = "Transaction"
)

// Normalize copies the maturity column to RenamedMaturityColumn (appended as
// the last column) and drops TransactionColumn and MaturityColumn. The input
// table is left untouched.
func Normalize(t *models.Table) (*models.Table, error) {
	if t == nil {
		return nil, failure.Newf(failure.Unhandled, "normalize", "nil table")
	}

	maturityIdx := findColumn(t.Columns, MaturityColumn)
	if maturityIdx < 0 {
		return nil, failure.Newf(failure.Unhandled, "normalize", "column %q not found in %q", MaturityColumn, t.Columns)
	}
	transactionIdx := findColumn(t.Columns, TransactionColumn)
	if transactionIdx < 0 {
		return nil, failure.Newf(failure.Unhandled, "normalize", "column %q not found in %q", TransactionColumn, t.Columns)
	}

	drop := func(i int) bool { return i == maturityIdx || i == transactionIdx }

	out := &models.Table{}
	for i, c := range t.Columns {
		if !drop(i) {
			out.Columns = append(out.Columns, c)
		}
	}
	out.Columns = append(out.Columns, RenamedMaturityColumn)

	out.Rows = make([][]string, 0, len(t.Rows))
	for _, row := range t.Rows {
		next := make([]string, 0, len(out.Columns))
		for i, v := range row {
			if !drop(i) {
				next = append(next, v)
			}
		}
		next = append(next, row[maturityIdx])
		out.Rows = append(out.Rows, next)
	}

	return out, nil
}

// findColumn matches headers after Unicode and apostrophe folding, so that
// "Date d’échéance" written with a decomposed é or a typographic quote still matches.
func findColumn(columns []string, name string) int {
	want := fold(name)
	for i, c := range columns {
		if fold(c) == want {
			return i
		}
	}
	return -1
}

var apostrophes = strings.NewReplacer("’", "'", "‘", "'", "ʼ", "'", "´", "'")

func fold(s string) string {
	return strings.TrimSpace(apostrophes.Replace(norm.NFC.String(s)))
}
