// Package source knows how the BKAM reference-rate page is addressed:
// the date-parameterized URL, the accepted date formats and the output file name.
package source

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"bkam-rates/failure"
)

const (
	// DefaultBaseURL is the secondary-market treasury bill reference-rate page
	DefaultBaseURL = "https://www.bkam.ma/Marches/Principaux-indicateurs/Marche-obligataire/Marche-des-bons-de-tresor/Marche-secondaire/Taux-de-reference-des-bons-du-tresor"
	// DefaultBlock selects the rate table block on the page
	DefaultBlock = "e1d6b9bbf87f86f8ba53e8518e882982"
	// DefaultAddress is the anchor prefix of the block
	DefaultAddress = "c3367fcefc5f524397748201aee5dab8"

	// SiteDateLayout is the format the site expects in the date parameter
	SiteDateLayout = "02/01/2006"
	// ISODateLayout is used for file names and accepted on input
	ISODateLayout = "2006-01-02"
)

// Builder builds page URLs. The zero value uses the production defaults.
type Builder struct {
	BaseURL string
	Block   string
	Address string
}

// Build returns the fully qualified page URL for date
func (b Builder) Build(date time.Time) string {
	base := b.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}
	block := b.Block
	if block == "" {
		block = DefaultBlock
	}
	address := b.Address
	if address == "" {
		address = DefaultAddress
	}

	// url.Values.Encode sorts keys; the site's links put date first, so build by hand.
	encoded := url.QueryEscape(date.Format(SiteDateLayout))

	var sb strings.Builder
	sb.WriteString(base)
	if strings.Contains(base, "?") {
		sb.WriteString("&")
	} else {
		sb.WriteString("?")
	}
	fmt.Fprintf(&sb, "date=%s&block=%s#address-%s-%s", encoded, block, address, block)
	return sb.String()
}

// BuildURL returns the production page URL for date
func BuildURL(date time.Time) string {
	return Builder{}.Build(date)
}

// BuildURLFromString parses s with ParseDate and builds the production URL
func BuildURLFromString(s string) (string, error) {
	date, err := ParseDate(s)
	if err != nil {
		return "", err
	}
	return BuildURL(date), nil
}

// ParseDate accepts dd/mm/yyyy (site format) or yyyy-mm-dd
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, failure.Newf(failure.InvalidInput, "parse date", "empty date")
	}

	for _, layout := range []string{SiteDateLayout, ISODateLayout} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}

	return time.Time{}, failure.Newf(failure.InvalidInput, "parse date",
		"%q is not a valid date (expected dd/mm/yyyy or yyyy-mm-dd)", s)
}

// FileName is the CSV file name for date
func FileName(date time.Time) string {
	return fmt.Sprintf("BKAM_Data_%s.csv", date.Format(ISODateLayout))
}

// DateRange returns every date from from to to inclusive, optionally without
// Saturdays and Sundays, when no rates are published.
func DateRange(from, to time.Time, skipWeekends bool) ([]time.Time, error) {
	from = truncateDay(from)
	to = truncateDay(to)
	if to.Before(from) {
		return nil, failure.Newf(failure.InvalidInput, "date range",
			"end %s is before start %s", to.Format(ISODateLayout), from.Format(ISODateLayout))
	}

	var dates []time.Time
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		if skipWeekends && (d.Weekday() == time.Saturday || d.Weekday() == time.Sunday) {
			continue
		}
		dates = append(dates, d)
	}
	return dates, nil
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
