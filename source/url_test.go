package source

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bkam-rates/failure"
)

func TestBuildURL(t *testing.T) {
	date := time.Date(2024, time.January, 5, 0, 0, 0, 0, time.UTC)

	got := BuildURL(date)

	want := DefaultBaseURL +
		"?date=05%2F01%2F2024&block=e1d6b9bbf87f86f8ba53e8518e882982" +
		"#address-c3367fcefc5f524397748201aee5dab8-e1d6b9bbf87f86f8ba53e8518e882982"
	assert.Equal(t, want, got)
}

func TestBuildURLEmbedsDate(t *testing.T) {
	dates := []time.Time{
		time.Date(2023, time.December, 31, 0, 0, 0, 0, time.UTC),
		time.Date(2024, time.February, 29, 0, 0, 0, 0, time.UTC),
		time.Date(2025, time.July, 1, 15, 4, 5, 0, time.UTC),
	}

	for _, d := range dates {
		t.Run(d.Format(ISODateLayout), func(t *testing.T) {
			got := BuildURL(d)
			want := "date=" + strings.ReplaceAll(d.Format("02/01/2006"), "/", "%2F") + "&"
			assert.Contains(t, got, want)
		})
	}
}

func TestBuilderOverrides(t *testing.T) {
	b := Builder{BaseURL: "http://127.0.0.1:8080/rates?lang=fr", Block: "blk", Address: "addr"}

	got := b.Build(time.Date(2024, time.March, 15, 0, 0, 0, 0, time.UTC))

	assert.Equal(t, "http://127.0.0.1:8080/rates?lang=fr&date=15%2F03%2F2024&block=blk#address-addr-blk", got)
}

func TestParseDate(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    time.Time
		wantErr bool
	}{
		{"site format", "15/01/2024", time.Date(2024, time.January, 15, 0, 0, 0, 0, time.UTC), false},
		{"iso format", "2024-01-15", time.Date(2024, time.January, 15, 0, 0, 0, 0, time.UTC), false},
		{"surrounding spaces", "  01/02/2024 ", time.Date(2024, time.February, 1, 0, 0, 0, 0, time.UTC), false},
		{"empty", "", time.Time{}, true},
		{"impossible day", "31/02/2024", time.Time{}, true},
		{"us format", "01-15-2024", time.Time{}, true},
		{"garbage", "yesterday", time.Time{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseDate(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, failure.InvalidInput, failure.KindOf(err))
				return
			}
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "got %v, want %v", got, tt.want)
		})
	}
}

func TestBuildURLFromString(t *testing.T) {
	got, err := BuildURLFromString("2024-01-15")
	require.NoError(t, err)
	assert.Contains(t, got, "date=15%2F01%2F2024")

	_, err = BuildURLFromString("15.01.2024")
	assert.True(t, failure.Is(err, failure.InvalidInput))
}

func TestFileName(t *testing.T) {
	assert.Equal(t, "BKAM_Data_2024-01-15.csv", FileName(time.Date(2024, time.January, 15, 9, 0, 0, 0, time.UTC)))
}

func TestDateRange(t *testing.T) {
	// 2024-01-05 is a Friday
	from := time.Date(2024, time.January, 5, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, time.January, 9, 0, 0, 0, 0, time.UTC)

	all, err := DateRange(from, to, false)
	require.NoError(t, err)
	assert.Len(t, all, 5)

	weekdays, err := DateRange(from, to, true)
	require.NoError(t, err)
	require.Len(t, weekdays, 3)
	assert.Equal(t, "2024-01-05", weekdays[0].Format(ISODateLayout))
	assert.Equal(t, "2024-01-08", weekdays[1].Format(ISODateLayout))
	assert.Equal(t, "2024-01-09", weekdays[2].Format(ISODateLayout))

	_, err = DateRange(to, from, false)
	assert.True(t, failure.Is(err, failure.InvalidInput))
}
