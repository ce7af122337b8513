package bot

import (
	"fmt"
	"html"
	"strings"

	"github.com/mattn/go-runewidth"

	"bkam-rates/failure"
	"bkam-rates/models"
	"bkam-rates/source"
)

const (
	// Telegram rejects messages over 4096 characters; leave room for markup
	maxMessageLen = 3500
	// Longest cell shown in a preview before truncation
	maxCellWidth = 24
)

const helpText = "Commands:\n" +
	"/start - Start the bot\n" +
	"/help - Show this help\n" +
	"/fetch dd/mm/yyyy - Fetch the reference rates for a date (dd/mm/yyyy or yyyy-mm-dd)\n" +
	"/today - Fetch today's reference rates\n" +
	"/log - Show the end of the run log\n\n" +
	"You can also just send a date such as 16/01/2024."

const welcomeText = "Welcome! Send me a date (dd/mm/yyyy) and I will fetch the Bank Al-Maghrib treasury reference rates for it as a CSV file."

const failureText = "Failed to retrieve data. Check the log file for details."

// formatPreview renders the table as aligned monospace text. Widths are
// measured in terminal cells so accented headers line up.
func formatPreview(table *models.Table) string {
	if table == nil || len(table.Columns) == 0 {
		return ""
	}

	widths := make([]int, len(table.Columns))
	measure := func(i int, s string) {
		if w := runewidth.StringWidth(clip(s)); w > widths[i] {
			widths[i] = w
		}
	}
	for i, c := range table.Columns {
		measure(i, c)
	}
	for _, row := range table.Rows {
		for i, v := range row {
			if i < len(widths) {
				measure(i, v)
			}
		}
	}

	var sb strings.Builder
	writeRow := func(values []string) {
		cells := make([]string, len(widths))
		for i := range widths {
			v := ""
			if i < len(values) {
				v = clip(values[i])
			}
			cells[i] = runewidth.FillRight(v, widths[i])
		}
		sb.WriteString(strings.TrimRight(strings.Join(cells, " | "), " "))
		sb.WriteString("\n")
	}

	writeRow(table.Columns)
	sep := make([]string, len(widths))
	for i, w := range widths {
		sep[i] = strings.Repeat("-", w)
	}
	sb.WriteString(strings.Join(sep, "-+-"))
	sb.WriteString("\n")
	for _, row := range table.Rows {
		writeRow(row)
	}

	return strings.TrimRight(sb.String(), "\n")
}

func clip(s string) string {
	return runewidth.Truncate(s, maxCellWidth, "…")
}

// formatSuccess is the headline sent before the preview and the file
func formatSuccess(result *models.Result) string {
	text := fmt.Sprintf("✅ <b>%d</b> rows for %s", result.Table.Len(), result.Date.Format(source.SiteDateLayout))
	if result.Strategy != "" {
		text += fmt.Sprintf(" (via %s)", html.EscapeString(result.Strategy))
	}
	if loc, ok := result.Locations["sheets"]; ok {
		text += fmt.Sprintf("\n📊 Spreadsheet: %s", html.EscapeString(loc))
	}
	return text
}

// formatFailure names the failure kind, when known, in front of the usual notice
func formatFailure(result *models.Result) string {
	var sb strings.Builder
	sb.WriteString("❌ ")
	sb.WriteString(failureText)

	if result != nil {
		if !result.Date.IsZero() {
			fmt.Fprintf(&sb, "\nDate: %s", result.Date.Format(source.SiteDateLayout))
		}
		if result.Err != nil {
			fmt.Fprintf(&sb, "\nReason: <code>%s</code>", html.EscapeString(string(failure.KindOf(result.Err))))
		} else if result.Empty() {
			sb.WriteString("\nReason: <code>no data rows</code>")
		}
	}

	return sb.String()
}

// preBlocks wraps text in <pre> blocks that each fit in one message
func preBlocks(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	var blocks []string
	for _, part := range splitMessage(text, maxMessageLen) {
		blocks = append(blocks, "<pre>"+html.EscapeString(strings.TrimRight(part, "\n"))+"</pre>")
	}
	return blocks
}

// splitMessage splits a message into chunks of specified size
func splitMessage(text string, maxLen int) []string {
	if len(text) <= maxLen {
		return []string{text}
	}

	var parts []string
	lines := strings.Split(text, "\n")
	var current strings.Builder

	for _, line := range lines {
		if current.Len()+len(line)+1 > maxLen {
			if current.Len() > 0 {
				parts = append(parts, current.String())
				current.Reset()
			}
			// If a single line is too long, split it
			if len(line) > maxLen {
				for len(line) > maxLen {
					cut := runeBoundary(line, maxLen)
					parts = append(parts, line[:cut])
					line = line[cut:]
				}
				if len(line) > 0 {
					current.WriteString(line)
					current.WriteString("\n")
				}
			} else {
				current.WriteString(line)
				current.WriteString("\n")
			}
		} else {
			current.WriteString(line)
			current.WriteString("\n")
		}
	}

	if current.Len() > 0 {
		parts = append(parts, current.String())
	}

	return parts
}

// runeBoundary backs n off to the start of a UTF-8 sequence
func runeBoundary(s string, n int) int {
	for n > 0 && n < len(s) && s[n]&0xC0 == 0x80 {
		n--
	}
	return n
}
