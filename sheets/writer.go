package sheets

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"bkam-rates/models"
	"bkam-rates/source"
)

// SheetPrefix starts the name of every tab written by the sink
const SheetPrefix = "BKAM_"

// Writer saves rate tables to a Google spreadsheet, one tab per date
type Writer struct {
	service       *sheets.Service
	spreadsheetID string
	source        source.Builder
	log           *zap.Logger
}

// NewWriter creates a new Google Sheets writer. Credentials are read from
// credentialsPath, or from the GOOGLE_SHEETS_CREDENTIALS environment variable
// when the path is empty.
func NewWriter(ctx context.Context, spreadsheetURL, credentialsPath string, log *zap.Logger) (*Writer, error) {
	spreadsheetID := ExtractSpreadsheetID(spreadsheetURL)
	if spreadsheetID == "" {
		// A bare ID is accepted as well
		spreadsheetID = strings.TrimSpace(spreadsheetURL)
	}
	if spreadsheetID == "" {
		return nil, fmt.Errorf("spreadsheet URL is empty")
	}

	credsJSON, err := readCredentials(credentialsPath)
	if err != nil {
		return nil, err
	}

	return NewWriterWithOptions(ctx, spreadsheetID, log, option.WithCredentialsJSON(credsJSON))
}

// NewWriterWithOptions creates a writer with explicit client options
func NewWriterWithOptions(ctx context.Context, spreadsheetID string, log *zap.Logger, opts ...option.ClientOption) (*Writer, error) {
	if log == nil {
		log = zap.NewNop()
	}

	service, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheets service: %w", err)
	}

	return &Writer{
		service:       service,
		spreadsheetID: spreadsheetID,
		log:           log,
	}, nil
}

// WithSource sets the URL builder used for the metadata row
func (w *Writer) WithSource(b source.Builder) *Writer {
	w.source = b
	return w
}

func readCredentials(credentialsPath string) ([]byte, error) {
	var credsJSON []byte

	if credentialsPath != "" {
		data, err := os.ReadFile(credentialsPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read credentials file: %w", err)
		}
		credsJSON = data
	} else {
		// Trim whitespace and newlines that might be in the environment variable
		credsEnv := strings.TrimSpace(os.Getenv("GOOGLE_SHEETS_CREDENTIALS"))
		if credsEnv == "" {
			return nil, fmt.Errorf("credentials not found: GOOGLE_SHEETS_CREDENTIALS environment variable is empty or not set")
		}
		credsJSON = []byte(credsEnv)
	}

	var creds map[string]interface{}
	if err := json.Unmarshal(credsJSON, &creds); err != nil {
		return nil, fmt.Errorf("invalid credentials JSON (check if JSON is properly formatted): %w", err)
	}

	if creds["type"] != "service_account" {
		return nil, fmt.Errorf("credentials must be a service account JSON file (type: service_account), got type: %v", creds["type"])
	}

	return credsJSON, nil
}

// Name implements storage.TableSink
func (w *Writer) Name() string {
	return "sheets"
}

// Save implements storage.TableSink. It writes the table to the BKAM_<date>
// tab and returns a link to it.
func (w *Writer) Save(ctx context.Context, date time.Time, table *models.Table) (string, error) {
	name := SheetName(date)
	sheetID, err := w.WriteTable(ctx, name, table, w.source.Build(date))
	if err != nil {
		return "", err
	}
	return SheetURL(w.spreadsheetID, sheetID), nil
}

// WriteTable writes url, the header and the rows to the named tab. The tab is
// created at index 0 if missing, otherwise its contents are replaced.
func (w *Writer) WriteTable(ctx context.Context, sheetName string, table *models.Table, url string) (int64, error) {
	if table == nil {
		return 0, fmt.Errorf("sheets: nil table")
	}

	sheetName = sanitizeSheetName(sheetName)
	if len(sheetName) > 100 {
		sheetName = sheetName[:100]
	}

	sheetID, found, err := w.findSheet(ctx, sheetName)
	if err != nil {
		return 0, err
	}

	if found {
		_, err := w.service.Spreadsheets.Values.Clear(w.spreadsheetID, sheetName, &sheets.ClearValuesRequest{}).
			Context(ctx).
			Do()
		if err != nil {
			w.log.Sugar().Warnf("Failed to clear sheet '%s': %v", sheetName, err)
		}
	} else {
		sheetID, err = w.addSheet(ctx, sheetName)
		if err != nil {
			return 0, err
		}
	}

	valueRange := &sheets.ValueRange{
		Values: tableValues(table, url),
	}

	_, err = w.service.Spreadsheets.Values.Update(w.spreadsheetID, sheetName+"!A1", valueRange).
		ValueInputOption("RAW").
		Context(ctx).
		Do()
	if err != nil {
		return 0, fmt.Errorf("failed to write to sheet: %w", err)
	}

	w.log.Sugar().Debugf("Wrote %d rows to sheet '%s'", table.Len(), sheetName)
	return sheetID, nil
}

func (w *Writer) findSheet(ctx context.Context, sheetName string) (int64, bool, error) {
	spreadsheet, err := w.service.Spreadsheets.Get(w.spreadsheetID).
		Fields("sheets.properties").
		Context(ctx).
		Do()
	if err != nil {
		return 0, false, fmt.Errorf("failed to read spreadsheet: %w", err)
	}

	for _, s := range spreadsheet.Sheets {
		if s.Properties != nil && s.Properties.Title == sheetName {
			return s.Properties.SheetId, true, nil
		}
	}
	return 0, false, nil
}

func (w *Writer) addSheet(ctx context.Context, sheetName string) (int64, error) {
	batchUpdateRequest := &sheets.BatchUpdateSpreadsheetRequest{
		Requests: []*sheets.Request{
			{
				AddSheet: &sheets.AddSheetRequest{
					Properties: &sheets.SheetProperties{
						Title: sheetName,
						Index: 0,
					},
				},
			},
		},
	}

	resp, err := w.service.Spreadsheets.BatchUpdate(w.spreadsheetID, batchUpdateRequest).
		Context(ctx).
		Do()
	if err != nil {
		return 0, fmt.Errorf("failed to create sheet: %w", err)
	}

	var sheetID int64
	if len(resp.Replies) > 0 && resp.Replies[0].AddSheet != nil {
		sheetID = resp.Replies[0].AddSheet.Properties.SheetId
	}

	w.log.Sugar().Infof("Created sheet '%s' with ID %d", sheetName, sheetID)
	return sheetID, nil
}

// tableValues lays out the metadata row (when url is set), the header and the rows
func tableValues(table *models.Table, url string) [][]interface{} {
	values := make([][]interface{}, 0, table.Len()+2)

	if url != "" {
		values = append(values, []interface{}{"URL", url})
	}

	header := make([]interface{}, len(table.Columns))
	for i, c := range table.Columns {
		header[i] = c
	}
	values = append(values, header)

	for _, row := range table.Rows {
		r := make([]interface{}, len(row))
		for i, v := range row {
			r[i] = v
		}
		values = append(values, r)
	}

	return values
}

// SheetName returns the tab name used for date
func SheetName(date time.Time) string {
	return SheetPrefix + date.Format(source.ISODateLayout)
}

// SheetURL links to a single tab of a spreadsheet
func SheetURL(spreadsheetID string, sheetID int64) string {
	return fmt.Sprintf("https://docs.google.com/spreadsheets/d/%s/edit#gid=%d", spreadsheetID, sheetID)
}

// sanitizeSheetName removes invalid characters from sheet name
func sanitizeSheetName(name string) string {
	// Google Sheets sheet names cannot contain: / \ ? * [ ]
	invalidChars := []string{"/", "\\", "?", "*", "[", "]"}
	result := name
	for _, char := range invalidChars {
		result = strings.ReplaceAll(result, char, "_")
	}
	result = strings.TrimSpace(result)
	if result == "" {
		result = "Sheet1"
	}
	return result
}

// ExtractSpreadsheetID extracts the spreadsheet ID from a Google Sheets URL
func ExtractSpreadsheetID(url string) string {
	// Handle various URL formats:
	// https://docs.google.com/spreadsheets/d/SPREADSHEET_ID/edit
	// https://docs.google.com/spreadsheets/d/SPREADSHEET_ID/edit?usp=sharing
	parts := strings.Split(url, "/d/")
	if len(parts) < 2 {
		return ""
	}

	idPart := parts[1]
	if idx := strings.IndexAny(idPart, "/?#"); idx != -1 {
		idPart = idPart[:idx]
	}

	return strings.TrimSpace(idPart)
}
