package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"bkam-rates/failure"
	"bkam-rates/models"
	"bkam-rates/source"
)

// Request statuses
const (
	StatusCreated    = "created"
	StatusInProgress = "in_progress"
	StatusDone       = "done"
	StatusFailed     = "failed"
)

// Request is a queued fetch for one date, asked for from a chat
type Request struct {
	ID                int
	ChatID            int64
	UserID            int64
	TelegramMessageID int
	RateDate          time.Time
	Status            string
	RowsCount         int
	Strategy          sql.NullString
	OutputPath        sql.NullString
	ErrorKind         sql.NullString
	ErrorMessage      sql.NullString
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

const requestColumns = `id, chat_id, user_id, telegram_message_id, rate_date, status, rows_count,
	strategy, output_path, error_kind, error_message, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRequest(row rowScanner) (*Request, error) {
	var req Request
	err := row.Scan(
		&req.ID, &req.ChatID, &req.UserID, &req.TelegramMessageID, &req.RateDate, &req.Status, &req.RowsCount,
		&req.Strategy, &req.OutputPath, &req.ErrorKind, &req.ErrorMessage, &req.CreatedAt, &req.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &req, nil
}

// CreateRequest queues a fetch for date
func (db *DB) CreateRequest(ctx context.Context, chatID, userID int64, telegramMessageID int, date time.Time) (*Request, error) {
	row := db.conn.QueryRowContext(ctx, `
		INSERT INTO requests (chat_id, user_id, telegram_message_id, rate_date, status)
		VALUES ($1, $2, $3, $4, 'created')
		RETURNING `+requestColumns,
		chatID, userID, telegramMessageID, date.Format(source.ISODateLayout))
	return scanRequest(row)
}

// ClaimNextRequest marks the oldest created request in_progress and returns
// it. Concurrent workers never claim the same row. Returns nil when the
// queue is empty.
func (db *DB) ClaimNextRequest(ctx context.Context) (*Request, error) {
	row := db.conn.QueryRowContext(ctx, `
		UPDATE requests
		SET status = 'in_progress', updated_at = CURRENT_TIMESTAMP
		WHERE id = (
			SELECT id FROM requests
			WHERE status = 'created'
			ORDER BY created_at ASC, id ASC
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING `+requestColumns)

	req, err := scanRequest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return req, err
}

// GetRequestByID returns the request with the given ID
func (db *DB) GetRequestByID(ctx context.Context, requestID int) (*Request, error) {
	row := db.conn.QueryRowContext(ctx, `SELECT `+requestColumns+` FROM requests WHERE id = $1`, requestID)
	return scanRequest(row)
}

// UpdateRequestStatus updates the status of a request
func (db *DB) UpdateRequestStatus(ctx context.Context, requestID int, status string) error {
	_, err := db.conn.ExecContext(ctx, `
		UPDATE requests
		SET status = $1, updated_at = CURRENT_TIMESTAMP
		WHERE id = $2
	`, status, requestID)
	return err
}

// ResetInProgress puts requests left in_progress by a crashed worker back in the queue
func (db *DB) ResetInProgress(ctx context.Context) (int64, error) {
	res, err := db.conn.ExecContext(ctx, `
		UPDATE requests
		SET status = 'created', updated_at = CURRENT_TIMESTAMP
		WHERE status = 'in_progress'
	`)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// CompleteRequest records the outcome of a pipeline run: done with its row
// count and output, or failed with the error kind.
func (db *DB) CompleteRequest(ctx context.Context, requestID int, result *models.Result) error {
	if result == nil {
		return fmt.Errorf("nil result")
	}

	status := StatusDone
	var errKind, errMsg, strategy, outputPath sql.NullString
	if result.Err != nil {
		status = StatusFailed
		errKind = nullString(string(failure.KindOf(result.Err)))
		errMsg = nullString(result.Err.Error())
	}
	strategy = nullString(result.Strategy)
	outputPath = nullString(result.OutputPath)

	_, err := db.conn.ExecContext(ctx, `
		UPDATE requests
		SET status = $1, rows_count = $2, strategy = $3, output_path = $4,
			error_kind = $5, error_message = $6, updated_at = CURRENT_TIMESTAMP
		WHERE id = $7
	`, status, result.Table.Len(), strategy, outputPath, errKind, errMsg, requestID)
	return err
}

// SaveAttempts stores the strategies tried for a request, in order
func (db *DB) SaveAttempts(ctx context.Context, requestID int, attempts []models.Attempt) error {
	if len(attempts) == 0 {
		return nil
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO fetch_attempts (request_id, position, strategy, outcome, error_kind, error_message, bytes, duration_ms)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, a := range attempts {
		_, err := stmt.ExecContext(ctx, requestID, i+1, a.Strategy, a.Outcome,
			nullString(a.ErrorKind), nullString(a.Error), a.Bytes, a.Duration.Milliseconds())
		if err != nil {
			return fmt.Errorf("failed to save attempt %d: %w", i+1, err)
		}
	}

	return tx.Commit()
}

// GetAttempts returns the attempts recorded for a request
func (db *DB) GetAttempts(ctx context.Context, requestID int) ([]models.Attempt, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT strategy, outcome, error_kind, error_message, bytes, duration_ms
		FROM fetch_attempts
		WHERE request_id = $1
		ORDER BY position
	`, requestID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var attempts []models.Attempt
	for rows.Next() {
		var a models.Attempt
		var kind, msg sql.NullString
		var ms int64
		if err := rows.Scan(&a.Strategy, &a.Outcome, &kind, &msg, &a.Bytes, &ms); err != nil {
			return nil, err
		}
		a.ErrorKind = kind.String
		a.Error = msg.String
		a.Duration = time.Duration(ms) * time.Millisecond
		attempts = append(attempts, a)
	}
	return attempts, rows.Err()
}

// Name implements storage.TableSink
func (db *DB) Name() string {
	return "postgres"
}

// Save implements storage.TableSink. Rows previously stored for date are
// replaced; each row is stored as a JSON object keyed by column name.
func (db *DB) Save(ctx context.Context, date time.Time, table *models.Table) (string, error) {
	if table == nil {
		return "", fmt.Errorf("postgres: nil table")
	}
	day := date.Format(source.ISODateLayout)

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM rate_rows WHERE rate_date = $1`, day); err != nil {
		return "", fmt.Errorf("failed to clear rows for %s: %w", day, err)
	}

	for i, row := range table.Rows {
		data, err := rowJSON(table.Columns, row)
		if err != nil {
			return "", err
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO rate_rows (rate_date, row_index, data) VALUES ($1, $2, $3)
		`, day, i, string(data)); err != nil {
			return "", fmt.Errorf("failed to save row %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", err
	}
	return fmt.Sprintf("%s.rate_rows[%s]", Schema, day), nil
}

// LoadTable reads back the rows stored for date, with columns in the given order
func (db *DB) LoadTable(ctx context.Context, date time.Time, columns []string) (*models.Table, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT data FROM rate_rows WHERE rate_date = $1 ORDER BY row_index
	`, date.Format(source.ISODateLayout))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	table := models.NewTable(columns...)
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var values map[string]string
		if err := json.Unmarshal(raw, &values); err != nil {
			return nil, fmt.Errorf("invalid row data: %w", err)
		}
		row := make([]string, len(columns))
		for i, c := range columns {
			row[i] = values[c]
		}
		table.Rows = append(table.Rows, row)
	}
	return table, rows.Err()
}

// rowJSON encodes a row as {"column": "value", ...}
func rowJSON(columns, row []string) ([]byte, error) {
	if len(columns) != len(row) {
		return nil, fmt.Errorf("row has %d fields, header has %d", len(row), len(columns))
	}
	obj := make(map[string]string, len(columns))
	for i, c := range columns {
		obj[c] = row[i]
	}
	return json.Marshal(obj)
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
