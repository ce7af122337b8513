package db

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"strings"

	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

// Schema holds every table the service owns
const Schema = "bkam_rates"

// DB wraps the database connection
type DB struct {
	conn *sql.DB
	log  *zap.Logger
}

// ConnString returns connStr, or a keyword/value string built from the
// DB_* environment variables when connStr is empty. The service schema is
// added to the search path of every connection.
func ConnString(connStr string) string {
	if connStr != "" {
		return withSearchPath(connStr)
	}

	host := getEnvOrDefault("DB_HOST", "localhost")
	port := getEnvOrDefault("DB_PORT", "5432")
	user := getEnvOrDefault("DB_USER", "bkam")
	password := getEnvOrDefault("DB_PASSWORD", "")
	dbname := getEnvOrDefault("DB_NAME", "bkam")
	sslmode := getEnvOrDefault("DB_SSLMODE", "disable")

	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s search_path=%s",
		host, port, user, password, dbname, sslmode, Schema)
}

// NewDB opens a connection, checks it and creates the schema if needed
func NewDB(ctx context.Context, connStr string, log *zap.Logger) (*DB, error) {
	if log == nil {
		log = zap.NewNop()
	}

	conn, err := sql.Open("postgres", ConnString(connStr))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db := &DB{conn: conn, log: log}

	if err := db.initSchema(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return db, nil
}

func withSearchPath(connStr string) string {
	if strings.Contains(connStr, "search_path") {
		return connStr
	}
	if strings.HasPrefix(connStr, "postgres://") || strings.HasPrefix(connStr, "postgresql://") {
		u, err := url.Parse(connStr)
		if err != nil {
			return connStr
		}
		q := u.Query()
		q.Set("search_path", Schema)
		u.RawQuery = q.Encode()
		return u.String()
	}
	return connStr + " search_path=" + Schema
}

func getEnvOrDefault(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.conn.Close()
}

var schemaStatements = []struct {
	name string
	stmt string
}{
	{"requests table", `
		CREATE TABLE IF NOT EXISTS requests (
			id SERIAL PRIMARY KEY,
			chat_id BIGINT NOT NULL,
			user_id BIGINT NOT NULL,
			telegram_message_id INTEGER NOT NULL,
			rate_date DATE NOT NULL,
			status VARCHAR(20) NOT NULL DEFAULT 'created',
			rows_count INTEGER NOT NULL DEFAULT 0,
			strategy VARCHAR(20),
			output_path TEXT,
			error_kind VARCHAR(32),
			error_message TEXT,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			CONSTRAINT valid_status CHECK (status IN ('created', 'in_progress', 'done', 'failed'))
		)`},
	{"fetch_attempts table", `
		CREATE TABLE IF NOT EXISTS fetch_attempts (
			id SERIAL PRIMARY KEY,
			request_id INTEGER NOT NULL REFERENCES requests(id) ON DELETE CASCADE,
			position INTEGER NOT NULL,
			strategy VARCHAR(20) NOT NULL,
			outcome VARCHAR(10) NOT NULL,
			error_kind VARCHAR(32),
			error_message TEXT,
			bytes INTEGER NOT NULL DEFAULT 0,
			duration_ms BIGINT NOT NULL DEFAULT 0,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`},
	{"rate_rows table", `
		CREATE TABLE IF NOT EXISTS rate_rows (
			rate_date DATE NOT NULL,
			row_index INTEGER NOT NULL,
			data JSONB NOT NULL,
			saved_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (rate_date, row_index)
		)`},
}

var indexStatements = []string{
	`CREATE INDEX IF NOT EXISTS idx_requests_status ON requests(status)`,
	`CREATE INDEX IF NOT EXISTS idx_requests_user_id ON requests(user_id)`,
	`CREATE INDEX IF NOT EXISTS idx_fetch_attempts_request_id ON fetch_attempts(request_id)`,
}

// initSchema creates the necessary tables if they don't exist
func (db *DB) initSchema(ctx context.Context) error {
	// The schema may already exist and be owned by someone else
	if _, err := db.conn.ExecContext(ctx, `CREATE SCHEMA IF NOT EXISTS `+Schema); err != nil {
		db.log.Sugar().Infof("Could not create schema (may already exist): %v", err)
	}

	for _, s := range schemaStatements {
		if _, err := db.conn.ExecContext(ctx, s.stmt); err != nil {
			return fmt.Errorf("failed to create %s: %w", s.name, err)
		}
	}

	for _, stmt := range indexStatements {
		if _, err := db.conn.ExecContext(ctx, stmt); err != nil {
			db.log.Sugar().Warnf("Failed to create index: %v", err)
		}
	}

	db.log.Debug("Database schema initialized")
	return nil
}
