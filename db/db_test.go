package db

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"bkam-rates/failure"
	"bkam-rates/models"
)

func TestConnString(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "url gets schema",
			input:    "postgres://u:p@db:5432/bkam?sslmode=disable",
			expected: "postgres://u:p@db:5432/bkam?search_path=bkam_rates&sslmode=disable",
		},
		{
			name:     "keyword form gets schema",
			input:    "host=db dbname=bkam",
			expected: "host=db dbname=bkam search_path=bkam_rates",
		},
		{
			name:     "explicit search path kept",
			input:    "host=db search_path=public",
			expected: "host=db search_path=public",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ConnString(tt.input))
		})
	}
}

func TestConnStringFromEnv(t *testing.T) {
	t.Setenv("DB_HOST", "pg.internal")
	t.Setenv("DB_USER", "rates")
	t.Setenv("DB_PASSWORD", "secret")

	got := ConnString("")
	assert.Contains(t, got, "host=pg.internal")
	assert.Contains(t, got, "user=rates")
	assert.Contains(t, got, "password=secret")
	assert.Contains(t, got, "port=5432")
	assert.Contains(t, got, "search_path=bkam_rates")
}

func TestRowJSON(t *testing.T) {
	data, err := rowJSON([]string{"Taux moyen pondéré", "Date déchéance"}, []string{"2,936 %", "22/01/2024"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"Taux moyen pondéré":"2,936 %","Date déchéance":"22/01/2024"}`, string(data))

	_, err = rowJSON([]string{"A", "B"}, []string{"1"})
	assert.Error(t, err)
}

func TestNullString(t *testing.T) {
	assert.False(t, nullString("").Valid)
	assert.Equal(t, "x", nullString("x").String)
}

// newTestDB starts a throwaway Postgres. Skipped in -short mode or when no
// container runtime is available.
func newTestDB(t *testing.T) *DB {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping Postgres integration test in short mode")
	}

	testcontainers.Logger = log.New(io.Discard, "", 0)
	ctx := context.Background()

	pg, err := startPostgres(ctx)
	if err != nil {
		t.Skipf("container runtime unavailable: %v", err)
	}
	t.Cleanup(func() { _ = pg.Terminate(context.Background()) })

	host, err := pg.Host(ctx)
	require.NoError(t, err)
	port, err := pg.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)

	connStr := fmt.Sprintf("postgres://bkam:bkam@%s:%s/bkam?sslmode=disable", host, port.Port())
	database, err := NewDB(ctx, connStr, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })
	return database
}

// startPostgres reports a missing docker host as an error rather than a panic
func startPostgres(ctx context.Context) (c testcontainers.Container, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%v", r)
		}
	}()

	return testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		Started: true,
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "bkam",
				"POSTGRES_PASSWORD": "bkam",
				"POSTGRES_DB":       "bkam",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60 * time.Second),
		},
	})
}

func TestRequestQueue(t *testing.T) {
	database := newTestDB(t)
	ctx := context.Background()
	date := time.Date(2024, 1, 16, 0, 0, 0, 0, time.UTC)

	empty, err := database.ClaimNextRequest(ctx)
	require.NoError(t, err)
	assert.Nil(t, empty)

	first, err := database.CreateRequest(ctx, 100, 7, 1, date)
	require.NoError(t, err)
	assert.Equal(t, StatusCreated, first.Status)
	assert.Equal(t, "2024-01-16", first.RateDate.Format("2006-01-02"))

	second, err := database.CreateRequest(ctx, 100, 7, 2, date.AddDate(0, 0, 1))
	require.NoError(t, err)

	claimed, err := database.ClaimNextRequest(ctx)
	require.NoError(t, err)
	require.NotNil(t, claimed)
	assert.Equal(t, first.ID, claimed.ID)
	assert.Equal(t, StatusInProgress, claimed.Status)

	next, err := database.ClaimNextRequest(ctx)
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, second.ID, next.ID)

	require.NoError(t, database.UpdateRequestStatus(ctx, first.ID, StatusCreated))
	again, err := database.ClaimNextRequest(ctx)
	require.NoError(t, err)
	require.NotNil(t, again)
	assert.Equal(t, first.ID, again.ID)

	reset, err := database.ResetInProgress(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), reset)
}

func TestCompleteRequestAndAttempts(t *testing.T) {
	database := newTestDB(t)
	ctx := context.Background()

	req, err := database.CreateRequest(ctx, 1, 1, 1, time.Date(2024, 1, 16, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	attempts := []models.Attempt{
		{Strategy: "http", Outcome: models.OutcomeFailed, ErrorKind: "HttpError", Error: "status 403", Duration: 120 * time.Millisecond},
		{Strategy: "rod", Outcome: models.OutcomeOK, Bytes: 5120, Duration: 3 * time.Second},
	}
	require.NoError(t, database.SaveAttempts(ctx, req.ID, attempts))

	stored, err := database.GetAttempts(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, attempts, stored)

	result := &models.Result{
		Table:      &models.Table{Columns: []string{"A"}, Rows: [][]string{{"1"}, {"2"}}},
		Strategy:   "rod",
		OutputPath: "downloads/BKAM_Data_2024-01-16.csv",
	}
	require.NoError(t, database.CompleteRequest(ctx, req.ID, result))

	done, err := database.GetRequestByID(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusDone, done.Status)
	assert.Equal(t, 2, done.RowsCount)
	assert.Equal(t, "rod", done.Strategy.String)
	assert.False(t, done.ErrorKind.Valid)

	failedReq, err := database.CreateRequest(ctx, 1, 1, 2, time.Date(2024, 1, 13, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	err = database.CompleteRequest(ctx, failedReq.ID, &models.Result{
		Err: failure.New(failure.NoTableFound, "extract table", errors.New("no <table> element in page")),
	})
	require.NoError(t, err)

	failed, err := database.GetRequestByID(ctx, failedReq.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, failed.Status)
	assert.Equal(t, "NoTableFound", failed.ErrorKind.String)
	assert.Zero(t, failed.RowsCount)
}

func TestSaveRowsReplacesDate(t *testing.T) {
	database := newTestDB(t)
	ctx := context.Background()
	date := time.Date(2024, 1, 16, 0, 0, 0, 0, time.UTC)
	columns := []string{"Taux moyen pondéré", "Date déchéance"}

	_, err := database.Save(ctx, date, &models.Table{
		Columns: columns,
		Rows:    [][]string{{"1", "a"}, {"2", "b"}, {"3", "c"}},
	})
	require.NoError(t, err)

	loc, err := database.Save(ctx, date, &models.Table{
		Columns: columns,
		Rows:    [][]string{{"2,936 %", "22/01/2024"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "bkam_rates.rate_rows[2024-01-16]", loc)

	table, err := database.LoadTable(ctx, date, columns)
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"2,936 %", "22/01/2024"}}, table.Rows)
}
