package storage

import (
	"context"
	"time"

	"bkam-rates/models"
)

// TableSink is any destination a normalized rate table can be saved to.
// Save returns a human-readable location (file path, sheet URL, ...).
type TableSink interface {
	Name() string
	Save(ctx context.Context, date time.Time, table *models.Table) (string, error)
}
