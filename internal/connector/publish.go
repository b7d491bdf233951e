package connector

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/atomstack-labs/atomsh/pkg/core"
)

// CSVPublisher reverse-syncs an asset's live data to a CSV file using
// the warehouse's own export path.
type CSVPublisher struct {
	warehouse *sql.DB
}

// NewCSVPublisher creates a publisher reading through the given
// warehouse connection.
func NewCSVPublisher(warehouse *sql.DB) *CSVPublisher {
	return &CSVPublisher{warehouse: warehouse}
}

// Publish exports the live target to destination as a headered CSV.
func (p *CSVPublisher) Publish(ctx context.Context, asset, liveTarget, destination string) error {
	stmt := fmt.Sprintf("COPY (SELECT * FROM %s) TO '%s' (HEADER, DELIMITER ',')",
		liveTarget, strings.ReplaceAll(destination, "'", "''"))
	if _, err := p.warehouse.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("failed to publish %s to %s: %w", asset, destination, err)
	}
	return nil
}

var _ core.Publisher = (*CSVPublisher)(nil)
