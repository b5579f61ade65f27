package directory

import (
	"context"
	"database/sql"
	"fmt"

	"triage/pkg/metrics"
)

// Lookup resolves a (site, workplace) pair to its directory rows. Values are
// matched exactly as stored; callers normalize before calling.
type Lookup interface {
	Lookup(ctx context.Context, site, workplace string) ([]Entry, error)
}

type PostgresLookup struct {
	db *sql.DB
}

func NewPostgresLookup(db *sql.DB) *PostgresLookup {
	return &PostgresLookup{db: db}
}

func (l *PostgresLookup) Lookup(ctx context.Context, site, workplace string) ([]Entry, error) {
	query := `
		SELECT site, channel, workplace, terminal_id, ip
		FROM terminal_directory
		WHERE site = $1 AND workplace = $2
		ORDER BY id`

	rows, err := l.db.QueryContext(ctx, query, site, workplace)
	if err != nil {
		metrics.DirectoryLookupsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("failed to query terminal directory: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var terminalID, ip sql.NullString
		if err := rows.Scan(&e.Site, &e.Channel, &e.Workplace, &terminalID, &ip); err != nil {
			metrics.DirectoryLookupsTotal.WithLabelValues("error").Inc()
			return nil, fmt.Errorf("failed to scan terminal directory row: %w", err)
		}
		e.TerminalID = terminalID.String
		e.IP = ip.String
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		metrics.DirectoryLookupsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("failed to iterate terminal directory rows: %w", err)
	}

	metrics.DirectoryLookupsTotal.WithLabelValues("db").Inc()
	return entries, nil
}
