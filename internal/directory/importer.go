package directory

import (
	"context"
	"database/sql"
	"encoding/csv"
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"

	"triage/internal/logger"
)

// ImportRow is one normalized, format-checked CSV row ready for upsert.
type ImportRow struct {
	Site         string
	Channel      string
	Workplace    string
	IP           string
	TerminalID   string
	ValRaw       string
	SrcTimestamp string
}

var (
	siteFormatRe      = regexp.MustCompile(`^\d{2,4}$`)
	workplaceFormatRe = regexp.MustCompile(`^\d{1,2}$`)
	tidFormatRe       = regexp.MustCompile(`^\d{8}$`)
	tidTokenRe        = regexp.MustCompile(`\b(\d{8})\b`)
	digitsRe          = regexp.MustCompile(`\d`)
)

// ParseCSV reads directory export rows with AZS/ARM/PlNum/IP/Val/Timestamp
// columns. Rows failing the strict site/workplace/tid formats are dropped,
// not reported as errors; exports routinely carry junk lines.
func ParseCSV(r io.Reader) ([]ImportRow, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}

	index := make(map[string]int, len(header))
	for i, name := range header {
		// Exports from Windows tooling carry a BOM on the first column.
		name = strings.TrimPrefix(strings.TrimSpace(name), "\uFEFF")
		index[strings.ToLower(name)] = i
	}

	field := func(record []string, names ...string) string {
		for _, name := range names {
			if i, ok := index[name]; ok && i < len(record) {
				return strings.TrimSpace(record[i])
			}
		}
		return ""
	}

	var rows []ImportRow
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read CSV record: %w", err)
		}

		site := digitsOnly(field(record, "azs"))
		channel := field(record, "arm")
		workplace := digitsOnly(field(record, "plnum"))
		ip := field(record, "ip")
		valRaw := field(record, "val")
		srcTS := field(record, "timestamp")

		tid := pickTerminalID(valRaw)

		if !siteFormatRe.MatchString(site) {
			continue
		}
		if !workplaceFormatRe.MatchString(workplace) {
			continue
		}
		if tid != "" && !tidFormatRe.MatchString(tid) {
			continue
		}

		if channel == "" {
			channel = "UNKNOWN"
		}

		rows = append(rows, ImportRow{
			Site:         site,
			Channel:      channel,
			Workplace:    workplace,
			IP:           ip,
			TerminalID:   tid,
			ValRaw:       valRaw,
			SrcTimestamp: srcTS,
		})
	}

	return rows, nil
}

func digitsOnly(s string) string {
	return strings.Join(digitsRe.FindAllString(s, -1), "")
}

// pickTerminalID extracts the first 8-digit token from the free-form Val
// column.
func pickTerminalID(valRaw string) string {
	m := tidTokenRe.FindStringSubmatch(valRaw)
	if m == nil {
		return ""
	}
	return m[1]
}

// Importer upserts directory rows keyed by (site, channel, workplace) in a
// single transaction.
type Importer struct {
	db     *sql.DB
	logger logger.Logger
}

func NewImporter(db *sql.DB, log logger.Logger) *Importer {
	return &Importer{db: db, logger: log}
}

func (i *Importer) Import(ctx context.Context, rows []ImportRow, sourceFile string) (int, error) {
	tx, err := i.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin import transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO terminal_directory (
			site, channel, workplace, ip, terminal_id,
			val_raw, src_timestamp, source_file, imported_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (site, channel, workplace) DO UPDATE SET
			ip = EXCLUDED.ip,
			terminal_id = EXCLUDED.terminal_id,
			val_raw = EXCLUDED.val_raw,
			src_timestamp = EXCLUDED.src_timestamp,
			source_file = EXCLUDED.source_file,
			imported_at = EXCLUDED.imported_at`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare import statement: %w", err)
	}
	defer stmt.Close()

	importedAt := time.Now().UTC()

	for _, row := range rows {
		if _, err := stmt.ExecContext(ctx,
			row.Site, row.Channel, row.Workplace, row.IP, row.TerminalID,
			row.ValRaw, row.SrcTimestamp, sourceFile, importedAt,
		); err != nil {
			return 0, fmt.Errorf("failed to upsert directory row (site=%s, channel=%s, workplace=%s): %w",
				row.Site, row.Channel, row.Workplace, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit import transaction: %w", err)
	}

	i.logger.Infow("Terminal directory import committed",
		"rows", len(rows),
		"source_file", sourceFile,
	)

	return len(rows), nil
}
