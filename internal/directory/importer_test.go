package directory

import (
	"context"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"triage/internal/logger"
)

func TestParseCSV_NormalizesAndFilters(t *testing.T) {
	csvData := "AZS,ARM,PlNum,IP,Val,Timestamp\n" +
		"123,POS,1,10.1.2.3,TID 20011001 ok,2026-01-10 12:00\n" +
		"АЗС,POS,1,10.1.2.4,20011002,2026-01-10 12:00\n" + // site has no digits, dropped
		"4567,,02,10.1.2.5,no tid here,2026-01-10 12:01\n" +
		"12345,POS,1,,20011003,\n" + // site too long, dropped
		"88,POS,111,,20011004,\n" // workplace too long, dropped

	rows, err := ParseCSV(strings.NewReader(csvData))
	require.NoError(t, err)

	require.Len(t, rows, 2)

	assert.Equal(t, "123", rows[0].Site)
	assert.Equal(t, "POS", rows[0].Channel)
	assert.Equal(t, "1", rows[0].Workplace)
	assert.Equal(t, "20011001", rows[0].TerminalID)
	assert.Equal(t, "TID 20011001 ok", rows[0].ValRaw)

	assert.Equal(t, "4567", rows[1].Site)
	assert.Equal(t, "UNKNOWN", rows[1].Channel)
	assert.Equal(t, "2", rows[1].Workplace)
	assert.Empty(t, rows[1].TerminalID)
}

func TestParseCSV_BOMHeader(t *testing.T) {
	csvData := "\uFEFFAZS,ARM,PlNum,IP,Val,Timestamp\n" +
		"55,POS,3,10.0.0.1,20011009,2026-01-10\n"

	rows, err := ParseCSV(strings.NewReader(csvData))
	require.NoError(t, err)

	require.Len(t, rows, 1)
	assert.Equal(t, "55", rows[0].Site)
	assert.Equal(t, "20011009", rows[0].TerminalID)
}

func TestPickTerminalID(t *testing.T) {
	assert.Equal(t, "20011001", pickTerminalID("serial 20011001 rev 2"))
	assert.Equal(t, "20011001", pickTerminalID("20011001 20022002"))
	assert.Empty(t, pickTerminalID("123456789")) // 9 digits is not a terminal id
	assert.Empty(t, pickTerminalID(""))
}

func TestImporter_UpsertsInOneTransaction(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	prep := mock.ExpectPrepare(`INSERT INTO terminal_directory`)
	prep.ExpectExec().
		WithArgs("123", "POS", "1", "10.1.2.3", "20011001", "TID 20011001", "2026-01-10", "dir.csv", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	prep.ExpectExec().
		WithArgs("123", "POS", "2", "10.1.2.4", "20011002", "20011002", "2026-01-10", "dir.csv", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	importer := NewImporter(db, logger.NopLogger())
	count, err := importer.Import(context.Background(), []ImportRow{
		{Site: "123", Channel: "POS", Workplace: "1", IP: "10.1.2.3", TerminalID: "20011001", ValRaw: "TID 20011001", SrcTimestamp: "2026-01-10"},
		{Site: "123", Channel: "POS", Workplace: "2", IP: "10.1.2.4", TerminalID: "20011002", ValRaw: "20011002", SrcTimestamp: "2026-01-10"},
	}, "dir.csv")

	require.NoError(t, err)
	assert.Equal(t, 2, count)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestImporter_RollsBackOnFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	prep := mock.ExpectPrepare(`INSERT INTO terminal_directory`)
	prep.ExpectExec().
		WillReturnError(assert.AnError)
	mock.ExpectRollback()

	importer := NewImporter(db, logger.NopLogger())
	_, err = importer.Import(context.Background(), []ImportRow{
		{Site: "123", Channel: "POS", Workplace: "1"},
	}, "dir.csv")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to upsert directory row")
	require.NoError(t, mock.ExpectationsWereMet())
}
