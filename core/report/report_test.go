package report

import (
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/piggyclaim/piggyclaim/core/claimer"
	"github.com/piggyclaim/piggyclaim/core/testutil"
)

func balances() []claimer.Balance {
	return []claimer.Balance{
		{Address: common.HexToAddress(testutil.TestAddress1), Amount: decimal.RequireFromString("42.5")},
		{Address: common.HexToAddress(testutil.TestAddress2), Err: errors.New("timeout")},
		{Address: common.HexToAddress(testutil.TestAddress3), Amount: decimal.Zero},
	}
}

func TestCsvReport(t *testing.T) {
	path := filepath.Join(t.TempDir(), "piggy.csv")
	require.NoError(t, New(path).Write(balances()))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 4)

	assert.Equal(t, []string{"address", "total tokens"}, rows[0])
	assert.Equal(t, []string{testutil.TestAddress1, "42.5"}, rows[1])
	assert.Equal(t, []string{testutil.TestAddress2, ""}, rows[2])
	assert.Equal(t, []string{testutil.TestAddress3, "0"}, rows[3])
}

func TestXlsxReport(t *testing.T) {
	path := filepath.Join(t.TempDir(), "piggy_data.xlsx")
	require.NoError(t, New(path).Write(balances()))

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(sheetName)
	require.NoError(t, err)
	require.Len(t, rows, 4)

	assert.Equal(t, []string{"address", "total tokens"}, rows[0])
	assert.Equal(t, []string{testutil.TestAddress1, "42.5"}, rows[1])
	// a failed lookup leaves the amount cell empty
	assert.Equal(t, []string{testutil.TestAddress2}, rows[2])
	assert.Equal(t, []string{testutil.TestAddress3, "0"}, rows[3])
}

func TestWriterByExtension(t *testing.T) {
	assert.IsType(t, &csvWriter{}, New("out.CSV"))
	assert.IsType(t, &xlsxWriter{}, New("out.xlsx"))
	assert.IsType(t, &xlsxWriter{}, New("out"))
}
