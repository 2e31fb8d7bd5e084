package report

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/samber/lo"
	"github.com/xuri/excelize/v2"

	"github.com/piggyclaim/piggyclaim/core/claimer"
)

const sheetName = "Tokens"

var Columns = []string{"address", "total tokens"}

// Writer persists checker results. Failed lookups are written with an
// empty amount so the row order still matches the key file.
type Writer interface {
	Write(rows []claimer.Balance) error
}

// New picks the writer from the file extension. Anything that is not .csv
// is written as xlsx.
func New(path string) Writer {
	if strings.EqualFold(filepath.Ext(path), ".csv") {
		return &csvWriter{path: path}
	}
	return &xlsxWriter{path: path}
}

func record(b claimer.Balance) []string {
	amount := ""
	if b.Err == nil {
		amount = b.Amount.String()
	}
	return []string{b.Address.Hex(), amount}
}

type csvWriter struct {
	path string
}

func (w *csvWriter) Write(rows []claimer.Balance) error {
	f, err := os.Create(w.path)
	if err != nil {
		return fmt.Errorf("cannot create report: %w", err)
	}
	defer f.Close()

	out := csv.NewWriter(f)
	if err := out.Write(Columns); err != nil {
		return err
	}
	if err := out.WriteAll(lo.Map(rows, func(b claimer.Balance, _ int) []string { return record(b) })); err != nil {
		return fmt.Errorf("cannot write report: %w", err)
	}
	return f.Sync()
}

type xlsxWriter struct {
	path string
}

func (w *xlsxWriter) Write(rows []claimer.Balance) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return err
	}
	if err := f.SetSheetRow(sheetName, "A1", &Columns); err != nil {
		return err
	}

	for i, b := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}

		row := []interface{}{b.Address.Hex()}
		if b.Err == nil {
			amount, _ := b.Amount.Float64()
			row = append(row, amount)
		}
		if err := f.SetSheetRow(sheetName, cell, &row); err != nil {
			return err
		}
	}

	if err := f.SetColWidth(sheetName, "A", "A", 46); err != nil {
		return err
	}
	if err := f.SaveAs(w.path); err != nil {
		return fmt.Errorf("cannot save report: %w", err)
	}
	return nil
}
