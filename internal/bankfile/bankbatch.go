// Package bankfile holds the fixed-schema codecs for bank payout files: the bank batch export
// (CSV and XLSX) and the manual payment confirmation import (CSV).
package bankfile

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/ndewijer/SPV-Distribution-Engine/internal/model"
	"github.com/xuri/excelize/v2"
)

type column struct {
	Header string
	Value  func(model.BankBatchRow) string
}

var bankBatchColumns = []column{
	{"Beneficiary Name", func(r model.BankBatchRow) string { return r.BeneficiaryName }},
	{"Account Number", func(r model.BankBatchRow) string { return r.AccountNumber }},
	{"IFSC Code", func(r model.BankBatchRow) string { return r.IFSC }},
	{"Bank Name", func(r model.BankBatchRow) string { return r.BankName }},
	{"Branch", func(r model.BankBatchRow) string { return r.Branch }},
	{"Amount", func(r model.BankBatchRow) string { return r.Amount.String() }},
	{"Reference", func(r model.BankBatchRow) string { return r.Reference }},
	{"Remark", func(r model.BankBatchRow) string { return r.Remark }},
}

const amountColumn = 5

// BankBatchHeader returns the column headers of the bank batch file, in order.
func BankBatchHeader() []string {
	out := make([]string, len(bankBatchColumns))
	for i, c := range bankBatchColumns {
		out[i] = c.Header
	}
	return out
}

// WriteBankBatchCSV writes rows as comma-separated, double-quoted CSV with a header line.
// Every field is quoted.
func WriteBankBatchCSV(w io.Writer, rows []model.BankBatchRow) error {
	bw := bufio.NewWriter(w)
	if err := writeQuotedRecord(bw, BankBatchHeader()); err != nil {
		return err
	}
	record := make([]string, len(bankBatchColumns))
	for _, row := range rows {
		for i, c := range bankBatchColumns {
			record[i] = c.Value(row)
		}
		if err := writeQuotedRecord(bw, record); err != nil {
			return err
		}
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("failed to write bank batch: %w", err)
	}
	return nil
}

func writeQuotedRecord(w *bufio.Writer, fields []string) error {
	for i, f := range fields {
		if i > 0 {
			if err := w.WriteByte(','); err != nil {
				return fmt.Errorf("failed to write bank batch: %w", err)
			}
		}
		if _, err := w.WriteString(`"` + strings.ReplaceAll(f, `"`, `""`) + `"`); err != nil {
			return fmt.Errorf("failed to write bank batch: %w", err)
		}
	}
	if _, err := w.WriteString("\r\n"); err != nil {
		return fmt.Errorf("failed to write bank batch: %w", err)
	}
	return nil
}

// WriteBankBatchXLSX writes rows as a single-sheet workbook with the same columns as the CSV.
// Amounts are numeric cells holding the exact paise value, formatted with two decimals.
func WriteBankBatchXLSX(w io.Writer, sheet string, rows []model.BankBatchRow) error {
	f := excelize.NewFile()
	defer f.Close()

	if sheet == "" {
		sheet = "Bank Batch"
	}
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return fmt.Errorf("failed to name sheet: %w", err)
	}

	header := make([]any, len(bankBatchColumns))
	for i, c := range bankBatchColumns {
		header[i] = c.Header
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for n, row := range rows {
		values := make([]any, len(bankBatchColumns))
		for i, c := range bankBatchColumns {
			if i == amountColumn {
				continue
			}
			values[i] = c.Value(row)
		}
		cell, err := excelize.CoordinatesToCellName(1, n+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &values); err != nil {
			return fmt.Errorf("failed to write row %d: %w", n+2, err)
		}
		// the decimal text is stored as the cell's number as is
		amountCell, err := excelize.CoordinatesToCellName(amountColumn+1, n+2)
		if err != nil {
			return err
		}
		if err := f.SetCellDefault(sheet, amountCell, row.Amount.String()); err != nil {
			return fmt.Errorf("failed to write amount of row %d: %w", n+2, err)
		}
	}

	headerStyle, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}
	if err := f.SetRowStyle(sheet, 1, 1, headerStyle); err != nil {
		return fmt.Errorf("failed to style header: %w", err)
	}

	amountStyle, err := f.NewStyle(&excelize.Style{NumFmt: 2}) // 0.00
	if err != nil {
		return fmt.Errorf("failed to create amount style: %w", err)
	}
	amountCol, err := excelize.ColumnNumberToName(amountColumn + 1)
	if err != nil {
		return err
	}
	if len(rows) > 0 {
		if err := f.SetCellStyle(sheet, amountCol+"2", fmt.Sprintf("%s%d", amountCol, len(rows)+1), amountStyle); err != nil {
			return fmt.Errorf("failed to style amounts: %w", err)
		}
	}
	lastCol, err := excelize.ColumnNumberToName(len(bankBatchColumns))
	if err != nil {
		return err
	}
	if err := f.SetColWidth(sheet, "A", lastCol, 22); err != nil {
		return fmt.Errorf("failed to size columns: %w", err)
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}
