package ledger

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

const cashbookSheet = "Cashbook"

// WriteCashbook renders a running balance as an xlsx workbook.
func WriteCashbook(w io.Writer, rb RunningBalance) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", cashbookSheet); err != nil {
		return fmt.Errorf("name sheet: %w", err)
	}

	headers := []string{"Date", "Voucher", "Description", "Cash In", "Cash Out", "Status", "Balance"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(cashbookSheet, cell, h)
	}

	opening, _ := rb.OpeningBalance.Float64()
	f.SetCellValue(cashbookSheet, "C2", fmt.Sprintf("Opening balance (%s)", rb.Mode))
	f.SetCellValue(cashbookSheet, "G2", opening)

	for i, line := range rb.Lines {
		row := i + 3
		cashIn, _ := line.CashIn.Float64()
		cashOut, _ := line.CashOut.Float64()
		balance, _ := line.Balance.Float64()

		f.SetCellValue(cashbookSheet, fmt.Sprintf("A%d", row), line.TransactionDate.Format("2006-01-02"))
		f.SetCellValue(cashbookSheet, fmt.Sprintf("B%d", row), line.VoucherNo)
		f.SetCellValue(cashbookSheet, fmt.Sprintf("C%d", row), line.Description)
		f.SetCellValue(cashbookSheet, fmt.Sprintf("D%d", row), cashIn)
		f.SetCellValue(cashbookSheet, fmt.Sprintf("E%d", row), cashOut)
		f.SetCellValue(cashbookSheet, fmt.Sprintf("F%d", row), string(line.Status))
		f.SetCellValue(cashbookSheet, fmt.Sprintf("G%d", row), balance)
	}

	f.SetColWidth(cashbookSheet, "A", "B", 12)
	f.SetColWidth(cashbookSheet, "C", "C", 36)
	f.SetColWidth(cashbookSheet, "D", "G", 14)

	return f.Write(w)
}
