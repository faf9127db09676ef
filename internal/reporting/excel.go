package reporting

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"
)

const (
	resultsSheet    = "Results"
	validationSheet = "Validation"
)

// WriteWorkbook writes the report as an Excel workbook with a Results sheet
// and, for walk-forward runs, a Validation sheet.
func WriteWorkbook(r *Report, path string) error {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	fx := excelize.NewFile()
	defer fx.Close()

	fx.SetSheetName(fx.GetSheetName(0), resultsSheet)

	headerStyle, err := fx.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Size: 11, Color: "FFFFFF", Family: "Calibri"},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"2F4F4F"}, Pattern: 1},
		Alignment: &excelize.Alignment{
			Horizontal: "center",
			Vertical:   "center",
		},
	})
	if err != nil {
		return err
	}

	if err := writeResultsSheet(fx, r, headerStyle); err != nil {
		return err
	}

	if len(r.Summaries) > 0 {
		if _, err := fx.NewSheet(validationSheet); err != nil {
			return err
		}
		if err := writeValidationSheet(fx, r, headerStyle); err != nil {
			return err
		}
	}

	return fx.SaveAs(path)
}

func writeResultsSheet(fx *excelize.File, r *Report, headerStyle int) error {
	headers := []string{
		"Result ID", "Params", "Window", "Training", "Trades", "Win Rate",
		"Profit Factor", "Net Profit", "Sharpe", "Sortino", "Max DD %",
		"Expectancy", "Error",
	}
	if err := writeHeaderRow(fx, resultsSheet, headers, headerStyle); err != nil {
		return err
	}
	fx.SetColWidth(resultsSheet, "A", "A", 24)
	fx.SetColWidth(resultsSheet, "B", "B", 40)

	for i, rec := range r.TopResults {
		window := ""
		if rec.WindowIndex != nil {
			window = fmt.Sprintf("%d", *rec.WindowIndex)
		}
		row := []interface{}{
			rec.ResultID, rec.Combination.Key(), window, rec.IsTraining,
			rec.Metrics.TotalTrades, rec.Metrics.WinRate,
			rec.Metrics.ProfitFactor, rec.Metrics.NetProfit,
			rec.Metrics.SharpeRatio, rec.Metrics.SortinoRatio,
			rec.Metrics.MaxDrawdownPct, rec.Metrics.Expectancy, rec.SimError,
		}
		if err := writeDataRow(fx, resultsSheet, i+2, row); err != nil {
			return err
		}
	}
	return nil
}

func writeValidationSheet(fx *excelize.File, r *Report, headerStyle int) error {
	headers := []string{
		"Params", "Windows Won", "Avg In-Sample", "Avg Out-of-Sample",
		"Degradation %", "Efficiency", "Overfit", "OOS Profit Factor",
		"OOS Net Profit", "OOS Win Rate", "OOS Trades",
	}
	if err := writeHeaderRow(fx, validationSheet, headers, headerStyle); err != nil {
		return err
	}
	fx.SetColWidth(validationSheet, "A", "A", 40)

	for i, s := range r.Summaries {
		row := []interface{}{
			s.Combination.Key(), s.Windows, s.AvgInSample, s.AvgOutOfSample,
			ratioCell(s.DegradationPct), ratioCell(s.Efficiency), s.IsOverfit,
			s.OOSProfitFactor, s.OOSNetProfit, s.OOSWinRate, s.OOSTradeCount,
		}
		if err := writeDataRow(fx, validationSheet, i+2, row); err != nil {
			return err
		}
	}
	return nil
}

func writeHeaderRow(fx *excelize.File, sheet string, headers []string, style int) error {
	for i, h := range headers {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return err
		}
		if err := fx.SetCellValue(sheet, cell, h); err != nil {
			return err
		}
		if err := fx.SetCellStyle(sheet, cell, cell, style); err != nil {
			return err
		}
	}
	return nil
}

func writeDataRow(fx *excelize.File, sheet string, rowNum int, values []interface{}) error {
	for i, v := range values {
		cell, err := excelize.CoordinatesToCellName(i+1, rowNum)
		if err != nil {
			return err
		}
		if err := fx.SetCellValue(sheet, cell, v); err != nil {
			return err
		}
	}
	return nil
}

// ratioCell leaves the cell empty when the ratio is undefined.
func ratioCell(v *float64) interface{} {
	if v == nil {
		return ""
	}
	return *v
}
