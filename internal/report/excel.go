// Package report renders the stoppage log and indicators as an xlsx workbook.
package report

import (
	"fmt"
	"sort"

	"github.com/xuri/excelize/v2"

	"line-monitor/internal/domain"
)

const (
	sheetIndicators = "Indicators"
	sheetStoppages  = "Stoppages"
	sheetCategories = "By Category"
	sheetTrend      = "Daily Trend"

	dateTimeLayout = "2006-01-02 15:04:05"
	dateLayout     = "2006-01-02"
)

var (
	stoppageHeader = []string{"ID", "Recorded At", "Minutes", "Category", "Reason", "Reported By"}
	categoryHeader = []string{"Category", "Stoppages", "Total Minutes"}
	trendHeader    = []string{"Date", "Stopped Minutes"}
)

// Data everything that goes into one report
type Data struct {
	Snapshot   *domain.IndicatorSnapshot
	Stoppages  []domain.StoppageEvent
	Categories map[domain.Category]domain.CategoryStatistic
	Trend      []domain.DailyAggregate
}

// Generate builds the workbook and returns its bytes
func Generate(data Data) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{
			Type:    "pattern",
			Color:   []string{"#E6F3FF"},
			Pattern: 1,
		},
		Border: []excelize.Border{
			{Type: "bottom", Color: "000000", Style: 1},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}

	w := &sheetWriter{f: f, headerStyle: headerStyle}

	w.table(sheetIndicators, []string{"Indicator", "Value"}, indicatorRows(data.Snapshot))
	w.table(sheetStoppages, stoppageHeader, stoppageRows(data.Stoppages))
	w.table(sheetCategories, categoryHeader, categoryRows(data.Categories))
	w.table(sheetTrend, trendHeader, trendRows(data.Trend))
	if w.err != nil {
		return nil, w.err
	}

	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, fmt.Errorf("failed to delete default sheet: %w", err)
	}
	if idx, err := f.GetSheetIndex(sheetIndicators); err == nil {
		f.SetActiveSheet(idx)
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

// sheetWriter stops at the first error
type sheetWriter struct {
	f           *excelize.File
	headerStyle int
	err         error
}

func (w *sheetWriter) table(sheet string, header []string, rows [][]interface{}) {
	if w.err != nil {
		return
	}
	if _, err := w.f.NewSheet(sheet); err != nil {
		w.err = fmt.Errorf("failed to create sheet %s: %w", sheet, err)
		return
	}

	headerRow := make([]interface{}, len(header))
	for i, h := range header {
		headerRow[i] = h
	}
	if err := w.f.SetSheetRow(sheet, "A1", &headerRow); err != nil {
		w.err = fmt.Errorf("failed to write %s header: %w", sheet, err)
		return
	}
	last, err := excelize.CoordinatesToCellName(len(header), 1)
	if err != nil {
		w.err = err
		return
	}
	if err := w.f.SetCellStyle(sheet, "A1", last, w.headerStyle); err != nil {
		w.err = fmt.Errorf("failed to set header style: %w", err)
		return
	}
	lastCol, _ := excelize.ColumnNumberToName(len(header))
	if err := w.f.SetColWidth(sheet, "A", lastCol, 20); err != nil {
		w.err = fmt.Errorf("failed to set column width: %w", err)
		return
	}

	for i := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			w.err = err
			return
		}
		if err := w.f.SetSheetRow(sheet, cell, &rows[i]); err != nil {
			w.err = fmt.Errorf("failed to write %s row %d: %w", sheet, i+2, err)
			return
		}
	}
}

func indicatorRows(s *domain.IndicatorSnapshot) [][]interface{} {
	if s == nil {
		return nil
	}
	return [][]interface{}{
		{"Expected Units", s.ExpectedUnits},
		{"Adjusted Units", s.AdjustedUnits},
		{"Goal Probability (%)", s.GoalProbabilityPercent},
		{"Total Stopped Minutes", s.TotalStoppedMinutes},
		{"Lost Units", s.LostUnits},
		{"Classification", string(s.Classification)},
		{"Computed At", s.ComputedAt.Format(dateTimeLayout)},
	}
}

func stoppageRows(events []domain.StoppageEvent) [][]interface{} {
	rows := make([][]interface{}, 0, len(events))
	for _, e := range events {
		recordedAt := ""
		if !e.RecordedAt.IsZero() {
			recordedAt = e.RecordedAt.Format(dateTimeLayout)
		}
		rows = append(rows, []interface{}{
			e.ID, recordedAt, e.DurationMinutes, string(e.Category), e.Reason, e.ReportedBy,
		})
	}
	return rows
}

func categoryRows(stats map[domain.Category]domain.CategoryStatistic) [][]interface{} {
	keys := make([]domain.Category, 0, len(stats))
	for c := range stats {
		keys = append(keys, c)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	rows := make([][]interface{}, 0, len(keys))
	for _, c := range keys {
		s := stats[c]
		rows = append(rows, []interface{}{string(c), s.Count, s.TotalMinutes})
	}
	return rows
}

func trendRows(days []domain.DailyAggregate) [][]interface{} {
	rows := make([][]interface{}, 0, len(days))
	for _, d := range days {
		rows = append(rows, []interface{}{d.Date.Format(dateLayout), d.TotalStoppedMinutes})
	}
	return rows
}
