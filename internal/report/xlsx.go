package report

import (
	"fmt"
	"io"

	"gymbooking/internal/model"

	"github.com/xuri/excelize/v2"
)

// sheetWriter appends rows to the sheets of one workbook.
type sheetWriter struct {
	file   *excelize.File
	sheet  string
	row    int
	header int
}

func newSheetWriter() (*sheetWriter, error) {
	f := excelize.NewFile()
	style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		f.Close()
		return nil, err
	}
	return &sheetWriter{file: f, header: style}, nil
}

func (w *sheetWriter) addSheet(name string) error {
	// Excel limit
	if len(name) > 31 {
		name = name[:31]
	}
	if w.sheet == "" {
		if err := w.file.SetSheetName("Sheet1", name); err != nil {
			return err
		}
	} else if _, err := w.file.NewSheet(name); err != nil {
		return fmt.Errorf("create sheet %s: %w", name, err)
	}
	w.sheet = name
	w.row = 1
	return nil
}

func (w *sheetWriter) writeHeader(columns ...string) error {
	row := make([]any, len(columns))
	for i, c := range columns {
		row[i] = c
	}
	if err := w.writeRow(row...); err != nil {
		return err
	}
	end, err := excelize.CoordinatesToCellName(len(columns), w.row-1)
	if err != nil {
		return err
	}
	start, _ := excelize.CoordinatesToCellName(1, w.row-1)
	return w.file.SetCellStyle(w.sheet, start, end, w.header)
}

func (w *sheetWriter) writeRow(values ...any) error {
	if w.sheet == "" {
		return fmt.Errorf("no active sheet")
	}
	cell, err := excelize.CoordinatesToCellName(1, w.row)
	if err != nil {
		return err
	}
	if err := w.file.SetSheetRow(w.sheet, cell, &values); err != nil {
		return err
	}
	w.row++
	return nil
}

// minor renders minor units as a decimal amount for spreadsheet totals.
func minor(v int64) float64 {
	return float64(v) / 100
}

// WriteXLSX writes the report as a workbook with Summary, Bookings, Trainers
// and Services sheets.
func WriteXLSX(out io.Writer, d Daily) error {
	w, err := newSheetWriter()
	if err != nil {
		return err
	}
	defer w.file.Close()

	if err := w.addSheet("Summary"); err != nil {
		return err
	}
	summary := [][]any{
		{"Date", d.Date.String()},
		{"Weekday", d.Weekday},
		{"Total bookings", d.Total},
		{"Pending", d.Pending},
		{"Confirmed", d.Confirmed},
		{"Cancelled", d.Cancelled},
		{"Completed", d.Completed},
		{"Revenue", minor(d.RevenueMinor)},
	}
	for _, r := range summary {
		if err := w.writeRow(r...); err != nil {
			return err
		}
	}

	if err := w.addSheet("Bookings"); err != nil {
		return err
	}
	if err := w.writeHeader("ID", "Reference", "Member", "Trainer", "Service", "Start", "End", "Status", "Price"); err != nil {
		return err
	}
	for _, b := range d.Bookings {
		if err := w.writeRow(b.ID, b.Reference, b.MemberID, b.TrainerID, b.ServiceID,
			b.Start.String(), b.End.String(), string(b.Status), minor(b.PriceMinor)); err != nil {
			return err
		}
	}

	if err := w.addSheet("Trainers"); err != nil {
		return err
	}
	if err := w.writeHeader("Trainer ID", "Name", "Bookings", "Booked amount"); err != nil {
		return err
	}
	for _, t := range d.ByTrainer {
		if err := w.writeRow(t.TrainerID, t.Name, t.Bookings, minor(t.BookedMinor)); err != nil {
			return err
		}
	}

	if err := w.addSheet("Services"); err != nil {
		return err
	}
	if err := w.writeHeader("Service ID", "Name", "Bookings"); err != nil {
		return err
	}
	for _, s := range d.ByService {
		if err := w.writeRow(s.ServiceID, s.Name, s.Bookings); err != nil {
			return err
		}
	}

	return w.file.Write(out)
}

// Filename is the attachment name for the report export.
func Filename(date model.Date) string {
	return "bookings_" + date.String() + ".xlsx"
}
