package export

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"shinebin/internal/catalog"
	"shinebin/internal/models"

	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"
)

const (
	bookingsSheet = "Bookings"
	scheduleSheet = "Schedule"
)

var bookingHeaders = []string{
	"ID", "Date", "Time Slot", "Status", "Customer", "Email", "Address",
	"Plan", "Bins", "Add-ons", "Payment", "Total", "Cancel Reason", "Created At",
}

var statusColors = map[string]string{
	models.StatusPending:   "#FFF2CC",
	models.StatusConfirmed: "#C6EFCE",
	models.StatusCompleted: "#DDEBF7",
	models.StatusCancelled: "#F4CCCC",
}

// Exporter renders bookings into an operator workbook.
type Exporter struct {
	catalog *catalog.Catalog
	dir     string
	logger  *zerolog.Logger
}

func NewExporter(cat *catalog.Catalog, dir string, logger *zerolog.Logger) *Exporter {
	if cat == nil {
		cat = catalog.Default()
	}
	return &Exporter{catalog: cat, dir: dir, logger: logger}
}

// FileName is the attachment name for a [from, to] export.
func FileName(from, to time.Time) string {
	return fmt.Sprintf("bookings_%s_to_%s.xlsx", from.Format(models.DateLayout), to.Format(models.DateLayout))
}

// Write streams the workbook to w.
func (e *Exporter) Write(w io.Writer, from, to time.Time, bookings []*models.Booking) error {
	f, err := e.build(from, to, bookings)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("error writing workbook: %w", err)
	}
	return nil
}

// Save stores the workbook under the exports directory and returns its path.
func (e *Exporter) Save(from, to time.Time, bookings []*models.Booking) (string, error) {
	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return "", fmt.Errorf("error creating export directory: %w", err)
	}

	f, err := e.build(from, to, bookings)
	if err != nil {
		return "", err
	}
	defer f.Close()

	filePath := filepath.Join(e.dir, FileName(from, to))
	if err := f.SaveAs(filePath); err != nil {
		return "", fmt.Errorf("error saving file: %w", err)
	}

	e.logger.Info().Str("file_path", filePath).Int("bookings", len(bookings)).Msg("Excel file created")
	return filePath, nil
}

func (e *Exporter) build(from, to time.Time, bookings []*models.Booking) (*excelize.File, error) {
	f := excelize.NewFile()

	index, err := f.NewSheet(bookingsSheet)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("error creating sheet: %w", err)
	}
	f.SetActiveSheet(index)

	if err := e.writeBookings(f, bookings); err != nil {
		f.Close()
		return nil, err
	}

	if _, err := f.NewSheet(scheduleSheet); err != nil {
		f.Close()
		return nil, fmt.Errorf("error creating sheet: %w", err)
	}
	e.writeSchedule(f, from, to, bookings)

	_ = f.DeleteSheet("Sheet1")
	return f, nil
}

func (e *Exporter) writeBookings(f *excelize.File, bookings []*models.Booking) error {
	headerStyle, _ := f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
		Font: &excelize.Font{Bold: true},
	})

	for i, h := range bookingHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(bookingsSheet, cell, h)
	}
	lastCol, _ := excelize.ColumnNumberToName(len(bookingHeaders))
	_ = f.SetCellStyle(bookingsSheet, "A1", lastCol+"1", headerStyle)

	for i, b := range bookings {
		row := []interface{}{
			b.ID,
			b.DateKey(),
			e.catalog.SlotLabel(b.TimeSlot),
			b.Status,
			b.Customer.Name,
			b.Customer.Email,
			b.Address,
			b.Plan,
			b.BinQuantity,
			strings.Join(b.Addons, ", "),
			e.catalog.PaymentLabel(b.PaymentMethod),
			float64(b.TotalPrice) / 100,
			b.CancelReason,
			b.CreatedAt.UTC().Format(time.RFC3339),
		}
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(bookingsSheet, cell, &row); err != nil {
			return fmt.Errorf("error writing row %d: %w", i+2, err)
		}
	}

	moneyStyle, _ := f.NewStyle(&excelize.Style{NumFmt: 4})
	if len(bookings) > 0 {
		_ = f.SetCellStyle(bookingsSheet, "L2", fmt.Sprintf("L%d", len(bookings)+1), moneyStyle)
	}

	_ = f.SetColWidth(bookingsSheet, "A", "A", 38)
	_ = f.SetColWidth(bookingsSheet, "B", lastCol, 18)
	_ = f.SetPanes(bookingsSheet, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"})
	return nil
}

// writeSchedule lays out slots as rows and dates as columns, one cell per active booking.
func (e *Exporter) writeSchedule(f *excelize.File, from, to time.Time, bookings []*models.Booking) {
	_ = f.SetCellValue(scheduleSheet, "A1", fmt.Sprintf("Period: %s - %s",
		from.Format(models.DateLayout), to.Format(models.DateLayout)))
	titleStyle, _ := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 14},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	_ = f.SetCellStyle(scheduleSheet, "A1", "A1", titleStyle)

	headStyle, _ := f.NewStyle(&excelize.Style{
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
		Font:      &excelize.Font{Bold: true},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})

	columns := make(map[string]int)
	col := 2
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		cell, _ := excelize.CoordinatesToCellName(col, 2)
		_ = f.SetCellValue(scheduleSheet, cell, d.Format("Mon 01/02"))
		_ = f.SetCellStyle(scheduleSheet, cell, cell, headStyle)
		columns[d.Format(models.DateLayout)] = col
		col++
	}

	rows := make(map[string]int)
	for i, slot := range e.catalog.TimeSlots() {
		cell, _ := excelize.CoordinatesToCellName(1, i+3)
		_ = f.SetCellValue(scheduleSheet, cell, slot.Label)
		_ = f.SetCellStyle(scheduleSheet, cell, cell, headStyle)
		rows[slot.ID] = i + 3
	}

	styles := make(map[string]int, len(statusColors))
	for status, color := range statusColors {
		styles[status], _ = f.NewStyle(&excelize.Style{
			Fill:      excelize.Fill{Type: "pattern", Color: []string{color}, Pattern: 1},
			Alignment: &excelize.Alignment{WrapText: true, Vertical: "top"},
		})
	}

	for _, b := range bookings {
		// cancelled bookings no longer occupy the slot
		if !b.IsActive() && b.Status != models.StatusCompleted {
			continue
		}
		c, okCol := columns[b.DateKey()]
		r, okRow := rows[b.TimeSlot]
		if !okCol || !okRow {
			continue
		}
		cell, _ := excelize.CoordinatesToCellName(c, r)
		_ = f.SetCellValue(scheduleSheet, cell, fmt.Sprintf("%s\n%s\n%s", b.Customer.Name, b.Address, b.Status))
		_ = f.SetCellStyle(scheduleSheet, cell, cell, styles[b.Status])
	}

	lastCol, _ := excelize.ColumnNumberToName(max(col-1, 2))
	_ = f.MergeCell(scheduleSheet, "A1", lastCol+"1")
	_ = f.SetColWidth(scheduleSheet, "A", "A", 22)
	_ = f.SetColWidth(scheduleSheet, "B", lastCol, 24)
}
