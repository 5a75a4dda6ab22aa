package notify

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

type valuesAppender interface {
	Append(ctx context.Context, spreadsheetID, rangeData string, rows [][]interface{}) error
}

type sheetsValues struct {
	service *sheets.Service
}

func (s sheetsValues) Append(ctx context.Context, spreadsheetID, rangeData string, rows [][]interface{}) error {
	_, err := s.service.Spreadsheets.Values.Append(spreadsheetID, rangeData, &sheets.ValueRange{Values: rows}).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	return err
}

// SheetsNotifier appends one row per alert to an operator spreadsheet.
type SheetsNotifier struct {
	values        valuesAppender
	spreadsheetID string
	sheetName     string
	now           func() time.Time
}

// NewSheetsNotifier authenticates with a service account key file.
func NewSheetsNotifier(ctx context.Context, credentialsFile, spreadsheetID, sheetName string) (*SheetsNotifier, error) {
	credentialsJSON, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("unable to read credentials file: %w", err)
	}

	config, err := google.JWTConfigFromJSON(credentialsJSON, sheets.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("unable to parse credentials: %w", err)
	}

	srv, err := sheets.NewService(ctx, option.WithHTTPClient(config.Client(ctx)))
	if err != nil {
		return nil, fmt.Errorf("unable to create Sheets service: %w", err)
	}

	return &SheetsNotifier{
		values:        sheetsValues{service: srv},
		spreadsheetID: spreadsheetID,
		sheetName:     sheetName,
		now:           time.Now,
	}, nil
}

func (n *SheetsNotifier) Name() string { return "sheets" }

func (n *SheetsNotifier) Notify(ctx context.Context, alert Alert) error {
	rangeData := fmt.Sprintf("%s!A:A", n.sheetName)
	return n.values.Append(ctx, n.spreadsheetID, rangeData, [][]interface{}{alertRowValues(alert, n.now())})
}

func alertRowValues(a Alert, receivedAt time.Time) []interface{} {
	return []interface{}{
		a.BookingID,
		receivedAt.Format("2006-01-02 15:04:05"),
		a.CustomerName,
		a.CustomerEmail,
		a.Address,
		a.Plan,
		a.BinQuantity,
		a.Date,
		a.TimeSlot,
		strings.Join(a.Addons, ", "),
		a.PaymentMethod,
		a.TotalPrice.Decimal(),
		a.Status,
	}
}
