package notify

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"shinebin/internal/catalog"
	"shinebin/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func testBooking() *models.Booking {
	return &models.Booking{
		ID:            "b-1",
		Customer:      models.Customer{Name: "Jane <Doe>", Email: "jane@example.com"},
		Address:       "12 Elm St",
		Plan:          "one-time",
		BinQuantity:   3,
		Date:          time.Date(2030, 1, 2, 0, 0, 0, 0, time.UTC),
		TimeSlot:      "08:00-10:00",
		Addons:        []string{"deodorizer"},
		PaymentMethod: models.PaymentCash,
		TotalPrice:    models.Dollars(32, 0),
		Status:        models.StatusPending,
	}
}

func TestNewAlert(t *testing.T) {
	a := NewAlert(testBooking(), catalog.Default())

	assert.Equal(t, "One-Time Cleaning", a.Plan)
	assert.Equal(t, "8:00 AM - 10:00 AM", a.TimeSlot)
	assert.Equal(t, []string{"Deodorizer Treatment"}, a.Addons)
	assert.Equal(t, "Cash (paid at time of service)", a.PaymentMethod)
	assert.Equal(t, "New Booking: Jane <Doe> - 12 Elm St", a.Subject())

	text := a.Text()
	assert.Contains(t, text, "Add-ons: Deodorizer Treatment")
	assert.Contains(t, text, "Total Price: $32.00")
	assert.Contains(t, text, "Next Steps:")

	htmlBody := a.HTML()
	assert.Contains(t, htmlBody, "Jane &lt;Doe&gt;")
	assert.NotContains(t, htmlBody, "<Doe>")
}

func TestAlertWithoutAddons(t *testing.T) {
	b := testBooking()
	b.Addons = nil
	a := NewAlert(b, nil)

	assert.Equal(t, "one-time", a.Plan)
	assert.Contains(t, a.Text(), "Add-ons: None")
}

type mockSender struct {
	mock.Mock
}

func (m *mockSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	args := m.Called(c)
	return tgbotapi.Message{}, args.Error(0)
}

func TestTelegramNotifier(t *testing.T) {
	sender := new(mockSender)
	sender.On("Send", mock.MatchedBy(func(msg tgbotapi.MessageConfig) bool {
		return msg.ChatID == 1 && msg.ParseMode == models.ParseModeHTML
	})).Return(nil).Once()
	sender.On("Send", mock.MatchedBy(func(msg tgbotapi.MessageConfig) bool {
		return msg.ChatID == 2
	})).Return(errors.New("forbidden")).Once()

	n := NewTelegramNotifier(sender, []int64{1, 2})
	err := n.Notify(context.Background(), NewAlert(testBooking(), catalog.Default()))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "chat 2")
	sender.AssertExpectations(t)
}

type fakeAppender struct {
	spreadsheetID string
	rangeData     string
	rows          [][]interface{}
	err           error
}

func (f *fakeAppender) Append(_ context.Context, spreadsheetID, rangeData string, rows [][]interface{}) error {
	f.spreadsheetID = spreadsheetID
	f.rangeData = rangeData
	f.rows = append(f.rows, rows...)
	return f.err
}

func TestSheetsNotifier(t *testing.T) {
	appender := &fakeAppender{}
	received := time.Date(2030, 1, 1, 9, 30, 0, 0, time.UTC)
	n := &SheetsNotifier{
		values:        appender,
		spreadsheetID: "sheet-id",
		sheetName:     "Bookings",
		now:           func() time.Time { return received },
	}

	require.NoError(t, n.Notify(context.Background(), NewAlert(testBooking(), catalog.Default())))

	assert.Equal(t, "sheet-id", appender.spreadsheetID)
	assert.Equal(t, "Bookings!A:A", appender.rangeData)
	require.Len(t, appender.rows, 1)
	row := appender.rows[0]
	assert.Equal(t, "b-1", row[0])
	assert.Equal(t, "2030-01-01 09:30:00", row[1])
	assert.Equal(t, 3, row[6])
	assert.Equal(t, "Deodorizer Treatment", row[9])
	assert.Equal(t, "32.00", row[11])
}

func TestNewSheetsNotifierMissingCredentials(t *testing.T) {
	_, err := NewSheetsNotifier(context.Background(), "/nonexistent/creds.json", "id", "Bookings")
	assert.Error(t, err)
}

type stubNotifier struct {
	name  string
	err   error
	calls int
}

func (s *stubNotifier) Name() string { return s.name }

func (s *stubNotifier) Notify(context.Context, Alert) error {
	s.calls++
	return s.err
}

func TestMulti(t *testing.T) {
	failing := &stubNotifier{name: "telegram", err: errors.New("down")}
	ok := &stubNotifier{name: "sheets"}

	err := Multi{failing, ok}.Notify(context.Background(), Alert{})
	require.Error(t, err)
	assert.Equal(t, 1, ok.calls, "a failing notifier must not stop the others")

	var nerr *NotificationError
	require.True(t, errors.As(err, &nerr))
	assert.Equal(t, "telegram", nerr.Notifier)

	assert.NoError(t, Multi{ok}.Notify(context.Background(), Alert{}))
}

func TestLogNotifier(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	n := NewLogNotifier(&logger)

	require.NoError(t, n.Notify(context.Background(), NewAlert(testBooking(), catalog.Default())))
	out := buf.String()
	assert.True(t, strings.Contains(out, `"booking_id":"b-1"`))
	assert.Contains(t, out, "New Booking: Jane")
}
