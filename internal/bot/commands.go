package bot

import (
	"bytes"
	"context"
	"fmt"
	"html"
	"sort"
	"strconv"
	"strings"
	"time"

	"shinebin/internal/export"
	"shinebin/internal/logging"
	"shinebin/internal/metrics"
	"shinebin/internal/models"
	"shinebin/internal/service"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const helpText = `<b>Operator commands</b>
/today - bookings for today
/day YYYY-MM-DD - bookings for a date
/booking &lt;id&gt; - booking details
/confirm &lt;id&gt; - confirm a pending booking
/complete &lt;id&gt; - mark a confirmed booking completed
/cancel &lt;id&gt; [reason] - cancel a booking
/export YYYY-MM-DD YYYY-MM-DD - Excel report for a date range`

// maxExportDays bounds the range of a single /export.
const maxExportDays = 93

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	command := msg.Command()
	args := strings.Fields(msg.CommandArguments())
	chatID := msg.Chat.ID

	metrics.IncBotCommand(command)
	logging.FromContext(ctx, b.logger).Debug().Str("command", command).Int64("user_id", msg.From.ID).Msg("Operator command")

	switch command {
	case "start", "help":
		b.sendHTML(chatID, helpText)
	case "today":
		b.sendDay(ctx, chatID, b.today())
	case "day":
		if len(args) != 1 {
			b.sendMessage(chatID, "Usage: /day YYYY-MM-DD")
			return
		}
		date, err := service.ParseDate(args[0])
		if err != nil {
			b.sendMessage(chatID, b.getErrorMessage(err))
			return
		}
		b.sendDay(ctx, chatID, date)
	case "booking":
		if len(args) != 1 {
			b.sendMessage(chatID, "Usage: /booking <id>")
			return
		}
		b.sendBooking(ctx, chatID, args[0])
	case "confirm", "complete":
		if len(args) != 1 {
			b.sendMessage(chatID, fmt.Sprintf("Usage: /%s <id>", command))
			return
		}
		b.applyCommand(ctx, chatID, command, args[0], "")
	case "cancel":
		if len(args) == 0 {
			b.sendMessage(chatID, "Usage: /cancel <id> [reason]")
			return
		}
		b.applyCommand(ctx, chatID, command, args[0], strings.Join(args[1:], " "))
	case "export":
		b.handleExport(ctx, chatID, args)
	default:
		b.sendMessage(chatID, "Unknown command. Send /help for the list.")
	}
}

// applyCommand runs an action against the current version of the booking.
func (b *Bot) applyCommand(ctx context.Context, chatID int64, action, id, reason string) {
	booking, err := b.bookings.GetBooking(ctx, id)
	if err != nil {
		b.sendMessage(chatID, b.getErrorMessage(err))
		return
	}
	updated, err := b.apply(ctx, action, id, booking.Version, reason)
	if err != nil {
		b.sendMessage(chatID, b.getErrorMessage(err))
		return
	}
	b.sendHTML(chatID, fmt.Sprintf("✅ Booking is now <b>%s</b>.\n\n%s", updated.Status, b.formatBooking(updated)))
}

func (b *Bot) apply(ctx context.Context, action, id string, version int64, reason string) (*models.Booking, error) {
	l := logging.FromContext(ctx, b.logger)
	var (
		booking *models.Booking
		err     error
	)
	switch action {
	case "confirm":
		booking, err = b.bookings.Confirm(ctx, id, version)
	case "complete":
		booking, err = b.bookings.Complete(ctx, id, version)
	case "cancel":
		if reason == "" {
			reason = models.CancelReasonOperator
		}
		booking, err = b.bookings.Cancel(ctx, id, version, reason)
	default:
		return nil, fmt.Errorf("unknown action %q", action)
	}
	if err != nil {
		l.Warn().Err(err).Str("booking_id", id).Str("action", action).Msg("Operator action failed")
		return nil, err
	}
	l.Info().Str("booking_id", id).Str("action", action).Str("status", booking.Status).Msg("Operator action applied")
	return booking, nil
}

func (b *Bot) sendDay(ctx context.Context, chatID int64, date time.Time) {
	bookings, err := b.bookings.ListBookings(ctx, date, date)
	if err != nil {
		b.sendMessage(chatID, b.getErrorMessage(err))
		return
	}
	b.sortBySlot(bookings)

	var sb strings.Builder
	fmt.Fprintf(&sb, "<b>%s</b>\n", date.Format("Monday, Jan 2 2006"))
	if len(bookings) == 0 {
		sb.WriteString("No bookings.")
	}
	for _, booking := range bookings {
		fmt.Fprintf(&sb, "\n%s %s · %s · <i>%s</i>\n<code>%s</code>\n",
			statusIcon(booking.Status),
			html.EscapeString(b.catalog.SlotLabel(booking.TimeSlot)),
			html.EscapeString(booking.Customer.Name),
			booking.Status,
			booking.ID)
	}
	b.sendHTML(chatID, sb.String())
}

func (b *Bot) sendBooking(ctx context.Context, chatID int64, id string) {
	booking, err := b.bookings.GetBooking(ctx, id)
	if err != nil {
		b.sendMessage(chatID, b.getErrorMessage(err))
		return
	}

	msg := tgbotapi.NewMessage(chatID, b.formatBooking(booking))
	msg.ParseMode = models.ParseModeHTML
	if keyboard, ok := actionKeyboard(booking); ok {
		msg.ReplyMarkup = keyboard
	}
	if _, err := b.client.Send(msg); err != nil {
		b.logger.Error().Err(err).Int64("chat_id", chatID).Msg("Failed to send message")
	}
}

func (b *Bot) handleExport(ctx context.Context, chatID int64, args []string) {
	if len(args) != 2 {
		b.sendMessage(chatID, "Usage: /export YYYY-MM-DD YYYY-MM-DD")
		return
	}
	from, err := service.ParseDate(args[0])
	if err != nil {
		b.sendMessage(chatID, b.getErrorMessage(err))
		return
	}
	to, err := service.ParseDate(args[1])
	if err != nil {
		b.sendMessage(chatID, b.getErrorMessage(err))
		return
	}
	if to.Sub(from) > maxExportDays*24*time.Hour {
		b.sendMessage(chatID, fmt.Sprintf("⚠️ The range may span at most %d days.", maxExportDays))
		return
	}

	bookings, err := b.bookings.ListBookings(ctx, from, to)
	if err != nil {
		b.sendMessage(chatID, b.getErrorMessage(err))
		return
	}

	var buf bytes.Buffer
	if err := b.exporter.Write(&buf, from, to, bookings); err != nil {
		logging.FromContext(ctx, b.logger).Error().Err(err).Msg("Failed to build export")
		b.sendMessage(chatID, b.getErrorMessage(err))
		return
	}

	doc := tgbotapi.NewDocument(chatID, tgbotapi.FileBytes{
		Name:  export.FileName(from, to),
		Bytes: buf.Bytes(),
	})
	doc.Caption = fmt.Sprintf("%d bookings", len(bookings))
	if _, err := b.client.Send(doc); err != nil {
		b.logger.Error().Err(err).Int64("chat_id", chatID).Msg("Failed to send export")
	}
}

func (b *Bot) handleCallback(ctx context.Context, callback *tgbotapi.CallbackQuery) {
	action, id, version, ok := parseCallbackData(callback.Data)
	if !ok {
		b.answerCallback(callback.ID, "Unknown action")
		return
	}
	metrics.IncBotCommand("callback_" + action)

	reason := ""
	if action == "cancel" {
		reason = models.CancelReasonOperator
	}
	booking, err := b.apply(ctx, action, id, version, reason)
	if err != nil {
		b.answerCallback(callback.ID, b.getErrorMessage(err))
		return
	}
	b.answerCallback(callback.ID, "Booking "+booking.Status)

	if callback.Message == nil {
		return
	}
	edit := tgbotapi.NewEditMessageText(callback.Message.Chat.ID, callback.Message.MessageID, b.formatBooking(booking))
	edit.ParseMode = models.ParseModeHTML
	if keyboard, ok := actionKeyboard(booking); ok {
		edit.ReplyMarkup = &keyboard
	}
	if _, err := b.client.Send(edit); err != nil {
		b.logger.Error().Err(err).Msg("Failed to update booking message")
	}
}

func (b *Bot) answerCallback(callbackID, text string) {
	if _, err := b.client.Request(tgbotapi.NewCallback(callbackID, text)); err != nil {
		b.logger.Error().Err(err).Msg("Failed to answer callback")
	}
}

func (b *Bot) sendMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := b.client.Send(msg); err != nil {
		b.logger.Error().Err(err).Int64("chat_id", chatID).Msg("Failed to send message")
	}
}

func (b *Bot) sendHTML(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = models.ParseModeHTML
	if _, err := b.client.Send(msg); err != nil {
		b.logger.Error().Err(err).Int64("chat_id", chatID).Msg("Failed to send message")
	}
}

func (b *Bot) formatBooking(booking *models.Booking) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s <b>%s</b> · %s\n", statusIcon(booking.Status), booking.DateKey(),
		html.EscapeString(b.catalog.SlotLabel(booking.TimeSlot)))
	fmt.Fprintf(&sb, "👤 %s &lt;%s&gt;\n", html.EscapeString(booking.Customer.Name), html.EscapeString(booking.Customer.Email))
	fmt.Fprintf(&sb, "📍 %s\n", html.EscapeString(booking.Address))

	plan := booking.Plan
	if p, ok := b.catalog.Plan(booking.Plan); ok {
		plan = p.Name
	}
	fmt.Fprintf(&sb, "🗑 %s × %d\n", html.EscapeString(plan), booking.BinQuantity)
	if len(booking.Addons) > 0 {
		names := make([]string, 0, len(booking.Addons))
		for _, id := range booking.Addons {
			if a, ok := b.catalog.Addon(id); ok {
				names = append(names, a.Name)
			} else {
				names = append(names, id)
			}
		}
		fmt.Fprintf(&sb, "➕ %s\n", html.EscapeString(strings.Join(names, ", ")))
	}
	fmt.Fprintf(&sb, "💳 %s · %s\n", html.EscapeString(b.catalog.PaymentLabel(booking.PaymentMethod)), booking.TotalPrice)
	fmt.Fprintf(&sb, "Status: <b>%s</b>", booking.Status)
	if booking.CancelReason != "" {
		fmt.Fprintf(&sb, " (%s)", html.EscapeString(booking.CancelReason))
	}
	fmt.Fprintf(&sb, "\n<code>%s</code>", booking.ID)
	return sb.String()
}

func (b *Bot) sortBySlot(bookings []*models.Booking) {
	sort.SliceStable(bookings, func(i, j int) bool {
		if !bookings[i].Date.Equal(bookings[j].Date) {
			return bookings[i].Date.Before(bookings[j].Date)
		}
		return b.catalog.SlotIndex(bookings[i].TimeSlot) < b.catalog.SlotIndex(bookings[j].TimeSlot)
	})
}

// actionKeyboard offers the transitions allowed from the booking's status.
func actionKeyboard(booking *models.Booking) (tgbotapi.InlineKeyboardMarkup, bool) {
	var buttons []tgbotapi.InlineKeyboardButton
	for _, action := range []struct{ name, label, status string }{
		{"confirm", "✅ Confirm", models.StatusConfirmed},
		{"complete", "🏁 Complete", models.StatusCompleted},
		{"cancel", "❌ Cancel", models.StatusCancelled},
	} {
		if !models.CanTransition(booking.Status, action.status) {
			continue
		}
		buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData(action.label, callbackData(action.name, booking)))
	}
	if len(buttons) == 0 {
		return tgbotapi.InlineKeyboardMarkup{}, false
	}
	return tgbotapi.NewInlineKeyboardMarkup(tgbotapi.NewInlineKeyboardRow(buttons...)), true
}

func callbackData(action string, booking *models.Booking) string {
	return fmt.Sprintf("%s:%s:%d", action, booking.ID, booking.Version)
}

func parseCallbackData(data string) (action, id string, version int64, ok bool) {
	parts := strings.Split(data, ":")
	if len(parts) != 3 {
		return "", "", 0, false
	}
	switch parts[0] {
	case "confirm", "complete", "cancel":
	default:
		return "", "", 0, false
	}
	version, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil || version < 1 || parts[1] == "" {
		return "", "", 0, false
	}
	return parts[0], parts[1], version, true
}

func statusIcon(status string) string {
	switch status {
	case models.StatusPending:
		return "🕓"
	case models.StatusConfirmed:
		return "📅"
	case models.StatusCompleted:
		return "✅"
	case models.StatusCancelled:
		return "🚫"
	default:
		return "•"
	}
}
