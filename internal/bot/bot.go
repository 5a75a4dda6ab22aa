package bot

import (
	"context"
	"os"
	"time"

	"shinebin/internal/catalog"
	"shinebin/internal/domain"
	"shinebin/internal/export"
	"shinebin/internal/logging"
	"shinebin/internal/metrics"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Bot lets operators review and move bookings through their lifecycle from Telegram.
type Bot struct {
	client   domain.TelegramClient
	bookings domain.BookingOperator
	catalog  *catalog.Catalog
	exporter *export.Exporter
	managers []int64
	location *time.Location
	now      func() time.Time
	logger   *zerolog.Logger
}

func NewBot(
	client domain.TelegramClient,
	bookings domain.BookingOperator,
	cat *catalog.Catalog,
	exporter *export.Exporter,
	managers []int64,
	location *time.Location,
	logger *zerolog.Logger,
) *Bot {
	if logger == nil {
		l := zerolog.New(os.Stdout).With().Timestamp().Logger()
		logger = &l
	}
	if location == nil {
		location = time.UTC
	}

	return &Bot{
		client:   client,
		bookings: bookings,
		catalog:  cat,
		exporter: exporter,
		managers: managers,
		location: location,
		now:      time.Now,
		logger:   logger,
	}
}

func (b *Bot) Start(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.client.GetUpdatesChan(u)

	b.logger.Info().Str("username", b.client.GetSelf().UserName).Msg("Authorized on account")

	for {
		select {
		case <-ctx.Done():
			b.logger.Info().Msg("Bot stopping...")
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			b.processUpdate(ctx, update)
		}
	}
}

// Stop closes the long-poll connection; Start returns once the updates channel drains.
func (b *Bot) Stop() {
	b.client.StopReceivingUpdates()
}

func (b *Bot) processUpdate(ctx context.Context, update tgbotapi.Update) {
	start := time.Now()
	defer func() {
		metrics.ObserveBotUpdate(time.Since(start))
	}()

	updateCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	updateCtx, l := logging.WithRequestID(updateCtx, b.logger, uuid.New().String())

	b.withRecovery(func() {
		switch {
		case update.CallbackQuery != nil:
			if !b.isManager(update.CallbackQuery.From.ID) {
				b.answerCallback(update.CallbackQuery.ID, "Not allowed")
				return
			}
			b.handleCallback(updateCtx, update.CallbackQuery)
		case update.Message != nil && update.Message.From != nil:
			if !b.isManager(update.Message.From.ID) {
				l.Warn().Int64("user_id", update.Message.From.ID).Msg("Ignoring message from unknown user")
				return
			}
			if update.Message.IsCommand() {
				b.handleCommand(updateCtx, update.Message)
			}
		}
	})
}

func (b *Bot) isManager(userID int64) bool {
	for _, managerID := range b.managers {
		if userID == managerID {
			return true
		}
	}
	return false
}

func (b *Bot) today() time.Time {
	y, m, d := b.now().In(b.location).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
