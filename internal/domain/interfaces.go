package domain

import (
	"context"
	"time"

	"shinebin/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// SlotStore is the persistence side of slot reservation.
type SlotStore interface {
	TryReserve(ctx context.Context, date, slot string) (string, error)
	Release(ctx context.Context, token string) (models.SlotHold, bool, error)
	ListOccupied(ctx context.Context, date string) ([]string, error)
	IsFree(ctx context.Context, date, slot string) (bool, error)
	PurgeStaleHolds(ctx context.Context, before time.Time) ([]models.SlotHold, error)
}

type BookingRepository interface {
	CreateBooking(ctx context.Context, booking *models.Booking) error
	GetBooking(ctx context.Context, id string) (*models.Booking, error)
	UpdateBookingStatusWithVersion(ctx context.Context, id string, fromVersion int64, status, reason string) error
	GetBookingsByDateRange(ctx context.Context, from, to string) ([]*models.Booking, error)
	GetExpiredPending(ctx context.Context, before time.Time, limit int) ([]*models.Booking, error)
}

type NotificationQueue interface {
	CreateNotificationTask(ctx context.Context, task *models.NotificationTask) error
	GetPendingNotificationTasks(ctx context.Context, limit int) ([]models.NotificationTask, error)
	UpdateNotificationTaskStatus(ctx context.Context, id int64, status, errMsg string, nextRetryAt *time.Time) error
}

// FailedNotifications lists alerts the worker gave up on.
type FailedNotifications interface {
	GetFailedNotificationTasks(ctx context.Context, limit int) ([]models.NotificationTask, error)
}

// AddressSource lists addresses seen on earlier bookings.
type AddressSource interface {
	SuggestAddresses(ctx context.Context, prefix string, limit int) ([]string, error)
}

// SlotCache remembers recently occupied slots. A hit means "occupied"; a miss
// means nothing and must be confirmed against the SlotStore.
type SlotCache interface {
	IsOccupied(ctx context.Context, date, slot string) (bool, error)
	MarkOccupied(ctx context.Context, date, slot string) error
	Forget(ctx context.Context, date, slot string) error
}

type RateLimiter interface {
	CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// CacheRepository is the shared ephemeral store: slot cache plus rate counters.
type CacheRepository interface {
	SlotCache
	RateLimiter
}

type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}

// Dispatcher hands a booking to the notification pipeline without blocking.
type Dispatcher interface {
	Dispatch(booking *models.Booking)
}

type TelegramSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramClient is the subset of the Bot API used by the operator bot.
type TelegramClient interface {
	TelegramSender
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	GetSelf() tgbotapi.User
	StopReceivingUpdates()
}

// BookingOperator is the operator side of the booking lifecycle.
type BookingOperator interface {
	GetBooking(ctx context.Context, id string) (*models.Booking, error)
	Confirm(ctx context.Context, id string, version int64) (*models.Booking, error)
	Complete(ctx context.Context, id string, version int64) (*models.Booking, error)
	Cancel(ctx context.Context, id string, version int64, reason string) (*models.Booking, error)
	ListBookings(ctx context.Context, from, to time.Time) ([]*models.Booking, error)
}
