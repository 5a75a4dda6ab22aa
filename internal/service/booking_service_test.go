package service

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"
	_ "time/tzdata"

	"shinebin/internal/availability"
	"shinebin/internal/catalog"
	"shinebin/internal/config"
	"shinebin/internal/database"
	"shinebin/internal/events"
	"shinebin/internal/models"
	"shinebin/internal/repository"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2030, 1, 1, 10, 0, 0, 0, time.UTC)

type recordingDispatcher struct {
	mu       sync.Mutex
	bookings []*models.Booking
}

func (d *recordingDispatcher) Dispatch(b *models.Booking) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.bookings = append(d.bookings, b)
}

func (d *recordingDispatcher) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.bookings)
}

// failingRepo stores nothing; every write fails.
type failingRepo struct {
	*database.DB
	err error
}

func (r *failingRepo) CreateBooking(context.Context, *models.Booking) error {
	return r.err
}

type fixture struct {
	svc        *BookingService
	db         *database.DB
	index      *availability.Index
	dispatcher *recordingDispatcher
	bus        *events.EventBus
}

func newFixture(t *testing.T, cfg config.BookingConfig) *fixture {
	t.Helper()
	logger := zerolog.Nop()
	db, err := database.NewDB(config.DatabaseConfig{
		Driver: database.DriverSQLite,
		Path:   filepath.Join(t.TempDir(), "service.db"),
	}, &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	if cfg.MaxBookingDays == 0 {
		cfg.MaxBookingDays = 90
	}
	cat := catalog.Default()
	index := availability.NewIndex(db, repository.NewMemoryCacheRepository(time.Minute), cat, &logger)
	dispatcher := &recordingDispatcher{}
	bus := events.NewEventBus()

	svc := NewBookingService(db, index, cat, dispatcher, bus, cfg, &logger)
	svc.now = func() time.Time { return fixedNow }
	return &fixture{svc: svc, db: db, index: index, dispatcher: dispatcher, bus: bus}
}

func candidate() models.Candidate {
	return models.Candidate{
		Name:          "Jane Doe",
		Email:         "jane@example.com",
		Address:       "12 Elm St",
		Plan:          "one-time",
		BinQuantity:   3,
		Date:          "2030-01-02",
		TimeSlot:      "08:00-10:00",
		Addons:        []string{"deodorizer"},
		PaymentMethod: models.PaymentCash,
	}
}

func slotFree(t *testing.T, idx *availability.Index, date, slot string) bool {
	t.Helper()
	d, err := time.Parse(models.DateLayout, date)
	require.NoError(t, err)
	free, err := idx.IsFree(context.Background(), d, slot)
	require.NoError(t, err)
	return free
}

func TestSubmit(t *testing.T) {
	f := newFixture(t, config.BookingConfig{})
	ctx := context.Background()

	var created []events.BookingEventPayload
	f.bus.Subscribe(events.EventBookingCreated, func(e *events.Event) error {
		var p events.BookingEventPayload
		require.NoError(t, json.Unmarshal(e.Payload, &p))
		created = append(created, p)
		return nil
	})

	b, err := f.svc.Submit(ctx, candidate())
	require.NoError(t, err)

	assert.NotEmpty(t, b.ID)
	assert.Equal(t, models.StatusPending, b.Status)
	assert.Equal(t, models.Dollars(32, 0), b.TotalPrice)
	assert.Equal(t, int64(1), b.Version)
	assert.False(t, slotFree(t, f.index, "2030-01-02", "08:00-10:00"))
	assert.Equal(t, 1, f.dispatcher.count())

	require.Len(t, created, 1)
	assert.Equal(t, b.ID, created[0].BookingID)

	stored, err := f.svc.GetBooking(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, "Jane Doe", stored.Customer.Name)
	assert.Equal(t, []string{"deodorizer"}, stored.Addons)
}

func TestSubmitConflict(t *testing.T) {
	f := newFixture(t, config.BookingConfig{})
	ctx := context.Background()

	_, err := f.svc.Submit(ctx, candidate())
	require.NoError(t, err)

	second := candidate()
	second.Email = "bob@example.com"
	_, err = f.svc.Submit(ctx, second)

	var conflict *availability.ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.ErrorIs(t, err, availability.ErrSlotUnavailable)
	assert.Equal(t, 1, f.dispatcher.count())
}

func TestSubmitMutualExclusion(t *testing.T) {
	f := newFixture(t, config.BookingConfig{})
	ctx := context.Background()

	const workers = 20
	var wg sync.WaitGroup
	var mu sync.Mutex
	successes, conflicts := 0, 0

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Submit(ctx, candidate())
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, availability.ErrSlotUnavailable):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, workers-1, conflicts)

	bookings, err := f.svc.ListBookings(ctx, time.Date(2030, 1, 2, 0, 0, 0, 0, time.UTC), time.Date(2030, 1, 2, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Len(t, bookings, 1)
}

func TestSubmitValidation(t *testing.T) {
	f := newFixture(t, config.BookingConfig{})

	tests := []struct {
		name   string
		modify func(c *models.Candidate)
		field  string
	}{
		{"missing name", func(c *models.Candidate) { c.Name = "  " }, "name"},
		{"missing email", func(c *models.Candidate) { c.Email = "" }, "email"},
		{"email without at", func(c *models.Candidate) { c.Email = "jane.example.com" }, "email"},
		{"missing address", func(c *models.Candidate) { c.Address = "" }, "address"},
		{"unknown plan", func(c *models.Candidate) { c.Plan = "weekly" }, "plan"},
		{"zero quantity", func(c *models.Candidate) { c.BinQuantity = 0 }, "binQuantity"},
		{"bad date", func(c *models.Candidate) { c.Date = "01/02/2030" }, "date"},
		{"past date", func(c *models.Candidate) { c.Date = "2029-12-31" }, "date"},
		{"beyond horizon", func(c *models.Candidate) { c.Date = "2030-06-01" }, "date"},
		{"unknown slot", func(c *models.Candidate) { c.TimeSlot = "07:00-08:00" }, "timeSlot"},
		{"duplicate addon", func(c *models.Candidate) { c.Addons = []string{"deodorizer", "deodorizer"} }, "addons"},
		{"unknown addon", func(c *models.Candidate) { c.Addons = []string{"glitter"} }, "addons"},
		{"unknown payment", func(c *models.Candidate) { c.PaymentMethod = "bitcoin" }, "paymentMethod"},
		{"first violation wins", func(c *models.Candidate) { c.Name = ""; c.BinQuantity = 0 }, "name"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := candidate()
			tt.modify(&c)

			_, err := f.svc.Submit(context.Background(), c)
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
		})
	}

	assert.True(t, slotFree(t, f.index, "2030-01-02", "08:00-10:00"), "validation failures must not reserve")
	assert.Zero(t, f.dispatcher.count())
}

func TestSubmitUnknownAddonWrapsCatalogError(t *testing.T) {
	f := newFixture(t, config.BookingConfig{})
	c := candidate()
	c.Addons = []string{"glitter"}

	_, err := f.svc.Submit(context.Background(), c)
	var addonErr *catalog.UnknownAddonError
	require.ErrorAs(t, err, &addonErr)
	assert.Equal(t, "glitter", addonErr.Addon)
	assert.True(t, slotFree(t, f.index, "2030-01-02", "08:00-10:00"))
}

func TestSubmitTodayIsAllowed(t *testing.T) {
	f := newFixture(t, config.BookingConfig{})
	c := candidate()
	c.Date = "2030-01-01"

	_, err := f.svc.Submit(context.Background(), c)
	assert.NoError(t, err)
}

func TestSubmitTimezone(t *testing.T) {
	// 10:00 UTC on Jan 1 is still Dec 31 in Honolulu
	f := newFixture(t, config.BookingConfig{Timezone: "Pacific/Honolulu"})
	c := candidate()
	c.Date = "2029-12-31"

	_, err := f.svc.Submit(context.Background(), c)
	assert.NoError(t, err)
}

func TestSubmitClientTotal(t *testing.T) {
	wrong := models.Dollars(1, 0)

	t.Run("discarded by default", func(t *testing.T) {
		f := newFixture(t, config.BookingConfig{})
		c := candidate()
		c.TotalPrice = &wrong

		b, err := f.svc.Submit(context.Background(), c)
		require.NoError(t, err)
		assert.Equal(t, models.Dollars(32, 0), b.TotalPrice)
	})

	t.Run("rejected when configured", func(t *testing.T) {
		f := newFixture(t, config.BookingConfig{RejectPriceMismatch: true})
		c := candidate()
		c.TotalPrice = &wrong

		_, err := f.svc.Submit(context.Background(), c)
		var verr *ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, "totalPrice", verr.Field)
		assert.True(t, slotFree(t, f.index, "2030-01-02", "08:00-10:00"))
	})

	t.Run("matching total accepted", func(t *testing.T) {
		f := newFixture(t, config.BookingConfig{RejectPriceMismatch: true})
		c := candidate()
		right := models.Dollars(32, 0)
		c.TotalPrice = &right

		_, err := f.svc.Submit(context.Background(), c)
		assert.NoError(t, err)
	})
}

func TestSubmitRollbackOnPersistenceFailure(t *testing.T) {
	f := newFixture(t, config.BookingConfig{})
	logger := zerolog.Nop()
	svc := NewBookingService(&failingRepo{DB: f.db, err: errors.New("disk full")}, f.index, catalog.Default(), f.dispatcher, nil, config.BookingConfig{MaxBookingDays: 90}, &logger)
	svc.now = func() time.Time { return fixedNow }

	ctx, cancel := context.WithCancel(context.Background())
	_, err := svc.Submit(ctx, candidate())
	cancel()

	var perr *PersistenceError
	require.ErrorAs(t, err, &perr)
	assert.True(t, slotFree(t, f.index, "2030-01-02", "08:00-10:00"), "reservation must be released")
	assert.Zero(t, f.dispatcher.count())

	// the slot is bookable again through a healthy path
	_, err = f.svc.Submit(context.Background(), candidate())
	assert.NoError(t, err)
}

func TestTransitions(t *testing.T) {
	f := newFixture(t, config.BookingConfig{})
	ctx := context.Background()

	b, err := f.svc.Submit(ctx, candidate())
	require.NoError(t, err)

	_, err = f.svc.Complete(ctx, b.ID, b.Version)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	confirmed, err := f.svc.Confirm(ctx, b.ID, b.Version)
	require.NoError(t, err)
	assert.Equal(t, models.StatusConfirmed, confirmed.Status)
	assert.Equal(t, b.Version+1, confirmed.Version)

	_, err = f.svc.Complete(ctx, b.ID, b.Version)
	assert.ErrorIs(t, err, ErrConcurrentModification)

	completed, err := f.svc.Complete(ctx, b.ID, confirmed.Version)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, completed.Status)

	_, err = f.svc.Cancel(ctx, b.ID, completed.Version, "")
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = f.svc.Confirm(ctx, "missing", 1)
	assert.ErrorIs(t, err, ErrBookingNotFound)
}

func TestCancelReleasesSlot(t *testing.T) {
	for _, confirmFirst := range []bool{false, true} {
		f := newFixture(t, config.BookingConfig{})
		ctx := context.Background()

		b, err := f.svc.Submit(ctx, candidate())
		require.NoError(t, err)
		version := b.Version
		if confirmFirst {
			c, err := f.svc.Confirm(ctx, b.ID, version)
			require.NoError(t, err)
			version = c.Version
		}

		cancelled, err := f.svc.Cancel(ctx, b.ID, version, models.CancelReasonCustomer)
		require.NoError(t, err)
		assert.Equal(t, models.StatusCancelled, cancelled.Status)
		assert.Equal(t, models.CancelReasonCustomer, cancelled.CancelReason)

		assert.True(t, slotFree(t, f.index, "2030-01-02", "08:00-10:00"))

		next := candidate()
		next.Email = "next@example.com"
		_, err = f.svc.Submit(ctx, next)
		assert.NoError(t, err, "cancelled slot must be bookable again")
	}
}

func TestCompletedKeepsSlotFree(t *testing.T) {
	f := newFixture(t, config.BookingConfig{})
	ctx := context.Background()

	b, err := f.svc.Submit(ctx, candidate())
	require.NoError(t, err)
	c, err := f.svc.Confirm(ctx, b.ID, b.Version)
	require.NoError(t, err)
	_, err = f.svc.Complete(ctx, b.ID, c.Version)
	require.NoError(t, err)

	assert.True(t, slotFree(t, f.index, "2030-01-02", "08:00-10:00"))

	again, err := f.svc.Submit(ctx, candidate())
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, again.Status)
}

func TestSubmitAboveFormBound(t *testing.T) {
	f := newFixture(t, config.BookingConfig{})

	c := candidate()
	c.BinQuantity = 7
	b, err := f.svc.Submit(context.Background(), c)
	require.NoError(t, err)
	assert.Equal(t, 7, b.BinQuantity)
	assert.Equal(t, models.Dollars(72, 0), b.TotalPrice)
}

func TestSubmitRejectsUnpriceableQuantity(t *testing.T) {
	f := newFixture(t, config.BookingConfig{})

	c := candidate()
	c.BinQuantity = 9223372036854776
	_, err := f.svc.Submit(context.Background(), c)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "binQuantity", verr.Field)
	assert.True(t, slotFree(t, f.index, "2030-01-02", "08:00-10:00"))
	assert.Zero(t, f.dispatcher.count())
}

func TestQuote(t *testing.T) {
	f := newFixture(t, config.BookingConfig{})

	q, err := f.svc.Quote("one-time", 6, []string{"deodorizer", "recycle-bin"})
	require.NoError(t, err)
	assert.Equal(t, models.Dollars(67, 0), q.Total)

	_, err = f.svc.Quote("one-time", 0, nil)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "binQuantity", verr.Field)

	_, err = f.svc.Quote("weekly", 1, nil)
	var planErr *catalog.UnknownPlanError
	assert.ErrorAs(t, err, &planErr)
}

func TestAvailability(t *testing.T) {
	f := newFixture(t, config.BookingConfig{})
	ctx := context.Background()

	late := candidate()
	late.TimeSlot = "16:00-18:00"
	_, err := f.svc.Submit(ctx, late)
	require.NoError(t, err)
	_, err = f.svc.Submit(ctx, candidate())
	require.NoError(t, err)

	date := time.Date(2030, 1, 2, 0, 0, 0, 0, time.UTC)
	a, err := f.svc.Availability(ctx, date)
	require.NoError(t, err)
	assert.Equal(t, []string{"08:00-10:00", "16:00-18:00"}, a.OccupiedSlots)

	a, err = f.svc.Availability(ctx, date.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.Empty(t, a.OccupiedSlots)
}

func TestListBookingsRange(t *testing.T) {
	f := newFixture(t, config.BookingConfig{})
	_, err := f.svc.ListBookings(context.Background(), fixedNow, fixedNow.AddDate(0, 0, -1))
	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)
}
