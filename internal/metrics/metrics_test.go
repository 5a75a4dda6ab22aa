package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics(t *testing.T) {
	// Register should be safe to call multiple times
	Register()
	Register()

	assert.NotPanics(t, func() {
		IncHTTP("test_endpoint")
	})

	before := testutil.ToFloat64(submissions.WithLabelValues("accepted"))
	IncSubmission("accepted")
	assert.Equal(t, before+1, testutil.ToFloat64(submissions.WithLabelValues("accepted")))

	conflicts := testutil.ToFloat64(slotConflicts)
	IncSlotConflict()
	assert.Equal(t, conflicts+1, testutil.ToFloat64(slotConflicts))

	IncTransition("confirmed")
	IncNotification("sent")

	commands := testutil.ToFloat64(botCommands.WithLabelValues("today"))
	IncBotCommand("today")
	assert.Equal(t, commands+1, testutil.ToFloat64(botCommands.WithLabelValues("today")))
	ObserveBotUpdate(10 * time.Millisecond)

	expired := testutil.ToFloat64(pendingExpired)
	AddPendingExpired(3)
	assert.Equal(t, expired+3, testutil.ToFloat64(pendingExpired))
}
