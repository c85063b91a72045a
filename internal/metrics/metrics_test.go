package metrics

import (
	"testing"

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

	before := testutil.ToFloat64(projectorEvents.WithLabelValues("UPDATED", "applied"))
	IncProjector("UPDATED", "applied")
	IncProjector("UPDATED", "applied")
	assert.Equal(t, before+2, testutil.ToFloat64(projectorEvents.WithLabelValues("UPDATED", "applied")))

	IncBooking("create", "slot_taken")
	assert.Equal(t, 1.0, testutil.ToFloat64(bookingOutcomes.WithLabelValues("create", "slot_taken")))

	IncPublishFailure("DELETED")
	IncOutbox("completed")
	assert.Equal(t, 1.0, testutil.ToFloat64(publishFailures.WithLabelValues("DELETED")))

	IncBackup("failed")
	assert.Equal(t, 1.0, testutil.ToFloat64(backups.WithLabelValues("failed")))
}
