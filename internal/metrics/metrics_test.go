package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestOutcome(t *testing.T) {
	assert.Equal(t, "ok", Outcome("voucher_expired", nil))
	assert.Equal(t, "voucher_expired", Outcome("voucher_expired", errors.New("boom")))
}

func TestCountersIncrement(t *testing.T) {
	before := testutil.ToFloat64(Redemptions.WithLabelValues("ok"))
	Redemptions.WithLabelValues("ok").Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(Redemptions.WithLabelValues("ok")))

	before = testutil.ToFloat64(WebhookEvents.WithLabelValues("checkout.completed", "ok"))
	WebhookEvents.WithLabelValues("checkout.completed", "ok").Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(WebhookEvents.WithLabelValues("checkout.completed", "ok")))
}
