package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetricsRegistration(t *testing.T) {
	assert.NotNil(t, HTTPRequests)
	assert.NotNil(t, HTTPRequestDuration)
	assert.NotNil(t, AppointmentTransitions)
	assert.NotNil(t, ContractsCreated)
	assert.NotNil(t, PaymentsRecorded)
	assert.NotNil(t, CacheErrors)
	assert.NotNil(t, SQLitePoolOpenConnections)
}

func TestCounters_Increment(t *testing.T) {
	before := testutil.ToFloat64(AppointmentTransitions.WithLabelValues("confirmé"))
	AppointmentTransitions.WithLabelValues("confirmé").Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(AppointmentTransitions.WithLabelValues("confirmé")))

	CacheMisses.WithLabelValues("lru").Inc()
	assert.GreaterOrEqual(t, testutil.ToFloat64(CacheMisses.WithLabelValues("lru")), 1.0)
}
