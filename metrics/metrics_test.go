package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCollector_Observations(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.ObserveTransition("IDLE", "EXECUTING")
	c.ObserveTransition("IDLE", "EXECUTING")
	c.ObserveTransitionReject()
	c.ObserveHealthCheck(true)
	c.ObserveHealthCheck(false)
	c.ObserveStep("agent", "succeeded", 50*time.Millisecond)
	c.ObserveStepRetry()
	c.RunStarted()
	c.RunSettled("SUCCEEDED", 0.42)
	c.SetTrackedInstances(3)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.transitionsTotal.WithLabelValues("IDLE", "EXECUTING")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.transitionRejects))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.healthChecksTotal.WithLabelValues("true")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.healthChecksTotal.WithLabelValues("false")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.stepsTotal.WithLabelValues("agent", "succeeded")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.stepRetriesTotal))
	assert.Equal(t, 0.0, testutil.ToFloat64(c.activeRuns))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.runsTotal.WithLabelValues("SUCCEEDED")))
	assert.Equal(t, 0.42, testutil.ToFloat64(c.runCostUSD))
	assert.Equal(t, 3.0, testutil.ToFloat64(c.trackedInstances))
}

func TestCollector_NilIsNoOp(t *testing.T) {
	var c *Collector

	assert.NotPanics(t, func() {
		c.ObserveTransition("IDLE", "EXECUTING")
		c.ObserveTransitionReject()
		c.ObserveHealthCheck(true)
		c.ObserveStep("agent", "failed", time.Second)
		c.ObserveStepRetry()
		c.RunStarted()
		c.RunSettled("FAILED", 1.0)
		c.SetTrackedInstances(0)
	})
}
