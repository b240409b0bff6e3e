package kafka

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProducerMetrics_Registered(t *testing.T) {
	// Counters with no observations are invisible to Gather, so touch each
	// collector before asserting registration.
	ProducerMessagesPublished.WithLabelValues("probe-topic")
	ProducerPublishErrors.WithLabelValues("probe-topic")
	ProducerPublishDuration.WithLabelValues("probe-topic")

	families, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)

	names := make(map[string]bool, len(families))
	for _, fam := range families {
		names[fam.GetName()] = true
	}

	for _, name := range []string{
		"kafka_producer_messages_published_total",
		"kafka_producer_publish_errors_total",
		"kafka_producer_publish_duration_seconds",
	} {
		assert.True(t, names[name], "expected metric %q to be registered", name)
	}
}

func TestProducerCounters_Increment(t *testing.T) {
	// Unique label value so parallel test runs cannot interfere.
	topic := "metrics-increment-probe"

	published := ProducerMessagesPublished.WithLabelValues(topic)
	errors := ProducerPublishErrors.WithLabelValues(topic)

	beforePublished := testutil.ToFloat64(published)
	beforeErrors := testutil.ToFloat64(errors)

	published.Inc()
	published.Inc()
	errors.Inc()

	assert.Equal(t, beforePublished+2, testutil.ToFloat64(published))
	assert.Equal(t, beforeErrors+1, testutil.ToFloat64(errors))
}

func TestPublishDuration_Observes(t *testing.T) {
	before := testutil.CollectAndCount(ProducerPublishDuration)
	ProducerPublishDuration.WithLabelValues("duration-probe").Observe(0.042)
	after := testutil.CollectAndCount(ProducerPublishDuration)
	assert.GreaterOrEqual(t, after, before)
}
