package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestPromSink_RoutesEvents(t *testing.T) {
	sink := NewPromSink()

	sink.Record(EventCacheHit, 1, map[string]string{"operation": "product_analysis", "kind": "exact"})
	sink.Record(EventCacheHit, 1, map[string]string{"operation": "product_analysis", "kind": "exact"})
	sink.Record(EventCostSaved, 0.05, map[string]string{"operation": "product_analysis"})

	assert.Equal(t, 2.0,
		testutil.ToFloat64(CacheHits.WithLabelValues("product_analysis", "exact")))
	assert.Equal(t, 0.05,
		testutil.ToFloat64(CostSaved.WithLabelValues("product_analysis")))
}

func TestPromSink_UnknownEventDropped(t *testing.T) {
	sink := NewPromSink()
	assert.NotPanics(t, func() {
		sink.Record("made_up_event", 1, nil)
		sink.Record(EventCacheMiss, 1, nil)
	})
}

func TestNopSink(t *testing.T) {
	var s Sink = NopSink{}
	assert.NotPanics(t, func() { s.Record(EventRequest, 1, nil) })
}
