package service

import (
	"testing"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/stretchr/testify/assert"
)

func TestFlushingPublisherClearsOnAnalyticsEvents(t *testing.T) {
	store := cache.New(time.Minute, time.Minute)
	next := &recordingPublisher{}
	pub := NewFlushingPublisher(next, store)

	store.Set("k", 1, cache.DefaultExpiration)
	pub.Publish(EventProductionDigest, nil)
	assert.Equal(t, 1, store.ItemCount())

	flushing := []string{
		EventYieldCalculated,
		EventYieldInvalidated,
		EventBatchStatusChanged,
		EventOrderStatusChanged,
		EventOrderRescheduled,
	}
	for _, event := range flushing {
		store.Set("k", 1, cache.DefaultExpiration)
		pub.Publish(event, nil)
		assert.Equal(t, 0, store.ItemCount(), event)
	}

	assert.Equal(t, append([]string{EventProductionDigest}, flushing...), next.names())
}
