package ws

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/techscaniq/diligence/internal/pipeline"
)

func TestHubBroadcastReachesRunSubscribers(t *testing.T) {
	hub := NewHub(nil, nil)

	one := hub.subscribe("run_1")
	other := hub.subscribe("run_2")
	defer hub.unsubscribe("run_1", one)
	defer hub.unsubscribe("run_2", other)

	hub.Broadcast(pipeline.Event{RunID: "run_1", Phase: pipeline.PhaseAnalysis, Status: pipeline.EventStarted})

	select {
	case event := <-one:
		assert.Equal(t, pipeline.PhaseAnalysis, event.Phase)
	case <-time.After(time.Second):
		t.Fatal("subscriber never received the event")
	}

	select {
	case <-other:
		t.Fatal("event leaked to another run's subscriber")
	default:
	}
}

func TestHubBroadcastDropsWhenSubscriberIsFull(t *testing.T) {
	hub := NewHub(nil, nil)
	ch := hub.subscribe("run_1")
	defer hub.unsubscribe("run_1", ch)

	// Overfill the buffer; Broadcast must not block
	for i := 0; i < subscriberBuffer+10; i++ {
		hub.Broadcast(pipeline.Event{RunID: "run_1", Phase: pipeline.PhaseEvidence})
	}

	assert.Len(t, ch, subscriberBuffer)
}

func TestHubUnsubscribeRemovesRun(t *testing.T) {
	hub := NewHub(nil, nil)
	ch := hub.subscribe("run_1")
	hub.unsubscribe("run_1", ch)

	hub.mu.RLock()
	defer hub.mu.RUnlock()
	assert.Empty(t, hub.subs)
}
