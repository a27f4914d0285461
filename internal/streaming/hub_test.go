package streaming

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rvergara/maestro/pkg/schema"
)

func recv(t *testing.T, ch <-chan *schema.Event) *schema.Event {
	t.Helper()
	select {
	case e := <-ch:
		return e
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return nil
	}
}

func TestBroadcastReachesAllSubscribers(t *testing.T) {
	h := NewHub()
	ch1, cancel1 := h.Subscribe(Filter{})
	ch2, cancel2 := h.Subscribe(Filter{})
	defer cancel1()
	defer cancel2()

	h.Broadcast(&schema.Event{WorkflowID: "wf-1", Type: schema.EventWorkflowStarted})

	assert.Equal(t, "wf-1", recv(t, ch1).WorkflowID)
	assert.Equal(t, "wf-1", recv(t, ch2).WorkflowID)
}

func TestFilterByWorkflowID(t *testing.T) {
	h := NewHub()
	ch, cancel := h.Subscribe(Filter{WorkflowID: "wf-2"})
	defer cancel()

	h.Broadcast(&schema.Event{WorkflowID: "wf-1", Type: schema.EventStageStarted})
	h.Broadcast(&schema.Event{WorkflowID: "wf-2", Type: schema.EventStageStarted})

	got := recv(t, ch)
	assert.Equal(t, "wf-2", got.WorkflowID)
	select {
	case e := <-ch:
		t.Fatalf("unexpected event for %s", e.WorkflowID)
	default:
	}
}

func TestFilterByEventType(t *testing.T) {
	h := NewHub()
	ch, cancel := h.Subscribe(Filter{EventTypes: []string{schema.EventStageFailed, schema.EventWorkflowFailed}})
	defer cancel()

	h.Broadcast(&schema.Event{WorkflowID: "wf-1", Type: schema.EventStageCompleted})
	h.Broadcast(&schema.Event{WorkflowID: "wf-1", Type: schema.EventStageFailed})

	assert.Equal(t, schema.EventStageFailed, recv(t, ch).Type)
}

func TestSlowSubscriberDropsInsteadOfBlocking(t *testing.T) {
	h := NewHub()
	ch, cancel := h.Subscribe(Filter{})
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < subscriberBuffer+10; i++ {
			h.Broadcast(&schema.Event{WorkflowID: "wf-1", Type: schema.EventStageStarted})
		}
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("broadcast blocked on a full subscriber")
	}
	assert.Len(t, ch, subscriberBuffer)
}

func TestCancelRemovesSubscriberAndClosesChannel(t *testing.T) {
	h := NewHub()
	ch, cancel := h.Subscribe(Filter{})
	require.Equal(t, 1, h.SubscriberCount())

	cancel()
	cancel() // idempotent

	assert.Equal(t, 0, h.SubscriberCount())
	_, open := <-ch
	assert.False(t, open)

	h.Broadcast(&schema.Event{WorkflowID: "wf-1", Type: schema.EventStageStarted})
}
