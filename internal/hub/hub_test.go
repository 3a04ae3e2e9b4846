package hub

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/laminarci/laminar/internal/model"
	"github.com/stretchr/testify/require"
)

func TestPublishScoping(t *testing.T) {
	h := New()
	dash := h.Subscribe(ScopeDashboard, "", 0)
	jobSub := h.Subscribe(ScopeJob, "hello", 0)
	runSub := h.Subscribe(ScopeRun, "hello", 2)
	otherRunSub := h.Subscribe(ScopeRun, "hello", 1)

	h.Publish(Event{Type: EventStarted, Job: "hello", Build: 2})

	select {
	case ev := <-dash.Events:
		require.Equal(t, "hello", ev.Job)
	default:
		t.Fatal("dashboard subscriber should have received the event")
	}
	select {
	case <-jobSub.Events:
	default:
		t.Fatal("job subscriber should have received the event")
	}
	select {
	case <-runSub.Events:
	default:
		t.Fatal("matching run subscriber should have received the event")
	}
	select {
	case <-otherRunSub.Events:
		t.Fatal("non-matching run subscriber should not have received the event")
	default:
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	h := New()
	sub := h.Subscribe(ScopeDashboard, "", 0)
	h.Unsubscribe(sub.ID)

	_, ok := <-sub.Events
	require.False(t, ok)
}

func TestOverflowDisconnectsSlowSubscriber(t *testing.T) {
	h := New()
	var overflowedID uuid.UUID
	h.OnOverflow(func(id uuid.UUID) { overflowedID = id })
	sub := h.Subscribe(ScopeDashboard, "", 0)

	for i := 0; i < bufferWatermark+10; i++ {
		h.Publish(Event{Type: EventLogChunk, Job: "hello", Build: 1})
	}

	_, ok := <-sub.Events
	require.True(t, ok, "some buffered events should still be readable")

	require.Equal(t, 0, h.SubscriberCount(), "the overflowing subscriber must have been disconnected")
	require.Equal(t, sub.ID, overflowedID)
}

func TestWaitResolvesInRegistrationOrder(t *testing.T) {
	h := New()
	run := model.NewRun("hello", 1, model.Unknown)
	run.State = model.Running

	w1 := h.Wait(run)
	w2 := h.Wait(run)

	run.State = model.Success
	h.Resolve(run)

	select {
	case s := <-w1:
		require.Equal(t, model.Success, s)
	case <-time.After(time.Second):
		t.Fatal("w1 never resolved")
	}
	select {
	case s := <-w2:
		require.Equal(t, model.Success, s)
	case <-time.After(time.Second):
		t.Fatal("w2 never resolved")
	}
}

func TestWaitOnAlreadyCompleteRunResolvesImmediately(t *testing.T) {
	h := New()
	run := model.NewRun("hello", 1, model.Unknown)
	run.State = model.Failed

	ch := h.Wait(run)
	select {
	case s := <-ch:
		require.Equal(t, model.Failed, s)
	default:
		t.Fatal("waiting on an already-complete run must resolve without blocking")
	}
}
