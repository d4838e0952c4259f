package hub

import (
	"context"
	"testing"
	"time"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met")
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func TestHub_RunStops(t *testing.T) {
	h := New("test", nil)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(done)
	}()
	waitFor(t, h.IsRunning)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if h.IsRunning() {
		t.Error("IsRunning() = true after Run returned")
	}
}

func TestHub_BroadcastToClients(t *testing.T) {
	h := New("test", nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.Run(ctx)

	c, err := NewClient(ctx, h, nil, []byte(`{"initial":true}`))
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	waitFor(t, func() bool { return h.ClientCount() == 1 })

	if err := h.BroadcastJSON(map[string]string{"type": "state"}); err != nil {
		t.Fatalf("BroadcastJSON() error = %v", err)
	}

	if got := string(<-c.send); got != `{"initial":true}` {
		t.Errorf("first message = %s", got)
	}
	select {
	case got := <-c.send:
		if string(got) != `{"type":"state"}` {
			t.Errorf("broadcast = %s", got)
		}
	case <-time.After(time.Second):
		t.Fatal("broadcast not delivered")
	}
}

func TestHub_DropsSlowClient(t *testing.T) {
	h := New("test", nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.Run(ctx)

	c, err := NewClient(ctx, h, nil, nil)
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	waitFor(t, func() bool { return h.ClientCount() == 1 })

	for i := 0; i < sendBuffer+1; i++ {
		h.Broadcast([]byte("x"))
		time.Sleep(time.Millisecond)
	}
	waitFor(t, func() bool { return h.ClientCount() == 0 })

	n := 0
	for range c.send {
		n++
	}
	if n != sendBuffer {
		t.Errorf("queued %d messages before drop, want %d", n, sendBuffer)
	}
}

func TestHub_BroadcastJSONError(t *testing.T) {
	h := New("test", nil)
	if err := h.BroadcastJSON(make(chan int)); err == nil {
		t.Error("BroadcastJSON(chan) error = nil")
	}
}

func TestNewClient_HubNotRunning(t *testing.T) {
	h := New("test", nil)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	if _, err := NewClient(ctx, h, nil, nil); err == nil {
		t.Error("NewClient() without a running hub should fail on ctx")
	}
}
