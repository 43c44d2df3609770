package liveserver

import (
	"context"
	"testing"
	"time"
)

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestHubBroadcastReachesAllClients(t *testing.T) {
	hub := NewHub(nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	c1 := NewClient("c1")
	c2 := NewClient("c2")
	hub.Register(c1)
	hub.Register(c2)
	waitFor(t, func() bool { return hub.ClientCount() == 2 }, "clients never registered")

	hub.Broadcast(NewMessage(TypeWindowDetected, WindowEvent{Seller: "butterandcrumble", WindowID: "w1"}))

	for _, c := range []*Client{c1, c2} {
		select {
		case msg := <-c.SendChan():
			if msg.Type != TypeWindowDetected {
				t.Errorf("expected window_detected, got %s", msg.Type)
			}
		case <-time.After(time.Second):
			t.Fatalf("client %s never received the broadcast", c.id)
		}
	}
}

func TestHubDropsSlowClient(t *testing.T) {
	hub := NewHub(nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	slow := NewClient("slow")
	hub.Register(slow)
	waitFor(t, func() bool { return hub.ClientCount() == 1 }, "client never registered")

	// Fill the client's buffer without draining it, then keep
	// broadcasting until the hub gives up on it.
	for i := 0; i < 300; i++ {
		hub.Broadcast(NewMessage(TypeHeartbeat, nil))
		time.Sleep(time.Millisecond)
		if hub.ClientCount() == 0 {
			break
		}
	}
	waitFor(t, func() bool { return hub.ClientCount() == 0 }, "slow client was never dropped")
}

func TestHubShutdownClosesClients(t *testing.T) {
	hub := NewHub(nil)
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	c := NewClient("c")
	hub.Register(c)
	waitFor(t, func() bool { return hub.ClientCount() == 1 }, "client never registered")

	cancel()
	waitFor(t, func() bool {
		select {
		case _, ok := <-c.SendChan():
			return !ok
		default:
			return false
		}
	}, "client channel never closed on shutdown")
}

func TestClientSendAfterCloseReturnsFalse(t *testing.T) {
	c := NewClient("c")
	c.Close()
	if c.Send(NewMessage(TypeHeartbeat, nil)) {
		t.Error("Send on a closed client should return false")
	}
	// Closing twice must not panic.
	c.Close()
}
