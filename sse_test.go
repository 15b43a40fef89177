package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestBroadcasterRegisterUnregister(t *testing.T) {
	b := NewBroadcaster()

	c1 := b.Register(topicAll)
	c2 := b.Register(topicAll)
	c3 := b.Register("abc")

	if b.ClientCount(topicAll) != 2 {
		t.Fatalf("expected 2 clients for %s, got %d", topicAll, b.ClientCount(topicAll))
	}
	if b.ClientCount("abc") != 1 {
		t.Fatalf("expected 1 client for abc, got %d", b.ClientCount("abc"))
	}

	b.Unregister(c1)
	if b.ClientCount(topicAll) != 1 {
		t.Fatalf("expected 1 client after unregister, got %d", b.ClientCount(topicAll))
	}

	b.Unregister(c2)
	b.Unregister(c3)
	if b.ClientCount(topicAll) != 0 || b.ClientCount("abc") != 0 {
		t.Fatal("expected 0 clients after full unregister")
	}
}

func TestBroadcasterDoubleUnregister(t *testing.T) {
	b := NewBroadcaster()
	c := b.Register(topicAll)
	b.Unregister(c)
	b.Unregister(c) // should not panic
}

func receive(t *testing.T, c *client) string {
	t.Helper()
	select {
	case msg := <-c.ch:
		return msg
	case <-time.After(100 * time.Millisecond):
		t.Fatal("client did not receive message")
	}
	return ""
}

func expectNothing(t *testing.T, c *client) {
	t.Helper()
	select {
	case msg := <-c.ch:
		t.Fatalf("unexpected message %q", msg)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBroadcastByTopic(t *testing.T) {
	b := NewBroadcaster()

	c1 := b.Register("p1")
	c2 := b.Register("p1")
	c3 := b.Register("p2")
	all := b.Register(topicAll)
	defer func() {
		for _, c := range []*client{c1, c2, c3, all} {
			b.Unregister(c)
		}
	}()

	b.Broadcast("hello", "p1")

	if msg := receive(t, c1); msg != "hello" {
		t.Fatalf("c1 expected 'hello', got %q", msg)
	}
	if msg := receive(t, c2); msg != "hello" {
		t.Fatalf("c2 expected 'hello', got %q", msg)
	}
	expectNothing(t, c3)
	expectNothing(t, all)

	b.Broadcast("both", topicAll, "p2")
	if msg := receive(t, c3); msg != "both" {
		t.Fatalf("c3 expected 'both', got %q", msg)
	}
	if msg := receive(t, all); msg != "both" {
		t.Fatalf("all expected 'both', got %q", msg)
	}
	expectNothing(t, c1)
}

func TestBroadcastSkipsFullChannel(t *testing.T) {
	b := NewBroadcaster()
	c := b.Register(topicAll)

	// Fill the channel.
	for range sseChannelBuffer {
		b.Broadcast("fill", topicAll)
	}

	// This should not block.
	b.Broadcast("overflow", topicAll)

	b.Unregister(c)
}

func TestBroadcasterConcurrent(t *testing.T) {
	b := NewBroadcaster()
	var wg sync.WaitGroup

	for i := range 50 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			topic := "p1"
			if i%2 == 0 {
				topic = "p2"
			}
			c := b.Register(topic)
			b.Broadcast("msg", topic, topicAll)
			b.ClientCount(topic)
			b.Unregister(c)
		}(i)
	}
	wg.Wait()

	if b.ClientCount("p1") != 0 || b.ClientCount("p2") != 0 {
		t.Fatal("expected 0 clients after concurrent test")
	}
}

func TestPuzzleSolvedEvent(t *testing.T) {
	b := NewBroadcaster()
	hash := HashSolution("solved")
	all := b.Register(topicAll)
	one := b.Register(hash)
	other := b.Register(HashSolution("other"))
	defer b.Unregister(all)
	defer b.Unregister(one)
	defer b.Unregister(other)

	b.PuzzleSolved(hash, "well done")

	for _, c := range []*client{all, one} {
		var evt map[string]string
		if err := json.Unmarshal([]byte(receive(t, c)), &evt); err != nil {
			t.Fatalf("decode event: %v", err)
		}
		if evt["type"] != "puzzle_solved" || evt["solution_hash"] != hash || evt["memo"] != "well done" {
			t.Fatalf("unexpected event %v", evt)
		}
	}
	expectNothing(t, other)

	b.PuzzleCreated(HashSolution("new"), sampleAnswers())
	if msg := receive(t, all); !strings.Contains(msg, `"puzzle_created"`) {
		t.Fatalf("expected puzzle_created, got %q", msg)
	}
	expectNothing(t, one)
}

func TestServeSSE(t *testing.T) {
	b := NewBroadcaster()
	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest("GET", "/api/events", nil).WithContext(ctx)
	w := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		defer close(done)
		b.ServeSSE(w, req, topicAll, nil)
	}()

	deadline := time.Now().Add(time.Second)
	for b.ClientCount(topicAll) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}
	b.Broadcast("ping", topicAll)
	time.Sleep(50 * time.Millisecond)
	cancel()
	<-done

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("expected text/event-stream, got %s", ct)
	}
	if !strings.Contains(w.Body.String(), "data: ping\n\n") {
		t.Fatalf("expected ping event, got %q", w.Body.String())
	}
	if b.ClientCount(topicAll) != 0 {
		t.Fatal("client not unregistered on disconnect")
	}
}
