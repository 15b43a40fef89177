package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"
)

const (
	sseChannelBuffer = 16
	sseHeartbeat     = 30 * time.Second

	// topicAll receives every event; each puzzle also has a topic named by
	// its solution hash.
	topicAll = "all"
)

// client represents a single SSE connection.
type client struct {
	ch    chan string
	topic string
}

// Broadcaster fans registry events out to SSE clients grouped by topic.
type Broadcaster struct {
	mu      sync.RWMutex
	clients map[*client]struct{}
}

// NewBroadcaster creates an empty broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		clients: make(map[*client]struct{}),
	}
}

// Register adds a client for a topic and returns it.
func (b *Broadcaster) Register(topic string) *client {
	c := &client{
		ch:    make(chan string, sseChannelBuffer),
		topic: topic,
	}
	b.mu.Lock()
	b.clients[c] = struct{}{}
	b.mu.Unlock()
	return c
}

// Unregister removes a client and closes its channel.
func (b *Broadcaster) Unregister(c *client) {
	b.mu.Lock()
	if _, ok := b.clients[c]; ok {
		delete(b.clients, c)
		close(c.ch)
	}
	b.mu.Unlock()
}

// Broadcast sends a message to all clients of the given topics.
func (b *Broadcaster) Broadcast(data string, topics ...string) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for c := range b.clients {
		for _, topic := range topics {
			if c.topic != topic {
				continue
			}
			select {
			case c.ch <- data:
			default:
				// Channel full, skip slow client.
			}
		}
	}
}

// ClientCount returns the number of connected clients for a topic.
func (b *Broadcaster) ClientCount(topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	n := 0
	for c := range b.clients {
		if c.topic == topic {
			n++
		}
	}
	return n
}

// PuzzleCreated announces a new puzzle on the global topic.
func (b *Broadcaster) PuzzleCreated(solutionHash string, answers []Answer) {
	evt, _ := json.Marshal(map[string]any{
		"type":          "puzzle_created",
		"solution_hash": solutionHash,
		"answer":        answers,
	})
	b.Broadcast(string(evt), topicAll)
}

// PuzzleSolved announces a solve on the global topic and the puzzle's topic.
func (b *Broadcaster) PuzzleSolved(solutionHash, memo string) {
	evt, _ := json.Marshal(map[string]string{
		"type":          "puzzle_solved",
		"solution_hash": solutionHash,
		"memo":          memo,
	})
	b.Broadcast(string(evt), topicAll, solutionHash)
}

// ServeSSE handles an SSE connection for a topic.
func (b *Broadcaster) ServeSSE(w http.ResponseWriter, r *http.Request, topic string, onConnect func(c *client)) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming non supporté", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	c := b.Register(topic)
	defer b.Unregister(c)

	if onConnect != nil {
		onConnect(c)
	}

	ticker := time.NewTicker(sseHeartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case msg, ok := <-c.ch:
			if !ok {
				return
			}
			fmt.Fprintf(w, "data: %s\n\n", msg)
			flusher.Flush()
		case <-ticker.C:
			fmt.Fprintf(w, ": heartbeat\n\n")
			flusher.Flush()
		}
	}
}
