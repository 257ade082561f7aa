package testutil

import (
	"context"
	"sync"
)

// Message is a recorded notification.
type Message struct {
	Subject string
	Body    string
}

// RecordingNotifier keeps notifications in memory.
type RecordingNotifier struct {
	mu       sync.Mutex
	messages []Message
}

// Notify records a notification.
func (n *RecordingNotifier) Notify(_ context.Context, subject, body string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, Message{Subject: subject, Body: body})
	return nil
}

// Messages returns the recorded notifications in order.
func (n *RecordingNotifier) Messages() []Message {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Message(nil), n.messages...)
}
