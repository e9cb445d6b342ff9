// Package events publishes enrollment and recognition notifications.
package events

import (
	"context"
	"sync"
)

// Subtopics appended to the configured base topic.
const (
	TopicEnrolled   = "enrolled"
	TopicRecognized = "recognized"
)

// Enrolled is published after a label has been stored.
type Enrolled struct {
	Label       string `json:"label"`
	Descriptors int    `json:"descriptors"`
}

// Recognized is published for every face matched to a known label.
type Recognized struct {
	Label      string  `json:"label"`
	Distance   float64 `json:"distance"`
	Similarity float64 `json:"similarity"`
}

// Publisher delivers events. Publish never fails the caller; delivery errors
// are the publisher's concern.
type Publisher interface {
	Publish(ctx context.Context, subtopic string, payload any)
	Close() error
}

// Nop discards every event.
type Nop struct{}

func (Nop) Publish(context.Context, string, any) {}
func (Nop) Close() error                         { return nil }

// Message is an event captured by Recorder.
type Message struct {
	Subtopic string
	Payload  any
}

// Recorder keeps published events in memory.
type Recorder struct {
	mu       sync.Mutex
	messages []Message
}

func (r *Recorder) Publish(_ context.Context, subtopic string, payload any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, Message{Subtopic: subtopic, Payload: payload})
}

func (r *Recorder) Close() error { return nil }

// Messages returns a copy of the recorded events.
func (r *Recorder) Messages() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Message(nil), r.messages...)
}
