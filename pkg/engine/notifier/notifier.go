// Package notifier delivers operator notifications over SNS, with optional mirrors.
package notifier

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
)

// Publisher sends one message to a topic.
type Publisher interface {
	Publish(ctx context.Context, topic, subject, message string) error
}

// Fanout publishes to every member and joins their errors. All members are attempted.
type Fanout []Publisher

func (f Fanout) Publish(ctx context.Context, topic, subject, message string) error {
	var errs []error
	for _, p := range f {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, topic, subject, message); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Message is a captured notification.
type Message struct {
	Topic   string
	Subject string
	Body    string
}

// Recorder keeps every published message in memory. Used by dry runs and tests.
type Recorder struct {
	mu       sync.Mutex
	Messages []Message
	Err      error
}

func (r *Recorder) Publish(ctx context.Context, topic, subject, message string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	r.Messages = append(r.Messages, Message{Topic: topic, Subject: subject, Body: message})
	return nil
}

// Count returns the number of captured messages.
func (r *Recorder) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.Messages)
}

// WriterPublisher prints messages instead of sending them.
type WriterPublisher struct {
	W io.Writer
}

func (w WriterPublisher) Publish(ctx context.Context, topic, subject, message string) error {
	_, err := fmt.Fprintf(w.W, "[%s] %s\n%s\n\n", topic, subject, message)
	return err
}
