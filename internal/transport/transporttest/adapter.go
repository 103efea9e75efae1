// Package transporttest provides an in-memory transport.Adapter for tests.
package transporttest

import (
	"context"
	"sync"

	kit "wrestfed/internal/transport"
)

type Sent struct {
	To   kit.ChatTarget
	Text string
}

// Adapter records sent messages. FailFor decides per message whether the
// send fails; nil never fails.
type Adapter struct {
	FailFor func(to kit.ChatTarget, text string) error

	mu   sync.Mutex
	sent []Sent
	next int
	in   chan kit.Update
}

func New() *Adapter { return &Adapter{in: make(chan kit.Update, 16)} }

// Push queues an incoming update for Start.
func (a *Adapter) Push(u kit.Update) { a.in <- u }

func (a *Adapter) Start(ctx context.Context, out chan<- kit.Update) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case u := <-a.in:
			select {
			case out <- u:
			case <-ctx.Done():
				return nil
			}
		}
	}
}

func (a *Adapter) Stop(context.Context) error { return nil }

func (a *Adapter) SendText(_ context.Context, to kit.ChatTarget, text string, _ *kit.SendOptions) (kit.MessageRef, error) {
	if a.FailFor != nil {
		if err := a.FailFor(to, text); err != nil {
			return kit.MessageRef{}, err
		}
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.next++
	a.sent = append(a.sent, Sent{To: to, Text: text})
	return kit.MessageRef{ChatID: to.ChatID, ThreadID: to.ThreadID, MessageID: a.next}, nil
}

// Sent returns a copy of everything sent so far.
func (a *Adapter) Sent() []Sent {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]Sent(nil), a.sent...)
}
