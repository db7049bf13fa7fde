package memory

import (
	"context"
	"sync"

	"github.com/neuraltrade/tradecore/internal/domain"
)

// Bus is an in-process signal bus. Publish fans out to every subscriber of
// the channel; slow subscribers drop messages rather than block publishers.
type Bus struct {
	mu   sync.RWMutex
	subs map[string][]chan []byte
}

// NewBus creates an empty in-process bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[string][]chan []byte)}
}

// Publish delivers payload to all current subscribers of the channel.
func (b *Bus) Publish(ctx context.Context, channel string, payload []byte) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs[channel] {
		select {
		case ch <- payload:
		default:
		}
	}
	return nil
}

// Subscribe returns a channel receiving future publishes on the named
// channel. The subscription lives until the context is cancelled.
func (b *Bus) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	ch := make(chan []byte, 64)
	b.mu.Lock()
	b.subs[channel] = append(b.subs[channel], ch)
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		defer b.mu.Unlock()
		subs := b.subs[channel]
		for i, c := range subs {
			if c == ch {
				b.subs[channel] = append(subs[:i], subs[i+1:]...)
				close(c)
				return
			}
		}
	}()
	return ch, nil
}

var _ domain.SignalBus = (*Bus)(nil)
