package broadcast

import (
	"errors"

	"reelsmith/types"
)

// ErrBufferFull is returned when a channel subscriber cannot keep up
var ErrBufferFull = errors.New("subscriber buffer full")

// ChannelSubscriber adapts a buffered channel to the Subscriber interface.
// The SSE handler drains Events from its own goroutine; Send never blocks,
// dropping the event when the reader has fallen behind.
type ChannelSubscriber struct {
	ch chan types.ProgressEvent
}

// NewChannelSubscriber creates a subscriber with the given buffer size
func NewChannelSubscriber(buffer int) *ChannelSubscriber {
	return &ChannelSubscriber{ch: make(chan types.ProgressEvent, buffer)}
}

// Send implements Subscriber
func (s *ChannelSubscriber) Send(ev types.ProgressEvent) error {
	select {
	case s.ch <- ev:
		return nil
	default:
		return ErrBufferFull
	}
}

// Events exposes the receive side for the draining goroutine
func (s *ChannelSubscriber) Events() <-chan types.ProgressEvent {
	return s.ch
}
