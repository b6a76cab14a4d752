package kafka

import (
	"context"
	"encoding/json"
	"log"
)

// MessageHandler processes one consumed message. shouldMark false (or a
// returned error) leaves the message unmarked so it is retried.
type MessageHandler interface {
	HandleMessage(ctx context.Context, message []byte) (shouldMark bool, err error)
}

// TypedMessageHandler decodes JSON messages into T before processing.
// Malformed messages are marked (skipped) when AlwaysMark is set, so one bad
// payload cannot wedge the partition.
type TypedMessageHandler[T any] struct {
	Validate   func(msg *T) bool
	Process    func(ctx context.Context, msg *T) error
	AlwaysMark bool
}

// HandleMessage implements MessageHandler
func (h *TypedMessageHandler[T]) HandleMessage(ctx context.Context, message []byte) (bool, error) {
	var msg T
	if err := json.Unmarshal(message, &msg); err != nil {
		log.Printf("kafka: drop undecodable message: %v", err)
		return h.AlwaysMark, nil
	}

	if h.Validate != nil && !h.Validate(&msg) {
		return h.AlwaysMark, nil
	}

	if err := h.Process(ctx, &msg); err != nil {
		return false, err
	}
	return true, nil
}
