package kafka

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/IBM/sarama"
)

// Consumer runs a consumer group over one topic and feeds every message to
// its handler. Built for the review topic: low volume, at-least-once.
type Consumer struct {
	group   sarama.ConsumerGroup
	runner  *claimRunner
	topic   string
	groupID string
}

// ConsumerConfig holds Kafka consumer configuration
type ConsumerConfig struct {
	Brokers []string
	Topic   string
	GroupID string
	Handler MessageHandler
}

// NewConsumer joins the consumer group. Consumption starts with Start.
func NewConsumer(cfg ConsumerConfig) (*Consumer, error) {
	sc := sarama.NewConfig()
	sc.Version = sarama.V3_6_0_0
	sc.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}
	sc.Consumer.Offsets.Initial = sarama.OffsetNewest
	sc.Consumer.Return.Errors = true

	group, err := sarama.NewConsumerGroup(cfg.Brokers, cfg.GroupID, sc)
	if err != nil {
		return nil, fmt.Errorf("join consumer group %s: %w", cfg.GroupID, err)
	}

	return &Consumer{
		group:   group,
		runner:  &claimRunner{handler: cfg.Handler, ready: make(chan struct{})},
		topic:   cfg.Topic,
		groupID: cfg.GroupID,
	}, nil
}

// Start begins consuming in the background. It returns once the group has
// joined and claims are assigned, or when ctx is canceled first.
func (c *Consumer) Start(ctx context.Context) error {
	go func() {
		for {
			err := c.group.Consume(ctx, []string{c.topic}, c.runner)
			if ctx.Err() != nil || errors.Is(err, sarama.ErrClosedConsumerGroup) {
				return
			}
			if err != nil {
				log.Printf("kafka: consume %s: %v", c.topic, err)
			}
			// Consume returns on rebalance; loop to rejoin
		}
	}()

	go func() {
		for err := range c.group.Errors() {
			log.Printf("kafka: group %s: %v", c.groupID, err)
		}
	}()

	select {
	case <-c.runner.ready:
	case <-ctx.Done():
		return ctx.Err()
	}
	log.Printf("kafka: consuming %s as group %s", c.topic, c.groupID)
	return nil
}

// Close leaves the consumer group
func (c *Consumer) Close() error {
	return c.group.Close()
}

// claimRunner implements sarama.ConsumerGroupHandler
type claimRunner struct {
	handler MessageHandler
	ready   chan struct{}
	once    sync.Once
}

func (r *claimRunner) Setup(sarama.ConsumerGroupSession) error {
	r.once.Do(func() { close(r.ready) })
	return nil
}

func (r *claimRunner) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (r *claimRunner) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	// Messages closes on rebalance or shutdown; an unmarked message is
	// redelivered to the next claim holder
	for message := range claim.Messages() {
		mark, err := r.handler.HandleMessage(session.Context(), message.Value)
		if err != nil {
			log.Printf("kafka: message %s/%d@%d: %v", message.Topic, message.Partition, message.Offset, err)
		}
		if mark {
			session.MarkMessage(message, "")
		}
	}
	return nil
}
