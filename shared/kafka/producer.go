package kafka

import (
	"encoding/json"
	"fmt"
	"log"

	"github.com/IBM/sarama"

	"reelsmith/types"
)

// Producer publishes progress events to a Kafka topic, keyed by session id
// so all events of one session land on one partition in order. It implements
// the broadcast registry's Sink.
type Producer struct {
	producer sarama.SyncProducer
	topic    string
}

// ProducerConfig holds Kafka producer configuration
type ProducerConfig struct {
	Brokers []string
	Topic   string
}

// NewProducer creates a synchronous Kafka producer
func NewProducer(config ProducerConfig) (*Producer, error) {
	saramaConfig := sarama.NewConfig()
	saramaConfig.Version = sarama.V3_6_0_0
	saramaConfig.Producer.RequiredAcks = sarama.WaitForLocal
	saramaConfig.Producer.Retry.Max = 3
	saramaConfig.Producer.Return.Successes = true

	producer, err := sarama.NewSyncProducer(config.Brokers, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}

	log.Printf("Kafka producer started (topic: %s)", config.Topic)
	return &Producer{producer: producer, topic: config.Topic}, nil
}

// Mirror publishes one progress event. Called by the broadcast registry for
// every local delivery; errors are logged there, never blocking subscribers.
func (p *Producer) Mirror(sessionID string, ev types.ProgressEvent) error {
	value, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal progress event: %w", err)
	}

	_, _, err = p.producer.SendMessage(&sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(sessionID),
		Value: sarama.ByteEncoder(value),
	})
	if err != nil {
		return fmt.Errorf("send progress event: %w", err)
	}
	return nil
}

// Close gracefully shuts down the producer
func (p *Producer) Close() error {
	return p.producer.Close()
}
