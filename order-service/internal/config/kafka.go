package config

import (
	"bytes"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
)

func splitBrokers(brokers string) []string {
	var out []string
	for _, b := range strings.Split(brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

// NewKafkaWriter returns a writer for topic, or nil when no brokers are
// configured.
func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	if len(brokers) == 0 {
		return nil
	}
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &OrderBalancer{},
		RequiredAcks:           kafka.RequireOne,
		BatchTimeout:           10 * time.Millisecond,
		WriteTimeout:           5 * time.Second,
		AllowAutoTopicCreation: true,
	}
}

// OrderBalancer hashes only the order id segment of an "order.<type>.<id>"
// key, so every event for one order lands on the same partition.
type OrderBalancer struct {
	hash kafka.Hash
}

func (b *OrderBalancer) Balance(msg kafka.Message, partitions ...int) int {
	if i := bytes.LastIndexByte(msg.Key, '.'); i >= 0 {
		msg.Key = msg.Key[i+1:]
	}
	return b.hash.Balance(msg, partitions...)
}
