// Package kafka 提供了向 Kafka 发布对话事件的功能。
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"chat-relay-go/internal/config"
	"chat-relay-go/internal/model"
	"chat-relay-go/pkg/log"

	"github.com/segmentio/kafka-go"
)

// Publisher 把对话事件写入配置的 topic，同一对话的事件使用相同的 key。
type Publisher struct {
	writer *kafka.Writer
}

// NewPublisher 初始化 Kafka 生产者。Brokers 以逗号分隔。
func NewPublisher(cfg config.KafkaConfig) *Publisher {
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokerList(cfg.Brokers)...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 50 * time.Millisecond,
	}
	log.Infof("Kafka 生产者初始化成功，topic '%s'", cfg.Topic)
	return &Publisher{writer: w}
}

func brokerList(brokers string) []string {
	var out []string
	for _, b := range strings.Split(brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

func newMessage(event model.ConversationEvent) (kafka.Message, error) {
	value, err := json.Marshal(event)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("failed to encode conversation event: %w", err)
	}
	return kafka.Message{Key: []byte(event.ConversationID), Value: value, Time: event.UpdatedAt}, nil
}

// Publish 同步发送一个事件。
func (p *Publisher) Publish(ctx context.Context, event model.ConversationEvent) error {
	msg, err := newMessage(event)
	if err != nil {
		return err
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to publish conversation event: %w", err)
	}
	return nil
}

// Close 刷新并关闭生产者。
func (p *Publisher) Close() error {
	return p.writer.Close()
}
