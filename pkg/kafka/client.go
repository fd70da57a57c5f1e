// Package kafka 提供了与 Kafka 消息队列交互的功能。
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/segmentio/kafka-go"

	"travel-concierge-go/internal/config"
	"travel-concierge-go/internal/model"
	"travel-concierge-go/pkg/log"
)

// EventSuggestionSaved 是建议保存事件的类型标记，写在消息头 event-type 中。
const EventSuggestionSaved = "suggestion.saved"

// Producer 把行程相关的事件写入 Kafka，供行程和预算模块消费。
type Producer struct {
	writer *kafka.Writer
}

// NewProducer 初始化 Kafka 生产者。brokers 为逗号分隔的地址列表。
func NewProducer(cfg config.KafkaConfig) *Producer {
	var brokers []string
	for _, b := range strings.Split(cfg.Brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
	}
	log.Infof("Kafka 生产者初始化成功, topic=%s", cfg.Topic)
	return &Producer{writer: writer}
}

// PublishSuggestionSaved 发送一个建议保存事件，同一行程的事件使用相同的 key 以保证顺序。
func (p *Producer) PublishSuggestionSaved(ctx context.Context, event model.SuggestionSavedEvent) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal suggestion event: %w", err)
	}
	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.TripID),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event-type", Value: []byte(EventSuggestionSaved)},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to publish suggestion event: %w", err)
	}
	return nil
}

// Close 刷新并关闭底层 writer。
func (p *Producer) Close() error {
	return p.writer.Close()
}
