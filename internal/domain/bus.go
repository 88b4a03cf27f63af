package domain

import (
	"context"
)

// EventBus defines the interface for event-driven communication.
// Supports Go channels (Community) or NATS (Pro).
type EventBus interface {
	// Publish sends a message to a topic.
	Publish(ctx context.Context, topic string, payload []byte) error

	// Subscribe registers a handler for a topic.
	// Returns a subscription that can be used to unsubscribe.
	Subscribe(ctx context.Context, topic string, handler MessageHandler) (Subscription, error)

	// Request sends a message and waits for a response (request-reply pattern).
	Request(ctx context.Context, topic string, payload []byte) ([]byte, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// MessageHandler processes incoming messages.
type MessageHandler func(ctx context.Context, msg *Message) error

// Message represents an event message.
type Message struct {
	ID        string            `json:"id"`
	Topic     string            `json:"topic"`
	Payload   []byte            `json:"payload"`
	Metadata  map[string]string `json:"metadata"`
	Timestamp int64             `json:"timestamp"`
}

// Subscription represents an active subscription.
type Subscription interface {
	// Unsubscribe stops receiving messages.
	Unsubscribe() error

	// Topic returns the subscribed topic.
	Topic() string
}

// EventBusConfig holds configuration for event bus initialization.
type EventBusConfig struct {
	// Type is the bus type: "channel" or "nats"
	Type string `json:"type" envconfig:"type"`

	// Channel settings (Community tier)
	ChannelBufferSize int `json:"channelBufferSize" envconfig:"buffer_size"`

	// NATS settings (Pro tier)
	NATSUrl           string `json:"natsUrl" envconfig:"nats_url"`
	NATSToken         string `json:"-" envconfig:"nats_token"`
	NATSMaxReconnects int    `json:"natsMaxReconnects" envconfig:"nats_max_reconnects"`
	NATSReconnectWait int    `json:"natsReconnectWait" envconfig:"nats_reconnect_wait"` // seconds
}

// Standard topic names.
const (
	TopicPredictionCompleted = "kestrel.prediction.completed"
	TopicBulkCompleted       = "kestrel.bulk.completed"
	TopicTrainingRequested   = "kestrel.training.requested"
	TopicTrainingCompleted   = "kestrel.training.completed"
	TopicTrainingStatus      = "kestrel.training.status"
	TopicDatasetPreprocess   = "kestrel.dataset.preprocess"
	TopicRuleTablesReloaded  = "kestrel.ruletables.reloaded"
)
