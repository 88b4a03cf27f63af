package bus

import (
	"context"
	"fmt"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// MetaReplyTo is the metadata key carrying the topic a request expects its
// answer on.
const MetaReplyTo = "reply_to"

// New creates a new event bus based on configuration.
// For Community tier: returns ChannelBus.
// For Pro tier: returns NATSBus.
func New(cfg domain.EventBusConfig) (domain.EventBus, error) {
	switch cfg.Type {
	case "channel", "":
		return NewChannelBus(cfg.ChannelBufferSize), nil

	case "nats":
		return NewNATSBus(cfg)

	default:
		return nil, fmt.Errorf("unsupported event bus type: %s", cfg.Type)
	}
}

// Reply answers a message delivered through Request.
func Reply(ctx context.Context, b domain.EventBus, msg *domain.Message, payload []byte) error {
	to := msg.Metadata[MetaReplyTo]
	if to == "" {
		return fmt.Errorf("message %s has no reply topic", msg.ID)
	}
	return b.Publish(ctx, to, payload)
}
