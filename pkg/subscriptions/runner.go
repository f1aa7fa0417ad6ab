package subscriptions

import (
	"context"
	"encoding/json"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/graphwatch/pkg/channel"
	"github.com/go-go-golems/graphwatch/pkg/model"
)

// Run attaches the manager to the notification bus: it subscribes to every
// server-initiated topic and dispatches payloads to the matching handler.
// Handler errors are logged and the message dropped; there is no caller to
// report to. Run returns once all subscriptions are established; consumers
// stop when ctx is cancelled.
func (m *Manager) Run(ctx context.Context, sub message.Subscriber) error {
	handlers := map[string]func(ctx context.Context, payload []byte) error{
		channel.Topic(channel.TargetNewMessage): func(ctx context.Context, payload []byte) error {
			var inbound channel.InboundMessage
			if err := json.Unmarshal(payload, &inbound); err != nil {
				return errors.Wrap(err, "parse inbound message")
			}
			m.HandleNewMessage(ctx, inbound)
			return nil
		},
		channel.Topic(channel.TargetSubscriptionCreated): func(ctx context.Context, payload []byte) error {
			var rec model.SubscriptionRecord
			if err := json.Unmarshal(payload, &rec); err != nil {
				return errors.Wrap(err, "parse subscription record")
			}
			m.HandleSubscriptionCreated(ctx, rec)
			return nil
		},
		channel.Topic(channel.TargetSubscriptionRenewed): func(ctx context.Context, payload []byte) error {
			var rec model.SubscriptionRecord
			if err := json.Unmarshal(payload, &rec); err != nil {
				return errors.Wrap(err, "parse subscription record")
			}
			m.HandleSubscriptionRenewed(ctx, rec)
			return nil
		},
		channel.Topic(channel.TargetSubscriptionRenewalFailed): func(ctx context.Context, payload []byte) error {
			var subscriptionID string
			if err := json.Unmarshal(payload, &subscriptionID); err != nil {
				return errors.Wrap(err, "parse subscription id")
			}
			m.HandleSubscriptionRenewalFailed(ctx, subscriptionID)
			return nil
		},
		channel.Topic(channel.TargetSubscriptionCreationFailed): func(ctx context.Context, payload []byte) error {
			var def model.SubscriptionDefinition
			if err := json.Unmarshal(payload, &def); err != nil {
				return errors.Wrap(err, "parse subscription definition")
			}
			m.HandleSubscriptionCreationFailed(ctx, def)
			return nil
		},
		channel.Topic(channel.TargetSubscriptionRenewalIgnored): func(ctx context.Context, payload []byte) error {
			var rec model.SubscriptionRecord
			if err := json.Unmarshal(payload, &rec); err != nil {
				return errors.Wrap(err, "parse subscription record")
			}
			m.HandleSubscriptionRenewalIgnored(ctx, rec)
			return nil
		},
	}

	for topic, handler := range handlers {
		msgs, err := sub.Subscribe(ctx, topic)
		if err != nil {
			return errors.Wrapf(err, "subscriptions: subscribe %s", topic)
		}
		go m.consume(ctx, topic, msgs, handler)
	}
	return nil
}

func (m *Manager) consume(ctx context.Context, topic string, msgs <-chan *message.Message, handler func(context.Context, []byte) error) {
	for msg := range msgs {
		if err := handler(ctx, msg.Payload); err != nil {
			log.Warn().Err(err).Str("topic", topic).Msg("dropping notification")
		}
		msg.Ack()
	}
}
