// Finmatch Recommender - Financial Product Recommendation Engine
// Copyright 2026 Finmatch Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/finmatch/recommender

package eventprocessor

import (
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	wmNats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	natsgo "github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// SubscriberConfig holds NATS JetStream subscriber configuration.
type SubscriberConfig struct {
	// URL is the NATS server URL.
	URL string `koanf:"url"`

	// DurableName is the durable consumer prefix. Durability lets the
	// service resume from its last acknowledged message after restart.
	DurableName string `koanf:"durable_name"`

	// QueueGroup load-balances messages across service instances.
	QueueGroup string `koanf:"queue_group"`

	// SubscribersCount is the number of concurrent pull loops per topic.
	SubscribersCount int `koanf:"subscribers_count"`

	// AckWait is how long the broker waits for an ack before redelivery.
	AckWait time.Duration `koanf:"ack_wait"`

	// MaxDeliver caps redelivery attempts per message.
	MaxDeliver int `koanf:"max_deliver"`

	// MaxReconnects and ReconnectWait tune connection recovery.
	MaxReconnects int           `koanf:"max_reconnects"`
	ReconnectWait time.Duration `koanf:"reconnect_wait"`
}

// DefaultSubscriberConfig returns the default subscriber configuration.
func DefaultSubscriberConfig() SubscriberConfig {
	return SubscriberConfig{
		URL:              natsgo.DefaultURL,
		DurableName:      "recommender",
		QueueGroup:       "recommender",
		SubscribersCount: 1,
		AckWait:          30 * time.Second,
		MaxDeliver:       5,
		MaxReconnects:    60,
		ReconnectWait:    2 * time.Second,
	}
}

// NewSubscriber creates a durable JetStream subscriber. The durable
// queue group gives at-least-once delivery with load balancing across
// instances.
func NewSubscriber(cfg SubscriberConfig, logger zerolog.Logger) (message.Subscriber, error) {
	log := logger.With().Str("component", "subscriber").Logger()

	natsOpts := []natsgo.Option{
		natsgo.RetryOnFailedConnect(true),
		natsgo.MaxReconnects(cfg.MaxReconnects),
		natsgo.ReconnectWait(cfg.ReconnectWait),
		natsgo.DisconnectErrHandler(func(_ *natsgo.Conn, err error) {
			if err != nil {
				log.Error().Err(err).Msg("broker connection lost")
			}
		}),
		natsgo.ReconnectHandler(func(nc *natsgo.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("broker reconnected")
		}),
	}

	subOpts := []natsgo.SubOpt{
		natsgo.MaxDeliver(cfg.MaxDeliver),
		natsgo.AckWait(cfg.AckWait),
		natsgo.DeliverAll(),
	}

	wmConfig := wmNats.SubscriberConfig{
		URL:              cfg.URL,
		QueueGroupPrefix: cfg.QueueGroup,
		SubscribersCount: cfg.SubscribersCount,
		AckWaitTimeout:   cfg.AckWait,
		NatsOptions:      natsOpts,
		Unmarshaler:      &wmNats.NATSMarshaler{},
		JetStream: wmNats.JetStreamConfig{
			Disabled:         false,
			AutoProvision:    true,
			AckAsync:         false,
			SubscribeOptions: subOpts,
			DurablePrefix:    cfg.DurableName,
		},
	}

	sub, err := wmNats.NewSubscriber(wmConfig, watermillLogger{log})
	if err != nil {
		return nil, fmt.Errorf("creating jetstream subscriber: %w", err)
	}
	return sub, nil
}

// watermillLogger adapts zerolog to watermill.LoggerAdapter.
type watermillLogger struct {
	log zerolog.Logger
}

func (l watermillLogger) Error(msg string, err error, fields watermill.LogFields) {
	l.event(l.log.Error().Err(err), fields).Msg(msg)
}

func (l watermillLogger) Info(msg string, fields watermill.LogFields) {
	l.event(l.log.Info(), fields).Msg(msg)
}

func (l watermillLogger) Debug(msg string, fields watermill.LogFields) {
	l.event(l.log.Debug(), fields).Msg(msg)
}

func (l watermillLogger) Trace(msg string, fields watermill.LogFields) {
	l.event(l.log.Trace(), fields).Msg(msg)
}

func (l watermillLogger) With(fields watermill.LogFields) watermill.LoggerAdapter {
	ctx := l.log.With()
	for k, v := range fields {
		ctx = ctx.Interface(k, v)
	}
	return watermillLogger{ctx.Logger()}
}

func (l watermillLogger) event(e *zerolog.Event, fields watermill.LogFields) *zerolog.Event {
	for k, v := range fields {
		e = e.Interface(k, v)
	}
	return e
}
