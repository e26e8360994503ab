package mq

import (
	"context"
	"errors"
	"sync"
	"time"

	"cloud.google.com/go/pubsub"
	"google.golang.org/api/option"

	"github.com/novaangola/apiserver/config"
)

const pubsubAckDeadline = 30 * time.Second

var errNoChannel = errors.New("pubsub: channel is required")

// PubSubClient publishes and consumes through Google Cloud Pub/Sub.
// Topics are created on first use and cached so batching is shared.
type PubSubClient struct {
	client             *pubsub.Client
	subscriptionSuffix string

	mu     sync.Mutex
	topics map[string]*pubsub.Topic
}

func NewPubSubClient(ctx context.Context, cfg config.PubSubConfig) (*PubSubClient, error) {
	if cfg.ProjectID == "" {
		return nil, errors.New("pubsub: PUBSUB_PROJECT_ID is required")
	}

	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	client, err := pubsub.NewClient(ctx, cfg.ProjectID, opts...)
	if err != nil {
		return nil, err
	}
	return &PubSubClient{
		client:             client,
		subscriptionSuffix: cfg.SubscriptionSuffix,
		topics:             make(map[string]*pubsub.Topic),
	}, nil
}

// Publish waits for the server ack. Messages sharing an ordering key are
// delivered in the order they were published.
func (p *PubSubClient) Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error) {
	if channel == "" {
		return "", errNoChannel
	}
	topic, err := p.topic(ctx, channel)
	if err != nil {
		return "", err
	}

	msg := newPubSubMessage(data, attrs)
	id, err := topic.Publish(ctx, msg).Get(ctx)
	if err != nil && msg.OrderingKey != "" {
		// A failed publish pauses its key until resumed.
		topic.ResumePublish(msg.OrderingKey)
	}
	return id, err
}

func (p *PubSubClient) Subscribe(ctx context.Context, channel string, handler Handler) error {
	if channel == "" {
		return errNoChannel
	}
	topic, err := p.topic(ctx, channel)
	if err != nil {
		return err
	}
	sub, err := p.subscription(ctx, channel, topic)
	if err != nil {
		return err
	}

	return sub.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		if err := handler(ctx, Message{ID: msg.ID, Data: msg.Data, Attributes: msg.Attributes}); err != nil {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

// Close flushes pending publishes before closing the client.
func (p *PubSubClient) Close() error {
	p.mu.Lock()
	for name, topic := range p.topics {
		topic.Stop()
		delete(p.topics, name)
	}
	p.mu.Unlock()
	return p.client.Close()
}

func (p *PubSubClient) topic(ctx context.Context, name string) (*pubsub.Topic, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if topic, ok := p.topics[name]; ok {
		return topic, nil
	}

	topic := p.client.Topic(name)
	exists, err := topic.Exists(ctx)
	if err != nil {
		return nil, err
	}
	if !exists {
		if topic, err = p.client.CreateTopic(ctx, name); err != nil {
			return nil, err
		}
	}
	topic.EnableMessageOrdering = true
	p.topics[name] = topic
	return topic, nil
}

func (p *PubSubClient) subscription(ctx context.Context, channel string, topic *pubsub.Topic) (*pubsub.Subscription, error) {
	name := subscriptionName(channel, p.subscriptionSuffix)
	sub := p.client.Subscription(name)
	exists, err := sub.Exists(ctx)
	if err != nil || exists {
		return sub, err
	}
	return p.client.CreateSubscription(ctx, name, pubsub.SubscriptionConfig{
		Topic:                 topic,
		AckDeadline:           pubsubAckDeadline,
		EnableMessageOrdering: true,
	})
}

func subscriptionName(channel, suffix string) string {
	return channel + suffix
}

func newPubSubMessage(data []byte, attrs map[string]string) *pubsub.Message {
	msg := &pubsub.Message{Data: data, Attributes: attrs}
	if key, ok := attrs[AttrOrderingKey]; ok {
		msg.OrderingKey = key
	}
	return msg
}
